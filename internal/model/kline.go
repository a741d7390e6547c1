package model

import "github.com/shopspring/decimal"

// HourKline is an hourly snapshot of the pool's total active liquidity.
type HourKline struct {
	Pair      string          `json:"pair"`
	Ts        int64           `json:"ts"`
	Liquidity decimal.Decimal `json:"liquidity"`
}
