package model

import "github.com/shopspring/decimal"

// SwapEvent is a single on-chain swap in human token units.
type SwapEvent struct {
	Pair        string          `json:"pair"`
	Ts          int64           `json:"ts"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	Tick        int64           `json:"tick"`
	BlockNumber int64           `json:"block_number"`
	GasPrice    decimal.Decimal `json:"gas_price"`
}

// Trade is one block's aggregated swap activity joined with the pool's
// total active liquidity at that hour. Immutable once built.
type Trade struct {
	BlockNumber int64
	Ts          int64
	Tick        int64
	Amount0     decimal.Decimal
	Amount1     decimal.Decimal
	GasPrice    decimal.Decimal
	Price       decimal.Decimal
	Liquidity   decimal.Decimal
}
