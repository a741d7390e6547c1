package model

import "github.com/shopspring/decimal"

// Pool is the static metadata of a two-token AMM pool.
type Pool struct {
	Pair        string          `json:"pair"`
	Token0      string          `json:"token0"`
	Token1      string          `json:"token1"`
	Decimal0    int             `json:"decimal0"`
	Decimal1    int             `json:"decimal1"`
	Reverse     int             `json:"reverse"`
	TickSpacing int32           `json:"tick_spacing"`
	SwapFee     decimal.Decimal `json:"swap_fee"`
}

// Reversed reports whether prices are quoted token0-per-token1.
func (p *Pool) Reversed() bool {
	return p.Reverse == 1
}

// DecimalDiff returns decimal1 - decimal0.
func (p *Pool) DecimalDiff() int {
	return p.Decimal1 - p.Decimal0
}
