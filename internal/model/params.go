package model

import "github.com/shopspring/decimal"

// RebalanceInstruction forces a re-centering at a specific block. The
// explicit bounds are honored only when Lower < Upper.
type RebalanceInstruction struct {
	Block int64 `json:"block"`
	Lower int64 `json:"lower"`
	Upper int64 `json:"upper"`
}

// Params describes one backtest request.
type Params struct {
	Pair               string                 `json:"pair"`
	BoundaryThreshold  int64                  `json:"boundaryThreshold"`
	ReBalanceThreshold int64                  `json:"reBalanceThreshold"`
	StartTs            int64                  `json:"startTs"`
	EndTs              *int64                 `json:"endTs,omitempty"`
	Amount0            decimal.Decimal        `json:"amount0"`
	Amount1            decimal.Decimal        `json:"amount1"`
	Rebalance          []RebalanceInstruction `json:"rebalance,omitempty"`
}
