package backtest

import "errors"

// Sentinel errors surfaced at the run boundary. All are fatal to the run;
// the HTTP layer translates them into a generic external failure.
var (
	// ErrPoolNotFound reports an unknown pair id.
	ErrPoolNotFound = errors.New("pool not found")
	// ErrKlineMissing reports an empty hourly liquidity series.
	ErrKlineMissing = errors.New("no hourly liquidity data in range")
	// ErrSwapMissing reports an empty raw swap series.
	ErrSwapMissing = errors.New("no swap events in range")
	// ErrNoTrades reports that the liquidity join emptied the trade sequence.
	ErrNoTrades = errors.New("no aggregated trades after liquidity join")
)
