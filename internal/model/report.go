package model

import "encoding/json"

// TradeEvent is one liquidity action in the report's trade_info list. It
// serializes as a fixed 12-element array of plain strings, in this order:
// timestamp, price, amount0 delta, amount1 delta, liquidity delta, carried
// amount0, carried amount1, instantaneous return, commission rate, gas
// price, gas used estimate, action kind.
type TradeEvent struct {
	Ts         string
	Price      string
	Amount0    string
	Amount1    string
	Liquidity  string
	Carried0   string
	Carried1   string
	Return     string
	Commission string
	GasPrice   string
	GasUsed    string
	Action     string
}

// Action kinds for TradeEvent.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// MarshalJSON renders the event as a positional 12-field array.
func (e TradeEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{
		e.Ts, e.Price, e.Amount0, e.Amount1, e.Liquidity,
		e.Carried0, e.Carried1, e.Return, e.Commission,
		e.GasPrice, e.GasUsed, e.Action,
	})
}

// UnmarshalJSON decodes the positional array form.
func (e *TradeEvent) UnmarshalJSON(data []byte) error {
	var fields []string
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	get := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	e.Ts = get(0)
	e.Price = get(1)
	e.Amount0 = get(2)
	e.Amount1 = get(3)
	e.Liquidity = get(4)
	e.Carried0 = get(5)
	e.Carried1 = get(6)
	e.Return = get(7)
	e.Commission = get(8)
	e.GasPrice = get(9)
	e.GasUsed = get(10)
	e.Action = get(11)
	return nil
}

// BaseInfo echoes the request and pool parameters of a run.
type BaseInfo struct {
	StartTs   string `json:"start_ts"`
	EndTs     string `json:"end_ts"`
	LowerRate string `json:"lower_rate"`
	UpperRate string `json:"upper_rate"`
	RebRate   string `json:"reb_rate"`
	Tier      string `json:"tier"`
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Decimal0  string `json:"decimal0"`
	Decimal1  string `json:"decimal1"`
}

// MarketInfo summarizes the window's price action.
type MarketInfo struct {
	Open  string `json:"open"`
	Close string `json:"close"`
	High  string `json:"high"`
	Low   string `json:"low"`
}

// GlobalInfo aggregates lifetime totals and the rate family. Rate and Apr
// are ordered [real, commission, uncompounded, hodl]; Commission and
// SwapFee are [token0, token1]; ReBalanceTime is [up, down].
type GlobalInfo struct {
	Commission    [2]string `json:"commission"`
	SwapFee       [2]string `json:"swapFee"`
	ReBalanceTime [2]int    `json:"reBalanceTime"`
	Rate          [4]string `json:"rate"`
	Apr           [4]string `json:"apr"`
}

// RiskInfo carries the derived risk statistics.
type RiskInfo struct {
	MaxDrawDown string `json:"maxDrawDown"`
	Volatility  string `json:"volatility"`
	Sharpe      string `json:"sharpe"`
	WinRate     string `json:"winRate"`
}

// Report is the fixed-shape result of a backtest run.
type Report struct {
	ReportName string       `json:"report_name"`
	BaseInfo   BaseInfo     `json:"base_info"`
	TsList     []string     `json:"ts_list"`
	ImList     []string     `json:"im_list"`
	TradeInfo  []TradeEvent `json:"trade_info"`
	MarketInfo MarketInfo   `json:"market_info"`
	GlobalInfo GlobalInfo   `json:"global_info"`
	RiskInfo   RiskInfo     `json:"risk_info"`
}
