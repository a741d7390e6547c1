package backtest

import (
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"rangesim/internal/decmath"
	"rangesim/internal/model"
)

// reportSeq disambiguates report names minted within the same second.
var reportSeq atomic.Int64

var daysPerYear = decimal.NewFromInt(365)

// buildReport derives the rate family and risk statistics from the walk's
// output and assembles the fixed-shape report.
func buildReport(pool *model.Pool, params model.Params, trades []model.Trade, result *simResult, startTs, endTs int64) (*model.Report, error) {
	days := (endTs - startTs) / (3600 * 24)

	aligned := alignSamples(result.samples)

	startPrice := trades[0].Price
	endPrice := trades[len(trades)-1].Price
	highPrice := trades[0].Price
	lowPrice := trades[0].Price
	for _, trade := range trades[1:] {
		if trade.Price.Cmp(highPrice) > 0 {
			highPrice = trade.Price
		}
		if trade.Price.Cmp(lowPrice) < 0 {
			lowPrice = trade.Price
		}
	}

	// Uncompounded return of the whole run, in the quote token.
	uRate, err := decmath.SafeDiv(result.endNetValue.Sub(result.startNetValue), result.startNetValue)
	if err != nil {
		return nil, fmt.Errorf("uncompounded rate: %w", err)
	}

	// Hodl benchmark: the same net value held through the price move.
	startB, err := decmath.SafeDiv(result.startNetValue, startPrice)
	if err != nil {
		return nil, fmt.Errorf("hodl basis: %w", err)
	}
	endB, err := decmath.SafeDiv(result.endNetValue, endPrice)
	if err != nil {
		return nil, fmt.Errorf("hodl close: %w", err)
	}
	bRate, err := decmath.SafeDiv(endB.Sub(startB), startB)
	if err != nil {
		return nil, fmt.Errorf("hodl rate: %w", err)
	}

	t0 := decmath.ToHuman(result.totalComm0, pool.Decimal0)
	t1 := decmath.ToHuman(result.totalComm1, pool.Decimal1)
	s0 := decmath.ToHuman(result.start0, pool.Decimal0)
	s1 := decmath.ToHuman(result.start1, pool.Decimal1)

	var cuRate, realRate decimal.Decimal
	one := decimal.NewFromInt(1)
	if pool.Reversed() {
		cuRate, err = decmath.SafeDiv(t0.Add(t1.Mul(result.lastPrice)), result.startNetValue)
		if err != nil {
			return nil, fmt.Errorf("commission rate: %w", err)
		}
		realRate, err = decmath.SafeDiv(result.endNetValue, s0.Add(s1.Mul(result.lastPrice)))
	} else {
		cuRate, err = decmath.SafeDiv(t1.Add(t0.Mul(result.lastPrice)), result.startNetValue)
		if err != nil {
			return nil, fmt.Errorf("commission rate: %w", err)
		}
		realRate, err = decmath.SafeDiv(result.endNetValue, s1.Add(s0.Mul(result.lastPrice)))
	}
	if err != nil {
		return nil, fmt.Errorf("real rate: %w", err)
	}
	realRate = realRate.Sub(one)

	daysDec := decimal.NewFromInt(days)
	annualize := func(rate decimal.Decimal) (decimal.Decimal, error) {
		return decmath.SafeDiv(rate.Mul(daysPerYear), daysDec)
	}
	realAPR, err := annualize(realRate)
	if err != nil {
		return nil, fmt.Errorf("real apr: %w", err)
	}
	cuAPR, err := annualize(cuRate)
	if err != nil {
		return nil, fmt.Errorf("commission apr: %w", err)
	}
	uAPR, err := annualize(uRate)
	if err != nil {
		return nil, fmt.Errorf("uncompounded apr: %w", err)
	}
	bAPR, err := annualize(bRate)
	if err != nil {
		return nil, fmt.Errorf("hodl apr: %w", err)
	}

	rawIms := make([]decimal.Decimal, len(result.samples))
	for i, s := range result.samples {
		rawIms[i] = s.im
	}
	drawdown, err := maxDrawdown(rawIms)
	if err != nil {
		return nil, fmt.Errorf("max drawdown: %w", err)
	}

	alignedIms := make([]decimal.Decimal, len(aligned))
	for i, s := range aligned {
		alignedIms[i] = s.im
	}
	vol, err := volatility(alignedIms)
	if err != nil {
		return nil, fmt.Errorf("volatility: %w", err)
	}
	sharpe, err := decmath.SafeDiv(realAPR, vol)
	if err != nil {
		return nil, fmt.Errorf("sharpe: %w", err)
	}

	tsList := make([]string, len(aligned))
	imList := make([]string, len(aligned))
	for i, s := range aligned {
		tsList[i] = strconv.FormatInt(s.ts, 10)
		imList[i] = s.im.String()
	}

	name := fmt.Sprintf("%s_%d_%d", params.Pair, time.Now().Unix(), reportSeq.Add(1)-1)

	return &model.Report{
		ReportName: name,
		BaseInfo: model.BaseInfo{
			StartTs:   strconv.FormatInt(params.StartTs, 10),
			EndTs:     strconv.FormatInt(endTs, 10),
			LowerRate: strconv.FormatInt(params.BoundaryThreshold, 10),
			UpperRate: strconv.FormatInt(params.BoundaryThreshold, 10),
			RebRate:   strconv.FormatInt(params.ReBalanceThreshold, 10),
			Tier:      decmath.Plain(pool.SwapFee),
			Token0:    pool.Token0,
			Token1:    pool.Token1,
			Decimal0:  strconv.Itoa(pool.Decimal0),
			Decimal1:  strconv.Itoa(pool.Decimal1),
		},
		TsList:    tsList,
		ImList:    imList,
		TradeInfo: result.events,
		MarketInfo: model.MarketInfo{
			Open:  startPrice.String(),
			Close: endPrice.String(),
			High:  highPrice.String(),
			Low:   lowPrice.String(),
		},
		GlobalInfo: model.GlobalInfo{
			Commission: [2]string{t0.String(), t1.String()},
			SwapFee: [2]string{
				decmath.ToHuman(result.swapFee0, pool.Decimal0).String(),
				decmath.ToHuman(result.swapFee1, pool.Decimal1).String(),
			},
			ReBalanceTime: [2]int{result.reUp, result.reDown},
			Rate:          [4]string{realRate.String(), cuRate.String(), uRate.String(), bRate.String()},
			Apr:           [4]string{realAPR.String(), cuAPR.String(), uAPR.String(), bAPR.String()},
		},
		RiskInfo: model.RiskInfo{
			MaxDrawDown: drawdown.String(),
			Volatility:  vol.String(),
			Sharpe:      sharpe.String(),
			WinRate:     winRate(result.reUp, result.reDown, result.reWin).String(),
		},
	}, nil
}

// alignSamples snaps each NAV observation to the top of its hour, keeping
// the last observation per hour, ordered by time.
func alignSamples(samples []navSample) []navSample {
	byHour := make(map[int64]decimal.Decimal, len(samples))
	for _, s := range samples {
		byHour[decmath.AlignHour(s.ts)] = s.im
	}

	aligned := make([]navSample, 0, len(byHour))
	for ts, im := range byHour {
		aligned = append(aligned, navSample{ts: ts, im: im})
	}
	sort.Slice(aligned, func(i, j int) bool {
		return aligned[i].ts < aligned[j].ts
	})
	return aligned
}
