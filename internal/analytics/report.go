package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingStats are pace and outcome statistics derived from the running
// aggregate at read time.
type TradingStats struct {
	TotalTrades   int64           `json:"total_trades"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	WinRate       float64         `json:"win_rate"`
	AvgTradePnL   decimal.Decimal `json:"avg_trade_pnl"`
	TradesPerHour float64         `json:"trades_per_hour"`
	FirstTradeAt  *time.Time      `json:"first_trade_at,omitempty"`
	LastTradeAt   *time.Time      `json:"last_trade_at,omitempty"`
}

// ExecutionQuality summarizes the rolling slippage window. Slippage is
// per-unit adverse price movement; negative values are improvements.
type ExecutionQuality struct {
	WindowSize     int             `json:"window_size"`
	SampleCount    int             `json:"sample_count"`
	AvgSlippage    decimal.Decimal `json:"avg_slippage"`
	WorstSlippage  decimal.Decimal `json:"worst_slippage"`
	BestSlippage   decimal.Decimal `json:"best_slippage"`
	SlippageStdDev float64         `json:"slippage_std_dev"`
}

// Dashboard is the real-time analytics view. PnLSummary is the raw
// aggregate; TradingStats and ExecutionQuality are derived at read time.
type Dashboard struct {
	PnLSummary       RealTimePnL      `json:"pnl_summary"`
	TradingStats     TradingStats     `json:"trading_stats"`
	ExecutionQuality ExecutionQuality `json:"execution_quality"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// ReportSummary holds the windowed performance statistics.
type ReportSummary struct {
	Trades      int64           `json:"trades"`
	Volume      decimal.Decimal `json:"volume"`
	Fees        decimal.Decimal `json:"fees"`
	NetPnL      decimal.Decimal `json:"net_pnl"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	// GrossLoss is the loss magnitude, reported positive.
	GrossLoss    decimal.Decimal `json:"gross_loss"`
	ProfitFactor float64         `json:"profit_factor"`
	SharpeRatio  float64         `json:"sharpe_ratio"`
	WinRate      float64         `json:"win_rate"`
	BestTrade    decimal.Decimal `json:"best_trade"`
	WorstTrade   decimal.Decimal `json:"worst_trade"`
}

// QualityAnalysis recomputes execution quality over the report window.
type QualityAnalysis struct {
	AvgSlippage    decimal.Decimal `json:"avg_slippage"`
	WorstSlippage  decimal.Decimal `json:"worst_slippage"`
	BestSlippage   decimal.Decimal `json:"best_slippage"`
	AvgImprovement decimal.Decimal `json:"avg_improvement"`
	ImprovedFills  int64           `json:"improved_fills"`
	AdverseFills   int64           `json:"adverse_fills"`
}

// PerformanceReport is a point-in-time recomputation over the fill history
// restricted to a window.
type PerformanceReport struct {
	Window      time.Duration     `json:"window_ns"`
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	Summary     ReportSummary     `json:"summary_statistics"`
	Quality     QualityAnalysis   `json:"quality_analysis"`
	Records     []ExecutionRecord `json:"-"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// GetRealTimeDashboard assembles the dashboard from current aggregates.
// Pure read, no side effects.
func (e *Engine) GetRealTimeDashboard() Dashboard {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	stats := TradingStats{
		TotalTrades: e.pnl.TotalTrades,
		TotalVolume: e.pnl.TotalVolume,
	}
	decided := e.pnl.WinCount + e.pnl.LossCount
	if decided > 0 {
		stats.WinRate = float64(e.pnl.WinCount) / float64(decided)
	}
	if e.pnl.TotalTrades > 0 {
		stats.AvgTradePnL = e.pnl.RealizedPnL.Div(decimal.NewFromInt(e.pnl.TotalTrades))
		first := e.history[0].Time
		last := e.history[len(e.history)-1].Time
		stats.FirstTradeAt = &first
		stats.LastTradeAt = &last
		if elapsed := now.Sub(e.sessionStart).Hours(); elapsed > 0 {
			stats.TradesPerHour = float64(e.pnl.TotalTrades) / elapsed
		}
	}

	quality := ExecutionQuality{
		WindowSize:  e.slippage.Capacity(),
		SampleCount: e.slippage.Count(),
	}
	if quality.SampleCount > 0 {
		quality.AvgSlippage = e.slippage.Mean()
		quality.WorstSlippage = e.slippage.Max()
		quality.BestSlippage = e.slippage.Min()
		quality.SlippageStdDev = e.slippage.StdDev()
	}

	return Dashboard{
		PnLSummary:       e.pnl,
		TradingStats:     stats,
		ExecutionQuality: quality,
		GeneratedAt:      now,
	}
}

// GetPerformanceReport recomputes performance statistics over the fills
// whose time falls inside the trailing window. A non-positive window means
// the whole retained history. Engine state is not mutated.
func (e *Engine) GetPerformanceReport(window time.Duration) PerformanceReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	from := time.Time{}
	if window > 0 {
		from = now.Add(-window)
	}

	records := make([]ExecutionRecord, 0, len(e.history))
	for _, rec := range e.history {
		if window > 0 && rec.Time.Before(from) {
			continue
		}
		records = append(records, rec)
	}

	report := PerformanceReport{
		Window:      window,
		From:        from,
		To:          now,
		Records:     records,
		GeneratedAt: now,
	}
	if len(records) == 0 {
		return report
	}

	deltas := make([]decimal.Decimal, 0, len(records))
	var wins int64
	summary := ReportSummary{
		BestTrade:  records[0].RealizedDelta,
		WorstTrade: records[0].RealizedDelta,
	}
	quality := QualityAnalysis{
		WorstSlippage: records[0].Slippage,
		BestSlippage:  records[0].Slippage,
	}
	slippageSum := decimal.Zero
	improvementSum := decimal.Zero

	for _, rec := range records {
		summary.Trades++
		summary.Volume = summary.Volume.Add(rec.Volume)
		summary.Fees = summary.Fees.Add(rec.Fee)
		summary.NetPnL = summary.NetPnL.Add(rec.RealizedDelta)
		deltas = append(deltas, rec.RealizedDelta)

		switch {
		case rec.RealizedDelta.IsPositive():
			summary.GrossProfit = summary.GrossProfit.Add(rec.RealizedDelta)
			wins++
		case rec.RealizedDelta.IsNegative():
			summary.GrossLoss = summary.GrossLoss.Add(rec.RealizedDelta.Neg())
		}
		if rec.RealizedDelta.GreaterThan(summary.BestTrade) {
			summary.BestTrade = rec.RealizedDelta
		}
		if rec.RealizedDelta.LessThan(summary.WorstTrade) {
			summary.WorstTrade = rec.RealizedDelta
		}

		slippageSum = slippageSum.Add(rec.Slippage)
		improvementSum = improvementSum.Add(rec.PriceImprovement)
		if rec.Slippage.GreaterThan(quality.WorstSlippage) {
			quality.WorstSlippage = rec.Slippage
		}
		if rec.Slippage.LessThan(quality.BestSlippage) {
			quality.BestSlippage = rec.Slippage
		}
		if rec.PriceImprovement.IsPositive() {
			quality.ImprovedFills++
		}
		if rec.Slippage.IsPositive() {
			quality.AdverseFills++
		}
	}

	count := decimal.NewFromInt(summary.Trades)
	quality.AvgSlippage = slippageSum.Div(count)
	quality.AvgImprovement = improvementSum.Div(count)

	if summary.GrossLoss.IsPositive() {
		ratio, _ := summary.GrossProfit.Div(summary.GrossLoss).Float64()
		summary.ProfitFactor = ratio
	}
	summary.SharpeRatio = sharpeRatio(deltas)
	summary.WinRate = float64(wins) / float64(summary.Trades)

	report.Summary = summary
	report.Quality = quality
	return report
}

// RecentExecutions returns up to n most recent execution records, newest
// last.
func (e *Engine) RecentExecutions(n int) []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n <= 0 || n > len(e.history) {
		n = len(e.history)
	}
	out := make([]ExecutionRecord, n)
	copy(out, e.history[len(e.history)-n:])
	return out
}
