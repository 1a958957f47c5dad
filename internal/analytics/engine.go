// Package analytics maintains the real-time trading performance view:
// running PnL aggregates, execution-quality metrics and risk alerts, all
// driven by fill events. The engine owns its aggregates exclusively;
// nothing else mutates them.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"krakenOrderTracker/internal/domain"
	"krakenOrderTracker/internal/ports"
	"krakenOrderTracker/internal/risk"
)

const (
	defaultHistoryLimit  = 10000
	defaultQualityWindow = 100
)

// RealTimePnL is the running aggregate mutated only by the fill path.
// UnrealizedPnL is carried for completeness of the summary shape; this
// engine books fills as realized and holds no open marks.
type RealTimePnL struct {
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalTrades   int64           `json:"total_trades"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	TotalFees     decimal.Decimal `json:"total_fees"`
	WinCount      int64           `json:"win_count"`
	LossCount     int64           `json:"loss_count"`
}

// ExecutionRecord is one fill enriched with execution-quality derivations
// against the reference price.
type ExecutionRecord struct {
	TradeID        string          `json:"trade_id"`
	OrderID        string          `json:"order_id"`
	Pair           string          `json:"pair"`
	Side           string          `json:"side"`
	Volume         decimal.Decimal `json:"volume"`
	Price          decimal.Decimal `json:"price"`
	Fee            decimal.Decimal `json:"fee"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	// Slippage is the adverse price move per unit: fill above reference
	// for buys, below it for sells. Negative slippage is an improvement.
	Slippage         decimal.Decimal `json:"slippage"`
	PriceImprovement decimal.Decimal `json:"price_improvement"`
	RealizedDelta    decimal.Decimal `json:"realized_delta"`
	Time             time.Time       `json:"time"`
}

// AlertHandler receives risk alerts raised on the fill path.
type AlertHandler func(ctx context.Context, alert risk.Alert)

// Config holds the dependencies and tuning for the analytics engine.
type Config struct {
	Logger ports.Logger
	// RefPrices supplies the reference price for execution-quality
	// metrics. When nil the fill price is its own reference and slippage
	// is zero by construction.
	RefPrices     ports.ReferencePriceSource
	Risk          risk.RiskConfig
	HistoryLimit  int // max execution records kept, default 10000
	QualityWindow int // rolling slippage window, default 100
}

// Engine is the real-time analytics engine.
type Engine struct {
	logger    ports.Logger
	refPrices ports.ReferencePriceSource

	mu            sync.Mutex
	pnl           RealTimePnL
	history       []ExecutionRecord
	historyLimit  int
	slippage      *RollingStats
	monitor       *risk.Monitor
	sessionStart  time.Time
	alertHandlers []AlertHandler
}

// NewEngine creates an analytics engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for analytics engine")
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	qualityWindow := cfg.QualityWindow
	if qualityWindow <= 0 {
		qualityWindow = defaultQualityWindow
	}
	return &Engine{
		logger:       cfg.Logger,
		refPrices:    cfg.RefPrices,
		historyLimit: historyLimit,
		slippage:     NewRollingStats(qualityWindow),
		monitor:      risk.NewMonitor(cfg.Risk),
		sessionStart: time.Now(),
	}, nil
}

// OnRiskAlert registers a handler for risk alerts. Handlers run
// synchronously in registration order after the aggregates have been
// updated; a panicking handler is recovered and logged.
func (e *Engine) OnRiskAlert(handler AlertHandler) {
	e.mu.Lock()
	e.alertHandlers = append(e.alertHandlers, handler)
	e.mu.Unlock()
}

// ProcessFill folds one fill into the aggregates: execution record, PnL,
// rolling quality stats and risk evaluation. The realized delta is
// (fill − reference) × volume − fee, with the base term positive for sells
// and negated for buys.
func (e *Engine) ProcessFill(ctx context.Context, fill *domain.Fill) {
	op := "ProcessFill"
	if fill == nil || !fill.Volume.IsPositive() {
		e.logger.Debug(ctx, op+": ignoring empty fill")
		return
	}

	// Resolve the reference before taking the lock; sources may hit the
	// network (with their own caching).
	ref := e.referencePrice(ctx, fill)

	var base, slippage decimal.Decimal
	if fill.Side == domain.Sell {
		base = fill.Price.Sub(ref).Mul(fill.Volume)
		slippage = ref.Sub(fill.Price)
	} else {
		base = ref.Sub(fill.Price).Mul(fill.Volume)
		slippage = fill.Price.Sub(ref)
	}
	delta := base.Sub(fill.Fee)
	improvement := decimal.Zero
	if slippage.IsNegative() {
		improvement = slippage.Neg()
	}

	ts := fill.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	record := ExecutionRecord{
		TradeID:          fill.TradeID,
		OrderID:          fill.OrderID,
		Pair:             fill.Pair,
		Side:             string(fill.Side),
		Volume:           fill.Volume,
		Price:            fill.Price,
		Fee:              fill.Fee,
		ReferencePrice:   ref,
		Slippage:         slippage,
		PriceImprovement: improvement,
		RealizedDelta:    delta,
		Time:             ts,
	}

	e.mu.Lock()
	e.history = append(e.history, record)
	if len(e.history) > e.historyLimit {
		e.history = append(e.history[:0], e.history[len(e.history)-e.historyLimit:]...)
	}
	e.slippage.Add(slippage)

	e.pnl.TotalTrades++
	e.pnl.TotalVolume = e.pnl.TotalVolume.Add(fill.Volume)
	e.pnl.TotalFees = e.pnl.TotalFees.Add(fill.Fee)
	e.pnl.RealizedPnL = e.pnl.RealizedPnL.Add(delta)
	e.pnl.TotalPnL = e.pnl.RealizedPnL.Add(e.pnl.UnrealizedPnL)
	if delta.IsPositive() {
		e.pnl.WinCount++
	} else if delta.IsNegative() {
		e.pnl.LossCount++
	}

	alerts := e.monitor.Evaluate(ctx, fill.Pair, fill.Volume, e.pnl.TotalPnL, ts)
	handlers := make([]AlertHandler, len(e.alertHandlers))
	copy(handlers, e.alertHandlers)
	e.mu.Unlock()

	e.logger.Debug(ctx, op+": fill processed", map[string]interface{}{
		"tradeID":       fill.TradeID,
		"realizedDelta": delta.String(),
		"slippage":      slippage.String(),
	})

	for _, alert := range alerts {
		e.logger.Warn(ctx, op+": risk alert", map[string]interface{}{
			"level":   string(alert.Level),
			"rule":    alert.Rule,
			"message": alert.Message,
		})
		for _, handler := range handlers {
			e.invokeAlertHandler(ctx, handler, alert)
		}
	}
}

// invokeAlertHandler runs one alert callback with panic isolation so a
// failing consumer cannot poison the fill path.
func (e *Engine) invokeAlertHandler(ctx context.Context, handler AlertHandler, alert risk.Alert) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error(ctx, fmt.Errorf("alert handler panic: %v", rec), "Risk alert handler failed", map[string]interface{}{
				"rule": alert.Rule,
			})
		}
	}()
	handler(ctx, alert)
}

// referencePrice resolves the reference for a fill, falling back to the
// fill's own price when no source is configured or the source fails.
func (e *Engine) referencePrice(ctx context.Context, fill *domain.Fill) decimal.Decimal {
	if e.refPrices == nil {
		return fill.Price
	}
	ref, err := e.refPrices.GetReferencePrice(ctx, fill.Pair)
	if err != nil || !ref.IsPositive() {
		if err != nil {
			e.logger.Debug(ctx, "Reference price unavailable, using fill price", map[string]interface{}{
				"pair":  fill.Pair,
				"error": err.Error(),
			})
		}
		return fill.Price
	}
	return ref
}

// GetRealTimePnL returns a copy of the running aggregate.
func (e *Engine) GetRealTimePnL() RealTimePnL {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pnl
}

// RiskStatus returns the risk monitor's current tracking state.
func (e *Engine) RiskStatus() risk.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitor.Status()
}

// ResetSessionMetrics clears the fill history and zeroes every aggregate,
// including risk tracking. Used at session boundaries, never implicitly.
func (e *Engine) ResetSessionMetrics() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pnl = RealTimePnL{}
	e.history = nil
	e.slippage.Reset()
	e.monitor.Reset()
	e.sessionStart = time.Now()
}
