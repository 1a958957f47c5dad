// Package risk evaluates trading thresholds against the analytics
// engine's running aggregates and produces leveled alerts.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RiskConfig holds the configured limits. A zero limit disables its rule.
type RiskConfig struct {
	MaxDrawdownPct  decimal.Decimal // fraction of peak PnL given back, 0..1
	MaxPositionSize decimal.Decimal // cumulative executed volume per pair
	MaxDailyLoss    decimal.Decimal // quote-currency loss within one UTC day
}

// AlertLevel grades an alert.
type AlertLevel string

const (
	LevelWarning  AlertLevel = "warning"  // at or above warnFraction of a limit
	LevelCritical AlertLevel = "critical" // limit breached
)

// warnFraction is the share of a limit at which a warning fires.
var warnFraction = decimal.RequireFromString("0.8")

// Rule names used in alerts and for per-rule level tracking.
const (
	RuleMaxDrawdown     = "max_drawdown"
	RuleMaxPositionSize = "max_position_size"
	RuleMaxDailyLoss    = "max_daily_loss"
)

// Alert is one threshold notification.
type Alert struct {
	Level     AlertLevel `json:"level"`
	Rule      string     `json:"rule"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// Status is a read view of the monitor's tracking state.
type Status struct {
	PeakPnL       decimal.Decimal            `json:"peak_pnl"`
	DrawdownPct   decimal.Decimal            `json:"drawdown_pct"`
	DailyLoss     decimal.Decimal            `json:"daily_loss"`
	PositionSizes map[string]decimal.Decimal `json:"position_sizes"`
}

// Monitor tracks peak PnL, per-pair exposure and the day boundary, and
// grades each configured rule after every fill. Alerts are edge-triggered:
// a rule alerts when it escalates to a new level and re-arms when usage
// falls back below that level.
//
// Monitor is not safe for concurrent use; the analytics engine serializes
// access to it on the fill path.
type Monitor struct {
	config RiskConfig

	peakPnL      decimal.Decimal
	lastTotalPnL decimal.Decimal
	dayStart     time.Time
	dayOpenPnL   decimal.Decimal
	positions    map[string]decimal.Decimal
	levels       map[string]AlertLevel
}

// NewMonitor creates a risk monitor with the given limits.
func NewMonitor(config RiskConfig) *Monitor {
	return &Monitor{
		config:    config,
		positions: make(map[string]decimal.Decimal),
		levels:    make(map[string]AlertLevel),
	}
}

// Evaluate folds one fill into the tracking state and returns the alerts it
// triggers. totalPnL is the engine's running total after the fill.
func (m *Monitor) Evaluate(ctx context.Context, pair string, fillVolume, totalPnL decimal.Decimal, ts time.Time) []Alert {
	m.rollDay(ts)

	if fillVolume.IsPositive() && pair != "" {
		m.positions[pair] = m.positions[pair].Add(fillVolume)
	}
	if totalPnL.GreaterThan(m.peakPnL) {
		m.peakPnL = totalPnL
	}
	m.lastTotalPnL = totalPnL

	var alerts []Alert

	if m.config.MaxDrawdownPct.IsPositive() && m.peakPnL.IsPositive() {
		drawdown := m.peakPnL.Sub(totalPnL).Div(m.peakPnL)
		usage := drawdown.Div(m.config.MaxDrawdownPct)
		msg := fmt.Sprintf("drawdown is %s%% of peak PnL (limit %s%%)",
			drawdown.Mul(decimal.NewFromInt(100)).StringFixed(2),
			m.config.MaxDrawdownPct.Mul(decimal.NewFromInt(100)).StringFixed(2))
		if alert := m.escalate(RuleMaxDrawdown, usage, msg, ts); alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	if m.config.MaxPositionSize.IsPositive() && pair != "" {
		usage := m.positions[pair].Div(m.config.MaxPositionSize)
		msg := fmt.Sprintf("cumulative volume %s on %s against limit %s",
			m.positions[pair], pair, m.config.MaxPositionSize)
		if alert := m.escalate(RuleMaxPositionSize+":"+pair, usage, msg, ts); alert != nil {
			alert.Rule = RuleMaxPositionSize
			alerts = append(alerts, *alert)
		}
	}

	if m.config.MaxDailyLoss.IsPositive() {
		loss := m.dayOpenPnL.Sub(totalPnL)
		if loss.IsNegative() {
			loss = decimal.Zero
		}
		usage := loss.Div(m.config.MaxDailyLoss)
		msg := fmt.Sprintf("session loss %s today against limit %s", loss, m.config.MaxDailyLoss)
		if alert := m.escalate(RuleMaxDailyLoss, usage, msg, ts); alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	return alerts
}

// rollDay resets the daily-loss baseline when ts crosses into a new UTC day.
// The baseline is the running total as of the last fill of the previous day.
func (m *Monitor) rollDay(ts time.Time) {
	day := ts.UTC().Truncate(24 * time.Hour)
	if m.dayStart.Equal(day) {
		return
	}
	m.dayStart = day
	m.dayOpenPnL = m.lastTotalPnL
	delete(m.levels, RuleMaxDailyLoss)
}

// escalate grades a rule's usage and returns an alert when the level rose.
func (m *Monitor) escalate(key string, usage decimal.Decimal, msg string, ts time.Time) *Alert {
	var level AlertLevel
	switch {
	case usage.GreaterThanOrEqual(decimal.NewFromInt(1)):
		level = LevelCritical
	case usage.GreaterThanOrEqual(warnFraction):
		level = LevelWarning
	}

	prev := m.levels[key]
	m.levels[key] = level
	if level == "" || level == prev || (prev == LevelCritical && level == LevelWarning) {
		return nil
	}
	return &Alert{Level: level, Rule: key, Message: msg, Timestamp: ts}
}

// Status returns a copy of the monitor's tracking state.
func (m *Monitor) Status() Status {
	positions := make(map[string]decimal.Decimal, len(m.positions))
	for pair, size := range m.positions {
		positions[pair] = size
	}
	drawdown := decimal.Zero
	if m.peakPnL.IsPositive() {
		drawdown = m.peakPnL.Sub(m.lastTotalPnL).Div(m.peakPnL)
	}
	loss := m.dayOpenPnL.Sub(m.lastTotalPnL)
	if loss.IsNegative() {
		loss = decimal.Zero
	}
	return Status{
		PeakPnL:       m.peakPnL,
		DrawdownPct:   drawdown,
		DailyLoss:     loss,
		PositionSizes: positions,
	}
}

// Reset clears all tracking state. Configured limits are kept.
func (m *Monitor) Reset() {
	m.peakPnL = decimal.Zero
	m.lastTotalPnL = decimal.Zero
	m.dayStart = time.Time{}
	m.dayOpenPnL = decimal.Zero
	m.positions = make(map[string]decimal.Decimal)
	m.levels = make(map[string]AlertLevel)
}
