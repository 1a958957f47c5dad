package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMonitorDrawdown(t *testing.T) {
	config := RiskConfig{
		MaxDrawdownPct: dec("0.5"), // alert when half the peak is given back
	}
	monitor := NewMonitor(config)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Build a peak of 100.
	alerts := monitor.Evaluate(ctx, "XBT/USD", dec("1"), dec("100"), ts)
	if len(alerts) != 0 {
		t.Errorf("Expected no alerts at peak, got %v", alerts)
	}

	// Fall to 55: drawdown 45% of peak, 90% of the 50% limit -> warning.
	alerts = monitor.Evaluate(ctx, "XBT/USD", dec("1"), dec("55"), ts.Add(time.Minute))
	if len(alerts) != 1 {
		t.Fatalf("Expected one alert, got %d", len(alerts))
	}
	if alerts[0].Level != LevelWarning || alerts[0].Rule != RuleMaxDrawdown {
		t.Errorf("Expected drawdown warning, got %+v", alerts[0])
	}

	// Same level again: no repeat alert.
	alerts = monitor.Evaluate(ctx, "XBT/USD", dec("1"), dec("56"), ts.Add(2*time.Minute))
	if len(alerts) != 0 {
		t.Errorf("Expected no repeat warning, got %v", alerts)
	}

	// Fall to 40: drawdown 60% of peak, limit breached -> critical.
	alerts = monitor.Evaluate(ctx, "XBT/USD", dec("1"), dec("40"), ts.Add(3*time.Minute))
	if len(alerts) != 1 {
		t.Fatalf("Expected one alert, got %d", len(alerts))
	}
	if alerts[0].Level != LevelCritical {
		t.Errorf("Expected critical, got %s", alerts[0].Level)
	}

	// Recover above the warning band, then fall again: the rule re-arms.
	alerts = monitor.Evaluate(ctx, "XBT/USD", dec("1"), dec("95"), ts.Add(4*time.Minute))
	if len(alerts) != 0 {
		t.Errorf("Expected no alerts on recovery, got %v", alerts)
	}
	alerts = monitor.Evaluate(ctx, "XBT/USD", dec("1"), dec("30"), ts.Add(5*time.Minute))
	if len(alerts) != 1 || alerts[0].Level != LevelCritical {
		t.Errorf("Expected critical after re-arm, got %v", alerts)
	}
}

func TestMonitorPositionSize(t *testing.T) {
	config := RiskConfig{
		MaxPositionSize: dec("10"),
	}
	monitor := NewMonitor(config)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// 7 of 10: below the warning band.
	alerts := monitor.Evaluate(ctx, "XBT/USD", dec("7"), dec("0"), ts)
	if len(alerts) != 0 {
		t.Errorf("Expected no alerts at 70%% usage, got %v", alerts)
	}

	// 8 of 10 cumulative: warning.
	alerts = monitor.Evaluate(ctx, "XBT/USD", dec("1"), dec("0"), ts)
	if len(alerts) != 1 || alerts[0].Level != LevelWarning || alerts[0].Rule != RuleMaxPositionSize {
		t.Fatalf("Expected position size warning, got %v", alerts)
	}

	// Another pair accumulates volume independently.
	alerts = monitor.Evaluate(ctx, "ETH/USD", dec("7"), dec("0"), ts)
	if len(alerts) != 0 {
		t.Errorf("Expected no alerts for a fresh pair, got %v", alerts)
	}

	// 10 of 10 cumulative on the first pair: critical.
	alerts = monitor.Evaluate(ctx, "XBT/USD", dec("2"), dec("0"), ts)
	if len(alerts) != 1 || alerts[0].Level != LevelCritical {
		t.Fatalf("Expected position size critical, got %v", alerts)
	}

	status := monitor.Status()
	if !status.PositionSizes["XBT/USD"].Equal(dec("10")) {
		t.Errorf("Expected cumulative 10 on XBT/USD, got %s", status.PositionSizes["XBT/USD"])
	}
	if !status.PositionSizes["ETH/USD"].Equal(dec("7")) {
		t.Errorf("Expected cumulative 7 on ETH/USD, got %s", status.PositionSizes["ETH/USD"])
	}
}

func TestMonitorDailyLoss(t *testing.T) {
	config := RiskConfig{
		MaxDailyLoss: dec("100"),
	}
	monitor := NewMonitor(config)
	ctx := context.Background()
	day1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Lose 85 on day one: warning.
	alerts := monitor.Evaluate(ctx, "XBT/USD", dec("1"), dec("-85"), day1)
	if len(alerts) != 1 || alerts[0].Level != LevelWarning || alerts[0].Rule != RuleMaxDailyLoss {
		t.Fatalf("Expected daily loss warning, got %v", alerts)
	}

	// Lose 120 total: critical.
	alerts = monitor.Evaluate(ctx, "XBT/USD", dec("1"), dec("-120"), day1.Add(time.Hour))
	if len(alerts) != 1 || alerts[0].Level != LevelCritical {
		t.Fatalf("Expected daily loss critical, got %v", alerts)
	}

	// Next UTC day: the baseline resets to -120, small further loss is fine.
	day2 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	alerts = monitor.Evaluate(ctx, "XBT/USD", dec("1"), dec("-130"), day2)
	if len(alerts) != 0 {
		t.Errorf("Expected no alerts after day boundary reset, got %v", alerts)
	}

	status := monitor.Status()
	if !status.DailyLoss.Equal(dec("10")) {
		t.Errorf("Expected daily loss 10 after reset, got %s", status.DailyLoss)
	}
}

func TestMonitorDisabledRules(t *testing.T) {
	// Zero limits disable every rule.
	monitor := NewMonitor(RiskConfig{})
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	alerts := monitor.Evaluate(ctx, "XBT/USD", dec("1000000"), dec("-1000000"), ts)
	if len(alerts) != 0 {
		t.Errorf("Expected no alerts with zero limits, got %v", alerts)
	}
}

func TestMonitorReset(t *testing.T) {
	config := RiskConfig{
		MaxPositionSize: dec("10"),
		MaxDrawdownPct:  dec("0.5"),
	}
	monitor := NewMonitor(config)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	monitor.Evaluate(ctx, "XBT/USD", dec("9"), dec("100"), ts)
	monitor.Reset()

	status := monitor.Status()
	if !status.PeakPnL.IsZero() {
		t.Errorf("Expected peak PnL cleared, got %s", status.PeakPnL)
	}
	if len(status.PositionSizes) != 0 {
		t.Errorf("Expected position sizes cleared, got %v", status.PositionSizes)
	}

	// After reset the same exposure alerts again from scratch.
	alerts := monitor.Evaluate(ctx, "XBT/USD", dec("9"), dec("0"), ts.Add(time.Minute))
	if len(alerts) != 1 || alerts[0].Level != LevelWarning {
		t.Errorf("Expected warning after reset, got %v", alerts)
	}
}
