package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"krakenOrderTracker/internal/domain"
	"krakenOrderTracker/internal/events"
	"krakenOrderTracker/internal/ports"
)

// ExchangeSnapshot is the cumulative order state carried by one openOrders
// entry: the exchange's status string plus running totals, not increments.
type ExchangeSnapshot struct {
	Status         string
	VolumeExecuted decimal.Decimal
	Cost           decimal.Decimal
	Fee            decimal.Decimal
	AvgPrice       decimal.Decimal
}

// targetState maps an exchange snapshot to the lifecycle state it implies.
// Kraken reports "open" for both untouched and partially executed orders, so
// the executed volume disambiguates.
func targetState(snap ExchangeSnapshot, requested decimal.Decimal) (domain.OrderState, error) {
	switch snap.Status {
	case "pending":
		return domain.StatePendingSubmit, nil
	case "open":
		switch {
		case !snap.VolumeExecuted.IsPositive():
			return domain.StateOpen, nil
		case requested.IsPositive() && snap.VolumeExecuted.GreaterThanOrEqual(requested):
			return domain.StateFilled, nil
		default:
			return domain.StatePartiallyFilled, nil
		}
	case "closed":
		return domain.StateFilled, nil
	case "canceled":
		return domain.StateCanceled, nil
	case "expired":
		return domain.StateExpired, nil
	}
	return "", fmt.Errorf("%w: unrecognized order status %q", ports.ErrMalformedMessage, snap.Status)
}

// SyncOrderFromExchange reconciles a tracked order against an exchange
// status snapshot. It is idempotent: a snapshot describing the state the
// order is already in is skipped without touching a single field, so
// redelivered messages leave no trace. Snapshots requiring an illegal
// transition (including anything out of a terminal state) are logged and
// discarded.
func (m *Manager) SyncOrderFromExchange(ctx context.Context, orderID string, snap ExchangeSnapshot) error {
	op := "SyncOrderFromExchange"
	if !m.IsEnabled() {
		m.logger.Debug(ctx, op+": manager disabled, dropping snapshot", map[string]interface{}{"orderID": orderID})
		return ports.ErrManagerDisabled
	}
	entry := m.lookup(orderID)
	if entry == nil {
		// Expected under multi-session scenarios: the feed reports every
		// order on the account, not only ours.
		m.logger.Info(ctx, op+": snapshot references untracked order", map[string]interface{}{
			"orderID": orderID,
			"status":  snap.Status,
		})
		return fmt.Errorf("%w: %s", ports.ErrUnknownOrder, orderID)
	}

	change, err := m.applySnapshot(ctx, entry, orderID, snap)
	if err != nil {
		return err
	}
	if change != nil {
		m.dispatcher.TriggerStateChange(ctx, *change)
	}
	return nil
}

// applySnapshot performs the locked read-modify-write for one snapshot and
// returns the state-change event to dispatch, if any. Events are triggered
// by the caller after the entry lock is released so handlers can call back
// into the manager.
func (m *Manager) applySnapshot(ctx context.Context, entry *orderEntry, orderID string, snap ExchangeSnapshot) (*events.StateChange, error) {
	op := "SyncOrderFromExchange"
	entry.mu.Lock()
	defer entry.mu.Unlock()
	order := entry.order

	target, err := targetState(snap, order.Volume)
	if err != nil {
		m.logger.Warn(ctx, op+": unrecognized exchange status, discarding snapshot", map[string]interface{}{
			"orderID": orderID,
			"status":  snap.Status,
		})
		return nil, err
	}

	if target == order.CurrentState {
		m.logger.Debug(ctx, op+": snapshot matches current state, nothing to apply", map[string]interface{}{
			"orderID": orderID,
			"state":   string(target),
		})
		return nil, nil
	}

	if !domain.IsValidTransition(order.CurrentState, target) {
		m.logger.Warn(ctx, op+": discarding snapshot requiring illegal transition", map[string]interface{}{
			"orderID": orderID,
			"from":    string(order.CurrentState),
			"to":      string(target),
			"status":  snap.Status,
		})
		return nil, fmt.Errorf("%w: %s -> %s", ports.ErrIllegalTransition, order.CurrentState, target)
	}

	// Snapshots carry cumulative totals. Executed volume only ever moves
	// up so a stale snapshot cannot roll back fills already applied.
	if snap.VolumeExecuted.GreaterThan(order.VolumeExecuted) {
		executed := snap.VolumeExecuted
		if executed.GreaterThan(order.Volume) {
			m.logger.Warn(ctx, op+": snapshot volume exceeds requested volume, clamping", map[string]interface{}{
				"orderID":  orderID,
				"reported": executed.String(),
				"volume":   order.Volume.String(),
			})
			executed = order.Volume
		}
		order.VolumeExecuted = executed
	}
	if snap.AvgPrice.IsPositive() {
		order.AvgFillPrice = snap.AvgPrice
	} else if snap.Cost.IsPositive() && order.VolumeExecuted.IsPositive() {
		order.AvgFillPrice = snap.Cost.Div(order.VolumeExecuted)
	}
	if snap.Fee.GreaterThan(order.TotalFeesPaid) {
		order.TotalFeesPaid = snap.Fee
	}

	from := order.CurrentState
	event := order.Transition(target, "exchange snapshot status="+snap.Status, time.Now())
	if event == domain.EventReset {
		m.logger.Warn(ctx, op+": transition has no mapped lifecycle event", map[string]interface{}{
			"orderID": orderID,
			"from":    string(from),
			"to":      string(target),
		})
	}
	m.countTransition(target)

	m.logger.Info(ctx, op+": order state updated", map[string]interface{}{
		"orderID":        orderID,
		"from":           string(from),
		"to":             string(target),
		"event":          string(event),
		"volumeExecuted": order.VolumeExecuted.String(),
	})

	return &events.StateChange{
		Order:    order.Clone(),
		OldState: from,
		NewState: target,
		Event:    event,
	}, nil
}
