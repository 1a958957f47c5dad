package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"krakenOrderTracker/internal/domain"
	"krakenOrderTracker/internal/events"
	"krakenOrderTracker/internal/ports"
)

// ProcessFill folds one trade execution into its parent order: executed
// volume, volume-weighted average price, fees, fill count and timestamps,
// then the partial/full state transition the new totals imply. Trades are
// deduplicated by trade id, so redelivered executions never double-count.
// Terminal orders are never mutated. When a fill journal is attached the
// fill is recorded there as well; journal failures are logged, never fatal.
func (m *Manager) ProcessFill(ctx context.Context, fill *domain.Fill) error {
	op := "ProcessFill"
	if !m.IsEnabled() {
		m.logger.Debug(ctx, op+": manager disabled, dropping fill", map[string]interface{}{"tradeID": fillTradeID(fill)})
		return ports.ErrManagerDisabled
	}
	if fill == nil || fill.TradeID == "" || !fill.Volume.IsPositive() {
		m.logger.Warn(ctx, op+": discarding malformed fill", map[string]interface{}{"tradeID": fillTradeID(fill)})
		return fmt.Errorf("%w: fill must carry a trade id and positive volume", ports.ErrMalformedMessage)
	}
	entry := m.lookup(fill.OrderID)
	if entry == nil {
		m.logger.Info(ctx, op+": trade references untracked order", map[string]interface{}{
			"tradeID": fill.TradeID,
			"orderID": fill.OrderID,
		})
		return fmt.Errorf("%w: %s", ports.ErrUnknownOrder, fill.OrderID)
	}

	fillEvent, change, err := m.applyFill(ctx, entry, fill)
	if err != nil {
		return err
	}
	m.dispatcher.TriggerFill(ctx, *fillEvent)
	if change != nil {
		m.dispatcher.TriggerStateChange(ctx, *change)
	}
	return nil
}

// applyFill performs the locked read-modify-write for one trade and returns
// the events to dispatch once the entry lock is released. The dedup check
// and the seen-trade insert are separated, but both run under the entry
// lock of the one order the trade id can belong to, so a redelivered trade
// cannot slip between them.
func (m *Manager) applyFill(ctx context.Context, entry *orderEntry, fill *domain.Fill) (*events.FillEvent, *events.StateChange, error) {
	op := "ProcessFill"
	entry.mu.Lock()
	defer entry.mu.Unlock()
	order := entry.order

	m.mu.Lock()
	if _, dup := m.seenTrades[fill.TradeID]; dup {
		m.stats.DuplicateFills++
		m.mu.Unlock()
		m.logger.Debug(ctx, op+": duplicate trade id, skipping", map[string]interface{}{
			"tradeID": fill.TradeID,
			"orderID": fill.OrderID,
		})
		return nil, nil, fmt.Errorf("%w: %s", ports.ErrDuplicateTrade, fill.TradeID)
	}
	m.mu.Unlock()

	if order.IsTerminal() {
		m.logger.Warn(ctx, op+": discarding fill for terminal order", map[string]interface{}{
			"tradeID": fill.TradeID,
			"orderID": fill.OrderID,
			"state":   string(order.CurrentState),
		})
		return nil, nil, fmt.Errorf("%w: order %s is already %s", ports.ErrIllegalTransition, fill.OrderID, order.CurrentState)
	}

	ts := fill.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	applied := fill.Volume
	if order.VolumeExecuted.Add(applied).GreaterThan(order.Volume) {
		applied = order.Volume.Sub(order.VolumeExecuted)
		m.logger.Warn(ctx, op+": fill overshoots requested volume, clamping", map[string]interface{}{
			"tradeID":    fill.TradeID,
			"orderID":    fill.OrderID,
			"fillVolume": fill.Volume.String(),
			"applied":    applied.String(),
		})
	}
	if applied.IsPositive() {
		notional := order.AvgFillPrice.Mul(order.VolumeExecuted)
		order.VolumeExecuted = order.VolumeExecuted.Add(applied)
		order.AvgFillPrice = notional.Add(fill.Price.Mul(applied)).Div(order.VolumeExecuted)
	}
	order.TotalFeesPaid = order.TotalFeesPaid.Add(fill.Fee)
	order.FillCount++
	if order.FirstFillAt.IsZero() {
		order.FirstFillAt = ts
	}
	order.LastFillAt = ts
	order.LastUpdate = ts

	var change *events.StateChange
	target := domain.StatePartiallyFilled
	if order.VolumeExecuted.GreaterThanOrEqual(order.Volume) {
		target = domain.StateFilled
	}
	if target != order.CurrentState {
		if domain.IsValidTransition(order.CurrentState, target) {
			from := order.CurrentState
			event := order.Transition(target, "trade execution "+fill.TradeID, ts)
			if event == domain.EventReset {
				m.logger.Warn(ctx, op+": transition has no mapped lifecycle event", map[string]interface{}{
					"orderID": fill.OrderID,
					"from":    string(from),
					"to":      string(target),
				})
			}
			m.countTransition(target)
			change = &events.StateChange{OldState: from, NewState: target, Event: event}
		} else {
			// A fill before the exchange ack lands here: the volume is
			// booked, the state catches up on the next snapshot.
			m.logger.Warn(ctx, op+": fill implies illegal transition, state unchanged", map[string]interface{}{
				"orderID": fill.OrderID,
				"from":    string(order.CurrentState),
				"to":      string(target),
			})
		}
	}

	m.mu.Lock()
	m.seenTrades[fill.TradeID] = struct{}{}
	m.stats.FillsProcessed++
	m.stats.LastFillTime = ts
	m.mu.Unlock()

	if m.journal != nil {
		if _, err := m.journal.RecordFill(ctx, fill); err != nil {
			if errors.Is(err, ports.ErrDuplicateEntry) {
				m.logger.Debug(ctx, op+": fill already journaled", map[string]interface{}{"tradeID": fill.TradeID})
			} else {
				m.logger.Error(ctx, err, op+": failed to journal fill", map[string]interface{}{"tradeID": fill.TradeID})
			}
		}
	}

	m.logger.Info(ctx, op+": fill applied", map[string]interface{}{
		"tradeID":        fill.TradeID,
		"orderID":        fill.OrderID,
		"volume":         fill.Volume.String(),
		"price":          fill.Price.String(),
		"volumeExecuted": order.VolumeExecuted.String(),
		"state":          string(order.CurrentState),
	})

	snapshot := order.Clone()
	if change != nil {
		change.Order = snapshot
	}
	return &events.FillEvent{Fill: fill, Order: snapshot}, change, nil
}

func fillTradeID(fill *domain.Fill) string {
	if fill == nil {
		return ""
	}
	return fill.TradeID
}
