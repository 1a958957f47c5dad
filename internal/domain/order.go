package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StateTransition is one entry in an order's lifecycle history.
// History entries are append-only and never mutated after the fact; they
// are the audit trail for every state the order has passed through.
type StateTransition struct {
	From      OrderState
	To        OrderState
	Event     TransitionEvent
	Timestamp time.Time
	Reason    string // Free-form cause, e.g. "exchange snapshot status=canceled"
}

// Order is the order aggregate tracked through its exchange lifecycle.
// It is owned exclusively by the order manager: all other components read
// through manager accessors, which hand out clones.
type Order struct {
	OrderID       string // Exchange-assigned txid, empty until submission is acknowledged
	ClientOrderID string // Locally assigned id, stable before the exchange knows the order

	Pair       string          // Trading pair, e.g. "XBT/USD"
	Side       OrderSide       // buy or sell
	Type       OrderType       // market, limit, stop-loss, take-profit
	Volume     decimal.Decimal // Requested volume in base currency
	LimitPrice decimal.Decimal // Limit price (zero unless Type is limit)
	StopPrice  decimal.Decimal // Trigger price (zero unless Type is stop-loss/take-profit)

	CurrentState   OrderState
	VolumeExecuted decimal.Decimal // Cumulative executed volume, monotonically non-decreasing
	AvgFillPrice   decimal.Decimal // Volume-weighted average of all fill prices
	TotalFeesPaid  decimal.Decimal
	FillCount      int

	CreatedAt   time.Time
	SubmittedAt time.Time // Zero until MarkSubmitted
	FirstFillAt time.Time
	LastFillAt  time.Time
	CompletedAt time.Time // Set on entry into a terminal state
	LastUpdate  time.Time

	History []StateTransition
}

// VolumeRemaining returns the volume still unexecuted.
func (o *Order) VolumeRemaining() decimal.Decimal {
	return o.Volume.Sub(o.VolumeExecuted)
}

// FillPercentage returns executed volume as a percentage of requested volume.
// A fully executed order yields exactly 100.
func (o *Order) FillPercentage() decimal.Decimal {
	if o.Volume.IsZero() {
		return decimal.Zero
	}
	return o.VolumeExecuted.Div(o.Volume).Mul(decimal.NewFromInt(100))
}

// IsTerminal reports whether the order has reached a final state.
func (o *Order) IsTerminal() bool {
	return o.CurrentState.IsTerminal()
}

// IsActive reports whether the order is still working on the exchange.
func (o *Order) IsActive() bool {
	return o.CurrentState.IsActive()
}

// CanBeCanceled reports whether a cancel request could still take effect.
func (o *Order) CanBeCanceled() bool {
	return !o.CurrentState.IsTerminal()
}

// Transition moves the order to a new state and appends the corresponding
// history entry. Legality must be checked by the caller (the manager) via
// IsValidTransition before calling; Transition itself only records.
// It returns the lifecycle event implied by the pair.
func (o *Order) Transition(to OrderState, reason string, at time.Time) TransitionEvent {
	event := EventForTransition(o.CurrentState, to)
	o.History = append(o.History, StateTransition{
		From:      o.CurrentState,
		To:        to,
		Event:     event,
		Timestamp: at,
		Reason:    reason,
	})
	o.CurrentState = to
	o.LastUpdate = at
	if to.IsTerminal() {
		o.CompletedAt = at
	}
	return event
}

// EventForLastTransition returns the event recorded with the most recent
// history entry, or EventReset when the order has no history yet.
func (o *Order) EventForLastTransition() TransitionEvent {
	if len(o.History) == 0 {
		return EventReset
	}
	return o.History[len(o.History)-1].Event
}

// Clone returns a deep copy of the order. Decimal values are immutable so a
// field copy suffices; the history slice is duplicated so callers cannot
// reach back into manager-owned state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.History = make([]StateTransition, len(o.History))
	copy(cp.History, o.History)
	return &cp
}
