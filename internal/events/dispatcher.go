// Package events decouples order-state mutation from its side effects.
// The order manager triggers events after committing a change; handlers
// (analytics, logging, monitors) observe committed state and can never
// veto or unwind it.
package events

import (
	"context"
	"fmt"
	"sync"

	"krakenOrderTracker/internal/domain"
	"krakenOrderTracker/internal/ports"
)

// EventType identifies a dispatch stream.
type EventType string

const (
	EventStateChange EventType = "state_change"
	EventFill        EventType = "fill"
	EventOrderUpdate EventType = "order_update"
)

// StateChange is the payload delivered to state-change handlers.
// Order is a snapshot taken after the transition committed.
type StateChange struct {
	Order    *domain.Order
	OldState domain.OrderState
	NewState domain.OrderState
	Event    domain.TransitionEvent
}

// FillEvent is the payload delivered to fill handlers.
// Order reflects the parent order after the fill was folded in.
type FillEvent struct {
	Fill  *domain.Fill
	Order *domain.Order
}

// OrderUpdate is the generic payload for updates that are neither a
// transition nor a fill (e.g. a same-state snapshot refresh observed on a
// channel).
type OrderUpdate struct {
	OrderID string
	Channel string
}

// HandlerID identifies a registered handler for removal.
type HandlerID int64

// StateChangeHandler receives committed state transitions.
type StateChangeHandler func(ctx context.Context, change StateChange)

// FillHandler receives processed fills.
type FillHandler func(ctx context.Context, event FillEvent)

// OrderUpdateHandler receives generic order updates.
type OrderUpdateHandler func(ctx context.Context, update OrderUpdate)

type registration[H any] struct {
	id      HandlerID
	handler H
}

// Dispatcher routes events to registered handlers synchronously and in
// registration order. A handler that panics is recovered and logged; the
// remaining handlers still run. Registration and triggering are safe for
// concurrent use.
type Dispatcher struct {
	logger ports.Logger

	mu          sync.RWMutex
	nextID      HandlerID
	stateChange []registration[StateChangeHandler]
	fill        []registration[FillHandler]
	orderUpdate []registration[OrderUpdateHandler]
}

// NewDispatcher creates a dispatcher. The logger is required: handler
// failures have nowhere else to go.
func NewDispatcher(logger ports.Logger) (*Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for event dispatcher")
	}
	return &Dispatcher{logger: logger}, nil
}

// AddStateChangeHandler registers a handler for state-change events.
func (d *Dispatcher) AddStateChangeHandler(h StateChangeHandler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.stateChange = append(d.stateChange, registration[StateChangeHandler]{id: d.nextID, handler: h})
	return d.nextID
}

// AddFillHandler registers a handler for fill events.
func (d *Dispatcher) AddFillHandler(h FillHandler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.fill = append(d.fill, registration[FillHandler]{id: d.nextID, handler: h})
	return d.nextID
}

// AddOrderUpdateHandler registers a handler for generic order updates.
func (d *Dispatcher) AddOrderUpdateHandler(h OrderUpdateHandler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.orderUpdate = append(d.orderUpdate, registration[OrderUpdateHandler]{id: d.nextID, handler: h})
	return d.nextID
}

// RemoveHandler unregisters a handler by id, whatever stream it is on.
// Removing an unknown id is a no-op.
func (d *Dispatcher) RemoveHandler(id HandlerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateChange = removeByID(d.stateChange, id)
	d.fill = removeByID(d.fill, id)
	d.orderUpdate = removeByID(d.orderUpdate, id)
}

func removeByID[H any](regs []registration[H], id HandlerID) []registration[H] {
	for i, r := range regs {
		if r.id == id {
			return append(regs[:i:i], regs[i+1:]...)
		}
	}
	return regs
}

// TriggerStateChange delivers a state-change event to all handlers.
func (d *Dispatcher) TriggerStateChange(ctx context.Context, change StateChange) {
	for _, r := range d.snapshotStateChange() {
		d.invoke(ctx, EventStateChange, r.id, func() { r.handler(ctx, change) })
	}
}

// TriggerFill delivers a fill event to all handlers.
func (d *Dispatcher) TriggerFill(ctx context.Context, event FillEvent) {
	for _, r := range d.snapshotFill() {
		d.invoke(ctx, EventFill, r.id, func() { r.handler(ctx, event) })
	}
}

// TriggerOrderUpdate delivers a generic order update to all handlers.
func (d *Dispatcher) TriggerOrderUpdate(ctx context.Context, update OrderUpdate) {
	for _, r := range d.snapshotOrderUpdate() {
		d.invoke(ctx, EventOrderUpdate, r.id, func() { r.handler(ctx, update) })
	}
}

// HandlerCount returns the number of handlers registered for an event type.
func (d *Dispatcher) HandlerCount(t EventType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch t {
	case EventStateChange:
		return len(d.stateChange)
	case EventFill:
		return len(d.fill)
	case EventOrderUpdate:
		return len(d.orderUpdate)
	}
	return 0
}

// snapshot helpers copy the registration slice under the read lock so a
// handler may register or remove handlers without deadlocking the trigger.

func (d *Dispatcher) snapshotStateChange() []registration[StateChangeHandler] {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]registration[StateChangeHandler], len(d.stateChange))
	copy(out, d.stateChange)
	return out
}

func (d *Dispatcher) snapshotFill() []registration[FillHandler] {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]registration[FillHandler], len(d.fill))
	copy(out, d.fill)
	return out
}

func (d *Dispatcher) snapshotOrderUpdate() []registration[OrderUpdateHandler] {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]registration[OrderUpdateHandler], len(d.orderUpdate))
	copy(out, d.orderUpdate)
	return out
}

// invoke runs a single handler with panic isolation. The mutation the
// event describes has already committed, so a failing handler must not
// disturb the dispatch of the remaining handlers.
func (d *Dispatcher) invoke(ctx context.Context, t EventType, id HandlerID, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error(ctx, fmt.Errorf("handler panic: %v", rec), "Event handler failed", map[string]interface{}{
				"eventType": string(t),
				"handlerID": int64(id),
			})
		}
	}()
	fn()
}
