package domain

// OrderSide represents the side of an order (buy or sell).
// Values follow Kraken's lowercase wire convention.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// IsValid reports whether the side is one of the known values.
func (s OrderSide) IsValid() bool {
	return s == Buy || s == Sell
}

// OrderType represents the execution type of an order.
type OrderType string

const (
	Market     OrderType = "market"
	Limit      OrderType = "limit"
	StopLoss   OrderType = "stop-loss"
	TakeProfit OrderType = "take-profit"
)

// IsValid reports whether the order type is one of the known values.
func (t OrderType) IsValid() bool {
	switch t {
	case Market, Limit, StopLoss, TakeProfit:
		return true
	}
	return false
}

// RequiresPrice reports whether the order type carries a trigger or limit price.
func (t OrderType) RequiresPrice() bool {
	return t == Limit || t == StopLoss || t == TakeProfit
}

// OrderState represents a stage in the order lifecycle.
type OrderState string

const (
	StatePendingSubmit   OrderState = "pending_submit"  // Created locally, not yet acknowledged by the exchange
	StateOpen            OrderState = "open"            // Acknowledged and resting on the exchange
	StatePartiallyFilled OrderState = "partially_filled"
	StateFilled          OrderState = "filled"
	StateCanceled        OrderState = "canceled"
	StateRejected        OrderState = "rejected"
	StateExpired         OrderState = "expired"
	StateFailed          OrderState = "failed"
)

// IsTerminal reports whether the state permits no further transitions.
func (s OrderState) IsTerminal() bool {
	switch s {
	case StateFilled, StateCanceled, StateRejected, StateExpired, StateFailed:
		return true
	}
	return false
}

// IsActive reports whether the order is still working on the exchange.
func (s OrderState) IsActive() bool {
	return s == StateOpen || s == StatePartiallyFilled
}

// TransitionEvent names the semantic cause of a state transition.
type TransitionEvent string

const (
	EventConfirm       TransitionEvent = "confirm"        // pending_submit -> open
	EventPartialFill   TransitionEvent = "partial_fill"   // * -> partially_filled
	EventFullFill      TransitionEvent = "full_fill"      // * -> filled
	EventCancelConfirm TransitionEvent = "cancel_confirm" // * -> canceled
	EventReject        TransitionEvent = "reject"         // * -> rejected
	EventExpire        TransitionEvent = "expire"         // * -> expired
	EventFail          TransitionEvent = "fail"           // * -> failed

	// EventReset is the sentinel for transitions with no mapped event.
	// Callers must branch on it; it is never a real lifecycle event.
	EventReset TransitionEvent = "reset"
)

// AllStates lists every order state. Useful for exhaustive table checks.
func AllStates() []OrderState {
	return []OrderState{
		StatePendingSubmit,
		StateOpen,
		StatePartiallyFilled,
		StateFilled,
		StateCanceled,
		StateRejected,
		StateExpired,
		StateFailed,
	}
}

// TerminalStates lists the states no order may leave.
func TerminalStates() []OrderState {
	return []OrderState{StateFilled, StateCanceled, StateRejected, StateExpired, StateFailed}
}
