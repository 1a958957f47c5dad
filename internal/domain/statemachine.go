package domain

// validTransitions is the fixed adjacency table for the order lifecycle.
// Non-terminal states may always move to any terminal state (a cancel,
// reject, expiry or failure can interrupt the fill progression at any
// point). Terminal states have no outgoing edges, including self-loops:
// redelivered snapshots for a finished order must be discarded, not
// re-applied.
var validTransitions = map[OrderState][]OrderState{
	StatePendingSubmit: {
		StateOpen,
		StateCanceled,
		StateRejected,
		StateExpired,
		StateFailed,
	},
	StateOpen: {
		StatePartiallyFilled,
		StateFilled, // full fill with no partial step observed
		StateCanceled,
		StateRejected,
		StateExpired,
		StateFailed,
	},
	StatePartiallyFilled: {
		StateFilled,
		StateCanceled,
		StateRejected,
		StateExpired,
		StateFailed,
	},
	StateFilled:   {},
	StateCanceled: {},
	StateRejected: {},
	StateExpired:  {},
	StateFailed:   {},
}

// IsValidTransition reports whether the lifecycle permits moving an order
// from one state to another. Self-loops are never valid.
func IsValidTransition(from, to OrderState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidNextStates returns the states reachable from the given state in a
// single transition. The returned slice is a copy.
func ValidNextStates(from OrderState) []OrderState {
	next := validTransitions[from]
	out := make([]OrderState, len(next))
	copy(out, next)
	return out
}

// EventForTransition maps an (old, new) state pair to the lifecycle event
// that causes it. The mapping is keyed almost entirely by the destination
// state; only entry into open distinguishes its origin. Pairs outside the
// mapping yield EventReset, which callers must treat as "no known event"
// rather than ignoring it.
func EventForTransition(from, to OrderState) TransitionEvent {
	switch to {
	case StateOpen:
		if from == StatePendingSubmit {
			return EventConfirm
		}
		return EventReset
	case StatePartiallyFilled:
		return EventPartialFill
	case StateFilled:
		return EventFullFill
	case StateCanceled:
		return EventCancelConfirm
	case StateRejected:
		return EventReject
	case StateExpired:
		return EventExpire
	case StateFailed:
		return EventFail
	}
	return EventReset
}
