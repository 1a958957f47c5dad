package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidTransition_LegalPaths(t *testing.T) {
	tests := []struct {
		name string
		from OrderState
		to   OrderState
	}{
		{"submission acknowledged", StatePendingSubmit, StateOpen},
		{"canceled before acknowledgment", StatePendingSubmit, StateCanceled},
		{"rejected on submission", StatePendingSubmit, StateRejected},
		{"expired before acknowledgment", StatePendingSubmit, StateExpired},
		{"failed on submission", StatePendingSubmit, StateFailed},
		{"first partial fill", StateOpen, StatePartiallyFilled},
		{"full fill with no partial step observed", StateOpen, StateFilled},
		{"canceled while resting", StateOpen, StateCanceled},
		{"rejected while resting", StateOpen, StateRejected},
		{"expired while resting", StateOpen, StateExpired},
		{"failed while resting", StateOpen, StateFailed},
		{"fill completes", StatePartiallyFilled, StateFilled},
		{"canceled with partial execution", StatePartiallyFilled, StateCanceled},
		{"expired with partial execution", StatePartiallyFilled, StateExpired},
		{"failed with partial execution", StatePartiallyFilled, StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsValidTransition(tt.from, tt.to), "%s -> %s should be legal", tt.from, tt.to)
		})
	}
}

func TestIsValidTransition_IllegalPaths(t *testing.T) {
	tests := []struct {
		name string
		from OrderState
		to   OrderState
	}{
		{"fill before acknowledgment", StatePendingSubmit, StatePartiallyFilled},
		{"full fill before acknowledgment", StatePendingSubmit, StateFilled},
		{"back to pending", StateOpen, StatePendingSubmit},
		{"partial back to open", StatePartiallyFilled, StateOpen},
		{"unknown state", OrderState("settling"), StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, IsValidTransition(tt.from, tt.to), "%s -> %s should be illegal", tt.from, tt.to)
		})
	}
}

// Terminal states permit no outgoing transitions at all, including
// self-loops from redelivered snapshots.
func TestIsValidTransition_TerminalStatesAreFrozen(t *testing.T) {
	for _, from := range TerminalStates() {
		assert.Empty(t, ValidNextStates(from), "%s should have no outgoing edges", from)
		for _, to := range AllStates() {
			assert.False(t, IsValidTransition(from, to), "%s -> %s should be frozen", from, to)
		}
	}
}

func TestIsValidTransition_NoSelfLoops(t *testing.T) {
	for _, s := range AllStates() {
		assert.False(t, IsValidTransition(s, s), "%s -> %s self-loop should be illegal", s, s)
	}
}

func TestValidNextStates_ReturnsCopy(t *testing.T) {
	next := ValidNextStates(StateOpen)
	assert.NotEmpty(t, next)
	next[0] = OrderState("mutated")
	assert.NotContains(t, ValidNextStates(StateOpen), OrderState("mutated"))
}

func TestEventForTransition(t *testing.T) {
	tests := []struct {
		name string
		from OrderState
		to   OrderState
		want TransitionEvent
	}{
		{"confirm", StatePendingSubmit, StateOpen, EventConfirm},
		{"partial fill", StateOpen, StatePartiallyFilled, EventPartialFill},
		{"full fill from open", StateOpen, StateFilled, EventFullFill},
		{"full fill from partial", StatePartiallyFilled, StateFilled, EventFullFill},
		{"cancel", StateOpen, StateCanceled, EventCancelConfirm},
		{"reject", StatePendingSubmit, StateRejected, EventReject},
		{"expire", StatePartiallyFilled, StateExpired, EventExpire},
		{"fail", StateOpen, StateFailed, EventFail},
		{"open from anywhere else has no event", StatePartiallyFilled, StateOpen, EventReset},
		{"pending is never a destination", StateOpen, StatePendingSubmit, EventReset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EventForTransition(tt.from, tt.to))
		})
	}
}

// Every state classifies as exactly one of pending, active or terminal, and
// TerminalStates agrees with the per-state predicate.
func TestStateClassification(t *testing.T) {
	terminal := make(map[OrderState]bool)
	for _, s := range TerminalStates() {
		terminal[s] = true
	}

	for _, s := range AllStates() {
		assert.Equal(t, terminal[s], s.IsTerminal(), "IsTerminal mismatch for %s", s)
		switch {
		case s == StatePendingSubmit:
			assert.False(t, s.IsActive())
			assert.False(t, s.IsTerminal())
		case s.IsActive():
			assert.False(t, s.IsTerminal(), "%s cannot be active and terminal", s)
		default:
			assert.True(t, s.IsTerminal(), "%s must be active or terminal", s)
		}
	}
}
