package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krakenOrderTracker/internal/domain"
)

// --- Mock logger ---

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func testOrder(id string) *domain.Order {
	return &domain.Order{
		OrderID:      id,
		Pair:         "XBT/USD",
		Side:         domain.Buy,
		Type:         domain.Limit,
		Volume:       decimal.NewFromInt(1),
		LimitPrice:   decimal.NewFromInt(50000),
		CurrentState: domain.StateOpen,
		CreatedAt:    time.Now(),
	}
}

func TestDispatcher_New(t *testing.T) {
	t.Run("requires logger", func(t *testing.T) {
		_, err := NewDispatcher(nil)
		assert.Error(t, err)
	})

	t.Run("creates with logger", func(t *testing.T) {
		d, err := NewDispatcher(&mockLogger{})
		require.NoError(t, err)
		assert.NotNil(t, d)
	})
}

func TestDispatcher_RegistrationOrder(t *testing.T) {
	d, err := NewDispatcher(&mockLogger{})
	require.NoError(t, err)

	var got []int
	d.AddStateChangeHandler(func(ctx context.Context, c StateChange) { got = append(got, 1) })
	d.AddStateChangeHandler(func(ctx context.Context, c StateChange) { got = append(got, 2) })
	d.AddStateChangeHandler(func(ctx context.Context, c StateChange) { got = append(got, 3) })

	d.TriggerStateChange(context.Background(), StateChange{
		Order:    testOrder("O1"),
		OldState: domain.StatePendingSubmit,
		NewState: domain.StateOpen,
		Event:    domain.EventConfirm,
	})

	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestDispatcher_PanicIsolation(t *testing.T) {
	logger := &mockLogger{}
	d, err := NewDispatcher(logger)
	require.NoError(t, err)

	var afterPanicRan bool
	d.AddFillHandler(func(ctx context.Context, e FillEvent) { panic("handler exploded") })
	d.AddFillHandler(func(ctx context.Context, e FillEvent) { afterPanicRan = true })

	fill := &domain.Fill{
		TradeID: "T1",
		OrderID: "O1",
		Pair:    "XBT/USD",
		Side:    domain.Buy,
		Volume:  decimal.NewFromFloat(0.5),
		Price:   decimal.NewFromInt(50000),
		Time:    time.Now(),
	}

	assert.NotPanics(t, func() {
		d.TriggerFill(context.Background(), FillEvent{Fill: fill, Order: testOrder("O1")})
	})
	assert.True(t, afterPanicRan, "handler after the panicking one should still run")
	assert.Equal(t, 1, logger.errorCount(), "panic should be logged once")
}

func TestDispatcher_RemoveHandler(t *testing.T) {
	d, err := NewDispatcher(&mockLogger{})
	require.NoError(t, err)

	var first, second int
	id := d.AddOrderUpdateHandler(func(ctx context.Context, u OrderUpdate) { first++ })
	d.AddOrderUpdateHandler(func(ctx context.Context, u OrderUpdate) { second++ })

	d.TriggerOrderUpdate(context.Background(), OrderUpdate{OrderID: "O1", Channel: "openOrders"})
	d.RemoveHandler(id)
	d.TriggerOrderUpdate(context.Background(), OrderUpdate{OrderID: "O1", Channel: "openOrders"})

	assert.Equal(t, 1, first, "removed handler must not fire again")
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, d.HandlerCount(EventOrderUpdate))

	// Removing an unknown id is a no-op.
	d.RemoveHandler(HandlerID(9999))
	assert.Equal(t, 1, d.HandlerCount(EventOrderUpdate))
}

func TestDispatcher_IDsUniqueAcrossStreams(t *testing.T) {
	d, err := NewDispatcher(&mockLogger{})
	require.NoError(t, err)

	a := d.AddStateChangeHandler(func(ctx context.Context, c StateChange) {})
	b := d.AddFillHandler(func(ctx context.Context, e FillEvent) {})
	c := d.AddOrderUpdateHandler(func(ctx context.Context, u OrderUpdate) {})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
	assert.NotEqual(t, a, c)
}

func TestDispatcher_HandlerMayRemoveItself(t *testing.T) {
	d, err := NewDispatcher(&mockLogger{})
	require.NoError(t, err)

	var calls int
	var id HandlerID
	id = d.AddStateChangeHandler(func(ctx context.Context, c StateChange) {
		calls++
		d.RemoveHandler(id)
	})

	change := StateChange{
		Order:    testOrder("O1"),
		OldState: domain.StateOpen,
		NewState: domain.StateFilled,
		Event:    domain.EventFullFill,
	}
	d.TriggerStateChange(context.Background(), change)
	d.TriggerStateChange(context.Background(), change)

	assert.Equal(t, 1, calls, "self-removing handler fires exactly once")
	assert.Equal(t, 0, d.HandlerCount(EventStateChange))
}

func TestDispatcher_ConcurrentTriggerAndRegister(t *testing.T) {
	d, err := NewDispatcher(&mockLogger{})
	require.NoError(t, err)

	var count int64
	var countMu sync.Mutex
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			d.AddFillHandler(func(ctx context.Context, e FillEvent) {
				countMu.Lock()
				count++
				countMu.Unlock()
			})
		}
	}()

	fill := &domain.Fill{TradeID: "T1", OrderID: "O1", Volume: decimal.NewFromInt(1), Price: decimal.NewFromInt(1)}
	for i := 0; i < 50; i++ {
		d.TriggerFill(context.Background(), FillEvent{Fill: fill, Order: testOrder("O1")})
	}
	<-done

	assert.Equal(t, 50, d.HandlerCount(EventFill))
}
