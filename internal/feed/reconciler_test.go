package feed

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krakenOrderTracker/internal/domain"
	"krakenOrderTracker/internal/events"
	"krakenOrderTracker/internal/orders"
	"krakenOrderTracker/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// --- ParseEnvelope ---

func TestParseEnvelope_OpenOrders(t *testing.T) {
	raw := []byte(`[[{"OGTT3Y-C6I3P-XRI6HX":{"status":"open","vol":"1.0","vol_exec":"0.4","cost":"20000","fee":"1.0","avg_price":"50000"}}],"openOrders",{"sequence":59342}]`)

	env, err := ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, KindOrderSnapshots, env.Kind)
	assert.Equal(t, "openOrders", env.Channel)
	assert.Equal(t, int64(59342), env.Sequence)

	require.Len(t, env.OrderSnapshots, 1)
	entry := env.OrderSnapshots[0]
	assert.Equal(t, "OGTT3Y-C6I3P-XRI6HX", entry.OrderID)
	assert.Equal(t, "open", entry.Status)
	assert.True(t, entry.Volume.Equal(dec("1.0")))
	assert.True(t, entry.VolumeExecuted.Equal(dec("0.4")))
	assert.True(t, entry.Cost.Equal(dec("20000")))
	assert.True(t, entry.Fee.Equal(dec("1.0")))
	assert.True(t, entry.AvgPrice.Equal(dec("50000")))
}

func TestParseEnvelope_OpenOrdersBatch(t *testing.T) {
	raw := []byte(`[[{"O1":{"status":"open","vol_exec":"0"}},{"O2":{"status":"canceled","vol_exec":"0.5"}}],"openOrders",{"sequence":2}]`)

	env, err := ParseEnvelope(raw)
	require.NoError(t, err)
	require.Len(t, env.OrderSnapshots, 2)
	assert.Equal(t, "O1", env.OrderSnapshots[0].OrderID)
	assert.Equal(t, "O2", env.OrderSnapshots[1].OrderID)
	assert.Equal(t, "canceled", env.OrderSnapshots[1].Status)
}

func TestParseEnvelope_OwnTrades(t *testing.T) {
	raw := []byte(`[[{"TDLH43-DVQXD-2KHVYY":{"ordertxid":"OGTT3Y-C6I3P-XRI6HX","pair":"XBT/USD","price":"50000.0","vol":"0.4","fee":"1.0","cost":"20000.0","time":"1560520332.914664","type":"buy"}}],"ownTrades",{"sequence":2948}]`)

	env, err := ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, KindOwnTrades, env.Kind)
	assert.Equal(t, int64(2948), env.Sequence)

	require.Len(t, env.Trades, 1)
	trade := env.Trades[0]
	assert.Equal(t, "TDLH43-DVQXD-2KHVYY", trade.TradeID)
	assert.Equal(t, "OGTT3Y-C6I3P-XRI6HX", trade.OrderTxID)
	assert.Equal(t, "XBT/USD", trade.Pair)
	assert.Equal(t, domain.Buy, trade.Side)
	assert.True(t, trade.Price.Equal(dec("50000")))
	assert.True(t, trade.Volume.Equal(dec("0.4")))
	assert.True(t, trade.Fee.Equal(dec("1.0")))
	assert.True(t, trade.Cost.Equal(dec("20000")))

	want := time.Unix(1560520332, 914664000).UTC()
	assert.WithinDuration(t, want, trade.Time, time.Microsecond)
}

func TestParseEnvelope_NumericTime(t *testing.T) {
	raw := []byte(`[[{"T1":{"ordertxid":"O1","pair":"XBT/USD","price":"1","vol":"1","fee":"0","cost":"1","time":1560520332.5,"type":"sell"}}],"ownTrades",{"sequence":1}]`)

	env, err := ParseEnvelope(raw)
	require.NoError(t, err)
	require.Len(t, env.Trades, 1)
	assert.Equal(t, time.Unix(1560520332, 500000000).UTC(), env.Trades[0].Time)
}

func TestParseEnvelope_ChannelPosition(t *testing.T) {
	// The channel name must come from index 1, not from anything inside the
	// payload at index 0.
	raw := []byte(`[["ownTrades"],"openOrders",{"sequence":1}]`)

	env, err := ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "openOrders", env.Channel)
	assert.Equal(t, KindOrderSnapshots, env.Kind)
}

func TestParseEnvelope_Heartbeat(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"event":"heartbeat"}`))
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeat, env.Kind)
}

func TestParseEnvelope_SystemEvents(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"event":"systemStatus","status":"online","version":"1.0.0"}`))
	require.NoError(t, err)
	assert.Equal(t, KindSystemEvent, env.Kind)
	assert.Equal(t, "systemStatus", env.Event)
	assert.Equal(t, "online", env.Status)

	env, err = ParseEnvelope([]byte(`{"event":"subscriptionStatus","status":"error","errorMessage":"EGeneral: Invalid arguments"}`))
	require.NoError(t, err)
	assert.Equal(t, KindSystemEvent, env.Kind)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "EGeneral: Invalid arguments", env.ErrorMessage)
}

func TestParseEnvelope_UnknownChannel(t *testing.T) {
	env, err := ParseEnvelope([]byte(`[[1234,"5678"],"spread",{"sequence":9}]`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, env.Kind)
	assert.Equal(t, "spread", env.Channel)
}

func TestParseEnvelope_NoSequence(t *testing.T) {
	env, err := ParseEnvelope([]byte(`[[{"O1":{"status":"open"}}],"openOrders"]`))
	require.NoError(t, err)
	assert.Equal(t, KindOrderSnapshots, env.Kind)
	assert.Equal(t, int64(0), env.Sequence)
}

func TestParseEnvelope_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ``},
		{name: "whitespace", raw: `   `},
		{name: "not json", raw: `not json at all`},
		{name: "bare number", raw: `42`},
		{name: "single element array", raw: `[["payload only"]]`},
		{name: "channel not a string", raw: `[[],42,{"sequence":1}]`},
		{name: "openOrders payload not a list", raw: `[{"O1":{"status":"open"}},"openOrders",{"sequence":1}]`},
		{name: "non-numeric volume", raw: `[[{"O1":{"status":"open","vol_exec":"lots"}}],"openOrders",{"sequence":1}]`},
		{name: "non-numeric trade time", raw: `[[{"T1":{"ordertxid":"O1","time":"yesterday"}}],"ownTrades",{"sequence":1}]`},
		{name: "truncated frame", raw: `[[{"O1":{"status":"op`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrMalformedMessage)
			assert.Nil(t, env)
		})
	}
}

// --- Reconciler ---

func newTestReconciler(t *testing.T) (*Reconciler, *orders.Manager, *events.Dispatcher) {
	t.Helper()
	logger := &mockLogger{}
	dispatcher, err := events.NewDispatcher(logger)
	require.NoError(t, err)
	manager, err := orders.NewManager(orders.Config{Logger: logger, Dispatcher: dispatcher})
	require.NoError(t, err)
	reconciler, err := NewReconciler(Config{Logger: logger, Manager: manager, Dispatcher: dispatcher})
	require.NoError(t, err)
	return reconciler, manager, dispatcher
}

// trackOrder creates a limit buy and binds it to the given exchange txid so
// feed messages keyed by that txid resolve.
func trackOrder(t *testing.T, manager *orders.Manager, exchangeID, volume string) {
	t.Helper()
	ctx := context.Background()
	order, err := manager.CreateOrder(ctx, orders.CreateOrderRequest{
		Pair:       "XBT/USD",
		Side:       domain.Buy,
		Type:       domain.Limit,
		Volume:     dec(volume),
		LimitPrice: dec("50000"),
	})
	require.NoError(t, err)
	require.NoError(t, manager.MarkSubmitted(ctx, order.ClientOrderID, exchangeID))
}

func TestNewReconciler(t *testing.T) {
	logger := &mockLogger{}
	dispatcher, err := events.NewDispatcher(logger)
	require.NoError(t, err)
	manager, err := orders.NewManager(orders.Config{Logger: logger, Dispatcher: dispatcher})
	require.NoError(t, err)

	_, err = NewReconciler(Config{Manager: manager, Dispatcher: dispatcher})
	assert.Error(t, err, "logger is required")
	_, err = NewReconciler(Config{Logger: logger, Dispatcher: dispatcher})
	assert.Error(t, err, "manager is required")
	_, err = NewReconciler(Config{Logger: logger, Manager: manager})
	assert.Error(t, err, "dispatcher is required")
}

func TestHandleMessage_OrderLifecycleOverFeed(t *testing.T) {
	reconciler, manager, _ := newTestReconciler(t)
	ctx := context.Background()
	trackOrder(t, manager, "O1", "1.0")

	// Exchange acknowledges the order.
	ack := []byte(`[[{"O1":{"status":"open","vol":"1.0","vol_exec":"0"}}],"openOrders",{"sequence":1}]`)
	require.NoError(t, reconciler.HandleMessage(ctx, ack))

	order, ok := manager.GetOrder("O1")
	require.True(t, ok)
	assert.Equal(t, domain.StateOpen, order.CurrentState)

	// Two executions arrive on ownTrades.
	trade1 := []byte(`[[{"T1":{"ordertxid":"O1","pair":"XBT/USD","price":"50000","vol":"0.4","fee":"1.0","cost":"20000","time":"1560520332.1","type":"buy"}}],"ownTrades",{"sequence":1}]`)
	trade2 := []byte(`[[{"T2":{"ordertxid":"O1","pair":"XBT/USD","price":"50050","vol":"0.6","fee":"1.5","cost":"30030","time":"1560520333.2","type":"buy"}}],"ownTrades",{"sequence":2}]`)
	require.NoError(t, reconciler.HandleMessage(ctx, trade1))
	require.NoError(t, reconciler.HandleMessage(ctx, trade2))

	order, _ = manager.GetOrder("O1")
	assert.Equal(t, domain.StateFilled, order.CurrentState)
	assert.True(t, order.VolumeExecuted.Equal(dec("1.0")))
	assert.True(t, order.AvgFillPrice.Equal(dec("50030")), "vwap: %s", order.AvgFillPrice)
	assert.True(t, order.TotalFeesPaid.Equal(dec("2.5")))

	stats := reconciler.GetStats()
	assert.Equal(t, int64(3), stats.Messages)
	assert.Equal(t, int64(1), stats.OrderSnapshots)
	assert.Equal(t, int64(2), stats.TradeExecutions)
}

func TestHandleMessage_MalformedKeepsStreamAlive(t *testing.T) {
	reconciler, manager, _ := newTestReconciler(t)
	ctx := context.Background()
	trackOrder(t, manager, "O1", "1.0")

	err := reconciler.HandleMessage(ctx, []byte(`garbage{{{`))
	assert.ErrorIs(t, err, ports.ErrMalformedMessage)

	// The stream continues: the next message still applies.
	ack := []byte(`[[{"O1":{"status":"open"}}],"openOrders",{"sequence":1}]`)
	require.NoError(t, reconciler.HandleMessage(ctx, ack))

	order, _ := manager.GetOrder("O1")
	assert.Equal(t, domain.StateOpen, order.CurrentState)
	assert.Equal(t, int64(1), reconciler.GetStats().MalformedMessages)
}

func TestHandleMessage_UnknownOrderInBatchDoesNotBlockOthers(t *testing.T) {
	reconciler, manager, _ := newTestReconciler(t)
	ctx := context.Background()
	trackOrder(t, manager, "O2", "1.0")

	// First entry references an order from another session.
	batch := []byte(`[[{"GHOST":{"status":"open"}},{"O2":{"status":"open"}}],"openOrders",{"sequence":1}]`)
	require.NoError(t, reconciler.HandleMessage(ctx, batch))

	order, ok := manager.GetOrder("O2")
	require.True(t, ok)
	assert.Equal(t, domain.StateOpen, order.CurrentState)
	assert.Equal(t, int64(2), reconciler.GetStats().OrderSnapshots)
}

func TestHandleMessage_HeartbeatAndUnknownChannels(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, reconciler.HandleMessage(ctx, []byte(`{"event":"heartbeat"}`)))
	require.NoError(t, reconciler.HandleMessage(ctx, []byte(`{"event":"systemStatus","status":"online"}`)))
	require.NoError(t, reconciler.HandleMessage(ctx, []byte(`[[],"spread",{"sequence":1}]`)))

	stats := reconciler.GetStats()
	assert.Equal(t, int64(3), stats.Messages)
	assert.Equal(t, int64(1), stats.Heartbeats)
	assert.Equal(t, int64(1), stats.SystemEvents)
	assert.Equal(t, int64(1), stats.UnknownChannels)
	assert.Equal(t, int64(0), stats.MalformedMessages)
}

func TestHandleMessage_OrderUpdateEvents(t *testing.T) {
	reconciler, manager, dispatcher := newTestReconciler(t)
	ctx := context.Background()
	trackOrder(t, manager, "O1", "1.0")

	var updates []events.OrderUpdate
	dispatcher.AddOrderUpdateHandler(func(ctx context.Context, u events.OrderUpdate) {
		updates = append(updates, u)
	})

	require.NoError(t, reconciler.HandleMessage(ctx, []byte(`[[{"O1":{"status":"open"}}],"openOrders",{"sequence":1}]`)))
	require.NoError(t, reconciler.HandleMessage(ctx, []byte(`[[{"T1":{"ordertxid":"O1","pair":"XBT/USD","price":"50000","vol":"1.0","fee":"1.0","cost":"50000","time":"1560520332.1","type":"buy"}}],"ownTrades",{"sequence":1}]`)))

	require.Len(t, updates, 2)
	assert.Equal(t, events.OrderUpdate{OrderID: "O1", Channel: "openOrders"}, updates[0])
	assert.Equal(t, events.OrderUpdate{OrderID: "O1", Channel: "ownTrades"}, updates[1])
}

func TestHandleMessage_RedeliveredSnapshotIsIdempotent(t *testing.T) {
	reconciler, manager, _ := newTestReconciler(t)
	ctx := context.Background()
	trackOrder(t, manager, "O1", "1.0")

	cancel := []byte(`[[{"O1":{"status":"canceled","vol_exec":"0"}}],"openOrders",{"sequence":1}]`)
	require.NoError(t, reconciler.HandleMessage(ctx, cancel))
	require.NoError(t, reconciler.HandleMessage(ctx, cancel))

	order, _ := manager.GetOrder("O1")
	assert.Equal(t, domain.StateCanceled, order.CurrentState)
	assert.Equal(t, int64(1), manager.GetStatistics().OrdersCanceled)
	require.Len(t, order.History, 1, "replay must not append history")
}

func TestHandleMessage_SequenceGap(t *testing.T) {
	reconciler, manager, _ := newTestReconciler(t)
	ctx := context.Background()
	trackOrder(t, manager, "O1", "1.0")

	require.NoError(t, reconciler.HandleMessage(ctx, []byte(`[[{"O1":{"status":"open"}}],"openOrders",{"sequence":5}]`)))
	// Sequence 6 never arrives.
	require.NoError(t, reconciler.HandleMessage(ctx, []byte(`[[{"O1":{"status":"canceled"}}],"openOrders",{"sequence":7}]`)))

	assert.Equal(t, int64(1), reconciler.GetStats().SequenceGaps)
}
