package feed

import (
	"context"
	"fmt"
	"sync"

	"krakenOrderTracker/internal/domain"
	"krakenOrderTracker/internal/events"
	"krakenOrderTracker/internal/orders"
	"krakenOrderTracker/internal/ports"
)

// previewLimit bounds the raw-payload excerpt attached to malformed-message
// logs so a corrupt multi-megabyte frame cannot flood the log.
const previewLimit = 200

// Stats counts messages by classification. Counters only ever increase.
type Stats struct {
	Messages          int64 `json:"messages"`
	OrderSnapshots    int64 `json:"order_snapshots"`
	TradeExecutions   int64 `json:"trade_executions"`
	Heartbeats        int64 `json:"heartbeats"`
	SystemEvents      int64 `json:"system_events"`
	UnknownChannels   int64 `json:"unknown_channels"`
	MalformedMessages int64 `json:"malformed_messages"`
	SequenceGaps      int64 `json:"sequence_gaps"`
}

// Config holds the dependencies for the reconciler.
type Config struct {
	Logger     ports.Logger
	Manager    *orders.Manager
	Dispatcher *events.Dispatcher
}

// Reconciler routes parsed feed messages to the order manager's two
// mutation entry points. Errors local to one message are logged and
// counted; the stream always continues.
type Reconciler struct {
	logger     ports.Logger
	manager    *orders.Manager
	dispatcher *events.Dispatcher

	mu       sync.Mutex
	stats    Stats
	lastSeqs map[string]int64 // per-channel last sequence number seen
}

// NewReconciler creates a reconciler.
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for reconciler")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("order manager is required for reconciler")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("event dispatcher is required for reconciler")
	}
	return &Reconciler{
		logger:     cfg.Logger,
		manager:    cfg.Manager,
		dispatcher: cfg.Dispatcher,
		lastSeqs:   make(map[string]int64),
	}, nil
}

// HandleMessage destructures one raw feed message and dispatches it. The
// returned error classifies the message for the caller's telemetry; it is
// never fatal and callers must keep feeding subsequent messages.
func (r *Reconciler) HandleMessage(ctx context.Context, raw []byte) error {
	env, err := ParseEnvelope(raw)
	if err != nil {
		r.mu.Lock()
		r.stats.Messages++
		r.stats.MalformedMessages++
		r.mu.Unlock()
		r.logger.Error(ctx, err, "Failed to destructure feed message", map[string]interface{}{
			"payloadPreview": payloadPreview(raw),
		})
		return err
	}

	r.mu.Lock()
	r.stats.Messages++
	r.mu.Unlock()

	switch env.Kind {
	case KindOrderSnapshots:
		r.checkSequence(ctx, env)
		r.handleOrderSnapshots(ctx, env)
	case KindOwnTrades:
		r.checkSequence(ctx, env)
		r.handleOwnTrades(ctx, env)
	case KindHeartbeat:
		r.mu.Lock()
		r.stats.Heartbeats++
		r.mu.Unlock()
		r.logger.Debug(ctx, "Feed heartbeat")
	case KindSystemEvent:
		r.mu.Lock()
		r.stats.SystemEvents++
		r.mu.Unlock()
		if env.Status == "error" {
			r.logger.Warn(ctx, "Feed system event reported an error", map[string]interface{}{
				"event":        env.Event,
				"errorMessage": env.ErrorMessage,
			})
		} else {
			r.logger.Info(ctx, "Feed system event", map[string]interface{}{
				"event":  env.Event,
				"status": env.Status,
			})
		}
	default:
		r.mu.Lock()
		r.stats.UnknownChannels++
		r.mu.Unlock()
		r.logger.Debug(ctx, "Message for unknown channel, ignoring", map[string]interface{}{
			"channel": env.Channel,
		})
	}
	return nil
}

// handleOrderSnapshots feeds each openOrders entry to the manager's
// snapshot reconciliation. Manager-side rejections (unknown order, illegal
// transition) are message-local and already logged there.
func (r *Reconciler) handleOrderSnapshots(ctx context.Context, env *Envelope) {
	for _, entry := range env.OrderSnapshots {
		r.mu.Lock()
		r.stats.OrderSnapshots++
		r.mu.Unlock()

		if entry.Status == "" {
			// Field-level updates without a status carry nothing the
			// snapshot path can act on; ownTrades covers the fills.
			r.logger.Debug(ctx, "Order snapshot without status, skipping", map[string]interface{}{
				"orderID": entry.OrderID,
			})
			continue
		}

		avgPrice := entry.AvgPrice
		if !avgPrice.IsPositive() {
			avgPrice = entry.Price
		}
		snap := orders.ExchangeSnapshot{
			Status:         entry.Status,
			VolumeExecuted: entry.VolumeExecuted,
			Cost:           entry.Cost,
			Fee:            entry.Fee,
			AvgPrice:       avgPrice,
		}
		if err := r.manager.SyncOrderFromExchange(ctx, entry.OrderID, snap); err != nil {
			continue
		}
		r.dispatcher.TriggerOrderUpdate(ctx, events.OrderUpdate{
			OrderID: entry.OrderID,
			Channel: ChannelOpenOrders,
		})
	}
}

// handleOwnTrades feeds each execution to the manager's fill processing.
func (r *Reconciler) handleOwnTrades(ctx context.Context, env *Envelope) {
	for _, trade := range env.Trades {
		r.mu.Lock()
		r.stats.TradeExecutions++
		r.mu.Unlock()

		fill := &domain.Fill{
			TradeID: trade.TradeID,
			OrderID: trade.OrderTxID,
			Pair:    trade.Pair,
			Side:    trade.Side,
			Volume:  trade.Volume,
			Price:   trade.Price,
			Fee:     trade.Fee,
			Cost:    trade.Cost,
			Time:    trade.Time,
		}
		if err := r.manager.ProcessFill(ctx, fill); err != nil {
			continue
		}
		r.dispatcher.TriggerOrderUpdate(ctx, events.OrderUpdate{
			OrderID: trade.OrderTxID,
			Channel: ChannelOwnTrades,
		})
	}
}

// checkSequence tracks the per-channel sequence numbers Kraken attaches to
// data frames and logs when messages were missed. Detection only: replaying
// a gap would need the out-of-scope REST side.
func (r *Reconciler) checkSequence(ctx context.Context, env *Envelope) {
	if env.Sequence == 0 {
		return
	}
	r.mu.Lock()
	last := r.lastSeqs[env.Channel]
	r.lastSeqs[env.Channel] = env.Sequence
	gap := last != 0 && env.Sequence != last+1
	if gap {
		r.stats.SequenceGaps++
	}
	r.mu.Unlock()

	if gap {
		r.logger.Warn(ctx, "Feed sequence gap detected", map[string]interface{}{
			"channel":  env.Channel,
			"expected": last + 1,
			"received": env.Sequence,
		})
	}
}

// GetStats returns a copy of the per-classification counters.
func (r *Reconciler) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func payloadPreview(raw []byte) string {
	if len(raw) <= previewLimit {
		return string(raw)
	}
	return string(raw[:previewLimit]) + "..."
}
