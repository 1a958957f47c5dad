// Package app wires the tracking core to the exchange feed and exposes the
// service-level operations: running the stream and monitoring an order to
// completion.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"krakenOrderTracker/internal/analytics"
	"krakenOrderTracker/internal/events"
	"krakenOrderTracker/internal/feed"
	"krakenOrderTracker/internal/orders"
	"krakenOrderTracker/internal/ports"
)

// TrackerService orchestrates the order tracking pipeline: feed messages
// flow through the reconciler into the manager, whose events drive the
// analytics engine and any monitoring consumers.
type TrackerService struct {
	logger     ports.Logger
	orderFeed  ports.OrderFeed
	manager    *orders.Manager
	reconciler *feed.Reconciler
	dispatcher *events.Dispatcher
	engine     *analytics.Engine
}

// NewTrackerService creates the application service and registers the
// analytics engine on the dispatcher's fill stream.
func NewTrackerService(
	logger ports.Logger,
	orderFeed ports.OrderFeed,
	manager *orders.Manager,
	reconciler *feed.Reconciler,
	dispatcher *events.Dispatcher,
	engine *analytics.Engine,
) (*TrackerService, error) {

	if logger == nil || orderFeed == nil || manager == nil || reconciler == nil || dispatcher == nil || engine == nil {
		return nil, fmt.Errorf("missing required dependencies for TrackerService")
	}

	s := &TrackerService{
		logger:     logger,
		orderFeed:  orderFeed,
		manager:    manager,
		reconciler: reconciler,
		dispatcher: dispatcher,
		engine:     engine,
	}

	// Analytics consumes committed fills; the handler never reaches back
	// into the manager, so it cannot deadlock the fill path.
	dispatcher.AddFillHandler(func(ctx context.Context, ev events.FillEvent) {
		engine.ProcessFill(ctx, ev.Fill)
	})

	return s, nil
}

// Manager exposes the order manager for callers composing reports.
func (s *TrackerService) Manager() *orders.Manager {
	return s.manager
}

// Analytics exposes the analytics engine for callers composing reports.
func (s *TrackerService) Analytics() *analytics.Engine {
	return s.engine
}

// Start runs the tracking service until the context is cancelled, a
// shutdown signal arrives, or the feed dies for good.
func (s *TrackerService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Order Tracker Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	feedDoneCh, feedStopCh, err := s.orderFeed.StreamOrderUpdates(ctx, s.handleFeedMessage, s.handleFeedError)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to start exchange feed")
		return fmt.Errorf("failed to start exchange feed: %w", err)
	}
	s.logger.Info(ctx, "Exchange feed started")

	// The work happens in handleFeedMessage; here we only wait for
	// shutdown or feed death.
	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Context cancelled, initiating shutdown...")
		select {
		case feedStopCh <- struct{}{}:
			s.logger.Info(ctx, "Stop signal sent to exchange feed")
		default:
			s.logger.Warn(ctx, "Failed to send stop signal to exchange feed (already closed?)")
		}
		select {
		case <-feedDoneCh:
			s.logger.Info(ctx, "Exchange feed shut down gracefully")
		case <-time.After(5 * time.Second):
			s.logger.Warn(ctx, "Timeout waiting for exchange feed to shut down")
		}
	case <-feedDoneCh:
		err := fmt.Errorf("exchange feed stopped unexpectedly: %w", ports.ErrFeedClosed)
		s.logger.Error(ctx, err, "Exchange feed stopped")
		return err
	}

	stats := s.reconciler.GetStats()
	s.logger.Info(ctx, "Order Tracker Service stopped.", map[string]interface{}{
		"messages":        stats.Messages,
		"orderSnapshots":  stats.OrderSnapshots,
		"tradeExecutions": stats.TradeExecutions,
	})
	return nil
}

// handleFeedMessage feeds one raw frame to the reconciler. Message-local
// failures are already counted and logged there; nothing can kill the
// stream from here.
func (s *TrackerService) handleFeedMessage(raw []byte) {
	_ = s.reconciler.HandleMessage(context.Background(), raw)
}

func (s *TrackerService) handleFeedError(err error) {
	s.logger.Warn(context.Background(), "Exchange feed reported an error", map[string]interface{}{"error": err.Error()})
}

// FillInfo summarizes an order's executions for a monitoring result.
type FillInfo struct {
	VolumeExecuted   decimal.Decimal `json:"volume_executed"`
	AverageFillPrice decimal.Decimal `json:"average_fill_price"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	FillCount        int             `json:"fill_count"`
}

// MonitorResult is the outcome of MonitorOrder.
type MonitorResult struct {
	Completed bool      `json:"completed"`
	Status    string    `json:"status"`
	FillInfo  *FillInfo `json:"fill_info,omitempty"`
	// MonitoringTime is how long the call observed the order.
	MonitoringTime time.Duration `json:"monitoring_time_ns"`
	// MessagesProcessed counts the state-change events the monitor
	// inspected while waiting, including those for other orders.
	MessagesProcessed int `json:"messages_processed"`
}

// Monitoring status values reported alongside the terminal state names.
const (
	monitorStatusNotFound = "not_found"
	monitorStatusTimeout  = "timeout"
	monitorStatusCanceled = "monitoring_canceled"
)

// MonitorOrder observes an order until it reaches a terminal state or the
// timeout expires. Monitoring never mutates order state and leaves every
// other subscription untouched; a timeout is a normal outcome, not an
// error. Unknown ids report "not_found" immediately.
func (s *TrackerService) MonitorOrder(ctx context.Context, orderID string, timeout time.Duration) (*MonitorResult, error) {
	op := "MonitorOrder"
	start := time.Now()

	status, found := s.manager.GetOrderStatus(orderID)
	if !found {
		s.logger.Info(ctx, op+": order is not tracked", map[string]interface{}{"orderID": orderID})
		return &MonitorResult{Status: monitorStatusNotFound, MonitoringTime: time.Since(start)}, nil
	}
	if status.IsTerminal {
		return &MonitorResult{
			Completed:      true,
			Status:         status.CurrentState,
			FillInfo:       fillInfoFromStatus(status),
			MonitoringTime: time.Since(start),
		}, nil
	}

	var inspected int64
	terminalCh := make(chan string, 1)
	handlerID := s.dispatcher.AddStateChangeHandler(func(ctx context.Context, change events.StateChange) {
		atomic.AddInt64(&inspected, 1)
		order := change.Order
		if order == nil || (order.OrderID != orderID && order.ClientOrderID != orderID) {
			return
		}
		if order.CurrentState.IsTerminal() {
			select {
			case terminalCh <- string(order.CurrentState):
			default:
			}
		}
	})
	defer s.dispatcher.RemoveHandler(handlerID)

	// The order may have gone terminal between the first check and the
	// subscription; look once more before blocking.
	if status, found = s.manager.GetOrderStatus(orderID); found && status.IsTerminal {
		return &MonitorResult{
			Completed:         true,
			Status:            status.CurrentState,
			FillInfo:          fillInfoFromStatus(status),
			MonitoringTime:    time.Since(start),
			MessagesProcessed: int(atomic.LoadInt64(&inspected)),
		}, nil
	}

	s.logger.Debug(ctx, op+": waiting for terminal state", map[string]interface{}{
		"orderID": orderID,
		"timeout": timeout.String(),
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case state := <-terminalCh:
		result := &MonitorResult{
			Completed:         true,
			Status:            state,
			MonitoringTime:    time.Since(start),
			MessagesProcessed: int(atomic.LoadInt64(&inspected)),
		}
		if status, found = s.manager.GetOrderStatus(orderID); found {
			result.FillInfo = fillInfoFromStatus(status)
		}
		s.logger.Info(ctx, op+": order completed", map[string]interface{}{"orderID": orderID, "state": state})
		return result, nil

	case <-timer.C:
		result := &MonitorResult{
			Status:            monitorStatusTimeout,
			MonitoringTime:    time.Since(start),
			MessagesProcessed: int(atomic.LoadInt64(&inspected)),
		}
		if status, found = s.manager.GetOrderStatus(orderID); found {
			result.FillInfo = fillInfoFromStatus(status)
		}
		s.logger.Info(ctx, op+": monitoring timed out", map[string]interface{}{"orderID": orderID, "timeout": timeout.String()})
		return result, nil

	case <-ctx.Done():
		result := &MonitorResult{
			Status:            monitorStatusCanceled,
			MonitoringTime:    time.Since(start),
			MessagesProcessed: int(atomic.LoadInt64(&inspected)),
		}
		return result, fmt.Errorf("%s interrupted: %w", op, ports.ErrContextCanceled)
	}
}

func fillInfoFromStatus(status *orders.OrderStatus) *FillInfo {
	return &FillInfo{
		VolumeExecuted:   status.VolumeExecuted,
		AverageFillPrice: status.AverageFillPrice,
		TotalFees:        status.TotalFeesPaid,
		FillCount:        status.FillCount,
	}
}
