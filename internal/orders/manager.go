// Package orders owns the order registry and its mutation surface. The
// manager is the only writer of order state: the feed reconciler and any
// local callers drive mutations through its methods, everything else reads
// cloned snapshots through its accessors.
package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"krakenOrderTracker/internal/domain"
	"krakenOrderTracker/internal/events"
	"krakenOrderTracker/internal/ports"
)

// Config holds the dependencies for the order manager.
type Config struct {
	Logger     ports.Logger
	Dispatcher *events.Dispatcher
	Journal    ports.FillRepository // optional; nil disables fill journaling
	Disabled   bool                 // start with mutation intake frozen
}

// Statistics are the manager's monotonically-updated counters. Each
// transition counter increments exactly once per qualifying transition,
// never on resync of an order already in that state.
type Statistics struct {
	OrdersCreated   int64     `json:"orders_created"`
	OrdersSubmitted int64     `json:"orders_submitted"` // entries into open
	OrdersFilled    int64     `json:"orders_filled"`
	OrdersCanceled  int64     `json:"orders_canceled"`
	OrdersRejected  int64     `json:"orders_rejected"`
	OrdersExpired   int64     `json:"orders_expired"`
	OrdersFailed    int64     `json:"orders_failed"`
	FillsProcessed  int64     `json:"fills_processed"`
	DuplicateFills  int64     `json:"duplicate_fills"`
	LastFillTime    time.Time `json:"last_fill_time"`
}

// orderEntry pairs an order with the mutex serializing its read-modify-write.
// Mutations for different orders may interleave; mutations for the same
// order never do.
type orderEntry struct {
	mu    sync.Mutex
	order *domain.Order
}

// Manager is the sole owner of the order collection.
type Manager struct {
	logger     ports.Logger
	dispatcher *events.Dispatcher
	journal    ports.FillRepository

	mu         sync.RWMutex // guards the maps, slice, stats and enabled flag
	enabled    bool
	byID       map[string]*orderEntry // keyed by client order id and exchange txid
	entries    []*orderEntry          // insertion order, for summaries
	seenTrades map[string]struct{}
	stats      Statistics
}

// NewManager creates an order manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for order manager")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("event dispatcher is required for order manager")
	}
	return &Manager{
		logger:     cfg.Logger,
		dispatcher: cfg.Dispatcher,
		journal:    cfg.Journal,
		enabled:    !cfg.Disabled,
		byID:       make(map[string]*orderEntry),
		seenTrades: make(map[string]struct{}),
	}, nil
}

// SetEnabled toggles mutation intake. A disabled manager drops snapshot and
// fill messages after logging; reads keep working.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
}

// IsEnabled reports whether the manager accepts mutations.
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// lookup resolves an order entry by client order id or exchange txid.
func (m *Manager) lookup(id string) *orderEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

// CreateOrderRequest carries the parameters for a new local order.
type CreateOrderRequest struct {
	ClientOrderID string // optional; a uuid is assigned when empty
	Pair          string
	Side          domain.OrderSide
	Type          domain.OrderType
	Volume        decimal.Decimal
	LimitPrice    decimal.Decimal
	StopPrice     decimal.Decimal
}

func (r CreateOrderRequest) validate() error {
	if r.Pair == "" {
		return fmt.Errorf("%w: pair is required", ports.ErrValidation)
	}
	if !r.Side.IsValid() {
		return fmt.Errorf("%w: unknown side %q", ports.ErrValidation, r.Side)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: unknown order type %q", ports.ErrValidation, r.Type)
	}
	if !r.Volume.IsPositive() {
		return fmt.Errorf("%w: volume must be positive, got %s", ports.ErrValidation, r.Volume)
	}
	if r.Type == domain.Limit && !r.LimitPrice.IsPositive() {
		return fmt.Errorf("%w: limit orders require a positive limit price", ports.ErrValidation)
	}
	if (r.Type == domain.StopLoss || r.Type == domain.TakeProfit) && !r.StopPrice.IsPositive() {
		return fmt.Errorf("%w: %s orders require a positive trigger price", ports.ErrValidation, r.Type)
	}
	return nil
}

// CreateOrder allocates a new order in pending_submit and indexes it under
// its client order id. Only validation failures are returned as errors.
func (m *Manager) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	op := "CreateOrder"
	if err := req.validate(); err != nil {
		m.logger.Warn(ctx, op+": rejected order request", map[string]interface{}{
			"pair":   req.Pair,
			"reason": err.Error(),
		})
		return nil, err
	}

	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	now := time.Now()
	order := &domain.Order{
		ClientOrderID:  clientID,
		Pair:           req.Pair,
		Side:           req.Side,
		Type:           req.Type,
		Volume:         req.Volume,
		LimitPrice:     req.LimitPrice,
		StopPrice:      req.StopPrice,
		CurrentState:   domain.StatePendingSubmit,
		VolumeExecuted: decimal.Zero,
		AvgFillPrice:   decimal.Zero,
		TotalFeesPaid:  decimal.Zero,
		CreatedAt:      now,
		LastUpdate:     now,
	}
	entry := &orderEntry{order: order}

	m.mu.Lock()
	if _, exists := m.byID[clientID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: client order id %s is already tracked", ports.ErrValidation, clientID)
	}
	m.byID[clientID] = entry
	m.entries = append(m.entries, entry)
	m.stats.OrdersCreated++
	m.mu.Unlock()

	m.logger.Info(ctx, op+": order created", map[string]interface{}{
		"clientOrderID": clientID,
		"pair":          req.Pair,
		"side":          string(req.Side),
		"type":          string(req.Type),
		"volume":        req.Volume.String(),
	})
	return order.Clone(), nil
}

// MarkSubmitted binds the exchange txid to a locally created order once the
// exchange has acknowledged the submission, and reindexes the order so feed
// messages keyed by txid resolve to it. Idempotent for the same txid.
func (m *Manager) MarkSubmitted(ctx context.Context, clientOrderID, exchangeOrderID string) error {
	op := "MarkSubmitted"
	if exchangeOrderID == "" {
		return fmt.Errorf("%w: exchange order id is required", ports.ErrValidation)
	}
	entry := m.lookup(clientOrderID)
	if entry == nil {
		m.logger.Warn(ctx, op+": unknown client order id", map[string]interface{}{"clientOrderID": clientOrderID})
		return fmt.Errorf("%w: %s", ports.ErrUnknownOrder, clientOrderID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	order := entry.order
	if order.OrderID == exchangeOrderID {
		return nil
	}
	if order.OrderID != "" {
		return fmt.Errorf("%w: order %s is already bound to exchange id %s", ports.ErrValidation, clientOrderID, order.OrderID)
	}

	m.mu.Lock()
	if existing, taken := m.byID[exchangeOrderID]; taken && existing != entry {
		m.mu.Unlock()
		return fmt.Errorf("%w: exchange order id %s is already tracked", ports.ErrValidation, exchangeOrderID)
	}
	m.byID[exchangeOrderID] = entry
	m.mu.Unlock()

	now := time.Now()
	order.OrderID = exchangeOrderID
	order.SubmittedAt = now
	order.LastUpdate = now
	m.logger.Info(ctx, op+": order bound to exchange id", map[string]interface{}{
		"clientOrderID": clientOrderID,
		"orderID":       exchangeOrderID,
	})
	return nil
}

// GetOrder returns a snapshot of the order known under the given id
// (client order id or exchange txid).
func (m *Manager) GetOrder(id string) (*domain.Order, bool) {
	entry := m.lookup(id)
	if entry == nil {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.order.Clone(), true
}

// HasOrder reports whether an order is tracked under the given id.
func (m *Manager) HasOrder(id string) bool {
	return m.lookup(id) != nil
}

// GetAllOrders returns snapshots of every tracked order in creation order.
func (m *Manager) GetAllOrders() []*domain.Order {
	m.mu.RLock()
	entries := make([]*orderEntry, len(m.entries))
	copy(entries, m.entries)
	m.mu.RUnlock()

	out := make([]*domain.Order, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		out = append(out, entry.order.Clone())
		entry.mu.Unlock()
	}
	return out
}

// GetStatistics returns a copy of the manager's counters.
func (m *Manager) GetStatistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// countTransition bumps the counter matching a committed transition.
// Transitions into a given state happen at most once per order (the state
// machine forbids re-entry), which keeps these counters redelivery-safe.
func (m *Manager) countTransition(to domain.OrderState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch to {
	case domain.StateOpen:
		m.stats.OrdersSubmitted++
	case domain.StateFilled:
		m.stats.OrdersFilled++
	case domain.StateCanceled:
		m.stats.OrdersCanceled++
	case domain.StateRejected:
		m.stats.OrdersRejected++
	case domain.StateExpired:
		m.stats.OrdersExpired++
	case domain.StateFailed:
		m.stats.OrdersFailed++
	}
}
