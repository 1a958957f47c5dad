package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"krakenOrderTracker/internal/domain"
)

// OrderBrief is one row of the orders summary.
type OrderBrief struct {
	OrderID        string          `json:"order_id"`
	ClientOrderID  string          `json:"client_order_id,omitempty"`
	Pair           string          `json:"pair"`
	Side           string          `json:"side"`
	CurrentState   string          `json:"current_state"`
	Volume         decimal.Decimal `json:"volume"`
	VolumeExecuted decimal.Decimal `json:"volume_executed"`
	FillPercentage decimal.Decimal `json:"fill_percentage"`
}

// OrdersSummary is the outbound overview of everything the manager tracks.
type OrdersSummary struct {
	Enabled        bool         `json:"enabled"`
	TotalOrders    int          `json:"total_orders"`
	ActiveOrders   int          `json:"active_orders"`
	TerminalOrders int          `json:"terminal_orders"`
	Orders         []OrderBrief `json:"orders"`
}

// TransitionRecord is one state-history entry in an order status report.
type TransitionRecord struct {
	From      string    `json:"from_state"`
	To        string    `json:"to_state"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// OrderStatus is the full outbound view of a single order.
type OrderStatus struct {
	OrderID          string          `json:"order_id"`
	ClientOrderID    string          `json:"client_order_id,omitempty"`
	CurrentState     string          `json:"current_state"`
	Pair             string          `json:"pair"`
	Side             string          `json:"side"`
	OrderType        string          `json:"order_type"`
	Volume           decimal.Decimal `json:"volume"`
	VolumeExecuted   decimal.Decimal `json:"volume_executed"`
	VolumeRemaining  decimal.Decimal `json:"volume_remaining"`
	FillPercentage   decimal.Decimal `json:"fill_percentage"`
	AverageFillPrice decimal.Decimal `json:"average_fill_price"`
	TotalFeesPaid    decimal.Decimal `json:"total_fees_paid"`
	FillCount        int             `json:"fill_count"`

	CreatedAt   time.Time  `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	FirstFillAt *time.Time `json:"first_fill_at,omitempty"`
	LastFillAt  *time.Time `json:"last_fill_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastUpdate  time.Time  `json:"last_update"`

	StateHistory []TransitionRecord `json:"state_history"`

	IsActive      bool `json:"is_active"`
	IsTerminal    bool `json:"is_terminal"`
	CanBeCanceled bool `json:"can_be_canceled"`
}

// GetOrdersSummary returns the overview report for all tracked orders.
func (m *Manager) GetOrdersSummary() OrdersSummary {
	all := m.GetAllOrders()
	summary := OrdersSummary{
		Enabled:     m.IsEnabled(),
		TotalOrders: len(all),
		Orders:      make([]OrderBrief, 0, len(all)),
	}
	for _, order := range all {
		if order.IsTerminal() {
			summary.TerminalOrders++
		} else {
			summary.ActiveOrders++
		}
		summary.Orders = append(summary.Orders, OrderBrief{
			OrderID:        order.OrderID,
			ClientOrderID:  order.ClientOrderID,
			Pair:           order.Pair,
			Side:           string(order.Side),
			CurrentState:   string(order.CurrentState),
			Volume:         order.Volume,
			VolumeExecuted: order.VolumeExecuted,
			FillPercentage: order.FillPercentage(),
		})
	}
	return summary
}

// GetOrderStatus returns the full status report for one order. The second
// return value is false when the id is unknown; an unknown id is an answer,
// not an error.
func (m *Manager) GetOrderStatus(orderID string) (*OrderStatus, bool) {
	order, ok := m.GetOrder(orderID)
	if !ok {
		return nil, false
	}
	return statusFromOrder(order), true
}

func statusFromOrder(order *domain.Order) *OrderStatus {
	history := make([]TransitionRecord, 0, len(order.History))
	for _, tr := range order.History {
		history = append(history, TransitionRecord{
			From:      string(tr.From),
			To:        string(tr.To),
			Event:     string(tr.Event),
			Timestamp: tr.Timestamp,
			Reason:    tr.Reason,
		})
	}
	return &OrderStatus{
		OrderID:          order.OrderID,
		ClientOrderID:    order.ClientOrderID,
		CurrentState:     string(order.CurrentState),
		Pair:             order.Pair,
		Side:             string(order.Side),
		OrderType:        string(order.Type),
		Volume:           order.Volume,
		VolumeExecuted:   order.VolumeExecuted,
		VolumeRemaining:  order.VolumeRemaining(),
		FillPercentage:   order.FillPercentage(),
		AverageFillPrice: order.AvgFillPrice,
		TotalFeesPaid:    order.TotalFeesPaid,
		FillCount:        order.FillCount,
		CreatedAt:        order.CreatedAt,
		SubmittedAt:      timePtr(order.SubmittedAt),
		FirstFillAt:      timePtr(order.FirstFillAt),
		LastFillAt:       timePtr(order.LastFillAt),
		CompletedAt:      timePtr(order.CompletedAt),
		LastUpdate:       order.LastUpdate,
		StateHistory:     history,
		IsActive:         order.IsActive(),
		IsTerminal:       order.IsTerminal(),
		CanBeCanceled:    order.CanBeCanceled(),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
