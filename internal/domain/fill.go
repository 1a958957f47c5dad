package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill represents a single trade execution against an order, as delivered
// on the exchange's own-trades feed. Fills are ephemeral event records:
// the manager folds them into the parent order and the analytics engine
// aggregates them, but nothing re-reads a Fill after processing.
type Fill struct {
	TradeID string // Exchange trade id, the dedup key
	OrderID string // Exchange txid of the parent order
	Pair    string
	Side    OrderSide
	Volume  decimal.Decimal // Executed volume of this fill
	Price   decimal.Decimal // Execution price
	Fee     decimal.Decimal
	Cost    decimal.Decimal // Quote-currency cost (price * volume as reported)
	Time    time.Time
}

// Notional returns the quote-currency value of the fill. The exchange's
// reported cost is preferred; price*volume is the fallback when a feed
// omits it.
func (f *Fill) Notional() decimal.Decimal {
	if !f.Cost.IsZero() {
		return f.Cost
	}
	return f.Price.Mul(f.Volume)
}
