package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReferencePriceSource supplies an external market reference price for a
// trading pair. The analytics engine compares fill prices against it to
// derive slippage and price improvement; which market serves as the
// reference is a deployment decision, so the source is injected rather
// than assumed.
type ReferencePriceSource interface {
	// GetReferencePrice returns the current reference price for the pair
	// in Kraken "BASE/QUOTE" notation.
	GetReferencePrice(ctx context.Context, pair string) (decimal.Decimal, error)
}
