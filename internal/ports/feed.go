package ports

import "context"

// OrderFeed delivers raw private-feed messages (order snapshots, own
// trades, heartbeats) from the exchange. Implementations own connection,
// authentication and reconnection; consumers only see message bytes.
type OrderFeed interface {
	// StreamOrderUpdates starts the feed and invokes handler for every raw
	// message received, in arrival order, from a single goroutine. Errors
	// that do not kill the stream are reported through errHandler.
	// The returned doneCh closes when the stream has shut down for good;
	// sending on stopCh (or canceling ctx) requests shutdown.
	StreamOrderUpdates(ctx context.Context, handler func(raw []byte), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
