// Package krakenws implements the ports.OrderFeed interface against
// Kraken's authenticated WebSocket API (v1). The client owns connection,
// subscription and reconnection; every frame the exchange sends is handed
// to the consumer raw, classification happens upstream.
package krakenws

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"krakenOrderTracker/internal/ports"
)

const (
	defaultURL = "wss://ws-auth.kraken.com"

	// readTimeout bounds a single read. Kraken emits heartbeats roughly
	// once a second on idle private subscriptions, so a silent connection
	// is a dead connection.
	readTimeout = 30 * time.Second

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// private feed channels this client subscribes to on connect.
var subscriptionNames = []string{"openOrders", "ownTrades"}

// Client implements the ports.OrderFeed interface using gorilla/websocket.
type Client struct {
	logger               ports.Logger
	url                  string
	token                string
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	dialer               *websocket.Dialer
}

// Config holds configuration specific to the Kraken WebSocket adapter.
type Config struct {
	URL                  string // Feed endpoint, defaults to the production auth endpoint
	Token                string // WebSockets API token from GetWebSocketsToken
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Initial reconnect delay (e.g., 5 * time.Second)
	MaxReconnectAttempts int           // Max consecutive failed attempts before giving up
}

// New creates a new Kraken WebSocket feed adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Kraken WebSocket client")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("websocket token is required: %w", ports.ErrAuthenticationFailed)
	}
	url := cfg.URL
	if url == "" {
		url = defaultURL
	}
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	return &Client{
		logger:               cfg.Logger,
		url:                  url,
		token:                cfg.Token,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}, nil
}

// subscribeRequest is the wire form of a private-feed subscription.
type subscribeRequest struct {
	Event        string           `json:"event"`
	Subscription subscriptionBody `json:"subscription"`
}

type subscriptionBody struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// StreamOrderUpdates connects to the private feed, subscribes to the
// openOrders and ownTrades channels and delivers every received frame to
// handler from a single goroutine. Connection failures are retried with
// exponential backoff; after maxReconnectAttempts consecutive failures the
// stream shuts down for good and doneCh closes.
func (c *Client) StreamOrderUpdates(ctx context.Context, handler func(raw []byte), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamOrderUpdates"
	if handler == nil {
		return nil, nil, fmt.Errorf("message handler is required")
	}
	if errHandler == nil {
		errHandler = func(error) {}
	}

	wsCtx, cancelWs := context.WithCancel(ctx)

	go func() {
		defer cancelWs()

		retry := &backoff.Backoff{
			Min:    c.reconnectDelay,
			Max:    2 * time.Minute,
			Factor: 2,
			Jitter: true,
		}
		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				c.logger.Info(wsCtx, op+": Context cancelled, stopping connection attempts.")
				return
			default:
			}

			c.logger.Info(wsCtx, op+": Connecting to exchange feed...", map[string]interface{}{"url": c.url, "attempt": attempt + 1})
			conn, connectErr := c.connect(wsCtx)
			if connectErr != nil {
				attempt++
				wrapped := fmt.Errorf("%w: %v", ports.ErrConnectionFailed, connectErr)
				c.logger.Error(wsCtx, wrapped, op+": Connection attempt failed", map[string]interface{}{"attempt": attempt})
				errHandler(wrapped)
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, wrapped, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"maxAttempts": c.maxReconnectAttempts})
					return
				}
				select {
				case <-time.After(retry.Duration()):
					continue
				case <-wsCtx.Done():
					c.logger.Info(wsCtx, op+": Context cancelled during backoff.")
					return
				}
			}

			c.logger.Info(wsCtx, op+": Feed connected and subscribed.", map[string]interface{}{"url": c.url})
			attempt = 0
			retry.Reset()

			readErr := c.readLoop(wsCtx, conn, handler)
			conn.Close()
			if wsCtx.Err() != nil {
				c.logger.Info(wsCtx, op+": Context cancelled, stopping feed.")
				return
			}
			readErr = fmt.Errorf("%w: %v", ports.ErrFeedClosed, readErr)
			c.logger.Warn(wsCtx, op+": Feed connection lost, reconnecting...", map[string]interface{}{"error": readErr.Error()})
			errHandler(readErr)
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		select {
		case <-stopCh:
			c.logger.Info(ctx, op+": Received external stop signal, closing feed.")
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// connect dials the endpoint and issues the channel subscriptions.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	for _, name := range subscriptionNames {
		req := subscribeRequest{
			Event: "subscribe",
			Subscription: subscriptionBody{
				Name:  name,
				Token: c.token,
			},
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(req); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: subscribe %s: %v", ports.ErrSubscriptionFailed, name, err)
		}
	}
	return conn, nil
}

// readLoop delivers frames until the connection dies or ctx is cancelled.
// Subscription acks, status events and heartbeats are forwarded along with
// data frames; the consumer's parser classifies them.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, handler func(raw []byte)) error {
	// Unblock the read when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		handler(raw)
	}
}
