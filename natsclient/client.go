// Package natsclient provides a thin client for the NATS connection that
// carries worker telemetry. It wraps connect/subscribe/publish with the
// engine's error classification and keeps the nats.Conn out of callers.
package natsclient

import (
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nominal-io/connect/errors"
)

// Client manages a single NATS connection.
type Client struct {
	url    string
	logger *slog.Logger

	// Connection options
	name          string
	timeout       time.Duration
	maxReconnects int
	reconnectWait time.Duration

	mu   sync.RWMutex
	conn *nats.Conn
}

// NewClient creates a new NATS client with optional configuration.
// The connection is not established until Connect is called.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		name:          "connect-engine",
		timeout:       5 * time.Second,
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	if c.logger == nil {
		c.logger = slog.Default().With("component", "natsclient")
	}

	return c, nil
}

// URL returns the NATS server URL.
func (c *Client) URL() string {
	return c.url
}

// Connect establishes the NATS connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil // Already connected, idempotent
	}

	conn, err := nats.Connect(c.url,
		nats.Name(c.name),
		nats.Timeout(c.timeout),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return errors.WrapTransient(err, "Client", "Connect", "NATS connect")
	}

	c.conn = conn
	c.logger.Debug("Connected to NATS", "url", c.url)
	return nil
}

// IsConnected reports whether the underlying connection is established.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// SubscribeSync creates a synchronous subscription on the given subject.
// Messages are pulled with Subscription.Receive.
func (c *Client) SubscribeSync(subject string) (*Subscription, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "SubscribeSync", "subscribe")
	}

	sub, err := conn.SubscribeSync(subject)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "SubscribeSync", "subscribe")
	}

	return &Subscription{sub: sub}, nil
}

// Publish sends data on the given subject. Used by test harnesses and
// local tooling; worker processes normally publish from their own side.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "Publish", "publish")
	}

	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish")
	}
	return nil
}

// Close drains and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}

	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("NATS drain failed, closing hard", "error", err)
		c.conn.Close()
	}
	c.conn = nil
}

// Subscription wraps a synchronous NATS subscription as a timeout-bounded
// receiver.
type Subscription struct {
	sub *nats.Subscription
}

// Receive waits up to timeout for the next message and returns its payload.
// Returns errors.ErrReceiveTimeout when no message arrived in time.
func (s *Subscription) Receive(timeout time.Duration) ([]byte, error) {
	msg, err := s.sub.NextMsg(timeout)
	if err != nil {
		if stderrors.Is(err, nats.ErrTimeout) {
			return nil, errors.ErrReceiveTimeout
		}
		return nil, errors.WrapTransient(err, "Subscription", "Receive", "next message")
	}
	return msg.Data, nil
}

// Unsubscribe removes the subscription.
func (s *Subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return errors.WrapTransient(err, "Subscription", "Unsubscribe", "unsubscribe")
	}
	return nil
}
