// Package client is the application-facing API of the broker. It forwards
// to a broker.Broker and runs bridge dispatch after every publish, so
// bridge handlers can republish through the same Client.
package client

import (
	"context"
	"io"
	"log/slog"

	"github.com/dshills/topicmq/internal/mq"
	"github.com/dshills/topicmq/internal/mq/bridge"
	"github.com/dshills/topicmq/internal/mq/broker"
	"github.com/dshills/topicmq/internal/mq/topic"
)

// DefaultMaxRedirects bounds how many bridge hops a single publish may
// cause.
const DefaultMaxRedirects = 8

// Client combines a broker with a bridge manager.
type Client struct {
	broker       *broker.Broker
	bridges      *bridge.Manager
	maxRedirects int
	log          *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBridgeManager uses m instead of a private bridge manager.
func WithBridgeManager(m *bridge.Manager) Option {
	return func(c *Client) {
		if m != nil {
			c.bridges = m
		}
	}
}

// WithMaxRedirects sets the bridge hop limit.
func WithMaxRedirects(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a client for b.
func New(b *broker.Broker, opts ...Option) *Client {
	c := &Client{
		broker:       b,
		maxRedirects: DefaultMaxRedirects,
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bridges == nil {
		c.bridges = bridge.NewManager(bridge.WithLogger(c.log))
	}
	c.log = c.log.With("component", "client")
	return c
}

// Broker returns the underlying broker.
func (c *Client) Broker() *broker.Broker {
	return c.broker
}

// Bridges returns the bridge manager.
func (c *Client) Bridges() *bridge.Manager {
	return c.bridges
}

// Subscribe registers sub for name.
func (c *Client) Subscribe(ctx context.Context, name string, sub *mq.Subscriber) error {
	return c.broker.Subscribe(ctx, name, sub)
}

// Unsubscribe removes sub from name.
func (c *Client) Unsubscribe(ctx context.Context, name string, sub *mq.Subscriber) error {
	return c.broker.Unsubscribe(ctx, name, sub)
}

// Publish delivers payload to the matching subscribers and then to the
// matching bridges. Bridges run whenever the broker accepted the publish,
// even if no subscriber matched. A publish made by a bridge handler with
// the context it received counts as one hop; beyond the hop limit Publish
// fails with mq.ErrOutOfBounds.
func (c *Client) Publish(ctx context.Context, name string, payload []byte, pub *mq.Publisher) error {
	hops := redirects(ctx)
	if hops > c.maxRedirects {
		c.log.Warn("redirect limit reached", "topic", name, "hops", hops)
		return mq.Wrap("publish", name, mq.ErrOutOfBounds)
	}

	if err := c.broker.Publish(ctx, name, payload, pub); err != nil {
		return err
	}
	c.bridges.Dispatch(withRedirects(ctx, hops+1), name, payload, pub)
	return nil
}

// Republish delivers payload to the matching subscribers only. Bridges are
// not consulted.
func (c *Client) Republish(ctx context.Context, name string, payload []byte, pub *mq.Publisher) error {
	return c.broker.Publish(ctx, name, payload, pub)
}

// AddBridge registers h for messages published on pattern.
func (c *Client) AddBridge(pattern string, h *mq.BridgeHandler) error {
	return c.bridges.Add(pattern, h)
}

// RemoveBridge unregisters h from pattern.
func (c *Client) RemoveBridge(pattern string, h *mq.BridgeHandler) error {
	return c.bridges.Remove(pattern, h)
}

// Exists reports whether a topic is registered under exactly name.
func (c *Client) Exists(name string) bool {
	return c.broker.Exists(name)
}

// TopicID encodes name with the current vocabulary.
func (c *Client) TopicID(name string) (topic.ID, error) {
	return c.broker.TopicID(name)
}

// TopicName decodes id with the current vocabulary.
func (c *Client) TopicName(id topic.ID) (string, error) {
	return c.broker.TopicName(id)
}

// MaxTopicLen returns the topic name bound.
func (c *Client) MaxTopicLen() int {
	return c.broker.MaxTopicLen()
}

// Tokens returns the vocabulary in id order.
func (c *Client) Tokens() []string {
	return c.broker.Tokens()
}

type redirectKey struct{}

func redirects(ctx context.Context) int {
	n, _ := ctx.Value(redirectKey{}).(int)
	return n
}

func withRedirects(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, redirectKey{}, n)
}
