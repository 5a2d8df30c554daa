package mq

import (
	"context"

	"github.com/google/uuid"
)

// SubscribeFunc receives a published topic and a private copy of its payload.
type SubscribeFunc func(topic string, payload []byte)

// PublishFunc receives the outcome of a publish: Success when at least one
// subscriber matched, NotFound otherwise.
type PublishFunc func(topic string, result Result)

// BridgeFunc is invoked for a publish that matched a bridge pattern. It may
// republish under a new topic; ctx carries the redirect depth.
type BridgeFunc func(ctx context.Context, topic string, payload []byte, publisher *Publisher)

// Subscriber is the identity of a subscription callback.
type Subscriber struct {
	id uuid.UUID
	fn SubscribeFunc
}

// NewSubscriber creates a subscriber handle for fn.
func NewSubscriber(fn SubscribeFunc) *Subscriber {
	return &Subscriber{id: uuid.New(), fn: fn}
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() uuid.UUID {
	return s.id
}

// Deliver invokes the callback. A nil callback is a no-op.
func (s *Subscriber) Deliver(topic string, payload []byte) {
	if s.fn != nil {
		s.fn(topic, payload)
	}
}

// Publisher is the identity of a publish-completion callback.
type Publisher struct {
	id uuid.UUID
	fn PublishFunc
}

// NewPublisher creates a publisher handle for fn.
func NewPublisher(fn PublishFunc) *Publisher {
	return &Publisher{id: uuid.New(), fn: fn}
}

// ID returns the publisher's unique identifier.
func (p *Publisher) ID() uuid.UUID {
	return p.id
}

// Complete reports the outcome of a publish. It is safe on a nil Publisher.
func (p *Publisher) Complete(topic string, result Result) {
	if p != nil && p.fn != nil {
		p.fn(topic, result)
	}
}

// BridgeHandler is the identity of a bridge callback.
type BridgeHandler struct {
	id uuid.UUID
	fn BridgeFunc
}

// NewBridgeHandler creates a bridge handle for fn.
func NewBridgeHandler(fn BridgeFunc) *BridgeHandler {
	return &BridgeHandler{id: uuid.New(), fn: fn}
}

// ID returns the handler's unique identifier.
func (h *BridgeHandler) ID() uuid.UUID {
	return h.id
}

// Redirect invokes the bridge callback.
func (h *BridgeHandler) Redirect(ctx context.Context, topic string, payload []byte, publisher *Publisher) {
	if h.fn != nil {
		h.fn(ctx, topic, payload, publisher)
	}
}
