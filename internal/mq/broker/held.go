package broker

import (
	"context"

	"github.com/dshills/topicmq/internal/mq"
)

// Held performs broker operations without taking the broker lock. It is
// obtained from WithLock, while the lock is held, or from Trusted.
//
// Deliveries made through Held run before its methods return, so a
// subscriber invoked here must not call back into the locking API.
type Held struct {
	b       *Broker
	trusted bool
}

// WithLock acquires the broker lock, runs fn with a Held bound to it and
// releases the lock when fn returns. The Held must not be used after that.
func (b *Broker) WithLock(ctx context.Context, fn func(h *Held) error) error {
	if !b.Ready() {
		return mq.Wrap("lock", "", mq.ErrDeinitialized)
	}
	if err := b.lock(ctx); err != nil {
		return mq.Wrap("lock", "", err)
	}
	defer b.unlock()

	return fn(&Held{b: b})
}

// Trusted returns a Held for callers that cannot block, such as signal or
// watchdog paths. It never takes the lock: the caller guarantees that no
// other goroutine mutates the broker while it is used.
func (b *Broker) Trusted() *Held {
	return &Held{b: b, trusted: true}
}

// Subscribe is Broker.Subscribe without locking.
func (h *Held) Subscribe(name string, sub *mq.Subscriber) error {
	const op = "subscribe"
	if err := h.b.check(op, name); err != nil {
		return err
	}
	if sub == nil {
		return mq.Wrap(op, name, mq.ErrNullPointer)
	}
	err := h.b.subscribeLocked(name, sub)
	h.done()
	return mq.Wrap(op, name, err)
}

// Unsubscribe is Broker.Unsubscribe without locking.
func (h *Held) Unsubscribe(name string, sub *mq.Subscriber) error {
	const op = "unsubscribe"
	if err := h.b.check(op, name); err != nil {
		return err
	}
	if sub == nil {
		return mq.Wrap(op, name, mq.ErrNullPointer)
	}
	err := h.b.unsubscribeLocked(name, sub)
	h.done()
	return mq.Wrap(op, name, err)
}

// Publish is Broker.Publish without locking. Subscribers are invoked
// before it returns.
func (h *Held) Publish(name string, payload []byte, pub *mq.Publisher) error {
	const op = "publish"
	if err := h.b.check(op, name); err != nil {
		return err
	}
	d, err := h.b.publishLocked(name, payload, pub)
	if err != nil {
		return mq.Wrap(op, name, err)
	}
	h.b.deliver(d)
	return nil
}

// Exists is Broker.Exists without locking.
func (h *Held) Exists(name string) bool {
	if h.b.check("exists", name) != nil {
		return false
	}
	_, _, ok := h.b.topics.Lookup(name)
	return ok
}

// done publishes the table counters. Under WithLock the unlock does it.
func (h *Held) done() {
	if h.trusted {
		h.b.syncCounts()
	}
}
