package broker

import (
	"bytes"
	"sync"

	"github.com/dshills/topicmq/internal/mq"
)

type requestKind int

const (
	reqSubscribe requestKind = iota
	reqUnsubscribe
	reqPublish
)

func (k requestKind) String() string {
	switch k {
	case reqSubscribe:
		return "subscribe"
	case reqUnsubscribe:
		return "unsubscribe"
	case reqPublish:
		return "publish"
	default:
		return "unknown"
	}
}

// request is an operation deferred after a lock timeout. It owns copies of
// the name and payload.
type request struct {
	kind    requestKind
	name    string
	payload []byte
	sub     *mq.Subscriber
	pub     *mq.Publisher
}

// pendingQueue is a bounded FIFO of deferred requests. It has its own mutex
// because it is filled by callers that failed to get the broker lock.
type pendingQueue struct {
	mu    sync.Mutex
	items []request
	limit int
}

func newPendingQueue(limit int) *pendingQueue {
	return &pendingQueue{limit: limit}
}

// Push queues req and reports whether there was room for it.
func (q *pendingQueue) Push(req request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.limit {
		return false
	}
	req.payload = bytes.Clone(req.payload)
	q.items = append(q.items, req)
	return true
}

// Take removes and returns all queued requests in arrival order.
func (q *pendingQueue) Take() []request {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued requests.
func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// deferRequest queues req after a lock timeout. Without a queue, or when it
// is full, the timeout is returned to the caller.
func (b *Broker) deferRequest(req request) error {
	if b.pending == nil || !b.pending.Push(req) {
		return mq.ErrLockTimeout
	}
	b.trace("request deferred", "op", req.kind.String(), "topic", req.name)
	return nil
}

// replayPending applies queued requests. The broker lock must be held. The
// returned deliveries are made after the lock is released.
func (b *Broker) replayPending() []*delivery {
	if b.pending == nil {
		return nil
	}
	var out []*delivery
	for _, req := range b.pending.Take() {
		var err error
		switch req.kind {
		case reqSubscribe:
			err = b.subscribeLocked(req.name, req.sub)
		case reqUnsubscribe:
			err = b.unsubscribeLocked(req.name, req.sub)
		case reqPublish:
			var d *delivery
			d, err = b.publishLocked(req.name, req.payload, req.pub)
			if d != nil {
				out = append(out, d)
			}
		}
		if err != nil {
			b.log.Warn("deferred request failed", "op", req.kind.String(), "topic", req.name, "error", err)
		}
	}
	return out
}
