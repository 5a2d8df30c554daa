package broker

import (
	"bytes"
	"runtime/debug"

	"github.com/dshills/topicmq/internal/mq"
)

// delivery is the outcome of a publish scan: the subscribers matched while
// the lock was held, to be invoked once it is released.
type delivery struct {
	topic   string
	payload []byte
	subs    []*mq.Subscriber
	pub     *mq.Publisher
}

func (d *delivery) result() mq.Result {
	if len(d.subs) > 0 {
		return mq.Success
	}
	return mq.NotFound
}

// deliver invokes every matched subscriber with its own copy of the payload,
// then completes the publisher exactly once.
func (b *Broker) deliver(d *delivery) {
	for _, sub := range d.subs {
		b.invoke(d.topic, sub, bytes.Clone(d.payload))
	}
	b.delivered.Add(uint64(len(d.subs)))
	if len(d.subs) == 0 {
		b.unmatched.Add(1)
	}
	d.pub.Complete(d.topic, d.result())
}

// invoke runs one subscriber callback. A panic is recovered, counted and
// reported; it never reaches the publisher.
func (b *Broker) invoke(name string, sub *mq.Subscriber, payload []byte) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		stack := debug.Stack()
		b.panics.Add(1)
		b.log.Error("subscriber panicked", "topic", name, "subscriber", sub.ID(), "panic", r)

		if h := b.cfg.panicHandler; h != nil {
			func() {
				defer func() {
					_ = recover()
				}()
				h(name, r, stack)
			}()
		}
	}()

	sub.Deliver(name, payload)
}
