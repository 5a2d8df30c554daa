// Package broker implements the topic registry: subscriptions keyed by
// topic name, publish fan-out through the topic matcher and the bounded
// lock discipline around both.
//
// A Broker is created with New, configured with Options and must be
// started before use:
//
//	b := broker.New(broker.WithMaxNameLen(64))
//	if err := b.Start(); err != nil {
//	    return err
//	}
//	sub := mq.NewSubscriber(func(topic string, payload []byte) { ... })
//	_ = b.Subscribe(ctx, "stat/+/#", sub)
//	_ = b.Publish(ctx, "stat/var/1", []byte("42"), nil)
//
// Every wait on the broker lock is bounded by the lock timeout. Callers
// get mq.ErrLockTimeout instead of blocking, and a publisher that keeps
// timing out triggers the escalation hook, which by default restarts the
// process. With WithPendingQueue, timed-out requests are instead queued and
// replayed by the next caller that obtains the lock.
//
// Operations that must not wait at all use Trusted, which skips the lock
// entirely and leaves exclusion to the caller. WithLock runs several
// operations under one acquisition.
package broker
