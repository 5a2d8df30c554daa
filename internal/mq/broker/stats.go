package broker

// Stats is a snapshot of broker counters.
type Stats struct {
	// Topics is the number of registered topics.
	Topics int

	// Subscriptions is the number of subscribers over all topics.
	Subscriptions int

	// Tokens is the vocabulary size.
	Tokens int

	// Pending is the number of deferred requests waiting for the lock.
	Pending int

	Published        uint64
	Delivered        uint64
	Unmatched        uint64
	SubscriberPanics uint64
	LockTimeouts     uint64
	Escalations      uint64
}

// Stats returns current broker statistics. It does not take the lock.
func (b *Broker) Stats() Stats {
	s := Stats{
		Topics:           int(b.nTopics.Load()),
		Subscriptions:    int(b.nSubs.Load()),
		Published:        b.published.Load(),
		Delivered:        b.delivered.Load(),
		Unmatched:        b.unmatched.Load(),
		SubscriberPanics: b.panics.Load(),
		LockTimeouts:     b.lockTimeouts.Load(),
		Escalations:      b.escalations.Load(),
	}
	if b.Ready() {
		s.Tokens = b.codec.Vocabulary().Len()
	}
	if b.pending != nil {
		s.Pending = b.pending.Len()
	}
	return s
}
