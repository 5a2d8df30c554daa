package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dshills/topicmq/internal/mq"
	"github.com/dshills/topicmq/internal/mq/lock"
	"github.com/dshills/topicmq/internal/mq/topic"
)

// Broker is the topic registry. It owns the vocabulary, the registered
// topics with their subscribers and the lock discipline around them.
// All methods are safe for concurrent use.
type Broker struct {
	cfg config
	log *slog.Logger
	mu  *lock.Mutex

	startMu sync.Mutex
	started atomic.Bool

	// Set by Start, read-only afterwards.
	codec *topic.Codec

	// Guarded by mu.
	topics *store

	pending  *pendingQueue
	escalate EscalationFunc
	debug    atomic.Bool

	// streak counts consecutive publish lock timeouts.
	streak atomic.Int32

	// Stats
	nTopics      atomic.Int64
	nSubs        atomic.Int64
	published    atomic.Uint64
	delivered    atomic.Uint64
	unmatched    atomic.Uint64
	panics       atomic.Uint64
	lockTimeouts atomic.Uint64
	escalations  atomic.Uint64
}

// New creates a broker. It must be started before use.
func New(opts ...Option) *Broker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Broker{
		cfg: cfg,
		log: cfg.logger.With("component", "broker"),
		mu:  lock.New(),
	}
	b.escalate = cfg.escalate
	if b.escalate == nil {
		b.escalate = restartProcess(b.log)
	}
	if cfg.pendingSize > 0 {
		b.pending = newPendingQueue(cfg.pendingSize)
	}
	b.debug.Store(cfg.debug)
	return b
}

// Start initializes the vocabulary and the topic table. It fails with
// mq.ErrExists when called twice and with mq.ErrOutOfBounds when the
// vocabulary cannot be addressed by a topic.Token.
func (b *Broker) Start() error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	if b.started.Load() {
		return mq.Wrap("start", "", mq.ErrExists)
	}

	var (
		vocab *topic.Vocabulary
		err   error
	)
	if len(b.cfg.predefined) > 0 {
		vocab, err = topic.NewPredefinedVocabulary(b.cfg.predefined)
	} else {
		vocab, err = topic.NewVocabulary(b.cfg.vocabCapacity)
	}
	if err != nil {
		return mq.Wrap("start", "", err)
	}

	b.codec = topic.NewCodec(vocab, b.cfg.maxDepth)
	b.topics = newStore(b.cfg.maxTopics)
	b.started.Store(true)

	b.log.Info("broker started",
		"max_name_len", b.cfg.maxNameLen,
		"managed", vocab.Managed(),
		"vocabulary", vocab.Cap(),
		"max_topics", b.cfg.maxTopics,
		"lock_timeout", b.cfg.lockTimeout,
	)
	return nil
}

// Ready reports whether Start has completed.
func (b *Broker) Ready() bool {
	return b.started.Load()
}

// SetDebug switches per-operation debug traces on or off.
func (b *Broker) SetDebug(enabled bool) {
	b.debug.Store(enabled)
}

// Debug reports whether debug traces are enabled.
func (b *Broker) Debug() bool {
	return b.debug.Load()
}

// MaxTopicLen returns the configured name bound. Names must be shorter.
func (b *Broker) MaxTopicLen() int {
	return b.cfg.maxNameLen
}

// Subscribe registers sub for name, which may contain wildcards. The topic
// is created on its first subscriber. Subscribing the same handle twice to
// a topic fails with mq.ErrExists.
func (b *Broker) Subscribe(ctx context.Context, name string, sub *mq.Subscriber) error {
	const op = "subscribe"
	if err := b.check(op, name); err != nil {
		return err
	}
	if sub == nil {
		return mq.Wrap(op, name, mq.ErrNullPointer)
	}

	if err := b.lock(ctx); err != nil {
		if !errors.Is(err, mq.ErrLockTimeout) {
			return mq.Wrap(op, name, err)
		}
		b.log.Warn("lock timeout", "op", op, "topic", name)
		return mq.Wrap(op, name, b.deferRequest(request{kind: reqSubscribe, name: name, sub: sub}))
	}
	err := b.subscribeLocked(name, sub)
	b.unlock()
	return mq.Wrap(op, name, err)
}

// Unsubscribe removes sub from name. The topic is removed with its last
// subscriber. It fails with mq.ErrNotFound if either is not registered.
func (b *Broker) Unsubscribe(ctx context.Context, name string, sub *mq.Subscriber) error {
	const op = "unsubscribe"
	if err := b.check(op, name); err != nil {
		return err
	}
	if sub == nil {
		return mq.Wrap(op, name, mq.ErrNullPointer)
	}

	if err := b.lock(ctx); err != nil {
		if !errors.Is(err, mq.ErrLockTimeout) {
			return mq.Wrap(op, name, err)
		}
		b.log.Warn("lock timeout", "op", op, "topic", name)
		return mq.Wrap(op, name, b.deferRequest(request{kind: reqUnsubscribe, name: name, sub: sub}))
	}
	err := b.unsubscribeLocked(name, sub)
	b.unlock()
	return mq.Wrap(op, name, err)
}

// Publish delivers payload to every subscriber whose topic matches name.
// Each subscriber receives its own copy. pub, if not nil, is completed once
// with mq.Success when at least one subscriber matched and mq.NotFound
// otherwise.
//
// Matching runs under the lock against the topics registered when it was
// acquired; callbacks run after it is released, in the calling goroutine,
// so they may publish again. Callbacks are not serialized: publishes from
// different goroutines may run the same subscriber concurrently, and a
// subscriber that keeps state must guard it.
//
// Only an expired lock wait counts toward the escalation streak; a streak
// beyond the threshold invokes the escalation hook. If ctx ends first the
// context error is returned and nothing is deferred.
func (b *Broker) Publish(ctx context.Context, name string, payload []byte, pub *mq.Publisher) error {
	const op = "publish"
	if err := b.check(op, name); err != nil {
		return err
	}

	if err := b.lock(ctx); err != nil {
		// Cancellation does not count toward the escalation streak.
		if !errors.Is(err, mq.ErrLockTimeout) {
			return mq.Wrap(op, name, err)
		}
		streak := int(b.streak.Add(1))
		b.log.Error("lock timeout", "op", op, "topic", name, "streak", streak)
		if streak > b.cfg.escalateAfter {
			b.escalations.Add(1)
			b.escalate(streak)
		}
		return mq.Wrap(op, name, b.deferRequest(request{kind: reqPublish, name: name, payload: payload, pub: pub}))
	}
	b.streak.Store(0)

	d, err := b.publishLocked(name, payload, pub)
	b.unlock(d)
	return mq.Wrap(op, name, err)
}

// Exists reports whether a topic is registered under exactly name. No
// pattern matching is applied.
func (b *Broker) Exists(name string) bool {
	if b.check("exists", name) != nil {
		return false
	}
	if err := b.lock(context.Background()); err != nil {
		return false
	}
	defer b.unlock()

	_, _, ok := b.topics.Lookup(name)
	return ok
}

// Topics returns the names of the registered topics.
func (b *Broker) Topics(ctx context.Context) ([]string, error) {
	if !b.Ready() {
		return nil, mq.Wrap("topics", "", mq.ErrDeinitialized)
	}
	if err := b.lock(ctx); err != nil {
		return nil, mq.Wrap("topics", "", err)
	}
	defer b.unlock()

	names := make([]string, 0, b.topics.Len())
	b.topics.Each(func(rec *record) {
		names = append(names, rec.name)
	})
	return names, nil
}

// TopicID encodes name with the current vocabulary without growing it.
func (b *Broker) TopicID(name string) (topic.ID, error) {
	if err := b.check("topic id", name); err != nil {
		return topic.ID{}, err
	}
	return b.codec.Encode(name), nil
}

// TopicName decodes id with the current vocabulary.
func (b *Broker) TopicName(id topic.ID) (string, error) {
	if !b.Ready() {
		return "", mq.Wrap("topic name", "", mq.ErrDeinitialized)
	}
	return b.codec.Decode(id), nil
}

// Tokens returns a copy of the vocabulary in id order.
func (b *Broker) Tokens() []string {
	if !b.Ready() {
		return nil
	}
	return b.codec.Vocabulary().Tokens()
}

func (b *Broker) check(op, name string) error {
	if !b.Ready() {
		return mq.Wrap(op, name, mq.ErrDeinitialized)
	}
	if len(name) >= b.cfg.maxNameLen {
		return mq.Wrap(op, name, mq.ErrOutOfBounds)
	}
	return nil
}

func (b *Broker) lock(ctx context.Context) error {
	err := b.mu.Lock(ctx, b.cfg.lockTimeout)
	if errors.Is(err, mq.ErrLockTimeout) {
		b.lockTimeouts.Add(1)
	}
	return err
}

// unlock replays deferred requests, publishes the table counters and
// releases the lock, then makes the deliveries.
func (b *Broker) unlock(ds ...*delivery) {
	ds = append(ds, b.replayPending()...)
	b.syncCounts()
	b.mu.Unlock()

	for _, d := range ds {
		if d != nil {
			b.deliver(d)
		}
	}
}

func (b *Broker) syncCounts() {
	b.nTopics.Store(int64(b.topics.Len()))
	b.nSubs.Store(int64(b.topics.Subscriptions()))
}

func (b *Broker) subscribeLocked(name string, sub *mq.Subscriber) error {
	if rec, _, ok := b.topics.Lookup(name); ok {
		if rec.indexOf(sub) >= 0 {
			return mq.ErrExists
		}
		b.topics.Attach(rec, sub)
		b.trace("subscriber added", "topic", name, "subscriber", sub.ID(), "subscribers", len(rec.subs))
		return nil
	}

	if b.topics.Full() {
		return mq.ErrOutOfMemory
	}
	if err := b.codec.Ensure(name); err != nil {
		return err
	}
	rec := &record{
		name: name,
		id:   b.codec.Encode(name),
		subs: []*mq.Subscriber{sub},
	}
	b.topics.Insert(rec)
	b.trace("topic created", "topic", name, "id", rec.id.String(), "subscriber", sub.ID())
	return nil
}

func (b *Broker) unsubscribeLocked(name string, sub *mq.Subscriber) error {
	rec, r, ok := b.topics.Lookup(name)
	if !ok {
		return mq.ErrNotFound
	}
	i := rec.indexOf(sub)
	if i < 0 {
		return mq.ErrNotFound
	}
	if b.topics.Detach(r, rec, i) {
		b.trace("topic removed", "topic", name)
	} else {
		b.trace("subscriber removed", "topic", name, "subscriber", sub.ID())
	}
	return nil
}

func (b *Broker) publishLocked(name string, payload []byte, pub *mq.Publisher) (*delivery, error) {
	if err := b.codec.Ensure(name); err != nil {
		return nil, err
	}
	id := b.codec.Encode(name)
	b.published.Add(1)

	d := &delivery{topic: name, payload: payload, pub: pub}
	b.topics.Each(func(rec *record) {
		if rec.id.Matches(id) {
			b.trace("topic matched", "topic", name, "registered", rec.name, "subscribers", len(rec.subs))
			d.subs = append(d.subs, rec.subs...)
		}
	})
	return d, nil
}

func (b *Broker) trace(msg string, args ...any) {
	if b.debug.Load() {
		b.log.Debug(msg, args...)
	}
}
