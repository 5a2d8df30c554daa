package broker

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dshills/topicmq/internal/mq/topic"
)

// ExitRestart is the exit status used by the default escalation hook. A
// supervisor is expected to restart the process when it sees it.
const ExitRestart = 75

// EscalationFunc is called when publish has failed to acquire the broker
// lock more than the configured number of consecutive times.
type EscalationFunc func(streak int)

// PanicHandler is called when a subscriber callback panics.
type PanicHandler func(topic string, recovered any, stack []byte)

// Option configures a Broker.
type Option func(*config)

// config contains configuration for a broker.
type config struct {
	// maxNameLen bounds topic names; names must be shorter than it.
	maxNameLen int

	// predefined is the fixed vocabulary; empty selects auto-managed mode.
	predefined []string

	// vocabCapacity is the capacity of an auto-managed vocabulary.
	vocabCapacity int

	// maxDepth is the number of levels encoded per topic.
	maxDepth int

	// maxTopics bounds the number of registered topics.
	maxTopics int

	// lockTimeout bounds every wait on the broker lock.
	lockTimeout time.Duration

	// escalateAfter is the consecutive publish lock timeouts tolerated.
	escalateAfter int

	escalate     EscalationFunc
	panicHandler PanicHandler
	logger       *slog.Logger
	debug        bool

	// pendingSize enables the deferred request queue when > 0.
	pendingSize int
}

// defaultConfig returns the broker defaults.
func defaultConfig() config {
	return config{
		maxNameLen:    64,
		vocabCapacity: topic.DefaultCapacity,
		maxDepth:      topic.MaxDepth,
		maxTopics:     256,
		lockTimeout:   3 * time.Second,
		escalateAfter: 3,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithMaxNameLen sets the topic name bound. Names of n or more bytes are
// rejected with mq.ErrOutOfBounds.
func WithMaxNameLen(n int) Option {
	return func(c *config) {
		if n > 1 {
			c.maxNameLen = n
		}
	}
}

// WithPredefinedTokens starts the broker with a fixed vocabulary. Segments
// outside it are encoded as topic.Invalid.
func WithPredefinedTokens(tokens ...string) Option {
	return func(c *config) {
		c.predefined = append([]string(nil), tokens...)
	}
}

// WithVocabularyCapacity sets the capacity of an auto-managed vocabulary.
// Start fails with mq.ErrOutOfBounds if tokens cannot address it.
func WithVocabularyCapacity(n int) Option {
	return func(c *config) {
		c.vocabCapacity = n
	}
}

// WithMaxDepth sets the number of levels encoded per topic (1..topic.MaxDepth).
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		if depth > 0 && depth <= topic.MaxDepth {
			c.maxDepth = depth
		}
	}
}

// WithMaxTopics sets the maximum number of registered topics.
func WithMaxTopics(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxTopics = n
		}
	}
}

// WithLockTimeout sets the bounded wait for the broker lock.
func WithLockTimeout(d time.Duration) Option {
	return func(c *config) {
		c.lockTimeout = d
	}
}

// WithEscalation replaces the escalation policy. fn is called once the
// publish lock-timeout streak exceeds threshold. A nil fn keeps the default,
// which logs and exits the process with ExitRestart.
func WithEscalation(threshold int, fn EscalationFunc) Option {
	return func(c *config) {
		if threshold > 0 {
			c.escalateAfter = threshold
		}
		if fn != nil {
			c.escalate = fn
		}
	}
}

// WithPanicHandler sets a handler for subscriber panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *config) {
		c.panicHandler = h
	}
}

// WithLogger sets the broker logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDebug enables per-operation debug traces.
func WithDebug(enabled bool) Option {
	return func(c *config) {
		c.debug = enabled
	}
}

// WithPendingQueue enables deferred requests. Subscribe, unsubscribe and
// publish calls that time out on the lock are queued, up to size entries,
// and replayed by the next caller that holds the lock.
func WithPendingQueue(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.pendingSize = size
		}
	}
}

func restartProcess(log *slog.Logger) EscalationFunc {
	return func(streak int) {
		log.Error("publish lock starvation, restarting", "streak", streak, "exit_code", ExitRestart)
		os.Exit(ExitRestart)
	}
}
