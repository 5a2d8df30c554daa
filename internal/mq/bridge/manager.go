package bridge

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/dshills/topicmq/internal/mq"
)

// Manager maps topic patterns to bridge handlers. It is safe for
// concurrent use.
type Manager struct {
	mu      sync.RWMutex
	bridges map[string][]*mq.BridgeHandler
	log     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager creates an empty bridge table.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		bridges: make(map[string][]*mq.BridgeHandler),
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "bridge")
	return m
}

// Add registers h under pattern. Adding the same handler to a pattern twice
// fails with mq.ErrExists.
func (m *Manager) Add(pattern string, h *mq.BridgeHandler) error {
	if h == nil {
		return mq.Wrap("add bridge", pattern, mq.ErrNullPointer)
	}
	if pattern == "" {
		return mq.Wrap("add bridge", pattern, mq.ErrOutOfBounds)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.bridges[pattern] {
		if existing.ID() == h.ID() {
			return mq.Wrap("add bridge", pattern, mq.ErrExists)
		}
	}
	m.bridges[pattern] = append(m.bridges[pattern], h)
	m.log.Debug("bridge added", "pattern", pattern, "handler", h.ID())
	return nil
}

// Remove unregisters h from pattern. The pattern is dropped with its last
// handler. It fails with mq.ErrNotFound if either is not registered.
func (m *Manager) Remove(pattern string, h *mq.BridgeHandler) error {
	if h == nil {
		return mq.Wrap("remove bridge", pattern, mq.ErrNullPointer)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.bridges[pattern]
	for i, existing := range handlers {
		if existing.ID() != h.ID() {
			continue
		}
		if len(handlers) == 1 {
			delete(m.bridges, pattern)
		} else {
			m.bridges[pattern] = append(handlers[:i:i], handlers[i+1:]...)
		}
		m.log.Debug("bridge removed", "pattern", pattern, "handler", h.ID())
		return nil
	}
	return mq.Wrap("remove bridge", pattern, mq.ErrNotFound)
}

// Dispatch invokes every handler whose pattern matches name and returns how
// many ran. Patterns are visited in lexical order and handlers in the order
// they were added. The table is copied first, so handlers may add or remove
// bridges and publish again. Each handler gets its own payload copy.
func (m *Manager) Dispatch(ctx context.Context, name string, payload []byte, pub *mq.Publisher) int {
	matched := m.match(name)
	for _, h := range matched {
		m.invoke(ctx, h, name, bytes.Clone(payload), pub)
	}
	return len(matched)
}

func (m *Manager) match(name string) []*mq.BridgeHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*mq.BridgeHandler
	for _, pattern := range m.sortedLocked() {
		if Match(pattern, name) {
			out = append(out, m.bridges[pattern]...)
		}
	}
	return out
}

func (m *Manager) invoke(ctx context.Context, h *mq.BridgeHandler, name string, payload []byte, pub *mq.Publisher) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("bridge handler panicked",
				"topic", name, "handler", h.ID(), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	h.Redirect(ctx, name, payload, pub)
}

// Patterns returns the registered patterns in dispatch order.
func (m *Manager) Patterns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedLocked()
}

// Handlers returns the number of handlers registered under pattern.
func (m *Manager) Handlers(pattern string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.bridges[pattern])
}

// Len returns the number of patterns.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.bridges)
}

func (m *Manager) sortedLocked() []string {
	patterns := make([]string, 0, len(m.bridges))
	for p := range m.bridges {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	return patterns
}
