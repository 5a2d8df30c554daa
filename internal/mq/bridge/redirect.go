package bridge

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/dshills/topicmq/internal/mq"
	"github.com/dshills/topicmq/internal/mq/topic"
)

// Republisher publishes a redirected message. A client.Client satisfies it.
type Republisher interface {
	Publish(ctx context.Context, name string, payload []byte, pub *mq.Publisher) error
}

// Redirector keeps static from -> to routes on a Manager.
type Redirector struct {
	mgr *Manager
	out Republisher
	log *slog.Logger

	mu     sync.Mutex
	routes map[string]route
}

type route struct {
	to string
	h  *mq.BridgeHandler
}

// NewRedirector creates a Redirector that installs its routes on mgr and
// republishes through out.
func NewRedirector(mgr *Manager, out Republisher) *Redirector {
	return &Redirector{
		mgr:    mgr,
		out:    out,
		log:    mgr.log.With("redirector", true),
		routes: make(map[string]route),
	}
}

// Add routes messages published on from, which may contain wildcards, to
// the concrete topic to. A from pattern holds one route.
func (r *Redirector) Add(from, to string) error {
	if to == "" || topic.IsWildcard(to) {
		return mq.Wrap("add route", to, mq.ErrOutOfBounds)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[from]; ok {
		return mq.Wrap("add route", from, mq.ErrExists)
	}
	h := mq.NewBridgeHandler(func(ctx context.Context, name string, payload []byte, _ *mq.Publisher) {
		r.log.Debug("redirecting", "from", name, "to", to)
		if err := r.out.Publish(ctx, to, payload, nil); err != nil {
			r.log.Warn("redirect failed", "from", name, "to", to, "error", err)
		}
	})
	if err := r.mgr.Add(from, h); err != nil {
		return err
	}
	r.routes[from] = route{to: to, h: h}
	return nil
}

// Remove deletes the route for from.
func (r *Redirector) Remove(from string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.routes[from]
	if !ok {
		return mq.Wrap("remove route", from, mq.ErrNotFound)
	}
	delete(r.routes, from)
	return r.mgr.Remove(from, rt.h)
}

// Routes returns the installed routes as "from -> to" pairs sorted by from.
func (r *Redirector) Routes() [][2]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][2]string, 0, len(r.routes))
	for from, rt := range r.routes {
		out = append(out, [2]string{from, rt.to})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
