package bridge

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/dshills/topicmq/internal/mq"
)

// sink is a Republisher that records what it is asked to publish.
type sink struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *sink) Publish(_ context.Context, name string, payload []byte, _ *mq.Publisher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, name+"="+string(payload))
	return s.err
}

func (s *sink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func TestManager_AddRemove(t *testing.T) {
	m := NewManager()
	h1 := mq.NewBridgeHandler(nil)
	h2 := mq.NewBridgeHandler(nil)

	if err := m.Add("topic/bridge", h1); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := m.Add("topic/bridge", h2); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := m.Add("topic/bridge", h1); !errors.Is(err, mq.ErrExists) {
		t.Errorf("duplicate Add = %v, expected ErrExists", err)
	}
	if err := m.Add("topic/bridge", nil); !errors.Is(err, mq.ErrNullPointer) {
		t.Errorf("nil Add = %v, expected ErrNullPointer", err)
	}
	if err := m.Add("", h1); !errors.Is(err, mq.ErrOutOfBounds) {
		t.Errorf("empty pattern = %v, expected ErrOutOfBounds", err)
	}

	if m.Len() != 1 || m.Handlers("topic/bridge") != 2 {
		t.Fatalf("Len = %d, Handlers = %d", m.Len(), m.Handlers("topic/bridge"))
	}

	if err := m.Remove("topic/bridge", h1); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if m.Len() != 1 {
		t.Error("pattern dropped while it still has a handler")
	}
	if err := m.Remove("topic/bridge", h2); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if m.Len() != 0 {
		t.Error("pattern kept after its last handler was removed")
	}
	if err := m.Remove("topic/bridge", h2); !errors.Is(err, mq.ErrNotFound) {
		t.Errorf("second Remove = %v, expected ErrNotFound", err)
	}
	if err := m.Remove("never/added", h1); mq.ResultOf(err) != mq.NotFound {
		t.Errorf("Remove unknown pattern = %v", err)
	}
}

func TestManager_Dispatch(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	var got []string
	record := func(tag string) *mq.BridgeHandler {
		return mq.NewBridgeHandler(func(_ context.Context, name string, payload []byte, _ *mq.Publisher) {
			got = append(got, tag+":"+name+":"+string(payload))
			payload[0] = 'X'
		})
	}

	_ = m.Add("topic/+", record("plus"))
	_ = m.Add("topic/bridge", record("exact1"))
	_ = m.Add("topic/bridge", record("exact2"))
	_ = m.Add("#", record("all"))
	_ = m.Add("other", record("other"))

	payload := []byte("abcd")
	n := m.Dispatch(ctx, "topic/bridge", payload, nil)
	if n != 4 {
		t.Errorf("Dispatch ran %d handlers, expected 4", n)
	}

	// Lexical pattern order, insertion order within a pattern.
	expected := []string{
		"all:topic/bridge:abcd",
		"plus:topic/bridge:abcd",
		"exact1:topic/bridge:abcd",
		"exact2:topic/bridge:abcd",
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("dispatch = %q, expected %q", got, expected)
	}
	if string(payload) != "abcd" {
		t.Errorf("caller payload modified: %q", payload)
	}

	if want := []string{"#", "other", "topic/+", "topic/bridge"}; !reflect.DeepEqual(m.Patterns(), want) {
		t.Errorf("Patterns() = %q, expected %q", m.Patterns(), want)
	}
}

func TestManager_DispatchReentrant(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	calls := 0
	var self *mq.BridgeHandler
	self = mq.NewBridgeHandler(func(context.Context, string, []byte, *mq.Publisher) {
		calls++
		if err := m.Remove("once", self); err != nil {
			t.Errorf("Remove from handler failed: %v", err)
		}
		_ = m.Add("later", mq.NewBridgeHandler(nil))
	})
	_ = m.Add("once", self)

	m.Dispatch(ctx, "once", nil, nil)
	m.Dispatch(ctx, "once", nil, nil)

	if calls != 1 {
		t.Errorf("handler ran %d times, expected 1", calls)
	}
	if m.Handlers("later") != 1 {
		t.Error("bridge added from a handler is missing")
	}
}

func TestManager_DispatchPanic(t *testing.T) {
	m := NewManager()
	ran := false
	_ = m.Add("a", mq.NewBridgeHandler(func(context.Context, string, []byte, *mq.Publisher) {
		panic("bridge failure")
	}))
	_ = m.Add("b", mq.NewBridgeHandler(nil))
	_ = m.Add("#", mq.NewBridgeHandler(func(context.Context, string, []byte, *mq.Publisher) {
		ran = true
	}))

	if n := m.Dispatch(context.Background(), "a", nil, nil); n != 2 {
		t.Errorf("Dispatch = %d, expected 2", n)
	}
	if !ran {
		t.Error("handler before the panicking one did not run")
	}
}

func TestRedirector(t *testing.T) {
	m := NewManager()
	out := &sink{}
	r := NewRedirector(m, out)
	ctx := context.Background()

	if err := r.Add("sensor/+/raw", "sensor/all"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := r.Add("sensor/+/raw", "elsewhere"); !errors.Is(err, mq.ErrExists) {
		t.Errorf("duplicate route = %v, expected ErrExists", err)
	}
	if err := r.Add("a", "b/#"); !errors.Is(err, mq.ErrOutOfBounds) {
		t.Errorf("wildcard target = %v, expected ErrOutOfBounds", err)
	}

	m.Dispatch(ctx, "sensor/t1/raw", []byte("1"), nil)
	m.Dispatch(ctx, "sensor/t1/cooked", []byte("2"), nil)

	if got := out.messages(); !reflect.DeepEqual(got, []string{"sensor/all=1"}) {
		t.Errorf("republished = %q", got)
	}
	if routes := r.Routes(); len(routes) != 1 || routes[0] != [2]string{"sensor/+/raw", "sensor/all"} {
		t.Errorf("Routes() = %v", routes)
	}

	if err := r.Remove("sensor/+/raw"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := r.Remove("sensor/+/raw"); !errors.Is(err, mq.ErrNotFound) {
		t.Errorf("second Remove = %v", err)
	}
	if m.Len() != 0 {
		t.Error("route handler left on the manager")
	}
}
