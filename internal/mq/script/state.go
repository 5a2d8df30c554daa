// Package script runs Lua redirect functions for bridge rules.
//
// A redirect function receives the published topic and payload and returns
// the topic to republish on, optionally with a new payload:
//
//	function route(topic, payload)
//	  local s = mq.segments(topic)
//	  if s[1] ~= "sensor" then return nil end
//	  return mq.join("metrics", s[2]), payload
//	end
//
// Scripts run in a sandbox with only the base, table, string and math
// libraries. Every call is bounded by a timeout.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/topicmq/internal/mq/topic"
)

// DefaultTimeout bounds a single redirect call.
const DefaultTimeout = 100 * time.Millisecond

// State is a sandboxed Lua interpreter. gopher-lua states are not
// goroutine-safe; State serializes all access.
type State struct {
	L *lua.LState

	mu      sync.Mutex
	timeout time.Duration
	log     *slog.Logger
	closed  bool
}

// Option configures a State.
type Option func(*State)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *State) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger used by the Lua print function.
func WithLogger(l *slog.Logger) Option {
	return func(s *State) {
		if l != nil {
			s.log = l
		}
	}
}

// NewState creates a sandboxed Lua state.
func NewState(opts ...Option) *State {
	s := &State{
		timeout: DefaultTimeout,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "script")

	s.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(s.L)
	lua.OpenTable(s.L)
	lua.OpenString(s.L)
	lua.OpenMath(s.L)
	s.sandbox()
	return s
}

// sandbox removes the loaders the base library exposes and installs the
// helper module.
func (s *State) sandbox() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.L.SetGlobal("print", s.L.NewFunction(s.luaPrint))
	s.L.SetGlobal("mq", s.L.SetFuncs(s.L.NewTable(), map[string]lua.LGFunction{
		"segments": luaSegments,
		"join":     luaJoin,
	}))
}

// Load executes code, typically to define redirect functions.
func (s *State) Load(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	return s.run(context.Background(), func() error {
		return s.L.DoString(code)
	})
}

// Has reports whether fn names a global Lua function.
func (s *State) Has(fn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	return s.L.GetGlobal(fn).Type() == lua.LTFunction
}

// Redirect calls the Lua function fn with topic and payload. ok is false
// when the function returned nil or an empty topic. A nil payload result
// keeps the original payload.
func (s *State) Redirect(ctx context.Context, fn, name string, payload []byte) (to string, out []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", nil, false, ErrStateClosed
	}

	f := s.L.GetGlobal(fn)
	if f.Type() != lua.LTFunction {
		return "", nil, false, fmt.Errorf("%w: %q", ErrNotFunction, fn)
	}

	err = s.run(ctx, func() error {
		return s.L.CallByParam(lua.P{Fn: f, NRet: 2, Protect: true},
			lua.LString(name), lua.LString(payload))
	})
	if err != nil {
		return "", nil, false, err
	}

	ret, rp := s.L.Get(-2), s.L.Get(-1)
	s.L.Pop(2)

	t, isStr := ret.(lua.LString)
	if !isStr || t == "" {
		return "", nil, false, nil
	}
	out = payload
	if p, isStr := rp.(lua.LString); isStr {
		out = []byte(p)
	}
	return string(t), out, true, nil
}

// run executes fn under the call timeout with panic recovery.
func (s *State) run(ctx context.Context, fn func() error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	if err = fn(); err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Close releases the interpreter.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}

func (s *State) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	args := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		args = append(args, L.ToStringMeta(L.Get(i)).String())
	}
	s.log.Info("lua", "args", args)
	return 0
}

func luaSegments(L *lua.LState) int {
	tbl := L.NewTable()
	for _, seg := range topic.Segments(L.CheckString(1)) {
		tbl.Append(lua.LString(seg))
	}
	L.Push(tbl)
	return 1
}

func luaJoin(L *lua.LState) int {
	n := L.GetTop()
	segs := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		segs = append(segs, L.CheckString(i))
	}
	L.Push(lua.LString(topic.Join(segs...)))
	return 1
}

// IsTimeout reports whether err was caused by a script timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
