// Package app wires the broker, its bridges and the configuration into a
// running topicmq process and drives it from a line-oriented command stream.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dshills/topicmq/internal/config"
	"github.com/dshills/topicmq/internal/mq"
	"github.com/dshills/topicmq/internal/mq/bridge"
	"github.com/dshills/topicmq/internal/mq/broker"
	"github.com/dshills/topicmq/internal/mq/client"
)

// Application owns every topicmq component and their lifecycles.
type Application struct {
	opts Options
	cfg  *config.Config

	log   *slog.Logger
	level *slog.LevelVar

	broker     *broker.Broker
	client     *client.Client
	redirector *bridge.Redirector
	rules      *bridge.RuleSet
	watcher    *config.Watcher

	// reloadMu serializes configuration reloads.
	reloadMu sync.Mutex
	routes   []config.Route

	// subs holds the subscriptions made by the sub command.
	subsMu sync.Mutex
	subs   map[string]*mq.Subscriber

	outMu sync.Mutex
	out   io.Writer

	stopped atomic.Bool
}

// Options configures the application.
type Options struct {
	// ConfigPath is the path to the configuration file. Empty uses defaults.
	ConfigPath string

	// Debug forces broker debug traces and debug logging.
	Debug bool

	// LogLevel overrides the configured log level when set.
	LogLevel string

	// LogFormat overrides the configured log format when set.
	LogFormat string

	// Stdout receives command output. Defaults to os.Stdout.
	Stdout io.Writer

	// Stderr receives logs. Defaults to os.Stderr.
	Stderr io.Writer
}

// New creates and starts an Application.
func New(opts Options) (*Application, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	a := &Application{
		opts:  opts,
		out:   opts.Stdout,
		level: new(slog.LevelVar),
		subs:  make(map[string]*mq.Subscriber),
	}
	if err := a.bootstrap(); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

// Client returns the broker client.
func (a *Application) Client() *client.Client {
	return a.client
}

// Config returns the active configuration.
func (a *Application) Config() *config.Config {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	return a.cfg
}

// Run executes commands read from in, one per line, until in is exhausted,
// a quit command is read or ctx is cancelled. Command errors are printed
// and do not stop the loop. On cancellation in is closed when it is an
// io.Closer so the reading goroutine can exit; other readers keep it
// blocked until their next read returns.
func (a *Application) Run(ctx context.Context, in io.Reader) error {
	if a.stopped.Load() {
		return ErrNotRunning
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			if c, ok := in.(io.Closer); ok {
				_ = c.Close()
			}
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			err := a.Exec(ctx, line)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			if err != nil {
				a.printf("error: %v\n", err)
			}
		}
	}
}

// Shutdown stops the watcher, removes bridges and closes the Lua state.
// It is safe to call more than once.
func (a *Application) Shutdown() {
	if !a.stopped.CompareAndSwap(false, true) {
		return
	}
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.log.Warn("closing config watcher", "error", err)
		}
	}
	if a.rules != nil {
		a.rules.Clear()
		if st := a.rules.Scripts(); st != nil {
			_ = st.Close()
		}
	}
	if a.log != nil {
		a.log.Info("shutdown complete")
	}
}

func (a *Application) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()

	fmt.Fprintf(a.out, format, args...)
}
