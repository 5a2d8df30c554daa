package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/dshills/topicmq/internal/config"
	"github.com/dshills/topicmq/internal/mq/bridge"
	"github.com/dshills/topicmq/internal/mq/broker"
	"github.com/dshills/topicmq/internal/mq/client"
	"github.com/dshills/topicmq/internal/mq/script"
)

// bootstrap initializes all components in dependency order.
func (a *Application) bootstrap() error {
	// 1. Config
	cfg, err := config.Load(a.opts.ConfigPath)
	if err != nil {
		return &InitError{Component: "config", Err: err}
	}
	if err := a.override(cfg); err != nil {
		return &InitError{Component: "config", Err: err}
	}
	a.cfg = cfg

	// 2. Logging
	a.level.Set(cfg.LogLevel())
	a.log = NewLogger(a.opts.Stderr, cfg.Logging.Format, a.level)

	// 3. Broker
	a.broker = broker.New(cfg.BrokerOptions(a.log)...)
	if err := a.broker.Start(); err != nil {
		return &InitError{Component: "broker", Err: err}
	}

	// 4. Client and bridges
	mgr := bridge.NewManager(bridge.WithLogger(a.log))
	a.client = client.New(a.broker,
		client.WithBridgeManager(mgr),
		client.WithMaxRedirects(cfg.Broker.MaxRedirects),
		client.WithLogger(a.log),
	)
	a.redirector = bridge.NewRedirector(mgr, a.client)

	// 5. Scripts and rules
	scripts, err := a.newScripts(cfg)
	if err != nil {
		return &InitError{Component: "script", Err: err}
	}
	a.rules = bridge.NewRuleSet(mgr, a.client, scripts)
	if err := a.rules.Apply(cfg.Bridges.Rules); err != nil {
		return &InitError{Component: "rules", Err: err}
	}
	if err := a.applyRoutes(cfg.Bridges.Routes); err != nil {
		return &InitError{Component: "routes", Err: err}
	}

	// 6. Watcher
	if cfg.Bridges.Watch && a.opts.ConfigPath != "" {
		w, err := config.NewWatcher(a.opts.ConfigPath, a.reload,
			config.WithWatcherLogger(a.log))
		if err != nil {
			return &InitError{Component: "watcher", Err: err}
		}
		a.watcher = w
	}

	a.log.Info("topicmq ready",
		"config", a.opts.ConfigPath,
		"rules", len(cfg.Bridges.Rules),
		"routes", len(cfg.Bridges.Routes),
		"watch", a.watcher != nil)
	return nil
}

// override applies command line options over the loaded configuration.
func (a *Application) override(cfg *config.Config) error {
	if a.opts.Debug {
		cfg.Broker.Debug = true
	}
	if a.opts.LogLevel != "" {
		cfg.Logging.Level = a.opts.LogLevel
	}
	if a.opts.LogFormat != "" {
		cfg.Logging.Format = a.opts.LogFormat
	}
	return cfg.Validate()
}

// newScripts creates a Lua state and runs the configured script in it.
// Every reload gets a fresh state so functions removed from the file do
// not linger.
func (a *Application) newScripts(cfg *config.Config) (*script.State, error) {
	st := script.NewState(
		script.WithTimeout(cfg.Bridges.ScriptTimeout.Duration),
		script.WithLogger(a.log),
	)
	path := cfg.Bridges.Script
	if path == "" {
		return st, nil
	}
	code, err := os.ReadFile(path)
	if err == nil {
		err = st.Load(string(code))
	}
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("loading script %s: %w", path, err)
	}
	return st, nil
}

// applyRoutes replaces the static routes installed from configuration.
// Routes added by the bridge command are left alone.
func (a *Application) applyRoutes(routes []config.Route) error {
	for _, r := range a.routes {
		if err := a.redirector.Remove(r.From); err != nil {
			a.log.Debug("route already removed", "from", r.From)
		}
	}
	a.routes = nil

	var errs []error
	for _, r := range routes {
		if err := a.redirector.Add(r.From, r.To); err != nil {
			errs = append(errs, fmt.Errorf("route %s -> %s: %w", r.From, r.To, err))
			continue
		}
		a.routes = append(a.routes, r)
	}
	return errors.Join(errs...)
}

// reload is called by the watcher with a freshly loaded configuration.
// Broker settings other than debug need a restart and are ignored.
func (a *Application) reload(cfg *config.Config, err error) {
	if err != nil {
		a.log.Warn("keeping previous configuration", "error", err)
		return
	}
	if err := a.override(cfg); err != nil {
		a.log.Warn("keeping previous configuration", "error", err)
		return
	}

	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	scripts, err := a.newScripts(cfg)
	if err != nil {
		a.log.Warn("script reload failed", "error", err)
		return
	}
	prev, err := a.rules.Replace(cfg.Bridges.Rules, scripts)
	if err != nil {
		_ = scripts.Close()
		a.log.Warn("rule reload failed", "error", err)
		return
	}
	if prev != nil {
		_ = prev.Close()
	}
	if err := a.applyRoutes(cfg.Bridges.Routes); err != nil {
		a.log.Warn("route reload incomplete", "error", err)
	}

	a.level.Set(cfg.LogLevel())
	a.broker.SetDebug(cfg.Broker.Debug)
	a.cfg = cfg
	a.log.Info("configuration applied", "rules", len(cfg.Bridges.Rules), "routes", len(cfg.Bridges.Routes))
}
