package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/topicmq/internal/mq/bridge"
	"github.com/dshills/topicmq/internal/mq/broker"
	"github.com/dshills/topicmq/internal/mq/client"
	"github.com/dshills/topicmq/internal/mq/topic"
)

// Config is the complete topicmq configuration.
type Config struct {
	Broker  BrokerConfig  `toml:"broker" yaml:"broker"`
	Bridges BridgesConfig `toml:"bridges" yaml:"bridges"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
}

// BrokerConfig contains broker settings.
type BrokerConfig struct {
	// MaxNameLen bounds topic names; names must be shorter.
	MaxNameLen int `toml:"max_name_len" yaml:"max_name_len"`

	// MaxDepth is the number of levels encoded per topic.
	MaxDepth int `toml:"max_depth" yaml:"max_depth"`

	// MaxTopics bounds the number of registered topics.
	MaxTopics int `toml:"max_topics" yaml:"max_topics"`

	// VocabularyCapacity sizes an auto-managed vocabulary.
	VocabularyCapacity int `toml:"vocabulary_capacity" yaml:"vocabulary_capacity"`

	// Tokens is a predefined vocabulary. Empty selects auto-managed mode.
	Tokens []string `toml:"tokens" yaml:"tokens"`

	LockTimeout   Duration `toml:"lock_timeout" yaml:"lock_timeout"`
	EscalateAfter int      `toml:"escalate_after" yaml:"escalate_after"`

	// PendingQueue enables deferred requests when > 0.
	PendingQueue int `toml:"pending_queue" yaml:"pending_queue"`

	// MaxRedirects bounds bridge hops per publish.
	MaxRedirects int `toml:"max_redirects" yaml:"max_redirects"`

	Debug bool `toml:"debug" yaml:"debug"`
}

// BridgesConfig contains bridge rules and static routes.
type BridgesConfig struct {
	Rules  []bridge.Rule `toml:"rules" yaml:"rules"`
	Routes []Route       `toml:"routes" yaml:"routes"`

	// Script is a Lua file defining the functions named by rules.
	Script        string   `toml:"script" yaml:"script"`
	ScriptTimeout Duration `toml:"script_timeout" yaml:"script_timeout"`

	// Watch reloads rules when the config file changes.
	Watch bool `toml:"watch" yaml:"watch"`
}

// Route is a static redirect.
type Route struct {
	From string `toml:"from" yaml:"from"`
	To   string `toml:"to" yaml:"to"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`

	// Format is one of auto, text, json.
	Format string `toml:"format" yaml:"format"`
}

// Duration is a time.Duration written as a string such as "3s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			MaxNameLen:         64,
			MaxDepth:           topic.MaxDepth,
			MaxTopics:          256,
			VocabularyCapacity: topic.DefaultCapacity,
			LockTimeout:        Duration{3 * time.Second},
			EscalateAfter:      3,
			MaxRedirects:       client.DefaultMaxRedirects,
		},
		Bridges: BridgesConfig{
			ScriptTimeout: Duration{100 * time.Millisecond},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Validate checks every setting and returns the first invalid one.
func (c *Config) Validate() error {
	b := c.Broker
	switch {
	case b.MaxNameLen < 2:
		return &ValidationError{Path: "broker.max_name_len", Message: "must be at least 2", Value: b.MaxNameLen}
	case b.MaxDepth < 1 || b.MaxDepth > topic.MaxDepth:
		return &ValidationError{Path: "broker.max_depth", Message: fmt.Sprintf("must be in 1..%d", topic.MaxDepth), Value: b.MaxDepth}
	case b.MaxTopics < 1:
		return &ValidationError{Path: "broker.max_topics", Message: "must be positive", Value: b.MaxTopics}
	case b.VocabularyCapacity < 1 || b.VocabularyCapacity > topic.DefaultCapacity:
		return &ValidationError{Path: "broker.vocabulary_capacity", Message: fmt.Sprintf("must be in 1..%d", topic.DefaultCapacity), Value: b.VocabularyCapacity}
	case len(b.Tokens) > topic.DefaultCapacity:
		return &ValidationError{Path: "broker.tokens", Message: "too many tokens", Value: len(b.Tokens)}
	case b.LockTimeout.Duration <= 0:
		return &ValidationError{Path: "broker.lock_timeout", Message: "must be positive", Value: b.LockTimeout}
	case b.EscalateAfter < 1:
		return &ValidationError{Path: "broker.escalate_after", Message: "must be positive", Value: b.EscalateAfter}
	case b.PendingQueue < 0:
		return &ValidationError{Path: "broker.pending_queue", Message: "must not be negative", Value: b.PendingQueue}
	case b.MaxRedirects < 0:
		return &ValidationError{Path: "broker.max_redirects", Message: "must not be negative", Value: b.MaxRedirects}
	}

	for i, r := range c.Bridges.Rules {
		if err := r.Validate(); err != nil {
			return &ValidationError{Path: fmt.Sprintf("bridges.rules[%d]", i), Message: err.Error(), Value: r.From}
		}
	}
	for i, r := range c.Bridges.Routes {
		if r.From == "" || r.To == "" {
			return &ValidationError{Path: fmt.Sprintf("bridges.routes[%d]", i), Message: "from and to are required", Value: r}
		}
	}

	if _, ok := levels[strings.ToLower(c.Logging.Level)]; !ok {
		return &ValidationError{Path: "logging.level", Message: "must be debug, info, warn or error", Value: c.Logging.Level}
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return &ValidationError{Path: "logging.format", Message: "must be auto, text or json", Value: c.Logging.Format}
	}
	return nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogLevel returns the configured slog level. Debug mode forces debug.
func (c *Config) LogLevel() slog.Level {
	if c.Broker.Debug {
		return slog.LevelDebug
	}
	if l, ok := levels[strings.ToLower(c.Logging.Level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// BrokerOptions converts the broker settings into broker options.
func (c *Config) BrokerOptions(log *slog.Logger) []broker.Option {
	b := c.Broker
	opts := []broker.Option{
		broker.WithMaxNameLen(b.MaxNameLen),
		broker.WithMaxDepth(b.MaxDepth),
		broker.WithMaxTopics(b.MaxTopics),
		broker.WithVocabularyCapacity(b.VocabularyCapacity),
		broker.WithLockTimeout(b.LockTimeout.Duration),
		broker.WithEscalation(b.EscalateAfter, nil),
		broker.WithDebug(b.Debug),
		broker.WithLogger(log),
	}
	if len(b.Tokens) > 0 {
		opts = append(opts, broker.WithPredefinedTokens(b.Tokens...))
	}
	if b.PendingQueue > 0 {
		opts = append(opts, broker.WithPendingQueue(b.PendingQueue))
	}
	return opts
}
