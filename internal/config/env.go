package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "TOPICMQ_"

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// envSetter applies one environment value to a configuration.
type envSetter func(cfg *Config, val string) error

// envMapping maps variable names, without the prefix, to setters.
var envMapping = map[string]envSetter{
	"MAX_NAME_LEN":   intSetter(func(c *Config) *int { return &c.Broker.MaxNameLen }),
	"MAX_DEPTH":      intSetter(func(c *Config) *int { return &c.Broker.MaxDepth }),
	"MAX_TOPICS":     intSetter(func(c *Config) *int { return &c.Broker.MaxTopics }),
	"ESCALATE_AFTER": intSetter(func(c *Config) *int { return &c.Broker.EscalateAfter }),
	"PENDING_QUEUE":  intSetter(func(c *Config) *int { return &c.Broker.PendingQueue }),
	"MAX_REDIRECTS":  intSetter(func(c *Config) *int { return &c.Broker.MaxRedirects }),
	"LOCK_TIMEOUT":   durationSetter(func(c *Config) *Duration { return &c.Broker.LockTimeout }),
	"SCRIPT_TIMEOUT": durationSetter(func(c *Config) *Duration { return &c.Bridges.ScriptTimeout }),
	"DEBUG":          boolSetter(func(c *Config) *bool { return &c.Broker.Debug }),
	"WATCH":          boolSetter(func(c *Config) *bool { return &c.Bridges.Watch }),
	"LOG_LEVEL":      stringSetter(func(c *Config) *string { return &c.Logging.Level }),
	"LOG_FORMAT":     stringSetter(func(c *Config) *string { return &c.Logging.Format }),
	"SCRIPT":         stringSetter(func(c *Config) *string { return &c.Bridges.Script }),
	"TOKENS": func(c *Config, val string) error {
		c.Broker.Tokens = nil
		for _, tok := range strings.Split(val, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				c.Broker.Tokens = append(c.Broker.Tokens, tok)
			}
		}
		return nil
	},
}

// ApplyEnv applies TOPICMQ_* overrides found through lookup.
// Empty values are treated as set.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	for name, set := range envMapping {
		val, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(cfg, val); err != nil {
			return &ParseError{
				Path:    EnvPrefix + name,
				Message: fmt.Sprintf("invalid value %q", val),
				Err:     err,
			}
		}
	}
	return nil
}

func intSetter(field func(*Config) *int) envSetter {
	return func(c *Config, val string) error {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(*Config) *bool) envSetter {
	return func(c *Config, val string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationSetter(field func(*Config) *Duration) envSetter {
	return func(c *Config, val string) error {
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return err
		}
		field(c).Duration = d
		return nil
	}
}

func stringSetter(field func(*Config) *string) envSetter {
	return func(c *Config, val string) error {
		*field(c) = val
		return nil
	}
}
