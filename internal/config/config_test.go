package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/dshills/topicmq/internal/mq/broker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if cfg.Broker.MaxNameLen != 64 {
		t.Errorf("MaxNameLen = %d, expected 64", cfg.Broker.MaxNameLen)
	}
	if cfg.Broker.LockTimeout.Duration != 3*time.Second {
		t.Errorf("LockTimeout = %v, expected 3s", cfg.Broker.LockTimeout)
	}
	if cfg.Broker.EscalateAfter != 3 {
		t.Errorf("EscalateAfter = %d, expected 3", cfg.Broker.EscalateAfter)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "topicmq.toml", `
[broker]
max_name_len = 32
lock_timeout = "250ms"
tokens = ["stat", "var"]
pending_queue = 4

[[bridges.rules]]
name = "temps"
from = "sensor/+/temp"
to = "metrics/$2"

[bridges.rules.when]
path = "unit"
glob = "C*"

[[bridges.routes]]
from = "a/b"
to = "c/d"

[logging]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Broker.MaxNameLen != 32 {
		t.Errorf("MaxNameLen = %d, expected 32", cfg.Broker.MaxNameLen)
	}
	if cfg.Broker.LockTimeout.Duration != 250*time.Millisecond {
		t.Errorf("LockTimeout = %v", cfg.Broker.LockTimeout)
	}
	if !reflect.DeepEqual(cfg.Broker.Tokens, []string{"stat", "var"}) {
		t.Errorf("Tokens = %q", cfg.Broker.Tokens)
	}
	if cfg.Broker.MaxTopics != 256 {
		t.Errorf("MaxTopics = %d, expected default to survive", cfg.Broker.MaxTopics)
	}
	if len(cfg.Bridges.Rules) != 1 {
		t.Fatalf("len(Rules) = %d, expected 1", len(cfg.Bridges.Rules))
	}
	r := cfg.Bridges.Rules[0]
	if r.Name != "temps" || r.From != "sensor/+/temp" || r.To != "metrics/$2" {
		t.Errorf("rule = %+v", r)
	}
	if r.When == nil || r.When.Path != "unit" || r.When.Glob != "C*" {
		t.Errorf("rule condition = %+v", r.When)
	}
	if len(cfg.Bridges.Routes) != 1 || cfg.Bridges.Routes[0] != (Route{From: "a/b", To: "c/d"}) {
		t.Errorf("Routes = %+v", cfg.Bridges.Routes)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("LogLevel() = %v, expected debug", cfg.LogLevel())
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "topicmq.yaml", `
broker:
  max_topics: 8
  lock_timeout: 2s
  debug: true
bridges:
  rules:
    - from: "in/#"
      script: route
  script: rules.lua
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Broker.MaxTopics != 8 {
		t.Errorf("MaxTopics = %d, expected 8", cfg.Broker.MaxTopics)
	}
	if cfg.Broker.LockTimeout.Duration != 2*time.Second {
		t.Errorf("LockTimeout = %v", cfg.Broker.LockTimeout)
	}
	if !cfg.Broker.Debug || cfg.LogLevel() != slog.LevelDebug {
		t.Error("expected debug mode")
	}
	if cfg.Bridges.Script != "rules.lua" {
		t.Errorf("Script = %q", cfg.Bridges.Script)
	}
	if len(cfg.Bridges.Rules) != 1 || cfg.Bridges.Rules[0].Script != "route" {
		t.Errorf("Rules = %+v", cfg.Bridges.Rules)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "none.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		path := writeFile(t, "topicmq.ini", "x=1")
		if _, err := Load(path); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("error = %v, expected ErrUnknownFormat", err)
		}
	})

	t.Run("bad toml", func(t *testing.T) {
		path := writeFile(t, "topicmq.toml", "[broker\nmax_name_len = ")
		_, err := Load(path)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("error = %v, expected ParseError", err)
		}
		if pe.Path != path {
			t.Errorf("Path = %q", pe.Path)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		path := writeFile(t, "topicmq.yaml", "broker:\n  colour: red\n")
		var pe *ParseError
		if _, err := Load(path); !errors.As(err, &pe) {
			t.Errorf("error = %v, expected ParseError", err)
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		path := writeFile(t, "topicmq.toml", "[broker]\nmax_depth = 11\n")
		if _, err := Load(path); !errors.Is(err, ErrValidationFailed) {
			t.Errorf("error = %v, expected ErrValidationFailed", err)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TOPICMQ_MAX_NAME_LEN": "48",
		"TOPICMQ_LOCK_TIMEOUT": "10ms",
		"TOPICMQ_DEBUG":        "true",
		"TOPICMQ_TOKENS":       "stat, var,,0",
		"TOPICMQ_LOG_FORMAT":   "text",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := ApplyEnv(cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Broker.MaxNameLen != 48 {
		t.Errorf("MaxNameLen = %d", cfg.Broker.MaxNameLen)
	}
	if cfg.Broker.LockTimeout.Duration != 10*time.Millisecond {
		t.Errorf("LockTimeout = %v", cfg.Broker.LockTimeout)
	}
	if !cfg.Broker.Debug {
		t.Error("expected Debug")
	}
	if !reflect.DeepEqual(cfg.Broker.Tokens, []string{"stat", "var", "0"}) {
		t.Errorf("Tokens = %q", cfg.Broker.Tokens)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Format = %q", cfg.Logging.Format)
	}

	env = map[string]string{"TOPICMQ_MAX_TOPICS": "many"}
	var pe *ParseError
	if err := ApplyEnv(Default(), lookup); !errors.As(err, &pe) {
		t.Fatalf("error = %v, expected ParseError", err)
	}
	if pe.Path != "TOPICMQ_MAX_TOPICS" {
		t.Errorf("Path = %q", pe.Path)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "topicmq.toml", "[broker]\nmax_name_len = 32\n")
	t.Setenv("TOPICMQ_MAX_NAME_LEN", "40")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Broker.MaxNameLen != 40 {
		t.Errorf("MaxNameLen = %d, expected env to win", cfg.Broker.MaxNameLen)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		path   string
	}{
		{"name len", func(c *Config) { c.Broker.MaxNameLen = 1 }, "broker.max_name_len"},
		{"depth", func(c *Config) { c.Broker.MaxDepth = 0 }, "broker.max_depth"},
		{"topics", func(c *Config) { c.Broker.MaxTopics = 0 }, "broker.max_topics"},
		{"capacity", func(c *Config) { c.Broker.VocabularyCapacity = 300 }, "broker.vocabulary_capacity"},
		{"timeout", func(c *Config) { c.Broker.LockTimeout.Duration = 0 }, "broker.lock_timeout"},
		{"escalate", func(c *Config) { c.Broker.EscalateAfter = 0 }, "broker.escalate_after"},
		{"pending", func(c *Config) { c.Broker.PendingQueue = -1 }, "broker.pending_queue"},
		{"route", func(c *Config) { c.Bridges.Routes = []Route{{From: "a"}} }, "bridges.routes[0]"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, expected ValidationError", err)
			}
			if ve.Path != tt.path {
				t.Errorf("Path = %q, expected %q", ve.Path, tt.path)
			}
		})
	}
}

func TestBrokerOptions(t *testing.T) {
	cfg := Default()
	cfg.Broker.MaxNameLen = 16
	cfg.Broker.Tokens = []string{"stat", "var"}

	b := broker.New(cfg.BrokerOptions(nil)...)
	if err := b.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if b.MaxTopicLen() != 16 {
		t.Errorf("MaxTopicLen() = %d, expected 16", b.MaxTopicLen())
	}
	if !reflect.DeepEqual(b.Tokens(), []string{"stat", "var"}) {
		t.Errorf("Tokens() = %q", b.Tokens())
	}
}
