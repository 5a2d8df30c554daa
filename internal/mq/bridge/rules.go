package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"github.com/tidwall/match"
	"gopkg.in/yaml.v3"

	"github.com/dshills/topicmq/internal/mq"
	"github.com/dshills/topicmq/internal/mq/script"
)

// Rule is a declarative bridge. Messages published on From are republished
// on the expanded To template, or on the topic returned by the Lua
// function named by Script.
//
// To may reference published levels as $1..$9 and payload fields as
// ${json:path}, using gjson path syntax.
type Rule struct {
	Name   string     `yaml:"name,omitempty" toml:"name,omitempty"`
	From   string     `yaml:"from" toml:"from"`
	To     string     `yaml:"to,omitempty" toml:"to,omitempty"`
	When   *Condition `yaml:"when,omitempty" toml:"when,omitempty"`
	Script string     `yaml:"script,omitempty" toml:"script,omitempty"`
}

// Condition filters a rule on a JSON payload field. The field at Path must
// exist and its string form must match the Glob pattern.
type Condition struct {
	Path string `yaml:"path" toml:"path"`
	Glob string `yaml:"glob" toml:"glob"`
}

// Rule errors.
var (
	ErrRuleNoSource = errors.New("bridge: rule has no source pattern")
	ErrRuleTarget   = errors.New("bridge: rule needs exactly one of to or script")
	ErrRuleScript   = errors.New("bridge: rule script is not available")
)

// Validate checks that the rule is well formed.
func (r Rule) Validate() error {
	if r.From == "" {
		return fmt.Errorf("%w: %s", ErrRuleNoSource, r.label())
	}
	if (r.To == "") == (r.Script == "") {
		return fmt.Errorf("%w: %s", ErrRuleTarget, r.label())
	}
	if r.When != nil && r.When.Path == "" {
		return fmt.Errorf("bridge: rule %s: condition without path", r.label())
	}
	return nil
}

func (r Rule) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.From
}

// Accepts reports whether payload passes the rule condition.
func (r Rule) Accepts(payload []byte) bool {
	if r.When == nil {
		return true
	}
	v := gjson.GetBytes(payload, r.When.Path)
	if !v.Exists() {
		return false
	}
	glob := r.When.Glob
	if glob == "" {
		glob = "*"
	}
	return match.Match(v.String(), glob)
}

// Target resolves where a message published on name is redirected. ok is
// false when the condition or the script declines it.
func (r Rule) Target(ctx context.Context, name string, payload []byte, scripts *script.State) (to string, out []byte, ok bool, err error) {
	if !r.Accepts(payload) {
		return "", nil, false, nil
	}
	if r.Script != "" {
		if scripts == nil {
			return "", nil, false, ErrRuleScript
		}
		return scripts.Redirect(ctx, r.Script, name, payload)
	}
	to = Expand(r.To, name, payload)
	return to, payload, to != "", nil
}

// Expand fills a To template from the published name and payload.
func Expand(tmpl, name string, payload []byte) string {
	if !strings.Contains(tmpl, "$") {
		return tmpl
	}
	segs := split(name)

	var sb strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '$' || i+1 >= len(tmpl) {
			sb.WriteByte(c)
			continue
		}
		next := tmpl[i+1]
		switch {
		case next >= '1' && next <= '9':
			if n := int(next - '1'); n < len(segs) {
				sb.WriteString(segs[n])
			}
			i++
		case next == '{':
			end := strings.IndexByte(tmpl[i+2:], '}')
			if end < 0 {
				sb.WriteString(tmpl[i:])
				return sb.String()
			}
			expr := tmpl[i+2 : i+2+end]
			if path, ok := strings.CutPrefix(expr, "json:"); ok {
				sb.WriteString(gjson.GetBytes(payload, path).String())
			} else {
				sb.WriteString(tmpl[i : i+3+end])
			}
			i += 2 + end
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// ParseRules decodes a YAML document with a top-level "rules" list.
func ParseRules(data []byte) ([]Rule, error) {
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("bridge: parse rules: %w", err)
	}
	for _, r := range doc.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Rules, nil
}

// RuleSet installs rules on a Manager and replaces them as a unit.
type RuleSet struct {
	mgr     *Manager
	out     Republisher
	scripts atomic.Pointer[script.State]
	log     *slog.Logger

	mu        sync.Mutex
	rules     []Rule
	installed []installed
}

type installed struct {
	pattern string
	h       *mq.BridgeHandler
}

// NewRuleSet creates a RuleSet. scripts may be nil when no rule uses Lua.
func NewRuleSet(mgr *Manager, out Republisher, scripts *script.State) *RuleSet {
	s := &RuleSet{
		mgr: mgr,
		out: out,
		log: mgr.log.With("rules", true),
	}
	s.scripts.Store(scripts)
	return s
}

// Apply validates rules and replaces the installed set with them. On a
// validation error the installed set is left unchanged.
func (s *RuleSet) Apply(rules []Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyLocked(rules, s.scripts.Load())
}

// Replace validates rules against scripts and installs both as a unit. It
// returns the previous script state, which the caller owns and should
// close. On a validation error nothing changes and prev is nil.
func (s *RuleSet) Replace(rules []Rule, scripts *script.State) (prev *script.State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyLocked(rules, scripts); err != nil {
		return nil, err
	}
	return s.scripts.Swap(scripts), nil
}

// Scripts returns the script state rules currently run against.
func (s *RuleSet) Scripts() *script.State {
	return s.scripts.Load()
}

func (s *RuleSet) applyLocked(rules []Rule, scripts *script.State) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.Script != "" && (scripts == nil || !scripts.Has(r.Script)) {
			return fmt.Errorf("%w: %q", ErrRuleScript, r.Script)
		}
	}

	s.clearLocked()
	for _, r := range rules {
		h := s.handler(r)
		if err := s.mgr.Add(r.From, h); err != nil {
			s.clearLocked()
			return err
		}
		s.installed = append(s.installed, installed{pattern: r.From, h: h})
	}
	s.rules = append([]Rule(nil), rules...)
	s.log.Info("bridge rules applied", "count", len(rules))
	return nil
}

// Rules returns the installed rules.
func (s *RuleSet) Rules() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Rule(nil), s.rules...)
}

// Clear removes every installed rule.
func (s *RuleSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
}

func (s *RuleSet) clearLocked() {
	for _, in := range s.installed {
		_ = s.mgr.Remove(in.pattern, in.h)
	}
	s.installed = nil
	s.rules = nil
}

func (s *RuleSet) handler(r Rule) *mq.BridgeHandler {
	return mq.NewBridgeHandler(func(ctx context.Context, name string, payload []byte, _ *mq.Publisher) {
		to, out, ok, err := r.Target(ctx, name, payload, s.scripts.Load())
		if err != nil {
			s.log.Warn("rule failed", "rule", r.label(), "topic", name, "timeout", script.IsTimeout(err), "error", err)
			return
		}
		if !ok {
			return
		}
		if err := s.out.Publish(ctx, to, out, nil); err != nil {
			s.log.Warn("rule republish failed", "rule", r.label(), "from", name, "to", to, "error", err)
		}
	})
}
