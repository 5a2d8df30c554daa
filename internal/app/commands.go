package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dshills/topicmq/internal/mq"
)

// Command is a parsed command line.
type Command struct {
	Name string
	Args []string

	// Payload is the raw remainder of a pub command line.
	Payload string
}

// usage lists every command with its arguments.
var usage = map[string]string{
	"sub":      "sub <topic>",
	"unsub":    "unsub <topic>",
	"pub":      "pub <topic> [payload]",
	"bridge":   "bridge <from> <to>",
	"unbridge": "unbridge <from>",
	"routes":   "routes",
	"rules":    "rules",
	"topics":   "topics",
	"tokens":   "tokens",
	"id":       "id <topic>",
	"exists":   "exists <topic>",
	"stats":    "stats",
	"debug":    "debug on|off",
	"help":     "help",
	"quit":     "quit",
}

// ParseCommand splits a command line. Blank lines and lines starting with
// '#' parse to a Command with an empty Name. The payload of pub keeps its
// inner spacing.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Command{}, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	if _, ok := usage[name]; !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	cmd := Command{Name: name}
	if name == "pub" {
		topic, payload, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
		if topic != "" {
			cmd.Args = []string{topic}
		}
		cmd.Payload = payload
	} else {
		cmd.Args = strings.Fields(rest)
	}

	if !arity(cmd) {
		return Command{}, fmt.Errorf("%w: %s", ErrUsage, usage[name])
	}
	return cmd, nil
}

func arity(cmd Command) bool {
	switch cmd.Name {
	case "sub", "unsub", "pub", "unbridge", "id", "exists", "debug":
		return len(cmd.Args) == 1
	case "bridge":
		return len(cmd.Args) == 2
	default:
		return len(cmd.Args) == 0
	}
}

// Exec parses and runs one command line.
func (a *Application) Exec(ctx context.Context, line string) error {
	cmd, err := ParseCommand(line)
	if err != nil || cmd.Name == "" {
		return err
	}

	c := a.client
	switch cmd.Name {
	case "sub":
		return a.subscribe(ctx, cmd.Args[0])

	case "unsub":
		return a.unsubscribe(ctx, cmd.Args[0])

	case "pub":
		pub := mq.NewPublisher(func(name string, r mq.Result) {
			a.printf("published %s: %s\n", name, r)
		})
		return c.Publish(ctx, cmd.Args[0], []byte(cmd.Payload), pub)

	case "bridge":
		if err := a.redirector.Add(cmd.Args[0], cmd.Args[1]); err != nil {
			return err
		}
		a.printf("bridge %s -> %s\n", cmd.Args[0], cmd.Args[1])

	case "unbridge":
		return a.redirector.Remove(cmd.Args[0])

	case "routes":
		for _, r := range a.redirector.Routes() {
			a.printf("%s -> %s\n", r[0], r[1])
		}

	case "rules":
		for _, r := range a.rules.Rules() {
			target := r.To
			if r.Script != "" {
				target = "lua:" + r.Script
			}
			a.printf("%s -> %s\n", r.From, target)
		}

	case "topics":
		names, err := c.Broker().Topics(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			a.printf("%s\n", n)
		}

	case "tokens":
		a.printf("%s\n", strings.Join(c.Tokens(), " "))

	case "id":
		id, err := c.TopicID(cmd.Args[0])
		if err != nil {
			return err
		}
		a.printf("%s\n", id)

	case "exists":
		a.printf("%t\n", c.Exists(cmd.Args[0]))

	case "stats":
		s := c.Broker().Stats()
		a.printf("topics=%d subscriptions=%d tokens=%d pending=%d published=%d delivered=%d unmatched=%d panics=%d lock_timeouts=%d escalations=%d bridges=%d\n",
			s.Topics, s.Subscriptions, s.Tokens, s.Pending,
			s.Published, s.Delivered, s.Unmatched, s.SubscriberPanics,
			s.LockTimeouts, s.Escalations, c.Bridges().Len())

	case "debug":
		switch cmd.Args[0] {
		case "on":
			c.Broker().SetDebug(true)
			a.level.Set(slog.LevelDebug)
		case "off":
			c.Broker().SetDebug(false)
			a.level.Set(a.Config().LogLevel())
		default:
			return fmt.Errorf("%w: %s", ErrUsage, usage["debug"])
		}

	case "help":
		names := make([]string, 0, len(usage))
		for n := range usage {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			a.printf("  %s\n", usage[n])
		}

	case "quit":
		return ErrQuit
	}
	return nil
}

func (a *Application) subscribe(ctx context.Context, name string) error {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()

	if _, ok := a.subs[name]; ok {
		return mq.Wrap("subscribe", name, mq.ErrExists)
	}
	sub := mq.NewSubscriber(func(topic string, payload []byte) {
		a.printf("%s %s\n", topic, payload)
	})
	if err := a.client.Subscribe(ctx, name, sub); err != nil {
		return err
	}
	a.subs[name] = sub
	return nil
}

func (a *Application) unsubscribe(ctx context.Context, name string) error {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()

	sub, ok := a.subs[name]
	if !ok {
		return mq.Wrap("unsubscribe", name, mq.ErrNotFound)
	}
	if err := a.client.Unsubscribe(ctx, name, sub); err != nil {
		return err
	}
	delete(a.subs, name)
	return nil
}
