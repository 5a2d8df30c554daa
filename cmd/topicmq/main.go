// Package main is the entry point for the topicmq broker shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/dshills/topicmq/internal/app"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	application, err := app.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags() app.Options {
	var opts app.Options
	var showVersion bool

	flag.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (.toml, .yaml)")
	flag.BoolVarP(&opts.Debug, "debug", "d", false, "Enable broker debug traces")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.LogFormat, "log-format", "", "Log format (auto, text, json)")
	flag.BoolVarP(&showVersion, "version", "v", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "topicmq - embedded topic broker shell\n\n")
		fmt.Fprintf(os.Stderr, "Usage: topicmq [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands are read from stdin, one per line. Type help for a list.\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  topicmq -c topicmq.toml\n")
		fmt.Fprintf(os.Stderr, "  echo 'sub stat/#' | topicmq --log-format json\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("topicmq %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	return opts
}
