package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/floegence/docplanner/internal/config"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "analyze":
		analyzeCmd(os.Args[2:])
	case "plan-check":
		planCheckCmd(os.Args[2:])
	case "search":
		searchCmd(os.Args[2:])
	case "cache":
		cacheCmd(os.Args[2:])
	case "version":
		fmt.Printf("docplanner %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `docplanner

Usage:
  docplanner run [flags] --task "<task>" <document>...
  docplanner analyze [flags] <document>...
  docplanner plan-check [flags] <plan file>
  docplanner search [flags] <query>
  docplanner cache stats|prune [flags]
  docplanner version

Commands:
  run         Analyze documents, plan the task, execute the plan and write the final answer.
  analyze     Classify and extract documents and print the planning context.
  plan-check  Parse a plan file and print its steps.
  search      Run a web search with the configured provider.
  cache       Inspect or prune the content cache.
  version     Print build information.

`)
}

// loadConfig reads the config file. When requireAI is false a missing file
// yields an empty config so cache and plan tooling work on a clean machine.
func loadConfig(path string, requireAI bool) (*config.Config, string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		p = config.DefaultConfigPath()
	}
	p = filepath.Clean(p)
	cfg, err := config.Load(p)
	if err != nil {
		if !requireAI && errors.Is(err, fs.ErrNotExist) {
			return &config.Config{}, p, nil
		}
		return nil, p, err
	}
	return cfg, p, nil
}

func newLogger(format string, level string, w io.Writer) (*slog.Logger, error) {
	var h slog.Handler

	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	return slog.New(h), nil
}

// mustLogger builds the stderr logger; flag values override the config file.
func mustLogger(cfg *config.Config, format string, level string) *slog.Logger {
	if strings.TrimSpace(format) == "" {
		format = cfg.EffectiveLogFormat()
	}
	if strings.TrimSpace(level) == "" {
		level = cfg.EffectiveLogLevel()
	}
	logger, err := newLogger(format, level, os.Stderr)
	if err != nil {
		fatalf("invalid logging flags: %v", err)
	}
	return logger
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
