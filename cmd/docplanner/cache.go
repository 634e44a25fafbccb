package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/floegence/docplanner/internal/cache"
	"github.com/floegence/docplanner/internal/docintel"
)

func cacheCmd(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: docplanner cache stats|prune [flags]\n")
		os.Exit(2)
	}
	switch args[0] {
	case "stats":
		cacheStatsCmd(args[1:])
	case "prune":
		cachePruneCmd(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown cache command %q (want stats|prune)\n", args[0])
		os.Exit(2)
	}
}

func openCacheForCmd(configPath string, logFormat string, logLevel string) *cache.Store {
	cfg, cfgPath, err := loadConfig(configPath, false)
	if err != nil {
		fatalf("failed to load config (%s): %v", cfgPath, err)
	}
	logger := mustLogger(cfg, logFormat, logLevel)
	strategies, err := docintel.LoadStrategies(cfg.EffectiveStrategiesPath(cfgPath))
	if err != nil {
		fatalf("failed to load strategies: %v", err)
	}
	store, err := cache.Open(cfg.EffectiveCachePath(cfgPath), cache.Options{Logger: logger, Version: cfg.CacheVersion})
	if err != nil {
		fatalf("failed to open cache: %v", err)
	}
	// Entries are current only under the version the pipeline writes with.
	return store.WithVersion(docintel.CacheVersion(store.Version(), strategies))
}

func cacheStatsCmd(args []string) {
	fs := flag.NewFlagSet("cache stats", flag.ExitOnError)
	configPath := fs.String("config-path", "", "Config path (default: ~/.docplanner/config.json)")
	format := fs.String("format", "", "Output format: json|text (default: text on a terminal, json otherwise)")
	logFormat := fs.String("log-format", "", "Log format: json|text")
	logLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")
	_ = fs.Parse(args)

	outFormat, err := outputFormat(*format, os.Stdout)
	if err != nil {
		fatalf("invalid --format: %v", err)
	}
	store := openCacheForCmd(*configPath, *logFormat, *logLevel)
	defer func() { _ = store.Close() }()

	st, err := store.Stats(context.Background())
	if err != nil {
		_ = store.Close()
		fatalf("cache stats failed: %v", err)
	}

	if outFormat == "json" {
		b, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			fatalf("failed to encode stats: %v", err)
		}
		fmt.Printf("%s\n", b)
		return
	}
	fmt.Printf("path:     %s\n", st.Path)
	fmt.Printf("version:  %s\n", st.Version)
	if st.Disabled {
		fmt.Printf("status:   disabled\n")
		return
	}
	fmt.Printf("entries:  %d (%d stale)\n", st.Entries, st.Stale)
	fmt.Printf("payload:  %d bytes\n", st.Bytes)
	stages := make([]string, 0, len(st.ByStage))
	for s := range st.ByStage {
		stages = append(stages, string(s))
	}
	sort.Strings(stages)
	for _, s := range stages {
		fmt.Printf("  %-15s %d\n", s, st.ByStage[cache.Stage(s)])
	}
}

func cachePruneCmd(args []string) {
	fs := flag.NewFlagSet("cache prune", flag.ExitOnError)
	configPath := fs.String("config-path", "", "Config path (default: ~/.docplanner/config.json)")
	olderThan := fs.Duration("older-than", 0, "Also remove entries older than this (0: only stale versions)")
	logFormat := fs.String("log-format", "", "Log format: json|text")
	logLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")
	_ = fs.Parse(args)

	if *olderThan < 0 {
		fatalf("invalid --older-than: %s", *olderThan)
	}
	store := openCacheForCmd(*configPath, *logFormat, *logLevel)
	defer func() { _ = store.Close() }()

	start := time.Now()
	n, err := store.Prune(context.Background(), *olderThan)
	if err != nil {
		_ = store.Close()
		fatalf("cache prune failed: %v", err)
	}
	fmt.Printf("removed %d entries in %s\n", n, time.Since(start).Round(time.Millisecond))
}
