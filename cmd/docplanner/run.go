package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/floegence/docplanner/internal/engine"
	"github.com/floegence/docplanner/internal/runlog"
	"github.com/floegence/docplanner/internal/workflow"
)

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config-path", "", "Config path (default: ~/.docplanner/config.json)")
	docsRoot := fs.String("docs", ".", "Directory documents are read from")
	task := fs.String("task", "", "Task to solve")
	planFile := fs.String("plan", "", "Execute this plan file instead of generating a plan")
	modelID := fs.String("model", "", "Model id <provider_id>/<model_name> (default: the configured default model)")
	strict := fs.Bool("strict", false, "Fail on unresolved evidence references (overrides strict_evidence)")
	workers := fs.Int("workers", 0, "Document workers (default: from config, else CPU count capped at 8)")
	format := fs.String("format", "", "Output format: json|text (default: text on a terminal, json otherwise)")
	timeout := fs.Duration("timeout", 0, "Overall run timeout (0: none)")
	logFormat := fs.String("log-format", "", "Log format: json|text")
	logLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")
	_ = fs.Parse(args)

	planText := ""
	if p := strings.TrimSpace(*planFile); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			fatalf("failed to read plan: %v", err)
		}
		planText = string(b)
	}
	if strings.TrimSpace(*task) == "" && planText == "" {
		fs.Usage()
		os.Exit(2)
	}
	outFormat, err := outputFormat(*format, os.Stdout)
	if err != nil {
		fatalf("invalid --format: %v", err)
	}

	cfg, cfgPath, err := loadConfig(*configPath, true)
	if err != nil {
		fatalf("failed to load config (%s): %v", cfgPath, err)
	}
	logger := mustLogger(cfg, *logFormat, *logLevel)

	a, err := newApp(cfg, cfgPath, logger, appOptions{DocsRoot: *docsRoot, ModelID: *modelID, Workers: *workers})
	if err != nil {
		fatalf("failed to init: %v", err)
	}
	defer a.Close()

	journal, err := runlog.New(runlog.Options{StateDir: cfg.EffectiveStateDir(cfgPath), Logger: logger})
	if err != nil {
		logger.Warn("run journal disabled", "error", err)
		journal = nil
	}

	policy := cfg.EffectiveRetryPolicy()
	planner, err := workflow.NewPlanner(workflow.PlannerOptions{Reasoner: a.reasoner, Retry: policy, Logger: logger})
	if err != nil {
		fatalf("failed to init planner: %v", err)
	}
	loop, err := engine.NewLoop(engine.LoopOptions{
		Tools: &engine.Toolset{
			Reader:        a.reader,
			Reasoner:      a.reasoner,
			Search:        a.webSearch(),
			MaxQueryChars: cfg.EffectiveMaxQueryChars(),
		},
		Retry:          policy,
		Logger:         logger,
		Journal:        journal,
		StrictEvidence: cfg.StrictEvidence || *strict,
	})
	if err != nil {
		fatalf("failed to init executor: %v", err)
	}
	synth, err := engine.NewSynthesizer(engine.SynthesizerOptions{
		Reasoner:  a.reasoner,
		OutputDir: cfg.EffectiveOutputDir(cfgPath),
		Retry:     policy,
		Logger:    logger,
		Journal:   journal,
	})
	if err != nil {
		fatalf("failed to init synthesizer: %v", err)
	}
	runner, err := workflow.NewRunner(workflow.RunnerOptions{
		Analyzer:    a.pipeline,
		Planner:     planner,
		Loop:        loop,
		Synthesizer: synth,
		Journal:     journal,
		Logger:      logger,
	})
	if err != nil {
		fatalf("failed to init runner: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	if *timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, *timeout)
		defer tcancel()
	}

	sum, runErr := runner.Run(ctx, workflow.Request{Task: *task, Documents: fs.Args(), PlanText: planText})
	if sum != nil {
		if err := printSummary(os.Stdout, outFormat, sum, a.counter.Calls()); err != nil {
			fatalf("failed to print summary: %v", err)
		}
	}
	if runErr != nil {
		a.Close()
		fatalf("run failed: %v", runErr)
	}
}

func analyzeCmd(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config-path", "", "Config path (default: ~/.docplanner/config.json)")
	docsRoot := fs.String("docs", ".", "Directory documents are read from")
	modelID := fs.String("model", "", "Model id <provider_id>/<model_name>")
	workers := fs.Int("workers", 0, "Document workers (default: from config, else CPU count capped at 8)")
	noArtifacts := fs.Bool("no-artifacts", false, "Do not write per-document artifacts")
	timeout := fs.Duration("timeout", 0, "Overall timeout (0: none)")
	logFormat := fs.String("log-format", "", "Log format: json|text")
	logLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, cfgPath, err := loadConfig(*configPath, true)
	if err != nil {
		fatalf("failed to load config (%s): %v", cfgPath, err)
	}
	logger := mustLogger(cfg, *logFormat, *logLevel)

	a, err := newApp(cfg, cfgPath, logger, appOptions{DocsRoot: *docsRoot, ModelID: *modelID, Workers: *workers, NoArtifacts: *noArtifacts})
	if err != nil {
		fatalf("failed to init: %v", err)
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()
	if *timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, *timeout)
		defer tcancel()
	}

	start := time.Now()
	res, err := a.pipeline.Run(ctx, fs.Args())
	if err != nil {
		a.Close()
		fatalf("analyze failed: %v", err)
	}
	fmt.Print(res.PlanningContext)
	logger.Info("analysis finished",
		"documents", len(res.Records),
		"reasoning_calls", a.counter.Calls(),
		"artifacts", len(res.Artifacts),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
