package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/floegence/docplanner/internal/cache"
	"github.com/floegence/docplanner/internal/config"
	"github.com/floegence/docplanner/internal/docintel"
	"github.com/floegence/docplanner/internal/docread"
	"github.com/floegence/docplanner/internal/engine"
	"github.com/floegence/docplanner/internal/llm"
	"github.com/floegence/docplanner/internal/settings"
	"github.com/floegence/docplanner/internal/websearch"
)

// app holds the components shared by the run and analyze commands.
type app struct {
	cfg     *config.Config
	cfgPath string
	log     *slog.Logger
	secrets *settings.SecretsStore

	counter  *llm.CallCounter
	reasoner llm.Reasoner
	reader   *docread.Reader
	store    *cache.Store
	pipeline *docintel.Pipeline
}

type appOptions struct {
	DocsRoot string
	ModelID  string
	Workers  int
	// NoArtifacts skips writing pipeline artifacts.
	NoArtifacts bool
}

func newApp(cfg *config.Config, cfgPath string, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:     cfg,
		cfgPath: cfgPath,
		log:     logger,
		secrets: settings.NewSecretsStore(config.SecretsPath(cfgPath)),
		counter: &llm.CallCounter{},
	}

	r, err := a.buildReasoner(opts.ModelID)
	if err != nil {
		return nil, err
	}
	a.reasoner = llm.Counting(r, a.counter)

	root := strings.TrimSpace(opts.DocsRoot)
	if root == "" {
		root = "."
	}
	a.reader, err = docread.NewReader(docread.Options{Root: root})
	if err != nil {
		return nil, err
	}

	a.store, err = cache.Open(cfg.EffectiveCachePath(cfgPath), cache.Options{Logger: logger, Version: cfg.CacheVersion})
	if err != nil {
		return nil, err
	}

	strategies, err := docintel.LoadStrategies(cfg.EffectiveStrategiesPath(cfgPath))
	if err != nil {
		_ = a.store.Close()
		return nil, fmt.Errorf("load strategies: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = cfg.EffectiveWorkers()
	}
	artifacts := cfg.EffectiveArtifactsDir(cfgPath)
	if opts.NoArtifacts {
		artifacts = ""
	}
	a.pipeline, err = docintel.New(docintel.Options{
		Reasoner:     a.reasoner,
		Source:       a.reader,
		Cache:        a.store,
		Strategies:   strategies,
		Workers:      workers,
		ArtifactsDir: artifacts,
		Retry:        cfg.EffectiveRetryPolicy(),
		Logger:       logger,
	})
	if err != nil {
		_ = a.store.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a == nil || a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("close cache failed", "error", err)
	}
}

func (a *app) buildReasoner(modelID string) (llm.Reasoner, error) {
	provider, model, err := a.cfg.AI.ResolveModel(modelID)
	if err != nil {
		return nil, err
	}
	key, ok, err := a.secrets.ResolveAIProviderAPIKey(provider.ID, provider.Type)
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("missing api key for provider %q (set DOCPLANNER_%s_API_KEY or add it to %s)",
			provider.ID, strings.ToUpper(provider.ID), a.secrets.Path())
	}
	a.log.Debug("reasoner configured", "provider", provider.ID, "type", provider.Type, "model", model)
	return llm.NewReasoner(llm.ProviderOptions{
		Type:            provider.Type,
		BaseURL:         provider.BaseURL,
		APIKey:          key,
		Model:           model,
		MaxOutputTokens: a.cfg.AI.EffectiveMaxOutputTokens(),
	})
}

// webSearch returns nil when search is disabled or has no key; plans that
// use it then fail with an UNAVAILABLE tool error.
func (a *app) webSearch() engine.WebSearch {
	provider := a.cfg.AI.EffectiveWebSearchProvider()
	if provider == config.WebSearchDisabled {
		return nil
	}
	c, err := newSearchClient(a.secrets, provider, 0)
	if err != nil {
		a.log.Warn("web search unavailable", "provider", provider, "error", err)
		return nil
	}
	return c
}

var errMissingSearchKey = errors.New("missing web search api key")

func newSearchClient(secrets *settings.SecretsStore, provider string, count int) (*websearch.Client, error) {
	key, ok, err := secrets.ResolveWebSearchAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w for provider %q", errMissingSearchKey, provider)
	}
	return websearch.NewClient(websearch.Options{Provider: provider, APIKey: key, Count: count})
}
