// Package docintel classifies and extracts a set of documents, analyzes them
// together, and renders the planning context used to generate a plan.
//
// Every stage is cached by content hash, so an unchanged document set costs
// no model calls on a re-run.
package docintel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/floegence/docplanner/internal/cache"
	"github.com/floegence/docplanner/internal/docread"
	"github.com/floegence/docplanner/internal/retry"
)

const (
	maxDefaultWorkers     = 8
	defaultMaxPromptChars = 24000
)

type Reasoner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Source returns the raw bytes of a named document and the path they came from.
type Source interface {
	ReadBytes(ctx context.Context, name string) ([]byte, string, error)
}

type Options struct {
	Reasoner Reasoner
	Source   Source
	// Cache is used under CacheVersion(Cache.Version(), Strategies).
	Cache      *cache.Store
	Strategies *Strategies
	// Workers bounds concurrent per-document work. 0 uses DefaultWorkers.
	Workers int
	// ArtifactsDir receives per-document and analysis artifacts. Empty skips writing.
	ArtifactsDir string
	// MaxPromptChars bounds document text embedded in a prompt.
	MaxPromptChars int
	Retry          retry.Policy
	Logger         *slog.Logger
}

type Pipeline struct {
	reasoner   Reasoner
	source     Source
	cache      *cache.Store
	strategies *Strategies
	workers    int
	artifacts  string
	maxPrompt  int
	retry      retry.Policy
	log        *slog.Logger

	flight singleflight.Group
}

type Result struct {
	Records         []DocumentRecord `json:"records"`
	Analysis        Analysis         `json:"analysis"`
	AnalysisKey     string           `json:"analysis_key"`
	AnalysisCached  bool             `json:"analysis_cached"`
	RawAnalysis     json.RawMessage  `json:"-"`
	PlanningContext string           `json:"planning_context"`
	Artifacts       []string         `json:"artifacts,omitempty"`
}

func New(opts Options) (*Pipeline, error) {
	if opts.Reasoner == nil {
		return nil, errors.New("missing Reasoner")
	}
	if opts.Source == nil {
		return nil, errors.New("missing Source")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	strategies := opts.Strategies
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers(context.Background())
	}
	maxPrompt := opts.MaxPromptChars
	if maxPrompt <= 0 {
		maxPrompt = defaultMaxPromptChars
	}
	return &Pipeline{
		reasoner:   opts.Reasoner,
		source:     opts.Source,
		cache:      opts.Cache.WithVersion(CacheVersion(opts.Cache.Version(), strategies)),
		strategies: strategies,
		workers:    workers,
		artifacts:  strings.TrimSpace(opts.ArtifactsDir),
		maxPrompt:  maxPrompt,
		retry:      opts.Retry,
		log:        logger,
	}, nil
}

// DefaultWorkers is the logical CPU count, capped at 8.
func DefaultWorkers(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	if n > maxDefaultWorkers {
		n = maxDefaultWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run processes names concurrently, then analyzes them as one set. Records
// keep the input order. Any document that cannot be read or extracted fails
// the run; cache entries written before the failure are kept.
func (p *Pipeline) Run(ctx context.Context, names []string) (*Result, error) {
	if len(names) == 0 {
		return nil, errors.New("no documents")
	}
	start := time.Now()

	records := make([]DocumentRecord, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, name := range names {
		g.Go(func() error {
			rec, err := p.processDocument(gctx, name)
			if err != nil {
				return fmt.Errorf("document %s: %w", name, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Records: records}
	if err := p.analyze(ctx, res); err != nil {
		return nil, err
	}
	res.PlanningContext = renderPlanningContext(res.Records, res.Analysis)

	if p.artifacts != "" {
		paths, err := writeArtifacts(p.artifacts, res)
		if err != nil {
			return nil, fmt.Errorf("write artifacts: %w", err)
		}
		res.Artifacts = paths
	}

	hits := 0
	for _, r := range records {
		if r.Cached.Classification && r.Cached.Extraction {
			hits++
		}
	}
	p.log.Info("document intelligence complete",
		"documents", len(records),
		"fully_cached", hits,
		"analysis_cached", res.AnalysisCached,
		"workers", p.workers,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

type contentResult struct {
	class      Classification
	extract    Extraction
	rawClass   json.RawMessage
	rawExtract json.RawMessage
	hits       CacheHits
}

func (p *Pipeline) processDocument(ctx context.Context, name string) (DocumentRecord, error) {
	data, path, err := p.source.ReadBytes(ctx, name)
	if err != nil {
		return DocumentRecord{}, err
	}
	hash := cache.HashContent(data)

	// Identical bytes under different names share one computation.
	v, err, _ := p.flight.Do(hash, func() (any, error) {
		return p.processContent(ctx, hash, path, data)
	})
	if err != nil {
		return DocumentRecord{}, err
	}
	cr := v.(*contentResult)
	return DocumentRecord{
		Name:           name,
		ContentHash:    hash,
		Classification: cr.class,
		Extraction:     cr.extract,
		Cached:         cr.hits,
		RawClass:       cr.rawClass,
		RawExtract:     cr.rawExtract,
	}, nil
}

func (p *Pipeline) processContent(ctx context.Context, hash string, path string, data []byte) (*contentResult, error) {
	logger := p.log.With("content_hash", shortHash(hash))

	var (
		textOnce sync.Once
		text     string
		textErr  error
	)
	documentText := func() (string, error) {
		textOnce.Do(func() {
			text, textErr = docread.Extract(path, data)
			text = truncateText(text, p.maxPrompt)
		})
		return text, textErr
	}

	out := &contentResult{}

	if e, ok := p.cache.Get(ctx, hash, cache.StageClassification); ok && json.Unmarshal(e.Payload, &out.class) == nil {
		out.rawClass = e.Payload
		out.hits.Classification = true
		logger.Debug("classification cache hit")
	} else {
		txt, err := documentText()
		if err != nil {
			return nil, err
		}
		raw, err := p.complete(ctx, "classification", classifyPrompt(p.strategies, txt))
		if err != nil {
			return nil, err
		}
		out.class = p.parseClassification(raw)
		out.rawClass = p.store(ctx, hash, cache.StageClassification, out.class)
	}

	if e, ok := p.cache.Get(ctx, hash, cache.StageExtraction); ok && json.Unmarshal(e.Payload, &out.extract) == nil {
		out.rawExtract = e.Payload
		out.hits.Extraction = true
		logger.Debug("extraction cache hit")
	} else {
		txt, err := documentText()
		if err != nil {
			return nil, err
		}
		st := p.strategies.Lookup(out.class.Type)
		raw, err := p.complete(ctx, "extraction", extractPrompt(st, out.class, txt))
		if err != nil {
			return nil, err
		}
		out.extract = parseExtraction(raw, st.Type)
		out.rawExtract = p.store(ctx, hash, cache.StageExtraction, out.extract)
	}
	return out, nil
}

func (p *Pipeline) analyze(ctx context.Context, res *Result) error {
	hashes := make([]string, 0, len(res.Records))
	for _, r := range res.Records {
		hashes = append(hashes, r.ContentHash)
	}
	res.AnalysisKey = cache.HashSet(hashes)

	if e, ok := p.cache.Get(ctx, res.AnalysisKey, cache.StageAnalysis); ok && json.Unmarshal(e.Payload, &res.Analysis) == nil {
		res.RawAnalysis = e.Payload
		res.AnalysisCached = true
		return nil
	}
	raw, err := p.complete(ctx, "analysis", analyzePrompt(res.Records))
	if err != nil {
		return err
	}
	res.Analysis = parseAnalysis(raw)
	res.RawAnalysis = p.store(ctx, res.AnalysisKey, cache.StageAnalysis, res.Analysis)
	return nil
}

func (p *Pipeline) complete(ctx context.Context, stage string, prompt string) (string, error) {
	out, attempts, err := retry.Do(ctx, p.retry, nil, func(callCtx context.Context) (string, error) {
		return p.reasoner.Complete(callCtx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("%s failed after %d attempt(s): %w", stage, attempts, err)
	}
	return out, nil
}

// store marshals v, writes it to the cache and returns the stored bytes.
// Cache write failures are logged; the result is still usable.
func (p *Pipeline) store(ctx context.Context, key string, stage cache.Stage, v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		p.log.Warn("marshal cache payload failed", "stage", stage, "error", err)
		return nil
	}
	if err := p.cache.Put(ctx, key, stage, b); err != nil {
		p.log.Warn("cache write failed", "stage", stage, "error", err)
	}
	return b
}

func (p *Pipeline) parseClassification(raw string) Classification {
	var c Classification
	if err := decodeModelJSON(raw, &c); err != nil {
		p.log.Warn("classification output is not JSON; using default type", "error", err)
		c = Classification{Summary: firstLine(raw)}
	}
	c.Type = normalizeType(c.Type)
	if !p.strategies.Has(c.Type) {
		c.Type = p.strategies.Default
	}
	c.Confidence = clamp01(c.Confidence)
	c.Summary = strings.TrimSpace(c.Summary)
	return c
}

func parseExtraction(raw string, typ string) Extraction {
	var decoded struct {
		Fields    map[string]any `json:"fields"`
		Summary   string         `json:"summary"`
		KeyPoints []string       `json:"key_points"`
	}
	e := Extraction{Type: typ, Fields: map[string]string{}}
	if err := decodeModelJSON(raw, &decoded); err != nil {
		e.Summary = strings.TrimSpace(raw)
		return e
	}
	for k, v := range decoded.Fields {
		k = strings.TrimSpace(k)
		if s := fieldString(v); k != "" && s != "" {
			e.Fields[k] = s
		}
	}
	e.Summary = strings.TrimSpace(decoded.Summary)
	e.KeyPoints = cleanList(decoded.KeyPoints)
	return e
}

// fieldString flattens a model-provided field value to text.
func fieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := fieldString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func parseAnalysis(raw string) Analysis {
	var a Analysis
	if err := decodeModelJSON(raw, &a); err != nil {
		a = Analysis{Summary: strings.TrimSpace(raw)}
	}
	a.Summary = strings.TrimSpace(a.Summary)
	a.Gaps = cleanList(a.Gaps)
	a.Conflicts = cleanList(a.Conflicts)
	return a
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
