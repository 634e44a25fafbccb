package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/floegence/docplanner/internal/docintel"
	"github.com/floegence/docplanner/internal/engine"
	"github.com/floegence/docplanner/internal/plan"
	"github.com/floegence/docplanner/internal/runlog"
)

// Analyzer produces the planning context for a document set.
type Analyzer interface {
	Run(ctx context.Context, names []string) (*docintel.Result, error)
}

type RunnerOptions struct {
	// Analyzer is optional when requests carry no documents.
	Analyzer    Analyzer
	Planner     *Planner
	Loop        *engine.Loop
	Synthesizer *engine.Synthesizer

	Journal *runlog.Journal
	Logger  *slog.Logger

	// NewRunID defaults to a random UUID.
	NewRunID func() string
}

// Runner drives one task from documents to the final artifact.
type Runner struct {
	analyzer Analyzer
	planner  *Planner
	loop     *engine.Loop
	synth    *engine.Synthesizer
	journal  *runlog.Journal
	log      *slog.Logger
	newID    func() string
}

type Request struct {
	Task      string
	Documents []string

	// PlanText skips plan generation when set.
	PlanText string
}

// Summary describes a finished or failed run.
type Summary struct {
	RunID      string           `json:"run_id"`
	State      engine.State     `json:"state"`
	Steps      int              `json:"steps"`
	Iterations int              `json:"iterations"`
	PlanText   string           `json:"plan"`
	Anomalies  []engine.Anomaly `json:"anomalies,omitempty"`

	Documents        int  `json:"documents"`
	DocumentsCached  int  `json:"documents_cached"`
	AnalysisCached   bool `json:"analysis_cached"`
	PlanningAttempts int  `json:"planning_attempts,omitempty"`

	Artifact *engine.Artifact `json:"artifact,omitempty"`
	Error    string           `json:"error,omitempty"`

	DurationMs int64 `json:"duration_ms"`
}

func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Loop == nil {
		return nil, errors.New("missing Loop")
	}
	if opts.Synthesizer == nil {
		return nil, errors.New("missing Synthesizer")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	newID := opts.NewRunID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Runner{
		analyzer: opts.Analyzer,
		planner:  opts.Planner,
		loop:     opts.Loop,
		synth:    opts.Synthesizer,
		journal:  opts.Journal,
		log:      logger,
		newID:    newID,
	}, nil
}

// Run executes req. The returned summary is non-nil whenever a run id was
// assigned, including on failure, so callers can report how far it got.
func (r *Runner) Run(ctx context.Context, req Request) (*Summary, error) {
	task := strings.TrimSpace(req.Task)
	if task == "" && strings.TrimSpace(req.PlanText) == "" {
		return nil, errors.New("missing task")
	}
	start := time.Now()
	sum := &Summary{RunID: r.newID(), State: engine.StatePlanning, Documents: len(req.Documents)}
	logger := r.log.With("run_id", sum.RunID)
	r.journal.Append(runlog.Entry{RunID: sum.RunID, Kind: runlog.KindRunStarted, Detail: map[string]any{"documents": len(req.Documents)}})

	fail := func(err error) (*Summary, error) {
		sum.Error = err.Error()
		sum.DurationMs = time.Since(start).Milliseconds()
		logger.Error("run failed", "state", sum.State, "error", err)
		r.journal.Append(runlog.Entry{RunID: sum.RunID, Kind: runlog.KindRunFailed, Status: "failure", Error: err.Error(), Detail: map[string]any{"state": string(sum.State)}})
		return sum, err
	}

	planningContext := ""
	if len(req.Documents) > 0 {
		if r.analyzer == nil {
			return fail(errors.New("documents given but no analyzer configured"))
		}
		res, err := r.analyzer.Run(ctx, req.Documents)
		if err != nil {
			return fail(fmt.Errorf("analyze documents: %w", err))
		}
		planningContext = res.PlanningContext
		sum.AnalysisCached = res.AnalysisCached
		for _, rec := range res.Records {
			if rec.Cached.Classification && rec.Cached.Extraction {
				sum.DocumentsCached++
			}
		}
	}

	planText, steps, err := r.plan(ctx, req, task, planningContext, sum)
	if err != nil {
		return fail(err)
	}
	sum.PlanText = planText
	sum.Steps = len(steps)
	r.journal.Append(runlog.Entry{RunID: sum.RunID, Kind: runlog.KindPlanParsed, Detail: map[string]any{"steps": len(steps)}})

	st := engine.NewRunState(sum.RunID, task, planText, steps)
	execErr := r.loop.Execute(ctx, st)
	sum.State = st.State
	sum.Iterations = st.Iterations
	sum.Anomalies = append([]engine.Anomaly(nil), st.Anomalies...)
	if execErr != nil {
		return fail(execErr)
	}

	art, err := r.synth.Solve(ctx, st)
	sum.State = st.State
	if err != nil {
		return fail(err)
	}
	sum.Artifact = &art
	sum.DurationMs = time.Since(start).Milliseconds()
	logger.Info("run complete", "steps", sum.Steps, "anomalies", len(sum.Anomalies), "artifact", art.Path, "duration_ms", sum.DurationMs)
	return sum, nil
}

func (r *Runner) plan(ctx context.Context, req Request, task string, planningContext string, sum *Summary) (string, []plan.Step, error) {
	if text := strings.TrimSpace(req.PlanText); text != "" {
		steps, err := plan.Parse(text)
		if err != nil {
			return "", nil, err
		}
		return text, steps, nil
	}
	if r.planner == nil {
		return "", nil, errors.New("no plan text and no planner configured")
	}
	gp, err := r.planner.Plan(ctx, task, planningContext)
	if err != nil {
		return "", nil, err
	}
	sum.PlanningAttempts = gp.Attempts
	return gp.Text, gp.Steps, nil
}
