// Package engine executes parsed plans: it resolves evidence references,
// dispatches each step to its tool, and synthesizes the final answer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/floegence/docplanner/internal/plan"
	"github.com/floegence/docplanner/internal/retry"
	"github.com/floegence/docplanner/internal/runlog"
)

// State is the run state machine position.
type State string

const (
	StatePlanning  State = "planning"
	StateExecuting State = "executing"
	StateSolving   State = "solving"
	StateDone      State = "done"
)

type AnomalyKind string

const AnomalyUnresolvedEvidence AnomalyKind = "unresolved_evidence"

// Anomaly is a non-fatal irregularity observed during execution.
type Anomaly struct {
	Kind       AnomalyKind `json:"kind"`
	EvidenceID string      `json:"evidence_id"`
	Reference  string      `json:"reference,omitempty"`
}

// RunState is the mutable state of one run. Only Loop advances Cursor and
// writes Evidence; only Synthesizer writes FinalResult.
type RunState struct {
	RunID    string
	Task     string
	PlanText string
	Steps    []plan.Step
	Evidence *EvidenceStore

	Cursor      int
	Iterations  int
	State       State
	FinalResult *string
	Anomalies   []Anomaly
}

func NewRunState(runID string, task string, planText string, steps []plan.Step) *RunState {
	return &RunState{
		RunID:    strings.TrimSpace(runID),
		Task:     task,
		PlanText: planText,
		Steps:    append([]plan.Step(nil), steps...),
		Evidence: NewEvidenceStore(),
		State:    StatePlanning,
	}
}

// Route decides the next state from the cursor alone.
func Route(st *RunState) State {
	if st.Cursor < len(st.Steps) {
		return StateExecuting
	}
	return StateSolving
}

type LoopOptions struct {
	Tools  Dispatcher
	Retry  retry.Policy
	Logger *slog.Logger

	// Journal is optional.
	Journal *runlog.Journal

	// StrictEvidence makes unresolved references fatal instead of anomalies.
	StrictEvidence bool
}

// Loop drives step-by-step execution of a RunState.
type Loop struct {
	tools   Dispatcher
	retry   retry.Policy
	log     *slog.Logger
	journal *runlog.Journal
	strict  bool
}

func NewLoop(opts LoopOptions) (*Loop, error) {
	if opts.Tools == nil {
		return nil, errors.New("missing Tools")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Loop{
		tools:   opts.Tools,
		retry:   opts.Retry,
		log:     logger,
		journal: opts.Journal,
		strict:  opts.StrictEvidence,
	}, nil
}

// Execute runs steps from the cursor until every step has produced evidence,
// then moves the state to solving. On failure the state stays executing and
// the error is a *StepError (or the context error when cancelled).
func (l *Loop) Execute(ctx context.Context, st *RunState) error {
	if st == nil {
		return errors.New("nil run state")
	}
	if st.Evidence == nil {
		st.Evidence = NewEvidenceStore()
	}
	switch st.State {
	case StatePlanning, "":
		st.State = StateExecuting
	case StateExecuting:
	default:
		return fmt.Errorf("cannot execute run in state %s", st.State)
	}

	for {
		if Route(st) == StateSolving {
			st.State = StateSolving
			l.log.Info("plan executed", "run_id", st.RunID, "steps", len(st.Steps), "anomalies", len(st.Anomalies))
			return nil
		}
		if err := ctx.Err(); err != nil {
			l.log.Warn("run cancelled", "run_id", st.RunID, "cursor", st.Cursor)
			return fmt.Errorf("run cancelled before %s: %w", st.Steps[st.Cursor].EvidenceID, err)
		}
		if err := l.step(ctx, st); err != nil {
			return err
		}
	}
}

func (l *Loop) step(ctx context.Context, st *RunState) error {
	idx := st.Cursor
	step := st.Steps[idx]
	logger := l.log.With("run_id", st.RunID, "evidence_id", step.EvidenceID, "tool", step.Tool.String())

	res := Resolve(step.RawInput, st.Evidence.Snapshot())
	for _, ref := range res.Unresolved {
		logger.Warn("unresolved evidence reference", "reference", ref)
		st.Anomalies = append(st.Anomalies, Anomaly{Kind: AnomalyUnresolvedEvidence, EvidenceID: step.EvidenceID, Reference: ref})
		l.journal.Append(runlog.Entry{
			RunID:      st.RunID,
			Kind:       runlog.KindEvidenceUnresolved,
			Status:     "failure",
			EvidenceID: step.EvidenceID,
			Tool:       step.Tool.String(),
			Detail:     map[string]any{"reference": ref},
		})
	}
	if l.strict && len(res.Unresolved) > 0 {
		err := &StepError{Index: idx, EvidenceID: step.EvidenceID, Tool: step.Tool, Err: &UnresolvedEvidenceError{References: res.Unresolved}}
		l.fail(st, step, 0, err)
		return err
	}

	l.journal.Append(runlog.Entry{RunID: st.RunID, Kind: runlog.KindStepStarted, EvidenceID: step.EvidenceID, Tool: step.Tool.String()})
	logger.Debug("dispatching step", "input_chars", len(res.Text))

	retryable := func(err error) bool {
		te := classifyToolError(step.Tool, err)
		if te.Retryable() {
			logger.Warn("step failed; retrying", "error", err)
			l.journal.Append(runlog.Entry{RunID: st.RunID, Kind: runlog.KindStepRetried, Status: "failure", EvidenceID: step.EvidenceID, Tool: step.Tool.String(), Error: err.Error()})
			return true
		}
		return false
	}
	out, attempts, err := retry.Do(ctx, l.retry, retryable, func(callCtx context.Context) (string, error) {
		return l.tools.Execute(callCtx, step.Tool, res.Text)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			logger.Warn("run cancelled during step")
			return fmt.Errorf("run cancelled during %s: %w", step.EvidenceID, err)
		}
		te := classifyToolError(step.Tool, err)
		te.EvidenceID = step.EvidenceID
		te.Attempts = attempts
		serr := &StepError{Index: idx, EvidenceID: step.EvidenceID, Tool: step.Tool, Err: te}
		l.fail(st, step, attempts, serr)
		return serr
	}

	if err := st.Evidence.Put(step.EvidenceID, out); err != nil {
		serr := &StepError{Index: idx, EvidenceID: step.EvidenceID, Tool: step.Tool, Err: err}
		l.fail(st, step, attempts, serr)
		return serr
	}
	st.Cursor++
	st.Iterations++
	logger.Info("step completed", "attempts", attempts, "result_chars", len(out))
	l.journal.Append(runlog.Entry{RunID: st.RunID, Kind: runlog.KindStepCompleted, EvidenceID: step.EvidenceID, Tool: step.Tool.String(), Attempt: attempts})
	return nil
}

func (l *Loop) fail(st *RunState, step plan.Step, attempts int, err error) {
	l.log.Error("step failed", "run_id", st.RunID, "evidence_id", step.EvidenceID, "tool", step.Tool.String(), "attempts", attempts, "error", err)
	l.journal.Append(runlog.Entry{
		RunID:      st.RunID,
		Kind:       runlog.KindStepFailed,
		Status:     "failure",
		Error:      err.Error(),
		EvidenceID: step.EvidenceID,
		Tool:       step.Tool.String(),
		Attempt:    attempts,
	})
}
