package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/floegence/docplanner/internal/lockfile"
	"github.com/floegence/docplanner/internal/plan"
	"github.com/floegence/docplanner/internal/retry"
	"github.com/floegence/docplanner/internal/runlog"
)

const (
	finalArtifactName    = "final.md"
	evidenceArtifactName = "evidence.json"
	runLockName          = "run.lock"
)

// Artifact is the synthesized answer and where it was written.
type Artifact struct {
	Text         string `json:"text"`
	Path         string `json:"path"`
	EvidencePath string `json:"evidence_path"`
}

type SynthesizerOptions struct {
	Reasoner Reasoner
	// OutputDir receives <run_id>/final.md and <run_id>/evidence.json.
	OutputDir string
	Retry     retry.Policy
	Logger    *slog.Logger
	Journal   *runlog.Journal
}

// Synthesizer turns a fully executed run into the final artifact.
type Synthesizer struct {
	reasoner  Reasoner
	outputDir string
	retry     retry.Policy
	log       *slog.Logger
	journal   *runlog.Journal
}

func NewSynthesizer(opts SynthesizerOptions) (*Synthesizer, error) {
	if opts.Reasoner == nil {
		return nil, errors.New("missing Reasoner")
	}
	outDir := strings.TrimSpace(opts.OutputDir)
	if outDir == "" {
		return nil, errors.New("missing OutputDir")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Synthesizer{
		reasoner:  opts.Reasoner,
		outputDir: filepath.Clean(outDir),
		retry:     opts.Retry,
		log:       logger,
		journal:   opts.Journal,
	}, nil
}

// Solve makes one reasoning call over the task, plan and all evidence, writes
// the artifact under the run id, and moves the run to done.
func (s *Synthesizer) Solve(ctx context.Context, st *RunState) (Artifact, error) {
	if st == nil {
		return Artifact{}, errors.New("nil run state")
	}
	if st.State != StateSolving {
		return Artifact{}, fmt.Errorf("cannot solve run in state %s", st.State)
	}
	if err := validRunID(st.RunID); err != nil {
		return Artifact{}, err
	}

	prompt := SolvePrompt(st)
	text, attempts, err := retry.Do(ctx, s.retry, nil, func(callCtx context.Context) (string, error) {
		return s.reasoner.Complete(callCtx, prompt)
	})
	if err != nil {
		if ctx.Err() != nil {
			return Artifact{}, fmt.Errorf("solve cancelled: %w", err)
		}
		te := classifyToolError(plan.ToolReasoner, err)
		te.Attempts = attempts
		s.journal.Append(runlog.Entry{RunID: st.RunID, Kind: runlog.KindRunFailed, Status: "failure", Error: te.Error(), Tool: plan.ToolReasoner.String(), Attempt: attempts})
		return Artifact{}, fmt.Errorf("solve: %w", te)
	}

	art, err := s.write(ctx, st, text)
	if err != nil {
		return Artifact{}, err
	}
	st.FinalResult = &art.Text
	st.State = StateDone
	s.log.Info("run solved", "run_id", st.RunID, "path", art.Path, "chars", len(art.Text))
	s.journal.Append(runlog.Entry{RunID: st.RunID, Kind: runlog.KindRunSolved, Detail: map[string]any{"path": art.Path}})
	return art, nil
}

type evidenceRecord struct {
	EvidenceID  string `json:"evidence_id"`
	Description string `json:"description"`
	Tool        string `json:"tool"`
	Input       string `json:"input"`
	Result      string `json:"result"`
	Missing     bool   `json:"missing,omitempty"`
}

func (s *Synthesizer) write(ctx context.Context, st *RunState, text string) (Artifact, error) {
	runDir := filepath.Join(s.outputDir, st.RunID)
	lk, err := lockfile.Wait(ctx, filepath.Join(runDir, runLockName), 0)
	if err != nil {
		return Artifact{}, fmt.Errorf("lock run dir: %w", err)
	}
	defer func() { _ = lk.Release() }()

	records := make([]evidenceRecord, 0, len(st.Steps))
	for _, step := range st.Steps {
		v, ok := st.Evidence.Get(step.EvidenceID)
		records = append(records, evidenceRecord{
			EvidenceID:  step.EvidenceID,
			Description: step.Description,
			Tool:        step.Tool.String(),
			Input:       step.RawInput,
			Result:      v,
			Missing:     !ok,
		})
	}
	evJSON, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return Artifact{}, err
	}

	finalPath := filepath.Join(runDir, finalArtifactName)
	evidencePath := filepath.Join(runDir, evidenceArtifactName)
	if err := writeFileAtomic(evidencePath, append(evJSON, '\n')); err != nil {
		return Artifact{}, fmt.Errorf("write evidence: %w", err)
	}
	if err := writeFileAtomic(finalPath, []byte(text)); err != nil {
		return Artifact{}, fmt.Errorf("write final artifact: %w", err)
	}
	return Artifact{Text: text, Path: finalPath, EvidencePath: evidencePath}, nil
}

// SolvePrompt renders the synthesis context: task, plan, then every step's
// evidence in plan order. Missing evidence is shown as an explicit gap.
func SolvePrompt(st *RunState) string {
	var b strings.Builder
	b.WriteString("Solve the task using the plan and the evidence gathered for each step.\n")
	b.WriteString("Evidence marked as missing or unresolved is a known gap: say so instead of guessing.\n\n")
	if task := strings.TrimSpace(st.Task); task != "" {
		b.WriteString("Task:\n")
		b.WriteString(task)
		b.WriteString("\n\n")
	}
	b.WriteString("Plan:\n")
	b.WriteString(strings.TrimSpace(st.PlanText))
	b.WriteString("\n\nEvidence:\n")
	for _, step := range st.Steps {
		b.WriteString(step.Binding())
		b.WriteByte('\n')
		if v, ok := st.Evidence.Get(step.EvidenceID); ok {
			b.WriteString(strings.TrimSpace(v))
		} else {
			b.WriteString("[missing evidence: step produced no result]")
		}
		b.WriteString("\n\n")
	}
	if len(st.Anomalies) > 0 {
		b.WriteString("Unresolved references:\n")
		for _, a := range st.Anomalies {
			fmt.Fprintf(&b, "- %s referenced %s before it existed\n", a.EvidenceID, a.Reference)
		}
		b.WriteByte('\n')
	}
	b.WriteString("Final answer:")
	return b.String()
}

func validRunID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("missing run id")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid run id %q", id)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
