package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/floegence/docplanner/internal/docintel"
	"github.com/floegence/docplanner/internal/engine"
	"github.com/floegence/docplanner/internal/plan"
	"github.com/floegence/docplanner/internal/retry"
	"github.com/floegence/docplanner/internal/runlog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var noRetry = retry.Policy{MaxAttempts: 1, BaseDelay: -1}

const twoStepPlan = "Plan: Read the report.\n#E1 = FileReader[report.txt]\nPlan: Summarize it.\n#E2 = LLM[Summarize #E1]"

// fakeReasoner answers planning prompts from plans (one per call, the last
// one repeating), solve prompts with ANSWER, and anything else with SUMMARY.
type fakeReasoner struct {
	mu      sync.Mutex
	plans   []string
	prompts []string
}

func (r *fakeReasoner) Complete(_ context.Context, prompt string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	switch {
	case strings.HasPrefix(prompt, "Make a step-by-step plan"):
		if len(r.plans) == 0 {
			return "", errors.New("no plan scripted")
		}
		p := r.plans[0]
		if len(r.plans) > 1 {
			r.plans = r.plans[1:]
		}
		return p, nil
	case strings.HasPrefix(prompt, "Solve the task"):
		return "ANSWER", nil
	default:
		return "SUMMARY", nil
	}
}

func (r *fakeReasoner) promptsWithPrefix(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.prompts {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

type docs map[string]string

func (d docs) Read(_ context.Context, name string) (string, error) {
	v, ok := d[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", engine.ErrDocumentNotFound, name)
	}
	return v, nil
}

type fakeAnalyzer struct {
	calls int
	names []string
}

func (a *fakeAnalyzer) Run(_ context.Context, names []string) (*docintel.Result, error) {
	a.calls++
	a.names = names
	res := &docintel.Result{
		PlanningContext: "# Planning context\n\n## Available documents\n\n### report.txt\nType: report\n",
		AnalysisCached:  true,
	}
	for _, n := range names {
		res.Records = append(res.Records, docintel.DocumentRecord{Name: n, Cached: docintel.CacheHits{Classification: true, Extraction: true}})
	}
	return res, nil
}

type harness struct {
	reasoner *fakeReasoner
	analyzer *fakeAnalyzer
	journal  *runlog.Journal
	outDir   string
	runner   *Runner
}

func newHarness(t *testing.T, plans ...string) *harness {
	t.Helper()
	h := &harness{reasoner: &fakeReasoner{plans: plans}, analyzer: &fakeAnalyzer{}, outDir: t.TempDir()}

	j, err := runlog.New(runlog.Options{StateDir: t.TempDir(), Logger: testLogger()})
	if err != nil {
		t.Fatalf("runlog.New: %v", err)
	}
	h.journal = j

	planner, err := NewPlanner(PlannerOptions{Reasoner: h.reasoner, Retry: noRetry, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	loop, err := engine.NewLoop(engine.LoopOptions{
		Tools:   &engine.Toolset{Reader: docs{"report.txt": "RAW TEXT"}, Reasoner: h.reasoner},
		Retry:   noRetry,
		Logger:  testLogger(),
		Journal: j,
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	synth, err := engine.NewSynthesizer(engine.SynthesizerOptions{Reasoner: h.reasoner, OutputDir: h.outDir, Retry: noRetry, Logger: testLogger(), Journal: j})
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}
	r, err := NewRunner(RunnerOptions{
		Analyzer:    h.analyzer,
		Planner:     planner,
		Loop:        loop,
		Synthesizer: synth,
		Journal:     j,
		Logger:      testLogger(),
		NewRunID:    func() string { return "run-1" },
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	h.runner = r
	return h
}

func (h *harness) kinds(t *testing.T) []string {
	t.Helper()
	entries, err := h.journal.List("run-1", 100)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	out := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i].Kind)
	}
	return out
}

func TestRunner_EndToEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, twoStepPlan)
	sum, err := h.runner.Run(context.Background(), Request{Task: "What does the report say?", Documents: []string{"report.txt"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.State != engine.StateDone || sum.Steps != 2 || sum.Iterations != 2 {
		t.Fatalf("summary=%+v", sum)
	}
	if sum.Artifact == nil || sum.Artifact.Text != "ANSWER" {
		t.Fatalf("artifact=%+v", sum.Artifact)
	}
	if sum.DocumentsCached != 1 || !sum.AnalysisCached || sum.PlanningAttempts != 1 {
		t.Fatalf("summary=%+v", sum)
	}
	b, err := os.ReadFile(filepath.Join(h.outDir, "run-1", "final.md"))
	if err != nil || string(b) != "ANSWER" {
		t.Fatalf("final.md=%q err=%v", b, err)
	}

	planPrompts := h.reasoner.promptsWithPrefix("Make a step-by-step plan")
	if len(planPrompts) != 1 || !strings.Contains(planPrompts[0], "### report.txt") || !strings.Contains(planPrompts[0], "Task: What does the report say?") {
		t.Fatalf("planning prompt=%v", planPrompts)
	}
	if got := h.reasoner.promptsWithPrefix("Summarize RAW TEXT"); len(got) != 1 {
		t.Fatalf("LLM step prompts=%v", got)
	}

	kinds := strings.Join(h.kinds(t), ",")
	want := "run_started,plan_parsed,step_started,step_completed,step_started,step_completed,run_solved"
	if kinds != want {
		t.Fatalf("journal=%s, want %s", kinds, want)
	}
}

func TestRunner_SuppliedPlanReportsAnomalies(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	text := "Plan: Combine.\n#E1 = LLM[combine #E9]"
	sum, err := h.runner.Run(context.Background(), Request{Task: "t", PlanText: text})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.analyzer.calls != 0 {
		t.Fatalf("analyzer should not run without documents")
	}
	want := engine.Anomaly{Kind: engine.AnomalyUnresolvedEvidence, EvidenceID: "#E1", Reference: "#E9"}
	if len(sum.Anomalies) != 1 || sum.Anomalies[0] != want {
		t.Fatalf("anomalies=%+v", sum.Anomalies)
	}
	if got := h.reasoner.promptsWithPrefix("combine [unresolved #E9]"); len(got) != 1 {
		t.Fatalf("step prompt not resolved with marker: %v", h.reasoner.prompts)
	}
}

func TestRunner_StepFailureKeepsState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "Plan: Read.\n#E1 = FileReader[missing.txt]")
	sum, err := h.runner.Run(context.Background(), Request{Task: "t"})
	var se *engine.StepError
	if !errors.As(err, &se) || se.EvidenceID != "#E1" {
		t.Fatalf("err=%v, want StepError for #E1", err)
	}
	var te *engine.ToolError
	if !errors.As(err, &te) || te.Code != engine.ErrorCodeNotFound {
		t.Fatalf("err=%v, want NOT_FOUND", err)
	}
	if sum == nil || sum.State != engine.StateExecuting || sum.Error == "" {
		t.Fatalf("summary=%+v", sum)
	}
	kinds := h.kinds(t)
	if kinds[len(kinds)-1] != runlog.KindRunFailed {
		t.Fatalf("journal=%v, want trailing run_failed", kinds)
	}
	if _, err := os.Stat(filepath.Join(h.outDir, "run-1", "final.md")); !os.IsNotExist(err) {
		t.Fatalf("final.md should not exist: %v", err)
	}
}

func TestPlanner_RepairsOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "I would read the report first.", twoStepPlan)
	p, err := NewPlanner(PlannerOptions{Reasoner: h.reasoner, Retry: noRetry, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	gp, err := p.Plan(context.Background(), "summarize", "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if gp.Attempts != 2 || len(gp.Steps) != 2 || gp.Steps[1].Tool != plan.ToolReasoner {
		t.Fatalf("plan=%+v", gp)
	}
	prompts := h.reasoner.promptsWithPrefix("Make a step-by-step plan")
	if len(prompts) != 2 || !strings.Contains(prompts[1], "Your previous plan could not be used") || !strings.Contains(prompts[1], "plan has no steps") {
		t.Fatalf("repair prompt missing parse error: %v", prompts)
	}
}

func TestPlanner_GivesUpWithParseError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "Plan: Look it up.\n#E1 = Bing[x]")
	p, err := NewPlanner(PlannerOptions{Reasoner: h.reasoner, Retry: noRetry, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	_, err = p.Plan(context.Background(), "summarize", "")
	var pe *plan.ParseError
	if !errors.As(err, &pe) || !errors.Is(err, plan.ErrUnknownTool) {
		t.Fatalf("err=%v, want ParseError(ErrUnknownTool)", err)
	}
	if got := len(h.reasoner.promptsWithPrefix("Make a step-by-step plan")); got != 2 {
		t.Fatalf("planning calls=%d, want 2", got)
	}
	if _, err := p.Plan(context.Background(), "  ", ""); err == nil {
		t.Fatalf("empty task should fail")
	}
}

func TestPlanPrompt_ListsTools(t *testing.T) {
	t.Parallel()

	p := PlanPrompt("task", "")
	for _, want := range []string{"FileReader[name]", "LLM[prompt]", "Google[query]", "Task: task"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}
