package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/floegence/docplanner/internal/engine"
	"github.com/floegence/docplanner/internal/plan"
	"github.com/floegence/docplanner/internal/workflow"
)

func TestOutputFormat_NonTerminalDefaultsToJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if got, err := outputFormat("", &buf); err != nil || got != "json" {
		t.Fatalf("outputFormat=%q err=%v, want json", got, err)
	}
	if got, _ := outputFormat(" Text ", &buf); got != "text" {
		t.Fatalf("outputFormat=%q, want text", got)
	}
	if _, err := outputFormat("yaml", &buf); err == nil {
		t.Fatalf("expected error for yaml")
	}
}

func TestCheckSteps_ReportsUnboundReferences(t *testing.T) {
	t.Parallel()

	steps, err := plan.Parse("Plan: Read.\n#E1 = FileReader[a.txt]\nPlan: Combine.\n#E2 = LLM[#E1 and #E9 and #E1]")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rows := checkSteps(steps)
	if len(rows) != 2 {
		t.Fatalf("rows=%d", len(rows))
	}
	if got := strings.Join(rows[1].References, ","); got != "#E1,#E9" {
		t.Fatalf("references=%q", got)
	}
	if got := strings.Join(rows[1].Unbound, ","); got != "#E9" {
		t.Fatalf("unbound=%q", got)
	}
	if rows[0].Tool != "FileReader" || rows[0].Line != 2 {
		t.Fatalf("row=%+v", rows[0])
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Fatalf("got %q", got)
	}
	if got := truncateRunes("abc", 10); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestNewLogger_RejectsUnknownValues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := newLogger("xml", "info", &buf); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := newLogger("text", "loud", &buf); err == nil {
		t.Fatalf("expected level error")
	}
	l, err := newLogger("json", "warn", &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("log output=%q", buf.String())
	}
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	sum := &workflow.Summary{
		RunID:      "run-1",
		State:      engine.StateDone,
		Steps:      2,
		Iterations: 2,
		PlanText:   "Plan: a\n#E1 = LLM[x]",
		Anomalies:  []engine.Anomaly{{Kind: engine.AnomalyUnresolvedEvidence, EvidenceID: "#E2", Reference: "#E9"}},
		Artifact:   &engine.Artifact{Text: "ANSWER\n", Path: "/tmp/out/run-1/final.md"},
	}

	var text bytes.Buffer
	if err := printSummary(&text, "text", sum, 3); err != nil {
		t.Fatalf("printSummary: %v", err)
	}
	for _, want := range []string{"Run run-1", "reasoning calls: 3", "#E2 referenced #E9", "ANSWER", "written to /tmp/out/run-1/final.md"} {
		if !strings.Contains(text.String(), want) {
			t.Fatalf("text output missing %q:\n%s", want, text.String())
		}
	}
	if strings.Contains(text.String(), "\033[") {
		t.Fatalf("non-terminal output must not contain ANSI codes")
	}

	var js bytes.Buffer
	if err := printSummary(&js, "json", sum, 3); err != nil {
		t.Fatalf("printSummary: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if decoded["run_id"] != "run-1" || decoded["reasoning_calls"] != float64(3) {
		t.Fatalf("decoded=%v", decoded)
	}
}
