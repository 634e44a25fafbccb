package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/floegence/docplanner/internal/workflow"
)

// ANSI codes for terminal styling.
const (
	ansiReset     = "\033[0m"
	ansiBold      = "\033[1m"
	ansiRed       = "\033[91m"
	ansiCyan      = "\033[96m"
	ansiUnderline = "\033[4m"
)

// outputFormat picks json|text; empty means text on a terminal.
func outputFormat(flagValue string, w io.Writer) (string, error) {
	switch v := strings.TrimSpace(strings.ToLower(flagValue)); v {
	case "json", "text":
		return v, nil
	case "":
		if isTerminalWriter(w) {
			return "text", nil
		}
		return "json", nil
	default:
		return "", fmt.Errorf("%q (want json|text)", flagValue)
	}
}

type summaryOutput struct {
	*workflow.Summary
	ReasoningCalls int64 `json:"reasoning_calls"`
}

func printSummary(w io.Writer, format string, sum *workflow.Summary, calls int64) error {
	if format == "json" {
		b, err := json.MarshalIndent(summaryOutput{Summary: sum, ReasoningCalls: calls}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	}

	useANSI := isTerminalWriter(w)
	rule := strings.Repeat("-", ruleWidth(w))

	fmt.Fprintf(w, "%s %s\n", bold("Run", useANSI), sum.RunID)
	fmt.Fprintf(w, "state: %s  steps: %d  iterations: %d  reasoning calls: %d  %dms\n",
		sum.State, sum.Steps, sum.Iterations, calls, sum.DurationMs)
	if sum.Documents > 0 {
		fmt.Fprintf(w, "documents: %d (%d from cache)  analysis cached: %t\n", sum.Documents, sum.DocumentsCached, sum.AnalysisCached)
	}
	if sum.PlanText != "" {
		fmt.Fprintln(w, rule)
		fmt.Fprintln(w, sum.PlanText)
	}
	if len(sum.Anomalies) > 0 {
		fmt.Fprintln(w, rule)
		for _, a := range sum.Anomalies {
			fmt.Fprintf(w, "anomaly: %s referenced %s, which no earlier step produced\n", a.EvidenceID, a.Reference)
		}
	}
	if sum.Error != "" {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%s %s\n", styleError("error:", useANSI), sum.Error)
	}
	if sum.Artifact != nil {
		fmt.Fprintln(w, rule)
		fmt.Fprintln(w, strings.TrimSpace(sum.Artifact.Text))
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "written to %s\n", styleURL(sum.Artifact.Path, useANSI))
	}
	return nil
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func ruleWidth(w io.Writer) int {
	const fallback = 60
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return min(width, 100)
}

func styleURL(url string, enabled bool) string {
	if !enabled {
		return url
	}
	return ansiCyan + ansiUnderline + url + ansiReset
}

func bold(s string, enabled bool) string {
	if !enabled {
		return s
	}
	return ansiBold + s + ansiReset
}

func styleError(s string, enabled bool) string {
	if !enabled {
		return s
	}
	return ansiRed + s + ansiReset
}
