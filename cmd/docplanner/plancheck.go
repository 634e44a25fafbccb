package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/floegence/docplanner/internal/plan"
)

type planCheckStep struct {
	EvidenceID  string   `json:"evidence_id"`
	Tool        string   `json:"tool"`
	Description string   `json:"description"`
	Input       string   `json:"input"`
	References  []string `json:"references,omitempty"`
	// Unbound lists references to ids no step produces; they resolve to an
	// unresolved marker at run time.
	Unbound []string `json:"unbound,omitempty"`
	Line    int      `json:"line"`
}

func planCheckCmd(args []string) {
	fs := flag.NewFlagSet("plan-check", flag.ExitOnError)
	format := fs.String("format", "", "Output format: json|text (default: text on a terminal, json otherwise)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	outFormat, err := outputFormat(*format, os.Stdout)
	if err != nil {
		fatalf("invalid --format: %v", err)
	}

	var b []byte
	if p := fs.Arg(0); p == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(p)
	}
	if err != nil {
		fatalf("failed to read plan: %v", err)
	}

	steps, err := plan.Parse(string(b))
	if err != nil {
		var pe *plan.ParseError
		if errors.As(err, &pe) && pe.Line > 0 {
			fatalf("%s:%d: %v", fs.Arg(0), pe.Line, err)
		}
		fatalf("%s: %v", fs.Arg(0), err)
	}

	report := checkSteps(steps)
	switch outFormat {
	case "json":
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fatalf("failed to encode steps: %v", err)
		}
		fmt.Printf("%s\n", out)
	default:
		for i, s := range report {
			fmt.Printf("%d. %s = %s[%s]\n   %s\n", i+1, s.EvidenceID, s.Tool, s.Input, s.Description)
			if len(s.Unbound) > 0 {
				fmt.Printf("   warning: %s never bound\n", strings.Join(s.Unbound, ", "))
			}
		}
	}
}

func checkSteps(steps []plan.Step) []planCheckStep {
	bound := make(map[string]bool, len(steps))
	for _, s := range steps {
		bound[s.EvidenceID] = true
	}
	out := make([]planCheckStep, 0, len(steps))
	for _, s := range steps {
		row := planCheckStep{
			EvidenceID:  s.EvidenceID,
			Tool:        s.Tool.String(),
			Description: s.Description,
			Input:       s.RawInput,
			References:  plan.ReferencedIDs(s.RawInput),
			Line:        s.Line,
		}
		for _, id := range row.References {
			if !bound[id] {
				row.Unbound = append(row.Unbound, id)
			}
		}
		out = append(out, row)
	}
	return out
}
