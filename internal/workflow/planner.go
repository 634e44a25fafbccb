// Package workflow wires document intelligence, planning, execution and
// synthesis into one run.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/floegence/docplanner/internal/engine"
	"github.com/floegence/docplanner/internal/plan"
	"github.com/floegence/docplanner/internal/retry"
)

const defaultMaxRepairs = 1

type PlannerOptions struct {
	Reasoner engine.Reasoner
	Retry    retry.Policy
	Logger   *slog.Logger

	// MaxRepairs bounds re-prompts after an unparseable plan. Zero means one
	// repair; a negative value disables repairs.
	MaxRepairs int
}

// Planner asks the reasoner for plan text and parses it.
type Planner struct {
	reasoner   engine.Reasoner
	retry      retry.Policy
	log        *slog.Logger
	maxRepairs int
}

// GeneratedPlan is a parsed plan and the text it came from.
type GeneratedPlan struct {
	Text     string      `json:"text"`
	Steps    []plan.Step `json:"steps"`
	Attempts int         `json:"attempts"`
}

func NewPlanner(opts PlannerOptions) (*Planner, error) {
	if opts.Reasoner == nil {
		return nil, errors.New("missing Reasoner")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	repairs := opts.MaxRepairs
	switch {
	case repairs == 0:
		repairs = defaultMaxRepairs
	case repairs < 0:
		repairs = 0
	}
	return &Planner{reasoner: opts.Reasoner, retry: opts.Retry, log: logger, maxRepairs: repairs}, nil
}

// Plan generates a plan for task. When the reasoner's output does not parse,
// the parse error is fed back and the reasoner asked again, up to MaxRepairs
// times. The last parse failure is returned as a *plan.ParseError.
func (p *Planner) Plan(ctx context.Context, task string, planningContext string) (*GeneratedPlan, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, errors.New("missing task")
	}
	prompt := PlanPrompt(task, planningContext)

	var lastErr error
	for attempt := 1; attempt <= p.maxRepairs+1; attempt++ {
		text, _, err := retry.Do(ctx, p.retry, nil, func(callCtx context.Context) (string, error) {
			return p.reasoner.Complete(callCtx, prompt)
		})
		if err != nil {
			return nil, fmt.Errorf("generate plan: %w", err)
		}
		steps, err := plan.Parse(text)
		if err == nil {
			p.log.Info("plan generated", "steps", len(steps), "attempts", attempt)
			return &GeneratedPlan{Text: strings.TrimSpace(text), Steps: steps, Attempts: attempt}, nil
		}
		lastErr = err
		p.log.Warn("generated plan rejected", "attempt", attempt, "error", err)
		prompt = repairPrompt(task, planningContext, text, err)
	}
	return nil, lastErr
}

// PlanPrompt renders the planning instructions for task.
func PlanPrompt(task string, planningContext string) string {
	var b strings.Builder
	b.WriteString("Make a step-by-step plan to solve the task below. For each step, write one line\n")
	b.WriteString("\"Plan: <what the step does>\" followed by one line \"#E<n> = <Tool>[<input>]\".\n")
	b.WriteString("Number evidence ids from #E1 upward. A step input may use the result of an earlier\n")
	b.WriteString("step by writing its evidence id, for example #E1.\n\n")
	b.WriteString("Tools:\n")
	fmt.Fprintf(&b, "- %s[name]: returns the text of one of the available documents.\n", plan.ToolNameFileReader)
	fmt.Fprintf(&b, "- %s[prompt]: a language model that answers the prompt.\n", plan.ToolNameLLM)
	fmt.Fprintf(&b, "- %s[query]: a web search; returns result titles, links and snippets.\n", plan.ToolNameGoogle)
	b.WriteString("\nExample:\n")
	b.WriteString("Plan: Read the contract.\n")
	fmt.Fprintf(&b, "#E1 = %s[contract.pdf]\n", plan.ToolNameFileReader)
	b.WriteString("Plan: List the payment obligations.\n")
	fmt.Fprintf(&b, "#E2 = %s[List the payment obligations in: #E1]\n", plan.ToolNameLLM)

	if pc := strings.TrimSpace(planningContext); pc != "" {
		b.WriteString("\n")
		b.WriteString(pc)
		b.WriteString("\n")
	}
	b.WriteString("\nTask: ")
	b.WriteString(task)
	b.WriteString("\n\nRespond with the plan only.\n")
	return b.String()
}

func repairPrompt(task string, planningContext string, previous string, perr error) string {
	var b strings.Builder
	b.WriteString(PlanPrompt(task, planningContext))
	b.WriteString("\nYour previous plan could not be used:\n<<<\n")
	b.WriteString(strings.TrimSpace(previous))
	b.WriteString("\n>>>\nError: ")
	b.WriteString(perr.Error())
	b.WriteString("\nWrite the corrected plan.\n")
	return b.String()
}
