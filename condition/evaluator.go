// Package condition evaluates NodeConditions for condition nodes and squad
// routing rules.
package condition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/script"
)

// Input is what a condition is evaluated against.
type Input struct {
	Utterance string
	Variables map[string]any
}

// Options configures an Evaluator.
type Options struct {
	Provider llm.Provider
	Compiler script.Compiler
	Logger   *slog.Logger

	// Agent is the configuration AI conditions are evaluated with. Only the
	// model is relevant; the system prompt is replaced.
	Agent llm.AgentConfig
}

// Evaluator evaluates conditions. The zero value is not usable; use New.
type Evaluator struct {
	provider llm.Provider
	compiler script.Compiler
	logger   *slog.Logger
	agent    llm.AgentConfig
}

// New returns an Evaluator. AI conditions never match without a provider.
func New(opts Options) *Evaluator {
	if opts.Compiler == nil {
		opts.Compiler = script.NewExprEngine(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	agent := opts.Agent
	agent.ID = "condition-evaluator"
	agent.SystemPrompt = systemPrompt
	return &Evaluator{
		provider: opts.Provider,
		compiler: opts.Compiler,
		logger:   opts.Logger,
		agent:    agent,
	}
}

const systemPrompt = "You evaluate conditions about a conversation. " +
	"Answer with exactly one word: true or false."

// Evaluate reports whether cond holds. It never fails: evaluation errors and
// provider failures count as no match.
func (e *Evaluator) Evaluate(ctx context.Context, cond *callflow.NodeCondition, in Input) bool {
	if cond == nil {
		return false
	}
	switch cond.Kind {
	case callflow.ConditionAI:
		return e.EvaluateAI(ctx, aiPredicate(cond, false), in)
	case callflow.ConditionLogical, "":
		ok, err := e.EvaluateLogical(ctx, cond.Expression, in.Variables)
		if err != nil {
			e.logger.Warn("logical condition evaluation failed",
				"condition_id", cond.ID,
				"expression", cond.Expression,
				"error", err)
			return false
		}
		return ok
	case callflow.ConditionCombined:
		// short-circuit the provider call when the logical half fails
		ok, err := e.EvaluateLogical(ctx, cond.Expression, in.Variables)
		if err != nil {
			e.logger.Warn("combined condition evaluation failed",
				"condition_id", cond.ID,
				"expression", cond.Expression,
				"error", err)
			return false
		}
		return ok && e.EvaluateAI(ctx, aiPredicate(cond, true), in)
	}
	e.logger.Warn("unknown condition kind", "condition_id", cond.ID, "kind", cond.Kind)
	return false
}

// First evaluates conds in order and returns the index of the first that
// holds, or -1.
func (e *Evaluator) First(ctx context.Context, conds []*callflow.NodeCondition, in Input) int {
	for i, cond := range conds {
		if e.Evaluate(ctx, cond, in) {
			return i
		}
	}
	return -1
}

// EvaluateLogical evaluates a boolean expression with {{variable}}
// placeholders.
func (e *Evaluator) EvaluateLogical(ctx context.Context, expression string, vars map[string]any) (bool, error) {
	return script.EvaluateCondition(ctx, e.compiler, expression, vars)
}

// EvaluateAI asks the provider whether predicate holds for the utterance.
// Only the exact answer "true", ignoring case and surrounding whitespace, is
// a match.
func (e *Evaluator) EvaluateAI(ctx context.Context, predicate string, in Input) bool {
	if e.provider == nil || strings.TrimSpace(predicate) == "" {
		return false
	}
	req := llm.Request{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: Prompt(script.Render(predicate, in.Variables), in.Utterance),
		}},
		Deterministic: true,
	}
	reply, err := e.provider.Generate(ctx, e.agent, req)
	if err != nil {
		e.logger.Warn("ai condition evaluation failed", "predicate", predicate, "error", err)
		return false
	}
	return strings.EqualFold(strings.TrimSpace(reply), "true")
}

// Prompt builds the yes/no question sent to the provider.
func Prompt(predicate, utterance string) string {
	return fmt.Sprintf("Condition: %s\nUser message: %q\n"+
		"Does the condition hold for the user message? Respond with only \"true\" or \"false\".",
		predicate, utterance)
}

// aiPredicate selects the natural language half of a condition.
func aiPredicate(cond *callflow.NodeCondition, combined bool) string {
	if !combined {
		if cond.Expression != "" {
			return cond.Expression
		}
		if cond.Prompt != "" {
			return cond.Prompt
		}
		return cond.Description
	}
	if cond.Prompt != "" {
		return cond.Prompt
	}
	return cond.Description
}
