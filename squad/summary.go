package squad

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/script"
)

// SummaryUnavailable replaces a summary that could not be generated.
const SummaryUnavailable = "Summary unavailable."

const summaryPrompt = "Summarize the conversation below for a colleague who is taking it over. " +
	"Keep the caller's goal, any names, account details and commitments made. " +
	"Reply with at most five sentences."

// summarize asks the provider for a summary of messages. It never fails.
func (o *Orchestrator) summarize(ctx context.Context, logger *slog.Logger, model string, messages []llm.Message) string {
	if len(messages) == 0 {
		return ""
	}
	agent := llm.AgentConfig{ID: "summarizer", Model: model, SystemPrompt: summaryPrompt}
	summary, err := o.provider.Generate(ctx, agent, llm.Request{
		Messages:      []llm.Message{{Role: llm.RoleUser, Content: Transcript(messages)}},
		Deterministic: true,
	})
	if err != nil {
		logger.Warn("context summary failed", "error", err)
		return SummaryUnavailable
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return SummaryUnavailable
	}
	return summary
}

// Transcript renders messages one per line as "role: content". Assistant
// messages carry the answering agent's id when known.
func Transcript(messages []llm.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		speaker := string(msg.Role)
		if msg.Name != "" {
			speaker = fmt.Sprintf("%s (%s)", msg.Role, msg.Name)
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, msg.Content)
	}
	return b.String()
}

// Instructions composes the effective instructions of an agent from its own
// prompt, the summary handed to it on transfer and the shared knowledge.
func Instructions(base, summary string, shared map[string]any) string {
	var b strings.Builder
	b.WriteString(base)
	if summary != "" {
		b.WriteString("\n\nContext from the conversation so far:\n")
		b.WriteString(summary)
	}
	if len(shared) > 0 {
		keys := make([]string, 0, len(shared))
		for key := range shared {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		b.WriteString("\n\nShared knowledge:")
		for _, key := range keys {
			fmt.Fprintf(&b, "\n%s: %s", key, script.Stringify(shared[key]))
		}
	}
	return b.String()
}

func sortStatuses(statuses []*SessionStatus) {
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].StartTime.Before(statuses[j].StartTime)
	})
}
