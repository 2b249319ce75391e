package callflow

import "github.com/deepnoodle-ai/callflow/llm"

// Session identifies the live conversation a workflow runs against. Messages
// hold the conversation so far and are read, never modified, by the engine.
type Session struct {
	ID       string            `json:"id"`
	Messages []llm.Message     `json:"messages,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LastUserMessage returns the content of the most recent user message.
func (s *Session) LastUserMessage() string {
	if s == nil {
		return ""
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}
