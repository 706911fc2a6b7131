// Package history builds the ordered prompt sequence sent to the inference
// backend from client-supplied prior turns.
package history

import "healthcare-assistant-be/pkg/llm"

// Turn is one prior exchange as the client sent it. Role values are
// forwarded unvalidated; the backend decides what to do with unknown roles.
type Turn struct {
	Role    string
	Content string
}

// Format returns prior turns followed by the new user message. The input
// slice is never mutated. When systemPrompt is non-empty it is placed first.
func Format(systemPrompt string, prior []Turn, message string) []llm.Message {
	out := make([]llm.Message, 0, len(prior)+2)
	if systemPrompt != "" {
		out = append(out, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, turn := range prior {
		out = append(out, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	out = append(out, llm.Message{Role: "user", Content: message})
	return out
}
