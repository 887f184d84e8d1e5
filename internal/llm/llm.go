// Package llm provides the chat-completion client used by semantic rules.
package llm

import "context"

// Message is a single chat message in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer issues one blocking completion call against a named model and
// returns the raw response text.
type Completer interface {
	Complete(ctx context.Context, model string, messages []Message) (string, error)
}
