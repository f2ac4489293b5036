// Package llm abstracts the language-model collaborator behind a small
// interface so routers can be tested without network access.
package llm

import "context"

// Request is a single-turn completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Client is the language-model surface the agent routers consume.
type Client interface {
	// Complete returns the full response text for the request.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream delivers response text incrementally through onDelta and
	// returns the assembled full text when the stream finishes.
	Stream(ctx context.Context, req Request, onDelta func(text string)) (string, error)
}
