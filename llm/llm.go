// Package llm defines the completion client boundary used by the dispatcher.
// Providers live under providers/ and implement Client.
package llm

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model     string
	System    string
	MaxTokens int
	Messages  []Message
}

type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

type Client interface {
	Chat(ctx context.Context, req Request) (*Result, error)
}
