package base

import (
	"context"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior exchange item carried as conversation context.
type Message struct {
	Role string
	Text string
}

// Request is a single completion request to a managed inference endpoint.
// History holds the prior exchanges oldest first; Prompt is the current
// user message and is not part of History.
type Request struct {
	Model        string
	Prompt       string
	SystemPrompt string
	History      []Message
	Temperature  float64
	TopP         float64
	MaxTokens    int
}

type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

func (response Response) TotalTokens() int {
	return response.InputTokens + response.OutputTokens
}

type Client interface {
	Complete(ctx context.Context, request Request) (*Response, error)
}
