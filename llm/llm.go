package llm

import (
	"context"
	"time"
)

// Message is one turn of a chat exchange: role is "system", "user" or
// "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Result struct {
	Text     string
	Usage    Usage
	Duration time.Duration
}

type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

// Client is the completion endpoint contract. Implementations must honor
// ctx cancellation and deadlines.
type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
