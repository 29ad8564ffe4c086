package aigen

import (
	"context"
	"errors"
)

var (
	ErrBackendUnavailable = errors.New("backend_unavailable")
	ErrInvalidResponse    = errors.New("invalid_response")
)

type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

type GenOptions struct {
	MaxTokens   int
	Temperature float64
}

// Backend is one text-generation provider. The set of implementations is
// closed: OpenAI and Kimi.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts GenOptions) (string, Usage, error)
}
