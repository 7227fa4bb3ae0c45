package llm

import (
	"context"
	"errors"
	"fmt"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Options are per-call generation knobs. Zero values leave the provider default.
type Options struct {
	MaxTokens   int
	Temperature float32
}

type Client interface {
	Generate(ctx context.Context, messages []Message, opts Options) (Response, error)
}

var (
	// ErrMissingCredential means the provider cannot be called at all. It is an operator error.
	ErrMissingCredential = errors.New("llm credential is not configured")
	// ErrNoText means the upstream answered 2xx but no text could be extracted.
	ErrNoText = errors.New("no text in llm response")
)

// UpstreamError is a non-2xx answer from the generation API.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}
