package llm

import "context"

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// StreamEvent is a single chunk emitted by a streaming backend.
type StreamEvent struct {
	// Content is the token delta for this chunk.
	Content string
	// Done is set on the final chunk of a stream.
	Done bool
}

// StreamCallback receives stream chunks in generation order.
// Returning a non-nil error aborts the stream.
type StreamCallback func(event StreamEvent) error

// Message is one turn of a chat conversation sent to a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// ChatStream generates a completion for the given messages,
	// invoking callback once per token delta. ChatStream returns
	// after the final chunk has been delivered or the callback or
	// context aborted the stream.
	ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) error
}
