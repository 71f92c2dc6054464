// Package identifier implements the PHI identifier: it assembles a prompt
// from the type registry, retrieved regulation context and tool hints, asks
// an LLM provider for a structured entity list, and applies deterministic
// post-processing to turn the model's raw output into validated PHIEntity
// values in document coordinates.
package identifier

import "context"

// ChatMessage is one turn in a chat completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	Model          string
	Messages       []ChatMessage
	Temperature    float64
	MaxTokens      int
	ResponseFormat string // "json_object" requests structured output
}

// ChatResponse is a provider-agnostic chat completion response.
type ChatResponse struct {
	Content          string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the consumed LLM interface. Implementations talk to a
// specific backend (OpenAI-compatible HTTP API, local runtime, etc.); the
// identifier only ever depends on this interface.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
