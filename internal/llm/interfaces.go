// Package llm is the boundary to external generative capabilities: text
// generation, multimodal chat, embeddings, and image generation/editing.
// Every network call carries a bounded timeout and is wrapped in a circuit
// breaker; callers treat failures as degraded features, never as crashes.
package llm

import "context"

// TextGenerator is the interface for single-prompt LLM completion.
// The summary-refresh and memory-extraction prompts use this style.
// maxTokens caps the output; zero or negative means provider default.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Returns float32 slice; callers convert to float64 for storage.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// FinishReason classifies why a chat generation stopped. Only the cases the
// assembler reacts to are distinguished; everything else is FinishOther.
type FinishReason string

const (
	FinishNormal FinishReason = "stop"
	FinishSafety FinishReason = "safety"
	FinishOther  FinishReason = "other"
)

// ChatMessage is one provider-neutral conversation turn. Images are raw
// bytes; each client encodes them for its own wire format.
type ChatMessage struct {
	Role   string // "user" or "assistant"
	Text   string
	Images [][]byte
}

// Prompt is a fully assembled multimodal generation request.
type Prompt struct {
	System    string
	Messages  []ChatMessage
	MaxTokens int
}

// Reply is the outcome of a chat generation call.
type Reply struct {
	Text         string
	FinishReason FinishReason
}

// ChatGenerator is the interface for multimodal conversational generation.
// The assembler makes exactly one Chat call per inbound request.
type ChatGenerator interface {
	Chat(ctx context.Context, p Prompt) (*Reply, error)
	GetModel() string
}

// ImageGenerator is the interface to an image generation/editing backend.
// Both methods return raw image bytes (PNG).
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
	EditImage(ctx context.Context, prompt string, images [][]byte) ([]byte, error)
}
