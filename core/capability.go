package core

import "context"

// GenerateRequest captures the normalized input to the generation capability.
// System carries instructions; Prompt carries the user-visible content.
type GenerateRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int64
}

// GenerateResponse is the completed output of one generation call.
type GenerateResponse struct {
	Text         string
	FinishReason string
	TokensUsed   int
}

// Generator is the minimal interface the router, expander, reranker and
// pipeline nodes use to drive text generation. Implementations wrap a
// provider SDK and fail with *GenerationError.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)

	// Info returns metadata about the backing model implementation.
	Info() GeneratorInfo
}

// GeneratorInfo contains metadata about a generator implementation.
type GeneratorInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Embedder produces a dense vector for a text. Used by the in-memory vector
// index at build time and by long-term session memory at append time.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Renderer compiles structured report fields into a presentation artifact and
// returns its path. Failures are reported as *RenderError; the pipeline keeps
// the structured fields either way.
type Renderer interface {
	Render(ctx context.Context, fields map[string]string, templateID string) (string, error)
}

// MemoryStore combines the short-term bounded conversation history with the
// long-term per-session vector memory.
//
// RecentTurns returns up to n most recent turns in chronological order.
// SimilarTurns returns past turns ranked by similarity to the query; when the
// long-term store is uninitialized it returns an empty slice, never an error,
// and callers must treat empty as "no memory available".
type MemoryStore interface {
	AppendTurn(ctx context.Context, sessionID string, turn ConversationTurn) error
	RecentTurns(sessionID string, n int) []ConversationTurn
	SimilarTurns(ctx context.Context, sessionID, query string, k int) ([]ConversationTurn, error)
	EndSession(sessionID string)
}
