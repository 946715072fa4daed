// Package llmapi defines C4: the LLM and embedding capability interfaces
// the rest of the pipeline depends on, plus HTTP adapters and a token
// tracker.
//
// Grounded on intelligencedev-manifold's internal/embedding/client.go
// (bearer-auth HTTP embedding client) and internal/llm/provider.go's
// Provider interface shape (Chat/ChatStream), generalized to this
// module's Capability naming and batching needs.
package llmapi

import "context"

// Message is a single turn in a chat-completion request.
type Message struct {
	Role    string // system|user|assistant
	Content string
}

// LLMCapability is the text-generation contract used by extraction,
// description summarization during resolution and merge, and query answer
// synthesis (spec.md §4.4).
type LLMCapability interface {
	Complete(ctx context.Context, messages []Message, maxTokens int) (string, error)
	Name() string
}

// EmbeddingCapability converts text to vectors for the vector store.
type EmbeddingCapability interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}
