// Package llm is the LLM gateway: non-streaming and streaming generation
// against a local OpenAI/Ollama-compatible chat-completions backend, with
// uniform prompt assembly (built by internal/conversation), constraint
// mapping, and failure fallbacks. Grounded on the teacher's
// internal/llm/client.go + provider.go + mock.go trio (interface, HTTP
// implementation, test double).
package llm

import "context"

// Constraints shapes a single generation call, derived from the response
// tier chosen by the conversation engine (§4.4).
type Constraints struct {
	Creativity  float64 // maps to temperature
	MaxLength   int     // predicted token cap
	Concise     bool    // lowers temperature, hard-bounds length
	PrepareExit bool    // nudges the model to wind the exchange down
	AvoidTopics []string
}

// Temperature maps Creativity (and the Concise flag) onto a sampling
// temperature per §4.4's constraints mapping.
func (c Constraints) Temperature() float64 {
	t := c.Creativity
	if c.Concise && t > 0.4 {
		t = 0.4
	}
	if t <= 0 {
		t = 0.5
	}
	if t > 1 {
		t = 1
	}
	return t
}

// TokenCap returns the effective max-token bound for this call.
func (c Constraints) TokenCap() int {
	if c.MaxLength <= 0 {
		return 100
	}
	return c.MaxLength
}

// Request is the uniform shape passed to Generate/GenerateStream: a fully
// assembled system prompt plus the raw user turn and constraints.
type Request struct {
	SystemPrompt string
	UserInput    string
	Constraints  Constraints
}

// Chunk is one delta in a generate_stream sequence.
type Chunk struct {
	Text  string
	Done  bool
	Error error
}

// Gateway is the LLM backend contract. generate/generate_stream from
// §4.4; on backend failure HTTPGateway.Generate returns an empty string
// and an error wrapping domain.ErrBackendFailure, and conversation.Engine
// substitutes an llm.Fallback line so it can still commit a template turn.
type Gateway interface {
	Generate(ctx context.Context, req Request) (string, error)
	GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Embedder produces a fixed-dimension embedding for text, used by
// internal/vectorstore for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
