package llm

import "context"

// MockGateway permits tests without a live backend, mirroring the
// teacher's MockClient (Response/Err/Embedding/EmbeddingError fields).
type MockGateway struct {
	Response       string
	Err            error
	StreamChunks   []string
	StreamErr      error
	Embedding      []float32
	EmbeddingError error
}

func (m *MockGateway) Generate(ctx context.Context, req Request) (string, error) {
	return m.Response, m.Err
}

func (m *MockGateway) GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(chan Chunk, len(m.StreamChunks)+1)
	for _, c := range m.StreamChunks {
		out <- Chunk{Text: c}
	}
	if m.StreamErr != nil {
		out <- Chunk{Error: m.StreamErr}
	} else {
		out <- Chunk{Done: true}
	}
	close(out)
	return out, nil
}

func (m *MockGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbeddingError != nil {
		return nil, m.EmbeddingError
	}
	if m.Embedding != nil {
		return m.Embedding, nil
	}
	return hashEmbedding(text), nil
}

// hashEmbedding produces a small deterministic pseudo-embedding so tests
// exercise cosine similarity without a real model.
func hashEmbedding(text string) []float32 {
	const dim = 16
	v := make([]float32, dim)
	var h uint32 = 2166136261
	for i := 0; i < len(text); i++ {
		h ^= uint32(text[i])
		h *= 16777619
		v[i%dim] += float32(h%997) / 997.0
	}
	return v
}
