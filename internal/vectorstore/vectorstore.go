// Package vectorstore implements the embedding-backed, content-addressable
// memory store described in §6: one logical collection per persona,
// similarity search with metadata filtering. It is grounded on
// goblincore-geoffreyengram's scoring.go (CompositeScore, CosineSimilarity)
// and reads/writes embeddings through internal/store's sqlite-backed
// memory_vectors table rather than a separate Postgres+pgvector instance —
// see SPEC_FULL.md's DOMAIN STACK section for the rationale.
package vectorstore

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
	"github.com/saltydev0331/persona-mcp-sub000/internal/store"
)

// Embedder turns text into a fixed-dimension vector. The LLM gateway
// supplies a concrete implementation backed by the configured embedding
// endpoint; tests use a deterministic hash-based stub.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the in-process vector index over the sqlite-persisted memory
// rows for one runtime instance.
type Store struct {
	memories MemoryReader
	embedder Embedder
}

// MemoryReader is the subset of store.MemoryRepository the vector store
// needs to load candidate rows for scoring.
type MemoryReader interface {
	ListByPersona(ctx context.Context, personaID string) ([]domain.Memory, error)
	ListVisibleTo(ctx context.Context, excludePersonaID string, visibilities []domain.Visibility) ([]domain.Memory, error)
}

// New builds a vector store over the given memory reader and embedder.
func New(memories MemoryReader, embedder Embedder) *Store {
	return &Store{memories: memories, embedder: embedder}
}

// Scored pairs a Memory with its similarity to the query embedding.
type Scored struct {
	domain.Memory
	Similarity float64
	Composite  float64
}

// Search returns the k highest-composite-score memories for persona_id
// matching query, filtered by min_importance. Composite scoring follows
// goblincore-geoffreyengram's formula: 0.6*similarity + 0.2*salience(importance)
// + 0.1*recency + 0.1*linkWeight(unused here, held at a neutral 0.5).
func (s *Store) Search(ctx context.Context, personaID, query string, k int, minImportance float64) ([]Scored, error) {
	candidates, err := s.memories.ListByPersona(ctx, personaID)
	if err != nil {
		return nil, err
	}
	return s.rank(ctx, candidates, query, k, minImportance)
}

// SearchCrossPersona returns up to k memories not owned by excludePersonaID
// whose visibility is in visibilities, ranked the same way as Search.
// Invariant: never returns a private memory belonging to someone else —
// enforced by the caller (internal/memory) restricting `visibilities` to
// {shared, public} and never passing "private" through this path.
func (s *Store) SearchCrossPersona(ctx context.Context, excludePersonaID, query string, k int, minImportance float64, visibilities []domain.Visibility) ([]Scored, error) {
	candidates, err := s.memories.ListVisibleTo(ctx, excludePersonaID, visibilities)
	if err != nil {
		return nil, err
	}
	return s.rank(ctx, candidates, query, k, minImportance)
}

func (s *Store) rank(ctx context.Context, candidates []domain.Memory, query string, k int, minImportance float64) ([]Scored, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]Scored, 0, len(candidates))
	for _, m := range candidates {
		if m.Importance < minImportance {
			continue
		}
		sim := CosineSimilarity(queryVec, m.Embedding)
		days := now.Sub(m.CreatedAt).Hours() / 24.0
		composite := CompositeScore(sim, m.Importance, days, 0.5)
		out = append(out, Scored{Memory: m, Similarity: sim, Composite: composite})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Composite > out[j].Composite })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// CompositeScore blends similarity, salience (importance), recency, and a
// link weight into one ranking score.
func CompositeScore(similarity, salience, daysSinceCreated, linkWeight float64) float64 {
	recency := math.Exp(-0.02 * daysSinceCreated)
	return 0.6*similarity + 0.2*salience + 0.1*recency + 0.1*linkWeight
}

// CosineSimilarity computes cosine similarity between two vectors; returns
// 0 for mismatched lengths, empty vectors, or zero norms.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ensure store.MemoryRepository satisfies MemoryReader at compile time.
var _ MemoryReader = (*store.SQLiteMemoryRepository)(nil)
