// Package memory unifies the structured store and the vector store behind
// one memory API (§4.2), with visibility controls and cross-persona
// search. Grounded on the teacher's narrative_service.go memory-injection
// flow (InjectMemory), generalized from "narrative memory for one clone"
// into the spec's persona-agnostic store/search/prune contract, and on
// goblincore-geoffreyengram's decay-aware store for the prune/stats shape.
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
	"github.com/saltydev0331/persona-mcp-sub000/internal/importance"
	"github.com/saltydev0331/persona-mcp-sub000/internal/llm"
	"github.com/saltydev0331/persona-mcp-sub000/internal/vectorstore"
)

// Repository is the subset of store.MemoryRepository the manager needs.
type Repository interface {
	Insert(ctx context.Context, m domain.Memory) error
	Get(ctx context.Context, id string) (*domain.Memory, error)
	ListByPersona(ctx context.Context, personaID string) ([]domain.Memory, error)
	ListVisibleTo(ctx context.Context, excludePersonaID string, visibilities []domain.Visibility) ([]domain.Memory, error)
	Touch(ctx context.Context, id string, when time.Time) error
	UpdateImportance(ctx context.Context, id string, importance float64, decayedAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByPersona(ctx context.Context, personaID string) error
}

// Manager is the memory subsystem's public entry point.
type Manager struct {
	repo     Repository
	vectors  *vectorstore.Store
	embedder llm.Embedder
	logger   *zap.Logger
}

func NewManager(repo Repository, vectors *vectorstore.Store, embedder llm.Embedder, logger *zap.Logger) *Manager {
	return &Manager{repo: repo, vectors: vectors, embedder: embedder, logger: logger}
}

// StoreInput carries the optional fields accepted by store(); zero values
// mean "let the manager derive it".
type StoreInput struct {
	PersonaID        string
	Content          string
	Type             domain.MemoryType
	Importance       *float64
	EmotionalValence float64
	RelatedPersonas  []string
	Visibility       domain.Visibility
	Metadata         map[string]string
	ScoringContext   importance.Context
}

// Store writes a new memory under a freshly generated id. The sqlite
// repository inserts the structured row and its vector in one
// transaction, so the call fails unless both writes succeed. If embedding
// the content fails, the memory is stored without a vector.
func (m *Manager) Store(ctx context.Context, in StoreInput) (*domain.Memory, error) {
	if in.PersonaID == "" || in.Content == "" {
		return nil, fmt.Errorf("%w: persona_id and content are required", domain.ErrInputInvalid)
	}
	memType := in.Type
	if memType == "" {
		memType = domain.MemoryConversation
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}

	imp := 0.0
	if in.Importance != nil {
		imp = *in.Importance
	} else {
		imp = importance.Score(in.Content, in.ScoringContext)
		imp = importance.WithTypeMultiplier(imp, memType)
	}

	embedding, err := m.embedder.Embed(ctx, in.Content)
	if err != nil {
		m.logger.Warn("embedding failed, storing without vector", zap.Error(err))
		embedding = nil
	}

	mem := domain.Memory{
		ID:               uuid.NewString(),
		PersonaID:        in.PersonaID,
		Content:          in.Content,
		MemoryType:       memType,
		Importance:       imp,
		EmotionalValence: in.EmotionalValence,
		RelatedPersonas:  in.RelatedPersonas,
		Visibility:       visibility,
		Metadata:         in.Metadata,
		CreatedAt:        time.Now(),
		Embedding:        embedding,
	}

	if err := m.repo.Insert(ctx, mem); err != nil {
		return nil, err
	}
	return &mem, nil
}

// Search returns the top-k memories for persona_id matching query,
// filtered by min_importance, updating access counters on the returned
// set.
func (m *Manager) Search(ctx context.Context, personaID, query string, k int, minImportance float64) ([]domain.Memory, error) {
	scored, err := m.vectors.Search(ctx, personaID, query, k, minImportance)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	now := time.Now()
	out := make([]domain.Memory, 0, len(scored))
	for _, s := range scored {
		if err := m.repo.Touch(ctx, s.ID, now); err != nil {
			m.logger.Warn("touch memory failed", zap.Error(err), zap.String("memory_id", s.ID))
		}
		s.Memory.AccessedCount++
		s.Memory.LastAccessed = now
		out = append(out, s.Memory)
	}
	return out, nil
}

// SearchCrossPersona is restricted to memories not owned by requesterID,
// with visibility drawn only from {shared, public} as selected by the
// include flags. Invariant enforced here: "private" is never added to the
// visibility filter, so a private memory belonging to someone else can
// never surface.
func (m *Manager) SearchCrossPersona(ctx context.Context, requesterID, query string, k int, minImportance float64, includeShared, includePublic bool) ([]domain.Memory, error) {
	var visibilities []domain.Visibility
	if includeShared {
		visibilities = append(visibilities, domain.VisibilityShared)
	}
	if includePublic {
		visibilities = append(visibilities, domain.VisibilityPublic)
	}
	if len(visibilities) == 0 {
		return nil, nil
	}

	scored, err := m.vectors.SearchCrossPersona(ctx, requesterID, query, k, minImportance, visibilities)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	out := make([]domain.Memory, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Memory)
	}
	return out, nil
}

// Stats reports counts per type, mean importance, and today's creations.
type Stats struct {
	CountByType    map[domain.MemoryType]int
	MeanImportance float64
	CreatedToday   int
}

func (m *Manager) Stats(ctx context.Context, personaID string) (Stats, error) {
	mems, err := m.repo.ListByPersona(ctx, personaID)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	stats := Stats{CountByType: make(map[domain.MemoryType]int)}
	var sum float64
	today := time.Now().Truncate(24 * time.Hour)
	for _, mem := range mems {
		stats.CountByType[mem.MemoryType]++
		sum += mem.Importance
		if mem.CreatedAt.After(today) {
			stats.CreatedToday++
		}
	}
	if len(mems) > 0 {
		stats.MeanImportance = sum / float64(len(mems))
	}
	return stats, nil
}

// Prune evicts the lowest-priority memories until count <= cap. Priority
// is importance + 0.01*access_count, ties broken toward older
// last_accessed.
func (m *Manager) Prune(ctx context.Context, personaID string, cap int) (evicted int, err error) {
	mems, err := m.repo.ListByPersona(ctx, personaID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	if len(mems) <= cap {
		return 0, nil
	}

	sort.Slice(mems, func(i, j int) bool {
		pi, pj := mems[i].Priority(), mems[j].Priority()
		if pi != pj {
			return pi < pj
		}
		return mems[i].LastAccessed.Before(mems[j].LastAccessed)
	})

	toEvict := len(mems) - cap
	for i := 0; i < toEvict; i++ {
		if err := m.repo.Delete(ctx, mems[i].ID); err != nil {
			return evicted, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
		}
		evicted++
	}
	return evicted, nil
}

// PruneRecommendations reports eviction candidates without deleting.
func (m *Manager) PruneRecommendations(ctx context.Context, personaID string, cap int) ([]domain.Memory, error) {
	mems, err := m.repo.ListByPersona(ctx, personaID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	if len(mems) <= cap {
		return nil, nil
	}
	sort.Slice(mems, func(i, j int) bool {
		pi, pj := mems[i].Priority(), mems[j].Priority()
		if pi != pj {
			return pi < pj
		}
		return mems[i].LastAccessed.Before(mems[j].LastAccessed)
	})
	return mems[:len(mems)-cap], nil
}

// DeletePersonaMemories hard-deletes all records for one persona.
func (m *Manager) DeletePersonaMemories(ctx context.Context, personaID string) error {
	if err := m.repo.DeleteByPersona(ctx, personaID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

// UpdateImportance persists a new importance value for one memory along
// with the time the decay worker applied it, so the next sweep can compute
// elapsed time since this decay rather than since the memory's creation.
func (m *Manager) UpdateImportance(ctx context.Context, id string, importance float64, decayedAt time.Time) error {
	return m.repo.UpdateImportance(ctx, id, importance, decayedAt)
}

// ListByPersona exposes the raw per-persona memory list for the decay
// worker's scan.
func (m *Manager) ListByPersona(ctx context.Context, personaID string) ([]domain.Memory, error) {
	return m.repo.ListByPersona(ctx, personaID)
}
