// Package relationship implements the relationship manager (§4.7):
// get_or_create, process_interaction's ten-step update algorithm, and the
// compatibility/strength/modifier query surface.
// Grounded on original_source's relationships/manager.py for the
// step ordering, and on the teacher's reaction_logic.go for the
// clamp-after-weighted-delta idiom reused in each dimension update.
package relationship

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
	"github.com/saltydev0331/persona-mcp-sub000/internal/scoring"
)

// PersonaLookup is the subset of the persona store the manager needs to
// verify both participants exist before mutating a relationship.
type PersonaLookup interface {
	Get(ctx context.Context, id string) (*domain.Persona, error)
}

// Repository is the subset of store.RelationshipRepository the manager
// needs.
type Repository interface {
	Get(ctx context.Context, personaA, personaB string) (*domain.Relationship, error)
	Upsert(ctx context.Context, rel domain.Relationship) error
	List(ctx context.Context, personaID string) ([]*domain.Relationship, error)
	AppendHistory(ctx context.Context, entry domain.InteractionHistoryEntry) error
}

// InteractionContext classifies the social context of an interaction,
// driving the context-modifier table in §4.7's process_interaction step.
type InteractionContext string

const (
	ContextConflict         InteractionContext = "conflict"
	ContextCollaboration    InteractionContext = "collaboration"
	ContextCasual           InteractionContext = "casual"
	ContextDeepConversation InteractionContext = "deep_conversation"
	ContextProfessional     InteractionContext = "professional"
)

// contextDelta is the fixed per-dimension nudge a context label applies
// on top of the duration-weighted quality update, per §4.7's table.
type contextDelta struct {
	affinity, trust, respect, intimacy float64
}

var contextModifiers = map[InteractionContext]contextDelta{
	ContextConflict:         {affinity: -0.1, trust: -0.2},
	ContextCollaboration:    {trust: 0.1, respect: 0.1},
	ContextCasual:           {affinity: 0.1},
	ContextDeepConversation: {intimacy: 0.1, trust: 0.05},
	ContextProfessional:     {respect: 0.1},
}

// Manager owns relationship lifecycle and the process_interaction update.
type Manager struct {
	repo     Repository
	personas PersonaLookup
	logger   *zap.Logger
}

func NewManager(repo Repository, personas PersonaLookup, logger *zap.Logger) *Manager {
	return &Manager{repo: repo, personas: personas, logger: logger}
}

// GetOrCreate loads the canonical relationship between two personas,
// creating a fresh stranger relationship if none exists yet.
func (m *Manager) GetOrCreate(ctx context.Context, personaA, personaB string, now time.Time) (*domain.Relationship, error) {
	rel, err := m.repo.Get(ctx, personaA, personaB)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	if rel != nil {
		return rel, nil
	}
	fresh := domain.NewStrangerRelationship(personaA, personaB, now)
	if err := m.repo.Upsert(ctx, fresh); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	return &fresh, nil
}

// ProcessInteractionInput carries the per-turn signal the relationship
// update consumes.
type ProcessInteractionInput struct {
	PersonaA        string
	PersonaB        string
	Quality         float64 // -1..1, caller-estimated interaction quality
	DurationMinutes float64
	Context         InteractionContext
	Summary         string
}

// ProcessInteraction runs the ten-step relationship update:
//  1. clamp quality to [-1, 1]
//  2. verify both personas exist
//  3. load or create the relationship
//  4. apply duration-weighted dimension updates: affinity always,
//     trust grows only on positive quality, respect only when
//     |quality|>0.5, intimacy only when quality>0.3 and duration>10m
//  5. apply the fixed context-label modifier table
//  6. clamp all four dimensions to [-1, 1]
//  7. increment interaction_count/total_interaction_time
//  8. recompute relationship_type from the dimension mean
//  9. record a memorable moment when |quality| > 0.7
//  10. persist and log an interaction_history row
func (m *Manager) ProcessInteraction(ctx context.Context, in ProcessInteractionInput, now time.Time) (*domain.Relationship, error) {
	quality := clamp(in.Quality, -1, 1)

	if _, err := m.personas.Get(ctx, in.PersonaA); err != nil {
		return nil, fmt.Errorf("%w: persona_a not found", domain.ErrNotFound)
	}
	if _, err := m.personas.Get(ctx, in.PersonaB); err != nil {
		return nil, fmt.Errorf("%w: persona_b not found", domain.ErrNotFound)
	}

	rel, err := m.GetOrCreate(ctx, in.PersonaA, in.PersonaB, now)
	if err != nil {
		return nil, err
	}

	durationWeight := clamp(in.DurationMinutes/10.0, 0.2, 1.5)

	rel.Affinity += quality * 0.1 * durationWeight

	if quality > 0 {
		rel.Trust += quality * 0.08 * durationWeight
	} else {
		rel.Trust += quality * 0.03 * durationWeight
	}

	if quality > 0.5 || quality < -0.5 {
		rel.Respect += quality * 0.05 * durationWeight
	}
	if quality > 0.3 && in.DurationMinutes > 10 {
		rel.Intimacy += quality * 0.05 * durationWeight
	}

	if delta, ok := contextModifiers[in.Context]; ok {
		rel.Affinity += delta.affinity
		rel.Trust += delta.trust
		rel.Respect += delta.respect
		rel.Intimacy += delta.intimacy
	}

	rel.Affinity = clamp(rel.Affinity, -1, 1)
	rel.Trust = clamp(rel.Trust, -1, 1)
	rel.Respect = clamp(rel.Respect, -1, 1)
	rel.Intimacy = clamp(rel.Intimacy, -1, 1)

	rel.InteractionCount++
	rel.TotalInteractionTime += in.DurationMinutes
	rel.LastInteraction = now
	rel.RecentQuality = quality
	rel.UpdatedAt = now

	meanDim := (rel.Affinity + rel.Trust + rel.Respect + rel.Intimacy) / 4
	rel.RelationshipType = domain.CanonicalType(meanDim, rel.InteractionCount, rel.Trust, rel.Respect)

	if quality > 0.7 || quality < -0.7 {
		moment := domain.Moment{
			Timestamp:   now,
			Description: in.Summary,
			Quality:     quality,
		}
		if quality < 0 {
			rel.ConflictHistory = append(rel.ConflictHistory, moment)
		} else {
			rel.MemorableMoments = append(rel.MemorableMoments, moment)
		}
	}

	if err := m.repo.Upsert(ctx, *rel); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}

	entry := domain.InteractionHistoryEntry{
		PersonaA:           in.PersonaA,
		PersonaB:           in.PersonaB,
		InteractionQuality: quality,
		DurationMinutes:    in.DurationMinutes,
		Context:            string(in.Context),
		Timestamp:          now,
	}
	if err := m.repo.AppendHistory(ctx, entry); err != nil {
		m.logger.Warn("append interaction history failed", zap.Error(err))
	}

	return rel, nil
}

// GetCompatibilityScore wraps scoring.GetCompatibilityScore for callers
// that only have persona ids, not loaded personas.
func (m *Manager) GetCompatibilityScore(ctx context.Context, personaA, personaB string) (scoring.Compatibility, error) {
	a, err := m.personas.Get(ctx, personaA)
	if err != nil {
		return scoring.Compatibility{}, fmt.Errorf("%w: persona_a not found", domain.ErrNotFound)
	}
	b, err := m.personas.Get(ctx, personaB)
	if err != nil {
		return scoring.Compatibility{}, fmt.Errorf("%w: persona_b not found", domain.ErrNotFound)
	}
	return scoring.GetCompatibilityScore(a, b), nil
}

// GetRelationshipStrength returns the composite strength for an existing
// relationship, or 0 if none exists yet.
func (m *Manager) GetRelationshipStrength(ctx context.Context, personaA, personaB string) (float64, error) {
	rel, err := m.repo.Get(ctx, personaA, personaB)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	if rel == nil {
		return 0, nil
	}
	return rel.Strength(), nil
}

// GetInteractionModifier returns the fixed per-dimension nudge
// process_interaction would apply for the given context label, as
// (affinity, trust, respect, intimacy) deltas, for callers that want to
// preview the table before committing an interaction.
func GetInteractionModifier(ctx InteractionContext) (affinity, trust, respect, intimacy float64) {
	d := contextModifiers[ctx]
	return d.affinity, d.trust, d.respect, d.intimacy
}

// List returns every relationship involving personaID.
func (m *Manager) List(ctx context.Context, personaID string) ([]*domain.Relationship, error) {
	rels, err := m.repo.List(ctx, personaID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	return rels, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
