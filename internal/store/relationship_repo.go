package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// RelationshipRepository persists the symmetric pairwise Relationship
// record and the append-only interaction_history audit log.
type RelationshipRepository interface {
	Get(ctx context.Context, a, b string) (*domain.Relationship, error)
	Upsert(ctx context.Context, r domain.Relationship) error
	List(ctx context.Context, personaID string) ([]*domain.Relationship, error)
	AppendHistory(ctx context.Context, e domain.InteractionHistoryEntry) error
}

// SQLiteRelationshipRepository is the sqlite-backed RelationshipRepository.
type SQLiteRelationshipRepository struct {
	store *Store
}

func NewSQLiteRelationshipRepository(store *Store) *SQLiteRelationshipRepository {
	return &SQLiteRelationshipRepository{store: store}
}

func (r *SQLiteRelationshipRepository) Get(ctx context.Context, a, b string) (*domain.Relationship, error) {
	pa, pb := domain.CanonicalPair(a, b)
	row := r.store.db.QueryRowContext(ctx, `
		SELECT persona1_id, persona2_id, affinity, trust, respect, intimacy, relationship_type,
		       interaction_count, total_interaction_time, first_meeting, last_interaction,
		       created_at, updated_at, memorable_moments, conflict_history, recent_quality
		FROM relationships WHERE persona1_id = ? AND persona2_id = ?`, pa, pb)
	rel, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get relationship: %v", domain.ErrStoreFailure, err)
	}
	return rel, nil
}

func (r *SQLiteRelationshipRepository) Upsert(ctx context.Context, rel domain.Relationship) error {
	pa, pb := domain.CanonicalPair(rel.PersonaA, rel.PersonaB)
	moments, _ := json.Marshal(rel.MemorableMoments)
	conflicts, _ := json.Marshal(rel.ConflictHistory)

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO relationships (id, persona1_id, persona2_id, affinity, trust, respect, intimacy, relationship_type,
			interaction_count, total_interaction_time, first_meeting, last_interaction, created_at, updated_at,
			memorable_moments, conflict_history, recent_quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(persona1_id, persona2_id) DO UPDATE SET
			affinity=excluded.affinity, trust=excluded.trust, respect=excluded.respect, intimacy=excluded.intimacy,
			relationship_type=excluded.relationship_type, interaction_count=excluded.interaction_count,
			total_interaction_time=excluded.total_interaction_time, last_interaction=excluded.last_interaction,
			updated_at=excluded.updated_at, memorable_moments=excluded.memorable_moments,
			conflict_history=excluded.conflict_history, recent_quality=excluded.recent_quality`,
		uuid.NewString(), pa, pb, rel.Affinity, rel.Trust, rel.Respect, rel.Intimacy, string(rel.RelationshipType),
		rel.InteractionCount, rel.TotalInteractionTime, rel.FirstMeeting.Format(time.RFC3339Nano),
		rel.LastInteraction.Format(time.RFC3339Nano), rel.CreatedAt.Format(time.RFC3339Nano), rel.UpdatedAt.Format(time.RFC3339Nano),
		string(moments), string(conflicts), rel.RecentQuality,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert relationship: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

func (r *SQLiteRelationshipRepository) List(ctx context.Context, personaID string) ([]*domain.Relationship, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT persona1_id, persona2_id, affinity, trust, respect, intimacy, relationship_type,
		       interaction_count, total_interaction_time, first_meeting, last_interaction,
		       created_at, updated_at, memorable_moments, conflict_history, recent_quality
		FROM relationships WHERE persona1_id = ? OR persona2_id = ?`, personaID, personaID)
	if err != nil {
		return nil, fmt.Errorf("%w: list relationships: %v", domain.ErrStoreFailure, err)
	}
	defer rows.Close()

	var out []*domain.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan relationship: %v", domain.ErrStoreFailure, err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (r *SQLiteRelationshipRepository) AppendHistory(ctx context.Context, e domain.InteractionHistoryEntry) error {
	impact, _ := json.Marshal(e.EmotionalImpact)
	refs, _ := json.Marshal(e.MemoryReferences)
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO interaction_history (id, persona1_id, persona2_id, interaction_quality, duration_minutes, context, emotional_impact, memory_references, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.PersonaA, e.PersonaB, e.InteractionQuality, e.DurationMinutes, e.Context, string(impact), string(refs), e.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: append interaction history: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

func scanRelationship(row rowScanner) (*domain.Relationship, error) {
	var rel domain.Relationship
	var relType, firstMeeting, lastInteraction, createdAt, updatedAt, moments, conflicts string

	if err := row.Scan(
		&rel.PersonaA, &rel.PersonaB, &rel.Affinity, &rel.Trust, &rel.Respect, &rel.Intimacy, &relType,
		&rel.InteractionCount, &rel.TotalInteractionTime, &firstMeeting, &lastInteraction,
		&createdAt, &updatedAt, &moments, &conflicts, &rel.RecentQuality,
	); err != nil {
		return nil, err
	}
	rel.RelationshipType = domain.RelationshipType(relType)
	rel.FirstMeeting, _ = time.Parse(time.RFC3339Nano, firstMeeting)
	rel.LastInteraction, _ = time.Parse(time.RFC3339Nano, lastInteraction)
	rel.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rel.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	json.Unmarshal([]byte(moments), &rel.MemorableMoments)
	json.Unmarshal([]byte(conflicts), &rel.ConflictHistory)
	return &rel, nil
}
