package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// EmotionalStateRepository persists per-persona EmotionalState.
type EmotionalStateRepository interface {
	Get(ctx context.Context, personaID string) (*domain.EmotionalState, error)
	Upsert(ctx context.Context, s domain.EmotionalState) error
}

type SQLiteEmotionalStateRepository struct {
	store *Store
}

func NewSQLiteEmotionalStateRepository(store *Store) *SQLiteEmotionalStateRepository {
	return &SQLiteEmotionalStateRepository{store: store}
}

func (r *SQLiteEmotionalStateRepository) Get(ctx context.Context, personaID string) (*domain.EmotionalState, error) {
	var s domain.EmotionalState
	var lastUpdated, createdAt string
	err := r.store.db.QueryRowContext(ctx, `
		SELECT persona_id, mood, energy_level, stress_level, curiosity, social_battery, last_updated, created_at
		FROM emotional_states WHERE persona_id = ?`, personaID,
	).Scan(&s.PersonaID, &s.Mood, &s.EnergyLevel, &s.StressLevel, &s.Curiosity, &s.SocialBattery, &lastUpdated, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get emotional state: %v", domain.ErrStoreFailure, err)
	}
	s.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated)
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &s, nil
}

func (r *SQLiteEmotionalStateRepository) Upsert(ctx context.Context, s domain.EmotionalState) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO emotional_states (persona_id, mood, energy_level, stress_level, curiosity, social_battery, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(persona_id) DO UPDATE SET
			mood=excluded.mood, energy_level=excluded.energy_level, stress_level=excluded.stress_level,
			curiosity=excluded.curiosity, social_battery=excluded.social_battery, last_updated=excluded.last_updated`,
		s.PersonaID, s.Mood, s.EnergyLevel, s.StressLevel, s.Curiosity, s.SocialBattery,
		s.LastUpdated.Format(time.RFC3339Nano), s.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert emotional state: %v", domain.ErrStoreFailure, err)
	}
	return nil
}
