package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// PersonaRepository persists Persona and InteractionState records.
// Interface defined alongside its sqlite implementation, following the
// teacher's CharacterRepository/PgCharacterRepository split.
type PersonaRepository interface {
	Create(ctx context.Context, p *domain.Persona) error
	Get(ctx context.Context, id string) (*domain.Persona, error)
	List(ctx context.Context) ([]*domain.Persona, error)
	Delete(ctx context.Context, id string) error
	SaveInteractionState(ctx context.Context, s domain.InteractionState) error
}

// SQLitePersonaRepository is the sqlite-backed PersonaRepository.
type SQLitePersonaRepository struct {
	store *Store
}

// NewSQLitePersonaRepository builds a repository bound to store.
func NewSQLitePersonaRepository(store *Store) *SQLitePersonaRepository {
	return &SQLitePersonaRepository{store: store}
}

func (r *SQLitePersonaRepository) Create(ctx context.Context, p *domain.Persona) error {
	traits, err := json.Marshal(p.PersonalityTraits)
	if err != nil {
		return fmt.Errorf("%w: marshal traits: %v", domain.ErrStoreFailure, err)
	}
	prefs, err := json.Marshal(p.TopicPreferences)
	if err != nil {
		return fmt.Errorf("%w: marshal preferences: %v", domain.ErrStoreFailure, err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO personas (id, name, description, personality_traits, topic_preferences, charisma, intelligence, social_rank, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, string(traits), string(prefs), p.Charisma, p.Intelligence, p.SocialRank, p.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: insert persona: %v", domain.ErrStoreFailure, err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO persona_interaction_states (persona_id, interest_level, interaction_fatigue, current_priority, available_time, social_energy, cooldown_until, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Interaction.InterestLevel, p.Interaction.InteractionFatigue, string(p.Interaction.CurrentPriority),
		p.Interaction.AvailableTime, p.Interaction.SocialEnergy, float64(p.Interaction.CooldownUntil.Unix()),
		p.Interaction.LastUpdated.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: insert interaction state: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

func (r *SQLitePersonaRepository) Get(ctx context.Context, id string) (*domain.Persona, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.description, p.personality_traits, p.topic_preferences, p.charisma, p.intelligence, p.social_rank, p.created_at,
		       s.interest_level, s.interaction_fatigue, s.current_priority, s.available_time, s.social_energy, s.cooldown_until, s.last_updated
		FROM personas p
		LEFT JOIN persona_interaction_states s ON s.persona_id = p.id
		WHERE p.id = ?`, id)
	p, err := scanPersona(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get persona: %v", domain.ErrStoreFailure, err)
	}
	return p, nil
}

func (r *SQLitePersonaRepository) List(ctx context.Context) ([]*domain.Persona, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.description, p.personality_traits, p.topic_preferences, p.charisma, p.intelligence, p.social_rank, p.created_at,
		       s.interest_level, s.interaction_fatigue, s.current_priority, s.available_time, s.social_energy, s.cooldown_until, s.last_updated
		FROM personas p
		LEFT JOIN persona_interaction_states s ON s.persona_id = p.id
		ORDER BY p.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list personas: %v", domain.ErrStoreFailure, err)
	}
	defer rows.Close()

	var out []*domain.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan persona: %v", domain.ErrStoreFailure, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLitePersonaRepository) Delete(ctx context.Context, id string) error {
	_, err := r.store.db.ExecContext(ctx, `DELETE FROM personas WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete persona: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

func (r *SQLitePersonaRepository) SaveInteractionState(ctx context.Context, s domain.InteractionState) error {
	_, err := r.store.db.ExecContext(ctx, `
		UPDATE persona_interaction_states
		SET interest_level=?, interaction_fatigue=?, current_priority=?, available_time=?, social_energy=?, cooldown_until=?, last_updated=?
		WHERE persona_id=?`,
		s.InterestLevel, s.InteractionFatigue, string(s.CurrentPriority), s.AvailableTime, s.SocialEnergy,
		float64(s.CooldownUntil.Unix()), s.LastUpdated.Format(time.RFC3339Nano), s.PersonaID,
	)
	if err != nil {
		return fmt.Errorf("%w: save interaction state: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

// rowScanner abstracts *sql.Row / *sql.Rows so scanPersona serves both
// Get (single row) and List (row iterator).
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPersona(row rowScanner) (*domain.Persona, error) {
	var p domain.Persona
	var traits, prefs string
	var createdAt string
	var interestLevel, fatigue, availableTime, socialEnergy, cooldown sql.NullFloat64
	var priority, lastUpdated sql.NullString

	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &traits, &prefs, &p.Charisma, &p.Intelligence, &p.SocialRank, &createdAt,
		&interestLevel, &fatigue, &priority, &availableTime, &socialEnergy, &cooldown, &lastUpdated,
	); err != nil {
		return nil, err
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	json.Unmarshal([]byte(traits), &p.PersonalityTraits)
	json.Unmarshal([]byte(prefs), &p.TopicPreferences)

	p.Interaction = domain.InteractionState{
		PersonaID:          p.ID,
		InterestLevel:      interestLevel.Float64,
		InteractionFatigue: fatigue.Float64,
		CurrentPriority:    domain.Priority(priority.String),
		AvailableTime:      availableTime.Float64,
		SocialEnergy:       socialEnergy.Float64,
		CooldownUntil:      time.Unix(int64(cooldown.Float64), 0),
	}
	if lastUpdated.Valid {
		p.Interaction.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated.String)
	}
	return &p, nil
}
