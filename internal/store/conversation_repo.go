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

// ConversationRepository persists Conversation and ConversationTurn rows.
type ConversationRepository interface {
	Create(ctx context.Context, c domain.Conversation) error
	Save(ctx context.Context, c domain.Conversation) error
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	AppendTurn(ctx context.Context, t domain.ConversationTurn) error
}

type SQLiteConversationRepository struct {
	store *Store
}

func NewSQLiteConversationRepository(store *Store) *SQLiteConversationRepository {
	return &SQLiteConversationRepository{store: store}
}

func (r *SQLiteConversationRepository) Create(ctx context.Context, c domain.Conversation) error {
	return r.upsert(ctx, c, true)
}

func (r *SQLiteConversationRepository) Save(ctx context.Context, c domain.Conversation) error {
	return r.upsert(ctx, c, false)
}

func (r *SQLiteConversationRepository) upsert(ctx context.Context, c domain.Conversation, insert bool) error {
	participants, _ := json.Marshal(c.Participants)
	history, _ := json.Marshal(c.ScoreHistory)

	var endedAt any
	if c.EndedAt != nil {
		endedAt = c.EndedAt.Format(time.RFC3339Nano)
	}

	if insert {
		_, err := r.store.db.ExecContext(ctx, `
			INSERT INTO conversations (id, participants, topic, topic_drift_count, duration, token_budget, tokens_used,
				continue_score, score_history, turn_count, started_at, ended_at, exit_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, string(participants), c.Topic, c.TopicDriftCount, c.Duration, c.TokenBudget, c.TokensUsed,
			c.ContinueScore, string(history), c.TurnCount, c.StartedAt.Format(time.RFC3339Nano), endedAt, c.ExitReason,
		)
		if err != nil {
			return fmt.Errorf("%w: insert conversation: %v", domain.ErrStoreFailure, err)
		}
		return nil
	}

	_, err := r.store.db.ExecContext(ctx, `
		UPDATE conversations SET participants=?, topic=?, topic_drift_count=?, duration=?, token_budget=?, tokens_used=?,
			continue_score=?, score_history=?, turn_count=?, ended_at=?, exit_reason=?
		WHERE id=?`,
		string(participants), c.Topic, c.TopicDriftCount, c.Duration, c.TokenBudget, c.TokensUsed,
		c.ContinueScore, string(history), c.TurnCount, endedAt, c.ExitReason, c.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: save conversation: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

func (r *SQLiteConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, participants, topic, topic_drift_count, duration, token_budget, tokens_used,
		       continue_score, score_history, turn_count, started_at, ended_at, exit_reason
		FROM conversations WHERE id = ?`, id)

	var c domain.Conversation
	var participants, history, startedAt string
	var endedAt sql.NullString

	err := row.Scan(&c.ID, &participants, &c.Topic, &c.TopicDriftCount, &c.Duration, &c.TokenBudget, &c.TokensUsed,
		&c.ContinueScore, &history, &c.TurnCount, &startedAt, &endedAt, &c.ExitReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get conversation: %v", domain.ErrStoreFailure, err)
	}

	json.Unmarshal([]byte(participants), &c.Participants)
	json.Unmarshal([]byte(history), &c.ScoreHistory)
	c.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if endedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, endedAt.String)
		c.EndedAt = &t
	}
	return &c, nil
}

func (r *SQLiteConversationRepository) AppendTurn(ctx context.Context, t domain.ConversationTurn) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (id, conversation_id, speaker_id, turn_number, content, response_type, continue_score, tokens_used, processing_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ConversationID, t.SpeakerID, t.TurnNumber, t.Content, string(t.ResponseType),
		t.ContinueScore, t.TokensUsed, t.ProcessingTime.Seconds(), t.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: append turn: %v", domain.ErrStoreFailure, err)
	}
	return nil
}
