package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// MemoryRepository persists Memory index rows and their embedding blobs.
// Vector search itself lives in internal/vectorstore, which loads rows
// through this repository — see SPEC_FULL.md's DOMAIN STACK section for
// why the vector store is implemented in-process rather than against a
// running Postgres+pgvector instance.
type MemoryRepository interface {
	Insert(ctx context.Context, m domain.Memory) error
	Get(ctx context.Context, id string) (*domain.Memory, error)
	ListByPersona(ctx context.Context, personaID string) ([]domain.Memory, error)
	ListVisibleTo(ctx context.Context, excludePersonaID string, visibilities []domain.Visibility) ([]domain.Memory, error)
	Touch(ctx context.Context, id string, when time.Time) error
	UpdateImportance(ctx context.Context, id string, importance float64, decayedAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByPersona(ctx context.Context, personaID string) error
}

type SQLiteMemoryRepository struct {
	store *Store
}

func NewSQLiteMemoryRepository(store *Store) *SQLiteMemoryRepository {
	return &SQLiteMemoryRepository{store: store}
}

func (r *SQLiteMemoryRepository) Insert(ctx context.Context, m domain.Memory) error {
	related, _ := json.Marshal(m.RelatedPersonas)
	metadata, _ := json.Marshal(m.Metadata)

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrStoreFailure, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, persona_id, content, memory_type, importance, emotional_valence, related_personas, visibility, metadata, created_at, accessed_count, last_accessed, last_decayed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.PersonaID, m.Content, string(m.MemoryType), m.Importance, m.EmotionalValence,
		string(related), string(m.Visibility), string(metadata), m.CreatedAt.Format(time.RFC3339Nano),
		m.AccessedCount, nullableTime(m.LastAccessed), nullableTime(m.LastDecayedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: insert memory: %v", domain.ErrStoreFailure, err)
	}

	if len(m.Embedding) > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memory_vectors (memory_id, persona_id, vector) VALUES (?, ?, ?)
			ON CONFLICT(memory_id) DO UPDATE SET vector=excluded.vector`,
			m.ID, m.PersonaID, encodeVector(m.Embedding),
		)
		if err != nil {
			return fmt.Errorf("%w: insert vector: %v", domain.ErrStoreFailure, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit memory insert: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

func (r *SQLiteMemoryRepository) Get(ctx context.Context, id string) (*domain.Memory, error) {
	row := r.store.db.QueryRowContext(ctx, memorySelectWithVector+` WHERE m.id = ?`, id)
	m, err := scanMemoryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get memory: %v", domain.ErrStoreFailure, err)
	}
	return m, nil
}

func (r *SQLiteMemoryRepository) ListByPersona(ctx context.Context, personaID string) ([]domain.Memory, error) {
	rows, err := r.store.db.QueryContext(ctx, memorySelectWithVector+` WHERE m.persona_id = ? ORDER BY m.created_at DESC`, personaID)
	if err != nil {
		return nil, fmt.Errorf("%w: list memories: %v", domain.ErrStoreFailure, err)
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

func (r *SQLiteMemoryRepository) ListVisibleTo(ctx context.Context, excludePersonaID string, visibilities []domain.Visibility) ([]domain.Memory, error) {
	if len(visibilities) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(visibilities))
	args := make([]any, 0, len(visibilities)+1)
	args = append(args, excludePersonaID)
	for i, v := range visibilities {
		placeholders[i] = "?"
		args = append(args, string(v))
	}
	query := memorySelectWithVector + fmt.Sprintf(
		` WHERE m.persona_id != ? AND m.visibility IN (%s) ORDER BY m.created_at DESC`,
		strings.Join(placeholders, ","),
	)
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list visible memories: %v", domain.ErrStoreFailure, err)
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

func (r *SQLiteMemoryRepository) Touch(ctx context.Context, id string, when time.Time) error {
	_, err := r.store.db.ExecContext(ctx, `
		UPDATE memories SET accessed_count = accessed_count + 1, last_accessed = ? WHERE id = ?`,
		when.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("%w: touch memory: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

func (r *SQLiteMemoryRepository) UpdateImportance(ctx context.Context, id string, importance float64, decayedAt time.Time) error {
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE memories SET importance = ?, last_decayed_at = ? WHERE id = ?`,
		importance, nullableTime(decayedAt), id,
	)
	if err != nil {
		return fmt.Errorf("%w: update importance: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

func (r *SQLiteMemoryRepository) Delete(ctx context.Context, id string) error {
	_, err := r.store.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete memory: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

func (r *SQLiteMemoryRepository) DeleteByPersona(ctx context.Context, personaID string) error {
	_, err := r.store.db.ExecContext(ctx, `DELETE FROM memories WHERE persona_id = ?`, personaID)
	if err != nil {
		return fmt.Errorf("%w: delete persona memories: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

const memorySelectWithVector = `
	SELECT m.id, m.persona_id, m.content, m.memory_type, m.importance, m.emotional_valence,
	       m.related_personas, m.visibility, m.metadata, m.created_at, m.accessed_count, m.last_accessed,
	       m.last_decayed_at, v.vector
	FROM memories m
	LEFT JOIN memory_vectors v ON v.memory_id = m.id`

func scanMemoryRow(row rowScanner) (*domain.Memory, error) {
	var m domain.Memory
	var related, metadata, createdAt string
	var lastAccessed, lastDecayedAt sql.NullString
	var vecBlob []byte

	if err := row.Scan(
		&m.ID, &m.PersonaID, &m.Content, &m.MemoryType, &m.Importance, &m.EmotionalValence,
		&related, &m.Visibility, &metadata, &createdAt, &m.AccessedCount, &lastAccessed,
		&lastDecayedAt, &vecBlob,
	); err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(related), &m.RelatedPersonas)
	json.Unmarshal([]byte(metadata), &m.Metadata)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if lastAccessed.Valid {
		m.LastAccessed, _ = time.Parse(time.RFC3339Nano, lastAccessed.String)
	}
	if lastDecayedAt.Valid {
		m.LastDecayedAt, _ = time.Parse(time.RFC3339Nano, lastDecayedAt.String)
	}
	if len(vecBlob) > 0 {
		m.Embedding = decodeVector(vecBlob)
	}
	return &m, nil
}

func scanMemoryRows(rows *sql.Rows) ([]domain.Memory, error) {
	var out []domain.Memory
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan memory: %v", domain.ErrStoreFailure, err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// encodeVector/decodeVector mirror goblincore-geoffreyengram's little-endian
// float32 blob encoding for sqlite-stored embeddings.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
