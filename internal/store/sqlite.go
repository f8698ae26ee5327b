// Package store is the sqlite-backed structured store: durable relational
// state for personas, interaction states, relationships, emotional
// states, interaction history, conversations, turns, and the memory index.
//
// Grounded on goblincore-geoffreyengram's engram.Store: a single-writer
// database/sql handle over modernc.org/sqlite with WAL enabled and a
// version-tracked migration table.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite connection used for all structured persistence.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the sqlite database at path, with
// WAL journaling enabled per §6.
func Open(path string, enableWAL bool) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}

	dsn := path
	if enableWAL {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	} else {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under our scale; reads and writes
	// alike pass through this handle.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close shuts down the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}
	var version int
	s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if version >= 1 {
		return nil
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS personas (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			personality_traits TEXT NOT NULL DEFAULT '{}',
			topic_preferences TEXT NOT NULL DEFAULT '{}',
			charisma INTEGER NOT NULL DEFAULT 10,
			intelligence INTEGER NOT NULL DEFAULT 10,
			social_rank TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS persona_interaction_states (
			persona_id TEXT PRIMARY KEY REFERENCES personas(id) ON DELETE CASCADE,
			interest_level REAL NOT NULL DEFAULT 50,
			interaction_fatigue REAL NOT NULL DEFAULT 0,
			current_priority TEXT NOT NULL DEFAULT 'none',
			available_time REAL NOT NULL DEFAULT 3600,
			social_energy REAL NOT NULL DEFAULT 150,
			cooldown_until REAL NOT NULL DEFAULT 0,
			last_updated TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			persona1_id TEXT NOT NULL,
			persona2_id TEXT NOT NULL,
			affinity REAL NOT NULL DEFAULT 0,
			trust REAL NOT NULL DEFAULT 0,
			respect REAL NOT NULL DEFAULT 0,
			intimacy REAL NOT NULL DEFAULT 0,
			relationship_type TEXT NOT NULL DEFAULT 'stranger',
			interaction_count INTEGER NOT NULL DEFAULT 0,
			total_interaction_time REAL NOT NULL DEFAULT 0,
			first_meeting TEXT NOT NULL,
			last_interaction TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			memorable_moments TEXT NOT NULL DEFAULT '[]',
			conflict_history TEXT NOT NULL DEFAULT '[]',
			recent_quality REAL NOT NULL DEFAULT 0,
			UNIQUE(persona1_id, persona2_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_pair ON relationships(persona1_id, persona2_id)`,
		`CREATE TABLE IF NOT EXISTS emotional_states (
			persona_id TEXT PRIMARY KEY REFERENCES personas(id) ON DELETE CASCADE,
			mood REAL NOT NULL DEFAULT 0,
			energy_level REAL NOT NULL DEFAULT 0.7,
			stress_level REAL NOT NULL DEFAULT 0.2,
			curiosity REAL NOT NULL DEFAULT 0.5,
			social_battery REAL NOT NULL DEFAULT 0.8,
			last_updated TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_emotional_states_persona ON emotional_states(persona_id)`,
		`CREATE TABLE IF NOT EXISTS interaction_history (
			id TEXT PRIMARY KEY,
			persona1_id TEXT NOT NULL,
			persona2_id TEXT NOT NULL,
			interaction_quality REAL NOT NULL,
			duration_minutes REAL NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			emotional_impact TEXT NOT NULL DEFAULT '{}',
			memory_references TEXT NOT NULL DEFAULT '[]',
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interaction_history_pair ON interaction_history(persona1_id, persona2_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			participants TEXT NOT NULL DEFAULT '[]',
			topic TEXT NOT NULL DEFAULT '',
			topic_drift_count INTEGER NOT NULL DEFAULT 0,
			duration REAL NOT NULL DEFAULT 0,
			token_budget INTEGER NOT NULL DEFAULT 0,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			continue_score INTEGER NOT NULL DEFAULT 100,
			score_history TEXT NOT NULL DEFAULT '[]',
			turn_count INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			exit_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			speaker_id TEXT NOT NULL,
			turn_number INTEGER NOT NULL,
			content TEXT NOT NULL,
			response_type TEXT NOT NULL,
			continue_score INTEGER NOT NULL,
			tokens_used INTEGER NOT NULL,
			processing_time REAL NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON conversation_turns(conversation_id)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			persona_id TEXT NOT NULL,
			content TEXT NOT NULL,
			memory_type TEXT NOT NULL DEFAULT 'conversation',
			importance REAL NOT NULL DEFAULT 0.5,
			emotional_valence REAL NOT NULL DEFAULT 0,
			related_personas TEXT NOT NULL DEFAULT '[]',
			visibility TEXT NOT NULL DEFAULT 'private',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			accessed_count INTEGER NOT NULL DEFAULT 0,
			last_accessed TEXT,
			last_decayed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_persona ON memories(persona_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_visibility ON memories(visibility)`,
		`CREATE TABLE IF NOT EXISTS memory_vectors (
			memory_id TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
			persona_id TEXT NOT NULL,
			vector BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_vectors_persona ON memory_vectors(persona_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate stmt %q: %w", stmt, err)
		}
	}
	_, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (1)`)
	return err
}
