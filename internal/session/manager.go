// Package session implements the session manager (§4.6): a per-connection
// map of websocket_id -> persona_id -> ConversationSession, plus the
// streaming-session registry and the background sweep that purges stale
// entries. Grounded on the teacher's session_repo.go for the
// mutex-guarded, in-memory-registry shape, generalized from a single
// auth-session-per-user table into the spec's nested per-connection
// bookkeeping that explicitly must never coordinate across connections.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// Manager owns every connection's SessionContext, keyed by connection id.
// Each connection's state is independent; cleanup of one never touches
// another, matching §4.6's "cleanup must never require coordination with
// other connections".
type Manager struct {
	mu          sync.Mutex
	connections map[string]*domain.SessionContext
}

func NewManager() *Manager {
	return &Manager{connections: make(map[string]*domain.SessionContext)}
}

// Connect registers a freshly accepted connection and returns its session
// context.
func (m *Manager) Connect(connectionID string) *domain.SessionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc := domain.NewSessionContext(connectionID)
	m.connections[connectionID] = sc
	return sc
}

// Disconnect discards all per-connection state. Safe to call even if the
// connection was never registered.
func (m *Manager) Disconnect(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, connectionID)
}

func (m *Manager) get(connectionID string) *domain.SessionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections[connectionID]
}

// SetCurrentPersona records which persona a connection is currently
// addressing.
func (m *Manager) SetCurrentPersona(connectionID, personaID string) {
	sc := m.get(connectionID)
	if sc == nil {
		return
	}
	m.mu.Lock()
	sc.CurrentPersonaID = personaID
	m.mu.Unlock()
}

// CurrentPersona returns the persona a connection is currently addressing.
func (m *Manager) CurrentPersona(connectionID string) string {
	sc := m.get(connectionID)
	if sc == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return sc.CurrentPersonaID
}

// GetOrCreateConversationSession returns the bookkeeping record for
// (connectionID, personaID), creating one on first access.
func (m *Manager) GetOrCreateConversationSession(connectionID, personaID, conversationID string, now time.Time) *domain.ConversationSession {
	sc := m.get(connectionID)
	if sc == nil {
		sc = m.Connect(connectionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := sc.ConversationByPers[personaID]
	if !ok {
		cs = &domain.ConversationSession{
			ConversationID: conversationID,
			LastActivity:   now,
			Context:        make(map[string]string),
		}
		sc.ConversationByPers[personaID] = cs
	}
	return cs
}

// IncrementTurnCount bumps a conversation session's turn counter and
// refreshes its activity timestamp.
func (m *Manager) IncrementTurnCount(connectionID, personaID string, now time.Time) {
	sc := m.get(connectionID)
	if sc == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := sc.ConversationByPers[personaID]; ok {
		cs.TurnCount++
		cs.LastActivity = now
	}
}

// UpdateContext merges key/value pairs into a conversation session's
// context bag.
func (m *Manager) UpdateContext(connectionID, personaID string, updates map[string]string, now time.Time) {
	sc := m.get(connectionID)
	if sc == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := sc.ConversationByPers[personaID]
	if !ok {
		return
	}
	for k, v := range updates {
		cs.Context[k] = v
	}
	cs.LastActivity = now
}

// CreateStreamingSession registers a new in-flight streaming response.
func (m *Manager) CreateStreamingSession(connectionID, personaID, message string, now time.Time) *domain.StreamingSession {
	sc := m.get(connectionID)
	if sc == nil {
		sc = m.Connect(connectionID)
	}
	ss := &domain.StreamingSession{
		ID:        uuid.NewString(),
		PersonaID: personaID,
		Message:   message,
		StartedAt: now,
	}
	m.mu.Lock()
	sc.Streaming[ss.ID] = ss
	m.mu.Unlock()
	return ss
}

// ListStreamingSessions returns the active streaming sessions for a
// connection.
func (m *Manager) ListStreamingSessions(connectionID string) []*domain.StreamingSession {
	sc := m.get(connectionID)
	if sc == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.StreamingSession, 0, len(sc.Streaming))
	for _, ss := range sc.Streaming {
		out = append(out, ss)
	}
	return out
}

// CancelStreamingSession marks a streaming session cancelled; the
// producer loop observes this at the next chunk boundary.
func (m *Manager) CancelStreamingSession(connectionID, streamID string) bool {
	sc := m.get(connectionID)
	if sc == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ss, ok := sc.Streaming[streamID]
	if !ok {
		return false
	}
	ss.Cancel()
	return true
}

// CleanupStreamingSession removes a completed or cancelled streaming
// session's bookkeeping entry.
func (m *Manager) CleanupStreamingSession(connectionID, streamID string) {
	sc := m.get(connectionID)
	if sc == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(sc.Streaming, streamID)
}

// Sweep purges conversation sessions inactive beyond conversationTTL and
// streaming sessions older than streamingTTL, across every connection.
func (m *Manager) Sweep(now time.Time, conversationTTL, streamingTTL time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sc := range m.connections {
		for personaID, cs := range sc.ConversationByPers {
			if now.Sub(cs.LastActivity) > conversationTTL {
				delete(sc.ConversationByPers, personaID)
			}
		}
		for id, ss := range sc.Streaming {
			if now.Sub(ss.StartedAt) > streamingTTL {
				delete(sc.Streaming, id)
			}
		}
	}
}

// StartSweep launches a background goroutine sweeping every interval
// until stopped, following the same cancellable-ticker lifecycle as
// internal/decay's worker.
func (m *Manager) StartSweep(interval, conversationTTL, streamingTTL time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep(time.Now(), conversationTTL, streamingTTL)
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
