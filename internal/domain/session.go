package domain

import "time"

// ConversationSession is the per-connection, per-persona bookkeeping record
// the session manager keeps distinct from the persisted Conversation.
type ConversationSession struct {
	ConversationID string
	TurnCount      int
	LastActivity   time.Time
	Context        map[string]string
}

// StreamingSession is a server-side record of an in-flight progressive
// response, addressable by stream id and cooperatively cancellable.
type StreamingSession struct {
	ID          string
	RequestID   any
	PersonaID   string
	Message     string
	StartedAt   time.Time
	cancelled   bool
}

// Cancel marks the session cancelled. Observed by the producer loop at
// chunk boundaries, never preempts mid-chunk.
func (s *StreamingSession) Cancel() { s.cancelled = true }

// Cancelled reports whether Cancel has been called.
func (s *StreamingSession) Cancelled() bool { return s.cancelled }

// SessionContext is the process-local, per-transport-connection state.
// Destroyed on disconnect; never persisted.
type SessionContext struct {
	ConnectionID       string
	CurrentPersonaID   string
	CurrentConvID      string
	ConversationByPers map[string]*ConversationSession
	Streaming          map[string]*StreamingSession
}

// NewSessionContext returns an empty session for a freshly accepted
// connection.
func NewSessionContext(connectionID string) *SessionContext {
	return &SessionContext{
		ConnectionID:       connectionID,
		ConversationByPers: make(map[string]*ConversationSession),
		Streaming:          make(map[string]*StreamingSession),
	}
}
