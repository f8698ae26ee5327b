package domain

import "time"

// ResponseType is the generation tier chosen for a turn by continue score.
type ResponseType string

const (
	ResponseFullLLM     ResponseType = "full_llm"
	ResponseConstrained ResponseType = "constrained"
	ResponseTemplate    ResponseType = "template"
)

// Conversation tracks one active (or ended) exchange between two or more
// personas.
type Conversation struct {
	ID               string
	Participants     []string
	CurrentSpeaker   string
	Topic            string
	TopicDriftCount  int
	Duration         float64 // seconds
	TokenBudget      int
	TokensUsed       int
	ContinueScore    int
	ScoreHistory     []int
	TurnCount        int
	StartedAt        time.Time
	EndedAt          *time.Time
	ExitReason       string
}

// ShouldContinue implements the termination boundary from §8:
// false iff continue_score<40 or token_budget<=50 (remaining budget).
func (c Conversation) ShouldContinue() bool {
	remaining := c.TokenBudget - c.TokensUsed
	return c.ContinueScore >= 40 && remaining > 50
}

// ConversationTurn is an immutable committed turn within a conversation.
type ConversationTurn struct {
	ID             string
	ConversationID string
	SpeakerID      string
	TurnNumber     int
	Content        string
	ResponseType   ResponseType
	ContinueScore  int
	TokensUsed     int
	ProcessingTime time.Duration
	CreatedAt      time.Time
}

// InteractionHistoryEntry is the append-only audit row written by the
// relationship manager alongside every process_interaction call.
type InteractionHistoryEntry struct {
	ID                string
	PersonaA          string
	PersonaB          string
	InteractionQuality float64
	DurationMinutes   float64
	Context           string
	EmotionalImpact   map[string]float64
	MemoryReferences  []string
	Timestamp         time.Time
}
