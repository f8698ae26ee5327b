package domain

import "time"

// MemoryType categorizes a Memory record; drives the importance scorer's
// post-hoc type multiplier table.
type MemoryType string

const (
	MemoryConversation MemoryType = "conversation"
	MemoryObservation  MemoryType = "observation"
	MemoryReflection   MemoryType = "reflection"
	MemoryRelationship MemoryType = "relationship"
	MemoryGoal         MemoryType = "goal"
	MemorySecret       MemoryType = "secret"
	MemoryTrauma       MemoryType = "trauma"
	MemoryAchievement  MemoryType = "achievement"
	MemoryLearning     MemoryType = "learning"
	MemoryRoutine      MemoryType = "routine"
)

// TypeMultiplier is the post-hoc importance multiplier table from §4.3.
var TypeMultiplier = map[MemoryType]float64{
	MemoryConversation: 1.0,
	MemoryObservation:  0.8,
	MemoryReflection:   1.2,
	MemoryRelationship: 1.3,
	MemoryGoal:         1.4,
	MemorySecret:       1.5,
	MemoryTrauma:       1.6,
	MemoryAchievement:  1.3,
	MemoryLearning:     1.1,
	MemoryRoutine:      0.6,
}

// Visibility controls cross-persona memory retrieval.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

// Memory is an immutable-after-write record, stored in both the vector
// store (with embedding) and the structured store (for indexing/decay).
type Memory struct {
	ID               string
	PersonaID        string
	Content          string
	MemoryType       MemoryType
	Importance       float64 // 0..1, clamped to [0.1,1.0] by the scorer
	EmotionalValence float64 // -1..1
	RelatedPersonas  []string
	Visibility       Visibility
	Metadata         map[string]string
	CreatedAt        time.Time
	AccessedCount    int
	LastAccessed     time.Time
	LastDecayedAt    time.Time // last time the decay worker applied a factor; zero until the first sweep

	Embedding []float32 `json:"-"`
}

// Priority is the eviction-ordering score used by prune: importance plus
// a small bonus for access frequency, ties broken toward older LastAccessed.
func (m Memory) Priority() float64 {
	return m.Importance + 0.01*float64(m.AccessedCount)
}
