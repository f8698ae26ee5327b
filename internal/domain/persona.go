// Package domain holds the core record types shared across the runtime:
// personas, their dynamic interaction/emotional state, relationships,
// memories, and conversations.
package domain

import "time"

// Priority is the current interaction priority a persona is operating under.
type Priority string

const (
	PriorityUrgent    Priority = "urgent"
	PriorityImportant Priority = "important"
	PriorityCasual    Priority = "casual"
	PrioritySocial    Priority = "social"
	PriorityAcademic  Priority = "academic"
	PriorityBusiness  Priority = "business"
	PriorityNone      Priority = "none"
)

// Persona is the stable identity record for a hosted AI character.
// Background and traits are immutable after creation; InteractionState is
// the one piece of Persona-owned state that changes turn to turn.
type Persona struct {
	ID                string
	Name              string
	Description       string
	PersonalityTraits map[string]float64 // label -> score
	TopicPreferences  map[string]float64 // topic -> interest 0-100
	Charisma          int                // 1-20
	Intelligence      int                // 1-20
	SocialRank        string
	CreatedAt         time.Time

	Interaction InteractionState
}

// InteractionState is the dynamic per-persona counters mutated by the
// conversation engine on every turn and regenerated by a background task.
type InteractionState struct {
	PersonaID          string
	InterestLevel      float64 // 0-100
	InteractionFatigue float64 // >=0
	CurrentPriority    Priority
	AvailableTime      float64 // seconds
	SocialEnergy       float64 // 0-200
	CooldownUntil      time.Time
	LastUpdated        time.Time
}

// IsAvailable reports whether the persona can enter a new interaction at
// the given instant, per the availability invariant in the data model.
func (s InteractionState) IsAvailable(now time.Time) bool {
	return !now.Before(s.CooldownUntil) && s.AvailableTime > 30 && s.SocialEnergy > 10
}

// EmotionalState is per-persona affect, created on demand and mutated by
// interaction effects and time-drift regeneration.
type EmotionalState struct {
	PersonaID     string
	Mood          float64 // -1..1
	EnergyLevel   float64 // 0..1
	StressLevel   float64 // 0..1
	Curiosity     float64 // 0..1
	SocialBattery float64 // 0..1
	LastUpdated   time.Time
	CreatedAt     time.Time
}

// DefaultEmotionalState returns a neutral baseline state for a new persona.
func DefaultEmotionalState(personaID string, now time.Time) EmotionalState {
	return EmotionalState{
		PersonaID:     personaID,
		Mood:          0,
		EnergyLevel:   0.7,
		StressLevel:   0.2,
		Curiosity:     0.5,
		SocialBattery: 0.8,
		LastUpdated:   now,
		CreatedAt:     now,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
