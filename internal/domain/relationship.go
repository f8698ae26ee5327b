package domain

import (
	"time"
)

// RelationshipType is the categorical label derived from a relationship's
// dimension vector and interaction count (see CanonicalType).
type RelationshipType string

const (
	RelationshipStranger     RelationshipType = "stranger"
	RelationshipAcquaintance RelationshipType = "acquaintance"
	RelationshipFriend       RelationshipType = "friend"
	RelationshipCloseFriend  RelationshipType = "close_friend"
	RelationshipRival        RelationshipType = "rival"
	RelationshipEnemy        RelationshipType = "enemy"
	RelationshipMentor       RelationshipType = "mentor"
	RelationshipStudent      RelationshipType = "student"
	RelationshipRomantic     RelationshipType = "romantic"
	RelationshipFamily       RelationshipType = "family"
)

// Moment is an append-only memorable-moment or conflict-history entry.
type Moment struct {
	Timestamp   time.Time
	Description string
	Quality     float64
}

// Relationship is the symmetric pairwise record between two personas.
// PersonaA/PersonaB are always stored in canonical (lexicographically
// sorted) order — see CanonicalPair — so lookups are symmetric regardless
// of argument order.
type Relationship struct {
	PersonaA string
	PersonaB string

	Affinity float64 // -1..1
	Trust    float64 // -1..1
	Respect  float64 // -1..1
	Intimacy float64 // 0..1

	RelationshipType RelationshipType

	InteractionCount      int
	TotalInteractionTime  float64 // minutes

	FirstMeeting    time.Time
	LastInteraction time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	MemorableMoments []Moment
	ConflictHistory  []Moment

	RecentQuality float64
}

// CanonicalPair sorts two persona ids lexicographically so relationship
// lookups and writes are symmetric: CanonicalPair(a,b) == CanonicalPair(b,a).
func CanonicalPair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// NewStrangerRelationship builds the neutral default record for a pair
// that has never interacted.
func NewStrangerRelationship(a, b string, now time.Time) Relationship {
	pa, pb := CanonicalPair(a, b)
	return Relationship{
		PersonaA:         pa,
		PersonaB:         pb,
		RelationshipType: RelationshipStranger,
		FirstMeeting:     now,
		LastInteraction:  now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Strength is the weighted sum of affinity/trust/respect/intimacy.
// Relationship type is not derived from it: CanonicalType uses the
// unweighted mean of the four dimensions.
func (r Relationship) Strength() float64 {
	return 0.35*r.Affinity + 0.3*r.Trust + 0.2*r.Respect + 0.15*r.Intimacy
}

// CanonicalType recomputes relationship_type from the mean of the
// dimension vector and the interaction count, per §4.7/§3.
func CanonicalType(meanDim float64, interactionCount int, trust, respect float64) RelationshipType {
	switch {
	case meanDim <= -0.6:
		return RelationshipEnemy
	case meanDim <= -0.25:
		return RelationshipRival
	case interactionCount < 2:
		return RelationshipStranger
	case meanDim >= 0.75 && interactionCount >= 15:
		return RelationshipCloseFriend
	case meanDim >= 0.45 && interactionCount >= 5:
		return RelationshipFriend
	case trust >= 0.6 && respect >= 0.7 && interactionCount >= 8:
		return RelationshipMentor
	case meanDim >= 0.1:
		return RelationshipAcquaintance
	default:
		return RelationshipStranger
	}
}
