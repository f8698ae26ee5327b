// Package scoring implements the continue-score engine (§4.1): a pure
// function summing six weighted components into a 0-100 engagement score.
// The ReLU-style thresholding idiom (clamp a raw signal against an
// activation floor) is grounded on the teacher's reaction_logic.go
// CalculateReaction, generalized here across every component instead of
// one emotional-reaction calculation.
package scoring

import (
	"github.com/saltydev0331/persona-mcp-sub000/internal/config"
	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// Engine computes continue scores using configured weights/thresholds.
type Engine struct {
	cfg config.ConversationConfig
}

func NewEngine(cfg config.ConversationConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Input bundles everything the engine needs for one scoring call.
type Input struct {
	Speaker         *domain.Persona
	Other           *domain.Persona
	DurationSeconds float64
	TopicDriftCount int
	Relationship    *domain.Relationship
	TokenBudget     int
}

// Breakdown exposes each weighted component alongside the final score,
// useful for logging/debugging and for tests asserting on sub-scores.
type Breakdown struct {
	TimePressure        float64
	TopicAlignment      float64
	SocialCompatibility float64
	FatiguePenalty      float64
	RelationshipModifier float64
	ResourceScore       float64
	Total               int
}

// Score computes the 0-100 continue score for the given input.
func (e *Engine) Score(in Input) Breakdown {
	b := Breakdown{
		TimePressure:         e.timePressure(in),
		TopicAlignment:       e.topicAlignment(in),
		SocialCompatibility:  e.socialCompatibility(in),
		FatiguePenalty:       e.fatiguePenalty(in),
		RelationshipModifier: e.relationshipModifier(in),
		ResourceScore:        e.resourceScore(in),
	}
	total := b.TimePressure + b.TopicAlignment + b.SocialCompatibility + b.FatiguePenalty + b.RelationshipModifier + b.ResourceScore
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	b.Total = int(total)
	return b
}

func (e *Engine) timePressure(in Input) float64 {
	r := e.cfg.CasualDecayRate
	switch in.Speaker.Interaction.CurrentPriority {
	case domain.PriorityUrgent:
		r = e.cfg.UrgentDecayRate
	case domain.PriorityImportant:
		r = e.cfg.ImportantDecayRate
	}
	if r <= 0 {
		r = 600
	}
	max := e.cfg.MaxTimeScore
	if max <= 0 {
		max = 30
	}
	decayed := max - in.DurationSeconds/r
	return clamp(decayed, 0, max)
}

func (e *Engine) topicAlignment(in Input) float64 {
	max := e.cfg.MaxTopicScore
	if max <= 0 {
		max = 25
	}
	pref1 := averagePreference(in.Speaker)
	pref2 := averagePreference(in.Other)
	mean := (pref1 + pref2) / 2
	blended := 0.7*mean + 0.3*minFloat(pref1, pref2)
	score := (blended / 100.0) * max
	if in.TopicDriftCount > 2 {
		score *= 0.6
	}
	return clamp(score, 0, max)
}

func averagePreference(p *domain.Persona) float64 {
	if p == nil || len(p.TopicPreferences) == 0 {
		return 50
	}
	sum := 0.0
	for _, v := range p.TopicPreferences {
		sum += v
	}
	return sum / float64(len(p.TopicPreferences))
}

func (e *Engine) socialCompatibility(in Input) float64 {
	max := e.cfg.MaxSocialScore
	if max <= 0 {
		max = 20
	}
	charismaScore := float64(minInt(in.Speaker.Charisma, in.Other.Charisma)) * 0.8
	statusScore := e.statusCompatibility(in.Speaker.SocialRank, in.Other.SocialRank)
	avg := (charismaScore + statusScore) / 2
	return clamp(avg/20.0*max, 0, max)
}

func (e *Engine) statusCompatibility(rank1, rank2 string) float64 {
	hierarchy := e.cfg.StatusHierarchy
	idx1, idx2 := indexOf(hierarchy, rank1), indexOf(hierarchy, rank2)
	if idx1 < 0 || idx2 < 0 {
		return defaultF(e.cfg.DefaultStatusCompatibility, 5)
	}
	gap := idx1 - idx2
	if gap < 0 {
		gap = -gap
	}
	gapThreshold := e.cfg.LargeStatusGapThreshold
	if gapThreshold <= 0 {
		gapThreshold = 2
	}
	switch {
	case gap == 0:
		return defaultF(e.cfg.SameStatusCompatibility, 10)
	case gap == 1:
		return defaultF(e.cfg.AdjacentStatusCompatibility, 8)
	case gap >= gapThreshold:
		return defaultF(e.cfg.DistantStatusCompatibility, 3)
	default:
		return defaultF(e.cfg.DefaultStatusCompatibility, 5)
	}
}

func (e *Engine) fatiguePenalty(in Input) float64 {
	max := e.cfg.MaxFatiguePenalty
	if max <= 0 {
		max = 15
	}
	penalty := in.Speaker.Interaction.InteractionFatigue / 2
	if penalty > max {
		penalty = max
	}
	return -penalty
}

func (e *Engine) relationshipModifier(in Input) float64 {
	if in.Relationship == nil {
		return 0
	}
	// Rescale Strength() (-1..1-ish) linearly onto -10..+15.
	s := clamp(in.Relationship.Strength(), -1, 1)
	if s >= 0 {
		return s * 15
	}
	return s * 10
}

func (e *Engine) resourceScore(in Input) float64 {
	max := e.cfg.MaxResourceScore
	if max <= 0 {
		max = 10
	}
	timeFactor := clamp(in.Speaker.Interaction.AvailableTime/60.0, 0, 1)
	tokenFactor := clamp(float64(in.TokenBudget)/100.0, 0, 1)
	energyFactor := clamp(in.Speaker.Interaction.SocialEnergy/20.0, 0, 1)
	return timeFactor * tokenFactor * energyFactor * max
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

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func indexOf(hierarchy []string, rank string) int {
	for i, r := range hierarchy {
		if r == rank {
			return i
		}
	}
	return -1
}

func defaultF(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
