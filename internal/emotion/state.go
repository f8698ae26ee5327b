// Package emotion owns EmotionalState transitions: apply_interaction_effect
// after a turn, and time-drift regeneration toward baseline. Grounded on
// the teacher's reaction_logic.go ReactionEngine.CalculateReaction — the
// resilience-derived activation threshold and ReLU-style clamp is reused
// here for how strongly an interaction outcome moves mood/stress.
package emotion

import (
	"math"
	"time"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// Resilience derives a damping factor from a persona's personality traits,
// mirroring the teacher's (100-Neuroticism)/100 formula but falling back
// to a neutral 0.5 when no "neuroticism" trait is present.
func Resilience(traits map[string]float64) float64 {
	if n, ok := traits["neuroticism"]; ok {
		r := (100 - n) / 100.0
		return clamp(r, 0, 1)
	}
	return 0.5
}

// ApplyInteractionEffect mutates s in place given the turn's continue
// score and the persona's resilience, following the same
// threshold-then-clamp shape as CalculateReaction: a raw intensity
// derived from how good/bad the exchange was, damped by an
// activation threshold scaled by resilience.
func ApplyInteractionEffect(s *domain.EmotionalState, continueScore int, resilience float64, now time.Time) {
	rawIntensity := math.Abs(float64(continueScore-50)) / 50.0 * 100 // 0..100
	threshold := 30.0 * resilience
	effective := rawIntensity - threshold
	if effective < 0 {
		effective = 0
	}
	direction := 1.0
	if continueScore < 50 {
		direction = -1.0
	}

	delta := direction * (effective / 100.0) * 0.3
	s.Mood = clamp(s.Mood+delta, -1, 1)

	if continueScore < 40 {
		s.StressLevel = clamp(s.StressLevel+0.1, 0, 1)
	} else if continueScore >= 70 {
		s.StressLevel = clamp(s.StressLevel-0.05, 0, 1)
	}

	s.EnergyLevel = clamp(s.EnergyLevel-0.05, 0, 1)
	s.SocialBattery = clamp(s.SocialBattery-0.08, 0, 1)
	s.Curiosity = clamp(s.Curiosity+0.02*direction, 0, 1)
	s.LastUpdated = now
}

// Drift regenerates a persona's emotional state toward baseline over
// elapsed wall-clock time, called by the same background tick that
// regenerates InteractionState (§3: "regenerated over wall-clock time by
// a background task").
func Drift(s *domain.EmotionalState, elapsed time.Duration, now time.Time) {
	hours := elapsed.Hours()
	if hours <= 0 {
		return
	}
	rate := clamp(hours/6.0, 0, 1) // fully regenerates over ~6 hours

	s.Mood = driftToward(s.Mood, 0, rate)
	s.StressLevel = driftToward(s.StressLevel, 0.2, rate)
	s.EnergyLevel = driftToward(s.EnergyLevel, 0.8, rate)
	s.SocialBattery = driftToward(s.SocialBattery, 0.9, rate)
	s.LastUpdated = now
}

func driftToward(current, baseline, rate float64) float64 {
	return current + (baseline-current)*rate
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
