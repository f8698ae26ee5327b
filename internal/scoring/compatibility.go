package scoring

import (
	"sort"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// Compatibility is the supplemented relationship-compatibility report
// (§5 of SPEC_FULL.md), factored out of the continue-score engine so the
// relationship manager can surface it independently, mirroring how
// original_source's relationships/compatibility.py keeps compatibility
// scoring separate from the main relationship manager.
type Compatibility struct {
	PersonalityScore float64
	SocialScore      float64
	InterestScore    float64
	Overall          float64
	SuggestedStyle   string
	RecommendedTopics []string
	Challenges       []string
}

// GetCompatibilityScore computes a compatibility report between two
// personas from trait, rank, and topic-preference data.
func GetCompatibilityScore(a, b *domain.Persona) Compatibility {
	personality := traitCompatibility(a.PersonalityTraits, b.PersonalityTraits)
	social := float64(minInt(a.Charisma, b.Charisma)) / 20.0
	interest, topics := sharedTopics(a.TopicPreferences, b.TopicPreferences)

	overall := 0.4*personality + 0.3*social + 0.3*interest

	c := Compatibility{
		PersonalityScore:  personality,
		SocialScore:       social,
		InterestScore:     interest,
		Overall:           overall,
		RecommendedTopics: topics,
	}

	switch {
	case overall >= 0.7:
		c.SuggestedStyle = "warm and open"
	case overall >= 0.4:
		c.SuggestedStyle = "polite and measured"
	default:
		c.SuggestedStyle = "cautious"
	}

	if personality < 0.3 {
		c.Challenges = append(c.Challenges, "clashing temperaments")
	}
	if interest < 0.2 {
		c.Challenges = append(c.Challenges, "few shared interests")
	}
	if a.SocialRank != b.SocialRank {
		c.Challenges = append(c.Challenges, "status gap")
	}

	return c
}

func traitCompatibility(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.5
	}
	var sum, n float64
	for trait, va := range a {
		if vb, ok := b[trait]; ok {
			diff := va - vb
			if diff < 0 {
				diff = -diff
			}
			sum += 1 - clamp(diff/100.0, 0, 1)
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return sum / n
}

func sharedTopics(a, b map[string]float64) (float64, []string) {
	var shared []string
	var sum float64
	for topic, pa := range a {
		if pb, ok := b[topic]; ok {
			shared = append(shared, topic)
			sum += (pa + pb) / 200.0
		}
	}
	sort.Strings(shared)
	if len(shared) == 0 {
		return 0, nil
	}
	return sum / float64(len(shared)), shared
}
