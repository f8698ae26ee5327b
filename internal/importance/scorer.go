// Package importance implements the deterministic importance scorer from
// §4.3: a pure function over six additive, independently-bounded
// components. Built fresh against the formula spec.md distills from
// persona_mcp/memory/importance_scorer.py (see original_source/); the
// keyword-lexicon/regex-pattern texture follows the teacher's
// analysis_service.go/narrative_rules.go approach to text classification,
// adapted from an LLM call into pure Go matching so the scorer stays
// synchronous and deterministic per §5's "no CPU-heavy work off the hot
// path" constraint.
package importance

import (
	"regexp"
	"strings"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// Context carries the inputs the scorer needs beyond the raw content.
type Context struct {
	Speaker          *domain.Persona
	ContinueScore    int // 0-100, 0 if unknown/not yet computed
	TurnWordCount    int
	Relationship     *domain.Relationship
	TopicPreferences map[string]float64 // speaker's or listener's, caller's choice
}

// Score computes importance ∈ [0.1, 1.0] for a piece of memory content.
func Score(content string, ctx Context) float64 {
	raw := 0.30 +
		0.25*emotionalScore(content) +
		0.20*contextScore(content, ctx) +
		0.15*interestAlignment(content, ctx.TopicPreferences) +
		0.10*engagementSignals(content) +
		0.10*relationshipFactor(ctx.Relationship) +
		0.05*recencyBonus()

	return clamp(raw, 0.1, 1.0)
}

// WithTypeMultiplier re-clamps importance after applying the post-hoc
// memory-type multiplier table.
func WithTypeMultiplier(importance float64, t domain.MemoryType) float64 {
	mult, ok := domain.TypeMultiplier[t]
	if !ok {
		mult = 1.0
	}
	return clamp(importance*mult, 0.1, 1.0)
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

// --- emotional_score ---

var highIntensityWords = []string{"devastated", "ecstatic", "terrified", "furious", "heartbroken", "thrilled", "betrayed", "overjoyed"}
var mediumIntensityWords = []string{"sad", "happy", "angry", "worried", "excited", "nervous", "upset", "proud"}
var lowIntensityWords = []string{"fine", "okay", "alright", "so-so", "mild", "slightly"}

func emotionalScore(content string) float64 {
	lower := strings.ToLower(content)
	score := 0.0

	if containsAny(lower, highIntensityWords) {
		score = 0.9
	} else if containsAny(lower, mediumIntensityWords) {
		score = 0.65
	} else if containsAny(lower, lowIntensityWords) {
		score = 0.3
	}

	exclamations := strings.Count(content, "!")
	if exclamations >= 3 && score < 0.8 {
		score = 0.8
	}

	if ratio := capsRatio(content); ratio > 0.3 && score < 0.7 {
		score = 0.7
	}

	return clamp(score, 0, 1)
}

func containsAny(haystack string, words []string) bool {
	for _, w := range words {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}

func capsRatio(content string) float64 {
	letters, caps := 0, 0
	for _, r := range content {
		if r >= 'a' && r <= 'z' {
			letters++
		} else if r >= 'A' && r <= 'Z' {
			letters++
			caps++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(caps) / float64(letters)
}

// --- context_score ---

var contextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(emergency|urgent|help me)\b`),
	regexp.MustCompile(`(?i)\b(secret|don't tell|between us)\b`),
	regexp.MustCompile(`(?i)\b(for the first time|first time)\b`),
	regexp.MustCompile(`(?i)\b(i promise|i swear)\b`),
	regexp.MustCompile(`(?i)\b(argument|fight|conflict|disagree)\b`),
}

func contextScore(content string, ctx Context) float64 {
	score := 0.0
	for _, re := range contextPatterns {
		if re.MatchString(content) {
			score += 0.2
		}
	}
	if ctx.ContinueScore >= 80 {
		score += 0.2
	} else if ctx.ContinueScore >= 60 {
		score += 0.1
	}
	return clamp(score, 0, 1)
}

// --- interest_alignment ---

func interestAlignment(content string, prefs map[string]float64) float64 {
	lower := strings.ToLower(content)
	best := 0.0
	for topic, pref := range prefs {
		if topic == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(topic)) {
			normalized := pref / 100.0
			if normalized > best {
				best = normalized
			}
		}
	}
	if best == 0 {
		return 0.3 // trait default fallback
	}
	return clamp(best, 0, 1)
}

// --- engagement_signals ---

var infoSeekingPhrases = []string{"why", "how come", "what if", "tell me more", "explain"}
var opinionWords = []string{"i think", "i believe", "in my opinion", "honestly"}

func engagementSignals(content string) float64 {
	lower := strings.ToLower(content)
	score := 0.0

	score += 0.1 * float64(minInt(strings.Count(content, "?"), 3))
	score += 0.1 * float64(minInt(strings.Count(content, "!"), 2))

	if containsAny(lower, infoSeekingPhrases) {
		score += 0.2
	}
	if containsAny(lower, opinionWords) {
		score += 0.15
	}

	words := len(strings.Fields(content))
	switch {
	case words >= 50:
		score += 0.3
	case words >= 20:
		score += 0.2
	case words >= 10:
		score += 0.1
	}

	return clamp(score, 0, 1)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// --- relationship_factor ---

func relationshipFactor(rel *domain.Relationship) float64 {
	if rel == nil {
		return 0.3
	}
	strength := rel.Strength()
	if strength < 0 {
		strength = -strength
	}
	switch {
	case strength >= 0.8:
		return 0.9
	case strength >= 0.6:
		return 0.7
	default:
		return 0.5
	}
}

// --- recency_bonus ---

// recencyBonus is a fixed contribution; the scorer has no access to a
// broader recency window at call time (each call concerns one fresh
// piece of content), so this always contributes its full weight. Kept as
// a named component for readability and to mirror the formula's shape.
func recencyBonus() float64 {
	return 1.0
}
