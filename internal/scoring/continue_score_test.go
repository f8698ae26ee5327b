package scoring

import (
	"testing"

	"github.com/saltydev0331/persona-mcp-sub000/internal/config"
	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

func testEngine() *Engine {
	return NewEngine(config.ConversationConfig{
		MaxTimeScore:        30,
		MaxTopicScore:       25,
		MaxSocialScore:      20,
		MaxFatiguePenalty:   15,
		MaxResourceScore:    10,
		UrgentDecayRate:     60,
		ImportantDecayRate:  180,
		CasualDecayRate:     600,
		StatusHierarchy:     []string{"junior", "mid", "senior", "executive"},
		SameStatusCompatibility:     10,
		AdjacentStatusCompatibility: 8,
		DistantStatusCompatibility:  3,
		DefaultStatusCompatibility:  5,
		LargeStatusGapThreshold:     2,
	})
}

func testPersona(rank string, charisma int) *domain.Persona {
	return &domain.Persona{
		SocialRank: rank,
		Charisma:   charisma,
		TopicPreferences: map[string]float64{
			"weather": 80,
		},
		Interaction: domain.InteractionState{
			CurrentPriority: domain.PriorityCasual,
			AvailableTime:   120,
			SocialEnergy:    100,
		},
	}
}

func TestScore_FreshConversationHighScore(t *testing.T) {
	e := testEngine()
	speaker := testPersona("senior", 15)
	other := testPersona("senior", 15)

	b := e.Score(Input{
		Speaker:         speaker,
		Other:           other,
		DurationSeconds: 0,
		TokenBudget:     500,
	})

	if b.Total <= 50 {
		t.Fatalf("expected a high continue score for a fresh, compatible pair, got %d (%+v)", b.Total, b)
	}
}

func TestScore_ClampedToZeroAndHundred(t *testing.T) {
	e := testEngine()
	speaker := testPersona("junior", 1)
	speaker.Interaction.InteractionFatigue = 1000
	speaker.Interaction.AvailableTime = 0
	speaker.Interaction.SocialEnergy = 0
	other := testPersona("executive", 1)

	b := e.Score(Input{Speaker: speaker, Other: other, DurationSeconds: 10000, TokenBudget: 0})
	if b.Total < 0 || b.Total > 100 {
		t.Fatalf("total must stay within [0,100], got %d", b.Total)
	}
}

func TestScore_TopicDriftPenalizesAlignment(t *testing.T) {
	e := testEngine()
	speaker := testPersona("senior", 15)
	other := testPersona("senior", 15)

	withoutDrift := e.Score(Input{Speaker: speaker, Other: other, TokenBudget: 500, TopicDriftCount: 0})
	withDrift := e.Score(Input{Speaker: speaker, Other: other, TokenBudget: 500, TopicDriftCount: 5})

	if withDrift.TopicAlignment >= withoutDrift.TopicAlignment {
		t.Fatalf("expected topic drift to reduce alignment score: without=%v with=%v", withoutDrift.TopicAlignment, withDrift.TopicAlignment)
	}
}

func TestScore_UrgentPriorityDecaysFasterThanCasual(t *testing.T) {
	e := testEngine()
	urgent := testPersona("senior", 15)
	urgent.Interaction.CurrentPriority = domain.PriorityUrgent
	casual := testPersona("senior", 15)
	casual.Interaction.CurrentPriority = domain.PriorityCasual
	other := testPersona("senior", 15)

	urgentScore := e.Score(Input{Speaker: urgent, Other: other, DurationSeconds: 120, TokenBudget: 500})
	casualScore := e.Score(Input{Speaker: casual, Other: other, DurationSeconds: 120, TokenBudget: 500})

	if urgentScore.TimePressure >= casualScore.TimePressure {
		t.Fatalf("expected urgent priority to decay faster than casual: urgent=%v casual=%v", urgentScore.TimePressure, casualScore.TimePressure)
	}
}

func TestTimePressure_LinearPointSubtractionMatchesOriginalFormula(t *testing.T) {
	e := testEngine()
	urgent := testPersona("senior", 15)
	urgent.Interaction.CurrentPriority = domain.PriorityUrgent
	other := testPersona("senior", 15)

	b := e.Score(Input{Speaker: urgent, Other: other, DurationSeconds: 120, TokenBudget: 500})

	// original: decay_rate = duration / rate; max(0, base_score - decay_rate)
	// base_score=30, duration=120, rate=60 -> decay_rate=2 -> 30-2=28
	want := 28.0
	if b.TimePressure != want {
		t.Fatalf("expected linear point subtraction to give TimePressure=%v, got %v", want, b.TimePressure)
	}
}

func TestScore_RelationshipModifierRewardsPositiveStrength(t *testing.T) {
	e := testEngine()
	speaker := testPersona("senior", 15)
	other := testPersona("senior", 15)

	friendly := &domain.Relationship{Affinity: 0.8, Trust: 0.8, Respect: 0.8, Intimacy: 0.5}
	hostile := &domain.Relationship{Affinity: -0.8, Trust: -0.8, Respect: -0.8, Intimacy: 0}

	friendlyScore := e.Score(Input{Speaker: speaker, Other: other, Relationship: friendly, TokenBudget: 500})
	hostileScore := e.Score(Input{Speaker: speaker, Other: other, Relationship: hostile, TokenBudget: 500})

	if friendlyScore.RelationshipModifier <= hostileScore.RelationshipModifier {
		t.Fatalf("expected a friendly relationship to score higher than a hostile one: friendly=%v hostile=%v",
			friendlyScore.RelationshipModifier, hostileScore.RelationshipModifier)
	}
}

func TestScore_NoRelationshipIsNeutral(t *testing.T) {
	e := testEngine()
	speaker := testPersona("senior", 15)
	other := testPersona("senior", 15)

	b := e.Score(Input{Speaker: speaker, Other: other, TokenBudget: 500})
	if b.RelationshipModifier != 0 {
		t.Fatalf("expected zero relationship modifier with no relationship, got %v", b.RelationshipModifier)
	}
}

func TestStatusCompatibility_Tiers(t *testing.T) {
	e := testEngine()
	same := e.statusCompatibility("senior", "senior")
	adjacent := e.statusCompatibility("mid", "senior")
	distant := e.statusCompatibility("junior", "executive")

	if same <= adjacent || adjacent <= distant {
		t.Fatalf("expected same > adjacent > distant compatibility, got same=%v adjacent=%v distant=%v", same, adjacent, distant)
	}
}

func TestGetCompatibilityScore_SharedInterestsAndTraits(t *testing.T) {
	a := &domain.Persona{
		SocialRank:        "senior",
		Charisma:          15,
		PersonalityTraits: map[string]float64{"extraversion": 70, "openness": 60},
		TopicPreferences:  map[string]float64{"music": 80, "travel": 60},
	}
	b := &domain.Persona{
		SocialRank:        "senior",
		Charisma:          12,
		PersonalityTraits: map[string]float64{"extraversion": 65, "openness": 55},
		TopicPreferences:  map[string]float64{"music": 75, "cooking": 40},
	}

	c := GetCompatibilityScore(a, b)
	if c.Overall <= 0.5 {
		t.Fatalf("expected a reasonably high overall score for similar/compatible personas, got %v", c.Overall)
	}
	if len(c.RecommendedTopics) != 1 || c.RecommendedTopics[0] != "music" {
		t.Fatalf("expected shared topic 'music' only, got %v", c.RecommendedTopics)
	}
	for _, challenge := range c.Challenges {
		if challenge == "status gap" {
			t.Fatalf("did not expect a status gap challenge for matching ranks")
		}
	}
}

func TestGetCompatibilityScore_FlagsStatusGapAndFewInterests(t *testing.T) {
	a := &domain.Persona{
		SocialRank:        "junior",
		Charisma:          5,
		PersonalityTraits: map[string]float64{"extraversion": 10},
		TopicPreferences:  map[string]float64{"gardening": 90},
	}
	b := &domain.Persona{
		SocialRank:        "executive",
		Charisma:          18,
		PersonalityTraits: map[string]float64{"extraversion": 95},
		TopicPreferences:  map[string]float64{"finance": 90},
	}

	c := GetCompatibilityScore(a, b)
	hasStatusGap := false
	hasFewInterests := false
	for _, challenge := range c.Challenges {
		if challenge == "status gap" {
			hasStatusGap = true
		}
		if challenge == "few shared interests" {
			hasFewInterests = true
		}
	}
	if !hasStatusGap {
		t.Fatalf("expected a status gap challenge, got %v", c.Challenges)
	}
	if !hasFewInterests {
		t.Fatalf("expected a few-shared-interests challenge, got %v", c.Challenges)
	}
}
