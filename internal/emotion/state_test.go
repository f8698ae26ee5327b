package emotion

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

func TestResilience_DerivesFromNeuroticism(t *testing.T) {
	low := Resilience(map[string]float64{"neuroticism": 80})
	high := Resilience(map[string]float64{"neuroticism": 10})
	if low >= high {
		t.Fatalf("expected higher neuroticism to yield lower resilience: low=%v high=%v", low, high)
	}
	if got := Resilience(map[string]float64{}); got != 0.5 {
		t.Fatalf("expected neutral 0.5 resilience with no neuroticism trait, got %v", got)
	}
}

func TestApplyInteractionEffect_HighScoreImprovesMoodAndLowersStress(t *testing.T) {
	now := time.Now()
	s := &domain.EmotionalState{Mood: 0, StressLevel: 0.5, EnergyLevel: 0.8, SocialBattery: 0.9, Curiosity: 0.5}
	ApplyInteractionEffect(s, 95, 0.5, now)

	if s.Mood <= 0 {
		t.Fatalf("expected mood to improve on a high continue score, got %v", s.Mood)
	}
	if s.StressLevel >= 0.5 {
		t.Fatalf("expected stress to decrease on a high continue score, got %v", s.StressLevel)
	}
	if !s.LastUpdated.Equal(now) {
		t.Fatalf("expected LastUpdated to be set to now")
	}
}

func TestApplyInteractionEffect_LowScoreWorsensMoodAndRaisesStress(t *testing.T) {
	now := time.Now()
	s := &domain.EmotionalState{Mood: 0, StressLevel: 0.2, EnergyLevel: 0.8, SocialBattery: 0.9, Curiosity: 0.5}
	ApplyInteractionEffect(s, 5, 0.5, now)

	if s.Mood >= 0 {
		t.Fatalf("expected mood to worsen on a low continue score, got %v", s.Mood)
	}
	if s.StressLevel <= 0.2 {
		t.Fatalf("expected stress to increase on a low continue score, got %v", s.StressLevel)
	}
}

func TestApplyInteractionEffect_HighResilienceDampensSmallSwings(t *testing.T) {
	now := time.Now()
	resilient := &domain.EmotionalState{Mood: 0, EnergyLevel: 0.8, SocialBattery: 0.9}
	fragile := &domain.EmotionalState{Mood: 0, EnergyLevel: 0.8, SocialBattery: 0.9}

	ApplyInteractionEffect(resilient, 60, 1.0, now)
	ApplyInteractionEffect(fragile, 60, 0.0, now)

	if abs(resilient.Mood) >= abs(fragile.Mood) {
		t.Fatalf("expected high resilience to dampen a mild swing more than zero resilience: resilient=%v fragile=%v", resilient.Mood, fragile.Mood)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestDrift_RegeneratesTowardBaselineOverElapsedTime(t *testing.T) {
	now := time.Now()
	s := &domain.EmotionalState{Mood: -0.8, StressLevel: 0.9, EnergyLevel: 0.1, SocialBattery: 0.1, LastUpdated: now.Add(-3 * time.Hour)}
	Drift(s, 3*time.Hour, now)

	if s.Mood <= -0.8 || s.Mood >= 0 {
		t.Fatalf("expected mood to drift partway toward 0, got %v", s.Mood)
	}
	if s.EnergyLevel <= 0.1 {
		t.Fatalf("expected energy to drift upward toward its 0.8 baseline, got %v", s.EnergyLevel)
	}
	if !s.LastUpdated.Equal(now) {
		t.Fatalf("expected LastUpdated to advance to now")
	}
}

func TestDrift_NoOpForNonPositiveElapsed(t *testing.T) {
	s := &domain.EmotionalState{Mood: -0.5}
	Drift(s, 0, time.Now())
	if s.Mood != -0.5 {
		t.Fatalf("expected no change for zero elapsed duration, got %v", s.Mood)
	}
}

type fakePersonaStore struct {
	personas []*domain.Persona
	saved    []domain.InteractionState
}

func (f *fakePersonaStore) List(ctx context.Context) ([]*domain.Persona, error) {
	return f.personas, nil
}

func (f *fakePersonaStore) SaveInteractionState(ctx context.Context, s domain.InteractionState) error {
	f.saved = append(f.saved, s)
	for _, p := range f.personas {
		if p.ID == s.PersonaID {
			p.Interaction = s
		}
	}
	return nil
}

type fakeEmotionalStore struct {
	byPersona map[string]*domain.EmotionalState
}

func (f *fakeEmotionalStore) Get(ctx context.Context, personaID string) (*domain.EmotionalState, error) {
	return f.byPersona[personaID], nil
}

func (f *fakeEmotionalStore) Upsert(ctx context.Context, s domain.EmotionalState) error {
	f.byPersona[s.PersonaID] = &s
	return nil
}

func TestWorkerTick_RegeneratesAvailableTimeAndSocialEnergyTowardCeiling(t *testing.T) {
	now := time.Now()
	p := &domain.Persona{ID: "alex", Interaction: domain.InteractionState{
		PersonaID:     "alex",
		AvailableTime: 0,
		SocialEnergy:  0,
		LastUpdated:   now.Add(-6 * time.Hour),
	}}
	personas := &fakePersonaStore{personas: []*domain.Persona{p}}
	emotional := &fakeEmotionalStore{byPersona: map[string]*domain.EmotionalState{
		"alex": {PersonaID: "alex", Mood: -0.9, LastUpdated: now.Add(-6 * time.Hour)},
	}}

	w := NewWorker(personas, emotional, 3600, 150, zap.NewNop())
	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}

	if len(personas.saved) != 1 {
		t.Fatalf("expected exactly one SaveInteractionState call, got %d", len(personas.saved))
	}
	got := personas.saved[0]
	if got.AvailableTime <= 0 {
		t.Fatalf("expected available_time to regenerate upward over a full 6h window, got %v", got.AvailableTime)
	}
	if got.SocialEnergy <= 0 {
		t.Fatalf("expected social_energy to regenerate upward over a full 6h window, got %v", got.SocialEnergy)
	}

	es := emotional.byPersona["alex"]
	if es.Mood <= -0.9 {
		t.Fatalf("expected mood to drift toward baseline after a full regeneration window, got %v", es.Mood)
	}
}

func TestWorkerTick_SkipsPersonaWithNoElapsedTime(t *testing.T) {
	now := time.Now()
	// Tick reads its own, later clock; a LastUpdated after that reading
	// leaves no elapsed time to regenerate over.
	p := &domain.Persona{ID: "alex", Interaction: domain.InteractionState{PersonaID: "alex", AvailableTime: 10, SocialEnergy: 10, LastUpdated: now.Add(time.Minute)}}
	personas := &fakePersonaStore{personas: []*domain.Persona{p}}
	emotional := &fakeEmotionalStore{byPersona: map[string]*domain.EmotionalState{}}

	w := NewWorker(personas, emotional, 3600, 150, zap.NewNop())
	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if len(personas.saved) != 0 {
		t.Fatalf("expected no save for a persona with zero elapsed time, got %d", len(personas.saved))
	}
}

func TestWorkerStartStop_IsIdempotentAndRunsAtLeastOnce(t *testing.T) {
	now := time.Now()
	p := &domain.Persona{ID: "alex", Interaction: domain.InteractionState{PersonaID: "alex", AvailableTime: 0, SocialEnergy: 0, LastUpdated: now.Add(-1 * time.Hour)}}
	personas := &fakePersonaStore{personas: []*domain.Persona{p}}
	emotional := &fakeEmotionalStore{byPersona: map[string]*domain.EmotionalState{}}

	w := NewWorker(personas, emotional, 3600, 150, zap.NewNop())
	w.Start(5 * time.Millisecond)
	w.Start(5 * time.Millisecond) // second call is a no-op
	time.Sleep(30 * time.Millisecond)
	w.Stop()
	w.Stop() // second call is a no-op

	if w.LastRun().IsZero() {
		t.Fatal("expected at least one tick to have run before stopping")
	}
}
