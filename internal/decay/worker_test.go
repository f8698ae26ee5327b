package decay

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

type fakeMemories struct {
	byPersona map[string][]domain.Memory
	updated   map[string]float64
	pruneCalls []string
	pruneN    int
}

func newFakeMemories() *fakeMemories {
	return &fakeMemories{byPersona: make(map[string][]domain.Memory), updated: make(map[string]float64)}
}

func (f *fakeMemories) ListByPersona(ctx context.Context, personaID string) ([]domain.Memory, error) {
	return f.byPersona[personaID], nil
}

func (f *fakeMemories) UpdateImportance(ctx context.Context, id string, importance float64, decayedAt time.Time) error {
	f.updated[id] = importance
	for persona, mems := range f.byPersona {
		for i := range mems {
			if mems[i].ID == id {
				mems[i].Importance = importance
				mems[i].LastDecayedAt = decayedAt
				f.byPersona[persona] = mems
			}
		}
	}
	return nil
}

func (f *fakeMemories) Prune(ctx context.Context, personaID string, cap int) (int, error) {
	f.pruneCalls = append(f.pruneCalls, personaID)
	return f.pruneN, nil
}

func (f *fakeMemories) PruneRecommendations(ctx context.Context, personaID string, cap int) ([]domain.Memory, error) {
	return nil, nil
}

type fakePersonas struct {
	personas []*domain.Persona
}

func (f fakePersonas) List(ctx context.Context) ([]*domain.Persona, error) {
	return f.personas, nil
}

func TestSweepPersona_DecaysOldMemoriesDownward(t *testing.T) {
	mem := newFakeMemories()
	old := domain.Memory{ID: "m1", PersonaID: "alex", Importance: 0.9, CreatedAt: time.Now().Add(-100 * time.Hour)}
	mem.byPersona["alex"] = []domain.Memory{old}

	w := NewWorker(mem, fakePersonas{}, 0.02, 0.3, 0, zap.NewNop())
	decayed, pruned, err := w.SweepPersona(context.Background(), "alex", 0.02)
	if err != nil {
		t.Fatalf("SweepPersona returned error: %v", err)
	}
	if decayed != 1 {
		t.Fatalf("expected 1 memory decayed, got %d", decayed)
	}
	if pruned != 0 {
		t.Fatalf("expected no pruning with cap=0, got %d", pruned)
	}
	if mem.updated["m1"] >= old.Importance {
		t.Fatalf("expected importance to decrease, got %v (was %v)", mem.updated["m1"], old.Importance)
	}
	if mem.updated["m1"] < 0.1 {
		t.Fatalf("expected importance to stay floored at 0.1, got %v", mem.updated["m1"])
	}
}

func TestSweepPersona_AccessedMemoriesDecaySlower(t *testing.T) {
	mem := newFakeMemories()
	fresh := domain.Memory{ID: "unaccessed", PersonaID: "alex", Importance: 0.9, CreatedAt: time.Now().Add(-200 * time.Hour)}
	accessed := domain.Memory{ID: "accessed", PersonaID: "alex", Importance: 0.9, CreatedAt: time.Now().Add(-200 * time.Hour), AccessedCount: 5}
	mem.byPersona["alex"] = []domain.Memory{fresh, accessed}

	w := NewWorker(mem, fakePersonas{}, 0.02, 0.3, 0, zap.NewNop())
	if _, _, err := w.SweepPersona(context.Background(), "alex", 0.02); err != nil {
		t.Fatalf("SweepPersona returned error: %v", err)
	}

	if mem.updated["accessed"] <= mem.updated["unaccessed"] {
		t.Fatalf("expected an accessed memory to retain more importance than an unaccessed one: accessed=%v unaccessed=%v",
			mem.updated["accessed"], mem.updated["unaccessed"])
	}
}

func TestSweepPersona_PrunesWhenOverCap(t *testing.T) {
	mem := newFakeMemories()
	mem.pruneN = 3
	mems := make([]domain.Memory, 5)
	for i := range mems {
		mems[i] = domain.Memory{ID: "m", Importance: 0.5, CreatedAt: time.Now()}
	}
	mem.byPersona["alex"] = mems

	w := NewWorker(mem, fakePersonas{}, 0.02, 0.3, 3, zap.NewNop())
	_, pruned, err := w.SweepPersona(context.Background(), "alex", 0.02)
	if err != nil {
		t.Fatalf("SweepPersona returned error: %v", err)
	}
	if pruned != 3 {
		t.Fatalf("expected pruned=3, got %d", pruned)
	}
	if len(mem.pruneCalls) != 1 || mem.pruneCalls[0] != "alex" {
		t.Fatalf("expected Prune to be invoked once for alex, got %v", mem.pruneCalls)
	}
}

func TestSweepPersona_RepeatedSweepsDecayByElapsedIntervalNotSinceCreation(t *testing.T) {
	mem := newFakeMemories()
	m := domain.Memory{ID: "m1", PersonaID: "alex", Importance: 0.9, CreatedAt: time.Now()}
	mem.byPersona["alex"] = []domain.Memory{m}

	w := NewWorker(mem, fakePersonas{}, 0.02, 1.0, 0, zap.NewNop())

	// Backdate CreatedAt (LastDecayedAt is still zero, so the sweep measures
	// from CreatedAt) to simulate ten prior one-hour sweep intervals having
	// already elapsed without ever calling SweepPersona, then run a single
	// sweep covering that whole window.
	mem.byPersona["alex"][0].CreatedAt = time.Now().Add(-10 * time.Hour)
	_, _, err := w.SweepPersona(context.Background(), "alex", 0.02)
	if err != nil {
		t.Fatalf("SweepPersona returned error: %v", err)
	}
	singleSweepResult := mem.updated["m1"]

	// Reset and run ten separate one-hour-apart sweeps instead. If the
	// worker correctly measures elapsed time since the last decay (not
	// since creation), a single 10-hour sweep and ten sequential 1-hour
	// sweeps should land on (approximately) the same final importance,
	// since both cover the same total elapsed wall-clock time.
	mem2 := newFakeMemories()
	m2 := domain.Memory{ID: "m1", PersonaID: "alex", Importance: 0.9, CreatedAt: time.Now()}
	mem2.byPersona["alex"] = []domain.Memory{m2}
	w2 := NewWorker(mem2, fakePersonas{}, 0.02, 1.0, 0, zap.NewNop())

	for i := 0; i < 10; i++ {
		mem2.byPersona["alex"][0].LastDecayedAt = time.Now().Add(-1 * time.Hour)
		if _, _, err := w2.SweepPersona(context.Background(), "alex", 0.02); err != nil {
			t.Fatalf("SweepPersona returned error on iteration %d: %v", i, err)
		}
	}
	repeatedSweepResult := mem2.updated["m1"]

	diff := singleSweepResult - repeatedSweepResult
	if diff < 0 {
		diff = -diff
	}
	if diff > 0.01 {
		t.Fatalf("expected repeated incremental sweeps to match one equivalent-duration sweep (no quadratic compounding): single=%v repeated=%v", singleSweepResult, repeatedSweepResult)
	}
	if repeatedSweepResult < 0.1 {
		t.Fatalf("importance collapsed to the floor after only 10 one-hour sweeps at k=0.02 — elapsed time is being measured since creation, not since the last decay")
	}
}

func TestSweep_IteratesAllPersonas(t *testing.T) {
	mem := newFakeMemories()
	mem.byPersona["alex"] = []domain.Memory{{ID: "a1", Importance: 0.9, CreatedAt: time.Now().Add(-50 * time.Hour)}}
	mem.byPersona["priya"] = []domain.Memory{{ID: "p1", Importance: 0.9, CreatedAt: time.Now().Add(-50 * time.Hour)}}

	personas := fakePersonas{personas: []*domain.Persona{{ID: "alex"}, {ID: "priya"}}}
	w := NewWorker(mem, personas, 0.02, 0.3, 0, zap.NewNop())

	decayed, _, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if decayed != 2 {
		t.Fatalf("expected both personas' memories decayed, got %d", decayed)
	}
}

func TestStartStop_UpdatesStatsAndIsIdempotent(t *testing.T) {
	mem := newFakeMemories()
	mem.byPersona["alex"] = []domain.Memory{{ID: "a1", Importance: 0.9, CreatedAt: time.Now().Add(-50 * time.Hour)}}
	personas := fakePersonas{personas: []*domain.Persona{{ID: "alex"}}}
	w := NewWorker(mem, personas, 0.02, 0.3, 0, zap.NewNop())

	w.Start(5 * time.Millisecond)
	w.Start(5 * time.Millisecond) // second call is a no-op
	time.Sleep(30 * time.Millisecond)
	w.Stop()
	w.Stop() // second call is a no-op

	stats := w.Stats()
	if stats.LastRunAt.IsZero() {
		t.Fatal("expected at least one sweep to have run before stopping")
	}
}
