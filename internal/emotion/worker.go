package emotion

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// PersonaStore is the subset of store.PersonaRepository the regeneration
// worker needs.
type PersonaStore interface {
	List(ctx context.Context) ([]*domain.Persona, error)
	SaveInteractionState(ctx context.Context, s domain.InteractionState) error
}

// EmotionalStore is the subset of store.EmotionalStateRepository the
// regeneration worker needs.
type EmotionalStore interface {
	Get(ctx context.Context, personaID string) (*domain.EmotionalState, error)
	Upsert(ctx context.Context, s domain.EmotionalState) error
}

// Worker runs the background wall-clock regeneration tick the data model
// calls for: InteractionState is "regenerated over wall-clock time by a
// background task" and EmotionalState is mutated "by time-drift
// regeneration". Grounded on decay.Worker's start/stop ticker shape,
// applied here to the persona side of the same background-task contract
// instead of the memory side.
type Worker struct {
	personas  PersonaStore
	emotional EmotionalStore
	logger    *zap.Logger

	availableTimeCeiling float64
	socialEnergyCeiling  float64

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	lastRun time.Time
}

func NewWorker(personas PersonaStore, emotional EmotionalStore, availableTimeCeiling, socialEnergyCeiling float64, logger *zap.Logger) *Worker {
	return &Worker{
		personas:             personas,
		emotional:            emotional,
		logger:               logger,
		availableTimeCeiling: availableTimeCeiling,
		socialEnergyCeiling:  socialEnergyCeiling,
	}
}

// Start launches the periodic regeneration goroutine; a no-op if already running.
func (w *Worker) Start(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the background regeneration tick; a no-op if not running.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.cancel()
	w.running = false
}

func (w *Worker) tick(ctx context.Context) {
	if err := w.Tick(ctx); err != nil {
		w.logger.Warn("persona regeneration tick failed", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.lastRun = time.Now()
	w.mu.Unlock()
}

// Tick regenerates every persona's InteractionState (available_time,
// social_energy) toward its ceiling and drifts its EmotionalState toward
// baseline, both scaled by elapsed wall-clock time since the state was
// last touched.
func (w *Worker) Tick(ctx context.Context) error {
	personas, err := w.personas.List(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, p := range personas {
		elapsed := now.Sub(p.Interaction.LastUpdated)
		if elapsed > 0 {
			rate := clamp(elapsed.Hours()/6.0, 0, 1) // fully regenerates over ~6 hours, matching Drift's baseline-recovery window
			p.Interaction.AvailableTime = driftToward(p.Interaction.AvailableTime, w.availableTimeCeiling, rate)
			p.Interaction.SocialEnergy = driftToward(p.Interaction.SocialEnergy, w.socialEnergyCeiling, rate)
			p.Interaction.LastUpdated = now
			if err := w.personas.SaveInteractionState(ctx, p.Interaction); err != nil {
				return err
			}
		}

		es, err := w.emotional.Get(ctx, p.ID)
		if err != nil || es == nil {
			continue
		}
		esElapsed := now.Sub(es.LastUpdated)
		if esElapsed <= 0 {
			continue
		}
		Drift(es, esElapsed, now)
		if err := w.emotional.Upsert(ctx, *es); err != nil {
			return err
		}
	}
	return nil
}

// LastRun reports when the most recent tick completed, zero if none has run yet.
func (w *Worker) LastRun() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun
}
