// Package decay runs the hourly importance-decay sweep and the
// cap-triggered pruning pass described in §4.8. The ticker-driven,
// explicitly cancellable background task is grounded on
// goblincore-geoffreyengram's decay_worker.go startDecayWorker, adapted
// from its single always-on sweep into a start/stop-controlled worker
// (per the spec's decay_start/decay_stop/decay_force operator surface)
// and from one flat decay formula into the per-persona, access-protected
// exponential decay §4.8 specifies.
package decay

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// MemoryManager is the subset of internal/memory.Manager the worker needs.
type MemoryManager interface {
	ListByPersona(ctx context.Context, personaID string) ([]domain.Memory, error)
	UpdateImportance(ctx context.Context, id string, importance float64, decayedAt time.Time) error
	Prune(ctx context.Context, personaID string, cap int) (int, error)
	PruneRecommendations(ctx context.Context, personaID string, cap int) ([]domain.Memory, error)
}

// PersonaLister supplies the set of personas to sweep.
type PersonaLister interface {
	List(ctx context.Context) ([]*domain.Persona, error)
}

// Stats reports the outcome of the most recently completed sweep.
type Stats struct {
	LastRunAt      time.Time
	MemoriesDecayed int
	MemoriesPruned  int
	LastError       string
}

// Worker owns the decay/prune background task lifecycle.
type Worker struct {
	memories MemoryManager
	personas PersonaLister
	logger   *zap.Logger

	k               float64
	accessProtection float64
	cap             int

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	stats   Stats
}

func NewWorker(memories MemoryManager, personas PersonaLister, k, accessProtection float64, cap int, logger *zap.Logger) *Worker {
	return &Worker{
		memories:         memories,
		personas:         personas,
		logger:           logger,
		k:                k,
		accessProtection: accessProtection,
		cap:              cap,
	}
}

// Start launches the periodic sweep goroutine; a no-op if already running.
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
				w.runSweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the background sweep; a no-op if not running.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.cancel()
	w.running = false
}

// Stats returns a snapshot of the worker's last completed sweep.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) runSweep(ctx context.Context) {
	decayed, pruned, err := w.Sweep(ctx)
	w.mu.Lock()
	w.stats = Stats{LastRunAt: time.Now(), MemoriesDecayed: decayed, MemoriesPruned: pruned}
	if err != nil {
		w.stats.LastError = err.Error()
		w.logger.Warn("decay sweep error", zap.Error(err))
	} else if decayed > 0 || pruned > 0 {
		w.logger.Info("decay sweep complete", zap.Int("decayed", decayed), zap.Int("pruned", pruned))
	}
	w.mu.Unlock()
}

// Sweep decays every persona's memories once and prunes any persona whose
// collection exceeds cap afterward.
func (w *Worker) Sweep(ctx context.Context) (decayed, pruned int, err error) {
	personas, err := w.personas.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, persona := range personas {
		d, p, err := w.SweepPersona(ctx, persona.ID, w.k)
		if err != nil {
			return decayed, pruned, err
		}
		decayed += d
		pruned += p
	}
	return decayed, pruned, nil
}

// SweepPersona decays one persona's memories by the given factor and
// triggers pruning if the collection exceeds cap afterward. Exposed
// separately to back decay_force, which supplies an operator-chosen k.
func (w *Worker) SweepPersona(ctx context.Context, personaID string, k float64) (decayed, pruned int, err error) {
	mems, err := w.memories.ListByPersona(ctx, personaID)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now()
	for _, m := range mems {
		since := m.CreatedAt
		if !m.LastDecayedAt.IsZero() {
			since = m.LastDecayedAt
		}
		elapsedHours := now.Sub(since).Hours()
		if elapsedHours <= 0 {
			continue
		}
		protection := 1.0
		if m.AccessedCount > 0 {
			protection = w.accessProtection
		}
		factor := math.Exp(-k * protection * elapsedHours)
		newImportance := clamp(m.Importance*factor, 0.1, 1.0)
		if err := w.memories.UpdateImportance(ctx, m.ID, newImportance, now); err != nil {
			return decayed, pruned, err
		}
		if newImportance != m.Importance {
			decayed++
		}
	}

	if w.cap > 0 && len(mems) > w.cap {
		n, err := w.memories.Prune(ctx, personaID, w.cap)
		if err != nil {
			return decayed, pruned, err
		}
		pruned = n
	}
	return decayed, pruned, nil
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
