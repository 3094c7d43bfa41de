package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager supervises pipeline runs with exactly-once semantics per
// video id: no two runs for the same id execute concurrently.
type Manager struct {
	mu   sync.Mutex
	runs map[string]*Run
	log  zerolog.Logger
}

// NewManager creates an empty run supervisor.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		runs: make(map[string]*Run),
		log:  log,
	}
}

// Ensure guarantees that a background run for the given id is active.
// If a run is already in flight it returns the existing handle
// (isNew=false); otherwise it starts work in a new goroutine and
// returns the new handle (isNew=true).
func (m *Manager) Ensure(ctx context.Context, id string, work WorkFunc) (*Run, bool) {
	if err := ctx.Err(); err != nil {
		m.log.Debug().Str("id", id).Err(err).Msg("ensure: context already canceled")
		return nil, false
	}

	m.mu.Lock()

	if run, exists := m.runs[id]; exists {
		select {
		case <-run.Done:
			// Run is done but not yet deleted from the map (stale).
			m.log.Debug().Str("id", id).Msg("ensure: cleaning stale run")
			delete(m.runs, id)
		default:
			m.mu.Unlock()
			m.log.Debug().Str("id", id).Msg("ensure: returning existing run")
			return run, false
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := &Run{
		ID:        id,
		StartedAt: time.Now(),
		Done:      make(chan struct{}),
		Cancel:    cancel,
	}
	m.runs[id] = run
	m.mu.Unlock()

	m.log.Info().Str("id", id).Msg("ensure: started new run")
	go m.execute(runCtx, run, work)

	return run, true
}

// Get returns the active run for the given id, or nil if not found.
func (m *Manager) Get(id string) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

// CancelAll stops all active runs. Used during graceful shutdown.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Info().Int("count", len(m.runs)).Msg("canceling all runs")
	for _, run := range m.runs {
		run.Cancel()
	}
}

// WaitAll blocks until every in-flight run finishes or ctx is done.
func (m *Manager) WaitAll(ctx context.Context) {
	m.mu.Lock()
	pending := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		pending = append(pending, run)
	}
	m.mu.Unlock()

	for _, run := range pending {
		select {
		case <-run.Done:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) execute(ctx context.Context, run *Run, work WorkFunc) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Str("id", run.ID).
				Interface("panic", r).
				Msg("pipeline run panicked")
			run.setError(fmt.Errorf("panic: %v", r))
		}

		close(run.Done)

		m.mu.Lock()
		delete(m.runs, run.ID)
		m.mu.Unlock()

		m.log.Info().
			Str("id", run.ID).
			Err(run.Error()).
			Msg("run cleanup complete")
	}()

	if err := work(ctx); err != nil {
		run.setError(err)
	}
}
