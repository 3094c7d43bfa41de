package pipeline

import (
	"context"
	"sync"
	"time"
)

// WorkFunc is the unit of execution for the manager.
type WorkFunc func(ctx context.Context) error

// Run represents an active or completed pipeline run for one video.
type Run struct {
	ID        string
	StartedAt time.Time

	// Done is closed when the run completes (success or failure).
	Done chan struct{}

	// Cancel stops the run's context, killing in-flight tool processes.
	Cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (r *Run) setError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Error returns the run's terminal error. Immutable after Done closes.
func (r *Run) Error() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Wait blocks until the run completes or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.Done:
		return r.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
