package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/attendance/internal/capture"
	"github.com/your-org/attendance/internal/observability"
)

// OpenFunc opens a fresh capture source for one run attempt.
type OpenFunc func(ctx context.Context) (capture.Source, error)

type RunState string

const (
	StateStarting RunState = "starting"
	StateRunning  RunState = "running"
	StateStopped  RunState = "stopped"
	StateFailed   RunState = "failed"
)

// Status is a point-in-time view of the runner for the admin surface.
type Status struct {
	State     RunState `json:"state"`
	Restarts  int      `json:"restarts"`
	LastError string   `json:"last_error,omitempty"`
}

// Runner drives a Pipeline over capture sources, reopening the source with
// exponential backoff after a capture failure. With zero retries a capture
// failure ends the run.
type Runner struct {
	pipeline   *Pipeline
	open       OpenFunc
	maxRetries int
	baseDelay  time.Duration
	onStop     func()

	mu     sync.RWMutex
	status Status

	done     chan struct{}
	doneOnce sync.Once
}

// NewRunner creates a runner. onStop, if set, runs once when Run returns;
// the service uses it to end every live viewer.
func NewRunner(p *Pipeline, open OpenFunc, maxRetries int, onStop func()) *Runner {
	return &Runner{
		pipeline:   p,
		open:       open,
		maxRetries: maxRetries,
		baseDelay:  2 * time.Second,
		onStop:     onStop,
		status:     Status{State: StateStarting},
		done:       make(chan struct{}),
	}
}

// Run blocks until the source is exhausted, retries are used up or ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	defer r.doneOnce.Do(func() { close(r.done) })
	if r.onStop != nil {
		defer r.onStop()
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.baseDelay * time.Duration(1<<uint(attempt-1)) // 2s, 4s, 8s...
			slog.Warn("restarting capture",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			observability.CaptureRestarts.Inc()
			r.setStatus(func(s *Status) { s.Restarts = attempt })

			select {
			case <-ctx.Done():
				r.setState(StateStopped, nil)
				return nil
			case <-time.After(delay):
			}
		}

		src, err := r.open(ctx)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				r.setState(StateStopped, nil)
				return nil
			}
			slog.Error("open capture source", "attempt", attempt, "error", err)
			continue
		}

		r.setState(StateRunning, nil)
		err = r.pipeline.Run(ctx, src)
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			r.setState(StateStopped, nil)
			slog.Info("pipeline stopped")
			return nil
		}

		lastErr = err
		slog.Error("pipeline failed", "attempt", attempt, "error", err)
	}

	r.setState(StateFailed, lastErr)
	return lastErr
}

// Wait blocks until Run has returned, with the capture source closed and the
// vision capability no longer in use, or until ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Runner) setState(state RunState, err error) {
	r.setStatus(func(s *Status) {
		s.State = state
		s.LastError = ""
		if err != nil {
			s.LastError = err.Error()
		}
	})
}

func (r *Runner) setStatus(fn func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status)
}
