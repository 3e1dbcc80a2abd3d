// Package background runs best-effort side tasks. A task failure is
// logged and dropped: it is never retried and never surfaced to the
// operation that spawned it.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Runner dispatches fire-and-forget tasks.
type Runner struct {
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRunner returns a Runner logging through logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Go runs fn on its own goroutine. An error or a panic from fn is
// logged under name and discarded; callers proceed regardless of the
// outcome.
func (r *Runner) Go(ctx context.Context, name string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked",
					"task", name,
					"panic", fmt.Sprint(rec))
			}
		}()
		if err := fn(ctx); err != nil {
			r.logger.Warn("background task failed",
				"task", name,
				"error", err)
		}
	}()
}

// Wait blocks until every dispatched task has returned. Used on
// shutdown so in-flight best-effort work can finish draining.
func (r *Runner) Wait() {
	r.wg.Wait()
}
