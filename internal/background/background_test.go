package background

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestRunner() (*Runner, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewRunner(logger), &buf
}

func TestGoRunsTask(t *testing.T) {
	r, _ := newTestRunner()
	var ran atomic.Bool

	r.Go(context.Background(), "mark", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	r.Wait()

	if !ran.Load() {
		t.Fatal("task did not run")
	}
}

func TestFailureIsLoggedNotRetried(t *testing.T) {
	r, buf := newTestRunner()
	var calls atomic.Int32

	r.Go(context.Background(), "flaky", func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("upstream unreachable")
	})
	r.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("task ran %d times, want exactly 1 (no retries)", got)
	}
	out := buf.String()
	if !strings.Contains(out, "background task failed") || !strings.Contains(out, "flaky") {
		t.Fatalf("failure not logged: %q", out)
	}
}

func TestPanicIsContained(t *testing.T) {
	r, buf := newTestRunner()

	r.Go(context.Background(), "boom", func(ctx context.Context) error {
		panic("exploded")
	})
	r.Wait()

	if !strings.Contains(buf.String(), "background task panicked") {
		t.Fatalf("panic not logged: %q", buf.String())
	}
}

func TestWaitDrainsAllTasks(t *testing.T) {
	r, _ := newTestRunner()
	var done atomic.Int32

	for i := 0; i < 20; i++ {
		r.Go(context.Background(), "bulk", func(ctx context.Context) error {
			done.Add(1)
			return nil
		})
	}
	r.Wait()

	if got := done.Load(); got != 20 {
		t.Fatalf("drained %d tasks, want 20", got)
	}
}
