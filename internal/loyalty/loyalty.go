// Package loyalty computes milestone progress from a customer's total
// purchase count. The first bonus unlocks at 3 purchases; after that
// a new milestone comes every 4 purchases, producing a sawtooth
// progress curve.
package loyalty

import (
	"log/slog"
	"sync"

	"orderflow/internal/localstore"
)

// Milestones describes the customer's position on the loyalty curve.
type Milestones struct {
	Previous  int     `json:"previous"`  // last milestone reached (0 before the first)
	Next      int     `json:"next"`      // purchase count that unlocks the next bonus
	Progress  float64 `json:"progress"`  // [0,1] toward Next
	Remaining int     `json:"remaining"` // purchases left until Next
}

// Milestone cadence: first at 3 purchases, every 4 thereafter.
const (
	firstMilestone = 3
	cycleWidth     = 4
)

// ComputeMilestones derives milestone progress from a total purchase
// count. Pure; negative inputs behave as zero.
func ComputeMilestones(totalPurchases int) Milestones {
	if totalPurchases <= 0 {
		return Milestones{Previous: 0, Next: firstMilestone, Progress: 0, Remaining: firstMilestone}
	}

	if totalPurchases < firstMilestone {
		return Milestones{
			Previous:  0,
			Next:      firstMilestone,
			Progress:  clamp01(float64(totalPurchases) / firstMilestone),
			Remaining: firstMilestone - totalPurchases,
		}
	}

	offset := totalPurchases - firstMilestone
	cycle := offset / cycleWidth
	previous := firstMilestone + cycle*cycleWidth
	next := previous + cycleWidth

	remaining := next - totalPurchases
	if remaining < 0 {
		remaining = 0
	}

	return Milestones{
		Previous:  previous,
		Next:      next,
		Progress:  clamp01(float64(totalPurchases-previous) / float64(next-previous)),
		Remaining: remaining,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Tracker reads the loyalty counter through a fallback key chain and
// recomputes milestones whenever any of those keys changes, including
// changes made by another writer against the same store, which is why
// every recomputation re-reads rather than trusting cached state.
type Tracker struct {
	store  *localstore.Store
	chain  localstore.Chain
	logger *slog.Logger

	mu      sync.Mutex
	cancels []func()
	done    chan struct{}
}

// NewTracker builds a tracker over the counter's key chain.
func NewTracker(store *localstore.Store, chain localstore.Chain, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		chain:  chain,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// TotalPurchases re-reads the counter from the chain; absent → 0.
func (t *Tracker) TotalPurchases() int {
	var n int
	t.chain.ReadFirst(&n)
	return n
}

// Current recomputes milestones from a fresh counter read.
func (t *Tracker) Current() Milestones {
	return ComputeMilestones(t.TotalPurchases())
}

// RecordPurchase increments the counter and writes it to every key in
// the chain.
func (t *Tracker) RecordPurchase() Milestones {
	n := t.TotalPurchases() + 1
	t.chain.WriteAll(n)
	return ComputeMilestones(n)
}

// Subscribe invokes fn with freshly-computed milestones every time one
// of the counter keys changes. fn runs on the tracker's goroutines;
// delivery stops after Close.
func (t *Tracker) Subscribe(fn func(Milestones)) {
	for _, key := range t.chain.Keys() {
		events, cancel := t.store.Watch(key)

		t.mu.Lock()
		t.cancels = append(t.cancels, cancel)
		t.mu.Unlock()

		go func() {
			for {
				select {
				case <-t.done:
					return
				case _, ok := <-events:
					if !ok {
						return
					}
					fn(t.Current())
				}
			}
		}()
	}
}

// Close cancels all subscriptions. Safe to call once.
func (t *Tracker) Close() {
	close(t.done)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cancel := range t.cancels {
		cancel()
	}
	t.cancels = nil
}
