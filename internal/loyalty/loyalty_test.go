package loyalty

import (
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"orderflow/internal/localstore"
)

func TestComputeMilestonesSawtooth(t *testing.T) {
	tests := []struct {
		total         int
		wantPrevious  int
		wantNext      int
		wantProgress  float64
		wantRemaining int
	}{
		{0, 0, 3, 0, 3},
		{-5, 0, 3, 0, 3}, // negative behaves as zero
		{1, 0, 3, 1.0 / 3.0, 2},
		{2, 0, 3, 2.0 / 3.0, 1},
		{3, 3, 7, 0, 4},
		{4, 3, 7, 0.25, 3},
		{5, 3, 7, 0.5, 2},
		{6, 3, 7, 0.75, 1},
		{7, 7, 11, 0, 4},
		{10, 7, 11, 0.75, 1},
		{11, 11, 15, 0, 4},
		{100, 99, 103, 0.25, 3},
	}

	for _, tt := range tests {
		t.Run(formatTotal(tt.total), func(t *testing.T) {
			got := ComputeMilestones(tt.total)
			if got.Previous != tt.wantPrevious {
				t.Errorf("Previous = %d, want %d", got.Previous, tt.wantPrevious)
			}
			if got.Next != tt.wantNext {
				t.Errorf("Next = %d, want %d", got.Next, tt.wantNext)
			}
			if diff := got.Progress - tt.wantProgress; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Progress = %v, want %v", got.Progress, tt.wantProgress)
			}
			if got.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", got.Remaining, tt.wantRemaining)
			}
			if got.Progress < 0 || got.Progress > 1 {
				t.Errorf("Progress = %v outside [0,1]", got.Progress)
			}
		})
	}
}

func formatTotal(n int) string {
	return "total_" + strconv.Itoa(n)
}

func testStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(t.TempDir(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("localstore.Open: %v", err)
	}
	return s
}

func TestTrackerReadsThroughChain(t *testing.T) {
	store := testStore(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	chain := localstore.NewChain(store, "loyalty:user:1", "loyalty:auth:abc", "loyalty:last")

	tr := NewTracker(store, chain, logger)
	defer tr.Close()

	if got := tr.TotalPurchases(); got != 0 {
		t.Errorf("TotalPurchases on empty store = %d, want 0", got)
	}

	// Counter only present under the fallback key
	store.PutLogged("loyalty:last", 5)
	if got := tr.TotalPurchases(); got != 5 {
		t.Errorf("TotalPurchases = %d, want 5 (fallback key)", got)
	}

	m := tr.Current()
	if m.Previous != 3 || m.Next != 7 || m.Remaining != 2 {
		t.Errorf("Current = %+v, want previous=3 next=7 remaining=2", m)
	}
}

func TestRecordPurchaseWritesAllKeys(t *testing.T) {
	store := testStore(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	chain := localstore.NewChain(store, "loyalty:user:1", "loyalty:last")

	tr := NewTracker(store, chain, logger)
	defer tr.Close()

	m := tr.RecordPurchase()
	if m.Remaining != 2 { // 1 purchase, 2 to first milestone
		t.Errorf("Remaining after first purchase = %d, want 2", m.Remaining)
	}

	var n int
	for _, k := range []string{"loyalty:user:1", "loyalty:last"} {
		if !store.Get(k, &n) || n != 1 {
			t.Errorf("key %q = %d, want 1", k, n)
		}
	}
}

func TestSubscribeRecomputesOnExternalChange(t *testing.T) {
	store := testStore(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	chain := localstore.NewChain(store, "loyalty:user:1")

	tr := NewTracker(store, chain, logger)
	defer tr.Close()

	got := make(chan Milestones, 1)
	tr.Subscribe(func(m Milestones) {
		select {
		case got <- m:
		default:
		}
	})

	// Another writer completes a purchase and notifies
	store.PutLogged("loyalty:user:1", 3)

	select {
	case m := <-got:
		if m.Previous != 3 || m.Next != 7 {
			t.Errorf("recomputed milestones = %+v, want previous=3 next=7", m)
		}
	case <-time.After(time.Second):
		t.Fatal("no recomputation after external counter change")
	}
}
