package localstore

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := testStore(t)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := s.Put("cart", payload{Name: "a", Count: 3}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got payload
	if !s.Get("cart", &got) {
		t.Fatal("Get returned absent for a stored key")
	}
	if got.Name != "a" || got.Count != 3 {
		t.Errorf("Get = %+v, want {a 3}", got)
	}
}

func TestGetAbsentKey(t *testing.T) {
	s := testStore(t)

	var v map[string]any
	if s.Get("never-written", &v) {
		t.Error("Get = present, want absent")
	}
}

func TestMalformedPayloadTreatedAsAbsent(t *testing.T) {
	s := testStore(t)

	if err := s.Put("cart", map[string]int{"n": 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Corrupt the backing file directly
	if err := os.WriteFile(s.fileFor("cart"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupting file: %v", err)
	}

	var v map[string]int
	if s.Get("cart", &v) {
		t.Error("Get on corrupt payload = present, want absent")
	}
}

func TestKeysWithSeparatorsGetDistinctFiles(t *testing.T) {
	s := testStore(t)

	if err := s.Put("profile:user:42", "a"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put("profile:auth:42", "b"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got string
	if !s.Get("profile:user:42", &got) || got != "a" {
		t.Errorf("profile:user:42 = %q, want \"a\"", got)
	}
	if !s.Get("profile:auth:42", &got) || got != "b" {
		t.Errorf("profile:auth:42 = %q, want \"b\"", got)
	}
}

func TestDeleteAbsentKeyIsNoOp(t *testing.T) {
	s := testStore(t)
	s.Delete("ghost") // must not panic or log fatally
}

func TestWatchDeliversOnPut(t *testing.T) {
	s := testStore(t)

	ch, cancel := s.Watch("loyalty:user:1")
	defer cancel()

	if err := s.Put("loyalty:user:1", 5); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Key != "loyalty:user:1" {
			t.Errorf("event key = %q, want loyalty:user:1", ev.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered after Put")
	}
}

func TestWatchCancelStopsDelivery(t *testing.T) {
	s := testStore(t)

	ch, cancel := s.Watch("k")
	cancel()

	if err := s.Put("k", 1); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case <-ch:
		t.Error("event delivered after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifyExternalFansOut(t *testing.T) {
	s := testStore(t)

	ch, cancel := s.Watch("loyalty:global")
	defer cancel()

	// Simulate another process mutating the backing file
	if err := os.WriteFile(s.fileFor("loyalty:global"), []byte("7"), 0o644); err != nil {
		t.Fatalf("external write: %v", err)
	}
	s.NotifyExternal("loyalty:global")

	select {
	case <-ch:
		var n int
		if !s.Get("loyalty:global", &n) || n != 7 {
			t.Errorf("re-read after external change = %d, want 7", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered after NotifyExternal")
	}
}

func TestChainReadFirstPriority(t *testing.T) {
	s := testStore(t)

	chain := NewChain(s, "profile:user:9", "profile:auth:abc", "profile:last")

	// Only the lowest-priority key present
	s.PutLogged("profile:last", "fallback")
	var got string
	key, ok := chain.ReadFirst(&got)
	if !ok || key != "profile:last" || got != "fallback" {
		t.Errorf("ReadFirst = (%q, %v) %q, want (profile:last, true) fallback", key, ok, got)
	}

	// Higher-priority key wins once present
	s.PutLogged("profile:user:9", "primary")
	key, ok = chain.ReadFirst(&got)
	if !ok || key != "profile:user:9" || got != "primary" {
		t.Errorf("ReadFirst = (%q, %v) %q, want (profile:user:9, true) primary", key, ok, got)
	}
}

func TestChainWriteAllWritesEveryKey(t *testing.T) {
	s := testStore(t)

	chain := NewChain(s, "a", "b", "c")
	chain.WriteAll(42)

	for _, k := range []string{"a", "b", "c"} {
		var n int
		present := s.Get(k, &n)
		if !present || n != 42 {
			t.Errorf("key %q = %d (present=%v), want 42", k, n, present)
		}
	}
}

func TestChainSkipsEmptyKeys(t *testing.T) {
	s := testStore(t)

	// Unresolved identities produce empty keys; the chain must drop them
	chain := NewChain(s, "", "auth:x", "")
	if len(chain.Keys()) != 1 || chain.Keys()[0] != "auth:x" {
		t.Errorf("Keys() = %v, want [auth:x]", chain.Keys())
	}

	chain.WriteAll("v")
	if _, err := os.Stat(filepath.Join(s.dir, ".json")); err == nil {
		t.Error("empty key produced a backing file")
	}
}
