// Package localstore provides the durable per-installation key-value
// store backing cart snapshots, profile prefill, loyalty counters, and
// purchase history. One JSON file per key with temp+rename writes, so
// atomicity is per key, the same guarantee browser storage gives the
// original surfaces that consume this state.
//
// Storage failures are never fatal: reads of missing or malformed
// payloads report "absent" and the feature degrades to defaults.
package localstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// Event notifies a watcher that a key changed.
// Delivery is best-effort: slow subscribers have pending events
// coalesced, so a receive means "re-read now", not "one write happened".
type Event struct {
	Key string
}

// Store is a file-backed key-value store.
// Safe for concurrent use; watchers are notified outside the lock.
type Store struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	watchers map[string][]chan Event
}

// Open creates the backing directory if needed and returns a Store.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("localstore: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &Store{
		dir:      dir,
		logger:   logger,
		watchers: make(map[string][]chan Event),
	}, nil
}

// fileFor maps a logical key to its backing file.
// Keys carry separators (e.g. "profile:user:42"), so they are
// query-escaped into a flat, reversible filename.
func (s *Store) fileFor(key string) string {
	return filepath.Join(s.dir, url.QueryEscape(key)+".json")
}

// Get reads the value stored under key into v.
// Returns false when the key is absent, unreadable, or holds a payload
// that fails to decode; a corrupt entry is logged and treated as
// absent rather than propagated.
func (s *Store) Get(key string, v any) bool {
	data, err := os.ReadFile(s.fileFor(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("localstore read failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return false
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("localstore payload malformed, treating as absent",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// Put stores v under key. The write is temp+rename so readers never
// observe a partial payload. Watchers of the key are notified.
func (s *Store) Put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	target := s.fileFor(key)
	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("committing %s: %w", key, err)
	}

	s.notify(key)
	return nil
}

// PutLogged stores v under key, logging failures instead of returning
// them. Call sites where storage is an enhancement, not a requirement
// (prefill, loyalty display), use this to degrade silently.
func (s *Store) PutLogged(key string, v any) {
	if err := s.Put(key, v); err != nil {
		s.logger.Warn("localstore write failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// Delete removes the key. Absent keys are a no-op.
func (s *Store) Delete(key string) {
	if err := os.Remove(s.fileFor(key)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("localstore delete failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return
	}
	s.notify(key)
}

// Watch subscribes to change events for key. The returned cancel
// function must be called to release the subscription.
func (s *Store) Watch(key string) (<-chan Event, func()) {
	ch := make(chan Event, 1)

	s.mu.Lock()
	s.watchers[key] = append(s.watchers[key], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.watchers[key]
		for i, sub := range subs {
			if sub == ch {
				s.watchers[key] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// NotifyExternal fans out a change event for a key mutated by another
// process (another writer completing a purchase against the same
// store). Watchers must re-read rather than trust in-memory state.
func (s *Store) NotifyExternal(key string) {
	s.notify(key)
}

// notify delivers a coalesced event to each watcher of key.
func (s *Store) notify(key string) {
	s.mu.Lock()
	subs := append([]chan Event(nil), s.watchers[key]...)
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- Event{Key: key}:
		default: // an event is already pending; receiver will re-read anyway
		}
	}
}
