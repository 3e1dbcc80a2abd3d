// Package cart owns the order-in-progress: the list of cart lines and
// their derived aggregates. The store is an explicit injectable
// container; the checkout machine receives one by reference rather
// than reaching for ambient state.
package cart

import (
	"log/slog"
	"sync"

	"orderflow/internal/localstore"
	"orderflow/internal/model"
)

// snapshot is the persisted cart payload.
type snapshot struct {
	Lines []model.CartLine `json:"lines"`
}

// Store holds cart lines and keeps count/subtotal exactly consistent
// with them after every mutation. Aggregates are recomputed inside the
// mutation lock, never cached across mutations.
//
// Every mutation persists the full line list under storeKey, so the
// cart survives a process restart. A malformed persisted payload
// resets to an empty cart instead of failing initialization.
//
// The store watches its own key: when another writer changes it and
// signals the change, the next access re-reads the snapshot instead of
// serving the in-memory state.
type Store struct {
	mu       sync.Mutex
	lines    []model.CartLine
	count    int
	subtotal int64

	persist  *localstore.Store
	storeKey string
	logger   *slog.Logger

	events <-chan localstore.Event
	cancel func()
}

// New loads the persisted cart (if any) from persist under storeKey
// and subscribes to change events for the key.
func New(persist *localstore.Store, storeKey string, logger *slog.Logger) *Store {
	s := &Store{
		persist:  persist,
		storeKey: storeKey,
		logger:   logger,
	}
	if persist != nil {
		s.lines = s.load()
		s.events, s.cancel = persist.Watch(storeKey)
	}
	s.recompute()
	return s
}

// Close releases the change subscription.
func (s *Store) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// load reads the persisted snapshot. Lines a previous version
// persisted in a bad state are dropped; zero-quantity lines are never
// valid.
func (s *Store) load() []model.CartLine {
	var snap snapshot
	if !s.persist.Get(s.storeKey, &snap) {
		return nil
	}

	var lines []model.CartLine
	dropped := 0
	for _, l := range snap.Lines {
		if l.Quantity > 0 {
			lines = append(lines, l)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		s.logger.Warn("dropped invalid persisted cart lines",
			slog.String("key", s.storeKey),
			slog.Int("dropped", dropped))
	}
	return lines
}

// syncExternal re-reads the snapshot when the key changed since the
// last look. Must be called with the lock held. Events from the
// store's own writes re-read state identical to memory.
func (s *Store) syncExternal() {
	if s.events == nil {
		return
	}
	select {
	case <-s.events:
		s.lines = s.load()
		s.recompute()
	default:
	}
}

// AddItem appends a line for product, or increments the quantity of
// the existing line with the same composite key. qty below 1 is
// treated as 1.
func (s *Store) AddItem(product model.Product, qty int, side string) {
	if qty < 1 {
		qty = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncExternal()

	key := model.LineKey(product.ID, side)
	for i := range s.lines {
		if s.lines[i].Key() == key {
			s.lines[i].Quantity += qty
			s.commit()
			return
		}
	}

	s.lines = append(s.lines, model.CartLine{Product: product, Quantity: qty, Side: side})
	s.commit()
}

// SetQuantity replaces the quantity of the line with the given key.
// qty <= 0 removes the line. Absent keys are a no-op.
func (s *Store) SetQuantity(key string, qty int) {
	if qty <= 0 {
		s.RemoveItem(key)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncExternal()

	for i := range s.lines {
		if s.lines[i].Key() == key {
			s.lines[i].Quantity = qty
			s.commit()
			return
		}
	}
}

// RemoveItem deletes the line with the given key. Absent keys are a
// no-op, so callers never need to check first.
func (s *Store) RemoveItem(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncExternal()

	for i := range s.lines {
		if s.lines[i].Key() == key {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			s.commit()
			return
		}
	}
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.commit()
}

// Items returns a copy of the current lines.
func (s *Store) Items() []model.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncExternal()
	return append([]model.CartLine(nil), s.lines...)
}

// Count returns Σ quantity across lines.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncExternal()
	return s.count
}

// Subtotal returns Σ price × quantity across lines.
func (s *Store) Subtotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncExternal()
	return s.subtotal
}

// FormattedSubtotal returns the customer-facing subtotal label.
func (s *Store) FormattedSubtotal() string {
	return model.FormatPrice(s.Subtotal())
}

// Empty reports whether the cart holds no lines.
func (s *Store) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncExternal()
	return len(s.lines) == 0
}

// commit recomputes aggregates and persists the line list.
// Must be called with the lock held, after every mutation.
func (s *Store) commit() {
	s.recompute()
	if s.persist != nil {
		s.persist.PutLogged(s.storeKey, snapshot{Lines: s.lines})
	}
}

func (s *Store) recompute() {
	count := 0
	var subtotal int64
	for _, l := range s.lines {
		count += l.Quantity
		subtotal += l.LineTotal()
	}
	s.count = count
	s.subtotal = subtotal
}
