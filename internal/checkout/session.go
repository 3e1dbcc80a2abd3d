package checkout

import (
	"sync"

	"github.com/google/uuid"
)

// Identity describes who is checking out. Guest sessions have
// Registered false and empty IDs.
type Identity struct {
	Registered  bool
	UserID      string // backend user record ID
	AuthUID     string // auth-provider UID, known before the record resolves
	DisplayName string
}

// Session is transient per-session state: the discount code carried
// across a navigation, the last confirmation context, and the
// one-shot upsell focus trigger. It is never persisted.
type Session struct {
	ID string

	mu          sync.Mutex
	pendingCode string
	lastOrder   *NavContext
	focusSeen   bool
}

// NewSession returns a fresh session with a generated ID.
func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// SetPendingDiscount stores a code to auto-apply on the next checkout
// mount (e.g. picked from the profile screen before navigating here).
func (s *Session) SetPendingDiscount(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCode = code
}

// TakePendingDiscount returns the pending code and clears it.
func (s *Session) TakePendingDiscount() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := s.pendingCode
	s.pendingCode = ""
	return code
}

// SetLastOrder records the confirmation context for the
// post-submit screen.
func (s *Session) SetLastOrder(nc NavContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOrder = &nc
}

// LastOrder returns the most recent confirmation context.
func (s *Session) LastOrder() (NavContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastOrder == nil {
		return NavContext{}, false
	}
	return *s.lastOrder, true
}

// markFocus returns true exactly once per session, on the first call.
func (s *Session) markFocus() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focusSeen {
		return false
	}
	s.focusSeen = true
	return true
}

// === Storage key fallback chains ===
//
// Each per-identity value is stored under up to three keys, read in
// priority order: per-backend-user-id, per-auth-uid, then a global
// last-identity fallback that serves sessions where authentication
// has not resolved yet. Writes go to every key.

func identityKeys(prefix string, id Identity) []string {
	var keys []string
	if id.UserID != "" {
		keys = append(keys, prefix+":user:"+id.UserID)
	}
	if id.AuthUID != "" {
		keys = append(keys, prefix+":auth:"+id.AuthUID)
	}
	return append(keys, prefix+":last")
}

// ProfileKeys is the fallback chain for form-prefill snapshots.
func ProfileKeys(id Identity) []string { return identityKeys("profile", id) }

// PurchaseKeys is the fallback chain for last-purchase snapshots.
func PurchaseKeys(id Identity) []string { return identityKeys("purchase", id) }

// LoyaltyKeys is the fallback chain for the local loyalty counter.
func LoyaltyKeys(id Identity) []string { return identityKeys("loyalty", id) }

// BonusKeys is the fallback chain for the pending-bonus marker.
func BonusKeys(id Identity) []string { return identityKeys("bonus", id) }
