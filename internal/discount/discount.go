// Package discount resolves and applies discount codes against a cart
// subtotal. All functions are pure over a snapshot of the user's owned
// codes; Selection holds the single currently-applied discount.
package discount

import (
	"math"
	"strings"
	"time"

	"orderflow/internal/model"
)

// Outcome classifies a resolution attempt. Failed resolutions are
// user-facing feedback states, never errors.
type Outcome string

const (
	OutcomeApplied   Outcome = "APPLIED"
	OutcomeNotFound  Outcome = "NOT_FOUND"
	OutcomeZeroValue Outcome = "ZERO_VALUE"
)

// Resolution is the result of resolving a candidate code.
// Code and Amount are only meaningful when Outcome is OutcomeApplied.
type Resolution struct {
	Outcome Outcome
	Code    model.DiscountCode
	Amount  int64
}

// ActiveCode is a discount code with its remaining-use count computed.
type ActiveCode struct {
	model.DiscountCode
	UsesRemaining int
}

// ListActive filters codes to those applicable at the given time and
// attaches the computed remaining-use count.
func ListActive(codes []model.DiscountCode, now time.Time) []ActiveCode {
	var active []ActiveCode
	for _, c := range codes {
		if c.Active(now) {
			active = append(active, ActiveCode{DiscountCode: c, UsesRemaining: c.UsesRemaining()})
		}
	}
	return active
}

// ComputeAmount returns the monetary amount a code subtracts from the
// given subtotal. Percentage takes precedence over the fixed value.
// The result is clamped to [0, subtotal]; non-finite intermediate
// results coerce to 0.
func ComputeAmount(code model.DiscountCode, subtotal int64) int64 {
	var amount int64
	if code.Percentage != 0 {
		raw := float64(subtotal) * code.Percentage / 100
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			raw = 0
		}
		amount = int64(math.Round(raw))
	} else {
		amount = code.Value
	}

	if amount < 0 {
		return 0
	}
	if amount > subtotal {
		return subtotal
	}
	return amount
}

// NormalizeCode canonicalizes user input for matching: trimmed and
// uppercased. Codes match case-insensitively.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ResolveByCode matches a candidate code string against the user's
// active codes and computes the discount amount for the subtotal.
func ResolveByCode(codes []model.DiscountCode, raw string, subtotal int64, now time.Time) Resolution {
	normalized := NormalizeCode(raw)
	if normalized == "" {
		return Resolution{Outcome: OutcomeNotFound}
	}

	for _, c := range codes {
		if !c.Active(now) {
			continue
		}
		if NormalizeCode(c.Code) != normalized {
			continue
		}

		amount := ComputeAmount(c, subtotal)
		if amount <= 0 {
			return Resolution{Outcome: OutcomeZeroValue, Code: c}
		}
		return Resolution{Outcome: OutcomeApplied, Code: c, Amount: amount}
	}

	return Resolution{Outcome: OutcomeNotFound}
}

// Applied is the currently-selected discount with its computed amount.
type Applied struct {
	Code   model.DiscountCode
	Amount int64
}

// Selection holds at most one applied discount. Applying a new
// discount replaces the previous selection; discounts never stack.
type Selection struct {
	applied *Applied
}

// Apply records a successful resolution as the current selection,
// replacing any previous one. Non-applied resolutions are ignored.
func (s *Selection) Apply(res Resolution) {
	if res.Outcome != OutcomeApplied {
		return
	}
	s.applied = &Applied{Code: res.Code, Amount: res.Amount}
}

// Current returns the applied discount, if any.
func (s *Selection) Current() (Applied, bool) {
	if s.applied == nil {
		return Applied{}, false
	}
	return *s.applied, true
}

// Clear drops the current selection.
func (s *Selection) Clear() {
	s.applied = nil
}

// Revalidate recomputes the selection against a fresh code snapshot
// and subtotal. If the code is no longer active or its recomputed
// amount drops to zero, the selection is cleared and true is returned
// so the caller can surface the change; a stale discount is never
// silently retained.
func (s *Selection) Revalidate(codes []model.DiscountCode, subtotal int64, now time.Time) (cleared bool) {
	if s.applied == nil {
		return false
	}

	res := ResolveByCode(codes, s.applied.Code.Code, subtotal, now)
	if res.Outcome != OutcomeApplied {
		s.applied = nil
		return true
	}

	s.applied = &Applied{Code: res.Code, Amount: res.Amount}
	return false
}

// TotalSavings sums the amounts across a redemption history.
func TotalSavings(history []model.DiscountRedemption) int64 {
	var total int64
	for _, r := range history {
		total += r.ValueApplied
	}
	return total
}

// TotalRedemptions counts the redemption history entries.
func TotalRedemptions(history []model.DiscountRedemption) int {
	return len(history)
}
