// Package reconcile maps remote-owned records back into client-side
// state: order snapshots into live cart lines for reordering, user
// detail into editable form fields, and discount history into the
// profile summary.
package reconcile

import (
	"sort"
	"time"

	"orderflow/internal/discount"
	"orderflow/internal/model"
)

// MapOrderToReorderable resolves a remote order's item snapshots
// against the current catalog. Reordering is all-or-nothing: the
// order must be in a reorderable status and every item must resolve
// to a known product with quantity > 0, otherwise nothing is
// returned. A partial cart would silently misrepresent the original
// order.
func MapOrderToReorderable(order model.Order, catalog *model.Catalog) ([]model.CartLine, bool) {
	if !order.Status.Reorderable() {
		return nil, false
	}

	lines := make([]model.CartLine, 0, len(order.Items))
	for _, item := range order.Items {
		if item.Quantity <= 0 || item.ProductID == "" {
			return nil, false
		}
		product, ok := catalog.Find(item.ProductID)
		if !ok {
			return nil, false
		}
		lines = append(lines, model.CartLine{
			Product:  product,
			Quantity: item.Quantity,
			Side:     item.Side,
		})
	}

	if len(lines) == 0 {
		return nil, false
	}
	return lines, true
}

// BuildProfileForm maps a remote user detail onto the editable form
// fields. The primary address wins; without a primary flag the first
// address is used. Missing values become empty strings, never
// absent/null form state.
func BuildProfileForm(detail *model.UserDetail) model.OrderForm {
	var form model.OrderForm
	if detail == nil {
		return form
	}

	form.Name = detail.Name
	form.Email = detail.Email
	form.Phone = detail.Phone

	if addr, ok := primaryAddress(detail.Addresses); ok {
		form.Address = addr.AddressLine
		form.Notes = addr.Notes
	}
	return form
}

func primaryAddress(addresses []model.UserAddress) (model.UserAddress, bool) {
	if len(addresses) == 0 {
		return model.UserAddress{}, false
	}
	for _, a := range addresses {
		if a.IsPrimary {
			return a, true
		}
	}
	return addresses[0], true
}

// DiscountSummary is the profile screen's discount view.
type DiscountSummary struct {
	Active           []discount.ActiveCode
	History          []model.DiscountRedemption // most recent first
	ShareCoupons     []model.ShareCoupon        // year desc, month desc, code asc
	TotalSavings     int64
	TotalRedemptions int
}

// SummarizeDiscounts builds the sorted discount summary from a user
// detail snapshot.
func SummarizeDiscounts(detail *model.UserDetail, now time.Time) DiscountSummary {
	var summary DiscountSummary
	if detail == nil {
		return summary
	}

	summary.Active = discount.ListActive(detail.DiscountCodes, now)

	summary.History = append(summary.History, detail.Redemptions...)
	sort.SliceStable(summary.History, func(i, j int) bool {
		return summary.History[i].RedeemedAt.After(summary.History[j].RedeemedAt)
	})

	summary.ShareCoupons = append(summary.ShareCoupons, detail.ShareCoupons...)
	sort.SliceStable(summary.ShareCoupons, func(i, j int) bool {
		a, b := summary.ShareCoupons[i], summary.ShareCoupons[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.Month != b.Month {
			return a.Month > b.Month
		}
		return a.Code < b.Code
	})

	summary.TotalSavings = discount.TotalSavings(detail.Redemptions)
	summary.TotalRedemptions = discount.TotalRedemptions(detail.Redemptions)
	return summary
}
