// Package model defines data structures shared across the ordering engine:
// catalog products, cart lines, discounts, orders, and customer profiles.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// === Catalog ===

// ProductKind discriminates catalog product variants.
type ProductKind string

const (
	KindCombo      ProductKind = "combo"
	KindIndividual ProductKind = "individual"
	KindExtra      ProductKind = "extra"
)

// Product is a catalog entry. Combos may declare a required side
// selection drawn from SideOptions; other kinds leave it empty.
type Product struct {
	ID          string      `json:"id"`
	Kind        ProductKind `json:"kind"`
	Name        string      `json:"name"`
	Price       int64       `json:"price"` // minor units, >= 0
	Description string      `json:"description,omitempty"`
	SideOptions []string    `json:"side_options,omitempty"`

	// Promotional pricing: when the product is offered through the
	// upsell prompt, OriginalPrice carries the pre-discount unit price.
	OriginalPrice int64 `json:"original_price,omitempty"`
}

// PromoDiscount returns the per-unit discount for promotional items,
// or 0 when the product is not discounted.
func (p Product) PromoDiscount() int64 {
	if p.OriginalPrice > p.Price {
		return p.OriginalPrice - p.Price
	}
	return 0
}

// Catalog groups the live product definitions by kind.
// Reorder mapping resolves remote order items against it.
type Catalog struct {
	Combos      []Product `json:"combos"`
	Individuals []Product `json:"individuals"`
	Extras      []Product `json:"extras"`
}

// Find looks up a product by ID across all kinds.
func (c *Catalog) Find(id string) (Product, bool) {
	for _, group := range [][]Product{c.Combos, c.Individuals, c.Extras} {
		for _, p := range group {
			if p.ID == id {
				return p, true
			}
		}
	}
	return Product{}, false
}

// === Cart ===

// CartLine binds a product to a quantity and an optional side selection.
// Identity is the composite key: same product with different sides forms
// distinct lines.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"` // > 0; zero-quantity lines are never persisted
	Side     string  `json:"side,omitempty"`
}

// Key returns the composite line identity: productID, or productID:side
// when a side is selected.
func (l CartLine) Key() string {
	return LineKey(l.Product.ID, l.Side)
}

// LineKey builds a composite cart line key from product ID and side.
func LineKey(productID, side string) string {
	if side == "" {
		return productID
	}
	return productID + ":" + side
}

// LineTotal returns price × quantity for the line.
func (l CartLine) LineTotal() int64 {
	return l.Product.Price * int64(l.Quantity)
}

// === Discounts ===

// DiscountCode is a remote-owned discount definition. Percentage takes
// precedence over Value when both are set.
type DiscountCode struct {
	Code           string               `json:"code"`
	Title          string               `json:"title,omitempty"`
	Description    string               `json:"description,omitempty"`
	Value          int64                `json:"value,omitempty"`      // fixed amount, minor units
	Percentage     float64              `json:"percentage,omitempty"` // 0 means "use Value"
	MaxRedemptions int                  `json:"max_redemptions"`
	Redemptions    []DiscountRedemption `json:"redemptions,omitempty"`
	ExpiresAt      *time.Time           `json:"expires_at,omitempty"`
}

// UsesRemaining returns the redemptions left on the code, floored at 0.
func (c DiscountCode) UsesRemaining() int {
	remaining := c.MaxRedemptions - len(c.Redemptions)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Active reports whether the code can still be applied at the given time.
func (c DiscountCode) Active(now time.Time) bool {
	if c.UsesRemaining() == 0 {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}

// DiscountRedemption records one historical application of a code.
// Immutable once created, owned by the remote API.
type DiscountRedemption struct {
	Code         string    `json:"code"`
	ValueApplied int64     `json:"value_applied"` // minor units
	RedeemedAt   time.Time `json:"redeemed_at"`
	OrderID      string    `json:"order_id,omitempty"`
}

// === Share Coupons ===

// ShareCouponStatus is the monthly referral coupon lifecycle.
// Transitions are monotonic: ISSUED → ACTIVATED → REDEEMED.
type ShareCouponStatus string

const (
	CouponIssued    ShareCouponStatus = "ISSUED"
	CouponActivated ShareCouponStatus = "ACTIVATED"
	CouponRedeemed  ShareCouponStatus = "REDEEMED"
)

// couponRank orders coupon statuses for monotonicity checks.
var couponRank = map[ShareCouponStatus]int{
	CouponIssued:    0,
	CouponActivated: 1,
	CouponRedeemed:  2,
}

// CanTransition reports whether a coupon may move to the target status.
// Backward transitions are never allowed.
func (s ShareCouponStatus) CanTransition(to ShareCouponStatus) bool {
	from, okFrom := couponRank[s]
	target, okTo := couponRank[to]
	return okFrom && okTo && target > from
}

// ShareCoupon is a monthly-cycle referral code, identified by
// (code, year, month).
type ShareCoupon struct {
	Code   string            `json:"code"`
	Year   int               `json:"year"`
	Month  int               `json:"month"` // 1-12
	Status ShareCouponStatus `json:"status"`
}

// === Order Form ===

// emailShape is the minimal address check used for submit eligibility.
// Deliberately loose: the backend performs real validation.
var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// OrderForm holds the ephemeral customer-entered checkout fields.
type OrderForm struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes,omitempty"`
}

// Valid reports submit eligibility of the form fields alone.
// The checkout machine additionally requires a non-empty cart.
func (f OrderForm) Valid() bool {
	return strings.TrimSpace(f.Name) != "" &&
		strings.TrimSpace(f.Address) != "" &&
		emailShape.MatchString(strings.TrimSpace(f.Email)) &&
		strings.TrimSpace(f.PaymentMethod) != ""
}

// === Stored Purchases ===

// PurchaseLine is the display summary of one purchased line.
type PurchaseLine struct {
	ProductID string      `json:"product_id"`
	Label     string      `json:"label"`
	Quantity  int         `json:"quantity"`
	Side      string      `json:"side,omitempty"`
	Kind      ProductKind `json:"kind"`
}

// StoredPurchase is the snapshot persisted locally after a successful
// submission. Display-only: never a source of truth for server state.
type StoredPurchase struct {
	ID         string         `json:"id"`
	PlacedAt   time.Time      `json:"placed_at"`
	TotalLabel string         `json:"total_label"`
	Lines      []PurchaseLine `json:"lines"`
}

// === Orders (remote-owned, authoritative) ===

// OrderStatus is the remote order state machine.
type OrderStatus string

const (
	OrderReceived  OrderStatus = "RECEIVED"
	OrderPreparing OrderStatus = "PREPARING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderFulfilled OrderStatus = "FULFILLED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Reorderable reports whether an order's status allows "repeat this
// order". Item resolution is checked separately by the reconcile layer.
func (s OrderStatus) Reorderable() bool {
	return s == OrderConfirmed || s == OrderFulfilled
}

// OrderItem is a line item snapshot inside a remote order.
type OrderItem struct {
	ProductID         string            `json:"productId,omitempty"`
	Label             string            `json:"label"`
	Quantity          int               `json:"quantity"`
	UnitPrice         int64             `json:"unitPrice"`
	OriginalUnitPrice int64             `json:"originalUnitPrice,omitempty"`
	DiscountValue     int64             `json:"discountValue,omitempty"`
	LineTotal         int64             `json:"lineTotal"`
	Side              string            `json:"side,omitempty"`
	Type              string            `json:"type,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Delivery carries the destination for an order.
type Delivery struct {
	AddressLine string `json:"addressLine"`
	Notes       string `json:"notes,omitempty"`
}

// Order is the authoritative remote order record.
type Order struct {
	ID            string      `json:"id"`
	Number        int         `json:"number"`
	Status        OrderStatus `json:"status"`
	CustomerName  string      `json:"customerName"`
	CustomerEmail string      `json:"customerEmail,omitempty"`
	CustomerPhone string      `json:"customerPhone,omitempty"`
	Delivery      Delivery    `json:"delivery"`
	PaymentMethod string      `json:"paymentMethod"`
	Items         []OrderItem `json:"items"`
	TotalGross    int64       `json:"totalGross"`
	TotalNet      int64       `json:"totalNet,omitempty"`
	DiscountCode  string      `json:"discountCode,omitempty"`
	DiscountTotal int64       `json:"discountTotal,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// OrderMessage is one entry in the order-scoped chat log.
type OrderMessage struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"` // "ADMIN" or "USER"
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
}

// FormatOrderCode renders the human-readable order code from the
// server-assigned order number: store code plus a zero-padded 5-digit
// numeric suffix (e.g. "BGR-00042").
func FormatOrderCode(storeCode string, number int) string {
	return fmt.Sprintf("%s-%05d", storeCode, number)
}

// === User Profile (remote-owned) ===

// UserAddress is one saved delivery address on a user profile.
type UserAddress struct {
	AddressLine string `json:"addressLine"`
	Notes       string `json:"notes,omitempty"`
	IsPrimary   bool   `json:"isPrimary,omitempty"`
}

// UserDetail is the remote user record consumed by the profile and
// admin surfaces.
type UserDetail struct {
	ID             string               `json:"id"`
	AuthUID        string               `json:"authUid,omitempty"`
	Name           string               `json:"name,omitempty"`
	Email          string               `json:"email,omitempty"`
	Phone          string               `json:"phone,omitempty"`
	Addresses      []UserAddress        `json:"addresses,omitempty"`
	TotalPurchases int                  `json:"totalPurchases"`
	DiscountCodes  []DiscountCode       `json:"discountCodes,omitempty"`
	Redemptions    []DiscountRedemption `json:"redemptions,omitempty"`
	ShareCoupons   []ShareCoupon        `json:"shareCoupons,omitempty"`
}
