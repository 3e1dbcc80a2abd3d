package backendapi

import (
	"context"
	"time"

	"orderflow/internal/model"
)

// AuthMode declares how a request authenticates against the order API.
type AuthMode int

const (
	// AuthNone sends no credentials.
	AuthNone AuthMode = iota

	// AuthOptional attaches a bearer token when one is obtainable and
	// proceeds without one otherwise.
	AuthOptional

	// AuthRequired fails fast client-side when no token is obtainable.
	// The network call is never made in that case.
	AuthRequired
)

// TokenSource supplies bearer tokens for authenticated requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed-token TokenSource, used by the CLI and tests.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Page selects a slice of a listing via skip/take pagination.
type Page struct {
	Skip int
	Take int
}

// CreateOrderRequest is the POST /orders payload. Monetary fields are
// integer minor units. TotalNet is a pointer so the discounted total
// is omitted entirely when no discount applied.
type CreateOrderRequest struct {
	CustomerName  string            `json:"customerName"`
	CustomerEmail string            `json:"customerEmail,omitempty"`
	CustomerPhone string            `json:"customerPhone"`
	Delivery      model.Delivery    `json:"delivery"`
	PaymentMethod string            `json:"paymentMethod"`
	Items         []model.OrderItem `json:"items"`
	TotalGross    int64             `json:"totalGross"`
	TotalNet      *int64            `json:"totalNet,omitempty"`
	DiscountCode  string            `json:"discountCode,omitempty"`
	DiscountTotal int64             `json:"discountTotal,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CreateUserRequest is the POST /users payload.
type CreateUserRequest struct {
	AuthUID string `json:"authUid"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
}

// ProfileUpdate is the PATCH /users/{id}/profile payload. Nil fields
// are left unchanged server-side.
type ProfileUpdate struct {
	Name      *string             `json:"name,omitempty"`
	Phone     *string             `json:"phone,omitempty"`
	Addresses []model.UserAddress `json:"addresses,omitempty"`
}

// PostMessageRequest is the POST /orders/{id}/messages payload.
type PostMessageRequest struct {
	Author  string `json:"author"` // "ADMIN" or "USER"
	Message string `json:"message"`
}

// Engagement is the GET /users/{id}/engagement response.
type Engagement struct {
	TotalOrders int        `json:"totalOrders"`
	TotalSpent  int64      `json:"totalSpent"`
	LastOrderAt *time.Time `json:"lastOrderAt,omitempty"`
}

// CancelOrderRequest carries the optional cancellation reason.
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// apiErrorBody is the API's error envelope, parsed best-effort.
type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
