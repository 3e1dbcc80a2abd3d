// Package backendapi is the client for the remote order/user API that
// owns all server-side state: orders and their status transitions,
// user profiles, loyalty purchase counters, share coupons, and
// discount-code definitions.
//
// Every request declares one of three auth modes (none, optional,
// required). Required-auth requests fail fast client-side when no
// token is obtainable, without touching the network.
package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"orderflow/internal/model"
	"orderflow/internal/transport"
)

// userAgent identifies this client to the order API's CDN/WAF.
const userAgent = "OrderFlow/1.0"

// Config holds client configuration.
type Config struct {
	BaseURL string
	Tokens  TokenSource // nil means no token is ever obtainable
	Logger  *slog.Logger
	Timeout time.Duration // 0 → 30s

	// HTTPClient overrides the default Chrome-fingerprint client.
	// Tests point this at an httptest server.
	HTTPClient *http.Client
}

// Client talks to the order API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *slog.Logger
}

// New creates a client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Chrome TLS fingerprint transport, see internal/transport for
		// the rationale.
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport.NewChromeTransport(timeout),
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:     cfg.Tokens,
		logger:     cfg.Logger,
	}, nil
}

// === Orders ===

// CreateOrder submits a new order. Auth is optional: registered
// sessions attach a token, guest sessions go without.
func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*model.Order, error) {
	if len(req.Items) == 0 {
		return nil, model.NewValidationError("items", "at least one item required")
	}
	var order model.Order
	if err := c.do(ctx, http.MethodPost, "/orders", AuthOptional, nil, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder fetches a single order by ID.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), AuthRequired, nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders lists all orders, optionally filtered by status.
// Staff-only, so auth is required.
func (c *Client) ListOrders(ctx context.Context, status model.OrderStatus, page Page) ([]model.Order, error) {
	q := pageQuery(page)
	if status != "" {
		q.Set("status", string(status))
	}
	var orders []model.Order
	if err := c.do(ctx, http.MethodGet, "/orders", AuthRequired, q, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListUserOrders lists a user's order history.
func (c *Client) ListUserOrders(ctx context.Context, userID string, page Page) ([]model.Order, error) {
	path := "/orders/user/" + url.PathEscape(userID)
	var orders []model.Order
	if err := c.do(ctx, http.MethodGet, path, AuthRequired, pageQuery(page), nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListActiveUserOrders lists a user's not-yet-fulfilled orders.
func (c *Client) ListActiveUserOrders(ctx context.Context, userID string) ([]model.Order, error) {
	path := "/orders/user/" + url.PathEscape(userID) + "/active"
	var orders []model.Order
	if err := c.do(ctx, http.MethodGet, path, AuthRequired, nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// PrepareOrder moves an order to PREPARING.
func (c *Client) PrepareOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return c.transitionOrder(ctx, orderID, "prepare", nil)
}

// ConfirmOrder moves an order to CONFIRMED.
func (c *Client) ConfirmOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return c.transitionOrder(ctx, orderID, "confirm", nil)
}

// FulfillOrder moves an order to FULFILLED.
func (c *Client) FulfillOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return c.transitionOrder(ctx, orderID, "fulfill", nil)
}

// CancelOrder moves an order to CANCELLED with an optional reason.
func (c *Client) CancelOrder(ctx context.Context, orderID, reason string) (*model.Order, error) {
	var body any
	if reason != "" {
		body = &CancelOrderRequest{Reason: reason}
	}
	return c.transitionOrder(ctx, orderID, "cancel", body)
}

// transitionOrder issues PATCH /orders/{id}/{verb}. Status
// transitions are staff operations, so auth is required.
func (c *Client) transitionOrder(ctx context.Context, orderID, verb string, body any) (*model.Order, error) {
	path := "/orders/" + url.PathEscape(orderID) + "/" + verb
	var order model.Order
	if err := c.do(ctx, http.MethodPatch, path, AuthRequired, nil, body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// === Order messages ===

// ListOrderMessages returns the order-scoped chat log.
func (c *Client) ListOrderMessages(ctx context.Context, orderID string) ([]model.OrderMessage, error) {
	path := "/orders/" + url.PathEscape(orderID) + "/messages"
	var msgs []model.OrderMessage
	if err := c.do(ctx, http.MethodGet, path, AuthOptional, nil, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// PostOrderMessage appends a message to an order's chat log.
func (c *Client) PostOrderMessage(ctx context.Context, orderID string, req *PostMessageRequest) (*model.OrderMessage, error) {
	if req.Message == "" {
		return nil, model.NewValidationError("message", "message text required")
	}
	path := "/orders/" + url.PathEscape(orderID) + "/messages"
	var msg model.OrderMessage
	if err := c.do(ctx, http.MethodPost, path, AuthOptional, nil, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// === Users ===

// CreateUser registers a new user record for an authenticated identity.
func (c *Client) CreateUser(ctx context.Context, req *CreateUserRequest) (*model.UserDetail, error) {
	var user model.UserDetail
	if err := c.do(ctx, http.MethodPost, "/users", AuthRequired, nil, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser fetches the full user detail (profile, loyalty counters,
// discount history, share coupons).
func (c *Client) GetUser(ctx context.Context, userID string) (*model.UserDetail, error) {
	var user model.UserDetail
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), AuthRequired, nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile patches the user's profile. Fields left nil are
// unchanged server-side.
func (c *Client) UpdateProfile(ctx context.Context, userID string, upd *ProfileUpdate) error {
	path := "/users/" + url.PathEscape(userID) + "/profile"
	return c.do(ctx, http.MethodPatch, path, AuthRequired, nil, upd, nil)
}

// RegisterPurchase appends a purchase snapshot to the user's loyalty
// history, incrementing the server-side purchase counter.
func (c *Client) RegisterPurchase(ctx context.Context, userID string, purchase *model.StoredPurchase) error {
	path := "/users/" + url.PathEscape(userID) + "/purchases"
	return c.do(ctx, http.MethodPost, path, AuthRequired, nil, purchase, nil)
}

// GetEngagement returns aggregate engagement figures for a user.
func (c *Client) GetEngagement(ctx context.Context, userID string) (*Engagement, error) {
	path := "/users/" + url.PathEscape(userID) + "/engagement"
	var eng Engagement
	if err := c.do(ctx, http.MethodGet, path, AuthRequired, nil, nil, &eng); err != nil {
		return nil, err
	}
	return &eng, nil
}

// === Share coupons and discounts ===

// ListShareCoupons returns the user's referral coupons.
func (c *Client) ListShareCoupons(ctx context.Context, userID string) ([]model.ShareCoupon, error) {
	path := "/users/" + url.PathEscape(userID) + "/share-coupons"
	var coupons []model.ShareCoupon
	if err := c.do(ctx, http.MethodGet, path, AuthRequired, nil, nil, &coupons); err != nil {
		return nil, err
	}
	return coupons, nil
}

// IssueShareCoupon asks the API to mint a new referral coupon.
func (c *Client) IssueShareCoupon(ctx context.Context, userID string) (*model.ShareCoupon, error) {
	path := "/users/" + url.PathEscape(userID) + "/share-coupons"
	var coupon model.ShareCoupon
	if err := c.do(ctx, http.MethodPost, path, AuthRequired, nil, nil, &coupon); err != nil {
		return nil, err
	}
	return &coupon, nil
}

// RecordRedemption records a discount redemption against a user.
func (c *Client) RecordRedemption(ctx context.Context, userID string, redemption *model.DiscountRedemption) error {
	path := "/users/" + url.PathEscape(userID) + "/discounts"
	return c.do(ctx, http.MethodPost, path, AuthRequired, nil, redemption, nil)
}

// ListDiscountCodes fetches the published discount-code definitions.
// Public, no auth.
func (c *Client) ListDiscountCodes(ctx context.Context) ([]model.DiscountCode, error) {
	var codes []model.DiscountCode
	if err := c.do(ctx, http.MethodGet, "/users/discount-codes", AuthNone, nil, nil, &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// === Request plumbing ===

// resolveToken applies the auth mode. For AuthRequired, a missing
// source or a source error aborts before any network traffic.
func (c *Client) resolveToken(ctx context.Context, auth AuthMode) (string, error) {
	switch auth {
	case AuthNone:
		return "", nil
	case AuthOptional:
		if c.tokens == nil {
			return "", nil
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			// Optional auth degrades to anonymous.
			c.logger.Debug("proceeding without token", "error", err)
			return "", nil
		}
		return token, nil
	default: // AuthRequired
		if c.tokens == nil {
			return "", model.ErrNoToken
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %v", model.ErrNoToken, err)
		}
		if token == "" {
			return "", model.ErrNoToken
		}
		return token, nil
	}
}

// do executes one API request. body and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, auth AuthMode, query url.Values, body, out any) error {
	token, err := c.resolveToken(ctx, auth)
	if err != nil {
		return err
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError("order API", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.parseErrorResponse(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// pageQuery converts a Page into skip/take query parameters.
// A zero Take means the server default and is omitted.
func pageQuery(page Page) url.Values {
	q := url.Values{}
	if page.Skip > 0 {
		q.Set("skip", strconv.Itoa(page.Skip))
	}
	if page.Take > 0 {
		q.Set("take", strconv.Itoa(page.Take))
	}
	return q
}

// parseErrorResponse converts an API error to an APIError.
func (c *Client) parseErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorBody
	json.Unmarshal(body, &apiErr) // best effort

	switch statusCode {
	case http.StatusNotFound:
		return model.NewNotFoundError("resource")
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("order API authentication failed")
	case http.StatusBadRequest:
		msg := apiErr.Message
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	case http.StatusTooManyRequests:
		return model.NewRateLimitError("order API")
	default:
		return model.NewUpstreamError("order API",
			fmt.Errorf("status %d: %s - %s", statusCode, apiErr.Code, apiErr.Message))
	}
}
