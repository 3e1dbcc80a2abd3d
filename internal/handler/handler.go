// Package handler provides the HTTP surface of the ordering service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"orderflow/internal/backendapi"
	"orderflow/internal/background"
	"orderflow/internal/model"
)

// Backend is the slice of the order API client the handlers use.
// *backendapi.Client satisfies it; tests substitute a fake.
type Backend interface {
	CreateOrder(ctx context.Context, req *backendapi.CreateOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	ListOrders(ctx context.Context, status model.OrderStatus, page backendapi.Page) ([]model.Order, error)
	PrepareOrder(ctx context.Context, orderID string) (*model.Order, error)
	ConfirmOrder(ctx context.Context, orderID string) (*model.Order, error)
	FulfillOrder(ctx context.Context, orderID string) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*model.Order, error)
	ListOrderMessages(ctx context.Context, orderID string) ([]model.OrderMessage, error)
	PostOrderMessage(ctx context.Context, orderID string, req *backendapi.PostMessageRequest) (*model.OrderMessage, error)
	ListUserOrders(ctx context.Context, userID string, page backendapi.Page) ([]model.Order, error)
	ListActiveUserOrders(ctx context.Context, userID string) ([]model.Order, error)
	CreateUser(ctx context.Context, req *backendapi.CreateUserRequest) (*model.UserDetail, error)
	GetUser(ctx context.Context, userID string) (*model.UserDetail, error)
	GetEngagement(ctx context.Context, userID string) (*backendapi.Engagement, error)
	UpdateProfile(ctx context.Context, userID string, upd *backendapi.ProfileUpdate) error
	RegisterPurchase(ctx context.Context, userID string, purchase *model.StoredPurchase) error
	RecordRedemption(ctx context.Context, userID string, redemption *model.DiscountRedemption) error
	ListShareCoupons(ctx context.Context, userID string) ([]model.ShareCoupon, error)
	IssueShareCoupon(ctx context.Context, userID string) (*model.ShareCoupon, error)
	ListDiscountCodes(ctx context.Context) ([]model.DiscountCode, error)
}

// Config carries the store identity and flow constants handed down to
// per-session checkout machines.
type Config struct {
	StoreCode     string
	StoreName     string
	WhatsAppPhone string

	MinClientVersion string

	// DataDir is the root of per-session persistent storage.
	DataDir string

	GuestFloor      time.Duration
	RegisteredFloor time.Duration
	UpsellDelay     time.Duration

	PromoItem *model.Product
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cfg      Config
	backend  Backend
	catalog  *model.Catalog
	runner   *background.Runner
	sessions *registry
	logger   *slog.Logger
}

// New creates a Handler backed by the given order API client and catalog.
func New(cfg Config, backend Backend, catalog *model.Catalog, runner *background.Runner, logger *slog.Logger) *Handler {
	h := &Handler{
		cfg:     cfg,
		backend: backend,
		catalog: catalog,
		runner:  runner,
		logger:  logger,
	}
	h.sessions = newRegistry(h)
	return h
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Discovery endpoint
	mux.HandleFunc("GET /.well-known/orderflow", h.handleWellKnown)

	// Cart
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("PATCH /cart/items/{key}", h.handleSetQuantity)
	mux.HandleFunc("DELETE /cart/items/{key}", h.handleRemoveItem)
	mux.HandleFunc("DELETE /cart", h.handleClearCart)

	// Discounts
	mux.HandleFunc("POST /cart/discount", h.handleApplyDiscount)
	mux.HandleFunc("DELETE /cart/discount", h.handleRemoveDiscount)

	// Checkout
	mux.HandleFunc("GET /checkout", h.handleCheckoutState)
	mux.HandleFunc("GET /checkout/form", h.handlePrefillForm)
	mux.HandleFunc("POST /checkout/mount", h.handleCheckoutMount)
	mux.HandleFunc("POST /checkout/focus", h.handleInputFocus)
	mux.HandleFunc("POST /checkout/submit", h.handleSubmit)

	// Upsell prompt
	mux.HandleFunc("GET /upsell", h.handleUpsellState)
	mux.HandleFunc("POST /upsell/accept", h.handleUpsellAccept)
	mux.HandleFunc("POST /upsell/cancel", h.handleUpsellCancel)

	// Customer summary, profile, reorder
	mux.HandleFunc("GET /loyalty", h.handleLoyalty)
	mux.HandleFunc("POST /profile/register", h.handleRegisterUser)
	mux.HandleFunc("GET /profile/form", h.handleProfileForm)
	mux.HandleFunc("GET /profile/orders", h.handleUserOrders)
	mux.HandleFunc("GET /profile/orders/active", h.handleActiveUserOrders)
	mux.HandleFunc("GET /profile/discounts", h.handleProfileDiscounts)
	mux.HandleFunc("POST /profile/discounts/use", h.handleUseDiscount)
	mux.HandleFunc("POST /profile/share-coupons", h.handleIssueShareCoupon)
	mux.HandleFunc("POST /orders/{id}/reorder", h.handleReorder)

	// Admin order surface
	mux.HandleFunc("GET /admin/orders", h.handleListOrders)
	mux.HandleFunc("GET /admin/orders/{id}", h.handleGetOrder)
	mux.HandleFunc("POST /admin/orders/{id}/prepare", h.handleOrderTransition("prepare"))
	mux.HandleFunc("POST /admin/orders/{id}/confirm", h.handleOrderTransition("confirm"))
	mux.HandleFunc("POST /admin/orders/{id}/fulfill", h.handleOrderTransition("fulfill"))
	mux.HandleFunc("POST /admin/orders/{id}/cancel", h.handleCancelOrder)
	mux.HandleFunc("GET /admin/orders/{id}/messages", h.handleListMessages)
	mux.HandleFunc("POST /admin/orders/{id}/messages", h.handlePostMessage)

	// MCP transport for the admin console assistant
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// Close releases every live session's engines.
func (h *Handler) Close() {
	h.sessions.closeAll()
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if errors.As(err, &apiErr) {
		// Found APIError in error chain - use it
	} else if errors.Is(err, model.ErrSubmitInFlight) {
		apiErr = &model.APIError{
			Code:       "SUBMIT_IN_FLIGHT",
			Message:    "a submission is already in flight",
			StatusCode: http.StatusConflict,
		}
	} else {
		apiErr = &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// === Discovery & Health ===

// handleWellKnown returns the service discovery document.
// GET /.well-known/orderflow
func (h *Handler) handleWellKnown(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, wellKnownResponse{
		Store:            storeInfo{Code: h.cfg.StoreCode, Name: h.cfg.StoreName},
		WhatsAppPhone:    h.cfg.WhatsAppPhone,
		MinClientVersion: h.cfg.MinClientVersion,
	})
}

type wellKnownResponse struct {
	Store            storeInfo `json:"store"`
	WhatsAppPhone    string    `json:"whatsappPhone,omitempty"`
	MinClientVersion string    `json:"minClientVersion,omitempty"`
}

type storeInfo struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}
