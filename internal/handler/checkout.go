package handler

import (
	"log/slog"
	"net/http"
	"time"

	"orderflow/internal/backendapi"
	"orderflow/internal/loyalty"
	"orderflow/internal/model"
	"orderflow/internal/reconcile"
	"orderflow/internal/upsell"
)

// handleCheckoutState reports the machine's lifecycle state.
// GET /checkout
func (h *Handler) handleCheckoutState(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"state": s.machine.State()})
}

// handleCheckoutMount re-runs the checkout entry lifecycle, the
// navigated-to-checkout analog: refresh the code snapshot, auto-apply
// a pending session code, revalidate the current selection.
// POST /checkout/mount
func (h *Handler) handleCheckoutMount(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.sessions.mount(r, s)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"state": s.machine.State(),
		"cart":  h.cartViewFor(s, false),
	})
}

type prefillResponse struct {
	Form  model.OrderForm `json:"form"`
	Found bool            `json:"found"`
}

// handlePrefillForm returns the persisted checkout form for the
// session's identity, empty when nothing was stored.
// GET /checkout/form
func (h *Handler) handlePrefillForm(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	form, found := s.machine.PrefillForm()
	h.writeJSON(w, http.StatusOK, prefillResponse{Form: form, Found: found})
}

// handleInputFocus runs the one-shot upsell auto-trigger: registered
// sessions only, at most once per session. The configured delay
// elapses before the prompt shows, so the response carries the final
// outcome.
// POST /checkout/focus
func (h *Handler) handleInputFocus(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	shown := s.machine.OnInputFocus(nil)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"shown":  shown,
		"upsell": upsellViewFor(s.upsell),
	})
}

type submitRequest struct {
	Form model.OrderForm `json:"form"`
}

// handleSubmit runs the full submission flow and returns the
// confirmation context.
// POST /checkout/submit
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	nc, err := s.machine.Submit(r.Context(), req.Form)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "order submitted",
		slog.String("session", s.id),
		slog.String("mode", string(nc.Mode)),
		slog.String("order_code", nc.OrderCode),
	)

	h.writeJSON(w, http.StatusOK, nc)
}

// === Upsell prompt ===

type upsellView struct {
	State     upsell.State   `json:"state"`
	Countdown int            `json:"countdown"`
	Item      *model.Product `json:"item,omitempty"`
}

func upsellViewFor(c *upsell.Controller) upsellView {
	v := upsellView{State: c.State(), Countdown: c.Countdown()}
	if item := c.Item(); item.ID != "" {
		v.Item = &item
	}
	return v
}

// GET /upsell
func (h *Handler) handleUpsellState(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, upsellViewFor(s.upsell))
}

// handleUpsellAccept accepts the showing prompt and adds the promo
// item to the cart at its promotional price.
// POST /upsell/accept
func (h *Handler) handleUpsellAccept(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	item := s.upsell.Item()
	if !s.upsell.Accept() {
		h.writeError(w, model.NewValidationError("upsell", "no prompt showing"))
		return
	}

	s.cart.AddItem(item, 1, "")
	cleared := s.machine.OnCartChanged()

	h.writeJSON(w, http.StatusOK, map[string]any{
		"upsell": upsellViewFor(s.upsell),
		"cart":   h.cartViewFor(s, cleared),
	})
}

// handleUpsellCancel dismisses the showing prompt.
// POST /upsell/cancel
func (h *Handler) handleUpsellCancel(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if !s.upsell.Cancel() {
		h.writeError(w, model.NewValidationError("upsell", "no prompt showing"))
		return
	}
	h.writeJSON(w, http.StatusOK, upsellViewFor(s.upsell))
}

// === Customer summary ===

type loyaltyView struct {
	TotalPurchases int                `json:"totalPurchases"`
	Milestones     loyalty.Milestones `json:"milestones"`
}

// GET /loyalty
func (h *Handler) handleLoyalty(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loyaltyView{
		TotalPurchases: s.loyalty.TotalPurchases(),
		Milestones:     s.loyalty.Current(),
	})
}

// === Profile surfaces (registered only) ===

// userDetail fetches the remote profile for a registered session.
func (h *Handler) userDetail(w http.ResponseWriter, r *http.Request) (*session, *model.UserDetail, bool) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return nil, nil, false
	}
	if !s.identity.Registered {
		h.writeError(w, model.NewUnauthorizedError("registered account required"))
		return nil, nil, false
	}

	detail, err := h.backend.GetUser(r.Context(), s.identity.UserID)
	if err != nil {
		h.writeError(w, err)
		return nil, nil, false
	}
	return s, detail, true
}

// handleProfileForm maps the remote profile onto a checkout form.
// GET /profile/form
func (h *Handler) handleProfileForm(w http.ResponseWriter, r *http.Request) {
	_, detail, ok := h.userDetail(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, reconcile.BuildProfileForm(detail))
}

type registerUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// handleRegisterUser creates the backend user record for a session
// that authenticated with the provider but has no record yet.
// POST /profile/register
func (h *Handler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if s.identity.AuthUID == "" {
		h.writeError(w, model.NewUnauthorizedError("authentication required"))
		return
	}

	var req registerUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Name == "" {
		h.writeError(w, model.NewValidationError("name", "is required"))
		return
	}
	if req.Email == "" {
		h.writeError(w, model.NewValidationError("email", "is required"))
		return
	}

	detail, err := h.backend.CreateUser(r.Context(), &backendapi.CreateUserRequest{
		AuthUID: s.identity.AuthUID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("user registered", "user_id", detail.ID)
	h.writeJSON(w, http.StatusCreated, detail)
}

// handleProfileDiscounts returns the discount summary for the profile
// screen: active codes, redemption history, share coupons, totals.
// GET /profile/discounts
func (h *Handler) handleProfileDiscounts(w http.ResponseWriter, r *http.Request) {
	_, detail, ok := h.userDetail(w, r)
	if !ok {
		return
	}
	// The coupon listing is fresher than the embedded user snapshot.
	// On failure fall back to whatever the snapshot carried.
	if coupons, err := h.backend.ListShareCoupons(r.Context(), detail.ID); err == nil {
		detail.ShareCoupons = coupons
	} else {
		h.logger.Warn("share coupon listing failed", "user_id", detail.ID, "error", err)
	}
	h.writeJSON(w, http.StatusOK, reconcile.SummarizeDiscounts(detail, time.Now()))
}

type useDiscountRequest struct {
	Code string `json:"code"`
}

// handleUseDiscount marks a code picked on the profile screen for
// auto-apply on the next checkout mount. The marker lives on the
// session only and is consumed by the first mount that sees it.
// POST /profile/discounts/use
func (h *Handler) handleUseDiscount(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req useDiscountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Code == "" {
		h.writeError(w, model.NewValidationError("code", "is required"))
		return
	}

	s.machine.Session().SetPendingDiscount(req.Code)
	h.writeJSON(w, http.StatusOK, map[string]any{"pending": req.Code})
}

// handleUserOrders returns the user's order history page.
// GET /profile/orders?skip=&take=
func (h *Handler) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !s.identity.Registered {
		h.writeError(w, model.NewUnauthorizedError("registered account required"))
		return
	}

	q := r.URL.Query()
	var page backendapi.Page
	if page.Skip, err = queryInt(q.Get("skip")); err != nil {
		h.writeError(w, model.NewValidationError("skip", "must be an integer"))
		return
	}
	if page.Take, err = queryInt(q.Get("take")); err != nil {
		h.writeError(w, model.NewValidationError("take", "must be an integer"))
		return
	}

	orders, err := h.backend.ListUserOrders(r.Context(), s.identity.UserID, page)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// handleActiveUserOrders returns the user's in-flight orders for the
// tracking banner.
// GET /profile/orders/active
func (h *Handler) handleActiveUserOrders(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !s.identity.Registered {
		h.writeError(w, model.NewUnauthorizedError("registered account required"))
		return
	}

	orders, err := h.backend.ListActiveUserOrders(r.Context(), s.identity.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// handleIssueShareCoupon creates a new share coupon for the user.
// POST /profile/share-coupons
func (h *Handler) handleIssueShareCoupon(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !s.identity.Registered {
		h.writeError(w, model.NewUnauthorizedError("registered account required"))
		return
	}

	coupon, err := h.backend.IssueShareCoupon(r.Context(), s.identity.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, coupon)
}

// === Reorder ===

type reorderResponse struct {
	Reorderable bool     `json:"reorderable"`
	Cart        cartView `json:"cart"`
}

// handleReorder maps a past order's item snapshots back onto live
// catalog products and pushes them into the cart. All-or-nothing: a
// single unresolvable item makes the order non-reorderable and
// leaves the cart untouched.
// POST /orders/{id}/reorder
func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	order, err := h.backend.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	lines, ok := reconcile.MapOrderToReorderable(*order, h.catalog)
	if !ok {
		h.writeJSON(w, http.StatusConflict, reorderResponse{
			Reorderable: false,
			Cart:        h.cartViewFor(s, false),
		})
		return
	}

	for _, line := range lines {
		s.cart.AddItem(line.Product, line.Quantity, line.Side)
	}
	cleared := s.machine.OnCartChanged()

	h.writeJSON(w, http.StatusOK, reorderResponse{
		Reorderable: true,
		Cart:        h.cartViewFor(s, cleared),
	})
}
