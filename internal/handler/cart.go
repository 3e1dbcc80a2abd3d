package handler

import (
	"log/slog"
	"net/http"

	"orderflow/internal/discount"
	"orderflow/internal/model"
)

// cartView is the cart representation returned by every cart mutation.
type cartView struct {
	Items          []model.CartLine `json:"items"`
	Count          int              `json:"count"`
	Subtotal       int64            `json:"subtotal"`
	SubtotalLabel  string           `json:"subtotalLabel"`
	DiscountCode   string           `json:"discountCode,omitempty"`
	DiscountAmount int64            `json:"discountAmount,omitempty"`
	Total          int64            `json:"total"`
	TotalLabel     string           `json:"totalLabel"`
	// DiscountCleared reports that this mutation invalidated the
	// applied discount.
	DiscountCleared bool `json:"discountCleared,omitempty"`
}

func (h *Handler) cartViewFor(s *session, cleared bool) cartView {
	gross, amount, code, net := s.machine.Totals()
	return cartView{
		Items:           s.cart.Items(),
		Count:           s.cart.Count(),
		Subtotal:        gross,
		SubtotalLabel:   model.FormatPrice(gross),
		DiscountCode:    code,
		DiscountAmount:  amount,
		Total:           net,
		TotalLabel:      model.FormatPrice(net),
		DiscountCleared: cleared,
	}
}

// handleGetCart returns the session cart with totals.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartViewFor(s, false))
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Side      string `json:"side,omitempty"`
}

// handleAddItem adds a catalog product to the cart.
// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	product, ok := h.catalog.Find(req.ProductID)
	if !ok {
		h.writeError(w, model.NewNotFoundError("product"))
		return
	}
	if product.Kind == model.KindCombo && len(product.SideOptions) > 0 && !validSide(product, req.Side) {
		h.writeError(w, model.NewValidationError("side", "a side selection is required for this combo"))
		return
	}

	s.cart.AddItem(product, req.Quantity, req.Side)
	cleared := s.machine.OnCartChanged()

	h.logger.InfoContext(r.Context(), "cart item added",
		slog.String("session", s.id),
		slog.String("product_id", product.ID),
		slog.Int("quantity", req.Quantity),
	)

	h.writeJSON(w, http.StatusOK, h.cartViewFor(s, cleared))
}

func validSide(p model.Product, side string) bool {
	for _, opt := range p.SideOptions {
		if opt == side {
			return true
		}
	}
	return false
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// handleSetQuantity sets the quantity of an existing cart line.
// A quantity of zero removes the line.
// PATCH /cart/items/{key}
func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity < 0 {
		h.writeError(w, model.NewValidationError("quantity", "must be >= 0"))
		return
	}

	s.cart.SetQuantity(r.PathValue("key"), req.Quantity)
	cleared := s.machine.OnCartChanged()
	h.writeJSON(w, http.StatusOK, h.cartViewFor(s, cleared))
}

// handleRemoveItem removes one cart line.
// DELETE /cart/items/{key}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	s.cart.RemoveItem(r.PathValue("key"))
	cleared := s.machine.OnCartChanged()
	h.writeJSON(w, http.StatusOK, h.cartViewFor(s, cleared))
}

// handleClearCart empties the cart.
// DELETE /cart
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	s.cart.Clear()
	cleared := s.machine.OnCartChanged()
	h.writeJSON(w, http.StatusOK, h.cartViewFor(s, cleared))
}

// === Discounts ===

type applyDiscountRequest struct {
	Code string `json:"code"`
}

type applyDiscountResponse struct {
	Outcome discount.Outcome `json:"outcome"`
	Cart    cartView         `json:"cart"`
}

// handleApplyDiscount resolves and applies a discount code. Failed
// resolutions are feedback, not errors: the outcome travels in a 200.
// POST /cart/discount
func (h *Handler) handleApplyDiscount(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req applyDiscountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	res := s.machine.ApplyCode(req.Code)
	h.logger.InfoContext(r.Context(), "discount code applied",
		slog.String("session", s.id),
		slog.String("outcome", string(res.Outcome)),
	)

	h.writeJSON(w, http.StatusOK, applyDiscountResponse{
		Outcome: res.Outcome,
		Cart:    h.cartViewFor(s, false),
	})
}

// handleRemoveDiscount drops the applied discount.
// DELETE /cart/discount
func (h *Handler) handleRemoveDiscount(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	s.machine.RemoveDiscount()
	h.writeJSON(w, http.StatusOK, h.cartViewFor(s, false))
}
