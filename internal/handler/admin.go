package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"orderflow/internal/backendapi"
	"orderflow/internal/model"
)

// handleListOrders lists orders for the admin board, optionally
// filtered by status, with skip/take pagination.
// GET /admin/orders?status=&skip=&take=
func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var page backendapi.Page
	var err error
	if page.Skip, err = queryInt(q.Get("skip")); err != nil {
		h.writeError(w, model.NewValidationError("skip", "must be an integer"))
		return
	}
	if page.Take, err = queryInt(q.Get("take")); err != nil {
		h.writeError(w, model.NewValidationError("take", "must be an integer"))
		return
	}

	orders, err := h.backend.ListOrders(r.Context(), model.OrderStatus(q.Get("status")), page)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// handleGetOrder returns a single order.
// GET /admin/orders/{id}
func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.backend.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// handleOrderTransition advances an order through the kitchen
// lifecycle: received → preparing → confirmed → fulfilled.
// POST /admin/orders/{id}/{prepare|confirm|fulfill}
func (h *Handler) handleOrderTransition(verb string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := r.PathValue("id")

		var transition func(context.Context, string) (*model.Order, error)
		switch verb {
		case "prepare":
			transition = h.backend.PrepareOrder
		case "confirm":
			transition = h.backend.ConfirmOrder
		case "fulfill":
			transition = h.backend.FulfillOrder
		}

		order, err := transition(r.Context(), orderID)
		if err != nil {
			h.writeError(w, err)
			return
		}

		h.logger.InfoContext(r.Context(), "order transitioned",
			slog.String("order_id", orderID),
			slog.String("verb", verb),
			slog.String("status", string(order.Status)),
		)
		h.writeJSON(w, http.StatusOK, order)
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// handleCancelOrder cancels an order with an operator-supplied reason.
// POST /admin/orders/{id}/cancel
func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	order, err := h.backend.CancelOrder(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// handleListMessages returns the order-scoped message log.
// GET /admin/orders/{id}/messages
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.backend.ListOrderMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// handlePostMessage appends a message to the order-scoped log.
// POST /admin/orders/{id}/messages
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req backendapi.PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Message == "" {
		h.writeError(w, model.NewValidationError("message", "message is required"))
		return
	}
	// The admin surface sets the author; the client body cannot
	// impersonate the customer side of the log.
	req.Author = "ADMIN"

	msg, err := h.backend.PostOrderMessage(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}
