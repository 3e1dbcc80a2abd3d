// MCP transport for the admin console assistant, using the official
// MCP Go SDK. Exposes the order board and customer lookup as tools.
package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"orderflow/internal/backendapi"
	"orderflow/internal/loyalty"
	"orderflow/internal/model"
)

// === Tool Input/Output Types ===

// ListOrdersInput is the input schema for the list_orders tool.
type ListOrdersInput struct {
	Status string `json:"status,omitempty" jsonschema:"order status filter (RECEIVED, PREPARING, CONFIRMED, FULFILLED, CANCELLED)"`
	Skip   int    `json:"skip,omitempty" jsonschema:"number of orders to skip"`
	Take   int    `json:"take,omitempty" jsonschema:"page size"`
}

// ListOrdersOutput wraps the order page.
type ListOrdersOutput struct {
	Orders []model.Order `json:"orders"`
}

// GetOrderInput is the input schema for the get_order tool.
type GetOrderInput struct {
	ID string `json:"id" jsonschema:"order ID,required"`
}

// AdvanceOrderInput is the input schema for the advance_order tool.
type AdvanceOrderInput struct {
	ID   string `json:"id" jsonschema:"order ID,required"`
	Verb string `json:"verb" jsonschema:"lifecycle verb: prepare, confirm or fulfill,required"`
}

// CancelOrderInput is the input schema for the cancel_order tool.
type CancelOrderInput struct {
	ID     string `json:"id" jsonschema:"order ID,required"`
	Reason string `json:"reason,omitempty" jsonschema:"cancellation reason shown to the customer"`
}

// OrderMessagesInput is the input schema for the list_order_messages tool.
type OrderMessagesInput struct {
	ID string `json:"id" jsonschema:"order ID,required"`
}

// OrderMessagesOutput wraps the order-scoped message log.
type OrderMessagesOutput struct {
	Messages []model.OrderMessage `json:"messages"`
}

// PostMessageInput is the input schema for the post_order_message tool.
type PostMessageInput struct {
	ID      string `json:"id" jsonschema:"order ID,required"`
	Message string `json:"message" jsonschema:"message text,required"`
}

// CustomerSummaryInput is the input schema for the customer_summary tool.
type CustomerSummaryInput struct {
	UserID string `json:"user_id" jsonschema:"user ID,required"`
}

// CustomerSummaryOutput combines the profile, its loyalty milestones
// and the engagement aggregates.
type CustomerSummaryOutput struct {
	Name           string                 `json:"name,omitempty"`
	Email          string                 `json:"email,omitempty"`
	Phone          string                 `json:"phone,omitempty"`
	TotalPurchases int                    `json:"totalPurchases"`
	Milestones     loyalty.Milestones     `json:"milestones"`
	Engagement     *backendapi.Engagement `json:"engagement,omitempty"`
}

// NewMCPServer creates an MCP server with the admin tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "orderflow",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Restaurant order board operations. " +
				"Use these tools to inspect orders, advance them through the kitchen lifecycle, " +
				"message customers, and look up customer summaries.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_orders",
		Description: "List orders, optionally filtered by status, with skip/take pagination.",
	}, h.mcpListOrders)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_order",
		Description: "Get a single order by ID.",
	}, h.mcpGetOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "advance_order",
		Description: "Advance an order through the kitchen lifecycle: prepare, confirm or fulfill.",
	}, h.mcpAdvanceOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_order",
		Description: "Cancel an order with a reason.",
	}, h.mcpCancelOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_order_messages",
		Description: "List the order-scoped message log.",
	}, h.mcpListOrderMessages)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "post_order_message",
		Description: "Append an admin message to an order's message log.",
	}, h.mcpPostOrderMessage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "customer_summary",
		Description: "Look up a customer's profile, loyalty milestones and engagement totals.",
	}, h.mcpCustomerSummary)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpListOrders(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListOrdersInput,
) (*mcp.CallToolResult, *ListOrdersOutput, error) {
	orders, err := h.backend.ListOrders(ctx, model.OrderStatus(input.Status), backendapi.Page{
		Skip: input.Skip,
		Take: input.Take,
	})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &ListOrdersOutput{Orders: orders}, nil
}

func (h *Handler) mcpGetOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetOrderInput,
) (*mcp.CallToolResult, *model.Order, error) {
	if input.ID == "" {
		return nil, nil, fmt.Errorf("id is required")
	}

	order, err := h.backend.GetOrder(ctx, input.ID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, order, nil
}

func (h *Handler) mcpAdvanceOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AdvanceOrderInput,
) (*mcp.CallToolResult, *model.Order, error) {
	if input.ID == "" {
		return nil, nil, fmt.Errorf("id is required")
	}

	var order *model.Order
	var err error
	switch input.Verb {
	case "prepare":
		order, err = h.backend.PrepareOrder(ctx, input.ID)
	case "confirm":
		order, err = h.backend.ConfirmOrder(ctx, input.ID)
	case "fulfill":
		order, err = h.backend.FulfillOrder(ctx, input.ID)
	default:
		return nil, nil, fmt.Errorf("verb must be prepare, confirm or fulfill")
	}
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, order, nil
}

func (h *Handler) mcpCancelOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CancelOrderInput,
) (*mcp.CallToolResult, *model.Order, error) {
	if input.ID == "" {
		return nil, nil, fmt.Errorf("id is required")
	}

	order, err := h.backend.CancelOrder(ctx, input.ID, input.Reason)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, order, nil
}

func (h *Handler) mcpListOrderMessages(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input OrderMessagesInput,
) (*mcp.CallToolResult, *OrderMessagesOutput, error) {
	if input.ID == "" {
		return nil, nil, fmt.Errorf("id is required")
	}

	messages, err := h.backend.ListOrderMessages(ctx, input.ID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &OrderMessagesOutput{Messages: messages}, nil
}

func (h *Handler) mcpPostOrderMessage(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PostMessageInput,
) (*mcp.CallToolResult, *model.OrderMessage, error) {
	if input.ID == "" {
		return nil, nil, fmt.Errorf("id is required")
	}
	if input.Message == "" {
		return nil, nil, fmt.Errorf("message is required")
	}

	msg, err := h.backend.PostOrderMessage(ctx, input.ID, &backendapi.PostMessageRequest{
		Author:  "ADMIN",
		Message: input.Message,
	})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, msg, nil
}

func (h *Handler) mcpCustomerSummary(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CustomerSummaryInput,
) (*mcp.CallToolResult, *CustomerSummaryOutput, error) {
	if input.UserID == "" {
		return nil, nil, fmt.Errorf("user_id is required")
	}

	detail, err := h.backend.GetUser(ctx, input.UserID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	out := &CustomerSummaryOutput{
		Name:           detail.Name,
		Email:          detail.Email,
		Phone:          detail.Phone,
		TotalPurchases: detail.TotalPurchases,
		Milestones:     loyalty.ComputeMilestones(detail.TotalPurchases),
	}

	// Engagement is an enrichment; its absence never fails the lookup.
	if engagement, err := h.backend.GetEngagement(ctx, input.UserID); err == nil {
		out.Engagement = engagement
	}

	return nil, out, nil
}

// mcpError converts backend errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	if apiErr, ok := err.(*model.APIError); ok {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
