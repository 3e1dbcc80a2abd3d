package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"orderflow/internal/model"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

func TestMCPServerCreation(t *testing.T) {
	h, _ := testHandler(t, &fakeBackend{})
	if h.NewMCPServer() == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if h.NewMCPHandler() == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPToolsList(t *testing.T) {
	_, mux := testHandler(t, &fakeBackend{})

	// Initialize the MCP session first.
	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}
	initBody, _ := json.Marshal(initReq)
	initHTTPReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(initBody))
	setMCPHeaders(initHTTPReq, "")
	initW := httptest.NewRecorder()
	mux.ServeHTTP(initW, initHTTPReq)

	sessionID := initW.Header().Get("Mcp-Session-Id")

	listReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/list",
	}
	listBody, _ := json.Marshal(listReq)
	listHTTPReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(listBody))
	setMCPHeaders(listHTTPReq, sessionID)
	listW := httptest.NewRecorder()
	mux.ServeHTTP(listW, listHTTPReq)

	if listW.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", listW.Code, http.StatusOK, listW.Body.String())
	}

	jsonData, err := parseSSEResponse(listW.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	var toolsResult struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expected := map[string]bool{
		"list_orders":         false,
		"get_order":           false,
		"advance_order":       false,
		"cancel_order":        false,
		"list_order_messages": false,
		"post_order_message":  false,
		"customer_summary":    false,
	}
	for _, tool := range toolsResult.Tools {
		if _, ok := expected[tool.Name]; ok {
			expected[tool.Name] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPAdvanceOrder(t *testing.T) {
	backend := &fakeBackend{}
	h, _ := testHandler(t, backend)

	_, order, err := h.mcpAdvanceOrder(context.Background(), nil, AdvanceOrderInput{
		ID: "o1", Verb: "confirm",
	})
	if err != nil {
		t.Fatalf("advance_order error: %v", err)
	}
	if order.ID != "o1" {
		t.Errorf("order.ID = %s, want o1", order.ID)
	}

	backend.mu.Lock()
	transitions := backend.transitions
	backend.mu.Unlock()
	if len(transitions) != 1 || transitions[0] != "confirm:o1" {
		t.Errorf("transitions = %v, want [confirm:o1]", transitions)
	}

	if _, _, err := h.mcpAdvanceOrder(context.Background(), nil, AdvanceOrderInput{
		ID: "o1", Verb: "teleport",
	}); err == nil {
		t.Error("expected error for unknown verb")
	}

	if _, _, err := h.mcpAdvanceOrder(context.Background(), nil, AdvanceOrderInput{
		Verb: "confirm",
	}); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestMCPCustomerSummary(t *testing.T) {
	backend := &fakeBackend{
		getUserFunc: func(userID string) (*model.UserDetail, error) {
			return &model.UserDetail{
				ID: userID, Name: "Ana", TotalPurchases: 9,
			}, nil
		},
	}
	h, _ := testHandler(t, backend)

	_, out, err := h.mcpCustomerSummary(context.Background(), nil, CustomerSummaryInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("customer_summary error: %v", err)
	}
	if out.Name != "Ana" || out.TotalPurchases != 9 {
		t.Errorf("out = %+v, want Ana with 9 purchases", out)
	}
	if out.Milestones.Next <= 9 {
		t.Errorf("Milestones.Next = %d, want above current purchases", out.Milestones.Next)
	}
	if out.Engagement == nil || out.Engagement.TotalOrders != 4 {
		t.Errorf("Engagement = %+v, want totals from backend", out.Engagement)
	}
}
