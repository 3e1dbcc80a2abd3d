// orderctl is a CLI tool for exercising orderflow sessions and the
// admin order board. Each command performs a single operation, making
// it composable for scripts.
//
// Commands:
//
//	orderctl add -server URL -session ID -product ID [-qty N] [-side NAME]
//	orderctl cart -server URL -session ID
//	orderctl discount -server URL -session ID -code CODE
//	orderctl submit -server URL -session ID -name NAME -address ADDR -email EMAIL -payment METHOD
//	orderctl orders -server URL [-status STATUS] [-skip N] [-take N]
//	orderctl advance -server URL -id ORDER -verb prepare|confirm|fulfill
//	orderctl cancel -server URL -id ORDER [-reason TEXT]
//	orderctl message -server URL -id ORDER -text TEXT
//	orderctl reorder -server URL -session ID -id ORDER
//
// Examples:
//
//	orderctl add -session s1 -product combo-1 -side fries
//	orderctl discount -session s1 -code PROMO10
//	orderctl submit -session s1 -name Ana -address "Calle 1 #2-3" -email ana@example.com -payment cash
//	orderctl orders -status RECEIVED
//	orderctl advance -id o1 -verb confirm
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

// clientVersion travels in the Order-Client header; the service
// rejects versions below its configured minimum.
const clientVersion = "1.0.0"

// Global flags (apply to all commands)
var (
	serverURL string
	sessionID string
	userID    string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorBlue, colorCyan, colorGray, colorBold = "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "add":
		runAdd(args)
	case "cart":
		runCart(args)
	case "discount":
		runDiscount(args)
	case "submit":
		runSubmit(args)
	case "orders":
		runOrders(args)
	case "advance":
		runAdvance(args)
	case "cancel":
		runCancel(args)
	case "message":
		runMessage(args)
	case "reorder":
		runReorder(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `orderctl - orderflow session and admin board tool

Usage:
  orderctl <command> [options]

Commands:
  add       Add a catalog product to the session cart
  cart      Show the session cart with totals
  discount  Apply or remove a discount code
  submit    Submit the checkout with customer details
  orders    List orders on the admin board
  advance   Advance an order: prepare, confirm or fulfill
  cancel    Cancel an order with a reason
  message   Post an admin message to an order
  reorder   Push a past order's items back into the cart

Examples:
  # Build a cart and check totals
  orderctl add -session s1 -product combo-1 -side fries
  orderctl add -session s1 -product extra-1 -qty 2
  orderctl cart -session s1

  # Apply a discount and submit
  orderctl discount -session s1 -code PROMO10
  orderctl submit -session s1 -name Ana -address "Calle 1 #2-3" \
    -email ana@example.com -payment cash

  # Work the admin board
  orderctl orders -status RECEIVED
  orderctl advance -id o1 -verb confirm

Run 'orderctl <command> -h' for command-specific options.
`)
}

// commonFlags registers the flags shared by every command.
func commonFlags(fs *flag.FlagSet) {
	fs.StringVar(&serverURL, "server", "http://localhost:8080", "orderflow base URL")
	fs.StringVar(&sessionID, "session", "", "session ID (Order-Session header)")
	fs.StringVar(&userID, "user", "", "user ID for a registered session (Order-User header)")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - minimal output")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	commonFlags(fs)
	var productID, side string
	var qty int
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.IntVar(&qty, "qty", 1, "Quantity")
	fs.StringVar(&side, "side", "", "Side selection for combos")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orderctl add -session ID -product ID [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if sessionID == "" || productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("POST", "/cart/items", map[string]interface{}{
		"productId": productID,
		"quantity":  qty,
		"side":      side,
	})
	if err != nil {
		fatal("Failed to add item: %v", err)
	}

	printCart(resp)
}

func runCart(args []string) {
	fs := flag.NewFlagSet("cart", flag.ExitOnError)
	commonFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orderctl cart -session ID [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if sessionID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("GET", "/cart", nil)
	if err != nil {
		fatal("Failed to get cart: %v", err)
	}

	printCart(resp)
}

func runDiscount(args []string) {
	fs := flag.NewFlagSet("discount", flag.ExitOnError)
	commonFlags(fs)
	var code string
	var remove bool
	fs.StringVar(&code, "code", "", "Discount code to apply")
	fs.BoolVar(&remove, "remove", false, "Remove the applied discount")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orderctl discount -session ID -code CODE [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if sessionID == "" || (code == "" && !remove) {
		fs.Usage()
		os.Exit(1)
	}

	if remove {
		resp, err := doRequest("DELETE", "/cart/discount", nil)
		if err != nil {
			fatal("Failed to remove discount: %v", err)
		}
		printSuccess("Discount removed")
		printCart(resp)
		return
	}

	resp, err := doRequest("POST", "/cart/discount", map[string]interface{}{"code": code})
	if err != nil {
		fatal("Failed to apply discount: %v", err)
	}

	outcome, _ := resp["outcome"].(string)
	if quiet {
		fmt.Println(outcome)
		return
	}
	switch outcome {
	case "APPLIED":
		printSuccess("Discount applied")
	default:
		printWarning("Outcome: %s", outcome)
	}
	if cart, ok := resp["cart"].(map[string]interface{}); ok {
		printCart(cart)
	}
}

// =============================================================================
// SUBMIT COMMAND
// =============================================================================

func runSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	commonFlags(fs)
	var name, address, email, phone, payment, notes string
	fs.StringVar(&name, "name", "", "Customer name (required)")
	fs.StringVar(&address, "address", "", "Delivery address (required)")
	fs.StringVar(&email, "email", "", "Customer email (required)")
	fs.StringVar(&phone, "phone", "", "Customer phone")
	fs.StringVar(&payment, "payment", "cash", "Payment method")
	fs.StringVar(&notes, "notes", "", "Delivery notes")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orderctl submit -session ID -name NAME -address ADDR -email EMAIL [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if sessionID == "" || name == "" || address == "" || email == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("POST", "/checkout/submit", map[string]interface{}{
		"form": map[string]interface{}{
			"name":           name,
			"address":        address,
			"email":          email,
			"phone":          phone,
			"payment_method": payment,
			"notes":          notes,
		},
	})
	if err != nil {
		fatal("Failed to submit: %v", err)
	}

	deepLink, _ := resp["deepLink"].(string)
	if quiet {
		fmt.Println(deepLink)
		return
	}

	printSuccess("Order submitted")
	if orderCode, ok := resp["orderCode"].(string); ok && orderCode != "" {
		fmt.Printf("  Order: %s%s%s\n", colorGreen, orderCode, colorReset)
	}
	if deepLink != "" {
		fmt.Printf("  WhatsApp: %s%s%s\n", colorBlue, deepLink, colorReset)
	}
}

// =============================================================================
// ADMIN COMMANDS
// =============================================================================

func runOrders(args []string) {
	fs := flag.NewFlagSet("orders", flag.ExitOnError)
	commonFlags(fs)
	var status string
	var skip, take int
	fs.StringVar(&status, "status", "", "Filter by status (RECEIVED, PREPARING, CONFIRMED, FULFILLED, CANCELLED)")
	fs.IntVar(&skip, "skip", 0, "Orders to skip")
	fs.IntVar(&take, "take", 20, "Page size")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orderctl orders [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}

	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if skip > 0 {
		query.Set("skip", fmt.Sprint(skip))
	}
	if take > 0 {
		query.Set("take", fmt.Sprint(take))
	}

	path := "/admin/orders"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp, err := doRequest("GET", path, nil)
	if err != nil {
		fatal("Failed to list orders: %v", err)
	}

	orders, _ := resp["orders"].([]interface{})
	if quiet {
		for _, o := range orders {
			if m, ok := o.(map[string]interface{}); ok {
				fmt.Println(m["id"])
			}
		}
		return
	}

	printSuccess("%d order(s)", len(orders))
	for _, o := range orders {
		m, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("  %s%v%s  %s%v%s  %s  %s\n",
			colorCyan, m["id"], colorReset,
			colorYellow, m["status"], colorReset,
			fmt.Sprint(m["customerName"]), formatMinor(m["totalGross"]))
	}
}

func runAdvance(args []string) {
	fs := flag.NewFlagSet("advance", flag.ExitOnError)
	commonFlags(fs)
	var orderID, verb string
	fs.StringVar(&orderID, "id", "", "Order ID (required)")
	fs.StringVar(&verb, "verb", "", "Lifecycle verb: prepare, confirm, fulfill (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orderctl advance -id ORDER -verb VERB [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if orderID == "" || verb == "" {
		fs.Usage()
		os.Exit(1)
	}
	switch verb {
	case "prepare", "confirm", "fulfill":
	default:
		fatal("Unknown verb: %s (use: prepare, confirm, fulfill)", verb)
	}

	resp, err := doRequest("POST", "/admin/orders/"+url.PathEscape(orderID)+"/"+verb, nil)
	if err != nil {
		fatal("Failed to advance order: %v", err)
	}

	status, _ := resp["status"].(string)
	if quiet {
		fmt.Println(status)
	} else {
		printSuccess("Order %s → %s", orderID, status)
	}
}

func runCancel(args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	commonFlags(fs)
	var orderID, reason string
	fs.StringVar(&orderID, "id", "", "Order ID (required)")
	fs.StringVar(&reason, "reason", "", "Cancellation reason")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orderctl cancel -id ORDER [-reason TEXT] [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if orderID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("POST", "/admin/orders/"+url.PathEscape(orderID)+"/cancel",
		map[string]interface{}{"reason": reason})
	if err != nil {
		fatal("Failed to cancel order: %v", err)
	}

	status, _ := resp["status"].(string)
	if quiet {
		fmt.Println(status)
	} else {
		printSuccess("Order %s cancelled", orderID)
	}
}

func runMessage(args []string) {
	fs := flag.NewFlagSet("message", flag.ExitOnError)
	commonFlags(fs)
	var orderID, text string
	fs.StringVar(&orderID, "id", "", "Order ID (required)")
	fs.StringVar(&text, "text", "", "Message text (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orderctl message -id ORDER -text TEXT [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if orderID == "" || text == "" {
		fs.Usage()
		os.Exit(1)
	}

	_, err := doRequest("POST", "/admin/orders/"+url.PathEscape(orderID)+"/messages",
		map[string]interface{}{"author": "ADMIN", "message": text})
	if err != nil {
		fatal("Failed to post message: %v", err)
	}
	printSuccess("Message posted")
}

func runReorder(args []string) {
	fs := flag.NewFlagSet("reorder", flag.ExitOnError)
	commonFlags(fs)
	var orderID string
	fs.StringVar(&orderID, "id", "", "Order ID (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orderctl reorder -session ID -id ORDER [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if sessionID == "" || orderID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("POST", "/orders/"+url.PathEscape(orderID)+"/reorder", nil)
	if err != nil {
		fatal("Failed to reorder: %v", err)
	}

	reorderable, _ := resp["reorderable"].(bool)
	if !reorderable {
		printWarning("Order is not reorderable")
		return
	}
	printSuccess("Items added to cart")
	if cart, ok := resp["cart"].(map[string]interface{}); ok {
		printCart(cart)
	}
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	reqURL := serverURL + path
	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Order-Client",
		fmt.Sprintf(`app="admin", version=%q, platform="cli"`, clientVersion))
	if sessionID != "" {
		req.Header.Set("Order-Session", sessionID)
	}
	if userID != "" {
		req.Header.Set("Order-User", userID)
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return result, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printCart(cart map[string]interface{}) {
	if quiet {
		if label, ok := cart["totalLabel"].(string); ok {
			fmt.Println(label)
		}
		return
	}

	items, _ := cart["items"].([]interface{})
	fmt.Printf("%sCart%s (%v item(s)):\n", colorBold, colorReset, cart["count"])
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		product, _ := m["product"].(map[string]interface{})
		line := fmt.Sprintf("  %vx %v", m["quantity"], product["name"])
		if side, ok := m["side"].(string); ok && side != "" {
			line += fmt.Sprintf(" (%s)", side)
		}
		fmt.Println(line)
	}
	if code, ok := cart["discountCode"].(string); ok && code != "" {
		fmt.Printf("  Discount %s%s%s: -%s\n", colorYellow, code, colorReset, formatMinor(cart["discountAmount"]))
	}
	if cleared, ok := cart["discountCleared"].(bool); ok && cleared {
		printWarning("Applied discount is no longer valid and was removed")
	}
	fmt.Printf("  Total: %s%v%s\n", colorGreen, cart["totalLabel"], colorReset)
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}

	output := pretty.String()
	if !verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > 30 {
			lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s", prefix, colorGray, len(lines)-25, colorReset))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Println(output)
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func formatMinor(v interface{}) string {
	switch val := v.(type) {
	case float64:
		return fmt.Sprintf("$ %.0f", val)
	case int:
		return fmt.Sprintf("$ %d", val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
