// storefrontctl is a CLI tool for exercising storefront cart and order flows.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	storefrontctl catalog -server URL
//	storefrontctl cart -server URL -session ID
//	storefrontctl add -server URL [-session ID] -product ID [-size S] [-qty N] [-name NAME]
//	storefrontctl adjust -server URL -session ID -product ID [-size S] -delta N
//	storefrontctl remove -server URL -session ID -product ID [-size S]
//	storefrontctl submit -server URL -session ID [-email E] [-callsign C] [-region R] [-name NAME]
//
// Examples:
//
//	SID=$(storefrontctl add -server http://localhost:8080 -product tee1 -size M -q)
//	storefrontctl add -server http://localhost:8080 -session $SID -product mug -qty 2
//	storefrontctl adjust -server http://localhost:8080 -session $SID -product mug -delta -1
//	storefrontctl submit -server http://localhost:8080 -session $SID -email ghost@example.com -name ghost
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"

	"merch-storefront/internal/handler"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	sessionID string
	buyerName string
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
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "catalog":
		runCatalog(args)
	case "cart":
		runCart(args)
	case "add":
		runAdd(args)
	case "adjust":
		runAdjust(args)
	case "remove":
		runRemove(args)
	case "submit":
		runSubmit(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `storefrontctl - storefront cart and order test tool

Usage:
  storefrontctl <command> [options]

Commands:
  catalog   List products, prices and sizes
  cart      Show a session's cart
  add       Add a product to the cart (starts a session if -session is empty)
  adjust    Change a cart line's quantity by a signed delta
  remove    Remove a cart line
  submit    Send the cart as an order

Examples:
  # Start a cart and capture the session ID
  SID=$(storefrontctl add -server http://localhost:8080 -product tee1 -size M -q)

  # Add more and review
  storefrontctl add -server http://localhost:8080 -session "$SID" -product mug -qty 2
  storefrontctl cart -server http://localhost:8080 -session "$SID"

  # Place the order
  storefrontctl submit -server http://localhost:8080 -session "$SID" -email ghost@example.com

The session may also be set with STOREFRONT_SESSION.
Run 'storefrontctl <command> -h' for command-specific options.
`)
}

// commonFlags registers the flags every command accepts.
func commonFlags(fs *flag.FlagSet) {
	fs.StringVar(&serverURL, "server", "http://localhost:8080", "Storefront base URL")
	fs.StringVar(&sessionID, "session", os.Getenv("STOREFRONT_SESSION"), "Storefront session ID")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
}

func parseFlags(fs *flag.FlagSet, usage string, args []string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: storefrontctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// CATALOG COMMAND
// =============================================================================

func runCatalog(args []string) {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	commonFlags(fs)
	parseFlags(fs, "catalog [options]", args)

	var v handler.CatalogView
	if err := doRequest("GET", "/catalog", nil, &v); err != nil {
		fatal("Failed to load catalog: %v", err)
	}

	for _, p := range v.Products {
		if quiet {
			fmt.Println(p.ID)
			continue
		}
		stock := ""
		if p.Stock != nil {
			stock = fmt.Sprintf(" %s[%d in stock]%s", colorGray, *p.Stock, colorReset)
		}
		fmt.Printf("  %s%-12s%s %-28s %s%8s%s%s\n", colorCyan, p.ID, colorReset, p.Name, colorGreen, p.Price, colorReset, stock)
		switch p.SizeMode {
		case "forced":
			fmt.Printf("    size: %s (one size)\n", p.Sizes[0])
		case "choice":
			fmt.Printf("    sizes: %s\n", strings.Join(p.Sizes, ", "))
		}
	}
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runCart(args []string) {
	fs := flag.NewFlagSet("cart", flag.ExitOnError)
	commonFlags(fs)
	parseFlags(fs, "cart -session ID [options]", args)
	requireSession(fs)

	var v handler.CartView
	if err := doRequest("GET", "/cart", nil, &v); err != nil {
		fatal("Failed to get cart: %v", err)
	}
	printCart(v)
}

func runAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	commonFlags(fs)
	var productID, size string
	var quantity int
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.StringVar(&size, "size", "", "Size label, for products with a size choice")
	fs.IntVar(&quantity, "qty", 1, "Quantity")
	fs.StringVar(&buyerName, "name", "", "Name to put on the order")
	parseFlags(fs, "add -product ID [options]", args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	req := handler.AddItemRequest{
		ProductID: productID,
		Variant:   optional(size),
		Quantity:  handler.Quantity(quantity),
	}
	var v handler.CartView
	if err := doRequest("POST", "/cart/items", req, &v); err != nil {
		fatal("Failed to add item: %v", err)
	}

	if quiet {
		fmt.Println(v.Session)
		return
	}
	printSuccess("Added %s", productID)
	printCart(v)
}

func runAdjust(args []string) {
	fs := flag.NewFlagSet("adjust", flag.ExitOnError)
	commonFlags(fs)
	var productID, size string
	var delta int
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.StringVar(&size, "size", "", "Size of the cart line, if any")
	fs.IntVar(&delta, "delta", 0, "Signed quantity change (required)")
	parseFlags(fs, "adjust -session ID -product ID -delta N [options]", args)
	requireSession(fs)

	if productID == "" || delta == 0 {
		fs.Usage()
		os.Exit(1)
	}

	req := handler.AdjustItemRequest{ProductID: productID, Variant: optional(size), Delta: delta}
	var v handler.CartView
	if err := doRequest("PATCH", "/cart/items", req, &v); err != nil {
		fatal("Failed to adjust item: %v", err)
	}
	printSuccess("Adjusted %s by %+d", productID, delta)
	printCart(v)
}

func runRemove(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	commonFlags(fs)
	var productID, size string
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.StringVar(&size, "size", "", "Size of the cart line, if any")
	parseFlags(fs, "remove -session ID -product ID [options]", args)
	requireSession(fs)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	req := handler.RemoveItemRequest{ProductID: productID, Variant: optional(size)}
	var v handler.CartView
	if err := doRequest("POST", "/cart/items/remove", req, &v); err != nil {
		fatal("Failed to remove item: %v", err)
	}
	printSuccess("Removed %s", productID)
	printCart(v)
}

// =============================================================================
// SUBMIT COMMAND
// =============================================================================

func runSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	commonFlags(fs)
	var email, callsign, region string
	fs.StringVar(&email, "email", "", "Buyer email")
	fs.StringVar(&callsign, "callsign", "", "Buyer callsign")
	fs.StringVar(&region, "region", "", "Buyer region")
	fs.StringVar(&buyerName, "name", "", "Name to put on the order")
	parseFlags(fs, "submit -session ID [options]", args)
	requireSession(fs)

	body := map[string]string{"email": email, "callsign": callsign, "region": region}
	var v handler.OrderView
	if err := doRequest("POST", "/orders", body, &v); err != nil {
		fatal("Failed to submit order: %v", err)
	}

	if quiet {
		fmt.Println(v.OrderID)
		return
	}
	printSuccess("%s", v.Message)
	fmt.Printf("  Order: %s%s%s\n", colorCyan, v.OrderID, colorReset)
	fmt.Printf("  Items: %d  Total: %s%s%s\n", v.Items, colorGreen, v.Total, colorReset)
	if !v.Acknowledged {
		printWarning("Intake did not confirm receipt")
	}
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// errorEnvelope mirrors the storefront's error response body.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

func doRequest(method, path string, body, out interface{}) error {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, serverURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h := sessionHeader(); h != "" {
		req.Header.Set(handler.SessionHeader, h)
	}

	if verbose {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		var e errorEnvelope
		if json.Unmarshal(respBody, &e) == nil && e.Error.Code != "" {
			return fmt.Errorf("%s: %s", e.Error.Code, e.Error.Message)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// sessionHeader builds the Storefront-Session value from -session and -name.
func sessionHeader() string {
	if sessionID == "" && buyerName == "" {
		return ""
	}
	dict := httpsfv.NewDictionary()
	if sessionID != "" {
		dict.Add("id", httpsfv.NewItem(sessionID))
	}
	if buyerName != "" {
		dict.Add("name", httpsfv.NewItem(buyerName))
	}
	h, err := httpsfv.Marshal(dict)
	if err != nil {
		fatal("Invalid session or name (printable ASCII only): %v", err)
	}
	return h
}

func requireSession(fs *flag.FlagSet) {
	if sessionID == "" {
		fmt.Fprintf(os.Stderr, "%s-session is required%s\n\n", colorRed, colorReset)
		fs.Usage()
		os.Exit(1)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printCart(v handler.CartView) {
	if quiet {
		fmt.Println(v.Total)
		return
	}
	fmt.Printf("  Session: %s%s%s\n", colorCyan, v.Session, colorReset)
	if len(v.Items) == 0 {
		fmt.Printf("  %s(cart is empty)%s\n", colorGray, colorReset)
		return
	}
	for _, li := range v.Items {
		name := li.Name
		if li.Variant != nil {
			name = fmt.Sprintf("%s (%s)", name, *li.Variant)
		}
		fmt.Printf("    %3d × %-30s %8s\n", li.Quantity, name, li.LineTotal)
	}
	fmt.Printf("  %sTotal: %s%s (%d items)\n", colorBold, v.Total, colorReset, v.Count)
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
	fmt.Println(pretty.String())
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
