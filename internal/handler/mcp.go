// MCP transport for the storefront using the official MCP Go SDK.
// Exposes catalog browsing, cart editing and order submission as tools so an
// assistant can shop on a buyer's behalf.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"merch-storefront/internal/identity"
	"merch-storefront/internal/model"
	"merch-storefront/internal/order"
	"merch-storefront/internal/session"
)

// === MCP Tool Input Types ===
// Every cart tool takes the storefront session id returned by earlier calls.
// Omitting it starts a new, empty cart.

// ListCatalogInput is the input schema for list_catalog.
type ListCatalogInput struct{}

// ViewCartInput is the input schema for view_cart.
type ViewCartInput struct {
	Session string `json:"session,omitempty" jsonschema:"storefront session id; omit to start a new cart"`
}

// AddToCartInput is the input schema for add_to_cart.
type AddToCartInput struct {
	Session   string `json:"session,omitempty" jsonschema:"storefront session id; omit to start a new cart"`
	Customer  string `json:"customer,omitempty" jsonschema:"name to put on the order"`
	ProductID string `json:"product_id" jsonschema:"product id from list_catalog"`
	Size      string `json:"size,omitempty" jsonschema:"one of the product's sizes; required when size_mode is choice"`
	Quantity  int    `json:"quantity,omitempty" jsonschema:"units to add; defaults to 1"`
}

// AdjustQuantityInput is the input schema for adjust_quantity.
type AdjustQuantityInput struct {
	Session   string `json:"session" jsonschema:"storefront session id"`
	ProductID string `json:"product_id" jsonschema:"product id of the cart line"`
	Size      string `json:"size,omitempty" jsonschema:"size of the cart line, if any"`
	Delta     int    `json:"delta" jsonschema:"signed change; lines reaching zero are removed"`
}

// RemoveFromCartInput is the input schema for remove_from_cart.
type RemoveFromCartInput struct {
	Session   string `json:"session" jsonschema:"storefront session id"`
	ProductID string `json:"product_id" jsonschema:"product id of the cart line"`
	Size      string `json:"size,omitempty" jsonschema:"size of the cart line, if any"`
}

// SubmitOrderInput is the input schema for submit_order.
type SubmitOrderInput struct {
	Session  string `json:"session" jsonschema:"storefront session id"`
	Customer string `json:"customer,omitempty" jsonschema:"name to put on the order"`
	Email    string `json:"email,omitempty"`
	Callsign string `json:"callsign,omitempty"`
	Region   string `json:"region,omitempty"`
}

// NewMCPServer creates an MCP server with storefront tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "merch-storefront",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Merch storefront. Browse with list_catalog, build a cart with add_to_cart, " +
				"then place the order with submit_order. Payment is collected in person.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_catalog",
		Description: "List products with prices, stock and selectable sizes.",
	}, h.mcpListCatalog)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_cart",
		Description: "Show the cart's lines and total.",
	}, h.mcpViewCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add units of a product. Adding the same product and size again increases the existing line.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "adjust_quantity",
		Description: "Change a cart line's quantity by a signed delta.",
	}, h.mcpAdjustQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_cart",
		Description: "Remove a cart line.",
	}, h.mcpRemoveFromCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_order",
		Description: "Send the cart as an order. The cart is emptied only when the order is accepted.",
	}, h.mcpSubmitOrder)

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

func (h *Handler) mcpListCatalog(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListCatalogInput,
) (*mcp.CallToolResult, *CatalogView, error) {
	products, err := h.catalog.Products(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	v := catalogView(products)
	return nil, &v, nil
}

func (h *Handler) mcpViewCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ViewCartInput,
) (*mcp.CallToolResult, *CartView, error) {
	s := h.mcpSession(input.Session, "")
	return nil, h.mcpCart(s), nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, *CartView, error) {
	s := h.mcpSession(input.Session, input.Customer)
	if err := h.addItem(ctx, s, input.ProductID, optional(input.Size), input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.mcpCart(s), nil
}

func (h *Handler) mcpAdjustQuantity(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AdjustQuantityInput,
) (*mcp.CallToolResult, *CartView, error) {
	s := h.mcpSession(input.Session, "")
	if err := h.adjustItem(s, input.ProductID, optional(input.Size), input.Delta); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.mcpCart(s), nil
}

func (h *Handler) mcpRemoveFromCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveFromCartInput,
) (*mcp.CallToolResult, *CartView, error) {
	s := h.mcpSession(input.Session, "")
	if err := h.removeItem(s, input.ProductID, optional(input.Size)); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, h.mcpCart(s), nil
}

func (h *Handler) mcpSubmitOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SubmitOrderInput,
) (*mcp.CallToolResult, *OrderView, error) {
	s := h.mcpSession(input.Session, input.Customer)
	receipt, err := h.submitOrder(ctx, s, order.Details{
		Email:    input.Email,
		Callsign: input.Callsign,
		Region:   input.Region,
	})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	v := orderView(receipt)
	return nil, &v, nil
}

// mcpSession finds or creates the storefront session named by a tool call.
func (h *Handler) mcpSession(id, customer string) *session.Session {
	s, _ := h.sessions.GetOrCreate(id)
	if customer != "" {
		s.SetIdentity(identity.Static(customer))
	}
	return s
}

func (h *Handler) mcpCart(s *session.Session) *CartView {
	v := cartView(s.ID, s.Cart.Snapshot())
	return &v
}

// mcpError converts storefront errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
