package handler

import (
	"context"
	"net/http"
	"strings"

	"merch-storefront/internal/cart"
	"merch-storefront/internal/catalog"
	"merch-storefront/internal/model"
	"merch-storefront/internal/order"
	"merch-storefront/internal/reconcile"
	"merch-storefront/internal/session"
)

// === Request Types ===

// Quantity accepts a JSON number or a numeric string, like the storefront's
// quantity box. Anything unparseable or non-positive becomes 1.
type Quantity int

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	*q = Quantity(cart.ParseQuantity(strings.Trim(string(data), `"`)))
	return nil
}

// AddItemRequest adds units of a product. Variant is required for products
// with a size choice and ignored for products without sizes.
type AddItemRequest struct {
	ProductID string   `json:"product_id"`
	Variant   *string  `json:"variant,omitempty"`
	Quantity  Quantity `json:"quantity,omitempty"`
}

// AdjustItemRequest changes a line's quantity by Delta; lines reaching zero are removed.
type AdjustItemRequest struct {
	ProductID string  `json:"product_id"`
	Variant   *string `json:"variant,omitempty"`
	Delta     int     `json:"delta"`
}

// RemoveItemRequest names the line to remove.
type RemoveItemRequest struct {
	ProductID string  `json:"product_id"`
	Variant   *string `json:"variant,omitempty"`
}

// ReplaceCartRequest is the complete desired cart.
type ReplaceCartRequest struct {
	Items []AddItemRequest `json:"items"`
}

// === REST Handlers ===

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Products(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, catalogView(products))
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.resolveSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartView(s.ID, s.Cart.Snapshot()))
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.resolveSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req AddItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.addItem(r.Context(), s, req.ProductID, req.Variant, int(req.Quantity)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartView(s.ID, s.Cart.Snapshot()))
}

func (h *Handler) handleAdjustItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.resolveSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req AdjustItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.adjustItem(s, req.ProductID, req.Variant, req.Delta); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartView(s.ID, s.Cart.Snapshot()))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.resolveSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req RemoveItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.removeItem(s, req.ProductID, req.Variant); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartView(s.ID, s.Cart.Snapshot()))
}

func (h *Handler) handleReplaceCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.resolveSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req ReplaceCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.replaceCart(r.Context(), s, req.Items); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartView(s.ID, s.Cart.Snapshot()))
}

func (h *Handler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	s, err := h.resolveSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var details order.Details
	if err := decodeJSON(w, r, &details); err != nil {
		h.writeError(w, err)
		return
	}
	receipt, err := h.submitOrder(r.Context(), s, details)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, orderView(receipt))
}

// === Operations shared by REST and MCP ===

func (h *Handler) product(ctx context.Context, productID string) (catalog.Product, error) {
	if productID == "" {
		return catalog.Product{}, model.NewValidationError("product_id", "is required")
	}
	products, err := h.catalog.Products(ctx)
	if err != nil {
		return catalog.Product{}, err
	}
	p, ok := catalog.Find(products, productID)
	if !ok {
		return catalog.Product{}, model.NewNotFoundError("product " + productID)
	}
	return p, nil
}

// selectVariant validates the requested size against the product's mode.
func selectVariant(p catalog.Product, requested *string) (cart.Variant, error) {
	if requested != nil && *requested == "" {
		requested = nil
	}
	label, err := p.Mode().Select(requested)
	if err != nil {
		return cart.NoVariant, err
	}
	return cart.ParseVariant(label), nil
}

func lineKey(productID string, variant *string) (cart.Key, error) {
	if productID == "" {
		return cart.Key{}, model.NewValidationError("product_id", "is required")
	}
	return cart.Key{Product: productID, Variant: cart.ParseVariant(variant)}, nil
}

func (h *Handler) addItem(ctx context.Context, s *session.Session, productID string, variant *string, quantity int) error {
	p, err := h.product(ctx, productID)
	if err != nil {
		return err
	}
	v, err := selectVariant(p, variant)
	if err != nil {
		return err
	}
	s.Edit(func(c *cart.Store) { c.Add(p, v, quantity) })
	return nil
}

// adjustItem works from the line key alone so lines stay editable after their
// product leaves the catalog. Unknown lines are a no-op.
func (h *Handler) adjustItem(s *session.Session, productID string, variant *string, delta int) error {
	key, err := lineKey(productID, variant)
	if err != nil {
		return err
	}
	s.Edit(func(c *cart.Store) { c.AdjustQuantity(key, delta) })
	return nil
}

func (h *Handler) removeItem(s *session.Session, productID string, variant *string) error {
	key, err := lineKey(productID, variant)
	if err != nil {
		return err
	}
	s.Edit(func(c *cart.Store) { c.Remove(key) })
	return nil
}

// replaceCart validates every desired line before touching the cart, so a
// bad line leaves the cart unchanged. Lines are dropped by omitting them.
func (h *Handler) replaceCart(ctx context.Context, s *session.Session, items []AddItemRequest) error {
	desired := make([]reconcile.Desired, 0, len(items))
	for _, it := range items {
		p, err := h.product(ctx, it.ProductID)
		if err != nil {
			return err
		}
		v, err := selectVariant(p, it.Variant)
		if err != nil {
			return err
		}
		qty := int(it.Quantity)
		if qty <= 0 {
			qty = 1 // omitted
		}
		desired = append(desired, reconcile.Desired{Product: p, Variant: v, Quantity: qty})
	}

	s.Edit(func(c *cart.Store) {
		plan := reconcile.Diff(c.Snapshot().Items(), desired)
		reconcile.Apply(c, plan)
	})
	return nil
}

func (h *Handler) submitOrder(ctx context.Context, s *session.Session, details order.Details) (*order.Receipt, error) {
	// Rejections that never reach the intake do not spend a token.
	if err := s.Orders.Check(details); err != nil {
		return nil, err
	}
	if h.limiter != nil && !h.limiter.Allow() {
		return nil, model.NewRateLimitError()
	}
	// A buyer closing the page must not abort a delivery already under way;
	// the submitter bounds it with its own timeout.
	return s.Orders.Submit(context.WithoutCancel(ctx), details)
}
