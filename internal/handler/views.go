package handler

import (
	"merch-storefront/internal/cart"
	"merch-storefront/internal/catalog"
	"merch-storefront/internal/model"
	"merch-storefront/internal/order"
)

// Amounts in views are display strings rounded to cents. Order payloads sent
// to the intake carry exact JSON numbers instead.

// ProductView is a catalog entry with its resolved size mode.
type ProductView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       string   `json:"price"`
	Description string   `json:"description,omitempty"`
	Image       string   `json:"image,omitempty"`
	Stock       *int     `json:"stock,omitempty"`
	SizeMode    string   `json:"size_mode" jsonschema:"none, forced or choice"`
	Sizes       []string `json:"sizes,omitempty" jsonschema:"selectable sizes in display order"`
}

// CatalogView lists the products.
type CatalogView struct {
	Products []ProductView `json:"products"`
}

// LineItemView is one cart line.
type LineItemView struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Variant   *string `json:"variant"`
	Price     string  `json:"price"`
	Quantity  int     `json:"quantity"`
	LineTotal string  `json:"line_total"`
}

// CartView is the cart as shown to the buyer.
type CartView struct {
	Session string         `json:"session"`
	Items   []LineItemView `json:"items"`
	Count   int            `json:"count" jsonschema:"total units across lines"`
	Total   string         `json:"total"`
}

// OrderView confirms an accepted order.
type OrderView struct {
	OrderID      string `json:"order_id"`
	Items        int    `json:"items"`
	Total        string `json:"total"`
	Acknowledged bool   `json:"acknowledged" jsonschema:"false when the intake cannot confirm receipt"`
	Message      string `json:"message"`
}

func productView(p catalog.Product) ProductView {
	mode := p.Mode()
	v := ProductView{
		ID:          p.Key(),
		Name:        p.Name,
		Price:       model.FormatMoney(p.Price),
		Description: p.Description,
		Image:       p.Image,
		SizeMode:    mode.Kind.String(),
		Sizes:       mode.Labels,
	}
	if n, ok := p.Stock(); ok {
		v.Stock = &n
	}
	return v
}

func catalogView(products []catalog.Product) CatalogView {
	v := CatalogView{Products: make([]ProductView, len(products))}
	for i, p := range products {
		v.Products[i] = productView(p)
	}
	return v
}

func cartView(sessionID string, snap cart.Snapshot) CartView {
	items := snap.Items()
	v := CartView{
		Session: sessionID,
		Items:   make([]LineItemView, len(items)),
		Total:   model.FormatMoney(snap.Total()),
	}
	for i, li := range items {
		productID := li.ProductID
		if productID == "" {
			productID = li.DisplayName
		}
		v.Items[i] = LineItemView{
			ProductID: productID,
			Name:      li.DisplayName,
			Variant:   li.Variant.Ptr(),
			Price:     model.FormatMoney(li.UnitPrice),
			Quantity:  li.Quantity,
			LineTotal: model.FormatMoney(li.LineTotal()),
		}
		v.Count += li.Quantity
	}
	return v
}

func orderView(r *order.Receipt) OrderView {
	return OrderView{
		OrderID:      r.OrderID,
		Items:        r.Items,
		Total:        model.FormatMoney(r.Total),
		Acknowledged: r.Acknowledged,
		Message:      r.Message,
	}
}
