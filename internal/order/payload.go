package order

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"merch-storefront/internal/cart"
	"merch-storefront/internal/model"
)

// TimestampLayout matches JavaScript's Date.toISOString, which intake scripts
// already parse.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Field names an optional buyer detail a deployment may require.
type Field string

const (
	FieldEmail    Field = "email"
	FieldCallsign Field = "callsign"
	FieldRegion   Field = "region"
)

// fieldOrder is the order in which required fields are validated.
var fieldOrder = []Field{FieldEmail, FieldCallsign, FieldRegion}

// ParseFields converts configured field names, rejecting unknown ones.
func ParseFields(names []string) ([]Field, error) {
	fields := make([]Field, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		f := Field(n)
		switch f {
		case FieldEmail, FieldCallsign, FieldRegion:
			fields = append(fields, f)
		default:
			return nil, model.NewValidationError("required_fields", "contains unknown field "+n)
		}
	}
	return fields, nil
}

// Details are buyer-entered fields beyond the display name.
type Details struct {
	Email    string `json:"email,omitempty"`
	Callsign string `json:"callsign,omitempty"`
	Region   string `json:"region,omitempty"`
}

// Value returns the detail for f.
func (d Details) Value(f Field) string {
	switch f {
	case FieldEmail:
		return d.Email
	case FieldCallsign:
		return d.Callsign
	case FieldRegion:
		return d.Region
	}
	return ""
}

// Payload is the order document sent to the intake endpoint.
// It is built once per submission from a cart snapshot and never re-read.
type Payload struct {
	OrderID   string
	Customer  string
	Items     []cart.LineItem
	Total     decimal.Decimal
	Currency  string
	Timestamp string
	Details   Details
}

type wirePayload struct {
	OrderID   string      `json:"order_id"`
	Customer  string      `json:"customer"`
	Items     []wireItem  `json:"items"`
	Total     json.Number `json:"total"`
	Currency  string      `json:"currency,omitempty"`
	Timestamp string      `json:"timestamp"`
	Email     string      `json:"email,omitempty"`
	Callsign  string      `json:"callsign,omitempty"`
	Region    string      `json:"region,omitempty"`
}

type wireItem struct {
	ProductID string       `json:"product_id,omitempty"`
	Name      string       `json:"name"`
	Variant   cart.Variant `json:"variant"`
	Price     json.Number  `json:"price"`
	Quantity  int          `json:"quantity"`
	LineTotal json.Number  `json:"line_total"`
}

// MarshalJSON writes amounts as exact JSON numbers and "no variant" as null.
func (p *Payload) MarshalJSON() ([]byte, error) {
	items := make([]wireItem, len(p.Items))
	for i, li := range p.Items {
		items[i] = wireItem{
			ProductID: li.ProductID,
			Name:      li.DisplayName,
			Variant:   li.Variant,
			Price:     model.JSONAmount(li.UnitPrice),
			Quantity:  li.Quantity,
			LineTotal: model.JSONAmount(li.LineTotal()),
		}
	}
	return json.Marshal(wirePayload{
		OrderID:   p.OrderID,
		Customer:  p.Customer,
		Items:     items,
		Total:     model.JSONAmount(p.Total),
		Currency:  p.Currency,
		Timestamp: p.Timestamp,
		Email:     p.Details.Email,
		Callsign:  p.Details.Callsign,
		Region:    p.Details.Region,
	})
}
