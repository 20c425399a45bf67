// Package catalog normalizes the published product catalog into typed products.
// Parsing is pure; fetching and caching live in fetch.go.
package catalog

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/mod/semver"

	"merch-storefront/internal/model"
	"merch-storefront/internal/variant"
)

// SupportedSchema is the catalog schema major version this client understands.
const SupportedSchema = "v1"

// MaxStock caps every stock figure, per variant and in total.
const MaxStock = math.MaxInt32

// Product is one normalized catalog entry.
// When VariantStock is non-nil it is authoritative for display and FlatStock is ignored.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Description  string          `json:"description,omitempty"`
	Image        string          `json:"image,omitempty"`
	VariantStock map[string]int  `json:"sizes,omitempty"`
	FlatStock    *int            `json:"stock,omitempty"`
}

// Key is the product half of cart identity: the ID, or the name for records without one.
func (p Product) Key() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Name
}

// Mode resolves the size-selection mode from the product's variant stock.
func (p Product) Mode() variant.Mode {
	return variant.Resolve(p.VariantStock)
}

// Stock returns the displayed stock level and whether the catalog published one.
// Stock is a rendering hint only, never a reservation.
func (p Product) Stock() (int, bool) {
	if p.VariantStock != nil {
		var total int64
		for _, n := range p.VariantStock {
			total = min(total+int64(n), MaxStock)
		}
		return int(total), true
	}
	if p.FlatStock != nil {
		return *p.FlatStock, true
	}
	return 0, false
}

// Find returns the product whose Key matches key.
func Find(products []Product, key string) (Product, bool) {
	for _, p := range products {
		if p.Key() == key {
			return p, true
		}
	}
	return Product{}, false
}

// Parse normalizes a raw catalog document of shape {"items": [...]}.
//
// Any other top-level shape is a CatalogFormatError. Individual records that are
// not objects, or that carry neither id nor name, are skipped. Unparseable prices
// and stock levels are coerced to zero so one bad record cannot blank the catalog.
func Parse(raw []byte) ([]Product, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return nil, model.NewCatalogFormatError("document is not an object")
	}

	if schemaRaw, ok := doc["schema"]; ok {
		if err := checkSchema(schemaRaw); err != nil {
			return nil, err
		}
	}

	itemsRaw, ok := doc["items"]
	if !ok || isNull(itemsRaw) {
		return nil, model.NewCatalogFormatError("missing items array")
	}

	var records []json.RawMessage
	if err := json.Unmarshal(itemsRaw, &records); err != nil {
		return nil, model.NewCatalogFormatError("items is not an array")
	}

	products := make([]Product, 0, len(records))
	for _, rec := range records {
		if p, ok := parseProduct(rec); ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// checkSchema rejects catalogs published for a different major schema.
// Non-semver values are tolerated since older catalogs used free-form labels.
func checkSchema(raw json.RawMessage) error {
	v, ok := scalarString(raw)
	if !ok || v == "" {
		return nil
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return nil
	}
	if semver.Major(v) != SupportedSchema {
		return model.NewCatalogFormatError("unsupported schema " + v)
	}
	return nil
}

func parseProduct(raw json.RawMessage) (Product, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Product{}, false
	}

	p := Product{}
	p.ID, _ = scalarString(fields["id"])
	p.Name, _ = scalarString(fields["name"])
	if p.ID == "" && p.Name == "" {
		return Product{}, false
	}

	p.Price = model.ParsePrice(fields["price"])
	p.Description, _ = scalarString(fields["description"])
	p.Image, _ = scalarString(fields["image"])

	stockRaw, ok := fields["sizes"]
	if !ok {
		stockRaw, ok = fields["variant_stock"]
	}
	if ok && !isNull(stockRaw) {
		p.VariantStock = parseVariantStock(stockRaw)
	}

	if flat, ok := fields["stock"]; ok && !isNull(flat) {
		n := parseCount(flat)
		p.FlatStock = &n
	}

	return p, true
}

// parseVariantStock returns nil when the value is not an object.
func parseVariantStock(raw json.RawMessage) map[string]int {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	stock := make(map[string]int, len(entries))
	for label, v := range entries {
		stock[label] = parseCount(v)
	}
	return stock
}

// parseCount converts a stock value to an integer in [0, MaxStock],
// truncating fractions.
func parseCount(raw json.RawMessage) int {
	d := model.ParsePrice(raw)
	if d.GreaterThan(decimal.NewFromInt(MaxStock)) {
		return MaxStock
	}
	return int(d.IntPart())
}

// scalarString reads a JSON string or number as text.
func scalarString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
