// Package reconcile turns a full desired cart into the add, adjust and remove
// mutations that reach it from the current cart. Replacing a cart through the
// mutations keeps merge-by-key and the running total maintained by the store.
package reconcile

import (
	"merch-storefront/internal/cart"
	"merch-storefront/internal/catalog"
)

// Plan describes the mutations needed to reach the desired cart.
// Apply order is Remove → Adjust → Add so adjustments never target a removed line.
type Plan struct {
	ToRemove []cart.Key // Lines in current but not desired
	ToAdjust []ToAdjust // Lines in both with different quantities
	ToAdd    []ToAdd    // Lines in desired but not current
}

// ToAdd specifies a new line item.
type ToAdd struct {
	Product  catalog.Product
	Variant  cart.Variant
	Quantity int
}

// ToAdjust specifies a quantity change for an existing line item.
type ToAdjust struct {
	Key         cart.Key
	OldQuantity int // Informational
	NewQuantity int
}

// Delta is the signed change AdjustQuantity applies.
func (a ToAdjust) Delta() int {
	return a.NewQuantity - a.OldQuantity
}

// IsEmpty returns true if the carts already match.
func (p *Plan) IsEmpty() bool {
	return len(p.ToAdd) == 0 && len(p.ToRemove) == 0 && len(p.ToAdjust) == 0
}

// Desired is one line of the requested cart. The variant must already be
// validated against the product's mode.
type Desired struct {
	Product  catalog.Product
	Variant  cart.Variant
	Quantity int
}

// Diff computes the plan from current to desired.
//
// Desired lines sharing a key are consolidated by summing quantities, the
// same way repeated adds merge, capped at cart.MaxQuantity. Lines with a
// non-positive quantity count as absent. Output follows desired order for adds
// and adjustments and current order for removals.
func Diff(current []cart.LineItem, desired []Desired) *Plan {
	plan := &Plan{}

	currentByKey := make(map[cart.Key]cart.LineItem, len(current))
	for _, item := range current {
		currentByKey[item.Key()] = item
	}

	// Consolidate desired lines, keeping first-seen order
	var order []cart.Key
	wanted := make(map[cart.Key]*Desired)
	for _, d := range desired {
		if d.Quantity <= 0 {
			continue
		}
		d.Quantity = min(d.Quantity, cart.MaxQuantity)
		key := cart.KeyFor(d.Product, d.Variant)
		if w, ok := wanted[key]; ok {
			w.Quantity = min(w.Quantity+d.Quantity, cart.MaxQuantity)
			continue
		}
		wanted[key] = &d
		order = append(order, key)
	}

	for _, key := range order {
		w := wanted[key]
		if cur, ok := currentByKey[key]; ok {
			if cur.Quantity != w.Quantity {
				plan.ToAdjust = append(plan.ToAdjust, ToAdjust{
					Key:         key,
					OldQuantity: cur.Quantity,
					NewQuantity: w.Quantity,
				})
			}
			continue
		}
		plan.ToAdd = append(plan.ToAdd, ToAdd{Product: w.Product, Variant: w.Variant, Quantity: w.Quantity})
	}

	for _, item := range current {
		if _, ok := wanted[item.Key()]; !ok {
			plan.ToRemove = append(plan.ToRemove, item.Key())
		}
	}

	return plan
}

// Apply executes p against s.
func Apply(s *cart.Store, p *Plan) {
	for _, key := range p.ToRemove {
		s.Remove(key)
	}
	for _, adj := range p.ToAdjust {
		s.AdjustQuantity(adj.Key, adj.Delta())
	}
	for _, add := range p.ToAdd {
		s.Add(add.Product, add.Variant, add.Quantity)
	}
}
