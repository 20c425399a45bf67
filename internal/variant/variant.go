// Package variant decides which size-selection mode a product offers.
package variant

import (
	"fmt"
	"slices"

	"merch-storefront/internal/model"
)

// Kind enumerates the selection modes.
type Kind int

const (
	// None means the product has no selectable variant; cart identity uses no variant.
	None Kind = iota
	// Forced means a single one-size label is recorded without asking the buyer.
	Forced
	// Choice means the buyer picks one of Labels.
	Choice
)

func (k Kind) String() string {
	switch k {
	case Forced:
		return "forced"
	case Choice:
		return "choice"
	default:
		return "none"
	}
}

// OneSizeLabels are checked in priority order; the first with stock wins.
var OneSizeLabels = []string{"OSFA", "ONE SIZE", "OS"}

// StandardLabels is the canonical display order for choosable sizes.
var StandardLabels = []string{"S", "M", "L", "XL", "2XL", "3XL"}

// Mode is the resolved selection mode for one product.
// Labels holds one entry for Forced and the purchasable sizes for Choice.
type Mode struct {
	Kind   Kind
	Labels []string
}

// Resolve derives the selection mode from a product's stock-by-variant map.
// Labels outside OneSizeLabels and StandardLabels do not affect the mode.
func Resolve(stock map[string]int) Mode {
	if len(stock) == 0 {
		return Mode{Kind: None}
	}

	for _, label := range OneSizeLabels {
		if stock[label] > 0 {
			return Mode{Kind: Forced, Labels: []string{label}}
		}
	}

	var available []string
	for _, label := range StandardLabels {
		if stock[label] > 0 {
			available = append(available, label)
		}
	}
	if len(available) > 0 {
		return Mode{Kind: Choice, Labels: available}
	}

	return Mode{Kind: None}
}

// ForcedLabel returns the one-size label for Forced modes.
func (m Mode) ForcedLabel() (string, bool) {
	if m.Kind != Forced || len(m.Labels) == 0 {
		return "", false
	}
	return m.Labels[0], true
}

// Select checks a buyer's requested variant against the mode and returns the
// variant to record in the cart. A nil result means "no variant".
//
//   - None: any request is dropped.
//   - Forced: the forced label is used; a conflicting request is rejected.
//   - Choice: the request must be one of Labels.
func (m Mode) Select(requested *string) (*string, error) {
	switch m.Kind {
	case Forced:
		label, _ := m.ForcedLabel()
		if requested != nil && *requested != label {
			return nil, model.NewValidationError("variant", fmt.Sprintf("must be %s", label))
		}
		return &label, nil
	case Choice:
		if requested == nil {
			return nil, model.NewValidationError("variant", "is required")
		}
		if !slices.Contains(m.Labels, *requested) {
			return nil, model.NewValidationError("variant", fmt.Sprintf("%q is not available", *requested))
		}
		label := *requested
		return &label, nil
	default:
		return nil, nil
	}
}
