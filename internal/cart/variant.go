package cart

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Variant is the optional variant half of a line item's identity.
// The zero value is NoVariant, which is distinct from every label including "".
type Variant struct {
	label string
	set   bool
}

// NoVariant marks a line item for a product without selectable variants.
var NoVariant = Variant{}

// Size returns the variant for label. Size("") is a real, if unusual, label;
// boundaries that receive text should use ParseVariant instead.
func Size(label string) Variant {
	return Variant{label: label, set: true}
}

// ParseVariant canonicalizes a variant arriving over a serialization boundary:
// both nil and "" mean NoVariant.
func ParseVariant(v *string) Variant {
	if v == nil || *v == "" {
		return NoVariant
	}
	return Size(*v)
}

// Label returns the variant label and whether one is set.
func (v Variant) Label() (string, bool) {
	return v.label, v.set
}

// Ptr returns the label as a pointer, nil for NoVariant.
func (v Variant) Ptr() *string {
	if !v.set {
		return nil
	}
	label := v.label
	return &label
}

func (v Variant) String() string {
	if !v.set {
		return "<none>"
	}
	return v.label
}

// MarshalJSON writes null for NoVariant and the label otherwise.
func (v Variant) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	return json.Marshal(v.label)
}

// UnmarshalJSON applies the ParseVariant canonicalization.
func (v *Variant) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = ParseVariant(s)
	return nil
}

// ParseQuantity converts text input to a quantity. Anything that is not a
// positive integer becomes 1, mirroring the storefront's forgiving quantity box.
// Values above MaxQuantity, including ones too large for int, become MaxQuantity.
func ParseQuantity(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if errors.Is(err, strconv.ErrRange) && n > 0 {
		return MaxQuantity
	}
	if err != nil {
		return 1
	}
	return clampQuantity(n)
}
