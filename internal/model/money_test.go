package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"integer", `20`, "20"},
		{"decimal", `19.99`, "19.99"},
		{"numeric string", `"12.50"`, "12.5"},
		{"padded string", `" 7 "`, "7"},
		{"zero", `0`, "0"},
		{"empty", ``, "0"},
		{"null", `null`, "0"},
		{"invalid string", `"abc"`, "0"},
		{"negative", `-5`, "0"},
		{"negative string", `"-0.01"`, "0"},
		{"object", `{"amount":5}`, "0"},
		{"bool", `true`, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrice(json.RawMessage(tt.input))
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParsePrice(%s) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

// TestParsePriceExact verifies prices keep full precision (no float drift).
func TestParsePriceExact(t *testing.T) {
	a := ParsePrice(json.RawMessage(`0.1`))
	b := ParsePrice(json.RawMessage(`0.2`))
	if !a.Add(b).Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("0.1 + 0.2 = %s, want 0.3", a.Add(b))
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"60", "60.00"},
		{"19.999", "20.00"},
		{"0.005", "0.01"},
		{"0", "0.00"},
	}
	for _, tt := range tests {
		if got := FormatMoney(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatMoney(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJSONAmount(t *testing.T) {
	out, err := json.Marshal(struct {
		Total json.Number `json:"total"`
	}{JSONAmount(decimal.RequireFromString("60.50"))})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"total":60.5}` {
		t.Errorf("got %s, want {\"total\":60.5}", out)
	}
}
