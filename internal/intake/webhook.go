package intake

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"merch-storefront/internal/order"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>" when a secret is set.
const SignatureHeader = "X-Storefront-Signature"

// WebhookConfig configures a Webhook.
type WebhookConfig struct {
	URL    string
	Token  string // Optional bearer token
	Secret string // Optional HMAC signing secret
	Client *http.Client
}

// Webhook posts the order payload as JSON to a URL (form backend, Apps Script,
// serverless function). Any 2xx counts as acknowledged.
type Webhook struct {
	url    string
	token  string
	secret []byte
	client *http.Client
}

// NewWebhook validates cfg and creates a Webhook.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("webhook URL must be http(s): %q", cfg.URL)
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	w := &Webhook{url: cfg.URL, token: cfg.Token, client: client}
	if cfg.Secret != "" {
		w.secret = []byte(cfg.Secret)
	}
	return w, nil
}

// Deliver implements order.Intake.
func (w *Webhook) Deliver(ctx context.Context, p *order.Payload) (*order.Ack, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Idempotency-Key", p.OrderID)
	if w.token != "" {
		h.Set("Authorization", "Bearer "+w.token)
	}
	if w.secret != nil {
		h.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := post(ctx, w.client, w.url, body, h)
	if err != nil {
		return nil, err
	}
	return &order.Ack{Acknowledged: true, Status: resp.status, Reference: reference(resp, p.OrderID)}, nil
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a SignatureHeader value in constant time.
// Intake receivers written in Go can use it directly.
func VerifySignature(secret, body []byte, header string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}

// reference picks the intake's own order reference when it sends one.
func reference(resp *response, fallback string) string {
	if ref := resp.header.Get("Location"); ref != "" {
		return ref
	}
	var body struct {
		ID        json.RawMessage `json:"id"`
		Reference string          `json:"reference"`
	}
	if json.Unmarshal(resp.body, &body) == nil {
		if body.Reference != "" {
			return body.Reference
		}
		if id := strings.Trim(string(body.ID), `"`); id != "" && id != "null" {
			return id
		}
	}
	return fallback
}
