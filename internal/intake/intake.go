// Package intake delivers finalized orders to the endpoint a deployment
// collects them at.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"merch-storefront/internal/model"
	"merch-storefront/internal/order"
)

// userAgent identifies the storefront to intake endpoints.
// Some form backends reject requests without one.
const userAgent = "Merch-Storefront/1.0"

// maxErrorBody bounds how much of a failure response is read for the detail.
const maxErrorBody = 64 << 10

// response is what post hands back for 2xx replies.
type response struct {
	status int
	body   []byte
	header http.Header
}

// post sends body as JSON and maps non-2xx replies to TransportErrors.
func post(ctx context.Context, client *http.Client, url string, body []byte, header http.Header) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.NewTransportError(0, "intake timed out", err)
		}
		return nil, model.NewTransportError(0, "connection failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, model.NewTransportError(resp.StatusCode, "reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseErrorResponse(resp.StatusCode, respBody)
	}
	return &response{status: resp.StatusCode, body: respBody, header: resp.Header}, nil
}

// errorBody covers the shapes intake endpoints commonly use for errors.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// parseErrorResponse converts a non-2xx intake reply into a TransportError
// whose detail tells the buyer what happened.
func parseErrorResponse(status int, body []byte) error {
	var eb errorBody
	json.Unmarshal(body, &eb) // Best effort parse

	detail := eb.Message
	if detail == "" {
		detail = eb.Error
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		detail = joinDetail("intake rejected credentials", detail)
	case status == http.StatusNotFound:
		detail = joinDetail("intake endpoint not found", detail)
	case status == http.StatusTooManyRequests:
		detail = joinDetail("intake is rate limiting, try again shortly", detail)
	case status >= 500:
		detail = joinDetail(fmt.Sprintf("intake unavailable (HTTP %d)", status), detail)
	default:
		detail = joinDetail(fmt.Sprintf("HTTP %d", status), detail)
	}
	return model.NewTransportError(status, detail, nil)
}

func joinDetail(prefix, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return prefix
	}
	return prefix + ": " + detail
}

// compile-time checks
var (
	_ order.Intake = (*Webhook)(nil)
	_ order.Intake = (*GitHubDispatch)(nil)
	_ order.Intake = (*Beacon)(nil)
	_ order.Intake = (*Mock)(nil)
)
