package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"merch-storefront/internal/order"
)

// Beacon sends the order without waiting for the outcome, like a browser
// beacon to an endpoint that cannot answer cross-origin. Deliver succeeds as
// soon as the request is handed off; delivery failures are only logged.
type Beacon struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewBeacon creates a Beacon posting to url.
func NewBeacon(url string, client *http.Client, timeout time.Duration, logger *slog.Logger) (*Beacon, error) {
	if url == "" {
		return nil, fmt.Errorf("beacon URL is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = order.DefaultTimeout
	}
	return &Beacon{url: url, client: client, timeout: timeout, logger: logger}, nil
}

// Deliver implements order.Intake. The returned Ack is never Acknowledged.
func (b *Beacon) Deliver(ctx context.Context, p *order.Payload) (*order.Ack, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	// The send outlives the submission's deadline
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()

		h := http.Header{}
		h.Set("Idempotency-Key", p.OrderID)
		if _, err := post(sendCtx, b.client, b.url, body, h); err != nil {
			b.logger.Warn("beacon delivery failed",
				slog.String("order_id", p.OrderID),
				slog.String("error", err.Error()),
			)
			return
		}
		b.logger.Debug("beacon delivered", slog.String("order_id", p.OrderID))
	}()

	return &order.Ack{Acknowledged: false, Reference: p.OrderID}, nil
}

// Wait blocks until in-flight beacons finish. Call it during shutdown.
func (b *Beacon) Wait() {
	b.wg.Wait()
}
