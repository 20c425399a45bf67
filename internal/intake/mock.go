package intake

import (
	"context"
	"sync"

	"merch-storefront/internal/order"
)

// Mock records deliveries and answers with DeliverFunc, or an acknowledged
// Ack when DeliverFunc is nil. Used by tests and INTAKE_TYPE=mock.
type Mock struct {
	DeliverFunc func(ctx context.Context, p *order.Payload) (*order.Ack, error)

	mu    sync.Mutex
	calls []*order.Payload
}

// Deliver implements order.Intake.
func (m *Mock) Deliver(ctx context.Context, p *order.Payload) (*order.Ack, error) {
	m.mu.Lock()
	m.calls = append(m.calls, p)
	m.mu.Unlock()

	if m.DeliverFunc != nil {
		return m.DeliverFunc(ctx, p)
	}
	return &order.Ack{Acknowledged: true, Status: 200, Reference: p.OrderID}, nil
}

// Calls returns the payloads delivered so far.
func (m *Mock) Calls() []*order.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*order.Payload(nil), m.calls...)
}
