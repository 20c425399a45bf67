// Package order submits the cart to the intake endpoint and tracks the
// submission state machine.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"merch-storefront/internal/cart"
	"merch-storefront/internal/identity"
	"merch-storefront/internal/model"
)

// State of the submitter.
//
//	Idle → Submitting → Succeeded → Idle   (cart cleared)
//	            └─────→ Failed    → Idle   (cart untouched, retry allowed)
type State int32

const (
	Idle State = iota
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Ack is the intake's answer to a delivery.
// Acknowledged is false for fire-and-forget transports that cannot observe the outcome.
type Ack struct {
	Acknowledged bool
	Status       int
	Reference    string
}

// Intake delivers a finalized order.
// Implementations return a *model.Error built with model.NewTransportError on
// non-success responses so the status and detail reach the buyer.
type Intake interface {
	Deliver(ctx context.Context, p *Payload) (*Ack, error)
}

// DefaultSuccessMessage is shown after an order is accepted.
const DefaultSuccessMessage = "Order Sent! Payment due at next FTX."

// DefaultTimeout bounds one delivery attempt.
const DefaultTimeout = 30 * time.Second

// Config tunes a Submitter.
type Config struct {
	Required       []Field       // Buyer details that must be non-blank
	Currency       string        // Optional ISO currency code added to the payload
	Timeout        time.Duration // Per-delivery timeout; expiry counts as a transport failure
	SuccessMessage string
}

// Transition is reported to listeners on every state change.
type Transition struct {
	From    State
	To      State
	OrderID string
	Message string // Buyer-facing text for Succeeded and Failed
	Err     error  // Set for Failed
}

// Receipt describes an accepted order.
type Receipt struct {
	OrderID      string
	Items        int
	Total        decimal.Decimal
	Acknowledged bool
	Message      string
}

// Submitter runs the order submission protocol for one cart.
// At most one submission is in flight; a concurrent Submit is rejected, not queued.
type Submitter struct {
	cart     *cart.Store
	identity identity.Provider
	intake   Intake
	cfg      Config
	logger   *slog.Logger

	now   func() time.Time
	newID func() string

	state atomic.Int32

	mu        sync.Mutex
	listeners []func(Transition)
}

// NewSubmitter creates a Submitter for c. A nil identity provider always yields "Guest".
func NewSubmitter(c *cart.Store, id identity.Provider, in Intake, cfg Config, logger *slog.Logger) *Submitter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SuccessMessage == "" {
		cfg.SuccessMessage = DefaultSuccessMessage
	}
	return &Submitter{
		cart:     c,
		identity: id,
		intake:   in,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// State returns the current state.
func (s *Submitter) State() State {
	return State(s.state.Load())
}

// OnTransition registers fn to observe state changes. Presentation layers use
// it to show progress, the success message or the failure reason.
func (s *Submitter) OnTransition(fn func(Transition)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Check reports the local precondition failure Submit would return for
// details against the current cart, or nil. It changes no state.
func (s *Submitter) Check(details Details) error {
	if s.cart.Len() == 0 {
		return model.NewEmptyCartError()
	}
	return s.validate(details)
}

// Submit validates and delivers the current cart.
//
// Local failures (empty cart, missing detail, submission already running) are
// returned before any state change or network call. Delivery failures leave the
// cart intact so the buyer can retry. Success takes the submitted quantities out
// of the cart and keeps anything added while the order was in flight. Either way
// the submitter is back in Idle when Submit returns.
func (s *Submitter) Submit(ctx context.Context, details Details) (*Receipt, error) {
	if err := s.Check(details); err != nil {
		return nil, err
	}

	if !s.state.CompareAndSwap(int32(Idle), int32(Submitting)) {
		s.logger.Warn("submission rejected, another is in flight")
		return nil, model.NewSubmissionInProgressError()
	}
	s.emit(Transition{From: Idle, To: Submitting})

	snap := s.cart.Snapshot()
	if snap.Len() == 0 {
		// Emptied between the precondition check and the snapshot
		s.state.Store(int32(Idle))
		s.emit(Transition{From: Submitting, To: Idle})
		return nil, model.NewEmptyCartError()
	}

	payload := s.buildPayload(ctx, snap, details)

	deliverCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	ack, err := s.intake.Deliver(deliverCtx, payload)
	cancel()

	if err != nil {
		return nil, s.fail(payload, s.transportError(deliverCtx, err))
	}
	if ack == nil {
		ack = &Ack{}
	}

	s.state.Store(int32(Succeeded))
	s.cart.Settle(snap)
	s.logger.Info("order submitted",
		slog.String("order_id", payload.OrderID),
		slog.String("customer", payload.Customer),
		slog.Int("items", len(payload.Items)),
		slog.String("total", model.FormatMoney(payload.Total)),
		slog.Bool("acknowledged", ack.Acknowledged),
	)
	s.emit(Transition{From: Submitting, To: Succeeded, OrderID: payload.OrderID, Message: s.cfg.SuccessMessage})

	s.state.Store(int32(Idle))
	s.emit(Transition{From: Succeeded, To: Idle, OrderID: payload.OrderID})

	return &Receipt{
		OrderID:      payload.OrderID,
		Items:        len(payload.Items),
		Total:        payload.Total,
		Acknowledged: ack.Acknowledged,
		Message:      s.cfg.SuccessMessage,
	}, nil
}

// validate checks required details in a fixed order and names the first blank one.
func (s *Submitter) validate(d Details) error {
	for _, f := range fieldOrder {
		if !s.requires(f) {
			continue
		}
		if strings.TrimSpace(d.Value(f)) == "" {
			return model.NewValidationError(string(f), "is required")
		}
	}
	return nil
}

func (s *Submitter) requires(f Field) bool {
	for _, r := range s.cfg.Required {
		if r == f {
			return true
		}
	}
	return false
}

func (s *Submitter) buildPayload(ctx context.Context, snap cart.Snapshot, d Details) *Payload {
	return &Payload{
		OrderID:   s.newID(),
		Customer:  identity.Resolve(ctx, s.identity),
		Items:     snap.Items(),
		Total:     snap.Total(),
		Currency:  s.cfg.Currency,
		Timestamp: s.now().UTC().Format(TimestampLayout),
		Details: Details{
			Email:    strings.TrimSpace(d.Email),
			Callsign: strings.TrimSpace(d.Callsign),
			Region:   strings.TrimSpace(d.Region),
		},
	}
}

// transportError normalizes delivery failures into TransportErrors.
func (s *Submitter) transportError(ctx context.Context, err error) error {
	var e *model.Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.NewTransportError(0, "intake timed out", err)
	}
	return model.NewTransportError(0, "connection failed", err)
}

func (s *Submitter) fail(p *Payload, err error) error {
	s.state.Store(int32(Failed))
	s.logger.Error("order submission failed",
		slog.String("order_id", p.OrderID),
		slog.String("error", err.Error()),
	)
	s.emit(Transition{From: Submitting, To: Failed, OrderID: p.OrderID, Message: buyerMessage(err), Err: err})

	s.state.Store(int32(Idle))
	s.emit(Transition{From: Failed, To: Idle, OrderID: p.OrderID})
	return err
}

func buyerMessage(err error) string {
	var e *model.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func (s *Submitter) emit(t Transition) {
	s.mu.Lock()
	listeners := append(([]func(Transition))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
}
