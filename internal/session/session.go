// Package session keeps one cart and submitter per buyer for the HTTP and MCP
// surfaces. Sessions live in memory, bounded by an LRU and an idle timeout.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/simplelru"

	"merch-storefront/internal/cart"
	"merch-storefront/internal/identity"
	"merch-storefront/internal/order"
)

// Session is one buyer's cart.
type Session struct {
	ID     string
	Cart   *cart.Store
	Orders *order.Submitter

	// edit serializes multi-step cart changes such as reconciliation
	edit sync.Mutex

	idMu     sync.RWMutex
	identity identity.Provider

	lastSeen atomic.Int64
}

// Edit runs fn while holding the session's edit lock.
// Must not wrap order submission, which has its own in-flight guard.
func (s *Session) Edit(fn func(c *cart.Store)) {
	s.edit.Lock()
	defer s.edit.Unlock()
	fn(s.Cart)
}

// SetIdentity replaces the provider used to name the customer on orders.
func (s *Session) SetIdentity(p identity.Provider) {
	s.idMu.Lock()
	s.identity = p
	s.idMu.Unlock()
}

// DisplayName implements identity.Provider by delegating to the latest
// provider set on the session.
func (s *Session) DisplayName(ctx context.Context) (string, error) {
	s.idMu.RLock()
	p := s.identity
	s.idMu.RUnlock()
	if p == nil {
		return "", identity.ErrNoIdentity
	}
	return p.DisplayName(ctx)
}

// LastSeen is when the session was last fetched from the registry.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// SubmitterFactory builds the submitter for a new session's cart.
type SubmitterFactory func(c *cart.Store, id identity.Provider) *order.Submitter

// Options configures a Registry.
type Options struct {
	Limit        int           // Maximum live sessions; the least recently used is evicted
	IdleTimeout  time.Duration // Sessions idle longer are swept; 0 disables
	NewSubmitter SubmitterFactory
	Logger       *slog.Logger
}

// Registry holds live sessions.
type Registry struct {
	mu  sync.Mutex
	lru *simplelru.LRU

	idle         time.Duration
	newSubmitter SubmitterFactory
	logger       *slog.Logger
	now          func() time.Time
}

// NewRegistry creates a Registry.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.NewSubmitter == nil {
		return nil, fmt.Errorf("submitter factory is required")
	}
	r := &Registry{
		idle:         opts.IdleTimeout,
		newSubmitter: opts.NewSubmitter,
		logger:       opts.Logger,
		now:          time.Now,
	}
	lru, err := simplelru.NewLRU(opts.Limit, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("creating session LRU: %w", err)
	}
	r.lru = lru
	return r, nil
}

func (r *Registry) onEvict(key, _ interface{}) {
	r.logger.Debug("session dropped", slog.String("session", key.(string)))
}

// Get returns a live session and marks it used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.lru.Get(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	if r.expired(s) {
		r.lru.Remove(id)
		return nil, false
	}
	s.lastSeen.Store(r.now().UnixNano())
	return s, true
}

// GetOrCreate returns the session for id, creating it when missing.
// An empty id creates a session with a generated ID.
// created reports whether a new session was made.
func (r *Registry) GetOrCreate(id string) (s *Session, created bool) {
	if id == "" {
		id = uuid.NewString()
	}
	if s, ok := r.Get(id); ok {
		return s, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another request may have created it meanwhile
	if v, ok := r.lru.Get(id); ok {
		return v.(*Session), false
	}

	s = &Session{ID: id, Cart: cart.New()}
	s.Orders = r.newSubmitter(s.Cart, s)
	r.observe(s)
	s.lastSeen.Store(r.now().UnixNano())
	r.lru.Add(id, s)
	r.logger.Debug("session created", slog.String("session", id))
	return s, true
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}

// Sweep drops sessions idle past the timeout and returns how many went.
// Sessions with a submission in flight are kept.
func (r *Registry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	for {
		_, v, ok := r.lru.GetOldest()
		if !ok {
			break
		}
		s := v.(*Session)
		if !r.expired(s) {
			// LRU order is recency order, so the rest are fresher
			break
		}
		if s.Orders.State() != order.Idle {
			break
		}
		r.lru.RemoveOldest()
		swept++
	}
	return swept
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("idle sessions swept", slog.Int("count", n))
			}
		}
	}
}

// observe logs cart changes and submission transitions at debug level.
func (r *Registry) observe(s *Session) {
	s.Cart.Subscribe(func(ev cart.Event) {
		r.logger.Debug("cart changed",
			slog.String("session", s.ID),
			slog.String("event", string(ev.Kind)),
			slog.String("product", ev.Key.Product),
			slog.Int("quantity", ev.Quantity),
			slog.String("total", ev.Total.StringFixed(2)),
		)
	})
	s.Orders.OnTransition(func(tr order.Transition) {
		attrs := []slog.Attr{
			slog.String("session", s.ID),
			slog.String("from", tr.From.String()),
			slog.String("to", tr.To.String()),
		}
		if tr.OrderID != "" {
			attrs = append(attrs, slog.String("order_id", tr.OrderID))
		}
		if tr.Err != nil {
			attrs = append(attrs, slog.String("error", tr.Err.Error()))
		}
		r.logger.LogAttrs(context.Background(), slog.LevelDebug, "order state", attrs...)
	})
}

func (r *Registry) expired(s *Session) bool {
	return r.idle > 0 && r.now().Sub(s.LastSeen()) > r.idle
}
