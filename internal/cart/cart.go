// Package cart holds the buyer's in-memory cart: merge, quantity adjustment,
// removal and exact totals.
package cart

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"merch-storefront/internal/catalog"
)

// Key identifies a line item: the product (ID, or name when the catalog gave
// no ID) plus the variant. Comparison is exact and case-sensitive.
type Key struct {
	Product string
	Variant Variant
}

// KeyFor builds the identity key for adding p with variant v.
func KeyFor(p catalog.Product, v Variant) Key {
	return Key{Product: p.Key(), Variant: v}
}

// MaxQuantity caps a single line item. Larger requests are clamped.
const MaxQuantity = 9999

// LineItem is one consolidated cart entry. Quantity is always in [1, MaxQuantity].
type LineItem struct {
	ProductID   string
	DisplayName string
	Variant     Variant
	UnitPrice   decimal.Decimal
	Quantity    int
}

// Key returns the item's identity key.
func (li LineItem) Key() Key {
	product := li.ProductID
	if product == "" {
		product = li.DisplayName
	}
	return Key{Product: product, Variant: li.Variant}
}

// LineTotal is UnitPrice × Quantity, exact.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// EventKind describes a cart change.
type EventKind string

const (
	EventAdded    EventKind = "added"    // New line item appended
	EventMerged   EventKind = "merged"   // Quantity added to an existing line item
	EventAdjusted EventKind = "adjusted" // Quantity changed, item kept
	EventRemoved  EventKind = "removed"  // Item removed explicitly or by reaching zero
	EventCleared  EventKind = "cleared"  // Whole cart emptied
	EventSettled  EventKind = "settled"  // Ordered quantities taken out, later additions kept
)

// Event is delivered to subscribers after each mutation completes.
// Quantity is the item's quantity after the change (0 when removed).
type Event struct {
	Kind     EventKind
	Key      Key
	Quantity int
	Total    decimal.Decimal
}

// Store is an insertion-ordered cart.
//
// Invariants: no two items share a Key and no item has Quantity <= 0.
// The total is maintained incrementally on every mutation.
type Store struct {
	mu          sync.Mutex
	items       []LineItem
	total       decimal.Decimal
	subscribers map[int]func(Event)
	nextSub     int
}

// New creates an empty cart.
func New() *Store {
	return &Store{
		total:       decimal.Zero,
		subscribers: make(map[int]func(Event)),
	}
}

// Add merges quantity of p/v into the cart, appending a new line item when the
// key is not present yet. Non-positive quantities are treated as 1 and the
// resulting line quantity is clamped to MaxQuantity.
// Returns the key of the affected line item.
func (s *Store) Add(p catalog.Product, v Variant, quantity int) Key {
	quantity = clampQuantity(quantity)
	key := KeyFor(p, v)

	s.mu.Lock()
	var ev Event
	if i := s.indexOf(key); i >= 0 {
		cur := s.items[i].Quantity
		next := min(cur, MaxQuantity-quantity) + quantity
		s.items[i].Quantity = next
		s.total = s.total.Add(s.items[i].UnitPrice.Mul(decimal.NewFromInt(int64(next - cur))))
		ev = Event{Kind: EventMerged, Key: key, Quantity: next, Total: s.total}
	} else {
		item := LineItem{
			ProductID:   p.ID,
			DisplayName: p.Name,
			Variant:     v,
			UnitPrice:   p.Price,
			Quantity:    quantity,
		}
		s.items = append(s.items, item)
		s.total = s.total.Add(item.LineTotal())
		ev = Event{Kind: EventAdded, Key: key, Quantity: quantity, Total: s.total}
	}
	subs := s.subscriberList()
	s.mu.Unlock()

	notify(subs, ev)
	return key
}

// AdjustQuantity applies delta to the matching item. A result <= 0 removes the
// item; a result above MaxQuantity is clamped. Unknown keys and changes that
// leave the quantity as it was are no-ops.
func (s *Store) AdjustQuantity(key Key, delta int) {
	s.mu.Lock()
	i := s.indexOf(key)
	if i < 0 || delta == 0 {
		s.mu.Unlock()
		return
	}

	var ev Event
	item := s.items[i]
	switch {
	case delta <= -item.Quantity:
		s.removeAt(i)
		ev = Event{Kind: EventRemoved, Key: key, Total: s.total}
	case item.Quantity == MaxQuantity && delta > 0:
		s.mu.Unlock()
		return
	default:
		// Compared without adding so huge deltas cannot wrap
		next := MaxQuantity
		if delta < MaxQuantity-item.Quantity {
			next = item.Quantity + delta
		}
		s.items[i].Quantity = next
		s.total = s.total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(next - item.Quantity))))
		ev = Event{Kind: EventAdjusted, Key: key, Quantity: next, Total: s.total}
	}
	subs := s.subscriberList()
	s.mu.Unlock()

	notify(subs, ev)
}

// Remove deletes the matching item; no-op when absent.
func (s *Store) Remove(key Key) {
	s.mu.Lock()
	i := s.indexOf(key)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.removeAt(i)
	ev := Event{Kind: EventRemoved, Key: key, Total: s.total}
	subs := s.subscriberList()
	s.mu.Unlock()

	notify(subs, ev)
}

// Settle takes the quantities in snap out of the cart in one step, after the
// order built from snap was accepted. Units added since the snapshot stay in
// the cart; lines left at zero are removed. A cart left empty reports
// EventCleared, otherwise EventSettled.
func (s *Store) Settle(snap Snapshot) {
	s.mu.Lock()
	changed := false
	for _, ordered := range snap.items {
		i := s.indexOf(ordered.Key())
		if i < 0 {
			continue
		}
		changed = true
		if s.items[i].Quantity <= ordered.Quantity {
			s.removeAt(i)
			continue
		}
		s.items[i].Quantity -= ordered.Quantity
		s.total = s.total.Sub(s.items[i].UnitPrice.Mul(decimal.NewFromInt(int64(ordered.Quantity))))
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	ev := Event{Kind: EventSettled, Total: s.total}
	if len(s.items) == 0 {
		s.items = nil
		s.total = decimal.Zero
		ev = Event{Kind: EventCleared, Total: decimal.Zero}
	}
	subs := s.subscriberList()
	s.mu.Unlock()

	notify(subs, ev)
}

// Clear empties the cart in one step.
func (s *Store) Clear() {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return
	}
	s.items = nil
	s.total = decimal.Zero
	subs := s.subscriberList()
	s.mu.Unlock()

	notify(subs, Event{Kind: EventCleared, Total: decimal.Zero})
}

// Total returns the exact cart total; zero for an empty cart.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Len returns the number of line items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Get returns the line item for key.
func (s *Store) Get(key Key) (LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(key); i >= 0 {
		return s.items[i], true
	}
	return LineItem{}, false
}

// Snapshot copies the current items. Later cart mutations do not affect it.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{items: slices.Clone(s.items), total: s.total}
}

// Subscribe registers fn for change notifications and returns a function that
// unregisters it. Callbacks run after the mutation, outside the store lock.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Store) indexOf(key Key) int {
	return slices.IndexFunc(s.items, func(li LineItem) bool { return li.Key() == key })
}

// removeAt must be called with mu held.
func (s *Store) removeAt(i int) {
	s.total = s.total.Sub(s.items[i].LineTotal())
	s.items = slices.Delete(s.items, i, i+1)
}

// subscriberList must be called with mu held.
func (s *Store) subscriberList() []func(Event) {
	if len(s.subscribers) == 0 {
		return nil
	}
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]func(Event), len(ids))
	for i, id := range ids {
		subs[i] = s.subscribers[id]
	}
	return subs
}

// clampQuantity maps a requested quantity into [1, MaxQuantity].
func clampQuantity(q int) int {
	if q <= 0 {
		return 1
	}
	return min(q, MaxQuantity)
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}

// Snapshot is an immutable copy of the cart taken for submission.
type Snapshot struct {
	items []LineItem
	total decimal.Decimal
}

// Items returns a copy of the line items in cart order.
func (s Snapshot) Items() []LineItem {
	return slices.Clone(s.items)
}

// Len returns the number of line items.
func (s Snapshot) Len() int {
	return len(s.items)
}

// Total returns the exact total at the time the snapshot was taken.
func (s Snapshot) Total() decimal.Decimal {
	return s.total
}
