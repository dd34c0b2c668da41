package cart

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/storage"
)

// Options configures a Store.
type Options struct {
	// Storage persists the cart. Nil keeps it in memory only.
	Storage storage.Store
	Key     string
	Logger  zerolog.Logger
	Now     func() time.Time
	NewID   func() string
}

// Store owns the cart of one storefront session. Mutators update the
// in-memory cart synchronously, notify subscribers and schedule a background
// write; they never fail.
type Store struct {
	log     zerolog.Logger
	storage storage.Store
	key     string
	writer  *storage.Writer
	now     func() time.Time
	newID   func() string

	mu        sync.Mutex
	cart      Cart
	listeners []listener
	nextID    int
	// ready is set by Hydrate; until then changes are only marked dirty.
	ready   bool
	dirty   bool
	cleared bool

	hydrateOnce sync.Once
	hydrated    chan struct{}
}

type listener struct {
	id int
	fn func(Cart)
}

// NewStore constructs an empty, not yet hydrated store.
func NewStore(opts Options) *Store {
	s := &Store{
		log:      opts.Logger,
		storage:  opts.Storage,
		key:      opts.Key,
		now:      opts.Now,
		newID:    opts.NewID,
		hydrated: make(chan struct{}),
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	created := s.now()
	s.cart = Cart{Items: []LineItem{}, Total: decimal.Zero, CreatedAt: created, UpdatedAt: created}
	if opts.Storage != nil && opts.Key != "" {
		s.writer = storage.NewWriter(opts.Storage, opts.Key, storage.WriterOptions{Logger: opts.Logger})
	}
	return s
}

// AddItem adds quantity units of product in variant. An existing line with the
// same product and variant is incremented instead of duplicated. quantity is
// clamped to at least 1. The resulting line is returned; its ID stays valid
// across a later Hydrate that merges it with a stored line.
func (s *Store) AddItem(product catalog.Product, variant *catalog.Variant, quantity int) LineItem {
	if quantity < 1 {
		quantity = 1
	}
	line := LineItem{Product: product.Clone(), Quantity: quantity}
	if variant != nil {
		v := *variant
		line.Variant = &v
	}

	var result LineItem
	s.mutate("add", func(c *Cart) bool {
		if i := c.indexOfIdentity(line.identity()); i >= 0 {
			c.Items[i].Quantity += quantity
			result = c.Items[i].clone()
			return true
		}
		line.ID = s.newID()
		c.Items = append(c.Items, line)
		result = line.clone()
		return true
	})
	return result
}

// UpdateQuantity sets the quantity of a line. A quantity below 1 removes the
// line. Unknown ids are ignored; the return value reports whether the cart changed.
func (s *Store) UpdateQuantity(lineID string, quantity int) bool {
	if quantity < 1 {
		return s.RemoveItem(lineID)
	}
	return s.mutate("update", func(c *Cart) bool {
		i := c.indexOf(lineID)
		if i < 0 || c.Items[i].Quantity == quantity {
			return false
		}
		c.Items[i].Quantity = quantity
		return true
	})
}

// RemoveItem deletes a line. Unknown ids are ignored.
func (s *Store) RemoveItem(lineID string) bool {
	return s.mutate("remove", func(c *Cart) bool {
		i := c.indexOf(lineID)
		if i < 0 {
			return false
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return true
	})
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mutate("clear", func(c *Cart) bool {
		if !s.ready {
			s.cleared = true
		}
		c.Items = []LineItem{}
		return true
	})
}

// Snapshot returns a deep copy of the cart.
func (s *Store) Snapshot() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.clone()
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []LineItem {
	return s.Snapshot().Items
}

// Summary computes subtotal, line discounts and total in currency with the
// given tax and shipping: total = subtotal - discount + tax + shipping.
// Call it with zero tax and shipping to obtain the pre-tax figures.
func (s *Store) Summary(currency money.Currency, tax, shipping decimal.Decimal) pricing.Summary {
	return s.SummaryWith(currency, pricing.Adjustments{Tax: tax, Shipping: shipping})
}

// SummaryWith is Summary with order-level adjustments.
func (s *Store) SummaryWith(currency money.Currency, adj pricing.Adjustments) pricing.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SummaryOf(s.cart, currency, adj)
}

// Subscribe registers fn to receive the cart after every change.
func (s *Store) Subscribe(fn func(Cart)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Hydrate loads the persisted cart once. Lines added before hydration are
// folded over the stored ones; a Clear before hydration discards them. A
// failed or undecodable read leaves the cart as it is. Writes are held back
// until Hydrate runs so a stored cart is never overwritten before it is read.
func (s *Store) Hydrate(ctx context.Context) {
	s.hydrateOnce.Do(func() {
		defer close(s.hydrated)
		restored, found := s.load(ctx)

		s.mu.Lock()
		s.ready = true
		if !found || s.cleared || restored.Empty() {
			if s.dirty {
				s.enqueueLocked(s.cart)
			}
			s.mu.Unlock()
			return
		}
		local := s.cart
		merged := restored
		for _, it := range local.Items {
			merged.adopt(it)
		}
		merged.recompute()
		if merged.CreatedAt.IsZero() || local.CreatedAt.Before(merged.CreatedAt) {
			merged.CreatedAt = local.CreatedAt
		}
		if s.dirty {
			merged.UpdatedAt = local.UpdatedAt
			s.enqueueLocked(merged)
		}
		s.cart = merged
		snapshot, listeners := s.cart.clone(), s.snapshotListeners()
		s.mu.Unlock()

		s.log.Debug().Str("key", s.key).Int("items", len(snapshot.Items)).Msg("cart_hydrated")
		for _, l := range listeners {
			l.fn(snapshot)
		}
	})
}

func (s *Store) load(ctx context.Context) (Cart, bool) {
	if s.storage == nil || s.key == "" {
		return Cart{}, false
	}
	var stored Cart
	found, err := s.storage.Load(ctx, s.key, &stored)
	if err != nil {
		if obs.StorageFailures != nil {
			obs.StorageFailures.WithLabelValues("load").Inc()
		}
		s.log.Warn().Err(err).Str("key", s.key).Msg("cart_hydrate_failed")
		return Cart{}, false
	}
	if !found {
		return Cart{}, false
	}
	return sanitize(stored, s.newID), true
}

// Hydrated is closed once Hydrate has completed.
func (s *Store) Hydrated() <-chan struct{} {
	return s.hydrated
}

// WaitHydrated blocks until hydration completes or ctx ends.
func (s *Store) WaitHydrated(ctx context.Context) error {
	select {
	case <-s.hydrated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits for pending writes.
func (s *Store) Flush(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Flush(ctx)
}

// Close flushes pending writes and stops the background writer.
func (s *Store) Close(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close(ctx)
}

// mutate applies fn under the lock. When fn reports a change the derived
// totals are recomputed, the cart is persisted and subscribers are notified.
func (s *Store) mutate(op string, fn func(*Cart) bool) bool {
	s.mu.Lock()
	if !fn(&s.cart) {
		s.mu.Unlock()
		return false
	}
	s.cart.recompute()
	s.cart.UpdatedAt = s.now()
	if s.ready {
		s.enqueueLocked(s.cart)
	} else {
		s.dirty = true
	}
	snapshot, listeners := s.cart.clone(), s.snapshotListeners()
	s.mu.Unlock()

	if obs.CartMutations != nil {
		obs.CartMutations.WithLabelValues(op).Inc()
	}
	for _, l := range listeners {
		l.fn(snapshot)
	}
	return true
}

func (s *Store) enqueueLocked(c Cart) {
	if s.writer != nil {
		s.writer.Enqueue(c.clone())
	}
}

func (s *Store) snapshotListeners() []listener {
	out := make([]listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}
