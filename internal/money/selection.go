package money

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/storage"
)

// SelectionOptions configures a Selection.
type SelectionOptions struct {
	// Storage persists the choice. Nil keeps it in memory only.
	Storage storage.Store
	Key     string
	Default Currency
	Logger  zerolog.Logger
}

type persistedSelection struct {
	Currency Currency `json:"currency"`
}

// Selection holds the active display currency of one storefront session.
type Selection struct {
	log     zerolog.Logger
	storage storage.Store
	key     string
	writer  *storage.Writer

	mu        sync.RWMutex
	current   Currency
	touched   bool
	listeners []selectionListener
	nextID    int

	hydrateOnce sync.Once
	hydrated    chan struct{}
}

type selectionListener struct {
	id int
	fn func(Currency)
}

// NewSelection constructs a selection initialised to opts.Default.
func NewSelection(opts SelectionOptions) *Selection {
	initial := opts.Default
	if !initial.Valid() {
		initial = Default
	}
	s := &Selection{
		log:      opts.Logger,
		storage:  opts.Storage,
		key:      opts.Key,
		current:  initial,
		hydrated: make(chan struct{}),
	}
	if opts.Storage != nil && opts.Key != "" {
		s.writer = storage.NewWriter(opts.Storage, opts.Key, storage.WriterOptions{Logger: opts.Logger})
	}
	return s
}

// Current returns the active currency.
func (s *Selection) Current() Currency {
	if s == nil {
		return Default
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set switches the active currency. Unsupported codes are ignored and reported
// with false. Setting the already active currency is a no-op.
func (s *Selection) Set(c Currency) bool {
	if !c.Valid() {
		return false
	}
	s.mu.Lock()
	s.touched = true
	if s.current == c {
		s.mu.Unlock()
		return true
	}
	s.current = c
	if s.writer != nil {
		s.writer.Enqueue(persistedSelection{Currency: c})
	}
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(c)
	}
	return true
}

// Subscribe registers fn to be called after every currency change.
func (s *Selection) Subscribe(fn func(Currency)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, selectionListener{id: id, fn: fn})
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

// Hydrate loads the persisted currency once. A choice made before hydration
// finishes wins over the stored one. Failures keep the current value.
func (s *Selection) Hydrate(ctx context.Context) {
	s.hydrateOnce.Do(func() {
		defer close(s.hydrated)
		if s.storage == nil || s.key == "" {
			return
		}
		var stored persistedSelection
		found, err := s.storage.Load(ctx, s.key, &stored)
		if err != nil {
			if obs.StorageFailures != nil {
				obs.StorageFailures.WithLabelValues("load").Inc()
			}
			s.log.Warn().Err(err).Str("key", s.key).Msg("currency_hydrate_failed")
			return
		}
		if !found || !stored.Currency.Valid() {
			return
		}
		s.mu.Lock()
		if s.touched || s.current == stored.Currency {
			s.mu.Unlock()
			return
		}
		s.current = stored.Currency
		listeners := s.snapshotListeners()
		s.mu.Unlock()
		for _, l := range listeners {
			l.fn(stored.Currency)
		}
	})
}

// Hydrated is closed once Hydrate has completed.
func (s *Selection) Hydrated() <-chan struct{} {
	return s.hydrated
}

// Flush waits for pending writes.
func (s *Selection) Flush(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Flush(ctx)
}

// Close flushes pending writes and stops the background writer.
func (s *Selection) Close(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close(ctx)
}

func (s *Selection) snapshotListeners() []selectionListener {
	out := make([]selectionListener, len(s.listeners))
	copy(out, s.listeners)
	return out
}
