package storefront

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noah-isme/toko-cart/internal/obs"
)

type session struct {
	sf       *Storefront
	lastSeen time.Time
}

// Sessions keeps the storefronts of active sessions in memory. Idle sessions
// are closed by Evict; their state survives in storage.
type Sessions struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	items  map[string]*session
	closed bool
}

// NewSessions constructs an empty registry.
func NewSessions(cfg Config) *Sessions {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sessions{cfg: cfg, now: now, items: make(map[string]*session)}
}

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("storefront: sessions closed")

// Get returns the storefront of id, creating it on first use.
func (s *Sessions) Get(ctx context.Context, id string) (*Storefront, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if existing, ok := s.items[id]; ok {
		existing.lastSeen = s.now()
		return existing.sf, nil
	}
	sf := NewStorefront(ctx, s.cfg, id)
	s.items[id] = &session{sf: sf, lastSeen: s.now()}
	s.recordLocked()
	return sf, nil
}

// Len returns the number of sessions held in memory.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Evict closes sessions idle for longer than idle and returns how many were dropped.
func (s *Sessions) Evict(ctx context.Context, idle time.Duration) int {
	cutoff := s.now().Add(-idle)
	s.mu.Lock()
	var stale []*Storefront
	for id, sess := range s.items {
		if sess.lastSeen.Before(cutoff) {
			stale = append(stale, sess.sf)
			delete(s.items, id)
		}
	}
	s.recordLocked()
	s.mu.Unlock()

	for _, sf := range stale {
		if err := sf.Close(ctx); err != nil {
			s.cfg.Logger.Warn().Err(err).Str("session", sf.Session).Msg("session_close_failed")
		}
	}
	return len(stale)
}

// Close flushes and closes every session. Later Get calls fail.
func (s *Sessions) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	items := s.items
	s.items = make(map[string]*session)
	s.recordLocked()
	s.mu.Unlock()

	var errs []error
	for _, sess := range items {
		errs = append(errs, sess.sf.Close(ctx))
	}
	return errors.Join(errs...)
}

func (s *Sessions) recordLocked() {
	if obs.ActiveSessions != nil {
		obs.ActiveSessions.Set(float64(len(s.items)))
	}
}
