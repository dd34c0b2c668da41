package storefront

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/checkout"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/storage"
	"github.com/noah-isme/toko-cart/internal/tax"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

// Config holds the collaborators shared by every storefront session.
type Config struct {
	// Storage persists carts and currency choices. Nil keeps sessions in memory.
	Storage         storage.Store
	Keys            storage.Keys
	Taxes           tax.Source
	Vouchers        voucher.Source
	DefaultCurrency money.Currency
	TaxFetchTimeout time.Duration
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Storefront is the explicit per-session context: the cart, the active
// currency and the pricing facade built over them.
type Storefront struct {
	Session  string
	Cart     *cart.Store
	Currency *money.Selection
	Pricing  *checkout.Facade
}

// NewStorefront wires a session and starts hydration and the tax settings
// fetch in the background. Call Ready before rendering totals.
func NewStorefront(ctx context.Context, cfg Config, session string) *Storefront {
	log := cfg.Logger.With().Str("session", session).Logger()
	c := cart.NewStore(cart.Options{
		Storage: cfg.Storage,
		Key:     cfg.Keys.Cart(session),
		Logger:  log,
		Now:     cfg.Now,
	})
	sel := money.NewSelection(money.SelectionOptions{
		Storage: cfg.Storage,
		Key:     cfg.Keys.Currency(session),
		Default: cfg.DefaultCurrency,
		Logger:  log,
	})
	f := checkout.New(checkout.Options{
		Cart:         c,
		Currency:     sel,
		Taxes:        cfg.Taxes,
		Vouchers:     cfg.Vouchers,
		Logger:       log,
		Now:          cfg.Now,
		FetchTimeout: cfg.TaxFetchTimeout,
	})

	bg := context.WithoutCancel(ctx)
	go c.Hydrate(bg)
	go sel.Hydrate(bg)
	f.Prefetch(bg)

	return &Storefront{Session: session, Cart: c, Currency: sel, Pricing: f}
}

// Ready blocks until the cart and currency are hydrated and the tax settings
// have resolved, or ctx ends.
func (s *Storefront) Ready(ctx context.Context) error {
	for _, ch := range []<-chan struct{}{s.Cart.Hydrated(), s.Currency.Hydrated(), s.Pricing.SettingsReady()} {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close detaches the facade and flushes pending writes.
func (s *Storefront) Close(ctx context.Context) error {
	s.Pricing.Close()
	return errors.Join(s.Cart.Close(ctx), s.Currency.Close(ctx))
}
