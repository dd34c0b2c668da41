package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/tax"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

// Options configures a Facade.
type Options struct {
	Cart     *cart.Store
	Currency *money.Selection
	// Taxes supplies the tax configuration. Nil means no tax.
	Taxes tax.Source
	// Vouchers resolves voucher codes. Nil disables vouchers.
	Vouchers voucher.Source
	Logger   zerolog.Logger
	Now      func() time.Time
	// FetchTimeout bounds the tax settings fetch. Defaults to 5s.
	FetchTimeout time.Duration
}

// Facade layers tax, shipping and an optional voucher over a session cart
// and keeps one consistent order summary. The tax settings are fetched once
// per facade; a failed fetch degrades to zero tax.
type Facade struct {
	cart         *cart.Store
	currency     *money.Selection
	taxes        tax.Source
	vouchers     voucher.Source
	log          zerolog.Logger
	now          func() time.Time
	fetchTimeout time.Duration

	fetchOnce     sync.Once
	settingsReady chan struct{}

	mu        sync.Mutex
	ready     bool
	settings  *tax.Settings
	shipping  decimal.Decimal
	applied   *voucher.Rule
	last      inputs
	haveLast  bool
	listeners []listener
	nextID    int
	cancels   []func()

	// pending holds the newest summary not yet delivered. One goroutine at a
	// time drains it, so subscribers never see an older summary after a newer one.
	pending    *pricing.Summary
	delivering bool
}

type listener struct {
	id int
	fn func(pricing.Summary)
}

// inputs are the values a recomputation depends on.
type inputs struct {
	currency money.Currency
	subtotal decimal.Decimal
	discount decimal.Decimal
	shipping decimal.Decimal
	voucher  string
}

func (a inputs) equal(b inputs) bool {
	return a.currency == b.currency &&
		a.voucher == b.voucher &&
		a.subtotal.Equal(b.subtotal) &&
		a.discount.Equal(b.discount) &&
		a.shipping.Equal(b.shipping)
}

// New constructs a facade and subscribes it to cart and currency changes.
func New(opts Options) *Facade {
	f := &Facade{
		cart:          opts.Cart,
		currency:      opts.Currency,
		taxes:         opts.Taxes,
		vouchers:      opts.Vouchers,
		log:           opts.Logger,
		now:           opts.Now,
		fetchTimeout:  opts.FetchTimeout,
		settingsReady: make(chan struct{}),
		shipping:      decimal.Zero,
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.fetchTimeout <= 0 {
		f.fetchTimeout = 5 * time.Second
	}
	if f.currency == nil {
		f.currency = money.NewSelection(money.SelectionOptions{})
	}
	f.cancels = append(f.cancels,
		f.cart.Subscribe(func(cart.Cart) { f.refresh() }),
		f.currency.Subscribe(func(money.Currency) { f.refresh() }),
	)
	return f
}

// Prefetch starts the one-shot tax settings fetch in the background. It
// outlives ctx cancellation but keeps its values.
func (f *Facade) Prefetch(ctx context.Context) {
	f.fetchOnce.Do(func() {
		go f.fetchSettings(context.WithoutCancel(ctx))
	})
}

func (f *Facade) fetchSettings(ctx context.Context) {
	var settings *tax.Settings
	if f.taxes != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
		s, err := f.taxes.Settings(fetchCtx)
		cancel()
		switch {
		case err != nil:
			f.countFetch("error")
			f.log.Error().Err(err).Msg("tax_settings_fetch_failed")
		case s == nil:
			f.countFetch("empty")
		default:
			f.countFetch("ok")
			settings = s
		}
	}
	f.mu.Lock()
	f.settings = settings
	f.ready = true
	f.mu.Unlock()
	f.refresh()
	close(f.settingsReady)
}

func (f *Facade) countFetch(result string) {
	if obs.TaxSettingsFetch != nil {
		obs.TaxSettingsFetch.WithLabelValues(result).Inc()
	}
}

// TaxSettings waits for the settings fetch. It returns nil when no tax is
// configured, the fetch failed, or ctx ended first.
func (f *Facade) TaxSettings(ctx context.Context) *tax.Settings {
	f.Prefetch(ctx)
	select {
	case <-f.settingsReady:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.settings
	case <-ctx.Done():
		return nil
	}
}

// SettingsReady is closed once the tax settings fetch has resolved and the
// first summary has been published.
func (f *Facade) SettingsReady() <-chan struct{} {
	return f.settingsReady
}

// Summary computes the current order summary in the active currency.
func (f *Facade) Summary(ctx context.Context) pricing.Summary {
	settings := f.TaxSettings(ctx)
	f.mu.Lock()
	shipping, applied := f.shipping, f.applied
	f.mu.Unlock()
	summary, _ := f.compute(settings, shipping, applied)
	return summary
}

// SetShipping sets the shipping cost in the active currency. Negative values count as zero.
func (f *Facade) SetShipping(amount decimal.Decimal) {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	f.mu.Lock()
	f.shipping = amount
	f.mu.Unlock()
	f.refresh()
}

// Shipping returns the current shipping cost.
func (f *Facade) Shipping() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shipping
}

// ApplyVoucher looks code up and applies it when the current cart qualifies.
// It returns voucher.ErrNotFound or the rule's validation error otherwise.
func (f *Facade) ApplyVoucher(ctx context.Context, code string) (voucher.Rule, error) {
	if f.vouchers == nil {
		return voucher.Rule{}, voucher.ErrNotFound
	}
	rule, err := f.vouchers.Rule(ctx, code)
	if err != nil {
		return voucher.Rule{}, err
	}
	if _, err := voucher.Apply(f.now(), voucherItems(f.cart.Snapshot()), rule); err != nil {
		return voucher.Rule{}, err
	}
	f.mu.Lock()
	f.applied = &rule
	f.mu.Unlock()
	f.log.Debug().Str("voucher", rule.Code).Msg("voucher_applied")
	f.refresh()
	return rule, nil
}

// RemoveVoucher drops the applied voucher, if any.
func (f *Facade) RemoveVoucher() {
	f.mu.Lock()
	f.applied = nil
	f.mu.Unlock()
	f.refresh()
}

// Voucher returns the applied voucher code, or "".
func (f *Facade) Voucher() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applied == nil {
		return ""
	}
	return f.applied.Code
}

// Subscribe registers fn to receive the summary whenever one of its inputs
// changes. Nothing is delivered before the tax settings have resolved.
func (f *Facade) Subscribe(fn func(pricing.Summary)) (cancel func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.listeners = append(f.listeners, listener{id: id, fn: fn})
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, l := range f.listeners {
			if l.id == id {
				f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
				return
			}
		}
	}
}

// Close detaches the facade from the cart and currency.
func (f *Facade) Close() {
	f.mu.Lock()
	cancels := f.cancels
	f.cancels = nil
	f.listeners = nil
	f.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// refresh recomputes and publishes the summary when an input changed. It
// never blocks on the settings fetch.
func (f *Facade) refresh() {
	f.mu.Lock()
	if !f.ready {
		f.mu.Unlock()
		return
	}
	summary, in := f.compute(f.settings, f.shipping, f.applied)
	if f.haveLast && in.equal(f.last) {
		f.mu.Unlock()
		return
	}
	f.last, f.haveLast = in, true
	f.pending = &summary
	if obs.PricingRecompute != nil {
		obs.PricingRecompute.Inc()
	}
	if f.delivering {
		f.mu.Unlock()
		return
	}
	f.delivering = true
	f.mu.Unlock()
	f.deliver()
}

// deliver publishes pending summaries until none is left. Only the newest
// pending summary is sent; intermediate ones are superseded.
func (f *Facade) deliver() {
	for {
		f.mu.Lock()
		if f.pending == nil {
			f.delivering = false
			f.mu.Unlock()
			return
		}
		summary := *f.pending
		f.pending = nil
		listeners := make([]listener, len(f.listeners))
		copy(listeners, f.listeners)
		f.mu.Unlock()

		for _, l := range listeners {
			l.fn(summary)
		}
	}
}

// compute derives the summary: the pre-tax summary gives the discounted
// subtotal, tax is computed on it, then shipping is layered on top.
// Inclusive tax is reported but not added to the total again.
func (f *Facade) compute(settings *tax.Settings, shipping decimal.Decimal, applied *voucher.Rule) (pricing.Summary, inputs) {
	currency := f.currency.Current()
	snapshot := f.cart.Snapshot()

	adj := pricing.Adjustments{}
	code := ""
	if applied != nil {
		code = applied.Code
		discount, err := voucher.Apply(f.now(), voucherItems(snapshot), *applied)
		if err == nil {
			adj.Voucher = discount
		}
	}
	pre := cart.SummaryOf(snapshot, currency, adj)

	adj.Tax = tax.Calculate(pre.DiscountedSubtotal(), currency, settings)
	adj.TaxIncluded = settings != nil && settings.Mode == tax.Inclusive
	adj.Shipping = shipping
	summary := cart.SummaryOf(snapshot, currency, adj)

	return summary, inputs{
		currency: currency,
		subtotal: pre.Subtotal,
		discount: pre.Discount,
		shipping: summary.Shipping,
		voucher:  code,
	}
}

func voucherItems(c cart.Cart) []voucher.Item {
	items := make([]voucher.Item, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, voucher.Item{
			ProductID: it.Product.ID,
			Subtotal:  it.Subtotal().Sub(it.Savings()),
		})
	}
	return items
}
