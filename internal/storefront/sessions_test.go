package storefront_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/storage"
	"github.com/noah-isme/toko-cart/internal/storefront"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestSessionsEvictIdle(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	sessions := storefront.NewSessions(storefront.Config{Storage: storage.NewMemory(), Now: clk.now})
	ctx := context.Background()

	first, err := sessions.Get(ctx, "a")
	require.NoError(t, err)
	again, err := sessions.Get(ctx, "a")
	require.NoError(t, err)
	require.Same(t, first, again)

	clk.advance(20 * time.Minute)
	_, err = sessions.Get(ctx, "b")
	require.NoError(t, err)

	require.Equal(t, 1, sessions.Evict(ctx, 15*time.Minute))
	require.Equal(t, 1, sessions.Len())

	require.NoError(t, sessions.Close(ctx))
	_, err = sessions.Get(ctx, "c")
	require.ErrorIs(t, err, storefront.ErrClosed)
}

func TestStorefrontReadyAndPersistence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	store := storage.NewMemory()
	cfg := storefront.Config{Storage: store, Keys: storage.Keys{Prefix: "t"}, DefaultCurrency: money.USD}

	sf := storefront.NewStorefront(ctx, cfg, "s1")
	require.NoError(t, sf.Ready(ctx))
	require.Equal(t, money.USD, sf.Currency.Current())
	sf.Cart.AddItem(catalog.Product{ID: "p1", Price: decimal.NewFromInt(1000)}, nil, 2)
	require.NoError(t, sf.Close(ctx))

	_, found := store.Raw("t:cart:s1")
	require.True(t, found)

	restored := storefront.NewStorefront(ctx, cfg, "s1")
	defer func() { _ = restored.Close(ctx) }()
	require.NoError(t, restored.Ready(ctx))
	sum := restored.Pricing.Summary(ctx)
	require.True(t, sum.Total.Equal(decimal.NewFromInt(2000)))
	require.Equal(t, money.USD, sum.Currency)
}
