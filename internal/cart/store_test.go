package cart_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/storage"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func product(id string, price int64) catalog.Product {
	return catalog.Product{ID: id, Name: id, Price: d(price), InStock: true}
}

func onSale(id string, price, original int64) catalog.Product {
	p := product(id, price)
	o := d(original)
	p.OriginalPrice = &o
	return p
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("line-%d", n)
	}
}

func newStore(t *testing.T, opts cart.Options) *cart.Store {
	t.Helper()
	if opts.NewID == nil {
		opts.NewID = sequentialIDs()
	}
	opts.Logger = zerolog.Nop()
	s := cart.NewStore(opts)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func requireDecimal(t *testing.T, expected int64, actual decimal.Decimal, field string) {
	t.Helper()
	require.True(t, actual.Equal(d(expected)), "%s: expected %d, got %s", field, expected, actual)
}

func TestAddItemSameIdentityIncrements(t *testing.T) {
	s := newStore(t, cart.Options{})
	p := product("boubou", 25000)
	v := &catalog.Variant{ID: "xl", Name: "Taille", Value: "XL", PriceModifier: d(2500)}

	s.AddItem(p, v, 1)
	line := s.AddItem(p, v, 1)

	items := s.Items()
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].Quantity)
	require.Equal(t, items[0].ID, line.ID)

	s.AddItem(p, nil, 1)
	s.AddItem(p, &catalog.Variant{ID: "m"}, 1)
	require.Len(t, s.Items(), 3, "distinct variants occupy distinct lines")
	require.Equal(t, 4, s.Snapshot().ItemCount)
}

func TestAddItemClampsQuantity(t *testing.T) {
	s := newStore(t, cart.Options{})
	s.AddItem(product("p1", 1000), nil, 0)
	s.AddItem(product("p2", 1000), nil, -4)
	for _, it := range s.Items() {
		require.Equal(t, 1, it.Quantity)
	}
}

func TestUpdateQuantityBelowOneRemoves(t *testing.T) {
	for _, qty := range []int{0, -1, -50} {
		s := newStore(t, cart.Options{})
		line := s.AddItem(product("p1", 1000), nil, 3)
		other := s.AddItem(product("p2", 500), nil, 1)

		require.True(t, s.UpdateQuantity(line.ID, qty))
		items := s.Items()
		require.Len(t, items, 1)
		require.Equal(t, other.ID, items[0].ID)
		for _, it := range items {
			require.GreaterOrEqual(t, it.Quantity, 1)
		}
	}
}

func TestUpdateQuantitySetsExactly(t *testing.T) {
	s := newStore(t, cart.Options{})
	line := s.AddItem(product("p1", 1000), nil, 1)
	require.True(t, s.UpdateQuantity(line.ID, 7))
	snap := s.Snapshot()
	require.Equal(t, 7, snap.ItemCount)
	requireDecimal(t, 7000, snap.Total, "total")
	require.False(t, s.UpdateQuantity("missing", 3))
}

func TestRemoveUnknownLineIsNoop(t *testing.T) {
	s := newStore(t, cart.Options{})
	s.AddItem(product("p1", 1000), nil, 2)
	before := s.Snapshot()

	require.False(t, s.RemoveItem("does-not-exist"))

	after := s.Snapshot()
	require.Equal(t, before.ItemCount, after.ItemCount)
	require.True(t, before.Total.Equal(after.Total))
	require.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestClearEmptiesCart(t *testing.T) {
	s := newStore(t, cart.Options{})
	s.AddItem(product("p1", 1000), nil, 2)
	s.Clear()
	snap := s.Snapshot()
	require.Empty(t, snap.Items)
	require.Zero(t, snap.ItemCount)
	require.True(t, snap.Total.IsZero())
}

func TestSummaryOnEmptyCartAfterFirstAdd(t *testing.T) {
	s := newStore(t, cart.Options{})
	s.AddItem(catalog.Product{ID: "p1", Price: d(1000)}, nil, 1)

	sum := s.Summary(money.XOF, decimal.Zero, decimal.Zero)
	require.Equal(t, money.XOF, sum.Currency)
	requireDecimal(t, 1000, sum.Subtotal, "subtotal")
	requireDecimal(t, 0, sum.Discount, "discount")
	requireDecimal(t, 0, sum.Tax, "tax")
	requireDecimal(t, 0, sum.Shipping, "shipping")
	requireDecimal(t, 1000, sum.Total, "total")
}

func TestSummaryLineSavings(t *testing.T) {
	s := newStore(t, cart.Options{})
	s.AddItem(onSale("p1", 1000, 1500), nil, 2)

	sum := s.Summary(money.XOF, decimal.Zero, decimal.Zero)
	requireDecimal(t, 2000, sum.Subtotal, "subtotal")
	requireDecimal(t, 1000, sum.Discount, "discount")
}

func TestSummaryAddsTaxAndShipping(t *testing.T) {
	s := newStore(t, cart.Options{})
	s.AddItem(onSale("p1", 1000, 1500), nil, 2)

	sum := s.Summary(money.EUR, d(180), d(500))
	require.Equal(t, money.EUR, sum.Currency)
	requireDecimal(t, 1680, sum.Total, "total")
}

func TestSummaryIndependentOfInsertionOrder(t *testing.T) {
	variant := &catalog.Variant{ID: "v", PriceModifier: decimal.RequireFromString("12.5")}
	adds := []func(*cart.Store){
		func(s *cart.Store) { s.AddItem(product("a", 1999), nil, 3) },
		func(s *cart.Store) { s.AddItem(product("b", 7), variant, 11) },
		func(s *cart.Store) { s.AddItem(onSale("c", 450, 600), nil, 2) },
	}
	forward := newStore(t, cart.Options{})
	backward := newStore(t, cart.Options{})
	for i := range adds {
		adds[i](forward)
		adds[len(adds)-1-i](backward)
	}

	f := forward.Summary(money.XOF, decimal.Zero, decimal.Zero)
	b := backward.Summary(money.XOF, decimal.Zero, decimal.Zero)
	require.True(t, f.Equal(b))

	expected := decimal.Zero
	for _, it := range forward.Items() {
		expected = expected.Add(it.UnitPrice().Mul(d(int64(it.Quantity))))
	}
	require.True(t, f.Subtotal.Equal(expected))
	require.True(t, forward.Snapshot().Total.Equal(expected))
}

func TestLineSnapshotIsolatedFromCatalog(t *testing.T) {
	s := newStore(t, cart.Options{})
	p := product("p1", 1000)
	p.Images = []string{"a.jpg"}
	s.AddItem(p, nil, 1)

	p.Price = d(1)
	p.Images[0] = "changed.jpg"

	item := s.Items()[0]
	requireDecimal(t, 1000, item.Product.Price, "price")
	require.Equal(t, "a.jpg", item.Product.Images[0])

	item.Quantity = 99
	require.Equal(t, 1, s.Items()[0].Quantity, "snapshots are copies")
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := newStore(t, cart.Options{})
	var counts []int
	cancel := s.Subscribe(func(c cart.Cart) { counts = append(counts, c.ItemCount) })

	line := s.AddItem(product("p1", 1000), nil, 1)
	s.UpdateQuantity(line.ID, 4)
	s.RemoveItem("unknown")
	cancel()
	s.Clear()

	require.Equal(t, []int{1, 4}, counts)
}

func TestPersistAndHydrate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	mem := storage.NewMemory()

	first := newStore(t, cart.Options{Storage: mem, Key: "cart:s1"})
	first.Hydrate(ctx)
	first.AddItem(onSale("p1", 1000, 1500), &catalog.Variant{ID: "v1", PriceModifier: d(100)}, 2)
	first.AddItem(product("p2", 300), nil, 1)
	require.NoError(t, first.Flush(ctx))

	second := newStore(t, cart.Options{Storage: mem, Key: "cart:s1"})
	require.Error(t, second.WaitHydrated(expired()))
	second.Hydrate(ctx)
	require.NoError(t, second.WaitHydrated(ctx))

	want, got := first.Items(), second.Items()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].ID, got[i].ID)
		require.Equal(t, want[i].Product.ID, got[i].Product.ID)
		require.Equal(t, want[i].Quantity, got[i].Quantity)
		require.True(t, want[i].UnitPrice().Equal(got[i].UnitPrice()))
	}
	snap := second.Snapshot()
	require.Equal(t, 3, snap.ItemCount)
	requireDecimal(t, 2500, snap.Total, "total")
}

func TestHydrateMergesLocalAdditions(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	seed := newStore(t, cart.Options{Storage: mem, Key: "k"})
	seed.Hydrate(ctx)
	seed.AddItem(product("p1", 1000), nil, 2)
	require.NoError(t, seed.Close(ctx))

	s := newStore(t, cart.Options{Storage: mem, Key: "k"})
	s.AddItem(product("p1", 1000), nil, 1)
	s.AddItem(product("p2", 500), nil, 1)
	var notified bool
	s.Subscribe(func(cart.Cart) { notified = true })
	s.Hydrate(ctx)

	items := s.Items()
	require.Len(t, items, 2)
	require.Equal(t, "p1", items[0].Product.ID)
	require.Equal(t, 3, items[0].Quantity)
	require.Equal(t, "p2", items[1].Product.ID)
	require.True(t, notified)

	require.NoError(t, s.Flush(ctx))
	reloaded := newStore(t, cart.Options{Storage: mem, Key: "k"})
	reloaded.Hydrate(ctx)
	require.Equal(t, 4, reloaded.Snapshot().ItemCount)
}

func TestHydrateKeepsLocalLineID(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	seed := newStore(t, cart.Options{Storage: mem, Key: "k"})
	seed.Hydrate(ctx)
	stored := seed.AddItem(product("p1", 1000), nil, 2)
	require.NoError(t, seed.Close(ctx))

	s := newStore(t, cart.Options{Storage: mem, Key: "k", NewID: func() string { return "local-1" }})
	local := s.AddItem(product("p1", 1000), nil, 1)
	require.NotEqual(t, stored.ID, local.ID)
	s.Hydrate(ctx)

	items := s.Items()
	require.Len(t, items, 1)
	require.Equal(t, local.ID, items[0].ID)
	require.Equal(t, 3, items[0].Quantity)

	require.True(t, s.UpdateQuantity(local.ID, 5))
	require.Equal(t, 5, s.Snapshot().ItemCount)
}

func TestClearBeforeHydrationDiscardsStoredLines(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	seed := newStore(t, cart.Options{Storage: mem, Key: "k"})
	seed.Hydrate(ctx)
	seed.AddItem(product("p1", 1000), nil, 2)
	require.NoError(t, seed.Close(ctx))

	s := newStore(t, cart.Options{Storage: mem, Key: "k"})
	s.Clear()
	s.Hydrate(ctx)
	require.Empty(t, s.Items())
	require.NoError(t, s.Flush(ctx))

	reloaded := newStore(t, cart.Options{Storage: mem, Key: "k"})
	reloaded.Hydrate(ctx)
	require.Empty(t, reloaded.Items(), "the clear is persisted")
}

func TestWritesWaitForHydration(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := newStore(t, cart.Options{Storage: mem, Key: "k"})
	s.AddItem(product("p1", 1000), nil, 1)
	require.NoError(t, s.Flush(ctx))
	_, written := mem.Raw("k")
	require.False(t, written)

	s.Hydrate(ctx)
	require.NoError(t, s.Flush(ctx))
	_, written = mem.Raw("k")
	require.True(t, written)
}

func TestHydrateSanitisesStoredSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.Save(ctx, "k", map[string]any{
		"items": []map[string]any{
			{"id": "a", "product": map[string]any{"id": "p1", "price": "1000"}, "quantity": 1},
			{"id": "b", "product": map[string]any{"id": "p1", "price": "1000"}, "quantity": 2},
			{"id": "c", "product": map[string]any{"id": "p2", "price": "50"}, "quantity": 0},
			{"id": "d", "product": map[string]any{"id": "", "price": "50"}, "quantity": 1},
		},
		"itemCount": 999,
		"total":     "1",
	}))

	s := newStore(t, cart.Options{Storage: mem, Key: "k"})
	s.Hydrate(ctx)
	snap := s.Snapshot()
	require.Len(t, snap.Items, 1)
	require.Equal(t, "a", snap.Items[0].ID)
	require.Equal(t, 3, snap.ItemCount)
	requireDecimal(t, 3000, snap.Total, "total")
}

type offlineStore struct{}

func (offlineStore) Load(context.Context, string, any) (bool, error) {
	return false, errors.New("storage offline")
}
func (offlineStore) Save(context.Context, string, any) error { return errors.New("storage offline") }
func (offlineStore) Delete(context.Context, string) error    { return nil }

func TestStorageFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, cart.Options{Storage: offlineStore{}, Key: "k"})
	s.Hydrate(ctx)
	require.NoError(t, s.WaitHydrated(ctx))

	s.AddItem(product("p1", 1000), nil, 1)
	require.NoError(t, s.Flush(ctx))
	require.Equal(t, 1, s.Snapshot().ItemCount)

	undecodable := storage.NewMemory()
	require.NoError(t, undecodable.Save(ctx, "k", "not a cart"))
	fresh := newStore(t, cart.Options{Storage: undecodable, Key: "k"})
	fresh.Hydrate(ctx)
	require.Empty(t, fresh.Items())
}

func TestRedisPersistenceRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	backend := storage.NewRedis(client, 7*24*time.Hour)
	key := storage.Keys{Prefix: "toko"}.Cart("sess-1")

	s := newStore(t, cart.Options{Storage: backend, Key: key})
	s.Hydrate(ctx)
	s.AddItem(onSale("boubou", 25000, 32000), nil, 1)
	require.NoError(t, s.Flush(ctx))
	require.True(t, mr.Exists(key))
	require.Equal(t, 7*24*time.Hour, mr.TTL(key))

	restored := newStore(t, cart.Options{Storage: backend, Key: key})
	restored.Hydrate(ctx)
	sum := restored.Summary(money.XOF, decimal.Zero, decimal.Zero)
	requireDecimal(t, 25000, sum.Subtotal, "subtotal")
	requireDecimal(t, 7000, sum.Discount, "discount")
}

func expired() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
