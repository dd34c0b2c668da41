package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/pricing"
)

// LineItem is one product and variant combination in the cart. Product and
// Variant are snapshots taken when the line was added.
type LineItem struct {
	ID       string           `json:"id"`
	Product  catalog.Product  `json:"product"`
	Variant  *catalog.Variant `json:"selectedVariant,omitempty"`
	Quantity int              `json:"quantity"`
}

type identity struct {
	productID string
	variantID string
}

func (l LineItem) identity() identity {
	id := identity{productID: l.Product.ID}
	if l.Variant != nil {
		id.variantID = l.Variant.ID
	}
	return id
}

// UnitPrice is the product price plus the variant modifier.
func (l LineItem) UnitPrice() decimal.Decimal {
	return l.pricingLine().UnitPrice()
}

// Subtotal is UnitPrice × Quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.pricingLine().Total()
}

// Savings is the compare-at discount of the line.
func (l LineItem) Savings() decimal.Decimal {
	return l.pricingLine().Savings()
}

func (l LineItem) pricingLine() pricing.Line {
	line := pricing.Line{
		Price:         l.Product.Price,
		OriginalPrice: l.Product.OriginalPrice,
		Quantity:      l.Quantity,
	}
	if l.Variant != nil {
		line.Modifier = l.Variant.PriceModifier
	}
	return line
}

func (l LineItem) clone() LineItem {
	out := l
	out.Product = l.Product.Clone()
	if l.Variant != nil {
		v := *l.Variant
		out.Variant = &v
	}
	return out
}

// Cart is the persisted cart aggregate. ItemCount and Total are derived from
// Items and recomputed on every change.
type Cart struct {
	Items     []LineItem      `json:"items"`
	ItemCount int             `json:"itemCount"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool {
	return len(c.Items) == 0
}

// Find returns the line with the given id.
func (c Cart) Find(lineID string) (LineItem, bool) {
	for _, it := range c.Items {
		if it.ID == lineID {
			return it, true
		}
	}
	return LineItem{}, false
}

func (c *Cart) recompute() {
	count := 0
	total := decimal.Zero
	for _, it := range c.Items {
		count += it.Quantity
		total = total.Add(it.Subtotal())
	}
	c.ItemCount = count
	c.Total = total
}

func (c Cart) clone() Cart {
	out := c
	out.Items = make([]LineItem, len(c.Items))
	for i, it := range c.Items {
		out.Items[i] = it.clone()
	}
	return out
}

func (c Cart) indexOf(lineID string) int {
	for i, it := range c.Items {
		if it.ID == lineID {
			return i
		}
	}
	return -1
}

func (c Cart) indexOfIdentity(id identity) int {
	for i, it := range c.Items {
		if it.identity() == id {
			return i
		}
	}
	return -1
}

// fold merges line into the cart by identity, adding quantities.
func (c *Cart) fold(line LineItem) {
	if i := c.indexOfIdentity(line.identity()); i >= 0 {
		c.Items[i].Quantity += line.Quantity
		return
	}
	c.Items = append(c.Items, line)
}

// adopt folds a line added before hydration into c. The local id wins so the
// LineItem returned by AddItem stays addressable.
func (c *Cart) adopt(line LineItem) {
	if i := c.indexOfIdentity(line.identity()); i >= 0 {
		c.Items[i].Quantity += line.Quantity
		c.Items[i].ID = line.ID
		return
	}
	c.Items = append(c.Items, line)
}

// sanitize drops lines that cannot be priced, merges duplicate identities and
// recomputes derived totals instead of trusting stored ones.
func sanitize(stored Cart, newID func() string) Cart {
	out := Cart{CreatedAt: stored.CreatedAt, UpdatedAt: stored.UpdatedAt, Items: make([]LineItem, 0, len(stored.Items))}
	seen := make(map[string]struct{}, len(stored.Items))
	for _, it := range stored.Items {
		if it.Quantity < 1 || it.Product.ID == "" {
			continue
		}
		if _, dup := seen[it.ID]; it.ID == "" || dup {
			it.ID = newID()
		}
		seen[it.ID] = struct{}{}
		out.fold(it.clone())
	}
	out.recompute()
	return out
}

// SummaryOf derives the order summary of c in currency. Amounts are relabelled,
// not converted.
func SummaryOf(c Cart, currency money.Currency, adj pricing.Adjustments) pricing.Summary {
	lines := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, it.pricingLine())
	}
	return pricing.Compute(lines, currency, adj)
}
