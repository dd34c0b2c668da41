package catalog

import "github.com/shopspring/decimal"

// Variant is a purchasable option of a product, such as a size or colour.
type Variant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
	// PriceModifier is added to the product price for this variant. May be negative.
	PriceModifier decimal.Decimal `json:"priceModifier"`
}

// Product is a catalog entry as supplied by the content platform. Prices are
// expressed in the storefront reference currency.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	// OriginalPrice is the compare-at price shown struck through when higher than Price.
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	Images        []string         `json:"images,omitempty"`
	InStock       bool             `json:"inStock"`
	Variants      []Variant        `json:"variants,omitempty"`
}

// FindVariant returns the variant with the given id.
func (p Product) FindVariant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// OnSale reports whether the product carries a compare-at price above its price.
func (p Product) OnSale() bool {
	return p.OriginalPrice != nil && p.OriginalPrice.GreaterThan(p.Price)
}

// Clone returns a deep copy so snapshots never share slices with the source.
func (p Product) Clone() Product {
	out := p
	if p.OriginalPrice != nil {
		original := *p.OriginalPrice
		out.OriginalPrice = &original
	}
	if p.Images != nil {
		out.Images = append([]string(nil), p.Images...)
	}
	if p.Variants != nil {
		out.Variants = append([]Variant(nil), p.Variants...)
	}
	return out
}
