package storefront

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/pricing"
)

type lineView struct {
	ID                 string          `json:"id"`
	ProductID          string          `json:"productId"`
	Name               string          `json:"name"`
	Image              string          `json:"image,omitempty"`
	InStock            bool            `json:"inStock"`
	VariantID          string          `json:"variantId,omitempty"`
	VariantLabel       string          `json:"variantLabel,omitempty"`
	Quantity           int             `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	LineTotal          decimal.Decimal `json:"lineTotal"`
	Savings            decimal.Decimal `json:"savings"`
	UnitPriceFormatted string          `json:"unitPriceFormatted"`
	LineTotalFormatted string          `json:"lineTotalFormatted"`
}

type summaryView struct {
	pricing.Summary
	Formatted map[string]string `json:"formatted"`
}

type cartView struct {
	Session   string         `json:"session"`
	Currency  money.Currency `json:"currency"`
	Items     []lineView     `json:"items"`
	ItemCount int            `json:"itemCount"`
	Voucher   *string        `json:"voucher"`
	Summary   summaryView    `json:"summary"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func newCartView(session string, c cart.Cart, s pricing.Summary, voucherCode string) cartView {
	items := make([]lineView, 0, len(c.Items))
	for _, it := range c.Items {
		lv := lineView{
			ID:                 it.ID,
			ProductID:          it.Product.ID,
			Name:               it.Product.Name,
			InStock:            it.Product.InStock,
			Quantity:           it.Quantity,
			UnitPrice:          it.UnitPrice(),
			LineTotal:          it.Subtotal(),
			Savings:            it.Savings(),
			UnitPriceFormatted: money.Format(it.UnitPrice(), s.Currency),
			LineTotalFormatted: money.Format(it.Subtotal(), s.Currency),
		}
		if len(it.Product.Images) > 0 {
			lv.Image = it.Product.Images[0]
		}
		if it.Variant != nil {
			lv.VariantID = it.Variant.ID
			lv.VariantLabel = it.Variant.Name
			if it.Variant.Value != "" {
				lv.VariantLabel += ": " + it.Variant.Value
			}
		}
		items = append(items, lv)
	}
	v := cartView{
		Session:   session,
		Currency:  s.Currency,
		Items:     items,
		ItemCount: c.ItemCount,
		Summary: summaryView{
			Summary: s,
			Formatted: map[string]string{
				"subtotal": money.Format(s.Subtotal, s.Currency),
				"discount": money.Format(s.Discount, s.Currency),
				"tax":      money.Format(s.Tax, s.Currency),
				"shipping": money.Format(s.Shipping, s.Currency),
				"total":    money.Format(s.Total, s.Currency),
			},
		},
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if voucherCode != "" {
		v.Voucher = &voucherCode
	}
	return v
}
