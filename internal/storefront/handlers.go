package storefront

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

// Handler exposes storefront sessions over HTTP.
type Handler struct {
	Sessions *Sessions
	Catalog  catalog.Source
	// ReadyTimeout bounds how long a request waits for hydration. Defaults to 3s.
	ReadyTimeout time.Duration
}

// Mount registers the cart routes on r. writes wraps the mutating routes,
// typically with idempotency and rate limiting.
func (h *Handler) Mount(r chi.Router, writes ...func(http.Handler) http.Handler) {
	r.Route("/cart", func(c chi.Router) {
		c.Use(h.Session)
		c.Get("/", h.Get)
		c.Group(func(g chi.Router) {
			g.Use(writes...)
			g.Post("/items", h.AddItem)
			g.Patch("/items/{lineId}", h.UpdateItem)
			g.Delete("/items/{lineId}", h.RemoveItem)
			g.Delete("/", h.Clear)
			g.Put("/currency", h.SetCurrency)
			g.Put("/shipping", h.SetShipping)
			g.Post("/voucher", h.ApplyVoucher)
			g.Delete("/voucher", h.RemoveVoucher)
		})
	})
}

// Session resolves the cart session from the X-Cart-Session header, issuing
// a new one when the header is missing or malformed. The id is echoed back.
func (h *Handler) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(obs.SessionHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(obs.SessionHeader, id)
		next.ServeHTTP(w, r.WithContext(obs.WithSession(r.Context(), id)))
	})
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	VariantID string `json:"variantId" validate:"max=128"`
	Quantity  int    `json:"quantity" validate:"lte=999"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,lte=999"`
}

type currencyRequest struct {
	Currency string `json:"currency" validate:"required"`
}

type shippingRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type voucherRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// Get handles GET /api/v1/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	h.render(w, r, sf, http.StatusOK)
}

// AddItem handles POST /api/v1/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	product, err := h.Catalog.Product(r.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			common.WriteError(w, common.NotFound("product not found", err))
			return
		}
		common.WriteError(w, err)
		return
	}
	if !product.InStock {
		common.WriteError(w, common.Unprocessable("OUT_OF_STOCK", "product is out of stock", nil))
		return
	}
	var variant *catalog.Variant
	if req.VariantID != "" {
		v, found := product.FindVariant(req.VariantID)
		if !found {
			common.WriteError(w, common.BadRequest("variantId", "unknown variant", nil))
			return
		}
		variant = &v
	}

	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	sf.Cart.AddItem(product, variant, req.Quantity)
	h.render(w, r, sf, http.StatusOK)
}

// UpdateItem handles PATCH /api/v1/cart/items/{lineId}. A quantity below 1
// removes the line; unknown lines are ignored.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	sf.Cart.UpdateQuantity(chi.URLParam(r, "lineId"), *req.Quantity)
	h.render(w, r, sf, http.StatusOK)
}

// RemoveItem handles DELETE /api/v1/cart/items/{lineId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	sf.Cart.RemoveItem(chi.URLParam(r, "lineId"))
	h.render(w, r, sf, http.StatusOK)
}

// Clear handles DELETE /api/v1/cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	sf.Cart.Clear()
	sf.Pricing.RemoveVoucher()
	h.render(w, r, sf, http.StatusOK)
}

// SetCurrency handles PUT /api/v1/cart/currency.
func (h *Handler) SetCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	currency := money.Currency(strings.ToUpper(strings.TrimSpace(req.Currency)))
	if !currency.Valid() {
		common.WriteError(w, common.BadRequest("currency", "unsupported currency", nil))
		return
	}
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	sf.Currency.Set(currency)
	h.render(w, r, sf, http.StatusOK)
}

// SetShipping handles PUT /api/v1/cart/shipping.
func (h *Handler) SetShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if req.Amount.IsNegative() {
		common.WriteError(w, common.BadRequest("amount", "amount must not be negative", nil))
		return
	}
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	sf.Pricing.SetShipping(*req.Amount)
	h.render(w, r, sf, http.StatusOK)
}

// ApplyVoucher handles POST /api/v1/cart/voucher.
func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	var req voucherRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	if _, err := sf.Pricing.ApplyVoucher(r.Context(), req.Code); err != nil {
		code := "VOUCHER_NOT_ELIGIBLE"
		if errors.Is(err, voucher.ErrNotFound) {
			code = "VOUCHER_NOT_FOUND"
		}
		common.WriteError(w, common.Unprocessable(code, err.Error(), err))
		return
	}
	h.render(w, r, sf, http.StatusOK)
}

// RemoveVoucher handles DELETE /api/v1/cart/voucher.
func (h *Handler) RemoveVoucher(w http.ResponseWriter, r *http.Request) {
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	sf.Pricing.RemoveVoucher()
	h.render(w, r, sf, http.StatusOK)
}

// storefront resolves the session storefront and waits for it to be ready,
// so totals are never rendered from pre-hydration state.
func (h *Handler) storefront(w http.ResponseWriter, r *http.Request) (*Storefront, bool) {
	if h.Sessions == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "sessions not configured", nil)
		return nil, false
	}
	session := obs.SessionFromContext(r.Context())
	if session == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "missing cart session", nil)
		return nil, false
	}
	sf, err := h.Sessions.Get(r.Context(), session)
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "shutting down", nil)
		return nil, false
	}
	timeout := h.ReadyTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := sf.Ready(ctx); err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "NOT_READY", "cart is still loading", nil)
		return nil, false
	}
	return sf, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, sf *Storefront, status int) {
	summary := sf.Pricing.Summary(r.Context())
	common.Data(w, status, newCartView(sf.Session, sf.Cart.Snapshot(), summary, sf.Pricing.Voucher()))
}
