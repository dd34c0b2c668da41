package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-cart/internal/common"
)

const defaultPerPage = 20

// Handler exposes the read-only catalog used to fill the cart.
type Handler struct {
	Source *StaticSource
}

// Products handles GET /api/v1/products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, defaultPerPage)
	items, total := h.Source.List(page, perPage)
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.NewPagination(page, perPage, total),
	})
}

// Product handles GET /api/v1/products/{id}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	p, err := h.Source.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			common.WriteError(w, common.NotFound("product not found", err))
			return
		}
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, p)
}
