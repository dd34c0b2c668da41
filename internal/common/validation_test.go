package common_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/common"
)

type quantityPayload struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"lte=999"`
}

func decode(body string) (quantityPayload, error) {
	var p quantityPayload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return p, common.DecodeJSON(req, &p)
}

func TestDecodeJSONReportsJSONFieldNames(t *testing.T) {
	_, err := decode(`{"quantity": 1000}`)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	details := appErr.Details.(map[string]any)
	fields := details["fields"].(map[string]string)
	require.Equal(t, "is required", fields["productId"])
	require.Equal(t, "must be at most 999", fields["quantity"])
}

func TestDecodeJSONRejectsMalformedBodies(t *testing.T) {
	for _, body := range []string{``, `{`, `{"productId":"p1","extra":true}`} {
		_, err := decode(body)
		require.True(t, common.IsAppError(err), body)
	}
	p, err := decode(`{"productId":"p1","quantity":2}`)
	require.NoError(t, err)
	require.Equal(t, 2, p.Quantity)
}
