package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/common"
)

func TestIdempotencyRejectsReplay(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	idem := common.Idem{
		R:     client,
		TTL:   time.Minute,
		Key:   func(hash string) string { return "test:idem:" + hash },
		Scope: func(r *http.Request) string { return r.Header.Get("X-Cart-Session") },
	}
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(session, key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
		req.Header.Set("X-Cart-Session", session)
		if key != "" {
			req.Header.Set(common.IdempotencyHeader, key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusCreated, send("s1", "k1"))
	require.Equal(t, http.StatusConflict, send("s1", "k1"))
	require.Equal(t, http.StatusCreated, send("s2", "k1"), "keys are scoped per session")
	require.Equal(t, http.StatusCreated, send("s1", ""))
	require.Equal(t, http.StatusCreated, send("s1", ""))
	require.Equal(t, 4, calls)
	require.Len(t, mr.Keys(), 2)
}

func TestIdempotencyReleasesKeyOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	statuses := []int{http.StatusServiceUnavailable, http.StatusOK}
	calls := 0
	handler := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
		req.Header.Set(common.IdempotencyHeader, "k1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusServiceUnavailable, send())
	require.Empty(t, mr.Keys(), "a failed attempt must not hold the key")
	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusConflict, send())
	require.Equal(t, 2, calls)
}

func TestIdempotencyStoreDownPassesThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	var storeErr error
	calls := 0
	handler := common.Idem{
		R:       client,
		OnError: func(err error) { storeErr = err },
	}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	req.Header.Set(common.IdempotencyHeader, "k1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, calls)
	require.Error(t, storeErr)
}

func TestWriteErrorMapsAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	common.WriteError(rec, common.BadRequest("quantity", "quantity out of range", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":{"code":"BAD_REQUEST","message":"quantity out of range","details":{"field":"quantity"}}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	common.WriteError(rec, http.ErrBodyNotAllowed)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
