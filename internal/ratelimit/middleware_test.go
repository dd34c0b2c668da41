package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-cart/internal/obs"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	lim, err := New("1-M", client, "ratelimit")
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	counted := Handler{Limiter: lim, Key: func(*http.Request) string { return "static" }}.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rr2.Code)
	}
	if rr2.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected limit header: %q", rr2.Header().Get("X-RateLimit-Limit"))
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestSessionsHaveSeparateBuckets(t *testing.T) {
	lim, err := New("1-H", nil, "")
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	h := Handler{Limiter: lim}.Middleware(okHandler())

	for _, session := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(obs.WithSession(req.Context(), session))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("session %s: expected 200, got %d", session, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(obs.WithSession(req.Context(), "a"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected session a to be limited, got %d", rr.Code)
	}
}

func TestSessionOrIPFallsBackToClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := SessionOrIP(req); got != "ip:203.0.113.9" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = client.Close() }()
	lim, err := New("1-M", client, "ratelimit")
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	mr.Close()

	var captured error
	h := Handler{
		Limiter: lim,
		Key:     func(*http.Request) string { return "err" },
		OnError: func(err error) { captured = err },
	}.Middleware(okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected pass-through on limiter error, got %d", rr.Code)
	}
	if captured == nil {
		t.Fatal("expected OnError to receive the failure")
	}
}

func TestInvalidRate(t *testing.T) {
	if _, err := New("lots", nil, ""); err == nil {
		t.Fatal("expected error for malformed rate")
	}
}
