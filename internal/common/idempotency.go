package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-cart/internal/obs"
)

// IdempotencyHeader is the request header naming a retry-safe write.
const IdempotencyHeader = "Idempotency-Key"

// Idem provides an Idempotency-Key middleware backed by Redis. A second request
// carrying the same key within TTL is rejected with 409 instead of being applied
// twice, so a retried "add to cart" never increments a line again.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
	// Key maps the header value to a storage key. Defaults to "idem:<sha256>".
	Key func(hash string) string
	// Scope narrows the key, typically to the cart session of the request.
	Scope func(*http.Request) string
	// OnError observes store failures. The request proceeds unguarded.
	OnError func(error)
}

func (i Idem) storageKey(r *http.Request, header string) string {
	scope := ""
	if i.Scope != nil {
		scope = strings.TrimSpace(i.Scope(r))
	}
	sum := sha256.Sum256([]byte(scope + "|" + r.Method + "|" + r.URL.Path + "|" + header))
	hash := hex.EncodeToString(sum[:])
	if i.Key != nil {
		return i.Key(hash)
	}
	return "idem:" + hash
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return 24 * time.Hour
	}
	return i.TTL
}

// Middleware enforces idempotency semantics for write endpoints. Requests
// without the header, or servers without Redis, pass through untouched. A
// store failure lets the request through. The key is released when the
// handler answers with an error status, so the client can retry with it.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := i.storageKey(r, header)
		ok, err := i.R.SetNX(r.Context(), key, "locked", i.ttl()).Result()
		if err != nil {
			i.fail(err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}

		recorder := obs.NewStatusRecorder(w)
		next.ServeHTTP(recorder, r)
		if recorder.Status() >= http.StatusBadRequest {
			if err := i.R.Del(context.WithoutCancel(r.Context()), key).Err(); err != nil {
				i.fail(err)
			}
		}
	})
}

func (i Idem) fail(err error) {
	if i.OnError != nil {
		i.OnError(err)
	}
}
