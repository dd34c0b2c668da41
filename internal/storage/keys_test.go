package storage

import "testing"

func TestKeysShareDefaultPrefix(t *testing.T) {
	cases := []struct {
		prefix string
		want   string
	}{
		{"", "toko"},
		{"  :shop: ", "shop"},
	}
	for _, tc := range cases {
		k := Keys{Prefix: tc.prefix}
		if got := k.Cart("s1"); got != tc.want+":cart:s1" {
			t.Fatalf("cart key %q", got)
		}
		if got := k.RateLimit(); got != tc.want+":ratelimit" {
			t.Fatalf("rate limit prefix %q", got)
		}
		if got := k.Idempotency("h"); got != tc.want+":idem:h" {
			t.Fatalf("idempotency key %q", got)
		}
	}
}
