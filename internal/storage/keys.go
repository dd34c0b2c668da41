package storage

import "strings"

const defaultPrefix = "toko"

// Keys builds namespaced storage keys for client state.
type Keys struct {
	Prefix string
}

func (k Keys) prefix() string {
	p := strings.Trim(strings.TrimSpace(k.Prefix), ":")
	if p == "" {
		return defaultPrefix
	}
	return p
}

// Cart returns the key holding the cart snapshot of a session.
func (k Keys) Cart(session string) string {
	return k.prefix() + ":cart:" + session
}

// Currency returns the key holding the selected currency of a session.
func (k Keys) Currency(session string) string {
	return k.prefix() + ":currency:" + session
}

// TaxSettings returns the shared key caching the tax configuration.
func (k Keys) TaxSettings() string {
	return k.prefix() + ":tax:settings"
}

// Idempotency returns the key guarding a replayed write request.
func (k Keys) Idempotency(hash string) string {
	return k.prefix() + ":idem:" + hash
}

// RateLimit returns the prefix under which request counters are kept.
func (k Keys) RateLimit() string {
	return k.prefix() + ":ratelimit"
}
