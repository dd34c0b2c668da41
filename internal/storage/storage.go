package storage

import "context"

// Store is the durable key/value persistence used for client state such as the
// cart snapshot and the selected currency. Values are encoded as JSON.
type Store interface {
	// Load decodes the value stored under key into dst. It reports whether the key existed.
	Load(ctx context.Context, key string, dst any) (bool, error)
	// Save encodes v and stores it under key.
	Save(ctx context.Context, key string, v any) error
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}
