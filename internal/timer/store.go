package timer

import "context"

// Store is the key/value contract used for both the timer snapshot and the
// per-owner configuration overrides.
type Store interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

func snapshotKey(owner string) string { return "timer:snapshot:" + owner }

func configKey(owner string) string { return "timer:config:" + owner }
