// Package cache holds the device-local key-value stores that mirror the current
// session of one device, and the Mirror that reads and writes that pair.
package cache

import "context"

// Store is a key-value surface scoped to a single device. It is never shared across
// devices. Get reports ok=false for an absent key.
type Store interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Remove(ctx context.Context, key string) error
}
