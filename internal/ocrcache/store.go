package ocrcache

import "context"

// Store is the optional durable tier under the memory cache. Implementations
// are plain byte stores; the cache owns serialization. Any error is treated
// as a degradation, never a pipeline failure.
type Store interface {
	Get(ctx context.Context, fingerprint string) ([]byte, bool, error)
	Put(ctx context.Context, fingerprint string, data []byte) error
	Delete(ctx context.Context, fingerprint string) error
	// PurgeAll drops every cached entry and returns how many were removed.
	PurgeAll(ctx context.Context) (int, error)
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
