package quota

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Store is the durable key/value backend for quota records. Get returns
// (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// recordTTL keeps a day key around long enough to outlive its own day in any
// timezone.
const recordTTL = 48 * time.Hour

// MemoryStore keeps records in process memory. Records expire after two days
// so stale day keys do not accumulate.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.New(recordTTL, time.Hour)}
}

// Get returns a copy of the stored value.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, nil
	}
	b, _ := v.([]byte)
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Put stores a copy of value.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	b := make([]byte, len(value))
	copy(b, value)
	m.cache.SetDefault(key, b)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
