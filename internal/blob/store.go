// Package blob resolves attachment references to their binary content.
// Attachments arrive with a storage reference instead of inline bytes; the
// dispatcher resolves them through a Store before adapters run.
package blob

import (
	"context"
	"errors"
	"sync"
)

// MaxObjectBytes caps objects read into memory.
const MaxObjectBytes int64 = 20 * 1024 * 1024

var (
	// ErrNotFound is returned when no object exists for a reference.
	ErrNotFound = errors.New("blob: object not found")

	// ErrTooLarge is returned when an object exceeds MaxObjectBytes.
	ErrTooLarge = errors.New("blob: object too large")
)

// Store reads binary objects by reference.
type Store interface {
	Get(ctx context.Context, ref string) ([]byte, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores a copy of data under ref.
func (m *MemoryStore) Put(ref string, data []byte) {
	m.mu.Lock()
	m.objects[ref] = append([]byte(nil), data...)
	m.mu.Unlock()
}

// Get returns a copy of the object under ref.
func (m *MemoryStore) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.objects[ref]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if int64(len(data)) > MaxObjectBytes {
		return nil, ErrTooLarge
	}
	return append([]byte(nil), data...), nil
}
