package secret

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownScheme is returned for references whose scheme has no provider.
var ErrUnknownScheme = errors.New("no secret provider registered for scheme")

const schemeSeparator = "://"

// Manager routes secret references to the provider registered for their
// scheme.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewManager creates a manager with no providers.
func NewManager() *Manager {
	return &Manager{providers: make(map[string]Provider)}
}

// Register binds provider to scheme, replacing any previous binding.
func (m *Manager) Register(scheme string, provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[scheme] = provider
}

// Schemes lists the registered schemes, sorted.
func (m *Manager) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.providers))
	for s := range m.providers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SplitRef splits a reference into scheme and path. ok is false for literal
// values.
func SplitRef(ref string) (scheme, path string, ok bool) {
	scheme, path, ok = strings.Cut(ref, schemeSeparator)
	if !ok || scheme == "" {
		return "", ref, false
	}
	return scheme, path, true
}

// Get resolves ref. Literal values are returned unchanged.
func (m *Manager) Get(ctx context.Context, ref string) (string, error) {
	scheme, path, ok := SplitRef(ref)
	if !ok {
		return ref, nil
	}

	m.mu.RLock()
	provider, found := m.providers[scheme]
	m.mu.RUnlock()
	if !found {
		return "", fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
	return provider.Get(ctx, path)
}

// Close closes every registered provider and joins their errors.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for scheme, p := range m.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", scheme, err))
		}
	}
	return errors.Join(errs...)
}
