// Package credential manages the rotating pools of API credentials held for
// each provider. A credential that fails with a key-related error is
// quarantined until every credential of its provider has failed, at which
// point the pool heals itself and starts over.
package credential

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"

	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
)

var keySeparators = regexp.MustCompile(`[,;\n]`)

// ParseKeys splits a raw credential value on commas, semicolons and
// newlines, trimming whitespace and dropping empty entries.
func ParseKeys(raw string) []string {
	parts := keySeparators.Split(raw, -1)
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := strings.TrimSpace(p); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Lease is a credential handed out by Acquire. Index identifies it for
// MarkFailed.
type Lease struct {
	Provider   string
	Credential string
	Index      int
}

// Stats summarizes one provider's pool without exposing credentials.
type Stats struct {
	Provider    string `json:"provider"`
	Total       int    `json:"total"`
	Quarantined int    `json:"quarantined"`
	Cursor      int    `json:"cursor"`
}

type entry struct {
	mu          sync.Mutex
	credentials []string
	cursor      int
	quarantined map[int]struct{}
}

// Pool holds one rotating credential list per provider. Each provider is
// guarded by its own mutex so contention stays per provider.
type Pool struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger

	onQuarantine func(provider string)
	onHeal       func(provider string)
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHooks registers callbacks fired after a quarantine and after a
// self-heal. Hooks run without the pool lock held.
func WithHooks(onQuarantine, onHeal func(provider string)) Option {
	return func(p *Pool) {
		p.onQuarantine = onQuarantine
		p.onHeal = onHeal
	}
}

// NewPool creates an empty pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		entries: make(map[string]*entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configure replaces the credential list of a provider and clears its
// quarantine and cursor. Configuring the list already held is a no-op, so
// reloads do not forget quarantines.
func (p *Pool) Configure(provider string, credentials []string) {
	creds := make([]string, len(credentials))
	copy(creds, credentials)

	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.entries[provider]; ok {
		cur.mu.Lock()
		same := slices.Equal(cur.credentials, creds)
		cur.mu.Unlock()
		if same {
			return
		}
	}
	p.entries[provider] = &entry{
		credentials: creds,
		quarantined: make(map[int]struct{}),
	}
}

func (p *Pool) entry(provider string) *entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[provider]
}

// Acquire returns the next non-quarantined credential of provider. When
// every credential is quarantined the quarantine is cleared and the cursor
// reset before scanning.
func (p *Pool) Acquire(provider string) (Lease, error) {
	e := p.entry(provider)
	if e == nil {
		return Lease{}, llmerrors.NewConfigurationError(provider,
			fmt.Sprintf("No API keys configured for %s", provider))
	}

	e.mu.Lock()
	n := len(e.credentials)
	if n == 0 {
		e.mu.Unlock()
		return Lease{}, llmerrors.NewConfigurationError(provider,
			fmt.Sprintf("No API keys configured for %s", provider))
	}

	healed := false
	if len(e.quarantined) >= n {
		e.quarantined = make(map[int]struct{})
		e.cursor = 0
		healed = true
	}

	for i := 0; i < n; i++ {
		idx := (e.cursor + i) % n
		if _, bad := e.quarantined[idx]; bad {
			continue
		}
		e.cursor = idx
		lease := Lease{Provider: provider, Credential: e.credentials[idx], Index: idx}
		e.mu.Unlock()
		if healed {
			p.logger.Warn("all credentials were quarantined, pool reset", "provider", provider)
			if p.onHeal != nil {
				p.onHeal(provider)
			}
		}
		return lease, nil
	}
	e.mu.Unlock()

	// Unreachable with a non-empty list after self-heal.
	return Lease{}, llmerrors.NewConfigurationError(provider,
		fmt.Sprintf("No available API keys for %s", provider))
}

// MarkFailed quarantines the credential at index and advances the cursor past
// it. Marking an already quarantined credential is a no-op apart from the
// cursor move; unknown providers and out-of-range indexes are ignored.
func (p *Pool) MarkFailed(provider string, index int, reason string) {
	e := p.entry(provider)
	if e == nil {
		return
	}

	e.mu.Lock()
	n := len(e.credentials)
	if index < 0 || index >= n {
		e.mu.Unlock()
		return
	}
	_, already := e.quarantined[index]
	e.quarantined[index] = struct{}{}
	e.cursor = (index + 1) % n
	quarantined := len(e.quarantined)
	e.mu.Unlock()

	if already {
		return
	}
	p.logger.Warn("credential quarantined",
		"provider", provider,
		"index", index,
		"quarantined", quarantined,
		"total", n,
		"reason", reason,
	)
	if p.onQuarantine != nil {
		p.onQuarantine(provider)
	}
}

// ResetProvider clears the quarantine and cursor of provider.
func (p *Pool) ResetProvider(provider string) {
	e := p.entry(provider)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.quarantined = make(map[int]struct{})
	e.cursor = 0
	e.mu.Unlock()
	p.logger.Info("credential pool reset", "provider", provider)
}

// HasCredentials reports whether provider has at least one credential.
func (p *Pool) HasCredentials(provider string) bool {
	e := p.entry(provider)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.credentials) > 0
}

// FullyQuarantined reports whether every credential of provider is
// quarantined. A provider without credentials is not fully quarantined.
func (p *Pool) FullyQuarantined(provider string) bool {
	e := p.entry(provider)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.credentials) > 0 && len(e.quarantined) >= len(e.credentials)
}

// Stats returns the pool state of provider.
func (p *Pool) Stats(provider string) Stats {
	s := Stats{Provider: provider}
	e := p.entry(provider)
	if e == nil {
		return s
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s.Total = len(e.credentials)
	s.Quarantined = len(e.quarantined)
	s.Cursor = e.cursor
	return s
}

// Providers returns the ids of all configured providers, sorted.
func (p *Pool) Providers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
