package provider

import (
	"fmt"
	"sync"

	"github.com/blueberrycongee/chatrelay/internal/quota"
)

// Availability reasons reported by DescribeAll.
const (
	ReasonConfigured     = "configured"
	ReasonNoCredentials  = "no_credentials"
	ReasonAllQuarantined = "all_credentials_quarantined"
	ReasonAdapterMissing = "adapter_missing"
)

// CredentialView is the runtime credential state the registry filters on.
// *credential.Pool satisfies it.
type CredentialView interface {
	HasCredentials(provider string) bool
	FullyQuarantined(provider string) bool
}

// Status is one catalog entry with its runtime availability.
type Status struct {
	Descriptor
	Available      bool   `json:"available"`
	HasCredentials bool   `json:"has_credentials"`
	Metered        bool   `json:"metered"`
	Reason         string `json:"reason"`
}

// Override replaces catalog fields of one provider. Zero values keep the
// catalog value.
type Override struct {
	BaseURL    string
	Model      string
	DailyLimit *int
	MaxTokens  int
	TokenURL   string
}

// Registry holds the ordered catalog and the adapter of every dialect.
// Availability is computed on each call from the credential view, so it
// changes as credentials are quarantined or reset. Quota is never considered.
type Registry struct {
	creds CredentialView

	mu       sync.RWMutex
	order    []string
	base     map[string]Descriptor
	catalog  map[string]Descriptor
	adapters map[Dialect]Adapter
}

// NewRegistry creates a registry over catalog, kept in the given order.
func NewRegistry(catalog []Descriptor, creds CredentialView) *Registry {
	r := &Registry{
		creds:    creds,
		base:     make(map[string]Descriptor, len(catalog)),
		catalog:  make(map[string]Descriptor, len(catalog)),
		adapters: make(map[Dialect]Adapter),
	}
	for _, d := range catalog {
		if _, dup := r.catalog[d.ID]; !dup {
			r.order = append(r.order, d.ID)
		}
		r.base[d.ID] = d
		r.catalog[d.ID] = d
	}
	return r
}

// RegisterAdapter sets the adapter used for every provider of a dialect.
func (r *Registry) RegisterAdapter(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Dialect()] = a
}

// ApplyOverrides rebuilds every descriptor from the original catalog and
// applies overrides on top, so providers absent from overrides revert to
// their catalog values. Nothing changes if any id is unknown.
func (r *Registry) ApplyOverrides(overrides map[string]Override) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range overrides {
		if _, ok := r.base[id]; !ok {
			return fmt.Errorf("unknown provider: %s", id)
		}
	}
	next := make(map[string]Descriptor, len(r.base))
	for id, d := range r.base {
		if o, ok := overrides[id]; ok {
			d = o.apply(d)
		}
		next[id] = d
	}
	r.catalog = next
	return nil
}

func (o Override) apply(d Descriptor) Descriptor {
	if o.BaseURL != "" {
		d.BaseURL = o.BaseURL
	}
	if o.Model != "" {
		d.Model = o.Model
	}
	if o.DailyLimit != nil {
		if *o.DailyLimit <= 0 {
			d.DailyLimit = nil
		} else {
			v := *o.DailyLimit
			d.DailyLimit = &v
		}
	}
	if o.MaxTokens > 0 {
		d.MaxTokens = o.MaxTokens
	}
	if o.TokenURL != "" {
		d.TokenURL = o.TokenURL
	}
	return d
}

// Lookup returns the descriptor of id.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.catalog[id]
	return d, ok
}

// Adapter returns the adapter of id's dialect.
func (r *Registry) Adapter(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.catalog[id]
	if !ok {
		return nil, false
	}
	a, ok := r.adapters[d.Dialect]
	return a, ok
}

// IDs returns every catalog id in priority order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// AvailableProviders returns, in priority order, the providers that have
// credentials which are not all quarantined and an adapter for their dialect.
func (r *Registry) AvailableProviders() []string {
	var out []string
	for _, s := range r.DescribeAll() {
		if s.Available {
			out = append(out, s.ID)
		}
	}
	return out
}

// IsAvailable reports whether id is currently in AvailableProviders.
func (r *Registry) IsAvailable(id string) bool {
	r.mu.RLock()
	d, ok := r.catalog[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.status(d).Available
}

// Configured returns the providers with at least one credential.
func (r *Registry) Configured() []string {
	var out []string
	for _, id := range r.IDs() {
		if r.creds.HasCredentials(id) {
			out = append(out, id)
		}
	}
	return out
}

// DescribeAll returns the full catalog with runtime availability.
func (r *Registry) DescribeAll() []Status {
	r.mu.RLock()
	descs := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		descs = append(descs, r.catalog[id])
	}
	r.mu.RUnlock()

	out := make([]Status, 0, len(descs))
	for _, d := range descs {
		out = append(out, r.status(d))
	}
	return out
}

// QuotaDefaults implements quota.Catalog.
func (r *Registry) QuotaDefaults(id string) (quota.Defaults, bool) {
	d, ok := r.Lookup(id)
	if !ok {
		return quota.Defaults{}, false
	}
	return quota.Defaults{DailyLimit: d.DailyLimit, DisplayName: d.DisplayName, Icon: d.Icon}, true
}

func (r *Registry) status(d Descriptor) Status {
	s := Status{Descriptor: d, HasCredentials: r.creds.HasCredentials(d.ID), Metered: d.Metered()}
	r.mu.RLock()
	_, hasAdapter := r.adapters[d.Dialect]
	r.mu.RUnlock()

	switch {
	case !s.HasCredentials:
		s.Reason = ReasonNoCredentials
	case r.creds.FullyQuarantined(d.ID):
		s.Reason = ReasonAllQuarantined
	case !hasAdapter:
		s.Reason = ReasonAdapterMissing
	default:
		s.Reason = ReasonConfigured
		s.Available = true
	}
	return s
}

var _ quota.Catalog = (*Registry)(nil)
