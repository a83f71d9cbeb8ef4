// Package env resolves secrets from process environment variables.
package env

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrNotSet is returned when the variable is absent.
var ErrNotSet = errors.New("environment variable not set")

// Provider reads "env://NAME" references.
type Provider struct {
	lookup func(string) (string, bool)
}

// New creates a provider backed by os.LookupEnv.
func New() *Provider {
	return &Provider{lookup: os.LookupEnv}
}

// Get returns the value of the variable name.
func (p *Provider) Get(_ context.Context, name string) (string, error) {
	val, ok := p.lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotSet, name)
	}
	return val, nil
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }
