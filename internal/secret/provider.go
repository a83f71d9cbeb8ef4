// Package secret resolves credential references from pluggable backends.
// References take the form "<scheme>://<path>"; a value without a scheme is
// treated as the literal secret.
package secret

import "context"

// Provider is a secret backend for a single scheme.
type Provider interface {
	// Get returns the secret stored at path. The scheme prefix has already
	// been stripped, e.g. "OPENAI_API_KEYS" or "secret/data/llm#openai".
	Get(ctx context.Context, path string) (string, error)

	// Close releases backend resources.
	Close() error
}
