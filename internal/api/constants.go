package api //nolint:revive // package name is intentional

const (
	// DefaultMaxBodySize bounds the chat request body. Attachments travel
	// inline as base64, so the limit is generous.
	DefaultMaxBodySize = 32 << 20
)
