// Package types defines the canonical request and result structures exchanged
// between callers and the dispatch engine. Adapters translate these into each
// provider's wire dialect.
package types //nolint:revive // package name is intentional

import (
	"errors"
	"fmt"
	"strings"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Attachment kinds.
const (
	KindDocument = "document"
	KindImage    = "image"
)

// ChatRequest is the canonical chat request handed to every provider adapter.
type ChatRequest struct {
	// Message is the current user message.
	Message string `json:"message"`

	// History is the recent transcript, oldest first.
	History []Turn `json:"history,omitempty"`

	// Attachments carry pre-extracted text and optionally binary payloads.
	Attachments []Attachment `json:"attachments,omitempty"`

	// URLs are summaries of pages referenced by the user.
	URLs []URLSummary `json:"urls,omitempty"`
}

// Turn is one prior message of the conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NormalizedRole maps any non-user role onto the assistant role.
func (t Turn) NormalizedRole() string {
	if strings.EqualFold(t.Role, RoleUser) {
		return RoleUser
	}
	return RoleAssistant
}

// Attachment is a file the user attached to the message.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Kind     string `json:"kind,omitempty"`

	// Text is the extracted textual content, if any.
	Text string `json:"text,omitempty"`

	// Data is the raw binary payload. Only binary-capable dialects use it.
	Data []byte `json:"data,omitempty"`

	// Ref points into the blob store when Data is not inlined.
	Ref string `json:"ref,omitempty"`

	Size int64 `json:"size,omitempty"`
}

// IsImage reports whether the attachment is an image.
func (a Attachment) IsImage() bool {
	if a.Kind == KindImage {
		return true
	}
	return strings.HasPrefix(a.MimeType, "image/")
}

// URLSummary is the extracted content of a referenced web page.
type URLSummary struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Validate checks the request for structural problems.
func (r *ChatRequest) Validate() error {
	if r == nil {
		return errors.New("request is nil")
	}
	if strings.TrimSpace(r.Message) == "" && len(r.Attachments) == 0 {
		return errors.New("message is required")
	}
	for i, a := range r.Attachments {
		if a.Name == "" {
			return fmt.Errorf("attachments[%d]: name is required", i)
		}
	}
	return nil
}

// RecentHistory returns at most the last n turns.
func (r *ChatRequest) RecentHistory(n int) []Turn {
	if n <= 0 || len(r.History) <= n {
		return r.History
	}
	return r.History[len(r.History)-n:]
}

// Images returns the image attachments that carry binary data.
func (r *ChatRequest) Images() []Attachment {
	var out []Attachment
	for _, a := range r.Attachments {
		if a.IsImage() && len(a.Data) > 0 {
			out = append(out, a)
		}
	}
	return out
}
