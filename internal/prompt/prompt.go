// Package prompt renders the canonical chat request into the text blocks the
// provider dialects send: a system prompt, a chat-style user message and a
// single-blob transcript for dialects without role arrays.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/blueberrycongee/chatrelay/pkg/types"
)

const (
	// DefaultExcerpt bounds attachment and URL text in chat-style content.
	DefaultExcerpt = 1000

	// DefaultDetailedExcerpt bounds URL text in detailed content.
	DefaultDetailedExcerpt = 1500

	// DefaultHistoryLimit is the number of prior turns sent upstream.
	DefaultHistoryLimit = 10

	defaultAssistantName = "ChatAI"
)

// DefaultLocation is the clock shown in the system prompt unless configured.
var DefaultLocation = time.FixedZone("UTC+8", 8*60*60)

// Builder renders prompts. It is safe for concurrent use.
type Builder struct {
	name            string
	loc             *time.Location
	now             func() time.Time
	excerpt         int
	detailedExcerpt int
}

// Option configures a Builder.
type Option func(*Builder)

// WithLocation sets the timezone of the date line in the system prompt.
func WithLocation(loc *time.Location) Option {
	return func(b *Builder) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithExcerpt sets the per-item excerpt length for chat-style content.
func WithExcerpt(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.excerpt = n
		}
	}
}

// WithAssistantName sets the name the system prompt introduces.
func WithAssistantName(name string) Option {
	return func(b *Builder) {
		if name != "" {
			b.name = name
		}
	}
}

// NewBuilder creates a builder with defaults.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		name:            defaultAssistantName,
		loc:             DefaultLocation,
		now:             time.Now,
		excerpt:         DefaultExcerpt,
		detailedExcerpt: DefaultDetailedExcerpt,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SystemPrompt returns the assistant instructions with the current date.
func (b *Builder) SystemPrompt() string {
	now := b.now().In(b.loc)
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a helpful assistant.\n\n", b.name)
	sb.WriteString("Current time:\n")
	fmt.Fprintf(&sb, "- Today is %s\n", now.Format("Monday, January 2, 2006"))
	fmt.Fprintf(&sb, "- Local time is %s (%s)\n\n", now.Format("15:04"), b.loc.String())
	sb.WriteString("Guidelines:\n")
	sb.WriteString("1. Be friendly, professional and precise.\n")
	sb.WriteString("2. Use the conversation so far as context.\n")
	sb.WriteString("3. When file or web page content is provided, base the answer on it.\n")
	sb.WriteString("4. Use the time above for any date or time question.\n")
	sb.WriteString("5. Answer in the language the user writes in.")
	return sb.String()
}

// UserContent renders the current message with attachment and URL excerpts.
func (b *Builder) UserContent(req *types.ChatRequest) string {
	var sb strings.Builder
	sb.WriteString(req.Message)

	if len(req.Attachments) > 0 {
		sb.WriteString("\n\nAttachments:\n")
		for _, a := range req.Attachments {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", a.Name, attachmentType(a), Truncate(attachmentText(a), b.excerpt))
		}
	}

	if len(req.URLs) > 0 {
		sb.WriteString("\n\nWeb pages:\n")
		for _, u := range req.URLs {
			fmt.Fprintf(&sb, "- %s: %s\n%s\n", u.Title, u.Description, Truncate(u.Content, b.excerpt))
		}
	}
	return sb.String()
}

// DetailedUserContent is UserContent with fuller per-page URL sections,
// placed before the attachments.
func (b *Builder) DetailedUserContent(req *types.ChatRequest) string {
	var sb strings.Builder
	sb.WriteString(req.Message)

	if len(req.URLs) > 0 {
		sb.WriteString("\n\nWeb page analysis:\n")
		for _, u := range req.URLs {
			fmt.Fprintf(&sb, "\nURL: %s\nTitle: %s\n", u.URL, u.Title)
			if u.Description != "" {
				fmt.Fprintf(&sb, "Description: %s\n", u.Description)
			}
			if u.Content != "" {
				fmt.Fprintf(&sb, "Summary: %s\n", Truncate(u.Content, b.detailedExcerpt))
			}
			sb.WriteString("---\n")
		}
	}

	if len(req.Attachments) > 0 {
		sb.WriteString("\n\nAttachments:\n")
		for _, a := range req.Attachments {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", a.Name, attachmentType(a), Truncate(attachmentText(a), b.excerpt))
		}
	}
	return sb.String()
}

// Transcript renders system prompt, history and the current message as one
// text blob for dialects that take a single message.
func (b *Builder) Transcript(req *types.ChatRequest, detailed bool) string {
	var sb strings.Builder
	sb.WriteString(b.SystemPrompt())
	sb.WriteString("\n\n")

	if len(req.History) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, t := range req.History {
			label := "User"
			if t.NormalizedRole() == types.RoleAssistant {
				label = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s\n", label, t.Content)
		}
		sb.WriteString("\n")
	}

	content := b.UserContent(req)
	if detailed {
		content = b.DetailedUserContent(req)
	}
	sb.WriteString("Current user message: ")
	sb.WriteString(content)
	return sb.String()
}

// Prompt renders system prompt and current message without history, for
// completion-style dialects.
func (b *Builder) Prompt(req *types.ChatRequest) string {
	return b.SystemPrompt() + "\n\n" + b.UserContent(req)
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func attachmentType(a types.Attachment) string {
	if a.MimeType != "" {
		return a.MimeType
	}
	if a.Kind != "" {
		return a.Kind
	}
	return "file"
}

func attachmentText(a types.Attachment) string {
	if a.Text != "" {
		return a.Text
	}
	if a.IsImage() {
		return "[image attached]"
	}
	return ""
}
