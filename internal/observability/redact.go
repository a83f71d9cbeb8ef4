package observability

import (
	"regexp"
	"strings"
)

// Redactor scrubs credential material from strings before they are logged
// or stored in quota records.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor returns a redactor with the provider key formats we handle.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.AddPattern(`sk-ant-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_ANTHROPIC_KEY]")
	r.AddPattern(`sk-proj-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_OPENAI_PROJECT_KEY]")
	r.AddPattern(`sk-[a-zA-Z0-9]{20,}`, "[REDACTED_KEY]")
	r.AddPattern(`AIza[a-zA-Z0-9\-_]{35}`, "[REDACTED_GOOGLE_KEY]")
	r.AddPattern(`gsk_[a-zA-Z0-9]{20,}`, "[REDACTED_GROQ_KEY]")
	r.AddPattern(`hf_[a-zA-Z0-9]{20,}`, "[REDACTED_HF_KEY]")
	r.AddPattern(`r8_[a-zA-Z0-9]{20,}`, "[REDACTED_REPLICATE_KEY]")
	r.AddPattern(`Bearer\s+[a-zA-Z0-9\-_\.]+`, "Bearer [REDACTED]")
	r.AddPattern(`Token\s+[a-zA-Z0-9\-_\.]{16,}`, "Token [REDACTED]")
	r.AddPattern(`([?&](?:key|access_token)=)[^&\s"]+`, "${1}[REDACTED]")
	return r
}

// AddPattern appends a pattern. Invalid expressions are ignored.
func (r *Redactor) AddPattern(pattern, replacement string) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	r.patterns = append(r.patterns, redactPattern{regex: re, replacement: replacement})
}

// Redact applies every pattern to input.
func (r *Redactor) Redact(input string) string {
	for _, p := range r.patterns {
		input = p.regex.ReplaceAllString(input, p.replacement)
	}
	return input
}

// RedactHeaders masks authentication headers.
func (r *Redactor) RedactHeaders(headers map[string][]string) map[string][]string {
	out := make(map[string][]string, len(headers))
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "authorization", "x-api-key", "api-key", "x-goog-api-key", "cookie":
			out[k] = []string{"[REDACTED]"}
		default:
			out[k] = v
		}
	}
	return out
}

// MaskCredential keeps the first and last four characters of a credential.
func MaskCredential(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}
