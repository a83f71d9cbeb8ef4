package provider

import "strings"

// Dialect identifies the request/response shape a provider speaks.
type Dialect string

const (
	// DialectChat is the OpenAI-compatible chat completions API.
	DialectChat Dialect = "chat"
	// DialectMessages is the Anthropic messages API.
	DialectMessages Dialect = "messages"
	// DialectContents is the Gemini generateContent API.
	DialectContents Dialect = "contents"
	// DialectOAuth is the Baidu ERNIE API behind a client-credentials exchange.
	DialectOAuth Dialect = "oauth"
	// DialectDashScope is the Alibaba DashScope text-generation API.
	DialectDashScope Dialect = "dashscope"
	// DialectCohere is the Cohere v1 chat API.
	DialectCohere Dialect = "cohere"
	// DialectPrediction is the Replicate predictions API.
	DialectPrediction Dialect = "prediction"
	// DialectTextGeneration is the Hugging Face inference API.
	DialectTextGeneration Dialect = "text-generation"
)

// Category groups providers for display.
type Category string

const (
	CategoryInternational Category = "international"
	CategoryDomestic      Category = "domestic"
)

// DefaultMaxTokens is the completion budget sent when a descriptor sets none.
const DefaultMaxTokens = 100000

// DefaultTemperature is the sampling temperature sent to every provider.
const DefaultTemperature = 0.7

// Descriptor is the static description of one provider.
type Descriptor struct {
	ID          string   `json:"id" yaml:"id"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Icon        string   `json:"icon,omitempty" yaml:"icon"`
	Description string   `json:"description,omitempty" yaml:"description"`
	BaseURL     string   `json:"base_url" yaml:"base_url"`
	Model       string   `json:"model" yaml:"model"`
	Dialect     Dialect  `json:"dialect" yaml:"dialect"`
	Category    Category `json:"category" yaml:"category"`

	// DailyLimit is nil for unmetered providers.
	DailyLimit *int `json:"daily_limit,omitempty" yaml:"daily_limit"`

	// CredentialEnv lists the environment variables read at startup, in order.
	CredentialEnv []string `json:"-" yaml:"-"`

	// TokenURL is the token endpoint of the oauth dialect.
	TokenURL string `json:"-" yaml:"token_url"`

	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens"`
}

// Endpoint joins the base URL and path.
func (d Descriptor) Endpoint(path string) string {
	return strings.TrimSuffix(d.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// MaxTokensOrDefault returns MaxTokens, or DefaultMaxTokens when unset.
func (d Descriptor) MaxTokensOrDefault() int {
	if d.MaxTokens > 0 {
		return d.MaxTokens
	}
	return DefaultMaxTokens
}

// Metered reports whether the provider has a daily limit.
func (d Descriptor) Metered() bool {
	return d.DailyLimit != nil
}
