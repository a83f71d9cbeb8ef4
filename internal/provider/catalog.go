package provider

import "github.com/blueberrycongee/chatrelay/internal/credential"

func limit(n int) *int { return &n }

// DefaultCatalog returns the built-in provider descriptors in dispatch
// priority order. Callers may modify the returned slice.
func DefaultCatalog() []Descriptor {
	catalog := []Descriptor{
		{
			ID: "gemini", DisplayName: "Google Gemini", Icon: "🔮",
			Description: "Multimodal with a generous free tier",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta", Model: "gemini-2.5-pro",
			Dialect: DialectContents, Category: CategoryInternational, DailyLimit: limit(1500),
		},
		{
			ID: "qwen", DisplayName: "Tongyi Qianwen", Icon: "🇨🇳",
			Description: "Strong Chinese language ability",
			BaseURL:     "https://dashscope.aliyuncs.com/api/v1", Model: "qwen-max-2025-01-25",
			Dialect: DialectDashScope, Category: CategoryDomestic, DailyLimit: limit(500),
		},
		{
			ID: "zhipu", DisplayName: "Zhipu AI", Icon: "🇨🇳",
			Description: "Good reasoning",
			BaseURL:     "https://open.bigmodel.cn/api/paas/v4", Model: "glm-4.5-air",
			Dialect: DialectChat, Category: CategoryDomestic, DailyLimit: limit(200),
		},
		{
			ID: "deepseek", DisplayName: "DeepSeek", Icon: "🇨🇳",
			Description: "Strong at code",
			BaseURL:     "https://api.deepseek.com/v1", Model: "deepseek-v3",
			Dialect: DialectChat, Category: CategoryDomestic, DailyLimit: limit(300),
		},
		{
			ID: "moonshot", DisplayName: "Moonshot AI", Icon: "🇨🇳",
			Description: "Long context",
			BaseURL:     "https://api.moonshot.cn/v1", Model: "kimi-k2-preview",
			Dialect: DialectChat, Category: CategoryDomestic,
		},
		{
			ID: "baidu", DisplayName: "ERNIE Bot", Icon: "🇨🇳",
			Description: "Stable and reliable",
			BaseURL:     "https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop/chat", Model: "ernie-4.0-turbo-8k",
			Dialect: DialectOAuth, Category: CategoryDomestic,
			TokenURL: "https://aip.baidubce.com/oauth/2.0/token",
		},
		{
			ID: "minimax", DisplayName: "MiniMax", Icon: "🇨🇳",
			Description: "Multimodal",
			BaseURL:     "https://api.minimax.chat/v1", Model: "MiniMax-Text-01",
			Dialect: DialectChat, Category: CategoryDomestic,
		},
		{
			ID: "anthropic", DisplayName: "Anthropic Claude", Icon: "🧠",
			Description: "Careful reasoning",
			BaseURL:     "https://api.anthropic.com/v1", Model: "claude-opus-4.1",
			Dialect: DialectMessages, Category: CategoryInternational,
		},
		{
			ID: "openai", DisplayName: "OpenAI GPT", Icon: "🚀",
			Description: "Strongest general ability",
			BaseURL:     "https://api.openai.com/v1", Model: "gpt-4.1-2025-04-14",
			Dialect: DialectChat, Category: CategoryInternational,
		},
		{
			ID: "groq", DisplayName: "Groq", Icon: "⚡",
			Description: "Very fast inference",
			BaseURL:     "https://api.groq.com/openai/v1", Model: "llama-4-maverick",
			Dialect: DialectChat, Category: CategoryInternational, DailyLimit: limit(1000),
		},
		{
			ID: "mistral", DisplayName: "Mistral AI", Icon: "🇫🇷",
			Description: "European open models",
			BaseURL:     "https://api.mistral.ai/v1", Model: "codestral-2501",
			Dialect: DialectChat, Category: CategoryInternational,
		},
		{
			ID: "cohere", DisplayName: "Cohere", Icon: "🔗",
			Description: "Enterprise AI",
			BaseURL:     "https://api.cohere.ai/v1", Model: "command-a",
			Dialect: DialectCohere, Category: CategoryInternational,
		},
		{
			ID: "perplexity", DisplayName: "Perplexity", Icon: "🔍",
			Description: "Search augmented",
			BaseURL:     "https://api.perplexity.ai", Model: "sonar-pro",
			Dialect: DialectChat, Category: CategoryInternational,
		},
		{
			ID: "together", DisplayName: "Together AI", Icon: "🤝",
			Description: "Open models",
			BaseURL:     "https://api.together.xyz/v1", Model: "meta-llama/llama-4-scout",
			Dialect: DialectChat, Category: CategoryInternational,
		},
		{
			ID: "fireworks", DisplayName: "Fireworks AI", Icon: "🎆",
			Description: "High performance inference",
			BaseURL:     "https://api.fireworks.ai/inference/v1", Model: "accounts/fireworks/models/deepseek-v3",
			Dialect: DialectChat, Category: CategoryInternational,
		},
		{
			ID: "replicate", DisplayName: "Replicate", Icon: "🔄",
			Description: "Hosted community models",
			BaseURL:     "https://api.replicate.com/v1", Model: "meta/llama-4-maverick",
			Dialect: DialectPrediction, Category: CategoryInternational,
		},
		{
			ID: "huggingface", DisplayName: "Hugging Face", Icon: "🤗",
			Description: "Open source community",
			BaseURL:     "https://api-inference.huggingface.co/models", Model: "Qwen/Qwen3-235B-A22B",
			Dialect: DialectTextGeneration, Category: CategoryInternational,
		},
	}
	for i := range catalog {
		catalog[i].CredentialEnv = credential.EnvVarsFor(catalog[i].ID)
	}
	return catalog
}
