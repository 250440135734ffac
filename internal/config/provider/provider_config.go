package provider

const (
	ProviderCustom     = "custom"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderDeepSeek   = "deepseek"
	ProviderGemini     = "gemini"
	ProviderMoonshot   = "moonshot"
	ProviderGroq       = "groq"
	ProviderVLLM       = "vllm"
)

// ProviderConfig holds credentials for one LLM provider.
type ProviderConfig struct {
	APIKey       string            `mapstructure:"apiKey" yaml:"apiKey"`
	APIBase      string            `mapstructure:"apiBase" yaml:"apiBase,omitempty"`
	ExtraHeaders map[string]string `mapstructure:"extraHeaders" yaml:"extraHeaders,omitempty"`
}

// ProvidersConfig holds credentials for all supported LLM providers.
type ProvidersConfig struct {
	Custom     ProviderConfig `mapstructure:"custom" yaml:"custom"`
	OpenRouter ProviderConfig `mapstructure:"openrouter" yaml:"openrouter"`
	Anthropic  ProviderConfig `mapstructure:"anthropic" yaml:"anthropic"`
	OpenAI     ProviderConfig `mapstructure:"openai" yaml:"openai"`
	DeepSeek   ProviderConfig `mapstructure:"deepseek" yaml:"deepseek"`
	Gemini     ProviderConfig `mapstructure:"gemini" yaml:"gemini"`
	Moonshot   ProviderConfig `mapstructure:"moonshot" yaml:"moonshot"`
	Groq       ProviderConfig `mapstructure:"groq" yaml:"groq"`
	VLLM       ProviderConfig `mapstructure:"vllm" yaml:"vllm"`
}

func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{}
}

// ByName returns a pointer to the ProviderConfig field matching the given
// registry name. Returns nil if the name is unknown.
func (p *ProvidersConfig) ByName(name string) *ProviderConfig {
	switch name {
	case ProviderCustom:
		return &p.Custom
	case ProviderOpenRouter:
		return &p.OpenRouter
	case ProviderAnthropic:
		return &p.Anthropic
	case ProviderOpenAI:
		return &p.OpenAI
	case ProviderDeepSeek:
		return &p.DeepSeek
	case ProviderGemini:
		return &p.Gemini
	case ProviderMoonshot:
		return &p.Moonshot
	case ProviderGroq:
		return &p.Groq
	case ProviderVLLM:
		return &p.VLLM
	}
	return nil
}
