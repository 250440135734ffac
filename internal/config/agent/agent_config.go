package agent

// SynthesisConfig controls dynamic tool synthesis.
type SynthesisConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
}

type AgentConfig struct {
	Model            string          `mapstructure:"model" yaml:"model"`
	Temperature      float64         `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens        int             `mapstructure:"maxTokens" yaml:"maxTokens"`
	HistoryLimit     int             `mapstructure:"historyLimit" yaml:"historyLimit"`
	Persona          string          `mapstructure:"persona" yaml:"persona"`
	IntegrateResults bool            `mapstructure:"integrateResults" yaml:"integrateResults"`
	Synthesis        SynthesisConfig `mapstructure:"synthesis" yaml:"synthesis"`
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model:            "deepseek/deepseek-chat",
		Temperature:      0.7,
		MaxTokens:        4096,
		HistoryLimit:     10,
		IntegrateResults: true,
		Synthesis: SynthesisConfig{
			Enabled:     true,
			Temperature: 0.2,
		},
	}
}
