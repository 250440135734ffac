package channel

// SlackDMConfig controls direct-message behaviour in Slack.
type SlackDMConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Policy    string   `mapstructure:"policy" yaml:"policy"` // "open" or "allowlist"
	AllowFrom []string `mapstructure:"allowFrom" yaml:"allowFrom"`
}

func DefaultSlackDMConfig() SlackDMConfig {
	return SlackDMConfig{Enabled: true, Policy: "open", AllowFrom: []string{}}
}

// SlackConfig configures the Slack channel (Socket Mode).
type SlackConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	BotToken       string        `mapstructure:"botToken" yaml:"botToken"`
	AppToken       string        `mapstructure:"appToken" yaml:"appToken"`
	ReplyInThread  bool          `mapstructure:"replyInThread" yaml:"replyInThread"`
	ReactEmoji     string        `mapstructure:"reactEmoji" yaml:"reactEmoji"`
	GroupPolicy    string        `mapstructure:"groupPolicy" yaml:"groupPolicy"`
	GroupAllowFrom []string      `mapstructure:"groupAllowFrom" yaml:"groupAllowFrom"`
	DM             SlackDMConfig `mapstructure:"dm" yaml:"dm"`
}

func DefaultSlackConfig() SlackConfig {
	return SlackConfig{
		ReplyInThread:  true,
		ReactEmoji:     "eyes",
		GroupPolicy:    "mention",
		GroupAllowFrom: []string{},
		DM:             DefaultSlackDMConfig(),
	}
}
