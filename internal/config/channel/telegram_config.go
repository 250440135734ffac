package channel

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	Token          string   `mapstructure:"token" yaml:"token"`
	AllowFrom      []string `mapstructure:"allowFrom" yaml:"allowFrom"`
	ReplyToMessage bool     `mapstructure:"replyToMessage" yaml:"replyToMessage"`
}

func DefaultTelegramConfig() TelegramConfig {
	return TelegramConfig{AllowFrom: []string{}}
}
