package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "TOOLSMITH"

// ConfigPath returns the default configuration file path: ~/.toolsmith/config.yaml.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// DataDir returns the toolsmith data directory: ~/.toolsmith.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".toolsmith"
	}
	return filepath.Join(home, ".toolsmith")
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("agent.model", def.Agent.Model)
	v.SetDefault("agent.temperature", def.Agent.Temperature)
	v.SetDefault("agent.maxTokens", def.Agent.MaxTokens)
	v.SetDefault("agent.historyLimit", def.Agent.HistoryLimit)
	v.SetDefault("agent.persona", def.Agent.Persona)
	v.SetDefault("agent.integrateResults", def.Agent.IntegrateResults)
	v.SetDefault("agent.synthesis.enabled", def.Agent.Synthesis.Enabled)
	v.SetDefault("agent.synthesis.temperature", def.Agent.Synthesis.Temperature)

	for _, name := range []string{"custom", "openrouter", "anthropic", "openai", "deepseek", "gemini", "moonshot", "groq", "vllm"} {
		v.SetDefault("providers."+name+".apiKey", "")
		v.SetDefault("providers."+name+".apiBase", "")
	}

	v.SetDefault("tools.dynamicDir", def.Tools.DynamicDir)
	v.SetDefault("tools.ledgerPath", def.Tools.LedgerPath)
	v.SetDefault("tools.timeoutSeconds", def.Tools.TimeoutSeconds)
	v.SetDefault("tools.maxOutputBytes", def.Tools.MaxOutputBytes)
	v.SetDefault("tools.maxConcurrent", def.Tools.MaxConcurrent)
	v.SetDefault("tools.runtimes", def.Tools.Runtimes)
	v.SetDefault("tools.watch", def.Tools.Watch)
	v.SetDefault("tools.janitor.schedule", def.Tools.Janitor.Schedule)
	v.SetDefault("tools.janitor.stagingTTLMinutes", def.Tools.Janitor.StagingTTLMinutes)
	v.SetDefault("tools.web.maxChars", def.Tools.Web.MaxChars)

	v.SetDefault("channels.telegram.enabled", def.Channels.Telegram.Enabled)
	v.SetDefault("channels.telegram.token", def.Channels.Telegram.Token)
	v.SetDefault("channels.telegram.allowFrom", def.Channels.Telegram.AllowFrom)
	v.SetDefault("channels.telegram.replyToMessage", def.Channels.Telegram.ReplyToMessage)
	v.SetDefault("channels.slack.enabled", def.Channels.Slack.Enabled)
	v.SetDefault("channels.slack.botToken", def.Channels.Slack.BotToken)
	v.SetDefault("channels.slack.appToken", def.Channels.Slack.AppToken)
	v.SetDefault("channels.slack.replyInThread", def.Channels.Slack.ReplyInThread)
	v.SetDefault("channels.slack.reactEmoji", def.Channels.Slack.ReactEmoji)
	v.SetDefault("channels.slack.groupPolicy", def.Channels.Slack.GroupPolicy)
	v.SetDefault("channels.slack.groupAllowFrom", def.Channels.Slack.GroupAllowFrom)
	v.SetDefault("channels.slack.dm.enabled", def.Channels.Slack.DM.Enabled)
	v.SetDefault("channels.slack.dm.policy", def.Channels.Slack.DM.Policy)
	v.SetDefault("channels.slack.dm.allowFrom", def.Channels.Slack.DM.AllowFrom)

	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.file", def.Log.File)

	v.SetDefault("historyDir", def.HistoryDir)
}

// Load reads and parses the config file at path.
// If path is empty, ConfigPath() is used. A missing file yields the defaults
// plus any TOOLSMITH_* environment overrides. On parse failure it prints a
// warning and returns DefaultConfig().
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	v := newViper()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse config %s: %v\n", path, err)
			fmt.Fprintln(os.Stderr, "Using default configuration.")
			cfg := DefaultConfig()
			return &cfg, nil
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML.
// If path is empty, ConfigPath() is used.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
