// Package config defines the configuration schema for toolsmith.
//
// Keys use camelCase in ~/.toolsmith/config.yaml. Every key can be
// overridden from the environment with the TOOLSMITH_ prefix, dots replaced
// by underscores (TOOLSMITH_AGENT_MODEL, TOOLSMITH_PROVIDERS_OPENAI_APIKEY).
package config

import (
	"github.com/crystaldolphin/toolsmith/internal/config/agent"
	"github.com/crystaldolphin/toolsmith/internal/config/channel"
	"github.com/crystaldolphin/toolsmith/internal/config/provider"
	serverconfig "github.com/crystaldolphin/toolsmith/internal/config/server"
	"github.com/crystaldolphin/toolsmith/internal/config/tool"
)

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // "json" or "console"
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

func defaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "json"}
}

// Config is the root configuration.
type Config struct {
	Agent      agent.AgentConfig         `mapstructure:"agent" yaml:"agent"`
	Providers  provider.ProvidersConfig  `mapstructure:"providers" yaml:"providers"`
	Tools      tool.ToolsConfig          `mapstructure:"tools" yaml:"tools"`
	Channels   channel.ChannelsConfig    `mapstructure:"channels" yaml:"channels"`
	Server     serverconfig.ServerConfig `mapstructure:"server" yaml:"server"`
	Log        LogConfig                 `mapstructure:"log" yaml:"log"`
	HistoryDir string                    `mapstructure:"historyDir" yaml:"historyDir"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Agent:      agent.DefaultAgentConfig(),
		Providers:  provider.DefaultProvidersConfig(),
		Tools:      tool.DefaultToolsConfig(),
		Channels:   channel.DefaultChannelsConfig(),
		Server:     serverconfig.DefaultServerConfig(),
		Log:        defaultLogConfig(),
		HistoryDir: "~/.toolsmith/history",
	}
}

// ProviderByName returns the ProviderConfig for the given registry name.
func (c *Config) ProviderByName(name string) *provider.ProviderConfig {
	return c.Providers.ByName(name)
}

// DynamicDir returns the expanded dynamic tool directory.
func (c *Config) DynamicDir() string { return ExpandHome(c.Tools.DynamicDir) }

// LedgerPath returns the expanded deletion ledger path.
func (c *Config) LedgerPath() string { return ExpandHome(c.Tools.LedgerPath) }

// HistoryPath returns the expanded conversation history directory.
func (c *Config) HistoryPath() string { return ExpandHome(c.HistoryDir) }
