package tool

// JanitorConfig schedules the staging-directory sweep.
type JanitorConfig struct {
	Schedule          string `mapstructure:"schedule" yaml:"schedule"`
	StagingTTLMinutes int    `mapstructure:"stagingTTLMinutes" yaml:"stagingTTLMinutes"`
}

// WebConfig configures the open_website built-in.
type WebConfig struct {
	MaxChars int `mapstructure:"maxChars" yaml:"maxChars"`
}

// ToolsConfig groups all tool-level settings.
type ToolsConfig struct {
	DynamicDir     string              `mapstructure:"dynamicDir" yaml:"dynamicDir"`
	LedgerPath     string              `mapstructure:"ledgerPath" yaml:"ledgerPath"`
	TimeoutSeconds int                 `mapstructure:"timeoutSeconds" yaml:"timeoutSeconds"`
	MaxOutputBytes int                 `mapstructure:"maxOutputBytes" yaml:"maxOutputBytes"`
	MaxConcurrent  int                 `mapstructure:"maxConcurrent" yaml:"maxConcurrent"`
	Runtimes       map[string]string   `mapstructure:"runtimes" yaml:"runtimes"`
	AllowedHosts   []string            `mapstructure:"allowedHosts" yaml:"allowedHosts,omitempty"`
	AllowedImports map[string][]string `mapstructure:"allowedImports" yaml:"allowedImports,omitempty"`
	Watch          bool                `mapstructure:"watch" yaml:"watch"`
	Janitor        JanitorConfig       `mapstructure:"janitor" yaml:"janitor"`
	Web            WebConfig           `mapstructure:"web" yaml:"web"`
}

func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		DynamicDir:     "~/.toolsmith/tools",
		LedgerPath:     "~/.toolsmith/ledger.db",
		TimeoutSeconds: 30,
		MaxOutputBytes: 10240,
		MaxConcurrent:  8,
		Runtimes: map[string]string{
			"python":     "python3",
			"javascript": "node",
		},
		Watch: true,
		Janitor: JanitorConfig{
			Schedule:          "@every 10m",
			StagingTTLMinutes: 30,
		},
		Web: WebConfig{MaxChars: 8000},
	}
}
