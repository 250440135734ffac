package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Agent.Model != def.Agent.Model {
		t.Errorf("expected default model %q, got %q", def.Agent.Model, cfg.Agent.Model)
	}
	if cfg.Tools.Runtimes["python"] != "python3" {
		t.Errorf("expected default python runtime, got %q", cfg.Tools.Runtimes["python"])
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
agent:
  model: openai/gpt-4o
  maxTokens: 2048
  synthesis:
    enabled: false
tools:
  timeoutSeconds: 5
server:
  port: 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.Model != "openai/gpt-4o" {
		t.Errorf("expected model %q, got %q", "openai/gpt-4o", cfg.Agent.Model)
	}
	if cfg.Agent.MaxTokens != 2048 {
		t.Errorf("expected maxTokens 2048, got %d", cfg.Agent.MaxTokens)
	}
	if cfg.Agent.Synthesis.Enabled {
		t.Error("expected synthesis disabled")
	}
	if cfg.Tools.TimeoutSeconds != 5 {
		t.Errorf("expected timeoutSeconds 5, got %d", cfg.Tools.TimeoutSeconds)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Untouched keys keep their defaults.
	if cfg.Agent.HistoryLimit != 10 {
		t.Errorf("expected default historyLimit 10, got %d", cfg.Agent.HistoryLimit)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "agent: [unclosed\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid YAML (falls back to default), got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Agent.Model != def.Agent.Model {
		t.Errorf("expected default model %q, got %q", def.Agent.Model, cfg.Agent.Model)
	}
}

func TestLoad_ExpandsEnvInFile(t *testing.T) {
	t.Setenv("TOOLSMITH_TEST_OPENAI_KEY", "sk-from-env")
	path := writeConfig(t, t.TempDir(), `
providers:
  openai:
    apiKey: ${TOOLSMITH_TEST_OPENAI_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("expected expanded api key, got %q", cfg.Providers.OpenAI.APIKey)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TOOLSMITH_AGENT_MODEL", "groq/llama-3.3-70b")
	path := writeConfig(t, t.TempDir(), "agent:\n  model: openai/gpt-4o\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.Model != "groq/llama-3.3-70b" {
		t.Errorf("expected env model to win, got %q", cfg.Agent.Model)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Agent.Model = "deepseek/deepseek-chat"
	cfg.Providers.DeepSeek.APIKey = "sk-deep"

	if err := Save(&cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Agent.Model != cfg.Agent.Model {
		t.Errorf("model: want %q, got %q", cfg.Agent.Model, got.Agent.Model)
	}
	if got.Providers.DeepSeek.APIKey != "sk-deep" {
		t.Errorf("api key not persisted, got %q", got.Providers.DeepSeek.APIKey)
	}
}

func TestMatchProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.DeepSeek.APIKey = "sk-deep"
	cfg.Providers.OpenRouter.APIKey = "sk-or-abc"

	if got := cfg.MatchProvider("deepseek/deepseek-chat").Name; got != "deepseek" {
		t.Errorf("prefix match: expected deepseek, got %q", got)
	}
	if got := cfg.MatchProvider("gpt-4o").Name; got != "openrouter" {
		t.Errorf("fallback: expected openrouter, got %q", got)
	}

	params := cfg.ProviderParams("deepseek/deepseek-chat")
	if params.APIKey != "sk-deep" || params.APIBase != "https://api.deepseek.com/v1" {
		t.Errorf("unexpected params: %+v", params)
	}
}

func TestMatchProvider_NoneConfigured(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.MatchProvider("").Provider; got != nil {
		t.Errorf("expected no provider, got %+v", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandHome("~/.toolsmith/tools"); got != filepath.Join(home, ".toolsmith", "tools") {
		t.Errorf("unexpected expansion %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed to %q", got)
	}
}
