package config

import (
	"strings"

	"github.com/crystaldolphin/toolsmith/internal/config/provider"
	"github.com/crystaldolphin/toolsmith/internal/providers"
)

// MatchResult is the resolved LLM provider config and registry name for a model.
type MatchResult struct {
	Provider *provider.ProviderConfig
	Name     string // e.g. "openrouter", "deepseek"
}

// MatchProvider resolves which provider config and registry entry to use for model.
// If model is empty, agent.model is used.
//
// Priority order:
//  1. Explicit provider prefix in model string ("deepseek/deepseek-chat" → deepseek)
//  2. Keyword match in model name (registry order)
//  3. Fallback: first provider with an API key, gateways first
func (c *Config) MatchProvider(model string) MatchResult {
	if model == "" {
		model = c.Agent.Model
	}
	modelLower := strings.ToLower(model)
	modelNorm := strings.ReplaceAll(modelLower, "-", "_")
	modelPrefix, _, _ := strings.Cut(modelLower, "/")
	normalizedPrefix := strings.ReplaceAll(modelPrefix, "-", "_")

	kwMatches := func(kw string) bool {
		kw = strings.ToLower(kw)
		kwNorm := strings.ReplaceAll(kw, "-", "_")
		return strings.Contains(modelLower, kw) || strings.Contains(modelNorm, kwNorm)
	}

	usable := func(spec providers.ProviderSpec, p *provider.ProviderConfig) bool {
		return p.APIKey != "" || (spec.IsLocal && p.APIBase != "")
	}

	// 1. Explicit provider prefix wins.
	for _, spec := range providers.PROVIDERS {
		p := c.ProviderByName(spec.Name)
		if p == nil {
			continue
		}
		if modelPrefix != "" && normalizedPrefix == spec.Name && usable(spec, p) {
			return MatchResult{Provider: p, Name: spec.Name}
		}
	}

	// 2. Keyword match.
	for _, spec := range providers.PROVIDERS {
		p := c.ProviderByName(spec.Name)
		if p == nil || !usable(spec, p) {
			continue
		}
		for _, kw := range spec.Keywords {
			if kwMatches(kw) {
				return MatchResult{Provider: p, Name: spec.Name}
			}
		}
	}

	// 3. Fallback: first configured provider.
	for _, spec := range providers.PROVIDERS {
		p := c.ProviderByName(spec.Name)
		if p != nil && usable(spec, p) {
			return MatchResult{Provider: p, Name: spec.Name}
		}
	}

	return MatchResult{}
}

// GetAPIBase resolves the effective API base URL for model.
// Precedence: user-configured apiBase > spec default (gateways and standard providers).
func (c *Config) GetAPIBase(model string) string {
	result := c.MatchProvider(model)
	if result.Provider != nil && result.Provider.APIBase != "" {
		return result.Provider.APIBase
	}
	if result.Name != "" {
		if spec := providers.FindByName(result.Name); spec != nil {
			return spec.DefaultAPIBase
		}
	}
	return ""
}

// ProviderParams extracts everything providers.New needs for model.
func (c *Config) ProviderParams(model string) providers.Params {
	if model == "" {
		model = c.Agent.Model
	}
	result := c.MatchProvider(model)
	params := providers.Params{
		APIBase:      c.GetAPIBase(model),
		DefaultModel: model,
		ProviderName: result.Name,
	}
	if result.Provider != nil {
		params.APIKey = result.Provider.APIKey
		params.ExtraHeaders = result.Provider.ExtraHeaders
	}
	return params
}
