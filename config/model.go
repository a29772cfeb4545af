package config

import (
	"fmt"
	"sort"
)

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// SupportedModels maps provider to their supported model names
// The keys are the variable names used in HCL references (e.g., models.openai.gpt_4o)
var SupportedModels = map[Provider]map[string]string{
	ProviderOpenAI: {
		"gpt_4o":      "gpt-4o",
		"gpt_4o_mini": "gpt-4o-mini",
		"gpt_4_1":     "gpt-4.1",
		"o3_mini":     "o3-mini",
	},
	ProviderGemini: {
		"gemini_2_0_flash": "gemini-2.0-flash",
		"gemini_1_5_pro":   "gemini-1.5-pro",
		"gemini_1_5_flash": "gemini-1.5-flash",
	},
	ProviderAnthropic: {
		"claude_sonnet_4":   "claude-sonnet-4-20250514",
		"claude_opus_4":     "claude-opus-4-20250514",
		"claude_3_5_haiku":  "claude-3-5-haiku-20241022",
		"claude_3_5_sonnet": "claude-3-5-sonnet-20241022",
	},
}

// Model represents a model provider configuration
type Model struct {
	Name          string   `hcl:"name,label"`
	Provider      Provider `hcl:"provider"`
	AllowedModels []string `hcl:"allowed_models"`
	APIKey        string   `hcl:"api_key"`
}

func (m *Model) Validate() error {
	supported, ok := SupportedModels[m.Provider]
	if !ok {
		return fmt.Errorf("provider '%s' is not supported", m.Provider)
	}
	for _, key := range m.AllowedModels {
		if _, ok := supported[key]; !ok {
			return fmt.Errorf("model '%s' is not supported for provider '%s' (supported: %v)", key, m.Provider, sortedKeys(supported))
		}
	}
	return nil
}

// ResolveModel finds the provider config that allows the given model key and
// returns it with the provider-level model name
func ResolveModel(models []Model, key string) (*Model, string, error) {
	for i := range models {
		m := &models[i]
		supported, ok := SupportedModels[m.Provider]
		if !ok {
			continue
		}
		for _, allowed := range m.AllowedModels {
			if allowed != key {
				continue
			}
			actual, ok := supported[key]
			if !ok {
				return nil, "", fmt.Errorf("model key '%s' not found in supported models for provider '%s'", key, m.Provider)
			}
			return m, actual, nil
		}
	}
	return nil, "", fmt.Errorf("no model config found for model '%s'", key)
}

// ResolveModel resolves a model key against the configured providers
func (c *Config) ResolveModel(key string) (*Model, string, error) {
	return ResolveModel(c.Models, key)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
