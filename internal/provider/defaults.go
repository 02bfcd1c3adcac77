package provider

import (
	"log/slog"

	"RelayChat/internal/config"
)

// RegisterDefaults installs the factories for every built-in provider,
// applying any per-provider overrides from cfg. Construction stays lazy: a
// provider with missing credentials only fails when something switches to it.
func RegisterDefaults(r *Registry, cfgs map[string]config.ProviderConfig, logger *slog.Logger) {
	openAIDefaults := map[string]OpenAICompatibleConfig{
		config.BackendOpenAI: {
			Name:         config.BackendOpenAI,
			BaseURL:      "https://api.openai.com/v1",
			APIKeyEnv:    "OPENAI_API_KEY",
			DefaultModel: "gpt-3.5-turbo",
			FallbackModels: map[string]string{
				"GPT-4o":        "gpt-4o",
				"GPT-4o Mini":   "gpt-4o-mini",
				"GPT-3.5 Turbo": "gpt-3.5-turbo",
			},
		},
		config.BackendGrok: {
			Name:         config.BackendGrok,
			BaseURL:      "https://api.grok.x.ai/v1",
			APIKeyEnv:    "GROK_API_KEY",
			DefaultModel: "grok-1",
			FallbackModels: map[string]string{
				"Grok 1": "grok-1",
				"Grok 2": "grok-2-latest",
			},
		},
		config.BackendSilicon: {
			Name:         config.BackendSilicon,
			BaseURL:      "https://api.siliconflow.cn/v1",
			APIKeyEnv:    "SILICON_API_KEY",
			DefaultModel: "deepseek-ai/DeepSeek-V2.5",
			FallbackModels: map[string]string{
				"DeepSeek V2.5":        "deepseek-ai/DeepSeek-V2.5",
				"DeepSeek V3":          "deepseek-ai/DeepSeek-V3",
				"DeepSeek R1":          "deepseek-ai/DeepSeek-R1",
				"Qwen2.5 72B Instruct": "Qwen/Qwen2.5-72B-Instruct",
				"GLM-4 9B Chat":        "THUDM/glm-4-9b-chat",
			},
		},
	}

	for name, def := range openAIDefaults {
		ccfg := applyOverrides(def, cfgs[name])
		r.Register(name, func() (Client, error) {
			return NewOpenAICompatible(ccfg, logger)
		})
	}

	anthropicCfg := cfgs[config.BackendAnthropic]
	r.Register(config.BackendAnthropic, func() (Client, error) {
		return NewAnthropic(anthropicCfg.APIKey, anthropicCfg.BaseURL, anthropicCfg.DefaultModel, logger)
	})

	ollamaCfg := cfgs[config.BackendOllama]
	r.Register(config.BackendOllama, func() (Client, error) {
		return NewOllama(ollamaCfg.BaseURL, ollamaCfg.DefaultModel, logger)
	})
}

func applyOverrides(def OpenAICompatibleConfig, override config.ProviderConfig) OpenAICompatibleConfig {
	if override.BaseURL != "" {
		def.BaseURL = override.BaseURL
	}
	if override.APIKey != "" {
		def.APIKey = override.APIKey
	}
	if override.APIKeyEnv != "" {
		def.APIKeyEnv = override.APIKeyEnv
	}
	if override.DefaultModel != "" {
		def.DefaultModel = override.DefaultModel
	}
	return def
}
