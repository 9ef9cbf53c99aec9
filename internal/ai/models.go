package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ModelInfo is catalog metadata used for cost estimates and context warnings.
// Prices are indicative; check the provider before relying on them.
type ModelInfo struct {
	Name          string  `json:"name"`
	Provider      string  `json:"provider"`
	ContextTokens int     `json:"context_tokens"`
	InputPerK     float64 `json:"input_per_k"`  // USD per 1K input tokens
	OutputPerK    float64 `json:"output_per_k"` // USD per 1K output tokens
}

var models = map[string]ModelInfo{
	// OpenRouter
	"anthropic/claude-sonnet-4":        {Provider: ProviderOpenRouter, ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015},
	"anthropic/claude-3.5-haiku":       {Provider: ProviderOpenRouter, ContextTokens: 200000, InputPerK: 0.0008, OutputPerK: 0.004},
	"openai/gpt-4o-mini":               {Provider: ProviderOpenRouter, ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	"openai/gpt-4o":                    {Provider: ProviderOpenRouter, ContextTokens: 128000, InputPerK: 0.0025, OutputPerK: 0.01},
	"google/gemini-1.5-flash":          {Provider: ProviderOpenRouter, ContextTokens: 1000000, InputPerK: 0.000075, OutputPerK: 0.0003},
	"deepseek/deepseek-r1:free":        {Provider: ProviderOpenRouter, ContextTokens: 128000},
	"meta-llama/llama-3.1-8b-instruct": {Provider: ProviderOpenRouter, ContextTokens: 131072},

	// Anthropic Messages API
	"claude-sonnet-4-20250514": {Provider: ProviderAnthropic, ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015},
	"claude-3-5-haiku-latest":  {Provider: ProviderAnthropic, ContextTokens: 200000, InputPerK: 0.0008, OutputPerK: 0.004},

	// Ollama tags
	"llama3.1:8b-instruct":    {Provider: ProviderOllama, ContextTokens: 8192},
	"mistral-nemo:latest":     {Provider: ProviderOllama, ContextTokens: 8192},
	"phi3:mini-128k-instruct": {Provider: ProviderOllama, ContextTokens: 128000},
	"qwen2.5:7b-instruct":     {Provider: ProviderOllama, ContextTokens: 32768},
}

func init() {
	for k, v := range models {
		v.Name = k
		models[k] = v
	}
}

// DefaultModel is the model used per provider when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderOllama:
		return "llama3.1:8b-instruct"
	default:
		return "openai/gpt-4o-mini"
	}
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD prices a call; ok is false for models not in the catalog.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	return float64(promptTokens)/1000*mi.InputPerK + float64(completionTokens)/1000*mi.OutputPerK, true
}

// MergeCatalogFile overlays entries from a JSON object keyed by model name.
func MergeCatalogFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var m map[string]ModelInfo
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}
	for k, v := range m {
		v.Name = k
		models[k] = v
	}
	return nil
}

// Catalog returns the catalog sorted by provider, then name.
func Catalog() []ModelInfo {
	out := make([]ModelInfo, 0, len(models))
	for _, v := range models {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Name < out[j].Name
	})
	return out
}
