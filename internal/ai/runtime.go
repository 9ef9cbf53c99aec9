package ai

import "context"

// Runtime is a text-generation backend such as OpenRouter, Anthropic or a
// local Ollama.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// StreamRuntime is implemented by runtimes that can emit partial output.
type StreamRuntime interface {
	GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error
}

// Provider names accepted by --provider and default_provider.
const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"
	ProviderLocal      = "local"
)

// NormalizeProvider maps aliases onto a registered provider name.
func NormalizeProvider(name string) string {
	switch name {
	case "", "openai", "google", "gemini", "meta", "llama":
		return ProviderOpenRouter
	case ProviderLocal:
		return ProviderOllama
	case "claude":
		return ProviderAnthropic
	}
	return name
}
