package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/insightloom-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/insightloom-cli/internal/config"
	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
	"github.com/KaramelBytes/insightloom-cli/internal/report"
)

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

func resolveProvider(cfg *cfgpkg.Global, flag string) string {
	name := strings.ToLower(strings.TrimSpace(flag))
	if name == "" && cfg != nil {
		name = strings.ToLower(strings.TrimSpace(cfg.DefaultProvider))
	}
	return ai.NormalizeProvider(name)
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	rc := ai.RuntimeConfig{
		HTTPTimeout: 60 * time.Second,
		RetryMax:    3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
	}
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			rc.RetryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			rc.BaseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			rc.MaxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerName := resolveProvider(cfg, opts.ProviderFlag)
	switch providerName {
	case ai.ProviderAnthropic:
		rc.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if rc.APIKey == "" && cfg != nil {
			rc.APIKey = cfg.AnthropicAPIKey
		}
	case ai.ProviderOllama:
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" {
			host = os.Getenv("INSIGHTLOOM_OLLAMA_HOST")
		}
		if host == "" && cfg != nil {
			host = cfg.OllamaHost
		}
		rc.Host = host
		if v := os.Getenv("INSIGHTLOOM_OLLAMA_TIMEOUT_SEC"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				rc.HTTPTimeout = time.Duration(n) * time.Second
			}
		} else if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	default:
		rc.APIKey = os.Getenv("OPENROUTER_API_KEY")
		if rc.APIKey == "" && cfg != nil {
			rc.APIKey = cfg.APIKey
		}
	}

	client, ok := ai.GetRuntime(providerName, rc)
	if !ok {
		return nil, providerName, fmt.Errorf("provider not supported: %s (use %s)", providerName, strings.Join(ai.Providers(), "|"))
	}
	return client, providerName, nil
}

// selectModel prefers the flag, then the configured model when it belongs to
// the provider in use, then the provider default.
func selectModel(cfg *cfgpkg.Global, explicit, provider string) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.DefaultModel != "" && ai.NormalizeProvider(strings.ToLower(cfg.DefaultProvider)) == provider {
		return cfg.DefaultModel
	}
	return ai.DefaultModel(provider)
}

func enforceBudget(estCost, limit float64) error {
	if limit > 0 && estCost > 0 && estCost > limit {
		return fmt.Errorf("✗ Estimated cost ~$%.4f exceeds budget limit ~$%.4f", estCost, limit)
	}
	return nil
}

// explainError adds a user-facing hint for the common failure classes.
func explainError(err error, provider, model string) string {
	var (
		authErr   *ai.AuthError
		rlErr     *ai.RateLimitError
		nfErr     *ai.ModelNotFoundError
		brErr     *ai.BadRequestError
		qErr      *ai.QuotaExceededError
		sErr      *ai.ServerError
		unreach   *ai.UnreachableError
		malformed *dataset.MalformedInputError
	)
	switch {
	case errors.As(err, &malformed):
		if malformed.Line > 0 {
			return fmt.Sprintf("the CSV could not be parsed near line %d: %s", malformed.Line, malformed.Reason)
		}
		return fmt.Sprintf("the CSV could not be parsed: %s", malformed.Reason)
	case errors.As(err, &unreach):
		if provider == ai.ProviderOllama {
			return fmt.Sprintf("Ollama not reachable at %s. Ensure Ollama is running and the host is correct (INSIGHTLOOM_OLLAMA_HOST or config 'ollama_host')", unreach.Host)
		}
		return "endpoint unreachable. Check your network and provider settings"
	case errors.As(err, &authErr):
		if provider == ai.ProviderAnthropic {
			return "authentication failed: set ANTHROPIC_API_KEY or anthropic_api_key in ~/.insightloom/config.yaml"
		}
		return "authentication failed: set OPENROUTER_API_KEY or api_key in ~/.insightloom/config.yaml"
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Sprintf("rate limited, try again in ~%ds", int(rlErr.RetryAfter.Seconds()))
		}
		return "rate limited by provider, please retry"
	case errors.As(err, &nfErr):
		if provider == ai.ProviderOllama {
			return fmt.Sprintf("local model not available (%s). Install it with 'ollama pull %s' or choose another model", model, model)
		}
		return fmt.Sprintf("model not found (%s). Check 'insightloom models show' for known names", model)
	case errors.As(err, &brErr):
		return "request rejected. Try a smaller --max-tokens or the executive tier"
	case errors.As(err, &qErr):
		return "quota/billing issue. Check your provider account"
	case errors.As(err, &sErr):
		return "provider appears unavailable (server error). Please retry later"
	}
	var ese *report.ExternalServiceError
	if errors.As(err, &ese) && ese.Err != nil {
		return ese.Err.Error()
	}
	return err.Error()
}
