package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
	"github.com/KaramelBytes/insightloom-cli/internal/insight"
)

const (
	envPrefix = "INSIGHTLOOM"
	dirName   = ".insightloom"
)

// Global configuration structure.
type Global struct {
	// AI runtimes
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
	ModelCatalog    string  `mapstructure:"model_catalog" yaml:"model_catalog,omitempty"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// Analysis thresholds
	OutlierThreshold     float64 `mapstructure:"outlier_threshold" yaml:"outlier_threshold"`
	IQRMultiplier        float64 `mapstructure:"iqr_multiplier" yaml:"iqr_multiplier"`
	OutlierMethod        string  `mapstructure:"outlier_method" yaml:"outlier_method"`
	CorrelationThreshold float64 `mapstructure:"correlation_threshold" yaml:"correlation_threshold"`
	ImputationStrategy   string  `mapstructure:"imputation_strategy" yaml:"imputation_strategy"`
	MinSamples           int     `mapstructure:"min_samples" yaml:"min_samples"`
	MissingHigh          float64 `mapstructure:"missing_high" yaml:"missing_high"`
	MissingMedium        float64 `mapstructure:"missing_medium" yaml:"missing_medium"`
	TrendSignificance    float64 `mapstructure:"trend_significance" yaml:"trend_significance"`
	DropDuplicates       bool    `mapstructure:"drop_duplicates" yaml:"drop_duplicates"`
	MaxActions           int     `mapstructure:"max_actions" yaml:"max_actions"`
	MissingHandling      string  `mapstructure:"missing_handling" yaml:"missing_handling"`
	DropColumnThreshold  float64 `mapstructure:"drop_column_threshold" yaml:"drop_column_threshold"`
	RemoveOutliers       bool    `mapstructure:"remove_outliers" yaml:"remove_outliers"`
	TimeColumn           string  `mapstructure:"time_column" yaml:"time_column"`
	TargetColumn         string  `mapstructure:"target_column" yaml:"target_column"`
	ForecastPeriods      int     `mapstructure:"forecast_periods" yaml:"forecast_periods"`

	// Report
	ReportTier string `mapstructure:"report_tier" yaml:"report_tier"`

	// HTTP server
	ListenAddr  string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Keys lists every configuration key, in file order.
var Keys = []string{
	"api_key", "anthropic_api_key", "default_provider", "default_model", "max_tokens", "temperature", "model_catalog",
	"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
	"ollama_host", "ollama_timeout_sec",
	"outlier_threshold", "iqr_multiplier", "outlier_method", "correlation_threshold", "imputation_strategy",
	"min_samples", "missing_high", "missing_medium", "trend_significance", "drop_duplicates", "max_actions",
	"missing_handling", "drop_column_threshold", "remove_outliers", "time_column", "target_column", "forecast_periods",
	"report_tier", "listen_addr", "cors_origins",
}

func setDefaults(v *viper.Viper) {
	d := analysis.DefaultOptions()
	v.SetDefault("default_provider", "openrouter")
	v.SetDefault("default_model", "")
	v.SetDefault("max_tokens", 4000)
	v.SetDefault("temperature", 0.3)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 120)
	// Analysis defaults mirror analysis.DefaultOptions
	v.SetDefault("outlier_threshold", d.OutlierThreshold)
	v.SetDefault("iqr_multiplier", d.IQRMultiplier)
	v.SetDefault("outlier_method", string(d.OutlierMethod))
	v.SetDefault("correlation_threshold", d.CorrelationThreshold)
	v.SetDefault("imputation_strategy", string(d.Imputation))
	v.SetDefault("min_samples", d.MinSamples)
	v.SetDefault("missing_high", d.MissingHigh)
	v.SetDefault("missing_medium", d.MissingMedium)
	v.SetDefault("trend_significance", d.TrendSignificance)
	v.SetDefault("drop_duplicates", d.DropDuplicates)
	v.SetDefault("max_actions", insight.DefaultOptions().MaxActions)
	v.SetDefault("missing_handling", string(d.MissingHandling))
	v.SetDefault("drop_column_threshold", d.DropColumnThreshold)
	v.SetDefault("remove_outliers", d.RemoveOutliers)
	v.SetDefault("forecast_periods", d.ForecastPeriods)
	v.SetDefault("report_tier", "executive")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
}

// DefaultPath is ~/.insightloom/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, dirName, "config.yaml"), nil
}

// Save writes the configuration to cfgFile, or to DefaultPath when empty.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load reads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range Keys {
		_ = v.BindEnv(k)
	}
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Provider keys commonly live in .env under their vendor names.
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if c.AnthropicAPIKey == "" {
		c.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return &c, nil
}

// AnalysisOptions maps the configured thresholds onto analysis.Options.
func (c *Global) AnalysisOptions() analysis.Options {
	o := analysis.DefaultOptions()
	if c == nil {
		return o
	}
	if c.OutlierThreshold > 0 {
		o.OutlierThreshold = c.OutlierThreshold
	}
	if c.IQRMultiplier > 0 {
		o.IQRMultiplier = c.IQRMultiplier
	}
	if c.OutlierMethod != "" {
		o.OutlierMethod = analysis.OutlierMethod(strings.ToLower(c.OutlierMethod))
	}
	if c.CorrelationThreshold > 0 {
		o.CorrelationThreshold = c.CorrelationThreshold
	}
	if c.ImputationStrategy != "" {
		o.Imputation = analysis.ImputationStrategy(strings.ToLower(c.ImputationStrategy))
	}
	if c.MinSamples > 0 {
		o.MinSamples = c.MinSamples
	}
	if c.MissingHigh > 0 {
		o.MissingHigh = c.MissingHigh
	}
	if c.MissingMedium > 0 {
		o.MissingMedium = c.MissingMedium
	}
	if c.TrendSignificance > 0 {
		o.TrendSignificance = c.TrendSignificance
	}
	o.DropDuplicates = c.DropDuplicates
	if c.MissingHandling != "" {
		o.MissingHandling = analysis.MissingHandling(strings.ToLower(c.MissingHandling))
	}
	if c.DropColumnThreshold > 0 {
		o.DropColumnThreshold = c.DropColumnThreshold
	}
	o.RemoveOutliers = c.RemoveOutliers
	o.TimeColumn = strings.TrimSpace(c.TimeColumn)
	o.TargetColumn = strings.TrimSpace(c.TargetColumn)
	if c.ForecastPeriods > 0 {
		o.ForecastPeriods = c.ForecastPeriods
	}
	return o
}

// Validate rejects negative numbers, unknown tiers and analysis options
// that analysis.Options would refuse.
func (c *Global) Validate() error {
	floats := []struct {
		key string
		val float64
	}{
		{"temperature", c.Temperature},
		{"outlier_threshold", c.OutlierThreshold},
		{"iqr_multiplier", c.IQRMultiplier},
		{"correlation_threshold", c.CorrelationThreshold},
		{"missing_high", c.MissingHigh},
		{"missing_medium", c.MissingMedium},
		{"trend_significance", c.TrendSignificance},
		{"drop_column_threshold", c.DropColumnThreshold},
	}
	for _, f := range floats {
		if f.val < 0 {
			return fmt.Errorf("%s must be >= 0, got %v", f.key, f.val)
		}
	}
	ints := []struct {
		key string
		val int
	}{
		{"max_tokens", c.MaxTokens},
		{"min_samples", c.MinSamples},
		{"max_actions", c.MaxActions},
		{"forecast_periods", c.ForecastPeriods},
		{"http_timeout_sec", c.HTTPTimeoutSec},
		{"retry_max_attempts", c.RetryMaxAttempts},
		{"retry_base_delay_ms", c.RetryBaseDelayMs},
		{"retry_max_delay_ms", c.RetryMaxDelayMs},
		{"ollama_timeout_sec", c.OllamaTimeoutSec},
	}
	for _, i := range ints {
		if i.val < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", i.key, i.val)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.ReportTier)) {
	case "", "executive", "full", "technical":
	default:
		return fmt.Errorf("report_tier must be executive|full|technical, got %q", c.ReportTier)
	}
	return c.AnalysisOptions().Validate()
}

// Get returns the value of key for `config show`/`config get`.
func (c *Global) Get(key string) (any, error) {
	m, err := c.asMap()
	if err != nil {
		return nil, err
	}
	val, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return val, nil
}

// Set parses raw according to the key's type and stores it.
func (c *Global) Set(key, raw string) error {
	m, err := c.asMap()
	if err != nil {
		return err
	}
	cur, ok := m[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	var val any
	switch cur.(type) {
	case []any:
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		val = parts
	default:
		var parsed any
		if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil || parsed == nil {
			parsed = raw
		}
		if _, isStr := cur.(string); isStr {
			parsed = raw
		}
		val = parsed
	}
	m[key] = val
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var next Global
	if err := yaml.Unmarshal(b, &next); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*c = next
	return nil
}

func (c *Global) asMap() (map[string]any, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if _, ok := m["model_catalog"]; !ok {
		m["model_catalog"] = ""
	}
	if m["cors_origins"] == nil {
		m["cors_origins"] = []any{}
	}
	return m, nil
}

// Redacted returns a copy safe to print.
func (c *Global) Redacted() Global {
	out := *c
	out.APIKey = redact(out.APIKey)
	out.AnthropicAPIKey = redact(out.AnthropicAPIKey)
	return out
}

func redact(s string) string {
	if len(s) <= 8 {
		if s == "" {
			return ""
		}
		return "****"
	}
	return s[:4] + "…" + s[len(s)-4:]
}
