package config

import (
	"fmt"
	"path/filepath"
	"testing"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	for _, k := range []string{"INSIGHTLOOM_API_KEY", "INSIGHTLOOM_OUTLIER_THRESHOLD", "INSIGHTLOOM_REPORT_TIER"} {
		t.Setenv(k, "")
	}
	return home
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.OutlierThreshold != 3.0 || c.IQRMultiplier != 1.5 || c.CorrelationThreshold != 0.6 {
		t.Fatalf("unexpected thresholds: %+v", c)
	}
	if c.ImputationStrategy != "median" || c.ReportTier != "executive" || c.ListenAddr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if len(c.CORSOrigins) != 1 || c.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %v", c.CORSOrigins)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("INSIGHTLOOM_OUTLIER_THRESHOLD", "2.5")
	t.Setenv("INSIGHTLOOM_API_KEY", "sk-or-123456789")
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.OutlierThreshold != 2.5 {
		t.Fatalf("env threshold not applied: %v", c.OutlierThreshold)
	}
	if c.APIKey != "sk-or-123456789" {
		t.Fatalf("env api key not applied: %q", c.APIKey)
	}
	if got := c.AnalysisOptions().OutlierThreshold; got != 2.5 {
		t.Fatalf("analysis options threshold = %v", got)
	}
}

func TestVendorKeyFallback(t *testing.T) {
	isolate(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-abc")
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.AnthropicAPIKey != "sk-ant-abc" {
		t.Fatalf("expected ANTHROPIC_API_KEY fallback, got %q", c.AnthropicAPIKey)
	}
}

func TestSaveAndReload(t *testing.T) {
	home := isolate(t)
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	c.DefaultProvider = "ollama"
	c.MaxActions = 4
	path := filepath.Join(home, "custom", "cfg.yaml")
	if err := Save(c, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.DefaultProvider != "ollama" || got.MaxActions != 4 {
		t.Fatalf("unexpected reloaded config: %+v", got)
	}
	if _, err := Load(filepath.Join(home, "missing.yaml")); err == nil {
		t.Fatalf("explicit missing config file should fail")
	}
}

func TestSetAndGet(t *testing.T) {
	isolate(t)
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set("max_actions", "4"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if err := c.Set("cors_origins", "http://a.test, http://b.test"); err != nil {
		t.Fatalf("set list: %v", err)
	}
	if err := c.Set("default_model", "llama3.1:8b"); err != nil {
		t.Fatalf("set string: %v", err)
	}
	if err := c.Set("drop_duplicates", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if c.MaxActions != 4 || c.DefaultModel != "llama3.1:8b" || c.DropDuplicates {
		t.Fatalf("unexpected config after set: %+v", c)
	}
	if len(c.CORSOrigins) != 2 || c.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected cors origins: %v", c.CORSOrigins)
	}
	v, err := c.Get("max_actions")
	if err != nil || fmt.Sprint(v) != "4" {
		t.Fatalf("get max_actions = %v, %v", v, err)
	}
	if err := c.Set("no_such_key", "1"); err == nil {
		t.Fatalf("expected unknown key error")
	}
	if err := c.Set("max_actions", "many"); err == nil {
		t.Fatalf("expected type error")
	}
	if _, err := c.Get("no_such_key"); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestCleaningAndPredictionKeys(t *testing.T) {
	isolate(t)
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	o := c.AnalysisOptions()
	if o.MissingHandling != "impute" || o.DropColumnThreshold != 0.70 || o.RemoveOutliers || o.ForecastPeriods != 0 {
		t.Fatalf("unexpected defaults: %+v", o)
	}
	for key, raw := range map[string]string{
		"missing_handling":      "drop-cols",
		"drop_column_threshold": "0.5",
		"remove_outliers":       "true",
		"time_column":           "order_date",
		"target_column":         "revenue",
		"forecast_periods":      "6",
	} {
		if err := c.Set(key, raw); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	o = c.AnalysisOptions()
	if o.MissingHandling != "drop-cols" || o.DropColumnThreshold != 0.5 || !o.RemoveOutliers {
		t.Fatalf("cleaning keys not applied: %+v", o)
	}
	if o.TimeColumn != "order_date" || o.TargetColumn != "revenue" || o.ForecastPeriods != 6 {
		t.Fatalf("prediction keys not applied: %+v", o)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := c.Set("forecast_periods", "-2"); err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected negative forecast_periods to be rejected")
	}
}

func TestValidate(t *testing.T) {
	isolate(t)
	base, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]func(c *Global){
		"negative threshold": func(c *Global) { c.OutlierThreshold = -1 },
		"negative tokens":    func(c *Global) { c.MaxTokens = -5 },
		"bad tier":           func(c *Global) { c.ReportTier = "verbose" },
		"correlation > 1":    func(c *Global) { c.CorrelationThreshold = 1.5 },
		"bad method":         func(c *Global) { c.OutlierMethod = "magic" },
	}
	for name, mutate := range cases {
		c := *base
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestRedacted(t *testing.T) {
	c := &Global{APIKey: "sk-or-1234567890", AnthropicAPIKey: "short"}
	r := c.Redacted()
	if r.APIKey != "sk-o…7890" || r.AnthropicAPIKey != "****" {
		t.Fatalf("unexpected redaction: %q %q", r.APIKey, r.AnthropicAPIKey)
	}
	if c.APIKey != "sk-or-1234567890" {
		t.Fatalf("redaction must not modify the original")
	}
	var nilCfg *Global
	if nilCfg.AnalysisOptions().OutlierThreshold != 3.0 {
		t.Fatalf("nil config should yield default options")
	}
}
