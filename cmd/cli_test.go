package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const ordersCSV = `order_id,region,amount,qty
1,north,20,2
2,south,22,3
3,north,21,2
4,east,19,2
5,west,23,3
6,north,900,2
7,south,20,3
8,east,22,2
`

// resetFlags restores every flag to its default so invocations don't leak state.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execCmd(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags(rootCmd)
	cfg = nil
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) {
	t.Helper()
	if err := execCmd(t, args...); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
}

func isolatedHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	return home
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestCLI_AnalyzeFallbackJSON(t *testing.T) {
	home := isolatedHome(t)
	csvPath := writeFile(t, home, "orders.csv", ordersCSV)
	out := filepath.Join(home, "out", "run.json")

	runCmd(t, "analyze", csvPath, "--report", "fallback", "--format", "json", "--output", out)

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got["source"] != "orders.csv" {
		t.Fatalf("unexpected source: %v", got["source"])
	}
	if got["rows"] != float64(8) {
		t.Fatalf("unexpected rows: %v", got["rows"])
	}
	if got["report_fallback"] != true {
		t.Fatalf("expected fallback report flag, got %v", got["report_fallback"])
	}
	if !strings.Contains(got["report"].(string), "EXECUTIVE BUSINESS REPORT") {
		t.Fatalf("fallback report missing header")
	}
	findings, _ := got["findings"].([]any)
	if len(findings) == 0 {
		t.Fatalf("expected findings for the 900 amount")
	}
}

func TestCLI_AnalyzeMarkdownWithoutReport(t *testing.T) {
	home := isolatedHome(t)
	csvPath := writeFile(t, home, "orders.csv", ordersCSV)
	out := filepath.Join(home, "run.md")

	runCmd(t, "analyze", csvPath, "--report", "none", "--format", "markdown", "-o", out, "--tier", "technical")

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	md := string(b)
	if !strings.Contains(md, "# Analysis of orders.csv") || !strings.Contains(md, "## Findings") {
		t.Fatalf("unexpected markdown:\n%s", md)
	}
	if strings.Contains(md, "## Report") {
		t.Fatalf("--report none should not render a report")
	}
}

func TestCLI_AnalyzeRejectsMalformedCSV(t *testing.T) {
	home := isolatedHome(t)
	csvPath := writeFile(t, home, "bad.csv", "a,b\n1,2,3\n")
	err := execCmd(t, "analyze", csvPath, "--report", "none")
	if err == nil {
		t.Fatalf("expected malformed input error")
	}
	if !strings.Contains(err.Error(), "could not be parsed") {
		t.Fatalf("expected parse hint, got %v", err)
	}
}

func TestCLI_AnalyzeRejectsBadFlags(t *testing.T) {
	home := isolatedHome(t)
	csvPath := writeFile(t, home, "orders.csv", ordersCSV)
	cases := [][]string{
		{"analyze", csvPath, "--report", "sometimes"},
		{"analyze", csvPath, "--tier", "verbose"},
		{"analyze", csvPath, "--outlier-method", "magic"},
		{"analyze", csvPath, "--delimiter", "#"},
		{"analyze", csvPath, "--report", "none", "--format", "xml"},
	}
	for _, args := range cases {
		if err := execCmd(t, args...); err == nil {
			t.Fatalf("expected %v to fail", args)
		}
	}
}

func TestCLI_DryRunAndBudgetLimit(t *testing.T) {
	home := isolatedHome(t)
	csvPath := writeFile(t, home, "orders.csv", ordersCSV)

	// A dry run never reaches the provider, so no key is needed.
	runCmd(t, "analyze", csvPath, "--dry-run")

	err := execCmd(t, "analyze", csvPath, "--dry-run", "--budget-limit", "0.0000001")
	if err == nil {
		t.Fatalf("expected error due to budget limit, got nil")
	}
	if !strings.Contains(err.Error(), "exceeds budget limit") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCLI_AnalyzeWritesFindingsWhenAIUnavailable(t *testing.T) {
	home := isolatedHome(t)
	csvPath := writeFile(t, home, "orders.csv", ordersCSV)
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"--budget-limit", "0.0000001"}, "exceeds budget limit"},
		{[]string{"--provider", "carrier-pigeon"}, "carrier-pigeon"},
	}
	for i, tc := range cases {
		out := filepath.Join(home, fmt.Sprintf("run-%d.json", i))
		args := append([]string{"analyze", csvPath, "--format", "json", "--output", out}, tc.args...)
		err := execCmd(t, args...)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%v: expected error containing %q, got %v", tc.args, tc.want, err)
		}
		b, rerr := os.ReadFile(out)
		if rerr != nil {
			t.Fatalf("%v: output not written: %v", tc.args, rerr)
		}
		var got map[string]any
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("decode output: %v", err)
		}
		if findings, _ := got["findings"].([]any); len(findings) == 0 {
			t.Fatalf("%v: expected findings in output", tc.args)
		}
		if got["report_fallback"] != true {
			t.Fatalf("%v: expected built-in report, got %v", tc.args, got["report_fallback"])
		}
	}
}

func TestCLI_AnalyzeBatch(t *testing.T) {
	home := isolatedHome(t)
	dataDir := filepath.Join(home, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dataDir, "a.csv", ordersCSV)
	writeFile(t, dataDir, "b.csv", strings.ReplaceAll(ordersCSV, "900", "24"))
	outDir := filepath.Join(home, "reports")

	runCmd(t, "analyze-batch", filepath.Join(dataDir, "*.csv"), "--out-dir", outDir, "--format", "json", "--concurrency", "2")

	for _, name := range []string{"a.json", "b.json"} {
		b, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
		var got map[string]any
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		if got["report_fallback"] != true {
			t.Fatalf("%s: batch default should use the built-in report", name)
		}
	}

	writeFile(t, dataDir, "c.csv", "a,b\n1,2,3\n")
	err := execCmd(t, "analyze-batch", filepath.Join(dataDir, "*.csv"), "--out-dir", outDir)
	if err == nil || !strings.Contains(err.Error(), "1 of 3 files failed") {
		t.Fatalf("expected one failure, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "a.md")); err != nil {
		t.Fatalf("good files should still be written: %v", err)
	}

	if err := execCmd(t, "analyze-batch", filepath.Join(home, "nothing-*.csv")); err == nil {
		t.Fatalf("expected error when no files match")
	}
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home := isolatedHome(t)

	runCmd(t, "config", "set", "outlier_threshold", "2.5")
	runCmd(t, "config", "set", "default_provider", "anthropic")
	runCmd(t, "config", "set", "cors_origins", "http://a.test, http://b.test")
	runCmd(t, "config", "show")
	runCmd(t, "config", "get", "outlier_threshold")

	b, err := os.ReadFile(filepath.Join(home, ".insightloom", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	text := string(b)
	for _, want := range []string{"outlier_threshold: 2.5", "default_provider: anthropic", "- http://b.test"} {
		if !strings.Contains(text, want) {
			t.Fatalf("config missing %q:\n%s", want, text)
		}
	}

	if err := execCmd(t, "config", "set", "outlier_threshold", "-1"); err == nil {
		t.Fatalf("expected invalid threshold to be rejected")
	}
	if err := execCmd(t, "config", "set", "no_such_key", "1"); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
	if err := execCmd(t, "config", "get", "no_such_key"); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}

func TestCLI_Models(t *testing.T) {
	home := isolatedHome(t)
	runCmd(t, "models", "show")
	runCmd(t, "models", "show", "--provider", "ollama")
	runCmd(t, "models", "providers")

	catalog := writeFile(t, home, "models.json", `{"acme/tiny":{"provider":"openrouter","context_tokens":8000,"input_per_k":0.001,"output_per_k":0.002}}`)
	runCmd(t, "models", "sync", "--file", catalog)
	if err := execCmd(t, "models", "sync"); err == nil {
		t.Fatalf("expected --file to be required")
	}
}

func TestCLI_SaveAndShowRuns(t *testing.T) {
	home := isolatedHome(t)
	csvPath := writeFile(t, home, "orders.csv", ordersCSV)

	runCmd(t, "runs", "list")
	runCmd(t, "analyze", csvPath, "--report", "fallback", "--save", "--quiet")

	runsDir := filepath.Join(home, ".insightloom", "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one saved run, got %v %v", entries, err)
	}
	id := strings.TrimSuffix(entries[0].Name(), ".json")

	runCmd(t, "runs", "list", "--json")
	runCmd(t, "runs", "show", id[:8], "--format", "json")
	if err := execCmd(t, "runs", "show", "zzzz"); err == nil {
		t.Fatalf("expected unknown run to fail")
	}
	runCmd(t, "runs", "delete", id)
	if entries, _ := os.ReadDir(runsDir); len(entries) != 0 {
		t.Fatalf("expected run to be deleted, found %d", len(entries))
	}
}

// captureStdout runs fn with os.Stdout redirected and returns what it printed.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdout
	os.Stdout = w
	done := make(chan string)
	go func() {
		b, _ := io.ReadAll(r)
		done <- string(b)
	}()
	runErr := fn()
	os.Stdout = orig
	_ = w.Close()
	return <-done, runErr
}

func campaignCSV() string {
	var b strings.Builder
	b.WriteString("spend,visits,revenue\n")
	for i := 0; i < 12; i++ {
		spend := 20 + 2*i
		fmt.Fprintf(&b, "%d,%d,%d\n", spend, 80-i+3*(i%3), 3*spend+i%2)
	}
	return b.String()
}

func TestCLI_Explore(t *testing.T) {
	home := isolatedHome(t)
	csvPath := writeFile(t, home, "orders.csv", ordersCSV)

	out, err := captureStdout(t, func() error { return execCmd(t, "explore", csvPath, "--format", "json") })
	if err != nil {
		t.Fatalf("explore: %v", err)
	}
	var insights []map[string]any
	if err := json.Unmarshal([]byte(out), &insights); err != nil {
		t.Fatalf("decode explore output: %v\n%s", err, out)
	}
	if len(insights) != 4 {
		t.Fatalf("expected one insight per column, got %d", len(insights))
	}

	out, err = captureStdout(t, func() error { return execCmd(t, "explore", csvPath, "--column", "Region") })
	if err != nil {
		t.Fatalf("explore --column: %v", err)
	}
	if !strings.Contains(out, "Most common: north (3 times)") {
		t.Fatalf("unexpected explore text:\n%s", out)
	}

	if err := execCmd(t, "explore", csvPath, "--column", "nope"); err == nil || !strings.Contains(err.Error(), "column not found") {
		t.Fatalf("expected unknown column error, got %v", err)
	}
	if err := execCmd(t, "explore", csvPath, "--format", "xml"); err == nil {
		t.Fatalf("expected unsupported format to fail")
	}
}

func TestCLI_Predict(t *testing.T) {
	home := isolatedHome(t)
	csvPath := writeFile(t, home, "campaign.csv", campaignCSV())

	out, err := captureStdout(t, func() error {
		return execCmd(t, "predict", "forecast", csvPath, "--column", "revenue", "--periods", "2", "--format", "json")
	})
	if err != nil {
		t.Fatalf("predict forecast: %v", err)
	}
	var forecasts []map[string]any
	if err := json.Unmarshal([]byte(out), &forecasts); err != nil {
		t.Fatalf("decode forecast: %v\n%s", err, out)
	}
	if len(forecasts) != 1 || forecasts[0]["direction"] != "increasing" {
		t.Fatalf("unexpected forecast: %v", forecasts)
	}
	if vals, _ := forecasts[0]["values"].([]any); len(vals) != 2 {
		t.Fatalf("expected 2 forecast values, got %v", forecasts[0]["values"])
	}

	out, err = captureStdout(t, func() error {
		return execCmd(t, "predict", "drivers", csvPath, "--target", "revenue", "--format", "json")
	})
	if err != nil {
		t.Fatalf("predict drivers: %v", err)
	}
	var drivers []map[string]any
	if err := json.Unmarshal([]byte(out), &drivers); err != nil {
		t.Fatalf("decode drivers: %v\n%s", err, out)
	}
	if len(drivers) == 0 || drivers[0]["column"] != "spend" {
		t.Fatalf("expected spend as the top driver, got %v", drivers)
	}

	if err := execCmd(t, "predict", "drivers", csvPath); err == nil || !strings.Contains(err.Error(), "--target is required") {
		t.Fatalf("expected missing target error, got %v", err)
	}

	out, err = captureStdout(t, func() error {
		return execCmd(t, "predict", "whatif", csvPath, "--metric", "spend", "--impact", "revenue", "--change", "20")
	})
	if err != nil {
		t.Fatalf("predict whatif: %v", err)
	}
	if !strings.Contains(out, "Relationship: strong") {
		t.Fatalf("unexpected whatif text:\n%s", out)
	}
	if err := execCmd(t, "predict", "whatif", csvPath, "--metric", "spend"); err == nil {
		t.Fatalf("expected --impact to be required")
	}

	out, err = captureStdout(t, func() error {
		return execCmd(t, "predict", "roi", csvPath, "--investment", "spend", "--return", "revenue", "--amount", "500", "--format", "yaml")
	})
	if err != nil {
		t.Fatalf("predict roi: %v", err)
	}
	if !strings.Contains(out, "confidence: high") || !strings.Contains(out, "amount: 500") {
		t.Fatalf("unexpected roi yaml:\n%s", out)
	}

	short := writeFile(t, home, "orders.csv", ordersCSV)
	if err := execCmd(t, "predict", "forecast", short, "--column", "amount"); err == nil || !strings.Contains(err.Error(), "insufficient data") {
		t.Fatalf("expected insufficient data for 8 rows, got %v", err)
	}
}

func TestCLI_AnalyzeWithForecastAndTarget(t *testing.T) {
	home := isolatedHome(t)
	csvPath := writeFile(t, home, "campaign.csv", campaignCSV())
	out := filepath.Join(home, "run.json")

	runCmd(t, "analyze", csvPath, "--report", "none", "--format", "json", "--output", out, "--forecast", "3", "--target", "revenue")

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if f, _ := got["forecasts"].([]any); len(f) != 3 {
		t.Fatalf("expected a forecast per numeric column, got %v", got["forecasts"])
	}
	if d, _ := got["drivers"].([]any); len(d) != 2 {
		t.Fatalf("expected spend and visits as drivers, got %v", got["drivers"])
	}
	if got["target"] != "revenue" {
		t.Fatalf("unexpected target: %v", got["target"])
	}
}
