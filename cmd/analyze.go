package cmd

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/insightloom-cli/internal/ai"
	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
	"github.com/KaramelBytes/insightloom-cli/internal/pipeline"
	"github.com/KaramelBytes/insightloom-cli/internal/report"
)

// Report modes for --report.
const (
	reportAI       = "ai"
	reportFallback = "fallback"
	reportNone     = "none"
)

var (
	anaFlags       analysisFlags
	anaReport      string
	anaProvider    string
	anaModel       string
	anaMaxTokens   int
	anaTemp        float64
	anaDryRun      bool
	anaPrintPrompt bool
	anaBudgetLimit float64
	anaStream      bool
	anaOllamaHost  string
	anaTimeoutSec  int
	anaOutputPath  string
	anaOutputFmt   string
	anaQuiet       bool
	anaSave        bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.csv>",
	Short: "Analyze a CSV and write findings, actions and a business report",
	Example: `  insightloom analyze sales.csv
  insightloom analyze sales.csv --tier full --provider anthropic
  insightloom analyze sales.csv --report fallback --format json --output run.json
  insightloom analyze sales.csv --dry-run --budget-limit 0.05`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := cmd.Flags()
		pc, err := anaFlags.pipelineConfig(fs, cfg)
		if err != nil {
			return err
		}
		mode := strings.ToLower(anaReport)
		switch mode {
		case reportAI, reportFallback, reportNone:
		default:
			return fmt.Errorf("unsupported --report: %s (use ai|fallback|none)", anaReport)
		}
		quiet := anaQuiet || (anaOutputFmt != "" && anaOutputFmt != "text")

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		run, err := pipeline.AnalyzeFile(ctx, args[0], pc)
		if err != nil {
			var malformed *dataset.MalformedInputError
			if errors.As(err, &malformed) {
				return fmt.Errorf("%s: %w", explainError(err, "", ""), err)
			}
			return err
		}

		var renderer report.ReportRenderer
		streamed := false
		switch mode {
		case reportFallback:
			renderer = report.FallbackRenderer{}
		case reportAI:
			r, providerName, err := buildAIRenderer(fs, run, quiet)
			if err != nil {
				// Findings still reach the caller.
				fmt.Fprintf(os.Stderr, "⚠ AI report unavailable: %s. Using the built-in report.\n", explainError(err, providerName, ""))
				_ = pipeline.RenderReport(ctx, run, report.FallbackRenderer{})
				run.ReportFallback = true
				run.ReportError = err.Error()
				if werr := writeAnalyzeOutput(run, false); werr != nil {
					return werr
				}
				return err
			}
			if r == nil {
				return nil
			}
			if !quiet {
				fmt.Printf("⚙ Generating %s report with %s/%s ...\n", run.Tier, providerName, r.Model)
			}
			if anaStream && (anaOutputFmt == "" || anaOutputFmt == "text") {
				if !quiet {
					fmt.Println("\n=== Report (streaming) ===")
				}
				r.OnDelta = func(d string) { fmt.Print(d) }
				streamed = true
			}
			timeout := time.Duration(anaTimeoutSec) * time.Second
			if timeout <= 0 {
				timeout = 180 * time.Second
			}
			rctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := pipeline.RenderReport(rctx, run, r); err != nil {
				streamed = false
				fmt.Fprintf(os.Stderr, "⚠ AI report failed: %s. Using the built-in report.\n", explainError(err, providerName, r.Model))
			} else if streamed {
				fmt.Println()
			}
		}
		if renderer != nil {
			_ = pipeline.RenderReport(ctx, run, renderer)
		}

		if err := writeAnalyzeOutput(run, streamed); err != nil {
			return err
		}
		if anaSave {
			return saveRun(run, quiet)
		}
		return nil
	},
}

func writeAnalyzeOutput(run *pipeline.AnalysisRun, streamed bool) error {
	return formatAndWriteOutput(run, outputOptions{
		Format:         anaOutputFmt,
		Quiet:          anaQuiet,
		OutputPath:     anaOutputPath,
		ReportStreamed: streamed,
		Writer:         os.Stdout,
	})
}

// buildAIRenderer prices the prompt, enforces the budget and handles
// --dry-run/--print-prompt. It returns a nil renderer after a dry run.
func buildAIRenderer(fs *pflag.FlagSet, run *pipeline.AnalysisRun, quiet bool) (*report.AIRenderer, string, error) {
	providerName := resolveProvider(cfg, anaProvider)
	model := selectModel(cfg, anaModel, providerName)
	maxTokens := anaMaxTokens
	if maxTokens <= 0 && cfg != nil && cfg.MaxTokens > 0 {
		maxTokens = cfg.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	temp := 0.3
	if cfg != nil && cfg.Temperature > 0 {
		temp = cfg.Temperature
	}
	if fs.Changed("temp") {
		temp = anaTemp
	}

	prompt, tokens := report.BuildPrompt(run.Payload())
	if !quiet {
		fmt.Printf("Prompt tokens≈%d, tier=%s, model=%s\n", tokens, run.Tier, model)
	}
	var estCost float64
	if mi, ok := ai.LookupModel(model); ok {
		if mi.ContextTokens > 0 && tokens+maxTokens > mi.ContextTokens && !quiet {
			fmt.Printf("⚠ Prompt (%d tokens) + max-tokens (%d) exceeds %s context window (~%d tokens).\n",
				tokens, maxTokens, mi.Name, mi.ContextTokens)
		}
		if cost, ok := ai.EstimateCostUSD(model, tokens, maxTokens); ok {
			estCost = cost
			if !quiet {
				fmt.Printf("Estimated max cost: ~$%.4f (in %.4f/out %.4f per 1K tokens)\n", cost, mi.InputPerK, mi.OutputPerK)
			}
		}
	}
	if err := enforceBudget(estCost, anaBudgetLimit); err != nil {
		return nil, providerName, err
	}

	if anaDryRun {
		sum := sha1.Sum([]byte(prompt))
		if !quiet {
			fmt.Println("\n--dry-run: no API call will be made. Prompt preview below --")
			fmt.Printf("Request ID (dry-run): sim_%x\n", sum[:6])
		}
		fmt.Println(prompt)
		return nil, providerName, nil
	}
	if anaPrintPrompt && !quiet {
		fmt.Println("\n--print-prompt: sending the following prompt --")
		fmt.Println(prompt)
	}

	rt, providerName, err := buildRuntime(cfg, runtimeOptions{ProviderFlag: anaProvider, OllamaHost: anaOllamaHost})
	if err != nil {
		return nil, providerName, err
	}
	r := report.NewAIRenderer(rt, providerName, model)
	r.MaxTokens = maxTokens
	r.Temperature = temp
	return r, providerName, nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	fs := analyzeCmd.Flags()
	anaFlags.register(fs)
	fs.StringVar(&anaReport, "report", reportAI, "report mode: ai|fallback|none")
	fs.StringVar(&anaProvider, "provider", "", "AI provider: openrouter|anthropic|ollama (default from config)")
	fs.StringVar(&anaModel, "model", "", "override model (default from config or provider)")
	fs.IntVar(&anaMaxTokens, "max-tokens", 0, "max tokens for the report")
	fs.Float64Var(&anaTemp, "temp", 0, "sampling temperature")
	fs.BoolVar(&anaDryRun, "dry-run", false, "build the report prompt and print it without calling the API")
	fs.BoolVar(&anaPrintPrompt, "print-prompt", false, "print the prompt being sent to the API")
	fs.Float64Var(&anaBudgetLimit, "budget-limit", 0, "fail if estimated max cost (USD) exceeds this budget")
	fs.BoolVar(&anaStream, "stream", false, "stream the report if supported by the provider")
	fs.StringVar(&anaOllamaHost, "ollama-host", "", "override Ollama host (e.g., http://127.0.0.1:11434)")
	fs.IntVar(&anaTimeoutSec, "timeout-sec", 180, "report request timeout in seconds")
	fs.StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the run in --format")
	fs.StringVar(&anaOutputFmt, "format", "text", "output format: text|markdown|json|yaml")
	fs.BoolVar(&anaQuiet, "quiet", false, "suppress non-essential output")
	fs.BoolVar(&anaSave, "save", false, "keep the run under ~/.insightloom/runs for 'runs list/show'")
}
