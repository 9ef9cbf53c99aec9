package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/insightloom-cli/internal/pipeline"
	"github.com/KaramelBytes/insightloom-cli/internal/report"
	"github.com/KaramelBytes/insightloom-cli/internal/utils"
)

var (
	abFlags       analysisFlags
	abReport      string
	abProvider    string
	abModel       string
	abOllamaHost  string
	abConcurrency int
	abOutDir      string
	abOutputFmt   string
	abQuiet       bool
)

// batchResult is one file's outcome; err is set when the file could not be analyzed.
type batchResult struct {
	path string
	run  *pipeline.AnalysisRun
	out  string
	err  error
}

var analyzeBatchCmd = &cobra.Command{
	Use:   "analyze-batch <files...>",
	Short: "Analyze multiple CSV/TSV files concurrently",
	Example: `  insightloom analyze-batch "data/*.csv" --out-dir reports
  insightloom analyze-batch a.csv b.csv --format json --out-dir out --concurrency 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		pc, err := abFlags.pipelineConfig(cmd.Flags(), cfg)
		if err != nil {
			return err
		}
		ext, err := formatExt(abOutputFmt)
		if err != nil {
			return err
		}

		var renderer report.ReportRenderer
		switch strings.ToLower(abReport) {
		case reportNone:
		case reportFallback:
			renderer = report.FallbackRenderer{}
		case reportAI:
			rt, providerName, err := buildRuntime(cfg, runtimeOptions{ProviderFlag: abProvider, OllamaHost: abOllamaHost})
			if err != nil {
				return err
			}
			r := report.NewAIRenderer(rt, providerName, selectModel(cfg, abModel, providerName))
			if cfg != nil && cfg.MaxTokens > 0 {
				r.MaxTokens = cfg.MaxTokens
			}
			if cfg != nil && cfg.Temperature > 0 {
				r.Temperature = cfg.Temperature
			}
			renderer = r
		default:
			return fmt.Errorf("unsupported --report: %s (use ai|fallback|none)", abReport)
		}

		ctx := cmd.Context()
		log := zerolog.Ctx(ctx)
		results := make([]batchResult, len(files))
		g, gctx := errgroup.WithContext(ctx)
		limit := abConcurrency
		if limit <= 0 {
			limit = 1
		}
		g.SetLimit(limit)
		for i, path := range files {
			i, path := i, path
			g.Go(func() error {
				res := batchResult{path: path}
				run, err := pipeline.AnalyzeFile(gctx, path, pc)
				if err != nil {
					res.err = err
					results[i] = res
					return nil
				}
				if renderer != nil {
					if err := pipeline.RenderReport(gctx, run, renderer); err != nil {
						log.Warn().Err(err).Str("file", path).Msg("report fell back to built-in")
					}
				}
				res.run = run
				if abOutDir != "" {
					body, err := encodeRun(run, abOutputFmt)
					if err == nil {
						res.out = filepath.Join(abOutDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"."+ext)
						err = utils.SafeWriteFile(res.out, body)
					}
					res.err = err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		failed := 0
		for i, res := range results {
			prefix := fmt.Sprintf("[%d/%d]", i+1, len(results))
			if res.err != nil {
				failed++
				fmt.Printf("%s ✗ %s: %s\n", prefix, filepath.Base(res.path), explainError(res.err, "", ""))
				continue
			}
			if abQuiet {
				continue
			}
			fmt.Printf("%s ✓ %s: %d rows, quality %.1f%% (%s), findings %d (%s), actions %d\n",
				prefix, res.run.Source, res.run.Rows, res.run.Quality.Score, res.run.Quality.Grade,
				len(res.run.Findings), res.run.SeverityLine(), len(res.run.Actions))
			if res.out != "" {
				fmt.Printf("    💾 %s\n", res.out)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(results))
		}
		return nil
	},
}

// expandInputs resolves globs and literal paths, deduplicated and sorted.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

func formatExt(format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "text", "markdown", "md":
		return "md", nil
	case "json":
		return "json", nil
	case "yaml", "yml":
		return "yaml", nil
	}
	return "", fmt.Errorf("unsupported --format: %s (use markdown|json|yaml)", format)
}

func init() {
	rootCmd.AddCommand(analyzeBatchCmd)
	fs := analyzeBatchCmd.Flags()
	abFlags.register(fs)
	fs.StringVar(&abReport, "report", reportFallback, "report mode: ai|fallback|none")
	fs.StringVar(&abProvider, "provider", "", "AI provider when --report ai")
	fs.StringVar(&abModel, "model", "", "override model when --report ai")
	fs.StringVar(&abOllamaHost, "ollama-host", "", "override Ollama host")
	fs.IntVar(&abConcurrency, "concurrency", 4, "files analyzed in parallel")
	fs.StringVar(&abOutDir, "out-dir", "", "directory for one output file per input")
	fs.StringVar(&abOutputFmt, "format", "markdown", "file format under --out-dir: markdown|json|yaml")
	fs.BoolVar(&abQuiet, "quiet", false, "only print failures")
}
