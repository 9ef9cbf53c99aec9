package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KaramelBytes/insightloom-cli/internal/pipeline"
	"github.com/KaramelBytes/insightloom-cli/internal/utils"
)

type outputOptions struct {
	Format     string
	Quiet      bool
	OutputPath string
	// ReportStreamed suppresses the report on stdout when it was already streamed.
	ReportStreamed bool
	Writer         io.Writer
}

// encodeRun renders a run in one of the supported formats.
func encodeRun(run *pipeline.AnalysisRun, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "text", "markdown", "md":
		return []byte(run.Markdown()), nil
	case "json":
		return utils.PrettyJSON(run)
	case "yaml", "yml":
		return utils.YAML(run)
	}
	return nil, fmt.Errorf("unsupported --format: %s (use text|markdown|json|yaml)", format)
}

func formatAndWriteOutput(run *pipeline.AnalysisRun, opts outputOptions) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	format := strings.ToLower(opts.Format)
	body, err := encodeRun(run, format)
	if err != nil {
		return err
	}

	switch {
	case format == "" || format == "text":
		if !opts.Quiet {
			fmt.Fprintf(w, "✓ Analyzed %s: %d rows, %d columns\n", run.Source, run.Rows, run.Columns)
			fmt.Fprintf(w, "  Data quality: %.1f%% (%s)\n", run.Quality.Score, run.Quality.Grade)
			fmt.Fprintf(w, "  Findings: %d (%s)\n", len(run.Findings), run.SeverityLine())
			fmt.Fprintf(w, "  Actions: %d (%s)\n", len(run.Actions), run.PriorityLine())
			if len(run.DroppedColumns) > 0 {
				fmt.Fprintf(w, "  Dropped columns: %s\n", strings.Join(run.DroppedColumns, ", "))
			}
			for _, d := range run.Drivers {
				fmt.Fprintf(w, "  Driver of %s: %s (r=%+.2f, %s)\n", run.Target, d.Column, d.R, d.Impact)
			}
			for _, f := range run.Forecasts {
				fmt.Fprintf(w, "  Forecast %s: %.2f → %.2f over %d periods (%+.1f%%)\n", f.Column, f.CurrentMean, f.ForecastMean, f.Periods, f.ChangePct)
			}
			for _, n := range run.Notes {
				fmt.Fprintf(w, "  ⚠ %s\n", n.Message)
			}
		}
		switch {
		case run.Report != "" && !opts.ReportStreamed:
			fmt.Fprintln(w, "\n=== Report ===")
			fmt.Fprintln(w, run.Report)
		case run.Report == "":
			fmt.Fprintln(w)
			fmt.Fprint(w, string(body))
		}
	default:
		fmt.Fprintln(w, strings.TrimRight(string(body), "\n"))
	}

	if opts.OutputPath == "" {
		return nil
	}
	if err := utils.SafeWriteFile(opts.OutputPath, body); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if !opts.Quiet && (format == "" || format == "text") {
		fmt.Fprintf(w, "\n💾 Saved output to %s\n", opts.OutputPath)
	}
	return nil
}
