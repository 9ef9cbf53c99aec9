package pipeline

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
	"github.com/KaramelBytes/insightloom-cli/internal/insight"
)

// Markdown renders the whole run: overview, findings, actions, notes and report.
func (r *AnalysisRun) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis of %s\n\n", r.Source)
	fmt.Fprintf(&b, "- Run: `%s`\n", r.ID)
	fmt.Fprintf(&b, "- Rows: %d (%d after cleaning), Columns: %d\n", r.Rows, r.CleanRows, r.Columns)
	fmt.Fprintf(&b, "- Data quality: %.1f%% (%s), completeness %.1f%%, uniqueness %.1f%%\n",
		r.Quality.Score, r.Quality.Grade, r.Quality.Completeness, r.Quality.Uniqueness)
	if r.DuplicateRows > 0 || r.ImputedCells > 0 {
		fmt.Fprintf(&b, "- Duplicate rows: %d, imputed cells: %d\n", r.DuplicateRows, r.ImputedCells)
	}
	if len(r.DroppedColumns) > 0 {
		fmt.Fprintf(&b, "- Dropped columns: %s\n", strings.Join(r.DroppedColumns, ", "))
	}
	if r.DroppedRows > 0 || r.OutliersReplaced > 0 {
		fmt.Fprintf(&b, "- Dropped incomplete rows: %d, outliers replaced with median: %d\n", r.DroppedRows, r.OutliersReplaced)
	}

	b.WriteString("\n## Findings\n\n")
	if len(r.Findings) == 0 {
		b.WriteString("No findings.\n")
	} else {
		b.WriteString("| Severity | Kind | Columns | Effect | Description |\n|---|---|---|---|---|\n")
		for _, f := range r.Findings {
			fmt.Fprintf(&b, "| %s | %s | %s | %.2f | %s |\n",
				f.Severity, f.Kind, strings.Join(f.Columns, ", "), f.EffectSize, cell(f.Description))
		}
	}

	b.WriteString("\n## Recommended actions\n\n")
	if len(r.Actions) == 0 {
		b.WriteString("No actions.\n")
	}
	for i, a := range r.Actions {
		writeAction(&b, i+1, a)
	}

	if len(r.Drivers) > 0 {
		fmt.Fprintf(&b, "\n## Key drivers of %s\n\n", r.Target)
		b.WriteString("| Column | r | Impact | Rows |\n|---|---|---|---|\n")
		for _, d := range r.Drivers {
			fmt.Fprintf(&b, "| %s | %+.2f | %s | %d |\n", d.Column, d.R, d.Impact, d.N)
		}
	}
	if len(r.Forecasts) > 0 {
		b.WriteString("\n## Forecasts\n\n")
		for _, f := range r.Forecasts {
			fmt.Fprintf(&b, "- %s (%s over %s): average %.2f now, %.2f over the next %d periods (%+.1f%%, %+.2f per period)\n",
				f.Column, f.Direction, f.OrderedBy, f.CurrentMean, f.ForecastMean, f.Periods, f.ChangePct, f.RatePerPeriod)
		}
	}

	if len(r.Issues) > 0 {
		fmt.Fprintf(&b, "\n## Cell issues\n\n%d values could not be parsed", len(r.Issues))
		for i, is := range r.Issues {
			if i == 10 {
				b.WriteString("\n- ...")
				break
			}
			fmt.Fprintf(&b, "\n- row %d, %s: %q (%s)", is.Row, is.Column, is.Raw, is.Reason)
		}
		b.WriteString("\n")
	}
	if len(r.Notes) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, n := range r.Notes {
			fmt.Fprintf(&b, "- %s: %s\n", n.Stage, n.Message)
		}
	}
	if r.Report != "" {
		b.WriteString("\n## Report\n\n")
		if r.ReportFallback && r.ReportError != "" {
			fmt.Fprintf(&b, "> AI report unavailable (%s); showing the built-in summary.\n\n", r.ReportError)
		}
		b.WriteString(strings.TrimSpace(r.Report))
		b.WriteString("\n")
	}
	return b.String()
}

func writeAction(b *strings.Builder, n int, a insight.ActionSuggestion) {
	fmt.Fprintf(b, "%d. **[%s] %s**: %s\n", n, a.Priority.Label(), a.Category, a.Action)
	fmt.Fprintf(b, "   - Why: %s\n", a.Reason)
	fmt.Fprintf(b, "   - Quick win: %s\n", a.QuickWin)
	if a.LongTerm != "" {
		fmt.Fprintf(b, "   - Long term: %s\n", a.LongTerm)
	}
	fmt.Fprintf(b, "   - Owner: %s, timeline: %s\n", a.Owner, a.Timeline)
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "/"), "\n", " ")
}

// SeverityLine is a one-line count of findings per severity.
func (r *AnalysisRun) SeverityLine() string {
	c := analysis.CountBySeverity(r.Findings)
	return fmt.Sprintf("%d high, %d medium, %d low", c[analysis.SeverityHigh], c[analysis.SeverityMedium], c[analysis.SeverityLow])
}

// PriorityLine is a one-line count of actions per priority tier.
func (r *AnalysisRun) PriorityLine() string {
	c := insight.CountByPriority(r.Actions)
	return fmt.Sprintf("%d critical, %d high, %d strategic", c[insight.PriorityCritical], c[insight.PriorityHigh], c[insight.PriorityStrategic])
}
