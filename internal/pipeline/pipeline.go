package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
	"github.com/KaramelBytes/insightloom-cli/internal/insight"
	"github.com/KaramelBytes/insightloom-cli/internal/report"
)

// Config is everything one run needs besides its input and renderer.
type Config struct {
	Analysis   analysis.Options
	Load       dataset.LoadOptions
	Tier       report.Tier
	MaxActions int
	// SampleRows is the number of example rows kept in the profile.
	SampleRows int
}

// DefaultConfig returns the defaults used by the CLI and server.
func DefaultConfig() Config {
	return Config{
		Analysis:   analysis.DefaultOptions(),
		Load:       dataset.DefaultLoadOptions(),
		Tier:       report.TierExecutive,
		MaxActions: insight.DefaultOptions().MaxActions,
		SampleRows: 5,
	}
}

// AnalysisRun is the result of one pipeline invocation.
type AnalysisRun struct {
	ID               string                     `json:"id" yaml:"id"`
	Source           string                     `json:"source" yaml:"source"`
	StartedAt        time.Time                  `json:"started_at" yaml:"started_at"`
	FinishedAt       time.Time                  `json:"finished_at" yaml:"finished_at"`
	Rows             int                        `json:"rows" yaml:"rows"`
	Columns          int                        `json:"columns" yaml:"columns"`
	// CleanRows is the row count after duplicate removal.
	CleanRows        int                        `json:"clean_rows" yaml:"clean_rows"`
	DuplicateRows    int                        `json:"duplicate_rows" yaml:"duplicate_rows"`
	ImputedCells     int                        `json:"imputed_cells" yaml:"imputed_cells"`
	DroppedColumns   []string                   `json:"dropped_columns,omitempty" yaml:"dropped_columns,omitempty"`
	DroppedRows      int                        `json:"dropped_rows,omitempty" yaml:"dropped_rows,omitempty"`
	OutliersReplaced int                        `json:"outliers_replaced,omitempty" yaml:"outliers_replaced,omitempty"`
	Tier             report.Tier                `json:"tier" yaml:"tier"`
	Quality          analysis.QualityScore      `json:"quality" yaml:"quality"`
	Profile          *analysis.Profile          `json:"profile" yaml:"profile"`
	Profiles         []analysis.NumericProfile  `json:"numeric_profiles,omitempty" yaml:"numeric_profiles,omitempty"`
	Findings         []analysis.Finding         `json:"findings" yaml:"findings"`
	Actions          []insight.ActionSuggestion `json:"actions" yaml:"actions"`
	Summary          insight.ExecutiveSummary   `json:"summary" yaml:"summary"`
	Forecasts        []analysis.Forecast        `json:"forecasts,omitempty" yaml:"forecasts,omitempty"`
	Drivers          []analysis.Driver          `json:"drivers,omitempty" yaml:"drivers,omitempty"`
	// Target is the column Drivers were ranked against.
	Target           string                     `json:"target,omitempty" yaml:"target,omitempty"`
	Issues           []analysis.CellIssue       `json:"issues,omitempty" yaml:"issues,omitempty"`
	Notes            []analysis.Note            `json:"notes,omitempty" yaml:"notes,omitempty"`

	Report         string `json:"report,omitempty" yaml:"report,omitempty"`
	ReportFallback bool   `json:"report_fallback,omitempty" yaml:"report_fallback,omitempty"`
	ReportError    string `json:"report_error,omitempty" yaml:"report_error,omitempty"`

	missingHigh float64
}

// Analyze runs every stage up to and including action mapping. A
// dataset.MalformedInputError aborts the run; skipped analyses become notes.
func Analyze(ctx context.Context, r io.Reader, name string, cfg Config) (*AnalysisRun, error) {
	if err := cfg.Analysis.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis options: %w", err)
	}
	run := &AnalysisRun{ID: uuid.NewString(), Source: name, StartedAt: time.Now(), Tier: cfg.Tier, missingHigh: cfg.Analysis.MissingHigh}
	if run.Tier == "" {
		run.Tier = report.TierExecutive
	}
	log := zerolog.Ctx(ctx).With().Str("run_id", run.ID).Str("source", name).Logger()

	start := time.Now()
	t, err := dataset.Load(r, name, cfg.Load)
	if err != nil {
		log.Error().Err(err).Str("stage", "load").Msg("load failed")
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	run.Rows, run.Columns = t.NumRows(), t.NumCols()
	log.Debug().Str("stage", "load").Int("rows", run.Rows).Int("columns", run.Columns).
		Bool("truncated", t.Truncated).Dur("took", time.Since(start)).Msg("stage done")

	start = time.Now()
	cleaned, err := analysis.Clean(ctx, t, cfg.Analysis)
	if err != nil {
		return nil, fmt.Errorf("clean: %w", err)
	}
	run.CleanRows = cleaned.Table.NumRows()
	run.Issues = cleaned.Issues
	run.DuplicateRows = cleaned.DuplicateRows
	run.ImputedCells = cleaned.ImputedCells
	run.DroppedColumns = cleaned.DroppedColumns
	run.DroppedRows = cleaned.DroppedRows
	run.OutliersReplaced = cleaned.OutliersReplaced
	log.Debug().Str("stage", "clean").Int("duplicates", cleaned.DuplicateRows).
		Int("imputed", cleaned.ImputedCells).Int("issues", len(cleaned.Issues)).
		Strs("dropped_columns", cleaned.DroppedColumns).Int("dropped_rows", cleaned.DroppedRows).
		Dur("took", time.Since(start)).Msg("stage done")

	start = time.Now()
	anomalies, err := analysis.DetectAnomalies(ctx, cleaned.Table, cfg.Analysis)
	if err != nil {
		return nil, fmt.Errorf("detect anomalies: %w", err)
	}
	log.Debug().Str("stage", "anomaly").Int("findings", len(anomalies.Findings)).
		Int("notes", len(anomalies.Notes)).Dur("took", time.Since(start)).Msg("stage done")

	start = time.Now()
	summary, err := analysis.Summarize(ctx, cleaned.Table, cfg.Analysis)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	log.Debug().Str("stage", "summarize").Int("findings", len(summary.Findings)).
		Int("notes", len(summary.Notes)).Dur("took", time.Since(start)).Msg("stage done")

	var predictNotes []analysis.Note
	if cfg.Analysis.ForecastPeriods > 0 {
		var notes []analysis.Note
		run.Forecasts, notes = analysis.ForecastAll(cleaned.Table, cfg.Analysis)
		predictNotes = append(predictNotes, notes...)
	}
	if target := cfg.Analysis.TargetColumn; target != "" {
		run.Target = target
		drivers, err := analysis.KeyDrivers(cleaned.Table, target, cfg.Analysis)
		if err != nil {
			predictNotes = append(predictNotes, analysis.Note{Stage: "drivers", Column: target, Message: err.Error(), Err: err})
		}
		run.Drivers = drivers
	}
	if len(run.Forecasts) > 0 || len(run.Drivers) > 0 {
		log.Debug().Str("stage", "predict").Int("forecasts", len(run.Forecasts)).
			Int("drivers", len(run.Drivers)).Msg("stage done")
	}

	var findings []analysis.Finding
	findings = append(findings, cleaned.Findings...)
	findings = append(findings, anomalies.Findings...)
	findings = append(findings, summary.Findings...)
	run.Findings = analysis.Rank(findings)
	run.Notes = append(run.Notes, cleaned.Notes...)
	run.Notes = append(run.Notes, anomalies.Notes...)
	run.Notes = append(run.Notes, summary.Notes...)
	run.Notes = append(run.Notes, predictNotes...)
	for _, n := range run.Notes {
		log.Info().Str("stage", n.Stage).Str("column", n.Column).Msg(n.Message)
	}

	run.Quality = analysis.ScoreQuality(t, cleaned.DuplicateRows)
	run.Profile = analysis.Describe(t, cfg.SampleRows)
	run.Profiles = summary.Profiles

	ds := run.DatasetSummary()
	run.Actions = insight.Map(run.Findings, ds, insight.Options{MaxActions: cfg.MaxActions})
	run.Summary = insight.Summarize(run.Findings, ds)
	log.Debug().Str("stage", "map").Int("actions", len(run.Actions)).Msg("stage done")

	run.FinishedAt = time.Now()
	return run, nil
}

// DatasetSummary is the table-level context shared by the mapper and reports.
func (r *AnalysisRun) DatasetSummary() insight.DatasetSummary {
	return insight.DatasetSummary{
		Name:          r.Source,
		Rows:          r.Rows,
		Columns:       r.Columns,
		DuplicateRows: r.DuplicateRows,
		Quality:       r.Quality,
		Profiles:      r.Profiles,
		MissingHigh:   r.missingHigh,
	}
}

// Payload is the renderer input for this run.
func (r *AnalysisRun) Payload() report.Payload {
	p := report.Payload{
		Dataset:     r.DatasetSummary(),
		Findings:    r.Findings,
		Actions:     r.Actions,
		Summary:     r.Summary,
		Tier:        r.Tier,
		GeneratedAt: r.FinishedAt,
	}
	if r.Profile != nil {
		p.Profile = r.Profile.Markdown()
	}
	return p
}

// RenderReport fills the report fields. A renderer failure is recorded and the
// deterministic fallback is used; findings and actions are never discarded.
// The renderer error is returned for callers that want to explain it.
// A nil renderer goes straight to the fallback.
func RenderReport(ctx context.Context, run *AnalysisRun, renderer report.ReportRenderer) error {
	log := zerolog.Ctx(ctx).With().Str("run_id", run.ID).Str("stage", "report").Logger()
	payload := run.Payload()
	if renderer == nil {
		run.Report = report.Fallback(payload)
		run.ReportFallback = true
		return nil
	}
	start := time.Now()
	text, err := renderer.Render(ctx, payload)
	if err != nil {
		log.Warn().Err(err).Msg("report renderer failed; using fallback")
		run.Report = report.Fallback(payload)
		run.ReportFallback = true
		run.ReportError = err.Error()
		return err
	}
	run.Report = text
	log.Debug().Dur("took", time.Since(start)).Int("chars", len(text)).Msg("stage done")
	return nil
}

// Run analyzes r and renders its report. Renderer failures do not fail the run.
func Run(ctx context.Context, r io.Reader, name string, cfg Config, renderer report.ReportRenderer) (*AnalysisRun, error) {
	run, err := Analyze(ctx, r, name, cfg)
	if err != nil {
		return nil, err
	}
	_ = RenderReport(ctx, run, renderer)
	run.FinishedAt = time.Now()
	return run, nil
}

// AnalyzeFile is Analyze over a file on disk, named after its base name.
func AnalyzeFile(ctx context.Context, path string, cfg Config) (*AnalysisRun, error) {
	f, cfg, err := openCSV(path, cfg)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Analyze(ctx, f, filepath.Base(path), cfg)
}

// PrepareFile loads and cleans a file without detection or mapping, for
// commands that explore or project from the cleaned table.
func PrepareFile(ctx context.Context, path string, cfg Config) (*analysis.CleanResult, error) {
	if err := cfg.Analysis.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis options: %w", err)
	}
	f, cfg, err := openCSV(path, cfg)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	name := filepath.Base(path)
	t, err := dataset.Load(f, name, cfg.Load)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	cleaned, err := analysis.Clean(ctx, t, cfg.Analysis)
	if err != nil {
		return nil, fmt.Errorf("clean: %w", err)
	}
	return cleaned, nil
}

func openCSV(path string, cfg Config) (*os.File, Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cfg, fmt.Errorf("open csv: %w", err)
	}
	if cfg.Load.Delimiter == 0 && strings.EqualFold(filepath.Ext(path), ".tsv") {
		cfg.Load.Delimiter = '\t'
	}
	return f, cfg, nil
}

// RunFile is Run over a file on disk.
func RunFile(ctx context.Context, path string, cfg Config, renderer report.ReportRenderer) (*AnalysisRun, error) {
	run, err := AnalyzeFile(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	_ = RenderReport(ctx, run, renderer)
	run.FinishedAt = time.Now()
	return run, nil
}
