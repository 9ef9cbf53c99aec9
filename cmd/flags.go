package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
	cfgpkg "github.com/KaramelBytes/insightloom-cli/internal/config"
	"github.com/KaramelBytes/insightloom-cli/internal/pipeline"
	"github.com/KaramelBytes/insightloom-cli/internal/report"
)

// analysisFlags are the loader and threshold flags shared by analyze and analyze-batch.
type analysisFlags struct {
	delimiter      string
	decimal        string
	thousands      string
	maxRows        int
	sampleRows     int
	outlierThr     float64
	iqrMult        float64
	outlierMethod  string
	corrThr        float64
	imputation     string
	minSamples     int
	keepDuplicates bool
	maxActions     int
	tier           string
	missing        string
	dropColThr     float64
	removeOutliers bool
	timeColumn     string
	target         string
	forecast       int
}

func (f *analysisFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | '|' (sniffed if omitted)")
	fs.StringVar(&f.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	fs.StringVar(&f.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	fs.IntVar(&f.maxRows, "max-rows", 0, "maximum rows to process (0 = unlimited)")
	fs.IntVar(&f.sampleRows, "sample-rows", 5, "number of sample rows in the dataset profile")
	fs.Float64Var(&f.outlierThr, "outlier-threshold", 0, "z-score cutoff for outliers (default from config, 3.0)")
	fs.Float64Var(&f.iqrMult, "iqr-multiplier", 0, "IQR fence multiplier (default from config, 1.5)")
	fs.StringVar(&f.outlierMethod, "outlier-method", "", "outlier method: auto|zscore|iqr")
	fs.Float64Var(&f.corrThr, "correlation-threshold", 0, "minimum |r| reported as a correlation (default from config, 0.6)")
	fs.StringVar(&f.imputation, "imputation", "", "missing value strategy: mean|median|flag-only")
	fs.IntVar(&f.minSamples, "min-samples", 0, "minimum observed values per analysis")
	fs.BoolVar(&f.keepDuplicates, "keep-duplicates", false, "report duplicate rows but keep them in the cleaned table")
	fs.IntVar(&f.maxActions, "max-actions", 0, "cap on suggested actions (default from config, 10)")
	fs.StringVar(&f.tier, "tier", "", "report tier: executive|full|technical")
	fs.StringVar(&f.missing, "missing", "", "missing data handling: impute|drop-cols|drop-rows|fill-mode")
	fs.Float64Var(&f.dropColThr, "drop-column-threshold", 0, "missing fraction above which drop-cols removes a column (default from config, 0.70)")
	fs.BoolVar(&f.removeOutliers, "remove-outliers", false, "replace values outside the IQR fences with the column median before analysis")
	fs.StringVar(&f.timeColumn, "time-column", "", "datetime column that orders rows for trends and forecasts")
	fs.StringVar(&f.target, "target", "", "numeric column to rank key drivers against")
	fs.IntVar(&f.forecast, "forecast", 0, "forecast each numeric column this many periods ahead (0 = off)")
}

// pipelineConfig layers config-file values and then explicitly set flags over the defaults.
func (f *analysisFlags) pipelineConfig(fs *pflag.FlagSet, c *cfgpkg.Global) (pipeline.Config, error) {
	pc := pipeline.DefaultConfig()
	if c != nil {
		pc.Analysis = c.AnalysisOptions()
		if c.MaxActions > 0 {
			pc.MaxActions = c.MaxActions
		}
		if c.ReportTier != "" {
			tier, err := report.ParseTier(c.ReportTier)
			if err != nil {
				return pc, fmt.Errorf("config report_tier: %w", err)
			}
			pc.Tier = tier
		}
	}
	o := &pc.Analysis
	if fs.Changed("outlier-threshold") {
		o.OutlierThreshold = f.outlierThr
	}
	if fs.Changed("iqr-multiplier") {
		o.IQRMultiplier = f.iqrMult
	}
	if fs.Changed("outlier-method") {
		o.OutlierMethod = analysis.OutlierMethod(strings.ToLower(f.outlierMethod))
	}
	if fs.Changed("correlation-threshold") {
		o.CorrelationThreshold = f.corrThr
	}
	if fs.Changed("imputation") {
		o.Imputation = analysis.ImputationStrategy(strings.ToLower(f.imputation))
	}
	if fs.Changed("min-samples") {
		o.MinSamples = f.minSamples
	}
	if fs.Changed("keep-duplicates") {
		o.DropDuplicates = !f.keepDuplicates
	}
	if fs.Changed("missing") {
		o.MissingHandling = analysis.MissingHandling(strings.ToLower(f.missing))
	}
	if fs.Changed("drop-column-threshold") {
		o.DropColumnThreshold = f.dropColThr
	}
	if fs.Changed("remove-outliers") {
		o.RemoveOutliers = f.removeOutliers
	}
	if fs.Changed("time-column") {
		o.TimeColumn = strings.TrimSpace(f.timeColumn)
	}
	if fs.Changed("target") {
		o.TargetColumn = strings.TrimSpace(f.target)
	}
	if fs.Changed("forecast") {
		o.ForecastPeriods = f.forecast
	}
	if fs.Changed("max-actions") {
		pc.MaxActions = f.maxActions
	}
	if fs.Changed("tier") {
		tier, err := report.ParseTier(f.tier)
		if err != nil {
			return pc, err
		}
		pc.Tier = tier
	}
	if err := o.Validate(); err != nil {
		return pc, err
	}

	pc.SampleRows = f.sampleRows
	pc.Load.MaxRows = f.maxRows
	switch f.delimiter {
	case "":
	case ",":
		pc.Load.Delimiter = ','
	case "\t", "tab":
		pc.Load.Delimiter = '\t'
	case ";":
		pc.Load.Delimiter = ';'
	case "|", "pipe":
		pc.Load.Delimiter = '|'
	default:
		return pc, fmt.Errorf("unsupported --delimiter: %s", f.delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(f.decimal)) {
	case ",", "comma":
		pc.Load.DecimalSeparator = ','
	case ".", "dot":
		pc.Load.DecimalSeparator = '.'
	case "":
	default:
		return pc, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", f.decimal)
	}
	switch strings.ToLower(strings.TrimSpace(f.thousands)) {
	case ",":
		pc.Load.ThousandsSeparator = ','
	case ".":
		pc.Load.ThousandsSeparator = '.'
	case "space", " ":
		pc.Load.ThousandsSeparator = ' '
	case "":
	default:
		return pc, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", f.thousands)
	}
	return pc, nil
}
