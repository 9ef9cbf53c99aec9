package analysis

import "fmt"

// ImputationStrategy selects how missing numeric cells are filled.
type ImputationStrategy string

const (
	ImputeMean     ImputationStrategy = "mean"
	ImputeMedian   ImputationStrategy = "median"
	ImputeFlagOnly ImputationStrategy = "flag-only"
)

// MissingHandling selects what the cleaner does with incomplete data.
type MissingHandling string

const (
	// MissingImpute fills numeric gaps with the imputation strategy.
	MissingImpute MissingHandling = "impute"
	// MissingDropCols removes columns missing more than DropColumnThreshold
	// and imputes the rest.
	MissingDropCols MissingHandling = "drop-cols"
	MissingDropRows MissingHandling = "drop-rows"
	// MissingFillMode fills every column with its most common value.
	MissingFillMode MissingHandling = "fill-mode"
)

// OutlierMethod selects the outlier rule for numeric columns.
type OutlierMethod string

const (
	// MethodAuto uses IQR fences for skewed columns and z-scores otherwise.
	MethodAuto   OutlierMethod = "auto"
	MethodZScore OutlierMethod = "zscore"
	MethodIQR    OutlierMethod = "iqr"
)

// Options controls cleaning, anomaly detection and summarization.
type Options struct {
	// OutlierThreshold is the |z| cutoff for the z-score rule.
	OutlierThreshold float64
	// IQRMultiplier widens the [Q1, Q3] fences for the IQR rule.
	IQRMultiplier float64
	OutlierMethod OutlierMethod
	// SkewThreshold is the |skewness| above which MethodAuto switches to IQR.
	SkewThreshold        float64
	MaxOutliersPerColumn int

	CorrelationThreshold float64
	Imputation           ImputationStrategy
	DropDuplicates       bool
	MissingHandling      MissingHandling
	DropColumnThreshold  float64
	// RemoveOutliers replaces values outside the IQR fences with the column
	// median during cleaning.
	RemoveOutliers bool

	// MinSamples is the fewest observed values an analysis will run on.
	MinSamples int

	// Missing-data severity cutoffs, as fractions of rows.
	MissingHigh   float64
	MissingMedium float64
	// RowMissingThreshold flags rows missing more than this fraction of cells.
	RowMissingThreshold float64

	// TrendSignificance is the |slope / stderr| needed to call a trend.
	TrendSignificance float64
	// AssumeSequential treats row order as time when no datetime column exists.
	AssumeSequential bool
	// TimeColumn overrides the first datetime column as the ordering key.
	TimeColumn string

	ConcentrationThreshold float64

	// TargetColumn, when set, ranks the other numeric columns as its drivers.
	TargetColumn string
	// ForecastPeriods extends each trending column this many steps ahead; 0 disables.
	ForecastPeriods int
}

// DefaultOptions returns the thresholds used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		OutlierThreshold:       3.0,
		IQRMultiplier:          1.5,
		OutlierMethod:          MethodAuto,
		SkewThreshold:          1.0,
		MaxOutliersPerColumn:   50,
		CorrelationThreshold:   0.6,
		Imputation:             ImputeMedian,
		DropDuplicates:         true,
		MissingHandling:        MissingImpute,
		DropColumnThreshold:    0.70,
		MinSamples:             5,
		MissingHigh:            0.30,
		MissingMedium:          0.10,
		RowMissingThreshold:    0.30,
		TrendSignificance:      2.0,
		AssumeSequential:       true,
		ConcentrationThreshold: 0.70,
	}
}

// Validate rejects values that would make an analysis meaningless.
func (o Options) Validate() error {
	switch o.Imputation {
	case ImputeMean, ImputeMedian, ImputeFlagOnly:
	default:
		return fmt.Errorf("invalid imputation strategy %q (use mean|median|flag-only)", o.Imputation)
	}
	switch o.MissingHandling {
	case "", MissingImpute, MissingDropCols, MissingDropRows, MissingFillMode:
	default:
		return fmt.Errorf("invalid missing handling %q (use impute|drop-cols|drop-rows|fill-mode)", o.MissingHandling)
	}
	if o.DropColumnThreshold <= 0 || o.DropColumnThreshold > 1 {
		return fmt.Errorf("drop column threshold must be in (0, 1], got %v", o.DropColumnThreshold)
	}
	if o.ForecastPeriods < 0 {
		return fmt.Errorf("forecast periods must be >= 0, got %d", o.ForecastPeriods)
	}
	switch o.OutlierMethod {
	case MethodAuto, MethodZScore, MethodIQR:
	default:
		return fmt.Errorf("invalid outlier method %q (use auto|zscore|iqr)", o.OutlierMethod)
	}
	if o.OutlierThreshold <= 0 {
		return fmt.Errorf("outlier threshold must be > 0, got %v", o.OutlierThreshold)
	}
	if o.IQRMultiplier <= 0 {
		return fmt.Errorf("iqr multiplier must be > 0, got %v", o.IQRMultiplier)
	}
	if o.CorrelationThreshold <= 0 || o.CorrelationThreshold > 1 {
		return fmt.Errorf("correlation threshold must be in (0, 1], got %v", o.CorrelationThreshold)
	}
	if o.MinSamples < 2 {
		return fmt.Errorf("min samples must be >= 2, got %d", o.MinSamples)
	}
	if o.MissingMedium > o.MissingHigh {
		return fmt.Errorf("missing medium cutoff %.2f exceeds high cutoff %.2f", o.MissingMedium, o.MissingHigh)
	}
	return nil
}
