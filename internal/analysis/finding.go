package analysis

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

// Kind identifies what a Finding describes.
type Kind string

const (
	KindOutlier       Kind = "outlier"
	KindMissingData   Kind = "missing_data"
	KindDuplicate     Kind = "duplicate"
	KindTrend         Kind = "trend"
	KindCorrelation   Kind = "correlation"
	KindQualityIssue  Kind = "quality_issue"
	KindConcentration Kind = "concentration"
)

// Severity is the tier used by action templates.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities low < medium < high.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Finding is one statistical observation from a pipeline run.
// EffectSize is normalized to [0, 1] so findings of different kinds rank together.
type Finding struct {
	ID          string   `json:"id" yaml:"id"`
	Kind        Kind     `json:"kind" yaml:"kind"`
	Columns     []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	Rows        []int    `json:"rows,omitempty" yaml:"rows,omitempty"`
	EffectSize  float64  `json:"effect_size" yaml:"effect_size"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description" yaml:"description"`

	Outlier       *OutlierDetail       `json:"outlier,omitempty" yaml:"outlier,omitempty"`
	Missing       *MissingDetail       `json:"missing,omitempty" yaml:"missing,omitempty"`
	Duplicate     *DuplicateDetail     `json:"duplicate,omitempty" yaml:"duplicate,omitempty"`
	Trend         *TrendDetail         `json:"trend,omitempty" yaml:"trend,omitempty"`
	Correlation   *CorrelationDetail   `json:"correlation,omitempty" yaml:"correlation,omitempty"`
	Quality       *QualityDetail       `json:"quality,omitempty" yaml:"quality,omitempty"`
	Concentration *ConcentrationDetail `json:"concentration,omitempty" yaml:"concentration,omitempty"`
}

// Column returns the first affected column, or "" for table-wide findings.
func (f Finding) Column() string {
	if len(f.Columns) == 0 {
		return ""
	}
	return f.Columns[0]
}

type OutlierDetail struct {
	Row       int     `json:"row" yaml:"row"`
	Value     float64 `json:"value" yaml:"value"`
	Method    string  `json:"method" yaml:"method"`
	Deviation float64 `json:"deviation" yaml:"deviation"`
	Lower     float64 `json:"lower" yaml:"lower"`
	Upper     float64 `json:"upper" yaml:"upper"`
}

// MissingDetail covers one column (Scope "column") or a set of sparse rows (Scope "rows").
type MissingDetail struct {
	Scope    string  `json:"scope" yaml:"scope"`
	Missing  int     `json:"missing" yaml:"missing"`
	Total    int     `json:"total" yaml:"total"`
	Fraction float64 `json:"fraction" yaml:"fraction"`
	Imputed  int     `json:"imputed,omitempty" yaml:"imputed,omitempty"`
	Strategy string  `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

type DuplicateDetail struct {
	FirstRow      int   `json:"first_row" yaml:"first_row"`
	DuplicateRows []int `json:"duplicate_rows" yaml:"duplicate_rows"`
	Dropped       bool  `json:"dropped" yaml:"dropped"`
}

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendFlat       = "flat"
)

type TrendDetail struct {
	Direction      string  `json:"direction" yaml:"direction"`
	Slope          float64 `json:"slope" yaml:"slope"`
	TStat          float64 `json:"t_stat" yaml:"t_stat"`
	R              float64 `json:"r" yaml:"r"`
	RelativeChange float64 `json:"relative_change" yaml:"relative_change"`
	CV             float64 `json:"cv" yaml:"cv"`
	N              int     `json:"n" yaml:"n"`
	OrderedBy      string  `json:"ordered_by" yaml:"ordered_by"`
}

type CorrelationDetail struct {
	R         float64 `json:"r" yaml:"r"`
	N         int     `json:"n" yaml:"n"`
	Direction string  `json:"direction" yaml:"direction"`
}

// Quality issue identifiers.
const (
	IssueConstant        = "constant_column"
	IssueHighCardinality = "high_cardinality"
	IssueMostlyMissing   = "mostly_missing"
	IssueExcessiveZeros  = "excessive_zeros"
	IssueNegatives       = "unexpected_negatives"
)

type QualityDetail struct {
	Issue    string  `json:"issue" yaml:"issue"`
	Count    int     `json:"count" yaml:"count"`
	Fraction float64 `json:"fraction" yaml:"fraction"`
}

type ConcentrationDetail struct {
	TopValue   string  `json:"top_value" yaml:"top_value"`
	Share      float64 `json:"share" yaml:"share"`
	Categories int     `json:"categories" yaml:"categories"`
}

// severityCutoffs holds the (medium, high) effect-size cutoffs per kind.
// Missing data uses Options instead.
var severityCutoffs = map[Kind][2]float64{
	KindOutlier:       {0.75, 1.0},
	KindDuplicate:     {0.01, 0.05},
	KindTrend:         {0.4, 0.7},
	KindCorrelation:   {0.75, 0.9},
	KindQualityIssue:  {0.3, 0.7},
	KindConcentration: {0.8, 0.9},
}

func severityFor(kind Kind, effect float64, opt Options) Severity {
	medium, high := 0.0, 0.0
	if kind == KindMissingData {
		medium, high = opt.MissingMedium, opt.MissingHigh
	} else {
		c := severityCutoffs[kind]
		medium, high = c[0], c[1]
	}
	switch {
	case effect >= high:
		return SeverityHigh
	case effect >= medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func newFinding(kind Kind, effect float64, opt Options) Finding {
	effect = clamp01(effect)
	return Finding{
		ID:         uuid.NewString(),
		Kind:       kind,
		EffectSize: effect,
		Severity:   severityFor(kind, effect, opt),
	}
}

// Rank returns findings ordered by effect size descending. Ties fall back
// to severity, kind and column so output is stable.
func Rank(findings []Finding) []Finding {
	out := make([]Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.EffectSize != b.EffectSize {
			return a.EffectSize > b.EffectSize
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Column() < b.Column()
	})
	return out
}

// CountBySeverity tallies findings per tier.
func CountBySeverity(findings []Finding) map[Severity]int {
	out := map[Severity]int{}
	for _, f := range findings {
		out[f.Severity]++
	}
	return out
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
