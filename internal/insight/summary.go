package insight

import (
	"fmt"

	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
)

// KeyMetric is a headline numeric column as shown to business readers.
type KeyMetric struct {
	Name        string  `json:"name" yaml:"name"`
	Average     float64 `json:"average" yaml:"average"`
	Trend       string  `json:"trend" yaml:"trend"`
	Variability string  `json:"variability" yaml:"variability"`
	Range       string  `json:"range" yaml:"range"`
}

// ExecutiveSummary condenses a run into alerts and opportunities.
type ExecutiveSummary struct {
	DatasetSize    string      `json:"dataset_size" yaml:"dataset_size"`
	Recommendation string      `json:"recommendation" yaml:"recommendation"`
	KeyMetrics     []KeyMetric `json:"key_metrics" yaml:"key_metrics"`
	Alerts         []string    `json:"alerts" yaml:"alerts"`
	Opportunities  []string    `json:"opportunities" yaml:"opportunities"`
}

const maxKeyMetrics = 3

// Summarize builds the executive summary from findings and the dataset profile.
func Summarize(findings []analysis.Finding, s DatasetSummary) ExecutiveSummary {
	es := ExecutiveSummary{
		DatasetSize:    fmt.Sprintf("%d records covering %d different measurements", s.Rows, s.Columns),
		Recommendation: Recommendation(s.Quality.Grade),
	}

	cutoff := s.MissingHigh
	if cutoff <= 0 {
		cutoff = analysis.DefaultOptions().MissingHigh
	}
	trends := map[string]*analysis.TrendDetail{}
	var declining, volatile, growing, stable, highMissing int
	for _, f := range findings {
		switch f.Kind {
		case analysis.KindTrend:
			trends[f.Column()] = f.Trend
			switch f.Trend.Direction {
			case analysis.TrendDecreasing:
				declining++
			case analysis.TrendIncreasing:
				growing++
			case analysis.TrendFlat:
				if f.Trend.CV < 10 {
					stable++
				}
			}
			if f.Trend.CV > 100 {
				volatile++
			}
		case analysis.KindMissingData:
			if f.Missing.Scope == "column" && f.Missing.Fraction > cutoff {
				highMissing++
			}
		}
	}

	for _, p := range s.Profiles {
		if len(es.KeyMetrics) == maxKeyMetrics {
			break
		}
		if analysis.IsIdentifier(p.Column) {
			continue
		}
		km := KeyMetric{
			Name:        Title(p.Column),
			Average:     p.Mean,
			Trend:       "Not assessed",
			Variability: "Low",
			Range:       fmt.Sprintf("%.1f to %.1f", p.Min, p.Max),
		}
		if p.CV > 50 {
			km.Variability = "High"
		}
		if d, ok := trends[p.Column]; ok {
			km.Trend = Title(d.Direction)
		}
		es.KeyMetrics = append(es.KeyMetrics, km)
	}

	if declining > 0 {
		es.Alerts = append(es.Alerts, fmt.Sprintf("%d metric(s) showing decline, requires investigation", declining))
	}
	if volatile > 0 {
		es.Alerts = append(es.Alerts, fmt.Sprintf("%d metric(s) highly volatile, check for data quality issues", volatile))
	}
	if highMissing > 0 {
		es.Alerts = append(es.Alerts, fmt.Sprintf("%d field(s) missing more than %.0f%% of data, impacts analysis reliability", highMissing, cutoff*100))
	}
	if s.Rows > 0 {
		if pct := float64(s.DuplicateRows) * 100 / float64(s.Rows); pct > 5 {
			es.Alerts = append(es.Alerts, fmt.Sprintf("%.1f%% duplicate records detected, may inflate results", pct))
		}
	}

	if growing > 0 {
		es.Opportunities = append(es.Opportunities, fmt.Sprintf("%d metric(s) growing, identify and replicate success factors", growing))
	}
	if stable > 0 {
		es.Opportunities = append(es.Opportunities, fmt.Sprintf("%d stable metric(s), suited to reliable forecasting", stable))
	}
	if len(es.Opportunities) == 0 {
		es.Opportunities = []string{"Continue monitoring current performance trends"}
	}
	return es
}

// Recommendation is the one-line guidance for a quality grade.
func Recommendation(grade string) string {
	switch grade {
	case "Excellent":
		return "Your data is pristine. Continue current practices."
	case "Very Good":
		return "Minor improvements needed, but generally reliable."
	case "Good":
		return "Some cleanup needed for optimal analysis."
	case "Fair":
		return "Significant quality issues, prioritize data cleanup."
	default:
		return "Critical quality issues, data needs major cleanup before use."
	}
}
