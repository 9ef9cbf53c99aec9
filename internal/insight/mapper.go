package insight

import (
	"fmt"

	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
)

// Map turns ranked findings into action suggestions. It is deterministic
// apart from generated IDs and makes no external calls.
func Map(findings []analysis.Finding, summary DatasetSummary, opt Options) []ActionSuggestion {
	var out []ActionSuggestion

	outliers := map[string][]analysis.Finding{}
	var outlierCols []string
	var dups []analysis.Finding

	for _, f := range findings {
		switch f.Kind {
		case analysis.KindMissingData:
			out = append(out, missingAction(f))
		case analysis.KindOutlier:
			col := f.Column()
			if _, ok := outliers[col]; !ok {
				outlierCols = append(outlierCols, col)
			}
			outliers[col] = append(outliers[col], f)
		case analysis.KindDuplicate:
			dups = append(dups, f)
		case analysis.KindTrend:
			out = append(out, trendActions(f)...)
		case analysis.KindCorrelation:
			out = append(out, correlationAction(f))
		case analysis.KindConcentration:
			out = append(out, concentrationAction(f))
		case analysis.KindQualityIssue:
			out = append(out, qualityAction(f))
		}
	}
	for _, col := range outlierCols {
		out = append(out, outlierAction(col, outliers[col]))
	}
	if len(dups) > 0 {
		out = append(out, duplicateAction(dups, summary))
	}
	if a, ok := datasetAction(summary); ok {
		out = append(out, a)
	}

	sortActions(out)
	if opt.MaxActions > 0 && len(out) > opt.MaxActions {
		out = out[:opt.MaxActions]
	}
	return out
}

func missingAction(f analysis.Finding) ActionSuggestion {
	d := f.Missing
	pct := d.Fraction * 100
	if d.Scope == "rows" {
		p := PriorityHigh
		if f.Severity == analysis.SeverityHigh {
			p = PriorityCritical
		}
		a := newAction(p, f.EffectSize, f.ID)
		a.Category = "Incomplete Records"
		a.Action = fmt.Sprintf("Audit the %d sparsely filled records", len(f.Rows))
		a.Reason = fmt.Sprintf("%.1f%% of records are missing most of their fields", pct)
		a.Impact = "High - Partial records distort totals and averages"
		a.QuickWin = "Pull the listed rows and check whether they came from one source or form"
		a.LongTerm = "Reject submissions that leave required fields empty"
		a.ExpectedBenefit = "Records that can be trusted end to end"
		a.Owner = "Operations Manager"
		a.Timeline = "Review within 1 week"
		return a
	}
	name := Title(f.Column())
	switch f.Severity {
	case analysis.SeverityHigh:
		a := newAction(PriorityCritical, f.EffectSize, f.ID)
		a.Category = "Data Quality Crisis"
		a.Action = fmt.Sprintf("Urgently fix data collection for '%s'", name)
		a.Reason = fmt.Sprintf("%.1f%% missing means roughly 1 in %d records lack this information", pct, oneIn(d.Fraction))
		a.Impact = "Critical - Reports and decisions based on this field are unreliable"
		a.QuickWin = fmt.Sprintf("Make '%s' a mandatory field in the data entry system", f.Column())
		a.LongTerm = "Train staff on the importance of complete data entry"
		a.ExpectedBenefit = "Reliable analysis and confident decision-making"
		a.Owner = "Data Team / Operations Lead"
		a.Timeline = "Fix within 1 week"
		return a
	case analysis.SeverityMedium:
		a := newAction(PriorityHigh, f.EffectSize, f.ID)
		a.Category = "Data Quality Issue"
		a.Action = fmt.Sprintf("Improve completeness of '%s' field", name)
		a.Reason = fmt.Sprintf("%.1f%% missing suggests inconsistent data capture", pct)
		a.Impact = "Medium - Gaps in data limit analysis accuracy"
		a.QuickWin = "Add validation rules and helpful prompts at data entry"
		a.LongTerm = "Review and update data collection procedures"
		a.ExpectedBenefit = "More complete data for better insights"
		a.Owner = "Operations Manager"
		a.Timeline = "Fix within 2-4 weeks"
		return a
	default:
		a := newAction(PriorityStrategic, f.EffectSize, f.ID)
		a.Category = "Data Monitoring"
		a.Action = fmt.Sprintf("Monitor completeness of '%s'", name)
		a.Reason = fmt.Sprintf("Only %.1f%% missing today, small gaps tend to grow unnoticed", pct)
		a.Impact = "Low - Current gaps have little effect on results"
		a.QuickWin = "Add a missing-value count for this field to the weekly data check"
		a.LongTerm = "Alert when the missing share crosses 10%"
		a.ExpectedBenefit = "Early warning before quality slips"
		a.Owner = "Data Team"
		a.Timeline = "Set up within 1 month"
		return a
	}
}

func oneIn(frac float64) int {
	if frac <= 0 {
		return 0
	}
	n := int(1/frac + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

func outlierAction(col string, fs []analysis.Finding) ActionSuggestion {
	ids := make([]string, len(fs))
	p := PriorityHigh
	var top analysis.Finding
	for i, f := range fs {
		ids[i] = f.ID
		if f.Severity == analysis.SeverityHigh {
			p = PriorityCritical
		}
		if i == 0 || f.EffectSize > top.EffectSize {
			top = f
		}
	}
	a := newAction(p, top.EffectSize, ids...)
	name := Title(col)
	a.Category = "Unusual Values"
	a.Action = fmt.Sprintf("Investigate unusual values in '%s'", name)
	if top.Outlier != nil {
		a.Reason = fmt.Sprintf("%d value(s) fall outside the expected range [%.4g, %.4g]; the most extreme is %.4g at row %d",
			len(fs), top.Outlier.Lower, top.Outlier.Upper, top.Outlier.Value, top.Outlier.Row)
	} else {
		a.Reason = fmt.Sprintf("%d value(s) fall outside the expected range", len(fs))
	}
	a.Impact = "High - Extreme values skew averages and totals"
	a.QuickWin = "Check the flagged rows against source records for entry errors"
	a.LongTerm = "Add range validation for this field at data entry"
	a.ExpectedBenefit = "Metrics that reflect normal business activity"
	a.Owner = "Data Quality Team"
	a.Timeline = "Investigate within 3 days"
	return a
}

func duplicateAction(fs []analysis.Finding, s DatasetSummary) ActionSuggestion {
	ids := make([]string, len(fs))
	p := PriorityStrategic
	var effect float64
	copies := 0
	for i, f := range fs {
		ids[i] = f.ID
		effect += f.EffectSize
		if f.Severity.Rank() >= analysis.SeverityMedium.Rank() {
			p = PriorityHigh
		}
		if f.Duplicate != nil {
			copies += len(f.Duplicate.DuplicateRows)
		}
	}
	a := newAction(p, effect, ids...)
	a.Category = "Duplicate Records"
	a.Action = "Remove duplicate records at the source"
	if s.Rows > 0 {
		a.Reason = fmt.Sprintf("%d repeated record(s) in %d groups (%.1f%% of rows) inflate counts and totals", copies, len(fs), float64(copies)*100/float64(s.Rows))
	} else {
		a.Reason = fmt.Sprintf("%d repeated record(s) in %d groups inflate counts and totals", copies, len(fs))
	}
	a.Impact = "Medium - Double counting overstates results"
	a.QuickWin = "Add a uniqueness check on export or import"
	a.LongTerm = "Enforce a unique key in the system of record"
	a.ExpectedBenefit = "Accurate counts without manual cleanup"
	a.Owner = "Data Engineering"
	a.Timeline = "Fix within 2 weeks"
	return a
}

func trendActions(f analysis.Finding) []ActionSuggestion {
	d := f.Trend
	if d == nil {
		return nil
	}
	name := Title(f.Column())
	var out []ActionSuggestion
	if d.CV > 100 {
		a := newAction(PriorityCritical, f.EffectSize, f.ID)
		a.Category = "High Risk Alert"
		a.Action = fmt.Sprintf("Investigate extreme swings in '%s'", name)
		a.Reason = fmt.Sprintf("Values fluctuate wildly (variation of %.0f%%), either data errors or business volatility", d.CV)
		a.Impact = "High - Unpredictable metrics make planning impossible"
		a.QuickWin = "Review the top and bottom 10 values for obvious data entry errors"
		a.LongTerm = "Implement data validation rules to prevent outlier entries"
		a.ExpectedBenefit = "Stable, trustworthy metrics for forecasting"
		a.Owner = "Data Quality Team / Finance"
		a.Timeline = "Investigate within 3 days"
		out = append(out, a)
	}
	switch d.Direction {
	case analysis.TrendDecreasing:
		a := newAction(PriorityCritical, f.EffectSize, f.ID)
		a.Category = "Performance Alert"
		a.Action = fmt.Sprintf("Address declining performance in '%s'", name)
		a.Reason = fmt.Sprintf("Values fell %.1f%% across %s", -d.RelativeChange*100, d.OrderedBy)
		a.Impact = "Critical - A declining trend points to a potential business problem"
		a.QuickWin = "Meet with the team to identify the root cause"
		a.LongTerm = "Develop an action plan to reverse the decline"
		a.ExpectedBenefit = "Stop the loss and return to growth"
		a.Owner = "Department Head / Management"
		a.Timeline = "Meet within 48 hours"
		out = append(out, a)
	case analysis.TrendIncreasing:
		a := newAction(PriorityStrategic, f.EffectSize, f.ID)
		a.Category = "Growth Opportunity"
		a.Action = fmt.Sprintf("Double down on success in '%s'", name)
		a.Reason = fmt.Sprintf("Values rose %.1f%% across %s, showing what works", d.RelativeChange*100, d.OrderedBy)
		a.Impact = "High Potential - Opportunity to accelerate growth"
		a.QuickWin = "Analyze what drives the growth and document best practices"
		a.LongTerm = "Allocate more resources to replicate the success elsewhere"
		a.ExpectedBenefit = "Accelerated growth and competitive advantage"
		a.Owner = "Strategy Team / Business Development"
		a.Timeline = "Capitalize within 1 month"
		out = append(out, a)
	case analysis.TrendFlat:
		if d.CV < 10 {
			a := newAction(PriorityStrategic, f.EffectSize, f.ID)
			a.Category = "Planning Asset"
			a.Action = fmt.Sprintf("Use '%s' as a forecasting baseline", name)
			a.Reason = fmt.Sprintf("Highly stable and predictable values (variation %.1f%%)", d.CV)
			a.Impact = "Medium - Improves planning accuracy"
			a.QuickWin = "Build next quarter's forecast on this metric"
			a.LongTerm = "Feature stable metrics on the KPI dashboard"
			a.ExpectedBenefit = "More accurate forecasts and budgets"
			a.Owner = "Planning / Finance Team"
			a.Timeline = "Implement within 2 weeks"
			out = append(out, a)
		}
	}
	return out
}

func correlationAction(f analysis.Finding) ActionSuggestion {
	a := newAction(PriorityStrategic, f.EffectSize, f.ID)
	pair := fmt.Sprintf("'%s' and '%s'", Title(f.Columns[0]), Title(f.Columns[1]))
	r := 0.0
	if f.Correlation != nil {
		r = f.Correlation.R
	}
	if r < 0 {
		a.Category = "Trade-off"
		a.Action = fmt.Sprintf("Review the trade-off between %s", pair)
		a.Reason = fmt.Sprintf("Strong negative correlation (%.2f): when one rises the other falls", r)
		a.Impact = "Medium - Gains in one may be costing the other"
		a.QuickWin = "Check whether a recent change moved both metrics"
		a.LongTerm = "Set targets for both metrics together"
		a.ExpectedBenefit = "Balanced decisions that avoid hidden costs"
		a.Owner = "Analytics Team"
		a.Timeline = "Review within 3 weeks"
		return a
	}
	a.Category = "Strategic Insight"
	a.Action = fmt.Sprintf("Leverage the relationship between %s", pair)
	a.Reason = fmt.Sprintf("Strong correlation (%.2f) means they move together predictably", r)
	a.Impact = "Medium - One can be used to predict the other"
	a.QuickWin = "Use the leading indicator to forecast the lagging metric"
	a.LongTerm = "Build a predictive model on this relationship"
	a.ExpectedBenefit = "Earlier warnings and better forecasting"
	a.Owner = "Analytics / Data Science Team"
	a.Timeline = "Build model within 3-4 weeks"
	return a
}

func concentrationAction(f analysis.Finding) ActionSuggestion {
	a := newAction(PriorityHigh, f.EffectSize, f.ID)
	d := f.Concentration
	a.Category = "Concentration Risk"
	a.Action = fmt.Sprintf("Diversify beyond '%s' in %s", d.TopValue, Title(f.Column()))
	a.Reason = fmt.Sprintf("Over-reliance on one category (%.1f%% share) creates vulnerability", d.Share*100)
	a.Impact = "High Risk - A single point of failure"
	a.QuickWin = "Identify 2-3 alternative categories to develop"
	a.LongTerm = "Target no single category above 40% within 6 months"
	a.ExpectedBenefit = "Reduced risk and steadier revenue streams"
	a.Owner = "Business Development / Sales"
	a.Timeline = "Start within 2 weeks"
	return a
}

func qualityAction(f analysis.Finding) ActionSuggestion {
	p := PriorityStrategic
	if f.Severity == analysis.SeverityHigh {
		p = PriorityHigh
	}
	a := newAction(p, f.EffectSize, f.ID)
	name := Title(f.Column())
	a.Category = "Data Governance"
	a.Owner = "Data Team"
	a.Timeline = "Review within 2 weeks"
	a.Reason = f.Description
	switch f.Quality.Issue {
	case analysis.IssueConstant:
		a.Action = fmt.Sprintf("Retire or repair '%s'", name)
		a.Impact = "Low - The field carries no information"
		a.QuickWin = "Confirm whether the field is still filled by any process"
		a.LongTerm = "Drop unused fields from exports"
		a.ExpectedBenefit = "Leaner datasets that are easier to read"
	case analysis.IssueHighCardinality:
		a.Action = fmt.Sprintf("Standardize entries in '%s'", name)
		a.Impact = "Low - Free text cannot be grouped or compared"
		a.QuickWin = "Replace free text with a pick list where possible"
		a.LongTerm = "Define a controlled vocabulary"
		a.ExpectedBenefit = "Fields that can be counted and compared"
	case analysis.IssueMostlyMissing:
		a.Action = fmt.Sprintf("Decide whether '%s' is still needed", name)
		a.Impact = "High - The field is empty for most records"
		a.QuickWin = "Ask the owners whether anyone relies on this field"
		a.LongTerm = "Either enforce the field or remove it"
		a.ExpectedBenefit = "No false confidence in an empty field"
	case analysis.IssueExcessiveZeros:
		a.Action = fmt.Sprintf("Check whether zeros in '%s' mean missing", name)
		a.Impact = "Medium - Placeholder zeros drag averages down"
		a.QuickWin = "Sample zero rows and confirm they are real"
		a.LongTerm = "Record unknown values as empty, not zero"
		a.ExpectedBenefit = "Averages that reflect real activity"
	case analysis.IssueNegatives:
		a.Action = fmt.Sprintf("Correct negative values in '%s'", name)
		a.Impact = "Medium - Impossible values corrupt totals"
		a.QuickWin = "Find the source of the negative entries"
		a.LongTerm = "Reject negative input for this field"
		a.ExpectedBenefit = "Totals that match reality"
		a.Timeline = "Fix within 1 week"
	default:
		a.Action = fmt.Sprintf("Review data quality of '%s'", name)
		a.Impact = "Medium"
		a.QuickWin = "Inspect a sample of affected rows"
		a.LongTerm = "Add validation for this field"
		a.ExpectedBenefit = "Cleaner inputs"
	}
	return a
}

func datasetAction(s DatasetSummary) (ActionSuggestion, bool) {
	if s.Rows == 0 {
		return ActionSuggestion{}, false
	}
	score := s.Quality.Score
	switch {
	case score < 80:
		a := newAction(PriorityCritical, 1-score/100)
		a.Category = "Data Governance Crisis"
		a.Action = "Launch a data quality improvement program"
		a.Reason = fmt.Sprintf("Overall data quality score is %.1f%% (minimum acceptable: 80%%)", score)
		a.Impact = "Critical - Poor quality undermines every decision built on this data"
		a.QuickWin = "Appoint a data quality champion and form an improvement team"
		a.LongTerm = "Adopt a governance framework with monthly quality reviews"
		a.ExpectedBenefit = "A trustworthy data foundation"
		a.Owner = "Chief Data Officer / Senior Leadership"
		a.Timeline = "Kick off within 1 week"
		return a, true
	case score >= 90:
		a := newAction(PriorityStrategic, 0)
		a.Category = "Data Excellence"
		a.Action = "Maintain and showcase data quality standards"
		a.Reason = fmt.Sprintf("Outstanding data quality score of %.1f%%", score)
		a.Impact = "High Positive - Enables confident decision-making"
		a.QuickWin = "Document data quality practices for other teams"
		a.LongTerm = "Establish the team as a center of excellence"
		a.ExpectedBenefit = "Continued high-quality insights"
		a.Owner = "Data Team Lead"
		a.Timeline = "Document within 2 weeks"
		return a, true
	}
	return ActionSuggestion{}, false
}
