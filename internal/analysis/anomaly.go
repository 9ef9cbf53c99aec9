package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
)

// AnomalyResult holds outlier and structural findings plus skipped-analysis notes.
type AnomalyResult struct {
	Findings []Finding
	Notes    []Note
}

// nonNegativeHints are name fragments for quantities that should never be negative.
var nonNegativeHints = []string{"price", "amount", "quantity", "qty", "age", "count", "cost", "revenue", "sales"}

// DetectAnomalies flags outliers per numeric column and structural issues
// across the table. It only returns an error when ctx is done.
func DetectAnomalies(ctx context.Context, t *dataset.Table, opt Options) (*AnomalyResult, error) {
	res := &AnomalyResult{}
	for _, c := range t.Columns() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.Type != dataset.Numeric {
			continue
		}
		fs, err := detectOutliers(t, c, opt)
		if err != nil {
			res.Notes = append(res.Notes, noteFromErr("anomaly", c.Name, err))
			continue
		}
		res.Findings = append(res.Findings, fs.findings...)
		if fs.dropped > 0 {
			res.Notes = append(res.Notes, Note{
				Stage:   "anomaly",
				Column:  c.Name,
				Message: fmt.Sprintf("%d further outliers not listed (cap %d per column)", fs.dropped, opt.MaxOutliersPerColumn),
			})
		}
	}
	if f, ok := sparseRows(t, opt); ok {
		res.Findings = append(res.Findings, f)
	}
	for _, c := range t.Columns() {
		res.Findings = append(res.Findings, qualityIssues(t, c, opt)...)
	}
	return res, nil
}

type outlierSet struct {
	findings []Finding
	dropped  int
}

type outlierHit struct {
	pos       int
	value     float64
	deviation float64
}

func detectOutliers(t *dataset.Table, c dataset.Column, opt Options) (outlierSet, error) {
	vals, pos := c.Floats()
	if len(vals) < opt.MinSamples {
		return outlierSet{}, &InsufficientDataError{Column: c.Name, Analysis: "outlier detection", Have: len(vals), Need: opt.MinSamples}
	}
	method := opt.OutlierMethod
	if method == MethodAuto || method == "" {
		method = MethodZScore
		if math.Abs(skewness(vals)) > opt.SkewThreshold {
			method = MethodIQR
		}
	}

	var lower, upper float64
	var deviation func(float64) float64
	if method == MethodIQR {
		sorted := sortedCopy(vals)
		q1, q3 := quantile(sorted, 0.25), quantile(sorted, 0.75)
		iqr := q3 - q1
		if iqr == 0 && opt.OutlierMethod != MethodIQR {
			method = MethodZScore
		} else if iqr == 0 {
			return outlierSet{}, nil
		} else {
			lower, upper = q1-opt.IQRMultiplier*iqr, q3+opt.IQRMultiplier*iqr
			median, mad := medianMAD(vals)
			scale := mad / 0.6745
			if scale == 0 {
				scale = iqr / 1.349
			}
			deviation = func(x float64) float64 { return math.Abs(x-median) / scale }
		}
	}
	if method == MethodZScore {
		mean, std := meanStd(vals)
		if std == 0 {
			return outlierSet{}, nil
		}
		lower, upper = mean-opt.OutlierThreshold*std, mean+opt.OutlierThreshold*std
		deviation = func(x float64) float64 { return math.Abs(x-mean) / std }
	}

	var hits []outlierHit
	for i, x := range vals {
		if x < lower || x > upper {
			hits = append(hits, outlierHit{pos: pos[i], value: x, deviation: deviation(x)})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].deviation > hits[j].deviation })
	out := outlierSet{}
	if opt.MaxOutliersPerColumn > 0 && len(hits) > opt.MaxOutliersPerColumn {
		out.dropped = len(hits) - opt.MaxOutliersPerColumn
		hits = hits[:opt.MaxOutliersPerColumn]
	}
	for _, h := range hits {
		row := t.RowID(h.pos)
		f := newFinding(KindOutlier, h.deviation/(2*opt.OutlierThreshold), opt)
		f.Columns = []string{c.Name}
		f.Rows = []int{row}
		f.Outlier = &OutlierDetail{Row: row, Value: h.value, Method: string(method), Deviation: h.deviation, Lower: lower, Upper: upper}
		side := "above"
		if h.value < lower {
			side = "below"
		}
		f.Description = fmt.Sprintf("%s row %d: %.4g is %s the expected range [%.4g, %.4g] (%.1f deviations, %s)",
			c.Name, row, h.value, side, lower, upper, h.deviation, method)
		out.findings = append(out.findings, f)
	}
	return out, nil
}

// sparseRows flags rows where more than RowMissingThreshold of cells are missing.
func sparseRows(t *dataset.Table, opt Options) (Finding, bool) {
	ncol, n := t.NumCols(), t.NumRows()
	if ncol < 2 || n == 0 {
		return Finding{}, false
	}
	var rows []int
	cells := 0
	for i := 0; i < n; i++ {
		miss := 0
		for _, c := range t.Columns() {
			v := c.Values[i]
			if !v.Valid || v.Imputed {
				miss++
			}
		}
		if float64(miss)/float64(ncol) > opt.RowMissingThreshold {
			rows = append(rows, t.RowID(i))
			cells += miss
		}
	}
	if len(rows) == 0 {
		return Finding{}, false
	}
	frac := float64(len(rows)) / float64(n)
	f := newFinding(KindMissingData, frac, opt)
	f.Rows = rows
	f.Missing = &MissingDetail{Scope: "rows", Missing: cells, Total: len(rows) * ncol, Fraction: frac}
	f.Description = fmt.Sprintf("%d of %d rows (%.1f%%) are missing more than %.0f%% of their cells", len(rows), n, frac*100, opt.RowMissingThreshold*100)
	return f, true
}

func qualityIssues(t *dataset.Table, c dataset.Column, opt Options) []Finding {
	n := t.NumRows()
	if n < 2 {
		return nil
	}
	var out []Finding
	add := func(issue string, count int, frac, effect float64, floor Severity, desc string) {
		f := newFinding(KindQualityIssue, effect, opt)
		if f.Severity.Rank() < floor.Rank() {
			f.Severity = floor
		}
		f.Columns = []string{c.Name}
		f.Quality = &QualityDetail{Issue: issue, Count: count, Fraction: frac}
		f.Description = desc
		out = append(out, f)
	}

	missing := c.Missing()
	if frac := float64(missing) / float64(n); frac > 0.7 {
		add(IssueMostlyMissing, missing, frac, frac, SeverityHigh, fmt.Sprintf("%s is mostly empty (%.0f%% missing)", c.Name, frac*100))
	}

	unique := map[string]struct{}{}
	valid := 0
	for _, v := range c.Values {
		if !v.Observed() {
			continue
		}
		valid++
		unique[strings.TrimSpace(v.Raw)] = struct{}{}
	}
	if valid >= 2 && len(unique) == 1 {
		add(IssueConstant, valid, 1, 0.5, SeverityMedium, fmt.Sprintf("%s holds a single value for every row", c.Name))
	}
	if (c.Type == dataset.Text || c.Type == dataset.Categorical) && n >= 10 && float64(len(unique)) > 0.8*float64(valid) {
		ratio := float64(len(unique)) / float64(valid)
		add(IssueHighCardinality, len(unique), ratio, 0.2, SeverityLow, fmt.Sprintf("%s has %d distinct values across %d rows (likely an identifier or free text)", c.Name, len(unique), valid))
	}

	if c.Type != dataset.Numeric {
		return out
	}
	vals, _ := c.Floats()
	if len(vals) == 0 {
		return out
	}
	zeros, negatives := 0, 0
	for _, x := range vals {
		if x == 0 {
			zeros++
		}
		if x < 0 {
			negatives++
		}
	}
	if frac := float64(zeros) / float64(len(vals)); frac > 0.3 && len(unique) > 1 {
		add(IssueExcessiveZeros, zeros, frac, frac, SeverityLow, fmt.Sprintf("%s is zero in %.0f%% of rows", c.Name, frac*100))
	}
	if negatives > 0 && suggestsNonNegative(c.Name) {
		frac := float64(negatives) / float64(len(vals))
		add(IssueNegatives, negatives, frac, math.Max(frac, 0.3), SeverityMedium, fmt.Sprintf("%s has %d negative value(s) where only positive values make sense", c.Name, negatives))
	}
	return out
}

func suggestsNonNegative(name string) bool {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, tok := range tokens {
		for _, h := range nonNegativeHints {
			if tok == h || tok == h+"s" {
				return true
			}
		}
	}
	return false
}
