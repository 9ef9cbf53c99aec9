package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
)

// NumericProfile holds descriptive statistics for one numeric column.
type NumericProfile struct {
	Column string  `json:"column" yaml:"column"`
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	Std    float64 `json:"std" yaml:"std"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	// CV is the coefficient of variation in percent; 0 when the mean is 0.
	CV float64 `json:"cv" yaml:"cv"`
}

// SummaryResult carries trend, correlation and concentration findings.
type SummaryResult struct {
	Findings []Finding
	Notes    []Note
	Profiles []NumericProfile
}

// Summarize computes numeric profiles, linear trends, pairwise correlations
// and categorical concentration over the cleaned table.
func Summarize(ctx context.Context, t *dataset.Table, opt Options) (*SummaryResult, error) {
	res := &SummaryResult{}
	var numeric []dataset.Column
	for _, c := range t.Columns() {
		if c.Type != dataset.Numeric {
			continue
		}
		vals, _ := c.Floats()
		if len(vals) > 0 {
			res.Profiles = append(res.Profiles, profileOf(c.Name, vals))
		}
		if !IsIdentifier(c.Name) {
			numeric = append(numeric, c)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.trends(t, numeric, opt)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.correlations(numeric, opt)

	for _, c := range t.Columns() {
		if c.Type == dataset.Categorical {
			if f, ok := concentration(c, opt); ok {
				res.Findings = append(res.Findings, f)
			}
		}
	}
	return res, nil
}

// Profile returns the numeric profile for column, if one was computed.
func (r *SummaryResult) Profile(column string) (NumericProfile, bool) {
	for _, p := range r.Profiles {
		if p.Column == column {
			return p, true
		}
	}
	return NumericProfile{}, false
}

func profileOf(name string, vals []float64) NumericProfile {
	sorted := sortedCopy(vals)
	mean, std := meanStd(vals)
	p := NumericProfile{
		Column: name,
		Count:  len(vals),
		Mean:   mean,
		Median: quantile(sorted, 0.5),
		Std:    std,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
	if mean != 0 {
		p.CV = std / math.Abs(mean) * 100
	}
	return p
}

// timeAxis returns an x coordinate per row position and a label for it.
// Rows without a usable x are NaN. unusable explains a TimeColumn that
// could not be used.
func timeAxis(t *dataset.Table, opt Options) (xs []float64, label, unusable string, ok bool) {
	n := t.NumRows()
	var timeCol *dataset.Column
	if opt.TimeColumn != "" {
		c, found := t.Lookup(opt.TimeColumn)
		switch {
		case !found:
			unusable = fmt.Sprintf("time column %q not found", opt.TimeColumn)
		case c.Type != dataset.Datetime:
			unusable = fmt.Sprintf("time column %q is %s, not datetime", opt.TimeColumn, c.Type)
		default:
			timeCol = &c
		}
	}
	if timeCol == nil {
		for _, c := range t.Columns() {
			if c.Type == dataset.Datetime {
				c := c
				timeCol = &c
				break
			}
		}
	}
	xs = make([]float64, n)
	if timeCol != nil {
		var origin float64
		set := false
		for _, v := range timeCol.Values {
			if v.Valid {
				u := float64(v.Time.Unix())
				if !set || u < origin {
					origin, set = u, true
				}
			}
		}
		for i, v := range timeCol.Values {
			if !v.Valid {
				xs[i] = math.NaN()
				continue
			}
			xs[i] = (float64(v.Time.Unix()) - origin) / 86400
		}
		return xs, timeCol.Name, unusable, true
	}
	if !opt.AssumeSequential {
		return nil, "", unusable, false
	}
	for i := range xs {
		xs[i] = float64(i)
	}
	return xs, "row order", unusable, true
}

func (r *SummaryResult) trends(t *dataset.Table, numeric []dataset.Column, opt Options) {
	if len(numeric) == 0 {
		return
	}
	axis, label, unusable, ok := timeAxis(t, opt)
	if unusable != "" {
		msg := unusable + "; trends ordered by " + label
		if !ok {
			msg = unusable + "; trend analysis skipped"
		}
		r.Notes = append(r.Notes, Note{Stage: "summarize", Column: opt.TimeColumn, Message: msg})
	}
	if !ok {
		if unusable == "" {
			r.Notes = append(r.Notes, Note{Stage: "summarize", Message: "trend analysis skipped: no datetime column and rows are not treated as sequential"})
		}
		return
	}
	for _, c := range numeric {
		var xs, ys []float64
		for i, v := range c.Values {
			if v.Observed() && !math.IsNaN(axis[i]) {
				xs = append(xs, axis[i])
				ys = append(ys, v.Num)
			}
		}
		if len(ys) < opt.MinSamples {
			err := &InsufficientDataError{Column: c.Name, Analysis: "trend detection", Have: len(ys), Need: opt.MinSamples}
			r.Notes = append(r.Notes, noteFromErr("summarize", c.Name, err))
			continue
		}
		fit, ok := fitLine(xs, ys)
		if !ok {
			r.Notes = append(r.Notes, Note{Stage: "summarize", Column: c.Name, Message: fmt.Sprintf("trend skipped for %q: %s has no spread", c.Name, label)})
			continue
		}
		tstat := fit.TStat()
		dir := TrendFlat
		if math.Abs(tstat) >= opt.TrendSignificance {
			if fit.Slope > 0 {
				dir = TrendIncreasing
			} else {
				dir = TrendDecreasing
			}
		}
		mean, std := meanStd(ys)
		var rel, cv float64
		if mean != 0 {
			minX, maxX := xs[0], xs[0]
			for _, x := range xs {
				minX = math.Min(minX, x)
				maxX = math.Max(maxX, x)
			}
			rel = fit.Slope * (maxX - minX) / math.Abs(mean)
			cv = std / math.Abs(mean) * 100
		}
		effect := math.Abs(fit.R)
		if dir == TrendFlat {
			effect = math.Min(effect, 0.39)
		}
		f := newFinding(KindTrend, effect, opt)
		f.Columns = []string{c.Name}
		f.Trend = &TrendDetail{
			Direction:      dir,
			Slope:          fit.Slope,
			TStat:          finiteOr(tstat, math.Copysign(1e9, tstat)),
			R:              fit.R,
			RelativeChange: rel,
			CV:             cv,
			N:              fit.N,
			OrderedBy:      label,
		}
		if dir == TrendFlat {
			f.Description = fmt.Sprintf("%s is stable over %s (no significant slope, CV %.1f%%)", c.Name, label, cv)
		} else {
			f.Description = fmt.Sprintf("%s is %s over %s (%+.1f%% across the span, r=%.2f)", c.Name, dir, label, rel*100, fit.R)
		}
		r.Findings = append(r.Findings, f)
	}
}

func (r *SummaryResult) correlations(numeric []dataset.Column, opt Options) {
	for i := 0; i < len(numeric); i++ {
		for j := i + 1; j < len(numeric); j++ {
			a, b := numeric[i], numeric[j]
			var acc pairAcc
			for k := range a.Values {
				va, vb := a.Values[k], b.Values[k]
				if va.Observed() && vb.Observed() {
					acc.add(va.Num, vb.Num)
				}
			}
			if int(acc.n) < opt.MinSamples {
				err := &InsufficientDataError{Column: a.Name + "~" + b.Name, Analysis: "correlation", Have: int(acc.n), Need: opt.MinSamples}
				r.Notes = append(r.Notes, noteFromErr("summarize", a.Name, err))
				continue
			}
			rv, ok := acc.r()
			if !ok || math.Abs(rv) < opt.CorrelationThreshold {
				continue
			}
			dir := "positive"
			if rv < 0 {
				dir = "negative"
			}
			f := newFinding(KindCorrelation, math.Abs(rv), opt)
			f.Columns = []string{a.Name, b.Name}
			f.Correlation = &CorrelationDetail{R: rv, N: int(acc.n), Direction: dir}
			f.Description = fmt.Sprintf("%s and %s move together: %s correlation r=%.3f over %d rows", a.Name, b.Name, dir, rv, int(acc.n))
			r.Findings = append(r.Findings, f)
		}
	}
}

func concentration(c dataset.Column, opt Options) (Finding, bool) {
	counts := map[string]int{}
	total := 0
	for _, v := range c.Values {
		if !v.Observed() {
			continue
		}
		counts[strings.TrimSpace(v.Raw)]++
		total++
	}
	if total < opt.MinSamples || len(counts) < 2 {
		return Finding{}, false
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] == counts[keys[j]] {
			return keys[i] < keys[j]
		}
		return counts[keys[i]] > counts[keys[j]]
	})
	share := float64(counts[keys[0]]) / float64(total)
	if share < opt.ConcentrationThreshold {
		return Finding{}, false
	}
	f := newFinding(KindConcentration, share, opt)
	f.Columns = []string{c.Name}
	f.Concentration = &ConcentrationDetail{TopValue: keys[0], Share: share, Categories: len(counts)}
	f.Description = fmt.Sprintf("%q accounts for %.0f%% of %s across %d categories", keys[0], share*100, c.Name, len(counts))
	return f, true
}

// IsIdentifier reports surrogate key columns, which are left out of trends and correlations.
func IsIdentifier(name string) bool {
	n := strings.ToLower(name)
	return n == "id" || strings.HasSuffix(n, "_id") || n == "index" || n == "row"
}

func finiteOr(x, alt float64) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return alt
	}
	return x
}
