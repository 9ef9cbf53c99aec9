package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
)

var (
	ErrColumnNotFound = errors.New("column not found")
	ErrNotNumeric     = errors.New("column is not numeric")
	// ErrWeakRelationship means two columns correlate too weakly to project one from the other.
	ErrWeakRelationship = errors.New("relationship too weak for scenario analysis")
)

const (
	forecastMinPoints      = 10
	maxDrivers             = 5
	minScenarioCorrelation = 0.3
	roiMinRows             = 5
)

// Forecast extends a linear fit of one column past the end of its axis.
type Forecast struct {
	Column    string `json:"column" yaml:"column"`
	OrderedBy string `json:"ordered_by" yaml:"ordered_by"`
	Periods   int    `json:"periods" yaml:"periods"`
	// Step is the axis distance of one period: days on a datetime axis, rows otherwise.
	Step          float64   `json:"step" yaml:"step"`
	RatePerPeriod float64   `json:"rate_per_period" yaml:"rate_per_period"`
	Direction     string    `json:"direction" yaml:"direction"`
	R             float64   `json:"r" yaml:"r"`
	CurrentMean   float64   `json:"current_mean" yaml:"current_mean"`
	ForecastMean  float64   `json:"forecast_mean" yaml:"forecast_mean"`
	ChangePct     float64   `json:"change_pct" yaml:"change_pct"`
	Values        []float64 `json:"values" yaml:"values"`
}

// Driver is a numeric column ranked by how strongly it moves with a target.
type Driver struct {
	Column string  `json:"column" yaml:"column"`
	R      float64 `json:"r" yaml:"r"`
	// Strength is |R|.
	Strength float64 `json:"strength" yaml:"strength"`
	Impact   string  `json:"impact" yaml:"impact"`
	N        int     `json:"n" yaml:"n"`
}

// Scenario is the estimated ripple of changing one metric on a correlated one.
type Scenario struct {
	Metric          string  `json:"metric" yaml:"metric"`
	Impact          string  `json:"impact" yaml:"impact"`
	ChangePct       float64 `json:"change_pct" yaml:"change_pct"`
	R               float64 `json:"r" yaml:"r"`
	Strength        string  `json:"strength" yaml:"strength"`
	CurrentMetric   float64 `json:"current_metric" yaml:"current_metric"`
	ScenarioMetric  float64 `json:"scenario_metric" yaml:"scenario_metric"`
	CurrentImpact   float64 `json:"current_impact" yaml:"current_impact"`
	ScenarioImpact  float64 `json:"scenario_impact" yaml:"scenario_impact"`
	ImpactChangePct float64 `json:"impact_change_pct" yaml:"impact_change_pct"`
}

// ROIProjection projects the return on an amount from historical return/investment ratios.
type ROIProjection struct {
	Investment string  `json:"investment" yaml:"investment"`
	Return     string  `json:"return" yaml:"return"`
	Amount     float64 `json:"amount" yaml:"amount"`
	Rows       int     `json:"rows" yaml:"rows"`
	// AverageROI and ROIStd are percentages.
	AverageROI      float64 `json:"average_roi" yaml:"average_roi"`
	ROIStd          float64 `json:"roi_std" yaml:"roi_std"`
	ProjectedReturn float64 `json:"projected_return" yaml:"projected_return"`
	NetGain         float64 `json:"net_gain" yaml:"net_gain"`
	BestCase        float64 `json:"best_case" yaml:"best_case"`
	WorstCase       float64 `json:"worst_case" yaml:"worst_case"`
	Confidence      string  `json:"confidence" yaml:"confidence"`
	Recommendation  string  `json:"recommendation" yaml:"recommendation"`
}

func numericColumn(t *dataset.Table, name string) (dataset.Column, error) {
	c, ok := t.Lookup(name)
	if !ok {
		return c, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	if c.Type != dataset.Numeric {
		return c, fmt.Errorf("%w: %q is %s", ErrNotNumeric, c.Name, c.Type)
	}
	return c, nil
}

// ForecastColumn fits a line over the time axis (row order when there is no
// datetime column) and extends it periods steps past the last observation.
func ForecastColumn(t *dataset.Table, column string, periods int, opt Options) (*Forecast, error) {
	if periods <= 0 {
		return nil, fmt.Errorf("forecast periods must be > 0, got %d", periods)
	}
	c, err := numericColumn(t, column)
	if err != nil {
		return nil, err
	}
	opt.AssumeSequential = true
	axis, label, _, _ := timeAxis(t, opt)
	var xs, ys []float64
	for i, v := range c.Values {
		if v.Observed() && !math.IsNaN(axis[i]) {
			xs = append(xs, axis[i])
			ys = append(ys, v.Num)
		}
	}
	need := forecastMinPoints
	if opt.MinSamples > need {
		need = opt.MinSamples
	}
	if len(ys) < need {
		return nil, &InsufficientDataError{Column: c.Name, Analysis: "forecast", Have: len(ys), Need: need}
	}
	fit, ok := fitLine(xs, ys)
	if !ok {
		return nil, fmt.Errorf("forecast %q: %s has no spread", c.Name, label)
	}
	minX, maxX := xs[0], xs[0]
	for _, x := range xs {
		minX = math.Min(minX, x)
		maxX = math.Max(maxX, x)
	}
	step := (maxX - minX) / float64(len(xs)-1)

	f := &Forecast{
		Column:        c.Name,
		OrderedBy:     label,
		Periods:       periods,
		Step:          step,
		RatePerPeriod: fit.Slope * step,
		Direction:     TrendFlat,
		R:             fit.R,
		Values:        make([]float64, periods),
	}
	switch {
	case fit.Slope > 0:
		f.Direction = TrendIncreasing
	case fit.Slope < 0:
		f.Direction = TrendDecreasing
	}
	for k := range f.Values {
		f.Values[k] = fit.Intercept + fit.Slope*(maxX+step*float64(k+1))
	}
	f.CurrentMean, _ = meanStd(ys)
	f.ForecastMean, _ = meanStd(f.Values)
	if f.CurrentMean != 0 {
		f.ChangePct = (f.ForecastMean - f.CurrentMean) / math.Abs(f.CurrentMean) * 100
	}
	return f, nil
}

// ForecastAll forecasts every non-identifier numeric column. Columns that
// cannot be forecast become notes.
func ForecastAll(t *dataset.Table, opt Options) ([]Forecast, []Note) {
	var out []Forecast
	var notes []Note
	for _, c := range t.Columns() {
		if c.Type != dataset.Numeric || IsIdentifier(c.Name) {
			continue
		}
		f, err := ForecastColumn(t, c.Name, opt.ForecastPeriods, opt)
		if err != nil {
			notes = append(notes, noteFromErr("forecast", c.Name, err))
			continue
		}
		out = append(out, *f)
	}
	return out, notes
}

// KeyDrivers ranks the other numeric columns by |r| against target and
// returns the strongest few.
func KeyDrivers(t *dataset.Table, target string, opt Options) ([]Driver, error) {
	tc, err := numericColumn(t, target)
	if err != nil {
		return nil, err
	}
	var out []Driver
	for _, c := range t.Columns() {
		if c.Type != dataset.Numeric || c.Name == tc.Name || IsIdentifier(c.Name) {
			continue
		}
		var acc pairAcc
		for i := range c.Values {
			tv, cv := tc.Values[i], c.Values[i]
			if tv.Observed() && cv.Observed() {
				acc.add(cv.Num, tv.Num)
			}
		}
		if int(acc.n) < opt.MinSamples {
			continue
		}
		r, ok := acc.r()
		if !ok {
			continue
		}
		out = append(out, Driver{Column: c.Name, R: r, Strength: math.Abs(r), Impact: driverImpact(math.Abs(r)), N: int(acc.n)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no drivers found for %q", tc.Name)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Column < out[j].Column
	})
	if len(out) > maxDrivers {
		out = out[:maxDrivers]
	}
	return out, nil
}

func driverImpact(strength float64) string {
	switch {
	case strength > 0.7:
		return "critical"
	case strength > 0.4:
		return "important"
	default:
		return "moderate"
	}
}

// WhatIf estimates how impact moves when metric changes by changePct percent,
// scaling the change by their correlation.
func WhatIf(t *dataset.Table, metric, impact string, changePct float64, opt Options) (*Scenario, error) {
	mc, err := numericColumn(t, metric)
	if err != nil {
		return nil, err
	}
	ic, err := numericColumn(t, impact)
	if err != nil {
		return nil, err
	}
	var acc pairAcc
	for i := range mc.Values {
		mv, iv := mc.Values[i], ic.Values[i]
		if mv.Observed() && iv.Observed() {
			acc.add(mv.Num, iv.Num)
		}
	}
	if int(acc.n) < opt.MinSamples {
		return nil, &InsufficientDataError{Column: mc.Name + "~" + ic.Name, Analysis: "what-if", Have: int(acc.n), Need: opt.MinSamples}
	}
	r, ok := acc.r()
	if !ok || math.Abs(r) < minScenarioCorrelation {
		return nil, fmt.Errorf("%w: %s and %s (r=%.2f)", ErrWeakRelationship, mc.Name, ic.Name, r)
	}
	mvals, _ := mc.Floats()
	ivals, _ := ic.Floats()
	s := &Scenario{Metric: mc.Name, Impact: ic.Name, ChangePct: changePct, R: r, Strength: "moderate"}
	if math.Abs(r) > 0.7 {
		s.Strength = "strong"
	}
	s.CurrentMetric, _ = meanStd(mvals)
	s.CurrentImpact, _ = meanStd(ivals)
	s.ScenarioMetric = s.CurrentMetric * (1 + changePct/100)
	s.ScenarioImpact = s.CurrentImpact * (1 + changePct/100*r)
	if s.CurrentImpact != 0 {
		s.ImpactChangePct = (s.ScenarioImpact - s.CurrentImpact) / math.Abs(s.CurrentImpact) * 100
	}
	return s, nil
}

// ProjectROI averages return/investment over rows where both are positive
// and applies it to amount.
func ProjectROI(t *dataset.Table, investment, ret string, amount float64) (*ROIProjection, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("investment amount must be > 0, got %v", amount)
	}
	inv, err := numericColumn(t, investment)
	if err != nil {
		return nil, err
	}
	rc, err := numericColumn(t, ret)
	if err != nil {
		return nil, err
	}
	var rois []float64
	for i := range inv.Values {
		iv, rv := inv.Values[i], rc.Values[i]
		if iv.Observed() && rv.Observed() && iv.Num > 0 && rv.Num > 0 {
			rois = append(rois, rv.Num/iv.Num*100)
		}
	}
	if len(rois) < roiMinRows {
		return nil, &InsufficientDataError{Column: inv.Name + "~" + rc.Name, Analysis: "ROI projection", Have: len(rois), Need: roiMinRows}
	}
	avg, std := meanStd(rois)
	p := &ROIProjection{
		Investment:      inv.Name,
		Return:          rc.Name,
		Amount:          amount,
		Rows:            len(rois),
		AverageROI:      avg,
		ROIStd:          std,
		ProjectedReturn: amount * avg / 100,
		BestCase:        amount * (avg + std) / 100,
		WorstCase:       amount * (avg - std) / 100,
	}
	p.NetGain = p.ProjectedReturn - amount
	switch {
	case std < 10:
		p.Confidence = "high"
	case std < 30:
		p.Confidence = "medium"
	default:
		p.Confidence = "low"
	}
	switch {
	case avg > 20:
		p.Recommendation = "Strong ROI potential, favorable investment opportunity"
	case avg > 10:
		p.Recommendation = "Moderate ROI, evaluate against other opportunities"
	default:
		p.Recommendation = "Low ROI, consider alternative investments"
	}
	return p, nil
}
