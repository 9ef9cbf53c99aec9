package analysis

import (
	"math"
	"sort"
)

func sortedCopy(vals []float64) []float64 {
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	return cp
}

// meanStd returns the mean and sample standard deviation via Welford's method.
func meanStd(vals []float64) (mean, std float64) {
	var n int
	var m2 float64
	for _, x := range vals {
		n++
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
	}
	if n > 1 {
		std = math.Sqrt(m2 / float64(n-1))
	}
	return mean, std
}

// skewness is the adjusted Fisher-Pearson sample skewness. It returns 0
// for fewer than 3 values or zero spread.
func skewness(vals []float64) float64 {
	n := float64(len(vals))
	if n < 3 {
		return 0
	}
	mean, _ := meanStd(vals)
	var m2, m3 float64
	for _, x := range vals {
		d := x - mean
		m2 += d * d
		m3 += d * d * d
	}
	m2 /= n
	m3 /= n
	if m2 == 0 {
		return 0
	}
	g1 := m3 / math.Pow(m2, 1.5)
	return g1 * math.Sqrt(n*(n-1)) / (n - 2)
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := sortedCopy(vals)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

// quantile interpolates linearly between closest ranks of a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// pairAcc accumulates sums for an exact Pearson correlation.
type pairAcc struct {
	n     float64
	sumX  float64
	sumY  float64
	sumXX float64
	sumYY float64
	sumXY float64
}

func (p *pairAcc) add(x, y float64) {
	p.n++
	p.sumX += x
	p.sumY += y
	p.sumXX += x * x
	p.sumYY += y * y
	p.sumXY += x * y
}

// r returns the Pearson coefficient, or ok=false when either side is constant.
func (p *pairAcc) r() (float64, bool) {
	if p.n < 2 {
		return 0, false
	}
	denom := math.Sqrt((p.n*p.sumXX - p.sumX*p.sumX) * (p.n*p.sumYY - p.sumY*p.sumY))
	if denom == 0 || math.IsNaN(denom) {
		return 0, false
	}
	r := (p.n*p.sumXY - p.sumX*p.sumY) / denom
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

// linearFit is an ordinary least-squares line y = Intercept + Slope*x.
type linearFit struct {
	Slope     float64
	Intercept float64
	StdErr    float64
	R         float64
	N         int
}

// TStat is slope over its standard error. A perfect non-flat fit is ±Inf.
func (f linearFit) TStat() float64 {
	if f.StdErr == 0 {
		if f.Slope == 0 {
			return 0
		}
		return math.Copysign(math.Inf(1), f.Slope)
	}
	return f.Slope / f.StdErr
}

// fitLine returns ok=false when x has no spread or fewer than 3 points.
func fitLine(xs, ys []float64) (linearFit, bool) {
	n := len(xs)
	if n < 3 || n != len(ys) {
		return linearFit{}, false
	}
	mx, _ := meanStd(xs)
	my, _ := meanStd(ys)
	var sxx, syy, sxy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	if sxx == 0 {
		return linearFit{}, false
	}
	slope := sxy / sxx
	fit := linearFit{Slope: slope, Intercept: my - slope*mx, N: n}
	if syy > 0 {
		fit.R = sxy / math.Sqrt(sxx*syy)
	}
	sse := syy - slope*sxy
	if sse < 0 {
		sse = 0
	}
	fit.StdErr = math.Sqrt(sse / float64(n-2) / sxx)
	return fit, true
}
