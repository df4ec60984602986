package analysis

import (
	"fmt"
	"math"
	"sort"

	"velometrics/internal/store"
)

// PowerCurvePoint is one point of a power-duration curve: the best average
// power held for the duration.
type PowerCurvePoint struct {
	DurationSeconds int
	Watts           float64
}

// StandardDurations are the power-curve durations used for model fitting,
// from a short anaerobic burst up to the hour.
var StandardDurations = []int{5, 60, 300, 1200, 3600}

// PowerCurve computes the best average power held for each duration over a
// 1 Hz sample stream. Durations longer than the stream are omitted.
func PowerCurve(points []store.ActivityPoint, durations []int) []PowerCurvePoint {
	if len(points) == 0 {
		return nil
	}

	prefix := make([]float64, len(points)+1)
	for i, p := range points {
		prefix[i+1] = prefix[i] + p.Power
	}

	var curve []PowerCurvePoint
	for _, d := range durations {
		if d <= 0 || d > len(points) {
			continue
		}
		var best float64
		for i := 0; i+d <= len(points); i++ {
			if avg := (prefix[i+d] - prefix[i]) / float64(d); avg > best {
				best = avg
			}
		}
		if best > 0 {
			curve = append(curve, PowerCurvePoint{DurationSeconds: d, Watts: round(best, 1)})
		}
	}
	return curve
}

// MergePowerCurves combines per-activity curves into an all-time curve by
// taking the best power at each duration.
func MergePowerCurves(curves ...[]PowerCurvePoint) []PowerCurvePoint {
	best := make(map[int]float64)
	for _, c := range curves {
		for _, p := range c {
			if p.Watts > best[p.DurationSeconds] {
				best[p.DurationSeconds] = p.Watts
			}
		}
	}
	merged := make([]PowerCurvePoint, 0, len(best))
	for d, w := range best {
		merged = append(merged, PowerCurvePoint{DurationSeconds: d, Watts: w})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].DurationSeconds < merged[j].DurationSeconds })
	return merged
}

// CriticalPowerModel is the two-parameter hyperbolic model
// power(t) = CP + W'/t, fitted over a power-duration curve.
type CriticalPowerModel struct {
	CriticalPower     float64 `json:"critical_power"`     // watts
	AnaerobicCapacity float64 `json:"anaerobic_capacity"` // W', joules
	RSquared          float64 `json:"r_squared"`

	// 95% confidence interval bounds for both parameters.
	CPLow, CPHigh         float64
	WPrimeLow, WPrimeHigh float64
}

// FitCriticalPower fits CP and W' by linear regression on the work
// transform: work(t) = CP*t + W'. The fit needs at least two distinct
// durations with positive power; anything less is structurally invalid.
func FitCriticalPower(curve []PowerCurvePoint) (*CriticalPowerModel, error) {
	var pts []PowerCurvePoint
	seen := make(map[int]bool)
	for _, p := range curve {
		if p.DurationSeconds <= 0 || p.Watts <= 0 || !isFinite(p.Watts) {
			return nil, fmt.Errorf("%w: curve point with duration %ds and power %.1fW", ErrInvalidInput, p.DurationSeconds, p.Watts)
		}
		if !seen[p.DurationSeconds] {
			seen[p.DurationSeconds] = true
			pts = append(pts, p)
		}
	}
	if len(pts) < 2 {
		return nil, fmt.Errorf("%w: critical power fit needs at least two distinct durations, got %d", ErrInsufficientData, len(pts))
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].DurationSeconds < pts[j].DurationSeconds })

	// Regress work = CP*t + W'. The slope is CP, the intercept W'.
	n := float64(len(pts))
	var sumT, sumW, sumTT, sumTW float64
	for _, p := range pts {
		t := float64(p.DurationSeconds)
		w := p.Watts * t
		sumT += t
		sumW += w
		sumTT += t * t
		sumTW += t * w
	}

	den := n*sumTT - sumT*sumT
	if den == 0 {
		return nil, fmt.Errorf("%w: curve durations are degenerate", ErrInsufficientData)
	}
	cp := (n*sumTW - sumT*sumW) / den
	wPrime := (sumW - cp*sumT) / n

	// R^2 and residual standard errors on the work scale.
	meanW := sumW / n
	var ssTot, ssRes float64
	for _, p := range pts {
		t := float64(p.DurationSeconds)
		w := p.Watts * t
		predicted := cp*t + wPrime
		ssTot += (w - meanW) * (w - meanW)
		ssRes += (w - predicted) * (w - predicted)
	}
	r2 := 1.0
	if ssTot > 0 {
		r2 = clamp(1-ssRes/ssTot, 0, 1)
	}

	model := &CriticalPowerModel{
		CriticalPower:     round(cp, 1),
		AnaerobicCapacity: round(wPrime, 0),
		RSquared:          round(r2, 4),
	}

	// Standard errors need residual degrees of freedom; with exactly two
	// points the fit is exact and the interval collapses to the estimate.
	if len(pts) > 2 {
		s2 := ssRes / (n - 2)
		seCP := math.Sqrt(s2 * n / den)
		seWP := math.Sqrt(s2 * sumTT / den)
		model.CPLow = round(cp-1.96*seCP, 1)
		model.CPHigh = round(cp+1.96*seCP, 1)
		model.WPrimeLow = round(wPrime-1.96*seWP, 0)
		model.WPrimeHigh = round(wPrime+1.96*seWP, 0)
	} else {
		model.CPLow, model.CPHigh = model.CriticalPower, model.CriticalPower
		model.WPrimeLow, model.WPrimeHigh = model.AnaerobicCapacity, model.AnaerobicCapacity
	}

	return model, nil
}

// WeeklyEffort is a historical best 20-minute power, indexed by how many
// weeks ago it was set.
type WeeklyEffort struct {
	WeeksAgo int
	Watts    float64
}

// FTPFeatures are the inputs to FTP estimation. Nil fields mean the athlete
// has no such data on record.
type FTPFeatures struct {
	Best20Min   *float64
	Best60Min   *float64
	RecentAvgHR *float64 // average heart rate across recent rides, bpm
	RecentCTL   *float64 // current chronic training load
	Weekly20Min []WeeklyEffort
}

// FTPEstimate is a point estimate with an interval and the weekly trend.
type FTPEstimate struct {
	Watts             float64
	Low, High         float64
	Confidence        string  // "high", "medium" or "low"
	WeeklyImprovement float64 // watts per week, from the 20-minute trend
	Method            string  // "regression" or "heuristic"
}

// Regression needs this many weekly efforts before the trend is worth
// anything; below it the estimator degrades to the 95% heuristic.
const minRegressionWeeks = 4

// EstimateFTP predicts FTP from recent best efforts and training state.
// With enough weekly history it fits a linear trend over the 20-minute
// bests; otherwise it degrades to the 0.95 x 20-minute heuristic. It fails
// only when there is no effort data at all.
func EstimateFTP(f FTPFeatures) (*FTPEstimate, error) {
	if f.Best20Min == nil && f.Best60Min == nil {
		return nil, fmt.Errorf("%w: no best efforts on record", ErrInsufficientData)
	}

	// Base estimate from the standard relationships: FTP ~= 0.95 x P20,
	// and the 60-minute best is FTP by definition.
	var base float64
	switch {
	case f.Best20Min != nil && f.Best60Min != nil:
		base = 0.6*(0.95**f.Best20Min) + 0.4**f.Best60Min
	case f.Best20Min != nil:
		base = 0.95 * *f.Best20Min
	default:
		base = *f.Best60Min
	}

	est := &FTPEstimate{Method: "heuristic"}

	if len(f.Weekly20Min) >= minRegressionWeeks {
		slope, resid := effortTrend(f.Weekly20Min)
		est.Method = "regression"
		est.WeeklyImprovement = round(0.95*slope, 2)

		// A rising or falling trend shifts the estimate toward where the
		// athlete is heading, but only by half a week of trend.
		base += 0.5 * est.WeeklyImprovement

		margin := math.Max(1.96*resid*0.95, base*0.02)
		est.Watts = round(base, 1)
		est.Low = round(base-margin, 1)
		est.High = round(base+margin, 1)

		switch {
		case f.Best60Min != nil && margin < base*0.04:
			est.Confidence = "high"
		case margin < base*0.08:
			est.Confidence = "medium"
		default:
			est.Confidence = "low"
		}
	} else {
		est.Watts = round(base, 1)
		est.Low = round(base*0.95, 1)
		est.High = round(base*1.05, 1)
		est.Confidence = "medium"
		if f.Best20Min == nil {
			est.Confidence = "low"
		}
	}

	// A well-trained athlete under low load tends to test slightly above
	// recent rides; nudge the interval, not the point estimate.
	if f.RecentCTL != nil && *f.RecentCTL > 70 {
		est.High = round(est.High*1.01, 1)
	}
	// Elevated average heart rate across recent rides suggests the bests
	// were set under fatigue; widen the downside of the interval.
	if f.RecentAvgHR != nil && *f.RecentAvgHR > 155 {
		est.Low = round(est.Low*0.98, 1)
	}

	return est, nil
}

// effortTrend fits watts against weeks-ago and returns the per-week slope
// (positive = improving) and the residual standard deviation.
func effortTrend(efforts []WeeklyEffort) (slope, resid float64) {
	n := float64(len(efforts))
	var sumX, sumY, sumXX, sumXY float64
	for _, e := range efforts {
		x := -float64(e.WeeksAgo) // so positive slope means improving
		sumX += x
		sumY += e.Watts
		sumXX += x * x
		sumXY += x * e.Watts
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0, 0
	}
	slope = (n*sumXY - sumX*sumY) / den
	intercept := (sumY - slope*sumX) / n

	var ssRes float64
	for _, e := range efforts {
		x := -float64(e.WeeksAgo)
		r := e.Watts - (intercept + slope*x)
		ssRes += r * r
	}
	if n > 2 {
		resid = math.Sqrt(ssRes / (n - 2))
	}
	return slope, resid
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
