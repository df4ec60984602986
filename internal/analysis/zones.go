package analysis

import (
	"fmt"
	"math"
)

// TrainingZone is one of the seven Coggan power bands derived from FTP.
// Zones are contiguous in integer watts: each zone's Min is the prior
// zone's Max plus one, and zone 7 has no practical upper bound.
type TrainingZone struct {
	Zone      int     `json:"zone"`
	Name      string  `json:"name"`
	Min       int     `json:"min"`
	Max       int     `json:"max"`
	TargetPct float64 `json:"targetPercentage"`
}

// zone7Max stands in for "unbounded" so the bands stay integer ranges.
const zone7Max = 10000

// cogganBoundaries are the upper bounds of zones 1-6 as fractions of FTP.
var cogganBoundaries = [6]float64{0.55, 0.75, 0.90, 1.05, 1.20, 1.50}

// zoneNames and zoneTargets follow the standard Coggan scheme; targets are
// the ideal time-in-zone distribution and sum to 100.
var zoneNames = [7]string{
	"Active Recovery", "Endurance", "Tempo", "Threshold",
	"VO2max", "Anaerobic Capacity", "Neuromuscular Power",
}
var zoneTargets = [7]float64{15, 35, 20, 15, 8, 5, 2}

// CogganZones derives the seven power training zones from an FTP value.
// Pure and deterministic: the same FTP always yields the same bands.
func CogganZones(ftp float64) []TrainingZone {
	zones := make([]TrainingZone, 7)
	min := 0
	for i := 0; i < 7; i++ {
		max := zone7Max
		if i < 6 {
			max = int(math.Round(ftp * cogganBoundaries[i]))
		}
		zones[i] = TrainingZone{
			Zone:      i + 1,
			Name:      zoneNames[i],
			Min:       min,
			Max:       max,
			TargetPct: zoneTargets[i],
		}
		min = max + 1
	}
	return zones
}

// ClassifyPower returns the zone number for a power reading. Bands are
// stored as integer watts, so classification goes by upper bound alone:
// fractional readings between adjacent bands belong to the higher zone,
// and power above every band saturates into the highest zone rather than
// failing; sprint spikes are expected.
func ClassifyPower(power float64, zones []TrainingZone) int {
	for _, z := range zones {
		if power <= float64(z.Max) {
			return z.Zone
		}
	}
	return zones[len(zones)-1].Zone
}

// ZoneDistribution histograms a power series into the zones and converts
// counts to percentages of total samples.
func ZoneDistribution(powers []float64, zones []TrainingZone) []float64 {
	dist := make([]float64, len(zones))
	if len(powers) == 0 {
		return dist
	}
	for _, p := range powers {
		dist[ClassifyPower(p, zones)-1]++
	}
	for i := range dist {
		dist[i] = dist[i] / float64(len(powers)) * 100
	}
	return dist
}

// DriftThresholds are policy knobs for drift detection, in percentage
// points. They come from configuration in production; the zero value is
// replaced with the defaults below.
type DriftThresholds struct {
	Drift         float64 // mean deviation above this flags drift
	Recalibration float64 // above this a zone recalibration is needed
}

const (
	defaultDriftThreshold = 10
	defaultRecalThreshold = 15
)

// DriftReport compares observed time-in-zone against the targets.
type DriftReport struct {
	Magnitude           float64 // mean absolute deviation, percentage points
	DriftDetected       bool
	RecalibrationNeeded bool
}

// DetectDrift measures how far the observed zone distribution has moved
// from the target distribution.
func DetectDrift(observed []float64, zones []TrainingZone, thresholds DriftThresholds) DriftReport {
	if thresholds.Drift <= 0 {
		thresholds.Drift = defaultDriftThreshold
	}
	if thresholds.Recalibration <= 0 {
		thresholds.Recalibration = defaultRecalThreshold
	}

	var total float64
	n := len(zones)
	if len(observed) < n {
		n = len(observed)
	}
	for i := 0; i < n; i++ {
		total += math.Abs(observed[i] - zones[i].TargetPct)
	}
	magnitude := 0.0
	if n > 0 {
		magnitude = total / float64(n)
	}

	return DriftReport{
		Magnitude:           round(magnitude, 2),
		DriftDetected:       magnitude > thresholds.Drift,
		RecalibrationNeeded: magnitude > thresholds.Recalibration,
	}
}

// FTPValidation is the result of cross-checking an FTP estimate against a
// measured power-duration curve.
type FTPValidation struct {
	ExpectedFTP    *float64 // 0.95 x best 20-minute power, when available
	DeviationPct   *float64
	Confidence     string // "high", "medium" or "low"
	Recommendation string
}

// ValidateFTP cross-checks an FTP estimate against the curve's near-20-minute
// best power (tolerance +/-60 s on the duration match). Sparse curves fall
// back to a moderate-confidence result rather than failing.
func ValidateFTP(estimate float64, curve []PowerCurvePoint) FTPValidation {
	const (
		targetDuration = 1200 // 20 minutes
		tolerance      = 60
	)

	var p20 *PowerCurvePoint
	for i := range curve {
		d := curve[i].DurationSeconds
		if d >= targetDuration-tolerance && d <= targetDuration+tolerance {
			if p20 == nil || absInt(d-targetDuration) < absInt(p20.DurationSeconds-targetDuration) {
				p20 = &curve[i]
			}
		}
	}

	if p20 == nil || estimate <= 0 {
		return FTPValidation{
			Confidence:     "medium",
			Recommendation: "no 20-minute effort on record; do a 20-minute test to verify the estimate",
		}
	}

	expected := round(0.95*p20.Watts, 1)
	deviation := round(math.Abs(estimate-expected)/expected*100, 2)

	v := FTPValidation{ExpectedFTP: &expected, DeviationPct: &deviation}
	switch {
	case deviation < 5:
		v.Confidence = "high"
		v.Recommendation = "estimate agrees with the 20-minute test"
	case deviation < 10:
		v.Confidence = "medium"
		v.Recommendation = fmt.Sprintf("estimate is %.1f%% off the 20-minute test; acceptable but worth watching", deviation)
	default:
		v.Confidence = "low"
		v.Recommendation = fmt.Sprintf("estimate deviates %.1f%% from the 20-minute test; retest before adjusting zones", deviation)
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
