package analysis

import (
	"errors"
	"fmt"
	"math"

	"velometrics/internal/store"
)

// ErrInsufficientData is returned when an activity has no usable samples for
// a computation. Sparse-but-present data is reported as a low-confidence
// result instead.
var ErrInsufficientData = errors.New("insufficient sample data")

// ErrInvalidInput is returned for structurally invalid inputs such as a
// non-positive rider mass.
var ErrInvalidInput = errors.New("invalid input")

// Efficiency curve parameters. Bins are half-open [lo, lo+5) km/h.
const (
	curveMinSpeed = 10.0
	curveMaxSpeed = 60.0
	curveBinWidth = 5.0

	// A bin (or the 40 km/h band) needs at least this many samples to be
	// statistically meaningful; smaller bins are omitted, not zero-filled.
	minBinSamples = 10

	// Efficiency outside this range is sensor noise and the bin is dropped.
	minEfficiency = 0.01
	maxEfficiency = 1.0
)

// EfficiencyRange is one speed bin's aggregate. JSON field names keep the
// product's original wire names.
type EfficiencyRange struct {
	SpeedRange string  `json:"rango_velocidad"` // e.g. "30-35"
	Efficiency float64 `json:"eficiencia"`      // mean speed / mean power
	Samples    int     `json:"muestras"`
	MeanSpeed  float64 `json:"velocidad_media"`
	MeanPower  float64 `json:"potencia_media"`
}

// StandardEfficiency is the standardized 40 km/h reference figure.
// Efficiency is nil when fewer than minBinSamples samples fall in the
// 39.5-40.5 km/h band; Warning explains why.
type StandardEfficiency struct {
	Efficiency *float64 `json:"eficiencia_estandar_40kmh"`
	MeanPower  *float64 `json:"potencia_media_40kmh"`
	Samples    int      `json:"muestras"`
	Warning    string   `json:"warning,omitempty"`
}

// EfficiencyCurve bins an activity's samples by speed and computes the
// speed/power efficiency ratio per bin. Samples with zero power or zero
// speed (coasting, stopped) are excluded entirely. Bins with fewer than 10
// qualifying samples or with an out-of-range efficiency are omitted.
func EfficiencyCurve(points []store.ActivityPoint) []EfficiencyRange {
	var ranges []EfficiencyRange

	for lo := curveMinSpeed; lo < curveMaxSpeed; lo += curveBinWidth {
		hi := lo + curveBinWidth

		var sumSpeed, sumPower float64
		var count int
		for _, p := range points {
			if p.Power <= 0 || p.Speed <= 0 {
				continue
			}
			if p.Speed >= lo && p.Speed < hi {
				sumSpeed += p.Speed
				sumPower += p.Power
				count++
			}
		}
		if count < minBinSamples {
			continue
		}

		meanSpeed := sumSpeed / float64(count)
		meanPower := sumPower / float64(count)
		efficiency := meanSpeed / meanPower

		// Out-of-range ratios are discarded as outliers, not clamped.
		if efficiency < minEfficiency || efficiency > maxEfficiency {
			continue
		}

		ranges = append(ranges, EfficiencyRange{
			SpeedRange: fmt.Sprintf("%d-%d", int(lo), int(hi)),
			Efficiency: round(efficiency, 4),
			Samples:    count,
			MeanSpeed:  round(meanSpeed, 2),
			MeanPower:  round(meanPower, 1),
		})
	}

	return ranges
}

// StandardEfficiency40 computes the reference efficiency at 40 km/h over the
// 39.5-40.5 km/h band. The figure is distance-normalized (40 / mean power),
// not the speed/power ratio the curve bins use; the two definitions are
// intentionally kept distinct.
func StandardEfficiency40(points []store.ActivityPoint) StandardEfficiency {
	var sumPower float64
	var count int
	for _, p := range points {
		if p.Power <= 0 {
			continue
		}
		if p.Speed >= 39.5 && p.Speed <= 40.5 {
			sumPower += p.Power
			count++
		}
	}

	if count < minBinSamples {
		return StandardEfficiency{
			Samples: count,
			Warning: fmt.Sprintf("only %d samples between 39.5 and 40.5 km/h; at least %d needed for a reliable figure", count, minBinSamples),
		}
	}

	meanPower := round(sumPower/float64(count), 1)
	efficiency := round(40.0/meanPower, 4)
	return StandardEfficiency{
		Efficiency: &efficiency,
		MeanPower:  &meanPower,
		Samples:    count,
	}
}

// DataQualityReport summarizes how suitable an activity's samples are for
// efficiency analysis. Advisory only: callers may proceed with a low-quality
// result but should surface the warnings.
type DataQualityReport struct {
	Valid           bool
	ValidFraction   float64
	Warnings        []string
	Recommendations []string
}

// DataQuality inspects an activity's samples for conditions that weaken the
// efficiency analysis. The report is valid while fewer than three warnings
// accumulate.
func DataQuality(points []store.ActivityPoint) DataQualityReport {
	var report DataQualityReport
	if len(points) == 0 {
		report.Warnings = append(report.Warnings, "activity has no samples")
		report.Recommendations = append(report.Recommendations, "record an activity with a power meter and speed sensor")
		return report
	}

	valid := 0
	minSpeed := math.Inf(1)
	maxSpeed := 0.0
	band40 := 0
	for _, p := range points {
		if p.Power > 0 && p.Speed > 0 {
			valid++
			if p.Speed < minSpeed {
				minSpeed = p.Speed
			}
			if p.Speed > maxSpeed {
				maxSpeed = p.Speed
			}
			if p.Speed >= 39.5 && p.Speed <= 40.5 {
				band40++
			}
		}
	}

	report.ValidFraction = float64(valid) / float64(len(points))

	if report.ValidFraction < 0.8 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("only %.0f%% of samples have both power and speed", report.ValidFraction*100))
		report.Recommendations = append(report.Recommendations,
			"check power meter and speed sensor pairing; long coasting stretches also reduce usable data")
	}
	if maxSpeed < 30 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("max speed %.1f km/h never reaches 30 km/h", maxSpeed))
		report.Recommendations = append(report.Recommendations,
			"include sustained efforts above 30 km/h to populate the upper curve bins")
	}
	if valid > 0 && minSpeed > 15 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("minimum speed %.1f km/h leaves the low-speed bins empty", minSpeed))
		report.Recommendations = append(report.Recommendations,
			"ride some low-speed sections so the lower curve bins get data")
	}
	if band40 < minBinSamples {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("only %d samples near 40 km/h; the standard efficiency figure needs %d", band40, minBinSamples))
		report.Recommendations = append(report.Recommendations,
			"hold a steady effort around 40 km/h for at least 10 seconds")
	}

	report.Valid = len(report.Warnings) < 3
	return report
}

// round rounds to the given number of decimal places.
func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
