package analysis

import (
	"fmt"
	"math"

	"velometrics/internal/store"
)

// Physical constants for cycling mechanics.
const (
	gravity = 9.81

	// Sea-level defaults, used when configuration supplies nothing better.
	DefaultAirDensity = 1.225
	DefaultCrr        = 0.005
	DefaultCdA        = 0.32

	// A sample run must be at least this long to count as a segment for
	// the drag regression; shorter runs are transient noise.
	minSegmentLen = 5
)

// DragParams are the physical inputs to the power decomposition.
type DragParams struct {
	AirDensity float64 // kg/m^3
	TotalMass  float64 // rider + bike, kg

	// FlatGradeMax is the |gradient| ceiling (as a fraction, e.g. 0.005)
	// for a sample to count as near-flat during CdA/Crr estimation.
	FlatGradeMax float64

	// FallbackCrr is held fixed when the observations cannot separate the
	// two unknowns (e.g. all samples at the same speed).
	FallbackCrr float64
}

// PhysicalPowerAnalysis decomposes measured power into aerodynamic, rolling
// resistance and gravitational components. The three arrays are parallel,
// one value per filtered input sample, and their sum reconstructs total
// power within the model's residual.
type PhysicalPowerAnalysis struct {
	PowerAero    []float64 `json:"power_aero"`
	PowerRolling []float64 `json:"power_rr"`
	PowerGravity []float64 `json:"power_gravity"`

	CdA        float64 `json:"CdA_estimated"`
	Crr        float64 `json:"Crr_estimated"`
	Confidence float64 `json:"confidence_score"`
	AirDensity float64 `json:"air_density"`
	TotalMass  float64 `json:"total_mass"`

	SegmentsCdA int `json:"segments_used_CdA"`
	SegmentsCrr int `json:"segments_used_Crr"`
}

// AnalyzePhysicalPower estimates CdA and Crr from the activity's near-flat
// powered segments and decomposes every powered sample into physical
// components. It fails only for structurally invalid input: no powered
// samples, or a non-positive mass or air density. Sparse segments lower the
// confidence score instead of failing.
func AnalyzePhysicalPower(points []store.ActivityPoint, params DragParams) (*PhysicalPowerAnalysis, error) {
	if params.TotalMass <= 0 {
		return nil, fmt.Errorf("%w: total mass must be positive, got %.1f", ErrInvalidInput, params.TotalMass)
	}
	if params.AirDensity <= 0 {
		return nil, fmt.Errorf("%w: air density must be positive, got %.3f", ErrInvalidInput, params.AirDensity)
	}
	if params.FlatGradeMax <= 0 {
		params.FlatGradeMax = 0.005
	}
	if params.FallbackCrr <= 0 {
		params.FallbackCrr = DefaultCrr
	}

	grades := sampleGrades(points)

	// Collect near-flat powered observations grouped into contiguous
	// segments; isolated samples are too noisy to regress on.
	var observations []dragObs
	segments := 0
	run := 0
	flush := func(end int) {
		if run >= minSegmentLen {
			segments++
			for j := end - run; j < end; j++ {
				p := points[j]
				v := p.Speed / 3.6 // km/h -> m/s
				observations = append(observations, dragObs{
					aero:    0.5 * params.AirDensity * v * v * v,
					rolling: params.TotalMass * gravity * v,
					target:  p.Power - params.TotalMass*gravity*v*math.Sin(math.Atan(grades[j])),
				})
			}
		}
		run = 0
	}

	powered := 0
	for i, p := range points {
		if p.Power > 0 {
			powered++
		}
		if p.Power > 0 && p.Speed > 0 && math.Abs(grades[i]) <= params.FlatGradeMax {
			run++
		} else {
			flush(i)
		}
	}
	flush(len(points))

	if powered == 0 {
		return nil, fmt.Errorf("%w: no samples with positive power", ErrInsufficientData)
	}

	cda, crr, jointFit := solveDrag(observations, params.FallbackCrr)

	result := &PhysicalPowerAnalysis{
		CdA:         cda,
		Crr:         crr,
		AirDensity:  params.AirDensity,
		TotalMass:   params.TotalMass,
		SegmentsCdA: segments,
	}
	if jointFit {
		result.SegmentsCrr = segments
	}

	// Decompose every powered, moving sample with the fitted coefficients.
	for i, p := range points {
		if p.Power <= 0 || p.Speed <= 0 {
			continue
		}
		v := p.Speed / 3.6
		theta := math.Atan(grades[i])
		result.PowerAero = append(result.PowerAero, 0.5*params.AirDensity*cda*v*v*v)
		result.PowerRolling = append(result.PowerRolling, crr*params.TotalMass*gravity*v)
		result.PowerGravity = append(result.PowerGravity, params.TotalMass*gravity*v*math.Sin(theta))
	}

	// Confidence: reconstruction error over the regression observations,
	// tempered by how much data contributed. Degrades, never fails.
	if len(observations) > 0 {
		var sse, sumPower float64
		for _, o := range observations {
			predicted := cda*o.aero + crr*o.rolling
			residual := o.target - predicted
			sse += residual * residual
			sumPower += o.target
		}
		rmse := math.Sqrt(sse / float64(len(observations)))
		meanPower := sumPower / float64(len(observations))
		fit := 1 - rmse/math.Max(meanPower, 1)
		adequacy := math.Min(1, float64(len(observations))/120.0)
		result.Confidence = clamp(fit*(0.5+0.5*adequacy), 0, 1)
	}

	return result, nil
}

// sampleGrades derives per-sample road gradient from altitude and distance
// deltas. Samples without both neighbors' altitude/distance get zero grade.
func sampleGrades(points []store.ActivityPoint) []float64 {
	grades := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if prev.Altitude == nil || cur.Altitude == nil || prev.Distance == nil || cur.Distance == nil {
			continue
		}
		dDist := *cur.Distance - *prev.Distance
		if dDist <= 0 {
			continue
		}
		grades[i] = (*cur.Altitude - *prev.Altitude) / dDist
	}
	return grades
}

// dragObs is one regression observation: power = CdA*aero + Crr*rolling.
type dragObs struct {
	aero    float64 // 0.5 * rho * v^3, coefficient of CdA
	rolling float64 // m * g * v, coefficient of Crr
	target  float64 // measured power minus the gravity term
}

// solveDrag fits (CdA, Crr) by least squares over the observations,
// minimizing the power reconstruction error. When the normal equations are
// near-singular (speeds too uniform to separate the cubic and linear terms)
// Crr is held at the fallback and CdA is fit alone. Returns whether the
// joint fit succeeded.
func solveDrag(observations []dragObs, fallbackCrr float64) (cda, crr float64, joint bool) {
	if len(observations) == 0 {
		// Nothing to regress on: report textbook coefficients so the
		// decomposition still runs, with zero confidence.
		return DefaultCdA, fallbackCrr, false
	}

	var saa, sab, sbb, say, sby float64
	for _, o := range observations {
		saa += o.aero * o.aero
		sab += o.aero * o.rolling
		sbb += o.rolling * o.rolling
		say += o.aero * o.target
		sby += o.rolling * o.target
	}

	det := saa*sbb - sab*sab
	// Relative determinant threshold: below it the system is effectively
	// rank one and the joint solution is numeric noise.
	if det > 1e-9*saa*sbb {
		cda = (say*sbb - sby*sab) / det
		crr = (sby*saa - say*sab) / det
		if cda > 0 && crr > 0 {
			return cda, crr, true
		}
	}

	// Degenerate or unphysical joint fit: hold Crr fixed, solve CdA.
	crr = fallbackCrr
	var num, den float64
	for _, o := range observations {
		num += o.aero * (o.target - crr*o.rolling)
		den += o.aero * o.aero
	}
	if den == 0 {
		return DefaultCdA, crr, false
	}
	return math.Max(num/den, 0), crr, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
