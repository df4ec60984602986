package analysis

import (
	"math"
	"testing"
)

func TestCogganZones(t *testing.T) {
	zones := CogganZones(200)

	if len(zones) != 7 {
		t.Fatalf("got %d zones, want 7", len(zones))
	}

	// Zone 1 starts at zero; each following zone starts one watt above the
	// previous max; zone 7 is effectively unbounded.
	if zones[0].Min != 0 {
		t.Errorf("zone 1 min = %d, want 0", zones[0].Min)
	}
	for i := 1; i < 7; i++ {
		if zones[i].Min != zones[i-1].Max+1 {
			t.Errorf("zone %d min = %d, want %d (prior max + 1)", i+1, zones[i].Min, zones[i-1].Max+1)
		}
	}

	wantMaxes := []int{110, 150, 180, 210, 240, 300, zone7Max}
	for i, want := range wantMaxes {
		if zones[i].Max != want {
			t.Errorf("zone %d max = %d, want %d", i+1, zones[i].Max, want)
		}
	}

	var targetSum float64
	for _, z := range zones {
		targetSum += z.TargetPct
	}
	if targetSum != 100 {
		t.Errorf("target percentages sum to %v, want 100", targetSum)
	}
}

func TestClassifyPower(t *testing.T) {
	zones := CogganZones(200)

	tests := []struct {
		power float64
		want  int
	}{
		{0, 1},
		{110, 1},
		{110.5, 2}, // between the integer bands; belongs to the higher zone
		{111, 2},
		{150, 2},
		{150.2, 3},
		{200, 4},
		{240, 5},
		{299, 6},
		{301, 7},
		{1500, 7},  // sprint spike saturates into zone 7
		{50000, 7}, // even absurd readings never fail
	}

	for _, tt := range tests {
		if got := ClassifyPower(tt.power, zones); got != tt.want {
			t.Errorf("ClassifyPower(%v) = %d, want %d", tt.power, got, tt.want)
		}
	}
}

func TestZoneDistribution(t *testing.T) {
	zones := CogganZones(200)

	t.Run("empty series", func(t *testing.T) {
		dist := ZoneDistribution(nil, zones)
		for i, pct := range dist {
			if pct != 0 {
				t.Errorf("zone %d pct = %v, want 0", i+1, pct)
			}
		}
	})

	t.Run("percentages sum to 100", func(t *testing.T) {
		powers := []float64{50, 50, 130, 170, 200, 225, 260, 320, 100, 100}
		dist := ZoneDistribution(powers, zones)
		var sum float64
		for _, pct := range dist {
			sum += pct
		}
		if math.Abs(sum-100) > 1e-9 {
			t.Errorf("distribution sums to %v, want 100", sum)
		}
		if dist[0] != 50 { // five of ten samples at or below 110 W
			t.Errorf("zone 1 pct = %v, want 50", dist[0])
		}
	})
}

func TestDetectDrift(t *testing.T) {
	zones := CogganZones(200)
	targets := make([]float64, 7)
	for i, z := range zones {
		targets[i] = z.TargetPct
	}

	t.Run("observed matches targets", func(t *testing.T) {
		got := DetectDrift(targets, zones, DriftThresholds{})
		if got.Magnitude != 0 || got.DriftDetected || got.RecalibrationNeeded {
			t.Errorf("got %+v, want no drift", got)
		}
	})

	t.Run("large deviation triggers recalibration", func(t *testing.T) {
		// All time in zone 1: deviations 85,35,20,15,8,5,2 -> mean 24.3.
		observed := []float64{100, 0, 0, 0, 0, 0, 0}
		got := DetectDrift(observed, zones, DriftThresholds{})
		if !got.DriftDetected {
			t.Error("DriftDetected = false, want true")
		}
		if !got.RecalibrationNeeded {
			t.Error("RecalibrationNeeded = false, want true")
		}
	})

	t.Run("thresholds come from the caller", func(t *testing.T) {
		observed := []float64{20, 30, 20, 15, 8, 5, 2}
		// Mean deviation is (5+5)/7 ~= 1.43 points.
		strict := DetectDrift(observed, zones, DriftThresholds{Drift: 1, Recalibration: 2})
		if !strict.DriftDetected {
			t.Error("strict thresholds should flag drift")
		}
		lax := DetectDrift(observed, zones, DriftThresholds{Drift: 10, Recalibration: 15})
		if lax.DriftDetected {
			t.Error("default-level thresholds should not flag drift")
		}
	})
}

func TestValidateFTP(t *testing.T) {
	curve := []PowerCurvePoint{
		{DurationSeconds: 60, Watts: 420},
		{DurationSeconds: 300, Watts: 330},
		{DurationSeconds: 1200, Watts: 300},
		{DurationSeconds: 3600, Watts: 270},
	}

	tests := []struct {
		name           string
		estimate       float64
		curve          []PowerCurvePoint
		wantConfidence string
	}{
		// Expected FTP from the curve is 0.95 * 300 = 285.
		{"within 5 percent", 285, curve, "high"},
		{"within 10 percent", 265, curve, "medium"},
		{"far off", 220, curve, "low"},
		{"no 20-minute point", 250, []PowerCurvePoint{{DurationSeconds: 300, Watts: 330}}, "medium"},
		{"empty curve", 250, nil, "medium"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateFTP(tt.estimate, tt.curve)
			if got.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %q, want %q", got.Confidence, tt.wantConfidence)
			}
			if got.Recommendation == "" {
				t.Error("Recommendation is empty")
			}
		})
	}

	t.Run("duration tolerance is sixty seconds", func(t *testing.T) {
		near := []PowerCurvePoint{{DurationSeconds: 1140, Watts: 300}}
		got := ValidateFTP(285, near)
		if got.ExpectedFTP == nil {
			t.Fatal("ExpectedFTP = nil, want value from the 19-minute point")
		}
		far := []PowerCurvePoint{{DurationSeconds: 1000, Watts: 300}}
		got = ValidateFTP(285, far)
		if got.ExpectedFTP != nil {
			t.Error("ExpectedFTP should be nil when no point is within tolerance")
		}
	})
}
