package analysis

import (
	"math"
	"testing"

	"velometrics/internal/store"
)

// Helper functions for creating test data
func floatPtr(f float64) *float64 {
	return &f
}

func makePoint(timeOffset int, power, speed float64) store.ActivityPoint {
	return store.ActivityPoint{
		TimeOffset: timeOffset,
		Power:      power,
		Speed:      speed,
	}
}

func makePoints(n int, power, speed float64) []store.ActivityPoint {
	points := make([]store.ActivityPoint, n)
	for i := range points {
		points[i] = makePoint(i, power, speed)
	}
	return points
}

func TestEfficiencyCurve(t *testing.T) {
	tests := []struct {
		name   string
		points []store.ActivityPoint
		want   []EfficiencyRange
	}{
		{
			name:   "empty input",
			points: nil,
			want:   nil,
		},
		{
			name:   "single qualifying bin",
			points: makePoints(10, 250, 32),
			want: []EfficiencyRange{
				{SpeedRange: "30-35", Efficiency: 0.128, Samples: 10, MeanSpeed: 32.00, MeanPower: 250.0},
			},
		},
		{
			name:   "nine samples is below the bin minimum",
			points: makePoints(9, 250, 32),
			want:   nil,
		},
		{
			name: "coasting and stopped samples excluded",
			points: append(
				makePoints(10, 250, 32),
				makePoint(100, 0, 45), // coasting
				makePoint(101, 180, 0), // trainer spin-up, no speed
			),
			want: []EfficiencyRange{
				{SpeedRange: "30-35", Efficiency: 0.128, Samples: 10, MeanSpeed: 32.00, MeanPower: 250.0},
			},
		},
		{
			name: "bins are half-open on the right",
			points: append(
				makePoints(10, 250, 35), // lands in 35-40, not 30-35
				makePoints(10, 200, 30)...,
			),
			want: []EfficiencyRange{
				{SpeedRange: "30-35", Efficiency: 0.15, Samples: 10, MeanSpeed: 30.00, MeanPower: 200.0},
				{SpeedRange: "35-40", Efficiency: 0.14, Samples: 10, MeanSpeed: 35.00, MeanPower: 250.0},
			},
		},
		{
			name: "implausible efficiency dropped as outlier",
			// 50 km/h at 20 W gives 2.5, above the 1.0 ceiling.
			points: makePoints(10, 20, 50),
			want:   nil,
		},
		{
			name: "efficiency below floor dropped as outlier",
			// 12 km/h at 1500 W gives 0.008, below the 0.01 floor.
			points: makePoints(10, 1500, 12),
			want:   nil,
		},
		{
			name:   "speeds outside all bins ignored",
			points: makePoints(20, 300, 65),
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EfficiencyCurve(tt.points)
			if len(got) != len(tt.want) {
				t.Fatalf("EfficiencyCurve() returned %d bins, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("bin %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestStandardEfficiency40(t *testing.T) {
	t.Run("enough samples at exactly 40", func(t *testing.T) {
		got := StandardEfficiency40(makePoints(15, 400, 40))
		if got.Efficiency == nil {
			t.Fatal("Efficiency = nil, want value")
		}
		if *got.Efficiency != 0.1 {
			t.Errorf("Efficiency = %v, want 0.1", *got.Efficiency)
		}
		if got.MeanPower == nil || *got.MeanPower != 400.0 {
			t.Errorf("MeanPower = %v, want 400.0", got.MeanPower)
		}
		if got.Samples != 15 {
			t.Errorf("Samples = %d, want 15", got.Samples)
		}
		if got.Warning != "" {
			t.Errorf("Warning = %q, want empty", got.Warning)
		}
	})

	t.Run("too few samples", func(t *testing.T) {
		got := StandardEfficiency40(makePoints(5, 400, 40))
		if got.Efficiency != nil {
			t.Errorf("Efficiency = %v, want nil", *got.Efficiency)
		}
		if got.Samples != 5 {
			t.Errorf("Samples = %d, want 5", got.Samples)
		}
		if got.Warning == "" {
			t.Error("Warning is empty, want an explanation")
		}
	})

	t.Run("band is inclusive at both edges", func(t *testing.T) {
		points := append(makePoints(5, 400, 39.5), makePoints(5, 400, 40.5)...)
		got := StandardEfficiency40(points)
		if got.Samples != 10 {
			t.Errorf("Samples = %d, want 10", got.Samples)
		}
		if got.Efficiency == nil {
			t.Fatal("Efficiency = nil, want value")
		}
	})

	t.Run("samples outside the band excluded", func(t *testing.T) {
		points := append(makePoints(15, 400, 40), makePoints(20, 100, 38)...)
		got := StandardEfficiency40(points)
		if got.Samples != 15 {
			t.Errorf("Samples = %d, want 15", got.Samples)
		}
	})

	t.Run("zero-power samples excluded", func(t *testing.T) {
		points := append(makePoints(5, 400, 40), makePoints(10, 0, 40)...)
		got := StandardEfficiency40(points)
		if got.Samples != 5 {
			t.Errorf("Samples = %d, want 5", got.Samples)
		}
		if got.Efficiency != nil {
			t.Error("Efficiency should be nil with only 5 powered samples")
		}
	})
}

func TestDataQuality(t *testing.T) {
	t.Run("clean high-speed activity", func(t *testing.T) {
		// Full speed range including the 40 km/h band.
		var points []store.ActivityPoint
		for i := 0; i < 100; i++ {
			points = append(points, makePoint(i, 250, 12+float64(i%30)))
		}
		points = append(points, makePoints(15, 300, 40)...)

		got := DataQuality(points)
		if !got.Valid {
			t.Errorf("Valid = false, warnings: %v", got.Warnings)
		}
		if got.ValidFraction != 1.0 {
			t.Errorf("ValidFraction = %v, want 1.0", got.ValidFraction)
		}
	})

	t.Run("empty activity", func(t *testing.T) {
		got := DataQuality(nil)
		if got.Valid {
			t.Error("Valid = true for empty activity")
		}
		if len(got.Warnings) == 0 {
			t.Error("expected a warning for empty activity")
		}
	})

	t.Run("mostly coasting", func(t *testing.T) {
		points := append(makePoints(20, 250, 25), makePoints(80, 0, 25)...)
		got := DataQuality(points)
		if math.Abs(got.ValidFraction-0.2) > 1e-9 {
			t.Errorf("ValidFraction = %v, want 0.2", got.ValidFraction)
		}
		found := false
		for _, w := range got.Warnings {
			if w != "" {
				found = true
			}
		}
		if !found {
			t.Error("expected a low-valid-fraction warning")
		}
	})

	t.Run("slow indoor ride accumulates warnings", func(t *testing.T) {
		// Max speed 25, min speed 20, no 40 km/h samples, all powered:
		// three warnings, so the report flips to invalid.
		points := append(makePoints(50, 150, 20), makePoints(50, 200, 25)...)
		got := DataQuality(points)
		if got.Valid {
			t.Errorf("Valid = true, want false with warnings: %v", got.Warnings)
		}
		if len(got.Warnings) != 3 {
			t.Errorf("got %d warnings, want 3: %v", len(got.Warnings), got.Warnings)
		}
		if len(got.Recommendations) != len(got.Warnings) {
			t.Errorf("recommendations (%d) should pair with warnings (%d)", len(got.Recommendations), len(got.Warnings))
		}
	})
}
