package analysis

import (
	"math"
	"testing"
	"time"

	"velometrics/internal/store"
)

func day(offset int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestNormalizedPower(t *testing.T) {
	t.Run("constant power equals average", func(t *testing.T) {
		if got := NormalizedPower(makePoints(120, 250, 30)); got != 250 {
			t.Errorf("NormalizedPower = %v, want 250", got)
		}
	})

	t.Run("short stream falls back to plain average", func(t *testing.T) {
		points := append(makePoints(5, 200, 30), makePoints(5, 300, 30)...)
		if got := NormalizedPower(points); got != 250 {
			t.Errorf("NormalizedPower = %v, want 250", got)
		}
	})

	t.Run("empty stream", func(t *testing.T) {
		if got := NormalizedPower(nil); got != 0 {
			t.Errorf("NormalizedPower = %v, want 0", got)
		}
	})

	t.Run("variable power exceeds average", func(t *testing.T) {
		// Alternating minutes of 150 and 350 W average 250 but stress more.
		var stream []store.ActivityPoint
		for i := 0; i < 10; i++ {
			w := 150.0
			if i%2 == 1 {
				w = 350
			}
			stream = append(stream, makePoints(60, w, 30)...)
		}
		got := NormalizedPower(stream)
		if got <= 250 {
			t.Errorf("NormalizedPower = %v, want above the 250 average", got)
		}
	})
}

func TestIntensityFactorAndTSS(t *testing.T) {
	if got := IntensityFactor(250, 250); got != 1.0 {
		t.Errorf("IntensityFactor(250, 250) = %v, want 1.0", got)
	}
	if got := IntensityFactor(250, 0); got != 0 {
		t.Errorf("IntensityFactor with zero FTP = %v, want 0", got)
	}

	// One hour at threshold is 100 TSS by definition.
	if got := TSS(3600, 250, 250); got != 100 {
		t.Errorf("TSS(1h at FTP) = %v, want 100", got)
	}
	// Half the time at the same intensity is half the stress.
	if got := TSS(1800, 250, 250); got != 50 {
		t.Errorf("TSS(30min at FTP) = %v, want 50", got)
	}
	if got := TSS(3600, 250, 0); got != 0 {
		t.Errorf("TSS with zero FTP = %v, want 0", got)
	}
}

func TestFitnessTrend(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		if got := FitnessTrend(nil, LoadSeeds{}); got != nil {
			t.Errorf("FitnessTrend(nil) = %v, want nil", got)
		}
	})

	t.Run("zero load decays monotonically toward zero", func(t *testing.T) {
		daily := []DailyTSS{
			{Date: day(0), TSS: 0},
			{Date: day(89), TSS: 0},
		}
		days := FitnessTrend(daily, LoadSeeds{CTL: 50, ATL: 30})
		if len(days) != 90 {
			t.Fatalf("got %d days, want 90", len(days))
		}
		prevCTL, prevATL := 50.0, 30.0
		for i, d := range days {
			if d.CTL >= prevCTL || d.CTL <= 0 {
				t.Fatalf("day %d: CTL = %v, want strictly decreasing and positive (prev %v)", i, d.CTL, prevCTL)
			}
			if d.ATL >= prevATL || d.ATL <= 0 {
				t.Fatalf("day %d: ATL = %v, want strictly decreasing and positive (prev %v)", i, d.ATL, prevATL)
			}
			prevCTL, prevATL = d.CTL, d.ATL
		}
		// ATL decays on a 7-day constant, so after 90 days it is near zero
		// while CTL still carries residual fitness.
		last := days[len(days)-1]
		if last.ATL > 0.01 {
			t.Errorf("final ATL = %v, want near zero", last.ATL)
		}
		if last.CTL < 5 {
			t.Errorf("final CTL = %v, want residual fitness above 5", last.CTL)
		}
	})

	t.Run("constant load at the seed is a fixed point", func(t *testing.T) {
		daily := make([]DailyTSS, 30)
		for i := range daily {
			daily[i] = DailyTSS{Date: day(i), TSS: 60}
		}
		days := FitnessTrend(daily, LoadSeeds{CTL: 60, ATL: 60})
		for i, d := range days {
			if math.Abs(d.CTL-60) > 1e-9 || math.Abs(d.ATL-60) > 1e-9 {
				t.Fatalf("day %d: CTL/ATL = %v/%v, want steady at 60", i, d.CTL, d.ATL)
			}
			if math.Abs(d.TSB) > 1e-9 {
				t.Fatalf("day %d: TSB = %v, want 0", i, d.TSB)
			}
		}
	})

	t.Run("same-day activities sum", func(t *testing.T) {
		daily := []DailyTSS{
			{Date: day(0), TSS: 30},
			{Date: day(0), TSS: 30},
			{Date: day(1), TSS: 0},
		}
		days := FitnessTrend(daily, LoadSeeds{})
		if days[0].TSS != 60 {
			t.Errorf("day 0 TSS = %v, want 60", days[0].TSS)
		}
	})

	t.Run("gap days contribute zero stress", func(t *testing.T) {
		daily := []DailyTSS{
			{Date: day(0), TSS: 100},
			{Date: day(7), TSS: 100},
		}
		days := FitnessTrend(daily, LoadSeeds{})
		if len(days) != 8 {
			t.Fatalf("got %d days, want 8 including the gap", len(days))
		}
		// ATL must fall across the rest week.
		if days[6].ATL >= days[0].ATL {
			t.Errorf("ATL after six rest days = %v, want below %v", days[6].ATL, days[0].ATL)
		}
	})

	t.Run("unsorted input is ordered before the recurrence", func(t *testing.T) {
		shuffled := []DailyTSS{
			{Date: day(2), TSS: 80},
			{Date: day(0), TSS: 100},
			{Date: day(1), TSS: 0},
		}
		ordered := []DailyTSS{
			{Date: day(0), TSS: 100},
			{Date: day(1), TSS: 0},
			{Date: day(2), TSS: 80},
		}
		a := FitnessTrend(shuffled, LoadSeeds{})
		b := FitnessTrend(ordered, LoadSeeds{})
		if len(a) != len(b) {
			t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i].CTL != b[i].CTL || a[i].ATL != b[i].ATL {
				t.Fatalf("day %d differs: %+v vs %+v", i, a[i], b[i])
			}
		}
	})

	t.Run("negative utc offsets keep every day", func(t *testing.T) {
		// Local-zone timestamps used to drop the final day's stress when the
		// zone sat west of UTC.
		bogota := time.FixedZone("America/Bogota", -5*60*60)
		daily := []DailyTSS{
			{Date: time.Date(2026, 3, 1, 18, 0, 0, 0, bogota), TSS: 100},
			{Date: time.Date(2026, 3, 2, 18, 0, 0, 0, bogota), TSS: 80},
		}
		days := FitnessTrend(daily, LoadSeeds{})
		if len(days) != 2 {
			t.Fatalf("got %d days, want 2", len(days))
		}
		var total float64
		for _, d := range days {
			total += d.TSS
		}
		if total != 180 {
			t.Errorf("series accounts for %v TSS, want 180", total)
		}
		if days[1].TSS != 80 {
			t.Errorf("last day TSS = %v, want 80", days[1].TSS)
		}
	})

	t.Run("scores stay in range", func(t *testing.T) {
		daily := make([]DailyTSS, 14)
		for i := range daily {
			daily[i] = DailyTSS{Date: day(i), TSS: 400}
		}
		days := FitnessTrend(daily, LoadSeeds{})
		for _, d := range days {
			for _, s := range []float64{d.FatigueScore, d.FitnessScore, d.FormScore} {
				if s < 0 || s > 100 {
					t.Fatalf("score %v out of [0, 100] on %v", s, d.Date)
				}
			}
		}
	})
}

func TestCurrentLoad(t *testing.T) {
	if got := CurrentLoad(nil, LoadSeeds{}); got.CTL != 0 || got.ATL != 0 {
		t.Errorf("CurrentLoad(nil) = %+v, want zero value", got)
	}

	daily := []DailyTSS{{Date: day(0), TSS: 100}, {Date: day(1), TSS: 50}}
	got := CurrentLoad(daily, LoadSeeds{})
	want := FitnessTrend(daily, LoadSeeds{})
	if got != want[len(want)-1] {
		t.Errorf("CurrentLoad = %+v, want last trend day %+v", got, want[len(want)-1])
	}
}

func TestFormDescription(t *testing.T) {
	tests := []struct {
		tsb  float64
		want string
	}{
		{30, "Very fresh (possibly detrained)"},
		{15, "Fresh and ready to race"},
		{5, "Neutral - good for training"},
		{-5, "Slightly fatigued"},
		{-15, "Tired but building fitness"},
		{-30, "Very fatigued - rest needed"},
	}
	for _, tt := range tests {
		if got := FormDescription(tt.tsb); got != tt.want {
			t.Errorf("FormDescription(%v) = %q, want %q", tt.tsb, got, tt.want)
		}
	}
}

func TestRecommend(t *testing.T) {
	t.Run("every bucket combination yields recommendations", func(t *testing.T) {
		for _, f := range []FatigueLevel{FatigueLow, FatigueModerate, FatigueHigh} {
			for _, s := range []FormState{FormFresh, FormNeutral, FormTired} {
				for _, tr := range []TrendDirection{TrendImproving, TrendFlat, TrendDeclining} {
					recs := Recommend(f, s, tr)
					if len(recs) < 2 {
						t.Fatalf("Recommend(%v, %v, %v) returned %d entries, want at least 2", f, s, tr, len(recs))
					}
					for _, r := range recs {
						if r.Priority != "high" && r.Priority != "medium" && r.Priority != "low" {
							t.Fatalf("bad priority %q", r.Priority)
						}
						if r.Message == "" {
							t.Fatal("empty recommendation message")
						}
					}
				}
			}
		}
	})

	t.Run("overreaching pattern escalates", func(t *testing.T) {
		recs := Recommend(FatigueHigh, FormTired, TrendDeclining)
		high := 0
		for _, r := range recs {
			if r.Priority == "high" {
				high++
			}
		}
		if high < 2 {
			t.Errorf("got %d high-priority entries, want 2 for declining FTP under high fatigue", high)
		}
	})

	t.Run("buckets", func(t *testing.T) {
		if BucketFatigue(75) != FatigueHigh || BucketFatigue(50) != FatigueModerate || BucketFatigue(10) != FatigueLow {
			t.Error("fatigue buckets misclassified")
		}
		if BucketForm(15) != FormFresh || BucketForm(0) != FormNeutral || BucketForm(-15) != FormTired {
			t.Error("form buckets misclassified")
		}
		if BucketTrend(2) != TrendImproving || BucketTrend(0.5) != TrendFlat || BucketTrend(-3) != TrendDeclining {
			t.Error("trend buckets misclassified")
		}
	})
}
