package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"velometrics/internal/analysis"
	"velometrics/internal/settings"
	"velometrics/internal/store"
)

func testEnv(t *testing.T) (*store.DB, *settings.Resolver) {
	t.Helper()
	db, err := store.OpenTest()
	if err != nil {
		t.Fatalf("OpenTest() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, settings.NewResolver(db)
}

// flatRide builds a steady flat ride from the forward physics model so every
// analysis has plausible input.
func flatRide(seconds int, cda, crr, mass float64) []store.ActivityPoint {
	speeds := []float64{25, 32, 38, 44}
	points := make([]store.ActivityPoint, 0, seconds)
	dist := 0.0
	for i := 0; i < seconds; i++ {
		kmh := speeds[(i/30)%len(speeds)]
		v := kmh / 3.6
		dist += v
		alt := 120.0
		d := dist
		hr := 140 + i%10
		points = append(points, store.ActivityPoint{
			TimeOffset: i,
			Power:      0.5*1.225*cda*v*v*v + crr*mass*9.81*v,
			Speed:      kmh,
			Altitude:   &alt,
			Distance:   &d,
			Heartrate:  &hr,
		})
	}
	return points
}

func seedActivity(t *testing.T, db *store.DB, id, userID int64, start time.Time, points []store.ActivityPoint) {
	t.Helper()
	err := db.UpsertActivity(&store.Activity{
		ID: id, UserID: userID, Name: "ride",
		StartDate: start, Distance: 40000,
		MovingTime: len(points), ElapsedTime: len(points),
	})
	if err != nil {
		t.Fatalf("UpsertActivity() error = %v", err)
	}
	if err := db.SavePoints(id, points); err != nil {
		t.Fatalf("SavePoints() error = %v", err)
	}
}

func TestAnalyzeActivity(t *testing.T) {
	db, res := testEnv(t)
	ctx := context.Background()
	svc := NewAnalysisService(db, res, 83, settings.Context{}, nil)

	points := flatRide(600, 0.31, 0.0045, 83)
	seedActivity(t, db, 1, 1, time.Now().UTC(), points)

	report, err := svc.AnalyzeActivity(ctx, 1)
	if err != nil {
		t.Fatalf("AnalyzeActivity() error = %v", err)
	}

	if len(report.Curve) == 0 {
		t.Error("efficiency curve is empty for a steady ride")
	}
	if report.Physics == nil {
		t.Fatal("Physics = nil for a powered ride")
	}
	if math.Abs(report.Physics.CdA-0.31) > 0.01 {
		t.Errorf("CdA = %v, want ~0.31", report.Physics.CdA)
	}

	// Everything the report holds must also be persisted.
	bins, err := db.GetEfficiencyCurve(1)
	if err != nil {
		t.Fatalf("GetEfficiencyCurve() error = %v", err)
	}
	if len(bins) != len(report.Curve) {
		t.Errorf("stored %d bins, report has %d", len(bins), len(report.Curve))
	}
	std, err := db.GetStandardEfficiency(1)
	if err != nil || std == nil {
		t.Fatalf("GetStandardEfficiency() = %v, %v", std, err)
	}
	phys, err := db.GetPhysicalPower(1)
	if err != nil || phys == nil {
		t.Fatalf("GetPhysicalPower() = %v, %v", phys, err)
	}
	if phys.CdA != report.Physics.CdA {
		t.Errorf("stored CdA %v differs from report %v", phys.CdA, report.Physics.CdA)
	}

	t.Run("missing activity", func(t *testing.T) {
		_, err := svc.AnalyzeActivity(ctx, 404)
		if !errors.Is(err, store.ErrActivityNotFound) {
			t.Errorf("error = %v, want ErrActivityNotFound", err)
		}
	})

	t.Run("unpowered ride skips physics", func(t *testing.T) {
		var coasting []store.ActivityPoint
		for i := 0; i < 120; i++ {
			coasting = append(coasting, store.ActivityPoint{TimeOffset: i, Speed: 30})
		}
		seedActivity(t, db, 2, 1, time.Now().UTC(), coasting)

		report, err := svc.AnalyzeActivity(ctx, 2)
		if err != nil {
			t.Fatalf("AnalyzeActivity() error = %v", err)
		}
		if report.Physics != nil {
			t.Error("Physics should be nil without powered samples")
		}
	})
}

func TestAnalyzeActivityUsesScopedConfig(t *testing.T) {
	db, res := testEnv(t)
	ctx := context.Background()

	// A bicycle-scoped air density override must reach the physics model.
	bikeID := int64(7)
	if err := db.Upsert(ctx, settings.Entry{
		Key: KeyAirDensity, Scope: "bicycle", ScopeID: &bikeID,
		Value: "1.1", DataType: settings.TypeNumber,
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	svc := NewAnalysisService(db, res, 83, settings.Context{BicycleID: &bikeID}, nil)
	seedActivity(t, db, 1, 1, time.Now().UTC(), flatRide(300, 0.31, 0.0045, 83))

	report, err := svc.AnalyzeActivity(ctx, 1)
	if err != nil {
		t.Fatalf("AnalyzeActivity() error = %v", err)
	}
	if report.Physics == nil || report.Physics.AirDensity != 1.1 {
		t.Fatalf("Physics.AirDensity = %+v, want the bicycle-scoped 1.1", report.Physics)
	}
}

func TestUpdateZones(t *testing.T) {
	db, res := testEnv(t)
	ctx := context.Background()
	svc := NewTrainingService(db, res, nil)

	zones, err := svc.UpdateZones(ctx, 1, 200)
	if err != nil {
		t.Fatalf("UpdateZones() error = %v", err)
	}
	if len(zones) != 7 {
		t.Fatalf("got %d zones, want 7", len(zones))
	}

	stored, err := db.GetTrainingZones(1)
	if err != nil {
		t.Fatalf("GetTrainingZones() error = %v", err)
	}
	if len(stored) != 7 || stored[3].MinWatts != 181 || stored[3].MaxWatts != 210 {
		t.Errorf("stored zones = %+v", stored)
	}

	t.Run("resolves ftp from config when omitted", func(t *testing.T) {
		uid := int64(2)
		if err := db.Upsert(ctx, settings.Entry{
			Key: KeyFTP, Scope: "user", ScopeID: &uid,
			Value: "300", DataType: settings.TypeNumber,
		}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		zones, err := svc.UpdateZones(ctx, 2, 0)
		if err != nil {
			t.Fatalf("UpdateZones() error = %v", err)
		}
		// Zone 2 tops out at 75% of FTP.
		if zones[1].Max != 225 {
			t.Errorf("zone 2 max = %d, want 225 for FTP 300", zones[1].Max)
		}
	})
}

func TestCheckZoneDrift(t *testing.T) {
	db, res := testEnv(t)
	ctx := context.Background()
	svc := NewTrainingService(db, res, nil)

	if _, err := svc.CheckZoneDrift(ctx, 1, []float64{100, 0, 0, 0, 0, 0, 0}); err == nil {
		t.Error("expected an error before zones exist")
	}

	if _, err := svc.UpdateZones(ctx, 1, 250); err != nil {
		t.Fatalf("UpdateZones() error = %v", err)
	}

	report, err := svc.CheckZoneDrift(ctx, 1, []float64{100, 0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("CheckZoneDrift() error = %v", err)
	}
	if !report.DriftDetected || !report.RecalibrationNeeded {
		t.Errorf("report = %+v, want drift and recalibration flagged", report)
	}

	t.Run("user-scoped thresholds apply", func(t *testing.T) {
		uid := int64(1)
		if err := db.Upsert(ctx, settings.Entry{
			Key: KeyRecalThreshold, Scope: "user", ScopeID: &uid,
			Value: "90", DataType: settings.TypeNumber,
		}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		res.ClearCache()
		report, err := svc.CheckZoneDrift(ctx, 1, []float64{100, 0, 0, 0, 0, 0, 0})
		if err != nil {
			t.Fatalf("CheckZoneDrift() error = %v", err)
		}
		if report.RecalibrationNeeded {
			t.Error("recalibration flagged despite a 90-point threshold")
		}
	})
}

func TestRefreshFTP(t *testing.T) {
	db, res := testEnv(t)
	ctx := context.Background()
	svc := NewTrainingService(db, res, nil)

	if _, err := svc.RefreshFTP(ctx, 1); !errors.Is(err, analysis.ErrInsufficientData) {
		t.Errorf("RefreshFTP() with no activities: error = %v, want ErrInsufficientData", err)
	}

	// A 30-minute ride yields 20-minute bests but no hour power.
	start := time.Now().UTC().Add(-48 * time.Hour)
	seedActivity(t, db, 1, 1, start, flatRide(1800, 0.31, 0.0045, 83))

	report, err := svc.RefreshFTP(ctx, 1)
	if err != nil {
		t.Fatalf("RefreshFTP() error = %v", err)
	}
	if report.Estimate == nil || report.Estimate.Watts <= 0 {
		t.Fatalf("Estimate = %+v", report.Estimate)
	}
	if report.Estimate.Method != "heuristic" {
		t.Errorf("Method = %q, want heuristic with a single week of data", report.Estimate.Method)
	}
	if report.Validation.Confidence == "" {
		t.Error("Validation.Confidence is empty")
	}
	if len(report.Curve) == 0 {
		t.Error("Curve is empty")
	}
	if report.Model == nil {
		t.Error("Model = nil, want a critical power fit from multiple durations")
	}

	stored, err := db.GetLatestFTPEstimate(1)
	if err != nil || stored == nil {
		t.Fatalf("GetLatestFTPEstimate() = %v, %v", stored, err)
	}
	if stored.Watts != report.Estimate.Watts {
		t.Errorf("stored watts %v differ from report %v", stored.Watts, report.Estimate.Watts)
	}
}

func TestUpdateTrainingLoad(t *testing.T) {
	db, res := testEnv(t)
	ctx := context.Background()
	svc := NewTrainingService(db, res, nil)

	now := time.Now().UTC()
	for i := int64(0); i < 5; i++ {
		seedActivity(t, db, i+1, 1, now.AddDate(0, 0, -int(i)*2), flatRide(1800, 0.31, 0.0045, 83))
	}

	days, recs, err := svc.UpdateTrainingLoad(ctx, 1, 0)
	if err != nil {
		t.Fatalf("UpdateTrainingLoad() error = %v", err)
	}
	if len(days) < 9 {
		t.Errorf("got %d days, want the full span including rest days", len(days))
	}
	for i := 1; i < len(days); i++ {
		if !days[i].Date.After(days[i-1].Date) {
			t.Fatalf("series not chronological at %d", i)
		}
	}
	if len(recs) == 0 {
		t.Fatal("no recommendations generated")
	}
	for _, r := range recs {
		if r.ID == "" {
			t.Error("recommendation without an id")
		}
	}

	stored, err := db.GetTrainingLoad(1)
	if err != nil {
		t.Fatalf("GetTrainingLoad() error = %v", err)
	}
	if len(stored) != len(days) {
		t.Errorf("stored %d days, computed %d", len(stored), len(days))
	}

	storedRecs, err := db.GetRecommendations(1)
	if err != nil {
		t.Fatalf("GetRecommendations() error = %v", err)
	}
	if len(storedRecs) != len(recs) {
		t.Errorf("stored %d recommendations, computed %d", len(storedRecs), len(recs))
	}

	// A second run replaces, not appends.
	_, recs2, err := svc.UpdateTrainingLoad(ctx, 1, 0)
	if err != nil {
		t.Fatalf("UpdateTrainingLoad() second run error = %v", err)
	}
	storedRecs, _ = db.GetRecommendations(1)
	if len(storedRecs) != len(recs2) {
		t.Errorf("stored %d recommendations after rerun, want %d", len(storedRecs), len(recs2))
	}
}
