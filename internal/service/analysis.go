package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"velometrics/internal/analysis"
	"velometrics/internal/settings"
	"velometrics/internal/store"
)

// AnalysisService runs the per-activity analyses: data quality, the
// efficiency curve, the standardized 40 km/h figure and the physical power
// decomposition. Results are persisted so queries never recompute.
type AnalysisService struct {
	store    *store.DB
	settings *settings.Resolver
	logger   *slog.Logger

	// Equipment identifiers from the application config; the user scope is
	// filled per activity.
	scope settings.Context

	// Fallback rider+bike mass when no scoped entry exists.
	totalMass float64
}

// NewAnalysisService creates the analysis service.
func NewAnalysisService(db *store.DB, res *settings.Resolver, totalMass float64, scope settings.Context, logger *slog.Logger) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		store:     db,
		settings:  res,
		logger:    logger,
		scope:     scope,
		totalMass: totalMass,
	}
}

// ActivityReport bundles every per-activity analysis result.
type ActivityReport struct {
	Activity *store.Activity
	Quality  analysis.DataQualityReport
	Curve    []analysis.EfficiencyRange
	Standard analysis.StandardEfficiency

	// Physics is nil when the activity has no powered samples.
	Physics *analysis.PhysicalPowerAnalysis
}

// AnalyzeActivity computes and persists all analyses for one stored activity.
// Data-quality warnings lower the report but never abort it; only a missing
// activity or a storage failure is an error.
func (s *AnalysisService) AnalyzeActivity(ctx context.Context, activityID int64) (*ActivityReport, error) {
	a, err := s.store.GetActivity(activityID)
	if err != nil {
		return nil, err
	}
	points, err := s.store.GetPoints(activityID)
	if err != nil {
		return nil, fmt.Errorf("loading points for activity %d: %w", activityID, err)
	}

	rc := s.scope
	rc.UserID = &a.UserID

	report := &ActivityReport{Activity: a}

	report.Quality = analysis.DataQuality(points)
	for i, w := range report.Quality.Warnings {
		s.logger.Warn("data quality issue",
			"activity_id", activityID, "warning", w,
			"recommendation", report.Quality.Recommendations[i])
	}

	report.Curve = analysis.EfficiencyCurve(points)
	if err := s.store.SaveEfficiencyCurve(activityID, curveRows(activityID, report.Curve)); err != nil {
		return nil, err
	}

	report.Standard = analysis.StandardEfficiency40(points)
	std := report.Standard
	if err := s.store.SaveStandardEfficiency(&store.StandardEfficiencyRow{
		ActivityID: activityID,
		Efficiency: std.Efficiency,
		MeanPower:  std.MeanPower,
		Samples:    std.Samples,
		Warning:    std.Warning,
	}); err != nil {
		return nil, err
	}

	params := analysis.DragParams{
		AirDensity:   s.settings.Float64(ctx, KeyAirDensity, rc, analysis.DefaultAirDensity),
		TotalMass:    s.settings.Float64(ctx, KeyTotalMass, rc, s.totalMass),
		FlatGradeMax: s.settings.Float64(ctx, KeyFlatGradeMax, rc, 0),
		FallbackCrr:  s.settings.Float64(ctx, KeyDefaultCrr, rc, 0),
	}
	phys, err := analysis.AnalyzePhysicalPower(points, params)
	switch {
	case errors.Is(err, analysis.ErrInsufficientData):
		s.logger.Info("skipping physical power analysis",
			"activity_id", activityID, "reason", err)
	case err != nil:
		return nil, fmt.Errorf("physical power analysis for activity %d: %w", activityID, err)
	default:
		report.Physics = phys
		if err := s.store.SavePhysicalPower(&store.PhysicalPowerRow{
			ActivityID:  activityID,
			CdA:         phys.CdA,
			Crr:         phys.Crr,
			Confidence:  phys.Confidence,
			AirDensity:  phys.AirDensity,
			TotalMass:   phys.TotalMass,
			SegmentsCdA: phys.SegmentsCdA,
			SegmentsCrr: phys.SegmentsCrr,
		}); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// ImportActivity stores an activity and its sample stream, then analyzes it.
func (s *AnalysisService) ImportActivity(ctx context.Context, a *store.Activity, points []store.ActivityPoint) (*ActivityReport, error) {
	if err := s.store.UpsertActivity(a); err != nil {
		return nil, err
	}
	if err := s.store.SavePoints(a.ID, points); err != nil {
		return nil, err
	}
	return s.AnalyzeActivity(ctx, a.ID)
}

func curveRows(activityID int64, curve []analysis.EfficiencyRange) []store.EfficiencyRangeRow {
	rows := make([]store.EfficiencyRangeRow, 0, len(curve))
	for _, r := range curve {
		rows = append(rows, store.EfficiencyRangeRow{
			ActivityID: activityID,
			SpeedRange: r.SpeedRange,
			Efficiency: r.Efficiency,
			Samples:    r.Samples,
			MeanSpeed:  r.MeanSpeed,
			MeanPower:  r.MeanPower,
		})
	}
	return rows
}
