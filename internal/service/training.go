package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"velometrics/internal/analysis"
	"velometrics/internal/settings"
	"velometrics/internal/store"
)

// TrainingService maintains the athlete-level models: the power-duration
// curve, FTP estimation, training zones, the daily load series and the
// recommendations derived from them.
type TrainingService struct {
	store    *store.DB
	settings *settings.Resolver
	logger   *slog.Logger
}

// NewTrainingService creates the training service.
func NewTrainingService(db *store.DB, res *settings.Resolver, logger *slog.Logger) *TrainingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainingService{store: db, settings: res, logger: logger}
}

// CurrentFTP returns the athlete's working FTP: the latest stored estimate,
// else the configured value, else the application default.
func (s *TrainingService) CurrentFTP(ctx context.Context, userID int64) float64 {
	if est, err := s.store.GetLatestFTPEstimate(userID); err == nil && est != nil {
		return est.Watts
	}
	rc := settings.Context{UserID: &userID}
	return s.settings.Float64(ctx, KeyFTP, rc, DefaultFTP)
}

// UpdateZones recomputes and persists the seven power zones for a user.
// A non-positive ftp resolves the working FTP first.
func (s *TrainingService) UpdateZones(ctx context.Context, userID int64, ftp float64) ([]analysis.TrainingZone, error) {
	if ftp <= 0 {
		ftp = s.CurrentFTP(ctx, userID)
	}

	zones := analysis.CogganZones(ftp)
	rows := make([]store.TrainingZoneRow, 0, len(zones))
	for _, z := range zones {
		rows = append(rows, store.TrainingZoneRow{
			UserID:    userID,
			Zone:      z.Zone,
			Name:      z.Name,
			MinWatts:  z.Min,
			MaxWatts:  z.Max,
			TargetPct: z.TargetPct,
		})
	}
	if err := s.store.SaveTrainingZones(userID, rows); err != nil {
		return nil, err
	}
	s.logger.Info("training zones updated", "user_id", userID, "ftp", ftp)
	return zones, nil
}

// CheckZoneDrift compares a user's observed time-in-zone distribution against
// the stored zone targets. Thresholds come from scoped configuration.
func (s *TrainingService) CheckZoneDrift(ctx context.Context, userID int64, observed []float64) (analysis.DriftReport, error) {
	rows, err := s.store.GetTrainingZones(userID)
	if err != nil {
		return analysis.DriftReport{}, err
	}
	if len(rows) == 0 {
		return analysis.DriftReport{}, fmt.Errorf("no training zones stored for user %d", userID)
	}
	zones := make([]analysis.TrainingZone, 0, len(rows))
	for _, r := range rows {
		zones = append(zones, analysis.TrainingZone{
			Zone: r.Zone, Name: r.Name, Min: r.MinWatts, Max: r.MaxWatts, TargetPct: r.TargetPct,
		})
	}

	rc := settings.Context{UserID: &userID}
	thresholds := analysis.DriftThresholds{
		Drift:         s.settings.Float64(ctx, KeyDriftThreshold, rc, DefaultDriftThreshold),
		Recalibration: s.settings.Float64(ctx, KeyRecalThreshold, rc, DefaultRecalThreshold),
	}
	report := analysis.DetectDrift(observed, zones, thresholds)
	if report.RecalibrationNeeded {
		s.logger.Warn("zone distribution drifted past recalibration threshold",
			"user_id", userID, "magnitude", report.Magnitude)
	}
	return report, nil
}

// FTPReport is the outcome of an FTP refresh: the estimate, its cross-check
// against the measured power curve, and the curve itself.
type FTPReport struct {
	Estimate   *analysis.FTPEstimate
	Validation analysis.FTPValidation
	Curve      []analysis.PowerCurvePoint
	Model      *analysis.CriticalPowerModel // nil when the curve is too sparse
}

// RefreshFTP rebuilds the athlete's power-duration curve from all stored
// activities, estimates FTP from it and persists the estimate.
func (s *TrainingService) RefreshFTP(ctx context.Context, userID int64) (*FTPReport, error) {
	activities, err := s.store.ListActivities(userID)
	if err != nil {
		return nil, err
	}
	if len(activities) == 0 {
		return nil, fmt.Errorf("%w: user %d has no activities", analysis.ErrInsufficientData, userID)
	}

	now := time.Now()
	var (
		curves    [][]analysis.PowerCurvePoint
		weekly20  = map[int]float64{}
		hrSum     float64
		hrSamples int
	)
	for _, a := range activities {
		points, err := s.store.GetPoints(a.ID)
		if err != nil {
			return nil, fmt.Errorf("loading points for activity %d: %w", a.ID, err)
		}
		curve := analysis.PowerCurve(points, analysis.StandardDurations)
		if len(curve) == 0 {
			continue
		}
		curves = append(curves, curve)

		weeksAgo := int(now.Sub(a.StartDate).Hours() / (24 * 7))
		if weeksAgo >= 0 && weeksAgo < ftpTrendWeeks {
			for _, p := range curve {
				if p.DurationSeconds == 1200 && p.Watts > weekly20[weeksAgo] {
					weekly20[weeksAgo] = p.Watts
				}
			}
			for _, p := range points {
				if p.Heartrate != nil {
					hrSum += float64(*p.Heartrate)
					hrSamples++
				}
			}
		}
	}

	merged := analysis.MergePowerCurves(curves...)

	features := analysis.FTPFeatures{}
	for i := range merged {
		switch merged[i].DurationSeconds {
		case 1200:
			features.Best20Min = &merged[i].Watts
		case 3600:
			features.Best60Min = &merged[i].Watts
		}
	}
	for weeksAgo, watts := range weekly20 {
		features.Weekly20Min = append(features.Weekly20Min, analysis.WeeklyEffort{WeeksAgo: weeksAgo, Watts: watts})
	}
	if hrSamples > 0 {
		avg := hrSum / float64(hrSamples)
		features.RecentAvgHR = &avg
	}
	if days, err := s.store.GetTrainingLoad(userID); err == nil && len(days) > 0 {
		ctl := days[len(days)-1].CTL
		features.RecentCTL = &ctl
	}

	est, err := analysis.EstimateFTP(features)
	if err != nil {
		return nil, err
	}

	report := &FTPReport{
		Estimate:   est,
		Validation: analysis.ValidateFTP(est.Watts, merged),
		Curve:      merged,
	}
	if model, err := analysis.FitCriticalPower(merged); err == nil {
		report.Model = model
	} else if !errors.Is(err, analysis.ErrInsufficientData) {
		return nil, err
	}

	if err := s.store.InsertFTPEstimate(&store.FTPEstimateRow{
		UserID:      userID,
		EstimatedAt: now,
		Watts:       est.Watts,
		Low:         est.Low,
		High:        est.High,
		Confidence:  est.Confidence,
		Method:      est.Method,
	}); err != nil {
		return nil, err
	}
	s.logger.Info("ftp estimate refreshed",
		"user_id", userID, "watts", est.Watts, "method", est.Method, "confidence", est.Confidence)
	return report, nil
}

// UpdateTrainingLoad recomputes the daily CTL/ATL/TSB series from every
// stored activity, persists it, and regenerates the user's recommendations.
// weeklyImprovement is the FTP trend in watts per week, typically from the
// latest RefreshFTP.
func (s *TrainingService) UpdateTrainingLoad(ctx context.Context, userID int64, weeklyImprovement float64) ([]analysis.TrainingLoadDay, []store.RecommendationRow, error) {
	activities, err := s.store.ListActivities(userID)
	if err != nil {
		return nil, nil, err
	}
	if len(activities) == 0 {
		return nil, nil, fmt.Errorf("%w: user %d has no activities", analysis.ErrInsufficientData, userID)
	}

	workingFTP := s.CurrentFTP(ctx, userID)

	var daily []analysis.DailyTSS
	for _, a := range activities {
		points, err := s.store.GetPoints(a.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading points for activity %d: %w", a.ID, err)
		}
		np := analysis.NormalizedPower(points)

		// Prefer the FTP recorded on the activity: stress is relative to the
		// athlete's threshold at the time of the ride.
		ftp := workingFTP
		if a.FTP != nil && *a.FTP > 0 {
			ftp = *a.FTP
		}
		daily = append(daily, analysis.DailyTSS{
			Date: a.StartDate,
			TSS:  analysis.TSS(a.MovingTime, np, ftp),
		})
	}

	rc := settings.Context{UserID: &userID}
	seeds := analysis.LoadSeeds{
		CTL: s.settings.Float64(ctx, KeySeedCTL, rc, 0),
		ATL: s.settings.Float64(ctx, KeySeedATL, rc, 0),
	}
	days := analysis.FitnessTrend(daily, seeds)

	rows := make([]store.TrainingLoadRow, 0, len(days))
	for _, d := range days {
		rows = append(rows, store.TrainingLoadRow{
			UserID:       userID,
			Date:         d.Date,
			TSS:          d.TSS,
			CTL:          d.CTL,
			ATL:          d.ATL,
			TSB:          d.TSB,
			FatigueScore: d.FatigueScore,
			FitnessScore: d.FitnessScore,
			FormScore:    d.FormScore,
		})
	}
	if err := s.store.SaveTrainingLoad(userID, rows); err != nil {
		return nil, nil, err
	}

	current := days[len(days)-1]
	recs := analysis.Recommend(
		analysis.BucketFatigue(current.FatigueScore),
		analysis.BucketForm(current.TSB),
		analysis.BucketTrend(weeklyImprovement),
	)
	recRows := make([]store.RecommendationRow, 0, len(recs))
	for _, r := range recs {
		recRows = append(recRows, store.RecommendationRow{
			ID:        uuid.NewString(),
			UserID:    userID,
			Priority:  r.Priority,
			Message:   r.Message,
			CreatedAt: time.Now().UTC(),
		})
	}
	if err := s.store.ReplaceRecommendations(userID, recRows); err != nil {
		return nil, nil, err
	}

	s.logger.Info("training load updated",
		"user_id", userID, "days", len(days),
		"ctl", current.CTL, "atl", current.ATL, "tsb", current.TSB)
	return days, recRows, nil
}
