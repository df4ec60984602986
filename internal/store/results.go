package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveEfficiencyCurve replaces the efficiency curve bins for an activity.
// Bins are keyed by (activity_id, rango_velocidad).
func (s *DB) SaveEfficiencyCurve(activityID int64, bins []EfficiencyRangeRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM efficiency_curve WHERE activity_id = ?`, activityID); err != nil {
		return fmt.Errorf("deleting existing curve: %w", err)
	}

	for _, b := range bins {
		_, err := tx.Exec(`
			INSERT INTO efficiency_curve (activity_id, rango_velocidad, eficiencia, muestras, velocidad_media, potencia_media)
			VALUES (?, ?, ?, ?, ?, ?)`,
			activityID, b.SpeedRange, b.Efficiency, b.Samples, b.MeanSpeed, b.MeanPower)
		if err != nil {
			return fmt.Errorf("inserting curve bin %q: %w", b.SpeedRange, err)
		}
	}
	return tx.Commit()
}

// GetEfficiencyCurve retrieves the stored curve bins for an activity.
func (s *DB) GetEfficiencyCurve(activityID int64) ([]EfficiencyRangeRow, error) {
	rows, err := s.db.Query(`
		SELECT activity_id, rango_velocidad, eficiencia, muestras, velocidad_media, potencia_media
		FROM efficiency_curve WHERE activity_id = ? ORDER BY rango_velocidad`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bins []EfficiencyRangeRow
	for rows.Next() {
		var b EfficiencyRangeRow
		if err := rows.Scan(&b.ActivityID, &b.SpeedRange, &b.Efficiency, &b.Samples, &b.MeanSpeed, &b.MeanPower); err != nil {
			return nil, err
		}
		bins = append(bins, b)
	}
	return bins, rows.Err()
}

// SaveStandardEfficiency upserts the 40 km/h reference figure.
func (s *DB) SaveStandardEfficiency(r *StandardEfficiencyRow) error {
	_, err := s.db.Exec(`
		INSERT INTO standard_efficiency (activity_id, eficiencia_estandar_40kmh, potencia_media_40kmh, muestras, warning)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (activity_id) DO UPDATE SET
			eficiencia_estandar_40kmh = excluded.eficiencia_estandar_40kmh,
			potencia_media_40kmh = excluded.potencia_media_40kmh,
			muestras = excluded.muestras,
			warning = excluded.warning,
			computed_at = CURRENT_TIMESTAMP`,
		r.ActivityID, ptrToNullFloat64(r.Efficiency), ptrToNullFloat64(r.MeanPower), r.Samples, r.Warning)
	if err != nil {
		return fmt.Errorf("upserting standard efficiency for %d: %w", r.ActivityID, err)
	}
	return nil
}

// GetStandardEfficiency retrieves the 40 km/h figure for an activity.
// Returns nil when none is stored.
func (s *DB) GetStandardEfficiency(activityID int64) (*StandardEfficiencyRow, error) {
	row := s.db.QueryRow(`
		SELECT activity_id, eficiencia_estandar_40kmh, potencia_media_40kmh, muestras, warning
		FROM standard_efficiency WHERE activity_id = ?`, activityID)

	var r StandardEfficiencyRow
	var eff, power sql.NullFloat64
	err := row.Scan(&r.ActivityID, &eff, &power, &r.Samples, &r.Warning)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Efficiency = nullFloat64ToPtr(eff)
	r.MeanPower = nullFloat64ToPtr(power)
	return &r, nil
}

// SavePhysicalPower upserts the drag estimate for an activity.
func (s *DB) SavePhysicalPower(r *PhysicalPowerRow) error {
	_, err := s.db.Exec(`
		INSERT INTO physical_power (activity_id, cda, crr, confidence, air_density, total_mass, segments_cda, segments_crr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (activity_id) DO UPDATE SET
			cda = excluded.cda,
			crr = excluded.crr,
			confidence = excluded.confidence,
			air_density = excluded.air_density,
			total_mass = excluded.total_mass,
			segments_cda = excluded.segments_cda,
			segments_crr = excluded.segments_crr,
			computed_at = CURRENT_TIMESTAMP`,
		r.ActivityID, r.CdA, r.Crr, r.Confidence, r.AirDensity, r.TotalMass, r.SegmentsCdA, r.SegmentsCrr)
	if err != nil {
		return fmt.Errorf("upserting physical power for %d: %w", r.ActivityID, err)
	}
	return nil
}

// GetPhysicalPower retrieves the drag estimate for an activity.
// Returns nil when none is stored.
func (s *DB) GetPhysicalPower(activityID int64) (*PhysicalPowerRow, error) {
	row := s.db.QueryRow(`
		SELECT activity_id, cda, crr, confidence, air_density, total_mass, segments_cda, segments_crr
		FROM physical_power WHERE activity_id = ?`, activityID)

	var r PhysicalPowerRow
	err := row.Scan(&r.ActivityID, &r.CdA, &r.Crr, &r.Confidence, &r.AirDensity, &r.TotalMass, &r.SegmentsCdA, &r.SegmentsCrr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveTrainingZones replaces a user's seven power zones.
func (s *DB) SaveTrainingZones(userID int64, zones []TrainingZoneRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM training_zones WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting existing zones: %w", err)
	}
	for _, z := range zones {
		_, err := tx.Exec(`
			INSERT INTO training_zones (user_id, zone, name, min_watts, max_watts, target_pct)
			VALUES (?, ?, ?, ?, ?, ?)`,
			userID, z.Zone, z.Name, z.MinWatts, z.MaxWatts, z.TargetPct)
		if err != nil {
			return fmt.Errorf("inserting zone %d: %w", z.Zone, err)
		}
	}
	return tx.Commit()
}

// GetTrainingZones retrieves a user's power zones ordered by zone number.
func (s *DB) GetTrainingZones(userID int64) ([]TrainingZoneRow, error) {
	rows, err := s.db.Query(`
		SELECT user_id, zone, name, min_watts, max_watts, target_pct
		FROM training_zones WHERE user_id = ? ORDER BY zone`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []TrainingZoneRow
	for rows.Next() {
		var z TrainingZoneRow
		if err := rows.Scan(&z.UserID, &z.Zone, &z.Name, &z.MinWatts, &z.MaxWatts, &z.TargetPct); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// InsertFTPEstimate appends an FTP estimate to the user's history.
func (s *DB) InsertFTPEstimate(r *FTPEstimateRow) error {
	_, err := s.db.Exec(`
		INSERT INTO ftp_estimates (user_id, estimated_at, watts, low, high, confidence, method)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.EstimatedAt.Format(time.RFC3339), r.Watts, r.Low, r.High, r.Confidence, r.Method)
	if err != nil {
		return fmt.Errorf("inserting ftp estimate: %w", err)
	}
	return nil
}

// GetLatestFTPEstimate retrieves the most recent estimate for a user.
// Returns nil when none is stored.
func (s *DB) GetLatestFTPEstimate(userID int64) (*FTPEstimateRow, error) {
	row := s.db.QueryRow(`
		SELECT user_id, estimated_at, watts, low, high, confidence, method
		FROM ftp_estimates WHERE user_id = ?
		ORDER BY estimated_at DESC LIMIT 1`, userID)

	var r FTPEstimateRow
	var estimatedAt string
	err := row.Scan(&r.UserID, &estimatedAt, &r.Watts, &r.Low, &r.High, &r.Confidence, &r.Method)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.EstimatedAt, err = time.Parse(time.RFC3339, estimatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing estimated_at %q: %w", estimatedAt, err)
	}
	return &r, nil
}

// SaveTrainingLoad upserts the daily load series, keyed by (user_id, date).
func (s *DB) SaveTrainingLoad(userID int64, days []TrainingLoadRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO training_load (user_id, date, tss, ctl, atl, tsb, fatigue_score, fitness_score, form_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET
			tss = excluded.tss,
			ctl = excluded.ctl,
			atl = excluded.atl,
			tsb = excluded.tsb,
			fatigue_score = excluded.fatigue_score,
			fitness_score = excluded.fitness_score,
			form_score = excluded.form_score,
			computed_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range days {
		_, err := stmt.Exec(userID, d.Date.Format("2006-01-02"),
			d.TSS, d.CTL, d.ATL, d.TSB, d.FatigueScore, d.FitnessScore, d.FormScore)
		if err != nil {
			return fmt.Errorf("upserting training load day: %w", err)
		}
	}
	return tx.Commit()
}

// GetTrainingLoad retrieves a user's load series ordered by date ascending.
func (s *DB) GetTrainingLoad(userID int64) ([]TrainingLoadRow, error) {
	rows, err := s.db.Query(`
		SELECT user_id, date, tss, ctl, atl, tsb, fatigue_score, fitness_score, form_score
		FROM training_load WHERE user_id = ? ORDER BY date`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []TrainingLoadRow
	for rows.Next() {
		var d TrainingLoadRow
		var date string
		if err := rows.Scan(&d.UserID, &date, &d.TSS, &d.CTL, &d.ATL, &d.TSB, &d.FatigueScore, &d.FitnessScore, &d.FormScore); err != nil {
			return nil, err
		}
		d.Date, err = time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("parsing date %q: %w", date, err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// ReplaceRecommendations replaces a user's current recommendations.
func (s *DB) ReplaceRecommendations(userID int64, recs []RecommendationRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM recommendations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting existing recommendations: %w", err)
	}
	for _, r := range recs {
		_, err := tx.Exec(`
			INSERT INTO recommendations (id, user_id, priority, message, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			r.ID, userID, r.Priority, r.Message, r.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("inserting recommendation: %w", err)
		}
	}
	return tx.Commit()
}

// GetRecommendations retrieves a user's current recommendations.
func (s *DB) GetRecommendations(userID int64) ([]RecommendationRow, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, priority, message, created_at
		FROM recommendations WHERE user_id = ?
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RecommendationRow
	for rows.Next() {
		var r RecommendationRow
		var createdAt string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Priority, &r.Message, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
