package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertActivity inserts or updates an activity.
func (s *DB) UpsertActivity(a *Activity) error {
	_, err := s.db.Exec(`
		INSERT INTO activities (id, user_id, name, start_date, distance, moving_time, elapsed_time, ftp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			start_date = excluded.start_date,
			distance = excluded.distance,
			moving_time = excluded.moving_time,
			elapsed_time = excluded.elapsed_time,
			ftp = excluded.ftp,
			updated_at = CURRENT_TIMESTAMP`,
		a.ID, a.UserID, a.Name, a.StartDate.Format(time.RFC3339),
		a.Distance, a.MovingTime, a.ElapsedTime, ptrToNullFloat64(a.FTP))
	if err != nil {
		return fmt.Errorf("upserting activity %d: %w", a.ID, err)
	}
	return nil
}

// GetActivity retrieves an activity by ID.
func (s *DB) GetActivity(id int64) (*Activity, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, name, start_date, distance, moving_time, elapsed_time, ftp
		FROM activities WHERE id = ?`, id)

	var a Activity
	var startDate string
	var ftp sql.NullFloat64
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &startDate, &a.Distance, &a.MovingTime, &a.ElapsedTime, &ftp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}
	a.StartDate, err = time.Parse(time.RFC3339, startDate)
	if err != nil {
		return nil, fmt.Errorf("parsing start_date %q: %w", startDate, err)
	}
	a.FTP = nullFloat64ToPtr(ftp)
	return &a, nil
}

// ListActivities returns a user's activities ordered by start date ascending.
func (s *DB) ListActivities(userID int64) ([]Activity, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, name, start_date, distance, moving_time, elapsed_time, ftp
		FROM activities WHERE user_id = ? ORDER BY start_date`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		var a Activity
		var startDate string
		var ftp sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &startDate, &a.Distance, &a.MovingTime, &a.ElapsedTime, &ftp); err != nil {
			return nil, err
		}
		a.StartDate, err = time.Parse(time.RFC3339, startDate)
		if err != nil {
			return nil, fmt.Errorf("parsing start_date %q: %w", startDate, err)
		}
		a.FTP = nullFloat64ToPtr(ftp)
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// SavePoints replaces the sample stream for an activity.
// Uses a transaction with a prepared statement for batch efficiency.
func (s *DB) SavePoints(activityID int64, points []ActivityPoint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM activity_points WHERE activity_id = ?`, activityID); err != nil {
		return fmt.Errorf("deleting existing points: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO activity_points (
			activity_id, time_offset, power, speed, altitude,
			cadence, heartrate, distance, acceleration, torque
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.Exec(
			activityID, p.TimeOffset, p.Power, p.Speed, ptrToNullFloat64(p.Altitude),
			ptrIntToNullInt64(p.Cadence), ptrIntToNullInt64(p.Heartrate),
			ptrToNullFloat64(p.Distance), ptrToNullFloat64(p.Acceleration), ptrToNullFloat64(p.Torque))
		if err != nil {
			return fmt.Errorf("inserting activity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetPoints retrieves the sample stream for an activity, time-ordered.
func (s *DB) GetPoints(activityID int64) ([]ActivityPoint, error) {
	rows, err := s.db.Query(`
		SELECT activity_id, time_offset, power, speed, altitude,
			cadence, heartrate, distance, acceleration, torque
		FROM activity_points
		WHERE activity_id = ?
		ORDER BY time_offset`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []ActivityPoint
	for rows.Next() {
		var p ActivityPoint
		var altitude, distance, acceleration, torque sql.NullFloat64
		var cadence, heartrate sql.NullInt64
		err := rows.Scan(&p.ActivityID, &p.TimeOffset, &p.Power, &p.Speed, &altitude,
			&cadence, &heartrate, &distance, &acceleration, &torque)
		if err != nil {
			return nil, err
		}
		p.Altitude = nullFloat64ToPtr(altitude)
		p.Cadence = nullInt64ToIntPtr(cadence)
		p.Heartrate = nullInt64ToIntPtr(heartrate)
		p.Distance = nullFloat64ToPtr(distance)
		p.Acceleration = nullFloat64ToPtr(acceleration)
		p.Torque = nullFloat64ToPtr(torque)
		points = append(points, p)
	}
	return points, rows.Err()
}

// --- Conversion Helpers ---

func ptrToNullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func ptrIntToNullInt64(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullFloat64ToPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}

func nullInt64ToIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
