package store

import "database/sql"

// migrate runs all database migrations
func migrate(db *sql.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	// Scoped configuration entries. Values are stored as strings and
	// type-coerced at the resolver boundary. scope_id is 0 for global
	// entries: NULLs compare distinct in sqlite unique indexes, which
	// would let duplicate global rows slip past the upsert.
	`CREATE TABLE IF NOT EXISTS config_entries (
		id INTEGER PRIMARY KEY,
		key TEXT NOT NULL,
		scope TEXT NOT NULL CHECK (scope IN ('fitting', 'bicycle', 'user', 'global')),
		scope_id INTEGER NOT NULL DEFAULT 0,
		value TEXT NOT NULL,
		data_type TEXT NOT NULL CHECK (data_type IN ('number', 'boolean', 'array', 'string')),
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (key, scope, scope_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_config_entries_key ON config_entries(key)`,

	// Activities (ride summaries)
	`CREATE TABLE IF NOT EXISTS activities (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		distance REAL NOT NULL,
		moving_time INTEGER NOT NULL,
		elapsed_time INTEGER NOT NULL,
		ftp REAL,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_start_date ON activities(start_date)`,

	// Activity points (second-by-second sensor samples)
	`CREATE TABLE IF NOT EXISTS activity_points (
		activity_id INTEGER NOT NULL,
		time_offset INTEGER NOT NULL,
		power REAL NOT NULL DEFAULT 0,
		speed REAL NOT NULL DEFAULT 0,
		altitude REAL,
		cadence INTEGER,
		heartrate INTEGER,
		distance REAL,
		acceleration REAL,
		torque REAL,
		PRIMARY KEY (activity_id, time_offset),
		FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
	)`,

	// Efficiency curve bins, keyed by (activity, speed range)
	`CREATE TABLE IF NOT EXISTS efficiency_curve (
		activity_id INTEGER NOT NULL,
		rango_velocidad TEXT NOT NULL,
		eficiencia REAL NOT NULL,
		muestras INTEGER NOT NULL,
		velocidad_media REAL NOT NULL,
		potencia_media REAL NOT NULL,
		computed_at TEXT DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (activity_id, rango_velocidad),
		FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
	)`,

	// Standardized 40 km/h efficiency, one row per activity
	`CREATE TABLE IF NOT EXISTS standard_efficiency (
		activity_id INTEGER PRIMARY KEY,
		eficiencia_estandar_40kmh REAL,
		potencia_media_40kmh REAL,
		muestras INTEGER NOT NULL,
		warning TEXT,
		computed_at TEXT DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
	)`,

	// Aerodynamic/rolling-resistance estimates, one row per activity
	`CREATE TABLE IF NOT EXISTS physical_power (
		activity_id INTEGER PRIMARY KEY,
		cda REAL NOT NULL,
		crr REAL NOT NULL,
		confidence REAL NOT NULL,
		air_density REAL NOT NULL,
		total_mass REAL NOT NULL,
		segments_cda INTEGER NOT NULL,
		segments_crr INTEGER NOT NULL,
		computed_at TEXT DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
	)`,

	// Power training zones, 7 rows per user
	`CREATE TABLE IF NOT EXISTS training_zones (
		user_id INTEGER NOT NULL,
		zone INTEGER NOT NULL,
		name TEXT NOT NULL,
		min_watts INTEGER NOT NULL,
		max_watts INTEGER NOT NULL,
		target_pct REAL NOT NULL,
		PRIMARY KEY (user_id, zone)
	)`,

	// FTP estimates, append-only history per user
	`CREATE TABLE IF NOT EXISTS ftp_estimates (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		estimated_at TEXT NOT NULL,
		watts REAL NOT NULL,
		low REAL NOT NULL,
		high REAL NOT NULL,
		confidence TEXT NOT NULL,
		method TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_ftp_estimates_user ON ftp_estimates(user_id)`,

	// Daily training load series
	`CREATE TABLE IF NOT EXISTS training_load (
		user_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		tss REAL NOT NULL,
		ctl REAL NOT NULL,
		atl REAL NOT NULL,
		tsb REAL NOT NULL,
		fatigue_score REAL NOT NULL,
		fitness_score REAL NOT NULL,
		form_score REAL NOT NULL,
		computed_at TEXT DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, date)
	)`,

	// Training recommendations
	`CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		priority TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_recommendations_user ON recommendations(user_id)`,
}
