package service

// Configuration keys resolved through the scoped settings store. Each key can
// be overridden at fitting, bicycle or user scope; the defaults here apply
// when no entry exists at any scope.
const (
	KeyAirDensity     = "physics.air_density"
	KeyDefaultCrr     = "physics.default_crr"
	KeyFlatGradeMax   = "physics.flat_grade_max"
	KeyTotalMass      = "athlete.total_mass"
	KeyFTP            = "athlete.ftp"
	KeyDriftThreshold = "zones.drift_threshold"
	KeyRecalThreshold = "zones.recalibration_threshold"
	KeySeedCTL        = "load.seed_ctl"
	KeySeedATL        = "load.seed_atl"
)

const (
	DefaultDriftThreshold = 10.0 // percentage points of mean zone deviation
	DefaultRecalThreshold = 15.0
	DefaultFTP            = 250.0
)

// How far back weekly best efforts feed the FTP trend regression.
const ftpTrendWeeks = 12
