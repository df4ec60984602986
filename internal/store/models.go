package store

import "time"

// Activity is one recorded ride.
type Activity struct {
	ID          int64
	UserID      int64
	Name        string
	StartDate   time.Time
	Distance    float64 // meters
	MovingTime  int     // seconds
	ElapsedTime int     // seconds
	FTP         *float64
}

// ActivityPoint is one time-indexed sample of a ride.
// Power and speed are zero when the rider is coasting or stopped;
// the optional sensors are nil when the device did not record them.
type ActivityPoint struct {
	ActivityID   int64
	TimeOffset   int     // seconds from activity start
	Power        float64 // watts
	Speed        float64 // km/h
	Altitude     *float64
	Cadence      *int
	Heartrate    *int
	Distance     *float64 // cumulative meters
	Acceleration *float64 // m/s^2
	Torque       *float64 // Nm
}

// EfficiencyRangeRow is one persisted speed bin of the efficiency curve.
// Column names keep the product's original wire names.
type EfficiencyRangeRow struct {
	ActivityID int64
	SpeedRange string  // rango_velocidad, e.g. "30-35"
	Efficiency float64 // eficiencia
	Samples    int     // muestras
	MeanSpeed  float64 // velocidad_media
	MeanPower  float64 // potencia_media
}

// StandardEfficiencyRow is the persisted 40 km/h reference figure.
type StandardEfficiencyRow struct {
	ActivityID int64
	Efficiency *float64 // eficiencia_estandar_40kmh, nil when too few samples
	MeanPower  *float64 // potencia_media_40kmh
	Samples    int
	Warning    string
}

// PhysicalPowerRow is the persisted drag/rolling-resistance estimate.
type PhysicalPowerRow struct {
	ActivityID  int64
	CdA         float64
	Crr         float64
	Confidence  float64
	AirDensity  float64
	TotalMass   float64
	SegmentsCdA int
	SegmentsCrr int
}

// TrainingZoneRow is one persisted power zone for a user.
type TrainingZoneRow struct {
	UserID    int64
	Zone      int
	Name      string
	MinWatts  int
	MaxWatts  int
	TargetPct float64
}

// FTPEstimateRow is a persisted FTP estimate.
type FTPEstimateRow struct {
	UserID      int64
	EstimatedAt time.Time
	Watts       float64
	Low         float64
	High        float64
	Confidence  string
	Method      string
}

// TrainingLoadRow is one persisted day of the load series.
type TrainingLoadRow struct {
	UserID       int64
	Date         time.Time
	TSS          float64
	CTL          float64
	ATL          float64
	TSB          float64
	FatigueScore float64
	FitnessScore float64
	FormScore    float64
}

// RecommendationRow is one persisted training recommendation.
type RecommendationRow struct {
	ID        string // uuid
	UserID    int64
	Priority  string
	Message   string
	CreatedAt time.Time
}
