package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	Athlete  AthleteConfig  `json:"athlete"`
	Bike     BikeConfig     `json:"bike"`
	Database DatabaseConfig `json:"database"`
	Display  DisplayConfig  `json:"display"`
}

// AthleteConfig holds athlete-specific settings
type AthleteConfig struct {
	UserID   int64   `json:"user_id"`
	WeightKg float64 `json:"weight_kg"`
	FTP      float64 `json:"ftp"`
}

// BikeConfig holds the equipment parameters the physics model needs
type BikeConfig struct {
	BicycleID int64   `json:"bicycle_id"`
	FittingID int64   `json:"fitting_id"`
	WeightKg  float64 `json:"weight_kg"`
}

// DatabaseConfig holds storage settings
type DatabaseConfig struct {
	Path string `json:"path"` // empty means ~/.velometrics/data.db
}

// DisplayConfig holds display preferences
type DisplayConfig struct {
	SpeedUnit string `json:"speed_unit"`
	PlotDays  int    `json:"plot_days"`
}

// ErrNoConfig is returned when the config file doesn't exist
var ErrNoConfig = errors.New("config file not found")

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Athlete: AthleteConfig{
			UserID:   1,
			WeightKg: 75,
			FTP:      250,
		},
		Bike: BikeConfig{
			WeightKg: 8,
		},
		Display: DisplayConfig{
			SpeedUnit: "km/h",
			PlotDays:  42,
		},
	}
}

// TotalMassKg is the rider plus equipment mass used by the power model.
func (c *Config) TotalMassKg() float64 {
	return c.Athlete.WeightKg + c.Bike.WeightKg
}

// Load reads the configuration from ~/.velometrics/config.json
func Load() (*Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoConfig
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults for missing values
	defaults := DefaultConfig()
	if cfg.Athlete.UserID == 0 {
		cfg.Athlete.UserID = defaults.Athlete.UserID
	}
	if cfg.Athlete.WeightKg == 0 {
		cfg.Athlete.WeightKg = defaults.Athlete.WeightKg
	}
	if cfg.Athlete.FTP == 0 {
		cfg.Athlete.FTP = defaults.Athlete.FTP
	}
	if cfg.Bike.WeightKg == 0 {
		cfg.Bike.WeightKg = defaults.Bike.WeightKg
	}
	if cfg.Display.SpeedUnit == "" {
		cfg.Display.SpeedUnit = defaults.Display.SpeedUnit
	}
	if cfg.Display.PlotDays == 0 {
		cfg.Display.PlotDays = defaults.Display.PlotDays
	}

	return &cfg, nil
}

// Save writes the configuration to ~/.velometrics/config.json
func Save(cfg *Config) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// CreateExample creates an example config file if none exists
func CreateExample() error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return nil // Config exists, don't overwrite
	}

	example := DefaultConfig()
	return Save(&example)
}

// Validate checks if the config has required fields
func (c *Config) Validate() error {
	if c.Athlete.UserID <= 0 {
		return errors.New("athlete.user_id is required and must be positive")
	}
	if c.Athlete.WeightKg <= 0 || c.Athlete.WeightKg > 200 {
		return fmt.Errorf("athlete.weight_kg must be in (0, 200], got %v", c.Athlete.WeightKg)
	}
	if c.Bike.WeightKg < 0 || c.Bike.WeightKg > 30 {
		return fmt.Errorf("bike.weight_kg must be in [0, 30], got %v", c.Bike.WeightKg)
	}
	if c.Athlete.FTP < 0 || c.Athlete.FTP > 600 {
		return fmt.Errorf("athlete.ftp must be in [0, 600], got %v", c.Athlete.FTP)
	}
	if c.Display.SpeedUnit != "" && c.Display.SpeedUnit != "km/h" && c.Display.SpeedUnit != "mph" {
		return fmt.Errorf("display.speed_unit must be \"km/h\" or \"mph\", got %q", c.Display.SpeedUnit)
	}
	if c.Display.PlotDays < 0 {
		return fmt.Errorf("display.plot_days must not be negative, got %d", c.Display.PlotDays)
	}
	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".velometrics", "config.json"), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".velometrics"), nil
}
