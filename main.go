package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/joho/godotenv"

	"velometrics/internal/analysis"
	"velometrics/internal/config"
	"velometrics/internal/service"
	"velometrics/internal/settings"
	"velometrics/internal/store"
)

const usage = `velometrics - cycling power analytics

Usage:
  velometrics import <activity.json>   import and analyze a ride
  velometrics analyze <activity-id>    re-run analyses for a stored ride
  velometrics ftp                      refresh the FTP estimate
  velometrics zones [ftp]              recompute training zones
  velometrics load                     recompute the fitness/fatigue series
  velometrics config get <key>         explain how a config key resolves
  velometrics config set <key> <value> set a user-scoped config override
`

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	// .env is optional; it can override the database location.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage)
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if errors.Is(err, config.ErrNoConfig) {
		fmt.Println("No config file found. Creating example config...")
		if err := config.CreateExample(); err != nil {
			return fmt.Errorf("creating example config: %w", err)
		}
		configDir, _ := config.GetConfigDir()
		fmt.Printf("\nPlease edit the config file at:\n  %s/config.json\n", configDir)
		fmt.Println("Set your weight, bike weight and FTP, then rerun.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		configDir, _ := config.GetConfigDir()
		fmt.Printf("Config validation failed: %v\n\n", err)
		fmt.Printf("Please edit the config file at:\n  %s/config.json\n", configDir)
		return nil
	}

	// Open database
	db, err := store.Open(os.Getenv("VELOMETRICS_DB"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	resolver := settings.NewResolver(db, settings.WithLogger(logger))

	scope := settings.Context{}
	if cfg.Bike.BicycleID > 0 {
		scope.BicycleID = &cfg.Bike.BicycleID
	}
	if cfg.Bike.FittingID > 0 {
		scope.FittingID = &cfg.Bike.FittingID
	}

	analysisSvc := service.NewAnalysisService(db, resolver, cfg.TotalMassKg(), scope, logger)
	trainingSvc := service.NewTrainingService(db, resolver, logger)
	userID := cfg.Athlete.UserID

	switch os.Args[1] {
	case "import":
		if len(os.Args) < 3 {
			return errors.New("usage: velometrics import <activity.json>")
		}
		return importActivity(ctx, analysisSvc, userID, os.Args[2])

	case "analyze":
		if len(os.Args) < 3 {
			return errors.New("usage: velometrics analyze <activity-id>")
		}
		id, err := strconv.ParseInt(os.Args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing activity id %q: %w", os.Args[2], err)
		}
		report, err := analysisSvc.AnalyzeActivity(ctx, id)
		if err != nil {
			return err
		}
		printReport(report)
		return nil

	case "ftp":
		report, err := trainingSvc.RefreshFTP(ctx, userID)
		if err != nil {
			return err
		}
		printFTP(report)
		return nil

	case "zones":
		ftp := 0.0
		if len(os.Args) > 2 {
			ftp, err = strconv.ParseFloat(os.Args[2], 64)
			if err != nil {
				return fmt.Errorf("parsing ftp %q: %w", os.Args[2], err)
			}
		}
		zones, err := trainingSvc.UpdateZones(ctx, userID, ftp)
		if err != nil {
			return err
		}
		for _, z := range zones {
			fmt.Printf("  Z%d %-18s %4d - %4d W  (target %.0f%%)\n", z.Zone, z.Name, z.Min, z.Max, z.TargetPct)
		}
		return nil

	case "load":
		return updateLoad(ctx, trainingSvc, db, userID, cfg.Display.PlotDays)

	case "config":
		return configCommand(ctx, resolver, userID, os.Args[2:])

	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

func logLevel() slog.Level {
	if os.Getenv("VELOMETRICS_DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// activityFile is the import wire format: a ride summary plus its 1 Hz
// sample stream.
type activityFile struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	StartDate   string   `json:"start_date"`
	Distance    float64  `json:"distance"`
	MovingTime  int      `json:"moving_time"`
	ElapsedTime int      `json:"elapsed_time"`
	FTP         *float64 `json:"ftp"`
	Points      []struct {
		TimeOffset int      `json:"time_offset"`
		Power      float64  `json:"power"`
		Speed      float64  `json:"speed_kmh"`
		Altitude   *float64 `json:"altitude"`
		Cadence    *int     `json:"cadence"`
		Heartrate  *int     `json:"heartrate"`
		Distance   *float64 `json:"distance_m"`
	} `json:"points"`
}

func importActivity(ctx context.Context, svc *service.AnalysisService, userID int64, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var file activityFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	start, err := time.Parse(time.RFC3339, file.StartDate)
	if err != nil {
		return fmt.Errorf("parsing start_date %q: %w", file.StartDate, err)
	}

	a := &store.Activity{
		ID:          file.ID,
		UserID:      userID,
		Name:        file.Name,
		StartDate:   start,
		Distance:    file.Distance,
		MovingTime:  file.MovingTime,
		ElapsedTime: file.ElapsedTime,
		FTP:         file.FTP,
	}
	points := make([]store.ActivityPoint, 0, len(file.Points))
	for _, p := range file.Points {
		points = append(points, store.ActivityPoint{
			ActivityID: file.ID,
			TimeOffset: p.TimeOffset,
			Power:      p.Power,
			Speed:      p.Speed,
			Altitude:   p.Altitude,
			Cadence:    p.Cadence,
			Heartrate:  p.Heartrate,
			Distance:   p.Distance,
		})
	}

	report, err := svc.ImportActivity(ctx, a, points)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func printReport(r *service.ActivityReport) {
	fmt.Printf("%s (%s, %.1f km)\n", r.Activity.Name,
		r.Activity.StartDate.Format("Jan 02, 2006"), r.Activity.Distance/1000)

	if !r.Quality.Valid {
		fmt.Println("\n  Data quality is low; results may be unreliable:")
		for _, w := range r.Quality.Warnings {
			fmt.Printf("    - %s\n", w)
		}
	}

	if len(r.Curve) > 0 {
		fmt.Println("\n  Efficiency by speed range (km/h per W):")
		for _, bin := range r.Curve {
			fmt.Printf("    %7s km/h  %.4f  (%d samples, %.1f W avg)\n",
				bin.SpeedRange, bin.Efficiency, bin.Samples, bin.MeanPower)
		}
	}
	if r.Standard.Efficiency != nil {
		fmt.Printf("\n  Standard efficiency at 40 km/h: %.4f (%d samples)\n",
			*r.Standard.Efficiency, r.Standard.Samples)
	} else if r.Standard.Warning != "" {
		fmt.Printf("\n  Standard efficiency: %s\n", r.Standard.Warning)
	}

	if p := r.Physics; p != nil {
		fmt.Printf("\n  Physical power model (confidence %.2f):\n", p.Confidence)
		fmt.Printf("    CdA %.3f m^2 (%d segments)  Crr %.4f (%d segments)\n",
			p.CdA, p.SegmentsCdA, p.Crr, p.SegmentsCrr)
	}
}

func printFTP(r *service.FTPReport) {
	est := r.Estimate
	fmt.Printf("FTP estimate: %.0f W  [%.0f - %.0f]  (%s, %s confidence)\n",
		est.Watts, est.Low, est.High, est.Method, est.Confidence)
	if est.Method == "regression" {
		fmt.Printf("  Trend: %+.2f W/week\n", est.WeeklyImprovement)
	}
	if r.Validation.ExpectedFTP != nil {
		fmt.Printf("  Power curve cross-check: expected %.0f W (%.1f%% off, %s confidence)\n",
			*r.Validation.ExpectedFTP, *r.Validation.DeviationPct, r.Validation.Confidence)
	}
	fmt.Printf("  %s\n", r.Validation.Recommendation)
	if m := r.Model; m != nil {
		fmt.Printf("  Critical power: %.0f W  W': %.0f kJ  (R^2 %.3f)\n",
			m.CriticalPower, m.AnaerobicCapacity/1000, m.RSquared)
	}
}

func updateLoad(ctx context.Context, svc *service.TrainingService, db *store.DB, userID int64, plotDays int) error {
	weekly := 0.0
	if est, err := db.GetLatestFTPEstimate(userID); err == nil && est != nil && est.Method == "regression" {
		// The stored estimate carries no trend; refresh to recover it.
		if report, err := svc.RefreshFTP(ctx, userID); err == nil {
			weekly = report.Estimate.WeeklyImprovement
		}
	}

	days, recs, err := svc.UpdateTrainingLoad(ctx, userID, weekly)
	if err != nil {
		return err
	}

	current := days[len(days)-1]
	fmt.Printf("Fitness (CTL): %.1f   Fatigue (ATL): %.1f   Form (TSB): %+.1f\n",
		current.CTL, current.ATL, current.TSB)
	fmt.Printf("  %s\n\n", analysis.FormDescription(current.TSB))

	if plotDays > 0 && len(days) > 1 {
		window := days
		if len(window) > plotDays {
			window = window[len(window)-plotDays:]
		}
		ctl := make([]float64, len(window))
		atl := make([]float64, len(window))
		for i, d := range window {
			ctl[i] = d.CTL
			atl[i] = d.ATL
		}
		fmt.Println(asciigraph.PlotMany([][]float64{ctl, atl},
			asciigraph.Height(10),
			asciigraph.Caption(fmt.Sprintf("CTL vs ATL, last %d days", len(window))),
			asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red)))
		fmt.Println()
	}

	for _, r := range recs {
		fmt.Printf("  [%s] %s\n", r.Priority, r.Message)
	}
	return nil
}

func configCommand(ctx context.Context, resolver *settings.Resolver, userID int64, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: velometrics config get <key> | config set <key> <value>")
	}
	rc := settings.Context{UserID: &userID}

	switch args[0] {
	case "get":
		exp, err := resolver.Explain(ctx, args[1], rc)
		if err != nil {
			return err
		}
		fmt.Print(exp.Text)
		return nil

	case "set":
		if len(args) < 3 {
			return errors.New("usage: velometrics config set <key> <value>")
		}
		value := coerceValue(args[2])
		if err := resolver.SetUserConfig(ctx, args[1], value, userID); err != nil {
			return err
		}
		fmt.Printf("%s = %s (%s, user scope)\n", args[1], value.Serialize(), value.DataType())
		return nil

	default:
		return fmt.Errorf("unknown config subcommand %q", args[0])
	}
}

// coerceValue guesses the value type from its shape: numbers and the exact
// words true/false are typed, JSON arrays are arrays, all else is text.
func coerceValue(raw string) settings.Value {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return settings.Number(f)
	}
	if raw == "true" || raw == "false" {
		return settings.Bool(raw == "true")
	}
	if len(raw) > 1 && raw[0] == '[' {
		if v, err := settings.ParseValue(raw, settings.TypeArray); err == nil {
			return v
		}
	}
	return settings.Text(raw)
}
