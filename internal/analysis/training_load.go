package analysis

import (
	"math"
	"sort"
	"time"

	"velometrics/internal/store"
)

// EMA time constants for the load recurrence, in days.
const (
	ctlDays = 42.0 // chronic load ("fitness")
	atlDays = 7.0  // acute load ("fatigue")
)

// NormalizedPower computes NP over a sample stream: the fourth root of the
// mean fourth power of a 30-second rolling average. Streams shorter than
// the window fall back to plain average power. Returns 0 for streams with
// no powered samples.
func NormalizedPower(points []store.ActivityPoint) float64 {
	const window = 30

	if len(points) == 0 {
		return 0
	}
	if len(points) < window {
		var sum float64
		for _, p := range points {
			sum += p.Power
		}
		return round(sum/float64(len(points)), 1)
	}

	var rollingSum, fourthSum float64
	var windows int
	for i, p := range points {
		rollingSum += p.Power
		if i >= window {
			rollingSum -= points[i-window].Power
		}
		if i >= window-1 {
			avg := rollingSum / window
			fourthSum += avg * avg * avg * avg
			windows++
		}
	}
	if windows == 0 || fourthSum == 0 {
		return 0
	}
	return round(math.Pow(fourthSum/float64(windows), 0.25), 1)
}

// IntensityFactor is NP relative to FTP.
func IntensityFactor(np, ftp float64) float64 {
	if ftp <= 0 {
		return 0
	}
	return round(np/ftp, 3)
}

// TSS computes Training Stress Score for an effort: 100 points equals one
// hour at threshold.
func TSS(durationSeconds int, np, ftp float64) float64 {
	if ftp <= 0 || np <= 0 || durationSeconds <= 0 {
		return 0
	}
	intensity := np / ftp
	return round(float64(durationSeconds)*np*intensity/(ftp*3600)*100, 1)
}

// DailyTSS is one day's total training stress.
type DailyTSS struct {
	Date time.Time
	TSS  float64
}

// TrainingLoadDay is one day of the load series. CTL/ATL are exponential
// moving averages seeded from the prior day, so the series is an explicit
// temporal recurrence, not a window function.
type TrainingLoadDay struct {
	Date         time.Time
	TSS          float64
	CTL          float64 `json:"ctl"`
	ATL          float64 `json:"atl"`
	TSB          float64 `json:"tsb"`
	FatigueScore float64 `json:"fatigue_score"`
	FitnessScore float64 `json:"fitness_score"`
	FormScore    float64 `json:"form_score"`
}

// LoadSeeds are the initial CTL/ATL values the recurrence starts from,
// supplied by configuration. Zero seeds are a conservative cold start.
type LoadSeeds struct {
	CTL float64
	ATL float64
}

// FitnessTrend computes the daily CTL/ATL/TSB series from daily TSS totals:
//
//	ctl[i] = ctl[i-1] + (tss[i] - ctl[i-1]) / 42
//	atl[i] = atl[i-1] + (tss[i] - atl[i-1]) / 7
//	tsb[i] = ctl[i] - atl[i]
//
// The recurrence is order-sensitive; the input is sorted by date and days
// without activities contribute zero stress. Multiple entries on the same
// day are summed.
func FitnessTrend(daily []DailyTSS, seeds LoadSeeds) []TrainingLoadDay {
	if len(daily) == 0 {
		return nil
	}

	sorted := make([]DailyTSS, len(daily))
	copy(sorted, daily)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	// Key and iterate on one calendar. Truncating instants to UTC midnight
	// while keying on each timestamp's own zone drops the final day for
	// negative UTC offsets.
	loadByDay := make(map[time.Time]float64)
	for _, d := range sorted {
		loadByDay[calendarDay(d.Date)] += d.TSS
	}

	start := calendarDay(sorted[0].Date)
	end := calendarDay(sorted[len(sorted)-1].Date)

	ctl, atl := seeds.CTL, seeds.ATL
	var days []TrainingLoadDay
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		tss := loadByDay[d]

		ctl = ctl + (tss-ctl)/ctlDays
		atl = atl + (tss-atl)/atlDays
		tsb := ctl - atl

		days = append(days, TrainingLoadDay{
			Date:         d,
			TSS:          tss,
			CTL:          ctl,
			ATL:          atl,
			TSB:          tsb,
			FatigueScore: clamp(atl, 0, 100),
			FitnessScore: clamp(ctl, 0, 100),
			FormScore:    clamp(50+tsb, 0, 100),
		})
	}
	return days
}

// calendarDay maps a timestamp to its local calendar date at UTC midnight.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CurrentLoad returns the most recent day of the computed series.
func CurrentLoad(daily []DailyTSS, seeds LoadSeeds) TrainingLoadDay {
	days := FitnessTrend(daily, seeds)
	if len(days) == 0 {
		return TrainingLoadDay{}
	}
	return days[len(days)-1]
}

// FormDescription returns a human-readable description of TSB.
func FormDescription(tsb float64) string {
	switch {
	case tsb > 25:
		return "Very fresh (possibly detrained)"
	case tsb > 10:
		return "Fresh and ready to race"
	case tsb > 0:
		return "Neutral - good for training"
	case tsb > -10:
		return "Slightly fatigued"
	case tsb > -25:
		return "Tired but building fitness"
	default:
		return "Very fatigued - rest needed"
	}
}
