package analysis

// The recommendation engine is a deterministic decision table over three
// finite inputs, not a learned model: fatigue bucket x form bucket x recent
// FTP trend direction.

// FatigueLevel buckets the fatigue score.
type FatigueLevel int

const (
	FatigueLow FatigueLevel = iota
	FatigueModerate
	FatigueHigh
)

// FormState buckets TSB.
type FormState int

const (
	FormFresh FormState = iota
	FormNeutral
	FormTired
)

// TrendDirection buckets the weekly FTP trend.
type TrendDirection int

const (
	TrendImproving TrendDirection = iota
	TrendFlat
	TrendDeclining
)

// Recommendation is one prioritized training suggestion.
type Recommendation struct {
	Priority string // "high", "medium" or "low"
	Message  string
}

// BucketFatigue maps a fatigue score to its level.
func BucketFatigue(score float64) FatigueLevel {
	switch {
	case score > 70:
		return FatigueHigh
	case score >= 30:
		return FatigueModerate
	default:
		return FatigueLow
	}
}

// BucketForm maps TSB to a form state.
func BucketForm(tsb float64) FormState {
	switch {
	case tsb > 10:
		return FormFresh
	case tsb < -10:
		return FormTired
	default:
		return FormNeutral
	}
}

// BucketTrend maps a weekly FTP improvement rate (watts/week) to a
// direction. Within one watt per week the trend is considered flat.
func BucketTrend(weeklyImprovement float64) TrendDirection {
	switch {
	case weeklyImprovement > 1:
		return TrendImproving
	case weeklyImprovement < -1:
		return TrendDeclining
	default:
		return TrendFlat
	}
}

// Recommend maps the athlete's state to prioritized recommendations. Every
// combination of the three buckets produces at least one entry.
func Recommend(fatigue FatigueLevel, form FormState, trend TrendDirection) []Recommendation {
	var recs []Recommendation

	// Fatigue dominates: an exhausted athlete rests no matter the trend.
	switch fatigue {
	case FatigueHigh:
		switch form {
		case FormTired:
			recs = append(recs, Recommendation{"high", "Acute load is well above chronic load. Take 2-3 recovery days before any intensity."})
		case FormNeutral:
			recs = append(recs, Recommendation{"high", "Fatigue is high. Replace the next hard session with an easy spin."})
		case FormFresh:
			recs = append(recs, Recommendation{"medium", "Fatigue is high despite positive form; the recent ramp was steep. Hold volume steady this week."})
		}
	case FatigueModerate:
		switch form {
		case FormTired:
			recs = append(recs, Recommendation{"medium", "Form is negative. Keep intensity aerobic until TSB recovers above -10."})
		case FormNeutral:
			recs = append(recs, Recommendation{"low", "Load is balanced. Continue the current training mix."})
		case FormFresh:
			recs = append(recs, Recommendation{"medium", "Form is positive with manageable fatigue. Good window for a hard interval session or a test."})
		}
	case FatigueLow:
		switch form {
		case FormTired:
			recs = append(recs, Recommendation{"medium", "Low fatigue but negative form suggests stale data. Sync recent activities before acting on this."})
		case FormNeutral:
			recs = append(recs, Recommendation{"low", "Training load is light. Add an endurance ride to keep fitness from decaying."})
		case FormFresh:
			recs = append(recs, Recommendation{"medium", "You are fresh and rested. Schedule a race or an FTP test while form lasts."})
		}
	}

	switch trend {
	case TrendImproving:
		recs = append(recs, Recommendation{"low", "FTP trend is improving. Current training is working; avoid big changes."})
	case TrendFlat:
		recs = append(recs, Recommendation{"low", "FTP has plateaued. Consider varying workout types or adding a weekly threshold session."})
	case TrendDeclining:
		if fatigue == FatigueHigh {
			recs = append(recs, Recommendation{"high", "FTP is declining under high fatigue - a classic overreaching pattern. Cut load now and retest after recovery."})
		} else {
			recs = append(recs, Recommendation{"medium", "FTP is trending down. Check for missed sessions or accumulated life stress."})
		}
	}

	return recs
}
