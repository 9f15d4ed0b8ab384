package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/eljaska/telara/pkg/models"
)

// Correlation pairing constants.
const (
	minImmediatePairs = 10
	minLaggedPairs    = 5
	lagPairingWindow  = 2 * time.Hour
)

// correlationPairs are the same-time relationships worth surfacing.
var correlationPairs = [][2]string{
	{models.MetricHeartRate, models.MetricHRV},
	{models.MetricHeartRate, models.MetricActivityLevel},
	{models.MetricHRV, models.MetricActivityLevel},
	{models.MetricSpO2, models.MetricHeartRate},
	{models.MetricSkinTemp, models.MetricHeartRate},
	{models.MetricSkinTemp, models.MetricHRV},
	{models.MetricActivityLevel, models.MetricSpO2},
}

// laggedPairs test whether metric1 now predicts metric2 lag hours later.
var laggedPairs = []struct {
	metric1, metric2 string
	lagHours         int
}{
	{models.MetricSleepQuality, models.MetricHRV, 8},
	{models.MetricActivityLevel, models.MetricHRV, 12},
	{models.MetricHeartRate, models.MetricSleepQuality, 16},
}

// Correlation is one analyzed metric relationship.
type Correlation struct {
	Metric1     string  `json:"metric1"`
	Metric2     string  `json:"metric2"`
	Correlation float64 `json:"correlation"`
	Strength    string  `json:"strength"`
	Direction   string  `json:"direction"`
	DataPoints  int     `json:"data_points"`
	Insight     string  `json:"insight"`
	Lagged      bool    `json:"lagged"`
	LagHours    int     `json:"lag_hours,omitempty"`
}

// CorrelationReport is the full discovery result.
type CorrelationReport struct {
	Correlations []Correlation      `json:"correlations"`
	Summary      CorrelationSummary `json:"summary"`
	PeriodHours  int                `json:"analysis_period_hours"`
	CalculatedAt time.Time          `json:"calculated_at"`
}

type CorrelationSummary struct {
	TotalAnalyzed int      `json:"total_analyzed"`
	StrongCount   int      `json:"strong_count"`
	ModerateCount int      `json:"moderate_count"`
	TopInsights   []string `json:"top_insights"`
}

func correlationStrength(r float64) string {
	a := math.Abs(r)
	switch {
	case a >= 0.7:
		return "strong"
	case a >= 0.4:
		return "moderate"
	case a >= 0.2:
		return "weak"
	}
	return "negligible"
}

// Correlate computes one same-time correlation. Strength is
// "insufficient_data" below the pair minimum.
func Correlate(events []*models.VitalEvent, metric1, metric2 string) Correlation {
	var xs, ys []float64
	for _, ev := range events {
		v1, ok1 := ev.Metric(metric1)
		v2, ok2 := ev.Metric(metric2)
		if ok1 && ok2 {
			xs = append(xs, v1)
			ys = append(ys, v2)
		}
	}
	if len(xs) < minImmediatePairs {
		return Correlation{
			Metric1: metric1, Metric2: metric2,
			Strength: "insufficient_data", Direction: "none",
			DataPoints: len(xs),
			Insight:    "Not enough data to calculate correlation. Need at least 10 data points.",
		}
	}

	r := pearson(xs, ys)
	strength := correlationStrength(r)
	return Correlation{
		Metric1:     metric1,
		Metric2:     metric2,
		Correlation: round3(r),
		Strength:    strength,
		Direction:   direction(r),
		DataPoints:  len(xs),
		Insight:     correlationInsight(metric1, metric2, r, strength, false, 0),
	}
}

// CorrelateLagged pairs each metric1 sample with the nearest metric2 sample
// within two hours of t+lag.
func CorrelateLagged(events []*models.VitalEvent, metric1, metric2 string, lagHours int) Correlation {
	s1 := series(events, metric1)
	s2 := series(events, metric2)
	lag := time.Duration(lagHours) * time.Hour

	var xs, ys []float64
	for _, a := range s1 {
		target := a.ts.Add(lag)
		bestDiff := lagPairingWindow
		found := false
		var bestVal float64
		for _, b := range s2 {
			diff := b.ts.Sub(target)
			if diff < 0 {
				diff = -diff
			}
			if diff < bestDiff {
				bestDiff = diff
				bestVal = b.value
				found = true
			}
		}
		if found {
			xs = append(xs, a.value)
			ys = append(ys, bestVal)
		}
	}

	if len(xs) < minLaggedPairs {
		return Correlation{
			Metric1: metric1, Metric2: metric2,
			Strength: "insufficient_data", Direction: "none",
			DataPoints: len(xs),
			Insight:    "Not enough paired data points for lagged analysis.",
			Lagged:     true, LagHours: lagHours,
		}
	}

	r := pearson(xs, ys)
	strength := correlationStrength(r)
	return Correlation{
		Metric1:     metric1,
		Metric2:     metric2,
		Correlation: round3(r),
		Strength:    strength,
		Direction:   direction(r),
		DataPoints:  len(xs),
		Insight:     correlationInsight(metric1, metric2, r, strength, true, lagHours),
		Lagged:      true,
		LagHours:    lagHours,
	}
}

func direction(r float64) string {
	if r > 0 {
		return "positive"
	}
	return "negative"
}

// DiscoverCorrelations runs the whole suite. recent covers the analysis
// window; extended covers the wider window used for lagged pairs.
func DiscoverCorrelations(recent, extended []*models.VitalEvent, hours int, now time.Time) CorrelationReport {
	var results []Correlation
	for _, pair := range correlationPairs {
		c := Correlate(recent, pair[0], pair[1])
		if c.Strength != "insufficient_data" {
			results = append(results, c)
		}
	}
	for _, lp := range laggedPairs {
		c := CorrelateLagged(extended, lp.metric1, lp.metric2, lp.lagHours)
		if c.Strength != "insufficient_data" {
			results = append(results, c)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return math.Abs(results[i].Correlation) > math.Abs(results[j].Correlation)
	})

	summary := CorrelationSummary{TotalAnalyzed: len(results)}
	for _, r := range results {
		switch r.Strength {
		case "strong":
			summary.StrongCount++
		case "moderate":
			summary.ModerateCount++
		}
	}
	for _, r := range results {
		if len(summary.TopInsights) == 3 {
			break
		}
		if r.Strength == "strong" || r.Strength == "moderate" {
			summary.TopInsights = append(summary.TopInsights, r.Insight)
		}
	}

	return CorrelationReport{
		Correlations: results,
		Summary:      summary,
		PeriodHours:  hours,
		CalculatedAt: now,
	}
}

func correlationInsight(metric1, metric2 string, r float64, strength string, lagged bool, lagHours int) string {
	l1, l2 := label(metric1), label(metric2)
	if strength == "negligible" {
		return fmt.Sprintf("No significant relationship found between %s and %s.", l1, l2)
	}

	higherLower := "higher"
	increaseDecrease := "increase"
	if r <= 0 {
		higherLower = "lower"
		increaseDecrease = "decrease"
	}

	if lagged {
		timePhrase := fmt.Sprintf("%d hours later", lagHours)
		switch strength {
		case "strong":
			return fmt.Sprintf("Strong pattern: When your %s is higher, your %s tends to be %s %s.", l1, l2, higherLower, timePhrase)
		case "moderate":
			return fmt.Sprintf("Notable pattern: %s appears to influence your %s %s.", l1, l2, timePhrase)
		default:
			return fmt.Sprintf("Slight trend: %s may have a small effect on %s %s.", l1, l2, timePhrase)
		}
	}

	dir := "increases"
	if r <= 0 {
		dir = "decreases"
	}
	switch strength {
	case "strong":
		return fmt.Sprintf("Strong correlation: As your %s %s, your %s tends to %s significantly.", l1, dir, l2, increaseDecrease)
	case "moderate":
		return fmt.Sprintf("Moderate correlation: Higher %s is associated with %s %s.", l1, higherLower, l2)
	default:
		return fmt.Sprintf("Weak correlation detected between %s and %s.", l1, l2)
	}
}
