package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/eljaska/telara/pkg/models"
)

// Trend directions per metric for week-over-week comparison.
const (
	trendLowerBetter  = "lower_better"
	trendHigherBetter = "higher_better"
	trendStableBetter = "stable_better"
)

var comparisonMetrics = []struct {
	metric string
	unit   string
	trend  string
}{
	{models.MetricHeartRate, "bpm", trendLowerBetter},
	{models.MetricHRV, "ms", trendHigherBetter},
	{models.MetricSpO2, "%", trendHigherBetter},
	{models.MetricSkinTemp, "°C", trendStableBetter},
	{models.MetricActivityLevel, "lvl", trendHigherBetter},
}

// MetricComparison compares one metric across two weeks.
type MetricComparison struct {
	Metric     string      `json:"metric"`
	Label      string      `json:"label"`
	Unit       string      `json:"unit"`
	Current    MetricStats `json:"current"`
	Previous   MetricStats `json:"previous"`
	Difference float64     `json:"difference"`
	PctChange  float64     `json:"percent_change"`
	Direction  string      `json:"direction"`
	Improved   bool        `json:"improved"`
	Trend      string      `json:"trend_direction"`
}

// AlertSummary is per-period alert counts.
type AlertSummary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
}

// WeekPeriod is one labelled 7-day window.
type WeekPeriod struct {
	Label  string       `json:"label"`
	Start  time.Time    `json:"start"`
	End    time.Time    `json:"end"`
	Stats  PeriodStats  `json:"stats"`
	Alerts AlertSummary `json:"alerts"`
}

// WeeklySummary condenses the comparison into counts and insights.
type WeeklySummary struct {
	Improvements  int      `json:"improvements_count"`
	Regressions   int      `json:"regressions_count"`
	Stable        int      `json:"stable_count"`
	MostImproved  string   `json:"most_improved,omitempty"`
	NeedsAttn     string   `json:"needs_attention,omitempty"`
	Insights      []string `json:"insights"`
}

// WeeklyComparison is the full week-over-week report.
type WeeklyComparison struct {
	DataAvailable bool               `json:"data_available"`
	CurrentWeek   WeekPeriod         `json:"current_week"`
	PreviousWeek  WeekPeriod         `json:"previous_week"`
	Comparisons   []MetricComparison `json:"comparisons"`
	Summary       WeeklySummary      `json:"summary"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Message       string             `json:"message,omitempty"`
}

// AlertCounts builds a summary from severity counts.
func AlertCounts(bySeverity map[string]int) AlertSummary {
	total := 0
	for _, n := range bySeverity {
		total += n
	}
	if bySeverity == nil {
		bySeverity = map[string]int{}
	}
	return AlertSummary{Total: total, BySeverity: bySeverity}
}

// CompareWeeks compares two adjacent 7-day windows of events and alerts.
func CompareWeeks(current, previous []*models.VitalEvent, currentAlerts, previousAlerts AlertSummary, now time.Time) WeeklyComparison {
	currentStats := AggregatePeriod(current, 7*24)
	previousStats := AggregatePeriod(previous, 7*24)

	report := WeeklyComparison{
		CurrentWeek: WeekPeriod{
			Label: "This Week", Start: now.AddDate(0, 0, -7), End: now,
			Stats: currentStats, Alerts: currentAlerts,
		},
		PreviousWeek: WeekPeriod{
			Label: "Last Week", Start: now.AddDate(0, 0, -14), End: now.AddDate(0, 0, -7),
			Stats: previousStats, Alerts: previousAlerts,
		},
		GeneratedAt: now,
	}

	if !currentStats.DataAvailable && !previousStats.DataAvailable {
		report.Message = "Not enough historical data for comparison"
		return report
	}
	report.DataAvailable = true

	if currentStats.DataAvailable && previousStats.DataAvailable {
		for _, cm := range comparisonMetrics {
			cur, okC := currentStats.Metrics[cm.metric]
			prev, okP := previousStats.Metrics[cm.metric]
			if !okC || !okP {
				continue
			}
			diff := cur.Avg - prev.Avg
			pct := 0.0
			if prev.Avg != 0 {
				pct = diff / prev.Avg * 100
			}

			var improved bool
			switch cm.trend {
			case trendHigherBetter:
				improved = diff > 0
			case trendLowerBetter:
				improved = diff < 0
			default:
				improved = math.Abs(diff) < 0.3
			}

			direction := "stable"
			if diff > 0 {
				direction = "up"
			} else if diff < 0 {
				direction = "down"
			}

			report.Comparisons = append(report.Comparisons, MetricComparison{
				Metric:     cm.metric,
				Label:      label(cm.metric),
				Unit:       cm.unit,
				Current:    cur,
				Previous:   prev,
				Difference: round2(diff),
				PctChange:  round1(pct),
				Direction:  direction,
				Improved:   improved,
				Trend:      cm.trend,
			})
		}
	}

	report.Summary = weeklySummary(report.Comparisons, currentAlerts, previousAlerts)
	return report
}

func weeklySummary(comparisons []MetricComparison, current, previous AlertSummary) WeeklySummary {
	var improvements, regressions []MetricComparison
	for _, c := range comparisons {
		if c.Improved {
			improvements = append(improvements, c)
		} else if math.Abs(c.PctChange) > 5 {
			regressions = append(regressions, c)
		}
	}

	s := WeeklySummary{
		Improvements: len(improvements),
		Regressions:  len(regressions),
		Stable:       len(comparisons) - len(improvements) - len(regressions),
	}
	if len(improvements) > 0 {
		s.MostImproved = improvements[0].Label
	}
	if len(regressions) > 0 {
		s.NeedsAttn = regressions[0].Label
	}

	byMagnitude := make([]MetricComparison, len(comparisons))
	copy(byMagnitude, comparisons)
	sort.SliceStable(byMagnitude, func(i, j int) bool {
		return math.Abs(byMagnitude[i].PctChange) > math.Abs(byMagnitude[j].PctChange)
	})

	var insights []string
	if len(byMagnitude) > 0 && math.Abs(byMagnitude[0].PctChange) > 5 {
		top := byMagnitude[0]
		verb := "declined"
		if top.Improved {
			verb = "improved"
		}
		insights = append(insights, fmt.Sprintf("Your %s %s by %.1f%% compared to last week.", top.Label, verb, math.Abs(top.PctChange)))
	}

	switch {
	case len(improvements) > len(regressions):
		insights = append(insights, fmt.Sprintf("Overall positive trend: %d metrics improved vs %d declined.", len(improvements), len(regressions)))
	case len(regressions) > len(improvements):
		insights = append(insights, fmt.Sprintf("Consider focusing on recovery: %d metrics declined this week.", len(regressions)))
	default:
		insights = append(insights, "Your metrics are relatively stable compared to last week.")
	}

	switch {
	case current.Total < previous.Total:
		insights = append(insights, fmt.Sprintf("Great progress! You had %d fewer alerts than last week.", previous.Total-current.Total))
	case current.Total > previous.Total:
		insights = append(insights, fmt.Sprintf("You had %d more alerts than last week. Monitor your trends.", current.Total-previous.Total))
	}

	if len(insights) > 3 {
		insights = insights[:3]
	}
	s.Insights = insights
	return s
}
