package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/eljaska/telara/pkg/models"
)

// MetricStats is the per-metric aggregate used in digests and comparisons.
type MetricStats struct {
	Avg      float64 `json:"avg"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Readings int     `json:"readings"`
}

// PeriodStats aggregates one time window.
type PeriodStats struct {
	DataAvailable bool                   `json:"data_available"`
	DataPoints    int                    `json:"data_points"`
	PeriodHours   int                    `json:"period_hours,omitempty"`
	Metrics       map[string]MetricStats `json:"metrics,omitempty"`
}

// digestMetrics are the digest/comparison display keys, in report order.
var digestMetrics = []string{
	models.MetricHeartRate,
	models.MetricHRV,
	models.MetricSpO2,
	models.MetricSkinTemp,
	models.MetricActivityLevel,
}

// AggregatePeriod summarizes a window of events per metric.
func AggregatePeriod(events []*models.VitalEvent, hours int) PeriodStats {
	if len(events) == 0 {
		return PeriodStats{DataAvailable: false, PeriodHours: hours}
	}
	stats := PeriodStats{
		DataAvailable: true,
		DataPoints:    len(events),
		PeriodHours:   hours,
		Metrics:       make(map[string]MetricStats),
	}
	for _, metric := range digestMetrics {
		vs := values(events, metric)
		if len(vs) == 0 {
			continue
		}
		lo, hi := minMax(vs)
		stats.Metrics[metric] = MetricStats{
			Avg:      round2(mean(vs)),
			Min:      lo,
			Max:      hi,
			Readings: len(vs),
		}
	}
	return stats
}

// Delta compares one metric across two periods.
type Delta struct {
	Today      float64 `json:"today"`
	Yesterday  float64 `json:"yesterday"`
	Difference float64 `json:"difference"`
	PctChange  float64 `json:"percent_change"`
	Direction  string  `json:"direction"`
	Improved   bool    `json:"improved"`
}

// Digest is "Your Day at a Glance".
type Digest struct {
	Title          string           `json:"title"`
	GeneratedAt    time.Time        `json:"generated_at"`
	PeriodHours    int              `json:"period_hours"`
	DataPoints     int              `json:"data_points"`
	AlertsCount    int              `json:"alerts_count"`
	CriticalAlerts int              `json:"critical_alerts"`
	Metrics        PeriodStats      `json:"metrics"`
	Comparisons    map[string]Delta `json:"comparisons"`
	Observations   []string         `json:"observations"`
	Recommendation string           `json:"recommendation"`
	YesterdayKnown bool             `json:"yesterday_available"`
}

// improvementFor says whether a given change moves the metric the right way.
// Temperature is the odd one out: stability is the win.
func improvementFor(metric string, diff float64) bool {
	switch metric {
	case models.MetricHRV, models.MetricSpO2, models.MetricActivityLevel:
		return diff > 0
	case models.MetricHeartRate:
		return diff < 0
	case models.MetricSkinTemp:
		return math.Abs(diff) < 0.3
	}
	return true
}

func deltas(today, yesterday PeriodStats) map[string]Delta {
	out := make(map[string]Delta)
	for _, metric := range digestMetrics {
		t, okT := today.Metrics[metric]
		y, okY := yesterday.Metrics[metric]
		if !okT || !okY || y.Avg == 0 {
			continue
		}
		diff := t.Avg - y.Avg
		direction := "stable"
		if diff > 0 {
			direction = "up"
		} else if diff < 0 {
			direction = "down"
		}
		out[metric] = Delta{
			Today:      t.Avg,
			Yesterday:  y.Avg,
			Difference: round2(diff),
			PctChange:  round1(diff / y.Avg * 100),
			Direction:  direction,
			Improved:   improvementFor(metric, diff),
		}
	}
	return out
}

// DailyDigest builds the digest from the last 12 hours versus the same
// window 24-48 hours ago.
func DailyDigest(today, yesterday []*models.VitalEvent, alerts []*models.AlertEvent, now time.Time) Digest {
	todayStats := AggregatePeriod(today, 12)
	yesterdayStats := AggregatePeriod(yesterday, 24)

	var d map[string]Delta
	if todayStats.DataAvailable && yesterdayStats.DataAvailable {
		d = deltas(todayStats, yesterdayStats)
	} else {
		d = map[string]Delta{}
	}

	critical := 0
	for _, a := range alerts {
		if a.Severity == models.SeverityCritical {
			critical++
		}
	}

	return Digest{
		Title:          "Your Day at a Glance",
		GeneratedAt:    now,
		PeriodHours:    12,
		DataPoints:     todayStats.DataPoints,
		AlertsCount:    len(alerts),
		CriticalAlerts: critical,
		Metrics:        todayStats,
		Comparisons:    d,
		Observations:   digestObservations(todayStats, d, alerts),
		Recommendation: digestRecommendation(todayStats, d, alerts),
		YesterdayKnown: yesterdayStats.DataAvailable,
	}
}

// digestObservations produces exactly three rule-based observations.
func digestObservations(today PeriodStats, d map[string]Delta, alerts []*models.AlertEvent) []string {
	var out []string

	if hrv, ok := d[models.MetricHRV]; ok {
		if hrv.Direction == "up" && hrv.PctChange > 5 {
			out = append(out, fmt.Sprintf("Your HRV improved by %.1f%% compared to yesterday, indicating better recovery.", hrv.PctChange))
		} else if hrv.Direction == "down" && math.Abs(hrv.PctChange) > 10 {
			out = append(out, fmt.Sprintf("Your HRV decreased by %.1f%% - consider prioritizing rest today.", math.Abs(hrv.PctChange)))
		}
	}

	if hr, ok := today.Metrics[models.MetricHeartRate]; ok {
		if hr.Max-hr.Min > 60 {
			out = append(out, fmt.Sprintf("Your heart rate varied significantly today (range of %.0f bpm), likely reflecting periods of activity and rest.", hr.Max-hr.Min))
		} else if hr.Avg < 70 {
			out = append(out, "Your average heart rate is in a healthy resting range, suggesting good cardiovascular fitness.")
		}
	}

	if act, ok := today.Metrics[models.MetricActivityLevel]; ok {
		if act.Avg > 40 {
			out = append(out, "You've been quite active today - great for your overall health!")
		} else if act.Avg < 15 {
			out = append(out, "Your activity level has been low - try incorporating some movement for better energy.")
		}
	}

	if len(alerts) > 0 {
		critical := 0
		for _, a := range alerts {
			if a.Severity == models.SeverityCritical {
				critical++
			}
		}
		if critical > 0 {
			out = append(out, fmt.Sprintf("There were %d critical health alerts today - please review them carefully.", critical))
		} else {
			out = append(out, fmt.Sprintf("You had %d health alerts today, all non-critical.", len(alerts)))
		}
	}

	for len(out) < 3 {
		if spo2, ok := today.Metrics[models.MetricSpO2]; ok && spo2.Avg >= 96 {
			out = append(out, "Your blood oxygen levels have remained healthy throughout the day.")
		} else if temp, ok := today.Metrics[models.MetricSkinTemp]; ok && temp.Avg >= 36.0 && temp.Avg <= 37.2 {
			out = append(out, "Your body temperature has been stable and within normal range.")
		} else {
			out = append(out, "Keep up your healthy habits for continued wellness improvements.")
		}
	}
	return out[:3]
}

// digestRecommendation picks the single most pressing suggestion.
func digestRecommendation(today PeriodStats, d map[string]Delta, alerts []*models.AlertEvent) string {
	for _, a := range alerts {
		if a.Severity == models.SeverityCritical {
			return "Review and address your critical health alerts. Consider consulting a healthcare provider if symptoms persist."
		}
	}
	if hrv, ok := d[models.MetricHRV]; ok && hrv.Direction == "down" && math.Abs(hrv.PctChange) > 15 {
		return "Your recovery markers are lower than yesterday. Prioritize quality sleep tonight and consider lighter activities."
	}
	if act, ok := today.Metrics[models.MetricActivityLevel]; ok && act.Avg < 20 {
		return "Increase your activity level today - even a 15-minute walk can boost your energy and mood."
	}
	if hr, ok := today.Metrics[models.MetricHeartRate]; ok && hr.Avg > 85 {
		return "Your resting heart rate is elevated. Focus on stress reduction techniques like deep breathing or meditation."
	}
	if temp, ok := today.Metrics[models.MetricSkinTemp]; ok && temp.Avg > 37.5 {
		return "Your temperature is slightly elevated. Rest, stay hydrated, and monitor for any symptoms."
	}
	if hrv, ok := d[models.MetricHRV]; ok && hrv.Improved {
		return "Your recovery looks good! Maintain your current sleep and activity patterns."
	}
	return "Continue your healthy habits: stay hydrated, move regularly, and aim for 7-8 hours of sleep."
}
