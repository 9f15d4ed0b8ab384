package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/eljaska/telara/pkg/models"
)

// Recommendation priorities, most urgent first.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
)

// Recommendation is one actionable suggestion.
type Recommendation struct {
	ID          string             `json:"id"`
	Category    string             `json:"category"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Priority    int                `json:"priority"`
	Icon        string             `json:"icon"`
	ActionType  string             `json:"action_type"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// RecommendationReport is the endpoint payload.
type RecommendationReport struct {
	Recommendations []Recommendation `json:"recommendations"`
	TotalGenerated  int              `json:"total_generated"`
	Categories      map[string]int   `json:"categories"`
	TimeContext     string           `json:"time_context"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// TimeContext buckets the hour into morning/afternoon/evening/night.
func TimeContext(now time.Time) string {
	switch h := now.Hour(); {
	case h >= 5 && h < 12:
		return "morning"
	case h >= 12 && h < 17:
		return "afternoon"
	case h >= 17 && h < 21:
		return "evening"
	}
	return "night"
}

// Recommendations runs the rule suite over the latest fused readings, recent
// alerts and the wellness breakdown, returning the top entries by priority.
func Recommendations(latest map[string]float64, alerts []*models.AlertEvent, breakdown *WellnessBreakdown, now time.Time, limit int) RecommendationReport {
	if limit <= 0 {
		limit = 5
	}
	timeContext := TimeContext(now)

	get := func(metric string, fallback float64) float64 {
		if v, ok := latest[metric]; ok {
			return v
		}
		return fallback
	}
	hr := get(models.MetricHeartRate, 72)
	hrv := get(models.MetricHRV, 50)
	spo2 := get(models.MetricSpO2, 98)
	temp := get(models.MetricSkinTemp, 36.5)
	activity := get(models.MetricActivityLevel, 20)

	var recs []Recommendation

	if hr > 90 && activity < 30 {
		recs = append(recs, Recommendation{
			ID: "high_hr_low_activity", Category: "hydration",
			Title:       "Consider Hydration & Rest",
			Description: fmt.Sprintf("Your heart rate is elevated (%.0f bpm) while activity is low. This could indicate dehydration or stress. Try drinking water and taking a few deep breaths.", hr),
			Priority:    PriorityHigh, Icon: "Droplets", ActionType: "immediate",
			Metrics: map[string]float64{models.MetricHeartRate: hr, models.MetricActivityLevel: activity},
		})
	}

	if hrv < 35 {
		if timeContext == "morning" || timeContext == "afternoon" {
			recs = append(recs, Recommendation{
				ID: "low_hrv_recovery", Category: "recovery",
				Title:       "Recovery Mode Recommended",
				Description: fmt.Sprintf("Your HRV is low (%.0f ms), indicating reduced recovery capacity. Consider lighter activities today and prioritize rest. Avoid intense exercise.", hrv),
				Priority:    PriorityHigh, Icon: "Battery", ActionType: "short_term",
				Metrics: map[string]float64{models.MetricHRV: hrv},
			})
		} else {
			recs = append(recs, Recommendation{
				ID: "low_hrv_sleep", Category: "sleep",
				Title:       "Prioritize Sleep Tonight",
				Description: fmt.Sprintf("Your HRV (%.0f ms) suggests your body needs recovery. Aim for 7-8 hours of quality sleep tonight.", hrv),
				Priority:    PriorityMedium, Icon: "Moon", ActionType: "short_term",
				Metrics: map[string]float64{models.MetricHRV: hrv},
			})
		}
	}

	if temp > 37.5 {
		recs = append(recs, Recommendation{
			ID: "elevated_temp", Category: "health",
			Title:       "Monitor for Illness",
			Description: fmt.Sprintf("Your temperature is elevated (%.1f°C). Rest is recommended. If symptoms persist or temperature rises above 38°C, consider consulting a healthcare provider.", temp),
			Priority:    PriorityHigh, Icon: "Thermometer", ActionType: "immediate",
			Metrics: map[string]float64{models.MetricSkinTemp: temp},
		})
	}

	if spo2 < 95 {
		priority := PriorityHigh
		if spo2 < 92 {
			priority = PriorityCritical
		}
		recs = append(recs, Recommendation{
			ID: "low_spo2", Category: "breathing",
			Title:       "Improve Oxygen Levels",
			Description: fmt.Sprintf("Your blood oxygen is low (%.0f%%). Take deep breaths, ensure good ventilation, and consider stepping outside for fresh air. If it remains low, seek medical attention.", spo2),
			Priority:    priority, Icon: "Wind", ActionType: "immediate",
			Metrics: map[string]float64{models.MetricSpO2: spo2},
		})
	}

	if activity > 70 && hr > 140 {
		recs = append(recs, Recommendation{
			ID: "intense_activity", Category: "exercise",
			Title:       "Consider a Recovery Break",
			Description: fmt.Sprintf("You've been exercising intensely (HR: %.0f bpm). Consider a cool-down period to allow your heart rate to recover gradually.", hr),
			Priority:    PriorityMedium, Icon: "Timer", ActionType: "immediate",
			Metrics: map[string]float64{models.MetricHeartRate: hr, models.MetricActivityLevel: activity},
		})
	}

	if activity < 10 && (timeContext == "morning" || timeContext == "afternoon") {
		recs = append(recs, Recommendation{
			ID: "sedentary_alert", Category: "activity",
			Title:       "Time for Movement",
			Description: "You've been sedentary for a while. Try a short walk, some stretches, or just stand up and move around for a few minutes.",
			Priority:    PriorityLow, Icon: "Footprints", ActionType: "immediate",
			Metrics: map[string]float64{models.MetricActivityLevel: activity},
		})
	}

	criticalCount := 0
	for _, a := range alerts {
		if a.Severity == models.SeverityCritical {
			criticalCount++
		}
	}
	if criticalCount > 0 {
		recs = append(recs, Recommendation{
			ID: "critical_alert_response", Category: "alert",
			Title:       "Address Critical Alerts",
			Description: fmt.Sprintf("You have %d critical health alert(s). Review the alert details and consider consulting a healthcare provider if symptoms persist.", criticalCount),
			Priority:    PriorityCritical, Icon: "AlertTriangle", ActionType: "immediate",
			Metrics: map[string]float64{"critical_alerts": float64(criticalCount)},
		})
	}

	if breakdown != nil {
		if breakdown.HeartHealth.Score < 60 && hr > 85 {
			recs = append(recs, Recommendation{
				ID: "heart_health_hr", Category: "cardiovascular",
				Title:       "Support Heart Health",
				Description: "Your heart health score is lower than optimal. Consider reducing caffeine, staying hydrated, and practicing relaxation techniques.",
				Priority:    PriorityMedium, Icon: "Heart", ActionType: "lifestyle",
				Metrics: map[string]float64{"heart_health_score": float64(breakdown.HeartHealth.Score)},
			})
		}
		if breakdown.Recovery.Score < 60 {
			recs = append(recs, Recommendation{
				ID: "recovery_support", Category: "recovery",
				Title:       "Boost Your Recovery",
				Description: "Your recovery score suggests your body needs extra support. Consider gentle activities like walking or yoga, and ensure adequate sleep.",
				Priority:    PriorityMedium, Icon: "RefreshCw", ActionType: "short_term",
				Metrics: map[string]float64{"recovery_score": float64(breakdown.Recovery.Score)},
			})
		}
		if breakdown.Activity.Score < 50 && timeContext != "night" {
			recs = append(recs, Recommendation{
				ID: "increase_activity", Category: "activity",
				Title:       "Increase Daily Movement",
				Description: "Your activity level is low today. Even small movements help - try taking stairs, short walks, or desk stretches.",
				Priority:    PriorityLow, Icon: "Activity", ActionType: "short_term",
				Metrics: map[string]float64{"activity_score": float64(breakdown.Activity.Score)},
			})
		}
	}

	if timeContext == "evening" && hr > 80 {
		recs = append(recs, Recommendation{
			ID: "evening_wind_down", Category: "sleep_prep",
			Title:       "Wind Down for Better Sleep",
			Description: fmt.Sprintf("It's evening and your heart rate is still elevated (%.0f bpm). Consider calming activities to prepare for restful sleep.", hr),
			Priority:    PriorityLow, Icon: "Moon", ActionType: "short_term",
			Metrics: map[string]float64{models.MetricHeartRate: hr},
		})
	}
	if timeContext == "night" && activity > 30 {
		recs = append(recs, Recommendation{
			ID: "night_activity", Category: "sleep",
			Title:       "Time to Rest",
			Description: "It's late and you're still active. Quality sleep is crucial for recovery. Consider winding down soon.",
			Priority:    PriorityMedium, Icon: "Moon", ActionType: "immediate",
			Metrics: map[string]float64{models.MetricActivityLevel: activity},
		})
	}

	if len(recs) == 0 && breakdown != nil {
		overall := (breakdown.HeartHealth.Score + breakdown.Recovery.Score +
			breakdown.Activity.Score + breakdown.Stability.Score + breakdown.AlertStatus.Score) / 5
		if overall > 75 {
			recs = append(recs, Recommendation{
				ID: "positive_reinforcement", Category: "motivation",
				Title:       "Keep It Up!",
				Description: "Your health metrics are looking great! Maintain your current healthy habits.",
				Priority:    PriorityLow, Icon: "ThumbsUp", ActionType: "lifestyle",
				Metrics: map[string]float64{"overall_score": float64(overall)},
			})
		}
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority < recs[j].Priority })

	categories := make(map[string]int)
	for _, r := range recs {
		categories[r.Category]++
	}

	top := recs
	if len(top) > limit {
		top = top[:limit]
	}
	return RecommendationReport{
		Recommendations: top,
		TotalGenerated:  len(recs),
		Categories:      categories,
		TimeContext:     timeContext,
		GeneratedAt:     now,
	}
}
