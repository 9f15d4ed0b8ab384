package analytics

import (
	"math"

	"github.com/eljaska/telara/pkg/models"
)

// Component is one scored slice of the wellness breakdown.
type Component struct {
	Score  int                `json:"score"`
	Status string             `json:"status"`
	Detail map[string]float64 `json:"detail,omitempty"`
}

// WellnessBreakdown carries the five weighted components.
type WellnessBreakdown struct {
	HeartHealth Component `json:"heart_health"`
	Recovery    Component `json:"recovery"`
	Activity    Component `json:"activity"`
	Stability   Component `json:"stability"`
	AlertStatus Component `json:"alert_status"`
	Message     string    `json:"message,omitempty"`
}

// WellnessScore computes the 0-100 holistic score: heart health 25%,
// recovery 20%, activity 20%, stability 20%, alert status 15%.
func WellnessScore(vitals []*models.VitalEvent, alerts []*models.AlertEvent, baseline *models.Baseline) (int, WellnessBreakdown) {
	if len(vitals) == 0 {
		return 50, WellnessBreakdown{
			HeartHealth: Component{Score: 50, Status: "no_data"},
			Recovery:    Component{Score: 50, Status: "no_data"},
			Activity:    Component{Score: 50, Status: "no_data"},
			Stability:   Component{Score: 50, Status: "no_data"},
			AlertStatus: Component{Score: 100, Status: "no_alerts"},
			Message:     "Insufficient data for accurate scoring",
		}
	}

	b := WellnessBreakdown{
		HeartHealth: heartHealthComponent(vitals),
		Recovery:    recoveryComponent(vitals),
		Activity:    activityComponent(vitals),
		Stability:   stabilityComponent(vitals, baseline),
		AlertStatus: alertComponent(alerts),
	}

	weighted := float64(b.HeartHealth.Score)*0.25 +
		float64(b.Recovery.Score)*0.20 +
		float64(b.Activity.Score)*0.20 +
		float64(b.Stability.Score)*0.20 +
		float64(b.AlertStatus.Score)*0.15
	return int(weighted), b
}

// WellnessRecommendations turns a breakdown into short actionable tips.
func WellnessRecommendations(b WellnessBreakdown) []string {
	var out []string

	if b.HeartHealth.Score < 70 {
		if hrv, ok := b.HeartHealth.Detail["avg_hrv"]; ok && hrv < 40 {
			out = append(out, "Your HRV is below optimal. Consider stress-reduction techniques like deep breathing or meditation.")
		}
		if hr, ok := b.HeartHealth.Detail["avg_heart_rate"]; ok && hr > 85 {
			out = append(out, "Your resting heart rate is elevated. Ensure you're well-hydrated and consider reducing caffeine intake.")
		}
	}
	if b.Recovery.Score < 70 {
		out = append(out, "Your recovery score is low. Prioritize sleep quality and consider lighter exercise today.")
	}
	if b.Activity.Score < 60 {
		out = append(out, "Your activity level is low. Try to incorporate short walks or stretching breaks.")
	}
	if b.Stability.Score < 60 {
		out = append(out, "Your vitals are showing unusual variance. Monitor for any symptoms and maintain regular routines.")
	}
	if b.AlertStatus.Detail["critical"] > 0 {
		out = append([]string{"⚠️ CRITICAL: You have critical health alerts. Consider consulting a healthcare provider."}, out...)
	}

	if len(out) == 0 {
		out = append(out, "Great job! Your wellness metrics are looking healthy. Keep up your current habits.")
	}
	return out
}

func gradeStatus(score float64) string {
	switch {
	case score >= 85:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 50:
		return "fair"
	}
	return "needs_attention"
}

func heartHealthComponent(vitals []*models.VitalEvent) Component {
	hrs := values(vitals, models.MetricHeartRate)
	hrvs := values(vitals, models.MetricHRV)
	if len(hrs) == 0 || len(hrvs) == 0 {
		return Component{Score: 50, Status: "incomplete_data"}
	}
	avgHR, avgHRV := mean(hrs), mean(hrvs)

	var hrScore float64
	switch {
	case avgHR >= 60 && avgHR <= 80:
		hrScore = 100
	case avgHR >= 55 && avgHR <= 90:
		hrScore = 80
	case avgHR >= 50 && avgHR <= 100:
		hrScore = 60
	default:
		hrScore = 40
	}

	var hrvScore float64
	switch {
	case avgHRV >= 60:
		hrvScore = 100
	case avgHRV >= 45:
		hrvScore = 85
	case avgHRV >= 30:
		hrvScore = 65
	case avgHRV >= 20:
		hrvScore = 45
	default:
		hrvScore = 30
	}

	// HRV weighted more.
	combined := hrScore*0.4 + hrvScore*0.6
	return Component{
		Score:  int(combined),
		Status: gradeStatus(combined),
		Detail: map[string]float64{
			"avg_heart_rate": round1(avgHR),
			"avg_hrv":        round1(avgHRV),
			"hr_score":       hrScore,
			"hrv_score":      hrvScore,
		},
	}
}

func recoveryComponent(vitals []*models.VitalEvent) Component {
	hrvs := values(vitals, models.MetricHRV)
	sleeps := values(vitals, models.MetricSleepQuality)

	hrvScore := 50.0
	if len(hrvs) >= 5 {
		switch avg := mean(hrvs); {
		case avg >= 50:
			hrvScore = 90
		case avg >= 40:
			hrvScore = 75
		case avg >= 30:
			hrvScore = 55
		default:
			hrvScore = 35
		}
	}

	sleepScore := 70.0 // default without sleep data
	if len(sleeps) > 0 {
		switch avg := mean(sleeps); {
		case avg >= 80:
			sleepScore = 100
		case avg >= 70:
			sleepScore = 80
		case avg >= 55:
			sleepScore = 60
		default:
			sleepScore = 40
		}
	}

	combined := hrvScore*0.6 + sleepScore*0.4
	return Component{
		Score:  int(combined),
		Status: gradeStatus(combined),
		Detail: map[string]float64{"hrv_score": hrvScore, "sleep_score": sleepScore},
	}
}

func activityComponent(vitals []*models.VitalEvent) Component {
	acts := values(vitals, models.MetricActivityLevel)
	steps := values(vitals, models.MetricStepsPerMinute)
	if len(acts) == 0 {
		return Component{Score: 50, Status: "incomplete_data"}
	}
	avgActivity := mean(acts)
	avgSteps := 0.0
	if len(steps) > 0 {
		avgSteps = mean(steps)
	}

	var activityScore float64
	switch {
	case avgActivity >= 50:
		activityScore = 95
	case avgActivity >= 35:
		activityScore = 80
	case avgActivity >= 20:
		activityScore = 65
	case avgActivity >= 10:
		activityScore = 50
	default:
		activityScore = 35
	}

	var stepsScore float64
	switch {
	case avgSteps >= 50:
		stepsScore = 100
	case avgSteps >= 30:
		stepsScore = 85
	case avgSteps >= 15:
		stepsScore = 65
	case avgSteps >= 5:
		stepsScore = 45
	default:
		stepsScore = 30
	}

	combined := activityScore*0.6 + stepsScore*0.4
	var status string
	switch {
	case combined >= 80:
		status = "active"
	case combined >= 60:
		status = "moderate"
	case combined >= 40:
		status = "sedentary"
	default:
		status = "very_sedentary"
	}
	return Component{
		Score:  int(combined),
		Status: status,
		Detail: map[string]float64{
			"avg_activity_level":   round1(avgActivity),
			"avg_steps_per_minute": round1(avgSteps),
		},
	}
}

func stabilityComponent(vitals []*models.VitalEvent, baseline *models.Baseline) Component {
	// Without a learned baseline, grade against population norms.
	ref := models.Baseline{MeanHR: 72, MeanHRV: 50, MeanSpO2: 98, MeanTemp: 36.5}
	if baseline != nil && baseline.Ready() {
		ref = *baseline
	}

	var deviations []float64
	rel := func(metric string, base, weight float64) {
		vs := values(vitals, metric)
		if len(vs) == 0 || base == 0 {
			return
		}
		deviations = append(deviations, math.Abs(mean(vs)-base)/base*weight)
	}
	rel(models.MetricHeartRate, ref.MeanHR, 1)
	rel(models.MetricHRV, ref.MeanHRV, 1)
	rel(models.MetricSpO2, ref.MeanSpO2, 2)
	rel(models.MetricSkinTemp, ref.MeanTemp, 3)

	if len(deviations) == 0 {
		return Component{Score: 50, Status: "no_baseline"}
	}
	avgDev := mean(deviations)

	var score int
	var status string
	switch {
	case avgDev <= 0.05:
		score, status = 100, "very_stable"
	case avgDev <= 0.10:
		score, status = 85, "stable"
	case avgDev <= 0.20:
		score, status = 70, "slight_variance"
	case avgDev <= 0.35:
		score, status = 50, "moderate_variance"
	default:
		score, status = 30, "high_variance"
	}
	return Component{
		Score:  score,
		Status: status,
		Detail: map[string]float64{"avg_deviation_percent": round1(avgDev * 100)},
	}
}

func alertComponent(alerts []*models.AlertEvent) Component {
	if len(alerts) == 0 {
		return Component{Score: 100, Status: "no_alerts", Detail: map[string]float64{"active_alerts": 0}}
	}

	var critical, high, medium, low int
	for _, a := range alerts {
		switch a.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityHigh:
			high++
		case models.SeverityMedium:
			medium++
		case models.SeverityLow:
			low++
		}
	}

	penalty := critical*25 + high*15 + medium*8 + low*3
	score := 100 - penalty
	if score < 0 {
		score = 0
	}

	var status string
	switch {
	case critical > 0:
		status = "critical_alerts"
	case high > 0:
		status = "high_alerts"
	case medium > 0:
		status = "moderate_alerts"
	case low > 0:
		status = "minor_alerts"
	default:
		status = "no_alerts"
	}
	return Component{
		Score:  score,
		Status: status,
		Detail: map[string]float64{
			"active_alerts": float64(len(alerts)),
			"critical":      float64(critical),
			"high":          float64(high),
			"medium":        float64(medium),
			"low":           float64(low),
		},
	}
}
