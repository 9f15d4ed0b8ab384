package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/eljaska/telara/pkg/models"
)

// Prediction severities (distinct scale from alert severities).
const (
	PredictionHigh     = "high"
	PredictionModerate = "moderate"
	PredictionLow      = "low"
)

// Prediction describes an anticipated future health state.
type Prediction struct {
	Metric         string    `json:"metric"`
	Label          string    `json:"label"`
	PredictionType string    `json:"prediction_type"`
	Severity       string    `json:"severity"`
	PredictedTime  time.Time `json:"predicted_time"`
	HoursUntil     float64   `json:"hours_until"`
	CurrentValue   float64   `json:"current_value"`
	PredictedValue float64   `json:"predicted_value"`
	Threshold      *float64  `json:"threshold"`
	Confidence     float64   `json:"confidence"`
	Message        string    `json:"message"`
	Recommendation string    `json:"recommendation"`
}

// PredictionReport is the endpoint payload.
type PredictionReport struct {
	Predictions   []Prediction `json:"predictions"`
	DataAvailable bool         `json:"data_available"`
	DataPoints    int          `json:"data_points_analyzed"`
	HorizonHours  float64      `json:"prediction_horizon_hours"`
	GeneratedAt   time.Time    `json:"generated_at"`
	Message       string       `json:"message,omitempty"`
}

type threshold struct {
	name  string
	value float64
	high  bool
}

// Ordered so the nearer threshold is checked before the "very" one.
var predictionThresholds = map[string][]threshold{
	models.MetricHeartRate: {
		{"high", 100, true}, {"very_high", 120, true}, {"low", 50, false},
	},
	models.MetricHRV: {
		{"low", 30, false}, {"very_low", 20, false},
	},
	models.MetricSpO2: {
		{"low", 95, false}, {"very_low", 92, false},
	},
	models.MetricSkinTemp: {
		{"high", 37.5, true}, {"very_high", 38.5, true},
	},
}

var thresholdAdvice = map[string]string{
	models.MetricHeartRate + "/high":      "Consider reducing activity and practicing calm breathing.",
	models.MetricHeartRate + "/very_high": "Take a break, hydrate, and monitor your stress levels.",
	models.MetricHeartRate + "/low":       "This is usually healthy at rest, but monitor for dizziness.",
	models.MetricHRV + "/low":             "Your recovery may be declining. Prioritize rest and sleep.",
	models.MetricHRV + "/very_low":        "Your body needs recovery. Avoid strenuous activity today.",
	models.MetricSpO2 + "/low":            "Take deep breaths and ensure good ventilation.",
	models.MetricSpO2 + "/very_low":       "Seek fresh air. If persistent, consult a healthcare provider.",
	models.MetricSkinTemp + "/high":       "Monitor for other symptoms. Stay hydrated and rest.",
	models.MetricSkinTemp + "/very_high":  "You may be developing a fever. Rest and monitor closely.",
}

func adviceFor(metric, thresholdName string) string {
	if s, ok := thresholdAdvice[metric+"/"+thresholdName]; ok {
		return s
	}
	return "Monitor this trend and adjust your activities accordingly."
}

// trend fits the samples and returns slope per hour plus a confidence built
// from fit quality and data span: R² × clamp(span_h/2, 0, 1) × 0.8.
func trend(samples []sample) (slope, confidence, lastX float64) {
	if len(samples) < 5 {
		return 0, 0, 0
	}
	base := samples[0].ts
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.ts.Sub(base).Hours()
		ys[i] = s.value
	}
	slope, _, r2 := linearFit(xs, ys)

	span := xs[len(xs)-1]
	recency := span / 2
	if recency > 1 {
		recency = 1
	}
	if recency < 0 {
		recency = 0
	}
	return slope, r2 * recency * 0.8, xs[len(xs)-1]
}

// PredictThresholdCrossing projects the metric's trend to the nearest
// threshold inside maxHours.
func PredictThresholdCrossing(events []*models.VitalEvent, metric string, maxHours float64, now time.Time) *Prediction {
	thresholds, ok := predictionThresholds[metric]
	if !ok {
		return nil
	}
	samples := series(events, metric)
	if len(samples) < 5 {
		return nil
	}
	current := samples[len(samples)-1].value

	slope, confidence, _ := trend(samples)
	if confidence < 0.3 {
		return nil
	}

	for _, th := range thresholds {
		var hoursTo float64
		if th.high {
			if slope <= 0 || current >= th.value {
				continue
			}
			hoursTo = (th.value - current) / slope
		} else {
			if slope >= 0 || current <= th.value {
				continue
			}
			hoursTo = (current - th.value) / -slope
		}
		if hoursTo <= 0 || hoursTo > maxHours {
			continue
		}

		severity := PredictionModerate
		if th.name == "very_high" || th.name == "very_low" {
			severity = PredictionHigh
		}
		verb := "exceed"
		if !th.high {
			verb = "drop below"
		}
		value := th.value
		return &Prediction{
			Metric:         metric,
			Label:          label(metric),
			PredictionType: "threshold_crossing",
			Severity:       severity,
			PredictedTime:  now.Add(time.Duration(hoursTo * float64(time.Hour))),
			HoursUntil:     round1(hoursTo),
			CurrentValue:   current,
			PredictedValue: th.value,
			Threshold:      &value,
			Confidence:     round2(confidence),
			Message:        fmt.Sprintf("Your %s may %s %g in approximately %.1f hours", label(metric), verb, th.value, hoursTo),
			Recommendation: adviceFor(metric, th.name),
		}
	}
	return nil
}

// PredictFatigue flags a declining HRV trajectory below the personal
// baseline.
func PredictFatigue(events []*models.VitalEvent, baseline *models.Baseline, now time.Time) *Prediction {
	if len(events) < 10 {
		return nil
	}
	samples := series(events, models.MetricHRV)
	if len(samples) < 5 {
		return nil
	}

	slope, confidence, _ := trend(samples)
	current := samples[len(samples)-1].value
	baselineHRV := 50.0
	if baseline != nil && baseline.MeanHRV > 0 {
		baselineHRV = baseline.MeanHRV
	}

	if slope >= -1 || current >= baselineHRV*0.85 {
		return nil
	}

	hoursToLow := math.Abs((current - 30) / slope)
	if hoursToLow > 6 {
		hoursToLow = 6
	}
	predictedAt := now.Add(time.Duration(hoursToLow * float64(time.Hour)))

	var timeMsg string
	switch h := predictedAt.Hour(); {
	case h >= 12 && h < 14:
		timeMsg = "around lunchtime"
	case h >= 14 && h < 17:
		timeMsg = fmt.Sprintf("around %dpm", h-12)
	case h >= 17:
		timeMsg = "this evening"
	default:
		timeMsg = fmt.Sprintf("around %dam", h)
	}

	low := 30.0
	return &Prediction{
		Metric:         "fatigue",
		Label:          "Energy Level",
		PredictionType: "fatigue",
		Severity:       PredictionModerate,
		PredictedTime:  predictedAt,
		HoursUntil:     round1(hoursToLow),
		CurrentValue:   current,
		PredictedValue: current + slope*hoursToLow,
		Threshold:      &low,
		Confidence:     round2(confidence * 0.8),
		Message:        fmt.Sprintf("Based on your current HRV trajectory, you may experience fatigue %s", timeMsg),
		Recommendation: "Consider a short break, light stretching, or a brief walk to boost energy.",
	}
}

// PredictStress flags the elevated-HR, compressed-HRV, low-activity
// signature.
func PredictStress(events []*models.VitalEvent, baseline *models.Baseline, now time.Time) *Prediction {
	if len(events) < 10 {
		return nil
	}
	// Newest readings carry the signal; events arrive newest first.
	recent := events
	if len(recent) > 20 {
		recent = recent[:20]
	}

	hrs := values(recent, models.MetricHeartRate)
	hrvs := values(recent, models.MetricHRV)
	acts := values(recent, models.MetricActivityLevel)
	if len(hrs) == 0 || len(hrvs) == 0 {
		return nil
	}
	avgHR, avgHRV := mean(hrs), mean(hrvs)
	avgActivity := 20.0
	if len(acts) > 0 {
		avgActivity = mean(acts)
	}

	baselineHR, baselineHRV := 72.0, 50.0
	if baseline != nil {
		if baseline.MeanHR > 0 {
			baselineHR = baseline.MeanHR
		}
		if baseline.MeanHRV > 0 {
			baselineHRV = baseline.MeanHRV
		}
	}

	if avgHR <= baselineHR*1.15 || avgHRV >= baselineHRV*0.75 || avgActivity >= 30 {
		return nil
	}

	severity := PredictionModerate
	if avgHR >= baselineHR*1.25 {
		severity = PredictionHigh
	}
	return &Prediction{
		Metric:         "stress",
		Label:          "Stress Level",
		PredictionType: "stress",
		Severity:       severity,
		PredictedTime:  now.Add(time.Hour),
		HoursUntil:     1,
		CurrentValue:   avgHR,
		PredictedValue: avgHR * 1.05,
		Confidence:     0.8,
		Message:        fmt.Sprintf("Your vitals suggest elevated stress: HR %.0f bpm (elevated) with compressed HRV (%.0f ms)", avgHR, avgHRV),
		Recommendation: "Try a 5-minute breathing exercise or step away from stressors. Consider a short walk.",
	}
}

// Predictions runs every predictor over the last two hours of data, newest
// first. Results are sorted severity first, sooner first.
func Predictions(events []*models.VitalEvent, baseline *models.Baseline, maxHours float64, now time.Time) PredictionReport {
	if len(events) == 0 {
		return PredictionReport{
			DataAvailable: false,
			HorizonHours:  maxHours,
			GeneratedAt:   now,
			Message:       "Not enough data for predictions",
		}
	}

	var preds []Prediction
	for _, metric := range []string{models.MetricHeartRate, models.MetricHRV, models.MetricSpO2, models.MetricSkinTemp} {
		if p := PredictThresholdCrossing(events, metric, maxHours, now); p != nil {
			preds = append(preds, *p)
		}
	}
	if p := PredictFatigue(events, baseline, now); p != nil {
		preds = append(preds, *p)
	}
	if p := PredictStress(events, baseline, now); p != nil {
		preds = append(preds, *p)
	}

	rank := map[string]int{PredictionHigh: 0, PredictionModerate: 1, PredictionLow: 2}
	sort.SliceStable(preds, func(i, j int) bool {
		if rank[preds[i].Severity] != rank[preds[j].Severity] {
			return rank[preds[i].Severity] < rank[preds[j].Severity]
		}
		return preds[i].HoursUntil < preds[j].HoursUntil
	})

	return PredictionReport{
		Predictions:   preds,
		DataAvailable: true,
		DataPoints:    len(events),
		HorizonHours:  maxHours,
		GeneratedAt:   now,
	}
}
