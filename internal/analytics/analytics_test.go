package analytics

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/eljaska/telara/pkg/models"
)

func eventAt(ts time.Time, fields map[string]float64) *models.VitalEvent {
	ev := &models.VitalEvent{
		EventID:   fmt.Sprintf("ev-%d", ts.UnixNano()),
		Timestamp: ts,
		UserID:    "user_001",
		Source:    "apple",
	}
	for name, v := range fields {
		ev.SetMetric(name, v)
	}
	return ev
}

func TestPearsonPerfectCorrelation(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{2, 4, 6, 8, 10}
	if r := pearson(xs, ys); math.Abs(r-1) > 1e-9 {
		t.Fatalf("r = %v, want 1", r)
	}
	inv := []float64{10, 8, 6, 4, 2}
	if r := pearson(xs, inv); math.Abs(r+1) > 1e-9 {
		t.Fatalf("r = %v, want -1", r)
	}
}

func TestCorrelateRequiresTenPairs(t *testing.T) {
	base := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	var events []*models.VitalEvent
	for i := 0; i < 9; i++ {
		events = append(events, eventAt(base.Add(time.Duration(i)*time.Minute), map[string]float64{
			models.MetricHeartRate: 70 + float64(i),
			models.MetricHRV:       60 - float64(i),
		}))
	}
	c := Correlate(events, models.MetricHeartRate, models.MetricHRV)
	if c.Strength != "insufficient_data" {
		t.Fatalf("strength = %s with %d pairs", c.Strength, c.DataPoints)
	}

	events = append(events, eventAt(base.Add(10*time.Minute), map[string]float64{
		models.MetricHeartRate: 80, models.MetricHRV: 50,
	}))
	c = Correlate(events, models.MetricHeartRate, models.MetricHRV)
	if c.Strength != "strong" || c.Direction != "negative" {
		t.Fatalf("got %s/%s r=%v", c.Strength, c.Direction, c.Correlation)
	}
	if !strings.Contains(c.Insight, "Heart Rate") || !strings.Contains(c.Insight, "HRV") {
		t.Fatalf("insight = %q", c.Insight)
	}
}

func TestCorrelateLaggedPairing(t *testing.T) {
	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	var events []*models.VitalEvent
	// Sleep quality at hour 0 of each day predicts HRV 8h later.
	for day := 0; day < 6; day++ {
		ts := base.Add(time.Duration(day) * 24 * time.Hour)
		quality := 60 + float64(day)*5
		events = append(events, eventAt(ts, map[string]float64{models.MetricSleepQuality: quality}))
		events = append(events, eventAt(ts.Add(8*time.Hour), map[string]float64{models.MetricHRV: 40 + float64(day)*4}))
	}
	c := CorrelateLagged(events, models.MetricSleepQuality, models.MetricHRV, 8)
	if !c.Lagged || c.LagHours != 8 {
		t.Fatalf("lag metadata wrong: %+v", c)
	}
	if c.DataPoints != 6 {
		t.Fatalf("paired %d points, want 6", c.DataPoints)
	}
	if c.Strength != "strong" || c.Direction != "positive" {
		t.Fatalf("got %s/%s r=%v", c.Strength, c.Direction, c.Correlation)
	}
}

func TestCorrelateLaggedWindowExcludesFarSamples(t *testing.T) {
	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	var events []*models.VitalEvent
	for day := 0; day < 6; day++ {
		ts := base.Add(time.Duration(day) * 24 * time.Hour)
		events = append(events, eventAt(ts, map[string]float64{models.MetricSleepQuality: 70}))
		// HRV samples land 5 hours past the lag target, outside the 2h window.
		events = append(events, eventAt(ts.Add(13*time.Hour), map[string]float64{models.MetricHRV: 50}))
	}
	c := CorrelateLagged(events, models.MetricSleepQuality, models.MetricHRV, 8)
	if c.Strength != "insufficient_data" {
		t.Fatalf("expected no pairs, got %d", c.DataPoints)
	}
}

func TestWellnessScoreHealthy(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	var events []*models.VitalEvent
	for i := 0; i < 20; i++ {
		events = append(events, eventAt(base.Add(time.Duration(i)*time.Minute), map[string]float64{
			models.MetricHeartRate:      70,
			models.MetricHRV:            62,
			models.MetricSpO2:           98,
			models.MetricSkinTemp:       36.5,
			models.MetricActivityLevel:  55,
			models.MetricStepsPerMinute: 55,
			models.MetricSleepQuality:   85,
		}))
	}
	b := models.Baseline{MeanHR: 70, MeanHRV: 62, MeanSpO2: 98, MeanTemp: 36.5, DataPoints: 100}
	score, breakdown := WellnessScore(events, nil, &b)

	if breakdown.HeartHealth.Score != 100 {
		t.Fatalf("heart health = %d", breakdown.HeartHealth.Score)
	}
	if breakdown.AlertStatus.Score != 100 {
		t.Fatalf("alert status = %d", breakdown.AlertStatus.Score)
	}
	if breakdown.Stability.Status != "very_stable" {
		t.Fatalf("stability = %s", breakdown.Stability.Status)
	}
	if score < 90 {
		t.Fatalf("score = %d, want >= 90", score)
	}
}

func TestWellnessScoreNoData(t *testing.T) {
	score, breakdown := WellnessScore(nil, nil, nil)
	if score != 50 {
		t.Fatalf("score = %d", score)
	}
	if breakdown.Message == "" {
		t.Fatal("expected insufficient-data message")
	}
}

func TestAlertPenalties(t *testing.T) {
	alerts := []*models.AlertEvent{
		{Severity: models.SeverityCritical},
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityMedium},
		{Severity: models.SeverityLow},
	}
	c := alertComponent(alerts)
	// 100 - (25 + 15 + 8 + 3)
	if c.Score != 49 {
		t.Fatalf("score = %d, want 49", c.Score)
	}
	if c.Status != "critical_alerts" {
		t.Fatalf("status = %s", c.Status)
	}

	many := make([]*models.AlertEvent, 6)
	for i := range many {
		many[i] = &models.AlertEvent{Severity: models.SeverityCritical}
	}
	if c := alertComponent(many); c.Score != 0 {
		t.Fatalf("penalty must floor at 0, got %d", c.Score)
	}
}

func TestRecommendationsRulesAndOrdering(t *testing.T) {
	noon := time.Date(2024, 1, 15, 13, 0, 0, 0, time.UTC)
	latest := map[string]float64{
		models.MetricHeartRate:     95,
		models.MetricHRV:           30,
		models.MetricSpO2:          91,
		models.MetricSkinTemp:      36.5,
		models.MetricActivityLevel: 5,
	}
	report := Recommendations(latest, nil, nil, noon, 5)

	if report.TimeContext != "afternoon" {
		t.Fatalf("time context = %s", report.TimeContext)
	}
	if len(report.Recommendations) == 0 {
		t.Fatal("no recommendations")
	}
	// SpO2 below 92 is the critical rule and must sort first.
	if report.Recommendations[0].ID != "low_spo2" || report.Recommendations[0].Priority != PriorityCritical {
		t.Fatalf("first = %+v", report.Recommendations[0])
	}
	for i := 1; i < len(report.Recommendations); i++ {
		if report.Recommendations[i].Priority < report.Recommendations[i-1].Priority {
			t.Fatal("recommendations not sorted by priority")
		}
	}
	if report.TotalGenerated < len(report.Recommendations) {
		t.Fatalf("total %d < shown %d", report.TotalGenerated, len(report.Recommendations))
	}
}

func TestRecommendationsLimit(t *testing.T) {
	noon := time.Date(2024, 1, 15, 13, 0, 0, 0, time.UTC)
	latest := map[string]float64{
		models.MetricHeartRate:     95,
		models.MetricHRV:           30,
		models.MetricSpO2:          91,
		models.MetricSkinTemp:      38.0,
		models.MetricActivityLevel: 5,
	}
	report := Recommendations(latest, nil, nil, noon, 2)
	if len(report.Recommendations) != 2 {
		t.Fatalf("limit ignored: %d", len(report.Recommendations))
	}
	if report.TotalGenerated <= 2 {
		t.Fatalf("total generated = %d", report.TotalGenerated)
	}
}

func TestRecommendationsPositiveReinforcement(t *testing.T) {
	night := time.Date(2024, 1, 15, 22, 0, 0, 0, time.UTC)
	latest := map[string]float64{
		models.MetricHeartRate:     68,
		models.MetricHRV:           62,
		models.MetricSpO2:          98,
		models.MetricSkinTemp:      36.5,
		models.MetricActivityLevel: 15,
	}
	breakdown := &WellnessBreakdown{
		HeartHealth: Component{Score: 95},
		Recovery:    Component{Score: 90},
		Activity:    Component{Score: 80},
		Stability:   Component{Score: 95},
		AlertStatus: Component{Score: 100},
	}
	report := Recommendations(latest, nil, breakdown, night, 5)
	if len(report.Recommendations) != 1 || report.Recommendations[0].ID != "positive_reinforcement" {
		t.Fatalf("got %+v", report.Recommendations)
	}
}

func TestPredictThresholdCrossing(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	var events []*models.VitalEvent
	// HR rising 8 bpm/h over two hours: 80 -> 96.
	for i := 0; i <= 12; i++ {
		ts := now.Add(-2 * time.Hour).Add(time.Duration(i) * 10 * time.Minute)
		events = append(events, eventAt(ts, map[string]float64{
			models.MetricHeartRate: 80 + float64(i)*8.0/6.0,
		}))
	}
	p := PredictThresholdCrossing(events, models.MetricHeartRate, 6, now)
	if p == nil {
		t.Fatal("expected a prediction")
	}
	if p.PredictionType != "threshold_crossing" || p.Severity != PredictionModerate {
		t.Fatalf("prediction = %+v", p)
	}
	if p.Threshold == nil || *p.Threshold != 100 {
		t.Fatalf("threshold = %v", p.Threshold)
	}
	if p.HoursUntil < 0.3 || p.HoursUntil > 0.7 {
		t.Fatalf("hours until = %v, want ~0.5", p.HoursUntil)
	}
	if p.Confidence < 0.3 || p.Confidence > 0.8 {
		t.Fatalf("confidence = %v", p.Confidence)
	}
}

func TestPredictNothingOnNoisyFlatData(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	var events []*models.VitalEvent
	vals := []float64{70, 75, 68, 73, 71, 69, 74, 70, 72, 71, 73, 69, 70}
	for i, v := range vals {
		ts := now.Add(-2 * time.Hour).Add(time.Duration(i) * 10 * time.Minute)
		events = append(events, eventAt(ts, map[string]float64{models.MetricHeartRate: v}))
	}
	if p := PredictThresholdCrossing(events, models.MetricHeartRate, 6, now); p != nil {
		t.Fatalf("flat data predicted a crossing: %+v", p)
	}
}

func TestPredictFatigueOnHRVDecline(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	var events []*models.VitalEvent
	// HRV falling 5 ms/h from 48, baseline 60: slope < -1, below 0.85*60.
	for i := 0; i <= 12; i++ {
		ts := now.Add(-2 * time.Hour).Add(time.Duration(i) * 10 * time.Minute)
		events = append(events, eventAt(ts, map[string]float64{
			models.MetricHRV: 48 - float64(i)*5.0/6.0,
		}))
	}
	b := models.Baseline{MeanHRV: 60, DataPoints: 100}
	p := PredictFatigue(events, &b, now)
	if p == nil {
		t.Fatal("expected fatigue prediction")
	}
	if p.PredictionType != "fatigue" || p.HoursUntil > 6 {
		t.Fatalf("prediction = %+v", p)
	}
}

func TestPredictStressSignature(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	var events []*models.VitalEvent
	for i := 0; i < 12; i++ {
		events = append(events, eventAt(now.Add(-time.Duration(i)*time.Minute), map[string]float64{
			models.MetricHeartRate:     88,
			models.MetricHRV:           32,
			models.MetricActivityLevel: 10,
		}))
	}
	b := models.Baseline{MeanHR: 72, MeanHRV: 50, DataPoints: 100}
	p := PredictStress(events, &b, now)
	if p == nil {
		t.Fatal("expected stress prediction")
	}
	if p.Severity != PredictionModerate {
		t.Fatalf("severity = %s", p.Severity)
	}

	// Exercising explains the same numbers away.
	for _, ev := range events {
		ev.SetMetric(models.MetricActivityLevel, 60)
	}
	if p := PredictStress(events, &b, now); p != nil {
		t.Fatalf("active user flagged for stress: %+v", p)
	}
}

func TestDailyDigestDeltasAndRecommendation(t *testing.T) {
	now := time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)
	var today, yesterday []*models.VitalEvent
	for i := 0; i < 20; i++ {
		today = append(today, eventAt(now.Add(-time.Duration(i)*10*time.Minute), map[string]float64{
			models.MetricHeartRate:     72,
			models.MetricHRV:           40,
			models.MetricActivityLevel: 30,
		}))
		yesterday = append(yesterday, eventAt(now.Add(-30*time.Hour).Add(-time.Duration(i)*10*time.Minute), map[string]float64{
			models.MetricHeartRate:     80,
			models.MetricHRV:           50,
			models.MetricActivityLevel: 30,
		}))
	}

	d := DailyDigest(today, yesterday, nil, now)
	if !d.YesterdayKnown {
		t.Fatal("yesterday data not detected")
	}
	hr := d.Comparisons[models.MetricHeartRate]
	if hr.Direction != "down" || !hr.Improved {
		t.Fatalf("hr delta = %+v", hr)
	}
	hrv := d.Comparisons[models.MetricHRV]
	if hrv.Direction != "down" || hrv.Improved {
		t.Fatalf("hrv delta = %+v", hrv)
	}
	if len(d.Observations) != 3 {
		t.Fatalf("got %d observations", len(d.Observations))
	}
	// HRV down 20%: the recovery recommendation takes precedence.
	if !strings.Contains(d.Recommendation, "recovery markers") {
		t.Fatalf("recommendation = %q", d.Recommendation)
	}
}

func TestCompareWeeksImprovementDirections(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	var current, previous []*models.VitalEvent
	for i := 0; i < 30; i++ {
		current = append(current, eventAt(now.Add(-time.Duration(i)*time.Hour), map[string]float64{
			models.MetricHeartRate:     68,
			models.MetricHRV:           58,
			models.MetricSkinTemp:      36.6,
			models.MetricActivityLevel: 35,
		}))
		previous = append(previous, eventAt(now.Add(-8*24*time.Hour).Add(-time.Duration(i)*time.Hour), map[string]float64{
			models.MetricHeartRate:     75,
			models.MetricHRV:           50,
			models.MetricSkinTemp:      36.5,
			models.MetricActivityLevel: 25,
		}))
	}

	report := CompareWeeks(current, previous, AlertCounts(map[string]int{"HIGH": 1}), AlertCounts(map[string]int{"HIGH": 3}), now)
	if !report.DataAvailable {
		t.Fatal("data not available")
	}

	byMetric := make(map[string]MetricComparison)
	for _, c := range report.Comparisons {
		byMetric[c.Metric] = c
	}
	if !byMetric[models.MetricHeartRate].Improved {
		t.Fatal("lower HR must count as improvement")
	}
	if !byMetric[models.MetricHRV].Improved {
		t.Fatal("higher HRV must count as improvement")
	}
	// Temperature moved only 0.1: stable counts as improved.
	if !byMetric[models.MetricSkinTemp].Improved {
		t.Fatal("stable temperature must count as improvement")
	}

	found := false
	for _, insight := range report.Summary.Insights {
		if strings.Contains(insight, "2 fewer alerts") {
			found = true
		}
	}
	if !found {
		t.Fatalf("alert insight missing: %v", report.Summary.Insights)
	}
}

func TestCompareWeeksNoData(t *testing.T) {
	report := CompareWeeks(nil, nil, AlertCounts(nil), AlertCounts(nil), time.Now())
	if report.DataAvailable {
		t.Fatal("empty weeks must report no data")
	}
}
