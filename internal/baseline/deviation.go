package baseline

import (
	"fmt"
	"math"
	"sort"

	"github.com/eljaska/telara/pkg/models"
)

// Deviation severities.
const (
	DeviationModerate    = "moderate"
	DeviationSignificant = "significant"
)

// Deviation describes one metric currently outside the user's learned range.
type Deviation struct {
	Metric    string  `json:"metric"`
	Current   float64 `json:"current"`
	Baseline  float64 `json:"baseline"`
	PctChange float64 `json:"pct_change"`
	ZScore    float64 `json:"z_score"`
	Severity  string  `json:"severity"`
	Message   string  `json:"message"`
}

// Compare grades the current fused readings against the baseline. An
// immature baseline (under ten data points) yields nothing: no judgement
// before enough evidence. Results are sorted most severe first.
func Compare(b models.Baseline, current map[string]float64) []Deviation {
	if !b.Ready() {
		return nil
	}

	var out []Deviation
	add := func(d *Deviation) {
		if d != nil {
			out = append(out, *d)
		}
	}

	if v, ok := current[models.MetricHeartRate]; ok {
		add(relativeDeviation(models.MetricHeartRate, v, b.MeanHR, b.StdHR, false,
			"Heart rate %.0f bpm is %.0f%% %s your baseline of %.0f bpm"))
	}
	if v, ok := current[models.MetricHRV]; ok {
		// Only a drop in HRV is concerning.
		if v < b.MeanHRV {
			add(relativeDeviation(models.MetricHRV, v, b.MeanHRV, b.StdHRV, true,
				"HRV %.0f ms is %.0f%% %s your baseline of %.0f ms"))
		}
	}
	if v, ok := current[models.MetricSpO2]; ok {
		add(spo2Deviation(v, b.MeanSpO2, b.StdSpO2))
	}
	if v, ok := current[models.MetricSkinTemp]; ok {
		add(tempDeviation(v, b.MeanTemp))
	}
	if v, ok := current[models.MetricActivityLevel]; ok {
		add(relativeDeviation(models.MetricActivityLevel, v, b.MeanActivity, b.StdActivity, false,
			"Activity level %.0f is %.0f%% %s your baseline of %.0f"))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return severityRank(out[i].Severity) > severityRank(out[j].Severity)
	})
	return out
}

func severityRank(s string) int {
	if s == DeviationSignificant {
		return 1
	}
	return 0
}

// relativeDeviation flags |pct| > 15 or |z| > 2; significant at |pct| > 25
// or |z| > 3.
func relativeDeviation(metric string, current, mean, std float64, dropOnly bool, format string) *Deviation {
	if mean == 0 {
		return nil
	}
	pct := (current - mean) / mean * 100
	z := 0.0
	if std > 0 {
		z = (current - mean) / std
	}
	if math.Abs(pct) <= 15 && math.Abs(z) <= 2 {
		return nil
	}
	if dropOnly && current >= mean {
		return nil
	}

	direction := "above"
	if current < mean {
		direction = "below"
	}
	severity := DeviationModerate
	if math.Abs(pct) > 25 {
		severity = DeviationSignificant
	}
	return &Deviation{
		Metric:    metric,
		Current:   current,
		Baseline:  mean,
		PctChange: math.Round(pct*10) / 10,
		ZScore:    math.Round(z*100) / 100,
		Severity:  severity,
		Message:   fmt.Sprintf(format, current, math.Abs(math.Round(pct)), direction, mean),
	}
}

// spo2Deviation flags a relative drop or any reading under 95% absolute.
func spo2Deviation(current, mean, std float64) *Deviation {
	d := relativeDeviation(models.MetricSpO2, current, mean, std, true,
		"SpO2 %.0f%% is %.0f%% %s your typical %.0f%%")
	if d == nil && current < 95 {
		severity := DeviationModerate
		if current < 92 {
			severity = DeviationSignificant
		}
		pct := 0.0
		if mean != 0 {
			pct = (current - mean) / mean * 100
		}
		d = &Deviation{
			Metric:    models.MetricSpO2,
			Current:   current,
			Baseline:  mean,
			PctChange: math.Round(pct*10) / 10,
			Severity:  severity,
			Message:   fmt.Sprintf("SpO2 %.0f%% is below the normal range (typical %.0f%%)", current, mean),
		}
	}
	return d
}

// tempDeviation flags an absolute shift beyond half a degree.
func tempDeviation(current, mean float64) *Deviation {
	delta := current - mean
	if math.Abs(delta) <= 0.5 {
		return nil
	}
	direction := "above"
	if delta < 0 {
		direction = "below"
	}
	severity := DeviationModerate
	if math.Abs(delta) > 1.0 {
		severity = DeviationSignificant
	}
	return &Deviation{
		Metric:    models.MetricSkinTemp,
		Current:   current,
		Baseline:  mean,
		PctChange: math.Round(delta*100) / 100,
		Severity:  severity,
		Message:   fmt.Sprintf("Skin temperature %.1f°C is %.1f°C %s your baseline of %.1f°C", current, math.Abs(delta), direction, mean),
	}
}
