package detector

import (
	"fmt"

	"github.com/eljaska/telara/pkg/models"
)

// Pattern defines one sustained-anomaly shape: a run of matching events that
// finalizes as soon as a breaking event arrives.
type Pattern struct {
	Name string
	// MinRun is the minimum number of consecutive matching events.
	MinRun int
	// Required lists the metrics an event must carry to participate; events
	// missing any of them are skipped for this pattern.
	Required []string
	// Match reports whether the event extends the run.
	Match func(ev *models.VitalEvent) bool
	// Primary is the metric averaged over the run.
	Primary string
	// Severity grades the finished run from its primary average.
	Severity func(avg float64) string
	// Describe renders the alert description.
	Describe func(avg float64, count int) string
}

func metric(ev *models.VitalEvent, name string) float64 {
	v, _ := ev.Metric(name)
	return v
}

// Patterns is the detection suite, evaluated independently per user.
var Patterns = []Pattern{
	{
		Name:     "TACHYCARDIA_AT_REST",
		MinRun:   5,
		Required: []string{models.MetricHeartRate, models.MetricActivityLevel, models.MetricStepsPerMinute},
		Match: func(ev *models.VitalEvent) bool {
			return metric(ev, models.MetricHeartRate) > 100 &&
				metric(ev, models.MetricActivityLevel) < 10 &&
				metric(ev, models.MetricStepsPerMinute) < 5
		},
		Primary: models.MetricHeartRate,
		Severity: func(avg float64) string {
			switch {
			case avg > 130:
				return models.SeverityCritical
			case avg > 115:
				return models.SeverityHigh
			default:
				return models.SeverityMedium
			}
		},
		Describe: func(avg float64, count int) string {
			return fmt.Sprintf("Sustained elevated HR (%.0f bpm avg) detected while at rest for %d consecutive readings", avg, count)
		},
	},
	{
		Name:     "LOW_SPO2_HYPOXIA",
		MinRun:   3,
		Required: []string{models.MetricSpO2},
		Match: func(ev *models.VitalEvent) bool {
			return metric(ev, models.MetricSpO2) < 94
		},
		Primary: models.MetricSpO2,
		Severity: func(avg float64) string {
			switch {
			case avg < 90:
				return models.SeverityCritical
			case avg < 92:
				return models.SeverityHigh
			default:
				return models.SeverityMedium
			}
		},
		Describe: func(avg float64, count int) string {
			return fmt.Sprintf("Blood oxygen below normal (%.0f%% avg) for %d consecutive readings", avg, count)
		},
	},
	{
		Name:     "ELEVATED_TEMPERATURE",
		MinRun:   3,
		Required: []string{models.MetricSkinTemp},
		Match: func(ev *models.VitalEvent) bool {
			return metric(ev, models.MetricSkinTemp) > 37.5
		},
		Primary: models.MetricSkinTemp,
		Severity: func(avg float64) string {
			switch {
			case avg > 38.5:
				return models.SeverityCritical
			case avg > 38.0:
				return models.SeverityHigh
			default:
				return models.SeverityMedium
			}
		},
		Describe: func(avg float64, count int) string {
			return fmt.Sprintf("Elevated skin temperature (%.1f°C avg) sustained for %d consecutive readings", avg, count)
		},
	},
}
