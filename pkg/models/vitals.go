package models

import "time"

// Metric names as they appear on the wire and in storage.
const (
	MetricHeartRate       = "heart_rate"
	MetricHRV             = "hrv_ms"
	MetricSpO2            = "spo2_percent"
	MetricSkinTemp        = "skin_temp_c"
	MetricRespiratoryRate = "respiratory_rate"
	MetricActivityLevel   = "activity_level"
	MetricStepsPerMinute  = "steps_per_minute"
	MetricCalories        = "calories_per_minute"
	MetricSleepQuality    = "sleep_quality"
)

// MetricNames lists every metric a source can report, in display order.
var MetricNames = []string{
	MetricHeartRate,
	MetricHRV,
	MetricSpO2,
	MetricSkinTemp,
	MetricRespiratoryRate,
	MetricActivityLevel,
	MetricStepsPerMinute,
	MetricCalories,
	MetricSleepQuality,
}

// VitalEvent is the canonical normalised reading. Metric fields are pointers:
// a source that does not support a field omits it entirely, and absent must
// never collapse to zero.
type VitalEvent struct {
	EventID    string    `json:"event_id"`
	Timestamp  time.Time `json:"timestamp"`
	UserID     string    `json:"user_id"`
	Source     string    `json:"source"`
	SourceName string    `json:"source_name,omitempty"`

	HeartRate         *float64 `json:"heart_rate,omitempty"`
	HRVMs             *float64 `json:"hrv_ms,omitempty"`
	SpO2Percent       *float64 `json:"spo2_percent,omitempty"`
	SkinTempC         *float64 `json:"skin_temp_c,omitempty"`
	RespiratoryRate   *float64 `json:"respiratory_rate,omitempty"`
	ActivityLevel     *float64 `json:"activity_level,omitempty"`
	StepsPerMinute    *float64 `json:"steps_per_minute,omitempty"`
	CaloriesPerMinute *float64 `json:"calories_per_minute,omitempty"`
	SleepQuality      *float64 `json:"sleep_quality,omitempty"`
}

// Metric returns the named metric's value and whether the event carries it.
func (e *VitalEvent) Metric(name string) (float64, bool) {
	p := e.metricPtr(name)
	if p == nil || *p == nil {
		return 0, false
	}
	return **p, true
}

// SetMetric sets the named metric on the event.
func (e *VitalEvent) SetMetric(name string, value float64) {
	p := e.metricPtr(name)
	if p == nil {
		return
	}
	v := value
	*p = &v
}

// Metrics returns the present metrics as a name-value map.
func (e *VitalEvent) Metrics() map[string]float64 {
	out := make(map[string]float64)
	for _, name := range MetricNames {
		if v, ok := e.Metric(name); ok {
			out[name] = v
		}
	}
	return out
}

func (e *VitalEvent) metricPtr(name string) **float64 {
	switch name {
	case MetricHeartRate:
		return &e.HeartRate
	case MetricHRV:
		return &e.HRVMs
	case MetricSpO2:
		return &e.SpO2Percent
	case MetricSkinTemp:
		return &e.SkinTempC
	case MetricRespiratoryRate:
		return &e.RespiratoryRate
	case MetricActivityLevel:
		return &e.ActivityLevel
	case MetricStepsPerMinute:
		return &e.StepsPerMinute
	case MetricCalories:
		return &e.CaloriesPerMinute
	case MetricSleepQuality:
		return &e.SleepQuality
	}
	return nil
}

// Float returns a pointer to v; convenience for building sparse events.
func Float(v float64) *float64 {
	return &v
}
