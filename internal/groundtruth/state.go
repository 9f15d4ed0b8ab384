package groundtruth

import "time"

// State is one consistent snapshot of a user's true physiology. Every
// simulated source observes the same State with its own noise.
type State struct {
	Timestamp         time.Time `json:"timestamp"`
	HeartRate         float64   `json:"heart_rate"`
	HRVMs             float64   `json:"hrv_ms"`
	SpO2Percent       float64   `json:"spo2_percent"`
	SkinTempC         float64   `json:"skin_temp_c"`
	RespiratoryRate   float64   `json:"respiratory_rate"`
	ActivityLevel     float64   `json:"activity_level"`
	StepsPerMinute    float64   `json:"steps_per_minute"`
	CaloriesPerMinute float64   `json:"calories_per_minute"`
	SleepQuality      float64   `json:"sleep_quality"`
}

// Metric returns the ground-truth value for a wire metric name.
func (s State) Metric(name string) (float64, bool) {
	switch name {
	case "heart_rate":
		return s.HeartRate, true
	case "hrv_ms":
		return s.HRVMs, true
	case "spo2_percent":
		return s.SpO2Percent, true
	case "skin_temp_c":
		return s.SkinTempC, true
	case "respiratory_rate":
		return s.RespiratoryRate, true
	case "activity_level":
		return s.ActivityLevel, true
	case "steps_per_minute":
		return s.StepsPerMinute, true
	case "calories_per_minute":
		return s.CaloriesPerMinute, true
	case "sleep_quality":
		return s.SleepQuality, true
	}
	return 0, false
}
