package models

import "time"

// SourceProfile describes a wearable data source: which metrics it reports,
// how noisy each reading is, and how often it samples.
type SourceProfile struct {
	ID             string
	Name           string
	Icon           string
	Color          string
	Topic          string
	DeviceSource   string
	SampleInterval time.Duration
	NoiseLevels    map[string]float64 // metric -> noise sigma; presence means supported
}

// Supports reports whether the source reports the given metric.
func (p SourceProfile) Supports(metric string) bool {
	_, ok := p.NoiseLevels[metric]
	return ok
}

// SourceProfiles indexes the simulated sources by ID.
var SourceProfiles = map[string]SourceProfile{
	"apple": {
		ID:             "apple",
		Name:           "Apple HealthKit",
		Icon:           "🍎",
		Color:          "#FF3B30",
		Topic:          "biometrics-apple",
		DeviceSource:   "apple_watch",
		SampleInterval: 1000 * time.Millisecond,
		NoiseLevels: map[string]float64{
			MetricHeartRate:       1.0,
			MetricHRV:             2.0,
			MetricRespiratoryRate: 0.5,
			MetricActivityLevel:   2.0,
			MetricStepsPerMinute:  1.0,
			MetricCalories:        0.2,
			MetricSpO2:            0.5,
		},
	},
	"google": {
		ID:             "google",
		Name:           "Google Fit",
		Icon:           "📱",
		Color:          "#4285F4",
		Topic:          "biometrics-google",
		DeviceSource:   "fitbit",
		SampleInterval: 1500 * time.Millisecond,
		NoiseLevels: map[string]float64{
			MetricHeartRate:      3.0,
			MetricActivityLevel:  3.0,
			MetricStepsPerMinute: 2.0,
			MetricCalories:       0.3,
		},
	},
	"oura": {
		ID:             "oura",
		Name:           "Oura Ring",
		Icon:           "💍",
		Color:          "#8B5CF6",
		Topic:          "biometrics-oura",
		DeviceSource:   "oura_ring",
		SampleInterval: 2000 * time.Millisecond,
		NoiseLevels: map[string]float64{
			MetricHRV:             2.0,
			MetricSkinTemp:        0.05,
			MetricRespiratoryRate: 0.3,
			MetricSleepQuality:    3.0,
			MetricActivityLevel:   2.0,
		},
	},
}

// SourceIDs returns the profile IDs in a stable order.
func SourceIDs() []string {
	return []string{"apple", "google", "oura"}
}

// MetricSources maps each metric to the sources that report it.
func MetricSources(metric string) []string {
	var out []string
	for _, id := range SourceIDs() {
		if SourceProfiles[id].Supports(metric) {
			out = append(out, id)
		}
	}
	return out
}
