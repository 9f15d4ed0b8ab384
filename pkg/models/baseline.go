package models

import "time"

// Baseline holds a user's learned normal ranges. Means and deviations are
// exponential moving aggregates over fused readings.
type Baseline struct {
	UserID       string    `json:"user_id"`
	MeanHR       float64   `json:"mean_hr"`
	StdHR        float64   `json:"std_hr"`
	MeanHRV      float64   `json:"mean_hrv"`
	StdHRV       float64   `json:"std_hrv"`
	MeanSpO2     float64   `json:"mean_spo2"`
	StdSpO2      float64   `json:"std_spo2"`
	MeanTemp     float64   `json:"mean_temp"`
	StdTemp      float64   `json:"std_temp"`
	MeanActivity float64   `json:"mean_activity"`
	StdActivity  float64   `json:"std_activity"`
	DataPoints   int       `json:"data_points"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Ready reports whether the baseline has seen enough data to be meaningful.
func (b Baseline) Ready() bool {
	return b.DataPoints >= 10
}
