package models

import "time"

// Alert severities, strictest first.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// AlertEvent is a detected sustained anomaly, as published to the alerts
// topic. AvgValue is the mean of the pattern's primary metric over the run.
type AlertEvent struct {
	AlertID     string    `json:"alert_id"`
	AlertType   string    `json:"alert_type"`
	UserID      string    `json:"user_id"`
	Severity    string    `json:"severity"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	AvgValue    float64   `json:"avg_heart_rate"`
	EventCount  int       `json:"event_count"`
	Description string    `json:"description"`
	Insight     string    `json:"ai_insight,omitempty"`
}
