package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestVitalEventSparseJSON(t *testing.T) {
	ev := VitalEvent{
		EventID:   "e1",
		Timestamp: time.Date(2024, 1, 15, 14, 2, 3, 0, time.UTC),
		UserID:    "user_001",
		Source:    "oura",
	}
	ev.SetMetric(MetricHRV, 52)
	ev.SetMetric(MetricSkinTemp, 36.52)

	raw, err := json.Marshal(&ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := m["heart_rate"]; present {
		t.Fatalf("unsupported metric must be omitted, got %v", m["heart_rate"])
	}
	if m["hrv_ms"] != 52.0 {
		t.Fatalf("hrv_ms = %v", m["hrv_ms"])
	}
}

func TestVitalEventMetricAbsentIsNotZero(t *testing.T) {
	var ev VitalEvent
	if v, ok := ev.Metric(MetricHeartRate); ok || v != 0 {
		t.Fatalf("expected absent metric, got %v %v", v, ok)
	}
	ev.SetMetric(MetricHeartRate, 0)
	if _, ok := ev.Metric(MetricHeartRate); !ok {
		t.Fatal("explicit zero must be observed")
	}
}

func TestSourceProfilesFieldOwnership(t *testing.T) {
	cases := []struct {
		metric  string
		sources []string
	}{
		{MetricHeartRate, []string{"apple", "google"}},
		{MetricSpO2, []string{"apple"}},
		{MetricSkinTemp, []string{"oura"}},
		{MetricSleepQuality, []string{"oura"}},
		{MetricActivityLevel, []string{"apple", "google", "oura"}},
	}
	for _, c := range cases {
		got := MetricSources(c.metric)
		if len(got) != len(c.sources) {
			t.Fatalf("%s: sources = %v, want %v", c.metric, got, c.sources)
		}
		for i := range got {
			if got[i] != c.sources[i] {
				t.Fatalf("%s: sources = %v, want %v", c.metric, got, c.sources)
			}
		}
	}
}
