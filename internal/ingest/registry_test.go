package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/eljaska/telara/pkg/kafka"
	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

func testRegistry() *Registry {
	return NewRegistry([]string{"localhost:9092"}, "biometrics-alerts", logging.NewLogger())
}

func vitalMessage(t *testing.T, ev *models.VitalEvent) kafka.Message {
	t.Helper()
	value, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return kafka.Message{Topic: "biometrics-apple", Value: value}
}

func TestVitalHandlerDispatchesAndCounts(t *testing.T) {
	r := testRegistry()

	var got []*models.VitalEvent
	r.OnVital(func(ev *models.VitalEvent) { got = append(got, ev) })

	ts := time.Now().UTC().Truncate(time.Second)
	handler := r.vitalHandler("apple")
	msg := vitalMessage(t, &models.VitalEvent{
		EventID:   "v1",
		Timestamp: ts,
		UserID:    "demo-user",
		Source:    "apple",
		HeartRate: models.Float(72),
	})
	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if len(got) != 1 || got[0].EventID != "v1" {
		t.Fatalf("dispatched events = %v", got)
	}

	var status SourceStatus
	for _, s := range r.Status() {
		if s.ID == "apple" {
			status = s
		}
	}
	if status.EventsReceived != 1 {
		t.Fatalf("events_received = %d, want 1", status.EventsReceived)
	}
	if status.LastEventTime == nil || !status.LastEventTime.Equal(ts) {
		t.Fatalf("last_event_time = %v, want %v", status.LastEventTime, ts)
	}
}

func TestDisabledSourceGatesDispatch(t *testing.T) {
	r := testRegistry()

	var got int
	r.OnVital(func(*models.VitalEvent) { got++ })

	if err := r.Disable("apple"); err != nil {
		t.Fatalf("disable: %v", err)
	}

	handler := r.vitalHandler("apple")
	msg := vitalMessage(t, &models.VitalEvent{EventID: "v1", Timestamp: time.Now().UTC(), UserID: "demo-user", Source: "apple"})
	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got != 0 {
		t.Fatalf("dispatched %d events from disabled source", got)
	}

	if err := r.Enable("apple"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got != 1 {
		t.Fatalf("dispatched = %d after re-enable, want 1", got)
	}
}

func TestDecodeFailureSkippedNotFatal(t *testing.T) {
	r := testRegistry()
	r.OnVital(func(*models.VitalEvent) { t.Fatal("listener called for bad payload") })

	handler := r.vitalHandler("apple")
	err := handler(context.Background(), kafka.Message{Topic: "biometrics-apple", Value: []byte("{not json")})
	if err != nil {
		t.Fatalf("bad payload must be skipped, got error: %v", err)
	}
	if r.DecodeFailures() != 1 {
		t.Fatalf("decode failures = %d, want 1", r.DecodeFailures())
	}
}

func TestAlertHandlerFanOut(t *testing.T) {
	r := testRegistry()

	var got []*models.AlertEvent
	r.OnAlert(func(a *models.AlertEvent) { got = append(got, a) })

	alert := &models.AlertEvent{
		AlertID:   "a1",
		AlertType: "sustained_high_hr",
		UserID:    "demo-user",
		Severity:  models.SeverityHigh,
	}
	value, err := json.Marshal(alert)
	if err != nil {
		t.Fatalf("marshal alert: %v", err)
	}

	handler := r.alertHandler()
	if err := handler(context.Background(), kafka.Message{Topic: "biometrics-alerts", Value: value}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(got) != 1 || got[0].AlertID != "a1" {
		t.Fatalf("alerts = %v", got)
	}
}

func TestUnknownSourceToggle(t *testing.T) {
	r := testRegistry()
	if err := r.Enable("whoop"); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestStatusMapKeyedByID(t *testing.T) {
	r := testRegistry()
	m := r.StatusMap()
	for _, id := range models.SourceIDs() {
		if _, ok := m[id]; !ok {
			t.Fatalf("status map missing %q", id)
		}
	}
}
