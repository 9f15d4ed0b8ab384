package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/eljaska/telara/internal/fusion"
	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "telara.db"), logging.NewLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(id string, ts time.Time, hr float64) *models.VitalEvent {
	return &models.VitalEvent{
		EventID:    id,
		Timestamp:  ts,
		UserID:     "user_001",
		Source:     "apple",
		SourceName: "Apple Watch",
		HeartRate:  models.Float(hr),
		HRVMs:      models.Float(55),
	}
}

func TestInsertVitalsUpsertIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	ts := time.Now().Add(-time.Minute)

	events := []*models.VitalEvent{
		testEvent("ev-1", ts, 72),
		testEvent("ev-2", ts.Add(time.Second), 74),
	}
	if err := s.InsertVitals(ctx, events); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := s.InsertVitals(ctx, events); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	n, err := s.VitalsCount(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2 (redelivery must be absorbed)", n)
	}
}

func TestRecentVitalsWindowAndOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	events := []*models.VitalEvent{
		testEvent("old", now.Add(-2*time.Hour), 60),
		testEvent("mid", now.Add(-20*time.Minute), 70),
		testEvent("new", now.Add(-1*time.Minute), 80),
	}
	if err := s.InsertVitals(ctx, events); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.RecentVitals(ctx, "user_001", 60)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].EventID != "new" || got[1].EventID != "mid" {
		t.Fatalf("wrong order: %s, %s", got[0].EventID, got[1].EventID)
	}
}

func TestSparseFieldsRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ev := &models.VitalEvent{
		EventID:      "oura-1",
		Timestamp:    time.Now().Add(-time.Minute),
		UserID:       "user_001",
		Source:       "oura",
		SourceName:   "Oura Ring",
		HRVMs:        models.Float(58),
		SkinTempC:    models.Float(36.52),
		SleepQuality: models.Float(81.25),
	}
	if err := s.InsertVitals(ctx, []*models.VitalEvent{ev}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.LatestVital(ctx, "user_001")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got == nil {
		t.Fatal("expected a row")
	}
	if got.HeartRate != nil {
		t.Fatalf("absent heart_rate came back as %v, must stay nil", *got.HeartRate)
	}
	if got.HRVMs == nil || *got.HRVMs != 58 {
		t.Fatalf("hrv = %v", got.HRVMs)
	}
	if got.SkinTempC == nil || *got.SkinTempC != 36.52 {
		t.Fatalf("temp = %v", got.SkinTempC)
	}
}

func TestStatsAggregates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, hr := range []float64{60, 70, 80} {
		ev := testEvent(fmt.Sprintf("ev-%d", i), now.Add(-time.Duration(i)*time.Minute), hr)
		if err := s.InsertVitals(ctx, []*models.VitalEvent{ev}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	st, err := s.Stats(ctx, "user_001", 24)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Count != 3 {
		t.Fatalf("count = %d", st.Count)
	}
	if st.AvgHR == nil || *st.AvgHR != 70 {
		t.Fatalf("avg hr = %v", st.AvgHR)
	}
	if *st.MinHR != 60 || *st.MaxHR != 80 {
		t.Fatalf("min/max = %v/%v", *st.MinHR, *st.MaxHR)
	}
}

func TestAlertsInsertAndInsight(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	alert := &models.AlertEvent{
		AlertID:     "al-1",
		AlertType:   "TACHYCARDIA_AT_REST",
		UserID:      "user_001",
		Severity:    models.SeverityHigh,
		StartTime:   now.Add(-5 * time.Minute),
		EndTime:     now.Add(-4 * time.Minute),
		AvgValue:    118,
		EventCount:  5,
		Description: "Sustained elevated HR (118 bpm avg) detected while at rest for 5 consecutive readings",
	}
	if err := s.InsertAlert(ctx, alert); err != nil {
		t.Fatalf("insert alert: %v", err)
	}
	if err := s.UpdateAlertInsight(ctx, "al-1", "Likely stress response."); err != nil {
		t.Fatalf("update insight: %v", err)
	}

	alerts, err := s.RecentAlerts(ctx, "user_001", 24, "")
	if err != nil {
		t.Fatalf("recent alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts", len(alerts))
	}
	if alerts[0].Insight != "Likely stress response." {
		t.Fatalf("insight = %q", alerts[0].Insight)
	}

	if filtered, _ := s.RecentAlerts(ctx, "user_001", 24, models.SeverityCritical); len(filtered) != 0 {
		t.Fatalf("severity filter leaked %d alerts", len(filtered))
	}

	counts, err := s.AlertCounts(ctx, "user_001", 24)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[models.SeverityHigh] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestBaselineRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetBaseline(ctx, "user_001"); err != nil || ok {
		t.Fatalf("expected no baseline yet, ok=%v err=%v", ok, err)
	}

	b := models.Baseline{
		UserID: "user_001",
		MeanHR: 72.5, StdHR: 4.1,
		MeanHRV: 55, StdHRV: 6,
		MeanSpO2: 97.8, StdSpO2: 0.6,
		MeanTemp: 36.5, StdTemp: 0.12,
		MeanActivity: 22, StdActivity: 11,
		DataPoints: 150,
		UpdatedAt:  time.Now(),
	}
	if err := s.UpsertBaseline(ctx, b); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	b.MeanHR = 73.1
	b.DataPoints = 200
	if err := s.UpsertBaseline(ctx, b); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, ok, err := s.GetBaseline(ctx, "user_001")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.MeanHR != 73.1 || got.DataPoints != 200 {
		t.Fatalf("baseline not updated: %+v", got)
	}
	if !got.Ready() {
		t.Fatal("baseline with 200 points should be ready")
	}
}

func TestDeleteVitals(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.InsertVitals(ctx, []*models.VitalEvent{testEvent("e1", time.Now(), 70)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	n, err := s.DeleteVitals(ctx)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d rows", n)
	}
}

func TestFlusherBatchesAndRequeues(t *testing.T) {
	s := testStore(t)
	f := NewFlusher(s, logging.NewLogger())

	for i := 0; i < 250; i++ {
		f.Add(testEvent(fmt.Sprintf("f-%d", i), time.Now().Add(-time.Duration(i)*time.Second), 70))
	}
	if got := f.Flush(context.Background()); got != 250 {
		t.Fatalf("flushed %d, want 250", got)
	}
	n, _ := s.VitalsCount(context.Background())
	if n != 250 {
		t.Fatalf("persisted %d rows", n)
	}
}

func TestFlusherPauseResume(t *testing.T) {
	s := testStore(t)
	f := NewFlusher(s, logging.NewLogger())

	f.Pause()
	f.Add(testEvent("p-1", time.Now(), 70))
	if got := f.Flush(context.Background()); got != 0 {
		t.Fatalf("flushed %d while paused", got)
	}
	if f.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", f.Pending())
	}

	f.Resume()
	if got := f.Flush(context.Background()); got != 1 {
		t.Fatalf("flushed %d after resume", got)
	}
}

func TestRouterTierSelection(t *testing.T) {
	s := testStore(t)
	ring := fusion.NewRing(100)
	r := NewRouter(ring, s)
	ctx := context.Background()
	now := time.Now()

	ring.Add(testEvent("hot-1", now.Add(-time.Minute), 75))
	if err := s.InsertVitals(ctx, []*models.VitalEvent{testEvent("cold-1", now.Add(-2*time.Hour), 65)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	hot, tier, err := r.Recent(ctx, "user_001", 10)
	if err != nil {
		t.Fatalf("recent hot: %v", err)
	}
	if tier != "memory" || len(hot) != 1 || hot[0].EventID != "hot-1" {
		t.Fatalf("tier=%s events=%d", tier, len(hot))
	}

	cold, tier, err := r.Recent(ctx, "user_001", 180)
	if err != nil {
		t.Fatalf("recent cold: %v", err)
	}
	if tier != "database" || len(cold) != 1 || cold[0].EventID != "cold-1" {
		t.Fatalf("tier=%s events=%d", tier, len(cold))
	}
}

func TestRouterStatsFromRing(t *testing.T) {
	ring := fusion.NewRing(100)
	r := NewRouter(ring, testStore(t))
	now := time.Now()

	ring.Add(testEvent("r-1", now.Add(-time.Minute), 60))
	ring.Add(testEvent("r-2", now.Add(-2*time.Minute), 80))

	st, tier, err := r.Stats(context.Background(), "user_001", 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if tier != "memory" {
		t.Fatalf("tier = %s", tier)
	}
	if st.Count != 2 || st.AvgHR == nil || *st.AvgHR != 70 {
		t.Fatalf("stats = %+v", st)
	}
	if *st.MinHR != 60 || *st.MaxHR != 80 {
		t.Fatalf("min/max = %v/%v", *st.MinHR, *st.MaxHR)
	}
}
