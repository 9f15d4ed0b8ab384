package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eljaska/telara/internal/baseline"
	"github.com/eljaska/telara/internal/fusion"
	"github.com/eljaska/telara/internal/groundtruth"
	"github.com/eljaska/telara/internal/hub"
	"github.com/eljaska/telara/internal/ingest"
	"github.com/eljaska/telara/internal/store"
	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

type fixture struct {
	handlers *Handlers
	router   *gin.Engine
	store    *store.Store
	ring     *fusion.Ring
	table    *fusion.Table
	tracker  *baseline.Tracker
}

func newFixture(t *testing.T, generatorURL string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewLogger()
	st, err := store.Open(filepath.Join(t.TempDir(), "telara.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ring := fusion.NewRing(0)
	table := fusion.NewTable()
	flusher := store.NewFlusher(st, logger)
	loader := store.NewHistoryLoader(st, flusher, groundtruth.NewRegistry(), logger)
	registry := ingest.NewRegistry([]string{"localhost:9092"}, "biometrics-alerts", logger)
	h := hub.NewHub(logger)
	tracker := baseline.NewTracker()

	handlers := New(st, store.NewRouter(ring, st), loader, ring, table, registry, h, tracker,
		"demo-user", generatorURL, logger)

	router := gin.New()
	handlers.RegisterRoutes(router)
	return &fixture{handlers: handlers, router: router, store: st, ring: ring, table: table, tracker: tracker}
}

func (f *fixture) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal %s %s response: %v\n%s", method, path, err, w.Body.String())
		}
	}
	return w, body
}

func seedEvent(id string, age time.Duration, hr float64) *models.VitalEvent {
	return &models.VitalEvent{
		EventID:   id,
		Timestamp: time.Now().UTC().Add(-age),
		UserID:    "demo-user",
		Source:    "apple",
		HeartRate: models.Float(hr),
	}
}

func TestRecentVitalsServedFromHotTier(t *testing.T) {
	f := newFixture(t, "")
	f.ring.Add(seedEvent("v1", 2*time.Minute, 72))
	f.ring.Add(seedEvent("v2", 1*time.Minute, 74))

	w, body := f.do(t, http.MethodGet, "/vitals/recent?minutes=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["tier"] != "memory" {
		t.Fatalf("tier = %v, want memory", body["tier"])
	}
	if body["count"].(float64) != 2 {
		t.Fatalf("count = %v, want 2", body["count"])
	}
}

func TestAlertSummaryCountsBySeverity(t *testing.T) {
	f := newFixture(t, "")
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	for i, sev := range []string{models.SeverityHigh, models.SeverityHigh, models.SeverityMedium} {
		err := f.store.InsertAlert(ctx, &models.AlertEvent{
			AlertID:   "a" + string(rune('0'+i)),
			AlertType: "sustained_high_hr",
			UserID:    "demo-user",
			Severity:  sev,
			StartTime: time.Now().UTC(),
			EndTime:   time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("insert alert: %v", err)
		}
	}

	w, body := f.do(t, http.MethodGet, "/alerts/summary")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["total"].(float64) != 3 {
		t.Fatalf("total = %v, want 3", body["total"])
	}
	bySeverity := body["by_severity"].(map[string]interface{})
	if bySeverity[models.SeverityHigh].(float64) != 2 {
		t.Fatalf("high = %v, want 2", bySeverity[models.SeverityHigh])
	}
}

func TestDeviationWithoutDataAndWithBaseline(t *testing.T) {
	f := newFixture(t, "")

	_, body := f.do(t, http.MethodGet, "/wellness/deviation")
	if body["has_deviation"] != false {
		t.Fatalf("has_deviation = %v without data", body["has_deviation"])
	}

	// Mature the baseline around 72 bpm, then present a clearly elevated
	// reading as the freshest event.
	for i := 0; i < 50; i++ {
		ev := seedEvent("b", time.Minute, 72)
		f.tracker.Observe(ev)
	}
	f.ring.Add(seedEvent("hot", time.Second, 95))

	_, body = f.do(t, http.MethodGet, "/wellness/deviation")
	if body["has_deviation"] != true {
		t.Fatalf("has_deviation = %v, want true: %v", body["has_deviation"], body)
	}
	if len(body["deviations"].([]interface{})) == 0 {
		t.Fatal("deviations empty")
	}
}

func TestWellnessScoreNoDataFallback(t *testing.T) {
	f := newFixture(t, "")
	w, body := f.do(t, http.MethodGet, "/wellness/score")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["score"].(float64) != 50 {
		t.Fatalf("score = %v, want 50 without data", body["score"])
	}
}

func TestSourceToggleEndpoints(t *testing.T) {
	f := newFixture(t, "")

	w, body := f.do(t, http.MethodPost, "/sources/apple/disconnect")
	if w.Code != http.StatusOK || body["enabled"] != false {
		t.Fatalf("disconnect: status=%d body=%v", w.Code, body)
	}

	_, body = f.do(t, http.MethodGet, "/sources")
	var appleEnabled interface{}
	for _, raw := range body["sources"].([]interface{}) {
		src := raw.(map[string]interface{})
		if src["id"] == "apple" {
			appleEnabled = src["enabled"]
		}
	}
	if appleEnabled != false {
		t.Fatalf("apple enabled = %v after disconnect", appleEnabled)
	}

	w, _ = f.do(t, http.MethodPost, "/sources/whoop/connect")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown source status = %d, want 404", w.Code)
	}
}

func TestHistoryDeleteClearsTiers(t *testing.T) {
	f := newFixture(t, "")
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	if err := f.store.InsertVitals(ctx, []*models.VitalEvent{seedEvent("v1", time.Minute, 70)}); err != nil {
		t.Fatalf("insert vitals: %v", err)
	}
	f.ring.Add(seedEvent("v1", time.Minute, 70))

	w, body := f.do(t, http.MethodDelete, "/history")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["deleted"].(float64) != 1 {
		t.Fatalf("deleted = %v, want 1", body["deleted"])
	}
	if f.ring.Len() != 0 {
		t.Fatalf("ring len = %d after delete", f.ring.Len())
	}
}

func TestGeneratorProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"running"}`))
		case "/inject":
			var req map[string]interface{}
			json.NewDecoder(r.Body).Decode(&req)
			if req["anomaly_type"] != "hypoxia" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"injected":"hypoxia"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer upstream.Close()

	f := newFixture(t, upstream.URL)

	w, body := f.do(t, http.MethodGet, "/generator/status")
	if w.Code != http.StatusOK || body["status"] != "running" {
		t.Fatalf("status proxy: code=%d body=%v", w.Code, body)
	}

	w, body = f.do(t, http.MethodPost, "/generator/inject/hypoxia?duration=20")
	if w.Code != http.StatusOK || body["injected"] != "hypoxia" {
		t.Fatalf("inject proxy: code=%d body=%v", w.Code, body)
	}

	w, _ = f.do(t, http.MethodPost, "/generator/inject/zombie_mode")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid anomaly status = %d, want 400", w.Code)
	}
}

func TestGeneratorStatusDegradesWhenUnreachable(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	w, body := f.do(t, http.MethodGet, "/generator/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 degraded", w.Code)
	}
	if body["status"] != "unknown" {
		t.Fatalf("status field = %v, want unknown", body["status"])
	}
}
