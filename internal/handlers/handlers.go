package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eljaska/telara/internal/analytics"
	"github.com/eljaska/telara/internal/baseline"
	"github.com/eljaska/telara/internal/fusion"
	"github.com/eljaska/telara/internal/hub"
	"github.com/eljaska/telara/internal/ingest"
	"github.com/eljaska/telara/internal/store"
	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

// Handlers wires the HTTP surface to the service internals.
type Handlers struct {
	store    *store.Store
	router   *store.Router
	loader   *store.HistoryLoader
	ring     *fusion.Ring
	table    *fusion.Table
	registry *ingest.Registry
	hub      *hub.Hub
	tracker  *baseline.Tracker
	logger   logging.Logger

	userID       string
	generatorURL string
	proxy        *http.Client
}

func New(st *store.Store, router *store.Router, loader *store.HistoryLoader, ring *fusion.Ring, table *fusion.Table,
	registry *ingest.Registry, h *hub.Hub, tracker *baseline.Tracker, userID, generatorURL string, logger logging.Logger) *Handlers {
	return &Handlers{
		store:        st,
		router:       router,
		loader:       loader,
		ring:         ring,
		table:        table,
		registry:     registry,
		hub:          h,
		tracker:      tracker,
		logger:       logger,
		userID:       userID,
		generatorURL: generatorURL,
		proxy:        &http.Client{Timeout: 5 * time.Second},
	}
}

// RegisterRoutes mounts every endpoint on the router.
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	r.GET("/stats", h.HandleStats)

	r.GET("/vitals/recent", h.HandleRecentVitals)
	r.GET("/vitals/stats", h.HandleVitalStats)

	r.GET("/alerts/recent", h.HandleRecentAlerts)
	r.GET("/alerts/summary", h.HandleAlertSummary)

	r.GET("/wellness/score", h.HandleWellnessScore)
	r.GET("/wellness/baseline", h.HandleBaseline)
	r.GET("/wellness/deviation", h.HandleDeviation)

	r.GET("/correlations", h.HandleCorrelations)
	r.GET("/recommendations", h.HandleRecommendations)
	r.GET("/digest/daily", h.HandleDailyDigest)
	r.GET("/predictions", h.HandlePredictions)
	r.GET("/comparison/weekly", h.HandleWeeklyComparison)

	r.GET("/sources", h.HandleSources)
	r.POST("/sources/:id/connect", h.HandleSourceConnect)
	r.POST("/sources/:id/disconnect", h.HandleSourceDisconnect)

	r.POST("/history/load", h.HandleHistoryLoad)
	r.DELETE("/history", h.HandleHistoryDelete)

	r.GET("/generator/status", h.HandleGeneratorStatus)
	r.POST("/generator/start", h.proxyPost("/start"))
	r.POST("/generator/stop", h.proxyPost("/stop"))
	r.POST("/generator/inject/:anomaly_type", h.HandleGeneratorInject)

	r.GET("/ws/vitals", h.HandleWebSocket)
}

// queryInt reads an int query param with a default and upper bound.
func queryInt(c *gin.Context, name string, def, max int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// HandleStats reports streaming statistics.
func (h *Handlers) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.GetStats())
}

// HandleRecentVitals serves the last N minutes of readings, hot tier first.
func (h *Handlers) HandleRecentVitals(c *gin.Context) {
	minutes := queryInt(c, "minutes", 30, 1440)
	vitals, tier, err := h.router.Recent(c.Request.Context(), h.userID, minutes)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query recent vitals")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":          len(vitals),
		"period_minutes": minutes,
		"tier":           tier,
		"vitals":         vitals,
	})
}

// HandleVitalStats serves windowed aggregates.
func (h *Handlers) HandleVitalStats(c *gin.Context) {
	hours := queryInt(c, "hours", 24, 168)
	stats, tier, err := h.router.Stats(c.Request.Context(), h.userID, hours)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query vital stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"period_hours": hours,
		"tier":         tier,
		"stats":        stats,
	})
}

// HandleRecentAlerts serves stored alerts, optionally filtered by severity.
func (h *Handlers) HandleRecentAlerts(c *gin.Context) {
	hours := queryInt(c, "hours", 24, 168)
	severity := c.Query("severity")
	alerts, err := h.store.RecentAlerts(c.Request.Context(), h.userID, hours, severity)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query alerts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// HandleAlertSummary serves alert counts grouped by severity.
func (h *Handlers) HandleAlertSummary(c *gin.Context) {
	hours := queryInt(c, "hours", 24, 168)
	counts, err := h.store.AlertCounts(c.Request.Context(), h.userID, hours)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query alert summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"period_hours": hours,
		"total":        total,
		"by_severity":  counts,
	})
}

// currentBaseline prefers the live tracker, falling back to the persisted
// aggregate.
func (h *Handlers) currentBaseline(c *gin.Context) (models.Baseline, bool) {
	if b, ok := h.tracker.Get(h.userID); ok {
		return b, true
	}
	b, ok, err := h.store.GetBaseline(c.Request.Context(), h.userID)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to read persisted baseline")
		return models.Baseline{}, false
	}
	return b, ok
}

// HandleWellnessScore serves the composite score with breakdown and tips.
func (h *Handlers) HandleWellnessScore(c *gin.Context) {
	ctx := c.Request.Context()
	vitals, _, err := h.router.Recent(ctx, h.userID, 60)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query vitals for wellness")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	alerts, err := h.store.RecentAlerts(ctx, h.userID, 24, "")
	if err != nil {
		h.logger.WithError(err).Error("Failed to query alerts for wellness")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var baselinePtr *models.Baseline
	if b, ok := h.currentBaseline(c); ok {
		baselinePtr = &b
	}

	score, breakdown := analytics.WellnessScore(vitals, alerts, baselinePtr)
	c.JSON(http.StatusOK, gin.H{
		"score":           score,
		"breakdown":       breakdown,
		"recommendations": analytics.WellnessRecommendations(breakdown),
		"calculated_at":   time.Now().UTC(),
	})
}

// HandleBaseline serves the user's learned normal ranges.
func (h *Handlers) HandleBaseline(c *gin.Context) {
	b, ok := h.currentBaseline(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"message": "No baseline established yet"})
		return
	}
	c.JSON(http.StatusOK, b)
}

// HandleDeviation compares the freshest reading against the personal
// baseline.
func (h *Handlers) HandleDeviation(c *gin.Context) {
	latest, err := h.router.Latest(c.Request.Context(), h.userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query latest vital")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if latest == nil {
		c.JSON(http.StatusOK, gin.H{"has_deviation": false, "message": "No recent vitals"})
		return
	}

	b, ok := h.currentBaseline(c)
	if !ok || !b.Ready() {
		c.JSON(http.StatusOK, gin.H{"has_deviation": false, "message": "Baseline still being established"})
		return
	}

	deviations := baseline.Compare(b, latest.Metrics())
	if len(deviations) == 0 {
		c.JSON(http.StatusOK, gin.H{"has_deviation": false, "message": "Vitals are within your normal range"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"has_deviation": true,
		"data_points":   b.DataPoints,
		"deviations":    deviations,
		"checked_at":    time.Now().UTC(),
	})
}

// HandleCorrelations discovers metric relationships over the window. Lagged
// pairs get an extended window so the shifted samples exist.
func (h *Handlers) HandleCorrelations(c *gin.Context) {
	ctx := c.Request.Context()
	hours := queryInt(c, "hours", 24, 168)

	recent, _, err := h.router.Recent(ctx, h.userID, hours*60)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query vitals for correlations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	extended, _, err := h.router.Recent(ctx, h.userID, (hours+24)*60)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query extended vitals for correlations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, analytics.DiscoverCorrelations(recent, extended, hours, time.Now().UTC()))
}

// HandleRecommendations runs the rule suite over the fused current state.
func (h *Handlers) HandleRecommendations(c *gin.Context) {
	ctx := c.Request.Context()
	limit := queryInt(c, "limit", 5, 10)

	latest := make(map[string]float64)
	for metric, fused := range h.table.Snapshot() {
		latest[metric] = fused.Value
	}
	if len(latest) == 0 {
		if ev, err := h.router.Latest(ctx, h.userID); err == nil && ev != nil {
			latest = ev.Metrics()
		}
	}

	vitals, _, err := h.router.Recent(ctx, h.userID, 30)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query vitals for recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	alerts, err := h.store.RecentAlerts(ctx, h.userID, 24, "")
	if err != nil {
		h.logger.WithError(err).Error("Failed to query alerts for recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var baselinePtr *models.Baseline
	if b, ok := h.currentBaseline(c); ok {
		baselinePtr = &b
	}
	_, breakdown := analytics.WellnessScore(vitals, alerts, baselinePtr)

	c.JSON(http.StatusOK, analytics.Recommendations(latest, alerts, &breakdown, time.Now(), limit))
}

// HandleDailyDigest compares the last 12 hours against the same span a day
// earlier.
func (h *Handlers) HandleDailyDigest(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().UTC()

	today, err := h.store.VitalsBetween(ctx, h.userID, now.Add(-12*time.Hour), now)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query today's vitals")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	yesterday, err := h.store.VitalsBetween(ctx, h.userID, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	if err != nil {
		h.logger.WithError(err).Error("Failed to query yesterday's vitals")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	alerts, err := h.store.RecentAlerts(ctx, h.userID, 12, "")
	if err != nil {
		h.logger.WithError(err).Error("Failed to query alerts for digest")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, analytics.DailyDigest(today, yesterday, alerts, now))
}

// HandlePredictions projects current trends over the horizon.
func (h *Handlers) HandlePredictions(c *gin.Context) {
	ctx := c.Request.Context()
	maxHours := float64(queryInt(c, "max_hours", 6, 12))

	events, _, err := h.router.Recent(ctx, h.userID, 120)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query vitals for predictions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var baselinePtr *models.Baseline
	if b, ok := h.currentBaseline(c); ok {
		baselinePtr = &b
	}

	c.JSON(http.StatusOK, analytics.Predictions(events, baselinePtr, maxHours, time.Now().UTC()))
}

// HandleWeeklyComparison compares the last two 7-day windows.
func (h *Handlers) HandleWeeklyComparison(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().UTC()
	weekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	current, err := h.store.VitalsBetween(ctx, h.userID, weekAgo, now)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query current week")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	previous, err := h.store.VitalsBetween(ctx, h.userID, twoWeeksAgo, weekAgo)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query previous week")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	currentCounts, err := h.store.AlertCountsBetween(ctx, h.userID, weekAgo, now)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query current week alerts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	previousCounts, err := h.store.AlertCountsBetween(ctx, h.userID, twoWeeksAgo, weekAgo)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query previous week alerts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, analytics.CompareWeeks(
		current, previous,
		analytics.AlertCounts(currentCounts), analytics.AlertCounts(previousCounts),
		now,
	))
}

// HandleSources lists per-source worker status.
func (h *Handlers) HandleSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": h.registry.Status()})
}

// HandleSourceConnect resumes dispatch for one source.
func (h *Handlers) HandleSourceConnect(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Enable(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": id, "enabled": true})
}

// HandleSourceDisconnect gates dispatch for one source.
func (h *Handlers) HandleSourceDisconnect(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Disable(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": id, "enabled": false})
}

// HandleHistoryLoad synthesizes past days of readings straight into SQLite.
func (h *Handlers) HandleHistoryLoad(c *gin.Context) {
	days := queryInt(c, "days", 7, 30)
	loaded, err := h.loader.Load(c.Request.Context(), h.userID, days)
	if err != nil {
		h.logger.WithError(err).Error("Historical load failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "loaded": loaded})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": loaded, "days": days})
}

// HandleHistoryDelete wipes stored vitals and the hot tier.
func (h *Handlers) HandleHistoryDelete(c *gin.Context) {
	deleted, err := h.store.DeleteVitals(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete vitals")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	h.ring.Clear()
	h.table.Clear()
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// HandleGeneratorStatus proxies to the generator control API; unreachable
// generators degrade to "unknown" rather than an error.
func (h *Handlers) HandleGeneratorStatus(c *gin.Context) {
	resp, err := h.proxy.Get(h.generatorURL + "/status")
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "unknown", "error": err.Error()})
		return
	}
	defer resp.Body.Close()
	h.relay(c, resp)
}

func (h *Handlers) proxyPost(path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := h.proxy.Post(h.generatorURL+path, "application/json", nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer resp.Body.Close()
		h.relay(c, resp)
	}
}

var validAnomalyTypes = map[string]bool{
	"tachycardia_at_rest": true,
	"hypoxia":             true,
	"fever_onset":         true,
	"burnout_stress":      true,
	"dehydration":         true,
}

// HandleGeneratorInject forwards an anomaly injection request.
func (h *Handlers) HandleGeneratorInject(c *gin.Context) {
	anomalyType := c.Param("anomaly_type")
	if !validAnomalyTypes[anomalyType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid anomaly type"})
		return
	}
	duration := queryInt(c, "duration", 30, 120)

	body := strings.NewReader(`{"anomaly_type":"` + anomalyType + `","duration_seconds":` + strconv.Itoa(duration) + `}`)
	resp, err := h.proxy.Post(h.generatorURL+"/inject", "application/json", body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer resp.Body.Close()
	h.relay(c, resp)
}

// relay copies the proxied response through unchanged.
func (h *Handlers) relay(c *gin.Context, resp *http.Response) {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad upstream response"})
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, payload)
}

// HandleWebSocket upgrades to the vitals stream.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}
