package main

import (
	"context"
	"strings"
	"time"

	"github.com/eljaska/telara/internal/baseline"
	"github.com/eljaska/telara/internal/detector"
	"github.com/eljaska/telara/internal/fusion"
	"github.com/eljaska/telara/internal/groundtruth"
	"github.com/eljaska/telara/internal/handlers"
	"github.com/eljaska/telara/internal/hub"
	"github.com/eljaska/telara/internal/ingest"
	"github.com/eljaska/telara/internal/insight"
	"github.com/eljaska/telara/internal/store"
	"github.com/eljaska/telara/pkg/config"
	"github.com/eljaska/telara/pkg/kafka"
	"github.com/eljaska/telara/pkg/llm"
	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
	"github.com/eljaska/telara/pkg/monitoring"
	"github.com/eljaska/telara/pkg/server"
	"github.com/eljaska/telara/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("telara")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Telara (health telemetry API)")

	brokersEnv := config.GetEnv("KAFKA_BOOTSTRAP_SERVERS", "kafka:29092")
	brokers := strings.Split(brokersEnv, ",")
	alertsTopic := config.GetEnv("KAFKA_ALERTS_TOPIC", "biometrics-alerts")
	dbPath := config.GetEnv("DATABASE_PATH", "telara.db")
	userID := config.GetEnv("USER_ID", "user_001")
	generatorURL := config.GetEnv("GENERATOR_CONTROL_URL", "http://localhost:8001")

	st, err := store.Open(dbPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer st.Close()

	ring := fusion.NewRing(config.GetEnvInt("RING_CAPACITY", 0))
	table := fusion.NewTable()
	flusher := store.NewFlusher(st, logger)
	flusher.Start()
	defer flusher.Stop()

	engines := groundtruth.NewRegistry()
	loader := store.NewHistoryLoader(st, flusher, engines, logger)
	tracker := baseline.NewTracker()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := kafka.WaitForBrokers(ctx, brokers, 30, 2*time.Second, logger); err != nil {
		logger.WithError(err).Fatal("Kafka brokers never became reachable")
	}

	producer, err := kafka.NewProducer(brokers, "telara", logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Kafka producer")
	}
	defer producer.Close()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("telara", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("telara", version.Version, version.GitCommit)

	eventsTotal := metricsCollector.NewCounter("vitals_ingested_total", "Vital events ingested", []string{"source"})
	alertsTotal := metricsCollector.NewCounter("alerts_raised_total", "Alerts raised", []string{"severity"})
	flushGauge := metricsCollector.NewGauge("flusher_pending_events", "Events buffered for the next flush", nil)
	clientsGauge := metricsCollector.NewGauge("websocket_clients_active", "Connected WebSocket clients", nil)
	broadcastsGauge := metricsCollector.NewGauge("websocket_broadcasts_total", "Messages broadcast since startup", []string{"type"})
	evictionsGauge := metricsCollector.NewGauge("websocket_clients_evicted", "Slow clients evicted since startup", nil)

	h := hub.NewHub(logger)
	go h.Run()

	// Alerts from the detector flow through Kafka so external consumers see
	// them too. Persisting and broadcasting happens on consumption.
	det := detector.New(func(alert *models.AlertEvent) {
		if err := producer.ProduceJSON(alertsTopic, alert.UserID, alert); err != nil {
			logger.WithError(err).Error("Failed to publish alert, persisting directly")
			if err := st.InsertAlert(context.Background(), alert); err != nil {
				logger.WithError(err).Error("Failed to persist alert")
			}
		}
	}, logger)

	llmCfg := llm.LoadConfig()
	var enricher *insight.Enricher
	if llmCfg.Enabled() {
		enricher = insight.NewEnricher(llm.NewAnthropicProvider(llmCfg), st, h, logger)
		logger.WithFields(logging.Fields{"model": llmCfg.Model}).Info("Alert enrichment enabled")
	} else {
		logger.Info("ANTHROPIC_API_KEY not set, alert enrichment disabled")
	}

	registry := ingest.NewRegistry(brokers, alertsTopic, logger)
	h.SetSourceStats(registry.StatusMap)

	registry.OnVital(func(ev *models.VitalEvent) {
		ring.Add(ev)
		table.Ingest(ev)
		flusher.Add(ev)
		tracker.Observe(ev)
		det.Observe(ev)
		h.BroadcastVital(ev, table.Snapshot())
		eventsTotal.WithLabelValues(ev.Source).Inc()
	})
	registry.OnAlert(func(alert *models.AlertEvent) {
		if err := st.InsertAlert(ctx, alert); err != nil {
			logger.WithError(err).Error("Failed to persist alert")
		}
		h.BroadcastAlert(alert)
		alertsTotal.WithLabelValues(alert.Severity).Inc()
		if enricher != nil {
			enricher.EnrichAsync(alert)
		}
	})

	if err := registry.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start Kafka consumers")
	}
	defer registry.Close()

	// Baselines survive restarts through the store.
	go persistBaselines(ctx, tracker, st, logger)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				flushGauge.WithLabelValues().Set(float64(flusher.Pending()))
				clientsGauge.WithLabelValues().Set(float64(h.ConnectionCount()))
				vitals, alerts, evictions := h.Counters()
				broadcastsGauge.WithLabelValues("vital").Set(float64(vitals))
				broadcastsGauge.WithLabelValues("alert").Set(float64(alerts))
				evictionsGauge.WithLabelValues().Set(float64(evictions))
			}
		}
	}()

	healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(producer.GetClient()))
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(st.DB()))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"KAFKA_BOOTSTRAP_SERVERS": brokersEnv,
		"KAFKA_ALERTS_TOPIC":      alertsTopic,
		"DATABASE_PATH":           dbPath,
	}))

	router := server.SetupServiceRouter(logger, "telara", healthChecker, metricsCollector)
	apiHandlers := handlers.New(st, store.NewRouter(ring, st), loader, ring, table, registry, h, tracker,
		userID, generatorURL, logger)
	apiHandlers.RegisterRoutes(router)

	serverConfig := server.DefaultConfig("telara", "8000")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}

	// Shutdown: stop consumers before the final flush so no event is dropped.
	cancel()
	registry.Close()
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	if n := flusher.Flush(flushCtx); n > 0 {
		logger.WithFields(logging.Fields{"events": n}).Info("Final flush complete")
	}
}

// persistBaselines snapshots the EMA trackers into SQLite once a minute.
func persistBaselines(ctx context.Context, tracker *baseline.Tracker, st *store.Store, logger logging.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, b := range tracker.All() {
				if err := st.UpsertBaseline(ctx, b); err != nil {
					logger.WithError(err).WithFields(logging.Fields{
						"user_id": b.UserID,
					}).Error("Failed to persist baseline")
				}
			}
		}
	}
}
