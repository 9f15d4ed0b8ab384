package main

import (
	"context"
	"strings"
	"time"

	"github.com/eljaska/telara/internal/generator"
	"github.com/eljaska/telara/internal/groundtruth"
	"github.com/eljaska/telara/pkg/config"
	"github.com/eljaska/telara/pkg/kafka"
	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/monitoring"
	"github.com/eljaska/telara/pkg/server"
	"github.com/eljaska/telara/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("vitalgen")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Vitalgen (biometrics generator)")

	brokersEnv := config.GetEnv("KAFKA_BOOTSTRAP_SERVERS", "kafka:29092")
	brokers := strings.Split(brokersEnv, ",")
	userID := config.GetEnv("USER_ID", "user_001")
	// 0 keeps each source on its own profile interval.
	intervalOverride := time.Duration(config.GetEnvInt("EVENT_INTERVAL_MS", 0)) * time.Millisecond
	autoStart := config.GetEnvBool("AUTO_START", true)
	autoAnomaly := config.GetEnvBool("AUTO_ANOMALY", true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := kafka.WaitForBrokers(ctx, brokers, 30, 2*time.Second, logger); err != nil {
		logger.WithError(err).Fatal("Kafka brokers never became reachable")
	}

	producer, err := kafka.NewProducer(brokers, "vitalgen", logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Kafka producer")
	}
	defer producer.Close()

	gen := generator.New(groundtruth.NewRegistry(), producer, userID, intervalOverride, logger)

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("vitalgen", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("vitalgen", version.Version, version.GitCommit)

	healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(producer.GetClient()))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"KAFKA_BOOTSTRAP_SERVERS": brokersEnv,
		"USER_ID":                 userID,
	}))

	eventsGauge := metricsCollector.NewGauge("generator_events_generated", "Events published since startup", nil)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				eventsGauge.WithLabelValues().Set(float64(gen.Status().EventsGenerated))
			}
		}
	}()

	if autoStart {
		gen.Start()
	}
	if autoAnomaly {
		go gen.RunDemoSequence(ctx, 60*time.Second, 90*time.Second)
	}

	// Control API with unified monitoring
	router := server.SetupServiceRouter(logger, "vitalgen", healthChecker, metricsCollector)
	gen.RegisterControlRoutes(router)

	serverConfig := server.DefaultConfig("vitalgen", config.GetEnv("CONTROL_PORT", "8001"))
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}

	cancel()
	gen.Stop()
}
