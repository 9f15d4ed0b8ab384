package generator

import (
	"sync"
	"time"

	"github.com/eljaska/telara/internal/groundtruth"
	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

// Publisher is the Kafka-facing side of the generator. pkg/kafka.Producer
// satisfies it.
type Publisher interface {
	ProduceJSON(topic string, key string, payload interface{}) error
}

// Generator samples the ground-truth engine through every source profile and
// publishes the observed events to the per-source topics.
type Generator struct {
	engines   *groundtruth.Registry
	publisher Publisher
	logger    logging.Logger
	userID    string

	// intervalOverride replaces every profile's sample interval when set.
	intervalOverride time.Duration

	mu                 sync.Mutex
	running            bool
	stop               chan struct{}
	wg                 sync.WaitGroup
	eventsGenerated    int64
	anomaliesTriggered int64
}

func New(engines *groundtruth.Registry, publisher Publisher, userID string, intervalOverride time.Duration, logger logging.Logger) *Generator {
	return &Generator{
		engines:          engines,
		publisher:        publisher,
		logger:           logger,
		userID:           userID,
		intervalOverride: intervalOverride,
	}
}

// Start launches one sampler per source profile. Returns false when already
// running.
func (g *Generator) Start() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	g.stop = make(chan struct{})

	for _, id := range models.SourceIDs() {
		profile := models.SourceProfiles[id]
		interval := profile.SampleInterval
		if g.intervalOverride > 0 {
			interval = g.intervalOverride
		}
		g.wg.Add(1)
		go g.sample(profile, interval, g.stop)
	}

	g.logger.WithFields(logging.Fields{
		"user_id": g.userID,
		"sources": len(models.SourceIDs()),
	}).Info("Generator started")
	return true
}

// Stop halts all samplers. Returns false when not running.
func (g *Generator) Stop() bool {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return false
	}
	g.running = false
	close(g.stop)
	g.mu.Unlock()

	g.wg.Wait()
	g.logger.Info("Generator stopped")
	return true
}

// Running reports whether samplers are live.
func (g *Generator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *Generator) sample(profile models.SourceProfile, interval time.Duration, stop <-chan struct{}) {
	defer g.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	engine := g.engines.Get(g.userID)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			state := engine.CurrentState()
			ev := engine.Observe(state, profile, g.userID)
			if err := g.publisher.ProduceJSON(profile.Topic, g.userID, ev); err != nil {
				g.logger.WithError(err).WithFields(logging.Fields{
					"topic": profile.Topic,
				}).Error("Failed to publish event")
				continue
			}
			g.mu.Lock()
			g.eventsGenerated++
			g.mu.Unlock()
		}
	}
}

// Inject forces an anomaly on the user's engine.
func (g *Generator) Inject(kind string, duration time.Duration) error {
	if err := g.engines.Get(g.userID).InjectAnomaly(kind, duration); err != nil {
		return err
	}
	g.mu.Lock()
	g.anomaliesTriggered++
	g.mu.Unlock()
	g.logger.WithFields(logging.Fields{
		"anomaly":  kind,
		"duration": duration.String(),
	}).Warn("Anomaly injected")
	return nil
}

// Status is the control-plane snapshot.
type Status struct {
	Running            bool                      `json:"running"`
	EventsGenerated    int64                     `json:"events_generated"`
	AnomaliesTriggered int64                     `json:"anomalies_triggered"`
	UserID             string                    `json:"user_id"`
	Sources            []string                  `json:"sources"`
	Anomaly            groundtruth.AnomalyStatus `json:"anomaly"`
}

// Status reports counters and the active anomaly.
func (g *Generator) Status() Status {
	g.mu.Lock()
	running := g.running
	events := g.eventsGenerated
	anomalies := g.anomaliesTriggered
	g.mu.Unlock()

	topics := make([]string, 0, len(models.SourceIDs()))
	for _, id := range models.SourceIDs() {
		topics = append(topics, models.SourceProfiles[id].Topic)
	}

	return Status{
		Running:            running,
		EventsGenerated:    events,
		AnomaliesTriggered: anomalies,
		UserID:             g.userID,
		Sources:            topics,
		Anomaly:            g.engines.Get(g.userID).AnomalyStatus(),
	}
}
