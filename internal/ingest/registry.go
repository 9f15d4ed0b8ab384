package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/eljaska/telara/pkg/kafka"
	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

// VitalListener receives every normalised reading from an enabled source.
type VitalListener func(ev *models.VitalEvent)

// AlertListener receives every alert consumed from the alerts topic.
type AlertListener func(alert *models.AlertEvent)

// SourceStatus is the per-source worker view exposed on /sources and in the
// WebSocket initial_state.
type SourceStatus struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Icon           string     `json:"icon"`
	Color          string     `json:"color"`
	Topic          string     `json:"topic"`
	Enabled        bool       `json:"enabled"`
	EventsReceived int64      `json:"events_received"`
	LastEventTime  *time.Time `json:"last_event_time,omitempty"`
}

type sourceState struct {
	profile        models.SourceProfile
	enabled        bool
	eventsReceived int64
	lastEventTime  time.Time
}

// Registry owns one consumer worker per source topic plus one for the alerts
// topic, and fans decoded events out to registered listeners. Disabling a
// source keeps its worker polling but gates dispatch.
type Registry struct {
	brokers     []string
	alertsTopic string
	logger      logging.Logger

	mu             sync.RWMutex
	sources        map[string]*sourceState
	vitalListeners []VitalListener
	alertListeners []AlertListener
	decodeFailures int64

	consumers []*kafka.Consumer
}

func NewRegistry(brokers []string, alertsTopic string, logger logging.Logger) *Registry {
	sources := make(map[string]*sourceState)
	for _, id := range models.SourceIDs() {
		sources[id] = &sourceState{profile: models.SourceProfiles[id], enabled: true}
	}
	return &Registry{
		brokers:     brokers,
		alertsTopic: alertsTopic,
		logger:      logger,
		sources:     sources,
	}
}

// OnVital registers a listener for normalised readings.
func (r *Registry) OnVital(fn VitalListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vitalListeners = append(r.vitalListeners, fn)
}

// OnAlert registers a listener for consumed alerts.
func (r *Registry) OnAlert(fn AlertListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alertListeners = append(r.alertListeners, fn)
}

// Start creates the consumer workers and begins polling. Each worker has its
// own consumer group so source topics rewind independently.
func (r *Registry) Start(ctx context.Context) error {
	for _, id := range models.SourceIDs() {
		profile := models.SourceProfiles[id]
		consumer, err := kafka.NewConsumer(r.brokers, "telara-api-consumer-"+id, "telara-api-"+id, r.logger)
		if err != nil {
			return fmt.Errorf("create consumer for %s: %w", id, err)
		}
		consumer.AddHandler(profile.Topic, r.vitalHandler(id))
		r.consumers = append(r.consumers, consumer)
	}

	alertConsumer, err := kafka.NewConsumer(r.brokers, "telara-api-consumer-alerts", "telara-api-alerts", r.logger)
	if err != nil {
		return fmt.Errorf("create alerts consumer: %w", err)
	}
	alertConsumer.AddHandler(r.alertsTopic, r.alertHandler())
	r.consumers = append(r.consumers, alertConsumer)

	for _, consumer := range r.consumers {
		c := consumer
		go func() {
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				r.logger.WithError(err).Error("Consumer worker stopped")
			}
		}()
	}
	r.logger.WithFields(logging.Fields{
		"sources":      len(r.sources),
		"alerts_topic": r.alertsTopic,
	}).Info("Ingestion workers started")
	return nil
}

// Close shuts down all consumer workers.
func (r *Registry) Close() {
	for _, c := range r.consumers {
		c.Close()
	}
}

// vitalHandler decodes and dispatches readings for one source. Decode
// failures are logged, counted and skipped so one bad record never wedges the
// partition.
func (r *Registry) vitalHandler(sourceID string) kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev models.VitalEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			r.mu.Lock()
			r.decodeFailures++
			r.mu.Unlock()
			r.logger.WithError(err).WithFields(logging.Fields{
				"topic":  msg.Topic,
				"offset": msg.Offset,
			}).Warn("Dropping undecodable vital event")
			return nil
		}
		if ev.Source == "" {
			ev.Source = sourceID
		}

		r.mu.Lock()
		state := r.sources[sourceID]
		if state == nil || !state.enabled {
			r.mu.Unlock()
			return nil
		}
		state.eventsReceived++
		state.lastEventTime = ev.Timestamp
		listeners := make([]VitalListener, len(r.vitalListeners))
		copy(listeners, r.vitalListeners)
		r.mu.Unlock()

		for _, fn := range listeners {
			fn(&ev)
		}
		return nil
	}
}

func (r *Registry) alertHandler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var alert models.AlertEvent
		if err := json.Unmarshal(msg.Value, &alert); err != nil {
			r.mu.Lock()
			r.decodeFailures++
			r.mu.Unlock()
			r.logger.WithError(err).WithFields(logging.Fields{
				"topic":  msg.Topic,
				"offset": msg.Offset,
			}).Warn("Dropping undecodable alert")
			return nil
		}

		r.mu.RLock()
		listeners := make([]AlertListener, len(r.alertListeners))
		copy(listeners, r.alertListeners)
		r.mu.RUnlock()

		for _, fn := range listeners {
			fn(&alert)
		}
		return nil
	}
}

// Enable resumes dispatch for a source.
func (r *Registry) Enable(sourceID string) error {
	return r.setEnabled(sourceID, true)
}

// Disable gates dispatch for a source; the worker keeps polling.
func (r *Registry) Disable(sourceID string) error {
	return r.setEnabled(sourceID, false)
}

func (r *Registry) setEnabled(sourceID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sources[sourceID]
	if !ok {
		return fmt.Errorf("unknown source %q", sourceID)
	}
	state.enabled = enabled
	r.logger.WithFields(logging.Fields{
		"source":  sourceID,
		"enabled": enabled,
	}).Info("Source dispatch toggled")
	return nil
}

// Status returns per-source worker state in profile order.
func (r *Registry) Status() []SourceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SourceStatus, 0, len(r.sources))
	for _, id := range models.SourceIDs() {
		state := r.sources[id]
		status := SourceStatus{
			ID:             state.profile.ID,
			Name:           state.profile.Name,
			Icon:           state.profile.Icon,
			Color:          state.profile.Color,
			Topic:          state.profile.Topic,
			Enabled:        state.enabled,
			EventsReceived: state.eventsReceived,
		}
		if !state.lastEventTime.IsZero() {
			ts := state.lastEventTime
			status.LastEventTime = &ts
		}
		out = append(out, status)
	}
	return out
}

// StatusMap keys Status by source ID, for the initial_state snapshot.
func (r *Registry) StatusMap() map[string]interface{} {
	out := make(map[string]interface{})
	for _, status := range r.Status() {
		out[status.ID] = status
	}
	return out
}

// DecodeFailures returns the count of dropped undecodable records.
func (r *Registry) DecodeFailures() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.decodeFailures
}
