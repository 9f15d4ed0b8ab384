package detector

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

// Watermark is how long the detector waits for stragglers before committing
// to event-time order. Events arriving behind the watermark are dropped.
const Watermark = 5 * time.Second

// EmitFunc receives each finalized alert.
type EmitFunc func(alert *models.AlertEvent)

// runState tracks one in-progress match for a (user, pattern) pair.
type runState struct {
	count int
	sum   float64
	start time.Time
	end   time.Time
}

// userState holds one user's reorder buffer and per-pattern runs.
type userState struct {
	buffer    []*models.VitalEvent
	maxSeen   time.Time
	committed time.Time
	runs      map[string]*runState
}

// Detector evaluates sustained-anomaly patterns over the normalised stream.
// Each user is processed independently: events are reordered inside a small
// watermark buffer and fed to the pattern runs in event-time order.
type Detector struct {
	mu     sync.Mutex
	users  map[string]*userState
	emit   EmitFunc
	logger logging.Logger

	lateDropped int64
}

func New(emit EmitFunc, logger logging.Logger) *Detector {
	return &Detector{
		users:  make(map[string]*userState),
		emit:   emit,
		logger: logger,
	}
}

// Observe ingests one event. Alerts are emitted synchronously once a run
// finalizes.
func (d *Detector) Observe(ev *models.VitalEvent) {
	d.mu.Lock()

	us, ok := d.users[ev.UserID]
	if !ok {
		us = &userState{runs: make(map[string]*runState)}
		d.users[ev.UserID] = us
	}

	if ev.Timestamp.Before(us.committed) {
		d.lateDropped++
		d.mu.Unlock()
		d.logger.WithFields(logging.Fields{
			"event_id":  ev.EventID,
			"user_id":   ev.UserID,
			"timestamp": ev.Timestamp,
		}).Debug("Event behind watermark dropped")
		return
	}

	us.buffer = append(us.buffer, ev)
	if ev.Timestamp.After(us.maxSeen) {
		us.maxSeen = ev.Timestamp
	}

	alerts := d.drain(us, ev.UserID)
	d.mu.Unlock()

	for _, a := range alerts {
		d.emit(a)
	}
}

// LateDropped returns how many events arrived behind the watermark.
func (d *Detector) LateDropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lateDropped
}

// drain releases buffered events at or before maxSeen-Watermark, in event-time
// order, and collects any alerts they finalize. Caller holds the lock.
func (d *Detector) drain(us *userState, userID string) []*models.AlertEvent {
	horizon := us.maxSeen.Add(-Watermark)

	sort.SliceStable(us.buffer, func(i, j int) bool {
		return us.buffer[i].Timestamp.Before(us.buffer[j].Timestamp)
	})

	var alerts []*models.AlertEvent
	released := 0
	for _, ev := range us.buffer {
		if ev.Timestamp.After(horizon) {
			break
		}
		released++
		us.committed = ev.Timestamp
		for i := range Patterns {
			if a := d.advance(us, &Patterns[i], ev, userID); a != nil {
				alerts = append(alerts, a)
			}
		}
	}
	us.buffer = us.buffer[released:]
	return alerts
}

// advance feeds one event into one pattern's run. A breaking event that ends
// a run of at least MinRun produces an alert; shorter runs dissolve silently.
func (d *Detector) advance(us *userState, p *Pattern, ev *models.VitalEvent, userID string) *models.AlertEvent {
	for _, name := range p.Required {
		if _, ok := ev.Metric(name); !ok {
			return nil
		}
	}

	run := us.runs[p.Name]
	if p.Match(ev) {
		if run == nil {
			run = &runState{start: ev.Timestamp}
			us.runs[p.Name] = run
		}
		run.count++
		run.sum += metric(ev, p.Primary)
		run.end = ev.Timestamp
		return nil
	}

	if run == nil {
		return nil
	}
	delete(us.runs, p.Name)
	if run.count < p.MinRun {
		return nil
	}

	avg := run.sum / float64(run.count)
	return &models.AlertEvent{
		AlertID:     uuid.New().String(),
		AlertType:   p.Name,
		UserID:      userID,
		Severity:    p.Severity(avg),
		StartTime:   run.start,
		EndTime:     run.end,
		AvgValue:    avg,
		EventCount:  run.count,
		Description: p.Describe(avg, run.count),
	}
}
