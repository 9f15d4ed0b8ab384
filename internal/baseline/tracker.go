package baseline

import (
	"math"
	"sync"
	"time"

	"github.com/eljaska/telara/pkg/models"
)

// Alpha is the EMA smoothing factor. Small enough that a baseline reflects
// hours of data, large enough to track real drift.
const Alpha = 0.1

// tracked pairs a running mean with a running deviation.
type tracked struct {
	mean, std float64
	seen      bool
}

func (t *tracked) update(x float64) {
	if !t.seen {
		t.mean = x
		t.std = 0
		t.seen = true
		return
	}
	t.mean = (1-Alpha)*t.mean + Alpha*x
	t.std = math.Sqrt((1-Alpha)*t.std*t.std + Alpha*(x-t.mean)*(x-t.mean))
}

type userBaseline struct {
	hr, hrv, spo2, temp, activity tracked
	dataPoints                    int
	updatedAt                     time.Time
}

// Tracker learns each user's normal ranges as exponential moving aggregates
// over the incoming stream.
type Tracker struct {
	mu    sync.RWMutex
	users map[string]*userBaseline
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		users: make(map[string]*userBaseline),
		now:   time.Now,
	}
}

// Observe folds one event into the user's baseline. Absent metrics leave
// their aggregates untouched.
func (t *Tracker) Observe(ev *models.VitalEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ub, ok := t.users[ev.UserID]
	if !ok {
		ub = &userBaseline{}
		t.users[ev.UserID] = ub
	}

	updated := false
	apply := func(tr *tracked, name string) {
		if v, ok := ev.Metric(name); ok {
			tr.update(v)
			updated = true
		}
	}
	apply(&ub.hr, models.MetricHeartRate)
	apply(&ub.hrv, models.MetricHRV)
	apply(&ub.spo2, models.MetricSpO2)
	apply(&ub.temp, models.MetricSkinTemp)
	apply(&ub.activity, models.MetricActivityLevel)

	if updated {
		ub.dataPoints++
		ub.updatedAt = t.now()
	}
}

// Get returns the user's baseline; ok is false when the user is unknown.
func (t *Tracker) Get(userID string) (models.Baseline, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ub, ok := t.users[userID]
	if !ok {
		return models.Baseline{}, false
	}
	return snapshot(userID, ub), true
}

// All returns every learned baseline, for periodic persistence.
func (t *Tracker) All() []models.Baseline {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Baseline, 0, len(t.users))
	for userID, ub := range t.users {
		out = append(out, snapshot(userID, ub))
	}
	return out
}

func snapshot(userID string, ub *userBaseline) models.Baseline {
	return models.Baseline{
		UserID:       userID,
		MeanHR:       ub.hr.mean,
		StdHR:        ub.hr.std,
		MeanHRV:      ub.hrv.mean,
		StdHRV:       ub.hrv.std,
		MeanSpO2:     ub.spo2.mean,
		StdSpO2:      ub.spo2.std,
		MeanTemp:     ub.temp.mean,
		StdTemp:      ub.temp.std,
		MeanActivity: ub.activity.mean,
		StdActivity:  ub.activity.std,
		DataPoints:   ub.dataPoints,
		UpdatedAt:    ub.updatedAt,
	}
}
