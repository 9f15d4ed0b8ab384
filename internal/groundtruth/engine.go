package groundtruth

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eljaska/telara/pkg/models"
)

// circadianShift holds per-hour offsets applied to the reversion targets.
type circadianShift struct {
	HeartRate    float64
	HRV          float64
	Activity     float64
	SleepQuality float64
}

func circadian(hour int) circadianShift {
	switch {
	case hour >= 2 && hour <= 5: // deep night, lowest HR, highest HRV
		return circadianShift{HeartRate: -12, HRV: 15, Activity: -8, SleepQuality: 10}
	case hour >= 6 && hour <= 8: // waking up
		return circadianShift{HeartRate: -5, HRV: 5, Activity: 5}
	case hour >= 9 && hour <= 11: // peak alertness
		return circadianShift{HeartRate: 3, Activity: 10}
	case hour >= 12 && hour <= 14: // post-lunch dip
		return circadianShift{HeartRate: 5, HRV: -5}
	case hour >= 15 && hour <= 17: // second wind
		return circadianShift{HeartRate: 5, Activity: 8}
	case hour >= 18 && hour <= 20: // evening exercise window
		return circadianShift{HeartRate: 8, HRV: -8, Activity: 15}
	case hour >= 21 && hour <= 23: // wind-down
		return circadianShift{HeartRate: -5, HRV: 5, Activity: -5}
	default: // late night 0-1
		return circadianShift{HeartRate: -8, HRV: 10, Activity: -7}
	}
}

// Engine evolves one user's true physiological state. All reads evolve the
// state first, under the lock, so a snapshot reflects a single instant.
type Engine struct {
	userID string

	mu         sync.Mutex
	heartRate  float64
	hrvMs      float64
	spo2       float64
	skinTemp   float64
	respRate   float64
	activity   float64
	steps      float64
	calories   float64
	sleep      float64
	lastUpdate time.Time

	anomalyKind string
	anomalyEnd  time.Time

	// Per-user "personality": fixed baseline offsets drawn at creation.
	baseHROffset   float64
	baseHRVOffset  float64
	baseTempOffset float64

	rng *rand.Rand
	now func() time.Time
}

// NewEngine creates an engine seeded at resting values.
func NewEngine(userID string) *Engine {
	return newEngine(userID, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now)
}

func newEngine(userID string, rng *rand.Rand, now func() time.Time) *Engine {
	e := &Engine{
		userID:     userID,
		heartRate:  70,
		hrvMs:      55,
		spo2:       98,
		skinTemp:   36.5,
		respRate:   14,
		activity:   10,
		steps:      0,
		calories:   1.2,
		sleep:      75,
		rng:        rng,
		now:        now,
		lastUpdate: now(),
	}
	e.baseHROffset = rng.Float64()*10 - 5
	e.baseHRVOffset = rng.Float64()*10 - 5
	e.baseTempOffset = rng.Float64()*0.4 - 0.2
	return e
}

func clamp(v, min, max float64) float64 {
	return math.Max(min, math.Min(max, v))
}

// randomWalk is mean reversion toward target plus Gaussian noise scaled by
// sqrt(dt).
func (e *Engine) randomWalk(current, target, volatility, dt float64) float64 {
	const reversionStrength = 0.1
	reversion := reversionStrength * (target - current) * dt
	noise := e.rng.NormFloat64() * volatility * math.Sqrt(dt)
	return current + reversion + noise
}

// activeOverrides returns the anomaly ranges if an anomaly is running,
// clearing it when expired. Caller holds the lock.
func (e *Engine) activeOverrides(now time.Time) map[string]Range {
	if e.anomalyKind == "" {
		return nil
	}
	if now.After(e.anomalyEnd) {
		e.anomalyKind = ""
		e.anomalyEnd = time.Time{}
		return nil
	}
	return AnomalyPatterns[e.anomalyKind]
}

// evolve advances the state by the elapsed wall time. Caller holds the lock.
func (e *Engine) evolve() {
	now := e.now()
	dt := now.Sub(e.lastUpdate).Seconds()

	// Cap dt so long pauses don't produce huge jumps.
	dt = math.Min(dt, 5.0)
	if dt < 0.05 {
		return
	}

	shift := circadian(now.UTC().Hour())
	overrides := e.activeOverrides(now)

	hrTarget := 70 + shift.HeartRate + e.baseHROffset
	hrvTarget := 55 + shift.HRV + e.baseHRVOffset
	activityTarget := 10 + shift.Activity

	if r, ok := overrides["heart_rate"]; ok {
		hrTarget = r.Mid()
	}
	if r, ok := overrides["hrv_ms"]; ok {
		hrvTarget = r.Mid()
	}
	if r, ok := overrides["activity_level"]; ok {
		activityTarget = r.Mid()
	}
	spo2Range, spo2Overridden := overrides["spo2_percent"]
	tempRange, tempOverridden := overrides["skin_temp_c"]

	e.heartRate = clamp(e.randomWalk(e.heartRate, hrTarget, 2.0, dt), 45, 180)
	e.hrvMs = clamp(e.randomWalk(e.hrvMs, hrvTarget, 3.0, dt), 10, 120)

	// SpO2 is very stable unless an anomaly forces it.
	if spo2Overridden {
		e.spo2 = spo2Range.Min + e.rng.Float64()*(spo2Range.Max-spo2Range.Min)
	} else {
		e.spo2 = clamp(e.randomWalk(e.spo2, 98, 0.2, dt), 94, 100)
	}

	if tempOverridden {
		e.skinTemp = tempRange.Min + e.rng.Float64()*(tempRange.Max-tempRange.Min)
	} else {
		tempTarget := 36.5 + e.baseTempOffset
		e.skinTemp = clamp(e.randomWalk(e.skinTemp, tempTarget, 0.05, dt), 35.5, 38.5)
	}

	// Respiration tracks heart rate loosely.
	respTarget := 14 + (e.heartRate-70)*0.05
	e.respRate = clamp(e.randomWalk(e.respRate, respTarget, 0.5, dt), 10, 30)

	e.activity = clamp(e.randomWalk(e.activity, activityTarget, 5.0, dt), 0, 100)

	// Steps bucket on activity.
	var stepsTarget float64
	switch {
	case e.activity < 20:
		stepsTarget = 0
	case e.activity < 40:
		stepsTarget = math.Floor(e.rng.Float64() * 11)
	default:
		stepsTarget = e.activity * 0.5
	}
	e.steps = clamp(e.randomWalk(e.steps, stepsTarget, 2.0, dt), 0, 120)

	calTarget := 1.0 + e.activity*0.05
	e.calories = clamp(e.randomWalk(e.calories, calTarget, 0.1, dt), 0.8, 15)

	e.sleep = clamp(e.randomWalk(e.sleep, 75, 1.0, dt), 40, 100)

	e.lastUpdate = now
}

// CurrentState evolves the state for the elapsed time and snapshots it.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evolve()

	return State{
		Timestamp:         e.now().UTC(),
		HeartRate:         round1(e.heartRate),
		HRVMs:             round1(e.hrvMs),
		SpO2Percent:       round1(e.spo2),
		SkinTempC:         round2(e.skinTemp),
		RespiratoryRate:   round1(e.respRate),
		ActivityLevel:     round1(e.activity),
		StepsPerMinute:    round1(e.steps),
		CaloriesPerMinute: round2(e.calories),
		SleepQuality:      round1(e.sleep),
	}
}

// StateAt synthesizes a plausible snapshot for a historical instant from the
// circadian pattern alone. It does not touch the evolving state; the bulk
// history loader uses it.
func (e *Engine) StateAt(t time.Time) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	hour := t.UTC().Hour()
	shift := circadian(hour)

	hr := 70 + shift.HeartRate + e.baseHROffset + e.rng.NormFloat64()*3
	hrv := 55 + shift.HRV + e.baseHRVOffset + e.rng.NormFloat64()*4
	activity := math.Max(0, 10+shift.Activity+e.rng.NormFloat64()*5)

	var steps float64
	switch {
	case hour <= 6:
		steps = 0
	case activity < 20:
		steps = math.Floor(e.rng.Float64() * 6)
	default:
		steps = activity*0.4 + e.rng.NormFloat64()*3
	}

	return State{
		Timestamp:         t,
		HeartRate:         clamp(hr, 45, 180),
		HRVMs:             clamp(hrv, 10, 120),
		SpO2Percent:       97 + e.rng.Float64()*2,
		SkinTempC:         round2(36.5 + e.baseTempOffset + e.rng.NormFloat64()*0.1),
		RespiratoryRate:   clamp(14+e.rng.NormFloat64(), 10, 25),
		ActivityLevel:     clamp(activity, 0, 100),
		StepsPerMinute:    clamp(steps, 0, 120),
		CaloriesPerMinute: round2(1.0 + activity*0.05 + e.rng.NormFloat64()*0.1),
		SleepQuality:      round1(75 + shift.SleepQuality + e.rng.NormFloat64()*3),
	}
}

// InjectAnomaly forces the named anomaly pattern for the given duration.
func (e *Engine) InjectAnomaly(kind string, duration time.Duration) error {
	if !KnownAnomaly(kind) {
		return fmt.Errorf("unknown anomaly type %q", kind)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.anomalyKind = kind
	e.anomalyEnd = e.now().Add(duration)
	return nil
}

// AnomalyStatus describes the currently running anomaly, if any.
type AnomalyStatus struct {
	Active           bool    `json:"active"`
	Kind             string  `json:"type,omitempty"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

// AnomalyStatus reports the active anomaly and its remaining time.
func (e *Engine) AnomalyStatus() AnomalyStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.anomalyKind == "" {
		return AnomalyStatus{}
	}
	remaining := e.anomalyEnd.Sub(e.now()).Seconds()
	if remaining <= 0 {
		return AnomalyStatus{}
	}
	return AnomalyStatus{
		Active:           true,
		Kind:             e.anomalyKind,
		RemainingSeconds: math.Round(remaining*10) / 10,
	}
}

// Observe projects a state onto a source profile: supported fields only, with
// the profile's per-field noise, rounded per field.
func (e *Engine) Observe(state State, profile models.SourceProfile, userID string) *models.VitalEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev := &models.VitalEvent{
		EventID:    uuid.New().String(),
		Timestamp:  state.Timestamp,
		UserID:     userID,
		Source:     profile.ID,
		SourceName: profile.Name,
	}
	for metric, sigma := range profile.NoiseLevels {
		truth, ok := state.Metric(metric)
		if !ok {
			continue
		}
		observed := truth + e.rng.NormFloat64()*sigma
		ev.SetMetric(metric, roundMetric(metric, observed))
	}
	return ev
}

func roundMetric(metric string, v float64) float64 {
	switch metric {
	case models.MetricHeartRate, models.MetricHRV, models.MetricSpO2,
		models.MetricRespiratoryRate, models.MetricActivityLevel, models.MetricStepsPerMinute:
		return math.Round(v)
	default:
		return round2(v)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
