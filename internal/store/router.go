package store

import (
	"context"
	"time"

	"github.com/eljaska/telara/internal/fusion"
	"github.com/eljaska/telara/pkg/models"
)

// RingWindow is the widest lookback served from the in-memory tier. Queries
// beyond it fall through to SQLite.
const RingWindow = 30 * time.Minute

// Router picks the tier for each read: the ring for short windows, the
// database for anything wider.
type Router struct {
	ring  *fusion.Ring
	store *Store
}

func NewRouter(ring *fusion.Ring, store *Store) *Router {
	return &Router{ring: ring, store: store}
}

// Recent returns the user's events over the last N minutes, newest first.
func (r *Router) Recent(ctx context.Context, userID string, minutes int) ([]*models.VitalEvent, string, error) {
	window := time.Duration(minutes) * time.Minute
	if window <= RingWindow {
		return r.ring.Since(userID, time.Now().Add(-window)), "memory", nil
	}
	events, err := r.store.RecentVitals(ctx, userID, minutes)
	return events, "database", err
}

// Latest returns the user's freshest event, preferring the ring.
func (r *Router) Latest(ctx context.Context, userID string) (*models.VitalEvent, error) {
	for _, ev := range r.ring.Newest(0) {
		if ev.UserID == userID {
			return ev, nil
		}
	}
	return r.store.LatestVital(ctx, userID)
}

// Stats aggregates the user's vitals over the last N hours, using the ring
// for windows of an hour or less.
func (r *Router) Stats(ctx context.Context, userID string, hours int) (VitalsStats, string, error) {
	if hours <= 1 {
		events := r.ring.Since(userID, time.Now().Add(-time.Duration(hours)*time.Hour))
		return ringStats(events), "memory", nil
	}
	st, err := r.store.Stats(ctx, userID, hours)
	return st, "database", err
}

func ringStats(events []*models.VitalEvent) VitalsStats {
	st := VitalsStats{Count: len(events)}

	type acc struct {
		sum float64
		n   int
	}
	var hr, hrv, spo2, temp, activity acc
	var minHR, maxHR float64
	for _, ev := range events {
		if v, ok := ev.Metric(models.MetricHeartRate); ok {
			if hr.n == 0 || v < minHR {
				minHR = v
			}
			if hr.n == 0 || v > maxHR {
				maxHR = v
			}
			hr.sum += v
			hr.n++
		}
		add := func(a *acc, name string) {
			if v, ok := ev.Metric(name); ok {
				a.sum += v
				a.n++
			}
		}
		add(&hrv, models.MetricHRV)
		add(&spo2, models.MetricSpO2)
		add(&temp, models.MetricSkinTemp)
		add(&activity, models.MetricActivityLevel)
	}

	avg := func(a acc) *float64 {
		if a.n == 0 {
			return nil
		}
		v := a.sum / float64(a.n)
		return &v
	}
	st.AvgHRV = avg(hrv)
	st.AvgSpO2 = avg(spo2)
	st.AvgTemp = avg(temp)
	st.AvgActivity = avg(activity)
	if hr.n > 0 {
		st.AvgHR = avg(hr)
		st.MinHR = &minHR
		st.MaxHR = &maxHR
	}
	return st
}
