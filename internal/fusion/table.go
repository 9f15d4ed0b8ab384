package fusion

import (
	"sort"
	"sync"
	"time"

	"github.com/eljaska/telara/pkg/models"
)

// FreshnessWindow bounds how old a per-source reading may be and still
// contribute to a fused value.
const FreshnessWindow = 10 * time.Second

type reading struct {
	value     float64
	timestamp time.Time
}

// FusedMetric is the per-metric fusion result: the newest fresh reading wins,
// with contributing sources retained for display attribution.
type FusedMetric struct {
	Metric      string    `json:"metric"`
	Value       float64   `json:"value"`
	Timestamp   time.Time `json:"timestamp"`
	BestSource  string    `json:"best_source"`
	BestAgeMs   float64   `json:"best_age_ms"`
	Sources     []string  `json:"contributing_sources"`
	SourceCount int       `json:"source_count"`
}

// Table fuses the per-source streams: for each metric it keeps the latest
// reading per source and serves the newest one still inside the freshness
// window. Stale metrics are omitted, never served.
type Table struct {
	mu     sync.RWMutex
	latest map[string]map[string]reading // metric -> source -> newest reading
	now    func() time.Time
}

func NewTable() *Table {
	return &Table{
		latest: make(map[string]map[string]reading),
		now:    time.Now,
	}
}

// Ingest records the event's metrics as the latest reading for its source.
// Out-of-order events never overwrite a newer reading from the same source.
func (t *Table) Ingest(ev *models.VitalEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for metric, value := range ev.Metrics() {
		bySource, ok := t.latest[metric]
		if !ok {
			bySource = make(map[string]reading)
			t.latest[metric] = bySource
		}
		if prev, ok := bySource[ev.Source]; ok && prev.timestamp.After(ev.Timestamp) {
			continue
		}
		bySource[ev.Source] = reading{value: value, timestamp: ev.Timestamp}
	}
}

// Get returns the fused value for one metric, or false if no source has a
// fresh reading.
func (t *Table) Get(metric string) (FusedMetric, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fuse(metric, t.now())
}

// Snapshot returns fused values for every metric with at least one fresh
// reading.
func (t *Table) Snapshot() map[string]FusedMetric {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := make(map[string]FusedMetric)
	for metric := range t.latest {
		if fused, ok := t.fuse(metric, now); ok {
			out[metric] = fused
		}
	}
	return out
}

// Clear resets all per-source readings.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest = make(map[string]map[string]reading)
}

// fuse computes the winner among fresh readings. Caller holds a lock.
func (t *Table) fuse(metric string, now time.Time) (FusedMetric, bool) {
	bySource := t.latest[metric]
	cutoff := now.Add(-FreshnessWindow)

	type fresh struct {
		source string
		reading
	}
	candidates := make([]fresh, 0, len(bySource))
	for source, r := range bySource {
		if r.timestamp.Before(cutoff) {
			continue
		}
		candidates = append(candidates, fresh{source: source, reading: r})
	}
	if len(candidates) == 0 {
		return FusedMetric{}, false
	}

	// Newest first; source name breaks ties deterministically.
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].timestamp.Equal(candidates[j].timestamp) {
			return candidates[i].timestamp.After(candidates[j].timestamp)
		}
		return candidates[i].source < candidates[j].source
	})

	best := candidates[0]
	sources := make([]string, len(candidates))
	for i, c := range candidates {
		sources[i] = c.source
	}
	return FusedMetric{
		Metric:      metric,
		Value:       best.value,
		Timestamp:   best.timestamp,
		BestSource:  best.source,
		BestAgeMs:   float64(now.Sub(best.timestamp)) / float64(time.Millisecond),
		Sources:     sources,
		SourceCount: len(candidates),
	}, true
}
