package store

import (
	"context"
	"fmt"
	"time"

	"github.com/eljaska/telara/internal/groundtruth"
	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

const (
	historyBatchRows = 500
	historyTimeout   = 10 * time.Minute
)

// HistoryLoader backfills synthetic past vitals so analytics have data on a
// fresh session. One reading per minute per source, following the same
// circadian model as the live stream.
type HistoryLoader struct {
	store   *Store
	flusher *Flusher
	engines *groundtruth.Registry
	logger  logging.Logger
}

func NewHistoryLoader(store *Store, flusher *Flusher, engines *groundtruth.Registry, logger logging.Logger) *HistoryLoader {
	return &HistoryLoader{store: store, flusher: flusher, engines: engines, logger: logger}
}

// Load synthesizes the given number of days of history for the user and
// writes it directly to the database. The live flusher is paused for the
// duration so bulk transactions do not interleave with tick flushes.
func (l *HistoryLoader) Load(ctx context.Context, userID string, days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("days must be positive, got %d", days)
	}
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	l.flusher.Pause()
	defer l.flusher.Resume()

	engine := l.engines.Get(userID)
	start := time.Now().Add(-time.Duration(days) * 24 * time.Hour).Truncate(time.Minute)
	end := time.Now().Truncate(time.Minute)

	total := 0
	batch := make([]*models.VitalEvent, 0, historyBatchRows)
	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.store.InsertVitals(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for ts := start; ts.Before(end); ts = ts.Add(time.Minute) {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("history load interrupted: %w", err)
		}
		state := engine.StateAt(ts)
		for _, sourceID := range models.SourceIDs() {
			ev := engine.Observe(state, models.SourceProfiles[sourceID], userID)
			ev.Timestamp = ts
			batch = append(batch, ev)
			if len(batch) >= historyBatchRows {
				if err := flushBatch(); err != nil {
					return total, err
				}
			}
		}
	}
	if err := flushBatch(); err != nil {
		return total, err
	}

	l.logger.WithFields(logging.Fields{
		"user_id": userID,
		"days":    days,
		"events":  total,
	}).Info("History backfill complete")
	return total, nil
}
