package store

import (
	"context"
	"sync"
	"time"

	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

const (
	// DefaultFlushInterval is how often the buffer drains to SQLite.
	DefaultFlushInterval = 5 * time.Second
	// DefaultFlushBatch caps rows per transaction.
	DefaultFlushBatch = 100
)

// Flusher buffers incoming events and writes them to the store in periodic
// batches, decoupling the hot ingest path from disk latency. On write failure
// the batch is re-prefixed onto the buffer and retried next tick.
type Flusher struct {
	store    *Store
	logger   logging.Logger
	interval time.Duration
	batch    int

	mu      sync.Mutex
	pending []*models.VitalEvent
	paused  bool

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func NewFlusher(store *Store, logger logging.Logger) *Flusher {
	return &Flusher{
		store:    store,
		logger:   logger,
		interval: DefaultFlushInterval,
		batch:    DefaultFlushBatch,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Add buffers one event for the next flush.
func (f *Flusher) Add(ev *models.VitalEvent) {
	f.mu.Lock()
	f.pending = append(f.pending, ev)
	f.mu.Unlock()
}

// Pending returns the number of buffered events.
func (f *Flusher) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Pause stops draining; events keep accumulating. Used while a bulk load
// holds the write path.
func (f *Flusher) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
}

// Resume re-enables draining.
func (f *Flusher) Resume() {
	f.mu.Lock()
	f.paused = false
	f.mu.Unlock()
}

// Start runs the flush loop until Stop is called.
func (f *Flusher) Start() {
	go func() {
		defer close(f.stopped)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f.Flush(context.Background())
			case <-f.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and drains whatever is buffered.
func (f *Flusher) Stop() {
	f.once.Do(func() { close(f.stop) })
	<-f.stopped
	f.Resume()
	f.Flush(context.Background())
}

// Flush drains the buffer in batches. Returns the number of events written.
func (f *Flusher) Flush(ctx context.Context) int {
	written := 0
	for {
		f.mu.Lock()
		if f.paused || len(f.pending) == 0 {
			f.mu.Unlock()
			return written
		}
		n := len(f.pending)
		if n > f.batch {
			n = f.batch
		}
		batch := f.pending[:n]
		f.pending = f.pending[n:]
		f.mu.Unlock()

		if err := f.store.InsertVitals(ctx, batch); err != nil {
			f.logger.WithFields(logging.Fields{
				"error": err.Error(),
				"count": len(batch),
			}).Error("Flush failed, batch requeued")
			f.mu.Lock()
			f.pending = append(batch, f.pending...)
			f.mu.Unlock()
			return written
		}
		written += len(batch)
	}
}
