package fusion

import (
	"sync"
	"time"

	"github.com/eljaska/telara/pkg/models"
)

// DefaultRingSize is the hot tier capacity.
const DefaultRingSize = 2000

// Ring is a fixed-capacity append-only buffer over the normalised event
// stream. The newest events win; capacity eviction is the only removal.
type Ring struct {
	mu   sync.RWMutex
	buf  []*models.VitalEvent
	next int
	full bool
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &Ring{buf: make([]*models.VitalEvent, capacity)}
}

// Add appends an event, evicting the oldest when full.
func (r *Ring) Add(ev *models.VitalEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = ev
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Clear drops all buffered events.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		r.buf[i] = nil
	}
	r.next = 0
	r.full = false
}

// Newest returns up to limit events, newest first. limit <= 0 means all.
func (r *Ring) Newest(limit int) []*models.VitalEvent {
	return r.collect(limit, func(*models.VitalEvent) bool { return true })
}

// Since returns the user's events with timestamp at or after cutoff, newest
// first.
func (r *Ring) Since(userID string, cutoff time.Time) []*models.VitalEvent {
	return r.collect(0, func(ev *models.VitalEvent) bool {
		if userID != "" && ev.UserID != userID {
			return false
		}
		return !ev.Timestamp.Before(cutoff)
	})
}

func (r *Ring) collect(limit int, keep func(*models.VitalEvent) bool) []*models.VitalEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]*models.VitalEvent, 0, n)
	// Walk backwards from the most recent insertion.
	for i := 0; i < n; i++ {
		idx := r.next - 1 - i
		if idx < 0 {
			idx += len(r.buf)
		}
		ev := r.buf[idx]
		if ev == nil {
			break
		}
		if !keep(ev) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
