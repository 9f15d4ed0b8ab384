package groundtruth

import "sync"

// Registry lazily creates one engine per user.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*Engine)}
}

// Get returns the engine for userID, creating it on first use.
func (r *Registry) Get(userID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[userID]
	if !ok {
		e = NewEngine(userID)
		r.engines[userID] = e
	}
	return e
}
