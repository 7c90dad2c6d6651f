package users

import (
	"sync"
	"time"
)

// DefaultIdleTTL is how long an unused view instance is kept.
const DefaultIdleTTL = 30 * time.Minute

// Registry owns one Controller per browser session.
type Registry struct {
	factory func() *Controller
	idleTTL time.Duration
	clock   Clock

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	ctrl     *Controller
	lastSeen time.Time
}

// NewRegistry builds a Registry that creates controllers with factory.
func NewRegistry(factory func() *Controller, idleTTL time.Duration, clock Clock) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Registry{
		factory: factory,
		idleTTL: idleTTL,
		clock:   clock,
		entries: make(map[string]*registryEntry),
	}
}

// Get returns the controller for sessionID, creating it on first use. Each call also
// evicts instances idle for longer than the TTL.
func (r *Registry) Get(sessionID string) *Controller {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweep(now, sessionID)
	entry, ok := r.entries[sessionID]
	if !ok {
		entry = &registryEntry{ctrl: r.factory()}
		r.entries[sessionID] = entry
	}
	entry.lastSeen = now
	return entry.ctrl
}

// Len reports the number of live view instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close drops every instance and stops their timers.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.entries {
		entry.ctrl.Close()
		delete(r.entries, id)
	}
}

func (r *Registry) sweep(now time.Time, keep string) {
	for id, entry := range r.entries {
		if id == keep || now.Sub(entry.lastSeen) <= r.idleTTL {
			continue
		}
		if entry.ctrl.Loading() {
			continue
		}
		entry.ctrl.Close()
		delete(r.entries, id)
	}
}
