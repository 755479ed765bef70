package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultIdleTTL is how long an empty-room snapshot survives before the
// sweeper evicts it.
const DefaultIdleTTL = 30 * time.Minute

type sessionEntry struct {
	elements   json.RawMessage
	members    int
	lastActive time.Time
}

// Registry holds the authoritative in-memory snapshot per canvas plus the
// count of connected room members. It answers "what elements should a newly
// joined client see". Snapshots are overwritten unconditionally
// (last-write-wins, no merge, no versioning); the durable copy lives in the
// canvas store. The registry starts empty and entries are evicted once their
// room is empty and they have been idle past the TTL.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	idleTTL  time.Duration
}

// NewRegistry creates an empty registry. A non-positive ttl falls back to
// DefaultIdleTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Registry{
		sessions: make(map[string]*sessionEntry),
		idleTTL:  ttl,
	}
}

// Snapshot returns the cached elements for a canvas, if any.
func (r *Registry) Snapshot(canvasID string) (json.RawMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.sessions[canvasID]
	if !ok || entry.elements == nil {
		return nil, false
	}
	return entry.elements, true
}

// SetSnapshot unconditionally overwrites the cached elements for a canvas.
func (r *Registry) SetSnapshot(canvasID string, elements json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.entryLocked(canvasID)
	entry.elements = elements
	entry.lastActive = time.Now()
}

// AddMember records a connection joining the canvas room.
func (r *Registry) AddMember(canvasID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.entryLocked(canvasID)
	entry.members++
	entry.lastActive = time.Now()
}

// RemoveMember records a connection leaving the canvas room.
func (r *Registry) RemoveMember(canvasID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[canvasID]
	if !ok {
		return
	}
	if entry.members > 0 {
		entry.members--
	}
	entry.lastActive = time.Now()
}

// Members returns the current member count for a canvas room.
func (r *Registry) Members(canvasID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.sessions[canvasID]; ok {
		return entry.members
	}
	return 0
}

// EvictIdle removes entries whose room is empty and whose last activity is
// older than the idle TTL. Returns the number of evicted entries.
func (r *Registry) EvictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for canvasID, entry := range r.sessions {
		if entry.members == 0 && now.Sub(entry.lastActive) > r.idleTTL {
			delete(r.sessions, canvasID)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs EvictIdle on the given interval until the returned stop
// function is called.
func (r *Registry) StartSweeper(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				if n := r.EvictIdle(now); n > 0 {
					logrus.WithField("evicted", n).Debug("Evicted idle canvas sessions")
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (r *Registry) entryLocked(canvasID string) *sessionEntry {
	entry, ok := r.sessions[canvasID]
	if !ok {
		entry = &sessionEntry{}
		r.sessions[canvasID] = entry
	}
	return entry
}
