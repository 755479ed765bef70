package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"whiteboard-server/core"

	"github.com/sirupsen/logrus"
)

// Persister writes canvas snapshots to the durable store in the background.
// Writes are serialized per canvas id and coalesced: only the most recently
// enqueued payload for a canvas is guaranteed to reach the store, so the
// persisted copy converges to the last broadcast update. Failures are logged
// and never surface to clients; the in-memory snapshot remains the
// interactive source of truth.
type Persister struct {
	store core.CanvasStore

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[string]json.RawMessage
	active  map[string]bool
}

func NewPersister(store core.CanvasStore) *Persister {
	p := &Persister{
		store:   store,
		pending: make(map[string]json.RawMessage),
		active:  make(map[string]bool),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Enqueue schedules the elements payload for persistence. It never blocks on
// the store; a newer payload for the same canvas replaces an unwritten one.
func (p *Persister) Enqueue(canvasID string, elements json.RawMessage) {
	p.mu.Lock()
	p.pending[canvasID] = elements
	if !p.active[canvasID] {
		p.active[canvasID] = true
		go p.drain(canvasID)
	}
	p.mu.Unlock()
}

// Flush blocks until every enqueued update has been attempted. Used by the
// shutdown path and by tests.
func (p *Persister) Flush() {
	p.mu.Lock()
	for len(p.active) > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}

func (p *Persister) drain(canvasID string) {
	for {
		p.mu.Lock()
		elements, ok := p.pending[canvasID]
		if !ok {
			delete(p.active, canvasID)
			p.cond.Broadcast()
			p.mu.Unlock()
			return
		}
		delete(p.pending, canvasID)
		p.mu.Unlock()

		err := p.store.UpdateElements(context.Background(), canvasID, elements)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrNotFound):
			// The record vanished between broadcast and save; the
			// update is dropped on the floor.
			logrus.WithField("canvas_id", canvasID).Warn("Canvas not found while saving, dropping update")
		default:
			logrus.WithFields(logrus.Fields{
				"canvas_id": canvasID,
				"error":     err,
			}).Error("Failed to persist canvas update")
		}
	}
}
