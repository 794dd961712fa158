package room

import (
	"log/slog"
	"sync"

	"github.com/codesync-dev/codesync/pkg/crdt"
)

// EngineFactory builds a fresh CRDT engine for a newly created room.
type EngineFactory func(roomID string) crdt.Engine

// Registry is the process-wide mapping from room id to Room. It creates
// rooms lazily on first reference and never evicts them: a long-lived
// process accumulates memory for every distinct room ever referenced,
// which is acceptable only under an external restart or rotation policy.
//
// The registry is an explicit object passed into the gateway at startup,
// so tests can run multiple isolated instances.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	newEngine EngineFactory
	logger    *slog.Logger
	metrics   *Metrics
}

// NewRegistry creates an empty registry. A nil factory defaults to the
// reference crdt.Doc engine; a nil logger defaults to slog.Default().
func NewRegistry(factory EngineFactory, logger *slog.Logger, metrics *Metrics) *Registry {
	if factory == nil {
		factory = func(string) crdt.Engine { return crdt.NewDoc() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:     make(map[string]*Room),
		newEngine: factory,
		logger:    logger.With("component", "registry"),
		metrics:   metrics,
	}
}

// Resolve returns the room for id, constructing and storing it if absent.
// Concurrent resolution of the same never-seen id yields one room.
func (reg *Registry) Resolve(id string) *Room {
	reg.mu.RLock()
	r, ok := reg.rooms[id]
	reg.mu.RUnlock()
	if ok {
		return r
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[id]; ok {
		return r
	}
	r = newRoom(id, reg.newEngine(id), reg.logger, reg.metrics)
	reg.rooms[id] = r
	reg.metrics.RoomCreated()
	reg.logger.Info("room created", "room", id, "rooms", len(reg.rooms))
	return r
}

// Get returns the room for id without creating it.
func (reg *Registry) Get(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// Len returns the number of rooms ever referenced.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
