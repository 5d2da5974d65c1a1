package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"kahve-ruleti-server/internal/core"
	"kahve-ruleti-server/internal/domain"
)

type connEntry struct {
	RoomID domain.RoomID
	Name   string
	Sub    core.Subscriber
}

// Registry tracks live connections and their join bindings. A connection is
// bound to at most one room; the binding carries the display name used to
// authorize the selection trigger.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnectionID]*connEntry)}
}

func (r *Registry) Bind(id domain.ConnectionID, sub core.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{Sub: sub}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("bound connection")
}

// BindRoom records the join binding. Returns false when the connection is
// unknown or already joined a room.
func (r *Registry) BindRoom(id domain.ConnectionID, roomID domain.RoomID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok || e.RoomID != "" {
		return false
	}
	e.RoomID = roomID
	e.Name = name
	log.Info().Str("module", "app.registry").Str("conn", string(id)).
		Str("room", string(roomID)).Str("name", name).Msg("bound room")
	return true
}

func (r *Registry) Subscriber(id domain.ConnectionID) (core.Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Sub, true
	}
	return nil, false
}

// RoomOf reports the join binding of a connection, if any.
func (r *Registry) RoomOf(id domain.ConnectionID) (domain.RoomID, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.RoomID == "" {
		return "", "", false
	}
	return e.RoomID, e.Name, true
}

func (r *Registry) Unbind(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbound connection")
}
