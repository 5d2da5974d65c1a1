package core

import (
	"sync"

	"kahve-ruleti-server/internal/domain"
)

// Store is the arena of live rooms. Its lock covers only insert/evict of
// room entries; mutations inside a room take that room's own lock, so
// different rooms never contend.
type Store struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewStore() *Store {
	return &Store{rooms: make(map[domain.RoomID]*Room)}
}

func (s *Store) Insert(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.Meta().ID] = r
}

func (s *Store) Get(id domain.RoomID) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

// Evict removes the room entry and returns it so the caller can disarm its
// pending timer.
func (s *Store) Evict(id domain.RoomID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if ok {
		delete(s.rooms, id)
	}
	return r, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// All snapshots the current room set, for shutdown sweeps.
func (s *Store) All() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}
