package app

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"kahve-ruleti-server/internal/core"
	"kahve-ruleti-server/internal/domain"
)

// Timeouts are the expiry windows of the room lifecycle.
type Timeouts struct {
	// OpenRoomTTL expires a room that stays open with no selection.
	OpenRoomTTL time.Duration
	// ResolvedRetention keeps a resolved room around for late renderers.
	ResolvedRetention time.Duration
	// EvictionGrace delays eviction after the expiry notice went out.
	EvictionGrace time.Duration
}

// Lifecycle is the room lifecycle manager. It owns admission, the selection
// trigger and the expiry timers; all room state lives in the store and each
// room serializes its own mutations.
type Lifecycle struct {
	store    *core.Store
	registry *Registry
	timeouts Timeouts
}

func NewLifecycle(store *core.Store, registry *Registry, timeouts Timeouts) *Lifecycle {
	return &Lifecycle{store: store, registry: registry, timeouts: timeouts}
}

// CreateRoom allocates an open room and schedules its inactivity expiry.
func (l *Lifecycle) CreateRoom(ownerName string) (domain.RoomID, error) {
	ownerName, err := domain.NormalizeDisplayName(ownerName)
	if err != nil {
		return "", err
	}

	id := domain.RoomID(uuid.NewString())
	room := core.NewRoom(&domain.Room{ID: id, OwnerName: ownerName, CreatedAt: time.Now()})
	l.store.Insert(room)
	room.Rearm(l.timeouts.OpenRoomTTL, func() { l.ExpireRoom(id) })

	log.Info().Str("module", "app.lifecycle").Str("room", string(id)).
		Str("owner", ownerName).Msg("room created")
	return id, nil
}

// RoomSummary is the read-only snapshot for initial page load.
func (l *Lifecycle) RoomSummary(id domain.RoomID) (core.Summary, error) {
	room, ok := l.store.Get(id)
	if !ok {
		return core.Summary{}, domain.ErrRoomNotFound
	}
	return room.Summary(), nil
}

// Join admits a connection into a room. The connection must have been bound
// to the registry beforehand; on success the join binding is recorded and the
// fresh roster is already on its way to every subscriber.
func (l *Lifecycle) Join(roomID domain.RoomID, name string, connID domain.ConnectionID) (*domain.Participant, error) {
	sub, ok := l.registry.Subscriber(connID)
	if !ok {
		return nil, domain.ErrNotAuthorized
	}
	room, ok := l.store.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	p, err := domain.NewParticipant(connID, name)
	if err != nil {
		return nil, err
	}
	if err := room.Admit(p, sub); err != nil {
		return nil, err
	}
	if !l.registry.BindRoom(connID, roomID, p.Name) {
		// Lost the binding race (connection gone or already joined elsewhere):
		// without a binding nothing would retract the admission on disconnect.
		room.DropConnection(connID)
		log.Warn().Str("module", "app.lifecycle").Str("room", string(roomID)).
			Str("conn", string(connID)).Msg("join binding refused, admission rolled back")
		return nil, domain.ErrNotAuthorized
	}
	return p, nil
}

// StartSelection resolves the room. Only the recorded owner name passes; the
// owner does not have to appear in the roster to trigger.
func (l *Lifecycle) StartSelection(roomID domain.RoomID, requesterName string) (core.ParticipantDTO, error) {
	room, ok := l.store.Get(roomID)
	if !ok {
		return core.ParticipantDTO{}, domain.ErrRoomNotFound
	}
	winner, err := room.StartSelection(requesterName)
	if err != nil {
		return core.ParticipantDTO{}, err
	}
	room.Rearm(l.timeouts.ResolvedRetention, func() { l.ExpireRoom(roomID) })
	return winner, nil
}

// ExpireRoom transitions the room to expired, notifies subscribers and
// schedules the final eviction. Timer driven, but safe to call directly.
func (l *Lifecycle) ExpireRoom(id domain.RoomID) {
	room, ok := l.store.Get(id)
	if !ok {
		return
	}
	if room.Expire() {
		room.Rearm(l.timeouts.EvictionGrace, func() { l.EvictRoom(id) })
	}
}

// EvictRoom drops the room from the store and disarms its pending timer.
func (l *Lifecycle) EvictRoom(id domain.RoomID) {
	room, ok := l.store.Evict(id)
	if !ok {
		return
	}
	room.Disarm()
	log.Info().Str("module", "app.lifecycle").Str("room", string(id)).Msg("room evicted")
}

// OnDisconnect unsubscribes the connection and, while the room is still open,
// retracts its participant from the roster.
func (l *Lifecycle) OnDisconnect(connID domain.ConnectionID) {
	roomID, _, bound := l.registry.RoomOf(connID)
	l.registry.Unbind(connID)
	if !bound {
		return
	}
	if room, ok := l.store.Get(roomID); ok {
		room.DropConnection(connID)
	}
}

// Close disarms every pending room timer. Called on shutdown so no timer
// fires into a half-stopped process.
func (l *Lifecycle) Close() {
	for _, room := range l.store.All() {
		room.Disarm()
	}
}
