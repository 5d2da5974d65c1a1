package core

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/iter"

	"kahve-ruleti-server/internal/domain"
)

// Room is a threadsafe in-memory selection room. All mutating operations on
// one room serialize on its lock; the roster order is the lock acquisition
// order. Fan-out happens inside the critical section so every subscriber
// observes broadcasts in the same order the mutations were applied.
// It never closes adapter-owned resources except when dropping a subscriber
// that can no longer keep up.
type Room struct {
	meta *domain.Room

	mu     sync.RWMutex
	state  domain.RoomState
	roster []*domain.Participant
	winner *domain.Participant
	subs   map[domain.ConnectionID]Subscriber
	timer  *time.Timer
}

func NewRoom(meta *domain.Room) *Room {
	return &Room{
		meta:  meta,
		state: domain.StateOpen,
		subs:  make(map[domain.ConnectionID]Subscriber),
	}
}

func (r *Room) Meta() *domain.Room { return r.meta }

func (r *Room) State() domain.RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Room) Winner() (ParticipantDTO, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.winner == nil {
		return ParticipantDTO{}, false
	}
	return toDTO(r.winner), true
}

func (r *Room) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Summary{Owner: r.meta.OwnerName, Participants: r.snapshotLocked()}
}

func (r *Room) Snapshot() []ParticipantDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Admit appends a participant to the roster and subscribes its connection.
// Only legal while the room is open; the new roster is fanned out to every
// subscriber, including the one just admitted.
func (r *Room) Admit(p *domain.Participant, sub Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != domain.StateOpen {
		return domain.ErrRoomClosed
	}
	r.roster = append(r.roster, p)
	r.subs[p.ConnectionID] = sub
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).
		Str("conn", string(p.ConnectionID)).Str("name", p.Name).
		Int("roster", len(r.roster)).Msg("participant admitted")
	r.broadcastLocked(rosterFrame(r.snapshotLocked()))
	return nil
}

// StartSelection draws a uniform-random winner and resolves the room. The
// whole sequence is atomic; a second trigger rejects without recomputing.
func (r *Room) StartSelection(requester string) (ParticipantDTO, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if requester != r.meta.OwnerName {
		return ParticipantDTO{}, domain.ErrNotAuthorized
	}
	switch r.state {
	case domain.StateOpen:
	case domain.StateExpired:
		return ParticipantDTO{}, domain.ErrRoomClosed
	default:
		return ParticipantDTO{}, domain.ErrAlreadyResolved
	}
	if len(r.roster) < 2 {
		return ParticipantDTO{}, domain.ErrNotEnoughParticipants
	}

	r.state = domain.StateSelecting
	r.winner = r.roster[rand.IntN(len(r.roster))]
	r.state = domain.StateResolved

	winner := toDTO(r.winner)
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).
		Str("winner", winner.Name).Int("roster", len(r.roster)).Msg("room resolved")
	r.broadcastLocked(resultFrame(winner))
	return winner, nil
}

// Expire makes the room inert. Reports whether this call did the transition,
// so the expiry notice goes out at most once.
func (r *Room) Expire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == domain.StateExpired {
		return false
	}
	r.state = domain.StateExpired
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Msg("room expired")
	r.broadcastLocked(expiredFrame())
	return true
}

// DropConnection unsubscribes a connection. While the room is still open the
// participant also leaves the roster; after that the historical roster is kept
// for result display and only the fan-out stops. The roster scan runs even
// when the subscriber was already dropped for backpressure, so a participant
// never outlives its connection in an open room.
func (r *Room) DropConnection(connID domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, connID)
	if r.state != domain.StateOpen {
		return
	}
	for i, p := range r.roster {
		if p.ConnectionID == connID {
			r.roster = append(r.roster[:i], r.roster[i+1:]...)
			log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).
				Str("conn", string(connID)).Msg("participant left")
			r.broadcastLocked(rosterFrame(r.snapshotLocked()))
			return
		}
	}
}

// Rearm replaces the room's pending lifecycle timer. Disarm must be called
// when the room is evicted so no timer fires against a freed room.
func (r *Room) Rearm(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(d, fn)
}

func (r *Room) Disarm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Room) snapshotLocked() []ParticipantDTO {
	out := make([]ParticipantDTO, 0, len(r.roster))
	for _, p := range r.roster {
		out = append(out, toDTO(p))
	}
	return out
}

// broadcastLocked fans a frame out to every subscriber. A subscriber whose
// send buffer is full gets dropped and closed; the roster entry stays until
// DropConnection retracts it when the read pump surfaces the disconnect.
func (r *Room) broadcastLocked(f Frame) PublishResult {
	if f == nil {
		return PublishResult{}
	}
	type target struct {
		id  domain.ConnectionID
		sub Subscriber
	}
	targets := make([]target, 0, len(r.subs))
	for id, s := range r.subs {
		targets = append(targets, target{id: id, sub: s})
	}
	failed := iter.Map(targets, func(t *target) bool {
		return t.sub.TrySend(f) != nil
	})

	res := PublishResult{}
	for i, t := range targets {
		if !failed[i] {
			res.SentTo++
			continue
		}
		res.Dropped++
		delete(r.subs, t.id)
		t.sub.Close()
		log.Warn().Str("module", "core.room").Str("room", string(r.meta.ID)).
			Str("conn", string(t.id)).Msg("dropped slow subscriber")
	}
	return res
}

func toDTO(p *domain.Participant) ParticipantDTO {
	return ParticipantDTO{ID: p.ConnectionID, Name: p.Name, JoinedAt: p.JoinedAt}
}
