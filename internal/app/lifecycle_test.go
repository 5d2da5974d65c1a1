package app_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kahve-ruleti-server/internal/app"
	"kahve-ruleti-server/internal/core"
	"kahve-ruleti-server/internal/domain"
)

type fakeSub struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (s *fakeSub) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSub) Close() {}

func (s *fakeSub) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(f, &env) == nil {
			out = append(out, env.Type)
		}
	}
	return out
}

var longWindows = app.Timeouts{
	OpenRoomTTL:       time.Hour,
	ResolvedRetention: time.Hour,
	EvictionGrace:     time.Hour,
}

type fixture struct {
	store     *core.Store
	registry  *app.Registry
	lifecycle *app.Lifecycle
}

func newFixture(t *testing.T, windows app.Timeouts) *fixture {
	t.Helper()
	store := core.NewStore()
	registry := app.NewRegistry()
	lifecycle := app.NewLifecycle(store, registry, windows)
	t.Cleanup(lifecycle.Close)
	return &fixture{store: store, registry: registry, lifecycle: lifecycle}
}

func (f *fixture) join(t *testing.T, roomID domain.RoomID, name string) (domain.ConnectionID, *fakeSub) {
	t.Helper()
	connID := domain.ConnectionID("conn-" + name)
	sub := &fakeSub{}
	f.registry.Bind(connID, sub)
	_, err := f.lifecycle.Join(roomID, name, connID)
	require.NoError(t, err)
	return connID, sub
}

func TestLifecycle_CreateRoom(t *testing.T) {
	t.Run("allocates fresh ids and an empty roster", func(t *testing.T) {
		f := newFixture(t, longWindows)

		seen := make(map[domain.RoomID]bool)
		for i := 0; i < 50; i++ {
			id, err := f.lifecycle.CreateRoom("Ayşe")
			require.NoError(t, err)
			assert.False(t, seen[id], "room ids must be previously unused")
			seen[id] = true
		}

		for id := range seen {
			summary, err := f.lifecycle.RoomSummary(id)
			require.NoError(t, err)
			assert.Equal(t, "Ayşe", summary.Owner)
			assert.Empty(t, summary.Participants)
		}
	})

	t.Run("trims the owner name", func(t *testing.T) {
		f := newFixture(t, longWindows)
		id, err := f.lifecycle.CreateRoom("  Ayşe  ")
		require.NoError(t, err)

		summary, err := f.lifecycle.RoomSummary(id)
		require.NoError(t, err)
		assert.Equal(t, "Ayşe", summary.Owner)
	})

	t.Run("rejects blank names", func(t *testing.T) {
		f := newFixture(t, longWindows)
		_, err := f.lifecycle.CreateRoom("   ")
		assert.ErrorIs(t, err, domain.ErrNameEmpty)
		assert.Equal(t, 0, f.store.Len())
	})
}

func TestLifecycle_RoomSummary(t *testing.T) {
	f := newFixture(t, longWindows)
	_, err := f.lifecycle.RoomSummary("missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestLifecycle_Join(t *testing.T) {
	t.Run("requires a bound connection", func(t *testing.T) {
		f := newFixture(t, longWindows)
		id, err := f.lifecycle.CreateRoom("Ayşe")
		require.NoError(t, err)

		_, err = f.lifecycle.Join(id, "Burak", "unknown-conn")
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})

	t.Run("unknown room", func(t *testing.T) {
		f := newFixture(t, longWindows)
		f.registry.Bind("c1", &fakeSub{})
		_, err := f.lifecycle.Join("missing", "Burak", "c1")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})

	t.Run("blank participant name", func(t *testing.T) {
		f := newFixture(t, longWindows)
		id, err := f.lifecycle.CreateRoom("Ayşe")
		require.NoError(t, err)

		f.registry.Bind("c1", &fakeSub{})
		_, err = f.lifecycle.Join(id, "  ", "c1")
		assert.ErrorIs(t, err, domain.ErrNameEmpty)

		summary, err := f.lifecycle.RoomSummary(id)
		require.NoError(t, err)
		assert.Empty(t, summary.Participants)
	})

	t.Run("second join from the same connection rolls back", func(t *testing.T) {
		f := newFixture(t, longWindows)
		first, err := f.lifecycle.CreateRoom("Ayşe")
		require.NoError(t, err)
		second, err := f.lifecycle.CreateRoom("Cem")
		require.NoError(t, err)

		f.join(t, first, "Burak")

		_, err = f.lifecycle.Join(second, "Burak", "conn-Burak")
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)

		// The refused admission must not leave a roster entry behind.
		summary, err := f.lifecycle.RoomSummary(second)
		require.NoError(t, err)
		assert.Empty(t, summary.Participants)

		summary, err = f.lifecycle.RoomSummary(first)
		require.NoError(t, err)
		require.Len(t, summary.Participants, 1)
		assert.Equal(t, "Burak", summary.Participants[0].Name)
	})
}

// The owner is recorded at creation, not joined; only realtime joins create
// roster entries, yet the owner still authorizes the trigger.
func TestLifecycle_OwnerNotInRoster(t *testing.T) {
	f := newFixture(t, longWindows)
	id, err := f.lifecycle.CreateRoom("Ayşe")
	require.NoError(t, err)

	f.join(t, id, "Burak")
	f.join(t, id, "Cem")

	summary, err := f.lifecycle.RoomSummary(id)
	require.NoError(t, err)
	require.Len(t, summary.Participants, 2)
	assert.Equal(t, "Burak", summary.Participants[0].Name)
	assert.Equal(t, "Cem", summary.Participants[1].Name)

	winner, err := f.lifecycle.StartSelection(id, "Ayşe")
	require.NoError(t, err)
	assert.Contains(t, []string{"Burak", "Cem"}, winner.Name)

	_, err = f.lifecycle.StartSelection(id, "Burak")
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestLifecycle_UnusedRoomExpires(t *testing.T) {
	f := newFixture(t, app.Timeouts{
		OpenRoomTTL:       30 * time.Millisecond,
		ResolvedRetention: time.Hour,
		EvictionGrace:     30 * time.Millisecond,
	})
	id, err := f.lifecycle.CreateRoom("Ayşe")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := f.lifecycle.RoomSummary(id)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond, "an unused room must end up evicted")

	_, err = f.lifecycle.RoomSummary(id)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestLifecycle_ResolvedRoomRetiresAndNotifies(t *testing.T) {
	f := newFixture(t, app.Timeouts{
		OpenRoomTTL:       time.Hour,
		ResolvedRetention: 30 * time.Millisecond,
		EvictionGrace:     30 * time.Millisecond,
	})
	id, err := f.lifecycle.CreateRoom("Ayşe")
	require.NoError(t, err)

	_, sub := f.join(t, id, "Burak")
	f.join(t, id, "Cem")

	_, err = f.lifecycle.StartSelection(id, "Ayşe")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		for _, typ := range sub.types() {
			if typ == core.EventRoomExpired {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "subscribers get the expiry notice")

	assert.Eventually(t, func() bool {
		return f.store.Len() == 0
	}, 2*time.Second, 10*time.Millisecond, "the room is evicted after the grace period")
}

func TestLifecycle_EvictionCancelsTimers(t *testing.T) {
	f := newFixture(t, app.Timeouts{
		OpenRoomTTL:       50 * time.Millisecond,
		ResolvedRetention: time.Hour,
		EvictionGrace:     time.Hour,
	})
	id, err := f.lifecycle.CreateRoom("Ayşe")
	require.NoError(t, err)

	f.lifecycle.EvictRoom(id)
	assert.Equal(t, 0, f.store.Len())

	// The stopped TTL timer must not fire against the evicted room.
	time.Sleep(100 * time.Millisecond)
	_, err = f.lifecycle.RoomSummary(id)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestLifecycle_OnDisconnect(t *testing.T) {
	t.Run("retracts the participant while the room is open", func(t *testing.T) {
		f := newFixture(t, longWindows)
		id, err := f.lifecycle.CreateRoom("Ayşe")
		require.NoError(t, err)

		connID, _ := f.join(t, id, "Burak")
		_, other := f.join(t, id, "Cem")

		f.lifecycle.OnDisconnect(connID)

		summary, err := f.lifecycle.RoomSummary(id)
		require.NoError(t, err)
		require.Len(t, summary.Participants, 1)
		assert.Equal(t, "Cem", summary.Participants[0].Name)

		types := other.types()
		assert.Equal(t, core.EventParticipantsUpdate, types[len(types)-1])

		_, _, bound := f.registry.RoomOf(connID)
		assert.False(t, bound, "the registry entry is gone")
	})

	t.Run("keeps the historical roster after resolution", func(t *testing.T) {
		f := newFixture(t, longWindows)
		id, err := f.lifecycle.CreateRoom("Ayşe")
		require.NoError(t, err)

		connID, _ := f.join(t, id, "Burak")
		f.join(t, id, "Cem")
		_, err = f.lifecycle.StartSelection(id, "Ayşe")
		require.NoError(t, err)

		f.lifecycle.OnDisconnect(connID)

		summary, err := f.lifecycle.RoomSummary(id)
		require.NoError(t, err)
		assert.Len(t, summary.Participants, 2)
	})
}

func TestLifecycle_ConcurrentJoinsConverge(t *testing.T) {
	f := newFixture(t, longWindows)
	id, err := f.lifecycle.CreateRoom("Ayşe")
	require.NoError(t, err)

	const n = 20
	subs := make([]*fakeSub, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		subs[i] = &fakeSub{}
		connID := domain.ConnectionID(fmt.Sprintf("conn-%d", i))
		f.registry.Bind(connID, subs[i])
		wg.Add(1)
		go func(i int, connID domain.ConnectionID) {
			defer wg.Done()
			_, err := f.lifecycle.Join(id, fmt.Sprintf("p%d", i), connID)
			assert.NoError(t, err)
		}(i, connID)
	}
	wg.Wait()

	summary, err := f.lifecycle.RoomSummary(id)
	require.NoError(t, err)
	require.Len(t, summary.Participants, n)

	// Every subscriber's final roster broadcast is the complete one.
	for i, sub := range subs {
		sub.mu.Lock()
		last := sub.frames[len(sub.frames)-1]
		sub.mu.Unlock()
		var ev struct {
			Type         string                `json:"type"`
			Participants []core.ParticipantDTO `json:"participants"`
		}
		require.NoError(t, json.Unmarshal(last, &ev))
		assert.Equal(t, core.EventParticipantsUpdate, ev.Type, "subscriber %d", i)
		assert.Len(t, ev.Participants, n, "subscriber %d", i)
	}
}
