package playback

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetDefaultsToIdle(t *testing.T) {
	s := NewStore()

	st := s.Get("lobby")
	assert.Equal(t, Idle, st.Status)
	assert.Nil(t, st.Track)
	assert.Empty(t, st.StreamURL)
	assert.Zero(t, st.Version)
	assert.Equal(t, []string{"lobby"}, s.Rooms())
}

func TestStore_Update(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return now }))

	st := s.Update("lobby", func(st *State) {
		st.Status = Playing
		st.Track = &Track{Title: "Song", Query: "song"}
		st.StreamURL = "https://radio/stream"
	})

	assert.Equal(t, Playing, st.Status)
	require.NotNil(t, st.Track)
	assert.Equal(t, "Song", st.Track.Title)
	assert.Equal(t, uint64(1), st.Version)
	assert.Equal(t, now, st.UpdatedAt)
	assert.Equal(t, st, s.Get("lobby"))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Update("lobby", func(st *State) { st.Track = &Track{Title: "A"} })

	got := s.Get("lobby")
	got.Track.Title = "changed"
	got.Status = Error

	again := s.Get("lobby")
	assert.Equal(t, "A", again.Track.Title)
	assert.Equal(t, Idle, again.Status)
}

func TestStore_ApplyDiscardsStaleTicket(t *testing.T) {
	s := NewStore()

	play := s.Ticket("lobby")
	stop := s.Ticket("lobby")

	_, ok := s.Apply("lobby", stop, func(st *State) { st.Status = Stopped })
	require.True(t, ok)

	st, ok := s.Apply("lobby", play, func(st *State) {
		st.Status = Playing
		st.Track = &Track{Title: "late"}
	})
	assert.False(t, ok)
	assert.Equal(t, Stopped, st.Status)
	assert.Nil(t, st.Track)
	assert.Equal(t, uint64(1), st.Version)
}

func TestStore_ApplyInTicketOrder(t *testing.T) {
	s := NewStore()

	first := s.Ticket("lobby")
	second := s.Ticket("lobby")

	_, ok := s.Apply("lobby", first, func(st *State) { st.Status = Playing; st.Track = &Track{Title: "A"} })
	require.True(t, ok)
	st, ok := s.Apply("lobby", second, func(st *State) { st.Status = Stopped; st.Track = nil })
	require.True(t, ok)
	assert.Equal(t, Stopped, st.Status)
	assert.Equal(t, uint64(2), st.Version)
}

func TestStore_RoomsAreIndependent(t *testing.T) {
	s := NewStore()
	s.Update("a", func(st *State) { st.Status = Stopped })

	assert.Equal(t, Stopped, s.Get("a").Status)
	assert.Equal(t, Idle, s.Get("b").Status)

	// билет другой комнаты не влияет на свежесть записи
	tb := s.Ticket("b")
	s.Update("a", func(st *State) { st.Status = Error })
	_, ok := s.Apply("b", tb, func(st *State) { st.Status = Stopped })
	assert.True(t, ok)
}

func TestStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	s := NewStore()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update("lobby", func(st *State) {
				st.StreamURL += "x"
			})
		}()
	}
	wg.Wait()

	st := s.Get("lobby")
	assert.Equal(t, uint64(n), st.Version)
	assert.Len(t, st.StreamURL, n)
}

func TestStore_UpdateInterleavedWithTickets(t *testing.T) {
	s := NewStore()

	// Update не проверяет чужие билеты и всегда применяется
	pending := s.Ticket("lobby")
	st := s.Update("lobby", func(st *State) { st.StreamURL += "a" })
	assert.Equal(t, "a", st.StreamURL)

	// а билет, выданный до Update, уже устарел
	_, ok := s.Apply("lobby", pending, func(st *State) { st.StreamURL += "stale" })
	assert.False(t, ok)

	// билет после Update свежий, но следующий Update всё равно проходит
	fresh := s.Ticket("lobby")
	_, ok = s.Apply("lobby", fresh, func(st *State) { st.StreamURL += "b" })
	assert.True(t, ok)
	st = s.Update("lobby", func(st *State) { st.StreamURL += "c" })
	assert.Equal(t, "abc", st.StreamURL)

	// Update поверх уже применённого более позднего билета
	older := s.Ticket("lobby")
	newer := s.Ticket("lobby")
	_, ok = s.Apply("lobby", newer, func(st *State) { st.StreamURL += "d" })
	assert.True(t, ok)
	s.Update("lobby", func(st *State) { st.StreamURL += "e" })
	_, ok = s.Apply("lobby", older, func(st *State) { st.StreamURL += "stale" })
	assert.False(t, ok)

	st = s.Get("lobby")
	assert.Equal(t, "abcde", st.StreamURL)
	assert.Equal(t, uint64(5), st.Version)
}

func TestStore_ConcurrentUpdatesNeverLost(t *testing.T) {
	s := NewStore()
	const rounds, workers = 50, 64

	for round := 0; round < rounds; round++ {
		room := fmt.Sprintf("room-%d", round)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Update(room, func(st *State) { st.StreamURL += "x" })
			}()
		}
		wg.Wait()
		require.Len(t, s.Get(room).StreamURL, workers, "round %d", round)
	}
}

func TestState_Consistent(t *testing.T) {
	assert.True(t, State{Status: Idle}.Consistent())
	assert.True(t, State{Status: Playing, Track: &Track{Title: "x"}}.Consistent())
	assert.False(t, State{Status: Playing}.Consistent())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "3:33", FormatDuration(213*time.Second))
	assert.Equal(t, "0:05", FormatDuration(5*time.Second))
	assert.Equal(t, "1:02:03", FormatDuration(time.Hour+2*time.Minute+3*time.Second))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "playing", Playing.String())
	assert.Equal(t, "error", Error.String())
	assert.Equal(t, "unknown", Status(42).String())
}
