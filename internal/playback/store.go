package playback

import (
	"sort"
	"sync"
	"time"
)

// Mutation меняет копию состояния; Store сам выставляет Version и UpdatedAt.
type Mutation func(*State)

type Store struct {
	mu    sync.Mutex
	rooms map[string]*roomState
	now   func() time.Time
}

type roomState struct {
	mu    sync.Mutex
	state State

	// tickets выдаются на старте обработки команды; applied: билет
	// последней применённой записи. Запись со старым билетом отбрасывается.
	tickets uint64
	applied uint64
}

type Option func(*Store)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		rooms: make(map[string]*roomState),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// запись создаётся лениво при первом обращении и больше не удаляется
func (s *Store) room(roomID string) *roomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		r = &roomState{state: State{Status: Idle}}
		s.rooms[roomID] = r
	}
	return r
}

// Get возвращает копию состояния комнаты (Idle, если комнаты ещё не было).
func (s *Store) Get(roomID string) State {
	r := s.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Ticket выдаёт монотонный номер намерения для комнаты. Его берут в начале
// обработки команды и предъявляют в Apply.
func (s *Store) Ticket(roomID string) uint64 {
	r := s.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets++
	return r.tickets
}

// Apply применяет мутацию, только если с момента выдачи ticket не было
// записи с более свежим билетом. Второе значение false: запись устарела.
func (s *Store) Apply(roomID string, ticket uint64, m Mutation) (State, bool) {
	r := s.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	if ticket <= r.applied {
		return r.state.clone(), false
	}
	s.applyLocked(r, ticket, m)
	return r.state.clone(), true
}

// Update безусловно применяет мутацию: билет выдаётся и предъявляется под
// одной блокировкой, поэтому параллельные Update друг друга не теряют.
// Ожидающие билеты, выданные раньше, после этого считаются устаревшими.
func (s *Store) Update(roomID string, m Mutation) State {
	r := s.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tickets++
	s.applyLocked(r, r.tickets, m)
	return r.state.clone()
}

// вызывается под r.mu
func (s *Store) applyLocked(r *roomState, ticket uint64, m Mutation) {
	next := r.state.clone()
	m(&next)
	next.Version = r.state.Version + 1
	next.UpdatedAt = s.now()
	r.state = next
	r.applied = ticket
}

// Rooms: отсортированный список известных комнат.
func (s *Store) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
