package bot

import (
	"context"
	"errors"
	"sync"

	"github.com/EgorLis/radiobot/internal/backend"
	"github.com/EgorLis/radiobot/internal/playback"
)

// fakeBackend записывает вызовы и делегирует их в заданные функции.
// Вызов незаданной функции возвращает "unexpected call".
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	play       func(ctx context.Context, roomID, query string) (backend.PlayResult, error)
	stop       func(ctx context.Context, roomID string) error
	streamURL  func(ctx context.Context, roomID string) (string, error)
	nowPlaying func(ctx context.Context, roomID string) (*playback.Track, error)
	status     func(ctx context.Context, roomID string) (backend.StatusSnapshot, error)
	queue      func(ctx context.Context, roomID string) ([]playback.Track, error)
	search     func(ctx context.Context, query string, limit int) ([]backend.SearchResult, error)
}

var errUnexpected = errors.New("unexpected call")

func (f *fakeBackend) record(name, roomID string) {
	f.mu.Lock()
	f.calls = append(f.calls, name+":"+roomID)
	f.mu.Unlock()
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) Play(ctx context.Context, roomID, query string) (backend.PlayResult, error) {
	f.record("play", roomID)
	if f.play == nil {
		return backend.PlayResult{}, errUnexpected
	}
	return f.play(ctx, roomID, query)
}

func (f *fakeBackend) Stop(ctx context.Context, roomID string) error {
	f.record("stop", roomID)
	if f.stop == nil {
		return errUnexpected
	}
	return f.stop(ctx, roomID)
}

func (f *fakeBackend) StreamURL(ctx context.Context, roomID string) (string, error) {
	f.record("url", roomID)
	if f.streamURL == nil {
		return "", errUnexpected
	}
	return f.streamURL(ctx, roomID)
}

func (f *fakeBackend) NowPlaying(ctx context.Context, roomID string) (*playback.Track, error) {
	f.record("np", roomID)
	if f.nowPlaying == nil {
		return nil, errUnexpected
	}
	return f.nowPlaying(ctx, roomID)
}

func (f *fakeBackend) Status(ctx context.Context, roomID string) (backend.StatusSnapshot, error) {
	f.record("status", roomID)
	if f.status == nil {
		return backend.StatusSnapshot{}, errUnexpected
	}
	return f.status(ctx, roomID)
}

func (f *fakeBackend) Queue(ctx context.Context, roomID string) ([]playback.Track, error) {
	f.record("queue", roomID)
	if f.queue == nil {
		return nil, errUnexpected
	}
	return f.queue(ctx, roomID)
}

func (f *fakeBackend) Search(ctx context.Context, query string, limit int) ([]backend.SearchResult, error) {
	f.record("search", query)
	if f.search == nil {
		return nil, errUnexpected
	}
	return f.search(ctx, query, limit)
}

func playOK(title, stream string) func(context.Context, string, string) (backend.PlayResult, error) {
	return func(_ context.Context, _, query string) (backend.PlayResult, error) {
		return backend.PlayResult{
			Track:     playback.Track{Title: title, Query: query},
			StreamURL: stream,
		}, nil
	}
}

func stopOK(context.Context, string) error { return nil }

// recordingSender собирает исходящие сообщения по комнатам.
type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]string
	err  error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[string][]string)}
}

func (s *recordingSender) Send(roomID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent[roomID] = append(s.sent[roomID], text)
	return nil
}

func (s *recordingSender) Sent(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent[roomID]...)
}

// panicOnceSender падает на первой отправке, дальше работает как recordingSender.
type panicOnceSender struct {
	*recordingSender
	panicked bool
}

func (s *panicOnceSender) Send(roomID, text string) error {
	s.mu.Lock()
	first := !s.panicked
	s.panicked = true
	s.mu.Unlock()
	if first {
		panic("send exploded")
	}
	return s.recordingSender.Send(roomID, text)
}
