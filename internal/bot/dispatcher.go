package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EgorLis/radiobot/internal/backend"
	"github.com/EgorLis/radiobot/internal/command"
	"github.com/EgorLis/radiobot/internal/playback"
)

// Backend: то, что диспетчеру нужно от музыкального API.
// *backend.Client ему удовлетворяет; в тестах подставляется фейк.
type Backend interface {
	Play(ctx context.Context, roomID, query string) (backend.PlayResult, error)
	Stop(ctx context.Context, roomID string) error
	StreamURL(ctx context.Context, roomID string) (string, error)
	NowPlaying(ctx context.Context, roomID string) (*playback.Track, error)
	Status(ctx context.Context, roomID string) (backend.StatusSnapshot, error)
	Queue(ctx context.Context, roomID string) ([]playback.Track, error)
	Search(ctx context.Context, query string, limit int) ([]backend.SearchResult, error)
}

const (
	DefaultURLTTL = 5 * time.Minute

	queuePreview = 5
	searchLimit  = 5
)

// Dispatcher: единственный, кто одновременно пишет в Store и ходит в бэкенд.
// На каждую команду Dispatch возвращает ровно одну строку ответа.
type Dispatcher struct {
	backend Backend
	store   *playback.Store
	marker  byte
	urlTTL  time.Duration
	now     func() time.Time
}

type DispatcherOption func(*Dispatcher)

// WithURLTTL: сколько считать свежим закешированный stream URL.
func WithURLTTL(ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if ttl > 0 {
			d.urlTTL = ttl
		}
	}
}

// WithMarker: маркер команд для подсказок в ответах.
func WithMarker(m byte) DispatcherOption {
	return func(d *Dispatcher) {
		if m != 0 {
			d.marker = m
		}
	}
}

func NewDispatcher(b Backend, store *playback.Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		backend: b,
		store:   store,
		marker:  command.DefaultMarker,
		urlTTL:  DefaultURLTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type handlerFunc func(d *Dispatcher, ctx context.Context, roomID string, ticket uint64, cmd command.Command) (string, error)

var handlers = map[command.Verb]handlerFunc{
	command.Play:       (*Dispatcher).handlePlay,
	command.Stop:       (*Dispatcher).handleStop,
	command.URL:        (*Dispatcher).handleURL,
	command.NowPlaying: (*Dispatcher).handleNowPlaying,
	command.Status:     (*Dispatcher).handleStatus,
	command.Queue:      (*Dispatcher).handleQueue,
	command.Search:     (*Dispatcher).handleSearch,
	command.Help:       (*Dispatcher).handleHelp,
}

// usageError: ошибка валидации аргументов; текст уходит в чат как есть.
type usageError string

func (e usageError) Error() string { return string(e) }

func (d *Dispatcher) Dispatch(ctx context.Context, roomID string, cmd command.Command) string {
	// билет берём до любого обращения к бэкенду: по нему Store отбросит
	// запись, если за время вызова пришла более свежая команда
	ticket := d.store.Ticket(roomID)

	h, ok := handlers[cmd.Verb]
	if !ok {
		return fmt.Sprintf("unrecognized command %q. try %chelp", cmd.Raw, d.marker)
	}

	reply, err := h(d, ctx, roomID, ticket, cmd)
	if err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			return ue.Error()
		}
		logger.Warnw("command failed", "room", roomID, "verb", cmd.Verb, "error", err)
		return fmt.Sprintf("%s failed: %s", cmd.Verb, describe(err))
	}
	return reply
}

// ---------- handlers ----------

func (d *Dispatcher) handlePlay(ctx context.Context, roomID string, ticket uint64, cmd command.Command) (string, error) {
	query := cmd.Query()
	if query == "" {
		return "", usageError(fmt.Sprintf("usage: %cplay <query>", d.marker))
	}

	res, err := d.backend.Play(ctx, roomID, query)
	if err != nil {
		d.apply(roomID, ticket, markError)
		return "", err
	}

	track := res.Track
	d.apply(roomID, ticket, func(st *playback.State) {
		st.Status = playback.Playing
		st.Track = &track
		st.StreamURL = res.StreamURL
	})
	return "▶ Now playing: " + formatTrack(track), nil
}

func (d *Dispatcher) handleStop(ctx context.Context, roomID string, ticket uint64, _ command.Command) (string, error) {
	if err := d.backend.Stop(ctx, roomID); err != nil && !alreadyStopped(err) {
		d.apply(roomID, ticket, markError)
		return "", err
	}
	d.apply(roomID, ticket, func(st *playback.State) {
		st.Status = playback.Stopped
		st.Track = nil
		st.StreamURL = ""
	})
	return "⏹ Playback stopped", nil
}

func (d *Dispatcher) handleURL(ctx context.Context, roomID string, _ uint64, _ command.Command) (string, error) {
	st := d.store.Get(roomID)
	if st.Status == playback.Playing && st.StreamURL != "" && d.now().Sub(st.UpdatedAt) < d.urlTTL {
		return st.StreamURL, nil
	}
	return d.backend.StreamURL(ctx, roomID)
}

func (d *Dispatcher) handleNowPlaying(ctx context.Context, roomID string, _ uint64, _ command.Command) (string, error) {
	if st := d.store.Get(roomID); st.Track != nil {
		return "Now playing: " + formatTrack(*st.Track), nil
	}
	// локально пусто: спрашиваем бэкенд, но своё состояние не трогаем
	tr, err := d.backend.NowPlaying(ctx, roomID)
	if err != nil {
		return "", err
	}
	if tr == nil {
		return "Nothing playing", nil
	}
	return "Now playing: " + formatTrack(*tr), nil
}

func (d *Dispatcher) handleStatus(ctx context.Context, roomID string, ticket uint64, _ command.Command) (string, error) {
	snap, err := d.backend.Status(ctx, roomID)
	if err != nil {
		d.apply(roomID, ticket, markError)
		return "", err
	}

	st := d.apply(roomID, ticket, func(st *playback.State) { mergeStatus(st, snap) })

	parts := []string{"Status: " + st.Status.String()}
	if st.Track != nil {
		parts = append(parts, "Track: "+formatTrack(*st.Track))
	}
	parts = append(parts, fmt.Sprintf("Listeners: %d", snap.Listeners))
	return strings.Join(parts, " | "), nil
}

func (d *Dispatcher) handleQueue(ctx context.Context, roomID string, _ uint64, _ command.Command) (string, error) {
	tracks, err := d.backend.Queue(ctx, roomID)
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "Queue is empty", nil
	}
	var rows []string
	for i, tr := range tracks {
		if i == queuePreview {
			rows = append(rows, fmt.Sprintf("+%d more", len(tracks)-queuePreview))
			break
		}
		rows = append(rows, fmt.Sprintf("%d. %s", i+1, formatTrack(tr)))
	}
	return "Up next: " + strings.Join(rows, " | "), nil
}

// handleSearch только показывает выдачу, состояние комнаты не меняется.
func (d *Dispatcher) handleSearch(ctx context.Context, _ string, _ uint64, cmd command.Command) (string, error) {
	query := cmd.Query()
	if query == "" {
		return "", usageError(fmt.Sprintf("usage: %csearch <query>", d.marker))
	}
	results, err := d.backend.Search(ctx, query, searchLimit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results for %q", query), nil
	}
	rows := make([]string, 0, searchLimit)
	for i, r := range results {
		if i == searchLimit {
			break
		}
		row := fmt.Sprintf("%d. %s", i+1, formatTrack(r.Track))
		if r.Artist != "" {
			row += " by " + r.Artist
		}
		rows = append(rows, row)
	}
	return "Found: " + strings.Join(rows, " | "), nil
}

func (d *Dispatcher) handleHelp(context.Context, string, uint64, command.Command) (string, error) {
	m := string(d.marker)
	return strings.Join([]string{
		m + "play <query>: search and play",
		m + "stop: stop playback",
		m + "url: stream link",
		m + "np: now playing",
		m + "status: player status",
		m + "queue: upcoming tracks",
		m + "search <query>: top matches",
		m + "help",
	}, "\n"), nil
}

// ---------- state ----------

// apply пишет в Store по билету и держит инвариант Playing ⇒ Track != nil.
func (d *Dispatcher) apply(roomID string, ticket uint64, m playback.Mutation) playback.State {
	st, ok := d.store.Apply(roomID, ticket, func(st *playback.State) {
		m(st)
		if !st.Consistent() {
			st.Status = playback.Error
		}
	})
	if !ok {
		logger.Debugw("stale playback update discarded", "room", roomID, "ticket", ticket)
	}
	return st
}

func markError(st *playback.State) { st.Status = playback.Error }

func mergeStatus(st *playback.State, snap backend.StatusSnapshot) {
	switch snap.Status {
	case playback.Playing:
		if snap.Track != nil {
			if st.Track == nil || st.Track.Title != snap.Track.Title {
				tr := *snap.Track
				st.Track = &tr
			}
			st.Status = playback.Playing
		} else if st.Track != nil {
			st.Status = playback.Playing
		}
	case playback.Stopped, playback.Idle:
		st.Status = snap.Status
		st.Track = nil
		st.StreamURL = ""
	}
}

// повторный stop не считается ошибкой
func alreadyStopped(err error) bool {
	var be *backend.Error
	if !errors.As(err, &be) || be.Kind != backend.Rejected {
		return false
	}
	return be.Code == "not_playing" || be.Code == "already_stopped"
}

func describe(err error) string {
	var be *backend.Error
	if !errors.As(err, &be) {
		return err.Error()
	}
	switch be.Kind {
	case backend.Timeout:
		return "music backend timed out, try again later"
	case backend.Unreachable:
		return "music backend is unreachable"
	case backend.InvalidResponse:
		return "music backend sent an invalid response"
	case backend.Rejected:
		if be.Detail != "" {
			return be.Detail
		}
		if be.Code != "" {
			return be.Code
		}
		return "request rejected"
	default:
		return be.Error()
	}
}

func formatTrack(t playback.Track) string {
	if t.Duration > 0 {
		return fmt.Sprintf("%s (%s)", t.Title, playback.FormatDuration(t.Duration))
	}
	return t.Title
}
