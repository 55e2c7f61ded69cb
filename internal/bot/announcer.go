package bot

import (
	"context"
	"errors"
	"time"

	"github.com/EgorLis/radiobot/internal/playback"
)

// Бэкенд крутит плейлист сам, поэтому трек меняется и без команд. Анонсер
// периодически спрашивает now-playing у играющих комнат и, если трек сменился,
// обновляет состояние и пишет об этом в чат. Опрос идёт внутри очереди
// комнаты, так что с командами он не перемешивается.

func (bot *RadioBot) StartAnnouncer(every time.Duration) error {
	if every <= 0 {
		return errors.New("announcer: interval must be positive")
	}
	bot.anMu.Lock()
	defer bot.anMu.Unlock()

	if bot.anRunning {
		// интервал можно обновить на лету
		bot.anEvery = every
		return nil
	}

	ctx, cancel := context.WithCancel(bot.ctx)
	bot.anCancel = cancel
	bot.anEvery = every
	bot.anRunning = true

	go bot.announceLoop(ctx, every)
	return nil
}

// SetAnnounceInterval применяет интервал из конфига: 0 выключает анонсер,
// положительное значение запускает его или меняет интервал на лету.
func (bot *RadioBot) SetAnnounceInterval(every time.Duration) error {
	if every == 0 {
		bot.StopAnnouncer()
		return nil
	}
	return bot.StartAnnouncer(every)
}

// AnnounceInterval: текущий интервал, 0 если анонсер выключен.
func (bot *RadioBot) AnnounceInterval() time.Duration {
	bot.anMu.Lock()
	defer bot.anMu.Unlock()
	if !bot.anRunning {
		return 0
	}
	return bot.anEvery
}

func (bot *RadioBot) StopAnnouncer() {
	bot.anMu.Lock()
	defer bot.anMu.Unlock()
	if !bot.anRunning {
		return
	}
	bot.anRunning = false
	if bot.anCancel != nil {
		bot.anCancel()
		bot.anCancel = nil
	}
}

func (bot *RadioBot) announceLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if bot.room != nil && !bot.room.IsConnected() {
				// в разрыв соединения не опрашиваем
				continue
			}
			bot.scheduleRefresh()

			bot.anMu.Lock()
			next := bot.anEvery
			bot.anMu.Unlock()
			if next != every {
				every = next
				t.Reset(every)
			}
		}
	}
}

// scheduleRefresh ставит в очередь каждой играющей комнаты одну проверку трека.
func (bot *RadioBot) scheduleRefresh() {
	for _, roomID := range bot.store.Rooms() {
		if bot.store.Get(roomID).Status != playback.Playing {
			continue
		}
		bot.anMu.Lock()
		if bot.anPending[roomID] {
			bot.anMu.Unlock()
			continue
		}
		bot.anPending[roomID] = true
		bot.anMu.Unlock()

		roomID := roomID
		bot.lanes.submit(roomID, func() {
			defer func() {
				bot.anMu.Lock()
				delete(bot.anPending, roomID)
				bot.anMu.Unlock()
			}()
			bot.refreshNowPlaying(roomID)
		})
	}
}

func (bot *RadioBot) refreshNowPlaying(roomID string) {
	ticket := bot.store.Ticket(roomID)
	tr, err := bot.backend.NowPlaying(bot.ctx, roomID)
	if err != nil {
		// сеть или таймаут: молча ждём следующий тик
		logger.Debugw("now-playing poll failed", "room", roomID, "error", err)
		return
	}
	if tr == nil {
		return
	}

	st := bot.store.Get(roomID)
	if st.Status != playback.Playing || (st.Track != nil && st.Track.Title == tr.Title) {
		return
	}

	track := *tr
	changed := false
	_, ok := bot.store.Apply(roomID, ticket, func(st *playback.State) {
		if st.Status == playback.Playing {
			st.Track = &track
			changed = true
		}
	})
	if !ok || !changed {
		return
	}
	if err := bot.say(roomID, "Now playing: "+formatTrack(track)); err != nil {
		logger.Warnw("announce failed", "room", roomID, "error", err)
	}
}
