package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/EgorLis/radiobot/internal/backend"
	"github.com/EgorLis/radiobot/internal/bot"
	"github.com/EgorLis/radiobot/internal/config"
	"github.com/EgorLis/radiobot/internal/roomclient"
)

var log = logging.Logger("radiobot")

func setLogLevel(level string) {
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		log.Warnw("bad log level, keeping current", "level", level, "error", err)
		return
	}
	logging.SetAllLoggers(lvl)
}

func main() {
	path := flag.String("config", config.DefaultPath, "path to radiobot JSON config")
	flag.Parse()

	cfg, err := config.Ensure(*path)
	if errors.Is(err, config.ErrCreated) {
		fmt.Fprintf(os.Stderr, "created %s, fill in backend and room settings and restart\n", *path)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	setLogLevel(cfg.LogLevel)

	if err := run(cfg, *path); err != nil {
		log.Errorw("radiobot stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, path string) error {
	client, err := backend.New(cfg.Backend.BaseURL,
		backend.WithToken(cfg.Backend.Token),
		backend.WithTimeout(cfg.Backend.Timeout()),
		backend.WithRetries(cfg.Backend.MaxRetries),
		backend.WithBackoff(cfg.Backend.Backoff()),
	)
	if err != nil {
		return err
	}

	rc := roomclient.New(roomclient.Config{
		URL:    cfg.Room.URL,
		Token:  cfg.Room.Token,
		UserID: cfg.Room.UserID,
		Rooms:  cfg.Room.Rooms,
	})

	b := bot.New(client, bot.Options{
		Marker:      cfg.Bot.MarkerByte(),
		SelfID:      cfg.Room.UserID,
		ReplyPrefix: cfg.Room.ReplyPrefix,
		URLTTL:      cfg.Bot.URLTTL(),
	})
	b.SetRoomClient(rc)

	// опционально:
	if cfg.Bot.MediaKeys {
		b.SetMediaKeys(cfg.Room.Rooms[0])
	}

	if err := b.Start(); err != nil {
		return err
	}
	defer b.Stop()

	if err := b.SetAnnounceInterval(cfg.Bot.AnnounceInterval()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checkBackend(ctx, client)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return config.Watch(gctx, path, func(next config.Config) {
			// на лету применяем уровень логов и интервал анонсера, остальное требует рестарта
			setLogLevel(next.LogLevel)
			if err := b.SetAnnounceInterval(next.Bot.AnnounceInterval()); err != nil {
				log.Warnw("announcer interval not applied", "error", err)
			}
		})
	})

	log.Infow("running, press Ctrl+C to stop", "rooms", cfg.Room.Rooms, "backend", cfg.Backend.BaseURL)
	return g.Wait()
}

// checkBackend пишет в лог состояние бэкенда; недоступный бэкенд не мешает
// старту, команды сами сообщат об ошибке.
func checkBackend(ctx context.Context, client *backend.Client) {
	h, err := client.Health(ctx)
	if err != nil {
		log.Warnw("backend health check failed", "error", err)
		return
	}
	if !h.Healthy() {
		log.Warnw("backend reports unhealthy", "status", h.Status, "version", h.Version)
		return
	}
	log.Infow("backend healthy", "version", h.Version, "player", h.PlayerStatus, "listeners", h.Listeners)
}
