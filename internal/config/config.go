package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var logger = logging.Logger("radiobot/config")

const DefaultPath = "conf/radiobot.json"

type Backend struct {
	BaseURL    string `json:"base_url"`
	Token      string `json:"token"`
	TimeoutSec int    `json:"timeout_sec"`
	MaxRetries int    `json:"max_retries"`
	BackoffMs  int    `json:"backoff_ms"`
}

type Room struct {
	URL         string   `json:"url"`
	Token       string   `json:"token"`
	UserID      string   `json:"user_id"`
	Rooms       []string `json:"rooms"`
	ReplyPrefix string   `json:"reply_prefix"`
}

type Bot struct {
	Marker              string `json:"marker"`
	URLTTLSec           int    `json:"url_ttl_sec"`
	AnnounceIntervalSec int    `json:"announce_interval_sec"` // 0: анонсер выключен
	MediaKeys           bool   `json:"media_keys"`
}

type Config struct {
	LogLevel string  `json:"log_level"`
	Backend  Backend `json:"backend"`
	Room     Room    `json:"room"`
	Bot      Bot     `json:"bot"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Backend: Backend{
			TimeoutSec: 10,
			MaxRetries: 2,
			BackoffMs:  250,
		},
		Room: Room{
			UserID: "radiobot",
		},
		Bot: Bot{
			Marker:    "!",
			URLTTLSec: 300,
		},
	}
}

func (c *Config) Validate() error {
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("backend.base_url must be an http(s) URL")
	}
	if c.Backend.TimeoutSec <= 0 {
		return errors.New("backend.timeout_sec must be > 0")
	}
	if c.Backend.MaxRetries < 0 {
		return errors.New("backend.max_retries must be >= 0")
	}
	if c.Backend.BackoffMs < 0 {
		return errors.New("backend.backoff_ms must be >= 0")
	}

	if c.Room.URL == "" {
		return errors.New("room.url is required")
	}
	if c.Room.Token == "" {
		return errors.New("room.token is required")
	}
	if len(c.Room.Rooms) == 0 {
		return errors.New("room.rooms must list at least one room")
	}
	for _, r := range c.Room.Rooms {
		if r == "" {
			return errors.New("room.rooms must not contain empty ids")
		}
	}

	if len(c.Bot.Marker) != 1 {
		return errors.New("bot.marker must be a single character")
	}
	// нулевой TTL Dispatcher считает незаданным
	if c.Bot.URLTTLSec <= 0 {
		return errors.New("bot.url_ttl_sec must be > 0")
	}
	if c.Bot.AnnounceIntervalSec < 0 {
		return errors.New("bot.announce_interval_sec must be >= 0")
	}
	return nil
}

func (b Backend) Timeout() time.Duration { return time.Duration(b.TimeoutSec) * time.Second }
func (b Backend) Backoff() time.Duration { return time.Duration(b.BackoffMs) * time.Millisecond }

func (b Bot) MarkerByte() byte {
	if b.Marker == "" {
		return 0
	}
	return b.Marker[0]
}

func (b Bot) URLTTL() time.Duration { return time.Duration(b.URLTTLSec) * time.Second }

func (b Bot) AnnounceInterval() time.Duration {
	return time.Duration(b.AnnounceIntervalSec) * time.Second
}

// Load читает JSON поверх Default(), так что отсутствующие поля остаются
// со значениями по умолчанию, и проверяет результат.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	b = stripBOM(b) // блокнот на Windows любит BOM

	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save пишет конфиг без проверки: шаблон с пустыми адресами тоже сохраняем.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// ErrCreated: файла не было, на его месте создан шаблон для заполнения.
var ErrCreated = errors.New("config template created")

// Ensure загружает конфиг; если файла нет, пишет Default() и возвращает ErrCreated.
func Ensure(path string) (Config, error) {
	cfg, err := Load(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err := Save(path, Default()); err != nil {
		return Config{}, fmt.Errorf("create %s: %w", path, err)
	}
	return Config{}, fmt.Errorf("%s: %w", path, ErrCreated)
}

func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}
