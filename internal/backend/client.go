// Package backend: клиент HTTP API музыкального бэкенда.
//
// Клиент не хранит состояния комнат и безопасен для общего использования.
// Каждый вызов ограничен таймаутом; таймауты и сетевые сбои повторяются
// с экспоненциальной задержкой, отказ бэкенда (Rejected) и некорректный
// ответ (InvalidResponse) возвращаются сразу.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/singleflight"

	"github.com/EgorLis/radiobot/internal/playback"
)

var logger = logging.Logger("radiobot/backend")

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultBackoff    = 250 * time.Millisecond

	MaxSearchLimit = 20

	maxBackoff  = 5 * time.Second
	maxBodySize = 1 << 20
)

type Client struct {
	http    *http.Client
	baseURL *url.URL
	token   string

	timeout    time.Duration
	maxRetries int
	backoff    time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	reads singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken задаёт Bearer-токен для всех запросов.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout: таймаут одной попытки.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries: сколько раз повторять после первой неудачной попытки.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff: задержка перед первым повтором, дальше удваивается.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoff = d
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		http:       &http.Client{},
		baseURL:    u,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultBackoff,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ========================= API =========================

// Play ищет трек по запросу и запускает его в комнате.
func (c *Client) Play(ctx context.Context, roomID, query string) (PlayResult, error) {
	var data playData
	err := c.call(ctx, http.MethodPost, "/play", nil,
		map[string]string{"roomId": roomID, "query": query}, &data)
	if err != nil {
		return PlayResult{}, err
	}
	tr := data.track()
	if tr.Query == "" {
		tr.Query = query
	}
	return PlayResult{Track: tr, StreamURL: data.StreamURL}, nil
}

func (c *Client) Stop(ctx context.Context, roomID string) error {
	return c.call(ctx, http.MethodPost, "/stop", nil, map[string]string{"roomId": roomID}, nil)
}

func (c *Client) StreamURL(ctx context.Context, roomID string) (string, error) {
	var data streamURLData
	if err := c.call(ctx, http.MethodGet, "/stream-url", roomQuery(roomID), nil, &data); err != nil {
		return "", err
	}
	return data.URL, nil
}

// NowPlaying возвращает nil без ошибки, если бэкенд ничего не играет.
func (c *Client) NowPlaying(ctx context.Context, roomID string) (*playback.Track, error) {
	var data nowPlayingData
	if err := c.call(ctx, http.MethodGet, "/now-playing", roomQuery(roomID), nil, &data); err != nil {
		return nil, err
	}
	if !data.Playing || data.Track == nil {
		return nil, nil
	}
	tr := data.Track.track()
	return &tr, nil
}

func (c *Client) Status(ctx context.Context, roomID string) (StatusSnapshot, error) {
	var data statusData
	if err := c.call(ctx, http.MethodGet, "/status", roomQuery(roomID), nil, &data); err != nil {
		return StatusSnapshot{}, err
	}
	snap := StatusSnapshot{Status: statuses[data.Status], Listeners: data.Listeners}
	if data.Track != nil {
		tr := data.Track.track()
		snap.Track = &tr
	}
	return snap, nil
}

// Queue: предстоящие треки плейлиста комнаты.
func (c *Client) Queue(ctx context.Context, roomID string) ([]playback.Track, error) {
	var data queueData
	if err := c.call(ctx, http.MethodGet, "/queue", roomQuery(roomID), nil, &data); err != nil {
		return nil, err
	}
	out := make([]playback.Track, 0, len(data.Tracks))
	for i := range data.Tracks {
		out = append(out, data.Tracks[i].track())
	}
	return out, nil
}

// Search возвращает до limit результатов по запросу (limit приводится к 1..20).
// Состояние комнат не меняет.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit < 1 {
		limit = 1
	} else if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	q := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}

	var data searchData
	if err := c.call(ctx, http.MethodGet, "/search", q, nil, &data); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(data.Results))
	for i := range data.Results {
		it := &data.Results[i]
		tr := it.track()
		if tr.Query == "" {
			tr.Query = query
		}
		out = append(out, SearchResult{Track: tr, Artist: it.Artist, URL: it.URL})
	}
	return out, nil
}

// Health опрашивает /health бэкенда.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var data healthData
	if err := c.call(ctx, http.MethodGet, "/health", nil, nil, &data); err != nil {
		return Health{}, err
	}
	return Health{
		Status:       data.Status,
		Version:      data.Version,
		PlayerStatus: data.PlayerStatus,
		Listeners:    data.Listeners,
	}, nil
}

// ========================= low-level =========================

func roomQuery(roomID string) url.Values {
	return url.Values{"roomId": {roomID}}
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, out payload) error {
	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		raw = b
	}

	var (
		data []byte
		err  *Error
	)
	if method == http.MethodGet {
		// одинаковые параллельные GET схлопываются в один запрос
		key := path + "?" + query.Encode()
		v, sfErr, _ := c.reads.Do(key, func() (any, error) {
			d, e := c.retry(ctx, method, path, query, nil)
			if e != nil {
				return nil, e
			}
			return d, nil
		})
		if sfErr != nil {
			return sfErr
		}
		data, _ = v.([]byte)
	} else {
		data, err = c.retry(ctx, method, path, query, raw)
		if err != nil {
			return err
		}
	}

	if out == nil {
		return nil
	}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return newError(InvalidResponse, nil, "%s: missing data", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newError(InvalidResponse, err, "%s: decode data", path)
	}
	if err := out.validate(); err != nil {
		return newError(InvalidResponse, err, "%s: invalid data", path)
	}
	return nil
}

// retry повторяет do, пока ошибка Retryable и попытки не кончились.
func (c *Client) retry(ctx context.Context, method, path string, query url.Values, raw []byte) ([]byte, *Error) {
	var lastErr *Error
	delay := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warnw("retrying backend call", "path", path, "attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, lastErr
			}
			if delay *= 2; delay > maxBackoff {
				delay = maxBackoff
			}
		}

		data, err := c.do(ctx, method, path, query, raw)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !err.Retryable() || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// do выполняет одну попытку и возвращает поле data успешного конверта.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, *Error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(actx, method, u.String(), rd)
	if err != nil {
		return nil, newError(InvalidResponse, err, "build request")
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logger.Debugw("backend request", "method", method, "path", path, "request_id", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(actx, err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(actx, err, "read %s response", path)
	}

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, newError(Unreachable, nil, "%s: http %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, newError(InvalidResponse, err, "%s: http %d: decode envelope", path, resp.StatusCode)
	}
	if env.Success == nil {
		return nil, newError(InvalidResponse, nil, "%s: missing success flag", path)
	}
	if !*env.Success {
		if env.Error == nil {
			return nil, newError(InvalidResponse, nil, "%s: failure without error object", path)
		}
		return nil, &Error{Kind: Rejected, Code: env.Error.Kind, Detail: env.Error.Message}
	}
	if resp.StatusCode/100 != 2 {
		return nil, newError(InvalidResponse, nil, "%s: success with http %d", path, resp.StatusCode)
	}
	return env.Data, nil
}

func transportError(ctx context.Context, err error, format string, args ...any) *Error {
	var ne net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return newError(Timeout, err, format, args...)
	}
	return newError(Unreachable, err, format, args...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
