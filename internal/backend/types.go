package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/EgorLis/radiobot/internal/playback"
)

// PlayResult: ответ на search-and-play.
type PlayResult struct {
	Track     playback.Track
	StreamURL string
}

// StatusSnapshot: состояние плеера так, как его видит бэкенд. Track == nil,
// если бэкенд не сообщил текущий трек.
type StatusSnapshot struct {
	Status    playback.Status
	Track     *playback.Track
	Listeners int
}

// envelope: общий конверт ответа {"success":..., "data":..., "error":{...}}.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type payload interface {
	validate() error
}

type trackData struct {
	Title           string `json:"title"`
	Query           string `json:"query"`
	DurationSeconds *int   `json:"duration_seconds"`
}

func (t *trackData) validate() error {
	if t.Title == "" {
		return errors.New("track title is empty")
	}
	if t.DurationSeconds != nil && *t.DurationSeconds < 0 {
		return fmt.Errorf("negative duration %d", *t.DurationSeconds)
	}
	return nil
}

func (t *trackData) track() playback.Track {
	tr := playback.Track{Title: t.Title, Query: t.Query}
	if t.DurationSeconds != nil {
		tr.Duration = time.Duration(*t.DurationSeconds) * time.Second
	}
	return tr
}

type playData struct {
	trackData
	StreamURL string `json:"stream_url"`
}

func (p *playData) validate() error {
	if err := p.trackData.validate(); err != nil {
		return err
	}
	return validateURL(p.StreamURL)
}

type streamURLData struct {
	URL string `json:"url"`
}

func (s *streamURLData) validate() error { return validateURL(s.URL) }

type nowPlayingData struct {
	Playing bool       `json:"playing"`
	Track   *trackData `json:"track"`
}

func (n *nowPlayingData) validate() error {
	if n.Track != nil {
		return n.Track.validate()
	}
	return nil
}

type statusData struct {
	Status    string     `json:"status"`
	Track     *trackData `json:"track"`
	Listeners int        `json:"listeners"`
}

func (s *statusData) validate() error {
	if _, ok := statuses[s.Status]; !ok {
		return fmt.Errorf("unknown status %q", s.Status)
	}
	if s.Listeners < 0 {
		return fmt.Errorf("negative listeners %d", s.Listeners)
	}
	if s.Track != nil {
		return s.Track.validate()
	}
	return nil
}

var statuses = map[string]playback.Status{
	"idle":    playback.Idle,
	"playing": playback.Playing,
	"stopped": playback.Stopped,
}

type queueData struct {
	Tracks []trackData `json:"tracks"`
}

func (q *queueData) validate() error {
	for i := range q.Tracks {
		if err := q.Tracks[i].validate(); err != nil {
			return fmt.Errorf("tracks[%d]: %w", i, err)
		}
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q is not absolute", raw)
	}
	return nil
}

// SearchResult: одна позиция выдачи поиска, лучшие первыми.
type SearchResult struct {
	Track  playback.Track
	Artist string
	URL    string
}

// Health: ответ /health.
type Health struct {
	Status       string
	Version      string
	PlayerStatus string
	Listeners    int
}

func (h Health) Healthy() bool { return h.Status == "healthy" }

type searchItem struct {
	trackData
	Artist string `json:"artist"`
	URL    string `json:"url"`
}

type searchData struct {
	Query   string       `json:"query"`
	Results []searchItem `json:"results"`
	Count   *int         `json:"count"`
}

func (s *searchData) validate() error {
	if s.Count != nil && *s.Count != len(s.Results) {
		return fmt.Errorf("count %d does not match %d results", *s.Count, len(s.Results))
	}
	for i := range s.Results {
		if err := s.Results[i].trackData.validate(); err != nil {
			return fmt.Errorf("results[%d]: %w", i, err)
		}
		if s.Results[i].URL != "" {
			if err := validateURL(s.Results[i].URL); err != nil {
				return fmt.Errorf("results[%d]: %w", i, err)
			}
		}
	}
	return nil
}

type healthData struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	PlayerStatus string `json:"player_status"`
	Listeners    int    `json:"listeners"`
}

func (h *healthData) validate() error {
	if h.Status == "" {
		return errors.New("health status is empty")
	}
	if h.Listeners < 0 {
		return fmt.Errorf("negative listeners %d", h.Listeners)
	}
	return nil
}
