// Package playback хранит состояние воспроизведения по комнатам.
//
// Store единственный владеет состоянием комнат: снаружи состояние читается
// копиями, а меняется только через мутации, которые применяются атомарно
// и последовательно для каждой комнаты. Разные комнаты друг друга не блокируют.
package playback

import (
	"fmt"
	"time"
)

type Status int

const (
	Idle Status = iota
	Playing
	Stopped
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Track неизменяем: при новом Play заменяется целиком.
type Track struct {
	Title    string
	Query    string
	Duration time.Duration // 0: длительность неизвестна
}

type State struct {
	Track     *Track
	StreamURL string
	Status    Status
	UpdatedAt time.Time
	// Version растёт на каждую применённую мутацию.
	Version uint64
}

// Consistent проверяет инвариант: Playing невозможен без трека.
func (s State) Consistent() bool {
	return s.Status != Playing || s.Track != nil
}

func (s State) clone() State {
	if s.Track != nil {
		t := *s.Track
		s.Track = &t
	}
	return s
}

// FormatDuration печатает длительность как m:ss или h:mm:ss.
func FormatDuration(d time.Duration) string {
	sec := int(d.Round(time.Second) / time.Second)
	h, m, s := sec/3600, (sec%3600)/60, sec%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
