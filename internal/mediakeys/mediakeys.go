// Package mediakeys перехватывает мультимедийные клавиши хоста (Stop,
// Play/Pause, Next) и превращает их в вызовы колбэков. Работает только
// на Windows через WH_KEYBOARD_LL; на остальных системах Start возвращает
// ErrUnsupported.
package mediakeys

import (
	"errors"
	"sync/atomic"
)

var ErrUnsupported = errors.New("mediakeys: not supported on this platform")

type Key int

const (
	Stop Key = iota + 1
	PlayPause
	Next
)

func (k Key) String() string {
	switch k {
	case Stop:
		return "stop"
	case PlayPause:
		return "play/pause"
	case Next:
		return "next"
	default:
		return "unknown"
	}
}

type Hook struct {
	started atomic.Bool
	onKey   func(Key)

	// платформенная часть
	sys sysHook
}

// New создаёт, но не запускает хук. onKey вызывается из потока хука,
// поэтому должен возвращаться быстро.
func New(onKey func(Key)) *Hook {
	return &Hook{onKey: onKey}
}

func (h *Hook) fire(k Key) bool {
	if h.onKey == nil || !h.started.Load() {
		return false
	}
	h.onKey(k)
	return true
}
