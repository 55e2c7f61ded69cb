package bot

import (
	"sync"
)

// lanes: по одной последовательной очереди на комнату. Задачи одной комнаты
// выполняются строго в порядке поступления, разные комнаты идут параллельно.
// Горутина очереди живёт, пока есть работа, и завершается на пустой очереди.
type lanes struct {
	mu    sync.Mutex
	rooms map[string]*lane
	wg    sync.WaitGroup
}

type lane struct {
	pending []func()
	running bool
}

func newLanes() *lanes {
	return &lanes{rooms: make(map[string]*lane)}
}

func (l *lanes) submit(roomID string, job func()) {
	l.mu.Lock()
	ln, ok := l.rooms[roomID]
	if !ok {
		ln = &lane{}
		l.rooms[roomID] = ln
	}
	ln.pending = append(ln.pending, job)
	if ln.running {
		l.mu.Unlock()
		return
	}
	ln.running = true
	l.wg.Add(1)
	l.mu.Unlock()

	go l.drain(ln)
}

func (l *lanes) drain(ln *lane) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		if len(ln.pending) == 0 {
			ln.running = false
			l.mu.Unlock()
			return
		}
		job := ln.pending[0]
		ln.pending[0] = nil
		ln.pending = ln.pending[1:]
		l.mu.Unlock()

		l.run(job)
	}
}

// run изолирует панику задачи: очередь комнаты продолжает работать.
func (l *lanes) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("lane job panic", "panic", r)
		}
	}()
	job()
}

// wait блокируется, пока все очереди не опустеют.
func (l *lanes) wait() {
	l.wg.Wait()
}
