//go:build windows

package mediakeys

import (
	"errors"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sys/windows"
)

var logger = logging.Logger("radiobot/mediakeys")

const (
	whKeyboardLL = 13

	wmKeydown    = 0x0100
	wmSysKeydown = 0x0104
	wmQuit       = 0x0012

	vkMediaNextTrack = 0xB0
	vkMediaStop      = 0xB2
	vkMediaPlayPause = 0xB3
)

var vkToKey = map[uint32]Key{
	vkMediaStop:      Stop,
	vkMediaPlayPause: PlayPause,
	vkMediaNextTrack: Next,
}

type kbdLLHookStruct struct {
	VKCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")

	procGetCurrentThreadId = kernel32.NewProc("GetCurrentThreadId")
)

// WH_KEYBOARD_LL один на процесс, колбэк находит хук через current
var (
	curMu   sync.Mutex
	current *Hook
)

type sysHook struct {
	mu       sync.Mutex
	hHook    uintptr
	threadID uint32
}

// Start ставит глобальный хук и крутит цикл сообщений в отдельном потоке ОС.
func (h *Hook) Start() error {
	if h.started.Swap(true) {
		return errors.New("mediakeys: already started")
	}

	curMu.Lock()
	if current != nil {
		curMu.Unlock()
		h.started.Store(false)
		return errors.New("mediakeys: another hook is already installed")
	}
	current = h
	curMu.Unlock()

	ready := make(chan error, 1)
	go h.run(ready)
	return <-ready
}

// Close снимает хук и завершает цикл сообщений. Повторный вызов безопасен.
func (h *Hook) Close() error {
	if !h.started.Swap(false) {
		return nil
	}

	h.sys.mu.Lock()
	if h.sys.hHook != 0 {
		procUnhookWindowsHookEx.Call(h.sys.hHook)
		h.sys.hHook = 0
	}
	// WM_QUIT в поток хука, чтобы GetMessage вернулся
	if h.sys.threadID != 0 {
		procPostThreadMessageW.Call(uintptr(h.sys.threadID), uintptr(wmQuit), 0, 0)
	}
	h.sys.mu.Unlock()

	curMu.Lock()
	if current == h {
		current = nil
	}
	curMu.Unlock()
	return nil
}

func (h *Hook) run(ready chan<- error) {
	// хук привязан к потоку, в котором установлен, и там же должен
	// крутиться цикл сообщений
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid, _, _ := procGetCurrentThreadId.Call()

	cb := syscall.NewCallback(llKeyboardProc)
	ret, _, err := procSetWindowsHookExW.Call(uintptr(whKeyboardLL), cb, 0, 0)
	if ret == 0 {
		curMu.Lock()
		if current == h {
			current = nil
		}
		curMu.Unlock()
		h.started.Store(false)
		ready <- errors.New("mediakeys: SetWindowsHookExW failed: " + err.Error())
		return
	}

	h.sys.mu.Lock()
	h.sys.threadID = uint32(tid)
	h.sys.hHook = ret
	h.sys.mu.Unlock()
	ready <- nil
	logger.Debug("media key hook installed")

	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 || !h.started.Load() {
			break
		}
	}
	logger.Debug("media key hook loop exited")
}

// llKeyboardProc: колбэк WH_KEYBOARD_LL. Свои клавиши «проглатываем»
// (возвращаем 1), остальное отдаём дальше по цепочке.
func llKeyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == 0 && (wParam == wmKeydown || wParam == wmSysKeydown) {
		k := (*kbdLLHookStruct)(unsafe.Pointer(lParam))

		curMu.Lock()
		h := current
		curMu.Unlock()

		if key, ok := vkToKey[k.VKCode]; ok && h != nil && h.fire(key) {
			return 1
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}
