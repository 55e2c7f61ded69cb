package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/EgorLis/radiobot/internal/command"
	"github.com/EgorLis/radiobot/internal/mediakeys"
	"github.com/EgorLis/radiobot/internal/playback"
	"github.com/EgorLis/radiobot/internal/roomclient"
)

var logger = logging.Logger("radiobot/bot")

// Sender: исходящая сторона адаптера комнаты.
type Sender interface {
	Send(roomID, text string) error
}

type Options struct {
	Marker      byte
	SelfID      string        // сообщения от этого отправителя игнорируются
	ReplyPrefix string        // добавляется к каждому сообщению бота, например "[bot] "
	URLTTL      time.Duration // свежесть закешированного stream URL
}

type RadioBot struct {
	room    *roomclient.Client
	sender  Sender
	backend Backend
	store   *playback.Store
	disp    *Dispatcher
	parser  command.Parser
	lanes   *lanes

	selfID      string
	replyPrefix string

	mediaKeys *mediakeys.Hook
	mediaRoom string

	ctx    context.Context
	cancel context.CancelFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// чтобы не дёргать resync слишком часто при серии быстрых реконнектов
	resyncMu   sync.Mutex
	lastResync time.Time

	// announcer
	anMu      sync.Mutex
	anRunning bool
	anCancel  context.CancelFunc
	anEvery   time.Duration
	anPending map[string]bool
}

func New(b Backend, opts Options) *RadioBot {
	store := playback.NewStore()
	parser := command.NewParser(opts.Marker)
	ctx, cancel := context.WithCancel(context.Background())
	return &RadioBot{
		backend:     b,
		store:       store,
		disp:        NewDispatcher(b, store, WithMarker(parser.Marker()), WithURLTTL(opts.URLTTL)),
		parser:      parser,
		lanes:       newLanes(),
		selfID:      opts.SelfID,
		replyPrefix: opts.ReplyPrefix,
		ctx:         ctx,
		cancel:      cancel,
		anPending:   make(map[string]bool),
	}
}

// SetSender подключает произвольный адаптер комнаты.
func (bot *RadioBot) SetSender(s Sender) {
	bot.sender = s
}

// SetRoomClient подключает websocket-клиент комнаты и вешает обработчики событий.
func (bot *RadioBot) SetRoomClient(rc *roomclient.Client) {
	bot.room = rc
	bot.sender = rc

	rc.OnConnecting = func() { logger.Info("room: connecting...") }

	// любое успешное подключение (первое или реконнект): сверяем состояние
	rc.OnConnected = func() {
		logger.Info("room: connected")
		go bot.resync()
	}

	rc.OnDisconnected = func() { logger.Info("room: disconnected") }
	rc.OnError = func(err error) { logger.Warnw("room error", "error", err) }

	rc.OnMessage = func(ev roomclient.ChatEvent) {
		bot.HandleMessage(ev.Room, ev.Sender, ev.Text)
	}
}

// SetMediaKeys включает мультимедийные клавиши хоста: Stop → stop,
// Play/Pause → np, Next → status. Ответы уходят в roomID.
func (bot *RadioBot) SetMediaKeys(roomID string) {
	bot.mediaRoom = roomID
	bot.mediaKeys = mediakeys.New(bot.handleMediaKey)
}

var mediaVerbs = map[mediakeys.Key]string{
	mediakeys.Stop:      "stop",
	mediakeys.PlayPause: "np",
	mediakeys.Next:      "status",
}

func (bot *RadioBot) handleMediaKey(k mediakeys.Key) {
	verb, ok := mediaVerbs[k]
	if !ok || bot.mediaRoom == "" {
		return
	}
	text := string(bot.parser.Marker()) + verb
	jobID := uuid.NewString()
	logger.Infow("media key", "key", k, "room", bot.mediaRoom, "job", jobID)
	roomID := bot.mediaRoom
	bot.lanes.submit(roomID, func() { bot.process(roomID, text, jobID) })
}

// HandleMessage: вход для всех сообщений чата. Строки без маркера и
// собственные сообщения бота отбрасываются; команды встают в очередь комнаты.
func (bot *RadioBot) HandleMessage(roomID, senderID, text string) {
	text = strings.TrimSpace(text)
	if bot.selfID != "" && senderID == bot.selfID {
		return
	}
	if p := strings.TrimSpace(bot.replyPrefix); p != "" && strings.HasPrefix(text, p) {
		return
	}
	if !bot.parser.IsCommand(text) {
		return
	}

	jobID := uuid.NewString()
	logger.Infow("chat command", "room", roomID, "sender", senderID, "text", text, "job", jobID)
	bot.lanes.submit(roomID, func() { bot.process(roomID, text, jobID) })
}

func (bot *RadioBot) process(roomID, text, jobID string) {
	start := time.Now()
	cmd := bot.parser.Parse(text)
	reply := bot.dispatch(roomID, cmd)
	if err := bot.say(roomID, reply); err != nil {
		logger.Errorw("reply failed", "room", roomID, "job", jobID, "error", err)
	}
	logger.Debugw("command done", "room", roomID, "verb", cmd.Verb, "job", jobID, "took", time.Since(start))
}

// dispatch гарантирует ответ даже при панике внутри обработчика.
func (bot *RadioBot) dispatch(roomID string, cmd command.Command) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("command panic", "room", roomID, "verb", cmd.Verb, "panic", r)
			reply = fmt.Sprintf("%s failed: internal error", cmd.Verb)
		}
	}()
	return bot.disp.Dispatch(bot.ctx, roomID, cmd)
}

func (bot *RadioBot) say(roomID, text string) error {
	if bot.sender == nil {
		return errors.New("no room sender")
	}
	return bot.sender.Send(roomID, bot.replyPrefix+text)
}

// State: снимок состояния комнаты.
func (bot *RadioBot) State(roomID string) playback.State {
	return bot.store.Get(roomID)
}

// Drain ждёт, пока все поставленные команды будут обработаны.
func (bot *RadioBot) Drain() {
	bot.lanes.wait()
}

func (bot *RadioBot) Start() error {
	if bot == nil {
		return errors.New("bot is not initialized")
	}
	if bot.sender == nil {
		return errors.New("room adapter is not set")
	}
	bot.mu.Lock()
	defer bot.mu.Unlock()
	if bot.stopCh != nil {
		return errors.New("already running")
	}

	if bot.room != nil {
		if err := bot.room.Connect(bot.ctx); err != nil {
			return err
		}
	}
	bot.stopCh = make(chan struct{})

	if bot.mediaKeys != nil {
		if err := bot.mediaKeys.Start(); err != nil {
			logger.Warnw("media keys disabled", "error", err)
		}
	}

	// сторож для остановки
	stopCh := bot.stopCh
	bot.wg.Add(1)
	go func() {
		defer bot.wg.Done()
		<-stopCh
		if bot.mediaKeys != nil {
			_ = bot.mediaKeys.Close()
		}
		bot.StopAnnouncer()
		bot.cancel()
		bot.lanes.wait()
		if bot.room != nil {
			bot.room.Disconnect()
		}
	}()
	return nil
}

func (bot *RadioBot) Stop() {
	bot.mu.Lock()
	ch := bot.stopCh
	bot.stopCh = nil
	bot.mu.Unlock()

	if ch != nil {
		close(ch)     // повторный Stop() ничего не делает
		bot.wg.Wait() // дождёмся остановки фоновой горутины
	}
}

// resync после (ре)подключения: сверяем играющие комнаты с бэкендом
func (bot *RadioBot) resync() {
	bot.resyncMu.Lock()
	if time.Since(bot.lastResync) < 2*time.Second {
		bot.resyncMu.Unlock()
		return
	}
	bot.lastResync = time.Now()
	bot.resyncMu.Unlock()

	bot.scheduleRefresh()
}
