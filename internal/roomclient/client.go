package roomclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"
)

var logger = logging.Logger("radiobot/room")

var ErrNotConnected = errors.New("room: not connected")

type Config struct {
	URL    string   `json:"url"`
	Token  string   `json:"token"`
	UserID string   `json:"user_id"`
	Rooms  []string `json:"rooms"`
}

// ChatEvent: входящее сообщение чата.
type ChatEvent struct {
	Room   string
	Sender string
	Text   string
}

type Client struct {
	cfg Config

	mu     sync.Mutex
	conn   *websocket.Conn
	closed atomic.Bool

	wmu      sync.Mutex    // сериализует запись в websocket
	pingStop chan struct{} // стоп-канал для ping-горутины

	minBackoff time.Duration
	maxBackoff time.Duration

	OnConnecting   func()
	OnConnected    func()
	OnMessage      func(ChatEvent)
	OnDisconnected func()
	OnError        func(error)
}

type Option func(*Client)

// WithReconnectBackoff задаёт границы экспоненциальной задержки реконнекта.
func WithReconnectBackoff(lo, hi time.Duration) Option {
	return func(c *Client) {
		if lo > 0 && hi >= lo {
			c.minBackoff, c.maxBackoff = lo, hi
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect устанавливает WebSocket, входит в комнаты и запускает readLoop.
// Отмена контекста завершает readLoop и закрывает соединение.
func (c *Client) Connect(ctx context.Context) error {
	if c.OnConnecting != nil {
		c.OnConnecting()
	}
	conn, err := c.dialAndSetup(ctx)
	if err != nil {
		return err
	}
	c.setConn(conn)
	c.closed.Store(false)

	if c.OnConnected != nil {
		c.OnConnected()
	}

	go c.readLoop(ctx)
	return nil
}

func (c *Client) Disconnect() {
	c.closed.Store(true)
	c.closeConn()
}

func (c *Client) IsConnected() bool {
	return c.currentConn() != nil && !c.closed.Load()
}

// Send отправляет сообщение в чат комнаты.
func (c *Client) Send(roomID, text string) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := encodeFrame(frame{Type: frameChat, Room: roomID, Message: text})
	if err != nil {
		return err
	}
	return c.write(conn, data)
}

func (c *Client) handleFrame(data []byte) {
	f, err := decodeFrame(data)
	if err != nil {
		c.emitError(err)
		return
	}
	switch f.Type {
	case frameChat:
		if c.OnMessage != nil {
			c.OnMessage(ChatEvent{Room: f.Room, Sender: f.Sender, Text: f.Message})
		}
	case frameError:
		c.emitError(errors.New("room server: " + f.Message))
	default:
		logger.Debugw("ignoring frame", "type", f.Type, "room", f.Room)
	}
}

func (c *Client) emitError(err error) {
	if c.OnError != nil && !c.closed.Load() {
		c.OnError(err)
	}
}
