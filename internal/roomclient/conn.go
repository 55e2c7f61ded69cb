package roomclient

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ========================= low-level =========================

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 30 * time.Second
	pingEvery    = 10 * time.Second
)

// dial с авторизацией, входом в комнаты, pong-handler'ом и запуском пингов
func (c *Client) dialAndSetup(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	if err := c.handshake(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.startPing(conn)
	return conn, nil
}

func (c *Client) handshake(conn *websocket.Conn) error {
	auth, err := encodeFrame(frame{Type: frameAuth, Token: c.cfg.Token, UserID: c.cfg.UserID})
	if err != nil {
		return err
	}
	if err := c.write(conn, auth); err != nil {
		return err
	}
	for _, room := range c.cfg.Rooms {
		join, err := encodeFrame(frame{Type: frameJoin, Room: room})
		if err != nil {
			return err
		}
		if err := c.write(conn, join); err != nil {
			return err
		}
	}
	return nil
}

// запись строго через один мьютекс + write-deadline
func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// безопасно закрыть текущее соединение
func (c *Client) closeConn() {
	c.stopPing()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		_ = conn.Close()
	}
}

func (c *Client) startPing(conn *websocket.Conn) {
	c.stopPing() // останавливаем предыдущую

	stop := make(chan struct{})
	c.mu.Lock()
	c.pingStop = stop
	c.mu.Unlock()

	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.wmu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
				c.wmu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (c *Client) stopPing() {
	c.mu.Lock()
	stop := c.pingStop
	c.pingStop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}
