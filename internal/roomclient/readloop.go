package roomclient

import (
	"context"
	"fmt"
	"time"
)

func (c *Client) readLoop(ctx context.Context) {
	done := make(chan struct{})
	defer func() {
		close(done)
		c.closed.Store(true)
		c.closeConn()
		if c.OnDisconnected != nil {
			c.OnDisconnected()
		}
	}()

	// закрыть по отмене контекста
	go func() {
		select {
		case <-ctx.Done():
			c.closeConn()
		case <-done:
		}
	}()

	for {
		if conn := c.currentConn(); conn != nil {
			_, data, err := conn.ReadMessage()
			if err == nil {
				_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
				c.handleFrame(data)
				continue
			}
			if ctx.Err() == nil {
				c.emitError(err)
			}
		}
		if c.closed.Load() || ctx.Err() != nil {
			return
		}

		c.closeConn()
		if !c.reconnect(ctx) {
			return
		}
	}
}

// reconnect с экспоненциальным backoff: false, если клиент закрыт или контекст отменён
func (c *Client) reconnect(ctx context.Context) bool {
	backoff := c.minBackoff
	for !c.closed.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		if c.OnConnecting != nil {
			c.OnConnecting()
		}
		conn, err := c.dialAndSetup(ctx)
		if err != nil {
			c.emitError(fmt.Errorf("reconnect failed (wait %v): %w", backoff, err))
			if backoff *= 2; backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		if c.closed.Load() {
			_ = conn.Close()
			return false
		}
		c.setConn(conn)
		logger.Infow("reconnected", "url", c.cfg.URL)
		if c.OnConnected != nil {
			c.OnConnected()
		}
		return true
	}
	return false
}
