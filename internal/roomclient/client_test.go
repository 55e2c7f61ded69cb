package roomclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roomServer: минимальный сервер комнат, принимает кадры клиента в канал
// и даёт тесту отправлять кадры обратно.
type roomServer struct {
	srv      *httptest.Server
	received chan frame
	conns    chan *websocket.Conn
	accepted atomic.Int32
}

func newRoomServer(t *testing.T) *roomServer {
	t.Helper()
	rs := &roomServer{
		received: make(chan frame, 64),
		conns:    make(chan *websocket.Conn, 8),
	}
	up := websocket.Upgrader{}
	rs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		rs.accepted.Add(1)
		rs.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if f, err := decodeFrame(data); err == nil {
				rs.received <- f
			}
		}
	}))
	t.Cleanup(rs.srv.Close)
	return rs
}

func (rs *roomServer) url() string {
	return "ws" + strings.TrimPrefix(rs.srv.URL, "http")
}

func (rs *roomServer) next(t *testing.T) frame {
	t.Helper()
	select {
	case f := <-rs.received:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return frame{}
	}
}

func (rs *roomServer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-rs.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, f frame) {
	t.Helper()
	data, err := encodeFrame(f)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))
}

func TestClient_HandshakeAndChat(t *testing.T) {
	rs := newRoomServer(t)
	c := New(Config{URL: rs.url(), Token: "tok", UserID: "radiobot", Rooms: []string{"lobby", "cafe"}})

	events := make(chan ChatEvent, 4)
	c.OnMessage = func(ev ChatEvent) { events <- ev }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Disconnect()
	assert.True(t, c.IsConnected())

	server := rs.conn(t)

	auth := rs.next(t)
	assert.Equal(t, frameAuth, auth.Type)
	assert.Equal(t, "tok", auth.Token)
	assert.Equal(t, "radiobot", auth.UserID)
	assert.Equal(t, frame{Type: frameJoin, Room: "lobby"}, rs.next(t))
	assert.Equal(t, frame{Type: frameJoin, Room: "cafe"}, rs.next(t))

	sendFrame(t, server, frame{Type: frameChat, Room: "lobby", Sender: "alice", Message: "!np"})
	select {
	case ev := <-events:
		assert.Equal(t, ChatEvent{Room: "lobby", Sender: "alice", Text: "!np"}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("chat event not delivered")
	}

	require.NoError(t, c.Send("lobby", "Nothing playing"))
	assert.Equal(t, frame{Type: frameChat, Room: "lobby", Message: "Nothing playing"}, rs.next(t))
}

func TestClient_ServerErrorFrame(t *testing.T) {
	rs := newRoomServer(t)
	c := New(Config{URL: rs.url(), Rooms: []string{"lobby"}})

	errs := make(chan error, 4)
	c.OnError = func(err error) { errs <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Disconnect()

	server := rs.conn(t)
	sendFrame(t, server, frame{Type: frameError, Message: "room is full"})

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "room is full")
	case <-time.After(2 * time.Second):
		t.Fatal("error not reported")
	}
}

func TestClient_ReconnectRejoins(t *testing.T) {
	rs := newRoomServer(t)
	c := New(Config{URL: rs.url(), Rooms: []string{"lobby"}},
		WithReconnectBackoff(10*time.Millisecond, 50*time.Millisecond))

	connected := make(chan struct{}, 4)
	c.OnConnected = func() { connected <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Disconnect()

	<-connected
	first := rs.conn(t)
	assert.Equal(t, frameAuth, rs.next(t).Type)
	assert.Equal(t, frameJoin, rs.next(t).Type)

	// сервер рвёт соединение: клиент должен переподключиться и снова войти
	_ = first.Close()

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("client did not reconnect")
	}
	rs.conn(t)
	assert.Equal(t, frameAuth, rs.next(t).Type)
	assert.Equal(t, frame{Type: frameJoin, Room: "lobby"}, rs.next(t))
	assert.EqualValues(t, 2, rs.accepted.Load())
}

func TestClient_SendWhenDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"})
	assert.ErrorIs(t, c.Send("lobby", "hi"), ErrNotConnected)
	assert.False(t, c.IsConnected())
}

func TestClient_ConnectFails(t *testing.T) {
	rs := newRoomServer(t)
	addr := rs.url()
	rs.srv.Close()

	c := New(Config{URL: addr})
	assert.Error(t, c.Connect(context.Background()))
}

func TestDecodeFrame_Invalid(t *testing.T) {
	_, err := decodeFrame([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)

	data, err := encodeFrame(frame{})
	require.NoError(t, err)
	_, err = decodeFrame(data)
	assert.Error(t, err)
}
