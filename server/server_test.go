package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"lightcycle/client"
	"lightcycle/protocol"
)

const waitTimeout = 3 * time.Second

func startServer(t *testing.T, players int) (*Server, string, func()) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Players = players
	cfg.TickInterval = 10 * time.Millisecond
	cfg.Tuning.CountdownSeconds = 0

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(cfg, zaptest.NewLogger(t).Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	stop := func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(waitTimeout):
			t.Errorf("server did not stop")
		}
	}
	return srv, ln.Addr().String(), stop
}

func dial(t *testing.T, addr string, id int16) *client.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	c, err := client.Dial(ctx, addr, id, 40, 20, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// waitFor 读事件直到出现指定命令（且主体匹配，subject<0 表示不限）
func waitFor(t *testing.T, c *client.Conn, cmd protocol.Command, subject int16) protocol.ToPlayer {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case rec, ok := <-c.Events():
			if !ok {
				t.Fatalf("connection closed while waiting for %v", cmd)
			}
			if rec.Command == cmd && (subject < 0 || rec.PlayerID == subject) {
				return rec
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", cmd)
		}
	}
}

func waitClosed(t *testing.T, c *client.Conn) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-c.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("connection not closed")
		}
	}
}

func TestServerTwoPlayerRound(t *testing.T) {
	srv, addr, stop := startServer(t, 2)
	defer stop()

	p1 := dial(t, addr, 1)
	p2 := dial(t, addr, 2)

	for _, c := range []*client.Conn{p1, p2} {
		rec := waitFor(t, c, protocol.CmdCountdown, -1)
		if rec.X != 40 || rec.Y != 20 {
			t.Fatalf("unexpected board %dx%d", rec.X, rec.Y)
		}
	}
	if srv.Game().Phase() != PhaseRunning || srv.Game().PlayerCount() != 2 {
		t.Fatalf("expected a running two-player round")
	}

	// 对局中再接入：收到 11 后被断开
	late := dial(t, addr, 3)
	waitFor(t, late, protocol.CmdGameRunning, -1)
	waitFor(t, late, protocol.CmdDisconnect, -1)
	waitClosed(t, late)

	if err := p1.SendPosition(5, 5); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := p1.SendPosition(0, 5); err != nil {
		t.Fatalf("send: %v", err)
	}
	pos := waitFor(t, p2, protocol.CmdPosition, 1)
	if pos.X != 5 || pos.Y != 5 {
		t.Fatalf("unexpected position %+v", pos)
	}
	waitFor(t, p2, protocol.CmdCrashed, 1)
	waitFor(t, p2, protocol.CmdRemoved, 1)
	waitFor(t, p2, protocol.CmdWon, 2)
	waitFor(t, p1, protocol.CmdWon, 2)
}

func TestServerShutdownDisconnectsPlayers(t *testing.T) {
	_, addr, stop := startServer(t, 2)
	p1 := dial(t, addr, 1)
	waitFor(t, p1, protocol.CmdHello, -1)

	stop()
	waitFor(t, p1, protocol.CmdDisconnect, -1)
	waitClosed(t, p1)
}

func TestServerRemovesClosedConnection(t *testing.T) {
	srv, addr, stop := startServer(t, 2)
	defer stop()

	p1 := dial(t, addr, 1)
	waitFor(t, p1, protocol.CmdHello, -1)
	p1.Close()

	deadline := time.Now().Add(waitTimeout)
	for srv.Game().PlayerCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("closed connection was not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerWebSocketTransport(t *testing.T) {
	srv, _, stop := startServer(t, 1)
	defer stop()

	hs := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	defer hs.Close()

	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(waitTimeout))

	var buf []byte
	next := func() protocol.ToPlayer {
		for {
			if recs, _ := protocol.SplitToPlayer(buf); len(recs) > 0 {
				buf = buf[protocol.ToPlayerSize:]
				return recs[0]
			}
			_, data, err := ws.ReadMessage()
			if err != nil {
				t.Fatalf("read ws: %v", err)
			}
			buf = append(buf, data...)
		}
	}

	if rec := next(); rec.Command != protocol.CmdHello {
		t.Fatalf("expected hello, got %v", rec.Command)
	}
	// hello 拆成两条消息发送，服务端按字节流重组
	hello := protocol.AppendToServer(nil, protocol.ToServer{Command: protocol.CmdClientHello, X: 30, Y: 12, Misc: 'w'})
	if err := ws.WriteMessage(websocket.BinaryMessage, hello[:4]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, hello[4:]); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec := next()
	if rec.Command != protocol.CmdCountdown || rec.X != 30 || rec.Y != 12 {
		t.Fatalf("expected countdown for a 30x12 board, got %+v", rec)
	}
}
