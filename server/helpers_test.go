package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"lightcycle/protocol"
)

// fakeConn 内存连接：reads 依次返回，写入累计到 written
type fakeConn struct {
	mu         sync.Mutex
	reads      [][]byte
	readErr    error // reads 耗尽后返回，默认 io.EOF
	written    []byte
	writeLimit int // 每次 Write 最多接受的字节数，0 为不限
	writeErr   error
	closed     bool
}

func (f *fakeConn) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reads) == 0 {
		if f.readErr != nil {
			return 0, f.readErr
		}
		return 0, io.EOF
	}
	n := copy(p, f.reads[0])
	if n == len(f.reads[0]) {
		f.reads = f.reads[1:]
	} else {
		f.reads[0] = f.reads[0][n:]
	}
	return n, nil
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	n := len(p)
	if f.writeLimit > 0 && n > f.writeLimit {
		n = f.writeLimit
	}
	f.written = append(f.written, p[:n]...)
	return n, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	return nil
}

func (f *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242}
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type testGame struct {
	*Game
	clock time.Time
}

func newTestGame(t *testing.T, players int) *testGame {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Players = players
	tg := &testGame{clock: time.Unix(1000, 0)}
	tg.Game = NewGame(cfg, zaptest.NewLogger(t).Sugar())
	tg.now = func() time.Time { return tg.clock }
	return tg
}

func (tg *testGame) advance(d time.Duration) { tg.clock = tg.clock.Add(d) }

func (tg *testGame) tick() { tg.Tick(tg.clock) }

// connect 接入并发送 hello，清空该会话此前收到的报文
func (tg *testGame) connect(t *testing.T, id int16, width, height int32) *Session {
	t.Helper()
	s := NewSession(&fakeConn{}, tg.Tuning())
	tg.OnAccept(s)
	tg.Handle(s, protocol.ToServer{Command: protocol.CmdClientHello, X: width, Y: height, Misc: id})
	take(s)
	return s
}

// startRound 两名 40x20 玩家开局
func startRound(t *testing.T) (*testGame, *Session, *Session) {
	t.Helper()
	tg := newTestGame(t, 2)
	s1 := tg.connect(t, 1, 40, 20)
	s2 := tg.connect(t, 2, 40, 20)
	tg.tick()
	if tg.phase != PhaseRunning {
		t.Fatalf("expected running phase after both joined, got %v", tg.phase)
	}
	take(s1)
	take(s2)
	return tg, s1, s2
}

func move(tg *testGame, s *Session, x, y int32) {
	tg.Handle(s, protocol.ToServer{Command: protocol.CmdClientPosition, X: x, Y: y})
}

// take 解出并清空会话发送缓冲中的报文
func take(s *Session) []protocol.ToPlayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, _ := protocol.SplitToPlayer(s.out)
	s.out = nil
	return recs
}

func commands(recs []protocol.ToPlayer) []protocol.Command {
	out := make([]protocol.Command, len(recs))
	for i, r := range recs {
		out[i] = r.Command
	}
	return out
}

func count(recs []protocol.ToPlayer, cmd protocol.Command, subject int16) int {
	n := 0
	for _, r := range recs {
		if r.Command == cmd && r.PlayerID == subject {
			n++
		}
	}
	return n
}
