package server

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lightcycle/protocol"
)

const (
	readChunk    = 8192
	writeTimeout = 5 * time.Second
)

// Conn 会话的底层传输：TCP 连接或 WebSocket 适配器
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Session 一个玩家连接：独占一个 socket 及其收发缓冲，外加玩家属性。
// 缓冲之外的共享状态（地图、阶段）从不在这里修改
type Session struct {
	ID     string // 连接级唯一标识，仅用于日志
	Addr   string
	Player Player

	conn    Conn
	in      []byte
	scratch []byte

	mu      sync.Mutex
	out     []byte
	closing bool // 发送完缓冲后关闭

	wake      chan struct{}
	done      chan struct{}
	dead      atomic.Bool
	closeOnce sync.Once
}

// NewSession 包装一个新接入的连接
func NewSession(conn Conn, t Tuning) *Session {
	addr := ""
	if a := conn.RemoteAddr(); a != nil {
		addr = a.String()
	}
	return &Session{
		ID:      uuid.NewString(),
		Addr:    addr,
		Player:  newPlayer(t),
		conn:    conn,
		scratch: make([]byte, readChunk),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Enqueue 编码一条报文追加到发送缓冲（非阻塞，不立即发送）。
// Speed/Nitro 取的是接收方自己的当前值
func (s *Session) Enqueue(subject int16, cmd protocol.Command, x, y int32, misc int16) {
	rec := protocol.ToPlayer{
		PlayerID: subject,
		Command:  cmd,
		X:        x,
		Y:        y,
		Speed:    uint32(max(s.Player.Speed, 0)),
		Nitro:    uint8(min(max(s.Player.Tank, 0), 255)),
		Misc:     misc,
	}
	s.mu.Lock()
	s.out = protocol.AppendToPlayer(s.out, rec)
	s.mu.Unlock()
	s.signal()
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// DrainReadable 读一次可用字节并解出所有完整报文，不完整的尾部留在缓冲里。
// 对端正常关闭时返回 io.EOF；读到字节但不够一条报文时返回空切片和 nil
func (s *Session) DrainReadable() ([]protocol.ToServer, error) {
	n, err := s.conn.Read(s.scratch)
	if n > 0 {
		s.in = append(s.in, s.scratch[:n]...)
	}
	recs, rest := protocol.SplitToServer(s.in)
	s.in = append(s.in[:0], rest...)
	if err != nil {
		s.dead.Store(true)
		return recs, err
	}
	return recs, nil
}

// FlushWritable 尽可能多地写出发送缓冲；部分写入时保留未写出的部分。
// 写失败或零字节写入都视为断开
func (s *Session) FlushWritable() error {
	s.mu.Lock()
	pending := s.out
	s.out = nil
	s.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	if d, ok := s.conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = d.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	n, err := s.conn.Write(pending)
	if n < len(pending) {
		s.mu.Lock()
		s.out = append(append([]byte(nil), pending[n:]...), s.out...)
		s.mu.Unlock()
		if err == nil && n == 0 {
			err = io.ErrShortWrite
		}
	}
	if err != nil {
		s.dead.Store(true)
		return err
	}
	return nil
}

// Pending 发送缓冲中尚未写出的字节数
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.out)
}

// Disconnect 发送“服务端断开”报文，写完后关闭连接
func (s *Session) Disconnect() {
	s.Enqueue(0, protocol.CmdDisconnect, 0, 0, 0)
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.signal()
}

// Close 立即关闭底层连接，结束写协程
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.dead.Store(true)
		close(s.done)
		_ = s.conn.Close()
	})
}

// Disconnected 读写是否已失败或连接已关闭
func (s *Session) Disconnected() bool { return s.dead.Load() }

func (s *Session) drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing && len(s.out) == 0
}

// writePump 独立协程：被唤醒时把发送缓冲写出到连接
func (s *Session) writePump(g *Game) {
	for {
		select {
		case <-s.wake:
		case <-s.done:
			return
		}
		if err := s.FlushWritable(); err != nil {
			g.post(event{kind: evLeave, session: s})
			s.Close()
			return
		}
		if s.drained() {
			s.Close()
			return
		}
	}
}

// readPump 读取客户端报文并按顺序注入对局主循环
func (s *Session) readPump(g *Game) {
	for {
		recs, err := s.DrainReadable()
		for _, r := range recs {
			if !g.post(event{kind: evInput, session: s, packet: r}) {
				return
			}
		}
		if err != nil {
			// 读泵退出时，通知主循环移除该玩家
			g.post(event{kind: evLeave, session: s})
			return
		}
	}
}

// serve 启动收发协程
func (s *Session) serve(g *Game, wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump(g)
	}()
	go func() {
		defer wg.Done()
		s.readPump(g)
	}()
}
