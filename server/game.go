package server

import (
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"lightcycle/protocol"
)

// Phase 对局阶段
type Phase int32

const (
	PhaseWaiting Phase = iota // 等待玩家
	PhaseRunning              // 倒计时/进行中
)

func (p Phase) String() string {
	if p == PhaseRunning {
		return "running"
	}
	return "waiting"
}

// Game 唯一的对局：权威状态维护在内存，所有修改都发生在 Run 所在的协程
type Game struct {
	target       int
	tickInterval time.Duration
	log          *zap.SugaredLogger
	now          func() time.Time
	tuning       atomic.Pointer[Tuning]
	metrics      *Metrics

	sessions     []*Session // 按接入顺序，广播顺序确定
	occupied     map[Cell]PlayerID
	phase        Phase
	width        int32
	height       int32
	roundPlayers int      // 本局开局时的人数
	winner       PlayerID // 本局已宣布的胜者

	events chan event
	done   chan struct{}

	// 供管理接口读取的只读视图
	phaseView   atomic.Int32
	playersView atomic.Int32
}

// NewGame 创建对局，初始化数据结构
func NewGame(cfg Config, log *zap.SugaredLogger) *Game {
	if log == nil {
		log = Log
	}
	g := &Game{
		target:       cfg.Players,
		tickInterval: cfg.TickInterval,
		log:          log,
		now:          time.Now,
		metrics:      &Metrics{},
		occupied:     make(map[Cell]PlayerID),
		events:       make(chan event, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		done:         make(chan struct{}),
	}
	t := cfg.Tuning
	g.tuning.Store(&t)
	return g
}

// Tuning 当前参数
func (g *Game) Tuning() Tuning { return *g.tuning.Load() }

// SetTuning 校验后原子替换参数，下一条报文起生效
func (g *Game) SetTuning(t Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	g.tuning.Store(&t)
	return nil
}

// Metrics 运行指标
func (g *Game) Metrics() *Metrics { return g.metrics }

// Phase 当前阶段（并发安全）
func (g *Game) Phase() Phase { return Phase(g.phaseView.Load()) }

// PlayerCount 当前登记的会话数（并发安全）
func (g *Game) PlayerCount() int { return int(g.playersView.Load()) }

func (g *Game) setPhase(p Phase) {
	g.phase = p
	g.phaseView.Store(int32(p))
}

func (g *Game) publishCount() { g.playersView.Store(int32(len(g.sessions))) }

// OnAccept 新连接：对局中或已满员则拒绝并在发送完毕后关闭，否则登记并请求玩家编号
func (g *Game) OnAccept(s *Session) {
	switch {
	case g.phase == PhaseRunning:
		g.log.Infow("game is running, refusing connection", "session", s.ID, "addr", s.Addr)
		g.reject(s, protocol.CmdGameRunning)
		return
	case len(g.sessions) >= g.target:
		g.log.Infow("server is full, refusing connection", "session", s.ID, "addr", s.Addr)
		g.reject(s, protocol.CmdServerFull)
		return
	}
	s.Player.LastSeen = g.now()
	g.sessions = append(g.sessions, s)
	g.publishCount()
	g.metrics.IncAccepted()
	g.log.Infow("connected", "session", s.ID, "addr", s.Addr, "players", len(g.sessions), "target", g.target)
	s.Enqueue(0, protocol.CmdHello, 0, 0, 0)
}

func (g *Game) reject(s *Session, cmd protocol.Command) {
	g.metrics.IncRejected()
	s.Enqueue(0, cmd, 0, 0, 0)
	s.Disconnect()
}

// Handle 按接收顺序应用一条客户端报文；未登记的会话（已被拒绝或移除）直接忽略
func (g *Game) Handle(s *Session, pkt protocol.ToServer) {
	if !g.registered(s) {
		return
	}
	g.metrics.IncRecordsIn()
	s.Player.LastSeen = g.now()

	switch pkt.Command {
	case protocol.CmdClientHello:
		g.OnHello(s, pkt.X, pkt.Y, pkt.Misc)
	case protocol.CmdClientPosition:
		g.OnPosition(s, pkt.X, pkt.Y)
	case protocol.CmdClientNitro:
		g.OnNitro(s)
	default:
		g.metrics.IncUnknownCommands()
		g.log.Warnw("unknown command received", "session", s.ID, "player", s.Player.ID, "cmd", int16(pkt.Command))
	}
}

// OnHello 校验并绑定玩家编号，记录终端尺寸
func (g *Game) OnHello(s *Session, width, height int32, claimed int16) {
	if s.Player.ID != NoPlayer {
		g.log.Debugw("repeated hello ignored", "player", s.Player.ID)
		return
	}
	if !protocol.ValidPlayerID(claimed) {
		g.log.Infow("player id invalid, refused", "session", s.ID, "id", claimed)
		g.refuse(s, protocol.CmdIDInvalid)
		return
	}
	claimed = protocol.CanonicalPlayerID(claimed)
	for _, other := range g.sessions {
		if other != s && other.Player.ID == PlayerID(claimed) {
			g.log.Infow("player id already taken, refused", "session", s.ID, "id", PlayerID(claimed))
			g.refuse(s, protocol.CmdIDTaken)
			return
		}
	}
	s.Player.ID = PlayerID(claimed)
	s.Player.Width = width
	s.Player.Height = height
	g.log.Infow("player id set", "session", s.ID, "player", s.Player.ID, "width", width, "height", height)
}

func (g *Game) refuse(s *Session, cmd protocol.Command) {
	g.metrics.IncRejected()
	s.Enqueue(0, cmd, 0, 0, 0)
	g.remove(s, true)
}

// OnPosition 碰撞判定与提交。目标格已被占用或落在边框上即判撞毁
func (g *Game) OnPosition(s *Session, x, y int32) {
	p := &s.Player
	if p.Crashed || p.ID == NoPlayer || g.phase != PhaseRunning {
		return
	}

	c := Cell{X: x, Y: y}
	if _, taken := g.occupied[c]; taken || g.onBoundary(c) {
		g.crash(s)
		return
	}

	g.occupied[c] = p.ID
	p.X, p.Y = x, y
	p.Trail = append(p.Trail, c)

	t := g.Tuning()
	if p.Tank < 100 {
		p.Tank = min(p.Tank+t.NitroRegen, 100)
	}

	switch {
	case p.Nitro:
		if g.now().Sub(p.NitroAt) >= time.Duration(t.NitroMillis)*time.Millisecond {
			p.Speed = t.SpeedNormal
			p.Nitro = false
		} else {
			p.Speed = math.Min(t.SpeedNormal, p.Speed*t.NitroCooldownFactor)
		}
	case g.inBorder(c, t.BorderMargin):
		// 贴边行驶更快，奖励冒险
		p.Speed = math.Max(p.Speed*t.BorderFactor, t.SpeedNormal-t.SpeedBorder)
	default:
		p.Speed = math.Min(p.Speed*t.RelaxFactor, t.SpeedNormal)
	}

	g.broadcast(int16(p.ID), protocol.CmdPosition, x, y)
}

// OnNitro 储量不足时忽略；否则按剩余比例提速、清空储量
func (g *Game) OnNitro(s *Session) {
	p := &s.Player
	if p.Crashed || p.ID == NoPlayer || g.phase != PhaseRunning {
		return
	}
	t := g.Tuning()
	if p.Tank <= t.NitroMinTank {
		return
	}
	boost := t.SpeedNitro * float64(p.Tank) / 100
	p.Speed = math.Max(t.SpeedNormal-t.SpeedNitro, p.Speed-boost)
	p.Tank = 0
	p.Nitro = true
	p.NitroAt = g.now()
	g.log.Debugw("nitro activated", "player", p.ID, "speed", p.Speed)

	s.Enqueue(0, protocol.CmdSetSpeed, int32(p.Speed), 0, 0)
	s.Enqueue(0, protocol.CmdSetNitroTank, 0, 0, 0)
}

func (g *Game) crash(s *Session) {
	p := &s.Player
	p.Crashed = true
	g.metrics.IncCrashes()

	// 最后一个撞毁且本局尚无胜者：他坚持得最久
	if len(g.survivors()) == 0 && g.roundPlayers > 1 && g.winner == NoPlayer {
		g.declareWinner(p.ID)
	} else {
		g.log.Infow("crashed", "player", p.ID, "x", p.X, "y", p.Y)
		g.broadcast(int16(p.ID), protocol.CmdCrashed, 0, 0)
	}
	g.release(s)
}

func (g *Game) declareWinner(id PlayerID) {
	g.winner = id
	g.metrics.IncWins()
	g.log.Infow("won", "player", id)
	g.broadcast(int16(id), protocol.CmdWon, 0, 0)
}

// release 清理该玩家占用的所有格子并广播
func (g *Game) release(s *Session) {
	p := &s.Player
	if len(p.Trail) == 0 {
		return
	}
	for _, c := range p.Trail {
		if g.occupied[c] == p.ID {
			delete(g.occupied, c)
		}
	}
	p.Trail = nil
	g.broadcast(int16(p.ID), protocol.CmdRemoved, 0, 0)
}

// Remove 传输层失败：清理状态并关闭连接
func (g *Game) Remove(s *Session) {
	g.remove(s, false)
}

func (g *Game) remove(s *Session, graceful bool) {
	idx := g.indexOf(s)
	if idx < 0 {
		// 已被拒绝或已移除：连接由写协程在发送完毕后关闭
		return
	}
	hadTrail := len(s.Player.Trail) > 0

	g.sessions = append(g.sessions[:idx], g.sessions[idx+1:]...)
	g.publishCount()

	if hadTrail {
		g.release(s)
	} else if s.Player.ID != NoPlayer {
		g.broadcast(int16(s.Player.ID), protocol.CmdRemoved, 0, 0)
	}

	if graceful {
		s.Disconnect()
	} else {
		s.Close()
	}
	g.log.Infow("disconnected", "session", s.ID, "player", s.Player.ID, "players", len(g.sessions))
}

func (g *Game) broadcast(subject int16, cmd protocol.Command, x, y int32) {
	for _, s := range g.sessions {
		s.Enqueue(subject, cmd, x, y, 0)
	}
}

func (g *Game) registered(s *Session) bool { return g.indexOf(s) >= 0 }

func (g *Game) indexOf(s *Session) int {
	for i, other := range g.sessions {
		if other == s {
			return i
		}
	}
	return -1
}

func (g *Game) survivors() []*Session {
	var out []*Session
	for _, s := range g.sessions {
		if !s.Player.Crashed {
			out = append(out, s)
		}
	}
	return out
}

// onBoundary 边框本身（0 与 size-1）就是墙，可玩区域是内部
func (g *Game) onBoundary(c Cell) bool {
	return c.X <= 0 || c.X >= g.width-1 || c.Y <= 0 || c.Y >= g.height-1
}

func (g *Game) inBorder(c Cell, margin float64) bool {
	x, y := float64(c.X), float64(c.Y)
	w, h := float64(g.width), float64(g.height)
	return (x > 0 && x < w*margin) || (x > w*(1-margin) && x < w) ||
		(y > 0 && y < h*margin) || (y > h*(1-margin) && y < h)
}
