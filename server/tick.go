package server

import (
	"context"
	"time"

	"lightcycle/protocol"
)

// Run 对局主循环（单协程推进）：按到达顺序处理接入/报文/断开事件，
// 每个事件之后以及每个 tick 周期都执行一次 Tick，保证无 I/O 时状态机照常推进
func (g *Game) Run(ctx context.Context) {
	ticker := time.NewTicker(g.tickInterval)
	defer ticker.Stop()
	defer close(g.done)

	g.log.Infow("waiting for players", "target", g.target)
	for {
		select {
		case <-ctx.Done():
			g.shutdown()
			return
		case ev := <-g.events:
			g.dispatch(ev)
			g.Tick(g.now())
		case <-ticker.C:
			g.Tick(g.now())
		}
	}
}

// Join 请求在主循环中登记新会话
func (g *Game) Join(s *Session) bool { return g.post(event{kind: evJoin, session: s}) }

// post 入队；主循环退出后返回 false，避免泵协程永久阻塞
func (g *Game) post(ev event) bool {
	select {
	case g.events <- ev:
		return true
	case <-g.done:
		return false
	}
}

func (g *Game) dispatch(ev event) {
	switch ev.kind {
	case evJoin:
		g.OnAccept(ev.session)
	case evInput:
		g.Handle(ev.session, ev.packet)
	case evLeave:
		g.Remove(ev.session)
	}
}

// Tick 周期性推进：宣布胜者、清理闲置、重置、开局
func (g *Game) Tick(now time.Time) {
	start := time.Now()
	defer func() { g.metrics.AddTick(time.Since(start).Nanoseconds()) }()

	// 只剩一个未撞毁的玩家，且本局至少两人参加：他赢了
	if g.phase == PhaseRunning && g.winner == NoPlayer && g.roundPlayers > 1 {
		if alive := g.survivors(); len(alive) == 1 {
			g.declareWinner(alive[0].Player.ID)
		}
	}

	// 本局已结束（全部撞毁或已有胜者）：闲置超过宽限期的玩家断开
	if len(g.sessions) > 0 && g.phase == PhaseRunning &&
		(len(g.survivors()) == 0 || g.winner != NoPlayer) {
		grace := time.Duration(g.Tuning().IdleGraceMillis) * time.Millisecond
		for _, s := range append([]*Session(nil), g.sessions...) {
			if now.Sub(s.Player.LastSeen) >= grace {
				g.remove(s, true)
			}
		}
	}

	// 等待阶段迟迟不报号的连接会一直占着名额，超过宽限期即断开
	if g.phase == PhaseWaiting {
		grace := time.Duration(g.Tuning().IdleGraceMillis) * time.Millisecond
		for _, s := range append([]*Session(nil), g.sessions...) {
			if s.Player.ID == NoPlayer && now.Sub(s.Player.LastSeen) >= grace {
				g.log.Infow("no hello received, dropping connection", "session", s.ID, "addr", s.Addr)
				g.remove(s, true)
			}
		}
	}

	if len(g.sessions) == 0 && g.phase != PhaseWaiting {
		g.reset()
	}

	if g.phase == PhaseWaiting && len(g.sessions) == g.target && g.allIdentified() {
		g.startRound(now)
	}
}

func (g *Game) allIdentified() bool {
	for _, s := range g.sessions {
		if s.Player.ID == NoPlayer {
			return false
		}
	}
	return true
}

func (g *Game) reset() {
	g.setPhase(PhaseWaiting)
	g.occupied = make(map[Cell]PlayerID)
	g.width, g.height = 0, 0
	g.roundPlayers = 0
	g.winner = NoPlayer
	g.metrics.IncResets()
	g.log.Infow("no players online, resetting game", "target", g.target)
}

// startRound 以所有玩家终端尺寸的最小值作为棋盘，本局内不再变化
func (g *Game) startRound(now time.Time) {
	t := g.Tuning()
	w, h := g.sessions[0].Player.Width, g.sessions[0].Player.Height
	for _, s := range g.sessions[1:] {
		w = min(w, s.Player.Width)
		h = min(h, s.Player.Height)
	}
	g.width, g.height = w, h
	g.roundPlayers = len(g.sessions)
	g.winner = NoPlayer
	g.occupied = make(map[Cell]PlayerID)
	for _, s := range g.sessions {
		s.Player.reset(t)
		s.Player.LastSeen = now
	}
	g.setPhase(PhaseRunning)
	g.metrics.IncRounds()
	g.log.Infow("game starts", "countdown", t.CountdownSeconds, "width", w, "height", h, "players", g.roundPlayers)

	g.broadcast(int16(t.CountdownSeconds), protocol.CmdCountdown, w, h)
	g.broadcast(0, protocol.CmdSetSpeed, int32(t.SpeedNormal), 0)
	g.broadcast(0, protocol.CmdSetNitroTank, 100, 0)
}

// shutdown 进程退出：通知所有玩家后关闭
func (g *Game) shutdown() {
	g.log.Infow("disconnecting all players", "players", len(g.sessions))
	for _, s := range g.sessions {
		s.Disconnect()
	}
	g.sessions = nil
	g.publishCount()
}
