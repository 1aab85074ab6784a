package server

import (
	"time"

	"lightcycle/protocol"
)

// PlayerID 玩家编号：线上是一个 int16（单个字符或数字），0 表示尚未报号
type PlayerID int16

// NoPlayer 尚未完成 hello 的会话
const NoPlayer PlayerID = 0

func (id PlayerID) String() string { return protocol.FormatPlayerID(int16(id)) }

// Cell 棋盘上的一个格子
type Cell struct {
	X, Y int32
}

// Player 会话上的玩家属性（服务端权威状态，仅由 Game 所在协程修改）
type Player struct {
	ID       PlayerID
	X, Y     int32
	Trail    []Cell // 走过的所有格子，移除时据此清理地图
	Crashed  bool
	Speed    float64 // 每步延迟（毫秒），越小越快
	Nitro    bool
	NitroAt  time.Time
	Tank     int // 氮气储量 0..100
	Width    int32
	Height   int32
	LastSeen time.Time
}

func newPlayer(t Tuning) Player {
	return Player{Speed: t.SpeedNormal, Tank: 100}
}

// reset 新一局开始时恢复初始速度与储量（编号与终端尺寸保留）
func (p *Player) reset(t Tuning) {
	p.Trail = nil
	p.Crashed = false
	p.Speed = t.SpeedNormal
	p.Nitro = false
	p.NitroAt = time.Time{}
	p.Tank = 100
}
