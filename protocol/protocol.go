// Package protocol 定义光轮游戏的定长二进制报文（服务端↔客户端两个方向）
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Command 报文命令号
type Command int16

// 服务端 → 客户端
const (
	CmdHello        Command = 0  // 请客户端报上玩家编号
	CmdCountdown    Command = 1  // N 秒后开局：PlayerID=秒数，X/Y=棋盘宽高
	CmdPosition     Command = 2  // 玩家位置更新
	CmdCrashed      Command = 3  // 玩家撞毁
	CmdWon          Command = 4  // 玩家获胜
	CmdRemoved      Command = 5  // 玩家轨迹从地图移除
	CmdDisconnect   Command = 9  // 服务端主动断开
	CmdServerFull   Command = 10 // 人数已满
	CmdGameRunning  Command = 11 // 对局进行中
	CmdIDTaken      Command = 12 // 编号已被占用
	CmdIDInvalid    Command = 13 // 编号非法
	CmdSetSpeed     Command = 20 // 当前速度（每步毫秒）
	CmdSetNitroTank Command = 21 // 氮气储量
)

// 客户端 → 服务端（与上面共享号段：0 hello，2 位置，21 开启氮气）
const (
	CmdClientHello    Command = 0
	CmdClientPosition Command = 2
	CmdClientNitro    Command = 21
)

func (c Command) String() string {
	switch c {
	case CmdHello:
		return "hello"
	case CmdCountdown:
		return "countdown"
	case CmdPosition:
		return "position"
	case CmdCrashed:
		return "crashed"
	case CmdWon:
		return "won"
	case CmdRemoved:
		return "removed"
	case CmdDisconnect:
		return "disconnect"
	case CmdServerFull:
		return "server-full"
	case CmdGameRunning:
		return "game-running"
	case CmdIDTaken:
		return "id-taken"
	case CmdIDInvalid:
		return "id-invalid"
	case CmdSetSpeed:
		return "speed"
	case CmdSetNitroTank:
		return "nitro"
	default:
		return fmt.Sprintf("cmd(%d)", int16(c))
	}
}

// 报文长度固定，无分隔符、无长度前缀
const (
	ToPlayerSize = 2 + 2 + 4 + 4 + 4 + 1 + 2 // 19
	ToServerSize = 2 + 4 + 4 + 2             // 12
)

var order = binary.LittleEndian

// ToPlayer 服务端发往客户端的报文；Speed/Nitro 始终是接收方自己的当前值
type ToPlayer struct {
	PlayerID int16
	Command  Command
	X        int32
	Y        int32
	Speed    uint32
	Nitro    uint8
	Misc     int16
}

// ToServer 客户端发往服务端的报文
type ToServer struct {
	Command Command
	X       int32
	Y       int32
	Misc    int16
}

// AppendToPlayer 将报文编码后追加到 dst
func AppendToPlayer(dst []byte, p ToPlayer) []byte {
	var b [ToPlayerSize]byte
	order.PutUint16(b[0:], uint16(p.PlayerID))
	order.PutUint16(b[2:], uint16(p.Command))
	order.PutUint32(b[4:], uint32(p.X))
	order.PutUint32(b[8:], uint32(p.Y))
	order.PutUint32(b[12:], p.Speed)
	b[16] = p.Nitro
	order.PutUint16(b[17:], uint16(p.Misc))
	return append(dst, b[:]...)
}

// AppendToServer 将报文编码后追加到 dst
func AppendToServer(dst []byte, p ToServer) []byte {
	var b [ToServerSize]byte
	order.PutUint16(b[0:], uint16(p.Command))
	order.PutUint32(b[2:], uint32(p.X))
	order.PutUint32(b[6:], uint32(p.Y))
	order.PutUint16(b[10:], uint16(p.Misc))
	return append(dst, b[:]...)
}

// DecodeToPlayer 从 buf 头部解出一条报文；字节不足时 ok=false（等待更多数据，不是错误）
func DecodeToPlayer(buf []byte) (p ToPlayer, ok bool) {
	if len(buf) < ToPlayerSize {
		return ToPlayer{}, false
	}
	p.PlayerID = int16(order.Uint16(buf[0:]))
	p.Command = Command(order.Uint16(buf[2:]))
	p.X = int32(order.Uint32(buf[4:]))
	p.Y = int32(order.Uint32(buf[8:]))
	p.Speed = order.Uint32(buf[12:])
	p.Nitro = buf[16]
	p.Misc = int16(order.Uint16(buf[17:]))
	return p, true
}

// DecodeToServer 从 buf 头部解出一条报文；字节不足时 ok=false
func DecodeToServer(buf []byte) (p ToServer, ok bool) {
	if len(buf) < ToServerSize {
		return ToServer{}, false
	}
	p.Command = Command(order.Uint16(buf[0:]))
	p.X = int32(order.Uint32(buf[2:]))
	p.Y = int32(order.Uint32(buf[6:]))
	p.Misc = int16(order.Uint16(buf[10:]))
	return p, true
}

// SplitToServer 按到达顺序解出所有完整报文，返回剩余的不完整尾部
func SplitToServer(buf []byte) ([]ToServer, []byte) {
	var out []ToServer
	for {
		p, ok := DecodeToServer(buf)
		if !ok {
			return out, buf
		}
		out = append(out, p)
		buf = buf[ToServerSize:]
	}
}

// SplitToPlayer 同 SplitToServer，用于客户端方向
func SplitToPlayer(buf []byte) ([]ToPlayer, []byte) {
	var out []ToPlayer
	for {
		p, ok := DecodeToPlayer(buf)
		if !ok {
			return out, buf
		}
		out = append(out, p)
		buf = buf[ToPlayerSize:]
	}
}
