package server

import (
	"sync/atomic"
)

// Metrics 记录对局运行期的关键指标（用于监控与调试）
type Metrics struct {
	Accepted        int64 // 接入并登记的连接数
	Rejected        int64 // 因满员/对局中/编号问题被拒绝的连接数
	RecordsIn       int64 // 收到的客户端报文数
	UnknownCommands int64 // 未知命令号
	Crashes         int64
	Wins            int64
	Rounds          int64 // 开局次数
	Resets          int64 // 回到等待阶段的次数
	TickCount       int64
	TotalTickNs     int64
}

func (m *Metrics) IncAccepted()        { atomic.AddInt64(&m.Accepted, 1) }
func (m *Metrics) IncRejected()        { atomic.AddInt64(&m.Rejected, 1) }
func (m *Metrics) IncRecordsIn()       { atomic.AddInt64(&m.RecordsIn, 1) }
func (m *Metrics) IncUnknownCommands() { atomic.AddInt64(&m.UnknownCommands, 1) }
func (m *Metrics) IncCrashes()         { atomic.AddInt64(&m.Crashes, 1) }
func (m *Metrics) IncWins()            { atomic.AddInt64(&m.Wins, 1) }
func (m *Metrics) IncRounds()          { atomic.AddInt64(&m.Rounds, 1) }
func (m *Metrics) IncResets()          { atomic.AddInt64(&m.Resets, 1) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"accepted":         atomic.LoadInt64(&m.Accepted),
		"rejected":         atomic.LoadInt64(&m.Rejected),
		"records_in":       atomic.LoadInt64(&m.RecordsIn),
		"unknown_commands": atomic.LoadInt64(&m.UnknownCommands),
		"crashes":          atomic.LoadInt64(&m.Crashes),
		"wins":             atomic.LoadInt64(&m.Wins),
		"rounds":           atomic.LoadInt64(&m.Rounds),
		"resets":           atomic.LoadInt64(&m.Resets),
		"tick_count":       tick,
		"avg_tick_ms":      avgMs,
	}
}
