package server

import (
	"sync/atomic"
)

// Metrics 记录仿真循环与中继的关键指标（用于监控与调试）
type Metrics struct {
	TickCount       int64 // Tick 次数
	TotalTickNs     int64 // Tick 累计耗时（纳秒）
	InputsAccepted  int64 // 成功分发的入站命令
	UnknownCommands int64 // 未知命令名
	Malformed       int64 // 无法解码的消息或参数
	OutboundSent    int64 // 已写入发送队列的出站命令
	OutboundDropped int64 // 未连接或队列满而丢弃的出站命令
	Connects        int64
	Replaced        int64 // 新连接顶替旧连接
	Disconnects     int64
}

func (m *Metrics) IncAccepted()        { atomic.AddInt64(&m.InputsAccepted, 1) }
func (m *Metrics) IncUnknown()         { atomic.AddInt64(&m.UnknownCommands, 1) }
func (m *Metrics) IncMalformed()       { atomic.AddInt64(&m.Malformed, 1) }
func (m *Metrics) IncOutboundSent()    { atomic.AddInt64(&m.OutboundSent, 1) }
func (m *Metrics) IncOutboundDropped() { atomic.AddInt64(&m.OutboundDropped, 1) }
func (m *Metrics) IncConnects()        { atomic.AddInt64(&m.Connects, 1) }
func (m *Metrics) IncReplaced()        { atomic.AddInt64(&m.Replaced, 1) }
func (m *Metrics) IncDisconnects()     { atomic.AddInt64(&m.Disconnects, 1) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出；inputsDropped 来自仿真的输入队列
func (m *Metrics) Snapshot(inputsDropped int64) map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":       tick,
		"avg_tick_ms":      avgMs,
		"inputs_accepted":  atomic.LoadInt64(&m.InputsAccepted),
		"inputs_dropped":   inputsDropped,
		"unknown_commands": atomic.LoadInt64(&m.UnknownCommands),
		"malformed":        atomic.LoadInt64(&m.Malformed),
		"outbound_sent":    atomic.LoadInt64(&m.OutboundSent),
		"outbound_dropped": atomic.LoadInt64(&m.OutboundDropped),
		"connects":         atomic.LoadInt64(&m.Connects),
		"replaced":         atomic.LoadInt64(&m.Replaced),
		"disconnects":      atomic.LoadInt64(&m.Disconnects),
	}
}
