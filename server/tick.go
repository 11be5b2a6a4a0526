package server

import (
	"context"
	"time"

	"robotarena/sim"
)

const (
	// FramesPerSecond 仿真推进频率（60 FPS，对应浏览器的动画帧）
	FramesPerSecond = 60
)

// DefaultTickInterval 约 16ms
var DefaultTickInterval = time.Second / FramesPerSecond

// RunTicker 驱动仿真的帧循环（单协程推进世界），ctx 取消时返回
func RunTicker(ctx context.Context, s *sim.Simulation, interval time.Duration, m *Metrics) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 核心循环：处理输入 → 更新世界 → 转发事件 → 渲染
			start := time.Now()
			s.Tick()
			if m != nil {
				m.AddTick(time.Since(start).Nanoseconds())
			}
		}
	}
}
