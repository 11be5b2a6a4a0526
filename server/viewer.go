package server

import (
	"sync"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"

	"robotarena/sim"
)

// viewer 观察端的发送端
type viewer interface {
	ID() string
	Enqueue(b []byte) bool
	Close()
}

// ViewerHub 仿真的渲染目标：把每帧状态广播给所有观察端（msgpack 二进制）
type ViewerHub struct {
	mu      sync.RWMutex
	viewers map[string]viewer
	frames  atomic.Int64
	dropped atomic.Int64
}

func NewViewerHub() *ViewerHub {
	return &ViewerHub{viewers: make(map[string]viewer)}
}

func (h *ViewerHub) Add(v viewer) {
	h.mu.Lock()
	h.viewers[v.ID()] = v
	n := len(h.viewers)
	h.mu.Unlock()
	Log.Infow("viewer joined", "viewer", v.ID(), "viewers", n)
}

func (h *ViewerHub) Remove(v viewer) {
	h.mu.Lock()
	_, ok := h.viewers[v.ID()]
	delete(h.viewers, v.ID())
	n := len(h.viewers)
	h.mu.Unlock()
	if ok {
		Log.Infow("viewer left", "viewer", v.ID(), "viewers", n)
	}
}

func (h *ViewerHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Render 在 Tick 协程中调用；没有观察端时不做编码
func (h *ViewerHub) Render(f sim.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.viewers) == 0 {
		return
	}
	b, err := msgpack.Marshal(f)
	if err != nil {
		Log.Errorw("encode frame", "tick", f.Tick, "err", err)
		return
	}
	h.frames.Add(1)
	for _, v := range h.viewers {
		if !v.Enqueue(b) {
			h.dropped.Add(1)
		}
	}
}

// Stats 已广播帧数与因队列满丢弃的次数
func (h *ViewerHub) Stats() (frames, dropped int64) {
	return h.frames.Load(), h.dropped.Load()
}

// CloseAll 进程退出时断开所有观察端
func (h *ViewerHub) CloseAll() {
	h.mu.Lock()
	vs := h.viewers
	h.viewers = make(map[string]viewer)
	h.mu.Unlock()
	for _, v := range vs {
		v.Close()
	}
}
