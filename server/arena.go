package server

import (
	"context"
	"time"

	"robotarena/protocol"
	"robotarena/sim"
)

// fanout 把仿真事件同时送给中继与事件日志
type fanout []sim.Outbound

func (f fanout) Send(cmd protocol.Command) {
	for _, o := range f {
		o.Send(cmd)
	}
}

// Arena 组装仿真、中继、观察端与日志，管理它们的生命周期
type Arena struct {
	Sim     *sim.Simulation
	Relay   *Relay
	Viewers *ViewerHub
	Metrics *Metrics
	Journal *Journal // 可为空
}

// NewArena 按场景配置创建仿真并接好中继。journal 可为 nil。
func NewArena(cfg sim.Config, journal *Journal) (*Arena, error) {
	a := &Arena{
		Viewers: NewViewerHub(),
		Metrics: &Metrics{},
		Journal: journal,
	}

	d, err := NewDispatcher(map[string]Handler{
		protocol.CmdKeyDown: Typed(func(arg protocol.KeyDownArg) {
			a.Sim.ForwardKeyDown(arg.KeyCode, arg.DurationMs)
		}),
		protocol.CmdKeyUp: Typed(func(arg protocol.KeyUpArg) {
			a.Sim.ForwardKeyUp(arg.KeyCode)
		}),
	})
	if err != nil {
		return nil, err
	}
	a.Relay = NewRelay(d, a.Metrics)
	a.Relay.OnConnect = func(session string) {
		a.Journal.SetSession(session)
		a.Journal.Record("connected", session)
		a.Sim.StartSession()
	}
	a.Relay.OnReplace = func(oldSession string) {
		a.Journal.Record("replaced", oldSession)
	}
	a.Relay.OnDisconnect = func(session string) {
		a.Journal.Record("disconnected", session)
		// 遥控端断开时不能让机器人一直按着键
		a.Sim.ReleaseAll()
	}

	out := fanout{a.Relay}
	if journal != nil {
		out = append(out, journal)
	}
	a.Sim, err = sim.New(cfg, sim.Options{
		Outbound: out,
		Renderer: a.Viewers,
		Logger:   Log.Named("sim"),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Run 驱动帧循环直到 ctx 取消
func (a *Arena) Run(ctx context.Context, interval time.Duration) {
	Log.Infow("simulation started", "interval", interval.String())
	RunTicker(ctx, a.Sim, interval, a.Metrics)
	Log.Infow("simulation stopped", "ticks", a.Sim.TickCount())
}

// Close 断开所有连接并关闭日志
func (a *Arena) Close() error {
	a.Relay.Close()
	a.Viewers.CloseAll()
	return a.Journal.Close()
}
