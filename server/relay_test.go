package server

import (
	"sync"
	"sync/atomic"
	"testing"

	"robotarena/protocol"
)

// fakePeer 记录写入的消息；full 为 true 时模拟发送队列已满
type fakePeer struct {
	id    string
	codec protocol.Codec

	mu     sync.Mutex
	sent   [][]byte
	full   bool
	closed bool
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id, codec: protocol.JSON}
}

func (p *fakePeer) ID() string            { return p.id }
func (p *fakePeer) Codec() protocol.Codec { return p.codec }

func (p *fakePeer) Enqueue(b []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.full {
		return false
	}
	p.sent = append(p.sent, b)
	return true
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *fakePeer) messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, b := range p.sent {
		out[i] = string(b)
	}
	return out
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type keyLog struct {
	mu    sync.Mutex
	downs []protocol.KeyDownArg
	ups   []protocol.KeyUpArg
}

func newTestRelay(t *testing.T) (*Relay, *keyLog) {
	t.Helper()
	keys := &keyLog{}
	d, err := NewDispatcher(map[string]Handler{
		protocol.CmdKeyDown: Typed(func(a protocol.KeyDownArg) {
			keys.mu.Lock()
			keys.downs = append(keys.downs, a)
			keys.mu.Unlock()
		}),
		protocol.CmdKeyUp: Typed(func(a protocol.KeyUpArg) {
			keys.mu.Lock()
			keys.ups = append(keys.ups, a)
			keys.mu.Unlock()
		}),
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return NewRelay(d, &Metrics{}), keys
}

func TestRelaySendWhileDisconnected(t *testing.T) {
	r, _ := newTestRelay(t)
	if r.State() != StateListening {
		t.Fatalf("initial state = %s", r.State())
	}
	r.Send(protocol.Command{Name: protocol.EvtCollision, Arg: "box-1"})
	r.Send(protocol.Command{Name: protocol.EvtWebpageReady})
	if got := atomic.LoadInt64(&r.metrics.OutboundDropped); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}

	p := newFakePeer("a")
	r.Attach(p)
	r.Detach(p)
	r.Send(protocol.Command{Name: protocol.EvtCollision, Arg: "box-1"})
	if r.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", r.State())
	}
	if len(p.messages()) != 0 {
		t.Errorf("nothing should reach a detached peer, got %v", p.messages())
	}
}

func TestRelaySendEncodesWithPeerCodec(t *testing.T) {
	r, _ := newTestRelay(t)
	p := newFakePeer("a")
	r.Attach(p)

	r.Send(protocol.Command{Name: protocol.EvtWebpageReady})
	r.Send(protocol.Command{Name: protocol.EvtCollision, Arg: "wall-north"})

	want := []string{`{"name":"webpage-ready"}`, `{"name":"collision","arg":"wall-north"}`}
	got := p.messages()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %s, want %s", i, got[i], want[i])
		}
	}
	if n := atomic.LoadInt64(&r.metrics.OutboundSent); n != 2 {
		t.Errorf("sent = %d", n)
	}
}

func TestRelaySendQueueFull(t *testing.T) {
	r, _ := newTestRelay(t)
	p := newFakePeer("a")
	p.full = true
	r.Attach(p)

	r.Send(protocol.Command{Name: protocol.EvtWebpageReady})
	if n := atomic.LoadInt64(&r.metrics.OutboundDropped); n != 1 {
		t.Errorf("dropped = %d, want 1", n)
	}
	if r.State() != StateConnected {
		t.Error("a full queue must not disconnect the peer")
	}
}

func TestRelayReceiveDispatches(t *testing.T) {
	r, keys := newTestRelay(t)
	p := newFakePeer("a")
	r.Attach(p)

	r.Receive(p, protocol.JSON, []byte(`{"name":"keyDown","arg":{"keyCode":87,"durationMs":100}}`))
	r.Receive(p, protocol.JSON, []byte(`{"name":"keyUp","arg":{"keyCode":87}}`))

	keys.mu.Lock()
	defer keys.mu.Unlock()
	if len(keys.downs) != 1 || keys.downs[0].KeyCode != 87 || keys.downs[0].DurationMs != 100 {
		t.Errorf("keyDown not dispatched: %+v", keys.downs)
	}
	if len(keys.ups) != 1 || keys.ups[0].KeyCode != 87 {
		t.Errorf("keyUp not dispatched: %+v", keys.ups)
	}
	if n := atomic.LoadInt64(&r.metrics.InputsAccepted); n != 2 {
		t.Errorf("accepted = %d", n)
	}
}

func TestRelayReceiveDropsBadInput(t *testing.T) {
	r, keys := newTestRelay(t)
	p := newFakePeer("a")
	r.Attach(p)

	r.Receive(p, protocol.JSON, []byte(`{"name":"jump","arg":{}}`))
	r.Receive(p, protocol.JSON, []byte(`{"name":"webpage-ready"}`))
	r.Receive(p, protocol.JSON, []byte(`{{{`))
	r.Receive(p, protocol.JSON, []byte(`{"name":"keyDown","arg":"fast"}`))

	if n := atomic.LoadInt64(&r.metrics.UnknownCommands); n != 2 {
		t.Errorf("unknown = %d, want 2", n)
	}
	if n := atomic.LoadInt64(&r.metrics.Malformed); n != 2 {
		t.Errorf("malformed = %d, want 2", n)
	}
	if len(keys.downs) != 0 {
		t.Errorf("bad input reached handlers: %+v", keys.downs)
	}
	if r.State() != StateConnected || p.isClosed() {
		t.Error("bad input must not drop the connection")
	}
}

func TestRelayReplacesPeer(t *testing.T) {
	r, keys := newTestRelay(t)
	var connects, disconnects, replaced []string
	r.OnConnect = func(s string) { connects = append(connects, s) }
	r.OnDisconnect = func(s string) { disconnects = append(disconnects, s) }
	r.OnReplace = func(s string) { replaced = append(replaced, s) }

	a, b := newFakePeer("a"), newFakePeer("b")
	sa := r.Attach(a)
	sb := r.Attach(b)

	if sa == sb {
		t.Error("each connection should start a new session")
	}
	if len(replaced) != 1 || replaced[0] != sa {
		t.Errorf("replaced sessions = %v, want [%s]", replaced, sa)
	}
	if !a.isClosed() {
		t.Error("replaced peer should be closed")
	}
	if st := r.Status(); st.PeerID != "b" || st.Session != sb || st.State != "connected" {
		t.Errorf("status = %+v", st)
	}

	// 旧连接退出与残留消息都不影响新连接
	r.Detach(a)
	r.Receive(a, protocol.JSON, []byte(`{"name":"keyUp","arg":{"keyCode":87}}`))
	if r.State() != StateConnected {
		t.Error("detaching the replaced peer must not disconnect")
	}
	if len(keys.ups) != 0 {
		t.Error("replaced peer input should be ignored")
	}

	r.Send(protocol.Command{Name: protocol.EvtWebpageReady})
	if len(b.messages()) != 1 || len(a.messages()) != 0 {
		t.Errorf("a=%v b=%v", a.messages(), b.messages())
	}

	r.Detach(b)
	if len(connects) != 2 || len(disconnects) != 1 || disconnects[0] != sb {
		t.Errorf("connects=%v disconnects=%v", connects, disconnects)
	}
	if n := atomic.LoadInt64(&r.metrics.Replaced); n != 1 {
		t.Errorf("replaced = %d", n)
	}
}

func TestNewDispatcherValidates(t *testing.T) {
	noop := Typed(func(protocol.KeyUpArg) {})
	if _, err := NewDispatcher(map[string]Handler{"jump": noop}); err == nil {
		t.Error("unknown command name should be rejected")
	}
	if _, err := NewDispatcher(map[string]Handler{protocol.EvtCollision: noop}); err == nil {
		t.Error("outbound name should be rejected")
	}
	if _, err := NewDispatcher(map[string]Handler{protocol.CmdKeyUp: nil}); err == nil {
		t.Error("nil handler should be rejected")
	}
	if _, err := NewDispatcher(map[string]Handler{protocol.CmdKeyUp: noop}); err != nil {
		t.Errorf("valid table rejected: %v", err)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := &Metrics{}
	m.AddTick(2e6)
	m.AddTick(4e6)
	m.IncConnects()
	snap := m.Snapshot(5)
	if snap["tick_count"].(int64) != 2 {
		t.Errorf("tick_count = %v", snap["tick_count"])
	}
	if snap["avg_tick_ms"].(float64) != 3 {
		t.Errorf("avg_tick_ms = %v", snap["avg_tick_ms"])
	}
	if snap["inputs_dropped"].(int64) != 5 || snap["connects"].(int64) != 1 {
		t.Errorf("snapshot = %v", snap)
	}
}
