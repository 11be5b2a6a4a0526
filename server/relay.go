package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"robotarena/protocol"
)

// RelayState 中继连接状态
type RelayState int

const (
	StateListening RelayState = iota
	StateConnected
	StateDisconnected
)

func (s RelayState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "listening"
	}
}

// Peer 一个遥控端连接（WebSocket 或 TCP）。Enqueue 不阻塞，满或已关闭时返回 false。
type Peer interface {
	ID() string
	Codec() protocol.Codec
	Enqueue(b []byte) bool
	Close()
}

// Handler 处理某个入站命令的参数
type Handler func(arg []byte, codec protocol.Codec) error

// Typed 把强类型处理函数包装成 Handler，参数按连接的编码解出
func Typed[T any](fn func(T)) Handler {
	return func(arg []byte, codec protocol.Codec) error {
		var v T
		if err := codec.DecodeArg(arg, &v); err != nil {
			return err
		}
		fn(v)
		return nil
	}
}

// Dispatcher 命令名到处理函数的映射，启动时校验
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher 只接受入站词表中的命令名
func NewDispatcher(handlers map[string]Handler) (*Dispatcher, error) {
	d := &Dispatcher{handlers: make(map[string]Handler, len(handlers))}
	for name, h := range handlers {
		if !protocol.IsInbound(name) {
			return nil, errors.Errorf("handler registered for unknown command %q", name)
		}
		if h == nil {
			return nil, errors.Errorf("nil handler for command %q", name)
		}
		d.handlers[name] = h
	}
	return d, nil
}

// RelayStatus 供管理接口查看
type RelayStatus struct {
	State   string `json:"state"`
	PeerID  string `json:"peerId,omitempty"`
	Session string `json:"session,omitempty"`
	Codec   string `json:"codec,omitempty"`
}

// Relay 单连接的命令中继。新连接到来时替换旧连接，每次连接都是一个新会话。
type Relay struct {
	mu       sync.Mutex
	state    RelayState
	peer     Peer
	session  string
	dispatch *Dispatcher
	metrics  *Metrics

	// 回调都在锁外调用；OnReplace 收到被顶替的会话
	OnConnect    func(session string)
	OnDisconnect func(session string)
	OnReplace    func(oldSession string)
}

func NewRelay(d *Dispatcher, m *Metrics) *Relay {
	if m == nil {
		m = &Metrics{}
	}
	return &Relay{dispatch: d, metrics: m}
}

// Attach 登记新连接；已有连接时关闭旧的
func (r *Relay) Attach(p Peer) string {
	r.mu.Lock()
	old, oldSession := r.peer, r.session
	r.peer = p
	r.state = StateConnected
	r.session = uuid.NewString()
	session := r.session
	r.mu.Unlock()

	r.metrics.IncConnects()
	if old != nil {
		r.metrics.IncReplaced()
		Log.Infow("controller replaced", "old", old.ID(), "new", p.ID())
		old.Close()
		if r.OnReplace != nil {
			r.OnReplace(oldSession)
		}
	}
	Log.Infow("controller connected", "peer", p.ID(), "session", session, "codec", p.Codec().Name())
	if r.OnConnect != nil {
		r.OnConnect(session)
	}
	return session
}

// Detach 连接断开。只处理当前连接，被替换掉的旧连接退出时不影响状态。
func (r *Relay) Detach(p Peer) {
	r.mu.Lock()
	if r.peer != p {
		r.mu.Unlock()
		return
	}
	r.peer = nil
	r.state = StateDisconnected
	session := r.session
	r.mu.Unlock()

	r.metrics.IncDisconnects()
	Log.Infow("controller disconnected", "peer", p.ID(), "session", session)
	if r.OnDisconnect != nil {
		r.OnDisconnect(session)
	}
}

// Receive 解码一条入站消息并分发。格式错误或未知命令只记录并丢弃，连接保持。
func (r *Relay) Receive(p Peer, codec protocol.Codec, data []byte) {
	r.mu.Lock()
	current := r.peer == p
	r.mu.Unlock()
	if !current {
		return
	}

	in, err := codec.Decode(data)
	if err != nil {
		r.metrics.IncMalformed()
		Log.Warnw("malformed command", "peer", p.ID(), "err", err)
		return
	}
	h, ok := r.dispatch.handlers[in.Name]
	if !ok {
		r.metrics.IncUnknown()
		Log.Warnw("unknown command", "peer", p.ID(), "name", in.Name)
		return
	}
	if err := h(in.Arg, codec); err != nil {
		r.metrics.IncMalformed()
		Log.Warnw("bad command arg", "peer", p.ID(), "name", in.Name, "err", err)
		return
	}
	r.metrics.IncAccepted()
}

// Send 发给当前连接；未连接时直接丢弃，仿真不受影响
func (r *Relay) Send(cmd protocol.Command) {
	r.mu.Lock()
	p := r.peer
	r.mu.Unlock()
	if p == nil {
		r.metrics.IncOutboundDropped()
		return
	}
	b, err := p.Codec().Encode(cmd)
	if err != nil {
		Log.Errorw("encode outbound command", "name", cmd.Name, "err", err)
		return
	}
	if !p.Enqueue(b) {
		r.metrics.IncOutboundDropped()
		return
	}
	r.metrics.IncOutboundSent()
}

func (r *Relay) State() RelayState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Relay) Status() RelayStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := RelayStatus{State: r.state.String()}
	if r.peer != nil {
		st.PeerID = r.peer.ID()
		st.Session = r.session
		st.Codec = r.peer.Codec().Name()
	}
	return st
}

// Close 关闭当前连接（进程退出时）
func (r *Relay) Close() {
	r.mu.Lock()
	p := r.peer
	r.mu.Unlock()
	if p != nil {
		p.Close()
		r.Detach(p)
	}
}
