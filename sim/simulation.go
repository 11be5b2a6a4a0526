package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"robotarena/protocol"
)

// Outbound 仿真事件的出口（由中继服务器实现）
type Outbound interface {
	Send(cmd protocol.Command)
}

// Renderer 每帧渲染一次；渲染结果是本地副作用，不进入协议
type Renderer interface {
	Render(f Frame)
}

// Options 仿真的外部协作者，均可为空
type Options struct {
	Outbound    Outbound
	Renderer    Renderer
	Clock       func() time.Duration // 自仿真开始以来的时长
	Logger      *zap.SugaredLogger
	InputBuffer int
}

type inputKind int

const (
	inputKeyDown inputKind = iota
	inputKeyUp
	inputReleaseAll
	inputNewSession
)

// input 网络侧到仿真侧的单向交接，Tick 开始时统一应用
type input struct {
	kind       inputKind
	keyCode    int
	durationMs float64
}

// Simulation 拥有有序的主体列表、碰撞管理器、时钟与渲染目标。
// Tick 同一时间最多一个在执行；其余入口只往输入队列里投递。
type Simulation struct {
	cfg        Config
	subjects   []Subject
	bodies     []*Body
	player     *Player
	controls   *PlayerControls
	collisions *CollisionManager

	clock    func() time.Duration
	out      Outbound
	renderer Renderer
	log      *zap.SugaredLogger

	inputs  chan input
	dropped atomic.Int64
	ticks   atomic.Uint64

	readyPending bool

	camMu  sync.Mutex
	camera Camera
}

// New 按固定顺序构造场景：灯光 → 地面 → 静态障碍 → 移动障碍 → 声呐 → 机器人 → 控制
func New(cfg Config, opts Options) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	floor := newFloor(cfg.Floor)
	statics := newStaticObstacles(cfg.StaticObstacles)
	movers := newMovingObstacles(cfg.MovingObstacles)
	player := newPlayer(cfg.Robot)
	sonars := newSonars(cfg.Sonars, player)

	var bodies []*Body
	bodies = append(bodies, floor.Bodies()...)
	bodies = append(bodies, statics.Bodies()...)
	bodies = append(bodies, movers.Bodies()...)
	bodies = append(bodies, sonars.Bodies()...)
	bodies = append(bodies, player.Bodies()...)

	cm, err := NewCollisionManager(bodies)
	if err != nil {
		return nil, err
	}
	controls := newPlayerControls(player, cm, cfg.Robot)

	s := &Simulation{
		cfg:          cfg,
		subjects:     []Subject{GeneralLights{}, floor, statics, movers, sonars, player, controls},
		bodies:       bodies,
		player:       player,
		controls:     controls,
		collisions:   cm,
		clock:        opts.Clock,
		out:          opts.Outbound,
		renderer:     opts.Renderer,
		log:          opts.Logger,
		readyPending: true,
		camera:       NewCamera(0, 0),
	}
	if s.clock == nil {
		start := time.Now()
		s.clock = func() time.Duration { return time.Since(start) }
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	size := opts.InputBuffer
	if size <= 0 {
		size = 256
	}
	s.inputs = make(chan input, size)
	return s, nil
}

// Tick 一帧：应用输入 → 读取总时长 → 按序更新 → 碰撞检测 → 转发事件 → 渲染
func (s *Simulation) Tick() {
	s.processInputs()
	elapsed := s.clock().Seconds()

	if s.readyPending {
		s.readyPending = false
		s.send(protocol.Command{Name: protocol.EvtWebpageReady})
	}
	for _, sub := range s.subjects {
		sub.Update(elapsed)
	}
	for _, e := range s.collisions.CheckAll() {
		s.log.Debugw("overlap entered", "kind", e.Kind, "subject", e.Subject, "object", e.Object)
		s.send(e.Command())
	}

	n := s.ticks.Add(1)
	if s.renderer != nil {
		s.renderer.Render(s.frame(n, elapsed))
	}
}

// ForwardKeyDown 投递按下事件，下一帧开始时生效
func (s *Simulation) ForwardKeyDown(keyCode int, durationMs float64) {
	s.enqueue(input{kind: inputKeyDown, keyCode: keyCode, durationMs: durationMs})
}

// ForwardKeyUp 投递抬起事件，下一帧开始时生效
func (s *Simulation) ForwardKeyUp(keyCode int) {
	s.enqueue(input{kind: inputKeyUp, keyCode: keyCode})
}

// ReleaseAll 下一帧开始时所有轴回到 Idle
func (s *Simulation) ReleaseAll() {
	s.enqueue(input{kind: inputReleaseAll})
}

// StartSession 新的遥控会话：释放所有轴，下一帧重新发送 webpage-ready
func (s *Simulation) StartSession() {
	s.enqueue(input{kind: inputNewSession})
}

// Resize 只影响相机与视口
func (s *Simulation) Resize(width, height int) {
	s.camMu.Lock()
	s.camera.resize(width, height)
	s.camMu.Unlock()
}

func (s *Simulation) Camera() Camera {
	s.camMu.Lock()
	defer s.camMu.Unlock()
	return s.camera
}

// PlayerPose 只应在 Tick 所在协程或循环停止后调用
func (s *Simulation) PlayerPose() Pose { return s.player.Pose() }

func (s *Simulation) Controls() *PlayerControls { return s.controls }

func (s *Simulation) Config() Config { return s.cfg }

func (s *Simulation) TickCount() uint64 { return s.ticks.Load() }

// InputsDropped 因输入队列已满被丢弃的事件数
func (s *Simulation) InputsDropped() int64 { return s.dropped.Load() }

// Body 按名称查找碰撞体
func (s *Simulation) Body(name string) *Body {
	for _, b := range s.bodies {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// enqueue 不阻塞：队列满时丢弃，保证网络读协程不被 Tick 拖住
func (s *Simulation) enqueue(in input) {
	select {
	case s.inputs <- in:
	default:
		s.dropped.Add(1)
		s.log.Warnw("input queue full, dropping", "kind", in.kind, "keyCode", in.keyCode)
	}
}

// processInputs 非阻塞地取空输入队列
func (s *Simulation) processInputs() {
	for {
		select {
		case in := <-s.inputs:
			switch in.kind {
			case inputKeyDown:
				s.controls.OnKeyDown(in.keyCode, in.durationMs)
			case inputKeyUp:
				s.controls.OnKeyUp(in.keyCode)
			case inputReleaseAll:
				s.controls.ReleaseAll()
			case inputNewSession:
				s.controls.ReleaseAll()
				s.readyPending = true
			}
		default:
			return
		}
	}
}

func (s *Simulation) send(cmd protocol.Command) {
	if s.out != nil {
		s.out.Send(cmd)
	}
}
