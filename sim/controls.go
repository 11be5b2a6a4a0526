package sim

import "math"

// Axis 控制轴：前后、左右平移、旋转，各轴相互独立
type Axis int

const (
	AxisForward Axis = iota
	AxisStrafe
	AxisRotate
	numAxes
)

// maxHoldPerFrameMs 单帧每轴最多折算的按住时长，网络卡顿后积压的时长超出部分丢弃
const maxHoldPerFrameMs = 1000

// binding 按键到轴与方向的映射
type binding struct {
	axis Axis
	dir  float64
}

// 键码沿用浏览器 keyCode：W/S/A/D/Q/E 与方向键
var keyBindings = map[int]binding{
	87: {AxisForward, 1},  // W
	38: {AxisForward, 1},  // ↑
	83: {AxisForward, -1}, // S
	40: {AxisForward, -1}, // ↓
	65: {AxisStrafe, -1},  // A
	68: {AxisStrafe, 1},   // D
	81: {AxisRotate, 1},   // Q
	37: {AxisRotate, 1},   // ←
	69: {AxisRotate, -1},  // E
	39: {AxisRotate, -1},  // →
}

// axisState 单轴状态机 {Idle, Held}。同一轴只有最近按下的键生效。
type axisState struct {
	held      bool
	key       int
	dir       float64
	appliedMs float64 // 已经折算成位移的按住时长
	pendingMs float64 // 本帧待折算的按住时长
}

// PlayerControls 把离散的按键事件转换为机器人位移，提交前询问 CollisionManager
type PlayerControls struct {
	player     *Player
	collisions *CollisionManager
	speed      float64
	turnSpeed  float64
	axes       [numAxes]axisState
}

func newPlayerControls(p *Player, cm *CollisionManager, cfg RobotConfig) *PlayerControls {
	return &PlayerControls{player: p, collisions: cm, speed: cfg.Speed, turnSpeed: cfg.TurnSpeed}
}

func (c *PlayerControls) Role() Role { return RoleControls }

// OnKeyDown 轴进入 Held；duration 为控制端累计的按住时长，只折算尚未应用的部分。
// 累计值变小说明控制端重新计时，整段都算新的。非有限值直接忽略。
func (c *PlayerControls) OnKeyDown(keyCode int, durationMs float64) {
	b, ok := keyBindings[keyCode]
	if !ok || math.IsNaN(durationMs) || math.IsInf(durationMs, 0) {
		return
	}
	if durationMs < 0 {
		durationMs = 0
	}
	a := &c.axes[b.axis]
	if !a.held || a.key != keyCode {
		*a = axisState{held: true, key: keyCode, dir: b.dir}
	}
	delta := durationMs - a.appliedMs
	if delta < 0 {
		delta = durationMs
	}
	a.pendingMs += delta
	a.appliedMs = durationMs
}

// OnKeyUp 轴回到 Idle，未应用的时长一并丢弃。抬起的不是当前占用该轴的键时忽略。
func (c *PlayerControls) OnKeyUp(keyCode int) {
	b, ok := keyBindings[keyCode]
	if !ok {
		return
	}
	if a := &c.axes[b.axis]; a.held && a.key == keyCode {
		*a = axisState{}
	}
}

// ReleaseAll 所有轴回到 Idle（连接断开时使用）
func (c *PlayerControls) ReleaseAll() {
	c.axes = [numAxes]axisState{}
}

// Held 某轴是否处于按住状态
func (c *PlayerControls) Held(a Axis) bool { return c.axes[a].held }

// Update 合成各轴的候选位移。单轴位移会碰撞的，该轴本帧清零；
// 剩余合成位移仍会碰撞则整体放弃，不做沿墙滑动。
func (c *PlayerControls) Update(float64) {
	pose := c.player.Pose()
	fwd, right := heading(pose.Yaw)

	var step [numAxes]float64
	for i := range c.axes {
		a := &c.axes[i]
		if a.held {
			step[i] = a.dir * math.Min(a.pendingMs, maxHoldPerFrameMs) / 1000
		}
		a.pendingMs = 0
	}

	move := fwd.Scale(step[AxisForward] * c.speed)
	strafe := right.Scale(step[AxisStrafe] * c.speed)
	yaw := pose.Yaw + step[AxisRotate]*c.turnSpeed

	body := c.player.Body()
	if move.Len2() > 0 && c.blocked(body, pose.Position.Add(move)) {
		move = Vec3{}
	}
	if strafe.Len2() > 0 && c.blocked(body, pose.Position.Add(strafe)) {
		strafe = Vec3{}
	}
	target := pose.Position.Add(move).Add(strafe)
	if target != pose.Position && c.blocked(body, target) {
		target = pose.Position
	}
	c.player.commit(target, yaw)
}

// blocked 沿途被挡时把阻挡体记给 CollisionManager，本帧由 CheckAll 报告
func (c *PlayerControls) blocked(body *Body, target Vec3) bool {
	o, hit := c.collisions.Blocker(body, target)
	if o != nil {
		c.collisions.Block(body, o)
	}
	return hit
}
