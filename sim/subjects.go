package sim

import (
	"fmt"
	"math"
)

// Role 场景主体的角色标签
type Role string

const (
	RoleLight          Role = "light"
	RoleFloor          Role = "floor"
	RoleStaticObstacle Role = "staticObstacle"
	RoleMovingObstacle Role = "movingObstacle"
	RoleSonar          Role = "sonar"
	RolePlayer         Role = "player"
	RoleControls       Role = "controls"
)

// Subject 场景主体：每帧按固定顺序调用 Update，只允许修改自身变换
type Subject interface {
	Role() Role
	Update(elapsed float64)
}

// Body 可碰撞的单元。Name 在整个场景内唯一，直接作为事件参数。
type Body struct {
	Name  string
	Role  Role
	shape Collider
}

func newBody(name string, role Role, c Collider) *Body {
	return &Body{Name: name, Role: role, shape: c}
}

func (b *Body) Collider() Collider { return b.shape }
func (b *Body) Position() Vec3     { return b.shape.Center }

func (b *Body) moveTo(p Vec3) { b.shape.Center = p }

// Pose 机器人位姿
type Pose struct {
	Position Vec3    `json:"position" msgpack:"position"`
	Yaw      float64 `json:"yaw" msgpack:"yaw"`
}

// heading 由偏航角得到前向与右向单位向量（yaw=0 朝 -Z，右手为 +X）
func heading(yaw float64) (forward, right Vec3) {
	sin, cos := math.Sincos(yaw)
	return Vec3{X: -sin, Z: -cos}, Vec3{X: cos, Z: -sin}
}

// GeneralLights 环境光，无碰撞体
type GeneralLights struct{}

func (GeneralLights) Role() Role     { return RoleLight }
func (GeneralLights) Update(float64) {}

// Floor 地面与四面围墙，围墙即场地边界
type Floor struct {
	Width, Depth float64
	walls        []*Body
}

func newFloor(cfg FloorConfig) *Floor {
	w, d, h, t := cfg.Width, cfg.Depth, cfg.WallHeight, cfg.WallThickness
	y := h / 2
	return &Floor{
		Width: w,
		Depth: d,
		walls: []*Body{
			newBody("wall-north", RoleFloor, Box(Vec3{Y: y, Z: -(d + t) / 2}, Vec3{X: w + 2*t, Y: h, Z: t})),
			newBody("wall-south", RoleFloor, Box(Vec3{Y: y, Z: (d + t) / 2}, Vec3{X: w + 2*t, Y: h, Z: t})),
			newBody("wall-west", RoleFloor, Box(Vec3{X: -(w + t) / 2, Y: y}, Vec3{X: t, Y: h, Z: d})),
			newBody("wall-east", RoleFloor, Box(Vec3{X: (w + t) / 2, Y: y}, Vec3{X: t, Y: h, Z: d})),
		},
	}
}

func (f *Floor) Role() Role      { return RoleFloor }
func (f *Floor) Update(float64)  {}
func (f *Floor) Bodies() []*Body { return f.walls }

// StaticObstacleSet 静态障碍，位置在构造后不变
type StaticObstacleSet struct {
	bodies []*Body
}

func newStaticObstacles(cfgs []ObstacleConfig) *StaticObstacleSet {
	s := &StaticObstacleSet{}
	for i, c := range cfgs {
		s.bodies = append(s.bodies, newBody(nameOr(c.Name, "static", i), RoleStaticObstacle, Box(c.Position, c.Size)))
	}
	return s
}

func (s *StaticObstacleSet) Role() Role      { return RoleStaticObstacle }
func (s *StaticObstacleSet) Update(float64)  {}
func (s *StaticObstacleSet) Bodies() []*Body { return s.bodies }

// MovingObstacleSet 移动障碍。位置只由会话开始以来的时间决定，不累加帧间增量，可重放。
type MovingObstacleSet struct {
	cfgs   []MovingObstacleConfig
	bodies []*Body
}

func newMovingObstacles(cfgs []MovingObstacleConfig) *MovingObstacleSet {
	m := &MovingObstacleSet{cfgs: cfgs}
	for i, c := range cfgs {
		m.bodies = append(m.bodies, newBody(nameOr(c.Name, "moving", i), RoleMovingObstacle, Box(c.Origin, c.Size)))
	}
	m.Update(0)
	return m
}

func (m *MovingObstacleSet) Role() Role      { return RoleMovingObstacle }
func (m *MovingObstacleSet) Bodies() []*Body { return m.bodies }

func (m *MovingObstacleSet) Update(elapsed float64) {
	for i, c := range m.cfgs {
		m.bodies[i].moveTo(obstacleAt(c, elapsed))
	}
}

func obstacleAt(c MovingObstacleConfig, t float64) Vec3 {
	s := math.Sin(2*math.Pi*t/c.Period + c.Phase)
	return c.Origin.Add(c.Axis.Scale(c.Amplitude * s))
}

// Sonars 声呐阵列，跟随机器人上一帧提交的位姿
type Sonars struct {
	player *Player
	cfgs   []SonarConfig
	bodies []*Body
}

func newSonars(cfgs []SonarConfig, player *Player) *Sonars {
	s := &Sonars{player: player, cfgs: cfgs}
	for i, c := range cfgs {
		s.bodies = append(s.bodies, newBody(nameOr(c.Name, "sonar", i), RoleSonar, Sphere(Vec3{}, c.Range)))
	}
	s.Update(0)
	return s
}

func (s *Sonars) Role() Role      { return RoleSonar }
func (s *Sonars) Bodies() []*Body { return s.bodies }

func (s *Sonars) Update(float64) {
	pose := s.player.Pose()
	fwd, right := heading(pose.Yaw)
	for i, c := range s.cfgs {
		s.bodies[i].moveTo(pose.Position.Add(fwd.Scale(c.Forward)).Add(right.Scale(c.Right)))
	}
}

// Player 机器人。位移由 PlayerControls 经碰撞检查后提交。
type Player struct {
	body     *Body
	yaw      float64
	velocity Vec3
	last     Vec3
	lastT    float64
}

func newPlayer(cfg RobotConfig) *Player {
	p := &Player{body: newBody("robot", RolePlayer, Sphere(cfg.Position, cfg.Radius)), yaw: cfg.Yaw}
	p.last = cfg.Position
	return p
}

func (p *Player) Role() Role      { return RolePlayer }
func (p *Player) Bodies() []*Body { return []*Body{p.body} }
func (p *Player) Body() *Body     { return p.body }

func (p *Player) Pose() Pose {
	return Pose{Position: p.body.Position(), Yaw: p.yaw}
}

// Velocity 上一帧提交位移对应的速度，仅用于画面输出
func (p *Player) Velocity() Vec3 { return p.velocity }

// Update 根据上一帧提交的位移刷新速度
func (p *Player) Update(elapsed float64) {
	pos := p.body.Position()
	if dt := elapsed - p.lastT; dt > 0 {
		p.velocity = pos.Sub(p.last).Scale(1 / dt)
	}
	p.last, p.lastT = pos, elapsed
}

func (p *Player) commit(pos Vec3, yaw float64) {
	p.body.moveTo(pos)
	p.yaw = math.Remainder(yaw, 2*math.Pi)
}

func nameOr(name, prefix string, i int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s-%d", prefix, i+1)
}
