package sim

// Camera 透视相机与视口。相机在机器人上方俯视，只用于渲染。
type Camera struct {
	FOV       float64 `json:"fov" msgpack:"fov"`
	Near      float64 `json:"near" msgpack:"near"`
	Far       float64 `json:"far" msgpack:"far"`
	Elevation float64 `json:"elevation" msgpack:"elevation"`
	Width     int     `json:"width" msgpack:"width"`
	Height    int     `json:"height" msgpack:"height"`
	Aspect    float64 `json:"aspect" msgpack:"aspect"`
}

func NewCamera(width, height int) Camera {
	c := Camera{FOV: 60, Near: 1, Far: 100, Elevation: 20, Aspect: 1}
	c.resize(width, height)
	return c
}

// resize 幂等；高度为 0 时保留原宽高比
func (c *Camera) resize(width, height int) {
	c.Width, c.Height = width, height
	if width > 0 && height > 0 {
		c.Aspect = float64(width) / float64(height)
	}
}

// BodyState 单个碰撞体在某一帧的状态
type BodyState struct {
	Name     string `json:"name" msgpack:"name"`
	Role     Role   `json:"role" msgpack:"role"`
	Shape    string `json:"shape" msgpack:"shape"`
	Position Vec3   `json:"position" msgpack:"position"`
	Extents  Vec3   `json:"extents" msgpack:"extents"`
}

// Frame 一帧的渲染输入
type Frame struct {
	Tick     uint64      `json:"tick" msgpack:"tick"`
	Elapsed  float64     `json:"elapsed" msgpack:"elapsed"`
	Camera   Camera      `json:"camera" msgpack:"camera"`
	Player   Pose        `json:"player" msgpack:"player"`
	Velocity Vec3        `json:"velocity" msgpack:"velocity"`
	Bodies   []BodyState `json:"bodies" msgpack:"bodies"`
}

func (s *Simulation) frame(tick uint64, elapsed float64) Frame {
	f := Frame{
		Tick:     tick,
		Elapsed:  elapsed,
		Camera:   s.Camera(),
		Player:   s.player.Pose(),
		Velocity: s.player.Velocity(),
		Bodies:   make([]BodyState, 0, len(s.bodies)),
	}
	for _, b := range s.bodies {
		c := b.Collider()
		f.Bodies = append(f.Bodies, BodyState{
			Name:     b.Name,
			Role:     b.Role,
			Shape:    c.Shape.String(),
			Position: c.Center,
			Extents:  c.Extents(),
		})
	}
	return f
}
