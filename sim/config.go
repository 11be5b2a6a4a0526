package sim

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Config 场景配置。构造后只读，运行期不再修改。
type Config struct {
	Floor           FloorConfig            `json:"floor"`
	Robot           RobotConfig            `json:"robot"`
	StaticObstacles []ObstacleConfig       `json:"staticObstacles"`
	MovingObstacles []MovingObstacleConfig `json:"movingObstacles"`
	Sonars          []SonarConfig          `json:"sonars"`
}

// FloorConfig 地面尺寸，四周围墙即场地边界
type FloorConfig struct {
	Width         float64 `json:"width"`
	Depth         float64 `json:"depth"`
	WallHeight    float64 `json:"wallHeight"`
	WallThickness float64 `json:"wallThickness"`
}

// RobotConfig 机器人初始位姿与运动参数
type RobotConfig struct {
	Position  Vec3    `json:"position"`
	Yaw       float64 `json:"yaw"`       // 弧度，0 朝向 -Z
	Radius    float64 `json:"radius"`    // 碰撞球半径
	Speed     float64 `json:"speed"`     // 单位/秒
	TurnSpeed float64 `json:"turnSpeed"` // 弧度/秒
}

type ObstacleConfig struct {
	Name     string `json:"name"`
	Position Vec3   `json:"position"`
	Size     Vec3   `json:"size"`
}

// MovingObstacleConfig 沿 Axis 做正弦往复：origin + axis*amplitude*sin(2πt/period + phase)
type MovingObstacleConfig struct {
	Name      string  `json:"name"`
	Origin    Vec3    `json:"origin"`
	Size      Vec3    `json:"size"`
	Axis      Vec3    `json:"axis"`
	Amplitude float64 `json:"amplitude"`
	Period    float64 `json:"period"` // 秒
	Phase     float64 `json:"phase"`
}

// SonarConfig 声呐相对机器人的安装位置（机器人局部坐标）与探测半径
type SonarConfig struct {
	Name    string  `json:"name"`
	Forward float64 `json:"forward"`
	Right   float64 `json:"right"`
	Range   float64 `json:"range"`
}

// DefaultConfig 默认场景：40x40 场地，两个静态障碍，一个移动障碍，三个声呐
func DefaultConfig() Config {
	return Config{
		Floor: FloorConfig{Width: 40, Depth: 40, WallHeight: 2, WallThickness: 1},
		Robot: RobotConfig{Position: Vec3{Y: 1}, Radius: 1, Speed: 5, TurnSpeed: 1.5},
		StaticObstacles: []ObstacleConfig{
			{Name: "box-1", Position: Vec3{X: 8, Y: 1, Z: -8}, Size: Vec3{X: 3, Y: 2, Z: 3}},
			{Name: "box-2", Position: Vec3{X: -10, Y: 1, Z: 6}, Size: Vec3{X: 4, Y: 2, Z: 2}},
		},
		MovingObstacles: []MovingObstacleConfig{
			{Name: "slider-1", Origin: Vec3{Y: 1, Z: -14}, Size: Vec3{X: 2, Y: 2, Z: 2}, Axis: Vec3{X: 1}, Amplitude: 10, Period: 8},
		},
		Sonars: []SonarConfig{
			{Name: "sonar-front", Forward: 2, Range: 1},
			{Name: "sonar-left", Forward: 0.5, Right: -2, Range: 1},
			{Name: "sonar-right", Forward: 0.5, Right: 2, Range: 1},
		},
	}
}

// LoadConfig 从 JSON 文件读取配置，未出现的字段保留默认值
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read scene config")
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse scene config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate 检查尺寸与名称；碰撞体本身的校验由 Collider.Validate 负责
func (c Config) Validate() error {
	if c.Floor.Width <= 0 || c.Floor.Depth <= 0 || c.Floor.WallHeight <= 0 || c.Floor.WallThickness <= 0 {
		return errors.Errorf("floor dimensions must be positive: %+v", c.Floor)
	}
	if c.Robot.Radius <= 0 {
		return errors.Errorf("robot radius must be positive, got %v", c.Robot.Radius)
	}
	if c.Robot.Speed < 0 || c.Robot.TurnSpeed < 0 {
		return errors.New("robot speeds must not be negative")
	}
	for _, m := range c.MovingObstacles {
		if m.Period <= 0 {
			return errors.Errorf("moving obstacle %q: period must be positive", m.Name)
		}
	}
	for _, s := range c.Sonars {
		if s.Range <= 0 {
			return errors.Errorf("sonar %q: range must be positive", s.Name)
		}
	}
	return nil
}
