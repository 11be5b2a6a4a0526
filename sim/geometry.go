package sim

import "github.com/pkg/errors"

// Vec3 世界坐标（Y 轴朝上，机器人在 XZ 平面内运动）
type Vec3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }
func (v Vec3) Len2() float64        { return v.X*v.X + v.Y*v.Y + v.Z*v.Z }

// Shape 碰撞体形状
type Shape int

const (
	ShapeBox Shape = iota
	ShapeSphere
)

func (s Shape) String() string {
	if s == ShapeSphere {
		return "sphere"
	}
	return "box"
}

// Collider 碰撞体：轴对齐盒（Half 为半边长）或球（Radius）
type Collider struct {
	Shape  Shape
	Center Vec3
	Half   Vec3
	Radius float64
}

// Box 以中心与完整尺寸构造轴对齐盒
func Box(center, size Vec3) Collider {
	return Collider{Shape: ShapeBox, Center: center, Half: size.Scale(0.5)}
}

// Sphere 构造球体
func Sphere(center Vec3, radius float64) Collider {
	return Collider{Shape: ShapeSphere, Center: center, Radius: radius}
}

// At 返回平移到新中心后的副本
func (c Collider) At(center Vec3) Collider {
	c.Center = center
	return c
}

// Extents 返回各轴半宽（球体三轴同为半径）
func (c Collider) Extents() Vec3 {
	if c.Shape == ShapeSphere {
		return Vec3{c.Radius, c.Radius, c.Radius}
	}
	return c.Half
}

// Validate 非正尺寸属于编程错误，构造场景时拒绝
func (c Collider) Validate() error {
	switch c.Shape {
	case ShapeSphere:
		if c.Radius <= 0 {
			return errors.Errorf("sphere radius must be positive, got %v", c.Radius)
		}
	case ShapeBox:
		if c.Half.X <= 0 || c.Half.Y <= 0 || c.Half.Z <= 0 {
			return errors.Errorf("box extents must be positive, got %+v", c.Half)
		}
	default:
		return errors.Errorf("unknown collider shape %d", c.Shape)
	}
	return nil
}

// Overlaps 判断两个碰撞体是否相交（接触也算相交），纯函数且对称
func Overlaps(a, b Collider) bool {
	switch {
	case a.Shape == ShapeBox && b.Shape == ShapeBox:
		return boxBox(a, b)
	case a.Shape == ShapeSphere && b.Shape == ShapeSphere:
		r := a.Radius + b.Radius
		return b.Center.Sub(a.Center).Len2() <= r*r
	case a.Shape == ShapeBox:
		return boxSphere(a, b)
	default:
		return boxSphere(b, a)
	}
}

func boxBox(a, b Collider) bool {
	return axisOverlap(a.Center.X, a.Half.X, b.Center.X, b.Half.X) &&
		axisOverlap(a.Center.Y, a.Half.Y, b.Center.Y, b.Half.Y) &&
		axisOverlap(a.Center.Z, a.Half.Z, b.Center.Z, b.Half.Z)
}

func axisOverlap(ac, ah, bc, bh float64) bool {
	return ac-ah <= bc+bh && bc-bh <= ac+ah
}

// boxSphere 取盒上距球心最近的点，比较平方距离，避免开方
func boxSphere(box, s Collider) bool {
	return closestDist2(box, s.Center) <= s.Radius*s.Radius
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// separation 穿透程度的度量：数值越小穿透越深。用于判断移动是否加深已有的重叠。
func separation(a, b Collider) float64 {
	switch {
	case a.Shape == ShapeBox && b.Shape == ShapeSphere:
		return closestDist2(a, b.Center)
	case a.Shape == ShapeSphere && b.Shape == ShapeBox:
		return closestDist2(b, a.Center)
	default:
		return b.Center.Sub(a.Center).Len2()
	}
}

func closestDist2(box Collider, p Vec3) float64 {
	d := Vec3{
		p.X - clamp(p.X, box.Center.X-box.Half.X, box.Center.X+box.Half.X),
		p.Y - clamp(p.Y, box.Center.Y-box.Half.Y, box.Center.Y+box.Half.Y),
		p.Z - clamp(p.Z, box.Center.Z-box.Half.Z, box.Center.Z+box.Half.Z),
	}
	return d.Len2()
}
