package sim

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/pkg/errors"

	"robotarena/protocol"
)

// 空间索引查询时的外扩量：rtreego 不把贴边算作相交，而 Overlaps 算
const indexSlack = 1e-6

// Event 一次新进入重叠产生的事件
type Event struct {
	Kind    string // protocol.EvtCollision / protocol.EvtSonarActivated
	Subject string // 机器人或声呐
	Object  string // 障碍物
}

// Command 转换成出站命令：collision 只带障碍名，sonarActivated 带声呐与障碍
func (e Event) Command() protocol.Command {
	if e.Kind == protocol.EvtSonarActivated {
		return protocol.Command{Name: e.Kind, Arg: protocol.SonarArg{Sonar: e.Subject, Object: e.Object}}
	}
	return protocol.Command{Name: e.Kind, Arg: e.Object}
}

type pairKey struct{ mover, other string }

// contact 被挡住的移动：探测体停在 at，直到它离开这个位置
type contact struct {
	mover *Body
	at    Vec3
}

// staticEntry 静态体在 R 树中的条目
type staticEntry struct {
	body  *Body
	order int
	rect  rtreego.Rect
}

func (e *staticEntry) Bounds() rtreego.Rect { return e.rect }

// CollisionManager 每帧检测探测体（机器人、声呐）与障碍体（静态、移动、围墙）的重叠，
// 只在进入重叠的那一帧产生事件。
type CollisionManager struct {
	movers  []*Body
	moving  []*Body
	statics *rtreego.Rtree
	nStatic int

	overlapping map[pairKey]bool
	blocked     map[pairKey]*Body
	contacts    map[pairKey]contact
}

// NewCollisionManager 按角色归类碰撞体，静态体一次性建立索引
func NewCollisionManager(bodies []*Body) (*CollisionManager, error) {
	m := &CollisionManager{
		statics:     rtreego.NewTree(3, 2, 8),
		overlapping: make(map[pairKey]bool),
		blocked:     make(map[pairKey]*Body),
		contacts:    make(map[pairKey]contact),
	}
	names := make(map[string]bool, len(bodies))
	for _, b := range bodies {
		if names[b.Name] {
			return nil, errors.Errorf("duplicate collider name %q", b.Name)
		}
		names[b.Name] = true
		if err := b.Collider().Validate(); err != nil {
			return nil, errors.Wrapf(err, "collider %q", b.Name)
		}

		switch b.Role {
		case RolePlayer, RoleSonar:
			m.movers = append(m.movers, b)
		case RoleMovingObstacle:
			m.moving = append(m.moving, b)
		case RoleStaticObstacle, RoleFloor:
			rect, err := boundsOf(b.Collider(), 0)
			if err != nil {
				return nil, errors.Wrapf(err, "index %q", b.Name)
			}
			m.statics.Insert(&staticEntry{body: b, order: m.nStatic, rect: rect})
			m.nStatic++
		default:
			return nil, errors.Errorf("collider %q has non-collidable role %s", b.Name, b.Role)
		}
	}
	return m, nil
}

// CheckAll 在所有主体更新之后调用一次。返回本帧新进入重叠或新被挡住的事件，顺序确定。
func (m *CollisionManager) CheckAll() []Event {
	var events []Event
	now := make(map[pairKey]bool, len(m.overlapping))
	enter := func(mover *Body, other string) {
		k := pairKey{mover.Name, other}
		if now[k] {
			return
		}
		now[k] = true
		if m.overlapping[k] {
			return
		}
		kind := protocol.EvtCollision
		if mover.Role == RoleSonar {
			kind = protocol.EvtSonarActivated
		}
		events = append(events, Event{Kind: kind, Subject: mover.Name, Object: other})
	}

	for _, p := range m.movers {
		pc := p.Collider()
		for _, o := range m.candidates(pc) {
			if Overlaps(pc, o.Collider()) {
				enter(p, o.Name)
			}
		}
	}

	// 本帧被挡住，或上次被挡后原地未动，都属于同一段接触
	for k, c := range m.contacts {
		if _, ok := m.blocked[k]; !ok && c.mover.Position() == c.at {
			m.blocked[k] = c.mover
		}
	}
	keys := make([]pairKey, 0, len(m.blocked))
	for k := range m.blocked {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].mover != keys[j].mover {
			return keys[i].mover < keys[j].mover
		}
		return keys[i].other < keys[j].other
	})
	contacts := make(map[pairKey]contact, len(keys))
	for _, k := range keys {
		mover := m.blocked[k]
		contacts[k] = contact{mover: mover, at: mover.Position()}
		enter(mover, k.other)
	}

	m.contacts = contacts
	m.blocked = make(map[pairKey]*Body)
	m.overlapping = now
	return events
}

// Block 记录一次被 blocker 否决的移动，由下一次 CheckAll 报告
func (m *CollisionManager) Block(mover, blocker *Body) {
	m.blocked[pairKey{mover.Name, blocker.Name}] = mover
}

// WouldCollide 假设 b 移到 proposed，是否会撞上障碍。纯查询，不改状态也不产生事件。
func (m *CollisionManager) WouldCollide(b *Body, proposed Vec3) bool {
	_, hit := m.Blocker(b, proposed)
	return hit
}

// Blocker 沿当前位置到 proposed 的线段分段检查，返回第一个阻挡体。
// 每段不超过碰撞体最小半径的一半，薄墙也不会被跨过。
// 已经重叠的障碍只有在穿透加深时才算阻挡，便于从卡住的状态中退出。
// 目标不是有限值时视为被挡，阻挡体为 nil。
func (m *CollisionManager) Blocker(b *Body, proposed Vec3) (*Body, bool) {
	cur := b.Collider()
	d := proposed.Sub(cur.Center)
	dist := math.Sqrt(d.Len2())
	if math.IsNaN(dist) || math.IsInf(dist, 0) {
		return nil, true
	}
	if dist == 0 {
		return nil, false
	}
	e := cur.Extents()
	n := int(math.Ceil(dist / (math.Min(e.X, math.Min(e.Y, e.Z)) / 2)))
	for i := 1; i <= n; i++ {
		next := cur.At(cur.Center.Add(d.Scale(float64(i) / float64(n))))
		if o := m.blockerAt(b, cur, next); o != nil {
			return o, true
		}
	}
	return nil, false
}

func (m *CollisionManager) blockerAt(b *Body, cur, next Collider) *Body {
	for _, o := range m.candidates(next) {
		if o == b {
			continue
		}
		oc := o.Collider()
		if !Overlaps(next, oc) {
			continue
		}
		if Overlaps(cur, oc) && separation(next, oc) >= separation(cur, oc) {
			continue
		}
		return o
	}
	return nil
}

// Overlapping 某一对当前是否处于重叠中
func (m *CollisionManager) Overlapping(mover, other string) bool {
	return m.overlapping[pairKey{mover, other}]
}

// candidates 静态体走 R 树粗筛（按登记顺序），移动体逐个检查
func (m *CollisionManager) candidates(c Collider) []*Body {
	out := make([]*Body, 0, len(m.moving)+4)
	if m.nStatic > 0 {
		if bb, err := boundsOf(c, indexSlack); err == nil {
			hits := m.statics.SearchIntersect(bb)
			sort.Slice(hits, func(i, j int) bool {
				return hits[i].(*staticEntry).order < hits[j].(*staticEntry).order
			})
			for _, h := range hits {
				out = append(out, h.(*staticEntry).body)
			}
		}
	}
	return append(out, m.moving...)
}

func boundsOf(c Collider, slack float64) (rtreego.Rect, error) {
	e := c.Extents()
	min := rtreego.Point{c.Center.X - e.X - slack, c.Center.Y - e.Y - slack, c.Center.Z - e.Z - slack}
	return rtreego.NewRect(min, []float64{2 * (e.X + slack), 2 * (e.Y + slack), 2 * (e.Z + slack)})
}
