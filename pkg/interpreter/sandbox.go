package interpreter

import (
	"sort"
	"time"

	"github.com/jwebster45206/ability-forge/pkg/effect"
)

// Call is one recorded world mutation or spawn.
type Call struct {
	Op       string          `json:"op"`
	Target   EntityID        `json:"target,omitempty"`
	Kind     EffectKind      `json:"kind,omitempty"`
	Geometry *Geometry       `json:"geometry,omitempty"`
	Amount   float64         `json:"amount,omitempty"`
	Element  string          `json:"element,omitempty"`
	Status   effect.Status   `json:"status,omitempty"`
	Stacking effect.Stacking `json:"stacking,omitempty"`
	Duration float64         `json:"duration,omitempty"`
	Force    float64         `json:"force,omitempty"`
	Depth    int             `json:"-"`
}

// Entity is a sandbox combatant.
type Entity struct {
	ID        EntityID       `json:"id"`
	Position  Vec2           `json:"position"`
	Health    float64        `json:"health"`
	MaxHealth float64        `json:"max_health"`
	Statuses  map[string]int `json:"statuses,omitempty"`
}

// Spawn is a transient effect spawned into a RecordingWorld.
type Spawn struct {
	Handle   Handle
	Kind     EffectKind
	Geometry Geometry
	Hooks    Hooks
}

// RecordingWorld is an in-memory World that records every call. With
// AutoResolve set, each spawn immediately hits the nearest entity in reach,
// ticks once, and expires, which is enough to trace an ability end to end.
type RecordingWorld struct {
	Entities    map[EntityID]*Entity
	Calls       []Call
	Spawns      []Spawn
	AutoResolve bool
	next        Handle
}

// NewRecordingWorld returns a world populated with entities.
func NewRecordingWorld(entities ...Entity) *RecordingWorld {
	w := &RecordingWorld{Entities: map[EntityID]*Entity{}}
	for i := range entities {
		e := entities[i]
		if e.MaxHealth == 0 {
			e.MaxHealth = 100
		}
		if e.Health == 0 {
			e.Health = e.MaxHealth
		}
		if e.Statuses == nil {
			e.Statuses = map[string]int{}
		}
		w.Entities[e.ID] = &e
	}
	return w
}

// CallsOf returns the recorded calls with the given op.
func (w *RecordingWorld) CallsOf(op string) []Call {
	var out []Call
	for _, c := range w.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (w *RecordingWorld) SpawnTransientEffect(kind EffectKind, geo Geometry, hooks Hooks) Handle {
	w.next++
	g := geo
	w.Calls = append(w.Calls, Call{Op: "spawn", Kind: kind, Geometry: &g, Element: geo.Element, Duration: geo.Duration})
	w.Spawns = append(w.Spawns, Spawn{Handle: w.next, Kind: kind, Geometry: geo, Hooks: hooks})
	if w.AutoResolve {
		w.resolve(kind, geo, hooks)
	}
	return w.next
}

func (w *RecordingWorld) resolve(kind EffectKind, geo Geometry, hooks Hooks) {
	reach := geo.Radius
	switch kind {
	case KindProjectile:
		reach = geo.Speed * geo.Duration
	case KindBeam, KindMelee:
		reach = geo.Length
	}
	hit := w.FindNearby(geo.Origin, reach, 1)
	if len(hit) > 0 {
		pos := w.Entities[hit[0]].Position
		if hooks.OnEnter != nil {
			hooks.OnEnter(hit[0], pos)
		}
		if hooks.OnHit != nil {
			hooks.OnHit(hit[0], pos)
		}
		if hooks.OnTick != nil {
			hooks.OnTick(hit[0], pos)
		}
	}
	if hooks.OnExpire != nil {
		hooks.OnExpire(geo.Origin)
	}
}

func (w *RecordingWorld) ApplyDamage(target EntityID, amount float64, element string, source EntityID) bool {
	w.Calls = append(w.Calls, Call{Op: "damage", Target: target, Amount: amount, Element: element})
	e, ok := w.Entities[target]
	if !ok {
		return false
	}
	e.Health -= amount
	if e.Health < 0 {
		e.Health = 0
	}
	return true
}

func (w *RecordingWorld) ApplyHeal(target EntityID, amount float64) bool {
	w.Calls = append(w.Calls, Call{Op: "heal", Target: target, Amount: amount})
	e, ok := w.Entities[target]
	if !ok {
		return false
	}
	e.Health += amount
	if e.Health > e.MaxHealth {
		e.Health = e.MaxHealth
	}
	return true
}

func (w *RecordingWorld) ApplyStatus(target EntityID, status effect.Status, duration float64, stacking effect.Stacking) {
	w.Calls = append(w.Calls, Call{Op: "status", Target: target, Status: status, Duration: duration, Stacking: stacking})
	e, ok := w.Entities[target]
	if !ok {
		return
	}
	if stacking == effect.StackStack {
		e.Statuses[string(status)]++
	} else {
		e.Statuses[string(status)] = 1
	}
}

func (w *RecordingWorld) ApplyKnockback(target EntityID, direction Vec2, force, duration float64) {
	w.Calls = append(w.Calls, Call{Op: "knockback", Target: target, Force: force, Duration: duration})
}

// FindNearby returns entities within radius of pos, nearest first.
func (w *RecordingWorld) FindNearby(pos Vec2, radius float64, max int) []EntityID {
	var ids []EntityID
	for id, e := range w.Entities {
		if e.Position.Dist(pos) <= radius {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		di := w.Entities[ids[i]].Position.Dist(pos)
		dj := w.Entities[ids[j]].Position.Dist(pos)
		if di != dj {
			return di < dj
		}
		return ids[i] < ids[j]
	})
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	return ids
}

func (w *RecordingWorld) HasStatus(target EntityID, status string) bool {
	return w.StatusStacks(target, status) > 0
}

func (w *RecordingWorld) StatusStacks(target EntityID, status string) int {
	if e, ok := w.Entities[target]; ok {
		return e.Statuses[status]
	}
	return 0
}

func (w *RecordingWorld) Health(target EntityID) (float64, float64, bool) {
	e, ok := w.Entities[target]
	if !ok {
		return 0, 0, false
	}
	return e.Health, e.MaxHealth, true
}

func (w *RecordingWorld) Position(target EntityID) (Vec2, bool) {
	e, ok := w.Entities[target]
	if !ok {
		return Vec2{}, false
	}
	return e.Position, true
}

type scheduled struct {
	at time.Duration
	fn func()
}

// ManualScheduler queues delayed calls until Advance or RunAll is called.
type ManualScheduler struct {
	now     time.Duration
	pending []scheduled
}

func (s *ManualScheduler) After(delay time.Duration, fn func()) {
	s.pending = append(s.pending, scheduled{at: s.now + delay, fn: fn})
}

// Pending reports how many calls are waiting.
func (s *ManualScheduler) Pending() int { return len(s.pending) }

// Advance moves time forward by d and runs everything now due, in time
// order. Calls scheduled while running are picked up if they are due.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.now += d
	ran := 0
	for {
		idx := -1
		for i, p := range s.pending {
			if p.at <= s.now && (idx < 0 || p.at < s.pending[idx].at) {
				idx = i
			}
		}
		if idx < 0 {
			return ran
		}
		fn := s.pending[idx].fn
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
		fn()
		ran++
	}
}

// RunAll drains the queue, jumping time forward as needed, and stops after
// limit calls.
func (s *ManualScheduler) RunAll(limit int) int {
	ran := 0
	for len(s.pending) > 0 && ran < limit {
		next := s.pending[0].at
		for _, p := range s.pending {
			if p.at < next {
				next = p.at
			}
		}
		if next > s.now {
			s.now = next
		}
		ran += s.Advance(0)
	}
	return ran
}
