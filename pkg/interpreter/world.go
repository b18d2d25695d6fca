// Package interpreter executes ability effect trees against a game world.
// The world itself is an external collaborator reached through World.
package interpreter

import (
	"math"
	"time"

	"github.com/jwebster45206/ability-forge/pkg/effect"
)

// Vec2 is a 2D point or direction in world units.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2      { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(f float64) Vec2 { return Vec2{v.X * f, v.Y * f} }
func (v Vec2) Len() float64         { return math.Hypot(v.X, v.Y) }
func (v Vec2) Dist(o Vec2) float64  { return v.Sub(o).Len() }
func (v Vec2) IsZero() bool         { return v.X == 0 && v.Y == 0 }
func (v Vec2) Rotate(rad float64) Vec2 {
	s, c := math.Sincos(rad)
	return Vec2{v.X*c - v.Y*s, v.X*s + v.Y*c}
}

// Normalized returns a unit vector, or (1,0) for the zero vector.
func (v Vec2) Normalized() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{1, 0}
	}
	return Vec2{v.X / l, v.Y / l}
}

// EntityID identifies a world-owned entity. The empty ID means none.
type EntityID string

// Handle identifies a spawned transient effect.
type Handle uint64

// EffectKind names the transient effect shapes the world can spawn.
type EffectKind string

const (
	KindProjectile EffectKind = "projectile"
	KindArea       EffectKind = "area"
	KindBeam       EffectKind = "beam"
	KindMelee      EffectKind = "melee"
)

// Geometry carries the clamped spawn parameters. Fields irrelevant to a
// kind are left zero.
type Geometry struct {
	Origin       Vec2    `json:"origin"`
	Direction    Vec2    `json:"direction"`
	Speed        float64 `json:"speed,omitempty"`
	Radius       float64 `json:"radius,omitempty"`
	Length       float64 `json:"length,omitempty"`
	Width        float64 `json:"width,omitempty"`
	Angle        float64 `json:"angle,omitempty"`
	Duration     float64 `json:"duration"`
	TickInterval float64 `json:"tick_interval,omitempty"`
	Pierce       bool    `json:"pierce,omitempty"`
	Shape        string  `json:"shape,omitempty"`
	Movement     string  `json:"movement,omitempty"`
	Element      string  `json:"element,omitempty"`
}

// Hooks are invoked by the world once a spawned effect touches entities.
// Each one runs the matching nested action list. A nil hook means the list
// was empty.
type Hooks struct {
	OnHit    func(target EntityID, at Vec2)
	OnEnter  func(target EntityID, at Vec2)
	OnTick   func(target EntityID, at Vec2)
	OnExpire func(at Vec2)
}

// World is the game layer the interpreter mutates. Implementations are
// called only from the goroutine that owns the game state.
type World interface {
	SpawnTransientEffect(kind EffectKind, geo Geometry, hooks Hooks) Handle
	ApplyDamage(target EntityID, amount float64, element string, source EntityID) bool
	ApplyHeal(target EntityID, amount float64) bool
	ApplyStatus(target EntityID, status effect.Status, duration float64, stacking effect.Stacking)
	ApplyKnockback(target EntityID, direction Vec2, force, duration float64)
	FindNearby(pos Vec2, radius float64, max int) []EntityID
	HasStatus(target EntityID, status string) bool
	StatusStacks(target EntityID, status string) int
	Health(target EntityID) (current, max float64, ok bool)
	Position(target EntityID) (Vec2, bool)
}

// Scheduler runs fn after delay on the world's goroutine.
type Scheduler interface {
	After(delay time.Duration, fn func())
}
