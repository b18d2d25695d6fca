package interpreter

import (
	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/formula"
)

// EffectContext is the per-cast runtime state. Child contexts are copies with
// target and position rebound; the variable bag is copied at that moment.
type EffectContext struct {
	Position    Vec2
	Origin      Vec2 // where the cast started
	Direction   Vec2
	Target      EntityID
	Caster      EntityID
	Vars        map[string]effect.Value
	Ability     *effect.AbilityV2
	Element     string
	CasterLevel float64
	Depth       int
}

// NewContext starts a cast at pos aimed along dir.
func NewContext(ability *effect.AbilityV2, caster EntityID, pos, dir Vec2) EffectContext {
	ctx := EffectContext{
		Position:    pos,
		Origin:      pos,
		Direction:   dir.Normalized(),
		Caster:      caster,
		Vars:        map[string]effect.Value{},
		Ability:     ability,
		CasterLevel: 1,
	}
	if ability != nil && len(ability.Primitives) > 0 {
		ctx.Element = ability.Primitives[0]
	}
	return ctx
}

// Child returns a copy one level deeper, rebound to target at pos.
func (c EffectContext) Child(target EntityID, pos Vec2) EffectContext {
	child := c
	child.Target = target
	child.Position = pos
	child.Depth = c.Depth + 1
	child.Vars = make(map[string]effect.Value, len(c.Vars))
	for k, v := range c.Vars {
		child.Vars[k] = v
	}
	return child
}

// conditionView adapts a world and context to formula.ConditionView.
type conditionView struct {
	world World
	ctx   EffectContext
}

func (v conditionView) subject(who formula.Subject) EntityID {
	if who == formula.SubjectCaster {
		return v.ctx.Caster
	}
	return v.ctx.Target
}

func (v conditionView) Health(who formula.Subject) (float64, float64, bool) {
	id := v.subject(who)
	if id == "" {
		return 0, 0, false
	}
	return v.world.Health(id)
}

func (v conditionView) HasStatus(who formula.Subject, status string) bool {
	id := v.subject(who)
	return id != "" && v.world.HasStatus(id, status)
}

func (v conditionView) StatusStacks(who formula.Subject, status string) int {
	id := v.subject(who)
	if id == "" {
		return 0
	}
	return v.world.StatusStacks(id, status)
}

func (v conditionView) Distance() (float64, bool) {
	if v.ctx.Target == "" {
		return 0, false
	}
	pos, ok := v.world.Position(v.ctx.Target)
	if !ok {
		return 0, false
	}
	return pos.Dist(v.ctx.Origin), true
}

func (c EffectContext) formulaVars(world World) formula.Variables {
	vars := formula.Variables{CasterLevel: c.CasterLevel}
	if c.Ability != nil {
		vars.CasterElementCount = float64(len(c.Ability.Primitives))
	}
	if c.Target != "" {
		if cur, maxHP, ok := world.Health(c.Target); ok {
			vars.TargetHealth, vars.TargetMaxHealth = cur, maxHP
		}
		if pos, ok := world.Position(c.Target); ok {
			vars.Distance = pos.Dist(c.Origin)
		}
	}
	return vars
}
