package interpreter

import (
	"log/slog"
	"math"
	"time"

	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/formula"
)

// Safe argument ranges. Out-of-range values are clamped, never rejected.
const (
	MinProjectiles, MaxProjectiles = 1, 5
	MinSpeed, MaxSpeed             = 50.0, 1200.0
	DefaultSpeed                   = 400.0
	MinRadius, MaxRadius           = 50.0, 300.0
	DefaultRadius                  = 100.0
	MinDuration, MaxDuration       = 1.0, 10.0
	DefaultDuration                = 3.0
	MinAmount, MaxAmount           = 1.0, 100.0
	DefaultAmount                  = 10.0
	MinChains, MaxChains           = 1, 5
	DefaultChains                  = 3
	MinChainRadius, MaxChainRadius = 50.0, 400.0
	DefaultChainRadius             = 200.0
	MinRepeats, MaxRepeats         = 1, 5
	DefaultRepeats                 = 2
	MinInterval, MaxInterval       = 0.1, 2.0
	DefaultInterval                = 0.5
	MinTick, MaxTick               = 0.1, 2.0
	DefaultTick                    = 0.5
	MinBeamLength, MaxBeamLength   = 100.0, 800.0
	MinBeamWidth, MaxBeamWidth     = 10.0, 100.0
	MinMeleeRange, MaxMeleeRange   = 30.0, 200.0
	MinMeleeAngle, MaxMeleeAngle   = 30.0, 360.0
	MinForce, MaxForce             = 50.0, 1000.0
	DefaultForce                   = 200.0
	MinKnockTime, MaxKnockTime     = 0.1, 1.0
	MaxSpreadDegrees               = 90.0
	MaxAreaTargets                 = 10
)

var meleeShapes = map[string]bool{"arc": true, "circle": true, "line": true, "cone": true}
var meleeMovements = map[string]bool{"stationary": true, "dash": true, "leap": true, "spin": true}

// Interpreter walks effect trees and dispatches each action to the world.
type Interpreter struct {
	world World
	sched Scheduler
	log   *slog.Logger
}

// New creates an Interpreter. All world and scheduler calls happen on the
// caller's goroutine.
func New(world World, sched Scheduler, log *slog.Logger) *Interpreter {
	if log == nil {
		log = slog.Default()
	}
	return &Interpreter{world: world, sched: sched, log: log}
}

// Cast runs every script of ability from ctx.
func (in *Interpreter) Cast(ability *effect.AbilityV2, ctx EffectContext) {
	if ability == nil {
		return
	}
	ctx.Ability = ability
	for _, script := range ability.Effects {
		in.ExecuteAll(script.Script, ctx)
	}
}

// ExecuteAll runs actions in order at ctx's depth. A failing action never
// stops its siblings.
func (in *Interpreter) ExecuteAll(actions []effect.EffectAction, ctx EffectContext) {
	for _, a := range actions {
		in.Execute(a, ctx)
	}
}

// Execute runs one action: depth check, condition gate, then dispatch.
func (in *Interpreter) Execute(action effect.EffectAction, ctx EffectContext) {
	if ctx.Depth >= effect.MaxDepth {
		in.log.Error("Effect nesting ceiling reached, skipping branch",
			"action", action.Action, "depth", ctx.Depth, "max_depth", effect.MaxDepth)
		return
	}
	if action.Condition != nil && action.Condition.If != "" {
		view := conditionView{world: in.world, ctx: ctx}
		if !formula.Check(in.log, action.Condition.If, view) {
			return
		}
	}

	switch action.Action {
	case effect.ActionSpawnProjectile:
		in.spawnProjectile(action, ctx)
	case effect.ActionSpawnArea:
		in.spawnArea(action, ctx)
	case effect.ActionSpawnBeam:
		in.spawnBeam(action, ctx)
	case effect.ActionSpawnMelee:
		in.spawnMelee(action, ctx)
	case effect.ActionChainToNearby:
		in.chain(action, ctx)
	case effect.ActionRepeat:
		in.repeat(action, ctx)
	case effect.ActionDamage:
		in.damage(action, ctx)
	case effect.ActionHeal:
		in.heal(action, ctx)
	case effect.ActionApplyStatus:
		in.applyStatus(action, ctx)
	case effect.ActionKnockback:
		in.knockback(action, ctx)
	default:
		in.log.Warn("Unknown action, skipping", "action", action.Action, "depth", ctx.Depth)
	}
}

// hooks binds an action's nested lists to world callbacks. Each callback
// executes its list one level deeper with the context rebound to the hit.
func (in *Interpreter) hooks(action effect.EffectAction, ctx EffectContext) Hooks {
	var h Hooks
	bind := func(list []effect.EffectAction) func(EntityID, Vec2) {
		if len(list) == 0 {
			return nil
		}
		return func(target EntityID, at Vec2) {
			in.ExecuteAll(list, ctx.Child(target, at))
		}
	}
	h.OnHit = bind(action.OnHit)
	h.OnEnter = bind(action.OnEnter)
	h.OnTick = bind(action.OnTick)
	if len(action.OnExpire) > 0 {
		list := action.OnExpire
		h.OnExpire = func(at Vec2) {
			in.ExecuteAll(list, ctx.Child("", at))
		}
	}
	return h
}

func (in *Interpreter) element(action effect.EffectAction, ctx EffectContext) string {
	return action.Args.StringOr("element", ctx.Element)
}

func (in *Interpreter) duration(action effect.EffectAction, def float64) float64 {
	return effect.Clamp(action.Args.NumberOr("duration", def), MinDuration, MaxDuration)
}

func (in *Interpreter) spawnProjectile(action effect.EffectAction, ctx EffectContext) {
	count := effect.ClampInt(action.Args.IntOr("count", 1), MinProjectiles, MaxProjectiles)
	spread := effect.Clamp(action.Args.NumberOr("spread", 15), 0, MaxSpreadDegrees) * math.Pi / 180
	geo := Geometry{
		Origin:   ctx.Position,
		Speed:    effect.Clamp(action.Args.NumberOr("speed", DefaultSpeed), MinSpeed, MaxSpeed),
		Duration: in.duration(action, DefaultDuration),
		Pierce:   action.Args.BoolOr("pierce", false),
		Element:  in.element(action, ctx),
	}
	dir := ctx.Direction.Normalized()
	hooks := in.hooks(action, ctx)
	for i := 0; i < count; i++ {
		g := geo
		offset := (float64(i) - float64(count-1)/2) * spread
		g.Direction = dir.Rotate(offset)
		in.world.SpawnTransientEffect(KindProjectile, g, hooks)
	}
}

func (in *Interpreter) spawnArea(action effect.EffectAction, ctx EffectContext) {
	center := ctx.Position
	if action.Args.StringOr("at", "") == "caster" && ctx.Caster != "" {
		if pos, ok := in.world.Position(ctx.Caster); ok {
			center = pos
		}
	}
	geo := Geometry{
		Origin:       center,
		Direction:    ctx.Direction,
		Radius:       effect.Clamp(action.Args.NumberOr("radius", DefaultRadius), MinRadius, MaxRadius),
		Duration:     in.duration(action, DefaultDuration),
		TickInterval: effect.Clamp(action.Args.NumberOr("tick_interval", DefaultTick), MinTick, MaxTick),
		Element:      in.element(action, ctx),
	}
	in.world.SpawnTransientEffect(KindArea, geo, in.hooks(action, ctx))
}

func (in *Interpreter) spawnBeam(action effect.EffectAction, ctx EffectContext) {
	geo := Geometry{
		Origin:    ctx.Position,
		Direction: ctx.Direction.Normalized(),
		Length:    effect.Clamp(action.Args.NumberOr("length", 400), MinBeamLength, MaxBeamLength),
		Width:     effect.Clamp(action.Args.NumberOr("width", 20), MinBeamWidth, MaxBeamWidth),
		Duration:  in.duration(action, MinDuration),
		Pierce:    action.Args.BoolOr("pierce", true),
		Element:   in.element(action, ctx),
	}
	in.world.SpawnTransientEffect(KindBeam, geo, in.hooks(action, ctx))
}

func (in *Interpreter) spawnMelee(action effect.EffectAction, ctx EffectContext) {
	shape := action.Args.StringOr("shape", "arc")
	if !meleeShapes[shape] {
		in.log.Warn("Unknown melee shape, using arc", "shape", shape)
		shape = "arc"
	}
	movement := action.Args.StringOr("movement", "stationary")
	if !meleeMovements[movement] {
		in.log.Warn("Unknown melee movement, using stationary", "movement", movement)
		movement = "stationary"
	}
	angle := 90.0
	switch shape {
	case "circle":
		angle = 360
	case "line":
		angle = MinMeleeAngle
	}
	geo := Geometry{
		Origin:    ctx.Position,
		Direction: ctx.Direction.Normalized(),
		Length:    effect.Clamp(action.Args.NumberOr("range", 80), MinMeleeRange, MaxMeleeRange),
		Angle:     effect.Clamp(action.Args.NumberOr("angle", angle), MinMeleeAngle, MaxMeleeAngle),
		Duration:  in.duration(action, MinDuration),
		Shape:     shape,
		Movement:  movement,
		Element:   in.element(action, ctx),
	}
	in.world.SpawnTransientEffect(KindMelee, geo, in.hooks(action, ctx))
}

func (in *Interpreter) chain(action effect.EffectAction, ctx EffectContext) {
	maxChains := effect.ClampInt(action.Args.IntOr("max_chains", DefaultChains), MinChains, MaxChains)
	radius := effect.Clamp(action.Args.NumberOr("radius", DefaultChainRadius), MinChainRadius, MaxChainRadius)

	// The current target and the caster may both be in range.
	found := in.world.FindNearby(ctx.Position, radius, maxChains+2)
	hits := 0
	for _, id := range found {
		if id == ctx.Target || id == ctx.Caster {
			continue
		}
		if hits == maxChains {
			break
		}
		hits++
		pos, ok := in.world.Position(id)
		if !ok {
			pos = ctx.Position
		}
		in.ExecuteAll(action.OnHit, ctx.Child(id, pos))
	}
}

func (in *Interpreter) repeat(action effect.EffectAction, ctx EffectContext) {
	count := effect.ClampInt(action.Args.IntOr("count", DefaultRepeats), MinRepeats, MaxRepeats)
	interval := effect.Clamp(action.Args.NumberOr("interval", DefaultInterval), MinInterval, MaxInterval)
	nested := action.OnTick
	if len(nested) == 0 {
		nested = action.OnHit
	}
	if len(nested) == 0 {
		return
	}
	if in.sched == nil {
		in.log.Warn("No scheduler, skipping repeat", "depth", ctx.Depth)
		return
	}
	step := time.Duration(interval * float64(time.Second))
	for i := 0; i < count; i++ {
		child := ctx.Child(ctx.Target, ctx.Position)
		in.sched.After(time.Duration(i)*step, func() {
			in.ExecuteAll(nested, child)
		})
	}
}

// amount resolves a literal or formula amount and clamps it.
func (in *Interpreter) amount(action effect.EffectAction, ctx EffectContext) float64 {
	amt := action.Args.NumberOr("amount", DefaultAmount)
	if expr := action.Args.StringOr("formula", ""); expr != "" {
		v, err := formula.Evaluate(expr, ctx.formulaVars(in.world))
		if err != nil {
			in.log.Warn("Formula failed, using amount", "formula", expr, "error", err.Error())
		} else {
			amt = v
		}
	}
	return effect.Clamp(amt, MinAmount, MaxAmount)
}

// targets resolves who a terminal action applies to: the bound target, or
// everyone near the context position when area_radius is given.
func (in *Interpreter) targets(action effect.EffectAction, ctx EffectContext) []EntityID {
	if ctx.Target != "" {
		return []EntityID{ctx.Target}
	}
	if action.Args.Has("area_radius") {
		r := effect.Clamp(action.Args.NumberOr("area_radius", DefaultRadius), MinRadius, MaxRadius)
		return in.world.FindNearby(ctx.Position, r, MaxAreaTargets)
	}
	in.log.Warn("Terminal action without a target, skipping", "action", action.Action, "depth", ctx.Depth)
	return nil
}

func (in *Interpreter) damage(action effect.EffectAction, ctx EffectContext) {
	element := in.element(action, ctx)
	for _, id := range in.targets(action, ctx) {
		c := ctx
		c.Target = id
		in.world.ApplyDamage(id, in.amount(action, c), element, ctx.Caster)
	}
}

func (in *Interpreter) heal(action effect.EffectAction, ctx EffectContext) {
	target := ctx.Target
	if action.Args.StringOr("target", "") == "caster" || target == "" {
		target = ctx.Caster
	}
	if target == "" {
		in.log.Warn("Heal without a target, skipping", "depth", ctx.Depth)
		return
	}
	in.world.ApplyHeal(target, in.amount(action, ctx))
}

func (in *Interpreter) applyStatus(action effect.EffectAction, ctx EffectContext) {
	name := action.Args.StringOr("status", "")
	status, ok := effect.ParseStatus(name)
	if !ok {
		in.log.Warn("Unknown status, skipping", "status", name, "depth", ctx.Depth)
		return
	}
	stacking := status.DefaultStacking()
	if s, ok := effect.ParseStacking(action.Args.StringOr("stacking", "")); ok {
		stacking = s
	}
	duration := in.duration(action, DefaultDuration)
	for _, id := range in.targets(action, ctx) {
		in.world.ApplyStatus(id, status, duration, stacking)
	}
}

func (in *Interpreter) knockback(action effect.EffectAction, ctx EffectContext) {
	force := effect.Clamp(action.Args.NumberOr("force", DefaultForce), MinForce, MaxForce)
	duration := effect.Clamp(action.Args.NumberOr("duration", 0.2), MinKnockTime, MaxKnockTime)
	for _, id := range in.targets(action, ctx) {
		dir := ctx.Direction
		if pos, ok := in.world.Position(id); ok {
			if away := pos.Sub(ctx.Origin); !away.IsZero() {
				dir = away
			}
		}
		in.world.ApplyKnockback(id, dir.Normalized(), force, duration)
	}
}
