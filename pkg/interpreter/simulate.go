package interpreter

import (
	"log/slog"

	"github.com/jwebster45206/ability-forge/pkg/effect"
)

// maxScheduledRuns bounds delayed calls drained by Simulate.
const maxScheduledRuns = 256

// Trace is the outcome of a sandbox cast.
type Trace struct {
	Calls    []Call   `json:"calls"`
	Entities []Entity `json:"entities"`
	Spawns   int      `json:"spawns"`
	Damage   float64  `json:"total_damage"`
}

// DefaultDummies places three targets in front of a caster at the origin.
func DefaultDummies() []Entity {
	return []Entity{
		{ID: "dummy-1", Position: Vec2{X: 150}},
		{ID: "dummy-2", Position: Vec2{X: 250, Y: 40}},
		{ID: "dummy-3", Position: Vec2{X: 300, Y: -60}},
	}
}

// Simulate casts ability from the origin toward +X in a recording world with
// auto-resolving hits, drains any scheduled repeats, and returns the trace.
func Simulate(ability *effect.AbilityV2, entities []Entity, log *slog.Logger) Trace {
	if len(entities) == 0 {
		entities = DefaultDummies()
	}
	world := NewRecordingWorld(entities...)
	world.AutoResolve = true
	sched := &ManualScheduler{}

	in := New(world, sched, log)
	ctx := NewContext(ability, "caster", Vec2{}, Vec2{X: 1})
	in.Cast(ability, ctx)
	sched.RunAll(maxScheduledRuns)

	tr := Trace{Calls: world.Calls, Spawns: len(world.Spawns)}
	for _, c := range world.CallsOf("damage") {
		tr.Damage += c.Amount
	}
	for _, e := range entities {
		if live, ok := world.Entities[e.ID]; ok {
			tr.Entities = append(tr.Entities, *live)
		}
	}
	return tr
}
