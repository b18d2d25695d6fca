package effect

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is the ability document version written by this engine.
const SchemaVersion = 2

// MaxDepth is the runtime nesting ceiling. Actions at this depth or deeper
// never execute.
const MaxDepth = 5

// Cooldown bounds, in seconds.
const (
	MinCooldown     = 0.1
	MaxCooldown     = 10.0
	DefaultCooldown = 1.0
)

// Action tags understood by the interpreter.
const (
	ActionSpawnProjectile = "spawn_projectile"
	ActionSpawnArea       = "spawn_area"
	ActionSpawnBeam       = "spawn_beam"
	ActionSpawnMelee      = "spawn_melee"
	ActionChainToNearby   = "chain_to_nearby"
	ActionRepeat          = "repeat"
	ActionDamage          = "damage"
	ActionHeal            = "heal"
	ActionApplyStatus     = "apply_status"
	ActionKnockback       = "knockback"
)

var terminalActions = map[string]bool{
	ActionDamage:      true,
	ActionHeal:        true,
	ActionApplyStatus: true,
	ActionKnockback:   true,
}

var spawnerActions = map[string]bool{
	ActionSpawnProjectile: true,
	ActionSpawnArea:       true,
	ActionSpawnBeam:       true,
	ActionSpawnMelee:      true,
	ActionChainToNearby:   true,
	ActionRepeat:          true,
}

// TerminalActions lists the actions that need a resolved target.
func TerminalActions() []string {
	return []string{ActionDamage, ActionApplyStatus, ActionHeal, ActionKnockback}
}

// SpawnerActions lists the actions allowed at the top level of a script.
func SpawnerActions() []string {
	return []string{
		ActionSpawnProjectile, ActionSpawnArea, ActionSpawnBeam,
		ActionSpawnMelee, ActionChainToNearby, ActionRepeat,
	}
}

// IsTerminal reports whether tag only makes sense against a target.
func IsTerminal(tag string) bool { return terminalActions[tag] }

// IsSpawner reports whether tag may appear at the top level.
func IsSpawner(tag string) bool { return spawnerActions[tag] }

// IsKnownAction reports whether the interpreter has a handler for tag.
func IsKnownAction(tag string) bool { return terminalActions[tag] || spawnerActions[tag] }

// EffectCondition gates an action. Then is reserved for value overrides.
type EffectCondition struct {
	If   string `json:"if"`
	Then Args   `json:"then,omitempty"`
}

// EffectAction is one node of an ability's effect tree.
type EffectAction struct {
	Action    string           `json:"action"`
	Args      Args             `json:"args,omitempty"`
	OnHit     []EffectAction   `json:"on_hit,omitempty"`
	OnEnter   []EffectAction   `json:"on_enter,omitempty"`
	OnTick    []EffectAction   `json:"on_tick,omitempty"`
	OnExpire  []EffectAction   `json:"on_expire,omitempty"`
	Condition *EffectCondition `json:"condition,omitempty"`
}

// Children returns every nested list in a fixed order.
func (a EffectAction) Children() [][]EffectAction {
	return [][]EffectAction{a.OnHit, a.OnEnter, a.OnTick, a.OnExpire}
}

// HasNested reports whether any nested list is non-empty.
func (a EffectAction) HasNested() bool {
	return len(a.OnHit)+len(a.OnEnter)+len(a.OnTick)+len(a.OnExpire) > 0
}

// Equal compares tags, args, conditions and nesting.
func (a EffectAction) Equal(o EffectAction) bool {
	if a.Action != o.Action || !a.Args.Equal(o.Args) {
		return false
	}
	if (a.Condition == nil) != (o.Condition == nil) {
		return false
	}
	if a.Condition != nil && (a.Condition.If != o.Condition.If || !a.Condition.Then.Equal(o.Condition.Then)) {
		return false
	}
	ac, oc := a.Children(), o.Children()
	for i := range ac {
		if !actionsEqual(ac[i], oc[i]) {
			return false
		}
	}
	return true
}

func actionsEqual(a, b []EffectAction) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// EffectScript is an ordered list of top-level actions.
type EffectScript struct {
	Script []EffectAction `json:"script"`
}

// AbilityV2 is one generated ability.
type AbilityV2 struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description"`
	Color       string         `json:"color,omitempty"`
	Primitives  []string       `json:"primitives"`
	Effects     []EffectScript `json:"effects"`
	Cooldown    float64        `json:"cooldown"`
	Version     int            `json:"version"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Malformed reports whether the ability has no executable script.
func (a *AbilityV2) Malformed() bool {
	if a == nil || len(a.Effects) == 0 {
		return true
	}
	for _, e := range a.Effects {
		if len(e.Script) == 0 {
			return true
		}
	}
	return false
}

// Normalize clamps the cooldown and fills derivable fields.
func (a *AbilityV2) Normalize() {
	if a.Cooldown == 0 {
		a.Cooldown = DefaultCooldown
	}
	a.Cooldown = Clamp(a.Cooldown, MinCooldown, MaxCooldown)
	if a.Version == 0 {
		a.Version = SchemaVersion
	}
	if a.Description == "" {
		a.Description = Describe(a.Effects)
	}
	if a.Color == "" && len(a.Primitives) > 0 {
		a.Color = ElementColor(a.Primitives[0])
	}
}

// Equal compares everything except GeneratedAt.
func (a *AbilityV2) Equal(o *AbilityV2) bool {
	if a == nil || o == nil {
		return a == o
	}
	if a.Name != o.Name || a.Description != o.Description || a.Color != o.Color ||
		a.Cooldown != o.Cooldown || a.Version != o.Version {
		return false
	}
	if len(a.Primitives) != len(o.Primitives) || len(a.Effects) != len(o.Effects) {
		return false
	}
	for i := range a.Primitives {
		if a.Primitives[i] != o.Primitives[i] {
			return false
		}
	}
	for i := range a.Effects {
		if !actionsEqual(a.Effects[i].Script, o.Effects[i].Script) {
			return false
		}
	}
	return true
}

// ToJSON serializes the ability in its canonical form.
func (a *AbilityV2) ToJSON() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ability: %w", err)
	}
	return data, nil
}

// Walk visits every action depth-first. depth is 0 for top-level actions.
// Returning false from fn stops descent below that action.
func (a *AbilityV2) Walk(fn func(action EffectAction, depth int) bool) {
	for _, e := range a.Effects {
		walkActions(e.Script, 0, fn)
	}
}

func walkActions(actions []EffectAction, depth int, fn func(EffectAction, int) bool) {
	for _, act := range actions {
		if !fn(act, depth) {
			continue
		}
		for _, nested := range act.Children() {
			walkActions(nested, depth+1, fn)
		}
	}
}
