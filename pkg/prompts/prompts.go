package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/ability-forge/pkg/effect"
)

// SystemPrompt frames the model as an ability designer. The %s verbs take
// the action vocabulary, the status list and the element list.
const SystemPrompt = `You are the ability designer for an action game. The player fuses elements and you invent the combined spell. You answer with a single JSON object and nothing else: no prose, no markdown fences.

### Response shape
{"name": string, "description": string, "color": "#rrggbb",
 "ability": {"primitives": [element, element], "cooldown": seconds,
             "effects": [{"script": [action, ...]}]}}

### Actions
%s

### Rules
- Top-level script actions must be spawners: spawn_projectile, spawn_area, spawn_beam, spawn_melee, chain_to_nearby or repeat.
- damage, heal, apply_status and knockback only appear inside on_hit, on_enter, on_tick or on_expire lists. They need a target.
- Every spawner carries at least one on_hit (or on_enter/on_tick) action.
- Nest at most 4 levels deep. Deeper branches are ignored.
- cooldown is between 0.1 and 10 seconds.
- Numbers out of range are clamped: projectile count 1-5, speed 50-1200, radius 50-300, duration 1-10, damage 1-100.
- A damage amount may be a formula using caster.level, caster.element_count, target.health, target.max_health and distance with + - * / and parentheses.
- A condition is {"if": predicate} where predicate is one of target.health < 0.5, caster.health >= 50%%, target.has_status('burn'), target.status_stacks('poison') >= 3, distance < 200.

### Statuses
%s

### Elements
%s
`

// UserPromptTemplate asks for one combination.
const UserPromptTemplate = `Design the ability for the fusion of %s. Use "primitives": %s. Reply with the JSON object only.`

// FinalReminder closes every request.
const FinalReminder = `Remember: one JSON object, terminal actions only inside spawners, no commentary.`

var actionDocs = []struct {
	name string
	doc  string
}{
	{effect.ActionSpawnProjectile, "count, speed, spread, pierce; on_hit, on_expire"},
	{effect.ActionSpawnArea, "radius, duration, tick_interval, at (\"target\" or \"caster\"); on_enter, on_tick, on_expire"},
	{effect.ActionSpawnBeam, "length, width, duration, tick_interval; on_hit, on_tick"},
	{effect.ActionSpawnMelee, "range, angle, shape (arc|circle|line|cone), movement (stationary|dash|leap|spin); on_hit"},
	{effect.ActionChainToNearby, "max_chains, radius; on_hit runs on each new target"},
	{effect.ActionRepeat, "count, interval; on_tick (or on_hit) runs each time"},
	{effect.ActionDamage, "amount or formula, element, area_radius"},
	{effect.ActionHeal, "amount or formula"},
	{effect.ActionApplyStatus, "status, duration, stacking (refresh|stack|replace)"},
	{effect.ActionKnockback, "force, duration"},
}

// ActionVocabulary lists every action with its arguments, one per line.
func ActionVocabulary() string {
	var sb strings.Builder
	for _, a := range actionDocs {
		fmt.Fprintf(&sb, "- %s: %s\n", a.name, a.doc)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// StatusVocabulary lists the statuses with their default stacking.
func StatusVocabulary() string {
	parts := make([]string, 0, len(effect.Statuses()))
	for _, s := range effect.Statuses() {
		parts = append(parts, fmt.Sprintf("%s (%s)", s, s.DefaultStacking()))
	}
	return strings.Join(parts, ", ")
}

// ElementVocabulary lists the base elements with their colors.
func ElementVocabulary() string {
	parts := make([]string, 0, len(effect.Elements()))
	for _, e := range effect.Elements() {
		parts = append(parts, fmt.Sprintf("%s %s", e, effect.ElementColor(e)))
	}
	return strings.Join(parts, ", ")
}

// BuildSystemPrompt fills SystemPrompt with the closed vocabularies.
func BuildSystemPrompt() string {
	return fmt.Sprintf(SystemPrompt, ActionVocabulary(), StatusVocabulary(), ElementVocabulary())
}

// BuildUserPrompt names the combination to design.
func BuildUserPrompt(primitives []string) string {
	names := make([]string, len(primitives))
	quoted := make([]string, len(primitives))
	for i, p := range primitives {
		names[i] = effect.TitleCase(p)
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return fmt.Sprintf(UserPromptTemplate, strings.Join(names, " and "), "["+strings.Join(quoted, ", ")+"]")
}
