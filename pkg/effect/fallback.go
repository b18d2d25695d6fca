package effect

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FallbackDamage is the fixed on-hit damage of a fallback ability.
const FallbackDamage = 10

// TitleCase formats an element id for display.
func TitleCase(s string) string {
	// A Caser keeps state and cannot be shared between goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

// Fallback builds the deterministic ability used whenever generation or
// parsing fails: a single weak projectile that deals fixed damage on hit.
func Fallback(primitives []string) *AbilityV2 {
	prims := NormalizePrimitives(primitives)
	names := make([]string, len(prims))
	for i, p := range prims {
		names[i] = TitleCase(p)
	}
	name := "Unstable Bolt"
	if len(names) > 0 {
		name = strings.Join(names, "-") + " Bolt"
	}
	color := "#ffffff"
	element := ""
	if len(prims) > 0 {
		color = ElementColor(prims[0])
		element = prims[0]
	}

	projectile := EffectAction{
		Action: ActionSpawnProjectile,
		Args: Args{
			"count": Number(1),
			"speed": Number(400),
		},
		OnHit: []EffectAction{{
			Action: ActionDamage,
			Args:   Args{"amount": Number(FallbackDamage)},
		}},
	}
	if element != "" {
		projectile.OnHit[0].Args.Set("element", String(element))
	}

	a := &AbilityV2{
		Name:        name,
		Color:       color,
		Primitives:  prims,
		Effects:     []EffectScript{{Script: []EffectAction{projectile}}},
		Cooldown:    DefaultCooldown,
		Version:     SchemaVersion,
		GeneratedAt: time.Now().UTC(),
	}
	a.Description = Describe(a.Effects)
	return a
}
