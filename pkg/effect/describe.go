package effect

import (
	"fmt"
	"strings"
)

// Describe derives a one-line description from the effect tree, used when
// the model omits one.
func Describe(effects []EffectScript) string {
	var parts []string
	for _, e := range effects {
		for _, act := range e.Script {
			parts = append(parts, describeAction(act, 0))
		}
	}
	if len(parts) == 0 {
		return "Does nothing."
	}
	s := strings.Join(parts, "; then ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

func describeAction(a EffectAction, depth int) string {
	var s string
	switch a.Action {
	case ActionSpawnProjectile:
		n := a.Args.IntOr("count", 1)
		if n > 1 {
			s = fmt.Sprintf("fires %d projectiles", n)
		} else {
			s = "fires a projectile"
		}
	case ActionSpawnArea:
		s = fmt.Sprintf("creates an area of radius %g", a.Args.NumberOr("radius", 100))
	case ActionSpawnBeam:
		s = "channels a beam"
	case ActionSpawnMelee:
		s = fmt.Sprintf("strikes in a %s", a.Args.StringOr("shape", "arc"))
	case ActionChainToNearby:
		s = fmt.Sprintf("chains to up to %d nearby enemies", a.Args.IntOr("max_chains", 3))
	case ActionRepeat:
		s = fmt.Sprintf("repeats %d times", a.Args.IntOr("count", 2))
	case ActionDamage:
		if f := a.Args.StringOr("formula", ""); f != "" {
			s = fmt.Sprintf("deals %s damage", f)
		} else {
			s = fmt.Sprintf("deals %g damage", a.Args.NumberOr("amount", 10))
		}
		if el := a.Args.StringOr("element", ""); el != "" {
			s += " as " + el
		}
	case ActionHeal:
		s = fmt.Sprintf("heals %g", a.Args.NumberOr("amount", 10))
	case ActionApplyStatus:
		s = fmt.Sprintf("applies %s", a.Args.StringOr("status", "a status"))
	case ActionKnockback:
		s = "knocks back"
	default:
		s = a.Action
	}
	if a.Condition != nil && a.Condition.If != "" {
		s += " if " + a.Condition.If
	}
	if depth >= 3 {
		return s
	}
	var nested []string
	for _, c := range a.OnHit {
		nested = append(nested, describeAction(c, depth+1))
	}
	if len(nested) > 0 {
		s += " that " + strings.Join(nested, " and ") + " on hit"
	}
	return s
}
