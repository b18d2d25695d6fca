package effect

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestComboKey_OrderIndependent(t *testing.T) {
	elems := Elements()
	for i := range elems {
		for j := range elems {
			a := ComboKey([]string{elems[i], elems[j]})
			b := ComboKey([]string{elems[j], elems[i]})
			if a != b {
				t.Errorf("ComboKey(%s,%s)=%q but ComboKey(%s,%s)=%q", elems[i], elems[j], a, elems[j], elems[i], b)
			}
		}
	}
}

func TestComboKey(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want string
	}{
		{"lexicographic", []string{"water", "fire"}, "fire+water"},
		{"normalizes case and space", []string{" Water", "FIRE "}, "fire+water"},
		{"numeric ids sort by value", []string{"10", "9", "2"}, "2+9+10"},
		{"mixed falls back to lexicographic", []string{"10", "9", "a"}, "10+9+a"},
		{"drops empties", []string{"", "ice"}, "ice"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComboKey(tt.ids); got != tt.want {
				t.Errorf("ComboKey(%v) = %q, want %q", tt.ids, got, tt.want)
			}
		})
	}
}

func TestCheckPrimitives(t *testing.T) {
	if err := CheckPrimitives([]string{"fire", "water"}); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	err := CheckPrimitives(NormalizePrimitives([]string{"ice", " Fire+Water "}))
	if !errors.Is(err, ErrPrimitiveSeparator) {
		t.Fatalf("expected ErrPrimitiveSeparator, got %v", err)
	}
	if ComboKey([]string{"fire+water"}) != ComboKey([]string{"fire", "water"}) {
		t.Error("expected \"fire+water\" to share a key with fire and water")
	}
}

func TestElementPairs(t *testing.T) {
	if got := len(ElementPairs()); got != 28 {
		t.Errorf("expected 28 pairs, got %d", got)
	}
}

func TestFallback(t *testing.T) {
	a := Fallback([]string{"fire", "water"})

	if a.Malformed() {
		t.Fatal("fallback must not be malformed")
	}
	if len(a.Primitives) != 2 || a.Primitives[0] != "fire" || a.Primitives[1] != "water" {
		t.Errorf("unexpected primitives %v", a.Primitives)
	}
	if len(a.Effects) != 1 || len(a.Effects[0].Script) != 1 {
		t.Fatalf("expected a single script with one action, got %+v", a.Effects)
	}
	proj := a.Effects[0].Script[0]
	if proj.Action != ActionSpawnProjectile {
		t.Errorf("expected spawn_projectile, got %s", proj.Action)
	}
	if len(proj.OnHit) != 1 || proj.OnHit[0].Action != ActionDamage {
		t.Fatalf("expected on_hit damage, got %+v", proj.OnHit)
	}
	if got := proj.OnHit[0].Args.NumberOr("amount", 0); got != FallbackDamage {
		t.Errorf("expected damage %d, got %g", FallbackDamage, got)
	}
	if a.Name != "Fire-Water Bolt" {
		t.Errorf("unexpected name %q", a.Name)
	}
	if a.Description == "" {
		t.Error("expected derived description")
	}
}

func TestMalformed(t *testing.T) {
	tests := []struct {
		name string
		a    *AbilityV2
		want bool
	}{
		{"nil", nil, true},
		{"no effects", &AbilityV2{}, true},
		{"empty script", &AbilityV2{Effects: []EffectScript{{}}}, true},
		{"ok", &AbilityV2{Effects: []EffectScript{{Script: []EffectAction{{Action: ActionSpawnArea}}}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Malformed(); got != tt.want {
				t.Errorf("Malformed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	a := &AbilityV2{
		Primitives: []string{"ice"},
		Effects:    []EffectScript{{Script: []EffectAction{{Action: ActionSpawnBeam}}}},
		Cooldown:   42,
	}
	a.Normalize()

	if a.Cooldown != MaxCooldown {
		t.Errorf("expected cooldown clamped to %g, got %g", MaxCooldown, a.Cooldown)
	}
	if a.Version != SchemaVersion {
		t.Errorf("expected version %d, got %d", SchemaVersion, a.Version)
	}
	if a.Description != "Channels a beam." {
		t.Errorf("unexpected description %q", a.Description)
	}
	if a.Color != ElementColor("ice") {
		t.Errorf("unexpected color %q", a.Color)
	}

	b := &AbilityV2{Cooldown: 0.01}
	b.Normalize()
	if b.Cooldown != MinCooldown {
		t.Errorf("expected cooldown clamped to %g, got %g", MinCooldown, b.Cooldown)
	}
}

func TestAbilityJSON(t *testing.T) {
	a := Fallback([]string{"air", "ice"})
	data, err := a.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var back AbilityV2
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !a.Equal(&back) {
		t.Errorf("abilities differ after JSON encoding:\n%s", data)
	}
}

func TestWalk(t *testing.T) {
	a := &AbilityV2{Effects: []EffectScript{{Script: []EffectAction{{
		Action: ActionSpawnProjectile,
		OnHit: []EffectAction{{
			Action: ActionChainToNearby,
			OnHit:  []EffectAction{{Action: ActionDamage}},
		}},
	}}}}}

	maxDepth := 0
	count := 0
	a.Walk(func(_ EffectAction, depth int) bool {
		count++
		if depth > maxDepth {
			maxDepth = depth
		}
		return true
	})
	if count != 3 || maxDepth != 2 {
		t.Errorf("expected 3 actions to depth 2, got %d to depth %d", count, maxDepth)
	}
}
