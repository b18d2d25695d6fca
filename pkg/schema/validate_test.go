package schema

import (
	"strings"
	"testing"
)

func hasCode(r Result, code string) bool {
	for _, d := range r.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		json      string
		wantOK    bool
		wantCodes []string
	}{
		{
			name:      "top-level damage is orphaned",
			json:      `{"primitives":["fire","ice"],"cooldown":1,"effects":[{"script":[{"action":"damage","args":{"amount":10}}]}]}`,
			wantOK:    false,
			wantCodes: []string{CodeOrphanedTerminal},
		},
		{
			name:   "damage under projectile on_hit is valid",
			json:   `{"primitives":["fire","ice"],"cooldown":1,"effects":[{"script":[{"action":"spawn_projectile","on_hit":[{"action":"damage","args":{"amount":10}}]}]}]}`,
			wantOK: true,
		},
		{
			name:   "wrapped document",
			json:   `{"name":"X","ability":{"primitives":["air"],"cooldown":2,"effects":[{"script":[{"action":"chain_to_nearby","on_hit":[{"action":"spawn_area","on_tick":[{"action":"heal"}],"on_hit":[{"action":"knockback"}]}]}]}]}}`,
			wantOK: true,
		},
		{
			name:      "spawner without on_hit warns",
			json:      `{"primitives":["air"],"cooldown":2,"effects":[{"script":[{"action":"spawn_beam"}]}]}`,
			wantOK:    true,
			wantCodes: []string{CodeMissingOnHit, CodeNoEffect},
		},
		{
			name:      "missing effects",
			json:      `{"primitives":["air"],"cooldown":2}`,
			wantOK:    false,
			wantCodes: []string{CodeMissingEffects},
		},
		{
			name:      "empty effects",
			json:      `{"primitives":["air"],"cooldown":2,"effects":[]}`,
			wantOK:    false,
			wantCodes: []string{CodeMissingEffects},
		},
		{
			name:      "empty script",
			json:      `{"primitives":["air"],"cooldown":2,"effects":[{"script":[]}]}`,
			wantOK:    false,
			wantCodes: []string{CodeEmptyScript},
		},
		{
			name:   "array reply uses its first element",
			json:   `[{"primitives":["fire"],"cooldown":1,"effects":[{"script":[{"action":"spawn_projectile","on_hit":[{"action":"damage"}]}]}]},{"junk":true}]`,
			wantOK: true,
		},
		{
			name:      "array reply with an orphaned terminal",
			json:      `[{"primitives":["fire"],"cooldown":1,"effects":[{"script":[{"action":"damage"}]}]}]`,
			wantOK:    false,
			wantCodes: []string{CodeOrphanedTerminal},
		},
		{
			name:      "empty array",
			json:      `[]`,
			wantOK:    false,
			wantCodes: []string{CodeNotObject},
		},
		{
			name:      "not an object",
			json:      `[1,2]`,
			wantOK:    false,
			wantCodes: []string{CodeNotObject},
		},
		{
			name:      "invalid json",
			json:      `{"a":`,
			wantOK:    false,
			wantCodes: []string{CodeInvalidJSON},
		},
		{
			name:      "soft warnings",
			json:      `{"effects":[{"script":[{"action":"summon_dragon","on_hit":[{"action":"apply_status","args":{"status":"petrify"},"condition":"target.is_boss"}]}]}]}`,
			wantOK:    true,
			wantCodes: []string{CodeMissingPrimitives, CodeMissingCooldown, CodeUnknownAction, CodeUnknownStatus, CodeBadCondition},
		},
		{
			name:      "bad formula",
			json:      `{"primitives":["fire"],"cooldown":1,"effects":[{"script":[{"action":"spawn_melee","on_hit":[{"action":"damage","args":{"formula":"pow(2)"}}]}]}]}`,
			wantOK:    true,
			wantCodes: []string{CodeBadFormula},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.json)
			if res.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v; diagnostics: %v", res.OK, tt.wantOK, res.Diagnostics)
			}
			if res.Fatal() == tt.wantOK {
				t.Errorf("Fatal() should be the inverse of OK")
			}
			for _, code := range tt.wantCodes {
				if !hasCode(res, code) {
					t.Errorf("expected diagnostic %s, got %v", code, res.Diagnostics)
				}
			}
		})
	}
}

func TestValidate_DeepNestingIsOnlyAWarning(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"primitives":["fire"],"cooldown":1,"effects":[{"script":[`)
	for i := 0; i < 7; i++ {
		b.WriteString(`{"action":"spawn_area","on_hit":[`)
	}
	b.WriteString(`{"action":"damage"}`)
	for i := 0; i < 7; i++ {
		b.WriteString(`]}`)
	}
	b.WriteString(`]}]}`)

	res := Validate(b.String())
	if !res.OK {
		t.Fatalf("deep nesting should not fail validation: %v", res.Diagnostics)
	}
	if !hasCode(res, CodeDeepNesting) {
		t.Errorf("expected deep nesting warning, got %v", res.Diagnostics)
	}
}

func TestResponseSchema(t *testing.T) {
	m, err := ResponseSchemaMap()
	if err != nil {
		t.Fatalf("ResponseSchemaMap failed: %v", err)
	}
	if m["title"] != "Generated Ability" {
		t.Errorf("unexpected title %v", m["title"])
	}
	data := ResponseSchema()
	if data.Definitions == nil {
		t.Fatal("expected definitions for nested action documents")
	}
	if _, ok := data.Definitions["ActionDocument"]; !ok {
		t.Errorf("expected ActionDocument definition, got keys %v", keys(data.Definitions))
	}
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
