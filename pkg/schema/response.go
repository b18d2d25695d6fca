package schema

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// AbilityDocument is the JSON contract the model is asked to produce. It is
// only used to generate the response schema; parsing goes through ingest so
// that creative deviations are tolerated.
type AbilityDocument struct {
	Name        string      `json:"name" jsonschema:"title=Name,description=Short evocative ability name,minLength=1,required"`
	Description string      `json:"description" jsonschema:"title=Description,description=One sentence describing what the ability does,required"`
	Color       string      `json:"color" jsonschema:"title=Color,description=Hex display color,pattern=^#[0-9a-fA-F]{6}$,required"`
	Ability     AbilityBody `json:"ability" jsonschema:"title=Ability,required"`
}

// AbilityBody holds the executable part of the document.
type AbilityBody struct {
	Primitives []string         `json:"primitives" jsonschema:"title=Primitives,description=Element ids combined to create the ability,minItems=1,required"`
	Effects    []ScriptDocument `json:"effects" jsonschema:"title=Effects,minItems=1,required"`
	Cooldown   float64          `json:"cooldown" jsonschema:"title=Cooldown,description=Seconds between casts,minimum=0.1,maximum=10,required"`
}

// ScriptDocument is one ordered script. Its top-level actions must be
// spawners.
type ScriptDocument struct {
	Script []ActionDocument `json:"script" jsonschema:"minItems=1,required"`
}

// ActionDocument is one node of the effect tree.
type ActionDocument struct {
	Action    string           `json:"action" jsonschema:"enum=spawn_projectile,enum=spawn_area,enum=spawn_beam,enum=spawn_melee,enum=chain_to_nearby,enum=repeat,enum=damage,enum=heal,enum=apply_status,enum=knockback,required"`
	Args      map[string]any   `json:"args,omitempty" jsonschema:"description=Action arguments; numbers are clamped to safe ranges"`
	OnHit     []ActionDocument `json:"on_hit,omitempty" jsonschema:"description=Actions run against each entity hit"`
	OnEnter   []ActionDocument `json:"on_enter,omitempty"`
	OnTick    []ActionDocument `json:"on_tick,omitempty"`
	OnExpire  []ActionDocument `json:"on_expire,omitempty"`
	Condition string           `json:"condition,omitempty" jsonschema:"description=Predicate such as target.health < 0.5 or target.has_status('burn')"`
}

// ResponseSchema reflects the schema for AbilityDocument.
func ResponseSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  true,
	}
	s := reflector.ReflectFromType(reflect.TypeOf(AbilityDocument{}))
	s.Title = "Generated Ability"
	s.Description = "A combat ability composed from element primitives, expressed as a tree of typed actions."
	return s
}

// ResponseSchemaMap returns ResponseSchema as a generic map, the form LLM
// providers accept for structured output.
func ResponseSchemaMap() (map[string]any, error) {
	data, err := json.Marshal(ResponseSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response schema: %w", err)
	}
	return out, nil
}
