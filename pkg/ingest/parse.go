package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/tidwall/gjson"
)

// MaxParseDepth caps how deep nested action lists are followed. Anything
// deeper is dropped and noted. It sits above the interpreter's runtime
// ceiling so that guard is still what stops over-deep abilities at cast time.
const MaxParseDepth = 8

// maxValueDepth caps recursion into list/map argument values.
const maxValueDepth = 8

var (
	ErrNotObject = errors.New("ability JSON is not an object")
	ErrEmptyText = errors.New("empty input")
)

// ParseError wraps a parse failure with the raw text that caused it.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse ability: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseAbility maps JSON text onto an AbilityV2. Keys match
// case-insensitively and ignore underscores, unknown fields are ignored, and
// missing optional fields take defaults.
func ParseAbility(text string) (*effect.AbilityV2, error) {
	a, _, err := ParseAbilityNotes(text)
	return a, err
}

// ParseAbilityNotes is ParseAbility plus the list of tolerated problems
// (dropped actions, truncated nesting) found along the way.
func ParseAbilityNotes(text string) (*effect.AbilityV2, []string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, &ParseError{Raw: text, Err: ErrEmptyText}
	}
	if !gjson.Valid(text) {
		return nil, nil, &ParseError{Raw: text, Err: errors.New("invalid JSON")}
	}
	root := gjson.Parse(text)
	if root.IsArray() {
		first := root.Get("0")
		if !first.IsObject() {
			return nil, nil, &ParseError{Raw: text, Err: ErrNotObject}
		}
		root = first
	}
	if !root.IsObject() {
		return nil, nil, &ParseError{Raw: text, Err: ErrNotObject}
	}

	p := &parser{}
	a := p.ability(root)
	return a, p.notes, nil
}

type parser struct {
	notes []string
}

func (p *parser) note(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *parser) ability(root gjson.Result) *effect.AbilityV2 {
	body := root
	if inner := Lookup(root, "ability"); inner.IsObject() {
		body = inner
	}
	field := func(key string) gjson.Result {
		if v := Lookup(body, key); v.Exists() {
			return v
		}
		return Lookup(root, key)
	}

	a := &effect.AbilityV2{
		Name:        field("name").String(),
		Description: field("description").String(),
		Color:       field("color").String(),
		Primitives:  parsePrimitives(field("primitives")),
		Cooldown:    numberOf(field("cooldown")),
		Version:     int(numberOf(field("version"))),
	}

	if ts := field("generated_at"); ts.Exists() {
		if t, err := time.Parse(time.RFC3339Nano, ts.String()); err == nil {
			a.GeneratedAt = t.UTC()
		}
	}
	if a.GeneratedAt.IsZero() {
		a.GeneratedAt = time.Now().UTC()
	}

	if effects := Lookup(body, "effects"); effects.Exists() {
		a.Effects = p.effects(effects)
	} else if script := Lookup(body, "script"); script.Exists() {
		a.Effects = p.effects(body)
	}

	a.Normalize()
	return a
}

func parsePrimitives(v gjson.Result) []string {
	var ids []string
	switch {
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			ids = append(ids, item.String())
			return true
		})
	case v.Type == gjson.String:
		ids = strings.FieldsFunc(v.String(), func(r rune) bool { return r == '+' || r == ',' })
	}
	return effect.NormalizePrimitives(ids)
}

// effects accepts a list of {script} objects, a list of bare actions, a
// single {script} object, or a single action.
func (p *parser) effects(v gjson.Result) []effect.EffectScript {
	var out []effect.EffectScript
	var loose []effect.EffectAction

	add := func(item gjson.Result) {
		if !item.IsObject() {
			p.note("effects: skipped non-object %s", item.Type)
			return
		}
		if script := Lookup(item, "script"); script.Exists() {
			out = append(out, effect.EffectScript{Script: p.actions(script, 0, "script")})
			return
		}
		if Lookup(item, "action").Exists() {
			if act, ok := p.action(item, 0, "effects"); ok {
				loose = append(loose, act)
			}
			return
		}
		p.note("effects: skipped object without script or action")
	}

	if v.IsArray() {
		v.ForEach(func(_, item gjson.Result) bool {
			add(item)
			return true
		})
	} else {
		add(v)
	}
	if len(loose) > 0 {
		out = append(out, effect.EffectScript{Script: loose})
	}
	return out
}

// actions parses an action list (or a single action object) at depth.
func (p *parser) actions(v gjson.Result, depth int, path string) []effect.EffectAction {
	if depth > MaxParseDepth {
		p.note("%s: nesting deeper than %d dropped", path, MaxParseDepth)
		return nil
	}
	var out []effect.EffectAction
	each := func(i int, item gjson.Result) {
		if act, ok := p.action(item, depth, fmt.Sprintf("%s[%d]", path, i)); ok {
			out = append(out, act)
		}
	}
	switch {
	case v.IsArray():
		i := 0
		v.ForEach(func(_, item gjson.Result) bool {
			each(i, item)
			i++
			return true
		})
	case v.IsObject():
		each(0, v)
	}
	return out
}

var actionFields = map[string]bool{
	"action": true, "type": true, "args": true, "params": true, "parameters": true,
	"onhit": true, "onenter": true, "ontick": true, "onexpire": true, "condition": true,
}

func (p *parser) action(v gjson.Result, depth int, path string) (effect.EffectAction, bool) {
	if !v.IsObject() {
		p.note("%s: skipped non-object action", path)
		return effect.EffectAction{}, false
	}
	tag := Lookup(v, "action")
	if !tag.Exists() {
		tag = Lookup(v, "type")
	}
	name := strings.ToLower(strings.TrimSpace(tag.String()))
	if name == "" {
		p.note("%s: skipped action without a tag", path)
		return effect.EffectAction{}, false
	}

	act := effect.EffectAction{Action: name}

	args := Lookup(v, "args")
	if !args.Exists() {
		args = Lookup(v, "params")
	}
	if !args.Exists() {
		args = Lookup(v, "parameters")
	}
	if args.IsObject() {
		act.Args = parseArgs(args)
	}
	// Scalar arguments written inline on the action are folded into args.
	v.ForEach(func(key, val gjson.Result) bool {
		k := strings.ToLower(key.String())
		if actionFields[normalizeKey(k)] || val.IsObject() || val.IsArray() {
			return true
		}
		if act.Args == nil {
			act.Args = effect.Args{}
		}
		if !act.Args.Has(k) {
			act.Args.Set(k, valueOf(val, 0))
		}
		return true
	})

	act.OnHit = p.nested(v, "on_hit", depth, path)
	act.OnEnter = p.nested(v, "on_enter", depth, path)
	act.OnTick = p.nested(v, "on_tick", depth, path)
	act.OnExpire = p.nested(v, "on_expire", depth, path)

	if c := Lookup(v, "condition"); c.Exists() {
		act.Condition = parseCondition(c)
	}
	return act, true
}

func (p *parser) nested(v gjson.Result, key string, depth int, path string) []effect.EffectAction {
	list := Lookup(v, key)
	if !list.Exists() {
		return nil
	}
	return p.actions(list, depth+1, path+"."+key)
}

func parseCondition(v gjson.Result) *effect.EffectCondition {
	switch {
	case v.Type == gjson.String:
		if strings.TrimSpace(v.String()) == "" {
			return nil
		}
		return &effect.EffectCondition{If: v.String()}
	case v.IsObject():
		c := &effect.EffectCondition{If: Lookup(v, "if").String()}
		if c.If == "" {
			c.If = Lookup(v, "when").String()
		}
		if then := Lookup(v, "then"); then.IsObject() {
			c.Then = parseArgs(then)
		}
		if c.If == "" && c.Then == nil {
			return nil
		}
		return c
	}
	return nil
}

func parseArgs(v gjson.Result) effect.Args {
	args := effect.Args{}
	v.ForEach(func(key, val gjson.Result) bool {
		args.Set(key.String(), valueOf(val, 0))
		return true
	})
	return args
}

// valueOf converts a gjson leaf or container into an effect.Value. Every
// number becomes float64. Only top-level arg names are case-folded; keys
// inside map values are kept as written.
func valueOf(v gjson.Result, depth int) effect.Value {
	switch v.Type {
	case gjson.Number:
		return effect.Number(v.Num)
	case gjson.String:
		return effect.String(v.Str)
	case gjson.True:
		return effect.Bool(true)
	case gjson.False:
		return effect.Bool(false)
	case gjson.JSON:
		if depth >= maxValueDepth {
			return effect.Null()
		}
		if v.IsArray() {
			var items []effect.Value
			v.ForEach(func(_, item gjson.Result) bool {
				items = append(items, valueOf(item, depth+1))
				return true
			})
			return effect.List(items...)
		}
		m := map[string]effect.Value{}
		v.ForEach(func(key, item gjson.Result) bool {
			m[key.String()] = valueOf(item, depth+1)
			return true
		})
		return effect.Map(m)
	}
	return effect.Null()
}

func numberOf(v gjson.Result) float64 {
	if f, ok := valueOf(v, 0).AsNumber(); ok {
		return f
	}
	return 0
}

// Lookup finds key in obj ignoring case, underscores, hyphens and spaces,
// so "on_hit", "onHit" and "On-Hit" all match.
func Lookup(obj gjson.Result, key string) gjson.Result {
	if !obj.IsObject() {
		return gjson.Result{}
	}
	want := normalizeKey(key)
	var found gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if normalizeKey(k.String()) == want {
			found = v
			return false
		}
		return true
	})
	return found
}

func normalizeKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c == '_' || c == '-' || c == ' ':
			continue
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + 'a' - 'A')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
