// Package schema performs structural checks on ability JSON before it is
// trusted, and publishes the JSON schema the model is asked to follow.
package schema

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/formula"
	"github.com/jwebster45206/ability-forge/pkg/ingest"
	"github.com/tidwall/gjson"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes.
const (
	CodeInvalidJSON       = "invalid_json"
	CodeNotObject         = "not_object"
	CodeMissingEffects    = "missing_effects"
	CodeEmptyScript       = "empty_script"
	CodeOrphanedTerminal  = "orphaned_terminal"
	CodeMissingAction     = "missing_action"
	CodeUnknownAction     = "unknown_action"
	CodeMissingOnHit      = "missing_on_hit"
	CodeNoEffect          = "no_effect"
	CodeUnknownStatus     = "unknown_status"
	CodeBadCondition      = "unrecognized_condition"
	CodeBadFormula        = "bad_formula"
	CodeMissingPrimitives = "missing_primitives"
	CodeMissingCooldown   = "missing_cooldown"
	CodeDeepNesting       = "deep_nesting"
)

// maxWalkDepth bounds recursion over hostile input.
const maxWalkDepth = 64

// Diagnostic is one finding.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Path     string   `json:"path"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s (%s)", d.Severity, d.Path, d.Message, d.Code)
}

// Result is the outcome of Validate. OK is false when any error-severity
// diagnostic was produced.
type Result struct {
	OK          bool         `json:"ok"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Fatal reports whether the ability must be treated as a parse failure.
func (r Result) Fatal() bool { return !r.OK }

// Errors returns the error-severity diagnostics.
func (r Result) Errors() []Diagnostic { return r.filter(SeverityError) }

// Warnings returns the warning-severity diagnostics.
func (r Result) Warnings() []Diagnostic { return r.filter(SeverityWarning) }

func (r Result) filter(s Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

type validator struct {
	diags []Diagnostic
}

func (v *validator) add(sev Severity, code, path, format string, args ...any) {
	v.diags = append(v.diags, Diagnostic{Severity: sev, Code: code, Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks ability JSON structurally without executing it. A terminal
// action at the top level of a script is an error; spawners missing on_hit,
// unknown tags and unrecognized conditions are warnings. Nesting is not
// capped here beyond a recursion guard.
func Validate(json string) Result {
	v := &validator{}
	v.run(json)
	res := Result{OK: true, Diagnostics: v.diags}
	for _, d := range v.diags {
		if d.Severity == SeverityError {
			res.OK = false
			break
		}
	}
	return res
}

func (v *validator) run(json string) {
	if !gjson.Valid(json) {
		v.add(SeverityError, CodeInvalidJSON, "$", "not valid JSON")
		return
	}
	root, base := gjson.Parse(json), "$"
	if root.IsArray() {
		// Parsing takes the first element of an array reply.
		root, base = root.Get("0"), "$[0]"
	}
	if !root.IsObject() {
		v.add(SeverityError, CodeNotObject, base, "root must be an object, got %s", kindOf(root))
		return
	}
	body := root
	if inner := ingest.Lookup(root, "ability"); inner.IsObject() {
		body, base = inner, base+".ability"
	}

	if p := ingest.Lookup(body, "primitives"); !p.Exists() {
		v.add(SeverityWarning, CodeMissingPrimitives, base+".primitives", "primitives missing")
	} else if p.IsArray() && len(p.Array()) == 0 {
		v.add(SeverityWarning, CodeMissingPrimitives, base+".primitives", "primitives empty")
	}
	if !ingest.Lookup(body, "cooldown").Exists() {
		v.add(SeverityWarning, CodeMissingCooldown, base+".cooldown", "cooldown missing, default applies")
	}

	effects := ingest.Lookup(body, "effects")
	path := base + ".effects"
	if !effects.Exists() {
		if script := ingest.Lookup(body, "script"); script.Exists() {
			v.script(script, base+".script")
			return
		}
		v.add(SeverityError, CodeMissingEffects, path, "effects missing")
		return
	}

	switch {
	case effects.IsArray():
		items := effects.Array()
		if len(items) == 0 {
			v.add(SeverityError, CodeMissingEffects, path, "effects empty")
			return
		}
		for i, item := range items {
			v.effect(item, fmt.Sprintf("%s[%d]", path, i))
		}
	case effects.IsObject():
		v.effect(effects, path)
	default:
		v.add(SeverityError, CodeMissingEffects, path, "effects must be a list, got %s", kindOf(effects))
	}
}

// effect validates one entry of effects: a {script} wrapper or a bare
// top-level action.
func (v *validator) effect(item gjson.Result, path string) {
	if !item.IsObject() {
		v.add(SeverityError, CodeEmptyScript, path, "effect must be an object, got %s", kindOf(item))
		return
	}
	if script := ingest.Lookup(item, "script"); script.Exists() {
		v.script(script, path+".script")
		return
	}
	v.topLevel(item, path)
}

func (v *validator) script(script gjson.Result, path string) {
	var actions []gjson.Result
	switch {
	case script.IsArray():
		actions = script.Array()
	case script.IsObject():
		actions = []gjson.Result{script}
	}
	if len(actions) == 0 {
		v.add(SeverityError, CodeEmptyScript, path, "script has no actions")
		return
	}
	for i, act := range actions {
		v.topLevel(act, fmt.Sprintf("%s[%d]", path, i))
	}
}

func (v *validator) topLevel(act gjson.Result, path string) {
	tag := actionTag(act)
	if effect.IsTerminal(tag) {
		v.add(SeverityError, CodeOrphanedTerminal, path,
			"%s cannot be a top-level action; nest it under a spawner's on_hit", tag)
		return
	}
	v.action(act, path, 0)
}

func (v *validator) action(act gjson.Result, path string, depth int) {
	if depth > maxWalkDepth {
		return
	}
	if !act.IsObject() {
		v.add(SeverityWarning, CodeMissingAction, path, "action must be an object, got %s", kindOf(act))
		return
	}
	tag := actionTag(act)
	switch {
	case tag == "":
		v.add(SeverityWarning, CodeMissingAction, path, "action tag missing")
		return
	case !effect.IsKnownAction(tag):
		v.add(SeverityWarning, CodeUnknownAction, path, "unknown action %q will be skipped", tag)
	}
	if depth == effect.MaxDepth {
		v.add(SeverityWarning, CodeDeepNesting, path, "nested %d levels deep; will not execute", depth)
	}

	args := ingest.Lookup(act, "args")
	switch tag {
	case effect.ActionApplyStatus:
		name := ingest.Lookup(args, "status").String()
		if name == "" {
			name = ingest.Lookup(act, "status").String()
		}
		if _, ok := effect.ParseStatus(name); !ok {
			v.add(SeverityWarning, CodeUnknownStatus, path, "unknown status %q will be skipped", name)
		}
	case effect.ActionDamage, effect.ActionHeal:
		if f := ingest.Lookup(args, "formula"); f.Exists() {
			if _, err := formula.Evaluate(f.String(), formula.Variables{}); err != nil {
				v.add(SeverityWarning, CodeBadFormula, path+".args.formula", "formula will fall back to amount: %v", err)
			}
		}
	}

	if c := ingest.Lookup(act, "condition"); c.Exists() {
		cond := c.String()
		if c.IsObject() {
			cond = ingest.Lookup(c, "if").String()
		}
		if !formula.Recognized(cond) {
			v.add(SeverityWarning, CodeBadCondition, path+".condition", "condition %q is not recognized and will always pass", cond)
		}
	}

	hit := list(ingest.Lookup(act, "on_hit"))
	enter := list(ingest.Lookup(act, "on_enter"))
	tick := list(ingest.Lookup(act, "on_tick"))
	expire := list(ingest.Lookup(act, "on_expire"))

	if effect.IsSpawner(tag) {
		if len(hit)+len(enter)+len(tick) == 0 {
			v.add(SeverityWarning, CodeMissingOnHit, path, "%s has no on_hit", tag)
		}
		if len(hit)+len(enter)+len(tick)+len(expire) == 0 {
			v.add(SeverityWarning, CodeNoEffect, path, "%s has no nested actions and does nothing", tag)
		}
	}

	for _, group := range []struct {
		key   string
		items []gjson.Result
	}{{"on_hit", hit}, {"on_enter", enter}, {"on_tick", tick}, {"on_expire", expire}} {
		for i, child := range group.items {
			v.action(child, fmt.Sprintf("%s.%s[%d]", path, group.key, i), depth+1)
		}
	}
}

func actionTag(act gjson.Result) string {
	tag := ingest.Lookup(act, "action")
	if !tag.Exists() {
		tag = ingest.Lookup(act, "type")
	}
	return strings.ToLower(strings.TrimSpace(tag.String()))
}

func list(v gjson.Result) []gjson.Result {
	switch {
	case v.IsArray():
		return v.Array()
	case v.IsObject():
		return []gjson.Result{v}
	}
	return nil
}

func kindOf(v gjson.Result) string {
	switch {
	case v.IsObject():
		return "object"
	case v.IsArray():
		return "array"
	}
	return strings.ToLower(v.Type.String())
}
