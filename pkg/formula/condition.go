package formula

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Subject names which entity a predicate inspects.
type Subject string

const (
	SubjectTarget Subject = "target"
	SubjectCaster Subject = "caster"
)

// ConditionView is the read-only world state a predicate may inspect.
// Health returns ok=false when the subject is absent.
type ConditionView interface {
	Health(who Subject) (current, max float64, ok bool)
	HasStatus(who Subject, status string) bool
	StatusStacks(who Subject, status string) int
	Distance() (float64, bool)
}

const (
	opPattern  = `(<=|>=|==|<|>)`
	numPattern = `(-?\d+(?:\.\d+)?)`
)

var (
	healthRe   = regexp.MustCompile(`^(target|caster)\.health\s*` + opPattern + `\s*` + numPattern + `(%?)$`)
	hasRe      = regexp.MustCompile(`^(!?)\s*(target|caster)\.has_status\(\s*['"]?([a-z_]+)['"]?\s*\)$`)
	stacksRe   = regexp.MustCompile(`^(target|caster)\.status_stacks\(\s*['"]?([a-z_]+)['"]?\s*\)\s*` + opPattern + `\s*` + numPattern + `$`)
	distanceRe = regexp.MustCompile(`^distance\s*` + opPattern + `\s*` + numPattern + `$`)
)

// EvaluateCondition matches cond against the known predicate shapes.
// recognized is false when no shape matched; result is then meaningless.
//
// Health thresholds of 1 or less, or with a % suffix, compare the health
// fraction; larger thresholds compare absolute health.
func EvaluateCondition(cond string, view ConditionView) (result, recognized bool) {
	c := strings.ToLower(strings.TrimSpace(cond))
	if c == "" {
		return true, true
	}

	if m := healthRe.FindStringSubmatch(c); m != nil {
		threshold, _ := strconv.ParseFloat(m[3], 64)
		cur, maxHP, ok := view.Health(Subject(m[1]))
		if !ok {
			return false, true
		}
		lhs := cur
		switch {
		case m[4] == "%":
			threshold /= 100
			lhs = fraction(cur, maxHP)
		case threshold <= 1:
			lhs = fraction(cur, maxHP)
		}
		return compare(lhs, m[2], threshold), true
	}

	if m := hasRe.FindStringSubmatch(c); m != nil {
		has := view.HasStatus(Subject(m[2]), m[3])
		if m[1] == "!" {
			return !has, true
		}
		return has, true
	}

	if m := stacksRe.FindStringSubmatch(c); m != nil {
		n, _ := strconv.ParseFloat(m[4], 64)
		return compare(float64(view.StatusStacks(Subject(m[1]), m[2])), m[3], n), true
	}

	if m := distanceRe.FindStringSubmatch(c); m != nil {
		n, _ := strconv.ParseFloat(m[2], 64)
		d, ok := view.Distance()
		if !ok {
			return false, true
		}
		return compare(d, m[1], n), true
	}

	return false, false
}

// Check evaluates cond and fails open: an unrecognized predicate is logged
// and treated as true so the guarded action still runs.
func Check(log *slog.Logger, cond string, view ConditionView) bool {
	result, recognized := EvaluateCondition(cond, view)
	if !recognized {
		if log != nil {
			log.Warn("Unrecognized condition, executing anyway", "condition", cond)
		}
		return true
	}
	return result
}

// Recognized reports whether cond matches a known predicate shape.
func Recognized(cond string) bool {
	c := strings.ToLower(strings.TrimSpace(cond))
	return c == "" || healthRe.MatchString(c) || hasRe.MatchString(c) ||
		stacksRe.MatchString(c) || distanceRe.MatchString(c)
}

func fraction(cur, maxHP float64) float64 {
	if maxHP <= 0 {
		return 0
	}
	return cur / maxHP
}

func compare(lhs float64, op string, rhs float64) bool {
	switch op {
	case "<":
		return lhs < rhs
	case "<=":
		return lhs <= rhs
	case ">":
		return lhs > rhs
	case ">=":
		return lhs >= rhs
	case "==":
		return lhs == rhs
	}
	return false
}
