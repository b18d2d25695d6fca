package effect

import (
	"math"
	"strings"
)

// Args holds an action's arguments. Keys are stored lowercase.
type Args map[string]Value

// Get returns the raw value for key.
func (a Args) Get(key string) (Value, bool) {
	if a == nil {
		return Value{}, false
	}
	v, ok := a[strings.ToLower(key)]
	if !ok || v.IsNull() {
		return Value{}, false
	}
	return v, true
}

// Has reports whether key is present and non-null.
func (a Args) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// NumberOr returns the numeric value of key, or def when missing or not numeric.
func (a Args) NumberOr(key string, def float64) float64 {
	v, ok := a.Get(key)
	if !ok {
		return def
	}
	if f, ok := v.AsNumber(); ok {
		return f
	}
	return def
}

// IntOr rounds the numeric value of key to the nearest integer.
func (a Args) IntOr(key string, def int) int {
	v, ok := a.Get(key)
	if !ok {
		return def
	}
	f, ok := v.AsNumber()
	if !ok {
		return def
	}
	return int(math.Round(f))
}

// StringOr returns the string value of key, or def.
func (a Args) StringOr(key string, def string) string {
	v, ok := a.Get(key)
	if !ok {
		return def
	}
	if s, ok := v.AsString(); ok {
		return s
	}
	return def
}

// BoolOr returns the bool value of key, or def.
func (a Args) BoolOr(key string, def bool) bool {
	v, ok := a.Get(key)
	if !ok {
		return def
	}
	if b, ok := v.AsBool(); ok {
		return b
	}
	return def
}

// Set stores v under the lowercase form of key.
func (a Args) Set(key string, v Value) {
	a[strings.ToLower(key)] = v
}

// Clone returns a shallow copy; Values are immutable so this is sufficient.
func (a Args) Clone() Args {
	if a == nil {
		return nil
	}
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Equal compares two arg maps.
func (a Args) Equal(o Args) bool {
	if len(a) != len(o) {
		return false
	}
	for k, v := range a {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampInt limits v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
