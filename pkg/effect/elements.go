package effect

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Element identifiers players combine.
const (
	ElementFire      = "fire"
	ElementWater     = "water"
	ElementEarth     = "earth"
	ElementAir       = "air"
	ElementLightning = "lightning"
	ElementIce       = "ice"
	ElementPoison    = "poison"
	ElementShadow    = "shadow"
)

var elementColors = map[string]string{
	ElementFire:      "#ff5a1f",
	ElementWater:     "#2f7bff",
	ElementEarth:     "#8b5a2b",
	ElementAir:       "#cfe8ff",
	ElementLightning: "#ffe14a",
	ElementIce:       "#9fe7ff",
	ElementPoison:    "#6bd33a",
	ElementShadow:    "#5b2a86",
}

// Elements returns the base element vocabulary in a stable order.
func Elements() []string {
	return []string{
		ElementFire, ElementWater, ElementEarth, ElementAir,
		ElementLightning, ElementIce, ElementPoison, ElementShadow,
	}
}

// IsElement reports whether id is a known base element.
func IsElement(id string) bool {
	_, ok := elementColors[strings.ToLower(strings.TrimSpace(id))]
	return ok
}

// ElementColor returns the display color for id, white when unknown.
func ElementColor(id string) string {
	if c, ok := elementColors[strings.ToLower(strings.TrimSpace(id))]; ok {
		return c
	}
	return "#ffffff"
}

// ElementPairs lists every unordered pair of distinct base elements.
func ElementPairs() [][2]string {
	elems := Elements()
	var pairs [][2]string
	for i := 0; i < len(elems); i++ {
		for j := i + 1; j < len(elems); j++ {
			pairs = append(pairs, [2]string{elems[i], elems[j]})
		}
	}
	return pairs
}

// NormalizePrimitives trims and lowercases ids and drops empties. Order is kept.
func NormalizePrimitives(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// SortPrimitives returns a sorted copy of ids. When every id is numeric they
// sort by value, otherwise lexicographically.
func SortPrimitives(ids []string) []string {
	out := NormalizePrimitives(ids)
	numeric := len(out) > 0
	vals := make(map[string]float64, len(out))
	for _, id := range out {
		f, err := strconv.ParseFloat(id, 64)
		if err != nil {
			numeric = false
			break
		}
		vals[id] = f
	}
	if numeric {
		sort.SliceStable(out, func(i, j int) bool { return vals[out[i]] < vals[out[j]] })
	} else {
		sort.Strings(out)
	}
	return out
}

// ComboSeparator joins the sorted ids of a combo key.
const ComboSeparator = "+"

// ErrPrimitiveSeparator rejects an id that would make combo keys ambiguous.
var ErrPrimitiveSeparator = errors.New("primitive id must not contain " + ComboSeparator)

// CheckPrimitives returns an error for the first id containing the combo
// separator, since ["a+b"] and ["a","b"] would share a key.
func CheckPrimitives(ids []string) error {
	for _, id := range ids {
		if strings.Contains(id, ComboSeparator) {
			return fmt.Errorf("%w: %q", ErrPrimitiveSeparator, id)
		}
	}
	return nil
}

// ComboKey derives the order-independent cache key for a set of ingredients.
func ComboKey(ids []string) string {
	return strings.Join(SortPrimitives(ids), ComboSeparator)
}

// SplitComboKey returns the sorted ids encoded in key.
func SplitComboKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, ComboSeparator)
}
