// Package dataset cleans and measures ability training data: JSON arrays
// or concatenated model transcripts of {name, description, color, ability}
// documents.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/jwebster45206/ability-forge/pkg/ingest"
)

// ErrEmpty is returned when a file yields no usable entries.
var ErrEmpty = errors.New("no ability entries found")

// Entry is one training document, kept as raw JSON so unknown fields survive
// a fix round trip.
type Entry struct {
	Raw string
}

// Name returns the entry's name field.
func (e Entry) Name() string {
	return gjson.Get(e.Raw, "name").String()
}

// Rejected is an object Fix could not keep.
type Rejected struct {
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// FixReport is the outcome of Fix.
type FixReport struct {
	Extracted int        `json:"extracted"`
	Kept      []Entry    `json:"-"`
	Rejected  []Rejected `json:"rejected,omitempty"`
}

// Extract pulls every balanced top-level object out of text and keeps the
// ones that parse and carry both name and ability.
func Extract(text string) (entries []Entry, unparsable int) {
	for _, obj := range ingest.ExtractObjects(text) {
		if !gjson.Valid(obj) {
			unparsable++
			continue
		}
		doc := gjson.Parse(obj)
		if doc.Get("name").Exists() && doc.Get("ability").Exists() {
			entries = append(entries, Entry{Raw: obj})
		}
	}
	return entries, unparsable
}

// Check reports why an entry is not a usable training example, or "" when
// it is.
func Check(e Entry) string {
	doc := gjson.Parse(e.Raw)
	for _, field := range []string{"name", "description", "color", "ability"} {
		if !doc.Get(field).Exists() {
			return "missing field: " + field
		}
	}
	ability := doc.Get("ability")
	if p := ability.Get("primitives"); !p.IsArray() || len(p.Array()) != 2 {
		return "invalid primitives (must have exactly 2)"
	}
	if fx := ability.Get("effects"); !fx.IsArray() || len(fx.Array()) == 0 {
		return "missing effects"
	}
	if !ability.Get("cooldown").Exists() {
		return "missing cooldown"
	}
	return ""
}

// Fix extracts and checks every object in text.
func Fix(text string) FixReport {
	entries, unparsable := Extract(text)
	rep := FixReport{Extracted: len(entries)}
	for i := 0; i < unparsable; i++ {
		rep.Rejected = append(rep.Rejected, Rejected{Reason: "unparsable object"})
	}
	for _, e := range entries {
		if reason := Check(e); reason != "" {
			rep.Rejected = append(rep.Rejected, Rejected{Name: e.Name(), Reason: reason})
			continue
		}
		rep.Kept = append(rep.Kept, e)
	}
	return rep
}

// Marshal renders entries as an indented JSON array.
func Marshal(entries []Entry) ([]byte, error) {
	raws := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		raws[i] = json.RawMessage(e.Raw)
	}
	return json.MarshalIndent(raws, "", "  ")
}

// Load reads a fixed JSON array, or falls back to extracting objects from a
// malformed file.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	text := string(data)

	var entries []Entry
	if root := gjson.Parse(text); gjson.Valid(text) && root.IsArray() {
		root.ForEach(func(_, v gjson.Result) bool {
			if v.IsObject() && v.Get("ability").Exists() {
				entries = append(entries, Entry{Raw: v.Raw})
			}
			return true
		})
	} else {
		entries, _ = Extract(text)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return entries, nil
}
