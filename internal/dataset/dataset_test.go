package dataset

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const steam = `{"name": "Steam Burst", "description": "Scalding vapor.", "color": "#cccccc",
 "ability": {"primitives": ["fire", "water"], "cooldown": 1.5, "effects": [{"script": [
  {"action": "spawn_projectile", "args": {"speed": 400}, "on_hit": [
   {"action": "damage", "args": {"amount": 20}},
   {"action": "apply_status", "args": {"status": "burn", "duration": 3}}
  ]}
 ]}]}}`

const quake = `{"name": "Quake Slam", "description": "Shatters the ground.", "color": "#8b5a2b",
 "ability": {"primitives": ["earth", "ice"], "cooldown": 4, "effects": [{"script": [
  {"action": "spawn_melee", "args": {"shape": "circle", "movement": "leap"}, "on_hit": [
   {"action": "damage", "args": {"amount": 35}},
   {"action": "spawn_area", "args": {"radius": 80}, "on_hit": [
    {"action": "apply_status", "args": {"status": "freeze", "duration": 2}}
   ]}
  ]},
  {"action": "spawn_beam", "args": {"length": 200}}
 ]}]}}`

func TestFix(t *testing.T) {
	noColor := `{"name": "Gust", "description": "Wind.", "ability": {"primitives": ["air", "air"], "cooldown": 1, "effects": [{"script": []}]}}`
	onePrim := `{"name": "Spark", "description": "Zap.", "color": "#ffff00", "ability": {"primitives": ["lightning"], "cooldown": 1, "effects": [{"script": []}]}}`
	text := steam + "\n,,\n" + `{"name": "Broken", "ability": {"x": }}` + "\n" + quake + "\n" + noColor + onePrim + `{"note": "no ability"}`

	rep := Fix(text)
	assert.Equal(t, 4, rep.Extracted)
	require.Len(t, rep.Kept, 2)
	assert.Equal(t, "Steam Burst", rep.Kept[0].Name())
	assert.Equal(t, "Quake Slam", rep.Kept[1].Name())

	reasons := map[string]string{}
	for _, r := range rep.Rejected {
		reasons[r.Name] = r.Reason
	}
	assert.Equal(t, "missing field: color", reasons["Gust"])
	assert.Equal(t, "invalid primitives (must have exactly 2)", reasons["Spark"])
	assert.Equal(t, "unparsable object", reasons[""])

	out, err := Marshal(rep.Kept)
	require.NoError(t, err)
	var back []map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Len(t, back, 2)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	fixed := filepath.Join(dir, "fixed.json")
	require.NoError(t, os.WriteFile(fixed, []byte("["+steam+","+quake+"]"), 0o644))
	entries, err := Load(fixed)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	broken := filepath.Join(dir, "broken.jsonl")
	require.NoError(t, os.WriteFile(broken, []byte(steam+"\n"+quake+"\n{\"name\": \"cut"), 0o644))
	entries, err = Load(broken)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("[]"), 0o644))
	_, err = Load(empty)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestEntropy(t *testing.T) {
	assert.Equal(t, 0.0, Entropy(map[string]int{}))
	assert.Equal(t, 0.0, Entropy(map[string]int{"a": 5}))
	assert.InDelta(t, 1.0, Entropy(map[string]int{"a": 3, "b": 3}), 1e-9)
	assert.InDelta(t, 2.0, Entropy(map[int]int{1: 1, 2: 1, 3: 1, 4: 1}), 1e-9)
}

func TestAnalyze(t *testing.T) {
	r := Analyze([]Entry{{Raw: steam}, {Raw: quake}, {Raw: steam}})

	assert.Equal(t, 3, r.Entries)
	assert.Equal(t, 2, r.Elements.Unique)
	assert.Equal(t, 28, r.Elements.MaxPossible)
	assert.InDelta(t, 2.0/28*100, r.Elements.Coverage, 1e-9)
	assert.Equal(t, 1, r.Elements.MinSamples)
	assert.Equal(t, 2, r.Elements.MaxSamples)
	assert.Equal(t, "fire+water", r.Elements.Combos[0].Label)

	assert.Equal(t, 2, r.Actions.UniqueSequences)
	assert.InDelta(t, 2.0/3*100, r.Actions.SequenceDiversity, 1e-9)
	assert.Equal(t, Count{Label: "spawn_projectile", Count: 2}, r.Actions.Distribution[0])

	require.NotNil(t, r.Melee)
	assert.Equal(t, []Count{{Label: "circle", Count: 1}}, r.Melee.Shapes)
	assert.Equal(t, []Count{{Label: "leap", Count: 1}}, r.Melee.Movements)

	// Statuses are found through on_hit chains.
	assert.Equal(t, []Count{{Label: "burn", Count: 2}, {Label: "freeze", Count: 1}}, r.Statuses.Distribution)

	assert.Equal(t, 1, r.Complexity.MinScripts)
	assert.Equal(t, 2, r.Complexity.MaxScripts)
	assert.Equal(t, 2, r.Complexity.MaxNesting)

	require.NotNil(t, r.Parameters.Damage)
	assert.Equal(t, 20.0, r.Parameters.Damage.Min)
	assert.Equal(t, 35.0, r.Parameters.Damage.Max)
	assert.Equal(t, 2, r.Parameters.Damage.Unique)
	assert.InDelta(t, (1.5+4+1.5)/3, r.Parameters.Cooldown.Avg, 1e-9)

	complexity := math.Min(r.Complexity.Entropy/math.Log2(ComplexityLevels)*100, 100)
	want := (r.Elements.Coverage + r.Elements.Evenness + r.Actions.SequenceDiversity + complexity + 20) / 5
	assert.InDelta(t, want, r.Score, 1e-9)
	assert.Equal(t, "LOW - Needs significant expansion", r.Verdict)
	assert.Contains(t, r.Recommendations[0], "Sample size too small")
}

func TestVerdict(t *testing.T) {
	assert.Equal(t, "EXCELLENT - High diversity", verdict(80))
	assert.Equal(t, "GOOD - Acceptable diversity", verdict(60))
	assert.Equal(t, "MODERATE - Could use more variety", verdict(40))
	assert.Equal(t, "LOW - Needs significant expansion", verdict(39.9))
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, Analyze([]Entry{{Raw: steam}, {Raw: quake}})))
	out := buf.String()
	for _, want := range []string{"ELEMENT COMBINATIONS", "MELEE ATTACKS", "STATUS EFFECTS", "Score:", "RECOMMENDATIONS"} {
		assert.Contains(t, out, want)
	}
}
