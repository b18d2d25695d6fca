package dataset

import (
	"math"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jwebster45206/ability-forge/pkg/effect"
)

const (
	// ComplexityLevels is the assumed number of distinct script counts in a
	// healthy dataset.
	ComplexityLevels = 5
	// StatusKinds is the size of the status vocabulary.
	StatusKinds = 10
)

// Count is one labelled tally.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Elements measures element pair coverage.
type Elements struct {
	Unique      int     `json:"unique_combinations"`
	MaxPossible int     `json:"max_possible"`
	Coverage    float64 `json:"coverage_percent"`
	Entropy     float64 `json:"entropy"`
	MaxEntropy  float64 `json:"max_entropy"`
	Evenness    float64 `json:"evenness_percent"`
	MinSamples  int     `json:"min_samples"`
	MaxSamples  int     `json:"max_samples"`
	AvgSamples  float64 `json:"avg_samples"`
	Combos      []Count `json:"distribution"`
}

// Actions measures top-level action variety.
type Actions struct {
	Distribution      []Count `json:"action_distribution"`
	Entropy           float64 `json:"entropy"`
	UniqueSequences   int     `json:"unique_sequences"`
	SequenceEntropy   float64 `json:"sequence_entropy"`
	SequenceDiversity float64 `json:"sequence_diversity_percent"`
}

// Melee measures spawn_melee shapes and movements.
type Melee struct {
	Shapes          []Count `json:"shapes"`
	Movements       []Count `json:"movements"`
	ShapeEntropy    float64 `json:"shape_entropy"`
	MovementEntropy float64 `json:"movement_entropy"`
}

// Statuses measures apply_status variety, following on_hit chains.
type Statuses struct {
	Distribution []Count `json:"distribution"`
	Entropy      float64 `json:"entropy"`
}

// Complexity measures script counts and on_hit nesting.
type Complexity struct {
	AvgScripts float64 `json:"avg_scripts_per_ability"`
	MinScripts int     `json:"min_scripts"`
	MaxScripts int     `json:"max_scripts"`
	AvgNesting float64 `json:"avg_nesting_depth"`
	MaxNesting int     `json:"max_nesting_depth"`
	Entropy    float64 `json:"complexity_entropy"`
}

// ValueStats summarizes one numeric parameter.
type ValueStats struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Avg     float64 `json:"avg"`
	Unique  int     `json:"unique_values"`
	Entropy float64 `json:"entropy"`
}

// Parameters summarizes damage, status duration and cooldown values.
type Parameters struct {
	Damage   *ValueStats `json:"damage,omitempty"`
	Duration *ValueStats `json:"duration,omitempty"`
	Cooldown *ValueStats `json:"cooldown,omitempty"`
}

// Report is the full diversity analysis.
type Report struct {
	Entries         int        `json:"entries"`
	Elements        Elements   `json:"elements"`
	Actions         Actions    `json:"actions"`
	Melee           *Melee     `json:"melee,omitempty"`
	Statuses        Statuses   `json:"status_effects"`
	Complexity      Complexity `json:"complexity"`
	Parameters      Parameters `json:"parameters"`
	Score           float64    `json:"score"`
	Verdict         string     `json:"verdict"`
	Recommendations []string   `json:"recommendations,omitempty"`
}

// Entropy is the Shannon entropy in bits of a distribution of counts.
func Entropy[K comparable](counts map[K]int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c > 0 {
			p := float64(c) / float64(total)
			h -= p * math.Log2(p)
		}
	}
	return h
}

// sorted returns counts ordered by count descending, then label.
func sorted(counts map[string]int) []Count {
	out := make([]Count, 0, len(counts))
	for k, v := range counts {
		out = append(out, Count{Label: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// scripts yields every top-level script action of an entry.
func scripts(e Entry, fn func(gjson.Result)) {
	gjson.Get(e.Raw, "ability.effects").ForEach(func(_, fx gjson.Result) bool {
		fx.Get("script").ForEach(func(_, s gjson.Result) bool {
			fn(s)
			return true
		})
		return true
	})
}

// walkHits visits item and everything reachable through on_hit.
func walkHits(item gjson.Result, depth int, fn func(gjson.Result, int)) {
	fn(item, depth)
	item.Get("on_hit").ForEach(func(_, child gjson.Result) bool {
		walkHits(child, depth+1, fn)
		return true
	})
}

// Analyze measures the diversity of entries.
func Analyze(entries []Entry) Report {
	r := Report{Entries: len(entries)}
	if len(entries) == 0 {
		r.Verdict = verdict(0)
		return r
	}
	r.Elements = analyzeElements(entries)
	r.Actions = analyzeActions(entries)
	r.Melee = analyzeMelee(entries)
	r.Statuses = analyzeStatuses(entries)
	r.Complexity = analyzeComplexity(entries)
	r.Parameters = analyzeParameters(entries)
	r.Score = score(r)
	r.Verdict = verdict(r.Score)
	r.Recommendations = recommend(r)
	return r
}

func analyzeElements(entries []Entry) Elements {
	combos := map[string]int{}
	for _, e := range entries {
		var prims []string
		gjson.Get(e.Raw, "ability.primitives").ForEach(func(_, p gjson.Result) bool {
			prims = append(prims, p.String())
			return true
		})
		combos[effect.ComboKey(prims)]++
	}

	el := Elements{
		Unique:      len(combos),
		MaxPossible: len(effect.ElementPairs()),
		Entropy:     Entropy(combos),
		Combos:      sorted(combos),
	}
	el.Coverage = float64(el.Unique) / float64(el.MaxPossible) * 100
	if el.Unique > 1 {
		el.MaxEntropy = math.Log2(float64(el.Unique))
		el.Evenness = el.Entropy / el.MaxEntropy * 100
	}
	el.MinSamples, el.MaxSamples = el.Combos[len(el.Combos)-1].Count, el.Combos[0].Count
	el.AvgSamples = float64(len(entries)) / float64(el.Unique)
	return el
}

func analyzeActions(entries []Entry) Actions {
	actions := map[string]int{}
	sequences := map[string]int{}
	for _, e := range entries {
		var seq []string
		scripts(e, func(s gjson.Result) {
			name := s.Get("action").String()
			if name == "" {
				name = "unknown"
			}
			actions[name]++
			seq = append(seq, name)
		})
		sequences[strings.Join(seq, ">")]++
	}
	return Actions{
		Distribution:      sorted(actions),
		Entropy:           Entropy(actions),
		UniqueSequences:   len(sequences),
		SequenceEntropy:   Entropy(sequences),
		SequenceDiversity: float64(len(sequences)) / float64(len(entries)) * 100,
	}
}

func analyzeMelee(entries []Entry) *Melee {
	shapes := map[string]int{}
	movements := map[string]int{}
	for _, e := range entries {
		scripts(e, func(s gjson.Result) {
			if s.Get("action").String() != "spawn_melee" {
				return
			}
			shape, movement := "unknown", "stationary"
			if v := s.Get("args.shape"); v.Exists() {
				shape = v.String()
			}
			if v := s.Get("args.movement"); v.Exists() {
				movement = v.String()
			}
			shapes[shape]++
			movements[movement]++
		})
	}
	if len(shapes) == 0 {
		return nil
	}
	return &Melee{
		Shapes:          sorted(shapes),
		Movements:       sorted(movements),
		ShapeEntropy:    Entropy(shapes),
		MovementEntropy: Entropy(movements),
	}
}

func analyzeStatuses(entries []Entry) Statuses {
	statuses := map[string]int{}
	for _, e := range entries {
		scripts(e, func(s gjson.Result) {
			walkHits(s, 0, func(item gjson.Result, _ int) {
				if item.Get("action").String() != "apply_status" {
					return
				}
				name := "unknown"
				if v := item.Get("args.status"); v.Exists() {
					name = v.String()
				}
				statuses[name]++
			})
		})
	}
	return Statuses{Distribution: sorted(statuses), Entropy: Entropy(statuses)}
}

func analyzeComplexity(entries []Entry) Complexity {
	c := Complexity{MinScripts: math.MaxInt}
	lengths := map[int]int{}
	totalScripts, totalDepth := 0, 0
	for _, e := range entries {
		n, maxDepth := 0, 0
		scripts(e, func(s gjson.Result) {
			n++
			walkHits(s, 0, func(_ gjson.Result, depth int) {
				maxDepth = max(maxDepth, depth)
			})
		})
		lengths[n]++
		totalScripts += n
		totalDepth += maxDepth
		c.MinScripts = min(c.MinScripts, n)
		c.MaxScripts = max(c.MaxScripts, n)
		c.MaxNesting = max(c.MaxNesting, maxDepth)
	}
	c.AvgScripts = float64(totalScripts) / float64(len(entries))
	c.AvgNesting = float64(totalDepth) / float64(len(entries))
	c.Entropy = Entropy(lengths)
	return c
}

func analyzeParameters(entries []Entry) Parameters {
	var damage, duration, cooldown []float64
	for _, e := range entries {
		cooldown = append(cooldown, gjson.Get(e.Raw, "ability.cooldown").Float())
		scripts(e, func(s gjson.Result) {
			walkHits(s, 0, func(item gjson.Result, _ int) {
				switch item.Get("action").String() {
				case "damage":
					damage = append(damage, item.Get("args.amount").Float())
				case "apply_status":
					duration = append(duration, item.Get("args.duration").Float())
				}
			})
		})
	}
	return Parameters{
		Damage:   valueStats(damage),
		Duration: valueStats(duration),
		Cooldown: valueStats(cooldown),
	}
}

func valueStats(values []float64) *ValueStats {
	if len(values) == 0 {
		return nil
	}
	st := &ValueStats{Min: values[0], Max: values[0]}
	counts := map[float64]int{}
	sum := 0.0
	for _, v := range values {
		st.Min = min(st.Min, v)
		st.Max = max(st.Max, v)
		sum += v
		counts[v]++
	}
	st.Avg = sum / float64(len(values))
	st.Unique = len(counts)
	st.Entropy = Entropy(counts)
	return st
}

// score averages element coverage, element evenness, sequence diversity,
// complexity variety and status coverage, each on a 0-100 scale.
func score(r Report) float64 {
	complexity := math.Min(r.Complexity.Entropy/math.Log2(ComplexityLevels)*100, 100)
	statuses := math.Min(float64(len(r.Statuses.Distribution))/StatusKinds*100, 100)
	parts := []float64{
		r.Elements.Coverage,
		r.Elements.Evenness,
		r.Actions.SequenceDiversity,
		complexity,
		statuses,
	}
	total := 0.0
	for _, p := range parts {
		total += p
	}
	return total / float64(len(parts))
}

func verdict(score float64) string {
	switch {
	case score >= 80:
		return "EXCELLENT - High diversity"
	case score >= 60:
		return "GOOD - Acceptable diversity"
	case score >= 40:
		return "MODERATE - Could use more variety"
	default:
		return "LOW - Needs significant expansion"
	}
}

func recommend(r Report) []string {
	var out []string
	switch {
	case r.Entries < 500:
		out = append(out, "Sample size too small for fine-tuning (recommended 500-1000+, ideal 2000+)")
	case r.Entries < 1000:
		out = append(out, "Sample size on the low end (recommended 1000+ for robust training)")
	default:
		out = append(out, "Sample size adequate for fine-tuning")
	}
	if r.Elements.AvgSamples < 20 {
		out = append(out, "Few samples per element combination; aim for 30-50+ each")
	}
	if r.Elements.Evenness < 70 {
		out = append(out, "Uneven element distribution; some combinations are underrepresented")
	}
	if r.Actions.SequenceDiversity < 80 {
		out = append(out, "Low action sequence diversity; add more varied ability mechanics")
	}
	return out
}
