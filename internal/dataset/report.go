package dataset

import (
	"fmt"
	"io"
	"strings"
)

var (
	rule    = strings.Repeat("=", 80)
	subrule = strings.Repeat("-", 80)
)

type reportWriter struct {
	w   io.Writer
	err error
}

func (rw *reportWriter) printf(format string, args ...any) {
	if rw.err != nil {
		return
	}
	_, rw.err = fmt.Fprintf(rw.w, format, args...)
}

func (rw *reportWriter) section(n int, title string) {
	rw.printf("\n%s\n%d. %s\n%s\n", subrule, n, title, subrule)
}

// WriteReport renders r as a text report.
func WriteReport(w io.Writer, r Report) error {
	rw := &reportWriter{w: w}
	rw.printf("%s\nABILITY TRAINING DATA DIVERSITY ANALYSIS\n%s\n", rule, rule)
	rw.printf("Total Entries: %d\n", r.Entries)
	if r.Entries == 0 {
		return rw.err
	}

	el := r.Elements
	rw.section(1, "ELEMENT COMBINATIONS")
	rw.printf("Unique combinations: %d/%d\n", el.Unique, el.MaxPossible)
	rw.printf("Coverage: %.1f%%\n", el.Coverage)
	rw.printf("Samples per combo: %d-%d (avg: %.1f)\n", el.MinSamples, el.MaxSamples, el.AvgSamples)
	rw.printf("Distribution evenness: %.1f%% (100%% = perfectly balanced)\n", el.Evenness)
	rw.printf("Entropy: %.2f bits (max: %.2f)\n", el.Entropy, el.MaxEntropy)
	rw.printf("\nTop 5 combinations:\n")
	for _, c := range el.Combos[:min(5, len(el.Combos))] {
		rw.printf("  %3d  %s\n", c.Count, c.Label)
	}
	rw.printf("\nBottom 5 combinations:\n")
	for _, c := range el.Combos[max(0, len(el.Combos)-5):] {
		rw.printf("  %3d  %s\n", c.Count, c.Label)
	}

	ac := r.Actions
	rw.section(2, "ACTION TYPES")
	rw.printf("Unique actions: %d\n", len(ac.Distribution))
	rw.printf("Action entropy: %.2f bits\n", ac.Entropy)
	rw.printf("Unique action sequences: %d (%.1f%%)\n", ac.UniqueSequences, ac.SequenceDiversity)
	rw.printf("Sequence entropy: %.2f bits\n", ac.SequenceEntropy)
	total := 0
	for _, c := range ac.Distribution {
		total += c.Count
	}
	rw.printf("\nAction distribution:\n")
	for _, c := range ac.Distribution {
		rw.printf("  %3d (%5.1f%%)  %s\n", c.Count, float64(c.Count)/float64(total)*100, c.Label)
	}

	n := 3
	if m := r.Melee; m != nil {
		rw.section(n, "MELEE ATTACKS")
		rw.printf("Shapes: %d (entropy: %.2f)\n", len(m.Shapes), m.ShapeEntropy)
		for _, c := range m.Shapes {
			rw.printf("  %3d  %s\n", c.Count, c.Label)
		}
		rw.printf("\nMovements: %d (entropy: %.2f)\n", len(m.Movements), m.MovementEntropy)
		for _, c := range m.Movements {
			rw.printf("  %3d  %s\n", c.Count, c.Label)
		}
		n++
	}

	rw.section(n, "STATUS EFFECTS")
	rw.printf("Unique statuses: %d\n", len(r.Statuses.Distribution))
	rw.printf("Entropy: %.2f bits\n", r.Statuses.Entropy)
	for _, c := range r.Statuses.Distribution {
		rw.printf("  %3d  %s\n", c.Count, c.Label)
	}
	n++

	cx := r.Complexity
	rw.section(n, "ABILITY COMPLEXITY")
	rw.printf("Scripts per ability: %d-%d (avg: %.1f)\n", cx.MinScripts, cx.MaxScripts, cx.AvgScripts)
	rw.printf("Nesting depth: 0-%d (avg: %.1f)\n", cx.MaxNesting, cx.AvgNesting)
	rw.printf("Complexity entropy: %.2f bits\n", cx.Entropy)
	n++

	rw.section(n, "PARAMETER VALUES")
	for _, p := range []struct {
		name string
		st   *ValueStats
	}{{"DAMAGE", r.Parameters.Damage}, {"DURATION", r.Parameters.Duration}, {"COOLDOWN", r.Parameters.Cooldown}} {
		if p.st == nil {
			continue
		}
		rw.printf("%s:\n", p.name)
		rw.printf("  Range: %.1f - %.1f (avg: %.1f)\n", p.st.Min, p.st.Max, p.st.Avg)
		rw.printf("  Unique values: %d\n", p.st.Unique)
		rw.printf("  Entropy: %.2f bits\n", p.st.Entropy)
	}

	rw.printf("\n%s\nOVERALL DIVERSITY SCORE\n%s\n", rule, rule)
	rw.printf("Score: %.1f/100\n", r.Score)
	rw.printf("Verdict: %s\n", r.Verdict)

	rw.printf("\n%s\nRECOMMENDATIONS\n%s\n", rule, rule)
	for _, rec := range r.Recommendations {
		rw.printf("- %s\n", rec)
	}
	return rw.err
}
