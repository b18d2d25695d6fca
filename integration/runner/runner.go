package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/queue"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running abilityd API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
	KeepCache         bool // If set, the suite's player cache is left in place
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// suiteState carries what earlier steps learned to later ones.
type suiteState struct {
	playerID  string
	abilities map[string]*effect.AbilityV2 // by combo key
}

// RunSuite executes a complete test suite as a fresh player
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	st := &suiteState{
		playerID:  "it-" + uuid.NewString(),
		abilities: make(map[string]*effect.AbilityV2),
	}
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results:  make([]TestResult, 0, len(suite.Steps)),
		PlayerID: st.playerID,
	}

	if !r.KeepCache {
		defer func() {
			if err := ClearCache(context.WithoutCancel(ctx), r.Client, r.BaseURL, st.playerID); err != nil {
				r.Logger("    Warning: failed to clear cache for %s: %v", st.playerID, err)
			}
		}()
	}

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, st, step)
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// runStep executes a single test step and checks expectations
// Will retry once on timeout errors without backoff
func (r *Runner) runStep(ctx context.Context, st *suiteState, step TestStep) TestResult {
	for attempt := 1; attempt <= 2; attempt++ {
		// Generation gets its own budget on top of the per-step timeout.
		stepCtx, cancel := context.WithTimeout(ctx, r.Timeout+GenerationTimeout)
		result := r.executeStep(stepCtx, st, step)
		cancel()
		if result.Success || result.Error == nil {
			return result
		}

		isTimeout := strings.Contains(result.Error.Error(), "timeout waiting for request")
		if isTimeout && attempt == 1 {
			r.Logger("    Timeout detected, retrying step: %s", step.Name)
			continue
		}
		return result
	}

	return TestResult{StepName: step.Name, Error: fmt.Errorf("unexpected error in retry logic")}
}

func (r *Runner) executeStep(ctx context.Context, st *suiteState, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	var err error
	switch step.Action {
	case "", ActionRequest:
		err = r.requestStep(ctx, st, step, &result)
	case ActionSimulate:
		err = r.simulateStep(ctx, st, step)
	case ActionStats:
		err = r.statsStep(ctx, st, step.Expectations)
	case ActionClear:
		err = ClearCache(ctx, r.Client, r.BaseURL, st.playerID)
		if err == nil {
			clear(st.abilities)
		}
	default:
		err = fmt.Errorf("unknown action %q", step.Action)
	}

	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		return result
	}
	result.Success = true
	return result
}

func (r *Runner) requestStep(ctx context.Context, st *suiteState, step TestStep, result *TestResult) error {
	exp := step.Expectations
	hit, pending, err := PostAbility(ctx, r.Client, r.BaseURL, st.playerID, step.Primitives, step.Force)
	if err != nil {
		return fmt.Errorf("failed to post ability request: %w", err)
	}

	var (
		comboKey string
		ability  *effect.AbilityV2
		fallback bool
		useCount *int
		version  *int
	)

	if hit != nil {
		result.Outcome = OutcomeHit
		comboKey = hit.ComboKey
		ability = hit.Ability
		useCount = &hit.UseCount
		version = &hit.Version
	} else {
		result.RequestID = pending.RequestID
		comboKey = pending.ComboKey

		state, err := PollForRequest(ctx, r.Client, r.BaseURL, pending.RequestID)
		if err != nil {
			return fmt.Errorf("failed to poll for request: %w", err)
		}
		fallback = state.Fallback

		if state.Status == queue.StatusFailed {
			result.Outcome = OutcomeFailed
		} else {
			result.Outcome = OutcomeGenerated
			// The owner loop caches on the tick that settles the request.
			rec, err := GetAbility(ctx, r.Client, r.BaseURL, st.playerID, comboKey)
			if err != nil {
				return fmt.Errorf("completed ability not cached: %w", err)
			}
			ability = rec.Ability
			useCount = &rec.UseCount
			version = &rec.Version
		}
	}

	if ability != nil {
		st.abilities[comboKey] = ability
	}

	if exp.Outcome != "" && result.Outcome != exp.Outcome {
		return fmt.Errorf("expected outcome %s, got %s", exp.Outcome, result.Outcome)
	}
	if exp.ComboKey != nil && comboKey != *exp.ComboKey {
		return fmt.Errorf("expected combo key %s, got %s", *exp.ComboKey, comboKey)
	}
	if exp.Fallback != nil && fallback != *exp.Fallback {
		return fmt.Errorf("expected fallback %t, got %t", *exp.Fallback, fallback)
	}
	if exp.UseCount != nil {
		if useCount == nil {
			return fmt.Errorf("expected use_count %d, but no ability was returned", *exp.UseCount)
		}
		if *useCount != *exp.UseCount {
			return fmt.Errorf("expected use_count %d, got %d", *exp.UseCount, *useCount)
		}
	}
	if exp.Version != nil && (version == nil || *version != *exp.Version) {
		return fmt.Errorf("expected version %d, got %v", *exp.Version, deref(version))
	}
	return checkAbility(exp, ability)
}

func (r *Runner) simulateStep(ctx context.Context, st *suiteState, step TestStep) error {
	exp := step.Expectations
	key := effect.ComboKey(step.Primitives)
	ability, ok := st.abilities[key]
	if !ok {
		return fmt.Errorf("no ability seen for %s; request it in an earlier step", key)
	}

	sim, err := Simulate(ctx, r.Client, r.BaseURL, ability)
	if err != nil {
		return fmt.Errorf("failed to simulate: %w", err)
	}

	if exp.NoDiagnostics && len(sim.Diagnostics) > 0 {
		return fmt.Errorf("expected no diagnostics, got %v", sim.Diagnostics)
	}
	if exp.MinDamage != nil && sim.Trace.Damage < *exp.MinDamage {
		return fmt.Errorf("expected total damage >= %g, got %g", *exp.MinDamage, sim.Trace.Damage)
	}
	if exp.MinCalls != nil && len(sim.Trace.Calls) < *exp.MinCalls {
		return fmt.Errorf("expected at least %d world calls, got %d", *exp.MinCalls, len(sim.Trace.Calls))
	}
	if len(exp.CallsOneOf) > 0 {
		found := false
		for _, c := range sim.Trace.Calls {
			if slices.Contains(exp.CallsOneOf, c.Op) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("expected a world call among %v", exp.CallsOneOf)
		}
	}
	return nil
}

func (r *Runner) statsStep(ctx context.Context, st *suiteState, exp Expectations) error {
	stats, err := GetStats(ctx, r.Client, r.BaseURL, st.playerID)
	if err != nil {
		return fmt.Errorf("failed to get cache stats: %w", err)
	}
	if exp.Count != nil && stats.Count != *exp.Count {
		return fmt.Errorf("expected %d cached abilities, got %d", *exp.Count, stats.Count)
	}
	if exp.TotalUses != nil && stats.TotalUses != *exp.TotalUses {
		return fmt.Errorf("expected %d total uses, got %d", *exp.TotalUses, stats.TotalUses)
	}
	return nil
}

// checkAbility validates the ability body against the expectations
func checkAbility(exp Expectations, ability *effect.AbilityV2) error {
	needsAbility := exp.MinEffects != nil || exp.NameNotEmpty || len(exp.DescriptionContains) > 0
	if !needsAbility {
		return nil
	}
	if ability == nil {
		return fmt.Errorf("expected an ability body, got none")
	}

	if exp.MinEffects != nil && len(ability.Effects) < *exp.MinEffects {
		return fmt.Errorf("expected at least %d effects, got %d", *exp.MinEffects, len(ability.Effects))
	}
	if exp.NameNotEmpty && strings.TrimSpace(ability.Name) == "" {
		return fmt.Errorf("expected a non-empty ability name")
	}
	lowerDesc := strings.ToLower(ability.Description)
	for _, want := range exp.DescriptionContains {
		if !strings.Contains(lowerDesc, strings.ToLower(want)) {
			return fmt.Errorf("expected description to contain '%s', got %q", want, ability.Description)
		}
	}
	return nil
}

func deref(v *int) any {
	if v == nil {
		return "none"
	}
	return *v
}
