package runner

import (
	"time"
)

// Step actions. An empty action is a request.
const (
	ActionRequest  = "request"
	ActionSimulate = "simulate"
	ActionClear    = "clear"
	ActionStats    = "stats"
)

// Request outcomes a step can expect.
const (
	OutcomeHit       = "hit"
	OutcomeGenerated = "generated"
	OutcomeFailed    = "failed"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name  string     `json:"name"`
	Steps []TestStep `json:"steps,omitempty"` // Used for regular tests
	Cases []string   `json:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single API interaction and its expected outcomes.
// Simulate steps cast the ability last seen for the step's primitives.
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	Action       string       `json:"action,omitempty"`
	Primitives   []string     `json:"primitives,omitempty"`
	Force        bool         `json:"force,omitempty"`
	Expectations Expectations `json:"expect"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	Outcome             string   `json:"outcome,omitempty"`
	ComboKey            *string  `json:"combo_key,omitempty"`
	Fallback            *bool    `json:"fallback,omitempty"`
	UseCount            *int     `json:"use_count,omitempty"`
	Version             *int     `json:"version,omitempty"`
	MinEffects          *int     `json:"min_effects,omitempty"`
	NameNotEmpty        bool     `json:"name_not_empty,omitempty"`
	DescriptionContains []string `json:"description_contains,omitempty"`

	// Simulation
	MinDamage     *float64 `json:"min_damage,omitempty"`
	MinCalls      *int     `json:"min_calls,omitempty"`
	CallsOneOf    []string `json:"calls_one_of,omitempty"`
	NoDiagnostics bool     `json:"no_diagnostics,omitempty"`

	// Cache stats
	Count     *int `json:"count,omitempty"`
	TotalUses *int `json:"total_uses,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName  string
	StepName  string
	Success   bool
	Error     error
	Duration  time.Duration
	RequestID string
	Outcome   string
}

// TestJob represents a test suite to be executed by a worker
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	PlayerID string // Player the suite ran as; its cache is cleared afterwards
}
