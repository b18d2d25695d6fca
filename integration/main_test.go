//go:build integration

package integration

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jwebster45206/ability-forge/integration/runner"
)

const casesDir = "cases"

var caseFlag = flag.String("case", "", "Comma-separated case names to run (from integration/cases/); empty runs every case")
var errFlag = flag.String("err", "continue", "Error handling mode: 'continue' (run all steps) or 'exit' (stop on first failure)")
var runsFlag = flag.Int("runs", 1, "Number of times to run each suite (model output is not deterministic)")
var keepFlag = flag.Bool("keep", false, "Leave each suite's player cache in place for inspection")

func TestMain(m *testing.M) {
	flag.Parse()
	fmt.Printf("Running Ability Forge Integration Tests\n")
	fmt.Printf("   API Base URL: %s\n", baseURL())
	os.Exit(m.Run())
}

// TestIntegrationSuites runs every case, or the ones named with -case.
func TestIntegrationSuites(t *testing.T) {
	mode := runner.ErrorHandlingMode(*errFlag)
	if mode != runner.ErrorHandlingExit && mode != runner.ErrorHandlingContinue {
		t.Fatalf("Invalid -err flag value: %s (must be 'exit' or 'continue')", *errFlag)
	}
	if *runsFlag < 1 {
		t.Fatalf("Number of runs must be >= 1, got: %d", *runsFlag)
	}
	if *runsFlag > 1 {
		// Multi-run collects complete statistics
		mode = runner.ErrorHandlingContinue
	}

	files, err := selectCases(*caseFlag)
	if err != nil {
		t.Fatal(err)
	}

	var jobs []runner.TestJob
	for _, file := range files {
		expanded, err := runner.LoadTestSuiteWithExpansion(file, casesDir)
		if err != nil {
			t.Errorf("Failed to load test suite %s: %v", file, err)
			continue
		}
		jobs = append(jobs, expanded...)
	}
	if len(jobs) == 0 {
		t.Fatal("No valid test suites loaded")
	}

	testRunner := runner.NewRunner(baseURL())
	testRunner.Timeout = time.Duration(getIntEnv("TEST_TIMEOUT_SECONDS", 30)) * time.Second
	testRunner.ErrorHandlingMode = mode
	testRunner.KeepCache = *keepFlag
	testRunner.Logger = func(format string, args ...interface{}) {
		fmt.Printf(format+"\n", args...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
	defer cancel()

	stats := make(map[string]*caseStats)
	var failures []failureDetail

	for run := 1; run <= *runsFlag; run++ {
		if *runsFlag > 1 {
			t.Logf("=== RUN %d/%d ===", run, *runsFlag)
		}
		for i, job := range jobs {
			t.Logf("[%d/%d] %s (%d steps)", i+1, len(jobs), job.Name, len(job.Suite.Steps))

			result, err := testRunner.RunSuite(ctx, job.Suite)
			if err != nil && result.Error == nil {
				result.Error = err
			}
			t.Logf("Player ID: %s", result.PlayerID)

			st := stats[job.Name]
			if st == nil {
				st = &caseStats{}
				stats[job.Name] = st
			}

			for _, step := range result.Results {
				if step.Success {
					t.Logf("   ✓ %s %s(%v)", step.StepName, outcomeTag(step), step.Duration)
					continue
				}
				msg := "unknown error"
				if step.Error != nil {
					msg = step.Error.Error()
				}
				t.Logf("   ✗ %s: %s", step.StepName, msg)
				failures = append(failures, failureDetail{
					caseName: job.Name,
					stepName: step.StepName,
					error:    msg,
					run:      run,
				})
			}

			if result.Error != nil {
				st.failures++
				t.Errorf("FAILED: %s: %v", job.Name, result.Error)
				if mode == runner.ErrorHandlingExit {
					t.FailNow()
				}
			} else {
				st.passes++
				t.Logf("PASSED: %s in %v", job.Name, result.Duration)
			}
			t.Logf("--------------------------------")
		}
	}

	t.Log(buildSummary(stats, *runsFlag))
	if len(failures) > 0 {
		t.Log(buildFailureReport(failures))
	}
}

type caseStats struct {
	passes, failures int
}

// failureDetail tracks information about a specific step failure
type failureDetail struct {
	caseName string
	stepName string
	error    string
	run      int
}

// buildSummary reports pass rates per case and flags flaky ones.
func buildSummary(stats map[string]*caseStats, runs int) string {
	passes, total := 0, 0
	for _, st := range stats {
		passes += st.passes
		total += st.passes + st.failures
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\nIntegration summary (%d run(s)): %d/%d suites passed\n", runs, passes, total)
	for _, name := range sortedKeys(stats) {
		st := stats[name]
		n := st.passes + st.failures
		fmt.Fprintf(&sb, "  %s: %d/%d (%.0f%%)", name, st.passes, n, float64(st.passes)/float64(n)*100)
		if st.passes > 0 && st.failures > 0 {
			sb.WriteString("  FLAKY")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// buildFailureReport groups failed steps by case, then by step.
func buildFailureReport(failures []failureDetail) string {
	byCase := make(map[string]map[string][]failureDetail)
	for _, f := range failures {
		if byCase[f.caseName] == nil {
			byCase[f.caseName] = make(map[string][]failureDetail)
		}
		byCase[f.caseName][f.stepName] = append(byCase[f.caseName][f.stepName], f)
	}

	var sb strings.Builder
	sb.WriteString("\nFailed steps:\n")
	for _, caseName := range sortedKeys(byCase) {
		fmt.Fprintf(&sb, "%s\n", caseName)
		steps := byCase[caseName]
		for _, stepName := range sortedKeys(steps) {
			for _, f := range steps[stepName] {
				fmt.Fprintf(&sb, "  ✗ %s (run %d): %s\n", stepName, f.run, f.error)
			}
		}
	}
	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// selectCases resolves -case names, or every case file when none are given.
func selectCases(names string) ([]string, error) {
	var files []string
	if strings.TrimSpace(names) == "" {
		err := filepath.WalkDir(casesDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".json") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to discover test files: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no test files found in %s", casesDir)
		}
		return files, nil
	}

	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !strings.HasSuffix(name, ".json") {
			name += ".json"
		}
		files = append(files, filepath.Join(casesDir, name))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no valid test cases in -case flag: %s", names)
	}
	return files, nil
}

func outcomeTag(r runner.TestResult) string {
	if r.Outcome == "" {
		return ""
	}
	return "[" + r.Outcome + "] "
}

func baseURL() string {
	if u := os.Getenv("API_BASE_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func getIntEnv(name string, defaultValue int) int {
	val, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return defaultValue
	}
	return val
}
