// Command abilitytool cleans and inspects ability data: it repairs training
// files, reports dataset diversity, validates single abilities, prints the
// response schema, and generates abilities directly from the model.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jwebster45206/ability-forge/internal/config"
	"github.com/jwebster45206/ability-forge/internal/dataset"
	"github.com/jwebster45206/ability-forge/internal/logger"
	"github.com/jwebster45206/ability-forge/internal/services"
	"github.com/jwebster45206/ability-forge/internal/worker"
	"github.com/jwebster45206/ability-forge/pkg/ingest"
	"github.com/jwebster45206/ability-forge/pkg/schema"
	"github.com/jwebster45206/ability-forge/pkg/textfilter"
)

const usage = `Usage: abilitytool <command> [flags] [args]

Commands:
  fix <in> <out>            extract valid abilities from a malformed file into a JSON array
  analyze [-json] <file>    report training data diversity
  validate <file>           sanitize, parse and validate one ability
  schema                    print the response JSON schema
  generate <elem> <elem>    generate an ability with the configured model
`

var errUsage = errors.New("usage")

type app struct {
	stdout io.Writer
	stderr io.Writer
	newLLM func(*config.Config, *slog.Logger) (services.LLMService, error)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{stdout: os.Stdout, stderr: os.Stderr, newLLM: services.NewLLMService}
	os.Exit(a.run(ctx, os.Args[1:]))
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "fix":
		err = a.fix(args[1:])
	case "analyze":
		err = a.analyze(args[1:])
	case "validate":
		var ok bool
		ok, err = a.validate(args[1:])
		if err == nil && !ok {
			return 1
		}
	case "schema":
		err = a.schema()
	case "generate":
		err = a.generate(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(a.stdout, usage)
		return 0
	default:
		fmt.Fprintf(a.stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if errors.Is(err, errUsage) {
		fmt.Fprint(a.stderr, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) fix(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	in, out := args[0], args[1]
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", in, err)
	}

	rep := dataset.Fix(string(data))
	for _, r := range rep.Rejected {
		name := r.Name
		if name == "" {
			name = "UNKNOWN"
		}
		fmt.Fprintf(a.stdout, "x Invalid: %s - %s\n", name, r.Reason)
	}
	fmt.Fprintf(a.stdout, "Extracted %d ability objects, kept %d, rejected %d\n",
		rep.Extracted, len(rep.Kept), len(rep.Rejected))
	if len(rep.Kept) == 0 {
		return dataset.ErrEmpty
	}

	body, err := dataset.Marshal(rep.Kept)
	if err != nil {
		return fmt.Errorf("failed to encode abilities: %w", err)
	}
	if err := os.WriteFile(out, append(body, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Fprintf(a.stdout, "Wrote %d abilities to %s\n", len(rep.Kept), out)
	return nil
}

func (a *app) analyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	entries, err := dataset.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	rep := dataset.Analyze(entries)
	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return dataset.WriteReport(a.stdout, rep)
}

// validate reports false when the ability is unusable.
func (a *app) validate(args []string) (bool, error) {
	if len(args) != 1 {
		return false, errUsage
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	clean, err := ingest.Sanitize(string(data))
	if err != nil {
		fmt.Fprintf(a.stdout, "error  $  %v\n", err)
		return false, nil
	}
	res := schema.Validate(clean)
	for _, d := range res.Diagnostics {
		fmt.Fprintf(a.stdout, "%-7s %s  %s (%s)\n", d.Severity, d.Path, d.Message, d.Code)
	}
	if res.Fatal() {
		fmt.Fprintln(a.stdout, "Ability is invalid")
		return false, nil
	}

	ability, notes, err := ingest.ParseAbilityNotes(clean)
	if err != nil {
		fmt.Fprintf(a.stdout, "error  $  %v\n", err)
		return false, nil
	}
	for _, n := range notes {
		fmt.Fprintf(a.stdout, "note    %s\n", n)
	}
	if ability.Malformed() {
		fmt.Fprintln(a.stdout, "Ability has no executable effects")
		return false, nil
	}
	fmt.Fprintf(a.stdout, "Ability is valid: %d effect(s), primitives %v\n", len(ability.Effects), ability.Primitives)
	return true, nil
}

func (a *app) schema() error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(schema.ResponseSchema())
}

func (a *app) generate(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.SetupWriter(a.stderr, cfg)

	llm, err := a.newLLM(cfg, log)
	if err != nil {
		return err
	}
	guarded := services.NewGuardedLLM(llm)
	if err := guarded.InitModel(ctx, cfg.ModelName); err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}

	generator := worker.NewGenerator(guarded, cfg.InferenceTimeout, log).WithAttempts(cfg.Attempts)
	if cfg.ContentFilter {
		generator.WithFilter(textfilter.New())
	}
	gen := generator.Generate(ctx, args)
	if gen.Err != nil {
		return fmt.Errorf("generation failed: %w", gen.Err)
	}
	for _, d := range gen.Diagnostics {
		fmt.Fprintf(a.stderr, "%-7s %s  %s\n", d.Severity, d.Path, d.Message)
	}
	if gen.Fallback {
		fmt.Fprintln(a.stderr, "Model reply was rejected; printing the fallback ability")
	}
	_, err = fmt.Fprintln(a.stdout, gen.JSON)
	return err
}
