package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jwebster45206/ability-forge/internal/services"
	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/ingest"
	"github.com/jwebster45206/ability-forge/pkg/prompts"
	"github.com/jwebster45206/ability-forge/pkg/schema"
	"github.com/jwebster45206/ability-forge/pkg/textfilter"
)

// DefaultInferenceTimeout bounds one model call.
const DefaultInferenceTimeout = 60 * time.Second

// Generation is the outcome of one Generate call. Ability is never nil.
type Generation struct {
	Ability     *effect.AbilityV2
	JSON        string
	Raw         string
	Fallback    bool
	Diagnostics []schema.Diagnostic
	Notes       []string
	Attempts    int
	// Err is set only for transport or inference failures; a rejected or
	// unparseable reply produces a fallback with Err nil.
	Err error
}

// Generator turns a combination into an ability: prompt, model call,
// sanitize, validate, parse. Any failure ends in the fallback ability.
type Generator struct {
	llm      services.LLMService
	timeout  time.Duration
	attempts int
	filter   *textfilter.Filter
	log      *slog.Logger
}

// NewGenerator returns a Generator calling llm. Pass a *services.GuardedLLM
// when anything else can reach the same model.
func NewGenerator(llm services.LLMService, timeout time.Duration, log *slog.Logger) *Generator {
	if timeout <= 0 {
		timeout = DefaultInferenceTimeout
	}
	return &Generator{llm: llm, timeout: timeout, attempts: 1, log: log}
}

// WithAttempts sets how many model calls a structurally rejected reply may
// use before falling back. Transport errors are never retried.
func (g *Generator) WithAttempts(n int) *Generator {
	if n > 0 {
		g.attempts = n
	}
	return g
}

// WithFilter cleans the name and description of every accepted ability.
func (g *Generator) WithFilter(f *textfilter.Filter) *Generator {
	g.filter = f
	return g
}

// Generate runs the pipeline for primitives.
func (g *Generator) Generate(ctx context.Context, primitives []string) Generation {
	prims := effect.NormalizePrimitives(primitives)
	var gen Generation
	feedback := ""

	for attempt := 1; attempt <= g.attempts; attempt++ {
		gen = g.attempt(ctx, prims, feedback)
		gen.Attempts = attempt
		if gen.Err != nil || !gen.Fallback {
			break
		}
		feedback = rejection(gen)
	}

	if gen.Ability == nil {
		gen.Ability = effect.Fallback(prims)
		gen.Fallback = true
	}
	data, err := gen.Ability.ToJSON()
	if err != nil {
		gen.Ability = effect.Fallback(prims)
		gen.Fallback = true
		data, _ = gen.Ability.ToJSON()
	}
	gen.JSON = string(data)
	return gen
}

func (g *Generator) attempt(ctx context.Context, prims []string, feedback string) Generation {
	fallback := func(gen Generation) Generation {
		gen.Ability = effect.Fallback(prims)
		gen.Fallback = true
		return gen
	}

	msgs, err := prompts.New().WithPrimitives(prims).WithFeedback(feedback).Build()
	if err != nil {
		return fallback(Generation{Err: fmt.Errorf("build prompt: %w", err)})
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	start := time.Now()
	resp, err := g.llm.Chat(callCtx, msgs)
	if err != nil {
		g.log.Error("Inference failed", "error", err, "primitives", prims, "duration", time.Since(start))
		return fallback(Generation{Err: fmt.Errorf("inference: %w", err)})
	}
	g.log.Debug("Inference complete", "primitives", prims, "duration", time.Since(start), "length", len(resp.Message))

	gen := Generation{Raw: resp.Message}

	cleaned, err := ingest.Sanitize(resp.Message)
	if err != nil {
		g.log.Warn("Model reply is not JSON, using fallback", "error", err, "raw", truncate(resp.Message, 200))
		return fallback(gen)
	}

	res := schema.Validate(cleaned)
	gen.Diagnostics = res.Diagnostics
	for _, d := range res.Warnings() {
		g.log.Warn("Ability validation warning", "code", d.Code, "path", d.Path, "message", d.Message)
	}
	if res.Fatal() {
		for _, d := range res.Errors() {
			g.log.Error("Ability validation error", "code", d.Code, "path", d.Path, "message", d.Message)
		}
		return fallback(gen)
	}

	ability, notes, err := ingest.ParseAbilityNotes(cleaned)
	gen.Notes = notes
	if err != nil {
		var pe *ingest.ParseError
		if errors.As(err, &pe) {
			g.log.Warn("Ability parse failed, using fallback", "error", pe.Err, "raw", truncate(pe.Raw, 200))
		} else {
			g.log.Warn("Ability parse failed, using fallback", "error", err)
		}
		return fallback(gen)
	}
	if ability.Malformed() {
		g.log.Warn("Ability has no usable effects, using fallback")
		return fallback(gen)
	}

	if g.filter != nil && g.filter.Ability(ability) {
		g.log.Info("Cleaned generated ability text", "name", ability.Name)
	}
	ability.Primitives = append([]string(nil), prims...)
	gen.Ability = ability
	return gen
}

// rejection summarizes why a reply was rejected, for the retry prompt.
func rejection(gen Generation) string {
	var parts []string
	for _, d := range gen.Diagnostics {
		if d.Severity == schema.SeverityError {
			parts = append(parts, d.Message)
		}
	}
	if len(parts) == 0 {
		return "the reply was not a complete JSON ability object"
	}
	return strings.Join(parts, "; ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
