package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/jwebster45206/ability-forge/pkg/chat"
	"github.com/jwebster45206/ability-forge/pkg/effect"
	"gopkg.in/yaml.v3"
)

// DefaultExampleLimit is how many few-shot examples a prompt carries.
const DefaultExampleLimit = 2

//go:embed examples.yaml
var examplesYAML []byte

// Example is one few-shot pair: a combination and a model reply for it.
type Example struct {
	Primitives []string `yaml:"primitives"`
	Response   string   `yaml:"response"`
}

var (
	examplesOnce sync.Once
	examples     []Example
	examplesErr  error
)

// Examples returns the embedded few-shot catalog.
func Examples() ([]Example, error) {
	examplesOnce.Do(func() {
		examples, examplesErr = ParseExamples(examplesYAML)
	})
	return examples, examplesErr
}

// ParseExamples decodes a YAML list of examples.
func ParseExamples(data []byte) ([]Example, error) {
	var out []Example
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse examples: %w", err)
	}
	for i := range out {
		out[i].Primitives = effect.NormalizePrimitives(out[i].Primitives)
		out[i].Response = strings.TrimSpace(out[i].Response)
		if len(out[i].Primitives) == 0 || out[i].Response == "" {
			return nil, fmt.Errorf("example %d is missing primitives or response", i)
		}
	}
	return out, nil
}

// Builder constructs the chat messages for one generation using a fluent
// interface.
type Builder struct {
	primitives   []string
	examples     []Example
	exampleLimit int
	feedback     string
	messages     []chat.ChatMessage
}

// New creates a new prompt builder with default settings.
func New() *Builder {
	return &Builder{
		exampleLimit: DefaultExampleLimit,
		messages:     make([]chat.ChatMessage, 0),
	}
}

// WithPrimitives sets the combination to design.
func (b *Builder) WithPrimitives(primitives []string) *Builder {
	b.primitives = effect.NormalizePrimitives(primitives)
	return b
}

// WithExamples overrides the few-shot catalog.
func (b *Builder) WithExamples(examples []Example) *Builder {
	b.examples = examples
	return b
}

// WithExampleLimit sets how many examples are included. Zero disables them.
func (b *Builder) WithExampleLimit(limit int) *Builder {
	b.exampleLimit = limit
	return b
}

// WithFeedback adds a note about a previous rejected attempt.
func (b *Builder) WithFeedback(note string) *Builder {
	b.feedback = strings.TrimSpace(note)
	return b
}

// Build constructs and returns the final message array for LLM consumption.
func (b *Builder) Build() ([]chat.ChatMessage, error) {
	if len(b.primitives) == 0 {
		return nil, fmt.Errorf("primitives are required")
	}
	if b.examples == nil {
		all, err := Examples()
		if err != nil {
			return nil, err
		}
		b.examples = all
	}

	b.messages = make([]chat.ChatMessage, 0, 2+2*b.exampleLimit+2)

	// 1. System prompt
	b.messages = append(b.messages, chat.ChatMessage{
		Role:    chat.ChatRoleSystem,
		Content: BuildSystemPrompt(),
	})

	// 2. Few-shot pairs
	for _, ex := range SelectExamples(b.examples, b.primitives, b.exampleLimit) {
		b.messages = append(b.messages,
			chat.ChatMessage{Role: chat.ChatRoleUser, Content: BuildUserPrompt(ex.Primitives)},
			chat.ChatMessage{Role: chat.ChatRoleAgent, Content: ex.Response},
		)
	}

	// 3. The request itself
	b.messages = append(b.messages, chat.ChatMessage{
		Role:    chat.ChatRoleUser,
		Content: BuildUserPrompt(b.primitives),
	})

	// 4. Feedback and final reminder
	reminder := FinalReminder
	if b.feedback != "" {
		reminder = "Your previous answer was rejected: " + b.feedback + "\n" + reminder
	}
	b.messages = append(b.messages, chat.ChatMessage{
		Role:    chat.ChatRoleSystem,
		Content: reminder,
	})

	return b.messages, nil
}

// SelectExamples picks up to limit examples, preferring ones that share an
// element with primitives and skipping an exact match so the model does not
// copy it. Catalog order breaks ties.
func SelectExamples(all []Example, primitives []string, limit int) []Example {
	if limit <= 0 {
		return nil
	}
	want := effect.ComboKey(primitives)
	var overlap, rest []Example
	for _, ex := range all {
		if effect.ComboKey(ex.Primitives) == want {
			continue
		}
		if sharesElement(ex.Primitives, primitives) {
			overlap = append(overlap, ex)
		} else {
			rest = append(rest, ex)
		}
	}
	picked := append(overlap, rest...)
	if len(picked) > limit {
		picked = picked[:limit]
	}
	return picked
}

func sharesElement(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// BuildMessages is a convenience function for the common case.
func BuildMessages(primitives []string) ([]chat.ChatMessage, error) {
	return New().WithPrimitives(primitives).Build()
}
