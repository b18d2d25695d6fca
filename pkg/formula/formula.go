// Package formula evaluates the two tiny expression languages embedded in
// ability scripts: arithmetic damage formulas and condition predicates.
package formula

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxExpressionLength bounds formula input after substitution.
	MaxExpressionLength = 256
	// MaxNesting bounds parenthesis and unary-minus recursion.
	MaxNesting = 32
)

var (
	ErrEmpty    = errors.New("empty formula")
	ErrTooLong  = errors.New("formula too long")
	ErrTooDeep  = errors.New("formula nested too deeply")
	ErrSyntax   = errors.New("formula syntax error")
	ErrTrailing = errors.New("unexpected trailing input")
)

// Variables are the named values a formula may reference.
type Variables struct {
	CasterLevel        float64
	CasterElementCount float64
	TargetHealth       float64
	TargetMaxHealth    float64
	Distance           float64
}

// Names returns the variable vocabulary, longest first.
func Names() []string {
	return []string{
		"caster.element_count",
		"target.max_health",
		"target.health",
		"caster.level",
		"distance",
	}
}

func (v Variables) lookup() map[string]float64 {
	return map[string]float64{
		"caster.level":         v.CasterLevel,
		"caster.element_count": v.CasterElementCount,
		"target.health":        v.TargetHealth,
		"target.max_health":    v.TargetMaxHealth,
		"distance":             v.Distance,
	}
}

// Substitute replaces variable names with their values. Longer names are
// replaced first so target.max_health is never split by target.health.
func Substitute(expr string, vars Variables) string {
	values := vars.lookup()
	out := strings.ToLower(expr)
	for _, name := range Names() {
		if !strings.Contains(out, name) {
			continue
		}
		out = strings.ReplaceAll(out, name, "("+strconv.FormatFloat(values[name], 'f', -1, 64)+")")
	}
	return out
}

// Evaluate substitutes vars into expr and evaluates the arithmetic.
// Division by zero leaves the left operand unchanged.
func Evaluate(expr string, vars Variables) (float64, error) {
	src := strings.TrimSpace(Substitute(expr, vars))
	if src == "" {
		return 0, ErrEmpty
	}
	if len(src) > MaxExpressionLength {
		return 0, ErrTooLong
	}
	p := &parser{src: src}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("%w at %d: %q", ErrTrailing, p.pos, p.src[p.pos:])
	}
	return v, nil
}

// parser is a recursive-descent evaluator over
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = "-" unary | "+" unary | factor
//	factor = number | "(" expr ")"
type parser struct {
	src   string
	pos   int
	depth int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n' || p.src[p.pos] == '\r') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxNesting {
		return ErrTooDeep
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *parser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.unary()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.unary()
			if err != nil {
				return 0, err
			}
			if right != 0 {
				left /= right
			}
		default:
			return left, nil
		}
	}
}

func (p *parser) unary() (float64, error) {
	switch p.peek() {
	case '-':
		p.pos++
		if err := p.enter(); err != nil {
			return 0, err
		}
		defer p.leave()
		v, err := p.unary()
		return -v, err
	case '+':
		p.pos++
		if err := p.enter(); err != nil {
			return 0, err
		}
		defer p.leave()
		return p.unary()
	}
	return p.factor()
}

func (p *parser) factor() (float64, error) {
	c := p.peek()
	if c == '(' {
		p.pos++
		if err := p.enter(); err != nil {
			return 0, err
		}
		defer p.leave()
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("%w: missing ')' at %d", ErrSyntax, p.pos)
		}
		p.pos++
		return v, nil
	}
	return p.number()
}

func (p *parser) number() (float64, error) {
	p.skipSpace()
	start := p.pos
	seenDot := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		if start >= len(p.src) {
			return 0, fmt.Errorf("%w: unexpected end of input", ErrSyntax)
		}
		return 0, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, p.src[start], start)
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrSyntax, p.src[start:p.pos])
	}
	return v, nil
}
