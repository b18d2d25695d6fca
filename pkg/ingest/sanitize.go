// Package ingest turns untrusted model output into ability data: it
// extracts and repairs JSON, then maps it onto the effect model.
package ingest

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrNoJSON means the text contained no '{' or '['.
	ErrNoJSON = errors.New("no JSON value found")
	// ErrUnrepairable means extraction and bracket repair both failed.
	ErrUnrepairable = errors.New("JSON could not be repaired")
)

// Sanitize extracts the first JSON value from raw model output that parses
// or can be repaired, dropping any prose around it. Bracketed prose such as
// "[fire+water]" ahead of the JSON is skipped.
func Sanitize(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if firstOpener(text) < 0 {
		return "", ErrNoJSON
	}
	rest := text
	for {
		start := firstOpener(rest)
		if start < 0 {
			return "", ErrUnrepairable
		}
		body := rest[start:]
		st := scan(body)
		if st.end < 0 {
			// Truncated or mismatched: repair from here, else look further on.
			if fixed, err := Repair(body); err == nil {
				return fixed, nil
			}
			rest = body[1:]
			continue
		}
		candidate := body[:st.end+1]
		if gjson.Valid(candidate) {
			return candidate, nil
		}
		if fixed, err := Repair(candidate); err == nil {
			return fixed, nil
		}
		rest = body[st.end+1:]
	}
}

// Repair closes a truncated JSON value. Starting at the first opener it
// closes an unterminated string (dropping a dangling escape), removes
// trailing commas, and appends the missing closers innermost first. The
// result is returned only if it parses.
func Repair(text string) (string, error) {
	start := firstOpener(text)
	if start < 0 {
		return "", ErrNoJSON
	}
	body := text[start:]
	st := scan(body)
	switch {
	case st.end >= 0:
		body = body[:st.end+1]
	case st.broken >= 0:
		body = body[:st.broken]
	}

	var b strings.Builder
	b.Grow(len(body) + len(st.stack) + 1)
	if st.inString && st.end < 0 && st.broken < 0 {
		if st.escaped {
			body = body[:len(body)-1]
		}
		b.WriteString(body)
		b.WriteByte('"')
	} else {
		b.WriteString(body)
	}

	out := strings.TrimRightFunc(b.String(), func(r rune) bool { return r < 128 && isSpace(byte(r)) })
	out = strings.TrimSuffix(out, ",")
	if strings.HasSuffix(out, ":") {
		out += "null"
	}
	if st.end < 0 {
		closers := make([]byte, 0, len(st.stack))
		for i := len(st.stack) - 1; i >= 0; i-- {
			closers = append(closers, closerFor(st.stack[i]))
		}
		out += string(closers)
	}
	out = stripTrailingCommas(out)

	if !gjson.Valid(out) {
		return "", ErrUnrepairable
	}
	return out, nil
}
