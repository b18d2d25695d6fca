package ingest

// scanState is the result of walking text with a string-aware bracket
// scanner.
type scanState struct {
	stack    []byte // open brackets, innermost last
	inString bool
	escaped  bool
	// end is the index of the bracket that closed the first value, or -1.
	end int
	// broken is the index of a closer that did not match, or -1.
	broken int
}

func isOpener(c byte) bool { return c == '{' || c == '[' }

func closerFor(c byte) byte {
	if c == '{' {
		return '}'
	}
	return ']'
}

// scan walks s, which must start with an opener, until the first value is
// balanced, a mismatched closer is seen, or input runs out.
func scan(s string) scanState {
	st := scanState{end: -1, broken: -1}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case st.escaped:
				st.escaped = false
			case c == '\\':
				st.escaped = true
			case c == '"':
				st.inString = false
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
		case '{', '[':
			st.stack = append(st.stack, c)
		case '}', ']':
			if len(st.stack) == 0 || closerFor(st.stack[len(st.stack)-1]) != c {
				st.broken = i
				return st
			}
			st.stack = st.stack[:len(st.stack)-1]
			if len(st.stack) == 0 {
				st.end = i
				return st
			}
		}
	}
	return st
}

// firstOpener returns the index of the first '{' or '[' in s, or -1.
func firstOpener(s string) int {
	for i := 0; i < len(s); i++ {
		if isOpener(s[i]) {
			return i
		}
	}
	return -1
}

// ExtractObjects returns every balanced top-level {...} in s, in order.
// Text between objects, including stray brackets, is skipped. Scanning stops
// at the first object that never closes.
func ExtractObjects(s string) []string {
	var out []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		st := scan(s[i:])
		if st.end < 0 {
			if st.broken >= 0 {
				i += st.broken
				continue
			}
			break
		}
		out = append(out, s[i:i+st.end+1])
		i += st.end
	}
	return out
}

// stripTrailingCommas removes commas that directly precede a closer,
// ignoring string contents.
func stripTrailingCommas(s string) string {
	out := make([]byte, 0, len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			out = append(out, c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == '}' || c == ']' {
			j := len(out) - 1
			for j >= 0 && isSpace(out[j]) {
				j--
			}
			if j >= 0 && out[j] == ',' {
				out = append(out[:j], out[j+1:]...)
			}
		}
		out = append(out, c)
	}
	return string(out)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
