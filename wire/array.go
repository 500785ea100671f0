package wire

import (
	"fmt"
	"strings"
)

// needsQuoting reports whether a scalar array element must be wrapped in
// double quotes per the PG array literal grammar.
func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		switch r {
		case ',', '{', '}', '"', '\\', ' ', '\t', '\n', '\r':
			return true
		}
	}
	return strings.EqualFold(s, "null")
}

func quoteArrayElement(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// EncodeArray renders a vector of optional scalar strings as a PG array
// literal: nil denotes a bare NULL; a non-nil value is quoted whenever the
// grammar requires it (including the four-character text "NULL", which
// must round-trip as the literal string, not as SQL NULL).
func EncodeArray(elems []*string) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		if e == nil {
			parts[i] = "NULL"
			continue
		}
		if needsQuoting(*e) {
			parts[i] = quoteArrayElement(*e)
		} else {
			parts[i] = *e
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// DecodeArray parses a PG array literal of scalars into a vector of
// optional strings: a bare NULL decodes to nil; a quoted or bare element
// decodes to its unescaped text.
func DecodeArray(literal string) ([]*string, error) {
	s := strings.TrimSpace(literal)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, fmt.Errorf("wire: malformed array literal %q", literal)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return []*string{}, nil
	}

	var out []*string
	i := 0
	n := len(body)
	for i < n {
		if body[i] == '"' {
			var b strings.Builder
			i++
			closed := false
			for i < n {
				c := body[i]
				if c == '\\' && i+1 < n {
					b.WriteByte(body[i+1])
					i += 2
					continue
				}
				if c == '"' {
					i++
					closed = true
					break
				}
				b.WriteByte(c)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("wire: unterminated quoted element in %q", literal)
			}
			val := b.String()
			out = append(out, &val)
			if i < n && body[i] == ',' {
				i++
			}
			continue
		}

		start := i
		for i < n && body[i] != ',' {
			i++
		}
		tok := body[start:i]
		if i < n {
			i++ // skip comma
		}
		if tok == "NULL" {
			out = append(out, nil)
		} else {
			val := tok
			out = append(out, &val)
		}
	}
	return out, nil
}
