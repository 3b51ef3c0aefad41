// Package roastlog turns Artisan roast logs into markdown reports.
package roastlog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

var ErrSyntax = errors.New("literal syntax error")

// ParseLiteral evaluates the literal record syntax Artisan writes to .alog
// files: dicts, lists, tuples, quoted strings, ints, floats, True, False and
// None. Dicts decode to map[string]any, lists and tuples to []any, integers
// to int64 (float64 when they overflow) and None to nil.
func ParseLiteral(src string) (any, error) {
	p := &literalParser{src: src}
	p.skipSpace()
	value, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected %q after value", p.peek())
	}
	return value, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	line := 1 + strings.Count(p.src[:p.pos], "\n")
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, line, fmt.Sprintf(format, args...))
}

func (p *literalParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			p.pos++
		case '\\':
			// explicit line continuation
			if strings.HasPrefix(p.src[p.pos:], "\\\n") {
				p.pos += 2
				continue
			}
			return
		case '#':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *literalParser) value() (any, error) {
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of input")
	}

	c := p.src[p.pos]
	switch {
	case c == '{':
		return p.dict()
	case c == '[':
		return p.sequence('[', ']')
	case c == '(':
		return p.sequence('(', ')')
	case c == '\'' || c == '"':
		return p.stringValue()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		word := p.ident()
		switch word {
		case "True":
			return true, nil
		case "False":
			return false, nil
		case "None":
			return nil, nil
		}
		if isStringPrefix(word) && (p.peek() == '\'' || p.peek() == '"') {
			p.pos -= len(word)
			return p.stringValue()
		}
		return nil, p.errorf("unsupported name %q", word)
	default:
		return nil, p.errorf("unexpected %q", c)
	}
}

func (p *literalParser) dict() (any, error) {
	p.pos++ // {
	out := map[string]any{}
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return out, nil
		}

		key, err := p.value()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':' after dict key")
		}
		p.pos++
		p.skipSpace()
		value, err := p.value()
		if err != nil {
			return nil, err
		}
		out[dictKey(key)] = value

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, p.errorf("expected ',' or '}' in dict")
		}
	}
}

func (p *literalParser) sequence(open, close byte) (any, error) {
	p.pos++ // open
	out := []any{}
	for {
		p.skipSpace()
		if p.peek() == close {
			p.pos++
			return out, nil
		}

		value, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, value)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case close:
		default:
			return nil, p.errorf("expected ',' or %q in sequence opened with %q", close, open)
		}
	}
}

// stringValue reads one or more adjacent string literals and concatenates them.
func (p *literalParser) stringValue() (any, error) {
	var builder strings.Builder
	for {
		part, err := p.stringLiteral()
		if err != nil {
			return nil, err
		}
		builder.WriteString(part)

		save := p.pos
		p.skipSpace()
		next := p.peek()
		if next == '\'' || next == '"' {
			continue
		}
		if isIdentStart(next) {
			word := p.ident()
			if isStringPrefix(word) && (p.peek() == '\'' || p.peek() == '"') {
				p.pos -= len(word)
				continue
			}
		}
		p.pos = save
		return builder.String(), nil
	}
}

func (p *literalParser) stringLiteral() (string, error) {
	raw := false
	for p.pos < len(p.src) && isIdentStart(p.src[p.pos]) {
		switch p.src[p.pos] {
		case 'r', 'R':
			raw = true
		}
		p.pos++
	}

	quote := p.peek()
	if quote != '\'' && quote != '"' {
		return "", p.errorf("expected string")
	}
	delimiter := string(quote)
	if strings.HasPrefix(p.src[p.pos:], strings.Repeat(delimiter, 3)) {
		delimiter = strings.Repeat(delimiter, 3)
	}
	p.pos += len(delimiter)

	var builder strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", p.errorf("unterminated string")
		}
		if strings.HasPrefix(p.src[p.pos:], delimiter) {
			p.pos += len(delimiter)
			return builder.String(), nil
		}

		c := p.src[p.pos]
		if c == '\n' && len(delimiter) == 1 {
			return "", p.errorf("newline in string")
		}
		if c != '\\' {
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			builder.WriteRune(r)
			p.pos += size
			continue
		}

		if raw {
			builder.WriteByte('\\')
			p.pos++
			if p.pos < len(p.src) {
				builder.WriteByte(p.src[p.pos])
				p.pos++
			}
			continue
		}
		if err := p.escape(&builder); err != nil {
			return "", err
		}
	}
}

func (p *literalParser) escape(builder *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return p.errorf("unterminated escape")
	}

	c := p.src[p.pos]
	p.pos++
	switch c {
	case '\n':
	case '\\', '\'', '"':
		builder.WriteByte(c)
	case 'n':
		builder.WriteByte('\n')
	case 't':
		builder.WriteByte('\t')
	case 'r':
		builder.WriteByte('\r')
	case 'a':
		builder.WriteByte('\a')
	case 'b':
		builder.WriteByte('\b')
	case 'f':
		builder.WriteByte('\f')
	case 'v':
		builder.WriteByte('\v')
	case 'x':
		return p.hexEscape(builder, 2)
	case 'u':
		return p.hexEscape(builder, 4)
	case 'U':
		return p.hexEscape(builder, 8)
	case '0', '1', '2', '3', '4', '5', '6', '7':
		start := p.pos - 1
		for p.pos < len(p.src) && p.pos-start < 3 && p.src[p.pos] >= '0' && p.src[p.pos] <= '7' {
			p.pos++
		}
		code, _ := strconv.ParseUint(p.src[start:p.pos], 8, 32)
		builder.WriteRune(rune(code))
	default:
		// unknown escapes are kept verbatim
		builder.WriteByte('\\')
		builder.WriteByte(c)
	}
	return nil
}

func (p *literalParser) hexEscape(builder *strings.Builder, digits int) error {
	if p.pos+digits > len(p.src) {
		return p.errorf("truncated escape")
	}
	code, err := strconv.ParseUint(p.src[p.pos:p.pos+digits], 16, 32)
	if err != nil || code > utf8.MaxRune {
		return p.errorf("invalid escape %q", p.src[p.pos:p.pos+digits])
	}
	p.pos += digits
	builder.WriteRune(rune(code))
	return nil
}

func (p *literalParser) number() (any, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
		p.skipSpace()
	}
	sign := strings.TrimSpace(p.src[start:p.pos])

	digitsStart := p.pos
	isFloat := false
scan:
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case isDigit(c) || c == '_':
		case c == '.':
			isFloat = true
		case c == 'e' || c == 'E':
			isFloat = true
			if next := p.pos + 1; next < len(p.src) && (p.src[next] == '-' || p.src[next] == '+') {
				p.pos++
			}
		default:
			break scan
		}
		p.pos++
	}
	digits := strings.ReplaceAll(p.src[digitsStart:p.pos], "_", "")
	if digits == "" || digits == "." {
		return nil, p.errorf("malformed number")
	}
	text := sign + digits

	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return nil, p.errorf("malformed number %q", text)
	}
	if math.IsInf(f, 0) && !isFloat {
		return nil, p.errorf("integer %q out of range", text)
	}
	return f, nil
}

func (p *literalParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) && (isIdentStart(p.src[p.pos]) || isDigit(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func dictKey(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case nil:
		return "None"
	case bool:
		if k {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(k)
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isStringPrefix(word string) bool {
	switch strings.ToLower(word) {
	case "u", "r", "b", "br", "rb":
		return true
	}
	return false
}
