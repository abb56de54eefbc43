package scss

import (
	"fmt"
	"strings"
)

type stmtKind int

const (
	declStmt stmtKind = iota
	ruleStmt
	atStmt
)

// stmt is one parsed statement. For declarations name/value hold the
// property and value, for rules selector holds the prelude, for at-rules
// name is the keyword without "@" and value its parameters.
type stmt struct {
	kind     stmtKind
	name     string
	value    string
	selector string
	block    bool
	children []*stmt
	line     int
}

// Error reports malformed input or an unsupported construct, with the file
// and line it was found at.
type Error struct {
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

type parser struct {
	file string
	src  string
	pos  int
	line int
}

func parse(file, src string) ([]*stmt, error) {
	p := &parser{file: file, src: src, line: 1}
	return p.block(true)
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return &Error{File: p.file, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) block(top bool) ([]*stmt, error) {
	var out []*stmt
	for {
		p.skipTrivia()
		if p.pos >= len(p.src) {
			if !top {
				return nil, p.errorf(p.line, "unexpected end of input, expected \"}\"")
			}
			return out, nil
		}

		switch p.src[p.pos] {
		case '}':
			if top {
				return nil, p.errorf(p.line, "unexpected \"}\"")
			}
			p.pos++
			return out, nil
		case ';':
			p.pos++
			continue
		}

		line := p.line
		text, term, err := p.prelude()
		if err != nil {
			return nil, err
		}

		if term == '{' {
			p.pos++
			children, err := p.block(false)
			if err != nil {
				return nil, err
			}
			if strings.HasPrefix(text, "@") {
				name, params := splitAtRule(text)
				out = append(out, &stmt{kind: atStmt, name: name, value: params, block: true, children: children, line: line})
			} else {
				if text == "" {
					return nil, p.errorf(line, "expected selector before \"{\"")
				}
				out = append(out, &stmt{kind: ruleStmt, selector: text, block: true, children: children, line: line})
			}
			continue
		}

		if term == ';' {
			p.pos++
		}
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "@") {
			name, params := splitAtRule(text)
			out = append(out, &stmt{kind: atStmt, name: name, value: params, line: line})
			continue
		}
		name, value, ok := splitDecl(text)
		if !ok {
			return nil, p.errorf(line, "expected declaration, got %q", text)
		}
		out = append(out, &stmt{kind: declStmt, name: name, value: value, line: line})
	}
}

// prelude reads up to the next top-level "{", ";" or "}" without consuming
// it. Quotes, parentheses and #{} interpolation are respected; comments
// outside parentheses are dropped.
func (p *parser) prelude() (string, byte, error) {
	var (
		b      strings.Builder
		parens int
		interp int
		quote  byte
		start  = p.line
	)
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '\n' {
			p.line++
		}

		if quote != 0 {
			b.WriteByte(c)
			p.pos++
			if c == '\\' && p.pos < len(p.src) {
				b.WriteByte(p.src[p.pos])
				p.pos++
			} else if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			quote = c
		case c == '/' && parens == 0 && p.peek(1) == '/':
			p.skipLine()
			b.WriteByte(' ')
			continue
		case c == '/' && p.peek(1) == '*':
			if err := p.skipBlockComment(); err != nil {
				return "", 0, err
			}
			b.WriteByte(' ')
			continue
		case c == '#' && p.peek(1) == '{':
			interp++
			b.WriteString("#{")
			p.pos += 2
			continue
		case c == '(':
			parens++
		case c == ')':
			if parens > 0 {
				parens--
			}
		case c == '}' && interp > 0:
			interp--
		case (c == '{' || c == ';' || c == '}') && parens == 0 && interp == 0:
			return strings.TrimSpace(b.String()), c, nil
		}
		b.WriteByte(c)
		p.pos++
	}
	if quote != 0 {
		return "", 0, p.errorf(start, "unterminated string")
	}
	return strings.TrimSpace(b.String()), 0, nil
}

func (p *parser) peek(n int) byte {
	if p.pos+n < len(p.src) {
		return p.src[p.pos+n]
	}
	return 0
}

func (p *parser) skipTrivia() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '\n':
			p.line++
			p.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f':
			p.pos++
		case c == '/' && p.peek(1) == '/':
			p.skipLine()
		case c == '/' && p.peek(1) == '*':
			if p.skipBlockComment() != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *parser) skipLine() {
	for p.pos < len(p.src) && p.src[p.pos] != '\n' {
		p.pos++
	}
}

func (p *parser) skipBlockComment() error {
	start := p.line
	end := strings.Index(p.src[p.pos+2:], "*/")
	if end < 0 {
		p.pos = len(p.src)
		return p.errorf(start, "unterminated comment")
	}
	comment := p.src[p.pos : p.pos+2+end+2]
	p.line += strings.Count(comment, "\n")
	p.pos += len(comment)
	return nil
}

func splitAtRule(text string) (name, params string) {
	text = strings.TrimPrefix(text, "@")
	i := strings.IndexFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '(' || r == '"' || r == '\''
	})
	if i < 0 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

// splitDecl splits "name: value" at the first colon outside interpolation.
func splitDecl(text string) (name, value string, ok bool) {
	interp := 0
	for i := 0; i < len(text); i++ {
		switch {
		case text[i] == '#' && i+1 < len(text) && text[i+1] == '{':
			interp++
			i++
		case text[i] == '}' && interp > 0:
			interp--
		case text[i] == ':' && interp == 0:
			name = strings.TrimSpace(text[:i])
			value = strings.TrimSpace(text[i+1:])
			return name, value, name != ""
		}
	}
	return "", "", false
}

// splitTop splits s on sep outside quotes, parentheses and brackets.
func splitTop(s string, sep byte) []string {
	var (
		out   []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}
