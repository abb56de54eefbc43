package scss

import (
	"regexp"
	"strings"
)

type scope struct {
	parent *scope
	vars   map[string]string
	mixins map[string]*mixin
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, vars: make(map[string]string), mixins: make(map[string]*mixin)}
}

func (s *scope) root() *scope {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

func (s *scope) get(name string) (string, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return "", false
}

// set assigns to the nearest enclosing local scope that already declares
// name, otherwise declares it in s. Globals are only shadowed, not written,
// unless s is the root.
func (s *scope) set(name, value string) {
	for cur := s; cur != nil && cur.parent != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = value
			return
		}
	}
	s.vars[name] = value
}

func (s *scope) mixin(name string) (*mixin, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if m, ok := cur.mixins[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// varName folds "_" into "-"; the two are interchangeable in identifiers.
func varName(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "_", "-")
}

// value evaluates a declaration or argument value: interpolation first,
// then variable references outside quoted strings.
func (c *compiler) value(f *frame, s *stmt, v string) (string, error) {
	if arithmetic(v) {
		return "", c.errorf(f, s, "arithmetic is not supported in %q", strings.TrimSpace(v))
	}
	v, err := c.interpolate(f, s, v)
	if err != nil {
		return "", err
	}
	return c.substitute(f, s, v)
}

// interpolate replaces every #{expr} with the unquoted value of expr.
func (c *compiler) interpolate(f *frame, s *stmt, v string) (string, error) {
	if !strings.Contains(v, "#{") {
		return v, nil
	}
	var b strings.Builder
	for {
		i := strings.Index(v, "#{")
		if i < 0 {
			b.WriteString(v)
			return b.String(), nil
		}
		depth, end := 1, -1
		for j := i + 2; j < len(v); j++ {
			if v[j] == '{' {
				depth++
			} else if v[j] == '}' {
				depth--
				if depth == 0 {
					end = j
					break
				}
			}
		}
		if end < 0 {
			return "", c.errorf(f, s, "unterminated interpolation in %q", v)
		}
		inner, err := c.substitute(f, s, strings.TrimSpace(v[i+2:end]))
		if err != nil {
			return "", err
		}
		b.WriteString(v[:i])
		b.WriteString(unquote(inner))
		v = v[end+1:]
	}
}

// substitute replaces $name references with their values.
func (c *compiler) substitute(f *frame, s *stmt, v string) (string, error) {
	if !strings.Contains(v, "$") {
		return v, nil
	}
	var (
		b     strings.Builder
		quote byte
	)
	for i := 0; i < len(v); i++ {
		ch := v[i]
		if quote != 0 {
			b.WriteByte(ch)
			if ch == '\\' && i+1 < len(v) {
				i++
				b.WriteByte(v[i])
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		if ch == '"' || ch == '\'' {
			quote = ch
			b.WriteByte(ch)
			continue
		}
		if ch != '$' || i+1 >= len(v) || !identStart(v[i+1]) {
			b.WriteByte(ch)
			continue
		}
		j := i + 1
		for j < len(v) && identChar(v[j]) {
			j++
		}
		name := varName(v[i+1 : j])
		val, ok := f.scope.get(name)
		if !ok {
			return "", c.errorf(f, s, "undefined variable $%s", name)
		}
		b.WriteString(val)
		i = j - 1
	}
	return b.String(), nil
}

// arithmeticOps matches an operator applied to a $variable. A bare "-" only
// counts when surrounded by spaces, so $a-b stays an identifier and -$a a
// negative value.
var arithmeticOps = regexp.MustCompile(`\$[\w-]+\s*[*/%+]|[*/%+]\s*\$[\w-]|\$[\w-]+\s+-\s|\s-\s+\$[\w-]`)

// arithmetic reports whether v computes with variables outside quoted
// strings and CSS math functions, which are passed through as they are.
func arithmetic(v string) bool {
	if !strings.Contains(v, "$") {
		return false
	}
	return arithmeticOps.MatchString(stripOpaque(v))
}

var mathFuncs = []string{"calc(", "min(", "max(", "clamp("}

// stripOpaque blanks quoted strings and the arguments of CSS math functions.
func stripOpaque(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		ch := v[i]
		if ch == '"' || ch == '\'' {
			j := i + 1
			for j < len(v) && v[j] != ch {
				if v[j] == '\\' {
					j++
				}
				j++
			}
			b.WriteString(`""`)
			i = j
			continue
		}
		if fn := mathFunc(v[i:]); fn != "" && (i == 0 || !identChar(v[i-1])) {
			depth, j := 1, i+len(fn)
			for ; j < len(v) && depth > 0; j++ {
				switch v[j] {
				case '(':
					depth++
				case ')':
					depth--
				}
			}
			b.WriteString(fn)
			b.WriteByte(')')
			i = j - 1
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func mathFunc(v string) string {
	lower := strings.ToLower(v)
	for _, fn := range mathFuncs {
		if strings.HasPrefix(lower, fn) {
			return fn
		}
	}
	return ""
}

func identStart(c byte) bool {
	return c == '_' || c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func identChar(c byte) bool {
	return identStart(c) || (c >= '0' && c <= '9')
}
