package scss

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Options configures a compilation.
type Options struct {
	// LoadPaths are searched for imports after the importing file's directory.
	LoadPaths []string
	// ReadFile reads imported files. It defaults to os.ReadFile.
	ReadFile func(name string) ([]byte, error)
}

// Result is a compiled stylesheet and the files it imported, in first-import
// order.
type Result struct {
	Sheet   *Stylesheet
	Imports []string
}

// Compile compiles the SCSS source of filename.
func Compile(filename string, src []byte, opts Options) (*Result, error) {
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	stmts, err := parse(filename, string(src))
	if err != nil {
		return nil, err
	}
	c := &compiler{opts: opts, sheet: &Stylesheet{}, active: map[string]bool{filename: true}, seen: map[string]bool{}}
	root := &frame{file: filename, dir: filepath.Dir(filename), scope: newScope(nil)}
	if err := c.block(root, stmts); err != nil {
		return nil, err
	}
	return &Result{Sheet: c.sheet, Imports: c.imports}, nil
}

// Parse parses plain CSS into a Stylesheet.
func Parse(filename string, css []byte) (*Stylesheet, error) {
	res, err := Compile(filename, css, Options{ReadFile: func(name string) ([]byte, error) {
		return nil, fmt.Errorf("cannot import %s from plain CSS", name)
	}})
	if err != nil {
		return nil, err
	}
	return res.Sheet, nil
}

type compiler struct {
	opts    Options
	sheet   *Stylesheet
	active  map[string]bool
	seen    map[string]bool
	imports []string
}

type mixin struct {
	file   string
	params []param
	body   []*stmt
	scope  *scope
}

type param struct {
	name   string
	def    string
	hasDef bool
}

type content struct {
	file  string
	stmts []*stmt
	scope *scope
	outer *content
}

// frame is the compilation state of one block.
type frame struct {
	file      string
	dir       string
	scope     *scope
	selectors []string
	// container receives new rules; nil is the sheet itself.
	container *Node
	// outer receives bubbled @media blocks.
	outer   *Node
	media   string
	rule    *Node
	content *content
}

func (c *compiler) errorf(f *frame, s *stmt, format string, args ...any) error {
	return &Error{File: f.file, Line: s.line, Msg: fmt.Sprintf(format, args...)}
}

func (c *compiler) add(container *Node, n *Node) {
	if container == nil {
		c.sheet.Nodes = append(c.sheet.Nodes, n)
		return
	}
	container.Children = append(container.Children, n)
}

func (c *compiler) block(f *frame, stmts []*stmt) error {
	for _, s := range stmts {
		var err error
		switch s.kind {
		case declStmt:
			err = c.decl(f, s)
		case ruleStmt:
			err = c.rule(f, s)
		case atStmt:
			err = c.atRule(f, s)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) decl(f *frame, s *stmt) error {
	if strings.HasPrefix(s.name, "$") {
		return c.assign(f, s)
	}
	if f.rule == nil {
		return c.errorf(f, s, "declaration %q is not inside a rule", s.name)
	}
	name, err := c.interpolate(f, s, s.name)
	if err != nil {
		return err
	}
	value, err := c.value(f, s, s.value)
	if err != nil {
		return err
	}
	f.rule.Decls = append(f.rule.Decls, Decl{Property: name, Value: value, File: f.file, Line: s.line})
	return nil
}

func (c *compiler) assign(f *frame, s *stmt) error {
	name := varName(s.name[1:])
	raw, global, def := s.value, false, false
	for {
		trimmed := strings.TrimSpace(raw)
		switch {
		case strings.HasSuffix(trimmed, "!default"):
			def, raw = true, strings.TrimSuffix(trimmed, "!default")
			continue
		case strings.HasSuffix(trimmed, "!global"):
			global, raw = true, strings.TrimSuffix(trimmed, "!global")
			continue
		}
		raw = trimmed
		break
	}

	if def {
		if _, ok := f.scope.get(name); ok {
			return nil
		}
	}
	value, err := c.value(f, s, raw)
	if err != nil {
		return err
	}
	if global {
		f.scope.root().vars[name] = value
		return nil
	}
	f.scope.set(name, value)
	return nil
}

func (c *compiler) rule(f *frame, s *stmt) error {
	sel, err := c.interpolate(f, s, s.selector)
	if err != nil {
		return err
	}
	resolved, err := combine(f.selectors, splitTop(sel, ','))
	if err != nil {
		return c.errorf(f, s, "%v", err)
	}
	n := &Node{Selector: strings.Join(resolved, ", "), File: f.file, Line: s.line}
	c.add(f.container, n)

	child := *f
	child.scope = newScope(f.scope)
	child.selectors = resolved
	child.rule = n
	return c.block(&child, s.children)
}

func (c *compiler) atRule(f *frame, s *stmt) error {
	switch s.name {
	case "import":
		return c.importRule(f, s)
	case "mixin":
		return c.defineMixin(f, s)
	case "include":
		return c.include(f, s)
	case "content":
		return c.content(f)
	case "media":
		return c.media(f, s)
	case "charset":
		c.sheet.Nodes = append([]*Node{{Raw: "@charset " + s.value, File: f.file, Line: s.line}}, c.sheet.Nodes...)
		return nil
	case "debug", "warn":
		return nil
	case "error":
		msg, _ := c.value(f, s, s.value)
		return c.errorf(f, s, "@error %s", msg)
	case "if", "else", "each", "for", "while", "function", "return", "extend", "use", "forward", "at-root":
		return c.errorf(f, s, "@%s is not supported", s.name)
	}

	params, err := c.value(f, s, s.value)
	if err != nil {
		return err
	}
	head := "@" + s.name
	if params != "" {
		head += " " + params
	}
	if !s.block {
		c.add(f.container, &Node{Raw: head, File: f.file, Line: s.line})
		return nil
	}

	n := &Node{AtRule: head, File: f.file, Line: s.line}
	c.add(f.container, n)
	child := *f
	child.scope = newScope(f.scope)
	child.container = n
	child.outer = n
	child.media = ""
	if s.name == "supports" && f.selectors != nil {
		r := &Node{Selector: strings.Join(f.selectors, ", "), File: f.file, Line: s.line}
		n.Children = append(n.Children, r)
		child.rule = r
	} else {
		child.selectors = nil
		child.rule = n
	}
	return c.block(&child, s.children)
}

func (c *compiler) media(f *frame, s *stmt) error {
	query, err := c.value(f, s, s.value)
	if err != nil {
		return err
	}
	if f.media != "" {
		query = f.media + " and " + query
	}
	m := &Node{AtRule: "@media " + query, File: f.file, Line: s.line}
	c.add(f.outer, m)

	child := *f
	child.scope = newScope(f.scope)
	child.container = m
	child.media = query
	child.rule = nil
	if f.selectors != nil {
		r := &Node{Selector: strings.Join(f.selectors, ", "), File: f.file, Line: s.line}
		m.Children = append(m.Children, r)
		child.rule = r
	}
	return c.block(&child, s.children)
}

func (c *compiler) defineMixin(f *frame, s *stmt) error {
	if !s.block {
		return c.errorf(f, s, "@mixin %s has no body", s.value)
	}
	name, args, err := splitCall(s.value)
	if err != nil {
		return c.errorf(f, s, "%v", err)
	}
	m := &mixin{file: f.file, body: s.children, scope: f.scope}
	for _, a := range args {
		if !strings.HasPrefix(a, "$") {
			return c.errorf(f, s, "invalid mixin parameter %q", a)
		}
		p := param{name: varName(a[1:])}
		if k, v, ok := strings.Cut(a, ":"); ok {
			p.name, p.def, p.hasDef = varName(strings.TrimSpace(k)[1:]), strings.TrimSpace(v), true
		}
		m.params = append(m.params, p)
	}
	f.scope.mixins[varName(name)] = m
	return nil
}

func (c *compiler) include(f *frame, s *stmt) error {
	name, args, err := splitCall(s.value)
	if err != nil {
		return c.errorf(f, s, "%v", err)
	}
	m, ok := f.scope.mixin(varName(name))
	if !ok {
		return c.errorf(f, s, "undefined mixin %q", name)
	}

	var positional []string
	keyword := make(map[string]string)
	for _, a := range args {
		if strings.HasPrefix(a, "$") {
			if k, v, ok := strings.Cut(a, ":"); ok {
				val, err := c.value(f, s, strings.TrimSpace(v))
				if err != nil {
					return err
				}
				keyword[varName(strings.TrimSpace(k)[1:])] = val
				continue
			}
		}
		if len(keyword) > 0 {
			return c.errorf(f, s, "positional argument after keyword argument in @include %s", name)
		}
		val, err := c.value(f, s, a)
		if err != nil {
			return err
		}
		positional = append(positional, val)
	}
	if len(positional) > len(m.params) {
		return c.errorf(f, s, "mixin %q takes %d argument(s), got %d", name, len(m.params), len(positional))
	}

	ms := newScope(m.scope)
	child := *f
	child.scope = ms
	for i, p := range m.params {
		switch v, ok := keyword[p.name]; {
		case ok:
			ms.vars[p.name] = v
			delete(keyword, p.name)
		case i < len(positional):
			ms.vars[p.name] = positional[i]
		case p.hasDef:
			val, err := c.value(&child, s, p.def)
			if err != nil {
				return err
			}
			ms.vars[p.name] = val
		default:
			return c.errorf(f, s, "missing argument $%s in @include %s", p.name, name)
		}
	}
	if len(keyword) > 0 {
		unknown := make([]string, 0, len(keyword))
		for k := range keyword {
			unknown = append(unknown, "$"+k)
		}
		sort.Strings(unknown)
		return c.errorf(f, s, "mixin %q has no parameter %s", name, strings.Join(unknown, ", "))
	}

	child.content = nil
	if s.block {
		child.content = &content{file: f.file, stmts: s.children, scope: f.scope, outer: f.content}
	}
	child.file = m.file
	return c.block(&child, m.body)
}

func (c *compiler) content(f *frame) error {
	if f.content == nil {
		return nil
	}
	child := *f
	child.file = f.content.file
	child.scope = newScope(f.content.scope)
	child.content = f.content.outer
	return c.block(&child, f.content.stmts)
}

func (c *compiler) importRule(f *frame, s *stmt) error {
	for _, arg := range splitTop(s.value, ',') {
		target := unquote(arg)
		if isCSSImport(arg, target) {
			c.add(f.container, &Node{Raw: "@import " + arg, File: f.file, Line: s.line})
			continue
		}

		name, data, err := c.resolve(f.dir, target)
		if err != nil {
			return c.errorf(f, s, "%v", err)
		}
		if c.active[name] {
			return c.errorf(f, s, "import cycle through %s", name)
		}
		if !c.seen[name] {
			c.seen[name] = true
			c.imports = append(c.imports, name)
		}
		stmts, err := parse(name, string(data))
		if err != nil {
			return err
		}

		c.active[name] = true
		child := *f
		child.file = name
		child.dir = filepath.Dir(name)
		err = c.block(&child, stmts)
		delete(c.active, name)
		if err != nil {
			return err
		}
	}
	return nil
}

// resolve finds an import target. "a/b" is looked up as a/_b.scss, a/b.scss
// and a/b/_index.scss in the importing directory, then in the load paths.
func (c *compiler) resolve(dir, target string) (string, []byte, error) {
	d, base := filepath.Split(filepath.FromSlash(target))
	var candidates []string
	if strings.HasSuffix(base, ".scss") {
		candidates = []string{"_" + base, base}
	} else {
		candidates = []string{"_" + base + ".scss", base + ".scss", filepath.Join(base, "_index.scss")}
	}

	roots := append([]string{dir}, c.opts.LoadPaths...)
	for _, root := range roots {
		for _, cand := range candidates {
			name := filepath.Join(root, d, cand)
			if data, err := c.opts.ReadFile(name); err == nil {
				return name, data, nil
			}
		}
	}
	return "", nil, fmt.Errorf("cannot find import %q", target)
}

func isCSSImport(raw, target string) bool {
	return strings.HasPrefix(raw, "url(") ||
		strings.HasSuffix(target, ".css") ||
		strings.HasPrefix(target, "http://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "//")
}

// splitCall splits "name(a, b)" into its name and top-level arguments.
func splitCall(s string) (string, []string, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return s, nil, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("unbalanced parentheses in %q", s)
	}
	name := strings.TrimSpace(s[:open])
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if inner == "" {
		return name, nil, nil
	}
	return name, splitTop(inner, ','), nil
}

// combine resolves child selectors against their parents. A child containing
// & has it replaced by the parent, others become descendants.
func combine(parents, children []string) ([]string, error) {
	var out []string
	for _, ch := range children {
		if ch == "" {
			return nil, fmt.Errorf("empty selector in list")
		}
	}
	if len(parents) == 0 {
		for _, ch := range children {
			if strings.Contains(ch, "&") {
				return nil, fmt.Errorf("top-level selector %q may not contain the parent selector \"&\"", ch)
			}
			out = append(out, normalizeSelector(ch))
		}
		return out, nil
	}
	for _, p := range parents {
		for _, ch := range children {
			if strings.Contains(ch, "&") {
				out = append(out, normalizeSelector(strings.ReplaceAll(ch, "&", p)))
			} else {
				out = append(out, normalizeSelector(p+" "+ch))
			}
		}
	}
	return out, nil
}

func normalizeSelector(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
