package scss

import "strings"

// Decl is a single property declaration. File and Line locate the
// statement it was compiled from.
type Decl struct {
	Property string
	Value    string
	File     string
	Line     int
}

// Node is a flat CSS statement. A Node with a Selector is a style rule; one
// with an AtRule is either an at-rule holding Children (@media) or, for
// rules like @font-face, holding Decls directly. Raw holds statements
// without a block, e.g. "@charset \"utf-8\"".
type Node struct {
	AtRule   string
	Selector string
	Decls    []Decl
	Children []*Node
	Raw      string
	File     string
	Line     int
}

// Stylesheet is compiled CSS.
type Stylesheet struct {
	Nodes []*Node
}

// Walk calls fn for every node, parents before children.
func (s *Stylesheet) Walk(fn func(*Node)) {
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			fn(n)
			walk(n.Children)
		}
	}
	walk(s.Nodes)
}

// Mark records where a node head or declaration was rendered. GenLine and
// GenCol are zero based; File and Line are copied from the node.
type Mark struct {
	GenLine int
	GenCol  int
	File    string
	Line    int
}

// String renders the sheet in expanded style. Rules without declarations
// are omitted.
func (s *Stylesheet) String() string {
	css, _ := s.Render()
	return css
}

// Render renders the sheet like String and also returns a mark for every
// rendered node head and declaration, in output order.
func (s *Stylesheet) Render() (string, []Mark) {
	r := &renderer{}
	first := true
	for _, n := range s.Nodes {
		if !n.empty() {
			if !first {
				r.newline()
			}
			first = false
			n.render(r, "")
		}
	}
	return r.b.String(), r.marks
}

type renderer struct {
	b     strings.Builder
	line  int
	marks []Mark
}

func (r *renderer) mark(indent, file string, line int) {
	if line > 0 {
		r.marks = append(r.marks, Mark{GenLine: r.line, GenCol: len(indent), File: file, Line: line})
	}
	r.b.WriteString(indent)
}

func (r *renderer) newline() {
	r.b.WriteByte('\n')
	r.line++
}

func (n *Node) empty() bool {
	if n.Raw != "" {
		return false
	}
	if len(n.Decls) > 0 {
		return false
	}
	for _, c := range n.Children {
		if !c.empty() {
			return false
		}
	}
	return true
}

func (n *Node) render(r *renderer, indent string) {
	if n.Raw != "" {
		r.mark(indent, n.File, n.Line)
		r.b.WriteString(n.Raw)
		r.b.WriteString(";")
		r.newline()
		return
	}
	head := n.Selector
	if n.AtRule != "" {
		head = n.AtRule
	}
	r.mark(indent, n.File, n.Line)
	r.b.WriteString(head)
	r.b.WriteString(" {")
	r.newline()
	for _, d := range n.Decls {
		r.mark(indent+"  ", d.File, d.Line)
		r.b.WriteString(d.Property)
		r.b.WriteString(": ")
		r.b.WriteString(d.Value)
		r.b.WriteString(";")
		r.newline()
	}
	for _, c := range n.Children {
		if !c.empty() {
			c.render(r, indent+"  ")
		}
	}
	r.b.WriteString(indent)
	r.b.WriteString("}")
	r.newline()
}
