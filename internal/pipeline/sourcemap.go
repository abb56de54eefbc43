package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Segment is one decoded mapping of a source map. All fields are zero
// based. Line and Col are positions in Sources[Source].
type Segment struct {
	GenLine int
	GenCol  int
	Source  int
	Line    int
	Col     int
}

// LineSegments maps every line of content to the same line of source 0.
func LineSegments(content []byte) []Segment {
	lines := strings.Count(string(content), "\n") + 1
	segs := make([]Segment, lines)
	for i := range segs {
		segs[i] = Segment{GenLine: i, Line: i}
	}
	return segs
}

// Segments decodes the mappings of m.
func (m *SourceMap) Segments() ([]Segment, error) {
	return DecodeMappings(m.Mappings)
}

// SetSegments replaces the mappings of m.
func (m *SourceMap) SetSegments(segs []Segment) {
	m.Mappings = EncodeMappings(segs)
}

// Rebase is called by a step that rewrote the content m describes. Each
// segment of next maps a position of the new content to a position of the
// old content, its Source is ignored. The positions are translated through
// the current mappings, so m keeps pointing at the original sources.
// Segments without an origin are dropped.
func (m *SourceMap) Rebase(next []Segment) error {
	prev, err := m.Segments()
	if err != nil {
		return err
	}
	out := make([]Segment, 0, len(next))
	for _, s := range next {
		o, ok := origin(prev, s.Line, s.Col)
		if !ok {
			continue
		}
		out = append(out, Segment{GenLine: s.GenLine, GenCol: s.GenCol, Source: o.Source, Line: o.Line, Col: o.Col})
	}
	m.SetSegments(out)
	return nil
}

// Add merges segs, which already point at entries of Sources, into the
// mappings of m.
func (m *SourceMap) Add(segs ...Segment) error {
	cur, err := m.Segments()
	if err != nil {
		return err
	}
	m.SetSegments(append(cur, segs...))
	return nil
}

// origin finds the segment covering line/col of the generated content: the
// last one on the line starting at or before col, else the first on the line.
func origin(segs []Segment, line, col int) (Segment, bool) {
	i := sort.Search(len(segs), func(i int) bool { return segs[i].GenLine >= line })
	if i == len(segs) || segs[i].GenLine != line {
		return Segment{}, false
	}
	best := segs[i]
	for ; i < len(segs) && segs[i].GenLine == line; i++ {
		if segs[i].GenCol <= col {
			best = segs[i]
		}
	}
	o := best
	o.Col += col - best.GenCol
	if o.Col < best.Col {
		o.Col = best.Col
	}
	return o, true
}

// EncodeMappings encodes segs as base64 VLQ. Segments are sorted by their
// generated position first.
func EncodeMappings(segs []Segment) string {
	sorted := append([]Segment(nil), segs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].GenLine != sorted[j].GenLine {
			return sorted[i].GenLine < sorted[j].GenLine
		}
		return sorted[i].GenCol < sorted[j].GenCol
	})

	var b strings.Builder
	var line, genCol, source, srcLine, srcCol int
	for i, s := range sorted {
		if s.GenLine > line {
			b.WriteString(strings.Repeat(";", s.GenLine-line))
			line, genCol = s.GenLine, 0
		} else if i > 0 {
			b.WriteByte(',')
		}
		writeVLQ(&b, s.GenCol-genCol)
		writeVLQ(&b, s.Source-source)
		writeVLQ(&b, s.Line-srcLine)
		writeVLQ(&b, s.Col-srcCol)
		genCol, source, srcLine, srcCol = s.GenCol, s.Source, s.Line, s.Col
	}
	return b.String()
}

// DecodeMappings decodes base64 VLQ mappings. Segments without a source
// position are skipped.
func DecodeMappings(mappings string) ([]Segment, error) {
	var (
		out                          []Segment
		genCol, source, line, column int
	)
	for genLine, group := range strings.Split(mappings, ";") {
		genCol = 0
		if group == "" {
			continue
		}
		for _, raw := range strings.Split(group, ",") {
			fields, err := readVLQs(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid mappings at line %d: %w", genLine, err)
			}
			switch len(fields) {
			case 1:
				genCol += fields[0]
				continue
			case 4, 5:
			default:
				return nil, fmt.Errorf("invalid mappings at line %d: segment %q has %d fields", genLine, raw, len(fields))
			}
			genCol += fields[0]
			source += fields[1]
			line += fields[2]
			column += fields[3]
			out = append(out, Segment{GenLine: genLine, GenCol: genCol, Source: source, Line: line, Col: column})
		}
	}
	return out, nil
}

const vlqChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func writeVLQ(b *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 31
		u >>= 5
		if u > 0 {
			digit |= 32
		}
		b.WriteByte(vlqChars[digit])
		if u == 0 {
			return
		}
	}
}

func readVLQs(s string) ([]int, error) {
	var (
		out   []int
		value int
		shift uint
	)
	for i := 0; i < len(s); i++ {
		digit := strings.IndexByte(vlqChars, s[i])
		if digit < 0 {
			return nil, fmt.Errorf("bad character %q", s[i])
		}
		value |= (digit & 31) << shift
		if digit&32 != 0 {
			shift += 5
			continue
		}
		if value&1 != 0 {
			out = append(out, -(value >> 1))
		} else {
			out = append(out, value>>1)
		}
		value, shift = 0, 0
	}
	if shift != 0 {
		return nil, fmt.Errorf("truncated segment %q", s)
	}
	return out, nil
}
