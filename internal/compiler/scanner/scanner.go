// Package scanner splits authored Markdown into classified logical lines for
// the line-oriented parsers, and locates fenced code blocks together with the
// headings they appear under.
package scanner

import (
	"regexp"
	"strings"
)

// LineKind classifies a logical line.
type LineKind int

const (
	// LineBlank is an empty or whitespace-only line.
	LineBlank LineKind = iota
	// LineHeading is an ATX heading ("## Title").
	LineHeading
	// LineTableRow is a pipe table row.
	LineTableRow
	// LineTableSeparator is the "|---|---|" row under a table header.
	LineTableSeparator
	// LineListItem is a bullet item ("- text", "* text", "+ text").
	LineListItem
	// LineNumbered is an ordered item ("1. text", "2-1. text").
	LineNumbered
	// LineText is any other prose line.
	LineText
	// LineFence opens or closes a fenced code block.
	LineFence
	// LineCode is a line inside a fenced code block.
	LineCode
)

// String returns the kind name for diagnostics.
func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineHeading:
		return "heading"
	case LineTableRow:
		return "table_row"
	case LineTableSeparator:
		return "table_separator"
	case LineListItem:
		return "list_item"
	case LineNumbered:
		return "numbered"
	case LineText:
		return "text"
	case LineFence:
		return "fence"
	case LineCode:
		return "code"
	default:
		return "unknown"
	}
}

// Line is one classified source line.
type Line struct {
	Number  int      // 1-based line number
	Raw     string   // line without its terminator
	Kind    LineKind //
	Text    string   // heading text, item text after its marker, or trimmed line
	Level   int      // heading level (1-6)
	Indent  int      // leading columns, tabs counted as 4
	Ordinal string   // "3" or "2-1" for numbered lines
	Fence   string   // info string of the enclosing fence for LineFence/LineCode
}

// IsHeading reports whether the line is a heading of the given level.
func (l Line) IsHeading(level int) bool {
	return l.Kind == LineHeading && l.Level == level
}

var (
	headingPattern  = regexp.MustCompile(`^ {0,3}(#{1,6})(?:[ \t]+(.*?))?[ \t]*$`)
	closingHashes   = regexp.MustCompile(`[ \t]+#+$`)
	listPattern     = regexp.MustCompile(`^[ \t]*[-*+・][ \t]+(.*)$`)
	numberedPattern = regexp.MustCompile(`^[ \t]*(\d+(?:[-.]\d+)*)(?:[.)][ \t]+|[．、][ \t]*)(.*)$`)
	fencePattern    = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})[ \t]*(.*)$")
	separatorCell   = regexp.MustCompile(`^:?-+:?$`)
)

// Scanner classifies lines of a Markdown document.
//
// Scanner instances are not safe for concurrent use; create one per input.
type Scanner struct {
	source    string
	fenceChar byte
	fenceLen  int
	fenceInfo string
}

// New creates a Scanner for source.
func New(source string) *Scanner {
	return &Scanner{source: source}
}

// Scan is a convenience wrapper around New(source).ScanLines().
func Scan(source string) []Line {
	return New(source).ScanLines()
}

// ScanLines returns every line of the source in order. It never fails:
// anything unrecognized is LineText.
func (s *Scanner) ScanLines() []Line {
	normalized := strings.ReplaceAll(s.source, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	raw := strings.Split(normalized, "\n")
	if len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}

	lines := make([]Line, 0, len(raw))
	for i, text := range raw {
		lines = append(lines, s.classify(i+1, text))
	}
	return lines
}

func (s *Scanner) classify(number int, raw string) Line {
	line := Line{Number: number, Raw: raw, Indent: indentOf(raw)}
	trimmed := strings.TrimSpace(raw)

	if s.fenceLen > 0 {
		line.Fence = s.fenceInfo
		if s.closesFence(raw) {
			line.Kind = LineFence
			s.fenceChar, s.fenceLen, s.fenceInfo = 0, 0, ""
			return line
		}
		line.Kind = LineCode
		line.Text = raw
		return line
	}

	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		info := strings.TrimSpace(m[2])
		if m[1][0] != '`' || !strings.Contains(info, "`") {
			s.fenceChar, s.fenceLen, s.fenceInfo = m[1][0], len(m[1]), info
			line.Kind = LineFence
			line.Fence = info
			line.Text = info
			return line
		}
	}

	switch {
	case trimmed == "":
		line.Kind = LineBlank
	case headingPattern.MatchString(raw):
		m := headingPattern.FindStringSubmatch(raw)
		line.Kind = LineHeading
		line.Level = len(m[1])
		line.Text = strings.TrimSpace(closingHashes.ReplaceAllString(m[2], ""))
	case strings.HasPrefix(trimmed, "|"):
		line.Text = trimmed
		line.Kind = LineTableRow
		if isSeparatorRow(trimmed) {
			line.Kind = LineTableSeparator
		}
	case listPattern.MatchString(raw):
		line.Kind = LineListItem
		line.Text = strings.TrimSpace(listPattern.FindStringSubmatch(raw)[1])
	case numberedPattern.MatchString(raw):
		m := numberedPattern.FindStringSubmatch(raw)
		line.Kind = LineNumbered
		line.Ordinal = m[1]
		line.Text = strings.TrimSpace(m[2])
	default:
		line.Kind = LineText
		line.Text = trimmed
	}
	return line
}

// closesFence applies the CommonMark rule: same character, at least as many
// markers as the opener, nothing but whitespace after. A shorter inner fence
// therefore stays code, which is how nested diagram blocks survive.
func (s *Scanner) closesFence(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < s.fenceLen || indentOf(raw) > 3 {
		return false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == s.fenceChar {
		n++
	}
	return n >= s.fenceLen && strings.TrimSpace(trimmed[n:]) == ""
}

// Cells splits a table row into trimmed cell values, dropping the empty
// cells produced by the leading and trailing pipes.
func Cells(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")
	parts := strings.Split(row, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func isSeparatorRow(row string) bool {
	cells := Cells(row)
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !separatorCell.MatchString(strings.ReplaceAll(c, " ", "")) {
			return false
		}
	}
	return true
}

func indentOf(raw string) int {
	n := 0
	for _, r := range raw {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}
