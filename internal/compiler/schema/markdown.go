package schema

import (
	"regexp"
	"strings"

	"github.com/dphaener/ddmark/internal/compiler/sanitize"
	"github.com/dphaener/ddmark/internal/compiler/scanner"
)

var physicalKeywords = []string{"物理設計", "physical design"}

var (
	primaryKey    = regexp.MustCompile(`(?i)\bPK\b|PRIMARY\s*KEY|主キー`)
	foreignKey    = regexp.MustCompile(`(?i)\bFK\b|FOREIGN\s*KEY|外部キー|\bREFERENCES\b`)
	uniqueKey     = regexp.MustCompile(`(?i)\bUK\b|\bUNIQUE\b|一意|ユニーク`)
	fkTarget      = regexp.MustCompile(`(?i)FK\s*\(\s*(\w+)\s*\.\s*(\w+)\s*\)(?:\s*:\s*([^,;|]+))?`)
	fkColonTarget = regexp.MustCompile(`(?i)FK\s*:\s*(\w+)\s*\.\s*(\w+)`)
	refTarget     = regexp.MustCompile(`(?i)REFERENCES\s+(\w+)\s*\(\s*(\w+)\s*\)`)
)

// IsPhysicalDesign reports whether a heading opens a physical-design section.
func IsPhysicalDesign(heading string) bool {
	lower := strings.ToLower(clean(heading))
	for _, k := range physicalKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

type columnLayout struct {
	header      []string
	name        int
	typ         int
	description int
	constraints []int
}

func newColumnLayout(cells []string) *columnLayout {
	l := &columnLayout{header: cells, name: -1, typ: -1, description: -1}
	for i, raw := range cells {
		c := strings.ToLower(clean(raw))
		switch {
		case l.name < 0 && (c == "name" || strings.Contains(c, "column") || strings.Contains(c, "カラム") ||
			strings.Contains(c, "列名") || strings.Contains(c, "物理名") || strings.Contains(c, "フィールド")):
			l.name = i
		case l.typ < 0 && (strings.Contains(c, "型") || strings.Contains(c, "type")):
			l.typ = i
		case l.description < 0 && (strings.Contains(c, "説明") || strings.Contains(c, "description") ||
			strings.Contains(c, "備考") || strings.Contains(c, "comment")):
			l.description = i
		}
	}
	if l.name < 0 {
		l.name = 0
	}
	if l.typ < 0 && l.name != 1 {
		l.typ = 1
	}
	for i := range cells {
		if i != l.name && i != l.typ && i != l.description {
			l.constraints = append(l.constraints, i)
		}
	}
	return l
}

func defaultColumnLayout(n int) *columnLayout {
	l := &columnLayout{name: 0, typ: 1, description: -1}
	for i := 2; i < n; i++ {
		l.constraints = append(l.constraints, i)
	}
	return l
}

func at(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return clean(cells[i])
}

func (l *columnLayout) isHeader(cells []string) bool {
	return l.header != nil && at(cells, l.name) == at(l.header, l.name)
}

func (l *columnLayout) column(cells []string) (Column, bool) {
	name := columnName(at(cells, l.name))
	if name == "" {
		return Column{}, false
	}

	var parts []string
	for _, i := range l.constraints {
		if v := at(cells, i); v != "" {
			parts = append(parts, v)
		}
	}
	constraints := strings.Join(parts, " ")

	col := Column{
		Name:       name,
		Type:       at(cells, l.typ),
		PrimaryKey: primaryKey.MatchString(constraints),
		ForeignKey: foreignKey.MatchString(constraints),
		Unique:     uniqueKey.MatchString(constraints),
		Comment:    at(cells, l.description),
	}
	switch {
	case fkTarget.MatchString(constraints):
		m := fkTarget.FindStringSubmatch(constraints)
		col.RefTable, col.RefColumn, col.Label = m[1], m[2], strings.TrimSpace(m[3])
	case fkColonTarget.MatchString(constraints):
		m := fkColonTarget.FindStringSubmatch(constraints)
		col.RefTable, col.RefColumn = m[1], m[2]
	case refTarget.MatchString(constraints):
		m := refTarget.FindStringSubmatch(constraints)
		col.RefTable, col.RefColumn = m[1], m[2]
	}
	return col, true
}

// columnName prefers the ASCII side of "ユーザーID (user_id)".
func columnName(cell string) string {
	if cell == "" {
		return ""
	}
	if m := parenPair.FindStringSubmatch(cell); m != nil {
		switch {
		case identifier.MatchString(m[1]):
			return m[1]
		case identifier.MatchString(m[2]):
			return m[2]
		}
	}
	if identifier.MatchString(cell) {
		return cell
	}
	return sanitize.Sanitize(cell)
}

// ParseMarkdown reads table definitions from the physical-design section of
// a database design document. Outside that section nothing is collected.
func ParseMarkdown(source string) *Schema {
	s := &Schema{}
	lines := scanner.Scan(source)

	physicalLevel := 0
	current := ""
	var layout *columnLayout

	for i, line := range lines {
		switch line.Kind {
		case scanner.LineHeading:
			layout = nil
			current = ""
			switch {
			case IsPhysicalDesign(line.Text):
				physicalLevel = line.Level
			case physicalLevel == 0:
			case line.Level <= physicalLevel:
				physicalLevel = 0
			case line.Level == 3 || line.Level == 4:
				if text := clean(line.Text); !statement.MatchString(text) {
					current = tableName(text)
				}
			}

		case scanner.LineTableRow:
			if physicalLevel == 0 || current == "" {
				continue
			}
			cells := scanner.Cells(line.Text)
			if i+1 < len(lines) && lines[i+1].Kind == scanner.LineTableSeparator {
				layout = newColumnLayout(cells)
				continue
			}
			if layout == nil {
				layout = defaultColumnLayout(len(cells))
			}
			if layout.isHeader(cells) {
				continue
			}
			if col, ok := layout.column(cells); ok {
				t := s.table(current)
				t.Columns = setColumn(t.Columns, col)
			}
		}
	}

	s.resolveForeignKeys()
	return s
}

func setColumn(cols []Column, col Column) []Column {
	for i := range cols {
		if cols[i].Name == col.Name {
			cols[i] = col
			return cols
		}
	}
	return append(cols, col)
}
