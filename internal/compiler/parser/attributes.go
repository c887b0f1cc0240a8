package parser

import (
	"regexp"
	"strings"

	"github.com/dphaener/ddmark/internal/compiler/ir"
	"github.com/dphaener/ddmark/internal/compiler/sanitize"
	"github.com/dphaener/ddmark/internal/compiler/scanner"
)

// placeholderType is assigned to list-dialect attributes until a "型:" line
// refines it.
const placeholderType = "String"

var (
	typeLine      = regexp.MustCompile(`^(?:型|データ型|(?i:type))\s*:\s*(.+)$`)
	requiredLine  = regexp.MustCompile(`^(?:必須|(?i:required))\s*:\s*(.+)$`)
	typedSuffix   = regexp.MustCompile(`^(.*\])\s*:\s*(.+)$`)
	simpleAttr    = regexp.MustCompile(`^([^:\[\]]+?)\s*:\s*(\S+)`)
	rootFlagLine  = regexp.MustCompile(`^\(?集約ルート\)?$`)
	requiredMarks = map[string]bool{"○": true, "◯": true, "はい": true, "必須": true, "yes": true, "true": true}
)

type attributeOwner interface {
	SetAttribute(ir.Attribute)
	Attribute(name string) (ir.Attribute, bool)
}

// tableLayout remembers which columns of an attribute table carry what.
type tableLayout struct {
	header   []string
	name     int
	typ      int
	required int
}

func newTableLayout(cells []string) *tableLayout {
	l := &tableLayout{header: cells, name: 0, typ: 1, required: -1}
	for i, c := range cells {
		lower := strings.ToLower(c)
		switch {
		case strings.Contains(c, "属性名") || strings.Contains(c, "項目名") ||
			strings.Contains(c, "フィールド") || lower == "attribute" || lower == "name":
			l.name = i
		case strings.Contains(c, "型") || lower == "type":
			l.typ = i
		case strings.Contains(c, "必須") || lower == "required":
			l.required = i
		}
	}
	if l.required < 0 && len(cells) > 2 {
		l.required = 2
	}
	return l
}

func isAttributeTableHeader(cells []string) bool {
	for _, c := range cells {
		lower := strings.ToLower(c)
		if strings.Contains(c, "属性名") || strings.Contains(c, "項目名") || lower == "attribute" {
			return true
		}
	}
	return false
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cleanText(cells[i])
}

// The recognizers below are tried in slice order; more structured dialects
// come first.
var entityRecognizers = []recognizer{
	endTable,
	rootFlag,
	tableHeader,
	tableRow,
	typeRefinement,
	requiredRefinement,
	listAttribute,
}

var valueObjectRecognizers = []recognizer{
	endTable,
	tableHeader,
	tableRow,
	typeRefinement,
	requiredRefinement,
	listAttribute,
	simpleListAttribute,
}

// endTable forgets the current table layout on the first non-table line. It
// never consumes the line.
func endTable(p *Parser, line scanner.Line) bool {
	if p.table != nil && line.Kind != scanner.LineTableRow && line.Kind != scanner.LineTableSeparator {
		p.table = nil
	}
	return false
}

func rootFlag(p *Parser, line scanner.Line) bool {
	if p.entity == nil || (line.Kind != scanner.LineText && line.Kind != scanner.LineListItem) {
		return false
	}
	if !rootFlagLine.MatchString(cleanText(line.Text)) {
		return false
	}
	p.entity.IsAggregateRoot = true
	return true
}

func tableHeader(p *Parser, line scanner.Line) bool {
	if line.Kind != scanner.LineTableRow || p.owner() == nil {
		return false
	}
	cells := scanner.Cells(line.Text)
	if !isAttributeTableHeader(cells) {
		return false
	}
	p.dialect = dialectTable
	p.table = newTableLayout(cells)
	p.lastAttr = ""
	return true
}

func tableRow(p *Parser, line scanner.Line) bool {
	if line.Kind == scanner.LineTableSeparator {
		return true
	}
	if line.Kind != scanner.LineTableRow {
		return false
	}
	owner := p.owner()
	if owner == nil || p.table == nil || p.dialect != dialectTable {
		return true
	}

	cells := scanner.Cells(line.Text)
	raw := cell(cells, p.table.name)
	if raw == "" || raw == cell(p.table.header, p.table.name) {
		return true
	}

	owner.SetAttribute(ir.Attribute{
		Name:     attributeName(raw),
		Type:     cell(cells, p.table.typ),
		Required: requiredMarks[strings.ToLower(cell(cells, p.table.required))],
	})
	return true
}

func typeRefinement(p *Parser, line scanner.Line) bool {
	if line.Kind != scanner.LineListItem {
		return false
	}
	m := typeLine.FindStringSubmatch(cleanText(line.Text))
	if m == nil {
		return false
	}
	if p.dialect == dialectList {
		p.patchLast(func(a *ir.Attribute) { a.Type = typeToken(m[1]) })
	}
	return true
}

func requiredRefinement(p *Parser, line scanner.Line) bool {
	if line.Kind != scanner.LineListItem {
		return false
	}
	m := requiredLine.FindStringSubmatch(cleanText(line.Text))
	if m == nil {
		return false
	}
	if p.dialect == dialectList {
		p.patchLast(func(a *ir.Attribute) {
			a.Required = requiredMarks[strings.ToLower(strings.TrimSpace(m[1]))]
		})
	}
	return true
}

// listAttribute accepts "- 属性名 [EnglishName] [CONSTANT_NAME]" with an
// optional ": Type" suffix (the value-object form).
func listAttribute(p *Parser, line scanner.Line) bool {
	if line.Kind != scanner.LineListItem || p.dialect == dialectTable {
		return false
	}
	owner := p.owner()
	if owner == nil {
		return false
	}

	text := cleanText(line.Text)
	typ := placeholderType
	if m := typedSuffix.FindStringSubmatch(text); m != nil {
		text, typ = m[1], typeToken(m[2])
	}

	name, ok := englishToken(text)
	if !ok {
		return false
	}

	p.dialect = dialectList
	p.lastAttr = sanitize.Sanitize(name)
	owner.SetAttribute(ir.Attribute{Name: p.lastAttr, Type: typ})
	return true
}

// simpleListAttribute is the value-object fallback "- name: type description".
func simpleListAttribute(p *Parser, line scanner.Line) bool {
	if line.Kind != scanner.LineListItem || p.dialect == dialectTable {
		return false
	}
	owner := p.owner()
	if owner == nil {
		return false
	}
	m := simpleAttr.FindStringSubmatch(cleanText(line.Text))
	if m == nil {
		return false
	}

	p.dialect = dialectList
	p.lastAttr = attributeName(m[1])
	owner.SetAttribute(ir.Attribute{Name: p.lastAttr, Type: m[2]})
	return true
}

func (p *Parser) patchLast(patch func(*ir.Attribute)) {
	owner := p.owner()
	if owner == nil || p.lastAttr == "" {
		return
	}
	attr, ok := owner.Attribute(p.lastAttr)
	if !ok {
		return
	}
	patch(&attr)
	owner.SetAttribute(attr)
}

// attributeName picks the English part of "日本語 [english]" or
// "日本語 (english)" cells and sanitizes the result.
func attributeName(raw string) string {
	if token, ok := englishToken(raw); ok {
		return sanitize.Sanitize(token)
	}
	if m := parenName.FindStringSubmatch(raw); m != nil {
		if isEnglish(m[2]) && !isEnglish(m[1]) {
			return sanitize.Sanitize(m[2])
		}
		return sanitize.Sanitize(m[1])
	}
	return sanitize.Sanitize(raw)
}

// typeToken prefers the English bracket token of "日本語型 [EnglishType]".
func typeToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if token, ok := englishToken(raw); ok {
		return token
	}
	if stripped := strings.TrimSpace(bracketToken.ReplaceAllString(raw, "")); stripped != "" {
		return stripped
	}
	return raw
}
