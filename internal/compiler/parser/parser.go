// Package parser builds the domain model IR from semi-structured Markdown.
//
// The parser is a single forward pass over scanner lines. A section state is
// selected by recognized "##" headings; inside each section an ordered list of
// dialect recognizers is tried per line and the first one that accepts the
// line consumes it. Anything no recognizer accepts is ignored, so parsing is
// total: it never fails and never panics on malformed input.
package parser

import (
	"strings"

	"github.com/dphaener/ddmark/internal/compiler/ir"
	"github.com/dphaener/ddmark/internal/compiler/sanitize"
	"github.com/dphaener/ddmark/internal/compiler/scanner"
)

type section int

const (
	sectionNone section = iota
	sectionEntities
	sectionValueObjects
	sectionDomainServices
	sectionAggregates
)

func (s section) String() string {
	switch s {
	case sectionEntities:
		return "entities"
	case sectionValueObjects:
		return "value_objects"
	case sectionDomainServices:
		return "domain_services"
	case sectionAggregates:
		return "aggregates"
	default:
		return "none"
	}
}

// sectionKeywords is checked in order against "##" headings; the first
// keyword contained in the heading selects the section.
var sectionKeywords = []struct {
	section  section
	keywords []string
}{
	{sectionValueObjects, []string{"値オブジェクト", "バリューオブジェクト", "Value Object", "ValueObject"}},
	{sectionDomainServices, []string{"ドメインサービス", "Domain Service"}},
	{sectionAggregates, []string{"集約", "Aggregate"}},
	{sectionEntities, []string{"エンティティ", "Entities", "Entity"}},
}

// subSectionSynonyms are the exact "###" headings that also switch sections.
var subSectionSynonyms = map[string]section{
	"エンティティ":          sectionEntities,
	"エンティティ定義":        sectionEntities,
	"エンティティ一覧":        sectionEntities,
	"Entities":        sectionEntities,
	"値オブジェクト":         sectionValueObjects,
	"値オブジェクト定義":       sectionValueObjects,
	"値オブジェクト一覧":       sectionValueObjects,
	"Value Objects":   sectionValueObjects,
	"ドメインサービス":        sectionDomainServices,
	"ドメインサービス定義":      sectionDomainServices,
	"Domain Services": sectionDomainServices,
	"集約":              sectionAggregates,
	"集約定義":            sectionAggregates,
	"集約一覧":            sectionAggregates,
	"Aggregates":      sectionAggregates,
}

type dialect int

const (
	dialectNone dialect = iota
	dialectTable
	dialectList
)

// Parser holds the state of one parse. Parser instances are not safe for
// concurrent use; the package-level Parse creates a fresh one per call.
type Parser struct {
	lines  []scanner.Line
	result *ir.ParseResult

	section section

	entity      *ir.Entity
	valueObject *ir.ValueObject
	aggregate   *ir.Aggregate

	dialect  dialect
	table    *tableLayout
	lastAttr string

	aggMode   aggregateMode
	aggIndent int
}

// New creates a parser for source.
func New(source string) *Parser {
	return &Parser{
		lines:  scanner.Scan(source),
		result: &ir.ParseResult{},
	}
}

// Parse is a convenience wrapper around New(source).Parse().
func Parse(source string) *ir.ParseResult {
	return New(source).Parse()
}

// Parse runs the pass and returns the IR. Entities, value objects and
// aggregates keep the order of their first appearance.
func (p *Parser) Parse() *ir.ParseResult {
	for _, line := range p.lines {
		switch line.Kind {
		case scanner.LineFence, scanner.LineCode:
			continue
		case scanner.LineHeading:
			p.heading(line)
			continue
		}

		switch p.section {
		case sectionEntities, sectionDomainServices:
			p.apply(entityRecognizers, line)
		case sectionValueObjects:
			p.apply(valueObjectRecognizers, line)
		case sectionAggregates:
			p.apply(aggregateRecognizers, line)
		}
	}

	p.markAggregateRoots()
	return p.result
}

// recognizer consumes a line it understands and reports whether it did.
type recognizer func(p *Parser, line scanner.Line) bool

func (p *Parser) apply(recognizers []recognizer, line scanner.Line) {
	for _, r := range recognizers {
		if r(p, line) {
			return
		}
	}
}

func (p *Parser) heading(line scanner.Line) {
	cleaned := cleanHeading(line.Text)

	switch {
	case line.Level <= 2:
		p.enterSection(sectionFor(cleaned))
		return
	case line.Level == 3:
		if sec, ok := subSectionSynonyms[cleaned]; ok {
			p.enterSection(sec)
			return
		}
	}

	switch p.section {
	case sectionEntities, sectionDomainServices:
		p.entityHeading(line, cleaned)
	case sectionValueObjects:
		p.valueObjectHeading(line, cleaned)
	case sectionAggregates:
		p.aggregateHeading(line, cleaned)
	}
}

func sectionFor(cleaned string) section {
	for _, candidate := range sectionKeywords {
		for _, k := range candidate.keywords {
			if strings.Contains(cleaned, k) {
				return candidate.section
			}
		}
	}
	return sectionNone
}

func (p *Parser) enterSection(sec section) {
	p.section = sec
	p.entity = nil
	p.valueObject = nil
	p.aggregate = nil
	p.aggMode = aggModeNone
	p.resetDialect()
}

func (p *Parser) resetDialect() {
	p.dialect = dialectNone
	p.table = nil
	p.lastAttr = ""
}

func (p *Parser) entityHeading(line scanner.Line, cleaned string) {
	if line.Level > 4 || cleaned == "" {
		return
	}

	if p.entity != nil && line.Level == 4 && aggregateRootMarker.MatchString(cleaned) {
		p.entity.IsAggregateRoot = true
		p.resetDialect()
		return
	}

	if isStopHeading(cleaned) {
		p.resetDialect()
		return
	}

	if line.Level == 3 && isGroupHeading(cleaned) {
		p.entity = nil
		p.resetDialect()
		return
	}

	name := elementName(cleaned)
	entity := p.result.Entity(name)
	if entity == nil {
		entity = &ir.Entity{
			Name:       name,
			Stereotype: stereotypeFor(cleaned, name, p.section),
		}
		p.result.Entities = append(p.result.Entities, entity)
	}
	p.entity = entity
	p.resetDialect()
}

func (p *Parser) valueObjectHeading(line scanner.Line, cleaned string) {
	if line.Level > 4 || cleaned == "" {
		return
	}
	if isStopHeading(cleaned) {
		p.resetDialect()
		return
	}
	if line.Level == 3 && isGroupHeading(cleaned) {
		p.valueObject = nil
		p.resetDialect()
		return
	}

	name := elementName(cleaned)
	vo := p.result.ValueObject(name)
	if vo == nil {
		vo = &ir.ValueObject{Name: name}
		p.result.ValueObjects = append(p.result.ValueObjects, vo)
	}
	p.valueObject = vo
	p.resetDialect()
}

// owner returns whatever attributes are currently attached to.
func (p *Parser) owner() attributeOwner {
	switch p.section {
	case sectionEntities, sectionDomainServices:
		if p.entity != nil {
			return p.entity
		}
	case sectionValueObjects:
		if p.valueObject != nil {
			return p.valueObject
		}
	}
	return nil
}

// markAggregateRoots flags every entity that an aggregate names as its root.
func (p *Parser) markAggregateRoots() {
	names := p.result.EntityNames()
	for _, agg := range p.result.Aggregates {
		if agg.Root == "" {
			continue
		}
		if name, ok := resolveRaw(agg.Root, names); ok {
			p.result.Entity(name).IsAggregateRoot = true
		}
	}
}

// resolveRaw resolves a raw, possibly bilingual name against candidates,
// trying the parsed element name first and the raw text second.
func resolveRaw(raw string, candidates []string) (string, bool) {
	if name, ok := sanitize.Resolve(elementName(cleanHeading(raw)), candidates); ok {
		return name, true
	}
	return sanitize.Resolve(raw, candidates)
}

// ResolveRaw exposes the raw-name resolution used for aggregate roots and
// members so that inference and emitters agree on it.
func ResolveRaw(raw string, candidates []string) (string, bool) {
	return resolveRaw(raw, candidates)
}
