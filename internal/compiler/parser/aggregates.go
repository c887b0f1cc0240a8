package parser

import (
	"regexp"
	"strings"

	"github.com/dphaener/ddmark/internal/compiler/ir"
	"github.com/dphaener/ddmark/internal/compiler/scanner"
)

// aggregateMode tracks what the next list item inside an aggregate names.
type aggregateMode int

const (
	aggModeNone aggregateMode = iota
	aggModeRoot
	aggModeMembers
)

var (
	aggregateRootKey    = regexp.MustCompile(`集約ルート|(?i:aggregate\s*root)`)
	aggregateMembersKey = regexp.MustCompile(`含まれるエンティティ|包含エンティティ|境界|(?i:members)`)
	memberSeparators    = regexp.MustCompile(`[,、，]`)
)

var aggregateRecognizers = []recognizer{
	aggregateKeyLine,
	aggregateListItem,
	aggregateText,
}

func (p *Parser) aggregateHeading(line scanner.Line, cleaned string) {
	if cleaned == "" {
		return
	}
	if p.aggregateKey(cleaned) {
		p.aggIndent = -1
		return
	}
	if line.Level > 4 {
		return
	}

	var name string
	if token, ok := englishToken(cleaned); ok {
		name = token
	} else if strings.Contains(cleaned, "集約") || strings.Contains(strings.ToLower(cleaned), "aggregate") {
		name = elementName(cleaned)
	}

	if name == "" {
		if line.Level == 3 {
			p.aggregate = nil
			p.aggMode = aggModeNone
		}
		return
	}

	p.aggregate = &ir.Aggregate{Name: name}
	p.aggMode = aggModeNone
	p.result.Aggregates = append(p.result.Aggregates, p.aggregate)
}

// aggregateKey handles root and member lines, which may carry their value
// inline after a colon or announce the following list items.
func (p *Parser) aggregateKey(text string) bool {
	if p.aggregate == nil {
		return false
	}

	key, value := splitKey(text)
	switch {
	case aggregateRootKey.MatchString(key):
		if value == "" {
			p.aggMode = aggModeRoot
			return true
		}
		p.aggregate.Root = value
		p.aggMode = aggModeNone
		return true
	case aggregateMembersKey.MatchString(key):
		if value == "" {
			p.aggMode = aggModeMembers
			return true
		}
		for _, m := range memberSeparators.Split(value, -1) {
			if m = strings.TrimSpace(m); m != "" {
				p.aggregate.Members = append(p.aggregate.Members, m)
			}
		}
		p.aggMode = aggModeNone
		return true
	}
	return false
}

func aggregateKeyLine(p *Parser, line scanner.Line) bool {
	if line.Kind != scanner.LineListItem && line.Kind != scanner.LineText {
		return false
	}
	if !p.aggregateKey(cleanText(line.Text)) {
		return false
	}
	p.aggIndent = line.Indent
	if line.Kind == scanner.LineText {
		p.aggIndent = -1
	}
	return true
}

func aggregateListItem(p *Parser, line scanner.Line) bool {
	if line.Kind != scanner.LineListItem || p.aggregate == nil {
		return false
	}
	name, value := splitKey(cleanText(line.Text))
	if name == "" {
		return true
	}
	// A sibling of the key line or a "key: value" item closes the list.
	if value != "" || (p.aggIndent >= 0 && line.Indent <= p.aggIndent) {
		p.aggMode = aggModeNone
		return true
	}

	switch p.aggMode {
	case aggModeRoot:
		p.aggregate.Root = name
		p.aggMode = aggModeNone
	case aggModeMembers:
		p.aggregate.Members = append(p.aggregate.Members, name)
	}
	return true
}

// aggregateText ends a pending root or member list on running prose.
func aggregateText(p *Parser, line scanner.Line) bool {
	if line.Kind == scanner.LineText || line.Kind == scanner.LineNumbered {
		p.aggMode = aggModeNone
		return true
	}
	return false
}

// splitKey splits "key: value" on the first colon. Text without a colon is
// returned whole as the key.
func splitKey(text string) (key, value string) {
	i := strings.Index(text, ":")
	if i < 0 {
		return strings.TrimSpace(text), ""
	}
	return strings.TrimSpace(text[:i]), strings.TrimSpace(text[i+1:])
}
