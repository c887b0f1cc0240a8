package schema

import (
	"regexp"
	"strings"
)

var (
	erHeader    = regexp.MustCompile(`^\s*erDiagram\b`)
	entityOpen  = regexp.MustCompile(`^\s*"?([^\s{"\[]+)"?\s*(?:\[[^\]]*\])?\s*\{\s*$`)
	blockClose  = regexp.MustCompile(`^\s*\}\s*$`)
	attrLine    = regexp.MustCompile(`^\s*(\S+)\s+(\S+)((?:\s+(?:PK|FK|UK)(?:\s*,\s*(?:PK|FK|UK))*)?)(?:\s+"([^"]*)")?\s*$`)
	relLine     = regexp.MustCompile(`^\s*"?([^\s"]+)"?\s+([|}][|o](?:--|\.\.)[|o][|{])\s+"?([^\s"]+)"?\s*:\s*(.*?)\s*$`)
	keyMarkers  = regexp.MustCompile(`PK|FK|UK`)
	mermaidNote = regexp.MustCompile(`^\s*%%`)
)

// IsERDiagram reports whether a diagram body is a Mermaid ER diagram.
func IsERDiagram(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" || mermaidNote.MatchString(line) {
			continue
		}
		return erHeader.MatchString(line)
	}
	return false
}

// ParseMermaid re-derives tables, columns and relationships from a Mermaid
// erDiagram body. Entities that only appear in relationships are listed as
// tables without columns, as Mermaid itself renders them.
func ParseMermaid(body string) *Schema {
	s := &Schema{}
	var current *Table

	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" || mermaidNote.MatchString(line) || erHeader.MatchString(line) {
			continue
		}

		if current != nil {
			if blockClose.MatchString(line) {
				current = nil
				continue
			}
			if m := attrLine.FindStringSubmatch(line); m != nil {
				keys := keyMarkers.FindAllString(m[3], -1)
				current.Columns = append(current.Columns, Column{
					Type:       m[1],
					Name:       m[2],
					PrimaryKey: contains(keys, "PK"),
					ForeignKey: contains(keys, "FK"),
					Unique:     contains(keys, "UK"),
					Comment:    m[4],
				})
			}
			continue
		}

		if m := entityOpen.FindStringSubmatch(line); m != nil {
			current = s.table(m[1])
			continue
		}
		if m := relLine.FindStringSubmatch(line); m != nil {
			s.table(m[1])
			s.table(m[3])
			s.addRelationship(Relationship{
				Parent:      m[1],
				Child:       m[3],
				Label:       strings.Trim(m[4], `"`),
				Cardinality: m[2],
			})
		}
	}
	return s
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
