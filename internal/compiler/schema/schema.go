// Package schema recovers relational table structure from database design
// documents.
//
// Two sources are understood: Markdown tables under a physical-design section
// (ParseMarkdown) and the body of an existing Mermaid erDiagram block
// (ParseMermaid). Both return the same Schema shape and never fail; text
// they do not recognize is skipped.
package schema

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"

	"github.com/dphaener/ddmark/internal/compiler/sanitize"
)

// DefaultLabel is used for relationships whose source names none.
const DefaultLabel = "references"

// Column is one column of a Table.
type Column struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	PrimaryKey bool   `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	ForeignKey bool   `json:"foreign_key,omitempty" yaml:"foreign_key,omitempty"`
	Unique     bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
	RefTable   string `json:"ref_table,omitempty" yaml:"ref_table,omitempty"`
	RefColumn  string `json:"ref_column,omitempty" yaml:"ref_column,omitempty"`
	Label      string `json:"label,omitempty" yaml:"label,omitempty"`
	Comment    string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// Table is a named list of columns in declaration order.
type Table struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []Column `json:"columns" yaml:"columns"`
}

// Relationship is a foreign key seen from the referenced side: Parent is the
// referenced table and Child the referencing one.
type Relationship struct {
	Parent      string `json:"parent" yaml:"parent"`
	Child       string `json:"child" yaml:"child"`
	Label       string `json:"label" yaml:"label"`
	Cardinality string `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`
}

// Schema is the recovered structure of one document.
type Schema struct {
	Tables        []*Table       `json:"tables" yaml:"tables"`
	Relationships []Relationship `json:"relationships" yaml:"relationships"`
}

// IsEmpty reports whether no table was found.
func (s *Schema) IsEmpty() bool {
	return s == nil || len(s.Tables) == 0
}

// Table returns the table with the given name.
func (s *Schema) Table(name string) *Table {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// lookup finds a table by name ignoring case.
func (s *Schema) lookup(name string) *Table {
	if t := s.Table(name); t != nil {
		return t
	}
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

func (s *Schema) table(name string) *Table {
	if t := s.Table(name); t != nil {
		return t
	}
	t := &Table{Name: name}
	s.Tables = append(s.Tables, t)
	return t
}

func (s *Schema) addRelationship(rel Relationship) {
	for _, existing := range s.Relationships {
		if existing.Parent == rel.Parent && existing.Child == rel.Child && existing.Label == rel.Label {
			return
		}
	}
	s.Relationships = append(s.Relationships, rel)
}

// ColumnCount is the number of columns across all tables.
func (s *Schema) ColumnCount() int {
	n := 0
	for _, t := range s.Tables {
		n += len(t.Columns)
	}
	return n
}

var (
	emphasis      = strings.NewReplacer("**", "", "__", "", "`", "")
	ordinalPrefix = regexp.MustCompile(`^\d+(?:[.-]\d+)*(?:\.\s*|\s+)`)
	tableSuffix   = regexp.MustCompile(`(?i)(?:\s*(?:テーブル定義|テーブル)|\s+table)$`)
	parenPair     = regexp.MustCompile(`^(.+?)\s*\(\s*(.+?)\s*\)$`)
	statement     = regexp.MustCompile(`(?i)\bsql\b|\bddl\b|create\s|インデックス|\bindex(?:es)?\b|クエリ|\bquery\b`)
	identifier    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func clean(s string) string {
	return strings.TrimSpace(emphasis.Replace(width.Fold.String(s)))
}

// tableName turns a heading such as "#### 2. orders テーブル" or
// "### 注文 (orders)" into a table name.
func tableName(heading string) string {
	s := ordinalPrefix.ReplaceAllString(clean(heading), "")
	s = strings.TrimSpace(tableSuffix.ReplaceAllString(s, ""))
	if m := parenPair.FindStringSubmatch(s); m != nil {
		inner := strings.TrimSpace(tableSuffix.ReplaceAllString(m[2], ""))
		switch {
		case identifier.MatchString(m[1]):
			s = m[1]
		case identifier.MatchString(inner):
			s = inner
		default:
			s = m[1]
		}
	}
	if s == "" {
		return ""
	}
	return sanitize.Sanitize(s)
}

// resolveForeignKeys fills in missing FK targets from xxx_id column names and
// derives relationships for every FK whose target table exists.
func (s *Schema) resolveForeignKeys() {
	for _, t := range s.Tables {
		for i := range t.Columns {
			c := &t.Columns[i]
			if !c.ForeignKey {
				continue
			}
			if c.RefTable == "" {
				c.RefTable, c.RefColumn = s.guessReference(c.Name)
			}
			if c.RefTable == "" {
				continue
			}
			parent := s.lookup(c.RefTable)
			if parent == nil {
				continue
			}
			c.RefTable = parent.Name
			label := c.Label
			if label == "" {
				label = DefaultLabel
			}
			s.addRelationship(Relationship{Parent: parent.Name, Child: t.Name, Label: label})
		}
	}
}

func (s *Schema) guessReference(column string) (table, col string) {
	lower := strings.ToLower(column)
	if !strings.HasSuffix(lower, "_id") || len(lower) <= 3 {
		return "", ""
	}
	stem := column[:len(column)-3]
	for _, candidate := range []string{stem, stem + "s", stem + "es"} {
		for _, t := range s.Tables {
			if strings.EqualFold(t.Name, candidate) {
				return t.Name, "id"
			}
		}
	}
	return "", ""
}
