package codegen

import (
	"strings"

	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/compiler/sanitize"
	"github.com/dphaener/ddmark/internal/compiler/scanner"
	"github.com/dphaener/ddmark/internal/compiler/schema"
)

// ERDiagram writes a Mermaid ER diagram for a database design document. An
// existing erDiagram fence is returned verbatim; otherwise tables are rebuilt
// from the physical-design section; with no tables a placeholder is returned.
func (g *Generator) ERDiagram(markdown string) Result {
	for _, f := range scanner.Fences(markdown) {
		if !schema.IsERDiagram(f.Body) {
			continue
		}
		derived := schema.ParseMermaid(f.Body)
		g.logger.Debug("er diagram passed through",
			zap.Int("tables", len(derived.Tables)),
			zap.Int("columns", derived.ColumnCount()),
			zap.Int("relationships", len(derived.Relationships)))
		return Result{Language: LanguageMermaid, Origin: OriginPassthrough, Body: f.Body}
	}

	s := schema.ParseMarkdown(markdown)
	if s.IsEmpty() {
		return g.erPlaceholder()
	}
	g.logger.Debug("er diagram synthesized",
		zap.Int("tables", len(s.Tables)),
		zap.Int("relationships", len(s.Relationships)))
	return Result{Language: LanguageMermaid, Origin: OriginSynthesized, Body: g.ERSchema(s)}
}

// ERSchema writes s as a Mermaid erDiagram body.
func (g *Generator) ERSchema(s *schema.Schema) string {
	g.reset()
	g.line("erDiagram")
	g.indent++
	for _, t := range s.Tables {
		g.line("%s {", erName(t.Name))
		g.indent++
		for _, c := range t.Columns {
			g.line("%s", erColumn(c))
		}
		g.indent--
		g.line("}")
	}
	for _, r := range s.Relationships {
		label := r.Label
		if label == "" {
			label = schema.DefaultLabel
		}
		g.line(`%s ||--o{ %s : "%s"`, erName(r.Parent), erName(r.Child), erText(label))
	}
	g.indent--
	return g.String()
}

func (g *Generator) erPlaceholder() Result {
	g.reset()
	g.line("erDiagram")
	g.indent++
	g.line("NO_TABLES {")
	g.indent++
	g.line(`string note "no tables found"`)
	g.indent--
	g.line("}")
	return Result{Language: LanguageMermaid, Origin: OriginPlaceholder, Body: g.String()}
}

func erColumn(c schema.Column) string {
	var b strings.Builder
	b.WriteString(erType(c.Type))
	b.WriteByte(' ')
	b.WriteString(erName(c.Name))

	var keys []string
	if c.PrimaryKey {
		keys = append(keys, "PK")
	}
	if c.ForeignKey {
		keys = append(keys, "FK")
	}
	if c.Unique {
		keys = append(keys, "UK")
	}
	if len(keys) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(keys, ", "))
	}
	if c.Comment != "" {
		b.WriteString(` "`)
		b.WriteString(erText(c.Comment))
		b.WriteByte('"')
	}
	return b.String()
}

// erType folds a SQL type into a Mermaid attribute type word:
// VARCHAR(255) becomes VARCHAR_255. Types without ASCII letters become
// "string".
func erType(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(collapse(b.String()), "_")
	if strings.IndexFunc(out, isASCIILetter) < 0 {
		return "string"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "T_" + out
	}
	return out
}

func erName(raw string) string {
	return sanitize.Sanitize(raw)
}

var erTextEscaper = strings.NewReplacer(`"`, "'", "\n", " ")

func erText(s string) string {
	return erTextEscaper.Replace(strings.TrimSpace(s))
}

func collapse(s string) string {
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
