package codegen

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/compiler/errors"
	"github.com/dphaener/ddmark/internal/compiler/inference"
	"github.com/dphaener/ddmark/internal/compiler/ir"
	"github.com/dphaener/ddmark/internal/compiler/parser"
	"github.com/dphaener/ddmark/internal/compiler/sanitize"
	"github.com/dphaener/ddmark/internal/compiler/scanner"
)

// displayTypes normalizes attribute type words for class diagrams.
var displayTypes = map[string]string{
	"UUID":          "String",
	"STRING":        "String",
	"TEXT":          "String",
	"VARCHAR":       "String",
	"CHAR":          "String",
	"EMAIL":         "String",
	"PASSWORD_HASH": "String",
	"URL":           "String",
	"ENUM":          "String",
	"DATE":          "Date",
	"TIMESTAMP":     "DateTime",
	"DATETIME":      "DateTime",
	"DECIMAL":       "Decimal",
	"MONEY":         "Decimal",
	"NUMBER":        "Decimal",
	"NUMERIC":       "Decimal",
	"FLOAT":         "Decimal",
	"DOUBLE":        "Decimal",
	"INTEGER":       "Integer",
	"INT":           "Integer",
	"BIGINT":        "Integer",
	"PERCENTAGE":    "Integer",
	"BOOLEAN":       "Boolean",
	"BOOL":          "Boolean",
	"JSON":          "Object",
	"OBJECT":        "Object",
	"文字列":           "String",
	"日付":            "Date",
	"日時":            "DateTime",
	"整数":            "Integer",
	"数値":            "Decimal",
	"金額":            "Decimal",
	"真偽値":           "Boolean",
}

var typeWord = regexp.MustCompile(`^([A-Za-z]+(?:_[A-Za-z]+)*?)(?:_\d+|\(\s*\d+(?:\s*,\s*\d+)?\s*\))?$`)

const defaultDisplayType = "String"

// edgeFormats renders relationships per kind.
var edgeFormats = map[ir.RelationshipKind]string{
	ir.OneToOne:       "%s --> %s : 1..1",
	ir.OneToMany:      "%s --> %s : 1..*",
	ir.ManyToOne:      "%s --> %s : *..1",
	ir.ManyToMany:     "%s --> %s : *..*",
	ir.ValueObjectUse: "%s ..> %s : uses",
}

type classDiagram struct {
	result   *ir.ParseResult
	declared []string
	edges    map[string]bool
	// contained holds the (root, member) pairs drawn as aggregate containment.
	contained map[[2]string]bool
}

var classHeader = regexp.MustCompile(`^\s*classDiagram(?:-v2)?\b`)

// IsClassDiagram reports whether a fence body is a Mermaid class diagram:
// its first statement, after blank lines and %% comments, is classDiagram.
func IsClassDiagram(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%%") {
			continue
		}
		return classHeader.MatchString(line)
	}
	return false
}

// ClassDiagramOf converts a domain model document. An author-supplied
// classDiagram fence is returned verbatim and trimmed; otherwise the model is
// parsed, its relationships inferred and the result emitted by ClassDiagram.
func (g *Generator) ClassDiagramOf(markdown string) (Result, error) {
	for _, f := range scanner.Fences(markdown) {
		if !IsClassDiagram(f.Body) {
			continue
		}
		g.logger.Debug("class diagram passed through", zap.String("fence", f.Language))
		return Result{Language: LanguageMermaid, Origin: OriginPassthrough, Body: strings.TrimSpace(f.Body)}, nil
	}

	result := parser.Parse(markdown)
	stats := inference.Infer(result)
	g.logger.Debug("relationships inferred", zap.Int("total", stats.Total()))
	return g.ClassDiagram(result)
}

// ClassDiagram writes a Mermaid class diagram for result. An empty result
// yields a one-class placeholder; a nil result is an internal error.
func (g *Generator) ClassDiagram(result *ir.ParseResult) (Result, error) {
	if result == nil {
		return Result{}, errors.NewNilIR("class")
	}
	g.reset()

	if result.IsEmpty() {
		g.line("classDiagram")
		g.indent++
		g.line("class DomainModel {")
		g.indent++
		g.line("<<placeholder>>")
		g.indent--
		g.line("}")
		return Result{Language: LanguageMermaid, Origin: OriginPlaceholder, Body: g.String()}, nil
	}

	d := &classDiagram{
		result:    result,
		declared:  append(result.EntityNames(), result.ValueObjectNames()...),
		edges:     make(map[string]bool),
		contained: make(map[[2]string]bool),
	}
	containment := d.containmentPairs()

	g.line("classDiagram")
	g.indent++
	g.classNodes(d)
	g.relationshipEdges(d)
	g.valueObjectEdges(d)
	for _, pair := range containment {
		g.edge(d, fmt.Sprintf("%s ..> %s : contains", sanitize.ClassName(pair[0]), sanitize.ClassName(pair[1])))
	}
	g.indent--

	g.logger.Debug("class diagram generated",
		zap.Int("entities", len(result.Entities)),
		zap.Int("value_objects", len(result.ValueObjects)),
		zap.Int("aggregates", len(result.Aggregates)),
		zap.Int("edges", len(d.edges)))

	return Result{Language: LanguageMermaid, Origin: OriginSynthesized, Body: g.String()}, nil
}

func (g *Generator) classNodes(d *classDiagram) {
	entities := d.result.Entities
	if len(d.result.Aggregates) > 0 {
		ordered := make([]*ir.Entity, 0, len(entities))
		for _, e := range entities {
			if e.IsAggregateRoot {
				ordered = append(ordered, e)
			}
		}
		for _, e := range entities {
			if !e.IsAggregateRoot {
				ordered = append(ordered, e)
			}
		}
		entities = ordered
	}

	for _, e := range entities {
		marker := e.Stereotype.Marker()
		switch {
		case e.IsAggregateRoot:
			marker = "aggregate root"
		case len(d.result.Aggregates) == 0 && e.Stereotype == ir.StereotypeEntity:
			marker = ""
		}
		g.classNode(d, e.Name, marker, e.Attributes)
	}
	for _, vo := range d.result.ValueObjects {
		g.classNode(d, vo.Name, vo.Stereotype().Marker(), vo.Attributes)
	}
}

func (g *Generator) classNode(d *classDiagram, name, marker string, attrs []ir.Attribute) {
	g.line("class %s {", sanitize.ClassName(name))
	g.indent++
	if marker != "" {
		g.line("<<%s>>", marker)
	}
	for _, a := range attrs {
		g.line("+%s %s", d.displayType(a.Type), sanitize.Sanitize(a.Name))
	}
	g.indent--
	g.line("}")
}

// displayType shows declared model types by name, collections of them as
// List~Name~ and everything else through the normalization table.
func (d *classDiagram) displayType(raw string) string {
	typ := strings.TrimSpace(raw)
	if typ == "" {
		return defaultDisplayType
	}
	if name, ok := exactDeclared(typ, d.declared); ok {
		return sanitize.ClassName(name)
	}
	if inference.IsCollection(typ) {
		if name, ok := exactDeclared(inference.ElementType(typ), d.declared); ok {
			return "List~" + sanitize.ClassName(name) + "~"
		}
	}
	if display, ok := displayTypes[typ]; ok {
		return display
	}
	if m := typeWord.FindStringSubmatch(typ); m != nil {
		if display, ok := displayTypes[strings.ToUpper(m[1])]; ok {
			return display
		}
	}
	return defaultDisplayType
}

func exactDeclared(name string, declared []string) (string, bool) {
	key := sanitize.Normalize(name)
	if key == "" {
		return "", false
	}
	for _, c := range declared {
		if sanitize.Normalize(c) == key {
			return c, true
		}
	}
	return "", false
}

// containmentPairs resolves every aggregate's root and members once, in
// aggregate order, dropping pairs already seen.
func (d *classDiagram) containmentPairs() [][2]string {
	names := d.result.EntityNames()
	var pairs [][2]string
	for _, agg := range d.result.Aggregates {
		root, ok := parser.ResolveRaw(agg.Root, names)
		if !ok {
			continue
		}
		for _, raw := range agg.Members {
			member, ok := parser.ResolveRaw(raw, names)
			if !ok || member == root {
				continue
			}
			pair := [2]string{root, member}
			if d.contained[pair] {
				continue
			}
			d.contained[pair] = true
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

func (g *Generator) relationshipEdges(d *classDiagram) {
	for _, e := range d.result.Entities {
		for _, rel := range e.OrderedRelationships() {
			target, ok := sanitize.Resolve(rel.Target, d.declared)
			if !ok || target == e.Name {
				continue
			}
			if rel.Kind == ir.OneToMany && d.contained[[2]string{e.Name, target}] {
				continue
			}
			format, ok := edgeFormats[rel.Kind]
			if !ok {
				continue
			}
			g.edge(d, fmt.Sprintf(format, sanitize.ClassName(e.Name), sanitize.ClassName(target)))
		}
	}
}

// valueObjectEdges attaches every value object to the first aggregate's root.
func (g *Generator) valueObjectEdges(d *classDiagram) {
	if len(d.result.Aggregates) == 0 || len(d.result.ValueObjects) == 0 {
		return
	}
	root, ok := parser.ResolveRaw(d.result.Aggregates[0].Root, d.result.EntityNames())
	if !ok {
		return
	}
	for _, vo := range d.result.ValueObjects {
		g.edge(d, fmt.Sprintf("%s o-- %s : contains", sanitize.ClassName(root), sanitize.ClassName(vo.Name)))
	}
}

func (g *Generator) edge(d *classDiagram, text string) {
	if d.edges[text] {
		return
	}
	d.edges[text] = true
	g.line("%s", text)
}
