// Package inference adds relationships that a domain model document implies
// but does not state.
//
// The engine runs a fixed sequence of passes over a parsed IR. Each pass only
// adds edges; an edge whose target and kind already exist on the source
// entity is a no-op, so earlier passes win the iteration order. Unresolvable
// references are skipped, never reported.
package inference

import (
	"strings"

	"github.com/dphaener/ddmark/internal/compiler/ir"
	"github.com/dphaener/ddmark/internal/compiler/parser"
	"github.com/dphaener/ddmark/internal/compiler/sanitize"
)

// Stats counts the relationships each pass added.
type Stats map[ir.RelationshipOrigin]int

// Total is the number of relationships added by all passes.
func (s Stats) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Engine runs the inference passes over one ParseResult. An Engine mutates
// entity relationships in place and reads value objects and aggregates only.
type Engine struct {
	result       *ir.ParseResult
	entityNames  []string
	valueObjects []string
	stats        Stats
}

// New creates an engine for result.
func New(result *ir.ParseResult) *Engine {
	return &Engine{
		result:       result,
		entityNames:  result.EntityNames(),
		valueObjects: result.ValueObjectNames(),
		stats:        Stats{},
	}
}

// Infer is a convenience wrapper around New(result).Run().
func Infer(result *ir.ParseResult) Stats {
	if result == nil {
		return Stats{}
	}
	return New(result).Run()
}

// Run executes the passes in order and reports what they added.
func (e *Engine) Run() Stats {
	passes := []func(){
		e.foreignKeys,
		e.references,
		e.valueObjectTypes,
		e.typeNames,
		e.domainSeeds,
		e.aggregateContainment,
	}
	for _, pass := range passes {
		pass()
	}
	return e.stats
}

// add records an edge; attr is the originating attribute name or empty.
func (e *Engine) add(source *ir.Entity, target string, kind ir.RelationshipKind, origin ir.RelationshipOrigin, attr string) {
	if source.AddRelationship(ir.Relationship{Target: target, Kind: kind, Origin: origin, Attribute: attr}) {
		e.stats[origin]++
	}
}

// otherEntities lists every entity name except self.
func (e *Engine) otherEntities(self string) []string {
	names := make([]string, 0, len(e.entityNames))
	for _, n := range e.entityNames {
		if n != self {
			names = append(names, n)
		}
	}
	return names
}

// foreignKeys handles "customerId" and "customer_id" attributes.
func (e *Engine) foreignKeys() {
	for _, entity := range e.result.Entities {
		candidates := e.otherEntities(entity.Name)
		for _, attr := range entity.Attributes {
			stem, ok := foreignKeyStem(attr.Name)
			if !ok {
				continue
			}
			if target, ok := sanitize.Resolve(aliasFor(stem), candidates); ok {
				e.add(entity, target, ir.ManyToOne, ir.OriginForeignKey, attr.Name)
			}
		}
	}
}

func foreignKeyStem(name string) (string, bool) {
	switch {
	case name == "id" || name == "_id":
		return "", false
	case len(name) > 2 && strings.HasSuffix(name, "Id"):
		return name[:len(name)-2], true
	case len(name) > 3 && strings.HasSuffix(name, "_id"):
		return name[:len(name)-3], true
	}
	return "", false
}

// references handles "customerRef" and "顧客リファレンス" attributes.
func (e *Engine) references() {
	for _, entity := range e.result.Entities {
		candidates := e.otherEntities(entity.Name)
		for _, attr := range entity.Attributes {
			stem := referenceStem(attr.Name)
			if stem == "" {
				continue
			}
			if target, ok := sanitize.Resolve(aliasFor(stem), candidates); ok {
				e.add(entity, target, ir.ManyToOne, ir.OriginReference, attr.Name)
			}
		}
	}
}

func referenceStem(name string) string {
	for _, marker := range referenceMarkers {
		if i := strings.Index(name, marker); i > 0 {
			return strings.TrimRight(name[:i], "_")
		}
	}
	return ""
}

// valueObjectTypes links entities to the value objects their attributes are
// typed with. Primitive type words only link on an exact name match.
func (e *Engine) valueObjectTypes() {
	if len(e.valueObjects) == 0 {
		return
	}
	for _, entity := range e.result.Entities {
		for _, attr := range entity.Attributes {
			typ := ElementType(attr.Type)
			target, ok := exactMatch(typ, e.valueObjects)
			if !ok && !IsPrimitive(typ) {
				target, ok = sanitize.Resolve(typ, e.valueObjects)
			}
			if ok {
				e.add(entity, target, ir.ValueObjectUse, ir.OriginValueObject, attr.Name)
			}
		}
	}
}

// typeNames links attributes whose type text names another entity, directly
// or through a Japanese/English synonym.
func (e *Engine) typeNames() {
	for _, entity := range e.result.Entities {
		for _, attr := range entity.Attributes {
			if attr.Type == "" {
				continue
			}
			kind := ir.ManyToOne
			if IsCollection(attr.Type) {
				kind = ir.OneToMany
			}
			for _, other := range e.result.Entities {
				if other.Name == entity.Name {
					continue
				}
				if mentions(attr.Type, other.Name) {
					e.add(entity, other.Name, kind, ir.OriginTypeName, attr.Name)
				}
			}
		}
	}
}

func mentions(typ, entity string) bool {
	if strings.Contains(typ, entity) {
		return true
	}
	for _, s := range synonyms {
		if strings.Contains(typ, s.japanese) && sanitize.Normalize(entity) == strings.ToLower(s.english) {
			return true
		}
		if strings.Contains(typ, s.english) && entity == s.japanese {
			return true
		}
	}
	return false
}

// domainSeeds adds the platform relationships every workspace model is
// expected to have once both ends exist.
func (e *Engine) domainSeeds() {
	for _, seed := range domainSeeds {
		from, ok := sanitize.Resolve(seed.from, e.entityNames)
		if !ok {
			continue
		}
		to, ok := sanitize.Resolve(seed.to, e.entityNames)
		if !ok || to == from {
			continue
		}
		e.add(e.result.Entity(from), to, seed.kind, ir.OriginDomain, "")
	}
}

// aggregateContainment links every resolved root to its resolved members.
func (e *Engine) aggregateContainment() {
	for _, agg := range e.result.Aggregates {
		root, ok := parser.ResolveRaw(agg.Root, e.entityNames)
		if !ok {
			continue
		}
		source := e.result.Entity(root)
		for _, raw := range agg.Members {
			member, ok := parser.ResolveRaw(raw, e.entityNames)
			if !ok || member == root {
				continue
			}
			e.add(source, member, ir.OneToMany, ir.OriginAggregate, "")
		}
	}
}

func exactMatch(name string, candidates []string) (string, bool) {
	key := sanitize.Normalize(name)
	if key == "" {
		return "", false
	}
	for _, c := range candidates {
		if sanitize.Normalize(c) == key {
			return c, true
		}
	}
	return "", false
}
