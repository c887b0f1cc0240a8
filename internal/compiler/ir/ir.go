// Package ir defines the intermediate representation produced by the domain
// model parser and consumed by relationship inference and the emitters.
//
// An IR value is built from scratch for every conversion and discarded once
// diagram source has been produced; nothing in this package is shared across
// calls.
package ir

import "sort"

// Stereotype is the DDD role tag attached to a parsed model element.
type Stereotype string

const (
	StereotypeEntity        Stereotype = "Entity"
	StereotypeValueObject   Stereotype = "ValueObject"
	StereotypeAggregate     Stereotype = "Aggregate"
	StereotypeService       Stereotype = "Service"
	StereotypeRepository    Stereotype = "Repository"
	StereotypeFactory       Stereotype = "Factory"
	StereotypeEvent         Stereotype = "Event"
	StereotypeSpecification Stereotype = "Specification"
)

// Marker returns the class-diagram annotation text for the stereotype,
// e.g. "value object" for StereotypeValueObject.
func (s Stereotype) Marker() string {
	switch s {
	case StereotypeValueObject:
		return "value object"
	case StereotypeAggregate:
		return "aggregate"
	case StereotypeService:
		return "service"
	case StereotypeRepository:
		return "repository"
	case StereotypeFactory:
		return "factory"
	case StereotypeEvent:
		return "event"
	case StereotypeSpecification:
		return "specification"
	default:
		return "entity"
	}
}

// RelationshipKind is the cardinality of a directed relationship.
type RelationshipKind string

const (
	OneToOne       RelationshipKind = "OneToOne"
	OneToMany      RelationshipKind = "OneToMany"
	ManyToOne      RelationshipKind = "ManyToOne"
	ManyToMany     RelationshipKind = "ManyToMany"
	ValueObjectUse RelationshipKind = "ValueObjectUse"
)

// RelationshipOrigin records which inference pass produced a relationship.
type RelationshipOrigin string

const (
	OriginForeignKey  RelationshipOrigin = "foreign_key"
	OriginReference   RelationshipOrigin = "reference"
	OriginValueObject RelationshipOrigin = "value_object"
	OriginTypeName    RelationshipOrigin = "type_name"
	OriginDomain      RelationshipOrigin = "domain"
	OriginAggregate   RelationshipOrigin = "aggregate"
)

// Attribute is a named, typed member of an Entity or ValueObject.
type Attribute struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
}

// Relationship is a directed edge owned by its source Entity.
type Relationship struct {
	Target string             `json:"target" yaml:"target"`
	Kind   RelationshipKind   `json:"kind" yaml:"kind"`
	Origin RelationshipOrigin `json:"origin" yaml:"origin"`
	// Attribute names the attribute the edge was inferred from; empty for
	// seeded and aggregate edges
	Attribute string `json:"attribute,omitempty" yaml:"attribute,omitempty"`
}

// Entity is a parsed domain element with identity.
type Entity struct {
	Name            string         `json:"name" yaml:"name"`
	Stereotype      Stereotype     `json:"stereotype" yaml:"stereotype"`
	Attributes      []Attribute    `json:"attributes" yaml:"attributes"`
	Relationships   []Relationship `json:"relationships" yaml:"relationships"`
	IsAggregateRoot bool           `json:"is_aggregate_root" yaml:"is_aggregate_root"`
}

// SetAttribute adds attr, or replaces the attribute of the same name in place
// so that insertion order is kept and the last write wins.
func (e *Entity) SetAttribute(attr Attribute) {
	e.Attributes = setAttribute(e.Attributes, attr)
}

// Attribute returns the attribute with the given name.
func (e *Entity) Attribute(name string) (Attribute, bool) {
	return findAttribute(e.Attributes, name)
}

// AddRelationship appends rel unless an edge with the same target and kind
// already exists. It reports whether the relationship was added. A duplicate
// inferred from an earlier-declared attribute moves the existing edge to
// that attribute.
func (e *Entity) AddRelationship(rel Relationship) bool {
	for i := range e.Relationships {
		existing := &e.Relationships[i]
		if existing.Target == rel.Target && existing.Kind == rel.Kind {
			if rel.Attribute != "" && e.attributeRank(rel.Attribute) < e.attributeRank(existing.Attribute) {
				existing.Attribute = rel.Attribute
			}
			return false
		}
	}
	e.Relationships = append(e.Relationships, rel)
	return true
}

// OrderedRelationships returns the relationships in the declaration order of
// the attributes they were inferred from. Edges without an attribute follow
// in their recorded order.
func (e *Entity) OrderedRelationships() []Relationship {
	out := append([]Relationship(nil), e.Relationships...)
	sort.SliceStable(out, func(i, j int) bool {
		return e.attributeRank(out[i].Attribute) < e.attributeRank(out[j].Attribute)
	})
	return out
}

// attributeRank is the declaration index of the named attribute, or the
// attribute count when there is no such attribute.
func (e *Entity) attributeRank(name string) int {
	if name != "" {
		for i, a := range e.Attributes {
			if a.Name == name {
				return i
			}
		}
	}
	return len(e.Attributes)
}

// ValueObject is a parsed immutable domain value.
type ValueObject struct {
	Name       string      `json:"name" yaml:"name"`
	Attributes []Attribute `json:"attributes" yaml:"attributes"`
}

// Stereotype is always StereotypeValueObject.
func (v *ValueObject) Stereotype() Stereotype {
	return StereotypeValueObject
}

// SetAttribute has the same semantics as Entity.SetAttribute.
func (v *ValueObject) SetAttribute(attr Attribute) {
	v.Attributes = setAttribute(v.Attributes, attr)
}

// Attribute returns the attribute with the given name.
func (v *ValueObject) Attribute(name string) (Attribute, bool) {
	return findAttribute(v.Attributes, name)
}

// Aggregate groups a root and its members by raw, unsanitized name. Names are
// resolved against entities only when diagrams are emitted.
type Aggregate struct {
	Name    string   `json:"name" yaml:"name"`
	Root    string   `json:"root" yaml:"root"`
	Members []string `json:"members" yaml:"members"`
}

// ParseResult is the IR root.
type ParseResult struct {
	Entities     []*Entity      `json:"entities" yaml:"entities"`
	ValueObjects []*ValueObject `json:"value_objects" yaml:"value_objects"`
	Aggregates   []*Aggregate   `json:"aggregates" yaml:"aggregates"`
}

// IsEmpty reports whether nothing was recognized.
func (r *ParseResult) IsEmpty() bool {
	return r == nil || (len(r.Entities) == 0 && len(r.ValueObjects) == 0 && len(r.Aggregates) == 0)
}

// Entity returns the entity with exactly the given name.
func (r *ParseResult) Entity(name string) *Entity {
	for _, e := range r.Entities {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// ValueObject returns the value object with exactly the given name.
func (r *ParseResult) ValueObject(name string) *ValueObject {
	for _, v := range r.ValueObjects {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// EntityNames lists entity names in IR order.
func (r *ParseResult) EntityNames() []string {
	names := make([]string, 0, len(r.Entities))
	for _, e := range r.Entities {
		names = append(names, e.Name)
	}
	return names
}

// ValueObjectNames lists value object names in IR order.
func (r *ParseResult) ValueObjectNames() []string {
	names := make([]string, 0, len(r.ValueObjects))
	for _, v := range r.ValueObjects {
		names = append(names, v.Name)
	}
	return names
}

func setAttribute(attrs []Attribute, attr Attribute) []Attribute {
	for i := range attrs {
		if attrs[i].Name == attr.Name {
			attrs[i] = attr
			return attrs
		}
	}
	return append(attrs, attr)
}

func findAttribute(attrs []Attribute, name string) (Attribute, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}
