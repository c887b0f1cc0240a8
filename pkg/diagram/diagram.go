// Package diagram converts design documents written in Markdown into
// renderable diagram source.
//
// Four document kinds are supported: domain models become Mermaid class
// diagrams, database designs Mermaid ER diagrams, operation designs Mermaid
// flowcharts and use cases PlantUML robustness diagrams. A fenced diagram the
// author already wrote always takes precedence over synthesis.
//
// Conversion never fails on document content. The only errors are unknown
// kinds, oversized input and internal failures, all *errors.CompilerError.
package diagram

import (
	"fmt"
	"strings"

	"github.com/dphaener/ddmark/internal/compiler/codegen"
	"github.com/dphaener/ddmark/internal/compiler/errors"
)

// Kind is the document kind a conversion targets.
type Kind string

const (
	KindClass      Kind = "class"
	KindER         Kind = "er"
	KindFlow       Kind = "flow"
	KindRobustness Kind = "robustness"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindClass, KindER, KindFlow, KindRobustness}

// ParseKind validates s as a kind name. Matching ignores case and
// surrounding whitespace.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", errors.NewUnknownKind(s, KindNames())
}

// KindNames returns the names of Kinds.
func KindNames() []string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return names
}

// Language is the grammar of a diagram body.
type Language string

const (
	LanguageMermaid  Language = "mermaid"
	LanguagePlantUML Language = "plantuml"
)

// Extension is the conventional file extension for a body in language l.
func (l Language) Extension() string {
	if l == LanguagePlantUML {
		return "puml"
	}
	return "mmd"
}

// Origin tells which branch produced a body.
type Origin string

const (
	// OriginPassthrough is an author-supplied fenced diagram, unchanged.
	OriginPassthrough Origin = "passthrough"
	// OriginSynthesized is generated from the document structure.
	OriginSynthesized Origin = "synthesized"
	// OriginPlaceholder is the fixed diagram for documents with no content.
	OriginPlaceholder Origin = "placeholder"
	// OriginEmpty means there is nothing to render.
	OriginEmpty Origin = "empty"
)

// Source is the result of one conversion.
type Source struct {
	Kind     Kind     `json:"kind" yaml:"kind"`
	Language Language `json:"language" yaml:"language"`
	Origin   Origin   `json:"origin" yaml:"origin"`
	Body     string   `json:"body" yaml:"body"`
}

// Empty reports the "nothing to render" result. Only flow conversions
// produce it.
func (s Source) Empty() bool {
	return s.Body == ""
}

// Fenced wraps the body in a Markdown code fence tagged with its language.
func (s Source) Fenced() string {
	if s.Empty() {
		return ""
	}
	return fmt.Sprintf("```%s\n%s\n```\n", s.Language, s.Body)
}

// FileName names the file a body is exported to: stem.kind.ext.
func (s Source) FileName(stem string) string {
	return fmt.Sprintf("%s.%s.%s", stem, s.Kind, s.Language.Extension())
}

func fromResult(kind Kind, r codegen.Result) Source {
	return Source{
		Kind:     kind,
		Language: Language(r.Language),
		Origin:   Origin(r.Origin),
		Body:     r.Body,
	}
}
