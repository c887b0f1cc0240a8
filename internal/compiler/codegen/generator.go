// Package codegen serializes parsed documents into diagram source.
//
// Class, ER and operation-flow diagrams are written as Mermaid; use-case
// robustness diagrams as PlantUML. Every emitter that reads raw Markdown
// first looks for an author-supplied fenced diagram and returns it verbatim;
// synthesis only runs when there is none.
package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Language is the grammar of a diagram body.
type Language string

const (
	LanguageMermaid  Language = "mermaid"
	LanguagePlantUML Language = "plantuml"
)

// Origin tells callers which branch produced a body.
type Origin string

const (
	OriginPassthrough Origin = "passthrough"
	OriginSynthesized Origin = "synthesized"
	OriginPlaceholder Origin = "placeholder"
	OriginEmpty       Origin = "empty"
)

// Result is the output of one emitter.
type Result struct {
	Language Language
	Origin   Origin
	Body     string
}

// Empty reports the "nothing to render" result.
func (r Result) Empty() bool {
	return r.Body == ""
}

func empty(lang Language) Result {
	return Result{Language: lang, Origin: OriginEmpty}
}

// Generator writes diagram source. A Generator reuses its buffer between
// calls and is not safe for concurrent use.
type Generator struct {
	buf    *bytes.Buffer
	indent int
	logger *zap.Logger
}

// NewGenerator creates a generator that logs decisions at debug level to
// logger. A nil logger discards them.
func NewGenerator(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		buf:    &bytes.Buffer{},
		logger: logger,
	}
}

func (g *Generator) reset() {
	g.buf.Reset()
	g.indent = 0
}

func (g *Generator) line(format string, args ...any) {
	g.buf.WriteString(strings.Repeat("    ", g.indent))
	if len(args) == 0 {
		g.buf.WriteString(format)
	} else {
		fmt.Fprintf(g.buf, format, args...)
	}
	g.buf.WriteByte('\n')
}

func (g *Generator) String() string {
	return strings.TrimRight(g.buf.String(), "\n")
}

// fenceLanguage guesses the grammar of an author-supplied fence.
func fenceLanguage(info, body string) Language {
	switch strings.ToLower(info) {
	case "plantuml", "puml", "uml":
		return LanguagePlantUML
	}
	if strings.Contains(body, "@startuml") {
		return LanguagePlantUML
	}
	return LanguageMermaid
}
