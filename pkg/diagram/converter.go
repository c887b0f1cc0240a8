package diagram

import (
	"time"

	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/compiler/codegen"
	"github.com/dphaener/ddmark/internal/compiler/errors"
)

type compileFunc func(g *codegen.Generator, markdown string) (codegen.Result, error)

// Converter runs conversions. It holds no per-call state and is safe for
// concurrent use.
type Converter struct {
	logger        *zap.Logger
	maxInputBytes int
	compilers     map[Kind]compileFunc
}

// Option configures a Converter.
type Option func(*Converter)

// WithLogger sends conversion decisions to logger at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Converter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxInputBytes rejects documents larger than n bytes. Zero or a
// negative n disables the check.
func WithMaxInputBytes(n int) Option {
	return func(c *Converter) {
		c.maxInputBytes = n
	}
}

// NewConverter creates a Converter.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		logger: zap.NewNop(),
		compilers: map[Kind]compileFunc{
			KindClass:      compileClass,
			KindER:         compileER,
			KindFlow:       compileFlow,
			KindRobustness: compileRobustness,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToClassDiagram converts a domain-model document.
func (c *Converter) ToClassDiagram(markdown string) (Source, error) {
	return c.Compile(KindClass, markdown)
}

// ToERDiagram converts a database design document.
func (c *Converter) ToERDiagram(markdown string) (Source, error) {
	return c.Compile(KindER, markdown)
}

// ToFlowDiagram converts an operation design document. The result is Empty
// when the document has neither a process-flow fence nor flow sections.
func (c *Converter) ToFlowDiagram(markdown string) (Source, error) {
	return c.Compile(KindFlow, markdown)
}

// ToRobustnessDiagram converts a use-case document.
func (c *Converter) ToRobustnessDiagram(markdown string) (Source, error) {
	return c.Compile(KindRobustness, markdown)
}

// Compile converts markdown as the given kind. Panics inside the compiler are
// recovered and returned as GEN600 errors.
func (c *Converter) Compile(kind Kind, markdown string) (src Source, err error) {
	compile, ok := c.compilers[kind]
	if !ok {
		return Source{}, errors.NewUnknownKind(string(kind), KindNames())
	}
	if c.maxInputBytes > 0 && len(markdown) > c.maxInputBytes {
		return Source{}, errors.NewInputTooLarge(len(markdown), c.maxInputBytes).WithKind(string(kind))
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("diagram compiler panicked",
				zap.String("kind", string(kind)),
				zap.Any("panic", r))
			src, err = Source{}, errors.NewInternal(string(kind), r)
		}
	}()

	start := time.Now()
	result, err := compile(codegen.NewGenerator(c.logger), markdown)
	if err != nil {
		return Source{}, err
	}
	src = fromResult(kind, result)

	c.logger.Debug("diagram compiled",
		zap.String("kind", string(kind)),
		zap.String("origin", string(src.Origin)),
		zap.Int("input_bytes", len(markdown)),
		zap.Duration("elapsed", time.Since(start)))
	return src, nil
}

func compileClass(g *codegen.Generator, markdown string) (codegen.Result, error) {
	return g.ClassDiagramOf(markdown)
}

func compileER(g *codegen.Generator, markdown string) (codegen.Result, error) {
	return g.ERDiagram(markdown), nil
}

func compileFlow(g *codegen.Generator, markdown string) (codegen.Result, error) {
	return g.Flowchart(markdown), nil
}

func compileRobustness(g *codegen.Generator, markdown string) (codegen.Result, error) {
	return g.Robustness(markdown), nil
}

var defaultConverter = NewConverter()

// ToClassDiagram converts a domain-model document with default options.
func ToClassDiagram(markdown string) (Source, error) {
	return defaultConverter.ToClassDiagram(markdown)
}

// ToERDiagram converts a database design document with default options.
func ToERDiagram(markdown string) (Source, error) {
	return defaultConverter.ToERDiagram(markdown)
}

// ToFlowDiagram converts an operation design document with default options.
func ToFlowDiagram(markdown string) (Source, error) {
	return defaultConverter.ToFlowDiagram(markdown)
}

// ToRobustnessDiagram converts a use-case document with default options.
func ToRobustnessDiagram(markdown string) (Source, error) {
	return defaultConverter.ToRobustnessDiagram(markdown)
}

// Compile converts markdown as kind with default options.
func Compile(kind Kind, markdown string) (Source, error) {
	return defaultConverter.Compile(kind, markdown)
}
