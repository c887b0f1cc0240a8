package codegen

import (
	"strings"

	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/compiler/flow"
	"github.com/dphaener/ddmark/internal/compiler/scanner"
)

// processFlowHeadings mark the "##" section whose fence is an operation's
// author-supplied flowchart.
var processFlowHeadings = []string{"プロセスフロー", "Process Flow"}

func isProcessFlowSection(heading string) bool {
	for _, k := range processFlowHeadings {
		if strings.Contains(heading, k) {
			return true
		}
	}
	return false
}

// Flowchart writes a Mermaid flowchart for an operation design document. A
// fence in the "## プロセスフロー" section is returned verbatim and trimmed.
// Without one, the flow is synthesized from the basic, alternative and
// exception sections; a document with neither yields the empty result.
func (g *Generator) Flowchart(markdown string) Result {
	for _, f := range scanner.Fences(markdown) {
		if !isProcessFlowSection(f.Section(2)) {
			continue
		}
		body := strings.TrimSpace(f.Body)
		if body == "" {
			continue
		}
		g.logger.Debug("flowchart passed through", zap.String("fence", f.Language))
		return Result{Language: fenceLanguage(f.Language, body), Origin: OriginPassthrough, Body: body}
	}

	parsed := flow.Parse(markdown)
	if parsed.IsEmpty() {
		g.logger.Debug("flowchart has nothing to render")
		return empty(LanguageMermaid)
	}
	g.logger.Debug("flowchart synthesized",
		zap.Int("steps", len(parsed.Steps)),
		zap.Int("alternatives", len(parsed.Alternatives)),
		zap.Int("exceptions", len(parsed.Exceptions)))
	return Result{Language: LanguageMermaid, Origin: OriginSynthesized, Body: g.FlowchartOf(parsed)}
}

// FlowchartOf writes f as a Mermaid flowchart body.
func (g *Generator) FlowchartOf(f *flow.Flow) string {
	fg := buildFlowGraph(f)

	g.reset()
	g.line("flowchart TD")
	g.indent++
	for _, n := range fg.nodes {
		g.line("%s", mermaidNode(n))
	}
	for _, e := range fg.edges {
		g.line("%s", mermaidEdge(e))
	}
	g.indent--
	return g.String()
}

func mermaidNode(n flowNode) string {
	switch n.shape {
	case shapeStart, shapeEnd, shapeAbort:
		return n.id + "([" + n.label + "])"
	case shapeDecision:
		return n.id + `{"` + Label(n.label, GrammarMermaid) + `"}`
	default:
		return n.id + `["` + Label(n.label, GrammarMermaid) + `"]`
	}
}

func mermaidEdge(e flowEdge) string {
	arrow := " --> "
	if e.dashed {
		arrow = " -.-> "
	}
	if e.label != "" {
		arrow = strings.TrimRight(arrow, " ") + "|" + e.label + "| "
	}
	return e.from + arrow + e.to
}
