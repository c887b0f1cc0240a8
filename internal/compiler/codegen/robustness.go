package codegen

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/compiler/flow"
	"github.com/dphaener/ddmark/internal/compiler/scanner"
)

// Robustness element kinds.
const (
	elementBoundary = "boundary"
	elementControl  = "control"
	elementEntity   = "entity"
)

// Boundary keywords are checked first: "登録画面を表示する" is a screen, not
// a store.
var (
	boundaryKeywords = []string{
		"画面", "表示", "入力", "選択", "クリック", "押下", "フォーム", "ボタン", "送信",
		"screen", "display", "input", "enter", "select", "click", "form", "page", "submit", "view",
	}
	entityKeywords = []string{
		"保存", "登録", "取得", "更新", "削除", "検索", "記録", "格納", "データベース", "db",
		"save", "store", "persist", "fetch", "load", "retrieve", "update", "delete", "query", "record",
	}
)

// ClassifyStep names the robustness element a step is drawn as.
func ClassifyStep(text string) string {
	lower := strings.ToLower(text)
	for _, k := range boundaryKeywords {
		if strings.Contains(lower, k) {
			return elementBoundary
		}
	}
	for _, k := range entityKeywords {
		if strings.Contains(lower, k) {
			return elementEntity
		}
	}
	return elementControl
}

// Robustness writes a PlantUML robustness diagram for a use-case document.
// The first fenced block of any language is returned verbatim and trimmed;
// otherwise the diagram is synthesized from the flow sections.
func (g *Generator) Robustness(markdown string) Result {
	for _, f := range scanner.Fences(markdown) {
		body := strings.TrimSpace(f.Body)
		if body == "" {
			continue
		}
		g.logger.Debug("robustness diagram passed through", zap.String("fence", f.Language))
		return Result{Language: fenceLanguage(f.Language, body), Origin: OriginPassthrough, Body: body}
	}

	parsed := flow.Parse(markdown)
	if parsed.IsEmpty() {
		g.logger.Debug("robustness diagram has nothing to render")
		return empty(LanguagePlantUML)
	}
	g.logger.Debug("robustness diagram synthesized",
		zap.Int("actors", len(parsed.Actors)),
		zap.Int("steps", len(parsed.Steps)))
	return Result{Language: LanguagePlantUML, Origin: OriginSynthesized, Body: g.RobustnessOf(parsed)}
}

// RobustnessOf writes f as a PlantUML robustness diagram. Actors replace the
// start circle when the document names any.
func (g *Generator) RobustnessOf(f *flow.Flow) string {
	fg := buildFlowGraph(f)
	actors := make([]string, len(f.Actors))
	for i := range f.Actors {
		actors[i] = fmt.Sprintf("Actor%d", i+1)
	}

	g.reset()
	g.line("@startuml")
	if f.Title != "" {
		g.line("title %s", Label(f.Title, GrammarPlantUML))
	}
	for i, name := range f.Actors {
		g.line(`actor "%s" as %s`, Label(name, GrammarPlantUML), actors[i])
	}
	for _, n := range fg.nodes {
		if n.shape == shapeStart && len(actors) > 0 {
			continue
		}
		g.line("%s", plantUMLNode(n))
	}
	for _, e := range fg.edges {
		if e.from == "Start" && len(actors) > 0 {
			for _, a := range actors {
				e.from = a
				g.line("%s", plantUMLEdge(e))
			}
			continue
		}
		g.line("%s", plantUMLEdge(e))
	}
	g.line("@enduml")
	return g.String()
}

func plantUMLNode(n flowNode) string {
	switch n.shape {
	case shapeStart, shapeEnd, shapeAbort:
		return fmt.Sprintf(`circle "%s" as %s`, n.label, n.id)
	case shapeDecision:
		return fmt.Sprintf(`%s "%s" as %s`, elementControl, Label(n.label, GrammarPlantUML), n.id)
	default:
		return fmt.Sprintf(`%s "%s" as %s`, ClassifyStep(n.label), Label(n.label, GrammarPlantUML), n.id)
	}
}

func plantUMLEdge(e flowEdge) string {
	arrow := " --> "
	if e.dashed {
		arrow = " ..> "
	}
	out := e.from + arrow + e.to
	if e.label != "" {
		out += " : " + e.label
	}
	return out
}
