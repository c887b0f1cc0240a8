package codegen

import (
	"fmt"

	"github.com/dphaener/ddmark/internal/compiler/flow"
)

// Fixed node and edge labels shared by the flowchart and robustness emitters.
const (
	labelStart        = "開始"
	labelEnd          = "終了"
	labelAbort        = "異常終了"
	labelConditionMet = "条件成立"
	labelConditionNot = "条件不成立"
	labelOccurred     = "発生"
)

type nodeShape int

const (
	shapeStart nodeShape = iota
	shapeEnd
	shapeStep
	shapeDecision
	shapeAbort
)

type flowNode struct {
	id    string
	label string
	shape nodeShape
}

type flowEdge struct {
	from, to string
	label    string
	dashed   bool
}

// flowGraph is the grammar-neutral layout of a flow: the main chain from
// Start to End, alternatives that branch off and rejoin it, and exceptions
// that end on their own terminal.
type flowGraph struct {
	nodes []flowNode
	edges []flowEdge
	steps int
}

func (fg *flowGraph) node(id, label string, shape nodeShape) {
	fg.nodes = append(fg.nodes, flowNode{id: id, label: label, shape: shape})
}

func (fg *flowGraph) edge(from, to, label string, dashed bool) {
	fg.edges = append(fg.edges, flowEdge{from: from, to: to, label: label, dashed: dashed})
}

// stepID names main step k; positions before the first step and after the
// last one map to Start and End.
func (fg *flowGraph) stepID(k int) string {
	switch {
	case k <= 0:
		return "Start"
	case k > fg.steps:
		return "End"
	}
	return fmt.Sprintf("S%d", k)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func buildFlowGraph(f *flow.Flow) *flowGraph {
	fg := &flowGraph{steps: len(f.Steps)}

	fg.node("Start", labelStart, shapeStart)
	for i, s := range f.Steps {
		fg.node(fg.stepID(i+1), s.Text, shapeStep)
	}
	fg.node("End", labelEnd, shapeEnd)
	for k := 0; k <= fg.steps; k++ {
		fg.edge(fg.stepID(k), fg.stepID(k+1), "", false)
	}

	for i, alt := range f.Alternatives {
		id := fmt.Sprintf("A%d", i+1)
		at := clamp(alt.AtStep, 1, max(fg.steps, 1))
		rejoin := fg.stepID(at + 1)

		fg.node(id, alt.Condition, shapeDecision)
		fg.edge(fg.stepID(at-1), id, "", true)
		entry := fg.chain(id, alt.Steps, rejoin)
		fg.edge(id, entry, labelConditionMet, true)
		fg.edge(id, fg.stepID(at), labelConditionNot, true)
	}

	for i, exc := range f.Exceptions {
		id := fmt.Sprintf("E%d", i+1)
		terminal := id + "End"
		at := clamp(exc.AtStep, 0, fg.steps)

		fg.node(id, exc.Condition, shapeDecision)
		fg.edge(fg.stepID(at), id, "", true)
		entry := fg.chain(id, exc.Steps, terminal)
		fg.node(terminal, labelAbort, shapeAbort)
		fg.edge(id, entry, labelOccurred, true)
	}

	return fg
}

// chain adds prefix_1..prefix_n for steps, links them in order and the last
// one to exit. It returns the id to enter the chain with.
func (fg *flowGraph) chain(prefix string, steps []string, exit string) string {
	if len(steps) == 0 {
		return exit
	}
	for i, text := range steps {
		fg.node(fmt.Sprintf("%s_%d", prefix, i+1), text, shapeStep)
	}
	for i := 1; i < len(steps); i++ {
		fg.edge(fmt.Sprintf("%s_%d", prefix, i), fmt.Sprintf("%s_%d", prefix, i+1), "", false)
	}
	fg.edge(fmt.Sprintf("%s_%d", prefix, len(steps)), exit, "", false)
	return prefix + "_1"
}
