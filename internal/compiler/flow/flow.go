// Package flow recovers the step structure of operation and use-case
// documents: a numbered basic flow, alternative flows that rejoin it and
// exception flows that end on their own.
package flow

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/dphaener/ddmark/internal/compiler/scanner"
)

// Step is one main-flow step. Number is 1-based.
type Step struct {
	Number int    `json:"number" yaml:"number"`
	Text   string `json:"text" yaml:"text"`
}

// Alternative is a conditional detour. It branches off before step AtStep and
// rejoins the main flow after it.
type Alternative struct {
	Condition string   `json:"condition" yaml:"condition"`
	AtStep    int      `json:"at_step" yaml:"at_step"`
	Steps     []string `json:"steps" yaml:"steps"`
}

// Exception is a failure branch off step AtStep that terminates the flow.
type Exception struct {
	Condition string   `json:"condition" yaml:"condition"`
	AtStep    int      `json:"at_step" yaml:"at_step"`
	Steps     []string `json:"steps" yaml:"steps"`
}

// Flow is the recovered structure of one document.
type Flow struct {
	Title        string        `json:"title,omitempty" yaml:"title,omitempty"`
	Actors       []string      `json:"actors,omitempty" yaml:"actors,omitempty"`
	Steps        []Step        `json:"steps" yaml:"steps"`
	Alternatives []Alternative `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
	Exceptions   []Exception   `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
}

// IsEmpty reports whether there is nothing to draw.
func (f *Flow) IsEmpty() bool {
	return f == nil || (len(f.Steps) == 0 && len(f.Alternatives) == 0 && len(f.Exceptions) == 0)
}

type part int

const (
	partNone part = iota
	partBasic
	partAlternative
	partException
	partActors
)

// partKeywords is checked in order; alternative and exception headings are
// tested before the basic ones because "代替フロー" also ends in "フロー".
var partKeywords = []struct {
	part     part
	keywords []string
}{
	{partAlternative, []string{"代替フロー", "代替", "alternative flow", "alternate flow", "alternative"}},
	{partException, []string{"例外フロー", "例外", "exception flow", "exception", "エラーフロー"}},
	{partActors, []string{"アクター", "actors", "actor"}},
	{partBasic, []string{
		"プロセスフロー", "業務フロー", "基本フロー", "メインフロー", "処理フロー", "処理手順",
		"process flow", "basic flow", "main flow", "main success scenario",
	}},
}

var (
	subStep       = regexp.MustCompile(`^(\d+)-(\d+)[.)]?\s*(.*)$`)
	numberedText  = regexp.MustCompile(`^(\d+)[.)．]\s*(.*)$`)
	anyNumber     = regexp.MustCompile(`\d+`)
	exceptionStep = regexp.MustCompile(`(?i)ステップ\s*(\d+)|step\s*(\d+)|(\d+)\.`)
	emphasis      = strings.NewReplacer("**", "", "__", "", "`", "")
)

func clean(s string) string {
	return strings.TrimSpace(emphasis.Replace(width.Fold.String(s)))
}

func partFor(heading string) (part, bool) {
	lower := strings.ToLower(clean(heading))
	for _, candidate := range partKeywords {
		for _, k := range candidate.keywords {
			if strings.Contains(lower, k) {
				return candidate.part, true
			}
		}
	}
	return partNone, false
}

// Parse reads the flow structure from source. It never fails; a document
// without recognizable flow sections yields an empty Flow.
func Parse(source string) *Flow {
	p := &flowParser{flow: &Flow{}}
	for _, line := range scanner.Scan(source) {
		p.line(line)
	}
	p.finish()
	return p.flow
}

type flowParser struct {
	flow  *Flow
	part  part
	level int

	alt *Alternative
	exc *Exception
	// altFromSubStep records whether alt.AtStep came from a "N-M." sub-step.
	altFromSubStep bool
}

func (p *flowParser) line(line scanner.Line) {
	switch line.Kind {
	case scanner.LineFence, scanner.LineCode, scanner.LineBlank:
		return
	case scanner.LineHeading:
		p.heading(line)
		return
	}

	switch p.part {
	case partBasic:
		p.basic(line)
	case partAlternative:
		p.alternative(line)
	case partException:
		p.exception(line)
	case partActors:
		if line.Kind == scanner.LineListItem {
			if actor := clean(line.Text); actor != "" {
				p.flow.Actors = append(p.flow.Actors, actor)
			}
		}
	}
}

func (p *flowParser) heading(line scanner.Line) {
	text := clean(line.Text)
	if line.Level <= 3 {
		if part, ok := partFor(text); ok && (p.part == partNone || line.Level <= p.level || part != p.part) {
			p.closeBlock()
			p.part = part
			p.level = line.Level
			return
		}
	}

	if line.IsHeading(1) {
		if p.flow.Title == "" {
			p.flow.Title = text
		}
		p.closeBlock()
		p.part = partNone
		return
	}

	switch {
	case p.part == partNone:
	case line.Level <= p.level:
		p.closeBlock()
		p.part = partNone
	case p.part == partAlternative:
		p.closeBlock()
		p.alt = &Alternative{Condition: text}
	case p.part == partException:
		p.closeBlock()
		p.exc = &Exception{Condition: text}
	}
}

// stepText returns the text of a list or numbered line, or "" for lines that
// carry no step.
func stepText(line scanner.Line) (ordinal, text string) {
	switch line.Kind {
	case scanner.LineNumbered:
		return line.Ordinal, clean(line.Text)
	case scanner.LineListItem:
		t := clean(line.Text)
		if m := subStep.FindStringSubmatch(t); m != nil {
			return m[1] + "-" + m[2], strings.TrimSpace(m[3])
		}
		if m := numberedText.FindStringSubmatch(t); m != nil {
			return m[1], strings.TrimSpace(m[2])
		}
		return "", t
	}
	return "", ""
}

func (p *flowParser) basic(line scanner.Line) {
	ordinal, text := stepText(line)
	if text == "" || ordinal == "" || strings.ContainsAny(ordinal, "-.") {
		return
	}
	p.flow.Steps = append(p.flow.Steps, Step{Number: len(p.flow.Steps) + 1, Text: text})
}

func (p *flowParser) alternative(line scanner.Line) {
	if p.alt == nil {
		return
	}
	ordinal, text := stepText(line)
	if text == "" {
		return
	}
	if len(p.alt.Steps) == 0 {
		if n, ok := leadingNumber(ordinal, true); ok {
			p.alt.AtStep = n
			p.altFromSubStep = true
		}
	}
	p.alt.Steps = append(p.alt.Steps, text)
}

func (p *flowParser) exception(line scanner.Line) {
	if p.exc == nil {
		return
	}
	if _, text := stepText(line); text != "" {
		p.exc.Steps = append(p.exc.Steps, text)
	}
}

func leadingNumber(ordinal string, requireSub bool) (int, bool) {
	if requireSub && !strings.Contains(ordinal, "-") {
		return 0, false
	}
	head := ordinal
	if i := strings.IndexAny(ordinal, "-."); i >= 0 {
		head = ordinal[:i]
	}
	n, err := strconv.Atoi(head)
	return n, err == nil && n > 0
}

// closeBlock resolves the insertion step of the open block and stores it.
func (p *flowParser) closeBlock() {
	if p.alt != nil {
		if !p.altFromSubStep {
			p.alt.AtStep = 1
			if m := anyNumber.FindString(p.alt.Condition); m != "" {
				if n, err := strconv.Atoi(m); err == nil && n > 0 {
					p.alt.AtStep = n
				}
			}
		}
		p.flow.Alternatives = append(p.flow.Alternatives, *p.alt)
		p.alt = nil
		p.altFromSubStep = false
	}
	if p.exc != nil {
		p.exc.AtStep = -1
		if m := exceptionStep.FindStringSubmatch(p.exc.Condition); m != nil {
			for _, g := range m[1:] {
				if n, err := strconv.Atoi(g); err == nil && n > 0 {
					p.exc.AtStep = n
					break
				}
			}
		}
		p.flow.Exceptions = append(p.flow.Exceptions, *p.exc)
		p.exc = nil
	}
}

// finish closes the last block and points exceptions without an explicit
// step at the last main step.
func (p *flowParser) finish() {
	p.closeBlock()
	last := len(p.flow.Steps)
	for i := range p.flow.Exceptions {
		if p.flow.Exceptions[i].AtStep < 0 {
			p.flow.Exceptions[i].AtStep = last
		}
	}
}
