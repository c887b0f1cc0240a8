package scanner

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Fence is a fenced code block found in a document.
type Fence struct {
	// Language is the first word of the info string ("mermaid", "plantuml").
	Language string
	// Body is the block content without the final line terminator.
	Body string
	// Headings holds the heading path the block appears under, indexed by
	// level: Headings[2] is the nearest preceding "##" heading.
	Headings [7]string
}

// Section returns the text of the nearest heading of the given level above
// the fence, or "" when there is none.
func (f Fence) Section(level int) string {
	if level < 1 || level > 6 {
		return ""
	}
	return f.Headings[level]
}

var markdown = goldmark.New()

// Fences returns every fenced code block in document order. Blocks nested in
// lists or quotes are included; indented code blocks are not.
func Fences(source string) []Fence {
	src := []byte(source)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var headings [7]string
	var fences []Fence

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			if node.Level >= 1 && node.Level <= 6 {
				headings[node.Level] = strings.TrimSpace(string(linesText(node.Lines(), src)))
				for l := node.Level + 1; l <= 6; l++ {
					headings[l] = ""
				}
			}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			body := linesText(node.Lines(), src)
			fences = append(fences, Fence{
				Language: strings.ToLower(string(node.Language(src))),
				Body:     strings.TrimSuffix(string(body), "\n"),
				Headings: headings,
			})
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})

	return fences
}

func linesText(lines *text.Segments, src []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.Bytes()
}
