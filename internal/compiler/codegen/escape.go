package codegen

import (
	"strings"
	"unicode"
)

const (
	// maxLabelRunes caps free-text labels in flow diagrams.
	maxLabelRunes = 70
	// breakWindow is how far back from the cap a natural break is searched.
	breakWindow = 10
	ellipsis    = "..."
)

// breakRunes end a phrase; a label cut right after one reads naturally.
const breakRunes = "、。，．,.;:；：!?！？)）]」』】"

// Grammar selects the escaping rules of a diagram language.
type Grammar int

const (
	GrammarMermaid Grammar = iota
	GrammarPlantUML
)

var mermaidEscaper = strings.NewReplacer(
	"#", "#35;",
	`"`, "#quot;",
	"<", "#lt;",
	">", "#gt;",
	"[", "#91;",
	"]", "#93;",
	"{", "#123;",
	"}", "#125;",
	"|", "#124;",
)

var plantUMLEscaper = strings.NewReplacer(`"`, "'", `\`, `\\`)

// Label prepares free text for use as a node label: whitespace is collapsed,
// the text is shortened and the grammar's reserved characters are escaped.
func Label(text string, grammar Grammar) string {
	s := Truncate(text)
	if grammar == GrammarPlantUML {
		return plantUMLEscaper.Replace(s)
	}
	return mermaidEscaper.Replace(s)
}

// Truncate collapses whitespace and caps s at maxLabelRunes runes, preferring
// to cut right after a space or punctuation within the last breakWindow runes.
// Cutting works on runes, so multi-byte characters are never split.
func Truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLabelRunes {
		return s
	}

	cut := maxLabelRunes
	for i := maxLabelRunes; i > maxLabelRunes-breakWindow; i-- {
		r := runes[i-1]
		if unicode.IsSpace(r) || strings.ContainsRune(breakRunes, r) {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut])) + ellipsis
}
