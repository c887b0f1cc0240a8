package codegen

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 65) + " bcdefghijkl"
	japanese := strings.Repeat("あ", 64) + "、" + strings.Repeat("い", 20)
	noBreak := strings.Repeat("x", 100)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"short", "注文を登録する", "注文を登録する"},
		{"collapses whitespace", "  注文を\n\t登録  する ", "注文を 登録 する"},
		{"breaks at space", long, strings.Repeat("a", 65) + "..."},
		{"breaks after punctuation", japanese, strings.Repeat("あ", 64) + "、..."},
		{"hard cut", noBreak, strings.Repeat("x", maxLabelRunes) + "..."},
		{"exact limit", strings.Repeat("z", maxLabelRunes), strings.Repeat("z", maxLabelRunes)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Truncate(tt.input))
		})
	}
}

func TestTruncate_NeverSplitsRunes(t *testing.T) {
	input := strings.Repeat("😀", 200)
	out := Truncate(input)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, maxLabelRunes+len(ellipsis), utf8.RuneCountInString(out))
}

func TestLabel(t *testing.T) {
	tests := []struct {
		input    string
		grammar  Grammar
		expected string
	}{
		{`say "hi"`, GrammarMermaid, "say #quot;hi#quot;"},
		{"a|b <c> {d} #1", GrammarMermaid, "a#124;b #lt;c#gt; #123;d#125; #35;1"},
		{`say "hi"`, GrammarPlantUML, "say 'hi'"},
		{`C:\tmp`, GrammarPlantUML, `C:\\tmp`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Label(tt.input, tt.grammar))
		})
	}
}
