package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to collect line kinds
func kindsOf(lines []Line) []LineKind {
	kinds := make([]LineKind, len(lines))
	for i, l := range lines {
		kinds[i] = l.Kind
	}
	return kinds
}

func TestScanner_Classification(t *testing.T) {
	source := "## 2. エンティティ定義\n" +
		"\n" +
		"| 属性名 | 型 |\n" +
		"|---|:---:|\n" +
		"- userName [UserName]\n" +
		"1. 注文を受け付ける\n" +
		"プレーンテキスト\n"

	lines := Scan(source)
	require.Len(t, lines, 7)

	assert.Equal(t, []LineKind{
		LineHeading, LineBlank, LineTableRow, LineTableSeparator,
		LineListItem, LineNumbered, LineText,
	}, kindsOf(lines))

	assert.Equal(t, 2, lines[0].Level)
	assert.Equal(t, "2. エンティティ定義", lines[0].Text)
	assert.Equal(t, "userName [UserName]", lines[4].Text)
	assert.Equal(t, "1", lines[5].Ordinal)
	assert.Equal(t, "注文を受け付ける", lines[5].Text)
	assert.Equal(t, 7, lines[6].Number)
}

func TestScanner_SubStepOrdinal(t *testing.T) {
	lines := Scan("2-1. 在庫を確認する\n3.14 is not a step\n")
	require.Len(t, lines, 2)
	assert.Equal(t, LineNumbered, lines[0].Kind)
	assert.Equal(t, "2-1", lines[0].Ordinal)
	assert.Equal(t, LineText, lines[1].Kind)
}

func TestScanner_HeadingWithClosingHashes(t *testing.T) {
	lines := Scan("### Order ###\n#NotAHeading\n")
	assert.Equal(t, LineHeading, lines[0].Kind)
	assert.Equal(t, "Order", lines[0].Text)
	assert.Equal(t, LineText, lines[1].Kind)
}

func TestScanner_FencesHideContent(t *testing.T) {
	source := "```mermaid\n" +
		"## not a heading\n" +
		"| not | a table |\n" +
		"```\n" +
		"## real heading\n"

	lines := Scan(source)
	assert.Equal(t, []LineKind{LineFence, LineCode, LineCode, LineFence, LineHeading}, kindsOf(lines))
	assert.Equal(t, "mermaid", lines[1].Fence)
}

func TestScanner_NestedFence(t *testing.T) {
	source := "````markdown\n" +
		"```mermaid\n" +
		"classDiagram\n" +
		"```\n" +
		"````\n" +
		"after\n"

	lines := Scan(source)
	assert.Equal(t, []LineKind{LineFence, LineCode, LineCode, LineCode, LineFence, LineText}, kindsOf(lines))
}

func TestScanner_UnterminatedFence(t *testing.T) {
	lines := Scan("~~~\nstill code\n## also code")
	assert.Equal(t, []LineKind{LineFence, LineCode, LineCode}, kindsOf(lines))
}

func TestScanner_CRLF(t *testing.T) {
	lines := Scan("# A\r\n- b\r\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "A", lines[0].Text)
	assert.Equal(t, "b", lines[1].Text)
}

func TestScanner_NeverFails(t *testing.T) {
	inputs := []string{"", "\x00\x01\x02", "|", "```", "######", "- ", "\xff\xfe\xfd", "1."}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Scan(in) })
	}
}

func TestCells(t *testing.T) {
	assert.Equal(t, []string{"name", "STRING_50", "○", "ユーザー名"}, Cells("| name | STRING_50 | ○ | ユーザー名 |"))
	assert.Equal(t, []string{"a", "b"}, Cells("a | b"))
}

func TestFences(t *testing.T) {
	source := "# 受注処理\n" +
		"## プロセスフロー\n" +
		"```mermaid\n" +
		"flowchart TD\n" +
		"  A --> B\n" +
		"```\n" +
		"## 物理設計\n" +
		"### ER図\n" +
		"```\n" +
		"erDiagram\n" +
		"```\n"

	fences := Fences(source)
	require.Len(t, fences, 2)

	assert.Equal(t, "mermaid", fences[0].Language)
	assert.Equal(t, "flowchart TD\n  A --> B", fences[0].Body)
	assert.Equal(t, "プロセスフロー", fences[0].Section(2))
	assert.Equal(t, "受注処理", fences[0].Section(1))

	assert.Equal(t, "", fences[1].Language)
	assert.Equal(t, "物理設計", fences[1].Section(2))
	assert.Equal(t, "ER図", fences[1].Section(3))
	assert.Equal(t, "", fences[1].Section(7))
}

func TestFences_None(t *testing.T) {
	assert.Empty(t, Fences("# just a title\n\n- item\n"))
}
