package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderOperation = "# 受注処理\n" +
	"## 概要\n" +
	"1. これはステップではない\n" +
	"## アクター\n" +
	"- 営業担当者\n" +
	"## プロセスフロー\n" +
	"1. 注文画面を表示する\n" +
	"2. 在庫を確認する\n" +
	"   2-1. 補足の手順は数えない\n" +
	"3. 注文を登録する\n" +
	"## 代替フロー\n" +
	"### 在庫が不足している場合\n" +
	"- 2-1. 入荷予定を確認する\n" +
	"- 2-2. 顧客に納期を連絡する\n" +
	"### A2: ステップ3で分納を希望された場合\n" +
	"- 分納指示を登録する\n" +
	"### 特記事項なし\n" +
	"## 例外フロー\n" +
	"### E1: ステップ2 在庫システムが応答しない\n" +
	"- エラーメッセージを表示する\n" +
	"- 1. 管理者に通知する\n" +
	"### E2: 登録に失敗\n" +
	"- ロールバックする\n" +
	"## 備考\n" +
	"- 無視される\n"

func TestParse(t *testing.T) {
	f := Parse(orderOperation)

	assert.Equal(t, "受注処理", f.Title)
	assert.Equal(t, []string{"営業担当者"}, f.Actors)
	assert.Equal(t, []Step{
		{Number: 1, Text: "注文画面を表示する"},
		{Number: 2, Text: "在庫を確認する"},
		{Number: 3, Text: "注文を登録する"},
	}, f.Steps)

	require.Len(t, f.Alternatives, 3)
	assert.Equal(t, Alternative{
		Condition: "在庫が不足している場合",
		AtStep:    2,
		Steps:     []string{"入荷予定を確認する", "顧客に納期を連絡する"},
	}, f.Alternatives[0])
	assert.Equal(t, 2, f.Alternatives[1].AtStep, "first number in the title")
	assert.Equal(t, 1, f.Alternatives[2].AtStep, "defaults to the first step")
	assert.Empty(t, f.Alternatives[2].Steps)

	require.Len(t, f.Exceptions, 2)
	assert.Equal(t, Exception{
		Condition: "E1: ステップ2 在庫システムが応答しない",
		AtStep:    2,
		Steps:     []string{"エラーメッセージを表示する", "管理者に通知する"},
	}, f.Exceptions[0])
	assert.Equal(t, 3, f.Exceptions[1].AtStep, "defaults to the last main step")
}

func TestParse_EnglishHeadings(t *testing.T) {
	f := Parse("## Basic Flow\n" +
		"1. User opens the form\n" +
		"2. System saves the order\n" +
		"## Exception Flows\n" +
		"### Step 1. Session expired\n" +
		"- Show login screen\n")

	require.Len(t, f.Steps, 2)
	require.Len(t, f.Exceptions, 1)
	assert.Equal(t, 1, f.Exceptions[0].AtStep)
}

func TestParse_Empty(t *testing.T) {
	tests := []string{
		"",
		"# タイトルのみ\n本文\n",
		"## 概要\n1. 手順のようなもの\n",
		"## プロセスフロー\n```mermaid\nflowchart TD\n```\n",
	}
	for _, in := range tests {
		assert.True(t, Parse(in).IsEmpty(), "input %q", in)
	}
}

func TestParse_Total(t *testing.T) {
	inputs := []string{"\xff", "## 代替フロー\n- 0-0.\n", "## 例外フロー\n### ステップ999999999999999999999\n", "###\n"}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Parse(in) })
	}
}
