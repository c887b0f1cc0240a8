package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeUniqueness(t *testing.T) {
	codes := []ErrorCode{ErrUnknownKind, ErrInputTooLarge, ErrInternal, ErrNilIR}
	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestNewUnknownKind(t *testing.T) {
	err := NewUnknownKind("sequence", []string{"class", "er"})

	assert.Equal(t, ErrUnknownKind, err.Code)
	assert.Equal(t, CategoryInput, err.Category)
	assert.Equal(t, "sequence", err.Kind)
	assert.Contains(t, err.Expected, "class")
	assert.False(t, IsInternal(err))
	assert.True(t, HasCode(err, ErrUnknownKind))
}

func TestNewInternal_KeepsCause(t *testing.T) {
	cause := stderrors.New("index out of range")
	err := NewInternal("class", cause)

	assert.True(t, IsInternal(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Message, "index out of range")

	wrapped := fmt.Errorf("render: %w", err)
	assert.True(t, IsInternal(wrapped))
	ce, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrInternal, ce.Code)
}

func TestNewInternal_NonErrorReason(t *testing.T) {
	err := NewInternal("flow", "nil map write")
	assert.Nil(t, err.Unwrap())
	assert.Equal(t, "Diagram generation failed: nil map write", err.Message)
}

func TestIsInternal_PlainErrors(t *testing.T) {
	assert.False(t, IsInternal(nil))
	assert.False(t, IsInternal(stderrors.New("boom")))
	assert.True(t, IsInternal(NewNilIR("class")))
}

func TestToJSON(t *testing.T) {
	err := NewUnknownKind("gantt", []string{"class"}).WithFile("doc.md")

	out, jerr := err.ToJSON()
	require.NoError(t, jerr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "INP100", decoded["code"])
	assert.Equal(t, "input", decoded["category"])
	assert.Equal(t, "doc.md", decoded["file"])
	assert.NotContains(t, decoded, "suggestion")
}

func TestFormatError(t *testing.T) {
	err := NewInputTooLarge(2048, 1024).WithFile("big.md")
	out := err.Format()

	assert.True(t, strings.HasPrefix(out, "❌ Input Error in big.md [INP101]"))
	assert.Contains(t, out, "2048 bytes")
	assert.Contains(t, out, "💡")
}

func TestFormatCompact(t *testing.T) {
	err := NewNilIR("class")
	assert.Equal(t, "<input>: error: Emitter received no parse result [GEN601]", err.Error())
}

func TestErrorList(t *testing.T) {
	var empty ErrorList
	assert.Equal(t, "no errors", empty.Error())
	assert.False(t, empty.HasErrors())

	list := ErrorList{NewNilIR("class"), NewUnknownKind("x", nil)}
	assert.True(t, list.HasErrors())
	assert.Contains(t, list.Error(), "Rendering failed with 2 error(s)")

	out, err := list.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, out, "GEN601")
}
