package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dphaener/ddmark/internal/compiler/errors"
)

// Level is the severity of a terminal message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// MessageOptions configures FormatMessage
type MessageOptions struct {
	Level        Level
	Context      string
	Problem      string
	Detail       string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatMessage renders a message block:
//
//	❌ UNKNOWN KIND: Unknown diagram kind 'clas'
//	   Did you mean: class?
//
//	   → List kinds: ddmark render --help
func FormatMessage(opts MessageOptions) string {
	var b strings.Builder

	var header, body *color.Color
	var symbol string
	switch opts.Level {
	case LevelWarning:
		header, body, symbol = color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "⚠️"
	case LevelInfo:
		header, body, symbol = color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "ℹ️"
	default:
		header, body, symbol = color.New(color.FgRed, color.Bold), color.New(color.FgRed), "❌"
	}
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if opts.NoColor {
		for _, c := range []*color.Color{header, body, yellow, cyan} {
			c.DisableColor()
		}
	}

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}
	if opts.Detail != "" {
		body.Fprintf(&b, "   %s\n", opts.Detail)
	}
	if len(opts.Suggestions) > 0 {
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}
	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}
	return b.String()
}

// WriteMessage writes FormatMessage(opts) to w
func WriteMessage(w io.Writer, opts MessageOptions) {
	fmt.Fprint(w, FormatMessage(opts))
}

// FormatSuccess renders a one-line success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success line to w
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// Warning renders a warning without context
func Warning(message string, noColor bool) string {
	return FormatMessage(MessageOptions{Level: LevelWarning, Problem: message, NoColor: noColor})
}

// Info renders an informational message
func Info(message string, noColor bool) string {
	return FormatMessage(MessageOptions{Level: LevelInfo, Problem: message, NoColor: noColor})
}

// ConfigError renders a configuration problem
func ConfigError(message string, noColor bool) string {
	return FormatMessage(MessageOptions{
		Context:      "Configuration Error",
		Problem:      message,
		HelpCommands: []string{"Create a config file: ddmark init"},
		NoColor:      noColor,
	})
}

// CompilerError renders err. Compiler errors get their code, expectation and
// suggestion; an unknown kind additionally gets close kind names.
func CompilerError(err error, kinds []string, noColor bool) string {
	ce, ok := errors.As(err)
	if !ok {
		return FormatMessage(MessageOptions{Problem: err.Error(), NoColor: noColor})
	}

	opts := MessageOptions{
		Context: strings.ReplaceAll(ce.Type, "_", " "),
		Problem: fmt.Sprintf("%s [%s]", ce.Message, ce.Code),
		NoColor: noColor,
	}
	if ce.Expected != "" {
		opts.Detail = "Expected " + ce.Expected
	}
	if ce.Code == errors.ErrUnknownKind {
		opts.Suggestions = Suggest(ce.Actual, kinds)
	}
	if ce.Suggestion != "" {
		opts.HelpCommands = append(opts.HelpCommands, ce.Suggestion)
	}
	return FormatMessage(opts)
}
