package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ProgressBar renders a single-line bar for determinate work such as
// exporting every stored document
type ProgressBar struct {
	writer  io.Writer
	total   int
	current int
	width   int
	message string
	noColor bool
}

// NewProgressBar creates a bar for total steps
func NewProgressBar(w io.Writer, total int, message string, noColor bool) *ProgressBar {
	return &ProgressBar{writer: w, total: total, width: 30, message: message, noColor: noColor}
}

// Add advances the bar by n, never past total
func (p *ProgressBar) Add(n int) {
	p.current = min(p.current+n, p.total)
	p.render()
}

// Current returns the number of completed steps
func (p *ProgressBar) Current() int {
	return p.current
}

// Finish completes the bar and prints a success line
func (p *ProgressBar) Finish(message string) {
	p.current = p.total
	p.render()
	if p.total > 0 {
		fmt.Fprintln(p.writer)
	}
	WriteSuccess(p.writer, message, p.noColor)
}

func (p *ProgressBar) render() {
	if p.total == 0 {
		return
	}
	filled := p.width * p.current / p.total

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if p.noColor {
		cyan.DisableColor()
		gray.DisableColor()
	}
	fmt.Fprintf(p.writer, "\r[%s%s] %d/%d %s",
		cyan.Sprint(strings.Repeat("█", filled)),
		gray.Sprint(strings.Repeat("░", p.width-filled)),
		p.current, p.total, p.message)
}
