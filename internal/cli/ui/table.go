package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/text/width"
)

// Table prints rows under a colored header, aligning columns by display
// width so that Japanese cells line up.
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given headers
func NewTable(w io.Writer, headers []string, noColor bool) *Table {
	return &Table{writer: w, headers: headers, noColor: noColor}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = displayWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && displayWidth(cell) > widths[i] {
				widths[i] = displayWidth(cell)
			}
		}
	}

	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if t.noColor {
		bold.DisableColor()
		gray.DisableColor()
	}

	var cells []string
	for i, h := range t.headers {
		cells = append(cells, bold.Sprint(padRight(h, widths[i])))
	}
	t.line(cells)

	cells = cells[:0]
	for _, w := range widths {
		cells = append(cells, gray.Sprint(strings.Repeat("─", w)))
	}
	t.line(cells)

	for _, row := range t.rows {
		cells = cells[:0]
		for i := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells = append(cells, padRight(cell, widths[i]))
		}
		t.line(cells)
	}
}

func (t *Table) line(cells []string) {
	fmt.Fprintln(t.writer, strings.TrimRight(strings.Join(cells, "  "), " "))
}

// KeyValueTable prints aligned "key: value" lines
type KeyValueTable struct {
	writer  io.Writer
	rows    [][2]string
	noColor bool
}

// NewKeyValueTable creates an empty key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow adds a key-value pair
func (t *KeyValueTable) AddRow(key, value string) {
	t.rows = append(t.rows, [2]string{key, value})
}

// Render writes the table
func (t *KeyValueTable) Render() {
	keyWidth := 0
	for _, r := range t.rows {
		if w := displayWidth(r[0]); w > keyWidth {
			keyWidth = w
		}
	}
	key := color.New(color.FgCyan)
	if t.noColor {
		key.DisableColor()
	}
	for _, r := range t.rows {
		fmt.Fprintf(t.writer, "%s  %s\n", key.Sprint(padRight(r[0]+":", keyWidth+1)), r[1])
	}
}

// Header prints a bold title followed by a rule
func Header(w io.Writer, title string, noColor bool) {
	bold := color.New(color.Bold)
	gray := color.New(color.FgHiBlack)
	if noColor {
		bold.DisableColor()
		gray.DisableColor()
	}
	bold.Fprintln(w, title)
	gray.Fprintln(w, strings.Repeat("─", displayWidth(title)))
}

// displayWidth counts East Asian wide and fullwidth runes as two columns.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

func padRight(s string, w int) string {
	if d := w - displayWidth(s); d > 0 {
		return s + strings.Repeat(" ", d)
	}
	return s
}
