package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Printer writes styled or JSON output to w
type Printer struct {
	w    io.Writer
	json bool
}

func NewPrinter(w io.Writer, jsonMode bool) *Printer {
	return &Printer{w: w, json: jsonMode}
}

// JSON outputs data as JSON if JSON mode is enabled, returns true if it did
func (p *Printer) JSON(data any) bool {
	if !p.json {
		return false
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
	return true
}

func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintf(p.w, "  %s %s\n", SuccessStyle.Render(SymbolSuccess), fmt.Sprintf(format, args...))
}

func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintf(p.w, "  %s %s\n", ErrorStyle.Render(SymbolError), ErrorStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.w, "  %s %s\n", InfoStyle.Render(SymbolInfo), fmt.Sprintf(format, args...))
}

func (p *Printer) Bullet(text string) {
	fmt.Fprintf(p.w, "    %s %s\n", DimStyle.Render(SymbolBullet), text)
}

// Table represents a styled table
type Table struct {
	Headers []string
	Rows    [][]string
	Widths  []int
}

// NewTable creates a new table with the given headers
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{
		Headers: headers,
		Widths:  widths,
	}
}

// AddRow adds a row, padding or truncating to the header count
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.Headers))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
			t.Widths[i] = max(t.Widths[i], len(cells[i]))
		}
	}
	t.Rows = append(t.Rows, row)
}

// Print renders the table to w
func (t *Table) Print(w io.Writer) {
	if len(t.Rows) == 0 {
		return
	}

	fmt.Fprint(w, "  ")
	for i, h := range t.Headers {
		fmt.Fprint(w, TableHeaderStyle.Width(t.Widths[i]+2).Render(h))
	}
	fmt.Fprintln(w)

	fmt.Fprint(w, "  ")
	for i := range t.Headers {
		fmt.Fprint(w, DimStyle.Render(strings.Repeat("─", t.Widths[i])), "  ")
	}
	fmt.Fprintln(w)

	for _, row := range t.Rows {
		fmt.Fprint(w, "  ")
		for i, cell := range row {
			style := TableCellStyle.Width(t.Widths[i] + 2)
			if i == 0 {
				style = style.Inherit(CodeStyle)
			}
			fmt.Fprint(w, style.Render(cell))
		}
		fmt.Fprintln(w)
	}
}
