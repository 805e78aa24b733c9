package report

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

const columnGap = "  "

// table lays out rows in aligned columns. Numeric cells are right-aligned,
// and so is the header of a column that holds only numbers.
type table struct {
	headers []string
	rows    [][]string
	widths  []int
	numeric []bool
}

func newTable(headers []string, rows [][]string) *table {
	n := len(headers)
	for _, row := range rows {
		n = max(n, len(row))
	}
	t := &table{
		headers: headers,
		rows:    rows,
		widths:  make([]int, n),
		numeric: make([]bool, n),
	}
	for i, h := range headers {
		t.widths[i] = runewidth.StringWidth(h)
	}
	for i := range t.numeric {
		t.numeric[i] = len(rows) > 0
	}
	for _, row := range rows {
		for i := range t.widths {
			cell := cellAt(row, i)
			t.widths[i] = max(t.widths[i], runewidth.StringWidth(cell))
			if cell != missing && !isNumeric(cell) {
				t.numeric[i] = false
			}
		}
	}
	return t
}

func (t *table) lines() []string {
	if len(t.widths) == 0 {
		return nil
	}
	out := make([]string, 0, len(t.rows)+1)
	if len(t.headers) > 0 {
		out = append(out, t.line(t.headers, true))
	}
	for _, row := range t.rows {
		out = append(out, t.line(row, false))
	}
	return out
}

func (t *table) line(row []string, header bool) string {
	var b strings.Builder
	for i, w := range t.widths {
		if i > 0 {
			b.WriteString(columnGap)
		}
		cell := cellAt(row, i)
		right := t.numeric[i] || (!header && isNumeric(cell))
		b.WriteString(padCell(cell, w, right))
	}
	return strings.TrimRight(b.String(), " ")
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// isNumeric accepts numbers with an optional trailing extrapolation mark.
func isNumeric(cell string) bool {
	_, err := strconv.ParseFloat(strings.TrimSuffix(cell, "*"), 64)
	return err == nil
}

func padCell(value string, width int, right bool) string {
	gap := width - runewidth.StringWidth(value)
	if gap <= 0 {
		return value
	}
	if right {
		return strings.Repeat(" ", gap) + value
	}
	return value + strings.Repeat(" ", gap)
}
