package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Curve is a y(x) series with non-decreasing x, such as an elevation profile.
type Curve struct {
	Title  string
	XLabel string
	YLabel string
	X      []float64
	Y      []float64
}

const (
	defaultPlotHeight   = 8
	minPlotWidth        = 10
	maxPlotWidth        = 72
	axisSeparator       = " │ "
	terminalWidthBackup = 80
)

// PlotWidthFor returns the number of plot columns that fit in totalWidth
// next to an axis of labelWidth cells.
func PlotWidthFor(totalWidth, labelWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	w := totalWidth - labelWidth - runewidth.StringWidth(axisSeparator)
	if w < minPlotWidth {
		return minPlotWidth
	}
	if w > maxPlotWidth {
		return maxPlotWidth
	}
	return w
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

// plotCurve draws c as a braille line. width <= 0 fits the terminal.
func plotCurve(w io.Writer, c Curve, width, height int) error {
	n := len(c.X)
	if n < 2 || len(c.Y) != n {
		return nil
	}
	if height <= 0 {
		height = defaultPlotHeight
	}
	minY, maxY := bounds(c.Y)
	if maxY-minY < 1e-9 {
		minY--
		maxY++
	}
	labels := []string{num(maxY, 1), num((minY+maxY)/2, 1), num(minY, 1)}
	labelWidth := 0
	for _, l := range labels {
		labelWidth = max(labelWidth, runewidth.StringWidth(l))
	}
	if width <= 0 {
		width = PlotWidthFor(terminalWidth(), labelWidth)
	}
	width = max(width, 1)

	// Two dot columns and four dot rows per cell.
	dotsX, dotsY := width*2, height*4
	ys := sampleAlong(c.X, c.Y, dotsX)
	cells := make([][]uint8, height)
	for i := range cells {
		cells[i] = make([]uint8, width)
	}
	prevX, prevY := -1, -1
	for x, v := range ys {
		y := valueToRow(v, minY, maxY, dotsY)
		if prevX < 0 {
			setBrailleDot(cells, x, y)
		} else {
			drawLine(prevX, prevY, x, y, func(dx, dy int) { setBrailleDot(cells, dx, dy) })
		}
		prevX, prevY = x, y
	}

	var b strings.Builder
	if c.Title != "" {
		fmt.Fprintf(&b, "%s (%s vs %s)\n", c.Title, c.YLabel, c.XLabel)
	}
	for row := 0; row < height; row++ {
		label := ""
		switch row {
		case 0:
			label = labels[0]
		case height / 2:
			if height > 2 {
				label = labels[1]
			}
		case height - 1:
			label = labels[2]
		}
		b.WriteString(padCell(label, labelWidth, true))
		b.WriteString(axisSeparator)
		for col := 0; col < width; col++ {
			b.WriteRune(rune(0x2800 + int(cells[row][col])))
		}
		b.WriteByte('\n')
	}
	lo, hi := num(c.X[0], 0), num(c.X[n-1], 0)
	gap := width - runewidth.StringWidth(lo) - runewidth.StringWidth(hi)
	b.WriteString(strings.Repeat(" ", labelWidth+runewidth.StringWidth(axisSeparator)))
	b.WriteString(lo)
	b.WriteString(strings.Repeat(" ", max(gap, 1)))
	b.WriteString(hi)
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func bounds(vs []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// sampleAlong interpolates y linearly at count evenly spaced positions
// between the first and last x.
func sampleAlong(xs, ys []float64, count int) []float64 {
	out := make([]float64, count)
	x0, x1 := xs[0], xs[len(xs)-1]
	j := 0
	for i := range out {
		x := x0
		if count > 1 {
			x = x0 + (x1-x0)*float64(i)/float64(count-1)
		}
		for j < len(xs)-2 && xs[j+1] < x {
			j++
		}
		span := xs[j+1] - xs[j]
		if span <= 0 {
			out[i] = ys[j+1]
			continue
		}
		frac := math.Max(0, math.Min(1, (x-xs[j])/span))
		out[i] = ys[j]*(1-frac) + ys[j+1]*frac
	}
	return out
}

func valueToRow(v, minVal, maxVal float64, rows int) int {
	if rows <= 1 {
		return 0
	}
	pos := (v - minVal) / (maxVal - minVal)
	row := int(math.Round((1 - pos) * float64(rows-1)))
	return max(0, min(row, rows-1))
}

// drawLine walks the Bresenham line between two dots.
func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	e := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// brailleDots maps a dot position within a cell to its braille bit.
var brailleDots = [4][2]uint8{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

func setBrailleDot(cells [][]uint8, x, y int) {
	row, col := y/4, x/2
	if x < 0 || y < 0 || row >= len(cells) || col >= len(cells[row]) {
		return
	}
	cells[row][col] |= brailleDots[y%4][x%2]
}
