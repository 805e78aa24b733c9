package raster

import "math"

// Direction is a D8 flow-direction code.
type Direction uint8

// D8 codes, clockwise from east. Row offsets grow southwards.
const (
	East      Direction = 1
	SouthEast Direction = 2
	South     Direction = 4
	SouthWest Direction = 8
	West      Direction = 16
	NorthWest Direction = 32
	North     Direction = 64
	NorthEast Direction = 128
)

// Directions lists the eight D8 codes in clockwise order.
var Directions = [8]Direction{East, SouthEast, South, SouthWest, West, NorthWest, North, NorthEast}

// DirectionOf converts a raw grid value into a D8 code.
// ok is false for 0 (sink), nodata and any non-D8 value.
func DirectionOf(v float64) (Direction, bool) {
	if math.IsNaN(v) || v < 1 || v > 128 || v != math.Trunc(v) {
		return 0, false
	}
	d := Direction(v)
	if _, _, ok := d.Offset(); !ok {
		return 0, false
	}
	return d, true
}

// Offset returns the (row, col) step taken when following d.
func (d Direction) Offset() (dRow, dCol int, ok bool) {
	switch d {
	case East:
		return 0, 1, true
	case SouthEast:
		return 1, 1, true
	case South:
		return 1, 0, true
	case SouthWest:
		return 1, -1, true
	case West:
		return 0, -1, true
	case NorthWest:
		return -1, -1, true
	case North:
		return -1, 0, true
	case NorthEast:
		return -1, 1, true
	}
	return 0, 0, false
}

// Reverse returns the code pointing the opposite way.
func (d Direction) Reverse() Direction {
	switch d {
	case East:
		return West
	case SouthEast:
		return NorthWest
	case South:
		return North
	case SouthWest:
		return NorthEast
	case West:
		return East
	case NorthWest:
		return SouthEast
	case North:
		return South
	case NorthEast:
		return SouthWest
	}
	return 0
}

// Diagonal reports whether d moves along both axes.
func (d Direction) Diagonal() bool {
	return d == SouthEast || d == SouthWest || d == NorthWest || d == NorthEast
}

// StepLength returns the planar length of one step along d.
func (d Direction) StepLength(cellSize float64) float64 {
	if d.Diagonal() {
		return cellSize * math.Sqrt2
	}
	return cellSize
}
