// Package raster provides in-memory raster windows and grid readers.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/verte-zerg/hydrobasin/internal/model"
)

// ErrSingularTransform is returned when a transform cannot be inverted.
var ErrSingularTransform = errors.New("geotransform is not invertible")

// GeoTransform maps pixel space to planar coordinates using the GDAL ordering:
// x = gt[0] + col*gt[1] + row*gt[2], y = gt[3] + col*gt[4] + row*gt[5].
type GeoTransform [6]float64

// NorthUp builds a transform for an unrotated grid with square cells.
func NorthUp(originX, originY, cellSize float64) GeoTransform {
	return GeoTransform{originX, cellSize, 0, originY, 0, -cellSize}
}

// Apply maps fractional pixel coordinates to a planar coordinate.
func (g GeoTransform) Apply(col, row float64) model.Coord {
	return model.Coord{
		X: g[0] + col*g[1] + row*g[2],
		Y: g[3] + col*g[4] + row*g[5],
	}
}

// Invert maps a planar coordinate back to fractional pixel coordinates.
func (g GeoTransform) Invert(c model.Coord) (col, row float64, err error) {
	det := g[1]*g[5] - g[2]*g[4]
	if det == 0 || math.IsNaN(det) {
		return 0, 0, ErrSingularTransform
	}
	dx := c.X - g[0]
	dy := c.Y - g[3]
	col = (g[5]*dx - g[2]*dy) / det
	row = (g[1]*dy - g[4]*dx) / det
	return col, row, nil
}

// CellArea returns the footprint of one cell in squared map units.
func (g GeoTransform) CellArea() float64 {
	return math.Abs(g[1]*g[5] - g[2]*g[4])
}

// CellSize returns the horizontal cell size used for along-path distances.
func (g GeoTransform) CellSize() float64 {
	return math.Abs(g[1])
}

// Grid is a row-major raster band with its georeferencing.
type Grid struct {
	Width     int
	Height    int
	Values    []float64
	NoData    float64
	HasNoData bool
	Transform GeoTransform
}

// NewGrid allocates a grid filled with zeros.
func NewGrid(width, height int, gt GeoTransform, nodata float64) *Grid {
	return &Grid{
		Width:     width,
		Height:    height,
		Values:    make([]float64, width*height),
		NoData:    nodata,
		HasNoData: true,
		Transform: gt,
	}
}

// InBounds reports whether (row, col) addresses a cell of the grid.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && col >= 0 && row < g.Height && col < g.Width
}

// At returns the raw value at (row, col). The caller checks bounds.
func (g *Grid) At(row, col int) float64 {
	return g.Values[row*g.Width+col]
}

// Set stores v at (row, col). The caller checks bounds.
func (g *Grid) Set(row, col int, v float64) {
	g.Values[row*g.Width+col] = v
}

// IsNoData reports whether v is the grid's missing-data sentinel.
func (g *Grid) IsNoData(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return g.HasNoData && v == g.NoData
}

// CellCenter returns the planar coordinate of the centre of (row, col).
func (g *Grid) CellCenter(row, col int) model.Coord {
	return g.Transform.Apply(float64(col)+0.5, float64(row)+0.5)
}

// Index maps a planar coordinate to the cell containing it.
func (g *Grid) Index(c model.Coord) (row, col int, ok bool) {
	fc, fr, err := g.Transform.Invert(c)
	if err != nil {
		return 0, 0, false
	}
	col = int(math.Floor(fc))
	row = int(math.Floor(fr))
	if !g.InBounds(row, col) {
		return 0, 0, false
	}
	return row, col, true
}

// Sample returns the value under c. ok is false outside the grid or on nodata.
func (g *Grid) Sample(c model.Coord) (float64, bool) {
	row, col, ok := g.Index(c)
	if !ok {
		return 0, false
	}
	v := g.At(row, col)
	if g.IsNoData(v) {
		return 0, false
	}
	return v, true
}

// Validate checks the grid dimensions against its value buffer.
func (g *Grid) Validate() error {
	if g == nil {
		return fmt.Errorf("grid is nil")
	}
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("grid has invalid size %dx%d", g.Width, g.Height)
	}
	if len(g.Values) != g.Width*g.Height {
		return fmt.Errorf("grid has %d values, want %d", len(g.Values), g.Width*g.Height)
	}
	if g.Transform.CellArea() == 0 {
		return ErrSingularTransform
	}
	return nil
}
