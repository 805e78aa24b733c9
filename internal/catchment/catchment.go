// Package catchment delineates drainage basins from D8 flow-direction grids.
package catchment

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/verte-zerg/hydrobasin/internal/model"
	"github.com/verte-zerg/hydrobasin/internal/raster"
)

var (
	// ErrOutOfBounds is returned when the outlet is outside the raster window.
	ErrOutOfBounds = errors.New("outlet is outside the raster window")
	// ErrNoDataAtOutlet is returned when the outlet elevation is missing.
	ErrNoDataAtOutlet = errors.New("outlet elevation is nodata")
	// ErrEmptyCatchment is returned when the traversal accumulates no area.
	ErrEmptyCatchment = errors.New("catchment is empty")
)

// Config lists the auxiliary layers sampled at every catchment cell.
type Config struct {
	Layers []string
}

// Cell addresses one raster cell.
type Cell struct {
	Row int
	Col int
}

// State is the result of one delineation.
type State struct {
	Width  int
	Height int

	Outlet      Cell
	OutletCoord model.Coord

	CellCount    int
	AreaM2       float64
	MinElevation float64
	MaxElevation float64

	MaxDistance   float64
	Farthest      Cell
	FarthestCoord model.Coord

	// LayerValues holds the present, strictly positive samples per layer.
	LayerValues map[string][]float64

	// member is both the visited set and the membership mask.
	member []bool
}

// Contains reports whether (row, col) belongs to the catchment.
func (s *State) Contains(row, col int) bool {
	if row < 0 || col < 0 || row >= s.Height || col >= s.Width {
		return false
	}
	return s.member[row*s.Width+col]
}

// Mask returns a copy of the membership mask in row-major order.
func (s *State) Mask() []bool {
	out := make([]bool, len(s.member))
	copy(out, s.member)
	return out
}

// AreaKm2 returns the catchment area in square kilometres.
func (s *State) AreaKm2() float64 {
	return s.AreaM2 / 1e6
}

// LayerMean returns the mean of the samples collected for a layer.
func (s *State) LayerMean(name string) (float64, bool) {
	values := s.LayerValues[name]
	if len(values) == 0 {
		return 0, false
	}
	return stat.Mean(values, nil), true
}

type pending struct {
	row, col int
	dist     float64
}

// DelineateAt locates the cell containing outlet and delineates from it.
func DelineateAt(w *raster.Window, outlet model.Coord, cfg Config) (*State, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	row, col, ok := w.Elevation.Index(outlet)
	if !ok {
		return nil, fmt.Errorf("outlet (%.2f, %.2f): %w", outlet.X, outlet.Y, ErrOutOfBounds)
	}
	return Delineate(w, Cell{Row: row, Col: col}, cfg)
}

// Delineate collects every cell draining into outlet. The traversal uses an
// explicit stack; each cell is expanded at most once.
func Delineate(w *raster.Window, outlet Cell, cfg Config) (*State, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	elev := w.Elevation
	dirs := w.FlowDir
	if !elev.InBounds(outlet.Row, outlet.Col) {
		return nil, fmt.Errorf("outlet cell (%d, %d): %w", outlet.Row, outlet.Col, ErrOutOfBounds)
	}
	h0 := elev.At(outlet.Row, outlet.Col)
	if elev.IsNoData(h0) {
		return nil, ErrNoDataAtOutlet
	}

	st := &State{
		Width:         elev.Width,
		Height:        elev.Height,
		Outlet:        outlet,
		OutletCoord:   elev.CellCenter(outlet.Row, outlet.Col),
		MinElevation:  h0,
		MaxElevation:  h0,
		Farthest:      outlet,
		FarthestCoord: elev.CellCenter(outlet.Row, outlet.Col),
		LayerValues:   make(map[string][]float64, len(cfg.Layers)),
		member:        make([]bool, elev.Width*elev.Height),
	}
	layers := make(map[string]*raster.Grid, len(cfg.Layers))
	for _, name := range cfg.Layers {
		st.LayerValues[name] = nil
		if g, ok := w.Layer(name); ok {
			layers[name] = g
		}
	}

	cellArea := elev.Transform.CellArea()
	cellSize := elev.Transform.CellSize()

	stack := []pending{{row: outlet.Row, col: outlet.Col}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !elev.InBounds(p.row, p.col) {
			continue
		}
		idx := p.row*st.Width + p.col
		if st.member[idx] {
			continue
		}
		st.member[idx] = true
		st.CellCount++

		centre := elev.CellCenter(p.row, p.col)
		for name, g := range layers {
			if v, ok := g.Sample(centre); ok && v > 0 {
				st.LayerValues[name] = append(st.LayerValues[name], v)
			}
		}

		if h := elev.At(p.row, p.col); !elev.IsNoData(h) {
			if h < st.MinElevation {
				st.MinElevation = h
			}
			if h > st.MaxElevation {
				st.MaxElevation = h
			}
			if p.dist > st.MaxDistance {
				st.MaxDistance = p.dist
				st.Farthest = Cell{Row: p.row, Col: p.col}
				st.FarthestCoord = centre
			}
		}
		st.AreaM2 += cellArea

		for _, d := range raster.Directions {
			dr, dc, _ := d.Offset()
			nr, nc := p.row+dr, p.col+dc
			if !dirs.InBounds(nr, nc) || st.member[nr*st.Width+nc] {
				continue
			}
			code, ok := raster.DirectionOf(dirs.At(nr, nc))
			if !ok || dirs.IsNoData(dirs.At(nr, nc)) || code != d.Reverse() {
				continue
			}
			stack = append(stack, pending{row: nr, col: nc, dist: p.dist + d.StepLength(cellSize)})
		}
	}

	if st.CellCount == 0 || st.AreaM2 <= 0 {
		return nil, ErrEmptyCatchment
	}
	return st, nil
}
