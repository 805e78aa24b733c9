// Package flowpath traces the longest flow path of a catchment and derives
// its profile and time of concentration.
package flowpath

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"

	"github.com/verte-zerg/hydrobasin/internal/catchment"
	"github.com/verte-zerg/hydrobasin/internal/model"
	"github.com/verte-zerg/hydrobasin/internal/raster"
)

// ErrNotInCatchment is returned when the start cell is not a member.
var ErrNotInCatchment = errors.New("flow path start is outside the catchment")

// Path is the ordered list of cells from the farthest cell to the outlet.
type Path struct {
	Cells  []catchment.Cell
	Coords []model.Coord
}

// Line returns the path as a line string.
func (p Path) Line() geom.LineString {
	line := make(geom.LineString, len(p.Coords))
	for i, c := range p.Coords {
		line[i] = geom.Point{X: c.X, Y: c.Y}
	}
	return line
}

// Trace follows flow directions from the farthest cell of st until the
// outlet, a cell without a valid code, or a cell outside the catchment.
// The walk is bounded by the catchment cell count.
func Trace(w *raster.Window, st *catchment.State) (Path, error) {
	cur := st.Farthest
	if !st.Contains(cur.Row, cur.Col) {
		return Path{}, ErrNotInCatchment
	}
	var p Path
	for steps := 0; steps < st.CellCount; steps++ {
		p.Cells = append(p.Cells, cur)
		p.Coords = append(p.Coords, w.Elevation.CellCenter(cur.Row, cur.Col))
		if cur == st.Outlet {
			break
		}
		raw := w.FlowDir.At(cur.Row, cur.Col)
		if w.FlowDir.IsNoData(raw) {
			break
		}
		d, ok := raster.DirectionOf(raw)
		if !ok {
			break
		}
		dr, dc, _ := d.Offset()
		next := catchment.Cell{Row: cur.Row + dr, Col: cur.Col + dc}
		if !st.Contains(next.Row, next.Col) {
			break
		}
		cur = next
	}
	return p, nil
}

// Sample is one point of the longitudinal profile.
type Sample struct {
	Coord     model.Coord `json:"coord" yaml:"coord"`
	Elevation float64     `json:"elevation_m" yaml:"elevation_m"`
	Distance  float64     `json:"distance_m" yaml:"distance_m"`
}

// Profile is the elevation profile along a flow path.
type Profile []Sample

// BuildProfile samples elev under every coordinate. Coordinates outside the
// grid or over nodata cells are skipped; distances accumulate between
// retained samples.
func BuildProfile(elev *raster.Grid, coords []model.Coord) Profile {
	profile := make(Profile, 0, len(coords))
	for _, c := range coords {
		row, col, ok := elev.Index(c)
		if !ok {
			continue
		}
		z := elev.At(row, col)
		if elev.IsNoData(z) {
			continue
		}
		s := Sample{Coord: c, Elevation: z}
		if n := len(profile); n > 0 {
			prev := profile[n-1]
			s.Distance = prev.Distance + math.Hypot(c.X-prev.Coord.X, c.Y-prev.Coord.Y)
		}
		profile = append(profile, s)
	}
	return profile
}

// Metrics summarizes a profile.
type Metrics struct {
	LengthM        float64 `json:"length_m" yaml:"length_m"`
	StartElevation float64 `json:"start_elevation_m" yaml:"start_elevation_m"`
	EndElevation   float64 `json:"end_elevation_m" yaml:"end_elevation_m"`
	DropM          float64 `json:"drop_m" yaml:"drop_m"`
	Slope          float64 `json:"slope" yaml:"slope"`
	TcHours        float64 `json:"tc_h" yaml:"tc_h"`
	TcFormula      string  `json:"tc_formula" yaml:"tc_formula"`
}

// Measure derives length, drop, slope and time of concentration. A nil
// formula uses Temez.
func (p Profile) Measure(formula TcFormula) (Metrics, error) {
	if formula == nil {
		formula = Temez{}
	}
	m := Metrics{TcFormula: formula.Name()}
	if len(p) == 0 {
		return m, nil
	}
	m.LengthM = p[len(p)-1].Distance
	m.StartElevation = p[0].Elevation
	m.EndElevation = p[len(p)-1].Elevation
	m.DropM = math.Abs(m.StartElevation - m.EndElevation)
	if m.LengthM > 0 {
		m.Slope = m.DropM / m.LengthM
	}
	tc, err := formula.Hours(m.LengthM, m.DropM)
	if err != nil {
		return m, fmt.Errorf("failed to evaluate %s: %w", formula.Name(), err)
	}
	m.TcHours = tc
	return m, nil
}
