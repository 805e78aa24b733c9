package flowpath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/hydrobasin/internal/catchment"
	"github.com/verte-zerg/hydrobasin/internal/model"
	"github.com/verte-zerg/hydrobasin/internal/raster"
)

func window(elev []float64, dirs []float64, width int, cellSize float64) *raster.Window {
	height := len(elev) / width
	gt := raster.NorthUp(0, float64(height)*cellSize, cellSize)
	e := raster.NewGrid(width, height, gt, -9999)
	copy(e.Values, elev)
	d := raster.NewGrid(width, height, gt, 255)
	copy(d.Values, dirs)
	return &raster.Window{Elevation: e, FlowDir: d}
}

func TestTraceStraightRow(t *testing.T) {
	w := window([]float64{13, 12, 11, 10}, []float64{1, 1, 1, 0}, 4, 10)
	st, err := catchment.Delineate(w, catchment.Cell{Row: 0, Col: 3}, catchment.Config{})
	require.NoError(t, err)

	path, err := Trace(w, st)
	require.NoError(t, err)
	require.Len(t, path.Cells, 4)
	assert.Equal(t, catchment.Cell{Row: 0, Col: 0}, path.Cells[0])
	assert.Equal(t, st.Outlet, path.Cells[3])
	assert.Len(t, path.Line(), 4)

	profile := BuildProfile(w.Elevation, path.Coords)
	require.Len(t, profile, 4)
	for i := 1; i < len(profile); i++ {
		assert.GreaterOrEqual(t, profile[i].Distance, profile[i-1].Distance)
	}

	m, err := profile.Measure(nil)
	require.NoError(t, err)
	assert.InDelta(t, 30, m.LengthM, 1e-9)
	assert.InDelta(t, 3, m.DropM, 1e-9)
	assert.InDelta(t, 0.1, m.Slope, 1e-12)
	want := 0.3 * math.Pow(0.03/math.Pow(0.1, 0.25), 0.76)
	assert.InDelta(t, want, m.TcHours, 1e-12)
	assert.Equal(t, "temez", m.TcFormula)
}

func TestBuildProfileSkipsNoData(t *testing.T) {
	w := window([]float64{-9999, 12, 11, -9999}, []float64{1, 1, 1, 0}, 4, 10)
	coords := []model.Coord{
		w.Elevation.CellCenter(0, 0),
		w.Elevation.CellCenter(0, 1),
		w.Elevation.CellCenter(0, 2),
		w.Elevation.CellCenter(0, 3),
	}

	profile := BuildProfile(w.Elevation, coords)
	require.Len(t, profile, 2)
	assert.Equal(t, 12.0, profile[0].Elevation)
	assert.Equal(t, 0.0, profile[0].Distance)
	assert.InDelta(t, 10, profile[1].Distance, 1e-9)

	m, err := profile.Measure(nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, m.DropM, 1e-9)
	assert.InDelta(t, 0.1, m.Slope, 1e-12)
}

func TestTraceDiagonal(t *testing.T) {
	// (0,0) -> (1,1) -> (2,2) along south-east steps.
	elev := []float64{
		9, 9, 9,
		9, 8, 9,
		9, 9, 7,
	}
	dirs := []float64{
		2, 0, 0,
		0, 2, 0,
		0, 0, 0,
	}
	w := window(elev, dirs, 3, 5)
	st, err := catchment.Delineate(w, catchment.Cell{Row: 2, Col: 2}, catchment.Config{})
	require.NoError(t, err)
	require.Equal(t, 3, st.CellCount)

	path, err := Trace(w, st)
	require.NoError(t, err)
	profile := BuildProfile(w.Elevation, path.Coords)
	m, err := profile.Measure(California{})
	require.NoError(t, err)
	assert.InDelta(t, 10*math.Sqrt2, m.LengthM, 1e-9)
	assert.InDelta(t, st.MaxDistance, m.LengthM, 1e-9)
	assert.InDelta(t, 2, m.DropM, 1e-12)
	assert.InDelta(t, 0.87*math.Pow(200/(1000*2.0), 0.385), m.TcHours, 1e-12)
}

func TestTraceStopsOnCycle(t *testing.T) {
	w := window([]float64{2, 1}, []float64{1, 16}, 2, 1)
	st, err := catchment.Delineate(w, catchment.Cell{Row: 0, Col: 1}, catchment.Config{})
	require.NoError(t, err)

	path, err := Trace(w, st)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(path.Cells), st.CellCount)
}

func TestBuildProfileSkipsOutsideCoords(t *testing.T) {
	g := raster.NewGrid(2, 1, raster.NorthUp(0, 10, 10), -9999)
	g.Values = []float64{4, 2}
	coords := []model.Coord{{X: 5, Y: 5}, {X: 500, Y: 5}, {X: 15, Y: 5}}

	profile := BuildProfile(g, coords)
	require.Len(t, profile, 2)
	assert.Equal(t, 4.0, profile[0].Elevation)
	assert.InDelta(t, 10, profile[1].Distance, 1e-12)
}

func TestMeasureEmptyAndFlat(t *testing.T) {
	m, err := Profile(nil).Measure(Temez{})
	require.NoError(t, err)
	assert.Zero(t, m.TcHours)

	flat := Profile{{Elevation: 3}, {Elevation: 3, Distance: 50}}
	m, err = flat.Measure(Temez{})
	require.NoError(t, err)
	assert.Zero(t, m.Slope)
	assert.Zero(t, m.TcHours)
}

func TestExpressionMatchesTemez(t *testing.T) {
	f, err := ParseTcFormula("0.3 * (Lkm / S ** 0.25) ** 0.76")
	require.NoError(t, err)

	got, err := f.Hours(12000, 240)
	require.NoError(t, err)
	want, err := Temez{}.Hours(12000, 240)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)
}

func TestParseTcFormula(t *testing.T) {
	f, err := ParseTcFormula("  Temez ")
	require.NoError(t, err)
	assert.Equal(t, Temez{}, f)

	f, err = ParseTcFormula("california")
	require.NoError(t, err)
	assert.Equal(t, California{}, f)

	_, err = ParseTcFormula("L +")
	require.Error(t, err)

	neg, err := ParseTcFormula("H - L")
	require.NoError(t, err)
	_, err = neg.Hours(100, 1)
	require.Error(t, err)
}
