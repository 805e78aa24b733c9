package basin

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/hydrobasin/internal/catchment"
	"github.com/verte-zerg/hydrobasin/internal/frequency"
	"github.com/verte-zerg/hydrobasin/internal/logging"
	"github.com/verte-zerg/hydrobasin/internal/model"
	"github.com/verte-zerg/hydrobasin/internal/raster"
)

const (
	testWidth  = 5
	testHeight = 6
	testCell   = 1000.0
)

var errNoRegion = errors.New("no region")

type memoryReader struct {
	w *raster.Window
}

func (m memoryReader) ReadWindow(ctx context.Context, _ model.Coord, _ float64) (*raster.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.w, nil
}

type fakeRegions struct {
	region model.Region
}

func (f fakeRegions) GetRegion(_ context.Context, id int64) (model.Region, error) {
	if id != f.region.ID {
		return model.Region{}, errNoRegion
	}
	return f.region, nil
}

func (f fakeRegions) FindRegionAt(context.Context, model.Coord) (model.Region, error) {
	if f.region.ID == 0 {
		return model.Region{}, errNoRegion
	}
	return f.region, nil
}

func constant(v float64) *raster.Grid {
	g := raster.NewGrid(testWidth, testHeight, raster.NorthUp(0, testHeight*testCell, testCell), -9999)
	for i := range g.Values {
		g.Values[i] = v
	}
	return g
}

// testWindow drains every column south into the last row, which drains
// east into the outlet at (5, 4).
func testWindow(layers map[string]float64) *raster.Window {
	elev := constant(0)
	dirs := constant(0)
	for r := 0; r < testHeight; r++ {
		for c := 0; c < testWidth; c++ {
			elev.Set(r, c, 100+10*float64(testHeight-1-r)+5*float64(testWidth-1-c))
			switch {
			case r < testHeight-1:
				dirs.Set(r, c, float64(raster.South))
			case c < testWidth-1:
				dirs.Set(r, c, float64(raster.East))
			default:
				dirs.Set(r, c, float64(raster.South))
			}
		}
	}
	w := &raster.Window{Elevation: elev, FlowDir: dirs, Layers: map[string]*raster.Grid{}}
	for name, v := range layers {
		w.Layers[name] = constant(v)
	}
	return w
}

var outlet = model.Coord{X: 4500, Y: 500}

func rationalLayers() map[string]float64 {
	return map[string]float64{
		LayerP0:        20,
		LayerI1Id:      10,
		RainLayer(2):   40,
		RainLayer(5):   55,
		RainLayer(10):  65,
		RainLayer(25):  80,
		RainLayer(100): 100,
		RainLayer(500): 130,
	}
}

func newAnalyzer(w *raster.Window, region model.Region) *Analyzer {
	return &Analyzer{
		Windows:  memoryReader{w: w},
		Regions:  fakeRegions{region: region},
		Settings: DefaultSettings(),
		Logger:   logging.Discard(),
	}
}

func TestDelineate(t *testing.T) {
	a := newAnalyzer(testWindow(rationalLayers()), model.Region{})
	b, err := a.Delineate(context.Background(), outlet)
	require.NoError(t, err)

	p := b.Properties
	assert.Equal(t, testWidth*testHeight, p.CellCount)
	assert.InDelta(t, 30, p.AreaKm2, 1e-9)
	assert.Equal(t, 100.0, p.MinElevation)
	assert.Equal(t, 170.0, p.MaxElevation)
	assert.InDelta(t, 9000, p.MaxDistanceM, 1e-9)
	assert.Equal(t, model.Coord{X: 500, Y: 5500}, p.Farthest)

	require.Len(t, b.FlowPath.Cells, 10)
	assert.Equal(t, catchment.Cell{Row: 5, Col: 4}, b.FlowPath.Cells[9])
	assert.InDelta(t, 9000, p.FlowPathLength, 1e-9)
	assert.InDelta(t, 70, p.FlowPathDrop, 1e-9)
	assert.Greater(t, p.TcHours, 0.0)

	require.Len(t, b.Catchment.Native, 1)
	assert.InDelta(t, 30e6, b.Catchment.Native[0].Area(), 1e-3)
	assert.Nil(t, b.Catchment.Display)

	assert.InDelta(t, 20, b.LayerMeans[LayerP0], 1e-12)
	assert.InDelta(t, 130, b.LayerMeans[RainLayer(500)], 1e-12)
	assert.Greater(t, p.Hypsometric, 0.0)
	assert.Less(t, p.Hypsometric, 1.0)
}

func TestDelineateOutletOutsideWindow(t *testing.T) {
	a := newAnalyzer(testWindow(nil), model.Region{})
	_, err := a.Delineate(context.Background(), model.Coord{X: -10, Y: 10})
	require.ErrorIs(t, err, catchment.ErrOutOfBounds)
}

func TestAnalyzeRational(t *testing.T) {
	region := model.Region{
		ID:        11,
		Tmco:      25,
		BetaMedio: 1.5,
		P0Coeffs:  map[int]float64{2: 0.9, 5: 0.95, 10: 1, 25: 1.05, 100: 1.1, 500: 1.2},
	}
	a := newAnalyzer(testWindow(rationalLayers()), region)
	rep, err := a.Analyze(context.Background(), Request{Outlet: outlet, ReturnPeriod: 50})
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, MethodRational, rep.Method)
	require.Len(t, rep.Rational, 6)
	for i := 1; i < len(rep.Rational); i++ {
		assert.Greater(t, rep.Rational[i].Result.FlowM3s, rep.Rational[i-1].Result.FlowM3s)
	}
	assert.InDelta(t, 20*1.5*0.9, rep.Rational[0].Result.CorrectedP0, 1e-9)

	require.NotNil(t, rep.FlowFit)
	require.NotNil(t, rep.RainfallFit)
	assert.Equal(t, frequency.KindGEV, rep.FlowFit.Kind)
	assert.Equal(t, 500.0, rep.MaxFittedT)

	var periods []float64
	for _, row := range rep.Quantiles {
		periods = append(periods, row.T)
		assert.Equal(t, row.T > 500, row.Extrapolated, "T=%g", row.T)
		require.NotNil(t, row.Flow, "T=%g", row.T)
	}
	assert.Equal(t, []float64{2, 5, 10, 25, 50, 100, 500, 1000, 5000, 10000}, periods)
	require.NotNil(t, rep.Quantiles[4].P0Coeff)
	assert.Equal(t, 1.05, *rep.Quantiles[4].P0Coeff)

	require.NotNil(t, rep.InterpolatedRainfall)
	assert.Greater(t, *rep.InterpolatedRainfall, 80.0)
	assert.Less(t, *rep.InterpolatedRainfall, 100.0)
	require.NotNil(t, rep.UserRational)
	assert.InDelta(t, 30, rep.UserRational.CorrectedP0, 1e-9)
	assert.NotNil(t, rep.UserFlow)
	assert.NotNil(t, rep.TmcoFlow)
}

func TestAnalyzeQuantiles(t *testing.T) {
	truth := frequency.TCEV{Alpha1: 20, Alpha2: 0.5, Lambda1: 0.08, Lambda2: 0.03}
	layers := map[string]float64{}
	for _, T := range DefaultSettings().StandardPeriods {
		v, ok := truth.Quantile(T)
		require.True(t, ok)
		layers[FlowLayer(T)] = v
		layers[RainLayer(T)] = v * 1.5
	}
	layers[FlowLayer(500)] = missingValue

	a := newAnalyzer(testWindow(layers), model.Region{ID: 72, Tmco: 10})
	a.Settings.RationalMaxArea = 1
	rep, err := a.Analyze(context.Background(), Request{Outlet: outlet, RegionID: 72, ReturnPeriod: 1000})
	require.NoError(t, err)

	assert.Equal(t, MethodQuantiles, rep.Method)
	assert.Empty(t, rep.Rational)
	require.NotNil(t, rep.FlowFit)
	assert.Equal(t, frequency.KindTCEV, rep.FlowFit.Kind)
	assert.Len(t, rep.FlowFit.Points, 5)
	assert.Equal(t, 100.0, rep.MaxFittedT)
	assert.Nil(t, rep.InterpolatedRainfall)
	assert.Nil(t, rep.UserRational)

	want, _ := truth.Quantile(1000)
	require.NotNil(t, rep.UserFlow)
	assert.InEpsilon(t, want, *rep.UserFlow, 0.2)
}

func TestAnalyzeWarnsOnSparseData(t *testing.T) {
	layers := map[string]float64{
		LayerP0:       20,
		LayerI1Id:     10,
		RainLayer(2):  40,
		RainLayer(10): 65,
	}
	a := newAnalyzer(testWindow(layers), model.Region{ID: 5, BetaMedio: 1})
	rep, err := a.Analyze(context.Background(), Request{Outlet: outlet})
	require.NoError(t, err)

	assert.Nil(t, rep.FlowFit)
	assert.Nil(t, rep.RainfallFit)
	assert.Len(t, rep.Warnings, 2)
	for _, row := range rep.Quantiles {
		assert.Nil(t, row.Flow)
		assert.False(t, row.Extrapolated)
	}
	assert.Nil(t, rep.UserFlow)
}

func TestAnalyzeRegionErrors(t *testing.T) {
	a := newAnalyzer(testWindow(nil), model.Region{})
	_, err := a.Analyze(context.Background(), Request{Outlet: outlet})
	require.ErrorIs(t, err, errNoRegion)

	_, err = a.Analyze(context.Background(), Request{Outlet: outlet, RegionID: 9})
	require.ErrorIs(t, err, errNoRegion)
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := newAnalyzer(testWindow(nil), model.Region{ID: 1})
	_, err := a.Analyze(ctx, Request{Outlet: outlet})
	require.ErrorIs(t, err, context.Canceled)
}

func TestClosestStandard(t *testing.T) {
	a := &Analyzer{Settings: DefaultSettings()}
	assert.Equal(t, 2.0, a.closestStandard(1.5))
	assert.Equal(t, 25.0, a.closestStandard(50))
	assert.Equal(t, 500.0, a.closestStandard(10000))
	assert.Equal(t, 2.0, a.closestStandard(3.5))
	assert.False(t, math.IsNaN(a.closestStandard(7.5)))
}

func TestLayerNames(t *testing.T) {
	assert.Equal(t, "rain_100", RainLayer(100))
	assert.Equal(t, "flow_2.5", FlowLayer(2.5))
}
