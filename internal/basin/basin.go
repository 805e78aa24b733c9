// Package basin runs the full analysis of one outlet: windowed read,
// delineation, outline, longest flow path and the design flow estimates.
package basin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ctessum/geom"

	"github.com/verte-zerg/hydrobasin/internal/catchment"
	"github.com/verte-zerg/hydrobasin/internal/contour"
	"github.com/verte-zerg/hydrobasin/internal/flowpath"
	"github.com/verte-zerg/hydrobasin/internal/logging"
	"github.com/verte-zerg/hydrobasin/internal/model"
	"github.com/verte-zerg/hydrobasin/internal/raster"
)

// Layer names looked up in the raster window.
const (
	LayerP0   = "p0"
	LayerI1Id = "i1id"
	// missingValue marks absent cells in the regional flow and rain grids.
	missingValue = 99999
)

// RainLayer returns the name of the daily rainfall layer for period t.
func RainLayer(t float64) string { return "rain_" + periodLabel(t) }

// FlowLayer returns the name of the regional flow layer for period t.
func FlowLayer(t float64) string { return "flow_" + periodLabel(t) }

func periodLabel(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

// Settings are the analysis parameters that do not change per request.
type Settings struct {
	BufferRadius         float64
	RationalMaxArea      float64
	StandardPeriods      []float64
	ExtrapolationPeriods []float64
	TcFormula            flowpath.TcFormula
	NativeCRS            string
	DisplayCRS           string
}

// DefaultSettings returns the settings used when the config is silent.
func DefaultSettings() Settings {
	return Settings{
		BufferRadius:         50000,
		RationalMaxArea:      50,
		StandardPeriods:      []float64{2, 5, 10, 25, 100, 500},
		ExtrapolationPeriods: []float64{1000, 5000, 10000},
		TcFormula:            flowpath.Temez{},
	}
}

// RegionSource resolves the hydrological region of an outlet.
type RegionSource interface {
	GetRegion(ctx context.Context, id int64) (model.Region, error)
	FindRegionAt(ctx context.Context, c model.Coord) (model.Region, error)
}

// Analyzer wires the raster provider, the region catalogue and the
// geometry backend.
type Analyzer struct {
	Windows  raster.WindowReader
	Regions  RegionSource
	Contours contour.Service
	Settings Settings
	Logger   *slog.Logger
}

// Display holds the point and line outputs in the display CRS.
type Display struct {
	Outlet   geom.Geom
	FlowPath geom.Geom
}

// Basin is the geometric part of an analysis.
type Basin struct {
	Outlet     model.Coord
	Properties model.BasinProperties
	Catchment  contour.Catchment
	FlowPath   flowpath.Path
	Profile    flowpath.Profile
	Metrics    flowpath.Metrics
	Hypsometry catchment.Hypsometry
	// LayerMeans is the catchment mean of every sampled layer.
	LayerMeans map[string]float64
	Display    Display
	Warnings   []string

	window *raster.Window
}

func (a *Analyzer) logger(ctx context.Context) *slog.Logger {
	return logging.LogWith(ctx, a.Logger)
}

func (a *Analyzer) extractor() contour.Extractor {
	svc := a.Contours
	if svc == nil {
		svc = contour.GridService{}
	}
	return contour.Extractor{Service: svc, NativeCRS: a.Settings.NativeCRS, DisplayCRS: a.Settings.DisplayCRS}
}

// Delineate reads the window around outlet and derives the catchment, its
// outline, its longest flow path and its properties.
func (a *Analyzer) Delineate(ctx context.Context, outlet model.Coord) (*Basin, error) {
	log := a.logger(ctx)
	if a.Windows == nil {
		return nil, errors.New("no raster window provider configured")
	}
	radius := a.Settings.BufferRadius
	if radius <= 0 {
		radius = DefaultSettings().BufferRadius
	}

	w, err := a.Windows.ReadWindow(ctx, outlet, radius)
	if err != nil {
		return nil, fmt.Errorf("failed to read raster window: %w", err)
	}
	log.Debug("window loaded",
		slog.Int("width", w.Elevation.Width),
		slog.Int("height", w.Elevation.Height),
		slog.Any("layers", w.LayerNames()))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st, err := catchment.DelineateAt(w, outlet, catchment.Config{Layers: catchmentLayers(w)})
	if err != nil {
		return nil, fmt.Errorf("failed to delineate catchment: %w", err)
	}
	log.Debug("catchment delineated",
		slog.Int("cells", st.CellCount),
		slog.Float64("area_km2", st.AreaKm2()))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := &Basin{Outlet: outlet, window: w, LayerMeans: map[string]float64{}}
	for name := range st.LayerValues {
		if mean, ok := st.LayerMean(name); ok {
			b.LayerMeans[name] = mean
		}
	}

	ext := a.extractor()
	b.Catchment, err = ext.Extract(contour.MaskFromState(st, w.Elevation.Transform))
	if err != nil {
		return nil, fmt.Errorf("failed to extract catchment outline: %w", err)
	}

	b.FlowPath, err = flowpath.Trace(w, st)
	if err != nil {
		return nil, fmt.Errorf("failed to trace flow path: %w", err)
	}
	b.Profile = flowpath.BuildProfile(w.Elevation, b.FlowPath.Coords)
	b.Metrics, err = b.Profile.Measure(a.Settings.TcFormula)
	if err != nil {
		return nil, fmt.Errorf("failed to measure flow path: %w", err)
	}
	log.Debug("flow path traced",
		slog.Int("cells", len(b.FlowPath.Cells)),
		slog.Float64("length_m", b.Metrics.LengthM),
		slog.Float64("tc_h", b.Metrics.TcHours))
	if b.Metrics.TcHours <= 0 {
		b.warn(log, "time of concentration is zero: the flow path is flat or a single cell")
	}

	b.Hypsometry = catchment.HypsometricCurve(w.Elevation, st)
	b.Properties = model.BasinProperties{
		AreaKm2:        st.AreaKm2(),
		CellCount:      st.CellCount,
		MinElevation:   st.MinElevation,
		MaxElevation:   st.MaxElevation,
		MaxDistanceM:   st.MaxDistance,
		FlowPathLength: b.Metrics.LengthM,
		FlowPathDrop:   b.Metrics.DropM,
		Slope:          b.Metrics.Slope,
		TcHours:        b.Metrics.TcHours,
		Farthest:       st.FarthestCoord,
		Hypsometric:    b.Hypsometry.Integral,
	}

	if b.Display.Outlet, err = ext.ToDisplay(geom.Point{X: outlet.X, Y: outlet.Y}); err != nil {
		return nil, fmt.Errorf("failed to reproject outlet: %w", err)
	}
	if len(b.FlowPath.Coords) > 1 {
		if b.Display.FlowPath, err = ext.ToDisplay(b.FlowPath.Line()); err != nil {
			return nil, fmt.Errorf("failed to reproject flow path: %w", err)
		}
	}
	return b, nil
}

// SampleOutlet returns the value of a window layer under the outlet. ok is
// false when the layer is absent, the cell is nodata, the value is not
// positive or it is the 99999 placeholder.
func (b *Basin) SampleOutlet(layer string) (float64, bool) {
	g, ok := b.window.Layer(layer)
	if !ok {
		return 0, false
	}
	v, ok := g.Sample(b.Outlet)
	if !ok || v <= 0 || v == missingValue {
		return 0, false
	}
	return v, true
}

func (b *Basin) warn(log *slog.Logger, msg string) {
	log.Warn(msg)
	b.Warnings = append(b.Warnings, msg)
}

// catchmentLayers lists the layers averaged over the catchment. Regional
// flow grids are only read at the outlet.
func catchmentLayers(w *raster.Window) []string {
	var out []string
	for _, name := range w.LayerNames() {
		if strings.HasPrefix(name, "flow_") {
			continue
		}
		out = append(out, name)
	}
	return out
}
