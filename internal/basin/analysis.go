package basin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/verte-zerg/hydrobasin/internal/frequency"
	"github.com/verte-zerg/hydrobasin/internal/logging"
	"github.com/verte-zerg/hydrobasin/internal/model"
	"github.com/verte-zerg/hydrobasin/internal/rational"
)

// minFitPoints is the number of (T, value) pairs below which no curve is
// fitted.
const minFitPoints = 3

// tcevRegions use the TCEV law when the catalogue does not name one.
var tcevRegions = map[int64]bool{72: true, 73: true, 84: true, 821: true, 822: true}

// Method names how the fitting points were obtained.
type Method string

const (
	MethodRational  Method = "rational"
	MethodQuantiles Method = "quantiles"
)

// Request is one analysis.
type Request struct {
	Outlet model.Coord
	// ReturnPeriod is the design period of interest; 0 skips the per-period
	// outputs.
	ReturnPeriod float64
	// RegionID selects the region explicitly; 0 looks it up by location.
	RegionID int64
}

// RationalRow is one Rational Method estimate.
type RationalRow struct {
	T          float64         `json:"t" yaml:"t"`
	RainfallMm float64         `json:"rainfall_mm" yaml:"rainfall_mm"`
	Result     rational.Result `json:"result" yaml:"result"`
}

// Fit is a fitted curve and the points behind it.
type Fit struct {
	Kind     frequency.Kind          `json:"kind" yaml:"kind"`
	Params   []frequency.Param       `json:"params" yaml:"params"`
	SSE      float64                 `json:"sse" yaml:"sse"`
	Fallback bool                    `json:"fallback" yaml:"fallback"`
	Points   []model.FrequencySample `json:"points" yaml:"points"`
	dist     frequency.Distribution
}

// Quantile evaluates the fitted curve.
func (f *Fit) Quantile(t float64) (float64, bool) {
	if f == nil || f.dist == nil {
		return 0, false
	}
	return f.dist.Quantile(t)
}

// Report is the complete result of Analyze.
type Report struct {
	RunID  string
	Region model.Region
	Basin  *Basin
	Method Method

	Rational    []RationalRow
	RainfallFit *Fit
	FlowFit     *Fit
	Quantiles   []model.QuantileRow
	// MaxFittedT is the largest period behind a fitted curve; table rows
	// beyond it are extrapolated.
	MaxFittedT   float64
	ReturnPeriod float64

	UserRainfall *float64
	UserFlow     *float64
	// InterpolatedRainfall is the catchment rainfall at ReturnPeriod read
	// off the standard-period means. Rational mode only.
	InterpolatedRainfall *float64
	UserRational         *rational.Result
	TmcoFlow             *float64

	Warnings []string
}

func (r *Report) warn(log *slog.Logger, msg string, args ...any) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	log.Warn(msg)
	r.Warnings = append(r.Warnings, msg)
}

// Analyze resolves the region, delineates the basin and estimates its
// design rainfall and flows.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Report, error) {
	if logging.RunID(ctx) == "" {
		ctx = logging.NewRun(ctx)
	}
	ctx = logging.WithOutlet(ctx, fmt.Sprintf("%.2f,%.2f", req.Outlet.X, req.Outlet.Y))
	log := a.logger(ctx)
	rep := &Report{RunID: logging.RunID(ctx), ReturnPeriod: req.ReturnPeriod}

	region, err := a.region(ctx, req)
	if err != nil {
		return nil, err
	}
	rep.Region = region
	log.Info("region resolved", slog.Int64("region", region.ID))

	b, err := a.Delineate(ctx, req.Outlet)
	if err != nil {
		return nil, err
	}
	rep.Basin = b
	rep.Warnings = append(rep.Warnings, b.Warnings...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rain, flow []model.FrequencySample
	if b.Properties.AreaKm2 < a.rationalMaxArea() {
		rep.Method = MethodRational
		rain, flow = a.rationalPoints(log, rep)
	} else {
		rep.Method = MethodQuantiles
		rain, flow = a.outletPoints(b)
	}
	log.Info("fitting points collected",
		slog.String("method", string(rep.Method)),
		slog.Int("rain", len(rain)),
		slog.Int("flow", len(flow)))

	kind := regionKind(region)
	rep.FlowFit = a.fit(log, rep, kind, "flow", flow)
	rep.RainfallFit = a.fit(log, rep, kind, "rainfall", rain)
	for _, f := range []*Fit{rep.FlowFit, rep.RainfallFit} {
		if f == nil {
			continue
		}
		for _, s := range f.Points {
			rep.MaxFittedT = math.Max(rep.MaxFittedT, s.T)
		}
	}

	rep.Quantiles = a.quantileTable(log, rep)
	if req.ReturnPeriod > 1 {
		a.userPeriod(log, rep)
	}
	if region.Tmco > 1 {
		if v, ok := rep.FlowFit.Quantile(region.Tmco); ok {
			rep.TmcoFlow = &v
		}
	}
	log.Info("analysis complete", slog.Int("warnings", len(rep.Warnings)))
	return rep, nil
}

func (a *Analyzer) rationalMaxArea() float64 {
	if a.Settings.RationalMaxArea > 0 {
		return a.Settings.RationalMaxArea
	}
	return DefaultSettings().RationalMaxArea
}

func (a *Analyzer) standardPeriods() []float64 {
	if len(a.Settings.StandardPeriods) > 0 {
		return a.Settings.StandardPeriods
	}
	return DefaultSettings().StandardPeriods
}

func (a *Analyzer) region(ctx context.Context, req Request) (model.Region, error) {
	if a.Regions == nil {
		a.logger(ctx).Warn("no region catalogue configured, using neutral coefficients")
		return model.Region{ID: req.RegionID, BetaMedio: 1}, nil
	}
	if req.RegionID != 0 {
		r, err := a.Regions.GetRegion(ctx, req.RegionID)
		if err != nil {
			return model.Region{}, fmt.Errorf("failed to load region %d: %w", req.RegionID, err)
		}
		return r, nil
	}
	r, err := a.Regions.FindRegionAt(ctx, req.Outlet)
	if err != nil {
		return model.Region{}, fmt.Errorf("failed to locate region of outlet: %w", err)
	}
	return r, nil
}

func regionKind(r model.Region) frequency.Kind {
	if k, err := frequency.ParseKind(r.Distribution); err == nil {
		return k
	}
	if tcevRegions[r.ID] {
		return frequency.KindTCEV
	}
	return frequency.KindGEV
}

// periodCorrector returns the P0 corrector of a standard period, or 1.
func periodCorrector(r model.Region, t float64) float64 {
	if t != math.Trunc(t) {
		return 1
	}
	if v, ok := r.P0Coeff(int(t)); ok {
		return v
	}
	return 1
}

// catchmentRain returns the catchment mean rainfall of every standard
// period with a rainfall layer.
func (a *Analyzer) catchmentRain(b *Basin) []model.FrequencySample {
	var rain []model.FrequencySample
	for _, t := range a.standardPeriods() {
		if p, ok := b.LayerMeans[RainLayer(t)]; ok {
			rain = append(rain, model.FrequencySample{T: t, Value: p})
		}
	}
	return rain
}

// rationalInput assembles the basin terms of a Rational Method estimate.
func rationalInput(rep *Report, rainfall, corrector float64) (rational.Input, bool) {
	b := rep.Basin
	i1id, okI := b.LayerMeans[LayerI1Id]
	p0, okP := b.LayerMeans[LayerP0]
	if !okI || !okP {
		return rational.Input{}, false
	}
	return rational.Input{
		AreaKm2:         b.Properties.AreaKm2,
		TcHours:         b.Properties.TcHours,
		I1Id:            i1id,
		P0:              p0,
		RegionCorrector: rep.Region.BetaMedio,
		PeriodCorrector: corrector,
		RainfallMm:      rainfall,
	}, true
}

// rationalPoints estimates a flow for every standard period with a
// catchment mean rainfall. Periods whose estimate fails are dropped from
// both series.
func (a *Analyzer) rationalPoints(log *slog.Logger, rep *Report) (rain, flow []model.FrequencySample) {
	for _, s := range a.catchmentRain(rep.Basin) {
		in, ok := rationalInput(rep, s.Value, periodCorrector(rep.Region, s.T))
		if !ok {
			rep.warn(log, "layers %q and %q are required for the rational method", LayerI1Id, LayerP0)
			return nil, nil
		}
		res, err := rational.Estimate(in)
		if err != nil {
			rep.warn(log, "rational method failed for T=%g: %v", s.T, err)
			continue
		}
		rep.Rational = append(rep.Rational, RationalRow{T: s.T, RainfallMm: s.Value, Result: res})
		rain = append(rain, s)
		flow = append(flow, model.FrequencySample{T: s.T, Value: res.FlowM3s})
	}
	return rain, flow
}

// outletPoints reads the regional rain and flow grids under the outlet and
// keeps the periods where both are present.
func (a *Analyzer) outletPoints(b *Basin) (rain, flow []model.FrequencySample) {
	for _, t := range a.standardPeriods() {
		q, okQ := b.SampleOutlet(FlowLayer(t))
		p, okP := b.SampleOutlet(RainLayer(t))
		if !okQ || !okP {
			continue
		}
		flow = append(flow, model.FrequencySample{T: t, Value: q})
		rain = append(rain, model.FrequencySample{T: t, Value: p})
	}
	return rain, flow
}

func (a *Analyzer) fit(log *slog.Logger, rep *Report, kind frequency.Kind, what string, points []model.FrequencySample) *Fit {
	if len(points) < minFitPoints {
		rep.warn(log, "not enough %s data for a reliable curve fit (%d points)", what, len(points))
		return nil
	}
	res, err := frequency.Fit(kind, points)
	if errors.Is(err, frequency.ErrInsufficientSamples) {
		rep.warn(log, "not enough %s data for a %s fit (%d points)", what, kind, len(points))
		return nil
	}
	if err != nil {
		rep.warn(log, "%s fit failed: %v", what, err)
		return nil
	}
	if res.Fallback {
		rep.warn(log, "%s %s fit used the grid search fallback", what, kind)
	}
	log.Debug("curve fitted",
		slog.String("series", what),
		slog.String("kind", string(kind)),
		slog.Float64("sse", res.SSE))
	return &Fit{
		Kind:     kind,
		Params:   res.Distribution.Params(),
		SSE:      res.SSE,
		Fallback: res.Fallback,
		Points:   points,
		dist:     res.Distribution,
	}
}

// tablePeriods merges the standard, extrapolation, user and tmco periods.
func (a *Analyzer) tablePeriods(rep *Report) []float64 {
	ext := a.Settings.ExtrapolationPeriods
	if ext == nil {
		ext = DefaultSettings().ExtrapolationPeriods
	}
	seen := map[float64]bool{}
	var out []float64
	add := func(t float64) {
		if t > 1 && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range a.standardPeriods() {
		add(t)
	}
	for _, t := range ext {
		add(t)
	}
	add(rep.ReturnPeriod)
	add(rep.Region.Tmco)
	sort.Float64s(out)
	return out
}

// closestStandard returns the standard period nearest to t, the smaller
// one on ties.
func (a *Analyzer) closestStandard(t float64) float64 {
	periods := append([]float64(nil), a.standardPeriods()...)
	sort.Float64s(periods)
	best := periods[0]
	for _, p := range periods[1:] {
		if math.Abs(p-t) < math.Abs(best-t) {
			best = p
		}
	}
	return best
}

func (a *Analyzer) quantileTable(log *slog.Logger, rep *Report) []model.QuantileRow {
	var rows []model.QuantileRow
	for _, t := range a.tablePeriods(rep) {
		row := model.QuantileRow{T: t, Extrapolated: rep.MaxFittedT > 0 && t > rep.MaxFittedT}
		row.Rainfall = a.evaluate(log, rep, rep.RainfallFit, "rainfall", t)
		row.Flow = a.evaluate(log, rep, rep.FlowFit, "flow", t)
		std := a.closestStandard(t)
		if v, ok := rep.Region.P0Coeff(int(std)); ok && std == math.Trunc(std) {
			row.P0Coeff = &v
		}
		rows = append(rows, row)
	}
	return rows
}

func (a *Analyzer) evaluate(log *slog.Logger, rep *Report, f *Fit, what string, t float64) *float64 {
	if f == nil {
		return nil
	}
	v, ok := f.Quantile(t)
	if !ok {
		rep.warn(log, "%s quantile for T=%g did not converge", what, t)
		return nil
	}
	return &v
}

func (a *Analyzer) userPeriod(log *slog.Logger, rep *Report) {
	t := rep.ReturnPeriod
	if v, ok := rep.FlowFit.Quantile(t); ok {
		rep.UserFlow = &v
	}
	if v, ok := rep.RainfallFit.Quantile(t); ok {
		rep.UserRainfall = &v
	}
	if rep.Method != MethodRational {
		return
	}

	p, err := frequency.InterpolateGumbel(t, a.catchmentRain(rep.Basin))
	if err != nil {
		rep.warn(log, "could not interpolate rainfall for T=%g: %v", t, err)
		return
	}
	rep.InterpolatedRainfall = &p

	in, ok := rationalInput(rep, p, a.userCorrector(rep.Region, t))
	if !ok {
		return
	}
	res, err := rational.Estimate(in)
	if err != nil {
		rep.warn(log, "rational method failed for T=%g: %v", t, err)
		return
	}
	rep.UserRational = &res
}

// userCorrector applies the period corrector only to standard periods.
func (a *Analyzer) userCorrector(r model.Region, t float64) float64 {
	for _, s := range a.standardPeriods() {
		if s == t {
			return periodCorrector(r, t)
		}
	}
	return 1
}
