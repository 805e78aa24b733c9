package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/verte-zerg/hydrobasin/internal/frequency"
	"github.com/verte-zerg/hydrobasin/internal/model"
	"github.com/verte-zerg/hydrobasin/internal/rational"
)

const missing = "N/A"

func num(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func optional(v *float64, prec int) string {
	if v == nil {
		return missing
	}
	return num(*v, prec)
}

func period(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

// tableWriter writes titled sections, stopping at the first error.
type tableWriter struct {
	w     io.Writer
	err   error
	first bool
	// plotWidth is the plot width in cells; zero fits the terminal.
	plotWidth int
}

func newTableWriter(w io.Writer) *tableWriter {
	return &tableWriter{w: w, first: true}
}

func (t *tableWriter) section(title string, headers []string, rows [][]string) {
	if t.err != nil || len(rows) == 0 {
		return
	}
	var b strings.Builder
	if !t.first {
		b.WriteByte('\n')
	}
	t.first = false
	if title != "" {
		b.WriteString(title)
		b.WriteByte('\n')
	}
	for _, line := range newTable(headers, rows).lines() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	_, t.err = io.WriteString(t.w, b.String())
}

func (t *tableWriter) plot(c Curve) {
	if t.err != nil || len(c.X) < 2 {
		return
	}
	if !t.first {
		if _, t.err = io.WriteString(t.w, "\n"); t.err != nil {
			return
		}
	}
	t.first = false
	t.err = plotCurve(t.w, c, t.plotWidth, 0)
}

func (t *tableWriter) lines(title string, lines []string) {
	rows := make([][]string, len(lines))
	for i, l := range lines {
		rows[i] = []string{"- " + l}
	}
	t.section(title, nil, rows)
}

func basinRows(d BasinDocument) [][]string {
	p := d.Properties
	return [][]string{
		{"Outlet", fmt.Sprintf("%s, %s", num(d.Outlet.X, 2), num(d.Outlet.Y, 2))},
		{"Area (km²)", num(p.AreaKm2, 3)},
		{"Cells", strconv.Itoa(p.CellCount)},
		{"Min elevation (m)", num(p.MinElevation, 2)},
		{"Max elevation (m)", num(p.MaxElevation, 2)},
		{"Max distance (m)", num(p.MaxDistanceM, 0)},
		{"Flow path length (m)", num(p.FlowPathLength, 0)},
		{"Flow path drop (m)", num(p.FlowPathDrop, 2)},
		{"Slope (m/m)", num(p.Slope, 4)},
		{"Tc (h, " + d.FlowPath.TcFormula + ")", num(p.TcHours, 3)},
		{"Hypsometric integral", num(p.Hypsometric, 3)},
	}
}

func layerRows(means map[string]float64) [][]string {
	names := make([]string, 0, len(means))
	for name := range means {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{name, num(means[name], 3)}
	}
	return rows
}

// WriteTable implements Tabular.
func (d BasinDocument) WriteTable(w io.Writer) error {
	t := newTableWriter(w)
	t.section("Basin", nil, basinRows(d))
	t.section("Catchment layer means", []string{"Layer", "Mean"}, layerRows(d.LayerMeans))
	d.plots(t)
	t.lines("Warnings", d.Warnings)
	return t.err
}

// plots draws the elevation profile, when included, and the hypsometric
// curve.
func (d BasinDocument) plots(t *tableWriter) {
	if n := len(d.Profile); n > 1 {
		c := Curve{Title: "Flow path profile", XLabel: "distance (m)", YLabel: "elevation (m)"}
		c.X = make([]float64, n)
		c.Y = make([]float64, n)
		for i, s := range d.Profile {
			c.X[i], c.Y[i] = s.Distance, s.Elevation
		}
		t.plot(c)
	}
	h := d.Hypsometry
	t.plot(Curve{
		Title:  "Hypsometric curve",
		XLabel: "area fraction",
		YLabel: "elevation (m)",
		X:      h.AreaFraction,
		Y:      h.Elevations,
	})
}

func fitRows(kind string, params []frequency.Param, sse float64, fallback bool) [][]string {
	rows := [][]string{{"Distribution", kind}}
	for _, p := range params {
		rows = append(rows, []string{p.Name, num(p.Value, 4)})
	}
	rows = append(rows, []string{"SSE", strconv.FormatFloat(sse, 'g', 4, 64)})
	if fallback {
		rows = append(rows, []string{"Search", "grid fallback"})
	}
	return rows
}

// WriteTable implements Tabular.
func (d AnalysisDocument) WriteTable(w io.Writer) error {
	t := newTableWriter(w)
	region := [][]string{
		{"Region", strconv.FormatInt(d.Region.ID, 10)},
		{"TMCO (years)", period(d.Region.Tmco)},
		{"Beta", num(d.Region.BetaMedio, 3)},
		{"Method", string(d.Method)},
		{"Run", d.RunID},
	}
	t.section("Analysis", nil, region)
	t.section("Basin", nil, basinRows(d.Basin))
	d.Basin.plots(t)

	if len(d.Rational) > 0 {
		rows := make([][]string, len(d.Rational))
		for i, r := range d.Rational {
			rows[i] = []string{
				period(r.T), num(r.RainfallMm, 2), num(r.Result.IntensityMmH, 2),
				num(r.Result.CorrectedP0, 2), num(r.Result.RunoffCoeff, 3), num(r.Result.FlowM3s, 2),
			}
		}
		t.section("Rational method",
			[]string{"T (years)", "P (mm)", "I (mm/h)", "P0 (mm)", "C", "Q (m³/s)"},
			rows)
	}
	if f := d.FlowFit; f != nil {
		t.section("Flow fit", nil, fitRows(string(f.Kind), f.Params, f.SSE, f.Fallback))
	}
	if f := d.RainfallFit; f != nil {
		t.section("Rainfall fit", nil, fitRows(string(f.Kind), f.Params, f.SSE, f.Fallback))
	}

	rows := make([][]string, len(d.Quantiles))
	for i, q := range d.Quantiles {
		label := period(q.T)
		if q.Extrapolated {
			label += "*"
		}
		rows[i] = []string{label, optional(q.Rainfall, 2), optional(q.Flow, 2), optional(q.P0Coeff, 3)}
	}
	t.section("Quantiles (* extrapolated)",
		[]string{"T (years)", "P24max (mm)", "Q (m³/s)", "P0 coeff"},
		rows)

	if d.ReturnPeriod > 1 {
		user := [][]string{
			{"Rainfall (mm)", optional(d.UserRainfall, 2)},
			{"Flow (m³/s)", optional(d.UserFlow, 2)},
		}
		if d.InterpolatedRainfall != nil {
			user = append(user, []string{"Interpolated rainfall (mm)", num(*d.InterpolatedRainfall, 2)})
		}
		if r := d.UserRational; r != nil {
			user = append(user, rationalRows(*r)...)
		}
		t.section("T = "+period(d.ReturnPeriod)+" years", nil, user)
	}
	if d.Region.Tmco > 1 {
		t.section("", nil, [][]string{{"Ordinary maximum flow (m³/s, T = " + period(d.Region.Tmco) + ")", optional(d.TmcoFlow, 2)}})
	}
	t.lines("Warnings", d.Basin.Warnings)
	return t.err
}

func rationalRows(r rational.Result) [][]string {
	return [][]string{
		{"Area reduction factor", num(r.AreaFactor, 4)},
		{"Corrected rainfall (mm)", num(r.CorrectedRainfall, 2)},
		{"Intensity factor", num(r.IntensityFactor, 4)},
		{"Intensity (mm/h)", num(r.IntensityMmH, 3)},
		{"Corrected P0 (mm)", num(r.CorrectedP0, 2)},
		{"Runoff coefficient", num(r.RunoffCoeff, 4)},
		{"Uniformity coefficient", num(r.UniformityCoeff, 4)},
		{"Rational flow (m³/s)", num(r.FlowM3s, 2)},
	}
}

// RationalDocument is the output of a standalone Rational Method estimate.
type RationalDocument struct {
	Input  rational.Input  `json:"input" yaml:"input"`
	Result rational.Result `json:"result" yaml:"result"`
}

// WriteTable implements Tabular.
func (d RationalDocument) WriteTable(w io.Writer) error {
	t := newTableWriter(w)
	t.section("Rational method", nil, rationalRows(d.Result))
	return t.err
}

// FitDocument is the output of a standalone curve fit.
type FitDocument struct {
	Kind      frequency.Kind          `json:"kind" yaml:"kind"`
	Params    []frequency.Param       `json:"params" yaml:"params"`
	SSE       float64                 `json:"sse" yaml:"sse"`
	Fallback  bool                    `json:"fallback" yaml:"fallback"`
	Samples   []model.FrequencySample `json:"samples" yaml:"samples"`
	Quantiles []model.QuantileRow     `json:"quantiles" yaml:"quantiles"`
	Warnings  []string                `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// NewFitDocument evaluates res at periods. Periods beyond the largest
// sample are flagged as extrapolated; non-converging evaluations become
// warnings.
func NewFitDocument(res frequency.Result, samples []model.FrequencySample, periods []float64) FitDocument {
	doc := FitDocument{
		Kind:     res.Distribution.Kind(),
		Params:   res.Distribution.Params(),
		SSE:      res.SSE,
		Fallback: res.Fallback,
		Samples:  samples,
	}
	var maxT float64
	for _, s := range samples {
		if s.T > maxT {
			maxT = s.T
		}
	}
	for _, t := range periods {
		row := model.QuantileRow{T: t, Extrapolated: t > maxT}
		if v, ok := res.Distribution.Quantile(t); ok {
			row.Flow = &v
		} else {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("quantile for T=%s did not converge", period(t)))
		}
		doc.Quantiles = append(doc.Quantiles, row)
	}
	return doc
}

// WriteTable implements Tabular.
func (d FitDocument) WriteTable(w io.Writer) error {
	t := newTableWriter(w)
	t.section("Fit", nil, fitRows(string(d.Kind), d.Params, d.SSE, d.Fallback))
	rows := make([][]string, len(d.Quantiles))
	for i, q := range d.Quantiles {
		label := period(q.T)
		if q.Extrapolated {
			label += "*"
		}
		rows[i] = []string{label, optional(q.Flow, 3)}
	}
	t.section("Quantiles (* extrapolated)", []string{"T (years)", "Value"}, rows)
	t.lines("Warnings", d.Warnings)
	return t.err
}

// RegionList is the output of `regions list`.
type RegionList []RegionSummary

// WriteTable implements Tabular.
func (l RegionList) WriteTable(w io.Writer) error {
	rows := make([][]string, len(l))
	for i, r := range l {
		dist := r.Distribution
		if dist == "" {
			dist = "-"
		}
		rows[i] = []string{
			strconv.FormatInt(r.ID, 10), r.Name, period(r.Tmco), num(r.BetaMedio, 3), dist,
			strconv.Itoa(len(r.P0Coeffs)),
		}
	}
	t := newTableWriter(w)
	t.section("", []string{"ID", "Name", "TMCO", "Beta", "Law", "P0 coeffs"}, rows)
	return t.err
}

// SampleList is a list of (T, value) pairs, such as interpolated rainfall.
type SampleList []model.FrequencySample

// WriteTable implements Tabular.
func (l SampleList) WriteTable(w io.Writer) error {
	rows := make([][]string, len(l))
	for i, s := range l {
		rows[i] = []string{period(s.T), num(s.Value, 3)}
	}
	t := newTableWriter(w)
	t.section("", []string{"T (years)", "Value"}, rows)
	return t.err
}
