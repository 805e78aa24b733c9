package report

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"

	"github.com/verte-zerg/hydrobasin/internal/basin"
	"github.com/verte-zerg/hydrobasin/internal/catchment"
	"github.com/verte-zerg/hydrobasin/internal/flowpath"
	"github.com/verte-zerg/hydrobasin/internal/model"
	"github.com/verte-zerg/hydrobasin/internal/rational"
)

// Geometries are the GeoJSON outputs of a delineation. The display
// variants are absent when no display CRS is configured.
type Geometries struct {
	Catchment        *geojson.Geometry `json:"catchment" yaml:"catchment"`
	CatchmentDisplay *geojson.Geometry `json:"catchment_display,omitempty" yaml:"catchment_display,omitempty"`
	FlowPath         *geojson.Geometry `json:"flow_path,omitempty" yaml:"flow_path,omitempty"`
	FlowPathDisplay  *geojson.Geometry `json:"flow_path_display,omitempty" yaml:"flow_path_display,omitempty"`
	OutletDisplay    *geojson.Geometry `json:"outlet_display,omitempty" yaml:"outlet_display,omitempty"`
}

// BasinDocument is the rendering of a delineation.
type BasinDocument struct {
	Outlet     model.Coord           `json:"outlet" yaml:"outlet"`
	Properties model.BasinProperties `json:"properties" yaml:"properties"`
	FlowPath   flowpath.Metrics      `json:"flow_path" yaml:"flow_path"`
	Hypsometry catchment.Hypsometry  `json:"hypsometry" yaml:"hypsometry"`
	LayerMeans map[string]float64    `json:"layer_means,omitempty" yaml:"layer_means,omitempty"`
	Profile    flowpath.Profile      `json:"profile,omitempty" yaml:"profile,omitempty"`
	Geometry   *Geometries           `json:"geometry,omitempty" yaml:"geometry,omitempty"`
	Warnings   []string              `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Options selects the optional parts of a document.
type Options struct {
	Profile  bool
	Geometry bool
}

// FromBasin builds the document of a delineation.
func FromBasin(b *basin.Basin, opts Options) (BasinDocument, error) {
	doc := BasinDocument{
		Outlet:     b.Outlet,
		Properties: b.Properties,
		FlowPath:   b.Metrics,
		Hypsometry: b.Hypsometry,
		LayerMeans: b.LayerMeans,
		Warnings:   b.Warnings,
	}
	if opts.Profile {
		doc.Profile = b.Profile
	}
	if opts.Geometry {
		g, err := geometries(b)
		if err != nil {
			return BasinDocument{}, err
		}
		doc.Geometry = g
	}
	return doc, nil
}

func geometries(b *basin.Basin) (*Geometries, error) {
	var g Geometries
	var err error
	if g.Catchment, err = encode(b.Catchment.Native); err != nil {
		return nil, err
	}
	if b.Catchment.Display != nil {
		if g.CatchmentDisplay, err = encode(b.Catchment.Display); err != nil {
			return nil, err
		}
	}
	if len(b.FlowPath.Coords) > 1 {
		if g.FlowPath, err = encode(b.FlowPath.Line()); err != nil {
			return nil, err
		}
	}
	if b.Display.FlowPath != nil {
		if g.FlowPathDisplay, err = encode(b.Display.FlowPath); err != nil {
			return nil, err
		}
	}
	if b.Display.Outlet != nil {
		if g.OutletDisplay, err = encode(b.Display.Outlet); err != nil {
			return nil, err
		}
	}
	return &g, nil
}

func encode(g geom.Geom) (*geojson.Geometry, error) {
	out, err := geojson.ToGeoJSON(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T as GeoJSON: %w", g, err)
	}
	return out, nil
}

// AnalysisDocument is the rendering of a full analysis.
type AnalysisDocument struct {
	RunID  string        `json:"run_id" yaml:"run_id"`
	Region RegionSummary `json:"region" yaml:"region"`
	Method basin.Method  `json:"method" yaml:"method"`
	Basin  BasinDocument `json:"basin" yaml:"basin"`

	Rational    []basin.RationalRow `json:"rational,omitempty" yaml:"rational,omitempty"`
	RainfallFit *basin.Fit          `json:"rainfall_fit,omitempty" yaml:"rainfall_fit,omitempty"`
	FlowFit     *basin.Fit          `json:"flow_fit,omitempty" yaml:"flow_fit,omitempty"`
	Quantiles   []model.QuantileRow `json:"quantiles" yaml:"quantiles"`

	ReturnPeriod         float64          `json:"return_period,omitempty" yaml:"return_period,omitempty"`
	UserRainfall         *float64         `json:"rainfall_mm_at_t,omitempty" yaml:"rainfall_mm_at_t,omitempty"`
	UserFlow             *float64         `json:"flow_m3s_at_t,omitempty" yaml:"flow_m3s_at_t,omitempty"`
	InterpolatedRainfall *float64         `json:"interpolated_rainfall_mm,omitempty" yaml:"interpolated_rainfall_mm,omitempty"`
	UserRational         *rational.Result `json:"rational_at_t,omitempty" yaml:"rational_at_t,omitempty"`
	TmcoFlow             *float64         `json:"flow_m3s_at_tmco,omitempty" yaml:"flow_m3s_at_tmco,omitempty"`
}

// RegionSummary is a region without its boundary.
type RegionSummary struct {
	ID           int64           `json:"id" yaml:"id"`
	Name         string          `json:"name,omitempty" yaml:"name,omitempty"`
	Tmco         float64         `json:"tmco" yaml:"tmco"`
	BetaMedio    float64         `json:"beta_medio" yaml:"beta_medio"`
	Distribution string          `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	IC50         *float64        `json:"ic50,omitempty" yaml:"ic50,omitempty"`
	IC67         *float64        `json:"ic67,omitempty" yaml:"ic67,omitempty"`
	IC90         *float64        `json:"ic90,omitempty" yaml:"ic90,omitempty"`
	P0Coeffs     map[int]float64 `json:"p0_coeffs,omitempty" yaml:"p0_coeffs,omitempty"`
}

// Summarize drops the boundary of r.
func Summarize(r model.Region) RegionSummary {
	return RegionSummary{
		ID:           r.ID,
		Name:         r.Name,
		Tmco:         r.Tmco,
		BetaMedio:    r.BetaMedio,
		Distribution: r.Distribution,
		IC50:         r.IC50,
		IC67:         r.IC67,
		IC90:         r.IC90,
		P0Coeffs:     r.P0Coeffs,
	}
}

// FromReport builds the document of an analysis. Warnings of every stage
// are merged into the basin section.
func FromReport(rep *basin.Report, opts Options) (AnalysisDocument, error) {
	b, err := FromBasin(rep.Basin, opts)
	if err != nil {
		return AnalysisDocument{}, err
	}
	b.Warnings = rep.Warnings
	return AnalysisDocument{
		RunID:                rep.RunID,
		Region:               Summarize(rep.Region),
		Method:               rep.Method,
		Basin:                b,
		Rational:             rep.Rational,
		RainfallFit:          rep.RainfallFit,
		FlowFit:              rep.FlowFit,
		Quantiles:            rep.Quantiles,
		ReturnPeriod:         rep.ReturnPeriod,
		UserRainfall:         rep.UserRainfall,
		UserFlow:             rep.UserFlow,
		InterpolatedRainfall: rep.InterpolatedRainfall,
		UserRational:         rep.UserRational,
		TmcoFlow:             rep.TmcoFlow,
	}, nil
}
