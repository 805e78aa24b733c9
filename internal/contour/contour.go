// Package contour turns catchment masks into polygons and reprojects them.
package contour

import (
	"errors"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/verte-zerg/hydrobasin/internal/catchment"
	"github.com/verte-zerg/hydrobasin/internal/raster"
)

// MemberValue is the mask value of catchment cells.
const MemberValue = 1

// ErrEmptyGeometry is returned when a mask yields no member polygon.
var ErrEmptyGeometry = errors.New("catchment mask produced no geometry")

// Feature is one polygon traced from a region of equal mask value.
type Feature struct {
	Value   int
	Polygon geom.Polygon
}

// Service is the polygonize and reprojection backend.
type Service interface {
	Polygonize(m Mask) ([]Feature, error)
	Reproject(g geom.Geom, fromCRS, toCRS string) (geom.Geom, error)
}

// GridService traces polygons on the cell lattice and reprojects with
// PROJ.4 definitions.
type GridService struct{}

// Polygonize implements Service.
func (GridService) Polygonize(m Mask) ([]Feature, error) {
	return polygonize(m)
}

// Reproject implements Service. Equal CRS strings return g unchanged.
func (GridService) Reproject(g geom.Geom, fromCRS, toCRS string) (geom.Geom, error) {
	if fromCRS == toCRS {
		return g, nil
	}
	src, err := proj.Parse(fromCRS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source CRS: %w", err)
	}
	dst, err := proj.Parse(toCRS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse target CRS: %w", err)
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create transform: %w", err)
	}
	out, err := g.Transform(t)
	if err != nil {
		return nil, fmt.Errorf("failed to reproject geometry: %w", err)
	}
	return out, nil
}

// MaskFromState builds the membership mask of a delineation over grid gt.
func MaskFromState(st *catchment.State, gt raster.GeoTransform) Mask {
	return Mask{Width: st.Width, Height: st.Height, Cells: st.Mask(), Transform: gt}
}

// Catchment holds the catchment outline in both CRSs.
type Catchment struct {
	Native  geom.MultiPolygon
	Display geom.MultiPolygon
}

// Extractor polygonizes masks, keeps member polygons and reprojects them.
type Extractor struct {
	Service    Service
	NativeCRS  string
	DisplayCRS string
}

// Extract returns the member polygons of m. Display is left nil when no
// display CRS is configured.
func (e Extractor) Extract(m Mask) (Catchment, error) {
	if m.Empty() {
		return Catchment{}, ErrEmptyGeometry
	}
	features, err := e.Service.Polygonize(m)
	if err != nil {
		return Catchment{}, fmt.Errorf("failed to polygonize mask: %w", err)
	}
	var native geom.MultiPolygon
	for _, f := range features {
		if f.Value == MemberValue {
			native = append(native, f.Polygon)
		}
	}
	if len(native) == 0 {
		return Catchment{}, ErrEmptyGeometry
	}
	out := Catchment{Native: native}
	if e.DisplayCRS == "" {
		return out, nil
	}
	projected, err := e.Service.Reproject(native, e.NativeCRS, e.DisplayCRS)
	if err != nil {
		return Catchment{}, err
	}
	display, err := asMultiPolygon(projected)
	if err != nil {
		return Catchment{}, err
	}
	out.Display = display
	return out, nil
}

// ToDisplay reprojects any geometry from the native to the display CRS.
func (e Extractor) ToDisplay(g geom.Geom) (geom.Geom, error) {
	if e.DisplayCRS == "" {
		return g, nil
	}
	return e.Service.Reproject(g, e.NativeCRS, e.DisplayCRS)
}

func asMultiPolygon(g geom.Geom) (geom.MultiPolygon, error) {
	switch v := g.(type) {
	case geom.MultiPolygon:
		return v, nil
	case *geom.MultiPolygon:
		return *v, nil
	case geom.Polygon:
		return geom.MultiPolygon{v}, nil
	}
	return nil, fmt.Errorf("unexpected geometry type %T", g)
}
