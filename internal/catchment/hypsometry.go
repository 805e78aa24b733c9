package catchment

import (
	"sort"

	"gonum.org/v1/gonum/integrate"

	"github.com/verte-zerg/hydrobasin/internal/raster"
)

// Hypsometry is the area-elevation distribution of a catchment.
type Hypsometry struct {
	// Elevations are sorted from highest to lowest.
	Elevations []float64 `json:"elevations" yaml:"elevations"`
	// AreaFraction[i] is the share of the catchment at or above Elevations[i].
	AreaFraction []float64 `json:"area_fraction" yaml:"area_fraction"`
	Integral     float64   `json:"integral" yaml:"integral"`
}

// HypsometricCurve builds the hypsometric curve of st over the elevation grid.
// Nodata cells are left out. The integral is zero for flat catchments.
func HypsometricCurve(elev *raster.Grid, st *State) Hypsometry {
	var values []float64
	for row := 0; row < st.Height; row++ {
		for col := 0; col < st.Width; col++ {
			if !st.Contains(row, col) {
				continue
			}
			if h := elev.At(row, col); !elev.IsNoData(h) {
				values = append(values, h)
			}
		}
	}
	if len(values) == 0 {
		return Hypsometry{}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))

	n := float64(len(values))
	fraction := make([]float64, len(values))
	for i := range values {
		fraction[i] = float64(i+1) / n
	}
	curve := Hypsometry{Elevations: values, AreaFraction: fraction}

	hi, lo := values[0], values[len(values)-1]
	if len(values) < 2 || hi == lo {
		return curve
	}
	// integrate.Trapezoidal needs ascending abscissae, so walk the curve
	// from the lowest elevation up.
	x := make([]float64, len(values))
	f := make([]float64, len(values))
	for i := range values {
		j := len(values) - 1 - i
		x[i] = (values[j] - lo) / (hi - lo)
		f[i] = fraction[j]
	}
	curve.Integral = integrate.Trapezoidal(x, f)
	return curve
}
