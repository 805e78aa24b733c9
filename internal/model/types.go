// Package model defines shared data structures.
package model

// Coord is a planar coordinate in the native CRS of the rasters.
type Coord struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// BasinProperties summarizes a delineated catchment.
type BasinProperties struct {
	AreaKm2        float64 `json:"area_km2" yaml:"area_km2"`
	CellCount      int     `json:"cell_count" yaml:"cell_count"`
	MinElevation   float64 `json:"min_elevation_m" yaml:"min_elevation_m"`
	MaxElevation   float64 `json:"max_elevation_m" yaml:"max_elevation_m"`
	MaxDistanceM   float64 `json:"max_distance_m" yaml:"max_distance_m"`
	FlowPathLength float64 `json:"flow_path_length_m" yaml:"flow_path_length_m"`
	FlowPathDrop   float64 `json:"flow_path_drop_m" yaml:"flow_path_drop_m"`
	Slope          float64 `json:"slope" yaml:"slope"`
	TcHours        float64 `json:"tc_h" yaml:"tc_h"`
	Farthest       Coord   `json:"farthest" yaml:"farthest"`
	Hypsometric    float64 `json:"hypsometric_integral" yaml:"hypsometric_integral"`
}

// FrequencySample is one observed (return period, value) pair.
type FrequencySample struct {
	T     float64 `json:"t" yaml:"t"`
	Value float64 `json:"value" yaml:"value"`
}

// QuantileRow is one line of the derived quantile table.
type QuantileRow struct {
	T            float64  `json:"t" yaml:"t"`
	Rainfall     *float64 `json:"rainfall_mm,omitempty" yaml:"rainfall_mm,omitempty"`
	Flow         *float64 `json:"flow_m3s,omitempty" yaml:"flow_m3s,omitempty"`
	P0Coeff      *float64 `json:"p0_coeff,omitempty" yaml:"p0_coeff,omitempty"`
	Extrapolated bool     `json:"extrapolated" yaml:"extrapolated"`
}

// Region holds the regional hydrological parameters used by the analysis.
type Region struct {
	ID           int64           `json:"id" yaml:"id"`
	Name         string          `json:"name,omitempty" yaml:"name,omitempty"`
	Tmco         float64         `json:"tmco" yaml:"tmco"`
	BetaMedio    float64         `json:"beta_medio" yaml:"beta_medio"`
	Distribution string          `json:"distribution" yaml:"distribution"`
	IC50         *float64        `json:"ic50,omitempty" yaml:"ic50,omitempty"`
	IC67         *float64        `json:"ic67,omitempty" yaml:"ic67,omitempty"`
	IC90         *float64        `json:"ic90,omitempty" yaml:"ic90,omitempty"`
	P0Coeffs     map[int]float64 `json:"p0_coeffs,omitempty" yaml:"p0_coeffs,omitempty"`
	Boundary     [][]Coord       `json:"boundary,omitempty" yaml:"boundary,omitempty"`
}

// P0Coeff returns the P0 return-period corrector for T, if recorded.
func (r Region) P0Coeff(t int) (float64, bool) {
	v, ok := r.P0Coeffs[t]
	return v, ok
}
