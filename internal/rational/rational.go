// Package rational implements the modified Rational Method for peak flow.
package rational

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned for missing, non-finite or out-of-range inputs.
var ErrInvalidInput = errors.New("invalid rational method input")

// Input holds the basin and storm parameters of one estimate.
type Input struct {
	AreaKm2 float64 `json:"area_km2" yaml:"area_km2"`
	TcHours float64 `json:"tc_h" yaml:"tc_h"`
	// I1Id is the ratio between hourly and daily intensity.
	I1Id float64 `json:"i1id" yaml:"i1id"`
	// P0 is the runoff threshold in mm.
	P0 float64 `json:"p0_mm" yaml:"p0_mm"`
	// RegionCorrector is the regional P0 corrector (beta).
	RegionCorrector float64 `json:"region_corrector" yaml:"region_corrector"`
	// PeriodCorrector is the return-period P0 corrector.
	PeriodCorrector float64 `json:"period_corrector" yaml:"period_corrector"`
	// RainfallMm is the daily design rainfall.
	RainfallMm float64 `json:"rainfall_mm" yaml:"rainfall_mm"`
}

// Result is the flow estimate and its intermediate terms.
type Result struct {
	FlowM3s           float64 `json:"flow_m3s" yaml:"flow_m3s"`
	AreaFactor        float64 `json:"area_factor" yaml:"area_factor"`
	CorrectedRainfall float64 `json:"corrected_rainfall_mm" yaml:"corrected_rainfall_mm"`
	IntensityFactor   float64 `json:"intensity_factor" yaml:"intensity_factor"`
	IntensityMmH      float64 `json:"intensity_mm_h" yaml:"intensity_mm_h"`
	CorrectedP0       float64 `json:"corrected_p0_mm" yaml:"corrected_p0_mm"`
	RunoffCoeff       float64 `json:"runoff_coeff" yaml:"runoff_coeff"`
	UniformityCoeff   float64 `json:"uniformity_coeff" yaml:"uniformity_coeff"`
}

func (in Input) validate() error {
	fields := []struct {
		name     string
		v        float64
		positive bool
	}{
		{"area", in.AreaKm2, true},
		{"tc", in.TcHours, true},
		{"i1id", in.I1Id, true},
		{"p0", in.P0, false},
		{"region corrector", in.RegionCorrector, false},
		{"period corrector", in.PeriodCorrector, false},
		{"rainfall", in.RainfallMm, true},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s is not finite: %w", f.name, ErrInvalidInput)
		}
		if f.positive && f.v <= 0 {
			return fmt.Errorf("%s must be > 0, got %g: %w", f.name, f.v, ErrInvalidInput)
		}
		if f.v < 0 {
			return fmt.Errorf("%s must be >= 0, got %g: %w", f.name, f.v, ErrInvalidInput)
		}
	}
	return nil
}

// AreaFactor is the areal reduction factor applied to point rainfall.
func AreaFactor(areaKm2 float64) float64 {
	if areaKm2 < 1 {
		return 1
	}
	return math.Max(0, 1-math.Log10(areaKm2)/15)
}

// Estimate computes Q = C * I * A * K / 3.6.
func Estimate(in Input) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	var r Result
	r.AreaFactor = AreaFactor(in.AreaKm2)
	r.CorrectedRainfall = in.RainfallMm * r.AreaFactor

	p28 := math.Pow(28, 0.1)
	r.IntensityFactor = math.Pow(in.I1Id, (p28-math.Pow(in.TcHours, 0.1))/(p28-1))
	r.IntensityMmH = r.CorrectedRainfall / 24 * r.IntensityFactor

	r.CorrectedP0 = in.P0 * in.RegionCorrector * in.PeriodCorrector
	if r.CorrectedP0 <= 0 {
		r.RunoffCoeff = 1
	} else {
		ratio := r.CorrectedRainfall / r.CorrectedP0
		c := (ratio - 1) * (ratio + 23) / math.Pow(ratio+11, 2)
		r.RunoffCoeff = math.Min(1, math.Max(0, c))
	}

	tc := math.Pow(in.TcHours, 1.25)
	r.UniformityCoeff = 1 + tc/(tc+14)
	r.FlowM3s = r.RunoffCoeff * r.IntensityMmH * in.AreaKm2 * r.UniformityCoeff / 3.6
	return r, nil
}
