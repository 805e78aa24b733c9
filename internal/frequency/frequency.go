// Package frequency fits extreme-value distributions to (return period,
// value) pairs and evaluates their quantiles.
package frequency

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/optimize"

	"github.com/verte-zerg/hydrobasin/internal/model"
)

var (
	// ErrInsufficientSamples is returned when a fit has too few samples.
	ErrInsufficientSamples = errors.New("not enough samples")
	// ErrFitFailure is returned when neither the optimizer nor the grid
	// search finds a finite residual.
	ErrFitFailure = errors.New("distribution fit failed")
	// ErrInvalidInput is returned for return periods <= 1, non-finite values
	// and duplicated return periods.
	ErrInvalidInput = errors.New("invalid frequency input")
)

// Kind names a distribution family.
type Kind string

const (
	KindGEV  Kind = "GEV"
	KindTCEV Kind = "TCEV"
)

// ParseKind accepts "gev" or "tcev" in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(KindGEV):
		return KindGEV, nil
	case string(KindTCEV):
		return KindTCEV, nil
	}
	return "", fmt.Errorf("unknown distribution %q", s)
}

// MinSamples returns the smallest sample count a kind can be fitted with.
func (k Kind) MinSamples() int {
	if k == KindTCEV {
		return 4
	}
	return 3
}

// Param is one named distribution parameter.
type Param struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// Distribution is a fitted GEV or TCEV curve.
type Distribution interface {
	Kind() Kind
	// Quantile returns the value with return period t. ok is false when t is
	// not a valid return period or the evaluation does not converge.
	Quantile(t float64) (float64, bool)
	Params() []Param
	sealed()
}

// Result is a fitted distribution and its sum of squared residuals.
type Result struct {
	Distribution Distribution
	SSE          float64
	// Fallback is set when the grid search replaced the optimizer.
	Fallback bool
}

// Fit fits a distribution of the given kind to samples.
func Fit(kind Kind, samples []model.FrequencySample) (Result, error) {
	switch kind {
	case KindGEV:
		return FitGEV(samples)
	case KindTCEV:
		return FitTCEV(samples)
	}
	return Result{}, fmt.Errorf("unknown distribution %q: %w", kind, ErrInvalidInput)
}

// NonExceedance returns F = 1 - 1/T.
func NonExceedance(t float64) float64 {
	return 1 - 1/t
}

// GumbelVariate returns x = -ln(-ln(1 - 1/T)).
func GumbelVariate(t float64) float64 {
	return -math.Log(-math.Log(NonExceedance(t)))
}

func validPeriod(t float64) bool {
	return t > 1 && !math.IsInf(t, 0) && !math.IsNaN(t)
}

// prepare validates samples and returns them sorted by return period.
func prepare(samples []model.FrequencySample, min int) ([]model.FrequencySample, error) {
	if len(samples) < min {
		return nil, fmt.Errorf("got %d samples, need %d: %w", len(samples), min, ErrInsufficientSamples)
	}
	out := make([]model.FrequencySample, len(samples))
	copy(out, samples)
	sort.Slice(out, func(i, j int) bool { return out[i].T < out[j].T })
	for i, s := range out {
		if !validPeriod(s.T) {
			return nil, fmt.Errorf("return period %g: %w", s.T, ErrInvalidInput)
		}
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			return nil, fmt.Errorf("value %g at T=%g: %w", s.Value, s.T, ErrInvalidInput)
		}
		if i > 0 && out[i-1].T == s.T {
			return nil, fmt.Errorf("duplicate return period %g: %w", s.T, ErrInvalidInput)
		}
	}
	return out, nil
}

func split(samples []model.FrequencySample) (fs, qs []float64) {
	fs = make([]float64, len(samples))
	qs = make([]float64, len(samples))
	for i, s := range samples {
		fs[i] = NonExceedance(s.T)
		qs[i] = s.Value
	}
	return fs, qs
}

// polish runs Nelder-Mead from x0. ok is false when the optimizer stops
// early, fails or ends on a non-finite residual.
func polish(f func(x []float64) float64, x0 []float64) (x []float64, fx float64, ok bool) {
	settings := &optimize.Settings{
		MajorIterations: 20000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-12,
			Iterations: 200,
		},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: f}, x0, settings, &optimize.NelderMead{})
	if err != nil || res == nil || res.Status.Early() {
		return nil, 0, false
	}
	if math.IsNaN(res.F) || math.IsInf(res.F, 0) {
		return nil, 0, false
	}
	return res.X, res.F, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
