package frequency

import (
	"fmt"

	"github.com/verte-zerg/hydrobasin/internal/model"
)

// InterpolateGumbel estimates the value at return period t from a tabulated
// curve. The curve is treated as piecewise linear in the Gumbel reduced
// variate; outside the tabulated range the nearest segment is extended.
func InterpolateGumbel(t float64, samples []model.FrequencySample) (float64, error) {
	if !validPeriod(t) {
		return 0, fmt.Errorf("return period %g: %w", t, ErrInvalidInput)
	}
	sorted, err := prepare(samples, 2)
	if err != nil {
		return 0, fmt.Errorf("gumbel interpolation: %w", err)
	}

	// Index of the upper end of the segment used.
	hi := len(sorted) - 1
	for i, s := range sorted {
		if s.T == t {
			return s.Value, nil
		}
		if s.T > t {
			hi = max(i, 1)
			break
		}
	}
	a, b := sorted[hi-1], sorted[hi]
	xa, xb, x := GumbelVariate(a.T), GumbelVariate(b.T), GumbelVariate(t)
	return a.Value + (b.Value-a.Value)*(x-xa)/(xb-xa), nil
}
