package frequency

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/verte-zerg/hydrobasin/internal/model"
)

const (
	gevMinAlpha = 1e-3
	gevMaxShape = 0.5
	// gumbelShape is the |k| below which the Gumbel limit is used.
	gumbelShape = 1e-12
)

// GEV is the generalized extreme value distribution in the hydrological
// parameterization: value(F) = mu + alpha/k * (1 - (-ln F)^k).
type GEV struct {
	Alpha float64
	Mu    float64
	K     float64
}

func (GEV) sealed() {}

// Kind implements Distribution.
func (GEV) Kind() Kind { return KindGEV }

// Params implements Distribution.
func (g GEV) Params() []Param {
	return []Param{{"alpha", g.Alpha}, {"mu", g.Mu}, {"k", g.K}}
}

// Value returns the quantile for non-exceedance probability f.
func (g GEV) Value(f float64) float64 {
	y := -math.Log(f)
	if math.Abs(g.K) < gumbelShape {
		return g.Mu - g.Alpha*math.Log(y)
	}
	return g.Mu + g.Alpha/g.K*(1-math.Pow(y, g.K))
}

// Quantile implements Distribution.
func (g GEV) Quantile(t float64) (float64, bool) {
	if !validPeriod(t) {
		return 0, false
	}
	v := g.Value(NonExceedance(t))
	if !finite(v) {
		return 0, false
	}
	return v, true
}

// gevBasis returns value(F) for alpha = 1 and mu = 0.
func gevBasis(y, k float64) float64 {
	if math.Abs(k) < gumbelShape {
		return -math.Log(y)
	}
	return (1 - math.Pow(y, k)) / k
}

func gevSSE(g GEV, fs, qs []float64) float64 {
	if g.Alpha <= 0 || math.Abs(g.K) > gevMaxShape {
		return math.Inf(1)
	}
	var sum float64
	for i, f := range fs {
		d := g.Value(f) - qs[i]
		sum += d * d
	}
	if !finite(sum) {
		return math.Inf(1)
	}
	return sum
}

// profileGEV solves alpha and mu by linear least squares for each shape on
// a scan of [-0.5, 0.5] and keeps the best.
func profileGEV(fs, qs []float64) (GEV, float64) {
	ys := make([]float64, len(fs))
	for i, f := range fs {
		ys[i] = -math.Log(f)
	}
	b := make([]float64, len(fs))
	best, bestSSE := GEV{}, math.Inf(1)
	for _, k := range floats.Span(make([]float64, 101), -gevMaxShape, gevMaxShape) {
		for i, y := range ys {
			b[i] = gevBasis(y, k)
		}
		alpha := gevMinAlpha
		if v := stat.Variance(b, nil); v > 0 {
			alpha = math.Max(gevMinAlpha, stat.Covariance(b, qs, nil)/v)
		}
		g := GEV{Alpha: alpha, Mu: stat.Mean(qs, nil) - alpha*stat.Mean(b, nil), K: k}
		if sse := gevSSE(g, fs, qs); sse < bestSSE {
			best, bestSSE = g, sse
		}
	}
	return best, bestSSE
}

// gevFromX maps unconstrained optimizer coordinates to bounded parameters.
func gevFromX(x []float64) GEV {
	return GEV{
		Alpha: gevMinAlpha + math.Exp(x[0]),
		Mu:    x[1],
		K:     gevMaxShape * math.Tanh(x[2]),
	}
}

func gevToX(g GEV) []float64 {
	k := math.Max(-0.999*gevMaxShape, math.Min(0.999*gevMaxShape, g.K))
	return []float64{
		math.Log(math.Max(g.Alpha-gevMinAlpha, 1e-9)),
		g.Mu,
		math.Atanh(k / gevMaxShape),
	}
}

// FitGEV fits a GEV curve by bounded least squares (alpha > 0,
// k in [-0.5, 0.5]). At least three samples are required.
func FitGEV(samples []model.FrequencySample) (Result, error) {
	sorted, err := prepare(samples, KindGEV.MinSamples())
	if err != nil {
		return Result{}, fmt.Errorf("gev fit: %w", err)
	}
	fs, qs := split(sorted)

	start, startSSE := profileGEV(fs, qs)
	if finite(startSSE) {
		obj := func(x []float64) float64 { return gevSSE(gevFromX(x), fs, qs) }
		if x, sse, ok := polish(obj, gevToX(start)); ok {
			return Result{Distribution: gevFromX(x), SSE: sse}, nil
		}
	}

	g, sse := gridGEV(fs, qs)
	if finite(startSSE) && startSSE < sse {
		g, sse = start, startSSE
	}
	if !finite(sse) {
		return Result{}, fmt.Errorf("gev fit: %w", ErrFitFailure)
	}
	return Result{Distribution: g, SSE: sse, Fallback: true}, nil
}

// gridShapes are the shape values scanned by gridGEV. The span matches the
// optimizer bounds and includes the Gumbel case k = 0.
func gridShapes() []float64 {
	return floats.Span(make([]float64, 11), -gevMaxShape, gevMaxShape)
}

// gridGEV is the coarse bounded search used when the optimizer fails.
func gridGEV(fs, qs []float64) (GEV, float64) {
	lo, hi := floats.Min(qs), floats.Max(qs)
	r := hi - lo
	alphas := floats.Span(make([]float64, 20), 0.01, math.Max(r*0.5, 0.02))
	mus := floats.Span(make([]float64, 20), lo-r*0.1, hi+r*0.1)
	ks := gridShapes()

	best, bestSSE := GEV{}, math.Inf(1)
	for _, a := range alphas {
		for _, m := range mus {
			for _, k := range ks {
				g := GEV{Alpha: a, Mu: m, K: k}
				if sse := gevSSE(g, fs, qs); sse < bestSSE {
					best, bestSSE = g, sse
				}
			}
		}
	}
	return best, bestSSE
}
