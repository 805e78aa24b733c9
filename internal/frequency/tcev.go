package frequency

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/verte-zerg/hydrobasin/internal/model"
)

const (
	tcevMinParam = 1e-3
	// tcevPenalty replaces a residual whose root-solve failed.
	tcevPenalty = 1e10
	expClip     = 700
)

// TCEV is the two-component extreme value distribution:
// F(v) = exp(-alpha1*e^(-lambda1*v) - alpha2*e^(-lambda2*v)).
type TCEV struct {
	Alpha1  float64
	Alpha2  float64
	Lambda1 float64
	Lambda2 float64
}

func (TCEV) sealed() {}

// Kind implements Distribution.
func (TCEV) Kind() Kind { return KindTCEV }

// Params implements Distribution.
func (d TCEV) Params() []Param {
	return []Param{{"alpha1", d.Alpha1}, {"alpha2", d.Alpha2}, {"lambda1", d.Lambda1}, {"lambda2", d.Lambda2}}
}

func (d TCEV) valid() bool {
	for _, p := range []float64{d.Alpha1, d.Alpha2, d.Lambda1, d.Lambda2} {
		if !(p > 0) || math.IsInf(p, 0) {
			return false
		}
	}
	return true
}

// CDF returns F(v).
func (d TCEV) CDF(v float64) float64 {
	return math.Exp(-d.load(v))
}

// load returns alpha1*e^(-lambda1*v) + alpha2*e^(-lambda2*v).
func (d TCEV) load(v float64) float64 {
	return d.Alpha1*clippedExp(-d.Lambda1*v) + d.Alpha2*clippedExp(-d.Lambda2*v)
}

func clippedExp(x float64) float64 {
	return math.Exp(math.Max(-expClip, math.Min(expClip, x)))
}

// solve finds v with F(v) = f. The load is strictly decreasing in v, so the
// root is bracketed by the points where each component alone equals -ln f
// and half of it. Newton steps starting at seed are kept inside the bracket.
func (d TCEV) solve(f, seed float64) (float64, bool) {
	if !d.valid() || !(f > 0 && f < 1) {
		return 0, false
	}
	z := -math.Log(f)
	lo := math.Max(math.Log(d.Alpha1/z)/d.Lambda1, math.Log(d.Alpha2/z)/d.Lambda2)
	hi := math.Max(math.Log(2*d.Alpha1/z)/d.Lambda1, math.Log(2*d.Alpha2/z)/d.Lambda2)
	if !finite(lo) || !finite(hi) {
		return 0, false
	}
	g := func(v float64) float64 { return d.load(v) - z }

	v := seed
	if !finite(v) || v < lo || v > hi {
		v = (lo + hi) / 2
	}
	for i := 0; i < 200; i++ {
		gv := g(v)
		if gv == 0 {
			return v, true
		}
		if gv > 0 {
			lo = v
		} else {
			hi = v
		}
		if hi-lo <= 1e-12*math.Max(1, math.Abs(v)) {
			return (lo + hi) / 2, true
		}
		slope := -d.Alpha1*d.Lambda1*clippedExp(-d.Lambda1*v) - d.Alpha2*d.Lambda2*clippedExp(-d.Lambda2*v)
		next := v - gv/slope
		if !finite(next) || next <= lo || next >= hi {
			next = (lo + hi) / 2
		}
		if math.Abs(next-v) <= 1e-13*math.Max(1, math.Abs(v)) {
			return next, true
		}
		v = next
	}
	return 0, false
}

// Quantile implements Distribution. The solver is seeded at the point
// where the dominant component alone reaches the target probability.
func (d TCEV) Quantile(t float64) (float64, bool) {
	if !validPeriod(t) {
		return 0, false
	}
	f := NonExceedance(t)
	z := -math.Log(f)
	seed := math.Max(math.Log(d.Alpha1/z)/d.Lambda1, math.Log(d.Alpha2/z)/d.Lambda2)
	return d.solve(f, seed)
}

func tcevSSE(d TCEV, fs, qs []float64) float64 {
	if !d.valid() {
		return math.Inf(1)
	}
	var sum float64
	for i, f := range fs {
		v, ok := d.solve(f, qs[i])
		if !ok {
			sum += tcevPenalty
			continue
		}
		diff := v - qs[i]
		sum += diff * diff
	}
	if !finite(sum) {
		return math.Inf(1)
	}
	return sum
}

func tcevFromX(x []float64) TCEV {
	return TCEV{
		Alpha1:  tcevMinParam + math.Exp(x[0]),
		Alpha2:  tcevMinParam + math.Exp(x[1]),
		Lambda1: tcevMinParam + math.Exp(x[2]),
		Lambda2: tcevMinParam + math.Exp(x[3]),
	}
}

func tcevToX(d TCEV) []float64 {
	x := make([]float64, 4)
	for i, p := range []float64{d.Alpha1, d.Alpha2, d.Lambda1, d.Lambda2} {
		x[i] = math.Log(math.Max(p-tcevMinParam, 1e-9))
	}
	return x
}

// periodIndex returns the position of return period t, or fallback.
func periodIndex(samples []model.FrequencySample, t float64, fallback int) int {
	for i, s := range samples {
		if s.T == t {
			return i
		}
	}
	return fallback
}

// tcevGuess derives a start from two pairs of samples: the ordinary
// component from the low periods, the outlying one from the high periods.
func tcevGuess(samples []model.FrequencySample, fs, qs []float64) TCEV {
	n := len(samples)
	i2 := periodIndex(samples, 2, 0)
	i10 := periodIndex(samples, 10, min(2, n-1))
	i100 := periodIndex(samples, 100, max(0, n-2))
	i500 := periodIndex(samples, 500, n-1)

	component := func(a, b int, lambda0, alpha0 float64) (alpha, lambda float64) {
		lambda, alpha = lambda0, alpha0
		if dq := qs[b] - qs[a]; dq != 0 {
			lambda = (math.Log(-math.Log(fs[a])) - math.Log(-math.Log(fs[b]))) / dq
		}
		if lambda != 0 {
			alpha = -math.Log(fs[a]) / math.Exp(-qs[a]*lambda)
		}
		if !finite(alpha) || !finite(lambda) {
			return alpha0, lambda0
		}
		return math.Max(tcevMinParam, alpha), math.Max(tcevMinParam, lambda)
	}
	a1, l1 := component(i2, i10, 0.1, 1)
	a2, l2 := component(i100, i500, 0.01, 0.1)
	return TCEV{Alpha1: a1, Alpha2: a2, Lambda1: l1, Lambda2: l2}
}

// FitTCEV fits a TCEV curve by least squares on the values. Every residual
// needs a root-solve seeded at the observation. At least four samples are
// required.
func FitTCEV(samples []model.FrequencySample) (Result, error) {
	sorted, err := prepare(samples, KindTCEV.MinSamples())
	if err != nil {
		return Result{}, fmt.Errorf("tcev fit: %w", err)
	}
	fs, qs := split(sorted)
	start := tcevGuess(sorted, fs, qs)
	startSSE := tcevSSE(start, fs, qs)

	if finite(startSSE) {
		obj := func(x []float64) float64 { return tcevSSE(tcevFromX(x), fs, qs) }
		if x, sse, ok := polish(obj, tcevToX(start)); ok {
			return Result{Distribution: tcevFromX(x), SSE: sse}, nil
		}
	}

	d, sse := gridTCEV(start, fs, qs)
	if finite(startSSE) && startSSE < sse {
		d, sse = start, startSSE
	}
	if !finite(sse) {
		return Result{}, fmt.Errorf("tcev fit: %w", ErrFitFailure)
	}
	return Result{Distribution: d, SSE: sse, Fallback: true}, nil
}

// gridTCEV scans +-50% around the start on a 10^4 lattice.
func gridTCEV(start TCEV, fs, qs []float64) (TCEV, float64) {
	span := func(p float64) []float64 {
		return floats.Span(make([]float64, 10), 0.5*p, 1.5*p)
	}
	a1s, a2s := span(start.Alpha1), span(start.Alpha2)
	l1s, l2s := span(start.Lambda1), span(start.Lambda2)

	best, bestSSE := TCEV{}, math.Inf(1)
	for _, a1 := range a1s {
		for _, a2 := range a2s {
			for _, l1 := range l1s {
				for _, l2 := range l2s {
					d := TCEV{Alpha1: a1, Alpha2: a2, Lambda1: l1, Lambda2: l2}
					if sse := tcevSSE(d, fs, qs); sse < bestSSE {
						best, bestSSE = d, sse
					}
				}
			}
		}
	}
	return best, bestSSE
}
