package frequency

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/hydrobasin/internal/model"
)

func samples(pairs ...float64) []model.FrequencySample {
	out := make([]model.FrequencySample, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.FrequencySample{T: pairs[i], Value: pairs[i+1]})
	}
	return out
}

func TestFitGEVReproducesThreeSamples(t *testing.T) {
	res, err := FitGEV(samples(100, 60, 2, 10, 10, 25))
	require.NoError(t, err)
	require.Equal(t, KindGEV, res.Distribution.Kind())
	assert.False(t, res.Fallback)

	for _, s := range samples(2, 10, 10, 25, 100, 60) {
		q, ok := res.Distribution.Quantile(s.T)
		require.True(t, ok)
		assert.InDelta(t, s.Value, q, 1e-3, "T=%g", s.T)
	}
	g := res.Distribution.(GEV)
	assert.Greater(t, g.Alpha, 0.0)
	assert.LessOrEqual(t, math.Abs(g.K), 0.5)
}

func TestGEVGumbelLimit(t *testing.T) {
	g := GEV{Alpha: 10, Mu: 50, K: 0}
	q, ok := g.Quantile(100)
	require.True(t, ok)
	assert.InDelta(t, 50+10*GumbelVariate(100), q, 1e-9)

	near := GEV{Alpha: 10, Mu: 50, K: 1e-7}
	qn, ok := near.Quantile(100)
	require.True(t, ok)
	assert.InDelta(t, q, qn, 1e-3)
}

func TestQuantileRejectsShortPeriods(t *testing.T) {
	dists := []Distribution{
		GEV{Alpha: 10, Mu: 50, K: -0.1},
		TCEV{Alpha1: 20, Alpha2: 0.5, Lambda1: 0.08, Lambda2: 0.03},
	}
	for _, d := range dists {
		for _, period := range []float64{1, 0.5, -3, math.NaN(), math.Inf(1)} {
			_, ok := d.Quantile(period)
			assert.False(t, ok, "%s T=%g", d.Kind(), period)
		}
	}
}

func TestTCEVQuantileInvertsCDF(t *testing.T) {
	d := TCEV{Alpha1: 20, Alpha2: 0.5, Lambda1: 0.08, Lambda2: 0.03}
	prev := math.Inf(-1)
	for _, period := range []float64{1.01, 2, 10, 100, 1000, 10000} {
		v, ok := d.Quantile(period)
		require.True(t, ok)
		assert.InDelta(t, NonExceedance(period), d.CDF(v), 1e-9)
		assert.Greater(t, v, prev)
		prev = v
	}

	_, ok := TCEV{Alpha1: 0, Alpha2: 1, Lambda1: 1, Lambda2: 1}.Quantile(10)
	assert.False(t, ok)
}

func TestFitTCEVRecoversCurve(t *testing.T) {
	truth := TCEV{Alpha1: 20, Alpha2: 0.5, Lambda1: 0.08, Lambda2: 0.03}
	periods := []float64{2, 5, 10, 25, 100, 500}
	var in []model.FrequencySample
	for _, period := range periods {
		v, ok := truth.Quantile(period)
		require.True(t, ok)
		in = append(in, model.FrequencySample{T: period, Value: v})
	}

	res, err := FitTCEV(in)
	require.NoError(t, err)
	require.Equal(t, KindTCEV, res.Distribution.Kind())
	for _, s := range in {
		q, ok := res.Distribution.Quantile(s.T)
		require.True(t, ok)
		assert.InEpsilon(t, s.Value, q, 0.02, "T=%g", s.T)
	}
	for _, p := range res.Distribution.Params() {
		assert.Greater(t, p.Value, 0.0, p.Name)
	}
}

func TestFitInsufficientSamples(t *testing.T) {
	_, err := Fit(KindGEV, samples(2, 10, 10, 25))
	require.ErrorIs(t, err, ErrInsufficientSamples)

	_, err = Fit(KindTCEV, samples(2, 10, 10, 25, 100, 60))
	require.ErrorIs(t, err, ErrInsufficientSamples)
}

func TestFitInvalidSamples(t *testing.T) {
	cases := map[string][]model.FrequencySample{
		"period one":   samples(1, 5, 10, 25, 100, 60),
		"duplicate":    samples(2, 10, 2, 11, 100, 60),
		"nan value":    samples(2, 10, 10, math.NaN(), 100, 60),
		"inf period":   samples(2, 10, 10, 25, math.Inf(1), 60),
		"below one":    samples(0.5, 10, 10, 25, 100, 60),
		"inf value":    samples(2, 10, 10, math.Inf(-1), 100, 60),
		"zero period":  samples(0, 10, 10, 25, 100, 60),
		"negative one": samples(-1, 10, 10, 25, 100, 60),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FitGEV(in)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err := Fit(Kind("weibull"), samples(2, 10, 10, 25, 100, 60))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGridGEVFindsFiniteFit(t *testing.T) {
	fs, qs := split(samples(2, 10, 10, 25, 100, 60))
	g, sse := gridGEV(fs, qs)
	require.True(t, finite(sse))
	assert.Greater(t, g.Alpha, 0.0)
	assert.GreaterOrEqual(t, g.K, -gevMaxShape)
	assert.LessOrEqual(t, g.K, gevMaxShape)

	_, profile := profileGEV(fs, qs)
	assert.LessOrEqual(t, profile, sse)
}

func TestGridShapesCoverOptimizerBounds(t *testing.T) {
	ks := gridShapes()
	require.NotEmpty(t, ks)
	assert.Equal(t, -gevMaxShape, ks[0])
	assert.Equal(t, gevMaxShape, ks[len(ks)-1])
	assert.InDelta(t, 0, ks[len(ks)/2], 1e-12)
}

func TestGridTCEVImprovesOnPerturbedStart(t *testing.T) {
	truth := TCEV{Alpha1: 20, Alpha2: 0.5, Lambda1: 0.08, Lambda2: 0.03}
	var fs, qs []float64
	for _, period := range []float64{2, 5, 10, 25, 100, 500} {
		v, ok := truth.Quantile(period)
		require.True(t, ok)
		fs = append(fs, NonExceedance(period))
		qs = append(qs, v)
	}
	start := TCEV{Alpha1: 24, Alpha2: 0.6, Lambda1: 0.096, Lambda2: 0.036}
	_, sse := gridTCEV(start, fs, qs)
	assert.Less(t, sse, tcevSSE(start, fs, qs))
}

func TestInterpolateGumbel(t *testing.T) {
	rain := samples(2, 40, 10, 70, 100, 110)

	v, err := InterpolateGumbel(50, rain)
	require.NoError(t, err)
	assert.Greater(t, v, 70.0)
	assert.Less(t, v, 110.0)

	v, err = InterpolateGumbel(10, rain)
	require.NoError(t, err)
	assert.Equal(t, 70.0, v)

	// Two points are exactly linear in the variate.
	line := samples(2, 10+5*GumbelVariate(2), 100, 10+5*GumbelVariate(100))
	v, err = InterpolateGumbel(500, line)
	require.NoError(t, err)
	assert.InDelta(t, 10+5*GumbelVariate(500), v, 1e-9)
	v, err = InterpolateGumbel(1.5, line)
	require.NoError(t, err)
	assert.InDelta(t, 10+5*GumbelVariate(1.5), v, 1e-9)
}

func TestInterpolateGumbelErrors(t *testing.T) {
	_, err := InterpolateGumbel(10, samples(2, 40))
	require.ErrorIs(t, err, ErrInsufficientSamples)

	_, err = InterpolateGumbel(1, samples(2, 40, 10, 70))
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = InterpolateGumbel(10, samples(2, 40, 2, 70))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" tcev ")
	require.NoError(t, err)
	assert.Equal(t, KindTCEV, k)
	k, err = ParseKind("GEV")
	require.NoError(t, err)
	assert.Equal(t, KindGEV, k)
	_, err = ParseKind("lognormal")
	assert.Error(t, err)
	assert.Equal(t, 4, KindTCEV.MinSamples())
}
