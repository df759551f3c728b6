package gam

import (
	"bytes"
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigam/basis"
	"github.com/YuminosukeSato/scigam/core/model"
	"github.com/YuminosukeSato/scigam/family"
	"github.com/YuminosukeSato/scigam/metrics"
	"github.com/YuminosukeSato/scigam/penalty"
	"github.com/YuminosukeSato/scigam/pirls"
	"github.com/YuminosukeSato/scigam/pkg/errors"
	"github.com/YuminosukeSato/scigam/pkg/log"
	"github.com/YuminosukeSato/scigam/smoothing"
)

// sine returns x on [0, 1] and y = sin(2πx) + noise.
func sine(n int, noise float64, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)
		X.Set(i, 0, x)
		y.Set(i, 0, math.Sin(2*math.Pi*x)+noise*rng.NormFloat64())
	}
	return X, y
}

// additive returns two features with y = sin(2πx0) + 2·x1 + noise.
func additive(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, b := rng.Float64(), rng.Float64()
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		y.Set(i, 0, math.Sin(2*math.Pi*a)+2*b+0.1*rng.NormFloat64())
	}
	return X, y
}

// counts returns Poisson responses with log mean 0.5 + sin(2πx).
func counts(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)
		X.Set(i, 0, x)
		y.Set(i, 0, family.Poisson{}.Sample(math.Exp(0.5+math.Sin(2*math.Pi*x)), 1, rng))
	}
	return X, y
}

func fitted(t *testing.T, X, y mat.Matrix, terms []basis.Term, opts ...Option) *Model {
	t.Helper()
	m, err := New(terms, opts...)
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, y))
	return m
}

func TestFitRecoversSmoothFunction(t *testing.T) {
	X, y := sine(200, 0.1, 1)
	m := fitted(t, X, y, []basis.Term{basis.SplineTerm(0)})
	require.True(t, m.IsFitted())

	pred, err := m.Predict(X)
	require.NoError(t, err)
	r, c := pred.Dims()
	assert.Equal(t, 200, r)
	assert.Equal(t, 1, c)
	var mae float64
	for i := 0; i < r; i++ {
		mae += math.Abs(pred.At(i, 0) - math.Sin(2*math.Pi*X.At(i, 0)))
	}
	assert.Less(t, mae/float64(r), 0.1)

	// explained deviance of a Gaussian model is R²
	score, err := m.Score(X, y)
	require.NoError(t, err)
	r2, err := metrics.R2Score(mat.NewVecDense(r, mat.Col(nil, 0, y)), mat.NewVecDense(r, mat.Col(nil, 0, pred)))
	require.NoError(t, err)
	assert.InDelta(t, r2, score, 1e-10)

	st, err := m.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 200, st.NSamples)
	assert.True(t, st.Converged)
	assert.Equal(t, 1, st.Iterations)
	assert.True(t, st.ScaleEstimated)
	assert.Equal(t, pirls.GCV, st.Criterion)
	assert.Greater(t, st.EDoF, 3.0)
	assert.Less(t, st.EDoF, 21.0)
	assert.Greater(t, st.PseudoR2.ExplainedDeviance, 0.9)
	assert.InDelta(t, st.EDoF, st.InterceptEDoF+st.TermEDoF[0], 1e-9)
	assert.InDelta(t, st.GCV, st.Score, 0)
	assert.False(t, math.IsInf(st.AICc, 0))

	assert.Len(t, m.Coefficients(), 21)
	require.Len(t, m.Lambdas(), 1)
	assert.Contains(t, smoothing.DefaultValues(), m.Lambdas()[0])
}

func TestFixedLambda(t *testing.T) {
	X, y := sine(100, 0.2, 2)
	m := fitted(t, X, y, []basis.Term{basis.SplineTerm(0, basis.WithNSplines(10), basis.WithLambda(5))},
		WithFixedLambda())
	assert.Equal(t, []float64{5}, m.Lambdas())

	P, err := m.PenaltyMatrix()
	require.NoError(t, err)
	assert.Equal(t, 11, P.SymmetricDim())
	assert.Equal(t, 0.0, P.At(0, 0))
}

func TestGridSelectsLowestScore(t *testing.T) {
	X, y := sine(150, 0.3, 3)
	term := []basis.Term{basis.SplineTerm(0, basis.WithNSplines(12))}

	scores := make([]float64, 2)
	for i, l := range []float64{1e-3, 1e3} {
		m := fitted(t, X, y, []basis.Term{basis.SplineTerm(0, basis.WithNSplines(12), basis.WithLambda(l))},
			WithFixedLambda())
		st, err := m.Statistics()
		require.NoError(t, err)
		scores[i] = st.Score
	}

	m := fitted(t, X, y, term, WithCandidates([][]float64{{1e-3}, {1e3}}), WithWorkers(2))
	want := 1e-3
	if scores[1] < scores[0] {
		want = 1e3
	}
	assert.Equal(t, []float64{want}, m.Lambdas())
}

func TestLocalSearchFit(t *testing.T) {
	X, y := sine(150, 0.1, 4)
	for _, method := range []smoothing.Method{smoothing.NelderMead, smoothing.BFGS} {
		t.Run(method.String(), func(t *testing.T) {
			m := fitted(t, X, y, []basis.Term{basis.SplineTerm(0)}, WithLocalSearch(method, nil))
			l := m.Lambdas()[0]
			assert.GreaterOrEqual(t, l, 1e-8)
			assert.LessOrEqual(t, l, 1e8)

			score, err := m.Score(X, y)
			require.NoError(t, err)
			assert.Greater(t, score, 0.9)
		})
	}
}

func TestAdditivePartials(t *testing.T) {
	X, y := additive(300, 5)
	m := fitted(t, X, y, []basis.Term{
		basis.SplineTerm(0, basis.WithNSplines(10)),
		basis.LinearTerm(1, basis.WithPenalty(penalty.None)),
	})

	coef := m.Coefficients()
	assert.InDelta(t, 2.0, coef[len(coef)-1], 0.15)

	eta, err := m.PredictLinear(X)
	require.NoError(t, err)
	p0, err := m.PredictPartial(X, 0)
	require.NoError(t, err)
	p1, err := m.PredictPartial(X, 1)
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		assert.InDelta(t, eta.At(i, 0), coef[0]+p0.At(i, 0)+p1.At(i, 0), 1e-9)
	}

	pd, err := m.PartialDependence(X, 0, 0.95)
	require.NoError(t, err)
	for i := range pd.Contribution {
		assert.LessOrEqual(t, pd.Lower[i], pd.Contribution[i])
		assert.GreaterOrEqual(t, pd.Upper[i], pd.Contribution[i])
	}
	assert.InDelta(t, p0.At(7, 0), pd.Contribution[7], 1e-12)

	_, err = m.PredictPartial(X, 2)
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))

	st, err := m.Statistics()
	require.NoError(t, err)
	require.Len(t, st.TermEDoF, 2)
	assert.InDelta(t, 1.0, st.TermEDoF[1], 1e-3)
}

func TestConfidenceIntervals(t *testing.T) {
	X, y := sine(120, 0.2, 6)
	m := fitted(t, X, y, []basis.Term{basis.SplineTerm(0, basis.WithNSplines(10))})
	pred, err := m.Predict(X)
	require.NoError(t, err)

	lo95, hi95, err := m.ConfidenceIntervals(X, 0.95)
	require.NoError(t, err)
	lo50, hi50, err := m.ConfidenceIntervals(X, 0.5)
	require.NoError(t, err)
	for i := 0; i < 120; i++ {
		mu := pred.At(i, 0)
		assert.Less(t, lo95.At(i, 0), lo50.At(i, 0))
		assert.LessOrEqual(t, lo50.At(i, 0), mu)
		assert.GreaterOrEqual(t, hi50.At(i, 0), mu)
		assert.Less(t, hi50.At(i, 0), hi95.At(i, 0))
	}

	lo, hi, err := m.ConfidenceIntervals(X, 0)
	require.NoError(t, err)
	assert.True(t, mat.Equal(lo, lo95))
	assert.True(t, mat.Equal(hi, hi95))

	_, _, err = m.ConfidenceIntervals(X, 1.5)
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))
}

func TestPoissonFit(t *testing.T) {
	X, y := counts(300, 7)
	m := fitted(t, X, y, []basis.Term{basis.SplineTerm(0, basis.WithNSplines(12))},
		WithFamily(family.PoissonLog))

	st, err := m.Statistics()
	require.NoError(t, err)
	assert.False(t, st.ScaleEstimated)
	assert.Equal(t, 1.0, st.Scale)
	assert.Equal(t, pirls.UBRE, st.Criterion)
	assert.True(t, st.Converged)
	assert.Greater(t, st.Iterations, 1)

	pred, err := m.Predict(X)
	require.NoError(t, err)
	lo, hi, err := m.ConfidenceIntervals(X, 0.9)
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		assert.Greater(t, lo.At(i, 0), 0.0)
		assert.LessOrEqual(t, lo.At(i, 0), pred.At(i, 0))
		assert.GreaterOrEqual(t, hi.At(i, 0), pred.At(i, 0))
	}
	truth := math.Exp(0.5 + math.Sin(2*math.Pi*X.At(75, 0)))
	assert.InDelta(t, truth, pred.At(75, 0), 0.3*truth)
}

func TestBinomialFit(t *testing.T) {
	rng := rand.New(rand.NewPCG(8, 8))
	n := 400
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x := rng.Float64()*4 - 2
		X.Set(i, 0, x)
		if rng.Float64() < 1/(1+math.Exp(-2*x)) {
			y.Set(i, 0, 1)
		}
	}
	m := fitted(t, X, y, []basis.Term{basis.SplineTerm(0, basis.WithNSplines(8))},
		WithFamily(family.BinomialLogit(1)))

	pred, err := m.Predict(X)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		assert.Greater(t, pred.At(i, 0), 0.0)
		assert.Less(t, pred.At(i, 0), 1.0)
	}
	st, err := m.Statistics()
	require.NoError(t, err)
	assert.Equal(t, pirls.UBRE, st.Criterion)
	assert.Greater(t, st.PseudoR2.McFadden, 0.0)
}

func TestResponseOutsideSupport(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{1, 2, -1, 4})
	m, err := New([]basis.Term{basis.LinearTerm(0)}, WithFamily(family.PoissonLog))
	require.NoError(t, err)

	err = m.Fit(X, y)
	var domErr *errors.DomainError
	require.True(t, errors.As(err, &domErr))
	assert.Equal(t, 2, domErr.Index)
	assert.False(t, m.IsFitted())
}

func TestStrictFactorRejectsUnseenLevel(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{0, 1, 2, 0, 1, 2})
	y := mat.NewDense(6, 1, []float64{1, 2, 3, 1.1, 2.1, 2.9})
	m := fitted(t, X, y, []basis.Term{basis.FactorTerm(0, basis.WithStrict())}, WithFixedLambda())

	_, err := m.Predict(mat.NewDense(1, 1, []float64{5}))
	var cfgErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))

	lenient := fitted(t, X, y, []basis.Term{basis.FactorTerm(0)}, WithFixedLambda())
	pred, err := lenient.Predict(mat.NewDense(1, 1, []float64{5}))
	require.NoError(t, err)
	assert.InDelta(t, lenient.Coefficients()[0], pred.At(0, 0), 1e-12)
}

func TestNotFittedAndDimensions(t *testing.T) {
	m, err := New([]basis.Term{basis.SplineTerm(0)})
	require.NoError(t, err)

	_, err = m.Predict(mat.NewDense(2, 1, nil))
	var nfErr *errors.NotFittedError
	assert.True(t, errors.As(err, &nfErr))
	_, err = m.Statistics()
	assert.True(t, errors.As(err, &nfErr))
	_, err = m.ExportWeights()
	assert.True(t, errors.As(err, &nfErr))
	assert.Nil(t, m.Coefficients())

	X, y := sine(60, 0.1, 9)
	require.NoError(t, m.Fit(X, y))
	_, err = m.Predict(mat.NewDense(2, 2, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	err = m.Fit(X, mat.NewDense(59, 1, nil))
	assert.True(t, errors.As(err, &dimErr))
	err = m.FitWeighted(context.Background(), X, y, make([]float64, 3))
	assert.True(t, errors.As(err, &dimErr))

	err = m.Fit(X, mat.NewDense(60, 2, nil))
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))
}

func TestFailedRefitKeepsPreviousFit(t *testing.T) {
	X, y := sine(80, 0.1, 10)
	m := fitted(t, X, y, []basis.Term{basis.SplineTerm(0, basis.WithNSplines(10))})
	before, err := m.Predict(X)
	require.NoError(t, err)

	bad := mat.DenseCopyOf(y)
	bad.Set(3, 0, math.NaN())
	require.Error(t, m.Fit(X, bad))

	assert.True(t, m.IsFitted())
	after, err := m.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(before, after))
}

func TestFitCancellation(t *testing.T) {
	X, y := sine(100, 0.1, 11)
	m, err := New([]basis.Term{basis.SplineTerm(0)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.FitContext(ctx, X, y)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.IsFitted())
}

func TestWeightedFitMatchesDuplicatedRows(t *testing.T) {
	X, y := sine(40, 0.2, 12)
	w := make([]float64, 40)
	var rows, ys []float64
	for i := range w {
		w[i] = float64(1 + i%2)
		for k := 0; k < int(w[i]); k++ {
			rows = append(rows, X.At(i, 0))
			ys = append(ys, y.At(i, 0))
		}
	}
	Xd := mat.NewDense(len(rows), 1, rows)
	yd := mat.NewDense(len(ys), 1, ys)

	terms := []basis.Term{basis.SplineTerm(0, basis.WithNSplines(8), basis.WithKnotPlacement(basis.Uniform), basis.WithLambda(1))}
	weighted, err := New(terms, WithFixedLambda())
	require.NoError(t, err)
	require.NoError(t, weighted.FitWeighted(context.Background(), X, y, w))
	dup := fitted(t, Xd, yd, terms, WithFixedLambda())

	a, b := weighted.Coefficients(), dup.Coefficients()
	require.Len(t, a, len(b))
	for j := range a {
		assert.InDelta(t, b[j], a[j], 1e-5)
	}
}

func TestSampleIsReproducible(t *testing.T) {
	X, y := counts(50, 13)
	m := fitted(t, X, y, []basis.Term{basis.SplineTerm(0, basis.WithNSplines(8))}, WithFamily(family.PoissonLog))

	a, err := m.Sample(X, 5, 99)
	require.NoError(t, err)
	r, c := a.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 50, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.Equal(t, math.Trunc(v), v)
		}
	}

	b, err := m.Sample(X, 5, 99)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
	other, err := m.Sample(X, 5, 100)
	require.NoError(t, err)
	assert.False(t, mat.Equal(a, other))

	_, err = m.Sample(X, 0, 1)
	assert.Error(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	X, y := additive(120, 14)
	m := fitted(t, X, y, []basis.Term{
		basis.SplineTerm(0, basis.WithNSplines(9)),
		basis.LinearTerm(1),
	})

	mw, err := m.ExportWeights()
	require.NoError(t, err)
	assert.Equal(t, "GAM", mw.ModelType)
	assert.Equal(t, "normal", mw.Distribution)
	assert.Equal(t, "identity", mw.Link)

	var buf bytes.Buffer
	_, err = mw.WriteTo(&buf)
	require.NoError(t, err)
	restored, err := model.ReadWeights(&buf)
	require.NoError(t, err)

	m2, err := New([]basis.Term{basis.LinearTerm(0)})
	require.NoError(t, err)
	require.NoError(t, m2.ImportWeights(restored))
	require.True(t, m2.IsFitted())

	want, err := m.Predict(X)
	require.NoError(t, err)
	got, err := m2.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	lo1, hi1, err := m.ConfidenceIntervals(X, 0.9)
	require.NoError(t, err)
	lo2, hi2, err := m2.ConfidenceIntervals(X, 0.9)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(lo1, lo2, 1e-12))
	assert.True(t, mat.EqualApprox(hi1, hi2, 1e-12))

	s1, err := m.Statistics()
	require.NoError(t, err)
	s2, err := m2.Statistics()
	require.NoError(t, err)
	assert.Equal(t, s1.EDoF, s2.EDoF)
	assert.Equal(t, s1.Criterion, s2.Criterion)
	assert.Equal(t, m.Lambdas(), m2.Lambdas())
	assert.Len(t, m2.Terms(), 2)

	bad := restored.Clone()
	bad.Coefficients = bad.Coefficients[:3]
	bad.Covariance = nil
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(m2.ImportWeights(bad), &dimErr))
	again, err := m2.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(got, again))
}

func TestCustomFamilyCannotBeExported(t *testing.T) {
	X, y := sine(40, 0.1, 15)
	custom := family.Family{Dist: family.Normal{}, Link: customLink{}}
	m := fitted(t, X, y, []basis.Term{basis.SplineTerm(0, basis.WithNSplines(6))}, WithFamily(custom))
	_, err := m.ExportWeights()
	var cfgErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

type customLink struct{ family.Identity }

func (customLink) Name() string { return "shifted_identity" }

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(`{
		"terms": [{"kind": "spline", "feature": 0, "n_splines": 10, "lambda": 2}],
		"family": {"distribution": "poisson"},
		"search": {"strategy": "fixed"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, pirls.DefaultGamma, cfg.Gamma)
	assert.Equal(t, FixedStrategy, cfg.Search.Strategy)

	m, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "poisson/log", m.Family().Name())

	X, y := counts(80, 16)
	require.NoError(t, m.Fit(X, y))
	assert.Equal(t, []float64{2}, m.Lambdas())

	params := m.GetParams()
	assert.Equal(t, "poisson", params["distribution"])
	assert.Equal(t, "log", params["link"])
	assert.Equal(t, "fixed", params["search"])

	_, err = LoadConfig(strings.NewReader(`{"terms": [], "unknown": 1}`))
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	var cfgErr *errors.ConfigurationError

	_, err := New(nil)
	assert.True(t, errors.As(err, &cfgErr))

	terms := []basis.Term{basis.SplineTerm(0)}
	for name, opt := range map[string]Option{
		"gamma":    WithGamma(0.5),
		"max_iter": WithMaxIter(0),
		"tol":      WithTol(0),
		"ridge":    WithRidge(-1),
		"ci_width": WithCIWidth(1),
		"start":    WithLocalSearch(smoothing.NelderMead, []float64{1, 1}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(terms, opt)
			assert.True(t, errors.As(err, &cfgErr), "%v", err)
		})
	}

	_, err = New([]basis.Term{basis.SplineTerm(0, basis.WithNSplines(2))})
	assert.True(t, errors.As(err, &cfgErr))
}

func TestFitLogging(t *testing.T) {
	testLogger, _ := log.NewTestLogger(log.LevelInfo)
	X, y := sine(60, 0.1, 17)
	fitted(t, X, y, []basis.Term{basis.SplineTerm(0, basis.WithNSplines(8))}, WithLogger(testLogger))

	assert.True(t, testLogger.ContainsMessage("Training GAM"))
	assert.True(t, testLogger.ContainsMessage("GAM training completed"))
	assert.True(t, testLogger.ContainsField(log.ModelNameKey, "GAM"))
	assert.True(t, testLogger.ContainsField(log.SamplesKey, 60.0))
}

func TestConcurrentPrediction(t *testing.T) {
	X, y := sine(100, 0.1, 18)
	m := fitted(t, X, y, []basis.Term{basis.SplineTerm(0, basis.WithNSplines(10))})
	want, err := m.Predict(X)
	require.NoError(t, err)

	done := make(chan mat.Matrix, 8)
	for i := 0; i < 8; i++ {
		go func() {
			p, err := m.Predict(X)
			if err != nil {
				done <- nil
				return
			}
			done <- p
		}()
	}
	for i := 0; i < 8; i++ {
		p := <-done
		require.NotNil(t, p)
		assert.True(t, mat.Equal(want, p))
	}
}

func TestNonFiniteFeatureRejected(t *testing.T) {
	X, y := additive(120, 19)
	terms := []basis.Term{basis.SplineTerm(0, basis.WithNSplines(8)), basis.LinearTerm(1)}

	bad := mat.DenseCopyOf(X)
	bad.Set(7, 1, math.Inf(1))
	m, err := New(terms)
	require.NoError(t, err)
	err = m.Fit(bad, y)
	var instab *errors.NumericalInstabilityError
	require.True(t, errors.As(err, &instab))
	assert.Equal(t, "GAM.Fit", instab.Operation)
	var fitErr *errors.FitError
	assert.False(t, errors.As(err, &fitErr))
	assert.False(t, m.IsFitted())

	require.NoError(t, m.Fit(X, y))
	query := mat.DenseCopyOf(X.Slice(0, 5, 0, 2))
	query.Set(2, 1, math.NaN())
	_, err = m.Predict(query)
	require.True(t, errors.As(err, &instab))
	_, _, err = m.ConfidenceIntervals(query, 0)
	assert.True(t, errors.As(err, &instab))
}

func TestConcurrentFitAndImport(t *testing.T) {
	X, y := counts(150, 20)
	terms := []basis.Term{basis.SplineTerm(0, basis.WithNSplines(10), basis.WithLambda(1))}

	source := fitted(t, X, y, terms, WithFamily(family.PoissonLog), WithFixedLambda())
	snapshot, err := source.ExportWeights()
	require.NoError(t, err)

	m := fitted(t, X, y, terms, WithFixedLambda())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			assert.NoError(t, m.Fit(X, y))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			assert.NoError(t, m.ImportWeights(snapshot))
			_ = m.GetParams()
		}
	}()
	wg.Wait()

	assert.True(t, m.IsFitted())
	_, err = m.Predict(X)
	assert.NoError(t, err)
	assert.Equal(t, "poisson", m.Family().Dist.Name())
}
