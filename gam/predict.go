package gam

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/scigam/metrics"
	"github.com/YuminosukeSato/scigam/pkg/errors"
	"github.com/YuminosukeSato/scigam/pkg/log"
)

// PartialDependence is the contribution of one term with a pointwise band.
type PartialDependence struct {
	Contribution []float64
	Lower        []float64
	Upper        []float64
}

// PredictLinear returns the linear predictor η = Dβ as an n×1 matrix.
func (m *Model) PredictLinear(X mat.Matrix) (mat.Matrix, error) {
	const op = "GAM.PredictLinear"
	fs, err := m.current("PredictLinear")
	if err != nil {
		return nil, err
	}
	if err := m.checkInput(op, X); err != nil {
		return nil, err
	}
	eta, _, err := m.linear(fs, X)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(len(eta), 1, eta), nil
}

// Predict returns the fitted means g⁻¹(η) as an n×1 matrix.
func (m *Model) Predict(X mat.Matrix) (_ mat.Matrix, err error) {
	const op = "GAM.Predict"
	defer errors.Recover(&err, op)
	fs, err := m.current("Predict")
	if err != nil {
		return nil, err
	}
	if err := m.checkInput(op, X); err != nil {
		return nil, err
	}
	eta, _, err := m.linear(fs, X)
	if err != nil {
		return nil, err
	}
	mu := make([]float64, len(eta))
	fs.family.Mean(mu, eta)
	m.logger.Debug("Prediction completed",
		log.OperationKey, log.OperationPredict,
		log.PhaseKey, log.PhaseInference,
		log.SamplesKey, len(mu),
	)
	return mat.NewDense(len(mu), 1, mu), nil
}

// linear evaluates the design and η for X.
func (m *Model) linear(fs *fitState, X mat.Matrix) ([]float64, *mat.Dense, error) {
	D, err := fs.design.matrix(X)
	if err != nil {
		return nil, nil, err
	}
	var eta mat.VecDense
	eta.MulVec(D, mat.NewVecDense(len(fs.coef), fs.coef))
	return mat.Col(nil, 0, &eta), D, nil
}

// PredictPartial returns the contribution of term k, without intercept,
// as an n×1 matrix.
func (m *Model) PredictPartial(X mat.Matrix, term int) (mat.Matrix, error) {
	pd, err := m.partial("PredictPartial", X, term, 0)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(len(pd.Contribution), 1, pd.Contribution), nil
}

// PartialDependence returns the contribution of term k with a pointwise
// band of the given coverage computed from the term's covariance block.
// A width of zero uses the configured CIWidth.
func (m *Model) PartialDependence(X mat.Matrix, term int, width float64) (*PartialDependence, error) {
	if width == 0 {
		width = m.cfg.CIWidth
	}
	return m.partial("PartialDependence", X, term, width)
}

func (m *Model) partial(method string, X mat.Matrix, term int, width float64) (*PartialDependence, error) {
	op := "GAM." + method
	fs, err := m.current(method)
	if err != nil {
		return nil, err
	}
	if err := m.checkInput(op, X); err != nil {
		return nil, err
	}
	if term < 0 || term >= len(fs.design.bases) {
		return nil, errors.NewValueError(op, "term index out of range")
	}
	var q float64
	if width != 0 {
		if q, err = m.quantile(op, fs, width); err != nil {
			return nil, err
		}
	}

	B, err := fs.design.termMatrix(X, term)
	if err != nil {
		return nil, err
	}
	lo, hi := fs.design.block(term)
	beta := mat.NewVecDense(hi-lo, fs.coef[lo:hi])
	var c mat.VecDense
	c.MulVec(B, beta)
	pd := &PartialDependence{Contribution: mat.Col(nil, 0, &c)}
	if width == 0 {
		return pd, nil
	}

	se := standardErrors(B, fs.covariance.SliceSym(lo, hi))
	pd.Lower = make([]float64, len(se))
	pd.Upper = make([]float64, len(se))
	for i, s := range se {
		pd.Lower[i] = pd.Contribution[i] - q*s
		pd.Upper[i] = pd.Contribution[i] + q*s
	}
	return pd, nil
}

// ConfidenceIntervals returns pointwise bounds on the mean. The band is
// built on η and mapped through the inverse link. A width of zero uses the
// configured CIWidth.
func (m *Model) ConfidenceIntervals(X mat.Matrix, width float64) (lower, upper mat.Matrix, err error) {
	const op = "GAM.ConfidenceIntervals"
	defer errors.Recover(&err, op)
	fs, err := m.current("ConfidenceIntervals")
	if err != nil {
		return nil, nil, err
	}
	if err := m.checkInput(op, X); err != nil {
		return nil, nil, err
	}
	if width == 0 {
		width = m.cfg.CIWidth
	}
	q, err := m.quantile(op, fs, width)
	if err != nil {
		return nil, nil, err
	}
	eta, D, err := m.linear(fs, X)
	if err != nil {
		return nil, nil, err
	}
	se := standardErrors(D, fs.covariance)

	n := len(eta)
	lo := make([]float64, n)
	hi := make([]float64, n)
	for i := range eta {
		a := fs.family.Link.Inverse(eta[i] - q*se[i])
		b := fs.family.Link.Inverse(eta[i] + q*se[i])
		// decreasing links swap the bounds
		lo[i], hi[i] = math.Min(a, b), math.Max(a, b)
	}
	return mat.NewDense(n, 1, lo), mat.NewDense(n, 1, hi), nil
}

// quantile returns the two-sided critical value for width. The Student-t
// is used with n - edof degrees of freedom when the scale was estimated.
func (m *Model) quantile(op string, fs *fitState, width float64) (float64, error) {
	if !(width > 0 && width < 1) {
		return 0, errors.NewValueError(op, "width must lie in (0, 1)")
	}
	p := 1 - (1-width)/2
	if fs.stats.ScaleEstimated {
		if df := float64(fs.stats.NSamples) - fs.stats.EDoF; df > 0 {
			return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(p), nil
		}
	}
	return distuv.UnitNormal.Quantile(p), nil
}

// standardErrors returns sqrt(dᵢᵀ V dᵢ) for every row dᵢ of D.
func standardErrors(D *mat.Dense, V mat.Symmetric) []float64 {
	n, p := D.Dims()
	var DV mat.Dense
	DV.Mul(D, V)
	se := make([]float64, n)
	for i := 0; i < n; i++ {
		v := floats.Dot(DV.RawRowView(i), D.RawRowView(i)[:p])
		se[i] = math.Sqrt(math.Max(v, 0))
	}
	return se
}

// Score returns the explained deviance 1 - D/D0 of the model on (X, y).
func (m *Model) Score(X, y mat.Matrix) (_ float64, err error) {
	const op = "GAM.Score"
	defer errors.Recover(&err, op)
	fs, err := m.current("Score")
	if err != nil {
		return 0, err
	}
	if err := m.checkInput(op, X); err != nil {
		return 0, err
	}
	n, _ := X.Dims()
	yv, err := responseVector(op, y, n)
	if err != nil {
		return 0, err
	}
	if err := fs.family.ValidateResponse(op, yv); err != nil {
		return 0, err
	}
	eta, _, err := m.linear(fs, X)
	if err != nil {
		return 0, err
	}
	mu := make([]float64, n)
	fs.family.Mean(mu, eta)
	score := metrics.ExplainedDeviance(fs.family.Deviance(yv, mu, nil), fs.family.NullDeviance(yv, nil))
	m.logger.Debug("Scoring completed",
		log.OperationKey, log.OperationScore,
		log.SamplesKey, n,
		log.ScoreKey, score,
	)
	return score, nil
}

// Sample draws nDraws simulated responses for every row of X from the
// fitted mean and distribution. The result is nDraws×n. The same seed
// always yields the same draws.
func (m *Model) Sample(X mat.Matrix, nDraws int, seed uint64) (_ *mat.Dense, err error) {
	const op = "GAM.Sample"
	defer errors.Recover(&err, op)
	fs, err := m.current("Sample")
	if err != nil {
		return nil, err
	}
	if err := m.checkInput(op, X); err != nil {
		return nil, err
	}
	if nDraws < 1 {
		return nil, errors.NewValueError(op, "nDraws must be positive")
	}
	eta, _, err := m.linear(fs, X)
	if err != nil {
		return nil, err
	}
	mu := make([]float64, len(eta))
	fs.family.Mean(mu, eta)

	src := rand.NewPCG(seed, seed)
	out := mat.NewDense(nDraws, len(mu), nil)
	for d := 0; d < nDraws; d++ {
		row := out.RawRowView(d)
		for i, v := range mu {
			row[i] = fs.family.Dist.Sample(v, fs.stats.Scale, src)
		}
	}
	m.logger.Debug("Sampling completed",
		log.OperationKey, log.OperationSample,
		log.SamplesKey, len(mu),
		"draws", nDraws,
	)
	return out, nil
}
