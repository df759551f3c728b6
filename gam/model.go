// Package gam fits penalized generalized additive models.
//
// A Model is configured with a list of basis terms and a family. Fit
// freezes the bases on the training data, assembles the design matrix and
// the block-diagonal penalty, selects the smoothing parameters (grid
// search, local search or fixed) and publishes the winning P-IRLS fit.
// A fitted Model is safe for concurrent prediction.
package gam

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigam/basis"
	"github.com/YuminosukeSato/scigam/core/model"
	"github.com/YuminosukeSato/scigam/family"
	"github.com/YuminosukeSato/scigam/penalty"
	"github.com/YuminosukeSato/scigam/pirls"
	"github.com/YuminosukeSato/scigam/pkg/errors"
	"github.com/YuminosukeSato/scigam/pkg/log"
	"github.com/YuminosukeSato/scigam/smoothing"
)

const modelName = "GAM"

var (
	_ model.AdditiveModel  = (*Model)(nil)
	_ model.WeightExporter = (*Model)(nil)
)

// Model is a generalized additive model.
type Model struct {
	cfg    Config
	family family.Family
	logger log.Logger
	state  *model.StateManager

	mu     sync.RWMutex
	fitted *fitState
}

// fitState is everything a fit produces. It is never mutated after being
// published.
type fitState struct {
	family     family.Family
	design     *design
	penalty    *penalty.BlockDiagonal
	lambda     []float64
	coef       []float64
	covariance *mat.SymDense
	stats      Statistics
}

// New returns a model over the given terms. The default family is
// normal/identity and smoothing parameters are chosen by grid search.
func New(terms []basis.Term, opts ...Option) (*Model, error) {
	cfg := DefaultConfig()
	cfg.Terms = append([]basis.Term(nil), terms...)
	return NewFromConfig(cfg, opts...)
}

func (m *Model) validate() error {
	if m.family.Dist == nil || m.family.Link == nil {
		return errors.NewConfigurationError("gam.New", "family", "distribution and link are required", nil)
	}
	return m.cfg.Validate()
}

func (m *Model) init() {
	m.cfg.Terms = append([]basis.Term(nil), m.cfg.Terms...)
	if m.logger == nil {
		m.logger = log.GetLoggerWithName("gam")
	}
	m.logger = m.logger.With(log.ModelNameKey, modelName)
	m.state = model.NewStateManager(modelName)
}

// Config returns a copy of the model configuration.
func (m *Model) Config() Config {
	cfg, _ := m.snapshot()
	return cfg
}

// snapshot copies the configuration and family, which ImportWeights may
// replace concurrently.
func (m *Model) snapshot() (Config, family.Family) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.cfg
	cfg.Terms = append([]basis.Term(nil), m.cfg.Terms...)
	return cfg, m.family
}

// Family returns the distribution/link pair.
func (m *Model) Family() family.Family {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.family
}

// IsFitted reports whether Fit (or ImportWeights) has succeeded.
func (m *Model) IsFitted() bool { return m.state.IsFitted() }

// GetParams returns the hyperparameters.
func (m *Model) GetParams() map[string]interface{} {
	cfg, fam := m.snapshot()
	return map[string]interface{}{
		"n_terms":      len(cfg.Terms),
		"distribution": fam.Dist.Name(),
		"link":         fam.Link.Name(),
		"levels":       cfg.Family.Levels,
		"family_scale": cfg.Family.Scale,
		"criterion":    cfg.Criterion.String(),
		"gamma":        cfg.Gamma,
		"max_iter":     cfg.MaxIter,
		"tol":          cfg.Tol,
		"ridge":        cfg.Ridge,
		"search":       cfg.Search.Strategy.String(),
		"workers":      cfg.Workers,
		"ci_width":     cfg.CIWidth,
	}
}

// Fit fits the model to X (n×features) and the response y (n×1).
func (m *Model) Fit(X, y mat.Matrix) error {
	return m.FitWeighted(context.Background(), X, y, nil)
}

// FitContext is Fit with cancellation. Cancellation is observed between
// smoothing candidates and between P-IRLS iterations.
func (m *Model) FitContext(ctx context.Context, X, y mat.Matrix) error {
	return m.FitWeighted(ctx, X, y, nil)
}

// FitWeighted fits with prior observation weights; nil means unit weights.
// On failure the previously fitted state, if any, is kept.
func (m *Model) FitWeighted(ctx context.Context, X, y mat.Matrix, weights []float64) (err error) {
	const op = "GAM.Fit"
	defer errors.Recover(&err, op)
	start := time.Now()

	n, nFeatures := X.Dims()
	if n == 0 || nFeatures == 0 {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if err := errors.CheckMatrix(op, X, n, nFeatures, 0); err != nil {
		return err
	}
	yv, err := responseVector(op, y, n)
	if err != nil {
		return err
	}
	if weights != nil && len(weights) != n {
		return errors.NewDimensionError(op, n, len(weights), 0)
	}
	cfg, fam := m.snapshot()
	if err := fam.ValidateResponse(op, yv); err != nil {
		return err
	}

	m.logger.Info("Training GAM",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.SamplesKey, n,
		log.FeaturesKey, nFeatures,
		log.FamilyKey, fam.Name(),
	)

	d, err := buildDesign(cfg.Terms, X)
	if err != nil {
		return err
	}
	D, err := d.matrix(X)
	if err != nil {
		return err
	}
	pen, err := d.penalty()
	if err != nil {
		return err
	}

	solver, err := pirls.NewSolver(pirls.Problem{
		X:       D,
		Y:       yv,
		Weights: weights,
		Family:  fam,
		Penalty: pen,
	},
		pirls.WithMaxIter(cfg.MaxIter),
		pirls.WithTol(cfg.Tol),
		pirls.WithRidge(cfg.Ridge),
		pirls.WithGamma(cfg.Gamma),
		pirls.WithCriterion(cfg.Criterion),
		pirls.WithLogger(m.logger),
	)
	if err != nil {
		return err
	}

	searcher, err := m.searcher(cfg)
	if err != nil {
		return err
	}
	sel, err := searcher.Search(ctx, smoothing.ObjectiveFunc(solver.Solve))
	if err != nil {
		m.logger.Error("GAM training failed", err,
			log.OperationKey, log.OperationFit,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
		return err
	}

	res := sel.Best.Result
	fs := &fitState{
		family:     fam,
		design:     d,
		penalty:    pen,
		lambda:     append([]float64(nil), sel.Best.Lambda...),
		coef:       res.Coefficients,
		covariance: res.Covariance,
		stats:      newStatistics(fam, d, yv, weights, res),
	}

	m.mu.Lock()
	m.fitted = fs
	m.mu.Unlock()
	m.state.MarkFitted(nFeatures, n)

	m.logger.Info("GAM training completed",
		log.OperationKey, log.OperationFit,
		log.LambdaKey, fs.lambda,
		log.EDoFKey, fs.stats.EDoF,
		log.DevianceKey, fs.stats.Deviance,
		log.CriterionKey, fs.stats.Criterion.String(),
		log.ScoreKey, fs.stats.Score,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// searcher builds the configured smoothing-parameter strategy.
func (m *Model) searcher(cfg Config) (smoothing.Searcher, error) {
	s := cfg.Search
	nTerms := len(cfg.Terms)
	switch s.Strategy {
	case FixedStrategy:
		lambda := make([]float64, nTerms)
		for i, t := range cfg.Terms {
			lambda[i] = t.Lambda
		}
		return smoothing.NewGridSearch([][]float64{lambda},
			smoothing.WithWorkers(1), smoothing.WithGridLogger(m.logger))
	case LocalStrategy:
		method, err := smoothing.ParseMethod(s.Method)
		if err != nil {
			return nil, err
		}
		start := s.Start
		if start == nil {
			start = smoothing.Ones(nTerms)
		}
		return smoothing.NewLocalSearch(start,
			smoothing.WithMethod(method),
			smoothing.WithLocalTol(s.Tol),
			smoothing.WithMaxIterations(s.MaxIterations),
			smoothing.WithMaxEvaluations(s.MaxEvaluations),
			smoothing.WithLocalLogger(m.logger),
		)
	default:
		candidates := s.Candidates
		if candidates == nil {
			values := s.Values
			if values == nil {
				values = smoothing.DefaultValues()
			}
			candidates = smoothing.CandidateGrid(values, nTerms, s.MaxCandidates)
		}
		return smoothing.NewGridSearch(candidates,
			smoothing.WithWorkers(cfg.Workers), smoothing.WithGridLogger(m.logger))
	}
}

// current returns the published fit or a NotFittedError.
func (m *Model) current(method string) (*fitState, error) {
	if err := m.state.RequireFitted(method); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fitted, nil
}

// checkInput validates X against the training data: its column count and
// finite entries.
func (m *Model) checkInput(op string, X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if err := m.state.RequireFeatures(op, c); err != nil {
		return err
	}
	return errors.CheckMatrix(op, X, r, c, 0)
}

func responseVector(op string, y mat.Matrix, n int) ([]float64, error) {
	ry, cy := y.Dims()
	if ry != n {
		return nil, errors.NewDimensionError(op, n, ry, 0)
	}
	if cy != 1 {
		return nil, errors.NewValueError(op, "y must be a column vector")
	}
	return mat.Col(nil, 0, y), nil
}

// Terms returns the term configurations; after fitting they include the
// placed knots and collected factor levels.
func (m *Model) Terms() []basis.Term {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fitted != nil {
		return m.fitted.design.terms()
	}
	return append([]basis.Term(nil), m.cfg.Terms...)
}

// Coefficients returns a copy of the fitted coefficients, intercept first,
// or nil before fitting.
func (m *Model) Coefficients() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fitted == nil {
		return nil
	}
	return append([]float64(nil), m.fitted.coef...)
}

// Lambdas returns the selected smoothing parameters, one per term.
func (m *Model) Lambdas() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fitted == nil {
		return nil
	}
	return append([]float64(nil), m.fitted.lambda...)
}

// Covariance returns a copy of the Bayesian posterior covariance of the
// coefficients.
func (m *Model) Covariance() (*mat.SymDense, error) {
	fs, err := m.current("Covariance")
	if err != nil {
		return nil, err
	}
	out := mat.NewSymDense(fs.covariance.SymmetricDim(), nil)
	out.CopySym(fs.covariance)
	return out, nil
}

// DesignMatrix evaluates the fitted design matrix for X.
func (m *Model) DesignMatrix(X mat.Matrix) (*mat.Dense, error) {
	const op = "GAM.DesignMatrix"
	fs, err := m.current("DesignMatrix")
	if err != nil {
		return nil, err
	}
	if err := m.checkInput(op, X); err != nil {
		return nil, err
	}
	return fs.design.matrix(X)
}

// PenaltyMatrix returns Σ λ_j S_j at the selected smoothing parameters.
func (m *Model) PenaltyMatrix() (*mat.SymDense, error) {
	fs, err := m.current("PenaltyMatrix")
	if err != nil {
		return nil, err
	}
	return fs.penalty.Scaled(fs.lambda)
}

// Statistics returns the fit statistics.
func (m *Model) Statistics() (Statistics, error) {
	fs, err := m.current("Statistics")
	if err != nil {
		return Statistics{}, err
	}
	return fs.stats.clone(), nil
}
