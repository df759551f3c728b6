// Package pirls fits penalized generalized linear models by penalized
// iteratively re-weighted least squares (P-IRLS).
//
// Each iteration solves the weighted, penalized least-squares problem
//
//	minimise ‖√W (z - Xβ)‖² + βᵀ P(λ) β
//
// through the QR factorisation of the augmented matrix [√W X; E] with
// EᵀE = P(λ). The factorisation of the converged iteration also yields the
// effective degrees of freedom, the Bayesian covariance of the coefficients
// and the GCV/UBRE scores used for smoothing-parameter selection.
package pirls

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigam/family"
	"github.com/YuminosukeSato/scigam/penalty"
	"github.com/YuminosukeSato/scigam/pkg/errors"
	"github.com/YuminosukeSato/scigam/pkg/log"
)

// State is the phase of a P-IRLS run.
type State int

const (
	Initializing State = iota
	Iterating
	Converged
	Diverged
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Criterion selects the score minimised by smoothing-parameter search.
type Criterion int

const (
	// Auto uses UBRE when the scale is known and GCV otherwise.
	Auto Criterion = iota
	GCV
	UBRE
)

func (c Criterion) String() string {
	switch c {
	case GCV:
		return "gcv"
	case UBRE:
		return "ubre"
	}
	return "auto"
}

// ParseCriterion parses "auto", "gcv" or "ubre".
func ParseCriterion(s string) (Criterion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "gcv":
		return GCV, nil
	case "ubre":
		return UBRE, nil
	}
	return Auto, errors.NewConfigurationError("pirls.ParseCriterion", "criterion", "unknown criterion", s)
}

func (c Criterion) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Criterion) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "criterion must be a string")
	}
	parsed, err := ParseCriterion(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Solver defaults.
const (
	DefaultMaxIter          = 100
	DefaultTol              = 1e-4
	DefaultGamma            = 1.4
	DefaultMaxRidgeAttempts = 6
	DefaultConditionLimit   = 1e12

	maxStepHalvings = 10
)

// DefaultRidge is the stabiliser added to the penalty of every
// non-intercept coefficient. It makes the system full rank when the
// intercept and a spline partition of unity span the same column space.
var DefaultRidge = math.Sqrt(2.220446049250313e-16)

// Problem is the data of a penalized fit. The first column of X is the
// intercept; Penalty covers all p columns and leaves the intercept
// unpenalized.
type Problem struct {
	X       *mat.Dense
	Y       []float64
	Weights []float64 // prior weights; nil means all ones
	Family  family.Family
	Penalty *penalty.BlockDiagonal
}

func (pr Problem) validate(op string) error {
	if pr.X == nil {
		return errors.Wrap(errors.ErrEmptyData, op)
	}
	n, p := pr.X.Dims()
	if n == 0 || p == 0 {
		return errors.Wrap(errors.ErrEmptyData, op)
	}
	if len(pr.Y) != n {
		return errors.NewDimensionError(op, n, len(pr.Y), 0)
	}
	if err := errors.CheckMatrix(op, pr.X, n, p, 0); err != nil {
		return err
	}
	if pr.Weights != nil {
		if len(pr.Weights) != n {
			return errors.NewDimensionError(op, n, len(pr.Weights), 0)
		}
		for _, w := range pr.Weights {
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return errors.NewValueError(op, "observation weights must be finite and non-negative")
			}
		}
	}
	if pr.Penalty == nil || pr.Penalty.Dim() != p {
		got := 0
		if pr.Penalty != nil {
			got = pr.Penalty.Dim()
		}
		return errors.NewDimensionError(op, p, got, 1)
	}
	if pr.Family.Dist == nil || pr.Family.Link == nil {
		return errors.NewConfigurationError(op, "family", "distribution and link are required", nil)
	}
	return pr.Family.ValidateResponse(op, pr.Y)
}

// Solver runs P-IRLS for one Problem. It holds no per-run state, so Solve
// may be called concurrently for different smoothing parameters.
type Solver struct {
	problem Problem
	n, p    int

	maxIter          int
	tol              float64
	ridge            float64
	gamma            float64
	criterion        Criterion
	maxRidgeAttempts int
	conditionLimit   float64
	logger           log.Logger
}

// Option configures a Solver.
type Option func(*Solver)

// WithMaxIter bounds the number of P-IRLS iterations.
func WithMaxIter(n int) Option {
	return func(s *Solver) { s.maxIter = n }
}

// WithTol sets the relative deviance change that counts as converged.
func WithTol(tol float64) Option {
	return func(s *Solver) { s.tol = tol }
}

// WithRidge sets the initial ridge stabiliser.
func WithRidge(ridge float64) Option {
	return func(s *Solver) { s.ridge = ridge }
}

// WithGamma sets the GCV/UBRE inflation factor.
func WithGamma(gamma float64) Option {
	return func(s *Solver) { s.gamma = gamma }
}

// WithCriterion selects the smoothing score.
func WithCriterion(c Criterion) Option {
	return func(s *Solver) { s.criterion = c }
}

// WithMaxRidgeAttempts bounds how often the ridge is raised when the
// augmented system is singular.
func WithMaxRidgeAttempts(n int) Option {
	return func(s *Solver) { s.maxRidgeAttempts = n }
}

// WithConditionLimit sets the condition number above which the augmented
// system counts as singular.
func WithConditionLimit(limit float64) Option {
	return func(s *Solver) { s.conditionLimit = limit }
}

// WithLogger sets the logger used for per-iteration debug output.
func WithLogger(logger log.Logger) Option {
	return func(s *Solver) { s.logger = logger }
}

// NewSolver validates the problem and returns a solver for it.
func NewSolver(problem Problem, opts ...Option) (*Solver, error) {
	const op = "pirls.NewSolver"
	if err := problem.validate(op); err != nil {
		return nil, err
	}
	n, p := problem.X.Dims()
	s := &Solver{
		problem:          problem,
		n:                n,
		p:                p,
		maxIter:          DefaultMaxIter,
		tol:              DefaultTol,
		ridge:            DefaultRidge,
		gamma:            DefaultGamma,
		criterion:        Auto,
		maxRidgeAttempts: DefaultMaxRidgeAttempts,
		conditionLimit:   DefaultConditionLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	switch {
	case s.maxIter < 1:
		return nil, errors.NewConfigurationError(op, "max_iter", "must be positive", s.maxIter)
	case !(s.tol > 0):
		return nil, errors.NewConfigurationError(op, "tol", "must be positive", s.tol)
	case s.ridge < 0:
		return nil, errors.NewConfigurationError(op, "ridge", "must be non-negative", s.ridge)
	case !(s.gamma >= 1):
		return nil, errors.NewConfigurationError(op, "gamma", "must be at least 1", s.gamma)
	case s.maxRidgeAttempts < 0:
		return nil, errors.NewConfigurationError(op, "max_ridge_attempts", "must be non-negative", s.maxRidgeAttempts)
	}
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("pirls")
	}
	return s, nil
}

// Problem returns the problem the solver was built for.
func (s *Solver) Problem() Problem { return s.problem }

// Solve fits the coefficients for the smoothing parameters lambda, one per
// penalty block.
//
// A run that exhausts the iteration budget returns its last state together
// with a ConvergenceError; any other error leaves the result nil. The
// context is checked before every iteration.
func (s *Solver) Solve(ctx context.Context, lambda []float64) (*Result, error) {
	const op = "pirls.Solve"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pen, err := s.problem.Penalty.Scaled(lambda)
	if err != nil {
		return nil, err
	}

	fam := s.problem.Family
	y, prior := s.problem.Y, s.problem.Weights
	n, p := s.n, s.p

	run := &run{
		solver:  s,
		pen:     pen,
		ridge:   s.ridge,
		beta:    make([]float64, p),
		eta:     make([]float64, n),
		mu:      fam.InitialMean(y),
		trialMu: make([]float64, n),
		trialEt: make([]float64, n),
	}
	for i, m := range run.mu {
		run.eta[i] = fam.Link.Link(m)
	}
	devOld := fam.Deviance(y, run.mu, prior)

	res := &Result{Lambda: append([]float64(nil), lambda...)}
	res.Statistics.State = Iterating
	change := math.Inf(1)

	var sol *solution
	iter := 0
	for iter < s.maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter++

		wx, wz := run.workingSystem()
		sol, err = run.solveAugmented(wx, wz)
		if err != nil {
			return nil, err
		}

		dev := run.evaluate(sol.beta)
		for h := 0; !isFinite(dev) && h < maxStepHalvings; h++ {
			for j := range sol.beta {
				sol.beta[j] = (sol.beta[j] + run.beta[j]) / 2
			}
			dev = run.evaluate(sol.beta)
		}
		if !isFinite(dev) {
			return nil, errors.NewNumericalError(op, "deviance is not finite after step halving", run.ridge, sol.cond)
		}
		if err := run.accept(sol.beta, iter); err != nil {
			return nil, err
		}

		change = math.Abs(dev-devOld) / (math.Abs(dev) + 0.1)
		s.logger.Debug("P-IRLS iteration",
			log.IterationKey, iter,
			log.DevianceKey, dev,
			"change", change,
			log.RidgeKey, run.ridge,
		)
		devOld = dev
		if fam.Linear() || change < s.tol {
			res.Statistics.State = Converged
			res.Statistics.Converged = true
			break
		}
	}
	res.Statistics.Iterations = iter

	if err := s.finish(res, run, sol); err != nil {
		return nil, err
	}

	if !res.Statistics.Converged {
		res.Statistics.State = Diverged
		errors.Warn(errors.NewConvergenceWarning("P-IRLS", iter,
			fmt.Sprintf("relative deviance change %.3g is above tol %.3g", change, s.tol)))
		return res, errors.NewConvergenceError("P-IRLS", iter, s.tol, change)
	}
	return res, nil
}

// run is the mutable state of one Solve call.
type run struct {
	solver *Solver
	pen    *mat.SymDense

	ridge     float64
	root      *mat.Dense
	rootRidge float64

	beta, eta, mu    []float64
	trialEt, trialMu []float64
}

// workingSystem returns √W X and √W z for the current mean.
func (r *run) workingSystem() (*mat.Dense, []float64) {
	s := r.solver
	fam := s.problem.Family
	y, prior := s.problem.Y, s.problem.Weights

	wx := mat.NewDense(s.n, s.p, nil)
	wz := make([]float64, s.n)
	row := make([]float64, s.p)
	for i := 0; i < s.n; i++ {
		mu := r.mu[i]
		gp := fam.Link.Derivative(mu)
		w := 1 / (fam.Dist.Variance(mu) * gp * gp)
		if prior != nil {
			w *= prior[i]
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			w = 0
		}
		sw := math.Sqrt(w)
		z := r.eta[i] + (y[i]-mu)*gp
		mat.Row(row, i, s.problem.X)
		floats.Scale(sw, row)
		wx.SetRow(i, row)
		wz[i] = sw * z
	}
	return wx, wz
}

// solution is one solve of the augmented least-squares system.
type solution struct {
	beta []float64
	qr   mat.QR
	wx   *mat.Dense
	cond float64
}

// solveAugmented solves [√W X; E] β ≈ [√W z; 0], raising the ridge by a
// factor of ten while the system is numerically singular.
func (r *run) solveAugmented(wx *mat.Dense, wz []float64) (*solution, error) {
	const op = "pirls.Solve"
	s := r.solver
	var lastCond float64
	for attempt := 0; attempt <= s.maxRidgeAttempts; attempt++ {
		sol, err := r.trySolve(wx, wz)
		if err == nil {
			return sol, nil
		}
		if sol != nil {
			lastCond = sol.cond
		}
		next := r.ridge * 10
		if next < DefaultRidge {
			next = DefaultRidge
		}
		s.logger.Debug("augmented system is singular, raising ridge",
			log.RidgeKey, next,
			"condition", lastCond,
		)
		r.ridge = next
	}
	return nil, errors.NewNumericalError(op, "penalized least-squares system is singular", r.ridge, lastCond)
}

func (r *run) trySolve(wx *mat.Dense, wz []float64) (*solution, error) {
	s := r.solver
	n, p := s.n, s.p
	if r.root == nil || r.rootRidge != r.ridge {
		root, err := penalty.SquareRoot(r.ridged())
		if err != nil {
			return nil, err
		}
		r.root, r.rootRidge = root, r.ridge
	}

	a := mat.NewDense(n+p, p, nil)
	a.Slice(0, n, 0, p).(*mat.Dense).Copy(wx)
	a.Slice(n, n+p, 0, p).(*mat.Dense).Copy(r.root)
	b := mat.NewVecDense(n+p, nil)
	for i, v := range wz {
		b.SetVec(i, v)
	}

	sol := &solution{wx: wx}
	sol.qr.Factorize(a)
	sol.cond = sol.qr.Cond()
	if math.IsNaN(sol.cond) || sol.cond > s.conditionLimit {
		return sol, errors.ErrSingularMatrix
	}
	var beta mat.VecDense
	if err := sol.qr.SolveVecTo(&beta, false, b); err != nil {
		return sol, err
	}
	sol.beta = make([]float64, p)
	for j := range sol.beta {
		sol.beta[j] = beta.AtVec(j)
	}
	return sol, nil
}

// ridged returns P(λ) plus the ridge on every non-intercept diagonal entry.
func (r *run) ridged() *mat.SymDense {
	out := mat.NewSymDense(r.solver.p, nil)
	out.CopySym(r.pen)
	if r.ridge == 0 {
		return out
	}
	for j := 1; j < r.solver.p; j++ {
		out.SetSym(j, j, out.At(j, j)+r.ridge)
	}
	return out
}

// evaluate computes the trial linear predictor, mean and deviance of beta.
func (r *run) evaluate(beta []float64) float64 {
	s := r.solver
	fam := s.problem.Family
	b := mat.NewVecDense(len(beta), beta)
	et := mat.NewVecDense(s.n, r.trialEt)
	et.MulVec(s.problem.X, b)
	fam.Mean(r.trialMu, r.trialEt)
	return fam.Deviance(s.problem.Y, r.trialMu, s.problem.Weights)
}

// accept makes beta and its trial predictor the current state. A
// non-finite coefficient is an error even when the deviance is finite.
func (r *run) accept(beta []float64, iter int) error {
	if err := errors.CheckNumericalStability("pirls.coefficients", beta, iter); err != nil {
		return err
	}
	copy(r.beta, beta)
	copy(r.eta, r.trialEt)
	copy(r.mu, r.trialMu)
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
