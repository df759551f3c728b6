package smoothing

import (
	"context"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/scigam/pkg/errors"
	"github.com/YuminosukeSato/scigam/pkg/log"
)

// Method is the local optimisation algorithm.
type Method int

const (
	NelderMead Method = iota
	BFGS
)

func (m Method) String() string {
	if m == BFGS {
		return "bfgs"
	}
	return "nelder-mead"
}

// ParseMethod parses "nelder-mead" or "bfgs".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nelder-mead", "neldermead", "nelder_mead":
		return NelderMead, nil
	case "bfgs":
		return BFGS, nil
	}
	return NelderMead, errors.NewConfigurationError("smoothing.ParseMethod", "method", "unknown local search method", s)
}

// Local search defaults.
const (
	DefaultLocalTol       = 1e-4
	DefaultMaxIterations  = 50
	DefaultMaxEvaluations = 200

	// log10 λ is confined to this range.
	minLog10 = -8
	maxLog10 = 8

	// failedScore stands in for +Inf so the optimiser's arithmetic stays finite.
	failedScore = math.MaxFloat64 / 4
)

// LocalSearch minimises the score over log10 λ starting from Start.
type LocalSearch struct {
	start          []float64
	method         Method
	tol            float64
	maxIterations  int
	maxEvaluations int
	logger         log.Logger
}

// LocalOption configures a LocalSearch.
type LocalOption func(*LocalSearch)

// WithMethod selects the optimisation algorithm.
func WithMethod(m Method) LocalOption {
	return func(l *LocalSearch) { l.method = m }
}

// WithLocalTol sets the relative score improvement below which the search stops.
func WithLocalTol(tol float64) LocalOption {
	return func(l *LocalSearch) { l.tol = tol }
}

// WithMaxIterations bounds the number of major iterations.
func WithMaxIterations(n int) LocalOption {
	return func(l *LocalSearch) { l.maxIterations = n }
}

// WithMaxEvaluations bounds the number of objective evaluations.
func WithMaxEvaluations(n int) LocalOption {
	return func(l *LocalSearch) { l.maxEvaluations = n }
}

// WithLocalLogger sets the logger.
func WithLocalLogger(logger log.Logger) LocalOption {
	return func(l *LocalSearch) { l.logger = logger }
}

// NewLocalSearch returns a local search seeded at start, one positive value
// per term. A nil start is not allowed; use Ones for the usual seed.
func NewLocalSearch(start []float64, opts ...LocalOption) (*LocalSearch, error) {
	const op = "smoothing.NewLocalSearch"
	if len(start) == 0 {
		return nil, errors.NewConfigurationError(op, "start", "at least one smoothing parameter is required", nil)
	}
	for _, v := range start {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, errors.NewConfigurationError(op, "start", "seed values must be positive and finite", v)
		}
	}
	l := &LocalSearch{
		start:          append([]float64(nil), start...),
		method:         NelderMead,
		tol:            DefaultLocalTol,
		maxIterations:  DefaultMaxIterations,
		maxEvaluations: DefaultMaxEvaluations,
	}
	for _, opt := range opts {
		opt(l)
	}
	if !(l.tol > 0) {
		return nil, errors.NewConfigurationError(op, "tol", "must be positive", l.tol)
	}
	if l.maxIterations < 1 || l.maxEvaluations < 1 {
		return nil, errors.NewConfigurationError(op, "max_iterations", "iteration and evaluation limits must be positive", nil)
	}
	if l.logger == nil {
		l.logger = log.GetLoggerWithName("smoothing.local")
	}
	return l, nil
}

// Ones returns a start vector of n ones.
func Ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// Search runs the optimiser. Every evaluation is recorded in order; the best
// one wins with the same tie rule as GridSearch.
func (l *LocalSearch) Search(ctx context.Context, obj Objective) (*Selection, error) {
	const op = "LocalSearch.Search"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	begin := time.Now()

	var evals []Evaluation
	f := func(x []float64) float64 {
		lambda := make([]float64, len(x))
		for j, v := range x {
			lambda[j] = math.Pow(10, math.Max(minLog10, math.Min(maxLog10, v)))
		}
		ev := evaluate(ctx, obj, len(evals), lambda)
		evals = append(evals, ev)
		if ev.Failed() || math.IsInf(ev.Score, 1) {
			return failedScore
		}
		return ev.Score
	}

	problem := optimize.Problem{Func: f}
	var method optimize.Method
	switch l.method {
	case BFGS:
		problem.Grad = func(grad, x []float64) {
			fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central, Step: 1e-3})
		}
		method = &optimize.BFGS{}
	default:
		// one decade per simplex edge
		method = &optimize.NelderMead{SimplexSize: 1}
	}

	x0 := make([]float64, len(l.start))
	for j, v := range l.start {
		x0[j] = math.Log10(v)
	}
	settings := &optimize.Settings{
		MajorIterations: l.maxIterations,
		FuncEvaluations: l.maxEvaluations,
		Converger: &optimize.FunctionConverge{
			Relative:   l.tol,
			Iterations: 3,
		},
		Recorder: &cancelRecorder{ctx: ctx},
	}

	result, err := optimize.Minimize(problem, x0, settings, method)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil && best(evals) < 0 {
		return nil, errors.NewFitError(op, append(failures(evals), err))
	}
	if err != nil {
		l.logger.Debug("Local search stopped early", "error", err.Error())
	}

	sel, selErr := selectBest(op, evals)
	if selErr != nil {
		return nil, selErr
	}
	status := ""
	if result != nil {
		status = result.Status.String()
	}
	l.logger.Debug("Local search completed",
		log.PhaseKey, log.PhaseSmoothing,
		"method", l.method.String(),
		"status", status,
		"evaluations", len(evals),
		log.LambdaKey, sel.Best.Lambda,
		log.ScoreKey, sel.Best.Score,
		log.DurationMsKey, time.Since(begin).Milliseconds(),
	)
	return sel, nil
}

func failures(evals []Evaluation) []error {
	var out []error
	for _, ev := range evals {
		if ev.Err != nil {
			out = append(out, ev.Err)
		}
	}
	return out
}

// cancelRecorder stops the optimiser once the context is done.
type cancelRecorder struct {
	ctx context.Context
}

func (r *cancelRecorder) Init() error { return r.ctx.Err() }

func (r *cancelRecorder) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return r.ctx.Err()
}
