package smoothing

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/scigam/core/parallel"
	"github.com/YuminosukeSato/scigam/pkg/errors"
	"github.com/YuminosukeSato/scigam/pkg/log"
)

// DefaultMaxCandidates bounds the size of the default cartesian grid.
const DefaultMaxCandidates = 1000

// LogSpace returns num values spaced evenly on a log10 scale from 10^start
// to 10^stop.
func LogSpace(start, stop float64, num int) []float64 {
	if num <= 0 {
		return nil
	}
	out := make([]float64, num)
	if num == 1 {
		out[0] = math.Pow(10, start)
		return out
	}
	return floats.LogSpan(out, math.Pow(10, start), math.Pow(10, stop))
}

// DefaultValues is the per-term grid LogSpace(-3, 3, 11).
func DefaultValues() []float64 { return LogSpace(-3, 3, 11) }

// Grid returns the cartesian product of values over nTerms terms. The last
// term varies fastest.
func Grid(values []float64, nTerms int) [][]float64 {
	if nTerms <= 0 || len(values) == 0 {
		return nil
	}
	total := 1
	for i := 0; i < nTerms; i++ {
		total *= len(values)
	}
	out := make([][]float64, total)
	for c := range out {
		lam := make([]float64, nTerms)
		rem := c
		for j := nTerms - 1; j >= 0; j-- {
			lam[j] = values[rem%len(values)]
			rem /= len(values)
		}
		out[c] = lam
	}
	return out
}

// Diagonal returns one candidate per value with every term sharing it.
func Diagonal(values []float64, nTerms int) [][]float64 {
	out := make([][]float64, len(values))
	for c, v := range values {
		lam := make([]float64, nTerms)
		for j := range lam {
			lam[j] = v
		}
		out[c] = lam
	}
	return out
}

// CandidateGrid returns the cartesian grid when it has at most
// maxCandidates entries and the shared-λ diagonal otherwise.
func CandidateGrid(values []float64, nTerms, maxCandidates int) [][]float64 {
	size := 1.0
	for i := 0; i < nTerms; i++ {
		size *= float64(len(values))
	}
	if size <= float64(maxCandidates) {
		return Grid(values, nTerms)
	}
	return Diagonal(values, nTerms)
}

// GridSearch evaluates a fixed candidate list in parallel.
type GridSearch struct {
	candidates [][]float64
	workers    int
	logger     log.Logger
}

// GridOption configures a GridSearch.
type GridOption func(*GridSearch)

// WithWorkers bounds the worker pool; non-positive means one per CPU.
func WithWorkers(n int) GridOption {
	return func(g *GridSearch) { g.workers = n }
}

// WithGridLogger sets the logger.
func WithGridLogger(logger log.Logger) GridOption {
	return func(g *GridSearch) { g.logger = logger }
}

// NewGridSearch returns a search over the given candidates, each one
// smoothing-parameter vector.
func NewGridSearch(candidates [][]float64, opts ...GridOption) (*GridSearch, error) {
	const op = "smoothing.NewGridSearch"
	if len(candidates) == 0 {
		return nil, errors.NewConfigurationError(op, "candidates", "at least one candidate is required", nil)
	}
	width := len(candidates[0])
	for i, c := range candidates {
		if len(c) != width {
			return nil, errors.NewDimensionError(op, width, len(c), 1)
		}
		for _, v := range c {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.NewConfigurationError(op, "candidates",
					"smoothing parameters must be finite and non-negative", i)
			}
		}
	}
	g := &GridSearch{candidates: candidates}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.GetLoggerWithName("smoothing.grid")
	}
	return g, nil
}

// Candidates returns the candidate list.
func (g *GridSearch) Candidates() [][]float64 { return g.candidates }

// Search evaluates every candidate and returns the one with the lowest
// score; ties go to the earliest candidate. A cancelled context discards
// all partial results and returns the context error.
func (g *GridSearch) Search(ctx context.Context, obj Objective) (*Selection, error) {
	const op = "GridSearch.Search"
	start := time.Now()
	workers := parallel.Workers(g.workers, len(g.candidates))
	g.logger.Debug("Grid search started",
		log.PhaseKey, log.PhaseSmoothing,
		"candidates", len(g.candidates),
		log.WorkersKey, workers,
	)

	evals := make([]Evaluation, len(g.candidates))
	err := parallel.ForEach(ctx, len(g.candidates), workers, func(ctx context.Context, i int) {
		evals[i] = evaluate(ctx, obj, i, g.candidates[i])
		if evals[i].Failed() {
			g.logger.Debug("Candidate disqualified",
				log.CandidateKey, i,
				log.LambdaKey, g.candidates[i],
				"error", evals[i].Err.Error(),
			)
		}
	})
	if err != nil {
		return nil, err
	}

	sel, err := selectBest(op, evals)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("Grid search completed",
		log.CandidateKey, sel.Best.Index,
		log.LambdaKey, sel.Best.Lambda,
		log.ScoreKey, sel.Best.Score,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return sel, nil
}
