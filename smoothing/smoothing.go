// Package smoothing selects the smoothing parameters of a penalized fit.
//
// Two strategies are provided. GridSearch evaluates a fixed list of
// candidate vectors on a bounded worker pool and keeps the one with the
// lowest score. LocalSearch minimises the score over log10 λ with a
// derivative-free (Nelder–Mead) or quasi-Newton (BFGS) method from
// gonum/optimize. Both disqualify candidates whose fit fails and report a
// FitError when every candidate fails.
package smoothing

import (
	"context"
	"math"

	"github.com/YuminosukeSato/scigam/pirls"
	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// Objective fits a model for one smoothing-parameter vector.
type Objective interface {
	Evaluate(ctx context.Context, lambda []float64) (*pirls.Result, error)
}

// ObjectiveFunc adapts a function to Objective.
type ObjectiveFunc func(ctx context.Context, lambda []float64) (*pirls.Result, error)

// Evaluate calls f(ctx, lambda).
func (f ObjectiveFunc) Evaluate(ctx context.Context, lambda []float64) (*pirls.Result, error) {
	return f(ctx, lambda)
}

// Searcher is a smoothing-parameter selection strategy.
type Searcher interface {
	Search(ctx context.Context, obj Objective) (*Selection, error)
}

// Evaluation is the outcome of one candidate.
type Evaluation struct {
	Index  int
	Lambda []float64
	Result *pirls.Result
	// Score is +Inf for failed candidates.
	Score float64
	Err   error
}

// Failed reports whether the candidate was disqualified.
func (e Evaluation) Failed() bool { return e.Err != nil || e.Result == nil }

// Selection is the outcome of a search.
type Selection struct {
	Best        Evaluation
	Evaluations []Evaluation
}

// evaluate runs one candidate, converting panics and non-converged fits
// into disqualifying errors.
func evaluate(ctx context.Context, obj Objective, index int, lambda []float64) Evaluation {
	ev := Evaluation{Index: index, Lambda: append([]float64(nil), lambda...), Score: math.Inf(1)}
	var res *pirls.Result
	err := errors.SafeExecute("smoothing.candidate", func() error {
		var err error
		res, err = obj.Evaluate(ctx, ev.Lambda)
		return err
	})
	if err != nil {
		ev.Err = errors.Wrapf(err, "candidate %d", index)
		return ev
	}
	if res == nil {
		ev.Err = errors.Newf("candidate %d: objective returned no result", index)
		return ev
	}
	ev.Result = res
	ev.Score = res.Score()
	if math.IsNaN(ev.Score) {
		ev.Score = math.Inf(1)
	}
	return ev
}

// best returns the position in evals of the lowest score, ties going to the
// lowest index; -1 when every candidate failed.
func best(evals []Evaluation) int {
	pos := -1
	for i, ev := range evals {
		if ev.Failed() {
			continue
		}
		if pos < 0 || ev.Score < evals[pos].Score ||
			(ev.Score == evals[pos].Score && ev.Index < evals[pos].Index) {
			pos = i
		}
	}
	return pos
}

func selectBest(op string, evals []Evaluation) (*Selection, error) {
	pos := best(evals)
	if pos < 0 {
		failures := make([]error, 0, len(evals))
		for _, ev := range evals {
			if ev.Err != nil {
				failures = append(failures, ev.Err)
			}
		}
		return nil, errors.NewFitError(op, failures)
	}
	return &Selection{Best: evals[pos], Evaluations: evals}, nil
}
