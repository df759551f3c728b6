package basis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/scigam/core/parallel"
	"github.com/YuminosukeSato/scigam/penalty"
	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// parallelRowThreshold is the row count above which evaluation is split
// across CPU cores.
const parallelRowThreshold = 2048

// Basis is the frozen evaluator of one term. It is immutable and safe for
// concurrent use.
type Basis struct {
	term      Term
	width     int
	spline    *bspline
	levels    map[float64]int
	marginals []*Basis
}

// Build validates the term, derives its data-dependent configuration from
// the columns of X and returns the frozen basis. X may be nil when the
// configuration is already complete (explicit knots and levels, or a
// linear term), as when restoring a model from a snapshot.
func (t Term) Build(X mat.Matrix) (*Basis, error) {
	nFeatures := math.MaxInt
	if X != nil {
		_, nFeatures = X.Dims()
	}
	if err := t.Validate(nFeatures); err != nil {
		return nil, err
	}

	frozen := t
	b := &Basis{}
	switch t.Kind {
	case Spline:
		if frozen.Knots == nil {
			col, err := column(X, t.Feature)
			if err != nil {
				return nil, err
			}
			knots, err := placeKnots(col, t.NSplines-t.Order+1, t.KnotPlacement)
			if err != nil {
				return nil, err
			}
			frozen.Knots = knots
		} else {
			frozen.Knots = append([]float64(nil), t.Knots...)
		}
		b.spline = newBSpline(frozen.Knots, frozen.Order)
		b.width = frozen.NSplines
	case Linear:
		b.width = 1
	case Factor:
		if frozen.Levels == nil {
			col, err := column(X, t.Feature)
			if err != nil {
				return nil, err
			}
			frozen.Levels = distinctSorted(col)
		} else {
			frozen.Levels = append([]float64(nil), t.Levels...)
		}
		b.levels = make(map[float64]int, len(frozen.Levels))
		for i, l := range frozen.Levels {
			b.levels[l] = i
		}
		b.width = len(frozen.Levels)
	case Tensor:
		frozen.Marginals = make([]Term, len(t.Marginals))
		b.width = 1
		for i, m := range t.Marginals {
			mb, err := m.Build(X)
			if err != nil {
				return nil, errors.Wrapf(err, "tensor marginal %d", i)
			}
			b.marginals = append(b.marginals, mb)
			frozen.Marginals[i] = mb.term
			b.width *= mb.width
		}
	}
	b.term = frozen
	return b, nil
}

func column(X mat.Matrix, j int) ([]float64, error) {
	if X == nil {
		return nil, errors.NewConfigurationError("Term.Build", "X",
			"training data is required to place knots or collect factor levels", nil)
	}
	n, _ := X.Dims()
	if n == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "Term.Build")
	}
	return mat.Col(nil, j, X), nil
}

// placeKnots returns m strictly increasing breakpoints spanning the column.
func placeKnots(col []float64, m int, placement KnotPlacement) ([]float64, error) {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, errors.NewConfigurationError("Term.Build", "X", "feature column contains non-finite values", nil)
	}
	if !(hi > lo) {
		return nil, errors.NewConfigurationError("Term.Build", "X",
			"cannot place spline knots on a constant feature column", lo)
	}

	knots := make([]float64, m)
	if placement == Quantile {
		for j := range knots {
			knots[j] = stat.Quantile(float64(j)/float64(m-1), stat.Empirical, sorted, nil)
		}
		knots[0], knots[m-1] = lo, hi
		if strictlyIncreasing(knots) {
			return knots, nil
		}
		// tied quantiles: fall back to uniform spacing
	}
	floats.Span(knots, lo, hi)
	return knots, nil
}

func strictlyIncreasing(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if !(v[i] > v[i-1]) {
			return false
		}
	}
	return true
}

func distinctSorted(col []float64) []float64 {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return append([]float64(nil), out...)
}

// Term returns the frozen configuration, including placed knots and
// collected factor levels.
func (b *Basis) Term() Term { return b.term }

// Width returns the number of columns the basis produces.
func (b *Basis) Width() int { return b.width }

// Evaluate returns the n×Width basis matrix for the rows of X.
func (b *Basis) Evaluate(X mat.Matrix) (*mat.Dense, error) {
	n, _ := X.Dims()
	dst := mat.NewDense(n, b.width, nil)
	if err := b.EvaluateTo(dst, X); err != nil {
		return nil, err
	}
	return dst, nil
}

// EvaluateTo writes the basis matrix for the rows of X into dst, which must
// be n×Width (typically a column slice of a design matrix).
func (b *Basis) EvaluateTo(dst *mat.Dense, X mat.Matrix) error {
	n, nFeatures := X.Dims()
	r, c := dst.Dims()
	if r != n || c != b.width {
		return errors.NewDimensionError("Basis.EvaluateTo", b.width, c, 1)
	}
	for _, f := range b.term.Features() {
		if f >= nFeatures {
			return errors.NewConfigurationError("Basis.EvaluateTo", "feature",
				fmt.Sprintf("term reads column %d but X has %d columns", f, nFeatures), f)
		}
	}

	var firstErr error
	errs := make([]error, n)
	parallel.ParallelizeWithThreshold(n, parallelRowThreshold, func(start, end int) {
		row := make([]float64, b.width)
		for i := start; i < end; i++ {
			if err := b.evalRow(X, i, row); err != nil {
				errs[i] = err
				return
			}
			dst.SetRow(i, row)
		}
	})
	for _, err := range errs {
		if err != nil {
			firstErr = err
			break
		}
	}
	return firstErr
}

// evalRow writes the basis values of row i of X into row.
func (b *Basis) evalRow(X mat.Matrix, i int, row []float64) error {
	switch b.term.Kind {
	case Spline:
		b.spline.evalRow(X.At(i, b.term.Feature), row)
	case Linear:
		row[0] = X.At(i, b.term.Feature)
	case Factor:
		for k := range row {
			row[k] = 0
		}
		v := X.At(i, b.term.Feature)
		k, ok := b.levels[v]
		if ok {
			row[k] = 1
		} else if b.term.Strict {
			return errors.NewConfigurationError("Basis.Evaluate", "levels",
				fmt.Sprintf("unseen factor level in column %d at row %d", b.term.Feature, i), v)
		}
	case Tensor:
		return b.tensorRow(X, i, row)
	}
	return nil
}

// tensorRow writes the row-wise Kronecker product of the marginal rows.
// The first marginal varies slowest.
func (b *Basis) tensorRow(X mat.Matrix, i int, row []float64) error {
	row[0] = 1
	width := 1
	for _, m := range b.marginals {
		mrow := make([]float64, m.width)
		if err := m.evalRow(X, i, mrow); err != nil {
			return err
		}
		// expand in place from the back so earlier entries are read before overwritten
		for a := width - 1; a >= 0; a-- {
			left := row[a]
			for c := m.width - 1; c >= 0; c-- {
				row[a*m.width+c] = left * mrow[c]
			}
		}
		width *= m.width
	}
	return nil
}

// Penalty returns the unscaled penalty block of the term.
func (b *Basis) Penalty() (*mat.SymDense, error) {
	if b.term.Kind != Tensor {
		return penalty.Build(b.term.Penalty, b.width, b.term.PenaltyOrder)
	}
	blocks := make([]mat.Symmetric, len(b.marginals))
	for i, m := range b.marginals {
		s, err := m.Penalty()
		if err != nil {
			return nil, err
		}
		blocks[i] = s
	}
	return penalty.Tensor(blocks...), nil
}
