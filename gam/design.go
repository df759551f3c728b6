package gam

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigam/basis"
	"github.com/YuminosukeSato/scigam/penalty"
	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// design is the frozen column layout of a model: the intercept in column 0
// followed by one block per term.
type design struct {
	bases   []*basis.Basis
	offsets []int
	width   int
}

// buildDesign freezes every term against the training columns. X may be
// nil when the terms are already frozen.
func buildDesign(terms []basis.Term, X mat.Matrix) (*design, error) {
	d := &design{
		bases:   make([]*basis.Basis, len(terms)),
		offsets: make([]int, len(terms)),
		width:   1,
	}
	for i, t := range terms {
		b, err := t.Build(X)
		if err != nil {
			return nil, errors.Wrapf(err, "term %d", i)
		}
		d.bases[i] = b
		d.offsets[i] = d.width
		d.width += b.Width()
	}
	return d, nil
}

// terms returns the frozen term configurations.
func (d *design) terms() []basis.Term {
	out := make([]basis.Term, len(d.bases))
	for i, b := range d.bases {
		out[i] = b.Term()
	}
	return out
}

// block returns the column range [lo, hi) of term i.
func (d *design) block(i int) (lo, hi int) {
	return d.offsets[i], d.offsets[i] + d.bases[i].Width()
}

// matrix evaluates the n×p design matrix for the rows of X.
func (d *design) matrix(X mat.Matrix) (*mat.Dense, error) {
	n, _ := X.Dims()
	D := mat.NewDense(n, d.width, nil)
	for i := 0; i < n; i++ {
		D.Set(i, 0, 1)
	}
	for k, b := range d.bases {
		lo, hi := d.block(k)
		if err := b.EvaluateTo(D.Slice(0, n, lo, hi).(*mat.Dense), X); err != nil {
			return nil, errors.Wrapf(err, "term %d", k)
		}
	}
	// blocks must tile columns 1..p-1 exactly
	if _, hi := d.block(len(d.bases) - 1); hi != d.width {
		return nil, errors.NewDimensionError("gam.design", d.width, hi, 1)
	}
	return D, nil
}

// termMatrix evaluates the block of term k only.
func (d *design) termMatrix(X mat.Matrix, k int) (*mat.Dense, error) {
	return d.bases[k].Evaluate(X)
}

// penalty assembles the unscaled block-diagonal penalty; the intercept is
// left unpenalized.
func (d *design) penalty() (*penalty.BlockDiagonal, error) {
	pen := penalty.NewBlockDiagonal(d.width)
	for k, b := range d.bases {
		s, err := b.Penalty()
		if err != nil {
			return nil, errors.Wrapf(err, "term %d", k)
		}
		if err := pen.Add(d.offsets[k], s); err != nil {
			return nil, err
		}
	}
	return pen, nil
}
