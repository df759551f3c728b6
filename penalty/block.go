package penalty

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// BlockDiagonal holds the unscaled per-term penalty blocks of a model and
// their column offsets in the design matrix. Columns not covered by a block
// (the intercept) are unpenalised.
type BlockDiagonal struct {
	dim     int
	offsets []int
	blocks  []*mat.SymDense
}

// NewBlockDiagonal returns an empty assembly for a dim×dim penalty.
func NewBlockDiagonal(dim int) *BlockDiagonal {
	return &BlockDiagonal{dim: dim}
}

// Add appends the block of the next term at the given column offset.
// Blocks must be added in column order and must not overlap.
func (b *BlockDiagonal) Add(offset int, block *mat.SymDense) error {
	size := block.SymmetricDim()
	if offset < 0 || offset+size > b.dim {
		return errors.NewConfigurationError("BlockDiagonal.Add", "offset", "block exceeds penalty dimension", offset)
	}
	if n := len(b.blocks); n > 0 {
		if end := b.offsets[n-1] + b.blocks[n-1].SymmetricDim(); offset < end {
			return errors.NewConfigurationError("BlockDiagonal.Add", "offset", "block overlaps the previous block", offset)
		}
	}
	b.offsets = append(b.offsets, offset)
	b.blocks = append(b.blocks, block)
	return nil
}

// Dim returns the dimension of the assembled penalty.
func (b *BlockDiagonal) Dim() int { return b.dim }

// NumBlocks returns the number of term blocks.
func (b *BlockDiagonal) NumBlocks() int { return len(b.blocks) }

// Block returns the offset and unscaled matrix of block i.
func (b *BlockDiagonal) Block(i int) (int, *mat.SymDense) {
	return b.offsets[i], b.blocks[i]
}

// Scaled returns Σ λ_j S_j embedded at each block's offset.
func (b *BlockDiagonal) Scaled(lambda []float64) (*mat.SymDense, error) {
	if len(lambda) != len(b.blocks) {
		return nil, errors.NewDimensionError("BlockDiagonal.Scaled", len(b.blocks), len(lambda), 0)
	}
	out := mat.NewSymDense(b.dim, nil)
	for k, blk := range b.blocks {
		l := lambda[k]
		if l < 0 || math.IsNaN(l) {
			return nil, errors.NewConfigurationError("BlockDiagonal.Scaled", "lambda", "smoothing parameters must be non-negative", l)
		}
		off := b.offsets[k]
		n := blk.SymmetricDim()
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				out.SetSym(off+i, off+j, l*blk.At(i, j))
			}
		}
	}
	return out, nil
}
