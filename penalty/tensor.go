package penalty

import (
	"gonum.org/v1/gonum/mat"
)

// Tensor returns the Kronecker-sum penalty of a tensor-product term,
// Σ_k I⊗…⊗S_k⊗…⊗I, where S_k is the penalty of marginal k and the identity
// factors match the other marginals' widths. The first marginal varies slowest,
// matching the column order of the row-wise Kronecker basis.
func Tensor(marginals ...mat.Symmetric) *mat.SymDense {
	sizes := make([]int, len(marginals))
	total := 1
	for i, m := range marginals {
		sizes[i] = m.SymmetricDim()
		total *= sizes[i]
	}

	sum := mat.NewDense(total, total, nil)
	for k, sk := range marginals {
		var term mat.Matrix = identityOrPenalty(sizes[0], 0, k, sk)
		for j := 1; j < len(marginals); j++ {
			var next mat.Dense
			next.Kronecker(term, identityOrPenalty(sizes[j], j, k, sk))
			term = &next
		}
		sum.Add(sum, term)
	}
	return symmetrize(sum)
}

func identityOrPenalty(size, pos, k int, sk mat.Symmetric) mat.Matrix {
	if pos == k {
		return sk
	}
	return RidgePenalty(size)
}

// symmetrize copies the average of a and aᵀ into a SymDense, removing the
// rounding asymmetry of dense products.
func symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}
