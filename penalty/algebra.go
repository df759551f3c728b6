package penalty

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// DefaultEigenTol is the relative eigenvalue threshold below which a
// direction is treated as unpenalised.
const DefaultEigenTol = 1e-8

func eigen(op string, s mat.Symmetric) ([]float64, *mat.Dense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(s, true); !ok {
		return nil, nil, errors.NewNumericalError(op, "eigendecomposition failed", 0, math.Inf(1))
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	return values, &vectors, nil
}

// NullSpaceDim returns the number of eigenvalues of s that are at most
// tol times the largest absolute eigenvalue. A zero matrix has a full null space.
func NullSpaceDim(s mat.Symmetric, tol float64) (int, error) {
	values, _, err := eigen("penalty.NullSpaceDim", s)
	if err != nil {
		return 0, err
	}
	maxAbs := 0.0
	for _, v := range values {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	if maxAbs == 0 {
		return len(values), nil
	}
	n := 0
	for _, v := range values {
		if v <= tol*maxAbs {
			n++
		}
	}
	return n, nil
}

// IsPSD reports whether s is symmetric positive-semidefinite up to a
// relative tolerance.
func IsPSD(s mat.Symmetric, tol float64) bool {
	values, _, err := eigen("penalty.IsPSD", s)
	if err != nil {
		return false
	}
	maxAbs := 0.0
	for _, v := range values {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	for _, v := range values {
		if v < -tol*math.Max(maxAbs, 1) {
			return false
		}
	}
	return true
}

// SquareRoot returns E with EᵀE = s. Negative eigenvalues introduced by
// rounding are clipped to zero.
func SquareRoot(s mat.Symmetric) (*mat.Dense, error) {
	values, vectors, err := eigen("penalty.SquareRoot", s)
	if err != nil {
		return nil, err
	}
	n := len(values)
	// s = V Λ Vᵀ, E = Λ^½ Vᵀ
	e := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		root := math.Sqrt(math.Max(values[i], 0))
		if root == 0 {
			continue
		}
		for j := 0; j < n; j++ {
			e.Set(i, j, root*vectors.At(j, i))
		}
	}
	return e, nil
}
