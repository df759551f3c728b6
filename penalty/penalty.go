// Package penalty builds the quadratic roughness penalties attached to each
// additive term and assembles them into the block-diagonal penalty of a
// model. All builders are pure functions of their sizes and orders.
package penalty

import (
	"encoding/json"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// Kind selects the penalty attached to a term.
type Kind int

const (
	// Difference penalises the order-th finite differences of adjacent coefficients.
	Difference Kind = iota
	// Ridge penalises the squared norm of the coefficients.
	Ridge
	// None leaves the coefficients unpenalised.
	None
)

var kindNames = map[Kind]string{
	Difference: "difference",
	Ridge:      "ridge",
	None:       "none",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind parses a penalty name. "derivative" and "l2" are accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "difference", "derivative", "auto":
		return Difference, nil
	case "ridge", "l2":
		return Ridge, nil
	case "none":
		return None, nil
	}
	return 0, errors.NewConfigurationError("penalty.ParseKind", "penalty", "unknown penalty kind", s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "penalty kind must be a string")
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Build returns the unscaled penalty of the given kind for a block of width size.
func Build(kind Kind, size, order int) (*mat.SymDense, error) {
	if size <= 0 {
		return nil, errors.NewConfigurationError("penalty.Build", "size", "must be positive", size)
	}
	switch kind {
	case Difference:
		if order < 0 {
			return nil, errors.NewConfigurationError("penalty.Build", "penalty_order", "must be non-negative", order)
		}
		return DifferencePenalty(size, order), nil
	case Ridge:
		return RidgePenalty(size), nil
	case None:
		return NonePenalty(size), nil
	}
	return nil, errors.NewConfigurationError("penalty.Build", "penalty", "unknown penalty kind", int(kind))
}

// DifferencePenalty returns DᵀD where D is the (size-order)×size matrix of
// order-th finite differences. Order 0 gives the identity. When
// order >= size there are no differences to penalise and the result is
// all zero.
func DifferencePenalty(size, order int) *mat.SymDense {
	s := mat.NewSymDense(size, nil)
	if order >= size {
		return s
	}
	d := DifferenceOperator(size, order)
	s.SymOuterK(1, d.T())
	return s
}

// DifferenceOperator returns the (size-order)×size finite difference matrix
// whose row i holds the signed binomial coefficients of order starting at column i.
func DifferenceOperator(size, order int) *mat.Dense {
	coef := binomialDifference(order)
	rows := size - order
	d := mat.NewDense(rows, size, nil)
	for i := 0; i < rows; i++ {
		for j, c := range coef {
			d.Set(i, i+j, c)
		}
	}
	return d
}

// binomialDifference returns the coefficients of the order-th forward
// difference, (-1)^(order-j)·C(order, j) for j = 0..order.
func binomialDifference(order int) []float64 {
	coef := []float64{1}
	for k := 0; k < order; k++ {
		next := make([]float64, len(coef)+1)
		for j, c := range coef {
			next[j] -= c
			next[j+1] += c
		}
		coef = next
	}
	return coef
}

// RidgePenalty returns the size×size identity.
func RidgePenalty(size int) *mat.SymDense {
	s := mat.NewSymDense(size, nil)
	for i := 0; i < size; i++ {
		s.SetSym(i, i, 1)
	}
	return s
}

// NonePenalty returns the size×size zero matrix.
func NonePenalty(size int) *mat.SymDense {
	return mat.NewSymDense(size, nil)
}
