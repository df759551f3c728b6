// Package basis turns term configurations into frozen basis evaluators.
//
// A Term describes one additive component of a GAM: a penalized B-spline
// smooth, a linear effect, a factor (indicator) effect or a tensor product
// of marginal terms. Term.Build freezes every data-dependent choice (knot
// locations, factor levels) into an immutable Basis so that predictions
// never depend on the data a model happened to be trained on beyond what
// is stored in the frozen term.
package basis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YuminosukeSato/scigam/penalty"
	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// Kind is the basis type of a term.
type Kind int

const (
	Spline Kind = iota
	Linear
	Factor
	Tensor
)

var kindNames = map[Kind]string{
	Spline: "spline",
	Linear: "linear",
	Factor: "factor",
	Tensor: "tensor",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "term kind must be a string")
	}
	for kind, name := range kindNames {
		if strings.EqualFold(s, name) {
			*k = kind
			return nil
		}
	}
	return errors.NewConfigurationError("basis.Kind", "kind", "unknown term kind", s)
}

// KnotPlacement selects how spline breakpoints are derived from the
// training column when no explicit knots are configured.
type KnotPlacement int

const (
	// Quantile places breakpoints at equally spaced quantiles of the data.
	Quantile KnotPlacement = iota
	// Uniform places breakpoints evenly between the column minimum and maximum.
	Uniform
)

func (p KnotPlacement) String() string {
	if p == Uniform {
		return "uniform"
	}
	return "quantile"
}

func (p KnotPlacement) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *KnotPlacement) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "knot placement must be a string")
	}
	switch strings.ToLower(s) {
	case "quantile", "quantiles":
		*p = Quantile
	case "uniform":
		*p = Uniform
	default:
		return errors.NewConfigurationError("basis.KnotPlacement", "knot_placement", "unknown knot placement", s)
	}
	return nil
}

// Defaults applied by the term constructors and by JSON decoding.
const (
	DefaultNSplines     = 20
	DefaultOrder        = 3
	DefaultPenaltyOrder = 2
	DefaultLambda       = 0.6
)

// Term is the configuration of one additive component. The zero value is
// not useful; use SplineTerm, LinearTerm, FactorTerm or TensorTerm.
type Term struct {
	Kind Kind `json:"kind"`

	// Feature is the column of X the term reads. Unused for Tensor.
	Feature int `json:"feature"`

	// Marginals are the sub-terms of a Tensor term.
	Marginals []Term `json:"marginals,omitempty"`

	// NSplines is the number of spline basis functions.
	NSplines int `json:"n_splines,omitempty"`

	// Order is the polynomial degree of the spline pieces.
	Order int `json:"spline_order"`

	// PenaltyOrder is the finite difference order of a Difference penalty.
	PenaltyOrder int `json:"penalty_order"`

	Penalty penalty.Kind `json:"penalty"`

	// Lambda is the initial (or fixed) smoothing parameter of the term.
	Lambda float64 `json:"lambda"`

	// Knots are explicit spline breakpoints, NSplines-Order+1 strictly
	// increasing values. Build fills them in when they are not configured.
	Knots []float64 `json:"knots,omitempty"`

	KnotPlacement KnotPlacement `json:"knot_placement"`

	// Levels are the factor levels in column order. Build fills them in from
	// the sorted distinct training values when they are not configured.
	Levels []float64 `json:"levels,omitempty"`

	// Strict makes unseen factor levels an error instead of an all-zero row.
	Strict bool `json:"strict,omitempty"`
}

// TermOption configures a Term.
type TermOption func(*Term)

// WithNSplines sets the number of spline basis functions.
func WithNSplines(n int) TermOption {
	return func(t *Term) { t.NSplines = n }
}

// WithOrder sets the spline degree.
func WithOrder(order int) TermOption {
	return func(t *Term) { t.Order = order }
}

// WithPenaltyOrder sets the difference order of the roughness penalty.
func WithPenaltyOrder(order int) TermOption {
	return func(t *Term) { t.PenaltyOrder = order }
}

// WithPenalty sets the penalty kind.
func WithPenalty(kind penalty.Kind) TermOption {
	return func(t *Term) { t.Penalty = kind }
}

// WithLambda sets the smoothing parameter.
func WithLambda(lambda float64) TermOption {
	return func(t *Term) { t.Lambda = lambda }
}

// WithKnots sets explicit spline breakpoints.
func WithKnots(knots []float64) TermOption {
	return func(t *Term) { t.Knots = append([]float64(nil), knots...) }
}

// WithKnotPlacement selects data-driven breakpoint placement.
func WithKnotPlacement(p KnotPlacement) TermOption {
	return func(t *Term) { t.KnotPlacement = p }
}

// WithLevels sets explicit factor levels.
func WithLevels(levels []float64) TermOption {
	return func(t *Term) { t.Levels = append([]float64(nil), levels...) }
}

// WithStrict rejects unseen factor levels at evaluation time.
func WithStrict() TermOption {
	return func(t *Term) { t.Strict = true }
}

func defaultTerm(kind Kind, feature int) Term {
	return Term{
		Kind:         kind,
		Feature:      feature,
		NSplines:     DefaultNSplines,
		Order:        DefaultOrder,
		PenaltyOrder: DefaultPenaltyOrder,
		Penalty:      penalty.Difference,
		Lambda:       DefaultLambda,
	}
}

// SplineTerm returns a penalized B-spline smooth of column feature.
func SplineTerm(feature int, opts ...TermOption) Term {
	t := defaultTerm(Spline, feature)
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// LinearTerm returns a linear effect of column feature with a ridge penalty.
func LinearTerm(feature int, opts ...TermOption) Term {
	t := defaultTerm(Linear, feature)
	t.Penalty = penalty.Ridge
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// FactorTerm returns an indicator basis over the levels of column feature
// with a ridge penalty.
func FactorTerm(feature int, opts ...TermOption) Term {
	t := defaultTerm(Factor, feature)
	t.Penalty = penalty.Ridge
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// TensorTerm returns the tensor product of the given marginals. Each
// marginal contributes its own penalty; the tensor term carries a single
// smoothing parameter.
func TensorTerm(marginals []Term, opts ...TermOption) Term {
	t := defaultTerm(Tensor, -1)
	t.Marginals = append([]Term(nil), marginals...)
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// UnmarshalJSON decodes a term, filling unspecified fields with the
// constructor defaults of its kind.
func (t *Term) UnmarshalJSON(data []byte) error {
	type plain Term
	var probe struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	var base Term
	switch probe.Kind {
	case Linear:
		base = LinearTerm(0)
	case Factor:
		base = FactorTerm(0)
	case Tensor:
		base = TensorTerm(nil)
	default:
		base = SplineTerm(0)
	}
	p := plain(base)
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Term(p)
	return nil
}

// Features returns the columns read by the term.
func (t Term) Features() []int {
	if t.Kind != Tensor {
		return []int{t.Feature}
	}
	out := make([]int, 0, len(t.Marginals))
	for _, m := range t.Marginals {
		out = append(out, m.Feature)
	}
	return out
}

// Width returns the number of design-matrix columns of the term. For
// factors without configured levels the width is only known after Build.
func (t Term) Width() int {
	switch t.Kind {
	case Spline:
		return t.NSplines
	case Linear:
		return 1
	case Factor:
		return len(t.Levels)
	case Tensor:
		w := 1
		for _, m := range t.Marginals {
			w *= m.Width()
		}
		return w
	}
	return 0
}

// Validate checks the configuration against the number of feature columns.
// It does not need data.
func (t Term) Validate(nFeatures int) error {
	const op = "Term.Validate"
	if t.Lambda < 0 {
		return errors.NewConfigurationError(op, "lambda", "must be non-negative", t.Lambda)
	}
	switch t.Kind {
	case Spline:
		if t.Order < 0 {
			return errors.NewConfigurationError(op, "spline_order", "must be non-negative", t.Order)
		}
		if t.NSplines < t.Order+1 {
			return errors.NewConfigurationError(op, "n_splines",
				fmt.Sprintf("must be at least spline_order+1 (%d)", t.Order+1), t.NSplines)
		}
		if t.Knots != nil {
			if err := validateKnots(op, t.Knots, t.NSplines-t.Order+1); err != nil {
				return err
			}
		}
	case Linear:
	case Factor:
		if t.Levels != nil {
			if len(t.Levels) == 0 {
				return errors.NewConfigurationError(op, "levels", "must not be empty", nil)
			}
			if err := validateIncreasing(op, "levels", t.Levels); err != nil {
				return err
			}
		}
	case Tensor:
		if len(t.Marginals) < 2 {
			return errors.NewConfigurationError(op, "marginals", "a tensor term needs at least two marginals", len(t.Marginals))
		}
		for _, m := range t.Marginals {
			if m.Kind == Tensor {
				return errors.NewConfigurationError(op, "marginals", "tensor marginals cannot be tensors", nil)
			}
			if err := m.Validate(nFeatures); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.NewConfigurationError(op, "kind", "unknown term kind", int(t.Kind))
	}
	if t.Penalty == penalty.Difference && t.PenaltyOrder < 0 {
		return errors.NewConfigurationError(op, "penalty_order", "must be non-negative", t.PenaltyOrder)
	}
	if t.Feature < 0 || t.Feature >= nFeatures {
		return errors.NewConfigurationError(op, "feature",
			fmt.Sprintf("feature index out of range for %d columns", nFeatures), t.Feature)
	}
	return nil
}

func validateKnots(op string, knots []float64, want int) error {
	if len(knots) != want {
		return errors.NewConfigurationError(op, "knots",
			fmt.Sprintf("expected n_splines-spline_order+1 = %d breakpoints", want), len(knots))
	}
	return validateIncreasing(op, "knots", knots)
}

func validateIncreasing(op, param string, v []float64) error {
	for i := 1; i < len(v); i++ {
		if !(v[i] > v[i-1]) {
			return errors.NewConfigurationError(op, param, "must be strictly increasing", v)
		}
	}
	return nil
}
