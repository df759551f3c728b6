package gam

import (
	"encoding/json"
	"io"
	"math"
	"strings"

	"github.com/YuminosukeSato/scigam/basis"
	"github.com/YuminosukeSato/scigam/family"
	"github.com/YuminosukeSato/scigam/pirls"
	"github.com/YuminosukeSato/scigam/pkg/errors"
	"github.com/YuminosukeSato/scigam/pkg/log"
	"github.com/YuminosukeSato/scigam/smoothing"
)

// Strategy selects how smoothing parameters are chosen.
type Strategy int

const (
	// GridStrategy evaluates a candidate grid in parallel.
	GridStrategy Strategy = iota
	// LocalStrategy minimises the score with gonum/optimize.
	LocalStrategy
	// FixedStrategy fits once with the Lambda of every term.
	FixedStrategy
)

func (s Strategy) String() string {
	switch s {
	case LocalStrategy:
		return "local"
	case FixedStrategy:
		return "fixed"
	}
	return "grid"
}

func (s Strategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Strategy) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return errors.Wrap(err, "search strategy must be a string")
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "grid", "gridsearch":
		*s = GridStrategy
	case "local":
		*s = LocalStrategy
	case "fixed", "none":
		*s = FixedStrategy
	default:
		return errors.NewConfigurationError("gam.Strategy", "strategy", "unknown search strategy", name)
	}
	return nil
}

// SearchConfig configures smoothing-parameter selection.
type SearchConfig struct {
	Strategy Strategy `json:"strategy"`

	// Values is the per-term grid; nil means LogSpace(-3, 3, 11).
	Values []float64 `json:"values,omitempty"`
	// Candidates overrides the cartesian grid with explicit vectors.
	Candidates [][]float64 `json:"candidates,omitempty"`
	// MaxCandidates bounds the cartesian grid before falling back to a
	// shared-λ diagonal.
	MaxCandidates int `json:"max_candidates"`

	Method         string    `json:"method,omitempty"`
	Start          []float64 `json:"start,omitempty"`
	Tol            float64   `json:"tol"`
	MaxIterations  int       `json:"max_iterations"`
	MaxEvaluations int       `json:"max_evaluations"`
}

// Config is the declarative description of a Model.
type Config struct {
	Terms     []basis.Term    `json:"terms"`
	Family    family.Config   `json:"family"`
	Criterion pirls.Criterion `json:"criterion"`
	Gamma     float64         `json:"gamma"`
	MaxIter   int             `json:"max_iter"`
	Tol       float64         `json:"tol"`
	Ridge     float64         `json:"ridge"`
	Search    SearchConfig    `json:"search"`
	// Workers bounds the grid-search worker pool; zero means one per CPU.
	Workers int `json:"workers"`
	// CIWidth is the default coverage of confidence intervals.
	CIWidth float64 `json:"ci_width"`
}

// DefaultCIWidth is the default coverage of confidence intervals.
const DefaultCIWidth = 0.95

// DefaultConfig returns the configuration used by New before options.
func DefaultConfig() Config {
	return Config{
		Family:    family.Config{Distribution: "normal"},
		Criterion: pirls.Auto,
		Gamma:     pirls.DefaultGamma,
		MaxIter:   pirls.DefaultMaxIter,
		Tol:       pirls.DefaultTol,
		Ridge:     pirls.DefaultRidge,
		Search: SearchConfig{
			Strategy:       GridStrategy,
			MaxCandidates:  smoothing.DefaultMaxCandidates,
			Tol:            smoothing.DefaultLocalTol,
			MaxIterations:  smoothing.DefaultMaxIterations,
			MaxEvaluations: smoothing.DefaultMaxEvaluations,
		},
		CIWidth: DefaultCIWidth,
	}
}

// LoadConfig decodes a JSON configuration. Fields that are absent keep
// their defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode GAM configuration")
	}
	return cfg, nil
}

// NewFromConfig builds a model from a configuration. Options are applied
// after the configuration.
func NewFromConfig(cfg Config, opts ...Option) (*Model, error) {
	fam, err := cfg.Family.Build()
	if err != nil {
		return nil, err
	}
	m := &Model{cfg: cfg, family: fam}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	m.init()
	return m, nil
}

// Validate checks the configuration without data.
func (c Config) Validate() error {
	const op = "gam.Config"
	if len(c.Terms) == 0 {
		return errors.NewConfigurationError(op, "terms", "at least one term is required", nil)
	}
	for i, t := range c.Terms {
		if err := t.Validate(math.MaxInt); err != nil {
			return errors.Wrapf(err, "term %d", i)
		}
	}
	switch {
	case !(c.Gamma >= 1):
		return errors.NewConfigurationError(op, "gamma", "must be at least 1", c.Gamma)
	case c.MaxIter < 1:
		return errors.NewConfigurationError(op, "max_iter", "must be positive", c.MaxIter)
	case !(c.Tol > 0):
		return errors.NewConfigurationError(op, "tol", "must be positive", c.Tol)
	case c.Ridge < 0 || math.IsNaN(c.Ridge):
		return errors.NewConfigurationError(op, "ridge", "must be non-negative", c.Ridge)
	case !(c.CIWidth > 0 && c.CIWidth < 1):
		return errors.NewConfigurationError(op, "ci_width", "must lie in (0, 1)", c.CIWidth)
	}

	s := c.Search
	switch s.Strategy {
	case GridStrategy:
		for _, v := range s.Values {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewConfigurationError(op, "search.values", "must be finite and non-negative", v)
			}
		}
		for _, cand := range s.Candidates {
			if len(cand) != len(c.Terms) {
				return errors.NewConfigurationError(op, "search.candidates",
					"every candidate needs one smoothing parameter per term", len(cand))
			}
		}
		if s.MaxCandidates < 1 {
			return errors.NewConfigurationError(op, "search.max_candidates", "must be positive", s.MaxCandidates)
		}
	case LocalStrategy:
		if _, err := smoothing.ParseMethod(s.Method); err != nil {
			return err
		}
		if s.Start != nil && len(s.Start) != len(c.Terms) {
			return errors.NewConfigurationError(op, "search.start",
				"needs one smoothing parameter per term", len(s.Start))
		}
	}
	return nil
}

// Option configures a Model.
type Option func(*Model)

// WithFamily sets the distribution and link. Custom families that cannot
// be described by name fit and predict normally but cannot be exported.
func WithFamily(f family.Family) Option {
	return func(m *Model) {
		m.family = f
		if c, err := family.ConfigOf(f); err == nil {
			m.cfg.Family = c
		} else {
			m.cfg.Family = family.Config{Distribution: f.Dist.Name(), Link: f.Link.Name()}
		}
	}
}

// WithCriterion selects GCV, UBRE or Auto.
func WithCriterion(c pirls.Criterion) Option {
	return func(m *Model) { m.cfg.Criterion = c }
}

// WithGamma sets the GCV/UBRE inflation factor.
func WithGamma(gamma float64) Option {
	return func(m *Model) { m.cfg.Gamma = gamma }
}

// WithMaxIter bounds the P-IRLS iterations per candidate.
func WithMaxIter(n int) Option {
	return func(m *Model) { m.cfg.MaxIter = n }
}

// WithTol sets the P-IRLS convergence tolerance.
func WithTol(tol float64) Option {
	return func(m *Model) { m.cfg.Tol = tol }
}

// WithRidge sets the initial ridge stabiliser.
func WithRidge(ridge float64) Option {
	return func(m *Model) { m.cfg.Ridge = ridge }
}

// WithGridSearch selects grid search over the cartesian product of values.
// A nil slice keeps the default grid.
func WithGridSearch(values []float64) Option {
	return func(m *Model) {
		m.cfg.Search.Strategy = GridStrategy
		m.cfg.Search.Values = append([]float64(nil), values...)
		if values == nil {
			m.cfg.Search.Values = nil
		}
	}
}

// WithCandidates selects grid search over explicit candidate vectors.
func WithCandidates(candidates [][]float64) Option {
	return func(m *Model) {
		m.cfg.Search.Strategy = GridStrategy
		m.cfg.Search.Candidates = candidates
	}
}

// WithMaxCandidates bounds the cartesian grid.
func WithMaxCandidates(n int) Option {
	return func(m *Model) { m.cfg.Search.MaxCandidates = n }
}

// WithLocalSearch selects local optimisation seeded at start; nil start
// means all ones.
func WithLocalSearch(method smoothing.Method, start []float64) Option {
	return func(m *Model) {
		m.cfg.Search.Strategy = LocalStrategy
		m.cfg.Search.Method = method.String()
		m.cfg.Search.Start = append([]float64(nil), start...)
		if start == nil {
			m.cfg.Search.Start = nil
		}
	}
}

// WithFixedLambda disables the search; every term keeps its own Lambda.
func WithFixedLambda() Option {
	return func(m *Model) { m.cfg.Search.Strategy = FixedStrategy }
}

// WithWorkers bounds the grid-search worker pool.
func WithWorkers(n int) Option {
	return func(m *Model) { m.cfg.Workers = n }
}

// WithCIWidth sets the default coverage of confidence intervals.
func WithCIWidth(width float64) Option {
	return func(m *Model) { m.cfg.CIWidth = width }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Model) { m.logger = logger }
}
