// Package family pairs exponential-family distributions with link functions.
//
// A Family supplies everything the P-IRLS solver needs about the response:
// the variance function, unit deviance, the link and its derivative, the
// support of the response and whether the dispersion is known. Built-in
// variants cover the normal, binomial, Poisson, gamma and inverse Gaussian
// distributions; user variants implement Distribution and Link.
package family

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// Family is a distribution together with a link function.
type Family struct {
	Dist Distribution
	Link Link
}

// Name returns "distribution/link".
func (f Family) Name() string {
	return f.Dist.Name() + "/" + f.Link.Name()
}

// Linear reports whether the working weights and response do not depend on
// the current mean, so that a single weighted least-squares solve is exact.
func (f Family) Linear() bool {
	_, normal := f.Dist.(Normal)
	_, identity := f.Link.(Identity)
	return normal && identity
}

// ValidateResponse checks that every response value lies in the support of
// the distribution.
func (f Family) ValidateResponse(op string, y []float64) error {
	for i, v := range y {
		if !f.Dist.InSupport(v) {
			return errors.NewDomainError(op, f.Dist.Name(), i, v)
		}
	}
	return nil
}

// InitialMean returns the starting mean for P-IRLS: the response itself for
// the normal distribution, (y+ȳ)/2 moved into the mean space otherwise.
func (f Family) InitialMean(y []float64) []float64 {
	mu := make([]float64, len(y))
	if _, ok := f.Dist.(Normal); ok {
		copy(mu, y)
		return mu
	}
	mean := floats.Sum(y) / float64(len(y))
	for i, v := range y {
		mu[i] = f.Dist.ClipMean((v + mean) / 2)
	}
	return mu
}

// Mean maps linear predictors to clipped means.
func (f Family) Mean(dst, eta []float64) {
	for i, e := range eta {
		dst[i] = f.Dist.ClipMean(f.Link.Inverse(e))
	}
}

// Deviance returns Σ wᵢ d(yᵢ, μᵢ). A nil w means unit weights.
func (f Family) Deviance(y, mu, w []float64) float64 {
	var d float64
	for i := range y {
		u := f.Dist.UnitDeviance(y[i], mu[i])
		if w != nil {
			u *= w[i]
		}
		d += u
	}
	return d
}

// NullDeviance is the deviance of the weighted-mean-only model.
func (f Family) NullDeviance(y, w []float64) float64 {
	mean := weightedMean(y, w)
	mu := make([]float64, len(y))
	for i := range mu {
		mu[i] = f.Dist.ClipMean(mean)
	}
	return f.Deviance(y, mu, w)
}

func weightedMean(y, w []float64) float64 {
	if w == nil {
		return floats.Sum(y) / float64(len(y))
	}
	return floats.Dot(y, w) / floats.Sum(w)
}

// PearsonScale estimates the dispersion as Σ wᵢ(yᵢ-μᵢ)²/V(μᵢ) / (n - edof).
func (f Family) PearsonScale(y, mu, w []float64, edof float64) float64 {
	var chi2 float64
	for i := range y {
		r := y[i] - mu[i]
		v := r * r / f.Dist.Variance(mu[i])
		if w != nil {
			v *= w[i]
		}
		chi2 += v
	}
	df := float64(len(y)) - edof
	if df <= 0 {
		return math.Inf(1)
	}
	return chi2 / df
}

// Scale returns the known dispersion or the Pearson estimate, and whether
// the value was estimated.
func (f Family) Scale(y, mu, w []float64, edof float64) (float64, bool) {
	if s, ok := f.Dist.KnownScale(); ok {
		return s, false
	}
	return f.PearsonScale(y, mu, w, edof), true
}

// LogLikelihood returns Σ wᵢ log p(yᵢ | μᵢ, scale).
func (f Family) LogLikelihood(y, mu, w []float64, scale float64) float64 {
	var ll float64
	for i := range y {
		v := f.Dist.LogPDF(y[i], mu[i], scale)
		if w != nil {
			v *= w[i]
		}
		ll += v
	}
	return ll
}

// Built-in families.
var (
	NormalIdentity     = Family{Dist: Normal{}, Link: Identity{}}
	PoissonLog         = Family{Dist: Poisson{}, Link: Log{}}
	GammaLog           = Family{Dist: Gamma{}, Link: Log{}}
	InverseGaussianLog = Family{Dist: InverseGaussian{}, Link: Log{}}
)

// BinomialLogit returns the logistic family for counts out of levels trials.
func BinomialLogit(levels int) Family {
	return Family{Dist: Binomial{Levels: levels}, Link: Logit{Levels: levels}}
}

// Config is the serialisable description of a built-in family.
type Config struct {
	Distribution string `json:"distribution"`
	// Link defaults to the canonical choice of the distribution when empty.
	Link string `json:"link,omitempty"`
	// Levels is the number of binomial trials.
	Levels int `json:"levels,omitempty"`
	// Scale fixes the dispersion of normal, gamma and inverse Gaussian
	// families; zero means it is estimated.
	Scale float64 `json:"scale,omitempty"`
}

var defaultLinks = map[string]string{
	"normal":    "identity",
	"binomial":  "logit",
	"poisson":   "log",
	"gamma":     "log",
	"inv_gauss": "log",
}

func canonicalDistribution(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "normal", "gaussian":
		return "normal"
	case "binomial", "bernoulli":
		return "binomial"
	case "poisson":
		return "poisson"
	case "gamma":
		return "gamma"
	case "inv_gauss", "inverse_gaussian", "invgauss":
		return "inv_gauss"
	}
	return ""
}

// Build resolves the configuration into a Family.
func (c Config) Build() (Family, error) {
	const op = "family.Build"
	name := canonicalDistribution(c.Distribution)
	if name == "" {
		return Family{}, errors.NewConfigurationError(op, "distribution", "unknown distribution", c.Distribution)
	}
	if c.Scale < 0 {
		return Family{}, errors.NewConfigurationError(op, "scale", "must be non-negative", c.Scale)
	}
	if c.Levels < 0 {
		return Family{}, errors.NewConfigurationError(op, "levels", "must be non-negative", c.Levels)
	}

	var dist Distribution
	switch name {
	case "normal":
		dist = Normal{Scale: c.Scale}
	case "binomial":
		dist = Binomial{Levels: c.Levels}
	case "poisson":
		dist = Poisson{}
	case "gamma":
		dist = Gamma{Scale: c.Scale}
	case "inv_gauss":
		dist = InverseGaussian{Scale: c.Scale}
	}

	linkName := c.Link
	if linkName == "" {
		linkName = defaultLinks[name]
	}
	var link Link
	switch strings.ToLower(strings.TrimSpace(linkName)) {
	case "identity":
		link = Identity{}
	case "logit":
		link = Logit{Levels: c.Levels}
	case "log":
		link = Log{}
	case "inverse":
		link = Inverse{}
	case "inverse_squared":
		link = InverseSquared{}
	default:
		return Family{}, errors.NewConfigurationError(op, "link", "unknown link", linkName)
	}
	return Family{Dist: dist, Link: link}, nil
}

// New returns the family named by a distribution and a link. An empty link
// selects the default link of the distribution.
func New(dist, link string) (Family, error) {
	return Config{Distribution: dist, Link: link}.Build()
}

// ConfigOf describes f as a Config. It fails for user-defined variants.
func ConfigOf(f Family) (Config, error) {
	c := Config{Distribution: f.Dist.Name(), Link: f.Link.Name()}
	switch d := f.Dist.(type) {
	case Normal:
		c.Scale = d.Scale
	case Binomial:
		c.Levels = d.Levels
	case Gamma:
		c.Scale = d.Scale
	case InverseGaussian:
		c.Scale = d.Scale
	case Poisson:
	default:
		return Config{}, errors.NewConfigurationError("family.ConfigOf", "distribution",
			fmt.Sprintf("custom distribution %T cannot be described by name", f.Dist), f.Dist.Name())
	}
	if _, err := (Config{Distribution: c.Distribution, Link: c.Link}).Build(); err != nil {
		return Config{}, err
	}
	return c, nil
}
