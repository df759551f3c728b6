package family

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// meanEps bounds means away from the edge of their support.
const meanEps = 1e-10

// Distribution is the exponential-family part of a GLM/GAM family.
type Distribution interface {
	Name() string
	// Variance returns the variance function V(μ).
	Variance(mu float64) float64
	// UnitDeviance returns the deviance contribution of one observation.
	UnitDeviance(y, mu float64) float64
	// InSupport reports whether y is a valid response.
	InSupport(y float64) bool
	// ClipMean moves μ into the open interior of the mean space.
	ClipMean(mu float64) float64
	// KnownScale returns the fixed dispersion, if the distribution has one.
	KnownScale() (float64, bool)
	// LogPDF returns the log density (or mass) of y.
	LogPDF(y, mu, scale float64) float64
	// Sample draws one response with mean μ.
	Sample(mu, scale float64, src rand.Source) float64
}

// Normal is the Gaussian distribution. Scale is the variance; zero means
// it is estimated from the data.
type Normal struct {
	Scale float64
}

func (Normal) Name() string                       { return "normal" }
func (Normal) Variance(float64) float64           { return 1 }
func (Normal) InSupport(y float64) bool           { return !math.IsNaN(y) && !math.IsInf(y, 0) }
func (Normal) ClipMean(mu float64) float64        { return mu }
func (Normal) UnitDeviance(y, mu float64) float64 { return (y - mu) * (y - mu) }

func (d Normal) KnownScale() (float64, bool) { return d.Scale, d.Scale > 0 }

func (Normal) LogPDF(y, mu, scale float64) float64 {
	return -(y-mu)*(y-mu)/(2*scale) - 0.5*math.Log(2*math.Pi*scale)
}

func (Normal) Sample(mu, scale float64, src rand.Source) float64 {
	if scale <= 0 {
		scale = 1
	}
	return distuv.Normal{Mu: mu, Sigma: math.Sqrt(scale), Src: src}.Rand()
}

// Binomial counts successes out of Levels trials; zero Levels means 1 (Bernoulli).
type Binomial struct {
	Levels int
}

func (d Binomial) n() float64 {
	if d.Levels <= 0 {
		return 1
	}
	return float64(d.Levels)
}

func (Binomial) Name() string { return "binomial" }

func (d Binomial) Variance(mu float64) float64 { return mu * (1 - mu/d.n()) }

func (d Binomial) InSupport(y float64) bool { return y >= 0 && y <= d.n() }

func (d Binomial) ClipMean(mu float64) float64 {
	n := d.n()
	return errors.ClipValue(mu, meanEps*n, n*(1-meanEps))
}

func (d Binomial) UnitDeviance(y, mu float64) float64 {
	n := d.n()
	return 2 * (errors.XLogYOverMu(y, mu) + errors.XLogYOverMu(n-y, n-mu))
}

func (Binomial) KnownScale() (float64, bool) { return 1, true }

func (d Binomial) LogPDF(y, mu, _ float64) float64 {
	n := d.n()
	lc, _ := math.Lgamma(n + 1)
	ly, _ := math.Lgamma(y + 1)
	lny, _ := math.Lgamma(n - y + 1)
	p := mu / n
	return lc - ly - lny + y*errors.StabilizeLog(p) + (n-y)*errors.StabilizeLog(1-p)
}

func (d Binomial) Sample(mu, _ float64, src rand.Source) float64 {
	n := d.n()
	return distuv.Binomial{N: n, P: errors.ClipValue(mu/n, 0, 1), Src: src}.Rand()
}

// Poisson is the count distribution with V(μ) = μ.
type Poisson struct{}

func (Poisson) Name() string                { return "poisson" }
func (Poisson) Variance(mu float64) float64 { return mu }
func (Poisson) InSupport(y float64) bool    { return y >= 0 && !math.IsInf(y, 0) }
func (Poisson) ClipMean(mu float64) float64 { return math.Max(mu, meanEps) }
func (Poisson) KnownScale() (float64, bool) { return 1, true }

func (Poisson) UnitDeviance(y, mu float64) float64 {
	return 2 * (errors.XLogYOverMu(y, mu) - (y - mu))
}

func (Poisson) LogPDF(y, mu, _ float64) float64 {
	ly, _ := math.Lgamma(y + 1)
	return y*errors.StabilizeLog(mu) - mu - ly
}

func (Poisson) Sample(mu, _ float64, src rand.Source) float64 {
	return distuv.Poisson{Lambda: mu, Src: src}.Rand()
}

// Gamma has V(μ) = μ². Scale is the dispersion 1/shape; zero means estimated.
type Gamma struct {
	Scale float64
}

func (Gamma) Name() string                { return "gamma" }
func (Gamma) Variance(mu float64) float64 { return mu * mu }
func (Gamma) InSupport(y float64) bool    { return y > 0 && !math.IsInf(y, 0) }
func (Gamma) ClipMean(mu float64) float64 { return math.Max(mu, meanEps) }

func (d Gamma) KnownScale() (float64, bool) { return d.Scale, d.Scale > 0 }

func (Gamma) UnitDeviance(y, mu float64) float64 {
	return 2 * ((y-mu)/mu - math.Log(y/mu))
}

func (Gamma) LogPDF(y, mu, scale float64) float64 {
	nu := 1 / scale
	lg, _ := math.Lgamma(nu)
	return -lg + nu*math.Log(nu/mu) + (nu-1)*math.Log(y) - nu*y/mu
}

func (Gamma) Sample(mu, scale float64, src rand.Source) float64 {
	if scale <= 0 {
		scale = 1
	}
	shape := 1 / scale
	return distuv.Gamma{Alpha: shape, Beta: shape / mu, Src: src}.Rand()
}

// InverseGaussian has V(μ) = μ³. Scale is the dispersion 1/λ; zero means estimated.
type InverseGaussian struct {
	Scale float64
}

func (InverseGaussian) Name() string                { return "inv_gauss" }
func (InverseGaussian) Variance(mu float64) float64 { return mu * mu * mu }
func (InverseGaussian) InSupport(y float64) bool    { return y > 0 && !math.IsInf(y, 0) }
func (InverseGaussian) ClipMean(mu float64) float64 { return math.Max(mu, meanEps) }

func (d InverseGaussian) KnownScale() (float64, bool) { return d.Scale, d.Scale > 0 }

func (InverseGaussian) UnitDeviance(y, mu float64) float64 {
	return (y - mu) * (y - mu) / (mu * mu * y)
}

func (InverseGaussian) LogPDF(y, mu, scale float64) float64 {
	lambda := 1 / scale
	return 0.5*math.Log(lambda/(2*math.Pi*y*y*y)) - lambda*(y-mu)*(y-mu)/(2*mu*mu*y)
}

// Sample uses the Michael, Schucany and Haas transformation.
func (InverseGaussian) Sample(mu, scale float64, src rand.Source) float64 {
	if scale <= 0 {
		scale = 1
	}
	lambda := 1 / scale
	v := distuv.Normal{Mu: 0, Sigma: 1, Src: src}.Rand()
	y := v * v
	x := mu + mu*mu*y/(2*lambda) - mu/(2*lambda)*math.Sqrt(4*mu*lambda*y+mu*mu*y*y)
	u := distuv.Uniform{Min: 0, Max: 1, Src: src}
	if u.Rand() <= mu/(mu+x) {
		return x
	}
	return mu * mu / x
}
