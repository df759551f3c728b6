package family

import (
	"math"

	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// Link maps the mean to the linear predictor.
type Link interface {
	Name() string
	// Link returns η = g(μ).
	Link(mu float64) float64
	// Inverse returns μ = g⁻¹(η).
	Inverse(eta float64) float64
	// Derivative returns dη/dμ = g'(μ).
	Derivative(mu float64) float64
}

// Identity is g(μ) = μ.
type Identity struct{}

func (Identity) Name() string                  { return "identity" }
func (Identity) Link(mu float64) float64       { return mu }
func (Identity) Inverse(eta float64) float64   { return eta }
func (Identity) Derivative(mu float64) float64 { return 1 }

// Logit is g(μ) = log(μ/(n-μ)) for a binomial with n trials.
type Logit struct {
	// Levels is the number of trials n; zero means 1.
	Levels int
}

func (l Logit) n() float64 {
	if l.Levels <= 0 {
		return 1
	}
	return float64(l.Levels)
}

func (Logit) Name() string { return "logit" }

func (l Logit) Link(mu float64) float64 {
	n := l.n()
	return errors.StabilizeLog(mu) - errors.StabilizeLog(n-mu)
}

func (l Logit) Inverse(eta float64) float64 {
	n := l.n()
	if eta >= 0 {
		return n / (1 + errors.StabilizeExp(-eta))
	}
	e := errors.StabilizeExp(eta)
	return n * e / (1 + e)
}

func (l Logit) Derivative(mu float64) float64 {
	n := l.n()
	return n / (mu * (n - mu))
}

// Log is g(μ) = log μ.
type Log struct{}

func (Log) Name() string                  { return "log" }
func (Log) Link(mu float64) float64       { return errors.StabilizeLog(mu) }
func (Log) Inverse(eta float64) float64   { return errors.StabilizeExp(eta) }
func (Log) Derivative(mu float64) float64 { return 1 / mu }

// Inverse is g(μ) = 1/μ.
type Inverse struct{}

func (Inverse) Name() string                  { return "inverse" }
func (Inverse) Link(mu float64) float64       { return 1 / mu }
func (Inverse) Inverse(eta float64) float64   { return 1 / eta }
func (Inverse) Derivative(mu float64) float64 { return -1 / (mu * mu) }

// InverseSquared is g(μ) = 1/μ².
type InverseSquared struct{}

func (InverseSquared) Name() string                  { return "inverse_squared" }
func (InverseSquared) Link(mu float64) float64       { return 1 / (mu * mu) }
func (InverseSquared) Inverse(eta float64) float64   { return 1 / math.Sqrt(eta) }
func (InverseSquared) Derivative(mu float64) float64 { return -2 / (mu * mu * mu) }
