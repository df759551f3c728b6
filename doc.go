// Package scigam fits penalized generalized additive models in Go,
// designed for backend services that need smooth, interpretable regression
// without a Python runtime.
//
// A model is the sum of an intercept and additive terms (penalized
// B-splines, linear effects, factors and tensor products) linked to the
// mean of an exponential-family response. Smoothing parameters are chosen
// by GCV or UBRE over a parallel grid or a local optimiser.
//
// # Features
//
// - Penalized B-spline, linear, factor and tensor-product terms
// - Normal, binomial, Poisson, gamma and inverse Gaussian families
// - P-IRLS with ridge fallback for rank-deficient designs
// - Parallel grid search and gonum/optimize local search over λ
// - Bayesian covariance, confidence intervals and partial dependence
// - Structured logging and typed errors with stack traces
//
// # Installation
//
//	go get github.com/YuminosukeSato/scigam
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/scigam/basis"
//	    "github.com/YuminosukeSato/scigam/gam"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    X := mat.NewDense(6, 1, []float64{0, 0.2, 0.4, 0.6, 0.8, 1})
//	    y := mat.NewDense(6, 1, []float64{0, 0.9, 0.6, -0.6, -0.9, 0})
//
//	    model, err := gam.New([]basis.Term{basis.SplineTerm(0, basis.WithNSplines(5))})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := model.Fit(X, y); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    pred, err := model.Predict(X)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(mat.Formatted(pred))
//	}
//
// # Packages
//
//   - gam: the model (Fit, Predict, intervals, statistics, snapshots)
//   - basis: term configuration and frozen basis evaluation
//   - penalty: difference, ridge and tensor penalties
//   - family: distributions and link functions
//   - pirls: the penalized IRLS solver and GCV/UBRE scores
//   - smoothing: grid and local search over smoothing parameters
//   - metrics: regression and deviance-based metrics
//   - core/model: estimator interfaces, fitted-state tracking, weight snapshots
//   - core/parallel: bounded worker pools
//   - pkg/errors, pkg/log: typed errors and structured logging
//
// # Performance
//
// Grid candidates are solved concurrently on a bounded worker pool, and
// basis evaluation is split across CPU cores for large inputs. A fitted
// model is safe for concurrent prediction.
//
// # License
//
// scigam is released under the MIT License.
package scigam
