package gam

import (
	"github.com/YuminosukeSato/scigam/family"
	"github.com/YuminosukeSato/scigam/metrics"
	"github.com/YuminosukeSato/scigam/pirls"
	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// Statistics summarises a fitted model.
type Statistics struct {
	NSamples       int     `json:"n_samples"`
	Deviance       float64 `json:"deviance"`
	NullDeviance   float64 `json:"null_deviance"`
	Scale          float64 `json:"scale"`
	ScaleEstimated bool    `json:"scale_estimated"`

	// EDoF is the total effective degrees of freedom, intercept included.
	EDoF          float64   `json:"edof"`
	InterceptEDoF float64   `json:"intercept_edof"`
	TermEDoF      []float64 `json:"term_edof"`
	EDoFPerCoef   []float64 `json:"edof_per_coef"`

	Lambda    []float64       `json:"lambda"`
	GCV       float64         `json:"gcv"`
	UBRE      float64         `json:"ubre"`
	Score     float64         `json:"score"`
	Criterion pirls.Criterion `json:"criterion"`

	LogLikelihood     float64          `json:"loglikelihood"`
	NullLogLikelihood float64          `json:"null_loglikelihood"`
	AIC               float64          `json:"aic"`
	AICc              float64          `json:"aicc"`
	PseudoR2          metrics.PseudoR2 `json:"pseudo_r2"`

	Converged     bool    `json:"converged"`
	Iterations    int     `json:"iterations"`
	RankDeficient bool    `json:"rank_deficient"`
	Ridge         float64 `json:"ridge"`
}

func newStatistics(fam family.Family, d *design, y, w []float64, res *pirls.Result) Statistics {
	ps := res.Statistics
	n := len(y)

	// null model: a constant mean at the weighted average of y
	ybar := fam.Dist.ClipMean(meanOf(y, w))
	mu0 := make([]float64, n)
	for i := range mu0 {
		mu0[i] = ybar
	}
	nullLL := fam.LogLikelihood(y, mu0, w, ps.Scale)

	termEDoF := make([]float64, len(d.bases))
	for k := range d.bases {
		lo, hi := d.block(k)
		for j := lo; j < hi; j++ {
			termEDoF[k] += ps.EDoFPerCoef[j]
		}
	}

	aic := metrics.AIC(ps.LogLikelihood, ps.EDoF, ps.ScaleEstimated)
	return Statistics{
		NSamples:          n,
		Deviance:          ps.Deviance,
		NullDeviance:      ps.NullDeviance,
		Scale:             ps.Scale,
		ScaleEstimated:    ps.ScaleEstimated,
		EDoF:              ps.EDoF,
		InterceptEDoF:     ps.EDoFPerCoef[0],
		TermEDoF:          termEDoF,
		EDoFPerCoef:       append([]float64(nil), ps.EDoFPerCoef...),
		Lambda:            append([]float64(nil), res.Lambda...),
		GCV:               ps.GCV,
		UBRE:              ps.UBRE,
		Score:             ps.Score,
		Criterion:         ps.Criterion,
		LogLikelihood:     ps.LogLikelihood,
		NullLogLikelihood: nullLL,
		AIC:               aic,
		AICc:              metrics.AICc(aic, ps.EDoF, n),
		PseudoR2:          metrics.NewPseudoR2(ps.Deviance, ps.NullDeviance, ps.LogLikelihood, nullLL, ps.EDoF),
		Converged:         ps.Converged,
		Iterations:        ps.Iterations,
		RankDeficient:     ps.RankDeficient,
		Ridge:             ps.Ridge,
	}
}

func (s Statistics) clone() Statistics {
	s.TermEDoF = append([]float64(nil), s.TermEDoF...)
	s.EDoFPerCoef = append([]float64(nil), s.EDoFPerCoef...)
	s.Lambda = append([]float64(nil), s.Lambda...)
	return s
}

func meanOf(y, w []float64) float64 {
	var sum, sw float64
	for i, v := range y {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		sum += wi * v
		sw += wi
	}
	return errors.SafeDivide(sum, sw)
}
