package metrics

import (
	"math"

	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// PseudoR2 groups the goodness-of-fit ratios reported for a fitted GAM.
type PseudoR2 struct {
	ExplainedDeviance float64 `json:"explained_deviance"`
	McFadden          float64 `json:"mcfadden"`
	McFaddenAdjusted  float64 `json:"mcfadden_adj"`
}

// ExplainedDeviance returns 1 - D/D0, the share of the null deviance that
// the model accounts for. A zero null deviance raises an
// UndefinedMetricWarning and yields 0.
func ExplainedDeviance(deviance, nullDeviance float64) float64 {
	if nullDeviance == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("explained_deviance", "zero null deviance", 0))
		return 0
	}
	return 1 - deviance/nullDeviance
}

// McFadden returns 1 - ℓ/ℓ0.
func McFadden(logLik, nullLogLik float64) float64 {
	if nullLogLik == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("mcfadden", "zero null log-likelihood", 0))
		return 0
	}
	return 1 - logLik/nullLogLik
}

// McFaddenAdjusted returns 1 - (ℓ - edof)/ℓ0.
func McFaddenAdjusted(logLik, nullLogLik, edof float64) float64 {
	if nullLogLik == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("mcfadden_adj", "zero null log-likelihood", 0))
		return 0
	}
	return 1 - (logLik-edof)/nullLogLik
}

// NewPseudoR2 computes all three ratios.
func NewPseudoR2(deviance, nullDeviance, logLik, nullLogLik, edof float64) PseudoR2 {
	return PseudoR2{
		ExplainedDeviance: ExplainedDeviance(deviance, nullDeviance),
		McFadden:          McFadden(logLik, nullLogLik),
		McFaddenAdjusted:  McFaddenAdjusted(logLik, nullLogLik, edof),
	}
}

// AIC returns -2ℓ + 2·edof, counting one extra parameter when the scale
// was estimated from the data.
func AIC(logLik, edof float64, estimatedScale bool) float64 {
	aic := -2*logLik + 2*edof
	if estimatedScale {
		aic += 2
	}
	return aic
}

// AICc applies the small-sample correction to aic. It is +Inf when
// n - edof - 2 <= 0.
func AICc(aic, edof float64, n int) float64 {
	denom := float64(n) - edof - 2
	if denom <= 0 {
		return math.Inf(1)
	}
	return aic + 2*(edof+1)*(edof+2)/denom
}
