package pirls

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// Statistics summarises one P-IRLS run.
type Statistics struct {
	Deviance     float64 `json:"deviance"`
	NullDeviance float64 `json:"null_deviance"`
	// Scale is the known dispersion or its Pearson estimate.
	Scale          float64 `json:"scale"`
	ScaleEstimated bool    `json:"scale_estimated"`
	// EDoF is the trace of the influence matrix F = (XᵀWX + P)⁻¹XᵀWX.
	EDoF float64 `json:"edof"`
	// EDoFPerCoef is the diagonal of F.
	EDoFPerCoef   []float64 `json:"edof_per_coef"`
	GCV           float64   `json:"gcv"`
	UBRE          float64   `json:"ubre"`
	Score         float64   `json:"score"`
	Criterion     Criterion `json:"criterion"`
	LogLikelihood float64   `json:"loglikelihood"`
	Iterations    int       `json:"iterations"`
	State         State     `json:"-"`
	Converged     bool      `json:"converged"`
	// RankDeficient reports that the ridge had to be raised above its
	// configured value.
	RankDeficient bool    `json:"rank_deficient"`
	Ridge         float64 `json:"ridge"`
}

// Result is the outcome of Solver.Solve.
type Result struct {
	Coefficients []float64
	Lambda       []float64
	// Mu holds the fitted means of the training rows.
	Mu []float64
	// Covariance is the Bayesian posterior covariance Vb = (XᵀWX + P)⁻¹·scale.
	Covariance *mat.SymDense
	Statistics Statistics
}

// Score returns the value minimised by smoothing-parameter search.
func (r *Result) Score() float64 { return r.Statistics.Score }

// finish fills the post-fit quantities from the last factorisation.
func (s *Solver) finish(res *Result, r *run, sol *solution) error {
	const op = "pirls.Solve"
	fam := s.problem.Family
	y, prior := s.problem.Y, s.problem.Weights
	p := s.p

	res.Coefficients = append([]float64(nil), r.beta...)
	res.Mu = append([]float64(nil), r.mu...)

	var full mat.Dense
	sol.qr.RTo(&full)
	tri := mat.NewTriDense(p, mat.Upper, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			tri.SetTri(i, j, full.At(i, j))
		}
	}
	var rinv mat.TriDense
	if err := rinv.InverseTri(tri); err != nil {
		return errors.NewNumericalError(op, "triangular factor is not invertible", r.ridge, sol.cond)
	}

	// (XᵀWX + P)⁻¹ = R⁻¹R⁻ᵀ
	var cov mat.SymDense
	cov.SymOuterK(1, &rinv)
	var xtwx mat.SymDense
	xtwx.SymOuterK(1, sol.wx.T())
	var infl mat.Dense
	infl.Mul(&cov, &xtwx)

	st := &res.Statistics
	st.EDoFPerCoef = make([]float64, p)
	for j := 0; j < p; j++ {
		st.EDoFPerCoef[j] = infl.At(j, j)
	}
	st.EDoF = mat.Trace(&infl)
	if err := errors.CheckScalar("pirls.edof", st.EDoF, res.Statistics.Iterations); err != nil {
		return err
	}

	st.Deviance = fam.Deviance(y, r.mu, prior)
	st.NullDeviance = fam.NullDeviance(y, prior)
	st.Scale, st.ScaleEstimated = fam.Scale(y, r.mu, prior, st.EDoF)
	st.LogLikelihood = fam.LogLikelihood(y, r.mu, prior, st.Scale)
	st.Ridge = r.ridge
	st.RankDeficient = r.ridge > s.ridge

	cov.ScaleSym(st.Scale, &cov)
	res.Covariance = &cov

	st.GCV = GCVScore(st.Deviance, st.EDoF, s.n, s.gamma)
	st.UBRE = UBREScore(st.Deviance, st.EDoF, st.Scale, s.n, s.gamma)
	st.Criterion = s.criterion
	if st.Criterion == Auto {
		st.Criterion = GCV
		if !st.ScaleEstimated {
			st.Criterion = UBRE
		}
	}
	st.Score = st.GCV
	if st.Criterion == UBRE {
		st.Score = st.UBRE
	}
	if math.IsNaN(st.Score) {
		st.Score = math.Inf(1)
	}
	return nil
}

// GCVScore returns n·D / (n - γ·edof)², or +Inf when n - γ·edof ≤ 0.
func GCVScore(deviance, edof float64, n int, gamma float64) float64 {
	df := float64(n) - gamma*edof
	if df <= 0 {
		return math.Inf(1)
	}
	return float64(n) * deviance / (df * df)
}

// UBREScore returns D/n + 2γ·edof·scale/n - scale, or +Inf when
// n - γ·edof ≤ 0.
func UBREScore(deviance, edof, scale float64, n int, gamma float64) float64 {
	nf := float64(n)
	if nf-gamma*edof <= 0 {
		return math.Inf(1)
	}
	return deviance/nf + 2*gamma*edof*scale/nf - scale
}
