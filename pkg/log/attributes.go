// Package log defines standard attribute keys for GAM fitting operations.
//
// Using these keys keeps the structured output of the basis, P-IRLS,
// smoothing and gam packages consistent, so that a single fit can be traced
// from the outer smoothing search down to each inner P-IRLS iteration.
//
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "gam.lambda") to enable filtering in log analysis tools.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model.
	// Examples: "GAM", "LinearGAM", "PoissonGAM"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "score", "sample"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	// Examples: "gam", "pirls", "smoothing"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of feature columns in the dataset.
	FeaturesKey = "data.features"

	// CoefficientsKey indicates the number of columns of the design matrix.
	CoefficientsKey = "data.coefficients"
)

// Performance and progress
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// IterationKey records the current P-IRLS iteration.
	IterationKey = "training.iteration"

	// CandidateKey records the index of a smoothing-parameter candidate.
	CandidateKey = "training.candidate"

	// WorkersKey records the number of workers evaluating candidates.
	WorkersKey = "training.workers"
)

// GAM specific attributes
const (
	// FamilyKey records "<distribution>/<link>" of the fitted model.
	FamilyKey = "gam.family"

	// LambdaKey records the smoothing parameter vector.
	LambdaKey = "gam.lambda"

	// DevianceKey records the penalized fit deviance.
	DevianceKey = "gam.deviance"

	// EDoFKey records the effective degrees of freedom.
	EDoFKey = "gam.edof"

	// ScoreKey records the GCV or UBRE score.
	ScoreKey = "gam.score"

	// CriterionKey records the criterion used for smoothing selection.
	CriterionKey = "gam.criterion"

	// RidgeKey records the ridge stabiliser applied to the penalized system.
	RidgeKey = "gam.ridge"

	// ScaleKey records the dispersion used for inference.
	ScaleKey = "gam.scale"
)

// Error and Warning Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// WarningKey carries the structured payload of a library warning.
	WarningKey = "warning"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationScore   = "score"
	OperationSample  = "sample"

	PhaseTraining  = "training"
	PhaseSmoothing = "smoothing"
	PhaseInference = "inference"
)
