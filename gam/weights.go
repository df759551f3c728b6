package gam

import (
	"encoding/json"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigam/basis"
	"github.com/YuminosukeSato/scigam/core/model"
	"github.com/YuminosukeSato/scigam/family"
	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// ExportWeights returns a snapshot of the fitted model: coefficients,
// smoothing parameters, the frozen terms and the family by name.
func (m *Model) ExportWeights() (*model.ModelWeights, error) {
	const op = "GAM.ExportWeights"
	fs, err := m.current("ExportWeights")
	if err != nil {
		return nil, err
	}
	famCfg, err := family.ConfigOf(fs.family)
	if err != nil {
		return nil, err
	}
	terms, err := json.Marshal(fs.design.terms())
	if err != nil {
		return nil, errors.Wrap(err, "encode terms")
	}

	p := len(fs.coef)
	cov := make([]float64, 0, p*p)
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			cov = append(cov, fs.covariance.At(i, j))
		}
	}
	nFeatures, nSamples := m.state.GetDimensions()

	params := m.GetParams()
	params["levels"] = famCfg.Levels
	params["family_scale"] = famCfg.Scale
	params["distribution"] = famCfg.Distribution
	params["link"] = famCfg.Link

	mw := &model.ModelWeights{
		ModelType:       modelName,
		Version:         model.WeightsVersion,
		Coefficients:    append([]float64(nil), fs.coef...),
		Lambdas:         append([]float64(nil), fs.lambda...),
		Distribution:    famCfg.Distribution,
		Link:            famCfg.Link,
		Scale:           fs.stats.Scale,
		Covariance:      cov,
		Terms:           terms,
		Hyperparameters: params,
		Metadata: map[string]interface{}{
			"n_features": nFeatures,
			"n_samples":  nSamples,
		},
		IsFitted: true,
	}
	// non-finite statistics (an infinite AICc, say) have no JSON form
	if stats, err := json.Marshal(fs.stats); err == nil {
		mw.Metadata["statistics"] = json.RawMessage(stats)
	} else {
		m.logger.Warn("Statistics omitted from snapshot", "error", err.Error())
	}
	if err := mw.Validate(); err != nil {
		return nil, errors.Wrap(err, op)
	}
	return mw, nil
}

// ImportWeights restores a snapshot produced by ExportWeights. The model
// is left unchanged when the snapshot is inconsistent.
func (m *Model) ImportWeights(mw *model.ModelWeights) (err error) {
	const op = "GAM.ImportWeights"
	defer errors.Recover(&err, op)
	if mw == nil {
		return errors.NewValueError(op, "weights are nil")
	}
	if err := mw.Validate(); err != nil {
		return err
	}
	if mw.ModelType != modelName {
		return errors.NewValueError(op, "model_type must be "+modelName)
	}
	if !mw.IsFitted {
		return errors.NewValueError(op, "snapshot is not fitted")
	}

	famCfg := family.Config{Distribution: mw.Distribution, Link: mw.Link}
	if v, ok := toInt(mw.Hyperparameters["levels"]); ok {
		famCfg.Levels = v
	}
	if v, ok := mw.Hyperparameters["family_scale"].(float64); ok {
		famCfg.Scale = v
	}
	fam, err := famCfg.Build()
	if err != nil {
		return err
	}

	var terms []basis.Term
	if err := json.Unmarshal(mw.Terms, &terms); err != nil {
		return errors.Wrap(err, "decode terms")
	}
	if len(terms) == 0 {
		return errors.NewValueError(op, "snapshot has no terms")
	}
	d, err := buildDesign(terms, nil)
	if err != nil {
		return err
	}
	p := len(mw.Coefficients)
	if d.width != p {
		return errors.NewDimensionError(op, d.width, p, 0)
	}
	if len(mw.Lambdas) != len(terms) {
		return errors.NewDimensionError(op, len(terms), len(mw.Lambdas), 0)
	}
	pen, err := d.penalty()
	if err != nil {
		return err
	}

	cov := mat.NewSymDense(p, nil)
	if len(mw.Covariance) == p*p {
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				cov.SetSym(i, j, mw.Covariance[i*p+j])
			}
		}
	}

	var stats Statistics
	if raw, ok := mw.Metadata["statistics"]; ok {
		data, err := json.Marshal(raw)
		if err != nil {
			return errors.Wrap(err, "encode statistics")
		}
		if err := json.Unmarshal(data, &stats); err != nil {
			return errors.Wrap(err, "decode statistics")
		}
	}
	stats.Scale = mw.Scale
	stats.Lambda = append([]float64(nil), mw.Lambdas...)

	nFeatures, ok := toInt(mw.Metadata["n_features"])
	if !ok {
		nFeatures = maxFeature(terms) + 1
	}
	nSamples, _ := toInt(mw.Metadata["n_samples"])

	fs := &fitState{
		family:     fam,
		design:     d,
		penalty:    pen,
		lambda:     append([]float64(nil), mw.Lambdas...),
		coef:       append([]float64(nil), mw.Coefficients...),
		covariance: cov,
		stats:      stats,
	}

	m.mu.Lock()
	m.fitted = fs
	m.family = fam
	m.cfg.Family = famCfg
	m.cfg.Terms = terms
	m.mu.Unlock()
	m.state.MarkFitted(nFeatures, nSamples)
	return nil
}

// toInt accepts the numeric types a metadata value may carry before and
// after a JSON round trip.
func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		return int(n), err == nil
	}
	return 0, false
}

func maxFeature(terms []basis.Term) int {
	out := 0
	for _, t := range terms {
		for _, f := range t.Features() {
			if f > out {
				out = f
			}
		}
	}
	return out
}
