package model

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// WeightsVersion は現在のスナップショット形式のバージョン
const WeightsVersion = "1"

// ModelWeights は学習済みGAMの重みを表す構造体（シリアライゼーション用）。
// 外部の永続化層はこの構造体をJSONとして保存・復元します。
type ModelWeights struct {
	// ModelType はモデルの種類（"GAM"など）
	ModelType string `json:"model_type"`

	// Version はスナップショット形式のバージョン（互換性チェック用）
	Version string `json:"version"`

	// Coefficients は係数ベクトル。先頭が切片
	Coefficients []float64 `json:"coefficients"`

	// Lambdas は項ごとの平滑化パラメータ
	Lambdas []float64 `json:"lambdas,omitempty"`

	// Distribution と Link は分布族の名前
	Distribution string `json:"distribution,omitempty"`
	Link         string `json:"link,omitempty"`

	// Scale は推論に用いる分散パラメータ
	Scale float64 `json:"scale,omitempty"`

	// Covariance はベイズ事後共分散（行優先、p×p）
	Covariance []float64 `json:"covariance,omitempty"`

	// Terms は凍結済みの項設定（ノット・水準を含む）
	Terms json.RawMessage `json:"terms,omitempty"`

	// Hyperparameters はモデルのハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// Metadata は追加のメタデータ（学習時の統計等）
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(mw, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode model weights")
	}
	return data, nil
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	if err := json.Unmarshal(data, mw); err != nil {
		return errors.Wrap(err, "decode model weights")
	}
	return nil
}

// WriteTo はModelWeightsをJSONとしてwに書き出す
func (mw *ModelWeights) WriteTo(w io.Writer) (int64, error) {
	data, err := mw.ToJSON()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), errors.WithStack(err)
}

// ReadWeights はrからModelWeightsを読み込み、妥当性を検証する
func ReadWeights(r io.Reader) (*ModelWeights, error) {
	var mw ModelWeights
	if err := json.NewDecoder(r).Decode(&mw); err != nil {
		return nil, errors.Wrap(err, "decode model weights")
	}
	if err := mw.Validate(); err != nil {
		return nil, err
	}
	return &mw, nil
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	const op = "ModelWeights.Validate"
	if mw.ModelType == "" {
		return errors.NewValueError(op, "model_type is required")
	}
	if mw.Version == "" {
		return errors.NewValueError(op, "version is required")
	}
	if !mw.IsFitted && len(mw.Coefficients) > 0 {
		return errors.NewValueError(op, "unfitted model should not have coefficients")
	}
	if mw.IsFitted && len(mw.Coefficients) == 0 {
		return errors.NewValueError(op, "fitted model must have coefficients")
	}
	p := len(mw.Coefficients)
	if len(mw.Covariance) > 0 && len(mw.Covariance) != p*p {
		return errors.NewDimensionError(op, p*p, len(mw.Covariance), 0)
	}
	for i, l := range mw.Lambdas {
		if l < 0 {
			return errors.NewValueError(op, "lambda must be non-negative at index "+strconv.Itoa(i))
		}
	}
	return nil
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := &ModelWeights{
		ModelType:       mw.ModelType,
		Version:         mw.Version,
		Distribution:    mw.Distribution,
		Link:            mw.Link,
		Scale:           mw.Scale,
		IsFitted:        mw.IsFitted,
		Coefficients:    append([]float64(nil), mw.Coefficients...),
		Lambdas:         append([]float64(nil), mw.Lambdas...),
		Covariance:      append([]float64(nil), mw.Covariance...),
		Terms:           append(json.RawMessage(nil), mw.Terms...),
		Hyperparameters: make(map[string]interface{}, len(mw.Hyperparameters)),
		Metadata:        make(map[string]interface{}, len(mw.Metadata)),
	}
	for k, v := range mw.Hyperparameters {
		clone.Hyperparameters[k] = v
	}
	for k, v := range mw.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}
