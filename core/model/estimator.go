// Package model は推定器が共有するインターフェース、学習状態の管理、
// および学習済み重みのスナップショットを提供します。
package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer はスコアを計算できるモデルのインターフェース
type Scorer interface {
	// Score は新しいデータに対する適合度を返す（GAMでは説明デビアンス）
	Score(X, y mat.Matrix) (float64, error)
}

// Estimator は学習状態とハイパーパラメータを公開するモデルです。
type Estimator interface {
	IsFitted() bool
	GetParams() map[string]interface{}
}

// AdditiveModel は項ごとの寄与を返せる加法モデルのインターフェース
type AdditiveModel interface {
	Estimator
	Fitter
	Predictor
	Scorer

	// PredictPartial は指定した項の線形予測子への寄与を返す
	PredictPartial(X mat.Matrix, term int) (mat.Matrix, error)

	// Coefficients は学習済みの係数ベクトル（切片を先頭に含む）を返す
	Coefficients() []float64
}

// WeightExporter は学習済みの状態をスナップショットとして入出力できるモデルです。
type WeightExporter interface {
	ExportWeights() (*ModelWeights, error)
	ImportWeights(w *ModelWeights) error
}
