// Package metrics は回帰の評価指標と、GAMの適合度を要約する
// デビアンス・尤度ベースの指標を提供します。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// residuals は入力を検証し、yTrue - yPred を返す
func residuals(op string, yTrue, yPred *mat.VecDense) ([]float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return nil, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return nil, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	r := make([]float64, n)
	for i := range r {
		r[i] = yTrue.AtVec(i) - yPred.AtVec(i)
	}
	return r, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	r, err := residuals("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Dot(r, r) / float64(len(r)), nil
}

// MSEMatrix は n×1 行列形式の入力に対してMSEを計算する
func MSEMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()

	if rTrue == 0 || cTrue == 0 {
		return 0, errors.NewValueError("MSEMatrix", "empty matrix")
	}
	if rTrue != rPred || cTrue != cPred {
		return 0, errors.NewDimensionError("MSEMatrix", rTrue, rPred, 0)
	}
	if cTrue != 1 {
		return 0, errors.NewValueError("MSEMatrix", "must be a column vector (n×1 matrix)")
	}
	return MSE(columnVec(yTrue), columnVec(yPred))
}

func columnVec(m mat.Matrix) *mat.VecDense {
	r, _ := m.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	r, err := residuals("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Norm(r, 1) / float64(len(r)), nil
}

// R2Score は決定係数（R²）を計算する
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	r, err := residuals("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// 全変動（TSS）と残差変動（RSS）
	y := mat.Col(nil, 0, yTrue)
	tss := stat.Variance(y, nil) * float64(len(y)-1)
	rss := floats.Dot(r, r)

	if len(y) < 2 || tss == 0 {
		return 0, errors.NewValueError("R2Score", "total sum of squares is zero (no variance in yTrue)")
	}
	return 1 - rss/tss, nil
}
