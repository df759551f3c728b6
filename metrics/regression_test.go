package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestRegressionMetrics(t *testing.T) {
	tests := []struct {
		name    string
		metric  func(yTrue, yPred *mat.VecDense) (float64, error)
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{"MSE perfect", MSE, []float64{1, 2, 3, 4, 5}, []float64{1, 2, 3, 4, 5}, 0, false},
		{"MSE simple", MSE, []float64{1, 2, 3, 4}, []float64{1.5, 2.5, 2.5, 3.5}, 0.25, false},
		{"MSE larger errors", MSE, []float64{10, 20, 30}, []float64{12, 18, 33}, 17.0 / 3.0, false},
		{"MSE mismatch", MSE, []float64{1, 2, 3}, []float64{1, 2}, 0, true},
		{"RMSE", RMSE, []float64{1, 2, 3, 4}, []float64{1.5, 2.5, 2.5, 3.5}, 0.5, false},
		{"MAE", MAE, []float64{10, 20, 30}, []float64{12, 18, 33}, 7.0 / 3.0, false},
		{"R2 perfect", R2Score, []float64{1, 2, 3, 4, 5}, []float64{1, 2, 3, 4, 5}, 1, false},
		{"R2 worse than mean", R2Score, []float64{1, 2, 3, 4}, []float64{4, 3, 2, 1}, -3, false},
		{"R2 no variance", R2Score, []float64{3, 3, 3}, []float64{2, 3, 4}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.metric(mat.NewVecDense(len(tt.yTrue), tt.yTrue), mat.NewVecDense(len(tt.yPred), tt.yPred))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-10)
		})
	}
}

func TestEmptyVectors(t *testing.T) {
	_, err := MSE(&mat.VecDense{}, &mat.VecDense{})
	assert.Error(t, err)
}

func TestMSEMatrix(t *testing.T) {
	yTrue := mat.NewDense(3, 1, []float64{1, 2, 3})
	yPred := mat.NewDense(3, 1, []float64{1, 2, 5})
	got, err := MSEMatrix(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/3.0, got, 1e-12)

	_, err = MSEMatrix(mat.NewDense(2, 2, nil), mat.NewDense(2, 2, nil))
	assert.Error(t, err)
	_, err = MSEMatrix(yTrue, mat.NewDense(2, 1, nil))
	assert.Error(t, err)
}

func BenchmarkMSE(b *testing.B) {
	size := 10000
	yTrue := mat.NewVecDense(size, nil)
	yPred := mat.NewVecDense(size, nil)
	for i := 0; i < size; i++ {
		yTrue.SetVec(i, float64(i))
		yPred.SetVec(i, float64(i)+0.1*float64(i%10))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = MSE(yTrue, yPred)
	}
}
