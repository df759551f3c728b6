package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "GAM.Fit",
			kind:     "empty data",
			err:      fmt.Errorf("test error"),
			wantMsg:  "scigam: GAM.Fit: empty data: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "GAM.Predict",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "scigam: GAM.Predict: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			// 基本的なエラーメッセージの確認
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("GAM.Predict", 3, 2, 1)

	want := "scigam: GAM.Predict: dimension mismatch on axis 1 (features). Expected 3, got 2"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Fatal("Error should be castable to *DimensionError")
	}
	if dimErr.Expected != 3 || dimErr.Got != 2 {
		t.Errorf("unexpected fields: %+v", dimErr)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("GAM", "Predict")

	want := "scigam: GAM: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewConfigurationError(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		wantMsg string
	}{
		{
			name:    "with value",
			value:   3,
			wantMsg: "scigam: Term.Validate: invalid configuration for 'n_splines': must be at least order+1 (4) (got: 3)",
		},
		{
			name:    "without value",
			value:   nil,
			wantMsg: "scigam: Term.Validate: invalid configuration for 'n_splines': must be at least order+1 (4)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfigurationError("Term.Validate", "n_splines", "must be at least order+1 (4)", tt.value)
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			var cfgErr *ConfigurationError
			if !As(err, &cfgErr) {
				t.Error("Error should be castable to *ConfigurationError")
			}
		})
	}
}

func TestNewDomainError(t *testing.T) {
	err := NewDomainError("GAM.Fit", "poisson", 4, -1)

	want := "scigam: GAM.Fit: response value -1 at index 4 is outside the support of the poisson distribution"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var domErr *DomainError
	if !As(err, &domErr) {
		t.Fatal("Error should be castable to *DomainError")
	}
	if domErr.Index != 4 {
		t.Errorf("Index = %d, want 4", domErr.Index)
	}
}

func TestNewNumericalAndConvergenceErrors(t *testing.T) {
	numErr := NewNumericalError("pirls.solve", "augmented system is singular", 1e-4, math.Inf(1))
	var ne *NumericalError
	if !As(numErr, &ne) {
		t.Fatal("Error should be castable to *NumericalError")
	}
	if ne.Ridge != 1e-4 {
		t.Errorf("Ridge = %g, want 1e-4", ne.Ridge)
	}

	convErr := NewConvergenceError("P-IRLS", 100, 1e-8, 0.5)
	var ce *ConvergenceError
	if !As(convErr, &ce) {
		t.Fatal("Error should be castable to *ConvergenceError")
	}
	want := "scigam: P-IRLS did not converge after 100 iterations (relative change 0.5 > tol 1e-08)"
	if convErr.Error() != want {
		t.Errorf("Error() = %v, want %v", convErr.Error(), want)
	}
}

func TestFitErrorAggregatesFailures(t *testing.T) {
	failures := []error{
		NewConvergenceError("P-IRLS", 10, 1e-8, 1),
		NewNumericalError("pirls.solve", "singular", 1, 1e20),
		New("third"),
		New("fourth"),
	}
	err := NewFitError("smoothing.GridSearch", failures)

	var fitErr *FitError
	if !As(err, &fitErr) {
		t.Fatal("Error should be castable to *FitError")
	}
	if len(fitErr.Failures) != 4 {
		t.Errorf("len(Failures) = %d, want 4", len(fitErr.Failures))
	}
	if !strings.Contains(err.Error(), "all 4 candidates failed") {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "(1 more)") {
		t.Errorf("expected truncation marker in %s", err.Error())
	}
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("P-IRLS", 100, "deviance did not stabilise")

	want := "P-IRLS failed to converge after 100 iterations: deviance did not stabilise"
	if warn.Error() != want {
		t.Errorf("Error() = %v, want %v", warn.Error(), want)
	}
}

func TestWarnUsesHandler(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(w error) {})

	Warn(NewUndefinedMetricWarning("explained_deviance", "zero null deviance", 0))
	if len(got) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(got))
	}
	if !strings.Contains(got[0].Error(), "explained_deviance") {
		t.Errorf("unexpected warning: %v", got[0])
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Predict", 10, 5)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}

	expectedMsg := "in Predict: expected 10, got 5"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestNumericalHelpers(t *testing.T) {
	if err := CheckNumericalStability("op", []float64{1, math.NaN()}, 3); err == nil {
		t.Error("expected NaN to be reported")
	}
	if err := CheckScalar("op", 1.5, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if v := StabilizeExp(1000); math.IsInf(v, 0) {
		t.Error("StabilizeExp overflowed")
	}
	if v := XLogYOverMu(0, 0.3); v != 0 {
		t.Errorf("XLogYOverMu(0, mu) = %g, want 0", v)
	}
	if v := XLogYOverMu(2, 1); math.Abs(v-2*math.Log(2)) > 1e-12 {
		t.Errorf("XLogYOverMu(2, 1) = %g", v)
	}
	if v := ClipValue(2, 0, 1); v != 1 {
		t.Errorf("ClipValue = %g, want 1", v)
	}
}

type denseStub struct {
	cols int
	data []float64
}

func (d denseStub) At(i, j int) float64 { return d.data[i*d.cols+j] }

func TestCheckMatrix(t *testing.T) {
	design := denseStub{cols: 2, data: []float64{1, 0.5, 1, math.Inf(1), 1, 0.2}}
	err := CheckMatrix("GAM.Fit", design, 3, 2, 0)
	var instab *NumericalInstabilityError
	if !As(err, &instab) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if instab.Operation != "GAM.Fit" || len(instab.Values) != 1 || !math.IsInf(instab.Values[0], 1) {
		t.Errorf("unexpected error fields: %+v", instab)
	}
	if !strings.Contains(err.Error(), "+Inf") {
		t.Errorf("message should show the offending value: %s", err.Error())
	}

	design.data[3] = 2
	if err := CheckMatrix("GAM.Fit", design, 3, 2, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if v := SafeDivide(3, 0); v != 0 {
		t.Errorf("SafeDivide(3, 0) = %g, want 0", v)
	}
	if v := SafeDivide(3, 4); v != 0.75 {
		t.Errorf("SafeDivide(3, 4) = %g, want 0.75", v)
	}
}
