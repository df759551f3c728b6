package errors

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

// TestRecover_FitPanic converts a panic inside a fit into a PanicError
// tagged with the fitting operation.
func TestRecover_FitPanic(t *testing.T) {
	fit := func() (err error) {
		defer Recover(&err, "GAM.Fit")
		var knots []float64
		_ = knots[3] // index out of range while freezing a basis
		return nil
	}

	err := fit()
	if err == nil {
		t.Fatal("expected an error from the recovered panic")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("expected PanicError, got %T", err)
	}
	if panicErr.Operation != "GAM.Fit" {
		t.Errorf("operation = %q, want GAM.Fit", panicErr.Operation)
	}
	if !strings.Contains(fmt.Sprint(panicErr.PanicValue), "index out of range") {
		t.Errorf("unexpected panic value: %v", panicErr.PanicValue)
	}
	if panicErr.StackTrace == "" {
		t.Error("expected a stack trace")
	}
	if !strings.HasPrefix(panicErr.Error(), "panic in GAM.Fit: ") {
		t.Errorf("unexpected message: %s", panicErr.Error())
	}
}

func TestRecover_NoPanicKeepsResult(t *testing.T) {
	predict := func() (err error) {
		defer Recover(&err, "GAM.Predict")
		return nil
	}
	if err := predict(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	convErr := NewConvergenceError("P-IRLS", 5, 1e-4, 0.3)
	fit := func() (err error) {
		defer Recover(&err, "GAM.Fit")
		return convErr
	}
	if err := fit(); err != convErr {
		t.Fatalf("expected the returned error unchanged, got %v", err)
	}
}

// TestRecover_PanicAfterConvergenceError keeps the earlier error reachable.
func TestRecover_PanicAfterConvergenceError(t *testing.T) {
	fit := func() (err error) {
		defer Recover(&err, "GAM.Fit")
		err = NewConvergenceError("P-IRLS", 100, 1e-4, 0.2)
		panic("covariance is not symmetric")
	}

	err := fit()
	if err == nil {
		t.Fatal("expected an error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "panic in GAM.Fit") || !strings.Contains(msg, "covariance is not symmetric") {
		t.Errorf("message should carry the panic: %s", msg)
	}

	var convErr *ConvergenceError
	if !errors.As(err, &convErr) {
		t.Fatal("the convergence error should still be reachable")
	}
	if convErr.Iterations != 100 {
		t.Errorf("iterations = %d, want 100", convErr.Iterations)
	}
}

// TestSafeExecute_Candidate mirrors how a smoothing candidate is evaluated:
// the closure stores its result and SafeExecute turns panics into errors.
func TestSafeExecute_Candidate(t *testing.T) {
	var score float64
	err := SafeExecute("smoothing.candidate", func() error {
		score = 0.42
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0.42 {
		t.Errorf("score = %g, want 0.42", score)
	}

	singular := NewNumericalError("pirls.Solve", "penalized least-squares system is singular", 1e-2, 1e16)
	err = SafeExecute("smoothing.candidate", func() error {
		return singular
	})
	if err != singular {
		t.Fatalf("expected the candidate error unchanged, got %v", err)
	}
}

func TestSafeExecute_PanickingCandidate(t *testing.T) {
	score := math.Inf(1)
	err := SafeExecute("smoothing.candidate", func() error {
		var coef []float64
		score = coef[0]
		return nil
	})
	if err == nil {
		t.Fatal("expected an error from the panicking candidate")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("expected PanicError, got %T", err)
	}
	if panicErr.Operation != "smoothing.candidate" {
		t.Errorf("operation = %q, want smoothing.candidate", panicErr.Operation)
	}
	if !math.IsInf(score, 1) {
		t.Errorf("score should be untouched, got %g", score)
	}
}

func TestPanicError_Format(t *testing.T) {
	panicErr := NewPanicError("GAM.Sample", "negative scale")

	if got, want := panicErr.Error(), "panic in GAM.Sample: negative scale"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	str := panicErr.String()
	if !strings.Contains(str, "Stack trace:") {
		t.Error("String() should include the stack trace")
	}
	if !strings.Contains(str, "panic in GAM.Sample: negative scale") {
		t.Error("String() should include the message")
	}
	if panicErr.Unwrap() != nil {
		t.Error("PanicError.Unwrap() should return nil")
	}
}

func TestRecover_PanicValues(t *testing.T) {
	testCases := []struct {
		name       string
		panicValue interface{}
		// panic(nil) arrives as a runtime.PanicNilError
		expectedValue interface{}
	}{
		{"string", "basis evaluation failed", "basis evaluation failed"},
		{"int", 42, 42},
		{"error", NewNumericalInstabilityError("pirls.coefficients", []float64{math.NaN()}, 2), "numerical instability"},
		{"nil", nil, "panic called with nil argument"},
		{"struct", struct{ Term int }{3}, struct{ Term int }{3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fn := func() (err error) {
				defer Recover(&err, "GAM.PredictPartial")
				panic(tc.panicValue)
			}

			err := fn()
			var panicErr *PanicError
			if !errors.As(err, &panicErr) {
				t.Fatalf("expected PanicError, got %T", err)
			}
			if !strings.Contains(fmt.Sprintf("%v", panicErr.PanicValue), fmt.Sprintf("%v", tc.expectedValue)) {
				t.Errorf("panic value = %v, want %v", panicErr.PanicValue, tc.expectedValue)
			}
		})
	}
}

func BenchmarkRecover_NoPanic(b *testing.B) {
	for i := 0; i < b.N; i++ {
		func() (err error) {
			defer Recover(&err, "GAM.Predict")
			return nil
		}()
	}
}

func BenchmarkSafeExecute_NoPanic(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = SafeExecute("smoothing.candidate", func() error {
			return nil
		})
	}
}
