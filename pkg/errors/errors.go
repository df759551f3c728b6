// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// GAMの学習で発生する設定エラー・定義域エラー・数値エラー・収束エラーを
// 構造化された型として表現し、cockroachdb/errors によるスタックトレースを付与します。
package errors

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("scigam-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
// これにより、ConvergenceWarningなどのカスタム警告の処理方法を制御できます。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
	zerologWarnFunc = nil
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが利用可能な場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	// zerologが設定されている場合は優先的に使用
	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	// フォールバック: 従来のハンドラ
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// ConvergenceWarning は反復アルゴリズムが収束しなかった場合に発生する警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or adjusting parameters.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning は新しいConvergenceWarningを作成します。
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、説明デビアンスを計算する際にヌルデビアンスが0だった場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` などを呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("scigam: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("scigam: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("scigam: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError はモデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scigam: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("scigam: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// ===========================================================================
//
//	GAM学習のエラー種別
//
// ===========================================================================

// ConfigurationError はTermや基底の設定が不正な場合、
// または特徴量とTermの次元が一致しない場合のエラーです。学習は即座に中断されます。
type ConfigurationError struct {
	Op     string
	Param  string
	Reason string
	Value  interface{}
}

func (e *ConfigurationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("scigam: %s: invalid configuration for '%s': %s", e.Op, e.Param, e.Reason)
	}
	return fmt.Sprintf("scigam: %s: invalid configuration for '%s': %s (got: %v)", e.Op, e.Param, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("param_name", e.Param).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigurationError")
}

// NewConfigurationError は新しいConfigurationErrorを作成し、スタックトレースを付与します。
func NewConfigurationError(op, param, reason string, value interface{}) error {
	err := &ConfigurationError{Op: op, Param: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// DomainError は応答変数が分布の定義域外にある場合のエラーです
// （例: Poisson分布に対する負のカウント）。学習は即座に中断されます。
type DomainError struct {
	Op           string
	Distribution string
	Index        int
	Value        float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("scigam: %s: response value %g at index %d is outside the support of the %s distribution",
		e.Op, e.Value, e.Index, e.Distribution)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DomainError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("distribution", e.Distribution).
		Int("index", e.Index).
		Float64("value", e.Value).
		Str("type", "DomainError")
}

// NewDomainError は新しいDomainErrorを作成し、スタックトレースを付与します。
func NewDomainError(op, distribution string, index int, value float64) error {
	err := &DomainError{Op: op, Distribution: distribution, Index: index, Value: value}
	return errors.WithStack(err)
}

// NumericalError はリッジ正則化によるフォールバック後も
// 連立方程式が特異または悪条件のままだった場合のエラーです。
type NumericalError struct {
	Op        string
	Reason    string
	Ridge     float64 // 最後に試したリッジ係数
	Condition float64 // 最後に観測した条件数
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("scigam: %s: %s (ridge=%g, condition=%g)", e.Op, e.Reason, e.Ridge, e.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NumericalError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Float64("ridge", e.Ridge).
		Float64("condition", e.Condition).
		Str("type", "NumericalError")
}

// NewNumericalError は新しいNumericalErrorを作成し、スタックトレースを付与します。
func NewNumericalError(op, reason string, ridge, condition float64) error {
	err := &NumericalError{Op: op, Reason: reason, Ridge: ridge, Condition: condition}
	return errors.WithStack(err)
}

// ConvergenceError はP-IRLSが最大反復回数内に許容誤差を満たさなかった場合のエラーです。
// オプティマイザはこの候補をスコア+Infとして記録し探索を続けます。
type ConvergenceError struct {
	Algorithm  string
	Iterations int
	Tol        float64
	Change     float64 // 最後の反復での相対変化量
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("scigam: %s did not converge after %d iterations (relative change %g > tol %g)",
		e.Algorithm, e.Iterations, e.Change, e.Tol)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConvergenceError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("algorithm", e.Algorithm).
		Int("iterations", e.Iterations).
		Float64("tol", e.Tol).
		Float64("change", e.Change).
		Str("type", "ConvergenceError")
}

// NewConvergenceError は新しいConvergenceErrorを作成し、スタックトレースを付与します。
func NewConvergenceError(algorithm string, iterations int, tol, change float64) error {
	err := &ConvergenceError{Algorithm: algorithm, Iterations: iterations, Tol: tol, Change: change}
	return errors.WithStack(err)
}

// FitError は全ての候補の評価が失敗した場合に返される集約エラーです。
type FitError struct {
	Op       string
	Failures []error
}

func (e *FitError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("scigam: %s: fit failed", e.Op)
	}
	msgs := make([]string, 0, len(e.Failures))
	for i, f := range e.Failures {
		if i >= 3 {
			msgs = append(msgs, fmt.Sprintf("... (%d more)", len(e.Failures)-i))
			break
		}
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("scigam: %s: all %d candidates failed: %s", e.Op, len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap は個々の失敗を返し、errors.Is / errors.As で辿れるようにします。
func (e *FitError) Unwrap() []error {
	return e.Failures
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *FitError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("failures", len(e.Failures)).
		Str("type", "FitError")
}

// NewFitError は新しいFitErrorを作成し、スタックトレースを付与します。
func NewFitError(op string, failures []error) error {
	err := &FitError{Op: op, Failures: failures}
	return errors.WithStack(err)
}

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// NaN、Inf、オーバーフロー、アンダーフローなどを検出します。
type NumericalInstabilityError struct {
	Operation string    // 発生した操作（例: "pirls.deviance", "basis.evaluate"）
	Values    []float64 // 問題のある値
	Iteration int       // 発生したイテレーション番号
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("scigam: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")
)
