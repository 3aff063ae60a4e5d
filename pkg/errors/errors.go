// Package errors は拡散モデルコア全体のエラーハンドリングを提供します。
// 設定エラーと形状不一致エラーを区別し、cockroachdb/errors によるスタックトレースを付与します。
package errors

import (
	"fmt"
	"log"
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
		log.Printf("diffusion-warning: %v\n", w)
	}
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
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
}

// Warn は警告を発生させます。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ScheduleWarning はノイズスケジュールが単調でない、または端点が極端な場合の警告です。
type ScheduleWarning struct {
	Family string
	Index  int
	Reason string
}

func (w *ScheduleWarning) Error() string {
	return fmt.Sprintf("schedule %s at step %d: %s", w.Family, w.Index, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ScheduleWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("family", w.Family).
		Int("index", w.Index).
		Str("reason", w.Reason).
		Str("type", "ScheduleWarning")
}

// NewScheduleWarning は新しいScheduleWarningを作成します。
func NewScheduleWarning(family string, index int, reason string) *ScheduleWarning {
	return &ScheduleWarning{Family: family, Index: index, Reason: reason}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// ConfigurationError は設定値が不正な場合のエラーです。
// 未知のスケジュール種別、num_timesteps <= num_snapshots、フェーズのスケジュール欠落などで発生します。
type ConfigurationError struct {
	Op     string
	Param  string
	Reason string
	Value  interface{}
}

func (e *ConfigurationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("diffusion: %s: invalid configuration for '%s': %s (got: %v)", e.Op, e.Param, e.Reason, e.Value)
	}
	return fmt.Sprintf("diffusion: %s: invalid configuration for '%s': %s", e.Op, e.Param, e.Reason)
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

// ShapeMismatchError はテンソルの形状が期待と異なる場合のエラーです。
// デノイザー出力のチャンネル数や、条件画像・マスクの空間サイズの不一致を検出します。
type ShapeMismatchError struct {
	Op       string
	Tensor   string // 問題のあるテンソル名（例: "denoiser_output", "mask"）
	Expected []int  // 期待される形状 (N, C, H, W)。-1 は任意
	Got      []int  // 実際の形状
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("diffusion: %s: shape mismatch for %s. Expected shape %v, got %v",
		e.Op, e.Tensor, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ShapeMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("tensor", e.Tensor).
		Ints("expected", e.Expected).
		Ints("got", e.Got).
		Str("type", "ShapeMismatchError")
}

// NewShapeMismatchError は新しいShapeMismatchErrorを作成し、スタックトレースを付与します。
func NewShapeMismatchError(op, tensor string, expected, got []int) error {
	err := &ShapeMismatchError{Op: op, Tensor: tensor, Expected: expected, Got: got}
	return errors.WithStack(err)
}

// DimensionError は入力ベクトルの長さが期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("diffusion: %s: dimension mismatch. Expected %d, got %d", e.Op, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got}
	return errors.WithStack(err)
}

// NotFittedError は学習前の変換器が使われた場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("diffusion: %s: this %s instance is not fitted yet. Call Fit before using this method", e.Method, e.ModelName)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("diffusion: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// DenoiserError は外部デノイザーの呼び出しが失敗した場合のエラーです。
type DenoiserError struct {
	Op  string
	Err error
}

func (e *DenoiserError) Error() string {
	return fmt.Sprintf("diffusion: %s: denoiser failed: %v", e.Op, e.Err)
}

func (e *DenoiserError) Unwrap() error {
	return e.Err
}

// NewDenoiserError は新しいDenoiserErrorを作成し、スタックトレースを付与します。
func NewDenoiserError(op string, err error) error {
	return errors.WithStack(&DenoiserError{Op: op, Err: err})
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
//	数値計算エラー
//
// ===========================================================================

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// 分散の下限クリップなどのガードを越えて NaN/Inf が伝播した場合は設計上の欠陥を意味します。
type NumericalInstabilityError struct {
	Operation string    // 発生した操作（例: "reverse_step", "derive_coefficients"）
	Values    []float64 // 問題のある値
	Iteration int       // 発生したタイムステップ
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
	return fmt.Sprintf("diffusion: numerical instability detected in %s at step %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NumericalInstabilityError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Int("iteration", e.Iteration).
		Floats64("values", e.Values).
		Str("type", "NumericalInstabilityError")
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
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrScheduleNotSet はスケジュール未設定のエンジンが使われた場合のエラーです。
	ErrScheduleNotSet = New("noise schedule not set")
)
