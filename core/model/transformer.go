package model

import "github.com/YuminosukeSato/diffusion/core/tensor"

// Transformer はテンソルの値域変換のインターフェース
//
// 画像をデノイザーの入力範囲に写し、復元結果を元の範囲に戻すために使う。
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(x *tensor.Tensor) error

	// Transform はデータを変換する
	Transform(x *tensor.Tensor) (*tensor.Tensor, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(x *tensor.Tensor) (*tensor.Tensor, error)

	// InverseTransform は変換を元に戻す
	InverseTransform(x *tensor.Tensor) (*tensor.Tensor, error)
}
