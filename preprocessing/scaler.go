// Package preprocessing は画像テンソルの値域変換を提供する
//
// デノイザーは [-1, 1] の値域で学習されるため、画素値は MinMaxScaler で
// 入力前に変換し、復元結果は InverseTransform で元の値域に戻す。
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/diffusion/core/model"
	"github.com/YuminosukeSato/diffusion/core/tensor"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// scaleEpsilon より小さい幅はゼロ除算を避けるため 1 に置き換える
const scaleEpsilon = 1e-8

// StandardScaler はチャンネルごとの標準化スケーラー
// (x - Mean[c]) / Scale[c] に変換する
type StandardScaler struct {
	model.BaseEstimator

	// Mean は各チャンネルの平均値
	Mean []float64

	// Scale は各チャンネルの標準偏差
	Scale []float64

	// NChannels はチャンネル数
	NChannels int

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// パラメータ:
//   - withMean: 平均を引くかどうか
//   - withStd: 標準偏差で割るかどうか
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	scaled, err := scaler.FitTransform(images)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// Fit はバッチ全体からチャンネルごとの平均と標準偏差を計算する
func (s *StandardScaler) Fit(x *tensor.Tensor) error {
	if x == nil || x.Shape.Numel() == 0 {
		return errors.Wrap(errors.ErrEmptyData, "StandardScaler.Fit")
	}

	c := x.Shape.C
	s.NChannels = c
	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)

	for ch := 0; ch < c; ch++ {
		mean, std := stat.PopMeanStdDev(channelValues(x, ch), nil)
		s.Mean[ch] = 0
		if s.WithMean {
			s.Mean[ch] = mean
		}
		s.Scale[ch] = 1
		if s.WithStd && math.Abs(std) >= scaleEpsilon {
			s.Scale[ch] = std
		}
	}

	s.SetFitted()
	return nil
}

// Transform は学習済みの統計情報でデータを標準化する
func (s *StandardScaler) Transform(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}
	if x.Shape.C != s.NChannels {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.NChannels, x.Shape.C)
	}
	return mapChannels(x, func(c int, v float64) float64 {
		return (v - s.Mean[c]) / s.Scale[c]
	}), nil
}

// FitTransform は学習と変換を同時に行う
func (s *StandardScaler) FitTransform(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}
	if x.Shape.C != s.NChannels {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", s.NChannels, x.Shape.C)
	}
	return mapChannels(x, func(c int, v float64) float64 {
		return v*s.Scale[c] + s.Mean[c]
	}), nil
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_channels=%d)",
		s.WithMean, s.WithStd, s.NChannels)
}

// MinMaxScaler はチャンネルごとに値を FeatureRange に写すスケーラー
type MinMaxScaler struct {
	model.BaseEstimator

	// DataMin と DataMax は学習データの各チャンネルの最小値・最大値
	DataMin []float64
	DataMax []float64

	// Scale は各チャンネルの幅 (max - min)
	Scale []float64

	// NChannels はチャンネル数
	NChannels int

	// FeatureRange は変換後の範囲 [min, max]
	FeatureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewMinMaxScaler([2]float64{-1, 1})
//	scaled, err := scaler.FitTransform(images)
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{FeatureRange: featureRange}
}

// NewMinMaxScalerDefault はデノイザーの値域 [-1, 1] に写すMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{-1, 1})
}

// Fit はチャンネルごとの最小値・最大値を計算する
func (m *MinMaxScaler) Fit(x *tensor.Tensor) error {
	if x == nil || x.Shape.Numel() == 0 {
		return errors.Wrap(errors.ErrEmptyData, "MinMaxScaler.Fit")
	}
	if !(m.FeatureRange[1] > m.FeatureRange[0]) {
		return errors.NewValueError("MinMaxScaler.Fit", "feature range must be increasing")
	}

	c := x.Shape.C
	m.NChannels = c
	m.DataMin = make([]float64, c)
	m.DataMax = make([]float64, c)
	m.Scale = make([]float64, c)

	for ch := 0; ch < c; ch++ {
		vals := channelValues(x, ch)
		m.DataMin[ch] = floats.Min(vals)
		m.DataMax[ch] = floats.Max(vals)

		// 定数チャンネルはスケール 1
		m.Scale[ch] = m.DataMax[ch] - m.DataMin[ch]
		if math.Abs(m.Scale[ch]) < scaleEpsilon {
			m.Scale[ch] = 1
		}
	}

	m.SetFitted()
	return nil
}

// Transform は学習済みの範囲でデータをスケーリングする
func (m *MinMaxScaler) Transform(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("MinMaxScaler", "Transform")
	}
	if x.Shape.C != m.NChannels {
		return nil, errors.NewDimensionError("MinMaxScaler.Transform", m.NChannels, x.Shape.C)
	}
	width := m.FeatureRange[1] - m.FeatureRange[0]
	return mapChannels(x, func(c int, v float64) float64 {
		return (v-m.DataMin[c])/m.Scale[c]*width + m.FeatureRange[0]
	}), nil
}

// FitTransform は学習と変換を同時に行う
func (m *MinMaxScaler) FitTransform(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := m.Fit(x); err != nil {
		return nil, err
	}
	return m.Transform(x)
}

// InverseTransform はスケーリングされたデータを元の範囲に戻す
func (m *MinMaxScaler) InverseTransform(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("MinMaxScaler", "InverseTransform")
	}
	if x.Shape.C != m.NChannels {
		return nil, errors.NewDimensionError("MinMaxScaler.InverseTransform", m.NChannels, x.Shape.C)
	}
	width := m.FeatureRange[1] - m.FeatureRange[0]
	return mapChannels(x, func(c int, v float64) float64 {
		return (v-m.FeatureRange[0])/width*m.Scale[c] + m.DataMin[c]
	}), nil
}

// GetParams はスケーラーのパラメータを取得する
func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_range": m.FeatureRange,
	}
}

// String はスケーラーの文字列表現を返す
func (m *MinMaxScaler) String() string {
	if !m.IsFitted() {
		return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f])", m.FeatureRange[0], m.FeatureRange[1])
	}
	return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f], n_channels=%d)",
		m.FeatureRange[0], m.FeatureRange[1], m.NChannels)
}

// channelValues はバッチ全体からチャンネル c の値を集める
func channelValues(x *tensor.Tensor, c int) []float64 {
	plane := x.Shape.Plane()
	out := make([]float64, 0, x.Shape.N*plane)
	for b := 0; b < x.Shape.N; b++ {
		ex := x.Example(b)
		out = append(out, ex[c*plane:(c+1)*plane]...)
	}
	return out
}

// mapChannels は各要素にチャンネル番号付きで fn を適用した新しいテンソルを返す
func mapChannels(x *tensor.Tensor, fn func(c int, v float64) float64) *tensor.Tensor {
	out := tensor.Zeros(x.Shape)
	plane := x.Shape.Plane()
	per := x.Shape.PerExample()
	for i, v := range x.Data {
		c := (i % per) / plane
		out.Data[i] = fn(c, v)
	}
	return out
}
