package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/diffusion/core/model"
	"github.com/YuminosukeSato/diffusion/core/tensor"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

var (
	_ model.Transformer = (*StandardScaler)(nil)
	_ model.Transformer = (*MinMaxScaler)(nil)
)

// twoChannels はチャンネル0が {1,2,3,4}、チャンネル1が定数 5 のバッチ
func twoChannels(t *testing.T) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromData(tensor.Shape{N: 2, C: 2, H: 1, W: 2}, []float64{
		1, 2, 5, 5,
		3, 4, 5, 5,
	})
	require.NoError(t, err)
	return x
}

func TestStandardScaler_FitTransform(t *testing.T) {
	x := twoChannels(t)
	s := NewStandardScaler(true, true)

	got, err := s.FitTransform(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 5}, s.Mean)
	assert.InDelta(t, math.Sqrt(1.25), s.Scale[0], 1e-12)
	// 定数チャンネルはスケール 1
	assert.Equal(t, 1.0, s.Scale[1])

	sd := math.Sqrt(1.25)
	want := []float64{-1.5 / sd, -0.5 / sd, 0, 0, 0.5 / sd, 1.5 / sd, 0, 0}
	assert.InDeltaSlice(t, want, got.Data, 1e-12)

	back, err := s.InverseTransform(got)
	require.NoError(t, err)
	assert.InDeltaSlice(t, x.Data, back.Data, 1e-12)
}

func TestStandardScaler_Options(t *testing.T) {
	x := twoChannels(t)

	s := NewStandardScaler(false, true)
	require.NoError(t, s.Fit(x))
	assert.Equal(t, []float64{0, 0}, s.Mean)

	s = NewStandardScaler(true, false)
	require.NoError(t, s.Fit(x))
	assert.Equal(t, []float64{1, 1}, s.Scale)
	assert.Equal(t, "StandardScaler(with_mean=true, with_std=false, n_channels=2)", s.String())
	assert.Equal(t, map[string]interface{}{"with_mean": true, "with_std": false}, s.GetParams())
}

func TestStandardScaler_Errors(t *testing.T) {
	s := NewStandardScaler(true, true)
	_, err := s.Transform(twoChannels(t))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
	_, err = s.InverseTransform(twoChannels(t))
	assert.True(t, errors.As(err, &nf))

	assert.True(t, errors.Is(s.Fit(nil), errors.ErrEmptyData))

	require.NoError(t, s.Fit(twoChannels(t)))
	_, err = s.Transform(tensor.Zeros(tensor.Shape{N: 1, C: 3, H: 1, W: 1}))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestMinMaxScaler(t *testing.T) {
	x := twoChannels(t)
	m := NewMinMaxScalerDefault()

	got, err := m.FitTransform(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 5}, m.DataMin)
	assert.Equal(t, []float64{4, 5}, m.DataMax)
	want := []float64{-1, -1.0 / 3, -1, -1, 1.0 / 3, 1, -1, -1}
	assert.InDeltaSlice(t, want, got.Data, 1e-12)

	back, err := m.InverseTransform(got)
	require.NoError(t, err)
	assert.InDeltaSlice(t, x.Data, back.Data, 1e-12)

	bad := NewMinMaxScaler([2]float64{1, 1})
	var valErr *errors.ValueError
	assert.True(t, errors.As(bad.Fit(x), &valErr))

	_, err = NewMinMaxScalerDefault().Transform(x)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}
