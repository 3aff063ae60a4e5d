package tensor

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

func seq(s Shape) *Tensor {
	t := Zeros(s)
	for i := range t.Data {
		t.Data[i] = float64(i)
	}
	return t
}

func TestShape(t *testing.T) {
	s := Shape{N: 2, C: 3, H: 4, W: 5}
	assert.Equal(t, 120, s.Numel())
	assert.Equal(t, 60, s.PerExample())
	assert.Equal(t, 20, s.Plane())
	assert.Equal(t, []int{2, 3, 4, 5}, s.Ints())
	assert.True(t, s.SameSpatial(s.WithChannels(7)))
	assert.False(t, s.SameSpatial(Shape{N: 1, C: 3, H: 4, W: 5}))
}

func TestFromData(t *testing.T) {
	_, err := FromData(Shape{N: 1, C: 1, H: 2, W: 2}, []float64{1, 2, 3})
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))

	tt, err := FromData(Shape{N: 1, C: 1, H: 2, W: 2}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4.0, tt.At(0, 0, 1, 1))
}

func TestChannelsAndConcat(t *testing.T) {
	x := seq(Shape{N: 2, C: 3, H: 1, W: 2})

	mid, err := x.Channels(1, 3)
	require.NoError(t, err)
	assert.Equal(t, Shape{N: 2, C: 2, H: 1, W: 2}, mid.Shape)
	assert.Equal(t, []float64{2, 3, 4, 5, 8, 9, 10, 11}, mid.Data)

	first, err := x.Channels(0, 1)
	require.NoError(t, err)
	back, err := Concat(first, mid)
	require.NoError(t, err)
	assert.Equal(t, x.Data, back.Data)

	_, err = x.Channels(2, 4)
	var shapeErr *errors.ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr))

	_, err = Concat(x, seq(Shape{N: 2, C: 1, H: 2, W: 2}))
	assert.True(t, errors.As(err, &shapeErr))
}

func TestBatchArithmetic(t *testing.T) {
	x := Full(Shape{N: 2, C: 1, H: 1, W: 2}, 1)
	y := Full(Shape{N: 2, C: 1, H: 1, W: 2}, 2)

	out, err := LinearCombBatch([]float64{1, 3}, x, []float64{0.5, -1}, y)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 1, 1}, out.Data)

	_, err = ScaleBatch([]float64{1}, x)
	assert.Error(t, err)

	sum, err := Add(x, y)
	require.NoError(t, err)
	diff, err := Sub(sum, y)
	require.NoError(t, err)
	assert.Equal(t, x.Data, diff.Data)

	prod, err := Mul(y, y)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 4, 4, 4}, prod.Data)
	assert.Equal(t, []float64{-2, -2, -2, -2}, Scale(-1, y).Data)
}

func TestBlend(t *testing.T) {
	s := Shape{N: 1, C: 1, H: 1, W: 3}
	known := Full(s, 5)
	gen := Full(s, -1)
	mask, _ := FromData(s, []float64{0, 1, 0.5})

	out, err := Blend(known, gen, mask)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, -1, 2}, out.Data)

	_, err = Blend(known, gen, Full(Shape{N: 1, C: 2, H: 1, W: 3}, 1))
	assert.Error(t, err)
}

func TestClampSigmoid(t *testing.T) {
	s := Shape{N: 1, C: 1, H: 1, W: 4}
	x, _ := FromData(s, []float64{-3, -0.5, 0.5, 3})

	c := x.Clamp(-1, 1)
	assert.Equal(t, []float64{-1, -0.5, 0.5, 1}, c.Data)
	assert.Equal(t, -3.0, x.Min(), "clamp must not modify the receiver")

	sg := Sigmoid(x)
	for i, v := range x.Data {
		assert.InDelta(t, 1/(1+math.Exp(-v)), sg.Data[i], 1e-12)
	}
	big, _ := FromData(Shape{N: 1, C: 1, H: 1, W: 2}, []float64{-1000, 1000})
	sb := Sigmoid(big)
	assert.Equal(t, 0.0, sb.Data[0])
	assert.Equal(t, 1.0, sb.Data[1])
}

func TestBroadcastChannels(t *testing.T) {
	g, _ := FromData(Shape{N: 2, C: 1, H: 1, W: 1}, []float64{0.1, 0.9})
	out, err := BroadcastChannels(g, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.1, 0.1, 0.9, 0.9, 0.9}, out.Data)

	_, err = BroadcastChannels(out, 2)
	assert.Error(t, err)
}

func TestDetach(t *testing.T) {
	x := Full(Shape{N: 1, C: 1, H: 1, W: 1}, 2)
	d := x.Detach()
	assert.True(t, d.Detached)
	assert.False(t, x.Detached)
	d.Data[0] = 3
	assert.Equal(t, 3.0, x.Data[0], "detach shares storage")

	sum, err := Add(d, x)
	require.NoError(t, err)
	assert.False(t, sum.Detached)
}

func TestRandNDeterministic(t *testing.T) {
	s := Shape{N: 2, C: 3, H: 4, W: 4}
	a := RandN(s, rand.NewPCG(1, 2))
	b := RandN(s, rand.NewPCG(1, 2))
	c := RandN(s, rand.NewPCG(3, 4))
	assert.Equal(t, a.Data, b.Data)
	assert.NotEqual(t, a.Data, c.Data)

	var mean float64
	for _, v := range a.Data {
		mean += v
	}
	mean /= float64(len(a.Data))
	assert.InDelta(t, 0, mean, 0.5)
}
