package diffusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/diffusion/core/tensor"
	"github.com/YuminosukeSato/diffusion/diffusion/schedule"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// dualOutput assembles raw dual-x output from its parts; the gate logit is
// the same everywhere.
func dualOutput(t *testing.T, xstart, eps *tensor.Tensor, logit float64) *tensor.Tensor {
	t.Helper()
	raw, err := tensor.Concat(xstart, eps, tensor.Full(xstart.Shape.WithChannels(1), logit))
	require.NoError(t, err)
	return raw
}

func TestDualChannels(t *testing.T) {
	assert.Equal(t, 7, DualChannels(3))
	assert.Equal(t, 3, DualChannels(1))
}

func TestSplitDual(t *testing.T) {
	s := tensor.Shape{N: 2, C: 3, H: 2, W: 2}
	xstart := randTensor(s, 1)
	eps := randTensor(s, 2)
	raw := dualOutput(t, xstart, eps, 0.25)

	gotX, gotE, gotL, err := SplitDual(raw, 3)
	require.NoError(t, err)
	assert.Equal(t, xstart.Data, gotX.Data)
	assert.Equal(t, eps.Data, gotE.Data)
	assert.Equal(t, s.WithChannels(1), gotL.Shape)
	for _, v := range gotL.Data {
		assert.Equal(t, 0.25, v)
	}

	_, _, _, err = SplitDual(tensor.Zeros(s), 3)
	var shapeErr *errors.ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestFuse_GateSelectsHead(t *testing.T) {
	c := mustCoefficients(t, schedule.Linear, 100)
	s := tensor.Shape{N: 2, C: 3, H: 2, W: 2}
	yt := randTensor(s, 1)
	xstart := randTensor(s, 2)
	eps := randTensor(s, 3)
	ts := []int{20, 70}

	fromEps, err := c.PredictStartFromNoise(yt, ts, eps)
	require.NoError(t, err)

	tests := []struct {
		name  string
		logit float64
		want  *tensor.Tensor
	}{
		{"open gate keeps direct head", 50, xstart},
		{"closed gate keeps noise head", -50, fromEps},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := c.Fuse(dualOutput(t, xstart, eps, tt.logit), yt, ts, FusionExplicit)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want.Data, r.X0.Data, 1e-9)
			assert.InDeltaSlice(t, fromEps.Data, r.X0FromE.Data, 1e-12)
		})
	}
}

func TestFuse_EvenGateAverages(t *testing.T) {
	c := mustCoefficients(t, schedule.Linear, 100)
	s := tensor.Shape{N: 1, C: 2, H: 2, W: 2}
	yt := randTensor(s, 1)
	xstart := randTensor(s, 2)
	eps := randTensor(s, 3)
	ts := []int{50}

	r, err := c.FuseStart(dualOutput(t, xstart, eps, 0), yt, ts)
	require.NoError(t, err)
	assert.Nil(t, r.Mean)
	for i, g := range r.Gate.Data {
		assert.Equal(t, 0.5, g)
		assert.InDelta(t, 0.5*xstart.Data[i]+0.5*r.X0FromE.Data[i], r.X0.Data[i], 1e-12)
	}
	assert.Equal(t, s, r.Gate.Shape)
}

func TestFuse_Modes(t *testing.T) {
	c := mustCoefficients(t, schedule.Linear, 100)
	s := tensor.Shape{N: 2, C: 3, H: 2, W: 2}
	yt := randTensor(s, 1)
	raw := dualOutput(t, randTensor(s, 2), randTensor(s, 3), 0.3)
	ts := []int{5, 90}

	explicit, err := c.Fuse(raw, yt, ts, FusionExplicit)
	require.NoError(t, err)
	want, err := c.PosteriorMean(explicit.X0, yt, ts)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Data, explicit.Mean.Data, 1e-12)

	implicit, err := c.Fuse(raw, yt, ts, FusionImplicit)
	require.NoError(t, err)
	want, err = c.ImplicitMean(implicit.X0, yt, ts)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Data, implicit.Mean.Data, 1e-12)
	assert.Equal(t, explicit.X0.Data, implicit.X0.Data)

	_, err = c.Fuse(raw, yt, ts, FusionMode(9))
	var cfgErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestFuse_PredictionLayout(t *testing.T) {
	c := mustCoefficients(t, schedule.Linear, 100)
	s := tensor.Shape{N: 2, C: 3, H: 2, W: 2}
	yt := randTensor(s, 1)
	xstart := randTensor(s, 2)
	eps := randTensor(s, 3)

	r, err := c.Fuse(dualOutput(t, xstart, eps, 1), yt, []int{10, 11}, FusionExplicit)
	require.NoError(t, err)
	pred, err := r.Prediction()
	require.NoError(t, err)
	assert.Equal(t, s.WithChannels(9), pred.Shape)

	mean, err := pred.Channels(6, 9)
	require.NoError(t, err)
	assert.Equal(t, r.Mean.Data, mean.Data)
	head, err := pred.Channels(0, 3)
	require.NoError(t, err)
	assert.Equal(t, xstart.Data, head.Data)
}

func TestFuseStart_DoesNotModifyInputs(t *testing.T) {
	c := mustCoefficients(t, schedule.Linear, 100)
	s := tensor.Shape{N: 1, C: 1, H: 2, W: 2}
	yt := randTensor(s, 1)
	raw := dualOutput(t, randTensor(s, 2), randTensor(s, 3), -0.7)
	rawBefore := raw.Clone()
	ytBefore := yt.Clone()

	r, err := c.FuseStart(raw, yt, []int{40})
	require.NoError(t, err)
	assert.Equal(t, rawBefore.Data, raw.Data)
	assert.Equal(t, ytBefore.Data, yt.Data)
	assert.False(t, r.X0.Detached)
	assert.False(t, r.XStart.Detached)
}

func TestFuseStart_BlendOperandsAreDetached(t *testing.T) {
	c := mustCoefficients(t, schedule.Linear, 100)
	s := tensor.Shape{N: 2, C: 3, H: 2, W: 2}
	yt := randTensor(s, 4)
	raw := dualOutput(t, randTensor(s, 5), randTensor(s, 6), 0.3)

	r, err := c.FuseStart(raw, yt, []int{10, 70})
	require.NoError(t, err)

	// gradient reaches the gate only
	require.NotNil(t, r.Blended.Direct)
	require.NotNil(t, r.Blended.Derived)
	assert.True(t, r.Blended.Direct.Detached)
	assert.True(t, r.Blended.Derived.Detached)
	assert.False(t, r.XStart.Detached)
	assert.False(t, r.Eps.Detached)
	assert.False(t, r.X0FromE.Detached)

	assert.Equal(t, r.XStart.Data, r.Blended.Direct.Data)
	assert.Equal(t, r.X0FromE.Data, r.Blended.Derived.Data)
	for i, g := range r.Gate.Data {
		want := g*r.Blended.Direct.Data[i] + (1-g)*r.Blended.Derived.Data[i]
		assert.InDelta(t, want, r.X0.Data[i], 1e-12)
	}
}
