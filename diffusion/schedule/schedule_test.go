package schedule

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

func TestMake_AllFamiliesInRange(t *testing.T) {
	for _, family := range Families {
		for _, T := range []int{2, 3, 10, 100, 1000} {
			betas, err := Make(family, T, DefaultLinearStart, DefaultLinearEnd, DefaultCosineS)
			require.NoError(t, err, "family %s T=%d", family, T)
			require.Len(t, betas, T)
			for i, b := range betas {
				assert.True(t, b > 0 && b <= 1, "family %s T=%d beta[%d]=%g", family, T, i, b)
				if family == Cosine {
					assert.LessOrEqual(t, b, MaxCosineBeta)
				}
			}
		}
	}
}

func TestMake_Linear(t *testing.T) {
	betas, err := Make(Linear, 5, 0.1, 0.5, 0)
	require.NoError(t, err)
	want := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	for i := range want {
		assert.InDelta(t, want[i], betas[i], 1e-12)
	}
}

func TestMake_Quad(t *testing.T) {
	betas, err := Make(Quad, 3, 0.01, 0.09, 0)
	require.NoError(t, err)
	// sqrt spacing 0.1, 0.2, 0.3
	assert.InDelta(t, 0.01, betas[0], 1e-12)
	assert.InDelta(t, 0.04, betas[1], 1e-12)
	assert.InDelta(t, 0.09, betas[2], 1e-12)
}

func TestMake_Warmup(t *testing.T) {
	betas, err := Make(Warmup10, 20, 1e-4, 0.02, 0)
	require.NoError(t, err)
	// first int(20*0.1)=2 steps ramp
	assert.InDelta(t, 1e-4, betas[0], 1e-15)
	assert.InDelta(t, 0.02, betas[1], 1e-15)
	for _, b := range betas[2:] {
		assert.Equal(t, 0.02, b)
	}

	betas, err = Make(Warmup50, 10, 0.01, 0.05, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, betas[0], 1e-15)
	assert.InDelta(t, 0.02, betas[1], 1e-15)
	assert.InDelta(t, 0.05, betas[4], 1e-15)
	assert.Equal(t, 0.05, betas[9])
}

func TestMake_ConstAndJSD(t *testing.T) {
	betas, err := Make(Const, 4, 0, 0.3, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 0.3, 0.3, 0.3}, betas)

	betas, err = Make(JSD, 4, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 1.0 / 3, 0.5, 1}, betas)
}

func TestMake_Cosine(t *testing.T) {
	betas, err := Make(Cosine, 1000, 0, 0, DefaultCosineS)
	require.NoError(t, err)
	assert.Equal(t, MaxCosineBeta, betas[999], "last cosine step is capped")

	for i := 1; i < len(betas); i++ {
		assert.GreaterOrEqual(t, betas[i], betas[i-1], "cosine betas are non-decreasing")
	}

	// cumulative product of (1-beta) reproduces the cosine curve before the cap
	s := DefaultCosineS
	f := func(x float64) float64 {
		c := math.Cos((x + s) / (1 + s) * math.Pi / 2)
		return c * c
	}
	prod := 1.0
	for i := 0; i < 500; i++ {
		prod *= 1 - betas[i]
	}
	assert.InDelta(t, f(0.5)/f(0), prod, 1e-9)
}

func TestMake_Errors(t *testing.T) {
	_, err := Make("sigmoid", 10, 1e-4, 0.02, 0)
	var cfgErr *errors.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "schedule", cfgErr.Param)

	_, err = Make(Linear, 0, 1e-4, 0.02, 0)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "n_timestep", cfgErr.Param)

	_, err = Make(Linear, 10, 0, 0.02, 0)
	require.True(t, errors.As(err, &cfgErr), "zero beta is rejected")
}

func TestParseFamily(t *testing.T) {
	f, err := ParseFamily(" Cosine ")
	require.NoError(t, err)
	assert.Equal(t, Cosine, f)

	_, err = ParseFamily("exponential")
	assert.Error(t, err)
}

func TestParamsBetas(t *testing.T) {
	p := Params{Family: Linear, NTimestep: 3, LinearStart: 0.1, LinearEnd: 0.3}
	betas, err := p.Betas()
	require.NoError(t, err)
	assert.InDelta(t, 0.2, betas[1], 1e-12)
}
