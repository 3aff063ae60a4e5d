package diffusion

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/diffusion/core/tensor"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// QSample corrupts clean with Gaussian noise at a per-example signal level:
// noisy = sqrt(g)*clean + sqrt(1-g)*noise.
//
// A nil noise is drawn from src. The noise actually used is returned so
// training can build eps targets from it.
func QSample(clean *tensor.Tensor, gammaMix []float64, noise *tensor.Tensor, src rand.Source) (noisy, used *tensor.Tensor, err error) {
	if len(gammaMix) != clean.Shape.N {
		return nil, nil, errors.NewDimensionError("QSample", clean.Shape.N, len(gammaMix))
	}
	if noise == nil {
		noise = tensor.RandNLike(clean, src)
	} else if err := tensor.SameShape("QSample", "noise", clean.Shape, noise.Shape); err != nil {
		return nil, nil, err
	}

	signal := make([]float64, len(gammaMix))
	sigma := make([]float64, len(gammaMix))
	for b, g := range gammaMix {
		if !(g >= 0 && g <= 1) {
			return nil, nil, errors.NewValueError("QSample", "gamma must lie in [0, 1]")
		}
		signal[b] = math.Sqrt(g)
		sigma[b] = math.Sqrt(1 - g)
	}
	noisy, err = tensor.LinearCombBatch(signal, clean, sigma, noise)
	if err != nil {
		return nil, nil, err
	}
	return noisy, noise, nil
}

// SampleTimesteps draws n integer timesteps uniformly from [1, T-1].
func SampleTimesteps(n, T int, src rand.Source) ([]int, error) {
	if T < 2 {
		return nil, errors.NewConfigurationError("SampleTimesteps", "n_timestep",
			"training needs at least 2 timesteps", T)
	}
	intn := rand.IntN
	if src != nil {
		intn = rand.New(src).IntN
	}
	t := make([]int, n)
	for i := range t {
		t[i] = 1 + intn(T-1)
	}
	return t, nil
}

// SampleGammaMix draws a continuous signal level for every timestep, uniform
// between Gammas[t-1] and Gammas[t]. The denoiser then sees noise levels
// between the T discrete ones. Every t must be at least 1.
func (c *Coefficients) SampleGammaMix(t []int, src rand.Source) ([]float64, error) {
	if err := c.checkTimesteps("SampleGammaMix", t, len(t)); err != nil {
		return nil, err
	}
	u := distuv.Uniform{Min: 0, Max: 1, Src: src}
	out := make([]float64, len(t))
	for b, ti := range t {
		if ti < 1 {
			return nil, errors.NewValueError("SampleGammaMix", "timestep must be at least 1")
		}
		lo, hi := c.Gammas[ti-1], c.Gammas[ti]
		out[b] = (hi-lo)*u.Rand() + lo
	}
	return out, nil
}
