package diffusion

import (
	"math"

	"github.com/YuminosukeSato/diffusion/core/tensor"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// posteriorVarianceFloor bounds the posterior variance before taking its log.
// The variance is exactly zero at t = 0.
const posteriorVarianceFloor = 1e-20

// Coefficients holds every per-timestep buffer derived from a beta schedule.
//
// A Coefficients value is immutable once built by Derive and may be shared
// between goroutines. Callers must not modify the slices.
type Coefficients struct {
	Betas      []float64
	Alphas     []float64
	Gammas     []float64 // cumulative product of Alphas
	GammasPrev []float64 // 1.0 followed by Gammas[:T-1]

	SqrtRecipGammas   []float64 // sqrt(1/gamma)
	SqrtRecipm1Gammas []float64 // sqrt(1/gamma - 1)

	PosteriorVariance           []float64
	PosteriorLogVarianceClipped []float64
	PosteriorMeanCoef1          []float64
	PosteriorMeanCoef2          []float64

	// used by the implicit (non-Markov) mean
	SqrtGammasPrev         []float64
	SqrtOneMinusGammasPrev []float64
}

// Derive computes the coefficient buffers for betas.
func Derive(betas []float64) (*Coefficients, error) {
	T := len(betas)
	if T == 0 {
		return nil, errors.NewConfigurationError("diffusion.Derive", "betas", "schedule is empty", nil)
	}
	for i, b := range betas {
		if !(b > 0) || b > 1 {
			return nil, errors.NewConfigurationError("diffusion.Derive", "betas",
				"values must lie in (0, 1]", map[string]float64{"index": float64(i), "beta": b})
		}
	}

	c := &Coefficients{
		Betas:                       append([]float64(nil), betas...),
		Alphas:                      make([]float64, T),
		Gammas:                      make([]float64, T),
		GammasPrev:                  make([]float64, T),
		SqrtRecipGammas:             make([]float64, T),
		SqrtRecipm1Gammas:           make([]float64, T),
		PosteriorVariance:           make([]float64, T),
		PosteriorLogVarianceClipped: make([]float64, T),
		PosteriorMeanCoef1:          make([]float64, T),
		PosteriorMeanCoef2:          make([]float64, T),
		SqrtGammasPrev:              make([]float64, T),
		SqrtOneMinusGammasPrev:      make([]float64, T),
	}

	prod := 1.0
	for i, b := range betas {
		c.GammasPrev[i] = prod
		c.Alphas[i] = 1 - b
		prod *= c.Alphas[i]
		c.Gammas[i] = prod
	}

	for i := 0; i < T; i++ {
		b, a, g, gp := c.Betas[i], c.Alphas[i], c.Gammas[i], c.GammasPrev[i]

		c.SqrtRecipGammas[i] = math.Sqrt(1 / g)
		c.SqrtRecipm1Gammas[i] = math.Sqrt(1/g - 1)

		c.PosteriorVariance[i] = b * (1 - gp) / (1 - g)
		c.PosteriorLogVarianceClipped[i] = errors.FlooredLog(c.PosteriorVariance[i], posteriorVarianceFloor)
		c.PosteriorMeanCoef1[i] = b * math.Sqrt(gp) / (1 - g)
		c.PosteriorMeanCoef2[i] = (1 - gp) * math.Sqrt(a) / (1 - g)

		c.SqrtGammasPrev[i] = math.Sqrt(gp)
		c.SqrtOneMinusGammasPrev[i] = math.Sqrt(1 - gp)
	}

	for name, buf := range map[string][]float64{
		"posterior_variance":             c.PosteriorVariance,
		"posterior_log_variance_clipped": c.PosteriorLogVarianceClipped,
		"posterior_mean_coef1":           c.PosteriorMeanCoef1,
		"posterior_mean_coef2":           c.PosteriorMeanCoef2,
	} {
		if err := errors.CheckNumericalStability("derive_coefficients."+name, buf, 0); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// FirstVanishingStep returns the first timestep whose cumulative signal
// fraction is zero, or -1. From that step on the noise-to-start inversion is
// undefined (the jsd family ends with beta = 1).
func (c *Coefficients) FirstVanishingStep() int {
	for i, g := range c.Gammas {
		if g == 0 {
			return i
		}
	}
	return -1
}

// NumTimesteps returns T.
func (c *Coefficients) NumTimesteps() int { return len(c.Betas) }

// checkTimesteps validates one timestep per batch element, each in [0, T).
func (c *Coefficients) checkTimesteps(op string, t []int, batch int) error {
	if len(t) != batch {
		return errors.NewDimensionError(op, batch, len(t))
	}
	T := c.NumTimesteps()
	for _, ti := range t {
		if ti < 0 || ti >= T {
			return errors.NewValueError(op, "timestep out of range [0, T)")
		}
	}
	return nil
}

// gather picks buf[t[b]] for every batch element.
func gather(buf []float64, t []int) []float64 {
	out := make([]float64, len(t))
	for b, ti := range t {
		out[b] = buf[ti]
	}
	return out
}

func negate(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = -x
	}
	return out
}

// PredictStartFromNoise inverts the forward process:
// x0 = sqrt(1/gamma_t)*y_t - sqrt(1/gamma_t - 1)*eps.
func (c *Coefficients) PredictStartFromNoise(yt *tensor.Tensor, t []int, eps *tensor.Tensor) (*tensor.Tensor, error) {
	if err := c.checkTimesteps("PredictStartFromNoise", t, yt.Shape.N); err != nil {
		return nil, err
	}
	return tensor.LinearCombBatch(gather(c.SqrtRecipGammas, t), yt, negate(gather(c.SqrtRecipm1Gammas, t)), eps)
}

// PredictNoiseFromStart recovers the noise implied by x0 and y_t:
// eps = (sqrt(1/gamma_t)*y_t - x0) / sqrt(1/gamma_t - 1).
func (c *Coefficients) PredictNoiseFromStart(yt *tensor.Tensor, t []int, x0 *tensor.Tensor) (*tensor.Tensor, error) {
	if err := c.checkTimesteps("PredictNoiseFromStart", t, yt.Shape.N); err != nil {
		return nil, err
	}
	recip := gather(c.SqrtRecipGammas, t)
	recipm1 := gather(c.SqrtRecipm1Gammas, t)
	a := make([]float64, len(t))
	b := make([]float64, len(t))
	for i := range t {
		a[i] = recip[i] / recipm1[i]
		b[i] = -1 / recipm1[i]
	}
	return tensor.LinearCombBatch(a, yt, b, x0)
}

// PosteriorMean is the mean of q(y_{t-1} | y_t, y_0): coef1[t]*y0 + coef2[t]*y_t.
func (c *Coefficients) PosteriorMean(y0, yt *tensor.Tensor, t []int) (*tensor.Tensor, error) {
	if err := c.checkTimesteps("PosteriorMean", t, yt.Shape.N); err != nil {
		return nil, err
	}
	if err := tensor.SameShape("PosteriorMean", "y0", yt.Shape, y0.Shape); err != nil {
		return nil, err
	}
	return tensor.LinearCombBatch(gather(c.PosteriorMeanCoef1, t), y0, gather(c.PosteriorMeanCoef2, t), yt)
}

// QPosterior returns the posterior mean and the clipped posterior log-variance
// for every batch element.
func (c *Coefficients) QPosterior(y0, yt *tensor.Tensor, t []int) (*tensor.Tensor, []float64, error) {
	mean, err := c.PosteriorMean(y0, yt, t)
	if err != nil {
		return nil, nil, err
	}
	return mean, gather(c.PosteriorLogVarianceClipped, t), nil
}

// ImplicitMean is the deterministic non-Markov update: the noise implied by
// x0 is recovered and recombined at the previous noise level,
// sqrt(gamma_{t-1})*x0 + sqrt(1-gamma_{t-1})*eps.
func (c *Coefficients) ImplicitMean(x0, yt *tensor.Tensor, t []int) (*tensor.Tensor, error) {
	eps, err := c.PredictNoiseFromStart(yt, t, x0)
	if err != nil {
		return nil, err
	}
	return tensor.LinearCombBatch(gather(c.SqrtGammasPrev, t), x0, gather(c.SqrtOneMinusGammasPrev, t), eps)
}

// StartFromPosteriorMean inverts PosteriorMean for a model that predicts
// y_{t-1} directly: y0 = (mean - coef2[t]*y_t) / coef1[t].
func (c *Coefficients) StartFromPosteriorMean(mean, yt *tensor.Tensor, t []int) (*tensor.Tensor, error) {
	if err := c.checkTimesteps("StartFromPosteriorMean", t, yt.Shape.N); err != nil {
		return nil, err
	}
	coef1 := gather(c.PosteriorMeanCoef1, t)
	coef2 := gather(c.PosteriorMeanCoef2, t)
	a := make([]float64, len(t))
	b := make([]float64, len(t))
	for i := range t {
		a[i] = 1 / coef1[i]
		b[i] = -coef2[i] / coef1[i]
	}
	return tensor.LinearCombBatch(a, mean, b, yt)
}
