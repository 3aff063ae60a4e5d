package diffusion

import (
	"github.com/YuminosukeSato/diffusion/core/tensor"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// DualChannels is the raw output channel count of a dual-x denoiser for
// images with c channels: c direct clean-signal channels, c noise channels
// and one gate logit.
func DualChannels(c int) int { return 2*c + 1 }

// BlendOperands are the two clean-signal estimates as they enter the gate
// blend. Both are stop-gradient views sharing data with the heads.
type BlendOperands struct {
	Direct  *tensor.Tensor // detached XStart
	Derived *tensor.Tensor // detached X0FromE
}

// FusionResult carries every intermediate of a dual-x fusion.
type FusionResult struct {
	XStart  *tensor.Tensor // direct clean-signal head
	Eps     *tensor.Tensor // noise head
	Gate    *tensor.Tensor // sigmoid(logit), broadcast to the image channels
	X0      *tensor.Tensor // gate-weighted clean-signal estimate
	Mean    *tensor.Tensor // posterior mean built from X0
	X0FromE *tensor.Tensor // clean signal implied by the noise head

	// Blended holds the operands X0 was computed from.
	Blended BlendOperands
}

// Prediction is concat(XStart, Eps, Mean), aligned with the dual-x training
// target concat(clean, noise, posterior mean).
func (r *FusionResult) Prediction() (*tensor.Tensor, error) {
	return tensor.Concat(r.XStart, r.Eps, r.Mean)
}

// SplitDual separates raw dual-x output into its xstart, eps and gate-logit parts.
func SplitDual(raw *tensor.Tensor, imageChannels int) (xstart, eps, logit *tensor.Tensor, err error) {
	want := raw.Shape.WithChannels(DualChannels(imageChannels))
	if err := tensor.SameShape("SplitDual", "denoiser_output", want, raw.Shape); err != nil {
		return nil, nil, nil, err
	}
	c := imageChannels
	if xstart, err = raw.Channels(0, c); err != nil {
		return nil, nil, nil, err
	}
	if eps, err = raw.Channels(c, 2*c); err != nil {
		return nil, nil, nil, err
	}
	if logit, err = raw.Channels(2*c, 2*c+1); err != nil {
		return nil, nil, nil, err
	}
	return xstart, eps, logit, nil
}

// FuseStart blends the two clean-signal estimates of a dual-x output:
//
//	x0 = gate*xstart + (1-gate)*x0_from_eps,  gate = sigmoid(logit)
//
// Both estimates enter the blend detached, so gradient reaches the gate only;
// the heads themselves are trained through their own target channels.
// The returned result has Mean unset.
func (c *Coefficients) FuseStart(raw, yt *tensor.Tensor, t []int) (*FusionResult, error) {
	xstart, eps, logit, err := SplitDual(raw, yt.Shape.C)
	if err != nil {
		return nil, err
	}
	x0FromEps, err := c.PredictStartFromNoise(yt, t, eps)
	if err != nil {
		return nil, err
	}
	gate, err := tensor.BroadcastChannels(tensor.Sigmoid(logit), yt.Shape.C)
	if err != nil {
		return nil, err
	}

	blended := BlendOperands{Direct: xstart.Detach(), Derived: x0FromEps.Detach()}
	x0 := tensor.Zeros(yt.Shape)
	for i, g := range gate.Data {
		x0.Data[i] = g*blended.Direct.Data[i] + (1-g)*blended.Derived.Data[i]
	}

	return &FusionResult{
		XStart:  xstart,
		Eps:     eps,
		Gate:    gate,
		X0:      x0,
		X0FromE: x0FromEps,
		Blended: blended,
	}, nil
}

// MeanFromStart turns a clean-signal estimate into the reverse-step mean:
// the posterior formula for FusionExplicit, the non-Markov update for
// FusionImplicit.
func (c *Coefficients) MeanFromStart(x0, yt *tensor.Tensor, t []int, mode FusionMode) (*tensor.Tensor, error) {
	switch mode {
	case FusionExplicit:
		return c.PosteriorMean(x0, yt, t)
	case FusionImplicit:
		return c.ImplicitMean(x0, yt, t)
	default:
		return nil, errors.NewConfigurationError("MeanFromStart", "fusion_mode", "unknown fusion mode", mode.String())
	}
}

// Fuse runs the full dual-x fusion: FuseStart followed by MeanFromStart.
func (c *Coefficients) Fuse(raw, yt *tensor.Tensor, t []int, mode FusionMode) (*FusionResult, error) {
	r, err := c.FuseStart(raw, yt, t)
	if err != nil {
		return nil, err
	}
	if r.Mean, err = c.MeanFromStart(r.X0, yt, t, mode); err != nil {
		return nil, err
	}
	return r, nil
}
