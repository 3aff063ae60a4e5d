package diffusion

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/diffusion/core/tensor"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// SampleFromPosterior draws y_{t-1} = mean + noise*exp(0.5*logVar) per batch
// element. Elements at t == 0 get exactly zero noise and consume no draws
// from src.
func SampleFromPosterior(mean *tensor.Tensor, logVar []float64, t []int, src rand.Source) (*tensor.Tensor, error) {
	n := mean.Shape.N
	if len(logVar) != n {
		return nil, errors.NewDimensionError("SampleFromPosterior", n, len(logVar))
	}
	if len(t) != n {
		return nil, errors.NewDimensionError("SampleFromPosterior", n, len(t))
	}

	out := mean.Clone()
	out.Detached = false
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	for b := 0; b < n; b++ {
		if t[b] == 0 {
			continue
		}
		std := math.Exp(0.5 * logVar[b])
		ex := out.Example(b)
		for i := range ex {
			ex[i] += dist.Rand() * std
		}
	}
	return out, nil
}

// StepEstimate is the model's view of one reverse step before sampling.
type StepEstimate struct {
	Start  *tensor.Tensor // clean-signal estimate after optional clipping
	Mean   *tensor.Tensor
	LogVar []float64
	Gate   *tensor.Tensor // dual-x only
}

// PMeanVariance runs the denoiser on y_t and returns the reverse-process
// mean and log-variance at t.
func (e *Engine) PMeanVariance(yt *tensor.Tensor, t []int, cond *tensor.Tensor) (*StepEstimate, error) {
	const op = "Engine.PMeanVariance"
	if err := e.requireSchedule(op); err != nil {
		return nil, err
	}
	c := e.coeffs
	if err := c.checkTimesteps(op, t, yt.Shape.N); err != nil {
		return nil, err
	}

	raw, err := e.predict(op, cond, yt, t)
	if err != nil {
		return nil, err
	}

	est := &StepEstimate{}
	var start *tensor.Tensor
	switch e.cfg.MeanType {
	case MeanDualX:
		switch e.cfg.SampleHead {
		case HeadFused:
			r, err := c.FuseStart(raw, yt, t)
			if err != nil {
				return nil, err
			}
			start, est.Gate = r.X0, r.Gate
		case HeadEps:
			_, eps, _, err := SplitDual(raw, yt.Shape.C)
			if err != nil {
				return nil, err
			}
			if start, err = c.PredictStartFromNoise(yt, t, eps); err != nil {
				return nil, err
			}
		case HeadXStart:
			if start, _, _, err = SplitDual(raw, yt.Shape.C); err != nil {
				return nil, err
			}
		default:
			return nil, errors.NewConfigurationError(op, "sample_head", "unknown sampling head", e.cfg.SampleHead.String())
		}
	case MeanEps:
		if start, err = c.PredictStartFromNoise(yt, t, raw); err != nil {
			return nil, err
		}
	case MeanXStart:
		start = raw
	case MeanXPrev:
		if start, err = c.StartFromPosteriorMean(raw, yt, t); err != nil {
			return nil, err
		}
	default:
		return nil, errors.NewConfigurationError(op, "model_mean_type", "unknown parameterization", e.cfg.MeanType.String())
	}

	if e.cfg.ClipDenoised {
		start = start.Clamp(-1, 1)
	}
	est.Start = start

	mode := FusionExplicit
	if e.cfg.MeanType == MeanDualX {
		mode = e.cfg.FusionMode
	}
	if est.Mean, err = c.MeanFromStart(start, yt, t, mode); err != nil {
		return nil, err
	}
	est.LogVar = gather(c.PosteriorLogVarianceClipped, t)
	return est, nil
}

// PSample performs one reverse Markov step from y_t to y_{t-1}.
func (e *Engine) PSample(yt *tensor.Tensor, t []int, cond *tensor.Tensor) (*tensor.Tensor, error) {
	est, err := e.PMeanVariance(yt, t, cond)
	if err != nil {
		return nil, err
	}
	prev, err := SampleFromPosterior(est.Mean, est.LogVar, t, e.src)
	if err != nil {
		return nil, err
	}
	if e.checkNumerics {
		step := 0
		if len(t) > 0 {
			step = t[0]
		}
		if err := errors.CheckNumericalStability("reverse_step", prev.Data, step); err != nil {
			return nil, err
		}
	}
	return prev, nil
}
