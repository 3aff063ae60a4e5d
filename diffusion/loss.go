package diffusion

import (
	"github.com/YuminosukeSato/diffusion/core/tensor"
	"github.com/YuminosukeSato/diffusion/metrics"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
	"github.com/YuminosukeSato/diffusion/pkg/log"
)

// LossReport is the training loss together with the draws that produced it.
type LossReport struct {
	Loss       float64
	PerExample []float64 // nil when a custom LossFunc reduced the batch
	Timesteps  []int
	GammaMix   []float64
}

// ComputeLoss returns the scalar training loss for one batch.
//
// clean and cond must share batch and spatial size. mask, when given, has
// the shape of clean and selects the region to corrupt; nil corrupts the
// whole image. noise, when given, replaces the Gaussian draw.
func (e *Engine) ComputeLoss(clean, cond, mask, noise *tensor.Tensor) (float64, error) {
	r, err := e.ComputeLossDetailed(clean, cond, mask, noise)
	if err != nil {
		return 0, err
	}
	return r.Loss, nil
}

// ComputeLossDetailed is ComputeLoss that also reports the per-example
// losses and the sampled timesteps and signal levels.
func (e *Engine) ComputeLossDetailed(clean, cond, mask, noise *tensor.Tensor) (*LossReport, error) {
	const op = "Engine.ComputeLoss"
	if err := e.requireSchedule(op); err != nil {
		return nil, err
	}
	if clean == nil || cond == nil {
		return nil, errors.NewConfigurationError(op, "input", "clean and condition images are required", nil)
	}
	if !clean.Shape.SameSpatial(cond.Shape) {
		return nil, errors.NewShapeMismatchError(op, "condition",
			[]int{clean.Shape.N, -1, clean.Shape.H, clean.Shape.W}, cond.Shape.Ints())
	}
	if mask != nil {
		if err := tensor.SameShape(op, "mask", clean.Shape, mask.Shape); err != nil {
			return nil, err
		}
	}

	c := e.coeffs
	n := clean.Shape.N
	t, err := SampleTimesteps(n, c.NumTimesteps(), e.src)
	if err != nil {
		return nil, err
	}
	gammaMix, err := c.SampleGammaMix(t, e.src)
	if err != nil {
		return nil, err
	}
	noisy, noise, err := QSample(clean, gammaMix, noise, e.src)
	if err != nil {
		return nil, err
	}

	input := noisy
	if mask != nil {
		if input, err = tensor.Blend(clean, noisy, mask); err != nil {
			return nil, err
		}
	}
	raw, err := e.predict(op, cond, input, t)
	if err != nil {
		return nil, err
	}

	var target, pred *tensor.Tensor
	switch e.cfg.MeanType {
	case MeanXPrev:
		if target, err = c.PosteriorMean(clean, noisy, t); err != nil {
			return nil, err
		}
		pred = raw
	case MeanXStart:
		target, pred = clean, raw
	case MeanEps:
		target, pred = noise, raw
	case MeanDualX:
		mean, err := c.PosteriorMean(clean, noisy, t)
		if err != nil {
			return nil, err
		}
		if target, err = tensor.Concat(clean, noise, mean); err != nil {
			return nil, err
		}
		fused, err := c.Fuse(raw, noisy, t, FusionExplicit)
		if err != nil {
			return nil, err
		}
		if pred, err = fused.Prediction(); err != nil {
			return nil, err
		}
	default:
		return nil, errors.NewConfigurationError(op, "model_mean_type", "unknown parameterization", e.cfg.MeanType.String())
	}

	report := &LossReport{Timesteps: t, GammaMix: gammaMix}
	if e.lossFn != nil && e.cfg.MeanType != MeanDualX {
		if report.Loss, err = e.lossFn(target, pred); err != nil {
			return nil, errors.Wrap(err, "loss function")
		}
	} else if report.Loss, report.PerExample, err = metrics.PerExampleMSE(target.Data, pred.Data, n); err != nil {
		return nil, err
	}

	if e.checkNumerics {
		if err := errors.CheckScalar("training_loss", report.Loss, 0); err != nil {
			return nil, err
		}
	}
	e.logger.Debug("training loss computed",
		log.OperationKey, log.OperationComputeLoss,
		log.PhaseKey, string(e.phase),
		log.BatchSizeKey, n,
		log.LossKey, report.Loss,
	)
	return report, nil
}
