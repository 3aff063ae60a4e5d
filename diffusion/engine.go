// Package diffusion implements the training and sampling mathematics of a
// conditional diffusion model for image restoration.
//
// An Engine owns the coefficient buffers of the active phase's beta schedule
// and drives an external Denoiser: ComputeLoss for the training harness and
// Restore for the inference harness. The coefficient arithmetic itself is
// exposed as pure methods on Coefficients.
//
// Example:
//
//	eng, err := diffusion.New(net, diffusion.DefaultConfig(),
//	    diffusion.WithSource(rand.NewPCG(1, 2)),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := eng.SetSchedule(diffusion.PhaseInference); err != nil {
//	    return err
//	}
//	out, snapshots, err := eng.Restore(cond, nil, nil, nil, 8)
package diffusion

import (
	"math/rand/v2"

	"github.com/YuminosukeSato/diffusion/core/tensor"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
	"github.com/YuminosukeSato/diffusion/pkg/log"
)

// Denoiser is the external prediction network.
//
// input is the channel-wise concatenation of the condition and the (noisy)
// sample; t holds one timestep per batch element; labels are the configured
// auxiliary class labels. The output has the sample's channel count, or
// DualChannels of it for the dual-x parameterization.
type Denoiser interface {
	Predict(input *tensor.Tensor, t []int, labels []int) (*tensor.Tensor, error)
}

// DenoiserFunc adapts a function to Denoiser.
type DenoiserFunc func(input *tensor.Tensor, t []int, labels []int) (*tensor.Tensor, error)

// Predict calls f.
func (f DenoiserFunc) Predict(input *tensor.Tensor, t []int, labels []int) (*tensor.Tensor, error) {
	return f(input, t, labels)
}

// LossFunc reduces a target and a prediction of equal shape to a scalar.
// It replaces the per-example MSE on the non-dual training path only.
type LossFunc func(target, pred *tensor.Tensor) (float64, error)

// Option configures an Engine.
type Option func(*Engine)

// WithSource sets the random source used for every noise and timestep draw.
// Tests pass a seeded source for determinism.
func WithSource(src rand.Source) Option {
	return func(e *Engine) {
		e.src = src
	}
}

// WithLogger sets the engine logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLossFunc sets the loss used on the non-dual training path.
func WithLossFunc(fn LossFunc) Option {
	return func(e *Engine) {
		e.lossFn = fn
	}
}

// WithNumericChecks makes every reverse step and loss fail with a
// NumericalInstabilityError when NaN or Inf appears.
func WithNumericChecks(enabled bool) Option {
	return func(e *Engine) {
		e.checkNumerics = enabled
	}
}

// Engine is the diffusion process engine.
//
// An Engine is not safe for concurrent use because its random source is
// stateful; the Coefficients it hands out are.
type Engine struct {
	cfg           Config
	denoiser      Denoiser
	lossFn        LossFunc
	src           rand.Source
	logger        log.Logger
	checkNumerics bool

	phase  Phase
	coeffs *Coefficients
}

// New validates cfg and returns an engine with no active schedule.
// Call SetSchedule before ComputeLoss or Restore.
func New(denoiser Denoiser, cfg Config, opts ...Option) (*Engine, error) {
	if denoiser == nil {
		return nil, errors.NewConfigurationError("diffusion.New", "denoiser", "denoiser is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		denoiser: denoiser,
		logger:   log.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(
		log.ComponentKey, "diffusion",
		log.MeanTypeKey, cfg.MeanType.String(),
	)
	return e, nil
}

// SetSchedule builds the coefficient buffers of phase's schedule and makes
// them active.
func (e *Engine) SetSchedule(phase Phase) error {
	p, ok := e.cfg.Schedules[phase]
	if !ok {
		return errors.NewConfigurationError("Engine.SetSchedule", "beta_schedule",
			"no schedule configured for phase", string(phase))
	}
	betas, err := p.Betas()
	if err != nil {
		return err
	}
	coeffs, err := Derive(betas)
	if err != nil {
		return err
	}

	if i := coeffs.FirstVanishingStep(); i >= 0 {
		w := errors.NewScheduleWarning(string(p.Family), i,
			"cumulative signal reaches zero; noise-to-start inversion is undefined from here on")
		errors.Warn(w)
		e.logger.Warn("degenerate schedule", log.PhaseKey, string(phase), log.WarningKey, w)
	}

	e.phase = phase
	e.coeffs = coeffs
	e.logger.Info("noise schedule set",
		log.OperationKey, log.OperationSetSchedule,
		log.PhaseKey, string(phase),
		log.FamilyKey, string(p.Family),
		log.TimestepsKey, len(betas),
		log.BetaStartKey, betas[0],
		log.BetaEndKey, betas[len(betas)-1],
		log.FinalGammaKey, coeffs.Gammas[len(betas)-1],
	)
	return nil
}

// Coefficients returns the active coefficient set, or nil before SetSchedule.
func (e *Engine) Coefficients() *Coefficients { return e.coeffs }

// NumTimesteps returns T of the active schedule, or 0 before SetSchedule.
func (e *Engine) NumTimesteps() int {
	if e.coeffs == nil {
		return 0
	}
	return e.coeffs.NumTimesteps()
}

// Phase returns the active phase.
func (e *Engine) Phase() Phase { return e.phase }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) requireSchedule(op string) error {
	if e.coeffs == nil {
		return errors.NewConfigurationError(op, "beta_schedule", errors.ErrScheduleNotSet.Error(), nil)
	}
	return nil
}

// outputChannels is the raw denoiser channel count for c-channel samples.
func (e *Engine) outputChannels(c int) int {
	if e.cfg.MeanType == MeanDualX {
		return DualChannels(c)
	}
	return c
}

// predict concatenates cond and sample, calls the denoiser and checks the
// output shape against the configured parameterization.
func (e *Engine) predict(op string, cond, sample *tensor.Tensor, t []int) (out *tensor.Tensor, err error) {
	input, err := tensor.Concat(cond, sample)
	if err != nil {
		return nil, err
	}

	err = errors.SafeExecute(op+".denoiser", func() error {
		var predictErr error
		out, predictErr = e.denoiser.Predict(input, t, e.cfg.ClassLabels)
		return predictErr
	})
	if err != nil {
		var panicErr *errors.PanicError
		if errors.As(err, &panicErr) {
			return nil, errors.WithStack(err)
		}
		return nil, errors.NewDenoiserError(op, err)
	}
	if out == nil {
		return nil, errors.NewDenoiserError(op, errors.New("denoiser returned no output"))
	}

	want := sample.Shape.WithChannels(e.outputChannels(sample.Shape.C))
	if err := tensor.SameShape(op, "denoiser_output", want, out.Shape); err != nil {
		return nil, err
	}
	return out, nil
}
