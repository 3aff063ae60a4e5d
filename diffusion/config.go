package diffusion

import (
	"strings"

	"github.com/YuminosukeSato/diffusion/diffusion/schedule"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// Phase selects which configured schedule is active.
type Phase string

const (
	PhaseTrain     Phase = "train"
	PhaseInference Phase = "inference"
)

// MeanType is what the denoiser is trained to predict.
type MeanType int

const (
	// MeanXPrev predicts the posterior mean of y_{t-1}.
	MeanXPrev MeanType = iota
	// MeanXStart predicts the clean sample.
	MeanXStart
	// MeanEps predicts the injected noise.
	MeanEps
	// MeanDualX predicts the clean sample and the noise plus a gate logit.
	MeanDualX
)

var meanTypeNames = map[MeanType]string{
	MeanXPrev:  "xprev",
	MeanXStart: "xstart",
	MeanEps:    "eps",
	MeanDualX:  "dualx",
}

func (m MeanType) String() string {
	if s, ok := meanTypeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMeanType maps "xprev", "xstart", "eps" or "dualx" to a MeanType.
func ParseMeanType(s string) (MeanType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range meanTypeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, errors.NewConfigurationError("ParseMeanType", "model_mean_type", "unknown parameterization", s)
}

// FusionMode selects how a fused clean-signal estimate becomes a reverse-step mean.
type FusionMode int

const (
	// FusionExplicit uses the closed-form posterior mean.
	FusionExplicit FusionMode = iota
	// FusionImplicit uses the deterministic non-Markov (DDIM-style) update.
	FusionImplicit
)

func (f FusionMode) String() string {
	switch f {
	case FusionExplicit:
		return "explicit"
	case FusionImplicit:
		return "implicit"
	default:
		return "unknown"
	}
}

// ParseFusionMode maps "explicit" or "implicit" to a FusionMode.
func ParseFusionMode(s string) (FusionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "explicit", "":
		return FusionExplicit, nil
	case "implicit":
		return FusionImplicit, nil
	default:
		return 0, errors.NewConfigurationError("ParseFusionMode", "fusion_mode", "unknown fusion mode", s)
	}
}

// SampleHead selects which dual-x estimate drives sampling.
type SampleHead int

const (
	// HeadFused samples from the gate-weighted estimate.
	HeadFused SampleHead = iota
	// HeadEps samples from the noise head alone.
	HeadEps
	// HeadXStart samples from the direct clean-signal head alone.
	HeadXStart
)

func (h SampleHead) String() string {
	switch h {
	case HeadFused:
		return "fused"
	case HeadEps:
		return "eps"
	case HeadXStart:
		return "xstart"
	default:
		return "unknown"
	}
}

// ParseSampleHead maps "fused", "eps" or "xstart" to a SampleHead.
func ParseSampleHead(s string) (SampleHead, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fused", "":
		return HeadFused, nil
	case "eps":
		return HeadEps, nil
	case "xstart":
		return HeadXStart, nil
	default:
		return 0, errors.NewConfigurationError("ParseSampleHead", "sample_head", "unknown sampling head", s)
	}
}

// Config is the engine configuration surface.
type Config struct {
	// Schedules holds one beta schedule per phase.
	Schedules map[Phase]schedule.Params

	MeanType     MeanType
	ClipDenoised bool
	FusionMode   FusionMode
	SampleHead   SampleHead

	// ClassLabels is passed to the denoiser on every call. Nil passes no labels.
	ClassLabels []int

	// SampleChannels is the channel count of generated samples. Zero means
	// "same as the condition".
	SampleChannels int
}

// DefaultConfig returns the configuration the restoration model was trained
// with: dual-x parameterization, clipping on, explicit fusion.
func DefaultConfig() Config {
	return Config{
		Schedules: map[Phase]schedule.Params{
			PhaseTrain: {
				Family:      schedule.Linear,
				NTimestep:   2000,
				LinearStart: 1e-6,
				LinearEnd:   0.01,
				CosineS:     schedule.DefaultCosineS,
			},
			PhaseInference: {
				Family:      schedule.Linear,
				NTimestep:   1000,
				LinearStart: 1e-4,
				LinearEnd:   0.09,
				CosineS:     schedule.DefaultCosineS,
			},
		},
		MeanType:     MeanDualX,
		ClipDenoised: true,
		FusionMode:   FusionExplicit,
		SampleHead:   HeadFused,
		ClassLabels:  []int{3},
	}
}

// Validate reports the first invalid setting as a ConfigurationError.
func (c Config) Validate() error {
	if len(c.Schedules) == 0 {
		return errors.NewConfigurationError("Config.Validate", "beta_schedule", "no phase schedule configured", nil)
	}
	for phase, p := range c.Schedules {
		if phase != PhaseTrain && phase != PhaseInference {
			return errors.NewConfigurationError("Config.Validate", "beta_schedule", "unknown phase", string(phase))
		}
		if _, err := p.Betas(); err != nil {
			return errors.Wrapf(err, "phase %s", phase)
		}
	}
	if _, ok := meanTypeNames[c.MeanType]; !ok {
		return errors.NewConfigurationError("Config.Validate", "model_mean_type", "unknown parameterization", int(c.MeanType))
	}
	if c.FusionMode.String() == "unknown" {
		return errors.NewConfigurationError("Config.Validate", "fusion_mode", "unknown fusion mode", int(c.FusionMode))
	}
	if c.SampleHead.String() == "unknown" {
		return errors.NewConfigurationError("Config.Validate", "sample_head", "unknown sampling head", int(c.SampleHead))
	}
	if c.SampleChannels < 0 {
		return errors.NewConfigurationError("Config.Validate", "sample_channels", "must not be negative", c.SampleChannels)
	}
	return nil
}
