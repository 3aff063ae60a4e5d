// Package schedule builds beta (per-step noise variance) sequences for the
// forward diffusion process.
package schedule

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// Family selects how betas are spaced over the T steps.
type Family string

const (
	Linear   Family = "linear"
	Quad     Family = "quad"
	Warmup10 Family = "warmup10"
	Warmup50 Family = "warmup50"
	Const    Family = "const"
	JSD      Family = "jsd"
	Cosine   Family = "cosine"
)

// Families lists every supported family.
var Families = []Family{Linear, Quad, Warmup10, Warmup50, Const, JSD, Cosine}

// Defaults used when a schedule leaves the corresponding parameter unset.
const (
	DefaultLinearStart = 1e-6
	DefaultLinearEnd   = 1e-2
	DefaultCosineS     = 8e-3

	// MaxCosineBeta caps cosine betas so the last steps stay invertible.
	MaxCosineBeta = 0.999
)

// ParseFamily maps a configuration string to a Family.
func ParseFamily(s string) (Family, error) {
	f := Family(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Families {
		if f == known {
			return f, nil
		}
	}
	return "", errors.NewConfigurationError("schedule.ParseFamily", "schedule", "unknown schedule family", s)
}

// Params fully determines a beta sequence.
type Params struct {
	Family      Family  `json:"schedule"`
	NTimestep   int     `json:"n_timestep"`
	LinearStart float64 `json:"linear_start"`
	LinearEnd   float64 `json:"linear_end"`
	CosineS     float64 `json:"cosine_s"`
}

// Betas builds the sequence described by p.
func (p Params) Betas() ([]float64, error) {
	return Make(p.Family, p.NTimestep, p.LinearStart, p.LinearEnd, p.CosineS)
}

// Make returns T betas for the given family.
//
//   - linear:   evenly spaced from linearStart to linearEnd
//   - quad:     evenly spaced square roots, squared
//   - warmup10/warmup50: linearEnd everywhere except a linear ramp over the
//     first 10%/50% of steps
//   - const:    linearEnd everywhere
//   - jsd:      1/T, 1/(T-1), ..., 1
//   - cosine:   from the squared-cosine cumulative signal curve with offset
//     cosineS, capped at MaxCosineBeta
func Make(family Family, T int, linearStart, linearEnd, cosineS float64) ([]float64, error) {
	if T < 1 {
		return nil, errors.NewConfigurationError("schedule.Make", "n_timestep", "must be at least 1", T)
	}

	var betas []float64
	switch family {
	case Linear:
		betas = linspace(linearStart, linearEnd, T)
	case Quad:
		betas = linspace(math.Sqrt(linearStart), math.Sqrt(linearEnd), T)
		for i, b := range betas {
			betas[i] = b * b
		}
	case Warmup10:
		betas = warmup(linearStart, linearEnd, T, 0.1)
	case Warmup50:
		betas = warmup(linearStart, linearEnd, T, 0.5)
	case Const:
		betas = constant(linearEnd, T)
	case JSD:
		betas = make([]float64, T)
		for i := range betas {
			betas[i] = 1 / float64(T-i)
		}
	case Cosine:
		betas = cosine(T, cosineS)
	default:
		return nil, errors.NewConfigurationError("schedule.Make", "schedule", "unknown schedule family", string(family))
	}

	for i, b := range betas {
		if !(b > 0) || b > 1 {
			return nil, errors.NewConfigurationError("schedule.Make", "betas",
				"schedule must produce values in (0, 1]", map[string]interface{}{
					"family": string(family), "index": i, "beta": b,
				})
		}
	}
	return betas, nil
}

// linspace matches numpy.linspace with inclusive endpoints.
func linspace(start, end float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	return floats.Span(out, start, end)
}

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func warmup(start, end float64, n int, frac float64) []float64 {
	betas := constant(end, n)
	warm := int(float64(n) * frac)
	if warm > 0 {
		copy(betas[:warm], linspace(start, end, warm))
	}
	return betas
}

func cosine(n int, s float64) []float64 {
	curve := make([]float64, n+1)
	for i := range curve {
		x := (float64(i)/float64(n) + s) / (1 + s) * math.Pi / 2
		c := math.Cos(x)
		curve[i] = c * c
	}
	floats.Scale(1/curve[0], curve)

	betas := make([]float64, n)
	for i := range betas {
		betas[i] = errors.ClipValue(1-curve[i+1]/curve[i], 0, MaxCosineBeta)
	}
	return betas
}
