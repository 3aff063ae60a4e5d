package tensor

import (
	"math"

	"golang.org/x/exp/constraints"

	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// clamp bounds v to [lo, hi].
func clamp[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampInPlace clamps every element of xs to [lo, hi].
func ClampInPlace[T constraints.Float](xs []T, lo, hi T) {
	for i, v := range xs {
		xs[i] = clamp(v, lo, hi)
	}
}

// Sigmoid returns the logistic function of every element.
func Sigmoid(t *Tensor) *Tensor {
	out := Zeros(t.Shape)
	for i, v := range t.Data {
		out.Data[i] = sigmoid(v)
	}
	return out
}

// sigmoid is evaluated on the side that cannot overflow exp.
func sigmoid[T constraints.Float](x T) T {
	if x >= 0 {
		return 1 / (1 + T(math.Exp(float64(-x))))
	}
	e := T(math.Exp(float64(x)))
	return e / (1 + e)
}

// BroadcastChannels repeats a single-channel tensor c times along the channel axis.
func BroadcastChannels(t *Tensor, c int) (*Tensor, error) {
	if t.Shape.C != 1 {
		return nil, errors.NewShapeMismatchError("tensor.BroadcastChannels", "input",
			t.Shape.WithChannels(1).Ints(), t.Shape.Ints())
	}
	parts := make([]*Tensor, c)
	for i := range parts {
		parts[i] = t
	}
	return Concat(parts...)
}
