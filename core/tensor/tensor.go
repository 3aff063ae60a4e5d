// Package tensor provides the dense NCHW batch tensor the diffusion core
// operates on.
//
// Data is stored contiguously in (batch, channel, height, width) order.
// Element-wise arithmetic is delegated to gonum's floats package; per-batch
// scalars (one coefficient per example) are applied with ScaleBatch and
// AddScaledBatch, which is how diffusion coefficients indexed by timestep are
// broadcast over images.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// Shape is the (N, C, H, W) extent of a tensor.
type Shape struct {
	N, C, H, W int
}

// Numel returns the total number of elements.
func (s Shape) Numel() int { return s.N * s.C * s.H * s.W }

// PerExample returns the number of elements in one batch element.
func (s Shape) PerExample() int { return s.C * s.H * s.W }

// Plane returns the number of elements in one channel of one batch element.
func (s Shape) Plane() int { return s.H * s.W }

// Ints returns the shape as a slice, the form used in error messages.
func (s Shape) Ints() []int { return []int{s.N, s.C, s.H, s.W} }

// WithChannels returns a copy of s with C replaced.
func (s Shape) WithChannels(c int) Shape {
	s.C = c
	return s
}

// SameSpatial reports whether s and o agree on batch size, height and width.
func (s Shape) SameSpatial(o Shape) bool {
	return s.N == o.N && s.H == o.H && s.W == o.W
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s.N, s.C, s.H, s.W)
}

// Tensor is a dense float64 batch of multi-channel images.
//
// Detached marks a tensor as a stop-gradient value: an autodiff backend that
// consumes these tensors must not propagate gradient through it. The diffusion
// core never differentiates, it only records the policy.
type Tensor struct {
	Shape    Shape
	Data     []float64
	Detached bool
}

// New allocates a zero-filled tensor.
func New(n, c, h, w int) *Tensor {
	s := Shape{N: n, C: c, H: h, W: w}
	return &Tensor{Shape: s, Data: make([]float64, s.Numel())}
}

// Zeros allocates a zero-filled tensor of shape s.
func Zeros(s Shape) *Tensor {
	return &Tensor{Shape: s, Data: make([]float64, s.Numel())}
}

// Full allocates a tensor of shape s with every element set to v.
func Full(s Shape, v float64) *Tensor {
	t := Zeros(s)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

// FromData wraps data without copying. len(data) must match the shape.
func FromData(s Shape, data []float64) (*Tensor, error) {
	if s.N <= 0 || s.C <= 0 || s.H <= 0 || s.W <= 0 {
		return nil, errors.NewValueError("tensor.FromData", fmt.Sprintf("non-positive shape %s", s))
	}
	if len(data) != s.Numel() {
		return nil, errors.NewDimensionError("tensor.FromData", s.Numel(), len(data))
	}
	return &Tensor{Shape: s, Data: data}, nil
}

// Clone returns a deep copy. The Detached flag is preserved.
func (t *Tensor) Clone() *Tensor {
	d := make([]float64, len(t.Data))
	copy(d, t.Data)
	return &Tensor{Shape: t.Shape, Data: d, Detached: t.Detached}
}

// Detach returns a view of t sharing its data, marked as stop-gradient.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{Shape: t.Shape, Data: t.Data, Detached: true}
}

// Example returns the slice holding batch element b.
func (t *Tensor) Example(b int) []float64 {
	n := t.Shape.PerExample()
	return t.Data[b*n : (b+1)*n]
}

// At returns the element at (n, c, h, w).
func (t *Tensor) At(n, c, h, w int) float64 {
	return t.Data[t.offset(n, c, h, w)]
}

// Set sets the element at (n, c, h, w).
func (t *Tensor) Set(n, c, h, w int, v float64) {
	t.Data[t.offset(n, c, h, w)] = v
}

func (t *Tensor) offset(n, c, h, w int) int {
	s := t.Shape
	return ((n*s.C+c)*s.H+h)*s.W + w
}

// Channels copies channels [lo, hi) into a new tensor.
func (t *Tensor) Channels(lo, hi int) (*Tensor, error) {
	s := t.Shape
	if lo < 0 || hi > s.C || lo >= hi {
		return nil, errors.NewShapeMismatchError("tensor.Channels", "channel_range",
			[]int{0, s.C}, []int{lo, hi})
	}
	out := Zeros(s.WithChannels(hi - lo))
	plane := s.Plane()
	width := (hi - lo) * plane
	for b := 0; b < s.N; b++ {
		src := t.Example(b)[lo*plane : hi*plane]
		copy(out.Data[b*width:(b+1)*width], src)
	}
	return out, nil
}

// Concat concatenates tensors along the channel axis. All inputs must agree
// on batch size, height and width.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, errors.NewValueError("tensor.Concat", "no tensors to concatenate")
	}
	base := ts[0].Shape
	channels := 0
	for _, t := range ts {
		if !t.Shape.SameSpatial(base) {
			return nil, errors.NewShapeMismatchError("tensor.Concat", "input",
				base.WithChannels(t.Shape.C).Ints(), t.Shape.Ints())
		}
		channels += t.Shape.C
	}
	out := Zeros(base.WithChannels(channels))
	offset := 0
	for b := 0; b < base.N; b++ {
		for _, t := range ts {
			ex := t.Example(b)
			copy(out.Data[offset:offset+len(ex)], ex)
			offset += len(ex)
		}
	}
	return out, nil
}

// SameShape returns a ShapeMismatchError naming tensor name when t and o differ.
func SameShape(op, name string, want, got Shape) error {
	if want != got {
		return errors.NewShapeMismatchError(op, name, want.Ints(), got.Ints())
	}
	return nil
}

// Add returns a + b.
func Add(a, b *Tensor) (*Tensor, error) {
	if err := SameShape("tensor.Add", "rhs", a.Shape, b.Shape); err != nil {
		return nil, err
	}
	out := a.Clone()
	out.Detached = false
	floats.Add(out.Data, b.Data)
	return out, nil
}

// Sub returns a - b.
func Sub(a, b *Tensor) (*Tensor, error) {
	if err := SameShape("tensor.Sub", "rhs", a.Shape, b.Shape); err != nil {
		return nil, err
	}
	out := a.Clone()
	out.Detached = false
	floats.Sub(out.Data, b.Data)
	return out, nil
}

// Mul returns the element-wise product a * b.
func Mul(a, b *Tensor) (*Tensor, error) {
	if err := SameShape("tensor.Mul", "rhs", a.Shape, b.Shape); err != nil {
		return nil, err
	}
	out := a.Clone()
	out.Detached = false
	floats.Mul(out.Data, b.Data)
	return out, nil
}

// Scale returns c * t.
func Scale(c float64, t *Tensor) *Tensor {
	out := t.Clone()
	out.Detached = false
	floats.Scale(c, out.Data)
	return out
}

// ScaleBatch returns a tensor whose batch element b is coef[b] * t[b].
func ScaleBatch(coef []float64, t *Tensor) (*Tensor, error) {
	if len(coef) != t.Shape.N {
		return nil, errors.NewDimensionError("tensor.ScaleBatch", t.Shape.N, len(coef))
	}
	out := t.Clone()
	out.Detached = false
	for b := 0; b < t.Shape.N; b++ {
		floats.Scale(coef[b], out.Example(b))
	}
	return out, nil
}

// AddScaledBatch computes dst[b] += coef[b] * src[b] in place.
func AddScaledBatch(dst *Tensor, coef []float64, src *Tensor) error {
	if err := SameShape("tensor.AddScaledBatch", "src", dst.Shape, src.Shape); err != nil {
		return err
	}
	if len(coef) != dst.Shape.N {
		return errors.NewDimensionError("tensor.AddScaledBatch", dst.Shape.N, len(coef))
	}
	for b := 0; b < dst.Shape.N; b++ {
		floats.AddScaled(dst.Example(b), coef[b], src.Example(b))
	}
	return nil
}

// LinearCombBatch returns a[b]*x[b] + c[b]*y[b] for every batch element,
// the shape of every closed-form diffusion update.
func LinearCombBatch(a []float64, x *Tensor, c []float64, y *Tensor) (*Tensor, error) {
	out, err := ScaleBatch(a, x)
	if err != nil {
		return nil, err
	}
	if err := AddScaledBatch(out, c, y); err != nil {
		return nil, err
	}
	return out, nil
}

// Blend returns known*(1-mask) + mask*gen: 1 selects the generated value,
// 0 keeps the known one.
func Blend(known, gen, mask *Tensor) (*Tensor, error) {
	if err := SameShape("tensor.Blend", "generated", known.Shape, gen.Shape); err != nil {
		return nil, err
	}
	if err := SameShape("tensor.Blend", "mask", known.Shape, mask.Shape); err != nil {
		return nil, err
	}
	out := Zeros(known.Shape)
	for i, m := range mask.Data {
		out.Data[i] = known.Data[i]*(1-m) + m*gen.Data[i]
	}
	return out, nil
}

// Clamp returns t with every element clamped to [lo, hi].
func (t *Tensor) Clamp(lo, hi float64) *Tensor {
	out := t.Clone()
	ClampInPlace(out.Data, lo, hi)
	return out
}

// Min and Max return the extreme elements.
func (t *Tensor) Min() float64 { return floats.Min(t.Data) }

func (t *Tensor) Max() float64 { return floats.Max(t.Data) }
