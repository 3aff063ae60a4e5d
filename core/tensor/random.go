package tensor

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// RandN returns a tensor of shape s filled with standard Gaussian draws from src.
// A nil src falls back to the global math/rand/v2 source.
func RandN(s Shape, src rand.Source) *Tensor {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	t := Zeros(s)
	for i := range t.Data {
		t.Data[i] = dist.Rand()
	}
	return t
}

// RandNLike returns standard Gaussian noise with the shape of t.
func RandNLike(t *Tensor, src rand.Source) *Tensor {
	return RandN(t.Shape, src)
}
