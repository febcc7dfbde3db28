package cpu

import (
	"fmt"

	"github.com/born-ml/babel/internal/tensor"
)

// DropoutMask draws an inverted-dropout mask: 0 with probability p and
// 1/(1-p) otherwise. Values are drawn in row-major order from g.
func (p primitives) DropoutMask(shape tensor.Shape, rate float32, g *tensor.Generator) *tensor.Tensor {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("dropoutmask: rate %v out of range [0, 1)", rate))
	}
	out := tensor.Zeros(shape...)
	keep := 1 / (1 - rate)
	data := out.Data()
	for i := range data {
		if g.Keep(rate) {
			data[i] = keep
		}
	}
	return out
}
