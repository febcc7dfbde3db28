package nn

import (
	"math"

	"github.com/born-ml/babel/internal/tensor"
)

// xavierUniform draws from U(-√(6/(fanIn+fanOut)), √(6/(fanIn+fanOut))).
func xavierUniform(g *tensor.Generator, fanIn, fanOut int, shape ...int) *tensor.Tensor {
	bound := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	return tensor.Uniform(g, -bound, bound, shape...)
}

// ffnNormal draws from N(0, 2/(model+inner)), the feed-forward projection init.
func ffnNormal(g *tensor.Generator, model, inner int, shape ...int) *tensor.Tensor {
	std := float32(math.Sqrt(2.0 / float64(model+inner)))
	return tensor.Randn(g, std, shape...)
}
