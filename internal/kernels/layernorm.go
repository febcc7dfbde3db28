package kernels

import "github.com/born-ml/babel/internal/tensor"

// LayerNormKernel normalizes over the last axis with an optional affine
// transform.
type LayerNormKernel interface {
	Name() string

	// Forward returns the normalized output and the context Backward needs.
	// weight and bias are [d] or nil.
	Forward(x, weight, bias *tensor.Tensor, eps float32) (*tensor.Tensor, *LayerNormContext)

	// Backward returns dx and, for affine normalizations, dWeight and dBias.
	Backward(ctx *LayerNormContext, dy *tensor.Tensor) (dx, dWeight, dBias *tensor.Tensor)
}

// LayerNormContext holds what a forward pass saved for its backward pass.
type LayerNormContext struct {
	x      *tensor.Tensor
	weight *tensor.Tensor
	mean   *tensor.Tensor
	invStd *tensor.Tensor
}

// SelectLayerNorm returns the fused strategy when the backend implements
// tensor.FusedLayerNormBackend and the reference strategy otherwise.
func SelectLayerNorm(b tensor.Backend) LayerNormKernel {
	if fb, ok := b.(tensor.FusedLayerNormBackend); ok {
		return fusedLayerNorm{fb}
	}
	return referenceLayerNorm{b}
}

type fusedLayerNorm struct {
	b tensor.FusedLayerNormBackend
}

func (fusedLayerNorm) Name() string { return Fused }

func (k fusedLayerNorm) Forward(x, weight, bias *tensor.Tensor, eps float32) (*tensor.Tensor, *LayerNormContext) {
	y, mean, invStd := k.b.FusedLayerNorm(x, weight, bias, eps)
	return y, &LayerNormContext{x: x, weight: weight, mean: mean, invStd: invStd}
}

func (k fusedLayerNorm) Backward(ctx *LayerNormContext, dy *tensor.Tensor) (dx, dWeight, dBias *tensor.Tensor) {
	return k.b.FusedLayerNormBackward(dy, ctx.x, ctx.weight, ctx.mean, ctx.invStd)
}

type referenceLayerNorm struct {
	b tensor.Backend
}

func (referenceLayerNorm) Name() string { return Reference }

func (k referenceLayerNorm) Forward(x, weight, bias *tensor.Tensor, eps float32) (*tensor.Tensor, *LayerNormContext) {
	mean := k.b.MeanLastDim(x)
	xc := k.b.Sub(x, mean)
	invStd := k.b.Rsqrt(k.b.MeanLastDim(k.b.Mul(xc, xc)), eps)
	y := k.b.Mul(xc, invStd)
	if weight != nil {
		y = k.b.Mul(y, weight)
	}
	if bias != nil {
		y = k.b.Add(y, bias)
	}
	return y, &LayerNormContext{x: x, weight: weight, mean: mean, invStd: invStd}
}

// Backward uses dx = invStd·(g - mean(g) - x̂·mean(g·x̂)) with g = dy·weight.
func (k referenceLayerNorm) Backward(ctx *LayerNormContext, dy *tensor.Tensor) (dx, dWeight, dBias *tensor.Tensor) {
	xhat := k.b.Mul(k.b.Sub(ctx.x, ctx.mean), ctx.invStd)
	g := dy
	if ctx.weight != nil {
		dWeight = k.b.ReduceRows(k.b.Mul(dy, xhat))
		dBias = k.b.ReduceRows(dy)
		g = k.b.Mul(dy, ctx.weight)
	}
	meanG := k.b.MeanLastDim(g)
	meanGX := k.b.MeanLastDim(k.b.Mul(g, xhat))
	dx = k.b.Mul(k.b.Sub(k.b.Sub(g, meanG), k.b.Mul(xhat, meanGX)), ctx.invStd)
	return dx, dWeight, dBias
}
