package nn

import (
	"github.com/born-ml/babel/internal/kernels"
	"github.com/born-ml/babel/internal/tensor"
)

// Normalizer normalizes over the last axis.
//
// Backward consumes the context of the most recent Forward and accumulates
// the affine gradients into the parameters.
type Normalizer interface {
	Module
	Forward(x *tensor.Tensor, lang LanguageID) *tensor.Tensor
	Backward(dy *tensor.Tensor) *tensor.Tensor
	KernelName() string
}

// LayerNorm implements affine layer normalization:
//
//	y = (x - mean) / sqrt(var + eps) * weight + bias
//
// The strategy (fused or reference) is chosen once from the backend.
//
// Example:
//
//	ln := nn.NewLayerNorm("attn.norm", 16, 1e-5, cpu.New())
//	y := ln.Forward(x, nil) // x: [5, 2, 16]
type LayerNorm struct {
	dim     int
	eps     float32
	weight  *Parameter
	bias    *Parameter
	kernel  kernels.LayerNormKernel
	backend tensor.Backend
	ctx     *kernels.LayerNormContext
}

// NewLayerNorm creates a layer norm with weight 1 and bias 0.
func NewLayerNorm(prefix string, dim int, eps float32, b tensor.Backend) *LayerNorm {
	return &LayerNorm{
		dim:     dim,
		eps:     eps,
		weight:  NewParameter(prefix+".weight", tensor.Ones(dim)),
		bias:    NewParameter(prefix+".bias", tensor.Zeros(dim)),
		kernel:  kernels.SelectLayerNorm(b),
		backend: b,
	}
}

// Forward normalizes x [..., dim]. lang is ignored.
func (ln *LayerNorm) Forward(x *tensor.Tensor, _ LanguageID) *tensor.Tensor {
	if x.Rank() == 0 || x.Dim(-1) != ln.dim {
		violation("LayerNorm.Forward: expected last dimension %d, got shape %v", ln.dim, x.Shape())
	}
	y, ctx := ln.kernel.Forward(x, ln.weight.Tensor(), ln.bias.Tensor(), ln.eps)
	ln.ctx = ctx
	return y
}

// Backward returns dx and accumulates weight and bias gradients.
func (ln *LayerNorm) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if ln.ctx == nil {
		violation("LayerNorm.Backward: no forward pass to differentiate")
	}
	dx, dw, db := ln.kernel.Backward(ln.ctx, dy)
	ln.weight.AccumulateGrad(ln.backend, dw)
	ln.bias.AccumulateGrad(ln.backend, db)
	return dx
}

// KernelName reports the selected strategy.
func (ln *LayerNorm) KernelName() string {
	return ln.kernel.Name()
}

// Parameters returns [weight, bias].
func (ln *LayerNorm) Parameters() []*Parameter {
	return []*Parameter{ln.weight, ln.bias}
}

// MultilingualLayerNorm keeps one affine weight and bias row per language and
// selects the row for each batch entry from the language ids.
//
// Input must be time-major [seq, batch, dim].
type MultilingualLayerNorm struct {
	dim       int
	languages int
	eps       float32
	weight    *Parameter // [languages, dim]
	bias      *Parameter // [languages, dim]
	kernel    kernels.LayerNormKernel
	backend   tensor.Backend

	ctx  *kernels.LayerNormContext
	xhat *tensor.Tensor
	ids  []int
}

// NewMultilingualLayerNorm creates a per-language layer norm.
func NewMultilingualLayerNorm(prefix string, dim, languages int, eps float32, b tensor.Backend) *MultilingualLayerNorm {
	return &MultilingualLayerNorm{
		dim:       dim,
		languages: languages,
		eps:       eps,
		weight:    NewParameter(prefix+".weight", tensor.Ones(languages, dim)),
		bias:      NewParameter(prefix+".bias", tensor.Zeros(languages, dim)),
		kernel:    kernels.SelectLayerNorm(b),
		backend:   b,
	}
}

// Forward normalizes x [seq, batch, dim] with each batch entry's language row.
func (ln *MultilingualLayerNorm) Forward(x *tensor.Tensor, lang LanguageID) *tensor.Tensor {
	const op = "MultilingualLayerNorm.Forward"
	if x.Rank() != 3 || x.Dim(-1) != ln.dim {
		violation("%s: expected [seq, batch, %d] input, got %v", op, ln.dim, x.Shape())
	}
	ids := lang.resolve(op, x.Dim(1), ln.languages)

	xhat, ctx := ln.kernel.Forward(x, nil, nil, ln.eps)
	ln.ctx, ln.xhat, ln.ids = ctx, xhat, ids

	w, b := ln.rows(ids)
	return ln.backend.Add(ln.backend.Mul(xhat, w), b)
}

// rows gathers the affine rows for ids as [1, batch, dim] tensors.
func (ln *MultilingualLayerNorm) rows(ids []int) (w, b *tensor.Tensor) {
	ws := make([]*tensor.Tensor, len(ids))
	bs := make([]*tensor.Tensor, len(ids))
	for i, id := range ids {
		ws[i] = ln.backend.Narrow(ln.weight.Tensor(), 0, id, 1)
		bs[i] = ln.backend.Narrow(ln.bias.Tensor(), 0, id, 1)
	}
	w = ln.backend.Cat(0, ws...).Reshape(1, len(ids), ln.dim)
	b = ln.backend.Cat(0, bs...).Reshape(1, len(ids), ln.dim)
	return w, b
}

// Backward returns dx and accumulates the gradients of the selected rows.
func (ln *MultilingualLayerNorm) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if ln.ctx == nil {
		violation("MultilingualLayerNorm.Backward: no forward pass to differentiate")
	}
	w, _ := ln.rows(ln.ids)
	dx, _, _ := ln.kernel.Backward(ln.ctx, ln.backend.Mul(dy, w))

	seq, batch := dy.Dim(0), dy.Dim(1)
	dw := tensor.Zeros(ln.languages, ln.dim)
	db := tensor.Zeros(ln.languages, ln.dim)
	gd, xd := dy.Data(), ln.xhat.Data()
	for t := 0; t < seq; t++ {
		for bi := 0; bi < batch; bi++ {
			row := ln.ids[bi] * ln.dim
			off := (t*batch + bi) * ln.dim
			for j := 0; j < ln.dim; j++ {
				dw.Data()[row+j] += gd[off+j] * xd[off+j]
				db.Data()[row+j] += gd[off+j]
			}
		}
	}
	ln.weight.AccumulateGrad(ln.backend, dw)
	ln.bias.AccumulateGrad(ln.backend, db)
	return dx
}

// KernelName reports the selected strategy.
func (ln *MultilingualLayerNorm) KernelName() string {
	return ln.kernel.Name()
}

// Parameters returns [weight, bias].
func (ln *MultilingualLayerNorm) Parameters() []*Parameter {
	return []*Parameter{ln.weight, ln.bias}
}

// newNormalizer returns a per-language norm when cfg asks for one.
func newNormalizer(prefix string, cfg LayerConfig, b tensor.Backend) Normalizer {
	if cfg.MultilingualNorm {
		return NewMultilingualLayerNorm(prefix, cfg.ModelDim, cfg.Languages, cfg.NormEps, b)
	}
	return NewLayerNorm(prefix, cfg.ModelDim, cfg.NormEps, b)
}
