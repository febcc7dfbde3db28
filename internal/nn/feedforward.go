package nn

import (
	"github.com/born-ml/babel/internal/kernels"
	"github.com/born-ml/babel/internal/tensor"
)

// FeedForward is the position-wise block
//
//	y = out_proj(dropout(act(in_proj(x))))
//
// With a gated linear unit the in-projection is 2·inner wide; its first half
// is the value and its second half the gate: act(value)·gate, or
// value·σ(gate) for the sigmoid activation.
//
// Shared-weight blocks run through a kernels.FeedForwardKernel selected once
// at construction, fused when the backend and configuration allow it.
// Factorized blocks project per language and always compose primitives.
type FeedForward struct {
	cfg     LayerConfig
	inProj  Projection
	outProj Projection
	dropout *Dropout
	kernel  kernels.FeedForwardKernel
	backend tensor.Backend

	ctx     *kernels.FeedForwardContext
	inShape tensor.Shape
}

// NewFeedForward creates a feed-forward block named prefix.
// cfg must already be resolved.
func NewFeedForward(prefix string, cfg LayerConfig, b tensor.Backend, g *tensor.Generator) (*FeedForward, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	width := cfg.InnerDim
	if cfg.GLU {
		width *= 2
	}
	in := newProjection(prefix+".in_proj", cfg.ModelDim, width, true, cfg, b, g)
	out := newProjection(prefix+".out_proj", cfg.InnerDim, cfg.ModelDim, true, cfg, b, g)

	// Feed-forward projections use a normal init instead of Xavier.
	for _, p := range []Projection{in, out} {
		w := linearOf(p).weight.Tensor()
		copy(w.Data(), ffnNormal(g, cfg.ModelDim, cfg.InnerDim, w.Shape()...).Data())
	}
	return NewFeedForwardWithProjections(cfg, in, out, b, g)
}

// NewFeedForwardWithProjections builds a block around existing projections.
// It fails with ErrConfig when the widths do not match cfg, in particular
// when a gated block's in-projection is not exactly 2·inner wide.
func NewFeedForwardWithProjections(cfg LayerConfig, in, out Projection, b tensor.Backend, g *tensor.Generator) (*FeedForward, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	width := cfg.InnerDim
	if cfg.GLU {
		width *= 2
	}
	switch {
	case in.InFeatures() != cfg.ModelDim:
		return nil, configErrorf("feed-forward in-projection takes %d features, want %d", in.InFeatures(), cfg.ModelDim)
	case in.OutFeatures() != width:
		return nil, configErrorf("feed-forward in-projection produces %d features, want %d (inner %d, glu %v)",
			in.OutFeatures(), width, cfg.InnerDim, cfg.GLU)
	case out.InFeatures() != cfg.InnerDim || out.OutFeatures() != cfg.ModelDim:
		return nil, configErrorf("feed-forward out-projection is %d→%d, want %d→%d",
			out.InFeatures(), out.OutFeatures(), cfg.InnerDim, cfg.ModelDim)
	}

	_, inShared := in.(*Linear)
	_, outShared := out.(*Linear)
	opts := kernels.FeedForwardOptions{
		Activation:    cfg.Activation,
		GLU:           cfg.GLU,
		Variational:   cfg.VariationalDropout,
		Checkpointing: cfg.Checkpointing,
		Factorized:    !inShared || !outShared,
	}
	return &FeedForward{
		cfg:     cfg,
		inProj:  in,
		outProj: out,
		dropout: NewDropout(cfg.FFNDropout, cfg.VariationalDropout, b, g),
		kernel:  kernels.SelectFeedForward(b, opts),
		backend: b,
	}, nil
}

// Forward applies the block to x [seq, batch, model] (or [rows, model] for
// shared-weight blocks). lang is required when the block is factorized.
func (f *FeedForward) Forward(x *tensor.Tensor, lang LanguageID) *tensor.Tensor {
	if x.Rank() == 0 || x.Dim(-1) != f.cfg.ModelDim {
		violation("FeedForward.Forward: expected last dimension %d, got shape %v", f.cfg.ModelDim, x.Shape())
	}
	if f.factorized() {
		f.ctx = nil
		return f.forwardFactorized(x, lang)
	}

	shape := x.Shape()
	rows := x.Reshape(-1, f.cfg.ModelDim)

	var mask *tensor.Tensor
	if f.dropout.Active() {
		hidden := shape.Clone()
		hidden[len(hidden)-1] = f.cfg.InnerDim
		mask = expandMask(f.backend, f.dropout.Mask(hidden), hidden).Reshape(-1, f.cfg.InnerDim)
	}

	y, ctx := f.kernel.Forward(rows, f.params(), mask)
	f.ctx, f.inShape = ctx, shape
	return y.Reshape(shape...)
}

func (f *FeedForward) forwardFactorized(x *tensor.Tensor, lang LanguageID) *tensor.Tensor {
	h := f.inProj.Project(x, lang)
	if f.cfg.GLU {
		h = kernels.Gated(f.backend, h, f.cfg.Activation)
	} else {
		h = f.backend.Map(h, f.cfg.Activation)
	}
	h = f.dropout.Forward(h)
	return f.outProj.Project(h, lang)
}

// Backward returns dx for the most recent Forward and accumulates the
// projection gradients. Factorized blocks do not support it.
func (f *FeedForward) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if f.ctx == nil {
		violation("FeedForward.Backward: no shared-weight forward pass to differentiate")
	}
	grads := f.kernel.Backward(f.ctx, dy.Reshape(-1, f.cfg.ModelDim))
	in, out := f.inProj.(*Linear), f.outProj.(*Linear)
	in.weight.AccumulateGrad(f.backend, grads.DW1)
	out.weight.AccumulateGrad(f.backend, grads.DW2)
	if in.bias != nil {
		in.bias.AccumulateGrad(f.backend, grads.DB1)
	}
	if out.bias != nil {
		out.bias.AccumulateGrad(f.backend, grads.DB2)
	}
	return grads.DX.Reshape(f.inShape...)
}

func (f *FeedForward) params() kernels.FeedForwardParams {
	in, out := f.inProj.(*Linear), f.outProj.(*Linear)
	p := kernels.FeedForwardParams{
		W1:         in.weight.Tensor(),
		W2:         out.weight.Tensor(),
		Activation: f.cfg.Activation,
		GLU:        f.cfg.GLU,
	}
	if in.bias != nil {
		p.B1 = in.bias.Tensor()
	}
	if out.bias != nil {
		p.B2 = out.bias.Tensor()
	}
	return p
}

func (f *FeedForward) factorized() bool {
	_, in := f.inProj.(*Linear)
	_, out := f.outProj.(*Linear)
	return !in || !out
}

// KernelName reports the strategy in use: the selected kernel for shared
// weights, reference for factorized blocks.
func (f *FeedForward) KernelName() string {
	if f.factorized() {
		return kernels.Reference
	}
	return f.kernel.Name()
}

// SetTraining implements Trainable.
func (f *FeedForward) SetTraining(training bool) {
	f.dropout.SetTraining(training)
}

// Parameters returns the in- and out-projection parameters.
func (f *FeedForward) Parameters() []*Parameter {
	return collect(f.inProj, f.outProj)
}

// linearOf returns the shared Linear behind a projection.
func linearOf(p Projection) *Linear {
	switch v := p.(type) {
	case *Linear:
		return v
	case *FactorizedLinear:
		return v.base
	default:
		panic("linearOf: unknown projection type")
	}
}
