package kernels

import (
	"fmt"

	"github.com/born-ml/babel/internal/tensor"
)

// FeedForwardParams are the weights of a position-wise feed-forward block.
//
// W1 is [inner, model], or [2·inner, model] for a gated linear unit whose
// first half is the value and second half the gate (see Gated). W2 is
// [model, inner].
// Biases may be nil.
type FeedForwardParams struct {
	W1, B1, W2, B2 *tensor.Tensor
	Activation     tensor.Activation
	GLU            bool
}

// FeedForwardGrads are the gradients produced by a backward pass.
type FeedForwardGrads struct {
	DX, DW1, DB1, DW2, DB2 *tensor.Tensor
}

// FeedForwardKernel computes dropout(act(x·W1ᵀ+b1))·W2ᵀ+b2 on rows of x.
type FeedForwardKernel interface {
	Name() string

	// Forward takes x [rows, model] and an inverted-dropout mask
	// [rows, inner] (nil for none).
	Forward(x *tensor.Tensor, p FeedForwardParams, mask *tensor.Tensor) (*tensor.Tensor, *FeedForwardContext)

	// Backward returns input and parameter gradients for dy [rows, model].
	Backward(ctx *FeedForwardContext, dy *tensor.Tensor) FeedForwardGrads
}

// FeedForwardContext holds what a forward pass saved for its backward pass.
type FeedForwardContext struct {
	x      *tensor.Tensor
	preAct *tensor.Tensor
	mask   *tensor.Tensor
	params FeedForwardParams
}

// FeedForwardOptions describe the block configuration that decides which
// strategy may run.
type FeedForwardOptions struct {
	Activation    tensor.Activation
	GLU           bool
	Variational   bool
	Checkpointing bool
	Factorized    bool
}

// FusedEligible reports whether the configuration allows the fused path:
// a relu, gelu, agelu or silu activation without gating, non-variational
// dropout, shared weights and no gradient checkpointing.
func (o FeedForwardOptions) FusedEligible() bool {
	switch o.Activation {
	case tensor.ReLU, tensor.GELU, tensor.ApproxGELU, tensor.SiLU:
	default:
		return false
	}
	return !o.GLU && !o.Variational && !o.Checkpointing && !o.Factorized
}

// SelectFeedForward returns the fused strategy when the configuration is
// eligible and the backend implements tensor.FusedMLPBackend, and the
// reference strategy otherwise.
func SelectFeedForward(b tensor.Backend, opts FeedForwardOptions) FeedForwardKernel {
	if fb, ok := b.(tensor.FusedMLPBackend); ok && opts.FusedEligible() {
		return fusedFeedForward{fb}
	}
	return referenceFeedForward{b}
}

type fusedFeedForward struct {
	b tensor.FusedMLPBackend
}

func (fusedFeedForward) Name() string { return Fused }

func (k fusedFeedForward) Forward(x *tensor.Tensor, p FeedForwardParams, mask *tensor.Tensor) (*tensor.Tensor, *FeedForwardContext) {
	if p.GLU {
		panic("fusedFeedForward.Forward: gated linear units are not supported by the fused path")
	}
	y, preAct := k.b.FusedMLP(x, p.W1, p.B1, p.W2, p.B2, p.Activation, mask)
	return y, &FeedForwardContext{x: x, preAct: preAct, mask: mask, params: p}
}

func (k fusedFeedForward) Backward(ctx *FeedForwardContext, dy *tensor.Tensor) FeedForwardGrads {
	p := ctx.params
	dx, dW1, dB1, dW2, dB2 := k.b.FusedMLPBackward(dy, ctx.x, p.W1, p.W2, ctx.preAct, ctx.mask, p.Activation)
	if p.B1 == nil {
		dB1 = nil
	}
	if p.B2 == nil {
		dB2 = nil
	}
	return FeedForwardGrads{DX: dx, DW1: dW1, DB1: dB1, DW2: dW2, DB2: dB2}
}

type referenceFeedForward struct {
	b tensor.Backend
}

func (referenceFeedForward) Name() string { return Reference }

func (k referenceFeedForward) Forward(x *tensor.Tensor, p FeedForwardParams, mask *tensor.Tensor) (*tensor.Tensor, *FeedForwardContext) {
	if x.Rank() != 2 {
		panic(fmt.Sprintf("referenceFeedForward.Forward: expected 2D input, got %v", x.Shape()))
	}
	preAct := k.b.MatMul(x, p.W1, false, true)
	if p.B1 != nil {
		preAct = k.b.Add(preAct, p.B1)
	}

	hidden := k.activate(preAct, p)
	if mask != nil {
		hidden = k.b.Mul(hidden, mask)
	}

	y := k.b.MatMul(hidden, p.W2, false, true)
	if p.B2 != nil {
		y = k.b.Add(y, p.B2)
	}
	return y, &FeedForwardContext{x: x, preAct: preAct, mask: mask, params: p}
}

func (k referenceFeedForward) Backward(ctx *FeedForwardContext, dy *tensor.Tensor) FeedForwardGrads {
	p := ctx.params
	hidden := k.activate(ctx.preAct, p)
	if ctx.mask != nil {
		hidden = k.b.Mul(hidden, ctx.mask)
	}

	var g FeedForwardGrads
	g.DW2 = k.b.MatMul(dy, hidden, true, false)
	if p.B2 != nil {
		g.DB2 = k.b.ReduceRows(dy)
	}

	dHidden := k.b.MatMul(dy, p.W2, false, false)
	if ctx.mask != nil {
		dHidden = k.b.Mul(dHidden, ctx.mask)
	}

	var dPre *tensor.Tensor
	if p.GLU {
		inner := ctx.preAct.Dim(-1) / 2
		value := k.b.Narrow(ctx.preAct, -1, 0, inner)
		gate := k.b.Narrow(ctx.preAct, -1, inner, inner)
		var dValue, dGate *tensor.Tensor
		if p.Activation == tensor.Sigmoid {
			dValue = k.b.Mul(dHidden, k.b.Map(gate, tensor.Sigmoid))
			dGate = k.b.MapGrad(gate, k.b.Mul(dHidden, value), tensor.Sigmoid)
		} else {
			dValue = k.b.MapGrad(value, k.b.Mul(dHidden, gate), p.Activation)
			dGate = k.b.Mul(dHidden, k.b.Map(value, p.Activation))
		}
		dPre = k.b.Cat(-1, dValue, dGate)
	} else {
		dPre = k.b.MapGrad(ctx.preAct, dHidden, p.Activation)
	}

	g.DW1 = k.b.MatMul(dPre, ctx.x, true, false)
	if p.B1 != nil {
		g.DB1 = k.b.ReduceRows(dPre)
	}
	g.DX = k.b.MatMul(dPre, p.W1, false, false)
	return g
}

// activate applies the activation, splitting value and gate halves for GLU.
func (k referenceFeedForward) activate(preAct *tensor.Tensor, p FeedForwardParams) *tensor.Tensor {
	if !p.GLU {
		return k.b.Map(preAct, p.Activation)
	}
	return Gated(k.b, preAct, p.Activation)
}

// Gated splits preAct [..., 2·inner] into value and gate halves. The sigmoid
// activation is the classic GLU, value·σ(gate); every other activation is
// applied to the value half, act(value)·gate.
func Gated(b tensor.Backend, preAct *tensor.Tensor, act tensor.Activation) *tensor.Tensor {
	inner := preAct.Dim(-1) / 2
	value := b.Narrow(preAct, -1, 0, inner)
	gate := b.Narrow(preAct, -1, inner, inner)
	if act == tensor.Sigmoid {
		return b.Mul(value, b.Map(gate, tensor.Sigmoid))
	}
	return b.Mul(b.Map(value, act), gate)
}
