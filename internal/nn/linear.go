package nn

import "github.com/born-ml/babel/internal/tensor"

// Projection maps the last axis of x from InFeatures to OutFeatures.
//
// Linear ignores lang. FactorizedLinear requires it and expects x in the
// time-major layout [seq, batch, in].
type Projection interface {
	Module
	Project(x *tensor.Tensor, lang LanguageID) *tensor.Tensor
	InFeatures() int
	OutFeatures() int
}

// Linear implements y = x·Wᵀ + b over the last axis of x.
//
// W has shape [out, in] and b has shape [out]. Weights use Xavier uniform
// initialization and biases start at zero.
//
// Example:
//
//	backend := cpu.New()
//	proj := nn.NewLinear("attn.out_proj", 16, 16, true, backend, tensor.NewGenerator(1))
//	y := proj.Forward(x) // x: [5, 2, 16] → y: [5, 2, 16]
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter
	bias        *Parameter
	backend     tensor.Backend
}

// NewLinear creates a linear projection named prefix.weight / prefix.bias.
func NewLinear(prefix string, in, out int, bias bool, b tensor.Backend, g *tensor.Generator) *Linear {
	l := &Linear{
		inFeatures:  in,
		outFeatures: out,
		weight:      NewParameter(prefix+".weight", xavierUniform(g, in, out, out, in)),
		backend:     b,
	}
	if bias {
		l.bias = NewParameter(prefix+".bias", tensor.Zeros(out))
	}
	return l
}

// Forward applies the projection to x [..., in] and returns [..., out].
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	return l.apply("Linear.Forward", x, l.weight.Tensor())
}

// Project implements Projection. lang is ignored.
func (l *Linear) Project(x *tensor.Tensor, _ LanguageID) *tensor.Tensor {
	return l.Forward(x)
}

// apply computes x·wᵀ + bias for an arbitrary weight of this layer's shape.
func (l *Linear) apply(op string, x, w *tensor.Tensor) *tensor.Tensor {
	if x.Rank() == 0 || x.Dim(-1) != l.inFeatures {
		violation("%s: expected last dimension %d, got shape %v", op, l.inFeatures, x.Shape())
	}
	shape := x.Shape()
	rows := x.Reshape(-1, l.inFeatures)
	y := l.backend.MatMul(rows, w, false, true)
	if l.bias != nil {
		y = l.backend.Add(y, l.bias.Tensor())
	}
	shape[len(shape)-1] = l.outFeatures
	return y.Reshape(shape...)
}

// Parameters returns [weight, bias] or [weight].
func (l *Linear) Parameters() []*Parameter {
	if l.bias != nil {
		return []*Parameter{l.weight, l.bias}
	}
	return []*Parameter{l.weight}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter, or nil.
func (l *Linear) Bias() *Parameter {
	return l.bias
}

// InFeatures returns the input width.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the output width.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}
