package nn

import "github.com/born-ml/babel/internal/tensor"

// Parameter is a named trainable tensor.
//
// Names are hierarchical and stable across runs
// ("encoder.layers.0.self_attn.in_proj.weight"), which is what the
// checkpoint store keys on.
//
// Example:
//
//	weight := nn.NewParameter("ffn.in_proj.weight", tensor.Zeros(64, 16))
//	w := weight.Tensor()
type Parameter struct {
	name   string
	tensor *tensor.Tensor
	grad   *tensor.Tensor
}

// NewParameter creates a parameter. The gradient is allocated on the first
// backward pass.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Grad returns the accumulated gradient, or nil before any backward pass.
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad
}

// SetGrad replaces the gradient.
func (p *Parameter) SetGrad(grad *tensor.Tensor) {
	p.grad = grad
}

// AccumulateGrad adds g to the stored gradient.
func (p *Parameter) AccumulateGrad(b tensor.Backend, g *tensor.Tensor) {
	if g == nil {
		return
	}
	if p.grad == nil {
		p.grad = g.Clone()
		return
	}
	p.grad = b.Add(p.grad, g)
}

// ZeroGrad clears the gradient.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}
