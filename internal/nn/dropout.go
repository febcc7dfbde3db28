package nn

import "github.com/born-ml/babel/internal/tensor"

// Dropout draws inverted-dropout masks during training.
//
// Variational dropout on a [seq, batch, dim] input draws one [1, batch, dim]
// mask and shares it across the sequence axis.
type Dropout struct {
	rate        float32
	variational bool
	training    bool
	backend     tensor.Backend
	rng         *tensor.Generator
}

// NewDropout creates a dropout in evaluation mode.
func NewDropout(rate float32, variational bool, b tensor.Backend, g *tensor.Generator) *Dropout {
	return &Dropout{rate: rate, variational: variational, backend: b, rng: g}
}

// SetTraining implements Trainable.
func (d *Dropout) SetTraining(training bool) {
	d.training = training
}

// Active reports whether Mask will draw a mask.
func (d *Dropout) Active() bool {
	return d.training && d.rate > 0
}

// Mask returns a mask for an input of the given shape, or nil when dropout
// is inactive. A variational mask has shape [1, batch, dim].
func (d *Dropout) Mask(shape tensor.Shape) *tensor.Tensor {
	if !d.Active() {
		return nil
	}
	if d.variational && len(shape) == 3 {
		shape = tensor.Shape{1, shape[1], shape[2]}
	}
	return d.backend.DropoutMask(shape, d.rate, d.rng)
}

// Forward applies dropout to x.
func (d *Dropout) Forward(x *tensor.Tensor) *tensor.Tensor {
	mask := d.Mask(x.Shape())
	if mask == nil {
		return x
	}
	return d.backend.Mul(x, mask)
}

// Rate returns the drop probability.
func (d *Dropout) Rate() float32 {
	return d.rate
}

// Variational reports whether masks are shared across the sequence axis.
func (d *Dropout) Variational() bool {
	return d.variational
}

// expandMask materializes a broadcast mask at full shape.
func expandMask(b tensor.Backend, mask *tensor.Tensor, shape tensor.Shape) *tensor.Tensor {
	if mask == nil || mask.Shape().Equal(shape) {
		return mask
	}
	return b.Mul(tensor.Ones(shape...), mask)
}
