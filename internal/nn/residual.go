package nn

import (
	"github.com/born-ml/babel/internal/kernels"
	"github.com/born-ml/babel/internal/tensor"
)

// Residual is the processing pipeline around one sublayer.
//
// Preprocess normalizes the sublayer input in pre-norm mode (unless re-zero
// replaces normalization). Postprocess applies, in order: dropout on the
// sublayer output, the re-zero gate and caller scale, the residual add, and
// the post-norm when configured. Dropout, scaling and the add run as one
// dropout-add kernel call.
type Residual struct {
	norm     Normalizer
	preNorm  bool
	postNorm bool
	gate     *Parameter
	dropout  *Dropout
	kernel   kernels.DropoutAddKernel
	backend  tensor.Backend
}

// NewResidual creates the pipeline for one sublayer named prefix.
func NewResidual(prefix string, cfg LayerConfig, b tensor.Backend, g *tensor.Generator) *Residual {
	r := &Residual{
		preNorm:  !cfg.PostNorm && !cfg.ReZero,
		postNorm: cfg.PostNorm,
		dropout:  NewDropout(cfg.ResidualDropout, cfg.VariationalDropout, b, g),
		kernel:   kernels.SelectDropoutAdd(b, cfg.VariationalDropout),
		backend:  b,
	}
	if r.preNorm || r.postNorm {
		r.norm = newNormalizer(prefix+".norm", cfg, b)
	}
	if cfg.ReZero {
		r.gate = NewParameter(prefix+".rezero_gate", tensor.Zeros(1))
	}
	return r
}

// Preprocess returns the sublayer input.
func (r *Residual) Preprocess(x *tensor.Tensor, lang LanguageID) *tensor.Tensor {
	if !r.preNorm {
		return x
	}
	return r.norm.Forward(x, lang)
}

// Postprocess combines the sublayer output with the residual stream.
// scale multiplies the sublayer output before the add; layers use it for the
// macaron half-step and layer-drop rescaling.
func (r *Residual) Postprocess(out, residual *tensor.Tensor, scale float32, lang LanguageID) *tensor.Tensor {
	if !out.Shape().Equal(residual.Shape()) {
		violation("Residual.Postprocess: sublayer output %v does not match residual %v", out.Shape(), residual.Shape())
	}
	if r.gate != nil {
		scale *= r.gate.Tensor().Item()
	}
	y := r.kernel.Forward(out, residual, r.dropout.Mask(out.Shape()), scale)
	if r.postNorm {
		y = r.norm.Forward(y, lang)
	}
	return y
}

// SetTraining implements Trainable.
func (r *Residual) SetTraining(training bool) {
	r.dropout.SetTraining(training)
}

// KernelName reports the selected dropout-add strategy.
func (r *Residual) KernelName() string {
	return r.kernel.Name()
}

// Norm returns the normalizer, or nil when the pipeline has none.
func (r *Residual) Norm() Normalizer {
	return r.norm
}

// Parameters returns the norm parameters and the re-zero gate.
func (r *Residual) Parameters() []*Parameter {
	var params []*Parameter
	if r.norm != nil {
		params = append(params, r.norm.Parameters()...)
	}
	if r.gate != nil {
		params = append(params, r.gate)
	}
	return params
}
