package kernels

import "github.com/born-ml/babel/internal/tensor"

// DropoutAddKernel computes y = x ⊙ mask · scale + residual.
//
// mask may be nil (no dropout). The reference strategy broadcasts the mask,
// which is how a variational mask [1, batch, model] is shared across the
// sequence axis; the fused strategy requires a mask of x's shape.
type DropoutAddKernel interface {
	Name() string
	Forward(x, residual, mask *tensor.Tensor, scale float32) *tensor.Tensor
	Backward(dy, mask *tensor.Tensor, scale float32) (dx, dResidual *tensor.Tensor)
}

// SelectDropoutAdd returns the fused strategy when the backend implements
// tensor.FusedDropoutAddBackend and the dropout is not variational.
func SelectDropoutAdd(b tensor.Backend, variational bool) DropoutAddKernel {
	if fb, ok := b.(tensor.FusedDropoutAddBackend); ok && !variational {
		return fusedDropoutAdd{fb: fb, b: b}
	}
	return referenceDropoutAdd{b}
}

type fusedDropoutAdd struct {
	fb tensor.FusedDropoutAddBackend
	b  tensor.Backend
}

func (fusedDropoutAdd) Name() string { return Fused }

func (k fusedDropoutAdd) Forward(x, residual, mask *tensor.Tensor, scale float32) *tensor.Tensor {
	return k.fb.FusedDropoutAdd(x, residual, mask, scale)
}

func (k fusedDropoutAdd) Backward(dy, mask *tensor.Tensor, scale float32) (dx, dResidual *tensor.Tensor) {
	return dropoutAddBackward(k.b, dy, mask, scale)
}

type referenceDropoutAdd struct {
	b tensor.Backend
}

func (referenceDropoutAdd) Name() string { return Reference }

func (k referenceDropoutAdd) Forward(x, residual, mask *tensor.Tensor, scale float32) *tensor.Tensor {
	out := x
	if mask != nil {
		out = k.b.Mul(out, mask)
	}
	if scale != 1 {
		out = k.b.Scale(out, scale)
	}
	return k.b.Add(residual, out)
}

func (k referenceDropoutAdd) Backward(dy, mask *tensor.Tensor, scale float32) (dx, dResidual *tensor.Tensor) {
	return dropoutAddBackward(k.b, dy, mask, scale)
}

func dropoutAddBackward(b tensor.Backend, dy, mask *tensor.Tensor, scale float32) (dx, dResidual *tensor.Tensor) {
	dx = b.Scale(dy, scale)
	if mask != nil {
		dx = b.Mul(dx, mask)
	}
	return dx, dy.Clone()
}
