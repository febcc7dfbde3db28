package tensor

// Device identifies where a backend executes.
type Device int

// Supported devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case WebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}

// Backend is the tensor-math provider contract.
//
// Every operation allocates a fresh result and leaves its inputs untouched.
// Shape violations panic with an "op: message" string, the same way the rest
// of the layer core reports contract violations during a forward pass.
type Backend interface {
	// Name returns the backend name.
	Name() string

	// Device returns the compute device.
	Device() Device

	// MatMul multiplies 2-D matrices, optionally transposing either operand.
	//
	// Shapes: a [m, k] (or [k, m] when transA), b [k, n] (or [n, k] when transB) → [m, n].
	MatMul(a, b *Tensor, transA, transB bool) *Tensor

	// BatchMatMul multiplies 3-D batches of matrices.
	//
	// Shapes: a [n, m, k], b [n, k, p] (or [n, p, k] when transB) → [n, m, p].
	BatchMatMul(a, b *Tensor, transB bool) *Tensor

	// Add, Sub and Mul are element-wise with NumPy broadcasting.
	Add(a, b *Tensor) *Tensor
	Sub(a, b *Tensor) *Tensor
	Mul(a, b *Tensor) *Tensor

	// Scale multiplies every element by s.
	Scale(x *Tensor, s float32) *Tensor

	// Map applies act element-wise.
	Map(x *Tensor, act Activation) *Tensor

	// MapGrad returns dy ⊙ act'(x).
	MapGrad(x, dy *Tensor, act Activation) *Tensor

	// Softmax normalizes over the last axis. Row maxima are subtracted first.
	Softmax(x *Tensor) *Tensor

	// MeanLastDim averages over the last axis, keeping it with size 1.
	MeanLastDim(x *Tensor) *Tensor

	// ReduceRows sums over every axis but the last, giving shape [last].
	ReduceRows(x *Tensor) *Tensor

	// Rsqrt returns 1/sqrt(x + eps) element-wise.
	Rsqrt(x *Tensor, eps float32) *Tensor

	// Permute reorders axes; out.shape[i] = x.shape[axes[i]].
	Permute(x *Tensor, axes ...int) *Tensor

	// Narrow returns elements [start, start+length) along axis.
	Narrow(x *Tensor, axis, start, length int) *Tensor

	// Cat concatenates tensors along axis.
	Cat(axis int, ts ...*Tensor) *Tensor

	// DropoutMask draws an inverted-dropout mask of the given shape: each
	// element is 0 with probability p and 1/(1-p) otherwise.
	DropoutMask(shape Shape, p float32, g *Generator) *Tensor
}

// FusedLayerNormBackend provides single-pass layer normalization over the
// last axis. weight and bias may be nil for a non-affine normalization.
//
// Forward returns the output with the per-row mean and inverse standard
// deviation (shape [rows]) needed by the backward pass.
type FusedLayerNormBackend interface {
	FusedLayerNorm(x, weight, bias *Tensor, eps float32) (y, mean, invStd *Tensor)
	FusedLayerNormBackward(dy, x, weight, mean, invStd *Tensor) (dx, dWeight, dBias *Tensor)
}

// FusedMLPBackend provides the two-layer position-wise feed-forward in one
// pass: y = dropout(act(x·w1ᵀ + b1))·w2ᵀ + b2.
//
// x is [rows, model], w1 is [inner, model], w2 is [model, inner]. mask is an
// inverted-dropout mask of shape [rows, inner], or nil for no dropout.
// Forward also returns the pre-activation [rows, inner] for the backward pass.
type FusedMLPBackend interface {
	FusedMLP(x, w1, b1, w2, b2 *Tensor, act Activation, mask *Tensor) (y, preAct *Tensor)
	FusedMLPBackward(dy, x, w1, w2, preAct, mask *Tensor, act Activation) (dx, dW1, dB1, dW2, dB2 *Tensor)
}

// FusedDropoutAddBackend provides y = x ⊙ mask · scale + residual in one pass.
// mask has the shape of x, or is nil for no dropout.
type FusedDropoutAddBackend interface {
	FusedDropoutAdd(x, residual, mask *Tensor, scale float32) *Tensor
}
