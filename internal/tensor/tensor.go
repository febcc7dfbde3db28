// Package tensor defines the dense float32 tensor type and the tensor-math
// provider contract used by the Transformer layer core.
//
// Tensors are row-major and contiguous. Layer activations use the time-major
// layout [seq, batch, model]; attention weights use [batch, heads, tgt, src].
//
// The package does no arithmetic itself beyond construction and inspection.
// All math goes through a Backend, which may additionally implement the fused
// capability interfaces (FusedLayerNormBackend, FusedMLPBackend,
// FusedDropoutAddBackend).
package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Tensor is a dense, contiguous float32 tensor.
//
// A Tensor returned by a Backend operation owns its data. Reshape returns a
// view sharing the same storage.
type Tensor struct {
	shape Shape
	data  []float32
}

// New wraps data in a tensor of the given shape.
// It panics if len(data) does not match the shape.
//
// Example:
//
//	t := tensor.New([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
func New(data []float32, shape Shape) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor.New: %v", err))
	}
	if len(data) != shape.NumElements() {
		panic(fmt.Sprintf("tensor.New: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements()))
	}
	return &Tensor{shape: shape.Clone(), data: data}
}

// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() Shape {
	return t.shape.Clone()
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Dim returns the size of one dimension. Negative axes count from the end.
func (t *Tensor) Dim(axis int) int {
	return t.shape[t.shape.Axis(axis)]
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.data)
}

// Data returns the underlying storage. Mutating it mutates the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Item returns the value of a single-element tensor.
func (t *Tensor) Item() float32 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("Tensor.Item: tensor has %d elements, want 1", len(t.data)))
	}
	return t.data[0]
}

// Reshape returns a view with a new shape over the same storage.
// One dimension may be -1 and is inferred.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	out := Shape(shape).Clone()
	infer := -1
	known := 1
	for i, d := range out {
		if d == -1 {
			if infer >= 0 {
				panic("Tensor.Reshape: only one dimension can be inferred")
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || len(t.data)%known != 0 {
			panic(fmt.Sprintf("Tensor.Reshape: cannot infer dimension of %v from %d elements", shape, len(t.data)))
		}
		out[infer] = len(t.data) / known
	}
	if out.NumElements() != len(t.data) {
		panic(fmt.Sprintf("Tensor.Reshape: cannot reshape %v into %v", t.shape, out))
	}
	return &Tensor{shape: out, data: t.data}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{shape: t.shape.Clone(), data: data}
}

// At returns the element at the given multi-index.
func (t *Tensor) At(idx ...int) float32 {
	return t.data[t.offset(idx)]
}

// Set writes v at the given multi-index.
func (t *Tensor) Set(v float32, idx ...int) {
	t.data[t.offset(idx)] = v
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("Tensor: index %v has wrong rank for shape %v", idx, t.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("Tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + v
	}
	return off
}

// IsFinite reports whether every element is neither NaN nor ±Inf.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// String returns a short description, not the full contents.
func (t *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor%v", []int(t.shape))
	if len(t.data) <= 8 {
		fmt.Fprintf(&sb, "%v", t.data)
	}
	return sb.String()
}
