package cpu

import (
	"fmt"

	"github.com/born-ml/babel/internal/tensor"
)

// Permute reorders axes; out.shape[i] = x.shape[axes[i]].
//
// Example:
//
//	x := tensor.Zeros(5, 2, 4, 8)      // [seq, batch, heads, headDim]
//	y := backend.Permute(x, 1, 2, 0, 3) // [batch, heads, seq, headDim]
func (p primitives) Permute(x *tensor.Tensor, axes ...int) *tensor.Tensor {
	inShape := x.Shape()
	if len(axes) != len(inShape) {
		panic(fmt.Sprintf("permute: got %d axes for %dD tensor", len(axes), len(inShape)))
	}

	seen := make([]bool, len(axes))
	outShape := make(tensor.Shape, len(axes))
	for i, a := range axes {
		if a < 0 || a >= len(axes) || seen[a] {
			panic(fmt.Sprintf("permute: invalid axes %v", axes))
		}
		seen[a] = true
		outShape[i] = inShape[a]
	}

	inStrides := inShape.ComputeStrides()
	strides := make([]int, len(axes))
	for i, a := range axes {
		strides[i] = inStrides[a]
	}

	out := tensor.Zeros(outShape...)
	od, xd := out.Data(), x.Data()
	idx := make([]int, len(outShape))
	off := 0
	for i := range od {
		od[i] = xd[off]
		for d := len(outShape) - 1; d >= 0; d-- {
			idx[d]++
			off += strides[d]
			if idx[d] < outShape[d] {
				break
			}
			off -= strides[d] * idx[d]
			idx[d] = 0
		}
	}
	return out
}

// Narrow returns elements [start, start+length) along axis.
func (p primitives) Narrow(x *tensor.Tensor, axis, start, length int) *tensor.Tensor {
	shape := x.Shape()
	axis = shape.Axis(axis)
	if start < 0 || length < 0 || start+length > shape[axis] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for axis %d of %v", start, start+length, axis, shape))
	}

	outer, inner := splitAround(shape, axis)
	outShape := shape.Clone()
	outShape[axis] = length
	out := tensor.Zeros(outShape...)

	od, xd := out.Data(), x.Data()
	src := shape[axis] * inner
	dst := length * inner
	for o := 0; o < outer; o++ {
		copy(od[o*dst:(o+1)*dst], xd[o*src+start*inner:o*src+(start+length)*inner])
	}
	return out
}

// Cat concatenates tensors along axis. All other dimensions must match.
func (p primitives) Cat(axis int, ts ...*tensor.Tensor) *tensor.Tensor {
	if len(ts) == 0 {
		panic("cat: no tensors")
	}
	base := ts[0].Shape()
	axis = base.Axis(axis)

	total := 0
	for _, t := range ts {
		s := t.Shape()
		if len(s) != len(base) {
			panic(fmt.Sprintf("cat: rank mismatch %v vs %v", base, s))
		}
		for d := range s {
			if d != axis && s[d] != base[d] {
				panic(fmt.Sprintf("cat: shape mismatch %v vs %v on axis %d", base, s, d))
			}
		}
		total += s[axis]
	}

	outShape := base.Clone()
	outShape[axis] = total
	out := tensor.Zeros(outShape...)
	outer, inner := splitAround(outShape, axis)

	od := out.Data()
	row := total * inner
	pos := 0
	for _, t := range ts {
		chunk := t.Dim(axis) * inner
		td := t.Data()
		for o := 0; o < outer; o++ {
			copy(od[o*row+pos:o*row+pos+chunk], td[o*chunk:(o+1)*chunk])
		}
		pos += chunk
	}
	return out
}

// splitAround returns the element counts before and after axis.
func splitAround(shape tensor.Shape, axis int) (outer, inner int) {
	outer, inner = 1, 1
	for d := 0; d < axis; d++ {
		outer *= shape[d]
	}
	for d := axis + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	return outer, inner
}
