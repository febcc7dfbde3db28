package cpu

import (
	"fmt"

	"github.com/born-ml/babel/internal/tensor"
)

// Add performs element-wise addition with NumPy-style broadcasting.
func (p primitives) Add(a, b *tensor.Tensor) *tensor.Tensor {
	return binary("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (p primitives) Sub(a, b *tensor.Tensor) *tensor.Tensor {
	return binary("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (p primitives) Mul(a, b *tensor.Tensor) *tensor.Tensor {
	return binary("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Scale multiplies every element by s.
func (p primitives) Scale(x *tensor.Tensor, s float32) *tensor.Tensor {
	out := x.Clone()
	data := out.Data()
	for i := range data {
		data[i] *= s
	}
	return out
}

// Map applies act element-wise.
func (p primitives) Map(x *tensor.Tensor, act tensor.Activation) *tensor.Tensor {
	out := x.Clone()
	data := out.Data()
	for i, v := range data {
		data[i] = act.Apply(v)
	}
	return out
}

// MapGrad returns dy ⊙ act'(x).
func (p primitives) MapGrad(x, dy *tensor.Tensor, act tensor.Activation) *tensor.Tensor {
	if !x.Shape().Equal(dy.Shape()) {
		panic(fmt.Sprintf("mapgrad: shape mismatch %v vs %v", x.Shape(), dy.Shape()))
	}
	out := dy.Clone()
	data, xd := out.Data(), x.Data()
	for i := range data {
		data[i] *= act.Derivative(xd[i])
	}
	return out
}

// Rsqrt returns 1/sqrt(x + eps).
func (p primitives) Rsqrt(x *tensor.Tensor, eps float32) *tensor.Tensor {
	out := x.Clone()
	data := out.Data()
	for i, v := range data {
		data[i] = rsqrt(v + eps)
	}
	return out
}

// binary applies f over the broadcast of a and b.
func binary(op string, a, b *tensor.Tensor, f func(x, y float32) float32) *tensor.Tensor {
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}

	out := tensor.Zeros(outShape...)
	od, ad, bd := out.Data(), a.Data(), b.Data()

	if !needsBroadcast {
		for i := range od {
			od[i] = f(ad[i], bd[i])
		}
		return out
	}

	// Fast path for a trailing-vector operand such as a bias row.
	last := outShape[len(outShape)-1]
	if b.Rank() > 0 && b.Dim(-1) == last && b.Len() == last && a.Len() == len(od) {
		n := b.Len()
		for i := range od {
			od[i] = f(ad[i], bd[i%n])
		}
		return out
	}

	aStrides := tensor.BroadcastStrides(a.Shape(), outShape)
	bStrides := tensor.BroadcastStrides(b.Shape(), outShape)
	idx := make([]int, len(outShape))
	aOff, bOff := 0, 0
	for i := range od {
		od[i] = f(ad[aOff], bd[bOff])

		// Advance the multi-index like an odometer.
		for d := len(outShape) - 1; d >= 0; d-- {
			idx[d]++
			aOff += aStrides[d]
			bOff += bStrides[d]
			if idx[d] < outShape[d] {
				break
			}
			aOff -= aStrides[d] * idx[d]
			bOff -= bStrides[d] * idx[d]
			idx[d] = 0
		}
	}
	return out
}
