package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/babel/internal/parallel"
	"github.com/born-ml/babel/internal/tensor"
)

// FusedLayerNorm normalizes each row of x over its last axis in one pass and
// applies the optional affine weight and bias.
//
// Shapes: x [..., d], weight/bias [d] or nil → y [..., d], mean/invStd [rows].
func (cpu *CPUBackend) FusedLayerNorm(x, weight, bias *tensor.Tensor, eps float32) (y, mean, invStd *tensor.Tensor) {
	d := x.Dim(-1)
	checkAffine("fusedlayernorm", d, weight, bias)
	rows := x.Len() / max(d, 1)

	y = tensor.Zeros(x.Shape()...)
	mean = tensor.Zeros(rows)
	invStd = tensor.Zeros(rows)
	xd, yd, md, sd := x.Data(), y.Data(), mean.Data(), invStd.Data()

	parallel.For(rows, d, cpu.par, func(r int) {
		row := xd[r*d : (r+1)*d]
		var sum, sq float64
		for _, v := range row {
			sum += float64(v)
		}
		mu := sum / float64(d)
		for _, v := range row {
			c := float64(v) - mu
			sq += c * c
		}
		inv := 1 / math.Sqrt(sq/float64(d)+float64(eps))
		md[r], sd[r] = float32(mu), float32(inv)

		out := yd[r*d : (r+1)*d]
		for j, v := range row {
			h := float32((float64(v) - mu) * inv)
			if weight != nil {
				h *= weight.Data()[j]
			}
			if bias != nil {
				h += bias.Data()[j]
			}
			out[j] = h
		}
	})
	return y, mean, invStd
}

// FusedLayerNormBackward computes input and affine gradients from the saved
// row statistics. dWeight and dBias are nil when weight is nil.
func (cpu *CPUBackend) FusedLayerNormBackward(dy, x, weight, mean, invStd *tensor.Tensor) (dx, dWeight, dBias *tensor.Tensor) {
	d := x.Dim(-1)
	rows := x.Len() / max(d, 1)
	if !dy.Shape().Equal(x.Shape()) || mean.Len() != rows || invStd.Len() != rows {
		panic(fmt.Sprintf("fusedlayernormbackward: shape mismatch dy %v x %v stats %d", dy.Shape(), x.Shape(), mean.Len()))
	}

	dx = tensor.Zeros(x.Shape()...)
	if weight != nil {
		dWeight = tensor.Zeros(d)
		dBias = tensor.Zeros(d)
	}
	xd, gd, dxd := x.Data(), dy.Data(), dx.Data()
	md, sd := mean.Data(), invStd.Data()
	g := make([]float32, d)
	xhat := make([]float32, d)

	for r := 0; r < rows; r++ {
		var sumG, sumGX float64
		for j := 0; j < d; j++ {
			i := r*d + j
			xhat[j] = (xd[i] - md[r]) * sd[r]
			g[j] = gd[i]
			if weight != nil {
				dWeight.Data()[j] += gd[i] * xhat[j]
				dBias.Data()[j] += gd[i]
				g[j] *= weight.Data()[j]
			}
			sumG += float64(g[j])
			sumGX += float64(g[j] * xhat[j])
		}
		meanG := float32(sumG / float64(d))
		meanGX := float32(sumGX / float64(d))
		for j := 0; j < d; j++ {
			dxd[r*d+j] = sd[r] * (g[j] - meanG - xhat[j]*meanGX)
		}
	}
	return dx, dWeight, dBias
}

// FusedMLP runs in-projection, bias, activation, dropout and out-projection
// with a single intermediate buffer.
func (cpu *CPUBackend) FusedMLP(x, w1, b1, w2, b2 *tensor.Tensor, act tensor.Activation, mask *tensor.Tensor) (y, preAct *tensor.Tensor) {
	rows, model, inner := checkMLP("fusedmlp", x, w1, w2, mask)

	preAct = tensor.Zeros(rows, inner)
	gemm(preAct.Data(), x.Data(), w1.Data(), rows, model, inner, false, true)

	hidden := make([]float32, rows*inner)
	pd := preAct.Data()
	for i := range pd {
		if b1 != nil {
			pd[i] += b1.Data()[i%inner]
		}
		h := act.Apply(pd[i])
		if mask != nil {
			h *= mask.Data()[i]
		}
		hidden[i] = h
	}

	y = tensor.Zeros(rows, model)
	yd := y.Data()
	gemm(yd, hidden, w2.Data(), rows, inner, model, false, true)
	if b2 != nil {
		for i := range yd {
			yd[i] += b2.Data()[i%model]
		}
	}
	return y, preAct
}

// FusedMLPBackward recomputes the hidden activation from preAct and returns
// all input and parameter gradients.
func (cpu *CPUBackend) FusedMLPBackward(dy, x, w1, w2, preAct, mask *tensor.Tensor, act tensor.Activation) (dx, dW1, dB1, dW2, dB2 *tensor.Tensor) {
	rows, model, inner := checkMLP("fusedmlpbackward", x, w1, w2, mask)

	pd := preAct.Data()
	hidden := make([]float32, rows*inner)
	for i, v := range pd {
		h := act.Apply(v)
		if mask != nil {
			h *= mask.Data()[i]
		}
		hidden[i] = h
	}

	dW2 = tensor.Zeros(model, inner)
	gemm(dW2.Data(), dy.Data(), hidden, model, rows, inner, true, false)
	dB2 = tensor.Zeros(model)
	for i, v := range dy.Data() {
		dB2.Data()[i%model] += v
	}

	dh := make([]float32, rows*inner)
	gemm(dh, dy.Data(), w2.Data(), rows, model, inner, false, false)
	dB1 = tensor.Zeros(inner)
	for i := range dh {
		g := dh[i] * act.Derivative(pd[i])
		if mask != nil {
			g *= mask.Data()[i]
		}
		dh[i] = g
		dB1.Data()[i%inner] += g
	}

	dW1 = tensor.Zeros(inner, model)
	gemm(dW1.Data(), dh, x.Data(), inner, rows, model, true, false)
	dx = tensor.Zeros(rows, model)
	gemm(dx.Data(), dh, w1.Data(), rows, inner, model, false, false)
	return dx, dW1, dB1, dW2, dB2
}

// FusedDropoutAdd computes x ⊙ mask · scale + residual in one pass.
func (cpu *CPUBackend) FusedDropoutAdd(x, residual, mask *tensor.Tensor, scale float32) *tensor.Tensor {
	if !x.Shape().Equal(residual.Shape()) || (mask != nil && !mask.Shape().Equal(x.Shape())) {
		panic(fmt.Sprintf("fuseddropoutadd: shape mismatch x %v residual %v", x.Shape(), residual.Shape()))
	}
	out := residual.Clone()
	od, xd := out.Data(), x.Data()
	if mask == nil {
		for i := range od {
			od[i] += xd[i] * scale
		}
		return out
	}
	md := mask.Data()
	for i := range od {
		od[i] += xd[i] * md[i] * scale
	}
	return out
}

func checkAffine(op string, d int, weight, bias *tensor.Tensor) {
	if weight != nil && weight.Len() != d {
		panic(fmt.Sprintf("%s: weight has %d elements, want %d", op, weight.Len(), d))
	}
	if bias != nil && bias.Len() != d {
		panic(fmt.Sprintf("%s: bias has %d elements, want %d", op, bias.Len(), d))
	}
}

func checkMLP(op string, x, w1, w2, mask *tensor.Tensor) (rows, model, inner int) {
	if x.Rank() != 2 || w1.Rank() != 2 || w2.Rank() != 2 {
		panic(fmt.Sprintf("%s: expected 2D operands, got x %v w1 %v w2 %v", op, x.Shape(), w1.Shape(), w2.Shape()))
	}
	rows, model = x.Dim(0), x.Dim(1)
	inner = w1.Dim(0)
	if w1.Dim(1) != model || w2.Dim(0) != model || w2.Dim(1) != inner {
		panic(fmt.Sprintf("%s: weight shapes w1 %v w2 %v do not match input %v", op, w1.Shape(), w2.Shape(), x.Shape()))
	}
	if mask != nil && !mask.Shape().Equal(tensor.Shape{rows, inner}) {
		panic(fmt.Sprintf("%s: mask shape %v, want [%d %d]", op, mask.Shape(), rows, inner))
	}
	return rows, model, inner
}
