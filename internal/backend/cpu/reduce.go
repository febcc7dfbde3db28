package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/babel/internal/parallel"
	"github.com/born-ml/babel/internal/tensor"
)

// Softmax normalizes over the last axis.
//
// Each row has its maximum subtracted before exponentiation, so large additive
// mask values (-1e9) never overflow.
func (p primitives) Softmax(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() == 0 {
		panic("softmax: scalar input")
	}
	out := x.Clone()
	n := x.Dim(-1)
	if n == 0 {
		return out
	}
	data := out.Data()
	parallel.For(len(data)/n, n, p.par, func(r int) {
		softmaxRow(data[r*n : (r+1)*n])
	})
	return out
}

func softmaxRow(row []float32) {
	maxVal := row[0]
	for _, v := range row[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range row {
		e := math.Exp(float64(v - maxVal))
		row[i] = float32(e)
		sum += e
	}
	inv := float32(1 / sum)
	for i := range row {
		row[i] *= inv
	}
}

// MeanLastDim averages over the last axis, keeping it with size 1.
//
// Example:
//
//	x := tensor.Zeros(5, 2, 16)
//	m := backend.MeanLastDim(x) // shape: [5, 2, 1]
func (p primitives) MeanLastDim(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() == 0 {
		panic("meanlastdim: scalar input")
	}
	n := x.Dim(-1)
	if n == 0 {
		panic(fmt.Sprintf("meanlastdim: empty last axis in %v", x.Shape()))
	}
	shape := x.Shape()
	shape[len(shape)-1] = 1
	out := tensor.Zeros(shape...)
	od, xd := out.Data(), x.Data()
	for r := range od {
		var sum float64
		for _, v := range xd[r*n : (r+1)*n] {
			sum += float64(v)
		}
		od[r] = float32(sum / float64(n))
	}
	return out
}

// ReduceRows sums over every axis but the last.
//
// Example:
//
//	dy := tensor.Zeros(5, 2, 16)
//	db := backend.ReduceRows(dy) // shape: [16]
func (p primitives) ReduceRows(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() == 0 {
		panic("reducerows: scalar input")
	}
	n := x.Dim(-1)
	out := tensor.Zeros(n)
	if n == 0 {
		return out
	}
	od, xd := out.Data(), x.Data()
	for off := 0; off < len(xd); off += n {
		for j, v := range xd[off : off+n] {
			od[j] += v
		}
	}
	return out
}

func rsqrt(v float32) float32 {
	return float32(1 / math.Sqrt(float64(v)))
}
