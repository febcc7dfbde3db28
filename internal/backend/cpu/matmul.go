package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/babel/internal/parallel"
	"github.com/born-ml/babel/internal/tensor"
)

// MatMul performs 2-D matrix multiplication through gonum's SGEMM.
//
// Shapes: a [m, k] (or [k, m] when transA), b [k, n] (or [n, k] when transB) → [m, n].
func (p primitives) MatMul(a, b *tensor.Tensor, transA, transB bool) *tensor.Tensor {
	if a.Rank() != 2 || b.Rank() != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", a.Rank(), b.Rank()))
	}

	m, k := a.Dim(0), a.Dim(1)
	if transA {
		m, k = k, m
	}
	kAlt, n := b.Dim(0), b.Dim(1)
	if transB {
		kAlt, n = n, kAlt
	}
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch %v (transA=%v) @ %v (transB=%v)", a.Shape(), transA, b.Shape(), transB))
	}

	out := tensor.Zeros(m, n)
	gemm(out.Data(), a.Data(), b.Data(), m, k, n, transA, transB)
	return out
}

// BatchMatMul multiplies matching 3-D batches.
//
// Shapes: a [n, m, k], b [n, k, p] (or [n, p, k] when transB) → [n, m, p].
func (p primitives) BatchMatMul(a, b *tensor.Tensor, transB bool) *tensor.Tensor {
	if a.Rank() != 3 || b.Rank() != 3 {
		panic(fmt.Sprintf("batchmatmul: only 3D tensors supported, got %dD and %dD", a.Rank(), b.Rank()))
	}

	batch, m, k := a.Dim(0), a.Dim(1), a.Dim(2)
	kAlt, n := b.Dim(1), b.Dim(2)
	if transB {
		kAlt, n = n, kAlt
	}
	if b.Dim(0) != batch || k != kAlt {
		panic(fmt.Sprintf("batchmatmul: shape mismatch %v @ %v (transB=%v)", a.Shape(), b.Shape(), transB))
	}

	out := tensor.Zeros(batch, m, n)
	ad, bd, od := a.Data(), b.Data(), out.Data()
	parallel.For(batch, m*k*n, p.par, func(i int) {
		gemm(od[i*m*n:(i+1)*m*n], ad[i*m*k:(i+1)*m*k], bd[i*k*n:(i+1)*k*n], m, k, n, false, transB)
	})
	return out
}

// gemm computes c = op(a)·op(b) for row-major operands.
func gemm(c, a, b []float32, m, k, n int, transA, transB bool) {
	if m == 0 || n == 0 || k == 0 {
		return
	}

	ga := blas32.General{Rows: m, Cols: k, Stride: k, Data: a}
	ta := blas.NoTrans
	if transA {
		ga = blas32.General{Rows: k, Cols: m, Stride: m, Data: a}
		ta = blas.Trans
	}
	gb := blas32.General{Rows: k, Cols: n, Stride: n, Data: b}
	tb := blas.NoTrans
	if transB {
		gb = blas32.General{Rows: n, Cols: k, Stride: k, Data: b}
		tb = blas.Trans
	}

	blas32.Gemm(ta, tb, 1, ga, gb, 0, blas32.General{Rows: m, Cols: n, Stride: n, Data: c})
}
