package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/babel/internal/tensor"
)

func TestMatMulTransposes(t *testing.T) {
	backend := New()
	a := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := tensor.FromSlice([]float32{7, 8, 9, 10, 11, 12}, 3, 2)

	c := backend.MatMul(a, b, false, false)
	assert.Equal(t, tensor.Shape{2, 2}, c.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, c.Data())

	// aᵀ·aᵀᵀ with explicit transposes gives the same product as the permuted inputs.
	at := backend.Permute(a, 1, 0)
	bt := backend.Permute(b, 1, 0)
	c2 := backend.MatMul(at, bt, true, true)
	assert.Equal(t, c.Data(), c2.Data())

	assert.Panics(t, func() { backend.MatMul(a, a, false, false) })
}

func TestBatchMatMul(t *testing.T) {
	backend := New()
	a := tensor.FromSlice([]float32{1, 0, 0, 1, 2, 0, 0, 2}, 2, 2, 2)
	b := tensor.FromSlice([]float32{1, 2, 3, 4, 1, 2, 3, 4}, 2, 2, 2)

	c := backend.BatchMatMul(a, b, false)
	assert.Equal(t, []float32{1, 2, 3, 4, 2, 4, 6, 8}, c.Data())

	ct := backend.BatchMatMul(a, b, true)
	assert.Equal(t, []float32{1, 3, 2, 4, 2, 6, 4, 8}, ct.Data())
}

func TestBroadcastAdd(t *testing.T) {
	backend := New()
	x := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 3, 1, 2)
	bias := tensor.FromSlice([]float32{10, 20}, 2)
	col := tensor.FromSlice([]float32{100, 200, 300}, 3, 1, 1)

	assert.Equal(t, []float32{11, 22, 13, 24, 15, 26}, backend.Add(x, bias).Data())
	assert.Equal(t, []float32{101, 102, 203, 204, 305, 306}, backend.Add(x, col).Data())

	// Column operand whose length equals the last dimension must not take the row fast path.
	sq := tensor.FromSlice([]float32{1, 2, 3, 4}, 2, 2)
	c2 := tensor.FromSlice([]float32{10, 20}, 2, 1)
	assert.Equal(t, []float32{11, 12, 23, 24}, backend.Add(sq, c2).Data())
}

func TestSoftmaxStable(t *testing.T) {
	backend := New()
	x := tensor.FromSlice([]float32{1, 2, -1e9, 1000, 1000, 1000}, 2, 3)
	y := backend.Softmax(x)

	assert.InDelta(t, 0.2689, y.At(0, 0), 1e-4)
	assert.InDelta(t, 0.7311, y.At(0, 1), 1e-4)
	assert.Equal(t, float32(0), y.At(0, 2))
	for j := 0; j < 3; j++ {
		assert.InDelta(t, 1.0/3, y.At(1, j), 1e-6)
	}
	assert.True(t, y.IsFinite())
}

func TestNarrowAndCat(t *testing.T) {
	backend := New()
	x := tensor.FromSlice([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, 2, 2, 3)

	left := backend.Narrow(x, -1, 0, 1)
	right := backend.Narrow(x, -1, 1, 2)
	assert.Equal(t, []float32{0, 3, 6, 9}, left.Data())

	back := backend.Cat(-1, left, right)
	assert.Equal(t, x.Data(), back.Data())

	seq := backend.Cat(0, x, x)
	assert.Equal(t, tensor.Shape{4, 2, 3}, seq.Shape())
}

func TestReductions(t *testing.T) {
	backend := New()
	x := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)

	assert.Equal(t, []float32{2, 5}, backend.MeanLastDim(x).Data())
	assert.Equal(t, []float32{5, 7, 9}, backend.ReduceRows(x).Data())
}

func TestDropoutMask(t *testing.T) {
	backend := New()
	g := tensor.NewGenerator(1)
	mask := backend.DropoutMask(tensor.Shape{1000}, 0.25, g)

	kept := 0
	for _, v := range mask.Data() {
		if v != 0 {
			assert.InDelta(t, 1/0.75, v, 1e-6)
			kept++
		}
	}
	assert.InDelta(t, 750, kept, 60)

	none := backend.DropoutMask(tensor.Shape{4}, 0, g)
	assert.Equal(t, []float32{1, 1, 1, 1}, none.Data())
}

func TestFusedLayerNormMatchesComposition(t *testing.T) {
	backend := New()
	g := tensor.NewGenerator(3)
	x := tensor.Randn(g, 1, 4, 8)
	w := tensor.Randn(g, 1, 8)
	b := tensor.Randn(g, 1, 8)

	y, mean, invStd := backend.FusedLayerNorm(x, w, b, 1e-5)
	require.Equal(t, 4, mean.Len())

	mu := backend.MeanLastDim(x)
	xc := backend.Sub(x, mu)
	inv := backend.Rsqrt(backend.MeanLastDim(backend.Mul(xc, xc)), 1e-5)
	ref := backend.Add(backend.Mul(backend.Mul(xc, inv), w), b)

	assert.InDeltaSlice(t, ref.Data(), y.Data(), 1e-4)
	assert.InDeltaSlice(t, inv.Data(), invStd.Data(), 1e-4)
}

func TestFusedDropoutAdd(t *testing.T) {
	backend := New()
	x := tensor.FromSlice([]float32{1, 2, 3}, 3)
	r := tensor.FromSlice([]float32{10, 10, 10}, 3)
	mask := tensor.FromSlice([]float32{0, 2, 2}, 3)

	assert.Equal(t, []float32{10, 12, 13}, backend.FusedDropoutAdd(x, r, mask, 0.5).Data())
	assert.Equal(t, []float32{11, 12, 13}, backend.FusedDropoutAdd(x, r, nil, 1).Data())
}

func TestReferenceHasNoFusedCapability(t *testing.T) {
	var b tensor.Backend = NewReference()
	_, ok := b.(tensor.FusedMLPBackend)
	assert.False(t, ok)

	b = New()
	_, ok = b.(tensor.FusedMLPBackend)
	assert.True(t, ok)
}
