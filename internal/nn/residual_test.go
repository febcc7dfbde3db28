package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/babel/internal/backend/cpu"
	"github.com/born-ml/babel/internal/tensor"
)

func TestResidualIdentity(t *testing.T) {
	g := tensor.NewGenerator(3)
	r := tensor.Randn(g, 1, 4, 2, 16)
	zero := tensor.Zeros(4, 2, 16)

	for _, tt := range []struct {
		name   string
		mutate func(*LayerConfig)
	}{
		{"pre-norm", nil},
		{"re-zero", func(c *LayerConfig) { c.ReZero = true }},
		{"variational", func(c *LayerConfig) { c.VariationalDropout = true }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.mutate)
			for _, b := range []tensor.Backend{cpu.New(), cpu.NewReference()} {
				res := NewResidual("res", cfg, b, g)
				res.SetTraining(true)
				got := res.Postprocess(zero, r, 1, nil)
				assert.Equal(t, r.Data(), got.Data(), "%s on %s", tt.name, b.Name())
			}
		})
	}
}

func TestResidualPostNormNormalizes(t *testing.T) {
	g := tensor.NewGenerator(4)
	cfg := testConfig(t, func(c *LayerConfig) { c.PostNorm = true })
	b := cpu.New()
	res := NewResidual("res", cfg, b, g)

	r := tensor.Randn(g, 3, 4, 2, 16)
	got := res.Postprocess(tensor.Zeros(4, 2, 16), r, 1, nil)
	want := NewLayerNorm("ln", 16, cfg.NormEps, b).Forward(r, nil)
	assertAllClose(t, want, got, 1e-5)
	assert.Equal(t, r, res.Preprocess(r, nil), "post-norm leaves the sublayer input alone")
}

func TestResidualScaleAndGate(t *testing.T) {
	g := tensor.NewGenerator(5)
	b := cpu.New()
	out := tensor.Full(2, 1, 1, 16)
	r := tensor.Ones(1, 1, 16)

	res := NewResidual("res", testConfig(t, nil), b, g)
	got := res.Postprocess(out, r, 0.5, nil)
	for _, v := range got.Data() {
		assert.InDelta(t, 2, v, 1e-6)
	}

	rz := NewResidual("res", testConfig(t, func(c *LayerConfig) { c.ReZero = true }), b, g)
	assert.Nil(t, rz.Norm())
	assert.Len(t, rz.Parameters(), 1)
	assert.Equal(t, r.Data(), rz.Postprocess(out, r, 1, nil).Data(), "gate starts at zero")

	rz.Parameters()[0].Tensor().Data()[0] = 0.25
	for _, v := range rz.Postprocess(out, r, 2, nil).Data() {
		assert.InDelta(t, 2, v, 1e-6)
	}
}

func TestResidualShapeMismatch(t *testing.T) {
	res := NewResidual("res", testConfig(t, nil), cpu.New(), tensor.NewGenerator(1))
	requireContract(t, func() {
		res.Postprocess(tensor.Zeros(2, 1, 16), tensor.Zeros(3, 1, 16), 1, nil)
	})
}

func TestMultilingualLayerNormRows(t *testing.T) {
	b := cpu.New()
	ln := NewMultilingualLayerNorm("ln", 4, 3, 1e-5, b)
	w := ln.Parameters()[0].Tensor().Data()
	bias := ln.Parameters()[1].Tensor().Data()
	for j := 0; j < 4; j++ {
		w[2*4+j] = 2
		bias[1*4+j] = 1
	}

	x := tensor.FromSlice([]float32{
		1, 2, 3, 4, 1, 2, 3, 4, 1, 2, 3, 4,
	}, 1, 3, 4)
	y := ln.Forward(x, LanguageID{0, 1, 2})
	plain := NewLayerNorm("plain", 4, 1e-5, b).Forward(x.Reshape(3, 4), nil)

	for j := 0; j < 4; j++ {
		assert.InDelta(t, plain.At(0, j), y.At(0, 0, j), 1e-5)
		assert.InDelta(t, plain.At(1, j)+1, y.At(0, 1, j), 1e-5)
		assert.InDelta(t, 2*plain.At(2, j), y.At(0, 2, j), 1e-5)
	}

	dy := tensor.Ones(1, 3, 4)
	ln.Backward(dy)
	dbias := ln.Parameters()[1].Grad()
	assert.InDelta(t, 1, dbias.At(0, 0), 1e-6)
	assert.InDelta(t, 1, dbias.At(2, 3), 1e-6)

	requireContract(t, func() { ln.Forward(x, LanguageID{0, 3, 1}) })
	requireContract(t, func() { ln.Forward(x, nil) })
}
