package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/babel/internal/backend/cpu"
	"github.com/born-ml/babel/internal/kernels"
	"github.com/born-ml/babel/internal/tensor"
)

func TestEncoderLayerVariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*LayerConfig)
	}{
		{"pre-norm", nil},
		{"post-norm", func(c *LayerConfig) { c.PostNorm = true }},
		{"re-zero", func(c *LayerConfig) { c.ReZero = true }},
		{"macaron", func(c *LayerConfig) { c.Macaron = true }},
		{"glu silu", func(c *LayerConfig) { c.GLU, c.Activation = true, tensor.SiLU }},
		{"rotary", func(c *LayerConfig) { c.Position = Rotary }},
		{"relative fixed", func(c *LayerConfig) { c.Position = RelativeFixed }},
		{"multilingual", func(c *LayerConfig) {
			c.Factorized, c.MultilingualNorm, c.Languages, c.FactorRank = true, true, 3, 2
			c.MultiplicativeFactor = true
		}},
		{"dropout", func(c *LayerConfig) { c.Dropout, c.VariationalDropout = 0.1, true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.mutate)
			g := tensor.NewGenerator(41)
			l, err := NewEncoderLayer("encoder.layers.0", 0, cfg, cpu.New(), g)
			require.NoError(t, err)

			x := tensor.Randn(g, 1, 5, 2, 16)
			pos := NewPositionEmbedding(cfg, 5, 0)
			lang := LanguageID{2, 0}
			for _, training := range []bool{false, true} {
				l.SetTraining(training)
				y := l.Forward(x, pos, nil, lang)
				assert.Equal(t, tensor.Shape{5, 2, 16}, y.Shape())
				assert.True(t, y.IsFinite())
			}
		})
	}
}

func TestEncoderLayerMultilingualNeedsLanguages(t *testing.T) {
	cfg := testConfig(t, func(c *LayerConfig) { c.MultilingualNorm, c.Languages = true, 2 })
	g := tensor.NewGenerator(42)
	l, err := NewEncoderLayer("enc", 0, cfg, cpu.New(), g)
	require.NoError(t, err)
	x := tensor.Randn(g, 1, 3, 2, 16)
	requireContract(t, func() { l.Forward(x, NewPositionEmbedding(cfg, 3, 0), nil, nil) })
	requireContract(t, func() { l.Forward(x, NewPositionEmbedding(cfg, 3, 0), nil, LanguageID{0, 2}) })
}

func TestDeathRateZeroAlwaysExecutes(t *testing.T) {
	cfg := testConfig(t, func(c *LayerConfig) { c.StochasticSublayer = true })
	g1, g2 := tensor.NewGenerator(43), tensor.NewGenerator(43)
	l, err := NewEncoderLayer("enc", 0, cfg, cpu.New(), g1)
	require.NoError(t, err)
	_, err = NewEncoderLayer("enc", 0, cfg, cpu.New(), g2)
	require.NoError(t, err)

	x := tensor.Randn(tensor.NewGenerator(1), 1, 4, 2, 16)
	pos := NewPositionEmbedding(cfg, 4, 0)

	want := l.Forward(x, pos, nil, nil)
	l.SetTraining(true)
	got := l.Forward(x, pos, nil, nil)
	assert.Equal(t, want.Data(), got.Data())
	assert.Equal(t, g2.Float32(), g1.Float32(), "no coins are drawn at death rate 0")
}

func TestLayerDropCoins(t *testing.T) {
	t.Run("one coin gates the layer", func(t *testing.T) {
		g1, g2 := tensor.NewGenerator(44), tensor.NewGenerator(44)
		d := layerDrop{rate: 0.5, training: true, rng: g1}
		c := d.coins()
		first := c.next()
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, c.next())
		}
		assert.Equal(t, g2.Keep(0.5), first)
		assert.Equal(t, g2.Float32(), g1.Float32())
	})

	t.Run("stochastic sublayers toss each time", func(t *testing.T) {
		g1, g2 := tensor.NewGenerator(45), tensor.NewGenerator(45)
		d := layerDrop{rate: 0.5, stochastic: true, training: true, rng: g1}
		c := d.coins()
		for i := 0; i < 4; i++ {
			assert.Equal(t, g2.Keep(0.5), c.next())
		}
	})

	t.Run("inactive", func(t *testing.T) {
		d := layerDrop{rate: 0.5, rng: tensor.NewGenerator(46)}
		assert.True(t, d.coins().next())
		assert.InDelta(t, 1, d.scale(), 0)
		d.training = true
		assert.InDelta(t, 2, d.scale(), 1e-6)
	})
}

func TestLayerDropRescalesExecutedSublayers(t *testing.T) {
	cfg := testConfig(t, func(c *LayerConfig) { c.DeathRate = 0.5 })
	g := tensor.NewGenerator(47)
	l, err := NewEncoderLayer("enc", 0, cfg, cpu.New(), g)
	require.NoError(t, err)

	x := tensor.Randn(tensor.NewGenerator(2), 1, 3, 2, 16)
	pos := NewPositionEmbedding(cfg, 3, 0)

	// The manual composition draws no random numbers: dropout is 0 and the
	// training flag stays off while it runs.
	manual := func() *tensor.Tensor {
		out, _ := l.selfAttn.Forward(l.attnRes.Preprocess(x, nil), pos, nil, nil)
		y := l.attnRes.Postprocess(out, x, 2, nil)
		return l.ffnRes.Postprocess(l.ffn.Forward(l.ffnRes.Preprocess(y, nil), nil), y, 2, nil)
	}()

	var executed, skipped bool
	l.SetTraining(true)
	for i := 0; i < 200 && !(executed && skipped); i++ {
		y := l.Forward(x, pos, nil, nil)
		if assert.ObjectsAreEqual(x.Data(), y.Data()) {
			skipped = true
			continue
		}
		executed = true
		assertAllClose(t, manual, y, 1e-5)
	}
	assert.True(t, executed, "layer never executed")
	assert.True(t, skipped, "layer was never skipped")
}

func TestDecoderLayerCoverage(t *testing.T) {
	const tgt, src, batch = 3, 4, 2
	g := tensor.NewGenerator(48)
	x := tensor.Randn(g, 1, tgt, batch, 16)
	source := Source{Context: tensor.Randn(g, 1, src, batch, 16)}
	causal := &AttentionMask{Causal: true}

	t.Run("eval", func(t *testing.T) {
		cfg := testConfig(t, nil)
		l, err := NewDecoderLayer("dec", 0, cfg, cpu.New(), g)
		require.NoError(t, err)
		y, cov := l.Forward(x, source, NewPositionEmbedding(cfg, tgt, 0), causal, nil)
		assert.Equal(t, tensor.Shape{tgt, batch, 16}, y.Shape())
		require.Equal(t, tensor.Shape{batch, 2, tgt, src}, cov.Shape())
		var sum float32
		for _, v := range cov.Data() {
			sum += v
		}
		assert.InDelta(t, batch*2*tgt, sum, 1e-3, "each coverage row is a distribution")
	})

	t.Run("skipped source attention", func(t *testing.T) {
		cfg := testConfig(t, func(c *LayerConfig) { c.DeathRate, c.StochasticSublayer = 0.9, true })
		l, err := NewDecoderLayer("dec", 0, cfg, cpu.New(), g)
		require.NoError(t, err)
		l.SetTraining(true)

		var zero, nonZero bool
		for i := 0; i < 200 && !(zero && nonZero); i++ {
			_, cov := l.Forward(x, source, NewPositionEmbedding(cfg, tgt, 0), causal, nil)
			require.Equal(t, tensor.Shape{batch, 2, tgt, src}, cov.Shape())
			allZero := true
			for _, v := range cov.Data() {
				if v != 0 {
					allZero = false
					break
				}
			}
			zero = zero || allZero
			nonZero = nonZero || !allZero
		}
		assert.True(t, zero, "source attention was never skipped")
		assert.True(t, nonZero, "source attention never ran")
	})

	t.Run("ignore source", func(t *testing.T) {
		cfg := testConfig(t, func(c *LayerConfig) { c.IgnoreSource = true })
		l, err := NewDecoderLayer("dec", 0, cfg, cpu.New(), g)
		require.NoError(t, err)
		y, cov := l.Forward(x, Source{}, NewPositionEmbedding(cfg, tgt, 0), causal, nil)
		assert.Nil(t, cov)
		assert.Equal(t, tensor.Shape{tgt, batch, 16}, y.Shape())
		for _, p := range l.Parameters() {
			assert.NotContains(t, p.Name(), "src_attn")
		}
	})

	t.Run("missing context", func(t *testing.T) {
		cfg := testConfig(t, nil)
		l, err := NewDecoderLayer("dec", 0, cfg, cpu.New(), g)
		require.NoError(t, err)
		requireContract(t, func() { l.Forward(x, Source{}, NewPositionEmbedding(cfg, tgt, 0), causal, nil) })
	})
}

func TestDecoderLayerIncrementalMatchesFull(t *testing.T) {
	for _, scheme := range []PositionScheme{RelativeLearned, RelativeFixed, Rotary} {
		t.Run(scheme.String(), func(t *testing.T) {
			cfg := testConfig(t, func(c *LayerConfig) { c.Position, c.Macaron = scheme, true })
			g := tensor.NewGenerator(49)
			l, err := NewDecoderLayer("dec", 3, cfg, cpu.New(), g)
			require.NoError(t, err)

			const tgt, src, batch = 5, 4, 2
			x := tensor.Randn(g, 1, tgt, batch, 16)
			padding := make([]bool, batch*src)
			padding[src-1] = true
			source := Source{Context: tensor.Randn(g, 1, src, batch, 16), Mask: &AttentionMask{KeyPadding: padding}}
			causal := &AttentionMask{Causal: true}

			full, fullCov := l.Forward(x, source, NewPositionEmbedding(cfg, tgt, 0), causal, nil)

			cache := NewIncrementalCache()
			for step := 0; step < tgt; step++ {
				pos := NewPositionEmbedding(cfg, 1, cache.SelfLen(3))
				y, cov := l.ForwardIncremental(timeStep(x, step), source, pos, causal, nil, true, cache)
				assertAllClose(t, timeStep(full, step), y, 1e-4, "step %d", step)
				assertAllClose(t, cpu.New().Narrow(fullCov, 2, step, 1), cov, 1e-5, "coverage step %d", step)
			}
		})
	}
}

func TestLayerParameterNames(t *testing.T) {
	cfg := testConfig(t, func(c *LayerConfig) { c.Macaron = true })
	l, err := NewDecoderLayer("decoder.layers.1", 1, cfg, cpu.New(), tensor.NewGenerator(50))
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, p := range l.Parameters() {
		assert.False(t, seen[p.Name()], "duplicate %s", p.Name())
		seen[p.Name()] = true
	}
	for _, name := range []string{
		"decoder.layers.1.macaron_ffn.norm.weight",
		"decoder.layers.1.macaron_ffn.block.in_proj.weight",
		"decoder.layers.1.self_attn.block.in_proj.weight",
		"decoder.layers.1.self_attn.block.pos_table",
		"decoder.layers.1.self_attn.block.r_w_bias",
		"decoder.layers.1.src_attn.block.kv_proj.bias",
		"decoder.layers.1.ffn.norm.bias",
		"decoder.layers.1.ffn.block.out_proj.weight",
	} {
		assert.True(t, seen[name], "missing %s", name)
	}
}

func TestLayerKernelReport(t *testing.T) {
	cfg := testConfig(t, nil)
	fused, err := NewEncoderLayer("enc", 0, cfg, cpu.New(), tensor.NewGenerator(51))
	require.NoError(t, err)
	assert.Equal(t, kernels.Report{
		LayerNorm: kernels.Fused, FeedForward: kernels.Fused, DropoutAdd: kernels.Fused,
	}, fused.KernelReport())

	ref, err := NewDecoderLayer("dec", 0, cfg, cpu.NewReference(), tensor.NewGenerator(51))
	require.NoError(t, err)
	assert.Equal(t, kernels.Report{
		LayerNorm: kernels.Reference, FeedForward: kernels.Reference, DropoutAdd: kernels.Reference,
	}, ref.KernelReport())

	rz, err := NewEncoderLayer("enc", 0, testConfig(t, func(c *LayerConfig) {
		c.ReZero, c.GLU = true, true
	}), cpu.New(), tensor.NewGenerator(51))
	require.NoError(t, err)
	assert.Equal(t, "none", rz.KernelReport().LayerNorm)
	assert.Equal(t, kernels.Reference, rz.KernelReport().FeedForward)
}
