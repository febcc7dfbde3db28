package model

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/babel/internal/backend/cpu"
	"github.com/born-ml/babel/internal/kernels"
	"github.com/born-ml/babel/internal/logger"
	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/internal/tensor"
)

func testModelConfig(mutate func(*Config)) Config {
	cfg := Config{
		Layer: nn.LayerConfig{
			ModelDim: 16, InnerDim: 32, Heads: 2,
			AttnDropout: -1, ResidualDropout: -1, FFNDropout: -1,
			Activation: tensor.ReLU,
			Position:   nn.RelativeLearned, MaxRelativeDistance: 8,
		},
		EncoderLayers: 2,
		DecoderLayers: 2,
		SourceVocab:   20,
		TargetVocab:   24,
		PadID:         0,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func requireContract(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a contract violation")
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, nn.ErrContract)
	}()
	fn()
}

func TestEncoderScenario(t *testing.T) {
	m, err := New(testModelConfig(nil), WithSeed(7))
	require.NoError(t, err)

	src := NewTokens([][]int{{3, 4, 5, 6, 7}, {8, 9, 10, 11, 12}}, 0)
	out := m.Encode(src, nil)
	assert.Equal(t, tensor.Shape{5, 2, 16}, out.Context.Shape())
	assert.True(t, out.Context.IsFinite())
}

func TestSessionMatchesFullDecode(t *testing.T) {
	for _, scheme := range []nn.PositionScheme{nn.RelativeLearned, nn.RelativeFixed, nn.Rotary} {
		t.Run(scheme.String(), func(t *testing.T) {
			m, err := New(testModelConfig(func(c *Config) { c.Layer.Position = scheme }), WithSeed(8))
			require.NoError(t, err)

			src := NewTokens([][]int{{3, 4, 5, 0}, {6, 7, 8, 9}}, 0)
			tgt := NewTokens([][]int{{1, 5, 7, 2}, {1, 9, 3, 4}}, 0)
			full := m.Forward(src, tgt, nil, nil)

			s := m.NewSession(src, nil, nil)
			b := cpu.New()
			for step := 0; step < tgt.Seq; step++ {
				out := s.Step(tgt.Step(step).IDs)
				require.Equal(t, tensor.Shape{1, 2, 16}, out.Hidden.Shape())
				want := b.Narrow(full.Hidden, 0, step, 1)
				assert.True(t, kernels.AllClose(out.Hidden, want, 1e-3, 1e-4), "step %d", step)
				assert.True(t, kernels.AllClose(out.Coverage, b.Narrow(full.Coverage, 2, step, 1), 1e-3, 1e-5))
			}
			assert.Equal(t, tgt.Seq, s.Len())
		})
	}
}

func TestSessionMasksTargetPads(t *testing.T) {
	m, err := New(testModelConfig(nil), WithSeed(8))
	require.NoError(t, err)

	// The first entry finishes early and is fed pads afterwards.
	src := NewTokens([][]int{{3, 4, 5}, {6, 7, 8}}, 0)
	tgt := NewTokens([][]int{{1, 5}, {1, 9, 3, 4}}, 0)
	full := m.Forward(src, tgt, nil, nil)

	s := m.NewSession(src, nil, nil)
	b := cpu.New()
	for step := 0; step < tgt.Seq; step++ {
		out := s.Step(tgt.Step(step).IDs)
		want := b.Narrow(full.Hidden, 0, step, 1)
		assert.True(t, kernels.AllClose(out.Hidden, want, 1e-3, 1e-4), "step %d", step)
	}
}

func TestFailedStepLeavesCacheUnchanged(t *testing.T) {
	m, err := New(testModelConfig(nil), WithSeed(12))
	require.NoError(t, err)

	src := m.Encode(NewTokens([][]int{{3, 4}}, 0), nil)
	wide := m.Encode(NewTokens([][]int{{3, 4}, {5, 6}}, 0), nil)
	cache := nn.NewIncrementalCache()
	step := Tokens{IDs: []int{1}, Seq: 1, Batch: 1}

	// Layer 0 self-attention runs before cross-attention rejects the source.
	requireContract(t, func() { m.Decoder().Step(step, wide, nil, cache, true) })
	for layer := range 2 {
		assert.Equal(t, 0, cache.SelfLen(layer))
	}
	assert.Empty(t, cache.Tokens())

	out := m.Decoder().Step(step, src, nil, cache, true)
	full := m.Decoder().Forward(step, src, nil)
	assert.True(t, kernels.AllClose(out.Hidden, full.Hidden, 1e-3, 1e-4))
	assert.Equal(t, 1, cache.SelfLen(1))
	assert.Equal(t, 1, cache.Steps())
}

func TestSourcePaddingIsMasked(t *testing.T) {
	m, err := New(testModelConfig(nil), WithSeed(9))
	require.NoError(t, err)
	src := NewTokens([][]int{{3, 4}, {5, 6, 7}}, 0)
	out := m.Forward(src, NewTokens([][]int{{1}, {1}}, 0), nil, nil)

	cov := out.Coverage
	require.Equal(t, tensor.Shape{2, 2, 1, 3}, cov.Shape())
	for h := 0; h < 2; h++ {
		assert.InDelta(t, 0, cov.At(0, h, 0, 2), 1e-7)
		assert.Greater(t, cov.At(1, h, 0, 2), float32(0))
	}
}

func TestDecoderCacheBelongsToOneDecoder(t *testing.T) {
	a, err := New(testModelConfig(nil), WithSeed(10))
	require.NoError(t, err)
	b, err := New(testModelConfig(nil), WithSeed(10))
	require.NoError(t, err)

	src := a.Encode(NewTokens([][]int{{3, 4}}, 0), nil)
	cache := nn.NewIncrementalCache()
	a.Decoder().Step(Tokens{IDs: []int{1}, Seq: 1, Batch: 1}, src, nil, cache, true)
	requireContract(t, func() {
		b.Decoder().Step(Tokens{IDs: []int{2}, Seq: 1, Batch: 1}, src, nil, cache, true)
	})
	requireContract(t, func() { a.Decoder().Step(Tokens{IDs: []int{2}, Seq: 1, Batch: 1}, src, nil, nil, true) })
}

func TestDeathRateSchedule(t *testing.T) {
	assert.InDelta(t, 0.1, layerDeathRate(0.4, 0, 4), 1e-7)
	assert.InDelta(t, 0.4, layerDeathRate(0.4, 3, 4), 1e-7)

	m, err := New(testModelConfig(func(c *Config) {
		c.Layer.DeathRate = 0.5
		c.Layer.StochasticSublayer = true
	}), WithSeed(11))
	require.NoError(t, err)
	m.SetTraining(true)
	src := NewTokens([][]int{{3, 4, 5}}, 0)
	for i := 0; i < 5; i++ {
		out := m.Forward(src, NewTokens([][]int{{1, 2}}, 0), nil, nil)
		assert.True(t, out.Hidden.IsFinite())
		assert.Equal(t, tensor.Shape{1, 2, 2, 3}, out.Coverage.Shape())
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no encoder layers", func(c *Config) { c.EncoderLayers = 0 }},
		{"no vocabulary", func(c *Config) { c.TargetVocab = 0 }},
		{"pad outside vocabulary", func(c *Config) { c.PadID = 20 }},
		{"shared embeddings of different sizes", func(c *Config) { c.ShareEmbeddings = true }},
		{"bad layer", func(c *Config) { c.Layer.Heads = 5 }},
		{"certain layer death", func(c *Config) { c.Layer.DeathRate = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(testModelConfig(tt.mutate))
			require.Error(t, err)
			assert.True(t, errors.Is(err, nn.ErrConfig), "%v", err)
		})
	}
}

func TestSharedEmbeddings(t *testing.T) {
	shared, err := New(testModelConfig(func(c *Config) {
		c.ShareEmbeddings = true
		c.TargetVocab = c.SourceVocab
	}))
	require.NoError(t, err)
	separate, err := New(testModelConfig(func(c *Config) { c.TargetVocab = c.SourceVocab }))
	require.NoError(t, err)

	assert.Equal(t, nn.CountParameters(separate)-20*16, nn.CountParameters(shared))

	seen := make(map[string]bool)
	for _, p := range shared.Parameters() {
		assert.False(t, seen[p.Name()], p.Name())
		seen[p.Name()] = true
	}
	assert.True(t, seen["encoder.norm.weight"])
	assert.True(t, seen["decoder.layers.1.src_attn.block.q_proj.weight"])
}

func TestKernelSelectionIsLogged(t *testing.T) {
	var buf bytes.Buffer
	_, err := New(testModelConfig(nil), WithBackend(cpu.NewReference()), WithLogger(logger.JSON(&buf, slog.LevelDebug)))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"kernel selection"`)
	assert.Contains(t, buf.String(), `"feed_forward":"reference"`)
	assert.Contains(t, buf.String(), `"msg":"model built"`)
}

func TestEmbedding(t *testing.T) {
	g := tensor.NewGenerator(12)
	e := NewEmbedding("embed", 5, 4, 0, 0, cpu.New(), g)
	out := e.Forward(Tokens{IDs: []int{0, 3}, Seq: 1, Batch: 2})
	require.Equal(t, tensor.Shape{1, 2, 4}, out.Shape())

	w := e.Parameters()[0].Tensor()
	for j := 0; j < 4; j++ {
		assert.InDelta(t, 0, out.At(0, 0, j), 0, "pad row is zero")
		assert.InDelta(t, 2*w.At(3, j), out.At(0, 1, j), 1e-6, "scaled by sqrt(4)")
	}

	requireContract(t, func() { e.Forward(Tokens{IDs: []int{5}, Seq: 1, Batch: 1}) })
	requireContract(t, func() { e.Forward(Tokens{IDs: []int{1, 2, 3}, Seq: 1, Batch: 2}) })
}

func TestNewTokens(t *testing.T) {
	tok := NewTokens([][]int{{1, 2, 3}, {4}}, 9)
	assert.Equal(t, 3, tok.Seq)
	assert.Equal(t, 2, tok.Batch)
	assert.Equal(t, []int{1, 4, 2, 9, 3, 9}, tok.IDs)
	assert.Equal(t, []int{2, 9}, tok.Step(1).IDs)
}
