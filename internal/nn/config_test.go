package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/babel/internal/tensor"
)

func TestResolveFallbacks(t *testing.T) {
	cfg := LayerConfig{
		ModelDim: 8, InnerDim: 16, Heads: 2,
		Dropout: 0.2, AttnDropout: -1, ResidualDropout: 0.1, FFNDropout: -1,
		Position: Rotary,
	}
	got, err := cfg.Resolve()
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got.AttnDropout, 1e-7)
	assert.InDelta(t, 0.1, got.ResidualDropout, 1e-7)
	assert.InDelta(t, 0.2, got.FFNDropout, 1e-7)
	assert.InDelta(t, DefaultNormEps, got.NormEps, 1e-12)
	assert.Equal(t, 4, got.HeadDim())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*LayerConfig)
	}{
		{"zero model width", func(c *LayerConfig) { c.ModelDim = 0 }},
		{"indivisible heads", func(c *LayerConfig) { c.Heads = 3 }},
		{"dropout of one", func(c *LayerConfig) { c.Dropout = 1 }},
		{"negative death rate", func(c *LayerConfig) { c.DeathRate = -0.1 }},
		{"sigmoid without glu", func(c *LayerConfig) { c.Activation = tensor.Sigmoid }},
		{"relative without distance", func(c *LayerConfig) { c.MaxRelativeDistance = 0 }},
		{"rotary odd head width", func(c *LayerConfig) {
			c.Position, c.ModelDim, c.Heads = Rotary, 6, 2
		}},
		{"factorized without languages", func(c *LayerConfig) { c.Factorized, c.FactorRank = true, 1 }},
		{"factorized without rank", func(c *LayerConfig) { c.Factorized, c.Languages = true, 2 }},
		{"multilingual norm without languages", func(c *LayerConfig) { c.MultilingualNorm = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LayerConfig{
				ModelDim: 8, InnerDim: 16, Heads: 2,
				Position: RelativeLearned, MaxRelativeDistance: 4,
			}
			tt.mutate(&cfg)
			_, err := cfg.Resolve()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestSigmoidWithGLUIsValid(t *testing.T) {
	cfg := testConfig(t, func(c *LayerConfig) {
		c.Activation = tensor.Sigmoid
		c.GLU = true
	})
	assert.NoError(t, cfg.Validate())
}

func TestParsePositionScheme(t *testing.T) {
	for name, want := range map[string]PositionScheme{
		"learned":        RelativeLearned,
		"relative":       RelativeFixed,
		"relative_fixed": RelativeFixed,
		"ROPE":           Rotary,
	} {
		got, err := ParsePositionScheme(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParsePositionScheme("absolute")
	assert.Error(t, err)
}

func TestConstructorsReturnConfigErrors(t *testing.T) {
	bad := LayerConfig{ModelDim: 8, InnerDim: 16, Heads: 3}
	_, err := NewEncoderLayer("enc.0", 0, bad, nil, tensor.NewGenerator(1))
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewDecoderLayer("dec.0", 0, bad, nil, tensor.NewGenerator(1))
	assert.ErrorIs(t, err, ErrConfig)
}
