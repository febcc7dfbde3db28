package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/internal/tensor"
)

const minimalYAML = `
model:
  model_dim: 16
  inner_dim: 32
  heads: 2
  encoder_layers: 2
  decoder_layers: 2
  source_vocab: 100
  target_vocab: 120
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAMLDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "babel.yaml", minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultServerAddress, cfg.Server.Address)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, uint64(DefaultSeed), cfg.Seed())

	mc, err := cfg.ModelConfig()
	require.NoError(t, err)
	assert.Equal(t, 16, mc.Layer.ModelDim)
	assert.Equal(t, tensor.ReLU, mc.Layer.Activation)
	assert.Equal(t, nn.RelativeLearned, mc.Layer.Position)
	assert.Equal(t, DefaultMaxRelativeDistance, mc.Layer.MaxRelativeDistance)
	assert.InDelta(t, nn.DefaultNormEps, mc.Layer.NormEps, 1e-12)
}

func TestDropoutFallbacks(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML+"  dropout: 0.3\n  attention_dropout: 0.1\n"), ".yml")
	require.NoError(t, err)
	mc, err := cfg.ModelConfig()
	require.NoError(t, err)

	assert.InDelta(t, 0.1, mc.Layer.AttnDropout, 1e-7)
	assert.InDelta(t, 0.3, mc.Layer.ResidualDropout, 1e-7)
	assert.InDelta(t, 0.3, mc.Layer.FFNDropout, 1e-7)
}

func TestLoadJSON(t *testing.T) {
	content := `{
		"model": {
			"model_dim": 16, "inner_dim": 32, "heads": 4,
			"encoder_layers": 1, "decoder_layers": 3,
			"source_vocab": 50, "target_vocab": 50, "share_embeddings": true,
			"activation": "swish", "glu": true, "position": "rotary", "seed": 42
		},
		"log": {"level": "debug", "format": "json"}
	}`
	cfg, err := Load(writeFile(t, "babel.json", content))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cfg.Seed())
	assert.Equal(t, "json", cfg.Log.Format)

	mc, err := cfg.ModelConfig()
	require.NoError(t, err)
	assert.Equal(t, nn.Rotary, mc.Layer.Position)
	assert.Equal(t, tensor.SiLU, mc.Layer.Activation)
	assert.True(t, mc.Layer.GLU)
	assert.True(t, mc.ShareEmbeddings)
	assert.Equal(t, 3, mc.DecoderLayers)
}

func TestRejectedFiles(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		target  error
	}{
		{"unknown yaml key", "a.yaml", minimalYAML + "  attention_heads: 4\n", nn.ErrConfig},
		{"unknown json key", "a.json", `{"model": {"model_dim": 16}, "extra": 1}`, nn.ErrConfig},
		{"missing size", "a.yaml", "model:\n  model_dim: 16\n", ErrMissingOption},
		{"empty file", "a.yaml", "", ErrMissingOption},
		{"unknown activation", "a.yaml", minimalYAML + "  activation: tanh\n", nn.ErrConfig},
		{"unknown position", "a.yaml", minimalYAML + "  position: absolute\n", nn.ErrConfig},
		{"distance with rotary", "a.yaml", minimalYAML + "  position: rotary\n  max_relative_distance: 8\n", nn.ErrConfig},
		{"invalid layer", "a.yaml", minimalYAML + "  dropout: 1.5\n", nn.ErrConfig},
		{"pad outside vocabulary", "a.yaml", minimalYAML + "  pad_id: 100\n", nn.ErrConfig},
		{"unsupported format", "a.toml", "model = 1", ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
