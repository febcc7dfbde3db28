// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/babel/backend/cpu"
	"github.com/born-ml/babel/nn"
	"github.com/born-ml/babel/tensor"
)

func layerConfig(t *testing.T) nn.LayerConfig {
	t.Helper()
	cfg, err := nn.LayerConfig{
		ModelDim:            8,
		InnerDim:            16,
		Heads:               2,
		AttnDropout:         -1,
		ResidualDropout:     -1,
		FFNDropout:          -1,
		Activation:          tensor.GELU,
		Position:            nn.RelativeFixed,
		MaxRelativeDistance: 4,
	}.Resolve()
	require.NoError(t, err)
	return cfg
}

func TestEncoderLayerPublicAPI(t *testing.T) {
	cfg := layerConfig(t)
	layer, err := nn.NewEncoderLayer("encoder.layers.0", 0, cfg, cpu.New(), tensor.NewGenerator(1))
	require.NoError(t, err)

	x := tensor.Randn(tensor.NewGenerator(2), 1, 5, 3, 8)
	pos := nn.NewPositionEmbedding(cfg, 5, 0)
	y := layer.Forward(x, pos, nil, nil)

	assert.Equal(t, tensor.Shape{5, 3, 8}, y.Shape())
	assert.True(t, y.IsFinite())
}

func TestStateDictRoundTrip(t *testing.T) {
	cfg := layerConfig(t)
	src, err := nn.NewDecoderLayer("decoder.layers.0", 0, cfg, cpu.New(), tensor.NewGenerator(1))
	require.NoError(t, err)
	dst, err := nn.NewDecoderLayer("decoder.layers.0", 0, cfg, cpu.New(), tensor.NewGenerator(9))
	require.NoError(t, err)

	require.NoError(t, nn.LoadStateDict(dst, nn.StateDict(src)))
	want := nn.StateDict(src)
	for name, got := range nn.StateDict(dst) {
		assert.Equal(t, want[name].Data(), got.Data(), name)
	}
	assert.Equal(t, nn.CountParameters(src), nn.CountParameters(dst))
}

func TestInvalidLayerConfig(t *testing.T) {
	cfg := layerConfig(t)
	cfg.Heads = 3
	_, err := nn.NewEncoderLayer("encoder.layers.0", 0, cfg, cpu.New(), tensor.NewGenerator(1))
	assert.ErrorIs(t, err, nn.ErrConfig)
}
