// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the Transformer layer core for multilingual
// translation models.
//
// # Overview
//
// Encoder and decoder layers are assembled from:
//   - residual wrappers (pre-norm, post-norm or ReZero) with dropout
//   - relative (learned or sinusoidal) or rotary self-attention
//   - source attention with a reusable projected context
//   - position-wise feed-forward blocks, optionally gated
//   - per-language factorized weights and layer norms
//   - stochastic layer drop
//
// # Basic Usage
//
//	cfg, err := nn.LayerConfig{
//	    ModelDim: 512, InnerDim: 2048, Heads: 8,
//	    Activation: tensor.GELU,
//	    Position: nn.RelativeLearned, MaxRelativeDistance: 64,
//	}.Resolve()
//	layer, err := nn.NewEncoderLayer("encoder.layers.0", 0, cfg, cpu.New(), tensor.NewGenerator(1))
//	pos := nn.NewPositionEmbedding(cfg, seq, 0)
//	y := layer.Forward(x, pos, mask, nil)
//
// # Errors
//
// Constructors return errors wrapping ErrConfig. Forward calls panic with an
// error wrapping ErrContract when inputs violate their documented shapes or
// when an incremental cache is misused.
package nn
