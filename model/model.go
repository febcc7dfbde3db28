// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model builds encoder-decoder translators from the layer core.
//
// Example:
//
//	t, err := model.New(model.Config{
//	    Layer:         layerCfg,
//	    EncoderLayers: 6,
//	    DecoderLayers: 6,
//	    SourceVocab:   32000,
//	    TargetVocab:   32000,
//	}, model.WithSeed(42))
//
//	session := t.NewSession(model.NewTokens(src, 0), nil, nil)
//	for _, ids := range steps {
//	    out := session.Step(ids)
//	    // out.Hidden [1, batch, model], out.Coverage [batch, heads, 1, src]
//	}
package model

import (
	"github.com/born-ml/babel/internal/logger"
	"github.com/born-ml/babel/internal/model"
	"github.com/born-ml/babel/tensor"
)

// Config describes a full translator.
type Config = model.Config

// Translator is an encoder-decoder model without output projection.
type Translator = model.Translator

// Session is one incremental decode over a fixed source.
type Session = model.Session

// DecoderOutput is the result of a decoder pass.
type DecoderOutput = model.DecoderOutput

// Tokens is a time-major block of token ids.
type Tokens = model.Tokens

// Option configures New.
type Option = model.Option

// Logger receives build diagnostics.
type Logger = logger.Logger

// New builds a translator. The returned error wraps nn.ErrConfig when cfg is
// invalid.
func New(cfg Config, opts ...Option) (*Translator, error) {
	return model.New(cfg, opts...)
}

// NewTokens pads batch-major sequences with padID and transposes them to
// time-major order.
func NewTokens(sequences [][]int, padID int) Tokens {
	return model.NewTokens(sequences, padID)
}

// WithBackend selects the tensor backend. The default is the fused CPU
// backend.
func WithBackend(b tensor.Backend) Option {
	return model.WithBackend(b)
}

// WithSeed seeds parameter initialisation and dropout.
func WithSeed(seed uint64) Option {
	return model.WithSeed(seed)
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l Logger) Option {
	return model.WithLogger(l)
}
