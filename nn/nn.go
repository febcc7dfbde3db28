// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/tensor"
)

// Errors.
var (
	ErrConfig   = nn.ErrConfig
	ErrContract = nn.ErrContract
)

// Module is anything that owns parameters.
type Module = nn.Module

// Trainable switches between training and evaluation behaviour.
type Trainable = nn.Trainable

// Parameter is a named trainable tensor.
type Parameter = nn.Parameter

// NewParameter creates a parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return nn.NewParameter(name, t)
}

// StateDict maps parameter names to their tensors.
func StateDict(m Module) map[string]*tensor.Tensor {
	return nn.StateDict(m)
}

// LoadStateDict copies state into the parameters of m.
func LoadStateDict(m Module, state map[string]*tensor.Tensor) error {
	return nn.LoadStateDict(m, state)
}

// CountParameters returns the number of scalar parameters of m.
func CountParameters(m Module) int {
	return nn.CountParameters(m)
}

// Configuration

// LayerConfig is the immutable configuration of one layer.
type LayerConfig = nn.LayerConfig

// PositionScheme selects how self-attention sees positions.
type PositionScheme = nn.PositionScheme

// Position schemes.
const (
	RelativeLearned = nn.RelativeLearned
	RelativeFixed   = nn.RelativeFixed
	Rotary          = nn.Rotary
)

// ParsePositionScheme maps a configuration name to a PositionScheme.
func ParsePositionScheme(name string) (PositionScheme, error) {
	return nn.ParsePositionScheme(name)
}

// LanguageID selects per-language parameters for each batch entry.
type LanguageID = nn.LanguageID

// Monolingual applies lang to every batch entry.
func Monolingual(lang int) LanguageID {
	return nn.Monolingual(lang)
}

// Attention inputs

// AttentionMask marks keys a query must not attend to.
type AttentionMask = nn.AttentionMask

// PaddingMask derives a key-padding mask from time-major token ids.
func PaddingMask(ids []int, seq, batch, padID int) []bool {
	return nn.PaddingMask(ids, seq, batch, padID)
}

// PositionEmbedding is the position information shared by every layer of
// one pass.
type PositionEmbedding = nn.PositionEmbedding

// NewPositionEmbedding builds position information for queryLen new
// positions after offset cached ones.
func NewPositionEmbedding(cfg LayerConfig, queryLen, offset int) *PositionEmbedding {
	return nn.NewPositionEmbedding(cfg, queryLen, offset)
}

// IncrementalCache is the state of one incremental decode session.
type IncrementalCache = nn.IncrementalCache

// NewIncrementalCache creates an empty cache.
func NewIncrementalCache() *IncrementalCache {
	return nn.NewIncrementalCache()
}

// Layers

// Source is the encoder output a decoder layer attends to.
type Source = nn.Source

// EncoderLayer is one encoder layer.
type EncoderLayer = nn.EncoderLayer

// NewEncoderLayer creates encoder layer index layer with parameter names
// under prefix.
func NewEncoderLayer(prefix string, layer int, cfg LayerConfig, b tensor.Backend, g *tensor.Generator) (*EncoderLayer, error) {
	return nn.NewEncoderLayer(prefix, layer, cfg, b, g)
}

// DecoderLayer is one decoder layer.
type DecoderLayer = nn.DecoderLayer

// NewDecoderLayer creates decoder layer index layer with parameter names
// under prefix.
func NewDecoderLayer(prefix string, layer int, cfg LayerConfig, b tensor.Backend, g *tensor.Generator) (*DecoderLayer, error) {
	return nn.NewDecoderLayer(prefix, layer, cfg, b, g)
}

// FeedForward is the position-wise feed-forward block.
type FeedForward = nn.FeedForward

// NewFeedForward creates a feed-forward block.
func NewFeedForward(prefix string, cfg LayerConfig, b tensor.Backend, g *tensor.Generator) (*FeedForward, error) {
	return nn.NewFeedForward(prefix, cfg, b, g)
}

// SelfAttention is multi-head self-attention.
type SelfAttention = nn.SelfAttention

// SourceAttention is multi-head attention over an encoder context.
type SourceAttention = nn.SourceAttention

// Residual wraps a sublayer with normalization, dropout and the skip
// connection.
type Residual = nn.Residual
