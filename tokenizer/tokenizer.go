// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer turns text into token ids for smoke runs and
// diagnostics.
package tokenizer

import "github.com/born-ml/babel/internal/tokenizer"

// Tokenizer converts text to token ids.
type Tokenizer = tokenizer.Tokenizer

// TikToken wraps a tiktoken encoding.
type TikToken = tokenizer.TikToken

// Folded maps base ids into a smaller vocabulary.
type Folded = tokenizer.Folded

// NewTikToken loads a tiktoken encoding such as "cl100k_base".
func NewTikToken(encoding string) (*TikToken, error) {
	return tokenizer.NewTikToken(encoding)
}

// NewFolded wraps base for a vocabulary of vocab ids, keeping the first
// reserved ids for special tokens.
func NewFolded(base Tokenizer, vocab, reserved int) (*Folded, error) {
	return tokenizer.NewFolded(base, vocab, reserved)
}
