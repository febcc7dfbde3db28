// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint stores model parameters in the safetensors layout.
//
//	if err := checkpoint.SaveModule("model.safetensors", t, nil); err != nil {
//	    return err
//	}
//	meta, err := checkpoint.Load("model.safetensors", t)
package checkpoint

import (
	"github.com/born-ml/babel/internal/checkpoint"
	"github.com/born-ml/babel/nn"
	"github.com/born-ml/babel/tensor"
)

// Errors.
var (
	ErrChecksumMismatch = checkpoint.ErrChecksumMismatch
	ErrUnsupportedDType = checkpoint.ErrUnsupportedDType
	ErrNotFound         = checkpoint.ErrNotFound
)

// Reader gives access to the tensors of one checkpoint file.
type Reader = checkpoint.Reader

// SaveModule writes every parameter of m to path.
func SaveModule(path string, m nn.Module, metadata map[string]string) error {
	return checkpoint.SaveModule(path, m, metadata)
}

// Open maps path and validates its header and checksum.
func Open(path string) (*Reader, error) {
	return checkpoint.Open(path)
}

// Load copies the checkpoint at path into the parameters of m and returns
// its metadata.
func Load(path string, m nn.Module) (map[string]string, error) {
	return checkpoint.Load(path, m)
}

// Save writes tensors under their names.
func Save(path string, tensors map[string]*tensor.Tensor, metadata map[string]string) error {
	return checkpoint.Save(path, tensors, metadata)
}
