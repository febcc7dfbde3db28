// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
//
// New returns a backend with fused layer norm, feed-forward and dropout-add
// kernels. NewReference returns the same primitives without them, which is
// useful to check fused results against their reference compositions.
//
//	import (
//	    "github.com/born-ml/babel/backend/cpu"
//	    "github.com/born-ml/babel/model"
//	)
//
//	t, err := model.New(cfg, model.WithBackend(cpu.New()))
package cpu

import (
	internalcpu "github.com/born-ml/babel/internal/backend/cpu"
	"github.com/born-ml/babel/tensor"
)

// Backend is the CPU backend with fused kernels.
type Backend = internalcpu.CPUBackend

// ReferenceBackend is the CPU backend without fused kernels.
type ReferenceBackend = internalcpu.ReferenceBackend

// Compile-time checks that both implement tensor.Backend.
var (
	_ tensor.Backend = (*Backend)(nil)
	_ tensor.Backend = (*ReferenceBackend)(nil)
)

// New creates a CPU backend with fused kernels.
func New() *Backend {
	return internalcpu.New()
}

// NewReference creates a CPU backend that only offers primitive operations.
func NewReference() *ReferenceBackend {
	return internalcpu.NewReference()
}
