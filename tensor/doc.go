// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense float32 tensors and the backend contract
// the layer core computes with.
//
// # Overview
//
// Tensors are row-major and own their data. Layer activations are
// time-major [seq, batch, model]; attention weights are
// [batch, heads, query, key].
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/babel/backend/cpu"
//	    "github.com/born-ml/babel/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    g := tensor.NewGenerator(1)
//	    x := tensor.Randn(g, 1, 5, 2, 16)
//	    y := backend.Softmax(x)
//	}
//
// # Backends
//
// A Backend provides the primitive operations. Backends may also implement
// fused capability interfaces; layers detect them once at construction and
// fall back to compositions of primitives when they are missing.
package tensor
