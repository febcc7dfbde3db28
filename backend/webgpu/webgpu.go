// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu reports whether a WebGPU adapter is available.
package webgpu

import "github.com/born-ml/babel/internal/backend/webgpu"

// AdapterInfo describes a GPU adapter.
type AdapterInfo = webgpu.AdapterInfo

// ErrUnavailable is returned when no adapter can be opened.
var ErrUnavailable = webgpu.ErrUnavailable

// Probe opens the default adapter and describes it.
func Probe() (AdapterInfo, error) {
	return webgpu.Probe()
}

// IsAvailable reports whether Probe succeeds.
func IsAvailable() bool {
	return webgpu.IsAvailable()
}
