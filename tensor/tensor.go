// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/babel/internal/tensor"

// Tensor is a dense row-major float32 tensor.
type Tensor = tensor.Tensor

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// Backend is the tensor-math provider contract.
type Backend = tensor.Backend

// Device identifies where a backend computes.
type Device = tensor.Device

// Generator is a seeded random source for initialisation and dropout.
type Generator = tensor.Generator

// Activation is an element-wise nonlinearity.
type Activation = tensor.Activation

// Devices.
const (
	CPU    = tensor.CPU
	WebGPU = tensor.WebGPU
)

// Activations.
const (
	ReLU       = tensor.ReLU
	GELU       = tensor.GELU
	ApproxGELU = tensor.ApproxGELU
	SiLU       = tensor.SiLU
	Sigmoid    = tensor.Sigmoid
)

// Zeros creates a zero-filled tensor.
func Zeros(shape ...int) *Tensor {
	return tensor.Zeros(shape...)
}

// Ones creates a tensor filled with ones.
func Ones(shape ...int) *Tensor {
	return tensor.Ones(shape...)
}

// FromSlice copies data into a tensor with the given shape.
//
// Example:
//
//	x := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
func FromSlice(data []float32, shape ...int) *Tensor {
	return tensor.FromSlice(data, shape...)
}

// Randn draws from N(0, std²).
func Randn(g *Generator, std float32, shape ...int) *Tensor {
	return tensor.Randn(g, std, shape...)
}

// NewGenerator creates a seeded generator.
func NewGenerator(seed uint64) *Generator {
	return tensor.NewGenerator(seed)
}

// ParseActivation maps a configuration name to an Activation.
func ParseActivation(name string) (Activation, error) {
	return tensor.ParseActivation(name)
}
