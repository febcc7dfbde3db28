// Package cpu implements the tensor-math provider on the CPU.
//
// Two flavors are exported. New returns a backend that also implements the
// fused capability interfaces (layer norm, feed-forward, dropout-add), each as
// a single pass over the data. NewReference returns the same primitives
// without any fused capability, which is what a device lacking the fused
// kernels looks like to the layer core.
package cpu

import (
	"github.com/born-ml/babel/internal/parallel"
	"github.com/born-ml/babel/internal/tensor"
)

// primitives carries every tensor.Backend operation. It is embedded by both
// exported backends.
type primitives struct {
	device tensor.Device
	par    parallel.Config
}

// Device returns the compute device.
func (p primitives) Device() tensor.Device {
	return p.device
}

// CPUBackend implements tensor.Backend plus the fused capability interfaces.
type CPUBackend struct {
	primitives
}

// New creates a CPU backend with fused kernels.
func New() *CPUBackend {
	return &CPUBackend{primitives{device: tensor.CPU, par: parallel.DefaultConfig()}}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// ReferenceBackend implements tensor.Backend without fused kernels.
type ReferenceBackend struct {
	primitives
}

// NewReference creates a CPU backend that only offers the primitive
// operations, so every fused path falls back to its reference composition.
func NewReference() *ReferenceBackend {
	return &ReferenceBackend{primitives{device: tensor.CPU, par: parallel.DefaultConfig()}}
}

// Name returns the backend name.
func (r *ReferenceBackend) Name() string {
	return "CPU (reference)"
}

// Compile-time interface checks.
var (
	_ tensor.Backend                = (*CPUBackend)(nil)
	_ tensor.FusedLayerNormBackend  = (*CPUBackend)(nil)
	_ tensor.FusedMLPBackend        = (*CPUBackend)(nil)
	_ tensor.FusedDropoutAddBackend = (*CPUBackend)(nil)
	_ tensor.Backend                = (*ReferenceBackend)(nil)
)
