// Package webgpu probes for a WebGPU adapter through go-webgpu.
//
// The layer core runs on the CPU backend. The probe reports whether a GPU
// adapter could host fused kernels and is surfaced by `babel inspect`.
package webgpu

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when no WebGPU adapter can be opened.
var ErrUnavailable = errors.New("webgpu: not available")

// AdapterInfo describes a GPU adapter.
type AdapterInfo struct {
	Vendor       string `json:"vendor"`
	Device       string `json:"device"`
	Description  string `json:"description,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	Backend      string `json:"backend"`
	VendorID     uint32 `json:"vendor_id"`
	DeviceID     uint32 `json:"device_id"`
}

// String returns "device (vendor, backend)".
func (a AdapterInfo) String() string {
	return fmt.Sprintf("%s (%s, %s)", a.Device, a.Vendor, a.Backend)
}

// IsAvailable reports whether Probe succeeds.
func IsAvailable() bool {
	_, err := Probe()
	return err == nil
}
