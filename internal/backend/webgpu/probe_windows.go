//go:build windows

package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"
)

// Probe opens the default adapter, reads its description and releases it.
func Probe() (info AdapterInfo, err error) {
	// wgpu panics when the native library cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			info, err = AdapterInfo{}, fmt.Errorf("%w: native library: %v", ErrUnavailable, r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return AdapterInfo{}, fmt.Errorf("%w: create instance: %w", ErrUnavailable, err)
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return AdapterInfo{}, fmt.Errorf("%w: request adapter: %w", ErrUnavailable, err)
	}
	defer adapter.Release()

	ai, err := adapter.GetInfo()
	if err != nil {
		return AdapterInfo{}, fmt.Errorf("%w: adapter info: %w", ErrUnavailable, err)
	}
	return AdapterInfo{
		Vendor:       ai.Vendor,
		Device:       ai.Device,
		Description:  ai.Description,
		Architecture: ai.Architecture,
		Backend:      fmt.Sprint(ai.BackendType),
		VendorID:     ai.VendorID,
		DeviceID:     ai.DeviceID,
	}, nil
}
