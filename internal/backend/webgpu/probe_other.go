//go:build !windows

package webgpu

import "fmt"

// Probe always fails: the go-webgpu bindings are only built on windows.
func Probe() (AdapterInfo, error) {
	return AdapterInfo{}, fmt.Errorf("%w: bindings are only built on windows", ErrUnavailable)
}
