package webgpu

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbe(t *testing.T) {
	info, err := Probe()
	if err != nil {
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.False(t, IsAvailable())
		if runtime.GOOS != "windows" {
			return
		}
		t.Skipf("WebGPU not available: %v", err)
	}
	t.Logf("adapter: %s", info)
	assert.NotEmpty(t, info.Backend)
}

func TestAdapterInfoString(t *testing.T) {
	info := AdapterInfo{Vendor: "acme", Device: "gpu0", Backend: "Vulkan"}
	assert.Equal(t, "gpu0 (acme, Vulkan)", info.String())
}
