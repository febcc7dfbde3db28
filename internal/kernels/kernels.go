// Package kernels selects and runs the strategy behind each fusable
// operation: layer normalization, the position-wise feed-forward block and
// the dropout-residual add.
//
// Every operation has a reference strategy composed from tensor.Backend
// primitives and a fused strategy that delegates to a backend capability
// interface. Both expose the same Forward/Backward contract and agree within
// Tolerance. Selection is a pure function of the backend's capabilities and
// the caller's configuration, so a given device and configuration always
// take the same path.
package kernels

import (
	"math"

	"github.com/born-ml/babel/internal/tensor"
)

// Strategy names reported by the selected kernels.
const (
	Reference = "reference"
	Fused     = "fused"
)

// Tolerance is the agreement required between a fused strategy and its
// reference composition under zero dropout.
var Tolerance = struct {
	Relative float64
	Absolute float64
}{Relative: 1e-2, Absolute: 1e-3}

// AllClose reports whether a and b have equal shapes and agree element-wise
// within |a-b| <= atol + rtol·|b|.
func AllClose(a, b *tensor.Tensor, rtol, atol float64) bool {
	if !a.Shape().Equal(b.Shape()) {
		return false
	}
	bd := b.Data()
	for i, v := range a.Data() {
		if math.Abs(float64(v-bd[i])) > atol+rtol*math.Abs(float64(bd[i])) {
			return false
		}
	}
	return true
}

// Report names the strategy chosen for each fusable operation.
type Report struct {
	LayerNorm   string `json:"layer_norm"`
	FeedForward string `json:"feed_forward"`
	DropoutAdd  string `json:"dropout_add"`
}
