// Package nn implements the Transformer layer core of the translation model.
//
// The package provides:
//   - LayerConfig: immutable per-layer configuration, validated once
//   - Parameter and Module: named trainable tensors and their owners
//   - Linear and FactorizedLinear: shared and per-language projections
//   - LayerNorm and MultilingualLayerNorm
//   - Residual: the pre/post-processing pipeline around every sublayer
//   - FeedForward, SelfAttention and SourceAttention sublayers
//   - EncoderLayer and DecoderLayer: sublayer composition with layer drop
//   - IncrementalCache: per-session key/value state for decoding
//
// Activations are time-major: [seq, batch, model].
package nn

import (
	"fmt"
	"sort"

	"github.com/born-ml/babel/internal/tensor"
)

// Module is implemented by every component that owns parameters.
type Module interface {
	// Parameters returns all trainable parameters, including those of
	// nested components, in a stable order.
	Parameters() []*Parameter
}

// Trainable is implemented by components whose behavior depends on the
// training flag (dropout, layer drop).
type Trainable interface {
	SetTraining(training bool)
}

// StateDict returns a map from parameter name to tensor.
func StateDict(m Module) map[string]*tensor.Tensor {
	params := m.Parameters()
	state := make(map[string]*tensor.Tensor, len(params))
	for _, p := range params {
		state[p.Name()] = p.Tensor()
	}
	return state
}

// LoadStateDict copies tensors from state into the parameters of m.
//
// Every parameter must be present with a matching shape. Extra entries in
// state are reported as an error so a checkpoint from a different
// configuration cannot be loaded silently.
func LoadStateDict(m Module, state map[string]*tensor.Tensor) error {
	params := m.Parameters()
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		t, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("missing %s in state dict", p.Name())
		}
		if !t.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("%s shape mismatch: expected %v, got %v", p.Name(), p.Tensor().Shape(), t.Shape())
		}
		copy(p.Tensor().Data(), t.Data())
		seen[p.Name()] = true
	}

	var extra []string
	for name := range state {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("unexpected entries in state dict: %v", extra)
	}
	return nil
}

// CountParameters returns the number of scalar parameters in m.
func CountParameters(m Module) int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Tensor().Len()
	}
	return n
}

func collect(modules ...Module) []*Parameter {
	var params []*Parameter
	for _, m := range modules {
		if m == nil {
			continue
		}
		params = append(params, m.Parameters()...)
	}
	return params
}
