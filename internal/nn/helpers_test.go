package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/babel/internal/backend/cpu"
	"github.com/born-ml/babel/internal/tensor"
)

// testConfig returns a small resolved configuration. mutate may adjust it
// before resolution.
func testConfig(t *testing.T, mutate func(*LayerConfig)) LayerConfig {
	t.Helper()
	cfg := LayerConfig{
		ModelDim:            16,
		InnerDim:            32,
		Heads:               2,
		AttnDropout:         -1,
		ResidualDropout:     -1,
		FFNDropout:          -1,
		Activation:          tensor.ReLU,
		Position:            RelativeLearned,
		MaxRelativeDistance: 4,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	cfg, err := cfg.Resolve()
	require.NoError(t, err)
	return cfg
}

func requireContract(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a contract violation")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		assert.ErrorIs(t, err, ErrContract)
	}()
	fn()
}

func assertAllClose(t *testing.T, want, got *tensor.Tensor, tol float64, msgAndArgs ...any) {
	t.Helper()
	require.Equal(t, want.Shape(), got.Shape(), msgAndArgs...)
	for i, v := range want.Data() {
		assert.InDelta(t, v, got.Data()[i], tol, msgAndArgs...)
	}
}

// timeStep returns row t of x [seq, batch, model] as [1, batch, model].
func timeStep(x *tensor.Tensor, t int) *tensor.Tensor {
	return cpu.New().Narrow(x, 0, t, 1)
}
