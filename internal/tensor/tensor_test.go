package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{"equal", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{"column", Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"rank", Shape{5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"variational mask", Shape{1, 2, 4}, Shape{6, 2, 4}, Shape{6, 2, 4}, true, false},
		{"incompatible", Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.broadcast, broadcast)
		})
	}
}

func TestBroadcastStrides(t *testing.T) {
	assert.Equal(t, []int{0, 4, 1}, BroadcastStrides(Shape{1, 2, 4}, Shape{6, 2, 4}))
	assert.Equal(t, []int{0, 0, 1}, BroadcastStrides(Shape{4}, Shape{6, 2, 4}))
}

func TestReshapeSharesStorage(t *testing.T) {
	x := FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := x.Reshape(3, -1)

	assert.Equal(t, Shape{3, 2}, y.Shape())
	y.Set(42, 0, 1)
	assert.Equal(t, float32(42), x.At(0, 1))

	assert.Panics(t, func() { x.Reshape(4, 2) })
}

func TestIsFinite(t *testing.T) {
	x := Zeros(2, 2)
	assert.True(t, x.IsFinite())

	x.Set(float32(math.NaN()), 1, 1)
	assert.False(t, x.IsFinite())
}

func TestActivationDerivatives(t *testing.T) {
	const h = 1e-3
	for _, act := range []Activation{GELU, ApproxGELU, SiLU, Sigmoid} {
		for _, x := range []float32{-2, -0.5, 0.3, 1.7} {
			numeric := (act.Apply(x+h) - act.Apply(x-h)) / (2 * h)
			assert.InDelta(t, numeric, act.Derivative(x), 1e-2, "%s at %v", act, x)
		}
	}
}

func TestParseActivation(t *testing.T) {
	act, err := ParseActivation("swish")
	require.NoError(t, err)
	assert.Equal(t, SiLU, act)

	_, err = ParseActivation("tanh")
	assert.Error(t, err)
}

func TestGeneratorDeterministic(t *testing.T) {
	a := NewGenerator(7)
	b := NewGenerator(7)
	for range 10 {
		assert.Equal(t, a.Float32(), b.Float32())
	}
}
