package checkpoint

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/babel/internal/backend/cpu"
	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/internal/tensor"
)

func testLayer(t *testing.T, seed uint64) *nn.EncoderLayer {
	t.Helper()
	cfg, err := nn.LayerConfig{
		ModelDim: 8, InnerDim: 16, Heads: 2,
		Position: nn.RelativeLearned, MaxRelativeDistance: 3,
	}.Resolve()
	require.NoError(t, err)
	l, err := nn.NewEncoderLayer("encoder.layers.0", 0, cfg, cpu.New(), tensor.NewGenerator(seed))
	require.NoError(t, err)
	return l
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layer.safetensors")
	src := testLayer(t, 1)
	require.NoError(t, SaveModule(path, src, map[string]string{"model": "test"}))

	dst := testLayer(t, 2)
	meta, err := Load(path, dst)
	require.NoError(t, err)
	assert.Equal(t, "test", meta["model"])
	assert.Len(t, meta[ChecksumKey], 64)

	want := nn.StateDict(src)
	for name, got := range nn.StateDict(dst) {
		assert.Equal(t, want[name].Shape(), got.Shape(), name)
		assert.Equal(t, want[name].Data(), got.Data(), name)
	}
}

func TestReaderAccessors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.safetensors")
	require.NoError(t, Save(path, map[string]*tensor.Tensor{
		"b":     tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3),
		"a":     tensor.Full(7, 2),
		"empty": tensor.Zeros(0, 4),
	}, nil))

	r, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "empty"}, r.Names())

	info, ok := r.Info("b")
	require.True(t, ok)
	assert.Equal(t, [2]int64{8, 32}, info.DataOffsets)

	b, err := r.Tensor("b")
	require.NoError(t, err)
	assert.InDelta(t, 6, b.At(1, 2), 0)

	empty, err := r.Tensor("empty")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{0, 4}, empty.Shape())

	_, err = r.Tensor("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, b.Data(), "copies survive Close")
	_, err = r.Tensor("a")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.safetensors")
	require.NoError(t, Save(path, map[string]*tensor.Tensor{"w": tensor.Ones(4)}, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestLoadIntoMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.safetensors")
	require.NoError(t, Save(path, map[string]*tensor.Tensor{"w": tensor.Ones(4)}, nil))
	_, err := Load(path, testLayer(t, 1))
	assert.Error(t, err)
}

func writeRaw(t *testing.T, header map[string]any, dataSize int) string {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)
	buf := make([]byte, 8, 8+len(headerJSON)+dataSize)
	binary.LittleEndian.PutUint64(buf, uint64(len(headerJSON)))
	buf = append(buf, headerJSON...)
	buf = append(buf, make([]byte, dataSize)...)
	path := filepath.Join(t.TempDir(), "raw.safetensors")
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func TestHeaderValidation(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]any
		size   int
		typ    string
	}{
		{
			name: "overlap",
			header: map[string]any{
				"a": TensorInfo{DType: DTypeF32, Shape: []int{2}, DataOffsets: [2]int64{0, 8}},
				"b": TensorInfo{DType: DTypeF32, Shape: []int{2}, DataOffsets: [2]int64{4, 12}},
			},
			size: 12,
			typ:  "offset_overlap",
		},
		{
			name: "out of bounds",
			header: map[string]any{
				"a": TensorInfo{DType: DTypeF32, Shape: []int{4}, DataOffsets: [2]int64{0, 16}},
			},
			size: 8,
			typ:  "out_of_bounds",
		},
		{
			name: "size mismatch",
			header: map[string]any{
				"a": TensorInfo{DType: DTypeF32, Shape: []int{3}, DataOffsets: [2]int64{0, 8}},
			},
			size: 8,
			typ:  "size_mismatch",
		},
		{
			name: "path traversal",
			header: map[string]any{
				"../a": TensorInfo{DType: DTypeF32, Shape: []int{1}, DataOffsets: [2]int64{0, 4}},
			},
			size: 4,
			typ:  "invalid_name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(writeRaw(t, tt.header, tt.size))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.typ, verr.Type)
		})
	}

	_, err := Open(writeRaw(t, map[string]any{
		"a": map[string]any{"dtype": "F16", "shape": []int{1}, "data_offsets": []int{0, 2}},
	}, 2))
	assert.ErrorIs(t, err, ErrUnsupportedDType)

	_, err = Open(writeRaw(t, map[string]any{
		"a": map[string]any{"dtype": "F32", "shape": []int{1}, "data_offsets": []int{0, 4}, "extra": 1},
	}, 4))
	assert.Error(t, err, "unknown tensor fields are rejected")
}

func TestSaveRejectsBadNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	err := Save(path, map[string]*tensor.Tensor{"a/b": tensor.Ones(1)}, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	short := filepath.Join(t.TempDir(), "short")
	require.NoError(t, os.WriteFile(short, []byte{1, 2}, 0o600))
	_, err = Open(short)
	assert.Error(t, err)

	huge := filepath.Join(t.TempDir(), "huge")
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf, MaxHeaderSize+1)
	require.NoError(t, os.WriteFile(huge, buf, 0o600))
	_, err = Open(huge)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}
