package checkpoint

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"os"
	"slices"

	json "github.com/goccy/go-json"

	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/internal/tensor"
)

// SaveModule writes every parameter of m to path.
func SaveModule(path string, m nn.Module, metadata map[string]string) error {
	return Save(path, nn.StateDict(m), metadata)
}

// Save writes tensors to path in name order. metadata may be nil; the data
// checksum is added to a copy of it.
func Save(path string, tensors map[string]*tensor.Tensor, metadata map[string]string) error {
	names := slices.Sorted(maps.Keys(tensors))
	for _, name := range names {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
	}

	header := Header{
		Metadata: make(map[string]string, len(metadata)+1),
		Tensors:  make(map[string]TensorInfo, len(names)),
	}
	maps.Copy(header.Metadata, metadata)

	var offset int64
	for _, name := range names {
		t := tensors[name]
		size := int64(t.Len()) * 4
		header.Tensors[name] = TensorInfo{
			DType:       DTypeF32,
			Shape:       t.Shape(),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	data := make([]byte, offset)
	var pos int
	for _, name := range names {
		for _, v := range tensors[name].Data() {
			binary.LittleEndian.PutUint32(data[pos:], math.Float32bits(v))
			pos += 4
		}
	}
	sum := ComputeChecksum(data)
	header.Metadata[ChecksumKey] = fmt.Sprintf("%x", sum)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	w := bufio.NewWriter(file)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return file.Close()
}
