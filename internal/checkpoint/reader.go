package checkpoint

import (
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

// Reader gives access to the tensors of one checkpoint file.
//
// The file stays mapped until Close; tensors returned by Tensor are copies
// and remain valid afterwards.
type Reader struct {
	path    string
	data    []byte // whole file
	release func() error
	header  Header
	offset  int64 // start of the data section
	closed  bool
}

// Open maps path and validates its header. When the metadata carries a
// checksum, the data section is verified against it.
func Open(path string) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close() // the mapping outlives the descriptor
	}()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size() < 8 {
		return nil, fmt.Errorf("%s: file too small: %d bytes", path, stat.Size())
	}

	data, release, err := mapFile(file, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", path, err)
	}
	r := &Reader{path: path, data: data, release: release}
	if err := r.parseHeader(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) parseHeader() error {
	size := binary.LittleEndian.Uint64(r.data[:8])
	if size > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	end := 8 + int64(size) //nolint:gosec // G115: bounded by MaxHeaderSize
	if end > int64(len(r.data)) {
		return fmt.Errorf("header extends beyond file: header_end=%d, file_size=%d", end, len(r.data))
	}
	if err := json.Unmarshal(r.data[8:end], &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}
	r.offset = end

	section := r.data[r.offset:]
	if err := ValidateHeader(&r.header, int64(len(section))); err != nil {
		return fmt.Errorf("header validation failed: %w", err)
	}
	if sum, ok := r.header.Metadata[ChecksumKey]; ok {
		return verifyChecksum(section, sum)
	}
	return nil
}

// Close unmaps the file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.data = nil
	return r.release()
}

// Metadata returns the string metadata, including the checksum.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// Names returns the tensor names in sorted order.
func (r *Reader) Names() []string {
	return slices.Sorted(maps.Keys(r.header.Tensors))
}

// Info returns the header entry for name.
func (r *Reader) Info(name string) (TensorInfo, bool) {
	info, ok := r.header.Tensors[name]
	return info, ok
}

// Tensor decodes one tensor.
func (r *Reader) Tensor(name string) (*tensor.Tensor, error) {
	if r.closed {
		return nil, ErrClosed
	}
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	raw := r.data[r.offset+info.DataOffsets[0] : r.offset+info.DataOffsets[1]]
	values := make([]float32, len(raw)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return tensor.FromSlice(values, info.Shape...), nil
}

// StateDict decodes every tensor.
func (r *Reader) StateDict() (map[string]*tensor.Tensor, error) {
	state := make(map[string]*tensor.Tensor, len(r.header.Tensors))
	for name := range r.header.Tensors {
		t, err := r.Tensor(name)
		if err != nil {
			return nil, fmt.Errorf("failed to load tensor %s: %w", name, err)
		}
		state[name] = t
	}
	return state, nil
}

// LoadInto copies the checkpoint into the parameters of m. The parameter
// sets must match exactly.
func (r *Reader) LoadInto(m nn.Module) error {
	state, err := r.StateDict()
	if err != nil {
		return err
	}
	if err := nn.LoadStateDict(m, state); err != nil {
		return fmt.Errorf("%s: %w", r.path, err)
	}
	return nil
}

// Load opens path, loads it into m and closes it.
func Load(path string, m nn.Module) (map[string]string, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()
	if err := r.LoadInto(m); err != nil {
		return nil, err
	}
	return r.Metadata(), nil
}
