package checkpoint

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Validation limits.
const (
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidateTensorName rejects names that are empty, too long, or contain path
// separators, ".." or NUL bytes.
func ValidateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Type: "invalid_name", Details: "empty tensor name"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	case name == MetadataKey:
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "reserved name"}
	case strings.Contains(name, ".."):
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains '..'"}
	case strings.ContainsAny(name, "/\\"):
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains path separator"}
	case strings.Contains(name, "\x00"):
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains null byte"}
	}
	return nil
}

// ValidateHeader checks names, dtypes, shapes and byte ranges against a data
// section of dataSize bytes. Ranges must not overlap.
func ValidateHeader(h *Header, dataSize int64) error {
	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount),
		}
	}

	names := make([]string, 0, len(h.Tensors))
	for name, info := range h.Tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		if info.DType != DTypeF32 {
			return fmt.Errorf("%w: tensor %q has dtype %s", ErrUnsupportedDType, name, info.DType)
		}
		n := int64(1)
		for _, d := range info.Shape {
			if d < 0 {
				return &ValidationError{Type: "invalid_shape", Tensor: name, Details: fmt.Sprintf("shape %v", info.Shape)}
			}
			n *= int64(d)
		}
		if info.Size() != 4*n {
			return &ValidationError{
				Type:    "size_mismatch",
				Tensor:  name,
				Details: fmt.Sprintf("shape %v needs %d bytes, range holds %d", info.Shape, 4*n, info.Size()),
			}
		}
		names = append(names, name)
	}

	slices.SortFunc(names, func(a, b string) int {
		return cmp.Compare(h.Tensors[a].DataOffsets[0], h.Tensors[b].DataOffsets[0])
	})
	for i, name := range names {
		t := h.Tensors[name]
		if t.DataOffsets[0] < 0 || t.DataOffsets[1] < t.DataOffsets[0] {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  name,
				Details: fmt.Sprintf("range [%d, %d)", t.DataOffsets[0], t.DataOffsets[1]),
			}
		}
		if t.DataOffsets[1] > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  name,
				Details: fmt.Sprintf("end %d > data size %d", t.DataOffsets[1], dataSize),
			}
		}
		if i < len(names)-1 {
			next := h.Tensors[names[i+1]]
			if t.DataOffsets[1] > next.DataOffsets[0] {
				return &ValidationError{
					Type:    "offset_overlap",
					Tensor:  name,
					Tensor2: names[i+1],
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.DataOffsets[0], t.DataOffsets[1], next.DataOffsets[0], next.DataOffsets[1]),
				}
			}
		}
	}
	return nil
}
