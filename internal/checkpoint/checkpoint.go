// Package checkpoint writes named parameter tensors in the SafeTensors
// layout read by github.com/born-ml/born/loader:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header, space padded to 8-byte alignment]
//	[tensor data: raw little-endian bytes, tensors in name order]
package checkpoint

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/born-ml/born/tensor"
)

const metadataKey = "__metadata__"

// ErrUnsupportedDType is returned for tensors of a type Save cannot store.
var ErrUnsupportedDType = errors.New("unsupported dtype")

type tensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Save writes state to path. Tensors are stored in sorted name order.
func Save(path string, state map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(state)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var offset int64
	for _, name := range names {
		raw := state[name]
		dtype, err := dtypeName(raw.DType())
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		size := int64(raw.ByteSize())
		header[name] = tensorInfo{
			DType:       dtype,
			Shape:       []int(raw.Shape()),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	for len(headerJSON)%8 != 0 {
		headerJSON = append(headerJSON, ' ')
	}

	//nolint:gosec // Path is chosen by the caller.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	w := bufio.NewWriter(f)

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, name := range names {
		if _, err := w.Write(state[name].Data()); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}
	return f.Close()
}

func dtypeName(dtype tensor.DataType) (string, error) {
	switch dtype {
	case tensor.Float32:
		return "F32", nil
	case tensor.Float64:
		return "F64", nil
	case tensor.Int32:
		return "I32", nil
	case tensor.Int64:
		return "I64", nil
	default:
		return "", fmt.Errorf("%w: %v", ErrUnsupportedDType, dtype)
	}
}
