package vfs

import (
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
)

// Snapshot is a serialized full copy of a filesystem's working tree.
type Snapshot struct {
	Root  string            `json:"root"`
	Files map[string][]byte `json:"files"`
}

// Paths returns the snapshot's paths in sorted order.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Size returns the total content size in bytes.
func (s *Snapshot) Size() int {
	n := 0
	for _, data := range s.Files {
		n += len(data)
	}
	return n
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Encode serializes the snapshot as zstd-compressed JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	raw, err := sonic.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// DecodeSnapshot reverses Encode.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap Snapshot
	if err := sonic.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Files == nil {
		snap.Files = make(map[string][]byte)
	}
	return &snap, nil
}
