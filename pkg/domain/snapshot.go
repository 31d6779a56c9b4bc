package domain

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the durable representation of the whitelisted part of a Tree.
type Snapshot struct {
	Version int            `json:"version"`
	Slices  map[string]any `json:"slices"`
}

// NewSnapshot creates an empty snapshot for a schema version.
func NewSnapshot(version int) *Snapshot {
	return &Snapshot{
		Version: version,
		Slices:  make(map[string]any),
	}
}

// EncodeSnapshot serialises a snapshot to JSON.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot produced by EncodeSnapshot.
// Slices come back in their generic JSON form (maps, slices, float64).
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if s.Slices == nil {
		s.Slices = make(map[string]any)
	}
	return &s, nil
}
