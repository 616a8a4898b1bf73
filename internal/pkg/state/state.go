// Package state holds the latest known field values of the rig, grouped into
// partitions (zones).
package state

import (
	"hash/crc32"
	"maps"
	"sync"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

// NumPartitions is the number of zones plus the shared partition 0.
const NumPartitions = 3

// PartitionFunc maps a tag to its partition index.
type PartitionFunc func(tag model.Tag) int

// ZeroPartition sends every tag to partition 0.
func ZeroPartition(model.Tag) int {
	return 0
}

// HashPartitioner spreads tags over n partitions by crc32 of the tag.
func HashPartitioner(n int) PartitionFunc {
	return func(tag model.Tag) int {
		if n <= 0 {
			return 0
		}
		return int(crc32.ChecksumIEEE([]byte(tag)) % uint32(n))
	}
}

type partition struct {
	mu     sync.RWMutex
	values map[string]float64
}

type State struct {
	parts  []*partition
	partOf PartitionFunc
}

func New(partOf PartitionFunc) *State {
	if partOf == nil {
		partOf = ZeroPartition
	}
	parts := make([]*partition, NumPartitions)
	for i := range parts {
		parts[i] = &partition{values: make(map[string]float64)}
	}
	return &State{parts: parts, partOf: partOf}
}

// Partition resolves the partition of a tag. Results outside the valid range
// fall back to 0.
func (s *State) Partition(tag model.Tag) int {
	p := s.partOf(tag)
	if p < 0 || p >= len(s.parts) {
		return 0
	}
	return p
}

// Update merges fields into the partition of tag, or partition 0 when tag is nil.
func (s *State) Update(fields model.Fields, tag *model.Tag) {
	p := 0
	if tag != nil && *tag != "" {
		p = s.Partition(*tag)
	}
	part := s.parts[p]
	part.mu.Lock()
	defer part.mu.Unlock()
	for k, v := range fields {
		part.values[k] = v
	}
}

func (s *State) Get(partition int, field string) (float64, bool) {
	if partition < 0 || partition >= len(s.parts) {
		return 0, false
	}
	part := s.parts[partition]
	part.mu.RLock()
	defer part.mu.RUnlock()
	v, ok := part.values[field]
	return v, ok
}

// Snapshot returns a copy of every partition.
func (s *State) Snapshot() []map[string]float64 {
	out := make([]map[string]float64, len(s.parts))
	for i, part := range s.parts {
		part.mu.RLock()
		out[i] = maps.Clone(part.values)
		part.mu.RUnlock()
	}
	return out
}
