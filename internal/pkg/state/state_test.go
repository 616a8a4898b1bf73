package state

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

func tagPtr(t model.Tag) *model.Tag {
	return &t
}

func TestUpdate_LastWriteWins(t *testing.T) {
	s := New(nil)
	tag := tagPtr("107839//5")

	s.Update(model.Fields{"x": 1}, tag)
	s.Update(model.Fields{"x": 2}, tag)

	v, ok := s.Get(s.Partition(*tag), "x")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestUpdate_NilTagGoesToPartitionZero(t *testing.T) {
	s := New(func(model.Tag) int { return 2 })

	s.Update(model.Fields{"flow": 3.5}, nil)

	v, ok := s.Get(0, "flow")
	require.True(t, ok)
	assert.Equal(t, 3.5, v)
	_, ok = s.Get(2, "flow")
	assert.False(t, ok)
}

func TestPartition_OutOfRangeFallsBackToZero(t *testing.T) {
	s := New(func(model.Tag) int { return 42 })
	assert.Equal(t, 0, s.Partition("a"))

	s = New(func(model.Tag) int { return -1 })
	assert.Equal(t, 0, s.Partition("a"))
}

func TestPartition_Pluggable(t *testing.T) {
	s := New(func(tag model.Tag) int {
		if tag == "81.174" {
			return 2
		}
		return 1
	})
	s.Update(model.Fields{"temperature": 21}, tagPtr("81.174"))
	s.Update(model.Fields{"temperature": 18}, tagPtr("285105//0"))

	v, _ := s.Get(2, "temperature")
	assert.Equal(t, 21.0, v)
	v, _ = s.Get(1, "temperature")
	assert.Equal(t, 18.0, v)
}

func TestHashPartitioner(t *testing.T) {
	p := HashPartitioner(NumPartitions)
	for _, tag := range []model.Tag{"369507//1", "107839//7", "167.121"} {
		idx := p(tag)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, NumPartitions)
		assert.Equal(t, idx, p(tag), "partition must be deterministic")
	}
	assert.Equal(t, 0, HashPartitioner(0)("x"))
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := New(nil)
	s.Update(model.Fields{"a": 1}, nil)

	snap := s.Snapshot()
	require.Len(t, snap, NumPartitions)
	snap[0]["a"] = 100

	v, _ := s.Get(0, "a")
	assert.Equal(t, 1.0, v)
}

func TestUpdate_ConcurrentWritersLoseNothing(t *testing.T) {
	s := New(nil)
	const perWriter = 1000

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tag := model.Tag(fmt.Sprintf("writer-%d", w))
			for i := 0; i < perWriter; i++ {
				s.Update(model.Fields{fmt.Sprintf("w%d_%d", w, i): float64(i)}, &tag)
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap[0], 2*perWriter)
	for w := 0; w < 2; w++ {
		for i := 0; i < perWriter; i++ {
			assert.Equal(t, float64(i), snap[0][fmt.Sprintf("w%d_%d", w, i)])
		}
	}
}
