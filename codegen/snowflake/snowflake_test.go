package snowflake

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewGenerator 测试生成器创建
func TestNewGenerator(t *testing.T) {
	gen, err := NewGenerator(5)
	require.NoError(t, err)
	require.NotNil(t, gen)

	// 越界节点ID
	_, err = NewGenerator(-1)
	assert.Error(t, err)
	_, err = NewGenerator(maxNodeID + 1)
	assert.Error(t, err)
}

// TestGenerator_NextID 测试ID单调递增且唯一
func TestGenerator_NextID(t *testing.T) {
	gen, err := NewGenerator(1)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	var prev int64
	for i := 0; i < 10000; i++ {
		id, err := gen.NextID()
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %d", id)
		require.Greater(t, id, prev)
		seen[id] = true
		prev = id
	}
}

// TestGenerator_Concurrent 测试并发生成不重复
func TestGenerator_Concurrent(t *testing.T) {
	gen, err := NewGenerator(2)
	require.NoError(t, err)

	const goroutines = 8
	const perGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				ids = append(ids, gen.Generate())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				assert.False(t, seen[id])
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

// TestParse 测试ID解析
func TestParse(t *testing.T) {
	gen, err := NewGenerator(7)
	require.NoError(t, err)

	id := gen.Generate()
	parts := Parse(id)

	assert.Equal(t, int64(7), parts["nodeID"])
	assert.Greater(t, parts["timestamp"], epoch)
}

// TestDefaultGenerator 测试默认生成器
func TestDefaultGenerator(t *testing.T) {
	id1, err := NextID()
	require.NoError(t, err)
	id2 := Generate()
	assert.Greater(t, id2, id1)

	require.NoError(t, SetDefaultGenerator(3))
	id3 := Generate()
	assert.Equal(t, int64(3), Parse(id3)["nodeID"])
}
