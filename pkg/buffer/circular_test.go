package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBasicOperations(t *testing.T) {
	buf, err := NewCircular[string](3)
	require.NoError(t, err, "Failed to create buffer")
	defer buf.Close()

	require.NoError(t, buf.Write("first"))
	assert.Equal(t, 1, buf.Size())

	require.NoError(t, buf.Write("second"))
	require.NoError(t, buf.Write("third"))

	assert.True(t, buf.IsFull())
	assert.False(t, buf.IsEmpty())

	value, ok := buf.Peek()
	require.True(t, ok)
	assert.Equal(t, "first", value)
	assert.Equal(t, 3, buf.Size(), "Peek should not change size")

	value, ok = buf.Read()
	require.True(t, ok)
	assert.Equal(t, "first", value)
	assert.Equal(t, 2, buf.Size())

	batch := buf.ReadBatch(5)
	assert.Equal(t, []string{"second", "third"}, batch)
	assert.Equal(t, 0, buf.Size())
}

func TestCircularOverflowPolicies(t *testing.T) {
	testCases := []struct {
		name     string
		policy   OverflowPolicy
		expected []int
	}{
		{
			name:     "DropOldest",
			policy:   DropOldest,
			expected: []int{3, 4, 5}, // 1,2 evicted
		},
		{
			name:     "DropNewest",
			policy:   DropNewest,
			expected: []int{1, 2, 3}, // 4,5 not added
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := NewCircular[int](3, WithOverflowPolicy[int](tc.policy))
			require.NoError(t, err)
			defer buf.Close()

			for i := 1; i <= 5; i++ {
				require.NoError(t, buf.Write(i))
			}

			assert.Equal(t, 3, buf.Size())
			assert.Equal(t, tc.expected, buf.Snapshot())
			assert.Equal(t, int64(2), buf.Stats().Drops())
			assert.Equal(t, int64(2), buf.Stats().Overflows())
		})
	}
}

func TestCircularNeverExceedsCapacity(t *testing.T) {
	buf, err := NewCircular[int](100)
	require.NoError(t, err)
	defer buf.Close()

	for i := 0; i < 1000; i++ {
		require.NoError(t, buf.Write(i))
		assert.LessOrEqual(t, buf.Size(), 100)
	}

	// The most recent 100 items survive, oldest first
	snap := buf.Snapshot()
	require.Len(t, snap, 100)
	assert.Equal(t, 900, snap[0])
	assert.Equal(t, 999, snap[99])
}

func TestCircularSnapshotDoesNotConsume(t *testing.T) {
	buf, err := NewCircular[int](4)
	require.NoError(t, err)
	defer buf.Close()

	for i := 1; i <= 3; i++ {
		require.NoError(t, buf.Write(i))
	}

	assert.Equal(t, []int{1, 2, 3}, buf.Snapshot())
	assert.Equal(t, []int{1, 2, 3}, buf.Snapshot())
	assert.Equal(t, 3, buf.Size())
}

func TestCircularClear(t *testing.T) {
	var dropped []int
	var mu sync.Mutex

	buf, err := NewCircular[int](5, WithDropCallback[int](func(item int) {
		mu.Lock()
		dropped = append(dropped, item)
		mu.Unlock()
	}))
	require.NoError(t, err)
	defer buf.Close()

	for i := 1; i <= 3; i++ {
		require.NoError(t, buf.Write(i))
	}

	buf.Clear()

	assert.True(t, buf.IsEmpty())
	assert.Equal(t, 0, buf.Size())

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, dropped)
	mu.Unlock()

	// Buffer is reusable after Clear
	require.NoError(t, buf.Write(42))
	assert.Equal(t, []int{42}, buf.Snapshot())
}

func TestCircularWriteAfterClose(t *testing.T) {
	buf, err := NewCircular[int](2)
	require.NoError(t, err)

	require.NoError(t, buf.Close())
	assert.Error(t, buf.Write(1))
}

func TestCircularConcurrentWrites(t *testing.T) {
	buf, err := NewCircular[int](50)
	require.NoError(t, err)
	defer buf.Close()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = buf.Write(base*100 + i)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 50, buf.Size())
	assert.Equal(t, int64(1000), buf.Stats().Writes())
	assert.Equal(t, int64(950), buf.Stats().Drops())
}
