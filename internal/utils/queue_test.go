package utils_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleipnir/internal/utils"
)

func TestQueue_DeliversInPushOrder(t *testing.T) {
	q := utils.NewQueue[int]()
	defer q.Close()

	// Push everything before reading: nothing may block or reorder.
	for i := 0; i < 1000; i++ {
		require.True(t, q.Push(i))
	}
	for i := 0; i < 1000; i++ {
		assert.Equal(t, i, <-q.Out())
	}
}

func TestQueue_CloseDrainsBufferedElements(t *testing.T) {
	q := utils.NewQueue[string]()
	q.Push("a")
	q.Push("b")
	q.Close()

	assert.Equal(t, "a", <-q.Out())
	assert.Equal(t, "b", <-q.Out())

	_, ok := <-q.Out()
	assert.False(t, ok, "Out must close once drained")
}

func TestQueue_PushAfterCloseIsDropped(t *testing.T) {
	q := utils.NewQueue[int]()
	q.Close()
	assert.False(t, q.Push(1))

	// Close is idempotent.
	q.Close()
}

func TestQueue_SlowConsumerDoesNotBlockProducer(t *testing.T) {
	q := utils.NewQueue[int]()
	defer q.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			q.Push(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked on an unbounded queue")
	}
}

func TestSyncMap_BasicOperations(t *testing.T) {
	m := utils.NewSyncMap[string, int]()

	m.Store("a", 1)
	m.Store("b", 2)
	assert.Equal(t, 2, m.Len())

	v, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = m.LoadAndDelete("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = m.Load("a")
	assert.False(t, ok)

	assert.ElementsMatch(t, []int{2}, m.Snapshot())
	assert.ElementsMatch(t, []int{2}, m.Clear())
	assert.Equal(t, 0, m.Len())
}

func TestSyncMap_SnapshotUnderConcurrentMutation(t *testing.T) {
	m := utils.NewSyncMap[int, int]()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				m.Store(i%100, i)
				m.Delete((i + 50) % 100)
			}
		}
	}()

	// Snapshots must never fault or observe a torn map while the writer
	// churns.
	for i := 0; i < 1000; i++ {
		_ = m.Snapshot()
	}
	close(stop)
	wg.Wait()
}
