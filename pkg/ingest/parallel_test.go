package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelProcess_ProcessesAllItems(t *testing.T) {
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}

	var processed int64
	var inFlight, maxInFlight int64

	err := ParallelProcess(context.Background(), items, func(ctx context.Context, item int) error {
		current := atomic.AddInt64(&inFlight, 1)
		for {
			max := atomic.LoadInt64(&maxInFlight)
			if current <= max || atomic.CompareAndSwapInt64(&maxInFlight, max, current) {
				break
			}
		}
		atomic.AddInt64(&processed, 1)
		atomic.AddInt64(&inFlight, -1)
		return nil
	}, 3)

	require.NoError(t, err)
	assert.EqualValues(t, 20, processed)
	assert.LessOrEqual(t, atomic.LoadInt64(&maxInFlight), int64(3))
}

func TestParallelProcess_CollectsErrors(t *testing.T) {
	items := []string{"ok-1", "bad-1", "ok-2", "bad-2", "ok-3"}

	var mu sync.Mutex
	var succeeded []string

	err := ParallelProcess(context.Background(), items, func(ctx context.Context, item string) error {
		if item == "bad-1" || item == "bad-2" {
			return fmt.Errorf("cannot process %s", item)
		}
		mu.Lock()
		succeeded = append(succeeded, item)
		mu.Unlock()
		return nil
	}, 2)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallel processing had 2 errors")
	// Failures do not stop the remaining items.
	assert.Len(t, succeeded, 3)
}

func TestParallelProcess_EmptyItems(t *testing.T) {
	called := false
	err := ParallelProcess(context.Background(), nil, func(ctx context.Context, item int) error {
		called = true
		return nil
	}, 4)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestParallelProcess_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	items := make([]int, 10)
	var once sync.Once

	err := ParallelProcess(ctx, items, func(ctx context.Context, item int) error {
		once.Do(cancel)
		<-ctx.Done()
		return ctx.Err()
	}, 2)

	// Whether the feeder or the workers observe the cancellation first,
	// the call returns instead of hanging, and it returns a failure.
	require.Error(t, err)
}
