package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobsInSubmissionOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var inFlight, maxInFlight int

	q := NewQueue("test", func(_ context.Context, job Job) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		seen = append(seen, job.ID)
		inFlight--
		mu.Unlock()
		return nil
	}, QueueConfig{BufferSize: 8})

	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Enqueue(Job{ID: id, Type: "test"}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 4
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c", "d"}, seen)
	assert.Equal(t, 1, maxInFlight)
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "a"})
	assert.Error(t, err)
}

func TestQueueDoesNotRerunFailedJobs(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}

	q := NewQueue("test", func(_ context.Context, job Job) error {
		mu.Lock()
		calls[job.ID]++
		mu.Unlock()
		return assert.AnError
	}, QueueConfig{})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls["a"] > 0
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls["a"])
}
