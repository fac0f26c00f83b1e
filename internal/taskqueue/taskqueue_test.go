package taskqueue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/anpr/compliance-core/internal/taskqueue"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesEnqueuedTasks(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	q := taskqueue.New(taskqueue.Config{Concurrency: 2, HighWaterMark: 10}, func(ctx context.Context, task taskqueue.Task) {
		mu.Lock()
		seen = append(seen, task.VRM)
		mu.Unlock()
	})
	defer q.Stop()

	q.Enqueue(context.Background(), taskqueue.Task{Kind: taskqueue.KindPayment, VRM: "AB12CDE", SiteID: "site-1"})
	q.Enqueue(context.Background(), taskqueue.Task{Kind: taskqueue.KindPermit, VRM: "XY99ZZZ", SiteID: "site-1"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestEnqueueRespectsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	q := taskqueue.New(taskqueue.Config{Concurrency: 1, HighWaterMark: 1}, func(ctx context.Context, task taskqueue.Task) {
		<-block
	})
	defer q.Stop()
	defer close(block)

	// Occupies the single worker, which then blocks on the gate above.
	q.Enqueue(context.Background(), taskqueue.Task{Kind: taskqueue.KindPayment, VRM: "FIRST"})
	// Fills the one-deep buffer while the worker is stuck.
	q.Enqueue(context.Background(), taskqueue.Task{Kind: taskqueue.KindPayment, VRM: "SECOND"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	q.Enqueue(ctx, taskqueue.Task{Kind: taskqueue.KindPayment, VRM: "THIRD"})
	require.Error(t, ctx.Err())
}
