package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLocalQueueRunsDispatchedTasks(t *testing.T) {
	q := NewLocalQueue(2, 4, zerolog.Nop())

	var mu sync.Mutex
	seen := map[uint]Kind{}
	var wg sync.WaitGroup
	wg.Add(3)

	require.NoError(t, q.Start(context.Background(), func(ctx context.Context, task Task) error {
		defer wg.Done()
		mu.Lock()
		seen[task.ApplicationID] = task.Kind
		mu.Unlock()
		if task.ApplicationID == 2 {
			return errors.New("boom")
		}
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, q.Dispatch(ctx, Task{Kind: KindPrescreen, ApplicationID: 1}))
	require.NoError(t, q.Dispatch(ctx, Task{Kind: KindAssignTests, ApplicationID: 2}))
	require.NoError(t, q.Dispatch(ctx, Task{Kind: KindAssessSubmission, ApplicationID: 3, SubmissionID: 9}))

	wg.Wait()
	require.Equal(t, map[uint]Kind{1: KindPrescreen, 2: KindAssignTests, 3: KindAssessSubmission}, seen)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, q.Stop(stopCtx))
	require.ErrorIs(t, q.Dispatch(ctx, Task{Kind: KindPrescreen}), ErrClosed)
}

func TestLocalQueueDispatchHonoursContextWhenFull(t *testing.T) {
	q := NewLocalQueue(1, 1, zerolog.Nop())
	require.NoError(t, q.Dispatch(context.Background(), Task{Kind: KindPrescreen, ApplicationID: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Dispatch(ctx, Task{Kind: KindPrescreen, ApplicationID: 2}), context.DeadlineExceeded)
}

func TestLocalQueueDrainsBufferedTasksAfterCancel(t *testing.T) {
	q := NewLocalQueue(1, 4, zerolog.Nop())
	rootCtx, cancelRoot := context.WithCancel(context.Background())

	release := make(chan struct{})
	var mu sync.Mutex
	var finished []uint
	require.NoError(t, q.Start(rootCtx, func(ctx context.Context, task Task) error {
		<-release
		if err := ctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		finished = append(finished, task.ApplicationID)
		mu.Unlock()
		return nil
	}))

	for id := uint(1); id <= 3; id++ {
		require.NoError(t, q.Dispatch(context.Background(), Task{Kind: KindPrescreen, ApplicationID: id}))
	}

	cancelRoot()
	close(release)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(stopCtx))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint{1, 2, 3}, finished)
}

func TestTaskCodecRejectsMissingKind(t *testing.T) {
	payload, err := encodeTask(Task{Kind: KindAssessSubmission, SubmissionID: 7})
	require.NoError(t, err)

	decoded, err := decodeTask(payload)
	require.NoError(t, err)
	require.Equal(t, uint(7), decoded.SubmissionID)
	require.False(t, decoded.EnqueuedAt.IsZero())

	_, err = decodeTask([]byte(`{"application_id": 1}`))
	require.Error(t, err)
}
