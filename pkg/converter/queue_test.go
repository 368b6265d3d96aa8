package converter

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueue_FIFOAndJoin(t *testing.T) {
	ctx := context.Background()
	q := NewJobQueue(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Put(ctx, Job{Seq: i}))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 3, q.Unfinished())

	joined := make(chan error, 1)
	go func() { joined <- q.Join(ctx) }()

	for i := 0; i < 3; i++ {
		job, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, job.Seq)
	}
	q.TaskDone()
	q.TaskDone()
	select {
	case <-joined:
		t.Fatal("Join returned with a job still unacknowledged")
	case <-time.After(20 * time.Millisecond):
	}
	q.TaskDone()
	select {
	case err := <-joined:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Join did not return after the last TaskDone")
	}
}

func TestJobQueue_JoinOnEmptyQueue(t *testing.T) {
	assert.NoError(t, NewJobQueue(1).Join(context.Background()))
}

func TestJobQueue_PutBlocksWhenFull(t *testing.T) {
	ctx := context.Background()
	buf := &syncBuffer{}
	q := NewJobQueue(2, WithDispatchWarn(10*time.Millisecond, slog.NewTextHandler(buf, nil)))
	require.NoError(t, q.Put(ctx, Job{RelPath: "en/01/index.md"}))
	require.NoError(t, q.Put(ctx, Job{RelPath: "en/02/index.md"}))

	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, Job{RelPath: "en/03/index.md"}) }()

	select {
	case <-done:
		t.Fatal("Put returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int64(1), q.BlockedPuts())

	_, err := q.Get(ctx)
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Put still blocked after a Get")
	}
	assert.Contains(t, buf.String(), "Job queue full")
	assert.Contains(t, buf.String(), "en/03/index.md")
}

func TestJobQueue_PutCancelled(t *testing.T) {
	q := NewJobQueue(1)
	require.NoError(t, q.Put(context.Background(), Job{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Put(ctx, Job{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Unfinished(), "a cancelled Put must not count as unfinished")
}

func TestJobQueue_GetCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewJobQueue(1).Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJobQueue_TaskDoneWithoutPutPanics(t *testing.T) {
	q := NewJobQueue(1)
	assert.Panics(t, q.TaskDone)
}

func TestJobQueue_MinimumCapacity(t *testing.T) {
	assert.Equal(t, 1, NewJobQueue(0).Cap())
	assert.Equal(t, 5, NewJobQueue(5).Cap())
}
