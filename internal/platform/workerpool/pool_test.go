package workerpool

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_RunsAllTasksBeforeClose(t *testing.T) {
	p, err := New(context.Background(), "test", 3, 100, WithLogger(quietLogger()))
	require.NoError(t, err)

	var done atomic.Int32
	for i := 0; i < 50; i++ {
		require.NoError(t, p.TrySubmit(func(ctx context.Context) {
			done.Add(1)
		}))
	}
	p.Close()

	assert.Equal(t, int32(50), done.Load())
}

func TestPool_QueueFull(t *testing.T) {
	p, err := New(context.Background(), "test", 1, 1, WithLogger(quietLogger()))
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.TrySubmit(func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	// ワーカーが塞がっている間、キューには1件だけ入る
	require.NoError(t, p.TrySubmit(func(ctx context.Context) {}))
	assert.ErrorIs(t, p.TrySubmit(func(ctx context.Context) {}), ErrQueueFull)

	close(release)
	p.Close()
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p, err := New(context.Background(), "test", 1, 1, WithLogger(quietLogger()))
	require.NoError(t, err)
	p.Close()
	p.Close()

	assert.ErrorIs(t, p.TrySubmit(func(ctx context.Context) {}), ErrPoolClosed)
}

func TestPool_RecoversPanics(t *testing.T) {
	p, err := New(context.Background(), "test", 1, 4, WithLogger(quietLogger()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.TrySubmit(func(ctx context.Context) { panic("boom") }))
	require.NoError(t, p.TrySubmit(func(ctx context.Context) { wg.Done() }))

	wg.Wait()
	p.Close()
}

func TestPool_PassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	p, err := New(ctx, "test", 1, 1, WithLogger(quietLogger()))
	require.NoError(t, err)

	got := make(chan any, 1)
	require.NoError(t, p.TrySubmit(func(ctx context.Context) { got <- ctx.Value(key{}) }))
	p.Close()

	assert.Equal(t, "v", <-got)
}

func TestNew_InvalidArguments(t *testing.T) {
	_, err := New(context.Background(), "test", 0, 1)
	require.Error(t, err)
	_, err = New(context.Background(), "test", 1, 0)
	require.Error(t, err)
}
