package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSize(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultSize(), 1)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUninitialized, "uninitialized"},
		{StateReady, "ready"},
		{StateDraining, "draining"},
		{StateTerminated, "terminated"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestExecute_OrderPreserved(t *testing.T) {
	p := New(4)
	defer p.Close()

	const n = 50
	tasks := make([]Task, n)
	for i := 0; i < n; i++ {
		i := i
		tasks[i] = Task{
			Index: i,
			Run: func(ctx context.Context) (any, error) {
				// Reverse the natural completion order so ordering
				// cannot come for free.
				time.Sleep(time.Duration(n-i) * time.Microsecond)
				return i * 10, nil
			},
		}
	}

	results, err := p.Execute(context.Background(), tasks, nil)
	require.NoError(t, err)
	require.Len(t, results, n)
	for i, res := range results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, i*10, res.Value)
		assert.NotEmpty(t, res.TaskID)
	}
}

func TestExecute_TaskErrorDoesNotStopBatch(t *testing.T) {
	p := New(2)
	defer p.Close()

	boom := errors.New("boom")
	tasks := []Task{
		{Index: 0, Run: func(ctx context.Context) (any, error) { return "ok", nil }},
		{Index: 1, Run: func(ctx context.Context) (any, error) { return nil, boom }},
		{Index: 2, Run: func(ctx context.Context) (any, error) { return "ok", nil }},
	}

	results, err := p.Execute(context.Background(), tasks, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.NoError(t, results[2].Err)
}

func TestExecute_EmptyBatch(t *testing.T) {
	p := New(2)
	defer p.Close()

	results, err := p.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, results)
	// An empty batch must not spin up workers.
	assert.Equal(t, StateUninitialized, p.State())
}

func TestExecute_Progress(t *testing.T) {
	p := New(2)
	defer p.Close()

	tasks := make([]Task, 4)
	for i := range tasks {
		i := i
		tasks[i] = Task{Index: i, Run: func(ctx context.Context) (any, error) { return i, nil }}
	}

	var calls []Progress
	_, err := p.Execute(context.Background(), tasks, func(pr Progress) {
		calls = append(calls, pr)
	})
	require.NoError(t, err)
	require.Len(t, calls, 4)
	assert.Equal(t, 1, calls[0].Processed)
	assert.Equal(t, 4, calls[3].Processed)
	assert.Equal(t, 4, calls[3].Total)
	assert.InDelta(t, 100.0, calls[3].Percentage, 0.001)
}

func TestExecute_ContextCancelled(t *testing.T) {
	p := New(1)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	tasks := []Task{
		{Index: 0, Run: func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		}},
		{Index: 1, Run: func(ctx context.Context) (any, error) { return nil, nil }},
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Execute(ctx, tasks, nil)
		done <- err
	}()

	cancel()
	err := <-done
	close(release)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose_MidBatchUnblocksExecute(t *testing.T) {
	p := New(1)

	started := make(chan struct{})
	release := make(chan struct{})
	tasks := []Task{
		{Index: 0, Run: func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return 0, nil
		}},
		{Index: 1, Run: func(ctx context.Context) (any, error) { return 1, nil }},
		{Index: 2, Run: func(ctx context.Context) (any, error) { return 2, nil }},
	}

	execDone := make(chan error, 1)
	go func() {
		_, err := p.Execute(context.Background(), tasks, nil)
		execDone <- err
	}()
	<-started

	closeDone := make(chan struct{})
	go func() {
		p.Close()
		close(closeDone)
	}()

	// Execute must return while the first task is still running and the
	// rest of the batch is undispatched.
	err := <-execDone
	require.Error(t, err)
	assert.Contains(t, err.Error(), "draining")

	close(release)
	<-closeDone
	assert.Equal(t, StateTerminated, p.State())
}

func TestPoolLifecycle(t *testing.T) {
	p := New(2)
	assert.Equal(t, StateUninitialized, p.State())

	_, err := p.Execute(context.Background(), []Task{
		{Index: 0, Run: func(ctx context.Context) (any, error) { return nil, nil }},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateReady, p.State())

	p.Close()
	assert.Equal(t, StateTerminated, p.State())

	_, err = p.Execute(context.Background(), []Task{
		{Index: 0, Run: func(ctx context.Context) (any, error) { return nil, nil }},
	}, nil)
	assert.Error(t, err)

	// Close is idempotent.
	p.Close()
	assert.Equal(t, StateTerminated, p.State())
}

func TestExecute_LazySpawn(t *testing.T) {
	var spawned atomic.Int32
	p := New(3)
	p.spawnFn = func(fn func() error) {
		spawned.Add(1)
		go func() { _ = fn() }()
	}
	defer p.Close()

	assert.Equal(t, int32(0), spawned.Load())

	_, err := p.Execute(context.Background(), []Task{
		{Index: 0, Run: func(ctx context.Context) (any, error) { return nil, nil }},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), spawned.Load())
}

func TestMetricsRegister(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	p := New(2, WithMetrics(m))
	defer p.Close()

	tasks := make([]Task, 5)
	for i := range tasks {
		i := i
		tasks[i] = Task{Index: i, Run: func(ctx context.Context) (any, error) {
			if i == 4 {
				return nil, fmt.Errorf("fail %d", i)
			}
			return nil, nil
		}}
	}
	_, err := p.Execute(context.Background(), tasks, nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
