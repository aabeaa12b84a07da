package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/nse-radar/internal/models"
	"github.com/DeafMist/nse-radar/internal/pipeline"
	"github.com/DeafMist/nse-radar/internal/scheduler"
)

type blockingRunner struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{entered: make(chan struct{}, 10), release: make(chan struct{})}
}

func (r *blockingRunner) Run(context.Context) pipeline.Result {
	r.calls.Add(1)
	r.entered <- struct{}{}
	<-r.release
	return pipeline.Result{Status: models.StatusSuccess}
}

type recorder struct {
	mu     sync.Mutex
	rows   []string
	st     []models.Status
	ctxErr []error
}

func (r *recorder) Record(ctx context.Context, status models.Status, message string, _ int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctxErr = append(r.ctxErr, ctx.Err())
	r.rows = append(r.rows, message)
	r.st = append(r.st, status)
	return "id"
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func TestTickIsSingleFlight(t *testing.T) {
	runner := newBlockingRunner()
	rec := &recorder{}
	s := scheduler.New(runner, rec, time.Hour, nil)
	ctx := context.Background()

	first := make(chan bool)
	go func() { first <- s.Tick(ctx) }()
	<-runner.entered
	require.True(t, s.Running())

	require.False(t, s.Tick(ctx))
	require.EqualValues(t, 1, runner.calls.Load())
	require.Equal(t, []string{scheduler.MsgSkipped}, rec.rows)
	require.Equal(t, []models.Status{models.StatusWarning}, rec.st)

	close(runner.release)
	require.True(t, <-first)
	require.False(t, s.Running())

	// The slot is free again for the next tick.
	go func() { <-runner.entered }()
	require.True(t, s.Tick(ctx))
	require.EqualValues(t, 2, runner.calls.Load())
	require.Equal(t, 1, rec.count())
}

func TestSkipIsRecordedAfterCancel(t *testing.T) {
	runner := newBlockingRunner()
	rec := &recorder{}
	s := scheduler.New(runner, rec, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool)
	go func() { done <- s.Tick(ctx) }()
	<-runner.entered
	cancel()

	require.False(t, s.Tick(ctx))
	require.Equal(t, []string{scheduler.MsgSkipped}, rec.rows)
	require.Equal(t, []error{nil}, rec.ctxErr)

	close(runner.release)
	require.True(t, <-done)
}

type panicRunner struct{}

func (panicRunner) Run(context.Context) pipeline.Result { panic("boom") }

func TestTickReleasesAfterPanic(t *testing.T) {
	s := scheduler.New(panicRunner{}, &recorder{}, time.Hour, nil)
	require.NotPanics(t, func() { require.True(t, s.Tick(context.Background())) })
	require.False(t, s.Running())
	require.True(t, s.TryAcquire())
	s.Release()
}

type countingRunner struct{ calls atomic.Int32 }

func (r *countingRunner) Run(context.Context) pipeline.Result {
	r.calls.Add(1)
	return pipeline.Result{Status: models.StatusWarning}
}

func TestStartRunsImmediatelyThenOnInterval(t *testing.T) {
	runner := &countingRunner{}
	s := scheduler.New(runner, &recorder{}, time.Second, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 500*time.Millisecond, 10*time.Millisecond)
	require.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, 3*time.Second, 50*time.Millisecond)

	s.Stop()
	after := runner.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	require.Equal(t, after, runner.calls.Load())
}
