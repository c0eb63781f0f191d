package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type funcWorker struct {
	fn func(ctx context.Context) error
}

func (w funcWorker) Run(ctx context.Context) error { return w.fn(ctx) }

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	var calls atomic.Int32
	worker := funcWorker{fn: func(context.Context) error {
		calls.Add(1)
		panic("boom")
	}}

	sup := NewSupervisor(log, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go sup.Add(worker).Run(ctx)

	// Waiting for panics and restarts
	time.Sleep(400 * time.Millisecond)

	req.GreaterOrEqual(calls.Load(), int32(2))
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	var calls atomic.Int32
	worker := funcWorker{fn: func(context.Context) error {
		calls.Add(1)
		return nil
	}}

	sup := NewSupervisor(log, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	go sup.Add(worker).Run(ctx)
	time.Sleep(200 * time.Millisecond)

	// A clean exit is final, the worker is never restarted
	req.Equal(int32(1), calls.Load())
}

func TestSupervisor_StopCancelsWorkers(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	stopped := make(chan struct{})
	worker := funcWorker{fn: func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	}}

	sup := NewSupervisor(log, 10*time.Millisecond)
	go sup.Add(worker).Run(context.Background())

	// Give Run a moment to launch the worker
	time.Sleep(50 * time.Millisecond)
	sup.Stop()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		req.FailNow("worker was not cancelled")
	}
}
