package asyncstep

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/Azure/go-asynctask"
)

const (
	handleRunning int32 = iota
	handleFinished
	handleAbandoned
)

// ExecutionHandle is the in-flight background execution of one unit of work.
// The result slot lives in the underlying asynctask and is written once, by
// the worker.
type ExecutionHandle[T any] struct {
	task    *asynctask.Task[T]
	state   atomic.Int32
	pool    *WorkerPool
	metrics *Metrics
}

// submit starts fn on the pool. With interrupt false, fn receives a context
// that Cancel does not reach.
func submit[T any](ctx context.Context, pool *WorkerPool, metrics *Metrics, stepName string, interrupt bool, fn func(context.Context) (*T, error)) *ExecutionHandle[T] {
	h := &ExecutionHandle[T]{pool: pool, metrics: metrics}

	if pool.Policy() == PoolPolicyReject && !pool.tryAcquire() {
		rejected := ErrWorkerPoolExhausted.WithMessage(fmt.Sprintf(MsgWorkerPoolExhausted, stepName, pool.Capacity()))
		h.task = asynctask.Start(ctx, func(context.Context) (*T, error) {
			defer h.finish()
			return nil, rejected
		})
		return h
	}
	acquired := pool.Policy() == PoolPolicyReject

	h.task = asynctask.Start(ctx, func(taskCtx context.Context) (*T, error) {
		defer h.finish()
		if !acquired {
			if err := pool.acquire(taskCtx); err != nil {
				return nil, err
			}
		}
		defer pool.release()

		pool.inFlight.Add(1)
		h.metrics.workerStarted()
		defer func() {
			pool.inFlight.Add(-1)
			h.metrics.workerFinished()
		}()

		workCtx := taskCtx
		if !interrupt {
			workCtx = context.WithoutCancel(taskCtx)
		}
		return runWithPanicHandled(workCtx, fn)
	})
	return h
}

func runWithPanicHandled[T any](ctx context.Context, fn func(context.Context) (*T, error)) (result *T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrWorkPanicked.WithMessage(fmt.Sprintf("%v, StackTrace: %s", r, debug.Stack()))
		}
	}()
	return fn(ctx)
}

func (h *ExecutionHandle[T]) finish() {
	if h.state.CompareAndSwap(handleRunning, handleFinished) {
		return
	}
	// abandoned earlier, this orphan is now gone
	h.pool.orphaned.Add(-1)
	h.metrics.orphanFinished()
}

// Done reports whether the worker produced its result. Never blocks.
func (h *ExecutionHandle[T]) Done() bool {
	return h.task.State() != asynctask.StateRunning
}

// Result returns the worker's result. Only meaningful once Done is true.
func (h *ExecutionHandle[T]) Result() (*T, error) {
	return h.task.Result(context.Background())
}

// Cancel abandons the worker. It returns false, doing nothing, when the
// worker already finished.
func (h *ExecutionHandle[T]) Cancel() bool {
	if !h.state.CompareAndSwap(handleRunning, handleAbandoned) {
		return false
	}
	h.pool.orphaned.Add(1)
	h.metrics.orphanStarted()
	h.task.Cancel()
	return true
}
