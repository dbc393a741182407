package asyncstep_test

import (
	"context"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/go-asyncstep"
)

func TestNewWorkerPool(t *testing.T) {
	t.Parallel()

	pool, err := asyncstep.NewWorkerPool(0, "")
	require.NoError(t, err)
	assert.Equal(t, 0, pool.Capacity())
	assert.Equal(t, asyncstep.PoolPolicyQueue, pool.Policy())

	_, err = asyncstep.NewWorkerPool(-1, asyncstep.PoolPolicyQueue)
	assert.ErrorIs(t, err, asyncstep.ErrInvalidConfiguration)

	_, err = asyncstep.NewWorkerPool(2, "spawn")
	assert.ErrorIs(t, err, asyncstep.ErrInvalidConfiguration)
	assert.EqualError(t, err, `InvalidConfiguration: unknown pool policy "spawn"`)
}

func TestSoftCancelLeavesWorkerRunning(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		pool, err := asyncstep.NewWorkerPool(0, asyncstep.PoolPolicyQueue)
		require.NoError(t, err)
		work := newBlockedWork()
		ctrl, err := asyncstep.NewController(300*time.Millisecond, work.unit,
			asyncstep.WithPollInterval(100*time.Millisecond),
			asyncstep.WithWorkerPool(pool))
		require.NoError(t, err)

		outcome := ctrl.Execute(t.Context(), nil)
		require.Equal(t, asyncstep.OutcomeTimedOut, outcome.Kind)

		synctest.Wait()
		assert.Equal(t, int64(1), pool.InFlight())
		assert.Equal(t, int64(1), pool.Orphaned())

		close(work.release)
		assert.False(t, <-work.interrupted, "soft cancellation must not interrupt the worker")
		synctest.Wait()
		assert.Equal(t, int64(0), pool.InFlight())
		assert.Equal(t, int64(0), pool.Orphaned())
	})
}

func TestHardCancelInterruptsWorker(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		pool, err := asyncstep.NewWorkerPool(1, asyncstep.PoolPolicyQueue)
		require.NoError(t, err)

		interrupted := make(chan error, 1)
		ctrl, err := asyncstep.NewController(300*time.Millisecond, func(ctx context.Context, _ asyncstep.JobContext) (*backupStatus, error) {
			<-ctx.Done()
			interrupted <- ctx.Err()
			return nil, ctx.Err()
		}, asyncstep.WithPollInterval(100*time.Millisecond),
			asyncstep.WithInterruptOnCancel(true),
			asyncstep.WithWorkerPool(pool))
		require.NoError(t, err)

		outcome := ctrl.Execute(t.Context(), nil)
		require.Equal(t, asyncstep.OutcomeTimedOut, outcome.Kind)
		assert.ErrorIs(t, <-interrupted, context.Canceled)

		synctest.Wait()
		assert.Equal(t, int64(0), pool.InFlight())
		assert.Equal(t, int64(0), pool.Orphaned())
	})
}

func TestRejectPolicyWhenExhausted(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		pool, err := asyncstep.NewWorkerPool(1, asyncstep.PoolPolicyReject)
		require.NoError(t, err)

		hog := newBlockedWork()
		hogCtrl, err := asyncstep.NewController(200*time.Millisecond, hog.unit,
			asyncstep.WithPollInterval(100*time.Millisecond),
			asyncstep.WithWorkerPool(pool))
		require.NoError(t, err)
		require.Equal(t, asyncstep.OutcomeTimedOut, hogCtrl.Execute(t.Context(), nil).Kind)

		ctrl, err := asyncstep.NewController(time.Second, sleepingWork(10*time.Millisecond, 5),
			asyncstep.WithStepName("styles"),
			asyncstep.WithPollInterval(100*time.Millisecond),
			asyncstep.WithWorkerPool(pool))
		require.NoError(t, err)

		// the orphan still holds the only slot
		outcome := ctrl.Execute(t.Context(), nil)
		assert.Equal(t, asyncstep.OutcomeCompleted, outcome.Kind)
		assert.ErrorIs(t, outcome.Err, asyncstep.ErrWorkerPoolExhausted)
		assert.EqualError(t, outcome.Err, `WorkerPoolExhausted: no free worker for step "styles", pool capacity 1`)
		assert.True(t, outcome.Failed())

		close(hog.release)
		<-hog.interrupted
		synctest.Wait()

		outcome = ctrl.Execute(t.Context(), nil)
		assert.True(t, outcome.Succeeded())
		assert.Equal(t, 5, outcome.Status.Copied)
	})
}

func TestQueuedWorkerCancelledBeforeRunning(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		pool, err := asyncstep.NewWorkerPool(1, asyncstep.PoolPolicyQueue)
		require.NoError(t, err)

		hog := newBlockedWork()
		hogCtrl, err := asyncstep.NewController(200*time.Millisecond, hog.unit,
			asyncstep.WithPollInterval(100*time.Millisecond),
			asyncstep.WithWorkerPool(pool))
		require.NoError(t, err)
		require.Equal(t, asyncstep.OutcomeTimedOut, hogCtrl.Execute(t.Context(), nil).Kind)

		var ran atomic.Bool
		ctrl, err := asyncstep.NewController(300*time.Millisecond, func(context.Context, asyncstep.JobContext) (*backupStatus, error) {
			ran.Store(true)
			return &backupStatus{}, nil
		}, asyncstep.WithPollInterval(100*time.Millisecond),
			asyncstep.WithWorkerPool(pool))
		require.NoError(t, err)

		outcome := ctrl.Execute(t.Context(), nil)
		assert.Equal(t, asyncstep.OutcomeTimedOut, outcome.Kind)

		synctest.Wait()
		// only the hog is left orphaned, the queued worker gave up its place
		assert.Equal(t, int64(1), pool.Orphaned())

		close(hog.release)
		<-hog.interrupted
		synctest.Wait()
		assert.False(t, ran.Load())
		assert.Equal(t, int64(0), pool.Orphaned())
		assert.Equal(t, int64(0), pool.InFlight())
	})
}

func TestNilWorkerPoolIsConfigurationError(t *testing.T) {
	t.Parallel()

	_, err := asyncstep.NewController(time.Second, sleepingWork(0, 0), asyncstep.WithWorkerPool(nil))
	assert.ErrorIs(t, err, asyncstep.ErrInvalidConfiguration)
	assert.EqualError(t, err, "InvalidConfiguration: worker pool is required")
}
