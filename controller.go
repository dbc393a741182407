package asyncstep

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Azure/go-asyncstep/diagnostics"
)

const diagnosticsSource = "controller"

// UnitOfWork is the step's actual logic. It receives the job context it runs
// under; the controller treats it as opaque.
type UnitOfWork[T any] func(ctx context.Context, jc JobContext) (*T, error)

// Controller runs a unit of work in the background under a hard deadline,
// while staying responsive to a cooperative stop and to step termination.
//
// Every check happens after sleeping one poll interval, so cancellation is
// observed with up to one interval of latency. When several conditions hold
// at the same check, completion wins over timeout, timeout over step
// termination, and termination over stop.
//
// Unless InterruptOnCancel is set, a worker cancelled on timeout, termination
// or stop is only abandoned: it keeps running, and keeps its pool slot, until
// the unit of work returns by itself.
type Controller[T any] struct {
	config  ControllerConfig
	unit    UnitOfWork[T]
	options *ControllerOptions

	// stopped is sticky for the lifetime of the controller unless
	// ResetStopFlag is set.
	stopped atomic.Bool
}

// NewController validates the configuration and returns a controller.
// Errors wrap ErrInvalidConfiguration and are meant to abort startup.
func NewController[T any](timeout time.Duration, unit UnitOfWork[T], optionDecorators ...ControllerOptionPreparer) (*Controller[T], error) {
	options := defaultControllerOptions()
	for _, decorator := range optionDecorators {
		options = decorator(options)
	}

	if unit == nil {
		return nil, ErrInvalidConfiguration.WithMessage("unit of work is required")
	}
	if options.Pool == nil {
		return nil, ErrInvalidConfiguration.WithMessage("worker pool is required")
	}

	config := ControllerConfig{
		Timeout:           timeout,
		PollInterval:      options.PollInterval,
		InterruptOnCancel: options.InterruptOnCancel,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Controller[T]{config: config, unit: unit, options: options}, nil
}

func (c *Controller[T]) Config() ControllerConfig {
	return c.config
}

func (c *Controller[T]) StepName() string {
	return c.options.StepName
}

// Stop asks the running (or next) invocation to stop. Idempotent and safe to
// call from any goroutine.
func (c *Controller[T]) Stop() {
	c.stopped.Store(true)
}

// Stopped reports whether the stop flag is currently set.
func (c *Controller[T]) Stopped() bool {
	return c.stopped.Load()
}

// Execute runs the unit of work once and returns its outcome.
func (c *Controller[T]) Execute(ctx context.Context, jc JobContext) Outcome[T] {
	return c.Run(ctx, jc).Outcome
}

// Run is Execute returning the full execution record.
//
// Cancelling ctx counts as a step termination request.
func (c *Controller[T]) Run(ctx context.Context, jc JobContext) *Execution[T] {
	if c.options.ResetStopFlag {
		defer c.stopped.Store(false)
	}

	execution := &Execution[T]{
		ID:        uuid.New().String(),
		StepName:  c.options.StepName,
		StartTime: time.Now(),
	}
	ctx = diagnostics.WithExecutionID(ctx, execution.ID)
	logger := c.options.Logger.WithFields(logrus.Fields{
		"execution_id": execution.ID,
		"step":         execution.StepName,
	})

	// The worker is only ever cancelled through the handle, so that parent
	// cancellation goes through the same priority rules as the other signals.
	handle := submit(context.WithoutCancel(ctx), c.options.Pool, c.options.Metrics, execution.StepName, c.config.InterruptOnCancel,
		func(workCtx context.Context) (*T, error) {
			return c.unit(workCtx, jc)
		})
	logger.WithField("timeout", c.config.Timeout).Debug("step submitted")

	execution.Outcome = c.poll(ctx, jc, execution, handle, logger)
	execution.Duration = time.Since(execution.StartTime)

	c.options.Metrics.observe(execution.StepName, execution.Outcome.Kind, execution.Duration)
	entry := logger.WithFields(logrus.Fields{
		"outcome": execution.Outcome.Kind,
		"elapsed": execution.Duration,
		"polls":   execution.Polls,
	})
	if execution.Outcome.Err != nil {
		entry = entry.WithError(execution.Outcome.Err)
	}
	if execution.Outcome.Failed() {
		entry.Warn("step finished unsuccessfully")
	} else {
		entry.Info("step finished")
	}

	return execution
}

func (c *Controller[T]) poll(ctx context.Context, jc JobContext, execution *Execution[T], handle *ExecutionHandle[T], logger logrus.FieldLogger) Outcome[T] {
	timer := time.NewTimer(c.config.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			timer.Reset(c.config.PollInterval)
		case <-ctx.Done():
		}
		execution.Polls++

		if jc != nil && jc.IsStopping() {
			c.stopped.Store(true)
		}

		if handle.Done() {
			status, err := handle.Result()
			if err != nil {
				var messageErr *MessageError
				if !errors.As(err, &messageErr) || messageErr.Code != ErrWorkerPoolExhausted {
					err = newWorkError(execution.StepName, err)
				}
				return Outcome[T]{Kind: OutcomeCompleted, Err: err}
			}
			return Outcome[T]{Kind: OutcomeCompleted, Status: status}
		}

		if elapsed := time.Since(execution.StartTime); elapsed > c.config.Timeout {
			c.cancel(handle, logger)
			err := ErrStepTimedOut.WithMessage(fmt.Sprintf(MsgStepTimedOut, execution.StepName, c.config.Timeout))
			c.options.Diagnostics.Report(ctx, diagnostics.Error(ctx, diagnosticsSource, execution.StepName, err))
			return Outcome[T]{Kind: OutcomeTimedOut, Err: err}
		}

		if reason, ok := terminateRequested(ctx, jc); ok {
			c.cancel(handle, logger)
			err := ErrStepInterrupted.WithMessage(fmt.Sprintf(MsgStepInterrupted, execution.StepName, reason))
			c.options.Diagnostics.Report(ctx, diagnostics.Error(ctx, diagnosticsSource, execution.StepName, err))
			return Outcome[T]{Kind: OutcomeInterrupted, Err: err, Reason: reason}
		}

		if c.stopped.Load() {
			c.cancel(handle, logger)
			return Outcome[T]{Kind: OutcomeStopped}
		}
	}
}

func (c *Controller[T]) cancel(handle *ExecutionHandle[T], logger logrus.FieldLogger) {
	if handle.Cancel() && !c.config.InterruptOnCancel {
		logger.WithField("orphaned_workers", c.options.Pool.Orphaned()).
			Warn("worker abandoned without interruption, it may keep running in the background")
	}
}

func terminateRequested(ctx context.Context, jc JobContext) (string, bool) {
	if err := ctx.Err(); err != nil {
		return err.Error(), true
	}
	if jc == nil || !jc.IsStepTerminateRequested() {
		return "", false
	}
	if reasoner, ok := jc.(TerminateReasoner); ok && reasoner.TerminateReason() != "" {
		return reasoner.TerminateReason(), true
	}
	return "step termination requested", true
}
